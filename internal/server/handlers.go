package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/clipseek/clipseek/internal/models"
	"github.com/clipseek/clipseek/internal/retrieval"
	"github.com/clipseek/clipseek/internal/segment"
	"github.com/clipseek/clipseek/internal/storage"
	"github.com/clipseek/clipseek/internal/vector"
)

// searchHit is a search result with its located playable segment. The segment
// is omitted when the chunk falls entirely outside the known video duration.
type searchHit struct {
	*models.SearchResult
	Segment *segment.Segment `json:"segment,omitempty"`
}

type searchResponse struct {
	Results   []searchHit `json:"results"`
	Total     int         `json:"total"`
	QueryTime int64       `json:"query_time_ms"`
	Query     string      `json:"query"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var query models.SearchQuery
	if err := json.NewDecoder(r.Body).Decode(&query); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.logger.Debug("search request", zap.String("query", query.Query), zap.Int("top_k", query.TopK))

	response, err := s.retriever.Search(r.Context(), &query)
	if err != nil {
		s.respondSearchError(w, err)
		return
	}

	pad := s.config.Search.PadSeconds
	if query.PadSeconds != nil {
		pad = *query.PadSeconds
	}

	hits := make([]searchHit, 0, len(response.Results))
	durations := make(map[string]float64)
	for _, result := range response.Results {
		duration, ok := durations[result.VideoID]
		if !ok {
			if video, getErr := s.storage.GetVideo(r.Context(), result.VideoID); getErr == nil {
				duration = video.Duration
			}
			durations[result.VideoID] = duration
		}
		hit := searchHit{SearchResult: result}
		if seg, locErr := segment.Locate(result, pad, duration); locErr == nil {
			hit.Segment = &seg
		}
		hits = append(hits, hit)
	}

	s.respondJSON(w, http.StatusOK, &searchResponse{
		Results:   hits,
		Total:     response.Total,
		QueryTime: response.QueryTime,
		Query:     response.Query,
	})
}

func (s *Server) respondSearchError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, retrieval.ErrInvalidQuery),
		errors.Is(err, vector.ErrDimensionMismatch):
		s.respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, retrieval.ErrEmbeddingUnavailable):
		s.respondError(w, http.StatusServiceUnavailable, err.Error())
	default:
		s.logger.Error("search failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) handleIndexTranscript(w http.ResponseWriter, r *http.Request) {
	var input models.TranscriptInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.logger.Debug("index transcript request",
		zap.String("video_id", input.VideoID),
		zap.Int("spans", len(input.Spans)))

	id, err := s.indexer.IndexTranscript(r.Context(), &input)
	if err != nil {
		if errors.Is(err, models.ErrInvalidSpans) {
			s.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("indexing failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusCreated, map[string]string{"video_id": id, "status": "indexed"})
}

func (s *Server) handleListVideos(w http.ResponseWriter, r *http.Request) {
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		limit = 50
	}
	videos, err := s.storage.ListVideos(r.Context(), offset, limit)
	if err != nil {
		s.logger.Error("list videos failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if videos == nil {
		videos = []*models.Video{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"videos": videos})
}

func (s *Server) handleGetVideo(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	video, err := s.storage.GetVideo(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "video not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, video)
}

func (s *Server) handleDeleteVideo(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.logger.Debug("delete video request", zap.String("id", id))
	if err := s.indexer.DeleteVideo(r.Context(), id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "video not found")
			return
		}
		s.logger.Error("deletion failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleIndexInfo(w http.ResponseWriter, r *http.Request) {
	info := s.vectorIndex.Info()
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"entries":    info.Entries,
		"dimensions": info.Dimensions,
		"videos":     info.Videos,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	videoCount, err := s.storage.CountVideos(ctx)
	if err != nil {
		s.logger.Error("status: count videos failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	spanCount, err := s.storage.CountSpans(ctx)
	if err != nil {
		s.logger.Error("status: count spans failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	info := s.vectorIndex.Info()
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"videos":        videoCount,
		"spans":         spanCount,
		"index_entries": info.Entries,
		"config": map[string]interface{}{
			"embedding_dimensions": s.config.Embedding.Dimensions,
			"chunk_duration":       s.config.Search.ChunkDuration,
			"database_path":        s.config.Storage.DatabasePath,
			"vector_index_path":    s.config.Storage.VectorIndexPath,
			"keyword_index_path":   s.config.Storage.KeywordIndexPath,
		},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
