// Package retrieval runs ranked semantic search over indexed transcript chunks.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/clipseek/clipseek/internal/config"
	"github.com/clipseek/clipseek/internal/embedding"
	"github.com/clipseek/clipseek/internal/keyword"
	"github.com/clipseek/clipseek/internal/models"
	"github.com/clipseek/clipseek/internal/vector"
)

var (
	// ErrInvalidQuery indicates a blank query. Rejected before any embedding call.
	ErrInvalidQuery = errors.New("query text must not be blank")
	// ErrEmbeddingUnavailable indicates the embedding backend failed after the retry.
	ErrEmbeddingUnavailable = errors.New("embedding backend unavailable")
)

// Service runs semantic search with optional keyword fusion.
type Service struct {
	embedder     embedding.Embedder
	vectorIndex  *vector.Index
	keywordIndex keyword.Index
	embedCfg     *config.EmbeddingConfig
	searchCfg    *config.SearchConfig
	logger       *zap.Logger // optional
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets a logger for debug output.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// NewService creates a retrieval service. keywordIndex may be nil; hybrid
// queries then fall back to pure semantic ranking.
func NewService(
	embedder embedding.Embedder,
	vectorIndex *vector.Index,
	keywordIndex keyword.Index,
	embedCfg *config.EmbeddingConfig,
	searchCfg *config.SearchConfig,
	opts ...Option,
) *Service {
	s := &Service{
		embedder:     embedder,
		vectorIndex:  vectorIndex,
		keywordIndex: keywordIndex,
		embedCfg:     embedCfg,
		searchCfg:    searchCfg,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Search embeds the query and returns ranked chunk results. Results below the
// score threshold are dropped; when the query names a video, results are
// restricted to it.
func (s *Service) Search(ctx context.Context, query *models.SearchQuery) (*models.SearchResponse, error) {
	startTime := time.Now()
	if strings.TrimSpace(query.Query) == "" {
		return nil, ErrInvalidQuery
	}
	query.Normalize(s.searchCfg.DefaultTopK, s.searchCfg.MaxTopK)

	queryEmbedding, err := s.embedQuery(ctx, query.Query)
	if err != nil {
		return nil, err
	}

	// Over-fetch when filtering by video so the filter does not starve topK.
	fetchK := query.TopK
	if query.VideoID != "" {
		fetchK *= 2
	}
	results, err := s.vectorIndex.Search(ctx, queryEmbedding, fetchK)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}

	if query.VideoID != "" {
		filtered := results[:0]
		for _, r := range results {
			if r.VideoID == query.VideoID {
				filtered = append(filtered, r)
			}
		}
		results = filtered
	}

	if query.KeywordEnabled && s.keywordIndex != nil {
		keywordResults, kwErr := s.keywordIndex.Search(ctx, query.Query, fetchK)
		if kwErr != nil {
			if s.logger != nil {
				s.logger.Warn("keyword search failed, using semantic scores only", zap.Error(kwErr))
			}
		} else {
			results = Fuse(results, NormalizeKeywordScores(keywordResults),
				s.searchCfg.KeywordWeight, s.searchCfg.SemanticWeight)
		}
	}

	minScore := query.MinScore
	if minScore == 0 {
		minScore = s.searchCfg.MinScore
	}
	if minScore > 0 {
		// Results are sorted, so the threshold cuts a tail.
		cut := len(results)
		for cut > 0 && results[cut-1].Score < minScore {
			cut--
		}
		results = results[:cut]
	}

	if len(results) > query.TopK {
		results = results[:query.TopK]
	}

	if s.logger != nil {
		s.logger.Debug("search complete",
			zap.String("query", query.Query),
			zap.Int("results", len(results)),
			zap.Duration("elapsed", time.Since(startTime)))
	}
	return &models.SearchResponse{
		Results:   results,
		Total:     len(results),
		QueryTime: time.Since(startTime).Milliseconds(),
		Query:     query.Query,
	}, nil
}

// embedQuery embeds the query text with the configured timeout, retrying once
// after a short backoff before reporting the backend unavailable.
func (s *Service) embedQuery(ctx context.Context, text string) ([]float32, error) {
	embed := func() ([]float32, error) {
		callCtx := ctx
		if timeout := s.embedCfg.Timeout(); timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		return s.embedder.Embed(callCtx, text)
	}

	emb, err := embed()
	if err == nil {
		return emb, nil
	}
	if s.logger != nil {
		s.logger.Warn("embedding failed, retrying once", zap.Error(err))
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(s.embedCfg.RetryBackoff()):
	}

	emb, err = embed()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingUnavailable, err)
	}
	return emb, nil
}
