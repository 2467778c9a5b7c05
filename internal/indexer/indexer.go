// Package indexer ingests transcripts into storage, the vector index, and the
// keyword index.
package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/clipseek/clipseek/internal/config"
	"github.com/clipseek/clipseek/internal/embedding"
	"github.com/clipseek/clipseek/internal/keyword"
	"github.com/clipseek/clipseek/internal/models"
	"github.com/clipseek/clipseek/internal/storage"
	"github.com/clipseek/clipseek/internal/vector"
)

// Indexer indexes transcripts: store spans, chunk, embed, add to vector and
// keyword indexes.
type Indexer struct {
	storage      storage.Storage
	embedder     embedding.Embedder
	vectorIndex  *vector.Index
	keywordIndex keyword.Index
	chunker      *Chunker
	logger       *zap.Logger // optional; when set, logs debug events
	savePath     string      // optional; when set, the vector index is saved after each mutation
}

// Option configures an Indexer.
type Option func(*Indexer)

// WithLogger sets a logger for debug output (transcript indexed, video deleted, etc.).
func WithLogger(l *zap.Logger) Option {
	return func(idx *Indexer) { idx.logger = l }
}

// WithAutosave makes the indexer persist the vector index to path after every
// successful index or delete.
func WithAutosave(path string) Option {
	return func(idx *Indexer) { idx.savePath = path }
}

// NewIndexer creates an indexer with the given dependencies.
func NewIndexer(
	store storage.Storage,
	embedder embedding.Embedder,
	vectorIndex *vector.Index,
	keywordIndex keyword.Index,
	cfg *config.SearchConfig,
	opts ...Option,
) (*Indexer, error) {
	chunker, err := NewChunker(cfg.ChunkDuration)
	if err != nil {
		return nil, err
	}
	idx := &Indexer{
		storage:      store,
		embedder:     embedder,
		vectorIndex:  vectorIndex,
		keywordIndex: keywordIndex,
		chunker:      chunker,
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx, nil
}

// IndexTranscript validates, stores, chunks, embeds, and indexes a transcript.
// Re-indexing a video ID replaces its previous chunks everywhere. Returns the
// video ID (generated when the input carries none).
func (idx *Indexer) IndexTranscript(ctx context.Context, input *models.TranscriptInput) (string, error) {
	if err := models.ValidateSpans(input.Spans); err != nil {
		return "", err
	}
	if input.VideoID == "" {
		input.VideoID = uuid.New().String()
	}
	duration := input.Duration
	if duration == 0 && len(input.Spans) > 0 {
		duration = input.Spans[len(input.Spans)-1].End
	}

	video := &models.Video{
		ID:       input.VideoID,
		Filename: input.Filename,
		Duration: duration,
		Language: input.Language,
	}
	if err := idx.storage.SaveTranscript(ctx, video, input.Spans); err != nil {
		return "", fmt.Errorf("failed to store transcript: %w", err)
	}

	chunks := idx.chunker.Chunk(video.ID, input.Spans)
	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Text
	}
	embeddings, err := idx.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return "", fmt.Errorf("failed to generate embeddings: %w", err)
	}

	// Replace before add so a re-indexed video never has stale chunks.
	idx.vectorIndex.Remove(ctx, video.ID)
	if err := idx.keywordIndex.DeleteVideo(ctx, video.ID); err != nil {
		return "", fmt.Errorf("failed to clear keyword index: %w", err)
	}

	entryIDs, err := idx.vectorIndex.Add(ctx, video.ID, chunks, embeddings)
	if err != nil {
		return "", fmt.Errorf("failed to index vectors: %w", err)
	}
	for i, entryID := range entryIDs {
		if err := idx.keywordIndex.Index(ctx, entryID, video.ID, chunks[i].Text); err != nil {
			return "", fmt.Errorf("failed to index keywords: %w", err)
		}
	}

	if idx.logger != nil {
		idx.logger.Debug("transcript indexed",
			zap.String("video_id", video.ID),
			zap.Int("spans", len(input.Spans)),
			zap.Int("chunks", len(chunks)))
	}
	return video.ID, idx.autosave()
}

// IndexTranscriptFile reads a transcript JSON file and indexes it. When the
// file carries no video_id, the filename stem is used so re-dropping the same
// file updates the same video. Returns the video ID.
func (idx *Indexer) IndexTranscriptFile(ctx context.Context, path string) (string, error) {
	if idx.logger != nil {
		idx.logger.Debug("indexing transcript file", zap.String("path", path))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read transcript file: %w", err)
	}
	var input models.TranscriptInput
	if err := json.Unmarshal(data, &input); err != nil {
		return "", fmt.Errorf("failed to parse transcript file: %w", err)
	}
	if input.VideoID == "" {
		base := filepath.Base(path)
		input.VideoID = strings.TrimSuffix(base, filepath.Ext(base))
	}
	if input.Filename == "" {
		input.Filename = filepath.Base(path)
	}
	return idx.IndexTranscript(ctx, &input)
}

// DeleteVideo removes a video from all indexes and storage.
func (idx *Indexer) DeleteVideo(ctx context.Context, id string) error {
	if err := idx.keywordIndex.DeleteVideo(ctx, id); err != nil {
		return fmt.Errorf("failed to delete from keyword index: %w", err)
	}
	idx.vectorIndex.Remove(ctx, id)
	if err := idx.storage.DeleteVideo(ctx, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return err
		}
		return fmt.Errorf("failed to delete video: %w", err)
	}
	if idx.logger != nil {
		idx.logger.Debug("video deleted", zap.String("video_id", id))
	}
	return idx.autosave()
}

func (idx *Indexer) autosave() error {
	if idx.savePath == "" {
		return nil
	}
	if err := idx.vectorIndex.Save(idx.savePath); err != nil {
		return fmt.Errorf("failed to save vector index: %w", err)
	}
	return nil
}
