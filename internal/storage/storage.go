// Package storage persists videos and their transcript spans.
package storage

import (
	"context"
	"errors"

	"github.com/clipseek/clipseek/internal/models"
)

// ErrNotFound is returned when a video does not exist.
var ErrNotFound = errors.New("video not found")

// Storage is the transcript store. The vector and keyword indexes hold
// derived chunk data; this is the source of truth for raw transcripts.
type Storage interface {
	// SaveTranscript stores the video and its spans, replacing any previous
	// transcript for the same video ID.
	SaveTranscript(ctx context.Context, video *models.Video, spans []models.TranscriptSpan) error
	GetVideo(ctx context.Context, id string) (*models.Video, error)
	GetSpans(ctx context.Context, videoID string) ([]models.TranscriptSpan, error)
	// FullText returns the whole transcript text of a video, spans joined
	// with single spaces.
	FullText(ctx context.Context, videoID string) (string, error)
	ListVideos(ctx context.Context, offset, limit int) ([]*models.Video, error)
	DeleteVideo(ctx context.Context, id string) error
	CountVideos(ctx context.Context) (int64, error)
	CountSpans(ctx context.Context) (int64, error)
	Close() error
}
