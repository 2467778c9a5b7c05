// Package keyword provides BM25-style keyword search over transcript chunks.
package keyword

import "context"

// Result is a single keyword hit. ID is the vector entry ID of the chunk,
// formatted as a decimal string.
type Result struct {
	ID    string
	Score float64
}

// Index is the keyword index over chunk text.
type Index interface {
	// Index adds or replaces a chunk document keyed by entry ID.
	Index(ctx context.Context, entryID int64, videoID, text string) error
	// Search runs a match query and returns up to limit results.
	Search(ctx context.Context, query string, limit int) ([]*Result, error)
	// DeleteVideo removes all chunk documents belonging to a video.
	DeleteVideo(ctx context.Context, videoID string) error
	// DocCount returns the number of indexed chunks.
	DocCount() (uint64, error)
	Close() error
}
