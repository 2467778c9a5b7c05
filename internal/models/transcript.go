// Package models defines core data structures for videos, transcripts, and search results.
package models

import (
	"errors"
	"fmt"
	"time"
)

// SpanEpsilon is the tolerance used when comparing span timestamps.
const SpanEpsilon = 1e-6

// ErrInvalidSpans indicates a transcript whose spans are out of order or overlapping.
// The upstream transcriber is expected to produce ordered, non-overlapping spans;
// a violation is rejected before any indexing takes place.
var ErrInvalidSpans = errors.New("transcript spans out of order or overlapping")

// Video represents an indexed video and its transcript-level metadata.
type Video struct {
	ID        string    `json:"id"`
	Filename  string    `json:"filename"`
	Duration  float64   `json:"duration"`
	Language  string    `json:"language,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// TranscriptSpan is the raw unit produced by transcription: a piece of text
// with its start and end time in seconds.
type TranscriptSpan struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// TranscriptChunk is a fixed-duration slice of a video's transcript, produced
// by the chunker and immutable thereafter. Chunks for a video are contiguous
// and ordered by ChunkIndex.
type TranscriptChunk struct {
	VideoID    string  `json:"video_id"`
	ChunkIndex int     `json:"chunk_index"`
	Text       string  `json:"text"`
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
}

// TranscriptInput is the input for indexing a video transcript.
// VideoID is optional; a fresh ID is assigned when empty. Duration is optional;
// when zero it is derived from the last span's end time.
type TranscriptInput struct {
	VideoID  string           `json:"video_id,omitempty"`
	Filename string           `json:"filename"`
	Duration float64          `json:"duration,omitempty"`
	Language string           `json:"language,omitempty"`
	Spans    []TranscriptSpan `json:"segments"`
}

// ValidateSpans checks that spans are ordered by start time, non-overlapping,
// and individually well-formed (start <= end). Returns ErrInvalidSpans with
// the offending position on violation.
func ValidateSpans(spans []TranscriptSpan) error {
	for i, sp := range spans {
		if sp.End < sp.Start-SpanEpsilon {
			return fmt.Errorf("span %d ends before it starts (%.3f > %.3f): %w", i, sp.Start, sp.End, ErrInvalidSpans)
		}
		if i == 0 {
			continue
		}
		prev := spans[i-1]
		if sp.Start < prev.Start-SpanEpsilon {
			return fmt.Errorf("span %d starts before span %d: %w", i, i-1, ErrInvalidSpans)
		}
		if sp.Start < prev.End-SpanEpsilon {
			return fmt.Errorf("span %d overlaps span %d: %w", i, i-1, ErrInvalidSpans)
		}
	}
	return nil
}
