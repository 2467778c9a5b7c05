package indexer

import (
	"errors"
	"strings"

	"github.com/clipseek/clipseek/internal/models"
)

// ErrChunkDuration is returned when a chunker is created with a non-positive duration.
var ErrChunkDuration = errors.New("chunk duration must be positive")

// Chunker groups transcript spans into fixed-duration chunks. Spans are never
// split: a chunk closes once the span that was just appended pushes its covered
// time to the target duration or beyond, so a chunk can run longer than the
// target when a long span lands at its end.
type Chunker struct {
	duration float64
}

// NewChunker creates a chunker with the given target duration in seconds.
func NewChunker(duration float64) (*Chunker, error) {
	if duration <= 0 {
		return nil, ErrChunkDuration
	}
	return &Chunker{duration: duration}, nil
}

// Chunk groups spans into chunks for videoID. Spans must be validated and
// ordered by start time. Chunk text is the span texts joined with single
// spaces; each chunk covers [start of its first span, end of its last span].
// The trailing remainder is kept as a final short chunk.
func (c *Chunker) Chunk(videoID string, spans []models.TranscriptSpan) []models.TranscriptChunk {
	if len(spans) == 0 {
		return nil
	}

	var chunks []models.TranscriptChunk
	var texts []string
	chunkStart := spans[0].Start
	chunkEnd := spans[0].End

	flush := func() {
		chunks = append(chunks, models.TranscriptChunk{
			VideoID:    videoID,
			ChunkIndex: len(chunks),
			Text:       strings.Join(texts, " "),
			Start:      chunkStart,
			End:        chunkEnd,
		})
		texts = nil
	}

	for i, span := range spans {
		if len(texts) == 0 {
			chunkStart = span.Start
		}
		texts = append(texts, span.Text)
		chunkEnd = span.End
		if span.End-chunkStart >= c.duration && i < len(spans)-1 {
			flush()
		}
	}
	flush()
	return chunks
}
