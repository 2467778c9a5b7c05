package vector

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/clipseek/clipseek/internal/models"
)

var (
	// ErrDimensionMismatch indicates a vector whose length differs from the index dimension.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	// ErrLengthMismatch indicates Add was called with differing chunk and vector counts.
	ErrLengthMismatch = errors.New("chunks and vectors length mismatch")
	// ErrCorruptIndex indicates persisted index artifacts that are inconsistent or unreadable.
	ErrCorruptIndex = errors.New("corrupt index")
)

// EntryMeta is the metadata stored alongside each vector.
type EntryMeta struct {
	VideoID    string  `json:"video_id"`
	ChunkIndex int     `json:"chunk_index"`
	Text       string  `json:"text"`
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
}

// Info describes the current index contents.
type Info struct {
	Entries    int `json:"entries"`
	Dimensions int `json:"dimensions"`
	Videos     int `json:"videos"`
}

// Index is a flat in-memory cosine-similarity index with durable snapshots.
// Entry IDs are assigned monotonically at insertion and never reused; removal
// tombstones entries until the next save compacts them out. Mutations are
// serialized by a writer lock; searches run concurrently under the read lock
// and always observe a consistent state.
type Index struct {
	mu         sync.RWMutex
	saveMu     sync.Mutex
	dimensions int
	nextID     int64
	ids        []int64
	vectors    [][]float32
	norms      []float64
	meta       map[int64]EntryMeta
	tombstones map[int64]struct{}
}

// NewIndex creates an empty index with the given embedding dimension.
func NewIndex(dimensions int) (*Index, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive, got %d", dimensions)
	}
	return &Index{
		dimensions: dimensions,
		ids:        make([]int64, 0),
		vectors:    make([][]float32, 0),
		norms:      make([]float64, 0),
		meta:       make(map[int64]EntryMeta),
		tombstones: make(map[int64]struct{}),
	}, nil
}

// Dimensions returns the embedding dimension fixed at creation.
func (ix *Index) Dimensions() int {
	return ix.dimensions
}

// Add appends chunks with their vectors, assigning fresh entry IDs in order,
// and returns the assigned IDs. The operation is all-or-nothing: every vector
// is validated before the index is touched. Re-adding a video does not
// deduplicate; callers wanting re-index semantics must Remove first.
func (ix *Index) Add(ctx context.Context, videoID string, chunks []models.TranscriptChunk, vectors [][]float32) ([]int64, error) {
	if len(chunks) != len(vectors) {
		return nil, fmt.Errorf("%d chunks but %d vectors: %w", len(chunks), len(vectors), ErrLengthMismatch)
	}
	for i, vec := range vectors {
		if len(vec) != ix.dimensions {
			return nil, fmt.Errorf("vector %d has %d components, index expects %d: %w", i, len(vec), ix.dimensions, ErrDimensionMismatch)
		}
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	assigned := make([]int64, len(chunks))
	for i, ch := range chunks {
		id := ix.nextID
		ix.nextID++
		vec := make([]float32, ix.dimensions)
		copy(vec, vectors[i])
		ix.ids = append(ix.ids, id)
		ix.vectors = append(ix.vectors, vec)
		ix.norms = append(ix.norms, L2Norm(vec))
		ix.meta[id] = EntryMeta{
			VideoID:    videoID,
			ChunkIndex: ch.ChunkIndex,
			Text:       ch.Text,
			Start:      ch.Start,
			End:        ch.End,
		}
		assigned[i] = id
	}
	return assigned, nil
}

// Remove tombstones every entry belonging to videoID and returns how many
// entries were newly tombstoned. Removing an absent video is a no-op, and
// removing twice has the same observable effect as once.
func (ix *Index) Remove(ctx context.Context, videoID string) int {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	removed := 0
	for id, m := range ix.meta {
		if m.VideoID != videoID {
			continue
		}
		if _, dead := ix.tombstones[id]; dead {
			continue
		}
		ix.tombstones[id] = struct{}{}
		removed++
	}
	return removed
}

// Search returns up to topK live entries ranked by cosine similarity to query,
// descending, with ties broken by ascending entry ID. An empty index yields an
// empty result, never an error.
func (ix *Index) Search(ctx context.Context, query []float32, topK int) ([]*models.SearchResult, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("top_k must be positive, got %d", topK)
	}
	if len(query) != ix.dimensions {
		return nil, fmt.Errorf("query has %d components, index expects %d: %w", len(query), ix.dimensions, ErrDimensionMismatch)
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	qnorm := L2Norm(query)
	results := make([]*models.SearchResult, 0, len(ix.ids))
	for i, id := range ix.ids {
		if _, dead := ix.tombstones[id]; dead {
			continue
		}
		score := 0.0
		if qnorm != 0 && ix.norms[i] != 0 {
			var dot float64
			vec := ix.vectors[i]
			for j := 0; j < ix.dimensions; j++ {
				dot += float64(query[j]) * float64(vec[j])
			}
			score = dot / (qnorm * ix.norms[i])
		}
		m := ix.meta[id]
		results = append(results, &models.SearchResult{
			EntryID:    id,
			Score:      score,
			VideoID:    m.VideoID,
			ChunkIndex: m.ChunkIndex,
			Text:       m.Text,
			Start:      m.Start,
			End:        m.End,
		})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].EntryID < results[j].EntryID
	})
	if topK < len(results) {
		results = results[:topK]
	}
	return results, nil
}

// Info returns live entry count, dimension, and distinct live video count.
func (ix *Index) Info() Info {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	videos := make(map[string]struct{})
	live := 0
	for _, id := range ix.ids {
		if _, dead := ix.tombstones[id]; dead {
			continue
		}
		live++
		videos[ix.meta[id].VideoID] = struct{}{}
	}
	return Info{Entries: live, Dimensions: ix.dimensions, Videos: len(videos)}
}
