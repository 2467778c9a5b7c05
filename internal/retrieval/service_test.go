package retrieval

import (
	"context"
	"errors"
	"testing"

	"github.com/clipseek/clipseek/internal/config"
	"github.com/clipseek/clipseek/internal/embedding"
	"github.com/clipseek/clipseek/internal/keyword"
	"github.com/clipseek/clipseek/internal/models"
	"github.com/clipseek/clipseek/internal/vector"
)

const testDims = 32

// flakyEmbedder fails the first failures calls, then delegates to the mock.
type flakyEmbedder struct {
	*embedding.MockEmbedder
	failures int
	calls    int
}

func (f *flakyEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, errors.New("backend down")
	}
	return f.MockEmbedder.Embed(ctx, text)
}

func testSearchConfig() *config.SearchConfig {
	return &config.SearchConfig{
		DefaultTopK:    5,
		MaxTopK:        50,
		ChunkDuration:  30,
		KeywordWeight:  0.3,
		SemanticWeight: 0.7,
	}
}

func testEmbedConfig() *config.EmbeddingConfig {
	return &config.EmbeddingConfig{TimeoutSeconds: 5, RetryBackoffMS: 1}
}

// populateIndex adds chunks for the given texts and returns the assigned entry IDs.
func populateIndex(t *testing.T, idx *vector.Index, emb embedding.Embedder, videoID string, texts []string) []int64 {
	t.Helper()
	ctx := context.Background()
	chunks := make([]models.TranscriptChunk, len(texts))
	for i, text := range texts {
		chunks[i] = models.TranscriptChunk{
			VideoID:    videoID,
			ChunkIndex: i,
			Text:       text,
			Start:      float64(i) * 30,
			End:        float64(i+1) * 30,
		}
	}
	vectors, err := emb.EmbedBatch(ctx, texts)
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	ids, err := idx.Add(ctx, videoID, chunks, vectors)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	return ids
}

func TestSearchRanksExactMatchFirst(t *testing.T) {
	emb := embedding.NewMockEmbedder(testDims)
	idx, err := vector.NewIndex(testDims)
	if err != nil {
		t.Fatalf("NewIndex: %v", err)
	}
	populateIndex(t, idx, emb, "vid-1", []string{
		"cooking pasta at home",
		"training neural networks",
		"planting a garden",
	})

	svc := NewService(emb, idx, nil, testEmbedConfig(), testSearchConfig())
	resp, err := svc.Search(context.Background(), &models.SearchQuery{Query: "training neural networks"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(resp.Results) == 0 {
		t.Fatal("expected results")
	}
	top := resp.Results[0]
	if top.Text != "training neural networks" {
		t.Errorf("top result text = %q", top.Text)
	}
	if top.Score < 0.999 {
		t.Errorf("exact match score = %v, want ~1.0", top.Score)
	}
}

func TestSearchBlankQuery(t *testing.T) {
	emb := embedding.NewMockEmbedder(testDims)
	idx, _ := vector.NewIndex(testDims)
	svc := NewService(emb, idx, nil, testEmbedConfig(), testSearchConfig())

	for _, q := range []string{"", "   ", "\t\n"} {
		if _, err := svc.Search(context.Background(), &models.SearchQuery{Query: q}); !errors.Is(err, ErrInvalidQuery) {
			t.Errorf("Search(%q) err = %v, want ErrInvalidQuery", q, err)
		}
	}
}

func TestSearchRetriesOnce(t *testing.T) {
	idx, _ := vector.NewIndex(testDims)
	emb := &flakyEmbedder{MockEmbedder: embedding.NewMockEmbedder(testDims), failures: 1}
	populateIndex(t, idx, emb.MockEmbedder, "vid-1", []string{"some chunk text"})

	svc := NewService(emb, idx, nil, testEmbedConfig(), testSearchConfig())
	resp, err := svc.Search(context.Background(), &models.SearchQuery{Query: "some chunk text"})
	if err != nil {
		t.Fatalf("Search after one failure: %v", err)
	}
	if emb.calls != 2 {
		t.Errorf("embedder called %d times, want 2", emb.calls)
	}
	if len(resp.Results) != 1 {
		t.Errorf("got %d results, want 1", len(resp.Results))
	}
}

func TestSearchEmbeddingUnavailable(t *testing.T) {
	idx, _ := vector.NewIndex(testDims)
	emb := &flakyEmbedder{MockEmbedder: embedding.NewMockEmbedder(testDims), failures: 10}
	svc := NewService(emb, idx, nil, testEmbedConfig(), testSearchConfig())

	_, err := svc.Search(context.Background(), &models.SearchQuery{Query: "anything"})
	if !errors.Is(err, ErrEmbeddingUnavailable) {
		t.Fatalf("err = %v, want ErrEmbeddingUnavailable", err)
	}
	if emb.calls != 2 {
		t.Errorf("embedder called %d times, want 2 (one retry)", emb.calls)
	}
}

func TestSearchVideoFilter(t *testing.T) {
	emb := embedding.NewMockEmbedder(testDims)
	idx, _ := vector.NewIndex(testDims)
	populateIndex(t, idx, emb, "vid-a", []string{"alpha topic", "beta topic"})
	populateIndex(t, idx, emb, "vid-b", []string{"alpha topic", "gamma topic"})

	svc := NewService(emb, idx, nil, testEmbedConfig(), testSearchConfig())
	resp, err := svc.Search(context.Background(), &models.SearchQuery{Query: "alpha topic", VideoID: "vid-b"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(resp.Results) == 0 {
		t.Fatal("expected results")
	}
	for _, r := range resp.Results {
		if r.VideoID != "vid-b" {
			t.Errorf("result from video %s, want vid-b", r.VideoID)
		}
	}
}

func TestSearchMinScore(t *testing.T) {
	emb := embedding.NewMockEmbedder(testDims)
	idx, _ := vector.NewIndex(testDims)
	populateIndex(t, idx, emb, "vid-1", []string{
		"exact query text",
		"something entirely different",
	})

	svc := NewService(emb, idx, nil, testEmbedConfig(), testSearchConfig())
	resp, err := svc.Search(context.Background(), &models.SearchQuery{
		Query:    "exact query text",
		MinScore: 0.99,
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(resp.Results) != 1 {
		t.Fatalf("got %d results above threshold, want 1", len(resp.Results))
	}
	if resp.Results[0].Text != "exact query text" {
		t.Errorf("surviving result = %q", resp.Results[0].Text)
	}
}

func TestSearchTopKCap(t *testing.T) {
	emb := embedding.NewMockEmbedder(testDims)
	idx, _ := vector.NewIndex(testDims)
	texts := make([]string, 8)
	for i := range texts {
		texts[i] = "chunk number " + string(rune('a'+i))
	}
	populateIndex(t, idx, emb, "vid-1", texts)

	svc := NewService(emb, idx, nil, testEmbedConfig(), testSearchConfig())
	resp, err := svc.Search(context.Background(), &models.SearchQuery{Query: "chunk", TopK: 3})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(resp.Results) != 3 {
		t.Errorf("got %d results, want 3", len(resp.Results))
	}
}

func TestSearchHybridBoostsKeywordMatch(t *testing.T) {
	emb := embedding.NewMockEmbedder(testDims)
	idx, _ := vector.NewIndex(testDims)
	kw, err := keyword.NewMemOnlyIndex()
	if err != nil {
		t.Fatalf("NewMemOnlyIndex: %v", err)
	}
	defer kw.Close()

	ctx := context.Background()
	texts := []string{"discussing kubernetes deployments", "a walk in the park"}
	ids := populateIndex(t, idx, emb, "vid-1", texts)
	for i, text := range texts {
		if err := kw.Index(ctx, ids[i], "vid-1", text); err != nil {
			t.Fatalf("keyword Index: %v", err)
		}
	}

	svc := NewService(emb, idx, kw, testEmbedConfig(), testSearchConfig())
	resp, err := svc.Search(ctx, &models.SearchQuery{Query: "kubernetes", KeywordEnabled: true})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(resp.Results) == 0 {
		t.Fatal("expected results")
	}
	top := resp.Results[0]
	if top.Text != "discussing kubernetes deployments" {
		t.Errorf("top hybrid result = %q", top.Text)
	}
	if top.KeywordScore <= 0 {
		t.Errorf("expected positive keyword score, got %v", top.KeywordScore)
	}
}
