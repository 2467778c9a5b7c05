package embedding

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/sync/errgroup"

	"github.com/clipseek/clipseek/pkg/utils"
)

// batchConcurrency bounds in-flight API calls during EmbedBatch.
const batchConcurrency = 8

// OpenAIEmbedder calls an OpenAI-compatible embeddings endpoint. The base URL
// is configurable, so any compatible provider works. Results are L2-normalized
// and cached by text.
type OpenAIEmbedder struct {
	client     *openai.Client
	model      string
	dimensions int
	cache      *EmbeddingCache
}

// NewOpenAIEmbedder creates an embedder against baseURL with the given model.
// dimensions must match what the model produces; a response of a different
// dimension is rejected as a configuration error.
func NewOpenAIEmbedder(apiKey, baseURL, model string, dimensions, cacheSize int) (*OpenAIEmbedder, error) {
	if apiKey == "" {
		return nil, errors.New("embedding API key is empty")
	}
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive, got %d", dimensions)
	}
	clientCfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		clientCfg.BaseURL = baseURL
	}
	var cache *EmbeddingCache
	if cacheSize > 0 {
		cache = NewEmbeddingCache(cacheSize)
	}
	return &OpenAIEmbedder{
		client:     openai.NewClientWithConfig(clientCfg),
		model:      model,
		dimensions: dimensions,
		cache:      cache,
	}, nil
}

// Embed returns the embedding for text, from cache when available.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if e.cache != nil {
		if emb, ok := e.cache.Get(text); ok {
			return emb, nil
		}
	}

	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(e.model),
		Input: []string{text},
	})
	if err != nil {
		return nil, fmt.Errorf("embeddings request failed: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("embeddings response contained no data")
	}

	raw := resp.Data[0].Embedding
	if len(raw) != e.dimensions {
		return nil, fmt.Errorf("model returned %d dimensions, configured %d", len(raw), e.dimensions)
	}
	emb := make([]float32, len(raw))
	for i, v := range raw {
		emb[i] = float32(v)
	}
	utils.NormalizeL2(emb)

	if e.cache != nil {
		e.cache.Set(text, emb)
	}
	return emb, nil
}

// EmbedBatch embeds texts with bounded concurrency, preserving order.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(batchConcurrency)
	for i, text := range texts {
		i, text := i, text
		g.Go(func() error {
			emb, err := e.Embed(ctx, text)
			if err != nil {
				return fmt.Errorf("embedding text %d: %w", i, err)
			}
			embeddings[i] = emb
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return embeddings, nil
}

// Dimensions returns the embedding dimension.
func (e *OpenAIEmbedder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op for OpenAIEmbedder.
func (e *OpenAIEmbedder) Close() error {
	return nil
}
