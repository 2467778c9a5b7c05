// Package embedding provides text embedding via an OpenAI-compatible API or a
// local ONNX model, with caching.
package embedding

import (
	"context"
	"fmt"
	"os"

	"github.com/clipseek/clipseek/internal/config"
)

// Embedder produces fixed-dimension vector embeddings for text. Calls may
// suspend on network I/O and fail transiently; callers own timeout and retry
// policy via ctx.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}

// NewFromConfig creates the embedder selected by cfg.Provider.
func NewFromConfig(cfg *config.EmbeddingConfig) (Embedder, error) {
	switch cfg.Provider {
	case "openai", "":
		apiKey := os.Getenv(cfg.APIKeyEnv)
		if apiKey == "" {
			return nil, fmt.Errorf("embedding API key not set (env %s)", cfg.APIKeyEnv)
		}
		return NewOpenAIEmbedder(apiKey, cfg.BaseURL, cfg.Model, cfg.Dimensions, cfg.CacheSize)
	case "onnx":
		return NewONNXEmbedder(cfg.ModelPath, cfg.Dimensions, cfg.MaxTokens, cfg.CacheSize)
	case "mock":
		return NewMockEmbedder(cfg.Dimensions), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s (supported: openai, onnx, mock)", cfg.Provider)
	}
}
