package embedding

import (
	"fmt"

	"github.com/hyperjump/matome/internal/config"
)

// Provider names accepted in embedding.provider.
const (
	ProviderMock   = "mock"
	ProviderONNX   = "onnx"
	ProviderOpenAI = "openai"
)

// NewEmbedder builds the configured embedder wrapped in an EmbeddingCache.
func NewEmbedder(cfg *config.EmbeddingConfig) (Embedder, error) {
	var inner Embedder
	switch cfg.Provider {
	case ProviderMock, "":
		inner = NewMockEmbedder(cfg.Dimensions)
	case ProviderONNX:
		e, err := NewONNXEmbedder(cfg.ModelPath, cfg.Dimensions, cfg.MaxTokens)
		if err != nil {
			return nil, err
		}
		inner = e
	case ProviderOpenAI:
		e, err := NewOpenAIEmbedder(cfg.OpenAI.APIKeyEnv, cfg.OpenAI.Model, cfg.OpenAI.BaseURL, cfg.Dimensions)
		if err != nil {
			return nil, err
		}
		inner = e
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s (supported: mock, onnx, openai)", cfg.Provider)
	}
	if cfg.CacheSize <= 0 {
		return inner, nil
	}
	return NewCachedEmbedder(inner, cfg.CacheSize), nil
}
