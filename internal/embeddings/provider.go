// Package embeddings provides embedding generation via multiple providers.
package embeddings

import (
	"context"
	"fmt"
)

// Provider is the interface for embedding providers.
type Provider interface {
	// EmbedDocuments generates embeddings for multiple texts.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	// EmbedQuery generates an embedding for a single query.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	// Dimension returns the embedding dimension for the current model.
	Dimension() int
	// Model returns the model identifier, recorded alongside stored vectors.
	Model() string
	// Close releases resources held by the provider.
	Close() error
}

// ProviderConfig holds configuration for creating an embedding provider.
type ProviderConfig struct {
	// Provider is the provider type: "mock", "tei", or "fastembed"
	Provider string `koanf:"provider"`
	// Model is the embedding model name
	Model string `koanf:"model"`
	// BaseURL is the TEI URL (only used for TEI provider)
	BaseURL string `koanf:"base_url"`
	// CacheDir is the model cache directory (only used for FastEmbed)
	CacheDir string `koanf:"cache_dir"`
	// Dimension overrides the detected dimension (only used for mock)
	Dimension int `koanf:"dimension"`
}

// detectDimensionFromModel returns the embedding dimension for a model name.
// Falls back to 384 if model is unknown.
func detectDimensionFromModel(model string) int {
	if dim, ok := fastEmbedModelDimension(model); ok {
		return dim
	}
	switch {
	case contains(model, "base"):
		return 768
	case contains(model, "large"):
		return 1024
	case contains(model, "small"), contains(model, "mini"):
		return 384
	default:
		return 384
	}
}

func contains(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}

// NewProvider creates an embedding provider based on the configuration.
func NewProvider(cfg ProviderConfig) (Provider, error) {
	switch cfg.Provider {
	case "mock", "":
		return NewMockProvider(MockConfig{Model: cfg.Model, Dimension: cfg.Dimension}), nil
	case "fastembed":
		return NewFastEmbedProvider(FastEmbedConfig{
			Model:    cfg.Model,
			CacheDir: cfg.CacheDir,
		})
	case "tei":
		svc, err := NewService(Config{
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
		})
		if err != nil {
			return nil, err
		}
		dim := detectDimensionFromModel(cfg.Model)
		return &teiProvider{Service: svc, dimension: dim}, nil
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, cfg.Provider)
	}
}

// teiProvider wraps Service to implement Provider interface.
type teiProvider struct {
	*Service
	dimension int
}

// Dimension returns the embedding dimension based on the configured model.
func (t *teiProvider) Dimension() int {
	return t.dimension
}

// Model returns the configured model name.
func (t *teiProvider) Model() string {
	return t.Service.config.Model
}

// Close is a no-op for TEI since it uses HTTP.
func (t *teiProvider) Close() error {
	return nil
}
