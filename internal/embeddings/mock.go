// Package embeddings provides embedding generation via multiple providers.
package embeddings

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math"
)

// MockConfig holds configuration for the mock provider.
type MockConfig struct {
	// Model is a label recorded with stored vectors. Defaults to "mock".
	Model string
	// Dimension is the embedding dimension. Defaults to 384.
	Dimension int
}

// MockProvider generates deterministic embeddings from a hash of the input
// text. The same text always produces the same unit-length vector, so tests
// and offline pipelines get stable nearest-neighbor behavior without a model.
type MockProvider struct {
	model     string
	dimension int
}

// NewMockProvider creates a deterministic hash-based embedding provider.
func NewMockProvider(cfg MockConfig) *MockProvider {
	model := cfg.Model
	if model == "" {
		model = "mock"
	}
	dimension := cfg.Dimension
	if dimension <= 0 {
		dimension = 384
	}
	return &MockProvider{model: model, dimension: dimension}
}

// EmbedDocuments generates embeddings for multiple texts.
func (p *MockProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: texts cannot be empty", ErrEmptyInput)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vectors[i] = p.embed(text)
	}
	return vectors, nil
}

// EmbedQuery generates an embedding for a single query.
func (p *MockProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: text cannot be empty", ErrEmptyInput)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	return p.embed(text), nil
}

// embed expands SHA-256(text || counter) into dimension float32 components
// and normalizes the result to unit length.
func (p *MockProvider) embed(text string) []float32 {
	vec := make([]float32, p.dimension)
	var counter uint32
	for i := 0; i < p.dimension; {
		h := sha256.New()
		h.Write([]byte(text))
		var ctr [4]byte
		binary.LittleEndian.PutUint32(ctr[:], counter)
		h.Write(ctr[:])
		digest := h.Sum(nil)
		counter++

		for off := 0; off+4 <= len(digest) && i < p.dimension; off += 4 {
			bits := binary.LittleEndian.Uint32(digest[off : off+4])
			// Map to [-1, 1).
			vec[i] = float32(int32(bits)) / float32(math.MaxInt32)
			i++
		}
	}

	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum > 0 {
		norm := float32(math.Sqrt(sum))
		for i := range vec {
			vec[i] /= norm
		}
	}
	return vec
}

// Dimension returns the embedding dimension.
func (p *MockProvider) Dimension() int {
	return p.dimension
}

// Model returns the configured model label.
func (p *MockProvider) Model() string {
	return p.model
}

// Close is a no-op for the mock provider.
func (p *MockProvider) Close() error {
	return nil
}

var _ Provider = (*MockProvider)(nil)
