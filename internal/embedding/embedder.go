// Package embedding turns feed item text into unit-norm vectors and caches the results.
package embedding

import "context"

// Embedder produces vector embeddings for text. Every vector returned by one Embedder
// has the same dimension and unit L2 norm.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}
