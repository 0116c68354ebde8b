// Package embedding turns query text and images into vectors, with an LRU in front of the
// text path.
package embedding

import "context"

// Embedder produces vector embeddings for query text and image references.
type Embedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
	EmbedImage(ctx context.Context, image string) ([]float32, error)
	Close() error
}
