package embedding

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/hyperjump/kioku/pkg/utils"
)

// CachedEmbedder memoizes text embeddings in an LRU keyed by the exact text. Image embeddings
// pass through.
type CachedEmbedder struct {
	next  Embedder
	cache *lru.Cache[string, []float32]
}

// NewCachedEmbedder wraps next with a text cache holding up to size entries.
func NewCachedEmbedder(next Embedder, size int) (*CachedEmbedder, error) {
	if size <= 0 {
		size = 10000
	}
	cache, err := lru.New[string, []float32](size)
	if err != nil {
		return nil, err
	}
	return &CachedEmbedder{next: next, cache: cache}, nil
}

// EmbedText returns the cached embedding for text or computes and caches it.
func (c *CachedEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	if v, ok := c.cache.Get(text); ok {
		return utils.CloneFloat32(v), nil
	}
	v, err := c.next.EmbedText(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Add(text, utils.CloneFloat32(v))
	return v, nil
}

// EmbedImage delegates to the wrapped embedder.
func (c *CachedEmbedder) EmbedImage(ctx context.Context, image string) ([]float32, error) {
	return c.next.EmbedImage(ctx, image)
}

// Len returns the number of cached text embeddings.
func (c *CachedEmbedder) Len() int {
	return c.cache.Len()
}

// Close purges the cache and closes the wrapped embedder.
func (c *CachedEmbedder) Close() error {
	c.cache.Purge()
	return c.next.Close()
}
