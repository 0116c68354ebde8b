package vector

import (
	kerr "github.com/hyperjump/kioku/pkg/errors"
)

// IndexType represents the type of vector index to use.
type IndexType string

const (
	// IndexTypeMemory uses exact brute-force search. Good for tests and small modalities.
	IndexTypeMemory IndexType = "memory"
	// IndexTypeHNSW uses an approximate HNSW graph. Good for large modalities.
	IndexTypeHNSW IndexType = "hnsw"
)

// NewIndex creates an uninitialized vector index of the specified type.
// Supported types: "memory" (default), "hnsw".
func NewIndex(indexType string, opts HNSWOptions) (Index, error) {
	switch IndexType(indexType) {
	case IndexTypeMemory, "":
		return NewMemoryIndex(), nil
	case IndexTypeHNSW:
		return NewHNSWIndex(opts), nil
	default:
		return nil, kerr.New(kerr.CodeIndexTypeUnsupported, "unknown index type (supported: memory, hnsw)",
			kerr.Field("type", indexType))
	}
}
