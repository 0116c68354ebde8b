// Package vector provides vector index and similarity search.
package vector

import "context"

// Index is a bounded-capacity vector index keyed by int64 ids. Implementations must be
// usable only after Init and must never hold more than Capacity points.
type Index interface {
	// Init discards any contents and prepares an empty index.
	Init(capacity, dimension int) error
	// Add inserts a point; it fails when the vector length differs from the dimension or the
	// index is full.
	Add(ctx context.Context, vector []float32, id int64) error
	Count() int
	Capacity() int
	Dimension() int
	// Resize grows the capacity, keeping every point.
	Resize(capacity int) error
	// SearchKNN returns up to k nearest neighbors by increasing cosine distance.
	SearchKNN(ctx context.Context, query []float32, k int) ([]Neighbor, error)
	Type() string
	Close() error
}

// Neighbor is a single k-NN hit.
type Neighbor struct {
	ID       int64
	Distance float64 // cosine distance, 1 - cosine similarity
}
