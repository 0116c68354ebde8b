package vector

import (
	"context"
	"sort"
	"sync"

	kerr "github.com/hyperjump/kioku/pkg/errors"
)

// MemoryIndex is an exact vector index using a brute-force cosine scan.
// Suitable for tests and small modalities.
type MemoryIndex struct {
	dimension int
	capacity  int
	ids       []int64
	vectors   [][]float32
	mu        sync.RWMutex
}

// NewMemoryIndex creates an uninitialized brute-force index.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{}
}

// Type returns the index type identifier.
func (m *MemoryIndex) Type() string {
	return string(IndexTypeMemory)
}

// Init discards all points and sets capacity and dimension.
func (m *MemoryIndex) Init(capacity, dimension int) error {
	if err := validateInit(capacity, dimension); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dimension = dimension
	m.capacity = capacity
	m.ids = make([]int64, 0, capacity)
	m.vectors = make([][]float32, 0, capacity)
	return nil
}

// Add appends a copy of vector under id.
func (m *MemoryIndex) Add(ctx context.Context, vector []float32, id int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := checkAdd(len(vector), m.dimension, len(m.ids), m.capacity); err != nil {
		return err
	}
	vec := make([]float32, len(vector))
	copy(vec, vector)
	m.ids = append(m.ids, id)
	m.vectors = append(m.vectors, vec)
	return nil
}

// Resize grows capacity by copying every point into freshly allocated storage.
func (m *MemoryIndex) Resize(capacity int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := checkResize(capacity, len(m.ids)); err != nil {
		return err
	}
	ids := make([]int64, len(m.ids), capacity)
	copy(ids, m.ids)
	vectors := make([][]float32, len(m.vectors), capacity)
	copy(vectors, m.vectors)
	m.ids, m.vectors, m.capacity = ids, vectors, capacity
	return nil
}

// SearchKNN scans every point and returns the k closest by cosine distance.
// Equal distances keep insertion order.
func (m *MemoryIndex) SearchKNN(ctx context.Context, query []float32, k int) ([]Neighbor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(query) != m.dimension {
		return nil, dimensionMismatch(len(query), m.dimension)
	}
	if k <= 0 || len(m.ids) == 0 {
		return []Neighbor{}, nil
	}
	scored := make([]Neighbor, len(m.ids))
	for i, vec := range m.vectors {
		scored[i] = Neighbor{ID: m.ids[i], Distance: CosineDistance(query, vec)}
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Distance < scored[j].Distance })
	if k > len(scored) {
		k = len(scored)
	}
	return scored[:k], nil
}

// Count returns the number of points in the index.
func (m *MemoryIndex) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.ids)
}

// Capacity returns the maximum number of points before a resize is required.
func (m *MemoryIndex) Capacity() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.capacity
}

// Dimension returns the configured vector length.
func (m *MemoryIndex) Dimension() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.dimension
}

// Close is a no-op for MemoryIndex.
func (m *MemoryIndex) Close() error {
	return nil
}

func validateInit(capacity, dimension int) error {
	if dimension <= 0 {
		return kerr.New(kerr.CodeIndexResizeInvalid, "dimension must be positive", kerr.Field("dimension", dimension))
	}
	if capacity < 0 {
		return kerr.New(kerr.CodeIndexResizeInvalid, "capacity must not be negative", kerr.Field("capacity", capacity))
	}
	return nil
}

func checkAdd(got, dimension, count, capacity int) error {
	if dimension == 0 {
		return kerr.New(kerr.CodeIndexResizeInvalid, "index is not initialized")
	}
	if got != dimension {
		return dimensionMismatch(got, dimension)
	}
	if count >= capacity {
		return kerr.New(kerr.CodeIndexCapacityExceeded, "index is full",
			kerr.Field("count", count), kerr.Field("capacity", capacity))
	}
	return nil
}

func checkResize(capacity, count int) error {
	if capacity < count {
		return kerr.Errorf(kerr.CodeIndexResizeInvalid, "resize to %d would drop points (count %d)", capacity, count)
	}
	return nil
}

func dimensionMismatch(got, want int) error {
	return kerr.New(kerr.CodeIndexPointDimensionMismatch, "vector dimension mismatch",
		kerr.Field("got", got), kerr.Field("expected", want))
}
