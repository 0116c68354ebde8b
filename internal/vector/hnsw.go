package vector

import (
	"context"
	"encoding/binary"
	"math"
	"sort"
	"sync"

	"github.com/coder/hnsw"

	kerr "github.com/hyperjump/kioku/pkg/errors"
)

// HNSWOptions tunes the approximate graph index.
type HNSWOptions struct {
	M        int // max neighbors per node
	EfSearch int // candidate list size during search
}

// DefaultHNSWOptions matches the cosine-space graph parameters used in production.
func DefaultHNSWOptions() HNSWOptions {
	return HNSWOptions{M: 16, EfSearch: 100}
}

// HNSWIndex is an approximate nearest-neighbor index backed by an HNSW graph.
// The inserted points are retained so Resize can rebuild the graph without loss, and so a
// query equal to a stored point always finds it even when the graph does not.
type HNSWIndex struct {
	opts      HNSWOptions
	graph     *hnsw.Graph[int64]
	ids       []int64
	vectors   [][]float32
	exact     map[string]int // vectorKey -> position in ids/vectors
	dimension int
	capacity  int
	mu        sync.RWMutex
}

// NewHNSWIndex creates an uninitialized HNSW index.
func NewHNSWIndex(opts HNSWOptions) *HNSWIndex {
	def := DefaultHNSWOptions()
	if opts.M <= 0 {
		opts.M = def.M
	}
	if opts.EfSearch <= 0 {
		opts.EfSearch = def.EfSearch
	}
	return &HNSWIndex{opts: opts}
}

// Type returns the index type identifier.
func (h *HNSWIndex) Type() string {
	return string(IndexTypeHNSW)
}

func (h *HNSWIndex) newGraph() *hnsw.Graph[int64] {
	g := hnsw.NewGraph[int64]()
	g.Distance = hnsw.CosineDistance
	g.M = h.opts.M
	g.EfSearch = h.opts.EfSearch
	return g
}

// Init discards the graph and starts an empty one.
func (h *HNSWIndex) Init(capacity, dimension int) error {
	if err := validateInit(capacity, dimension); err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.graph = h.newGraph()
	h.dimension = dimension
	h.capacity = capacity
	h.ids = make([]int64, 0, capacity)
	h.vectors = make([][]float32, 0, capacity)
	h.exact = make(map[string]int, capacity)
	return nil
}

// Add inserts vector under id. Zero-norm vectors have no cosine direction and are rejected.
func (h *HNSWIndex) Add(ctx context.Context, vector []float32, id int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := checkAdd(len(vector), h.dimension, len(h.ids), h.capacity); err != nil {
		return err
	}
	if L2Norm(vector) == 0 {
		return kerr.New(kerr.CodeIndexPointInvalid, "vector must have a non-zero norm", kerr.Field("id", id))
	}
	vec := make([]float32, len(vector))
	copy(vec, vector)
	h.graph.Add(hnsw.MakeNode(id, vec))
	key := vectorKey(vec)
	if _, dup := h.exact[key]; !dup {
		h.exact[key] = len(h.ids)
	}
	h.ids = append(h.ids, id)
	h.vectors = append(h.vectors, vec)
	return nil
}

// Resize builds a new graph at the larger capacity, re-inserts every point and swaps it in.
func (h *HNSWIndex) Resize(capacity int) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := checkResize(capacity, len(h.ids)); err != nil {
		return err
	}
	g := h.newGraph()
	for i, id := range h.ids {
		g.Add(hnsw.MakeNode(id, h.vectors[i]))
	}
	ids := make([]int64, len(h.ids), capacity)
	copy(ids, h.ids)
	vectors := make([][]float32, len(h.vectors), capacity)
	copy(vectors, h.vectors)
	h.graph, h.ids, h.vectors, h.capacity = g, ids, vectors, capacity
	return nil
}

// SearchKNN returns up to k approximate nearest neighbors by increasing cosine distance.
// The graph is asked for at least EfSearch candidates, which are re-ranked by exact distance.
// A stored point equal to the query is always part of the result.
func (h *HNSWIndex) SearchKNN(ctx context.Context, query []float32, k int) ([]Neighbor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(query) != h.dimension {
		return nil, dimensionMismatch(len(query), h.dimension)
	}
	if k <= 0 || len(h.ids) == 0 {
		return []Neighbor{}, nil
	}
	if k > len(h.ids) {
		k = len(h.ids)
	}
	if L2Norm(query) == 0 {
		return h.scan(query, k), nil
	}

	fetch := min(max(k, h.opts.EfSearch), len(h.ids))
	nodes := h.graph.Search(query, fetch)
	seen := make(map[int64]struct{}, len(nodes)+1)
	result := make([]Neighbor, 0, len(nodes)+1)
	for _, n := range nodes {
		seen[n.Key] = struct{}{}
		result = append(result, Neighbor{ID: n.Key, Distance: CosineDistance(query, n.Value)})
	}
	if pos, ok := h.exact[vectorKey(query)]; ok {
		if _, found := seen[h.ids[pos]]; !found {
			result = append(result, Neighbor{ID: h.ids[pos], Distance: CosineDistance(query, h.vectors[pos])})
		}
	}
	if len(result) < k {
		return h.scan(query, k), nil
	}
	sort.SliceStable(result, func(i, j int) bool { return result[i].Distance < result[j].Distance })
	return result[:k], nil
}

// scan ranks every stored point by exact distance.
func (h *HNSWIndex) scan(query []float32, k int) []Neighbor {
	result := make([]Neighbor, len(h.ids))
	for i, id := range h.ids {
		result[i] = Neighbor{ID: id, Distance: CosineDistance(query, h.vectors[i])}
	}
	sort.SliceStable(result, func(i, j int) bool { return result[i].Distance < result[j].Distance })
	return result[:k]
}

// vectorKey is the bit pattern of v, with -0 folded into 0.
func vectorKey(v []float32) string {
	buf := make([]byte, 4*len(v))
	for i, x := range v {
		if x == 0 {
			x = 0
		}
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(x))
	}
	return string(buf)
}

// Count returns the number of points in the index.
func (h *HNSWIndex) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.ids)
}

// Capacity returns the maximum number of points before a resize is required.
func (h *HNSWIndex) Capacity() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.capacity
}

// Dimension returns the configured vector length.
func (h *HNSWIndex) Dimension() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.dimension
}

// Close releases the graph.
func (h *HNSWIndex) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.graph = nil
	h.ids = nil
	h.vectors = nil
	h.exact = nil
	h.capacity = 0
	return nil
}
