package cache

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/kioku/internal/registry"
	"github.com/hyperjump/kioku/internal/storage"
	"github.com/hyperjump/kioku/internal/vector"
	kerr "github.com/hyperjump/kioku/pkg/errors"
)

func newRegistry(t *testing.T, dim, initialCapacity int) *registry.Registry {
	t.Helper()
	reg, err := registry.New("embeddings", []registry.Modality{
		{Name: "text", Kind: registry.KindText, Dimension: dim, InitialCapacity: initialCapacity, Index: vector.NewMemoryIndex()},
		{Name: "multimodal", Kind: registry.KindMultimodal, Dimension: dim * 2, TextDimension: dim, InitialCapacity: initialCapacity, Index: vector.NewMemoryIndex()},
	})
	require.NoError(t, err)
	return reg
}

func newRedis(t *testing.T) (*storage.RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	store, err := storage.NewRedisStore(context.Background(), storage.RedisConfig{URL: "redis://" + mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store, mr
}

func TestStoreSearch_RoundTrip(t *testing.T) {
	store, _ := newRedis(t)
	fixed := time.Unix(1_700_000_000, 0)
	c := New(newRegistry(t, 3, 10), store, WithClock(func() time.Time { return fixed }))
	ctx := context.Background()

	id, err := c.Store(ctx, "text", Entry{Query: "what is go", Embedding: []float32{1, 0, 0}, Response: "a language"})
	require.NoError(t, err)
	assert.Equal(t, int64(0), id)

	got, err := c.Search(ctx, "text", []float32{1, 0, 0}, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(0), got[0].ID)
	assert.Equal(t, "what is go", got[0].Query)
	assert.Equal(t, "a language", got[0].Response)
	assert.Equal(t, []float32{1, 0, 0}, got[0].Embedding)
	assert.Equal(t, fixed.Unix(), got[0].Timestamp)
}

func TestStore_DimensionGuard(t *testing.T) {
	store, mr := newRedis(t)
	c := New(newRegistry(t, 3, 10), store)
	ctx := context.Background()

	_, err := c.Store(ctx, "text", Entry{Query: "q", Embedding: []float32{1, 0}})
	require.Error(t, err)
	assert.True(t, kerr.IsSizeMismatch(err))
	assert.False(t, mr.Exists("embeddings:text"))

	_, err = c.Search(ctx, "text", []float32{1, 0, 0, 0}, 1)
	assert.True(t, kerr.IsSizeMismatch(err))

	id, err := c.Store(ctx, "text", Entry{Query: "q", Embedding: []float32{1, 0, 0}})
	require.NoError(t, err)
	assert.Equal(t, int64(0), id, "rejected store must not consume an id")
}

func TestStore_IDsAreMonotonic(t *testing.T) {
	store, _ := newRedis(t)
	c := New(newRegistry(t, 2, 10), store)
	ctx := context.Background()

	var prev int64 = -1
	for i := 0; i < 5; i++ {
		id, err := c.Store(ctx, "text", Entry{Embedding: []float32{float32(i + 1), 1}})
		require.NoError(t, err)
		assert.Greater(t, id, prev)
		prev = id
	}
	// Modalities issue ids independently.
	id, err := c.Store(ctx, "multimodal", Entry{Embedding: []float32{1, 0, 0, 1}})
	require.NoError(t, err)
	assert.Equal(t, int64(0), id)
}

func TestStore_ResizePreservesData(t *testing.T) {
	store, _ := newRedis(t)
	reg := newRegistry(t, 4, 1000)
	c := New(reg, store)
	ctx := context.Background()

	rng := rand.New(rand.NewSource(42))
	vecs := make([][]float32, 1001)
	for i := range vecs {
		v := []float32{rng.Float32() + 0.01, rng.Float32() - 0.5, rng.Float32() - 0.5, rng.Float32() - 0.5}
		vecs[i] = v
		id, err := c.Store(ctx, "text", Entry{Query: fmt.Sprintf("q%d", i), Embedding: v})
		require.NoError(t, err)
		require.Equal(t, int64(i), id)
	}

	mod, err := reg.Lookup("text")
	require.NoError(t, err)
	assert.Equal(t, 1001, mod.Index.Count())
	assert.Equal(t, 2000, mod.Index.Capacity())

	for i, v := range vecs {
		got, err := c.Search(ctx, "text", v, 1)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, fmt.Sprintf("q%d", i), got[0].Query)
	}
}

func TestStore_ResizePreservesDataHNSW(t *testing.T) {
	store, _ := newRedis(t)
	const dim = 16
	reg, err := registry.New("embeddings", []registry.Modality{
		{Name: "text", Kind: registry.KindText, Dimension: dim, InitialCapacity: 1000,
			Index: vector.NewHNSWIndex(vector.DefaultHNSWOptions())},
	})
	require.NoError(t, err)
	c := New(reg, store)
	ctx := context.Background()

	rng := rand.New(rand.NewSource(9))
	vecs := make([][]float32, 1001)
	for i := range vecs {
		v := make([]float32, dim)
		for j := range v {
			v[j] = rng.Float32()*2 - 1
		}
		vecs[i] = v
		_, err := c.Store(ctx, "text", Entry{Query: fmt.Sprintf("q%d", i), Embedding: v})
		require.NoError(t, err)
	}

	missed := 0
	for i, v := range vecs {
		got, err := c.Search(ctx, "text", v, 1)
		require.NoError(t, err)
		if len(got) != 1 || got[0].Query != fmt.Sprintf("q%d", i) {
			missed++
		}
	}
	assert.Zero(t, missed, "stored records not found by exact-match search")
}

func TestStore_RejectsZeroVector(t *testing.T) {
	store, mr := newRedis(t)
	c := New(newRegistry(t, 3, 10), store)
	ctx := context.Background()

	_, err := c.Store(ctx, "text", Entry{Query: "q", Embedding: []float32{0, 0, 0}})
	require.Error(t, err)
	assert.True(t, kerr.HasCode(err, kerr.CodeCacheEmbeddingInvalid))
	assert.True(t, kerr.IsInvalidInput(err))
	assert.False(t, mr.Exists("embeddings:text"))

	id, err := c.Store(ctx, "text", Entry{Query: "q", Embedding: []float32{0, 1, 0}})
	require.NoError(t, err)
	assert.Equal(t, int64(0), id, "rejected store must not consume an id")
}

func TestSearch_HydrationEquivalence(t *testing.T) {
	store, _ := newRedis(t)
	ctx := context.Background()

	first := New(newRegistry(t, 2, 10), store)
	for i, v := range [][]float32{{1, 0}, {0, 1}, {0.9, 0.1}} {
		_, err := first.Store(ctx, "text", Entry{Query: fmt.Sprintf("q%d", i), Embedding: v})
		require.NoError(t, err)
	}

	// A fresh process over the same store.
	second := New(newRegistry(t, 2, 10), store)
	got, err := second.Search(ctx, "text", []float32{1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "q0", got[0].Query)

	all, err := second.Search(ctx, "text", []float32{1, 0}, 10)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"q0", "q2", "q1"}, []string{all[0].Query, all[1].Query, all[2].Query})

	id, err := second.Store(ctx, "text", Entry{Embedding: []float32{0.5, 0.5}})
	require.NoError(t, err)
	assert.Equal(t, int64(3), id, "hydrated cache must continue after the highest persisted id")
}

func TestStore_HydratesBeforeIssuingIDs(t *testing.T) {
	store, _ := newRedis(t)
	ctx := context.Background()
	first := New(newRegistry(t, 2, 10), store)
	_, err := first.Store(ctx, "text", Entry{Query: "old", Embedding: []float32{1, 0}})
	require.NoError(t, err)

	second := New(newRegistry(t, 2, 10), store)
	id, err := second.Store(ctx, "text", Entry{Query: "new", Embedding: []float32{0, 1}})
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)

	got, err := second.Search(ctx, "text", []float32{1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "old", got[0].Query)
}

func TestSearch_EmptyIndex(t *testing.T) {
	store, _ := newRedis(t)
	c := New(newRegistry(t, 2, 10), store)

	got, err := c.Search(context.Background(), "text", []float32{1, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NotNil(t, got)
}

func TestSearch_KLargerThanCount(t *testing.T) {
	store, _ := newRedis(t)
	c := New(newRegistry(t, 2, 10), store)
	ctx := context.Background()
	_, err := c.Store(ctx, "text", Entry{Embedding: []float32{1, 0}})
	require.NoError(t, err)

	got, err := c.Search(ctx, "text", []float32{1, 0}, 50)
	require.NoError(t, err)
	assert.Len(t, got, 1)

	got, err = c.Search(ctx, "text", []float32{1, 0}, 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestUnknownModality(t *testing.T) {
	store, _ := newRedis(t)
	c := New(newRegistry(t, 2, 10), store)
	ctx := context.Background()

	_, err := c.Store(ctx, "audio", Entry{Embedding: []float32{1, 0}})
	assert.True(t, kerr.IsConfiguration(err))
	_, err = c.Search(ctx, "audio", []float32{1, 0}, 1)
	assert.True(t, kerr.IsConfiguration(err))
	assert.True(t, kerr.IsConfiguration(c.Flush(ctx, "audio")))
}

func TestTTLExpiryAndReconcile(t *testing.T) {
	store, mr := newRedis(t)
	c := New(newRegistry(t, 2, 10), store, WithTTL(time.Hour))
	ctx := context.Background()

	for _, v := range [][]float32{{1, 0}, {0, 1}, {1, 1}} {
		_, err := c.Store(ctx, "text", Entry{Embedding: v})
		require.NoError(t, err)
	}
	assert.Equal(t, time.Hour, mr.TTL("embeddings:text"))

	mr.FastForward(2 * time.Hour)

	// Index still holds the ids; their records are gone and are silently dropped.
	got, err := c.Search(ctx, "text", []float32{1, 0}, 3)
	require.NoError(t, err)
	assert.Empty(t, got)

	removed, err := c.Reconcile(ctx, "text")
	require.NoError(t, err)
	assert.Equal(t, 3, removed)

	id, err := c.Store(ctx, "text", Entry{Embedding: []float32{1, 0}})
	require.NoError(t, err)
	assert.Equal(t, int64(3), id, "reconcile must not move nextID backwards")
}

func TestFlush(t *testing.T) {
	store, mr := newRedis(t)
	c := New(newRegistry(t, 2, 10), store)
	ctx := context.Background()

	_, err := c.Store(ctx, "text", Entry{Embedding: []float32{1, 0}})
	require.NoError(t, err)
	_, err = c.Store(ctx, "multimodal", Entry{Embedding: []float32{1, 0, 0, 1}})
	require.NoError(t, err)

	require.NoError(t, c.Flush(ctx, "text"))
	assert.False(t, mr.Exists("embeddings:text"))
	assert.True(t, mr.Exists("embeddings:multimodal"))

	got, err := c.Search(ctx, "text", []float32{1, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, got)

	id, err := c.Store(ctx, "text", Entry{Embedding: []float32{1, 0}})
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)
}

func TestWarmAndStats(t *testing.T) {
	store, _ := newRedis(t)
	ctx := context.Background()
	seed := New(newRegistry(t, 2, 10), store)
	_, err := seed.Store(ctx, "text", Entry{Embedding: []float32{1, 0}})
	require.NoError(t, err)

	c := New(newRegistry(t, 2, 10), store)
	stats := c.Stats()
	require.Len(t, stats, 2)
	assert.False(t, stats[1].Initialized)

	require.NoError(t, c.Warm(ctx))
	stats = c.Stats()
	assert.Equal(t, "multimodal", stats[0].Name)
	assert.Equal(t, 10, stats[0].Capacity)
	assert.Equal(t, "text", stats[1].Name)
	assert.True(t, stats[1].Initialized)
	assert.Equal(t, 1, stats[1].Count)
	assert.Equal(t, 1, stats[1].Capacity)
	assert.Equal(t, int64(1), stats[1].NextID)
	assert.Equal(t, "embeddings:text", stats[1].Namespace)
	assert.Equal(t, "memory", stats[1].IndexType)
	require.NoError(t, c.Close())
}

func TestMetricsRecorded(t *testing.T) {
	store, _ := newRedis(t)
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	c := New(newRegistry(t, 2, 1), store, WithMetrics(m))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := c.Store(ctx, "text", Entry{Embedding: []float32{1, float32(i)}})
		require.NoError(t, err)
	}
	_, err := c.Search(ctx, "text", []float32{1, 0}, 1)
	require.NoError(t, err)

	assert.Equal(t, 3.0, testutil.ToFloat64(m.stores.WithLabelValues("text")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.searches.WithLabelValues("text")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.resizes.WithLabelValues("text")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.indexSize.WithLabelValues("text")))
}

func TestConcurrentStoreAndSearch(t *testing.T) {
	store, _ := newRedis(t)
	reg := newRegistry(t, 3, 5)
	c := New(reg, store)
	ctx := context.Background()

	const writers, perWriter = 4, 25
	var wg sync.WaitGroup
	ids := make(chan int64, writers*perWriter)
	for w := 0; w < writers; w++ {
		wg.Add(2)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				id, err := c.Store(ctx, "text", Entry{Embedding: []float32{float32(w + 1), float32(i), 1}})
				assert.NoError(t, err)
				ids <- id
			}
		}(w)
		go func() {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				_, err := c.Search(ctx, "text", []float32{1, 1, 1}, 5)
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[int64]bool)
	for id := range ids {
		assert.False(t, seen[id], "id %d issued twice", id)
		seen[id] = true
	}
	assert.Len(t, seen, writers*perWriter)
	mod, _ := reg.Lookup("text")
	assert.Equal(t, writers*perWriter, mod.Index.Count())
}

var errBoom = errors.New("boom")

type failingStore struct {
	storage.RecordStore
	failSet bool
	failGet bool
}

func (f *failingStore) HashGetAll(ctx context.Context, ns string) (map[string]string, error) {
	if f.failGet {
		return nil, errBoom
	}
	return map[string]string{}, nil
}

func (f *failingStore) HashSet(ctx context.Context, ns, field, value string) error {
	if f.failSet {
		return errBoom
	}
	return nil
}

func TestCollaboratorErrorsPropagate(t *testing.T) {
	ctx := context.Background()

	c := New(newRegistry(t, 2, 10), &failingStore{failGet: true})
	_, err := c.Search(ctx, "text", []float32{1, 0}, 1)
	assert.ErrorIs(t, err, errBoom)
	_, err = c.Store(ctx, "text", Entry{Embedding: []float32{1, 0}})
	assert.ErrorIs(t, err, errBoom)

	c = New(newRegistry(t, 2, 10), &failingStore{failSet: true})
	_, err = c.Store(ctx, "text", Entry{Embedding: []float32{1, 0}})
	assert.ErrorIs(t, err, errBoom)
	stats := c.Stats()
	assert.Equal(t, int64(1), stats[1].NextID, "failed persistence still consumes the id")
	assert.Equal(t, 0, stats[1].Count)
}

func TestHydration_CorruptRecord(t *testing.T) {
	store, mr := newRedis(t)
	mr.HSet("embeddings:text", "0", "{not json")
	c := New(newRegistry(t, 2, 10), store)

	_, err := c.Search(context.Background(), "text", []float32{1, 0}, 1)
	require.Error(t, err)
	assert.Equal(t, kerr.CodeStoreRecordDecodeFailure, kerr.CodeOf(err))
}

func TestRunReconcilerStopsOnCancel(t *testing.T) {
	store, _ := newRedis(t)
	c := New(newRegistry(t, 2, 10), store)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.RunReconciler(ctx, 10*time.Millisecond)
		close(done)
	}()
	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reconciler did not stop")
	}
	assert.True(t, c.Stats()[1].Initialized)
}
