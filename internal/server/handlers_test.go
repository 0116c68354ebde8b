package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hyperjump/kioku/internal/cache"
	"github.com/hyperjump/kioku/internal/config"
	"github.com/hyperjump/kioku/internal/embedding"
	"github.com/hyperjump/kioku/internal/models"
	"github.com/hyperjump/kioku/internal/provider"
	"github.com/hyperjump/kioku/internal/registry"
	"github.com/hyperjump/kioku/internal/search"
	"github.com/hyperjump/kioku/internal/storage"
	"github.com/hyperjump/kioku/internal/vector"
)

const dim = 4

func newTestServer(t *testing.T, store storage.RecordStore) (http.Handler, *provider.StaticGenerator) {
	t.Helper()
	reg, err := registry.New("embeddings", []registry.Modality{
		{Name: "text", Kind: registry.KindText, Dimension: dim, InitialCapacity: 4, Index: vector.NewMemoryIndex()},
	})
	require.NoError(t, err)
	promReg := prometheus.NewRegistry()
	c := cache.New(reg, store, cache.WithMetrics(cache.NewMetrics(promReg)))

	gen := &provider.StaticGenerator{}
	engine, err := search.NewEngine(c, embedding.NewMockEmbedder(dim, dim), gen, search.Config{
		TopK: 5, Threshold: 0.8, TextModality: "text",
	}, search.WithMetrics(search.NewMetrics(promReg)))
	require.NoError(t, err)

	srv := NewServer(engine, c, store, &config.ServerConfig{Port: 8080}, zap.NewNop(), promReg)
	return srv.Router(), gen
}

func newRedisServer(t *testing.T) (http.Handler, *provider.StaticGenerator) {
	t.Helper()
	mr := miniredis.RunT(t)
	store, err := storage.NewRedisStore(context.Background(), storage.RedisConfig{URL: "redis://" + mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return newTestServer(t, store)
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(raw)
	}
	r := httptest.NewRequest(method, path, rdr)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func TestHandleQuery_MissThenHit(t *testing.T) {
	h, gen := newRedisServer(t)

	w := do(t, h, http.MethodPost, "/api/v1/query", models.QueryInput{Text: "what is kioku?"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var first models.QueryOutput
	require.NoError(t, json.NewDecoder(w.Body).Decode(&first))
	assert.False(t, first.IsHit)
	assert.Equal(t, "Answer to: what is kioku?", first.Text)

	w = do(t, h, http.MethodPost, "/api/v1/query", models.QueryInput{Text: "what is kioku?"})
	require.Equal(t, http.StatusOK, w.Code)
	var second models.QueryOutput
	require.NoError(t, json.NewDecoder(w.Body).Decode(&second))
	assert.True(t, second.IsHit)
	assert.Equal(t, first.Text, second.Text)
	assert.Equal(t, int64(1), gen.Calls())
}

func TestHandleQuery_BadRequests(t *testing.T) {
	h, _ := newRedisServer(t)

	r := httptest.NewRequest(http.MethodPost, "/api/v1/query", strings.NewReader("{"))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, h, http.MethodPost, "/api/v1/query", models.QueryInput{Text: "   "})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// No multimodal modality is registered.
	w = do(t, h, http.MethodPost, "/api/v1/query", models.QueryInput{Text: "describe", Image: "cat.png"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleStoreAndSearch(t *testing.T) {
	h, _ := newRedisServer(t)

	w := do(t, h, http.MethodPost, "/api/v1/modalities/text/records", models.StoreRequest{
		Query: "q", Embedding: []float32{1, 0, 0, 0}, Response: "r",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var stored models.StoreResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&stored))
	assert.Equal(t, int64(0), stored.ID)

	w = do(t, h, http.MethodPost, "/api/v1/modalities/text/search", models.SearchRequest{Embedding: []float32{1, 0, 0, 0}, K: 3})
	require.Equal(t, http.StatusOK, w.Code)
	var res models.SearchResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&res))
	require.Equal(t, 1, res.Total)
	assert.Equal(t, "r", res.Records[0].Response)
}

func TestHandleStore_Errors(t *testing.T) {
	h, _ := newRedisServer(t)

	w := do(t, h, http.MethodPost, "/api/v1/modalities/text/records", models.StoreRequest{
		Query: "q", Embedding: []float32{1, 0}, Response: "r",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, h, http.MethodPost, "/api/v1/modalities/audio/records", models.StoreRequest{
		Query: "q", Embedding: []float32{1, 0, 0, 0}, Response: "r",
	})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, h, http.MethodPost, "/api/v1/modalities/text/records", models.StoreRequest{Query: "q"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, h, http.MethodPost, "/api/v1/modalities/text/records", models.StoreRequest{
		Query: "q", Embedding: []float32{0, 0, 0, 0}, Response: "r",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleSearch_EmptyIndex(t *testing.T) {
	h, _ := newRedisServer(t)
	w := do(t, h, http.MethodPost, "/api/v1/modalities/text/search", models.SearchRequest{Embedding: []float32{1, 0, 0, 0}})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"records":[]`)
}

func TestHandleFlushAndReconcile(t *testing.T) {
	h, _ := newRedisServer(t)
	do(t, h, http.MethodPost, "/api/v1/query", models.QueryInput{Text: "alpha"})

	w := do(t, h, http.MethodPost, "/api/v1/modalities/text/reconcile", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"removed":0`)

	w = do(t, h, http.MethodDelete, "/api/v1/modalities/text", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(t, h, http.MethodGet, "/api/v1/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var status models.StatusResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&status))
	require.Len(t, status.Modalities, 1)
	assert.Equal(t, 0, status.Modalities[0].Count)
	assert.Equal(t, int64(1), status.Modalities[0].NextID)
}

func TestHandleStatus_SQLiteReportsDiskUsage(t *testing.T) {
	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "kioku.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	h, _ := newTestServer(t, store)

	w := do(t, h, http.MethodGet, "/api/v1/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var status models.StatusResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&status))
	assert.Equal(t, "sqlite", status.Store)
	assert.Greater(t, status.DiskBytes, int64(0))
	assert.Equal(t, 5, status.TopK)
	assert.Equal(t, 0.8, status.Threshold)
}

func TestHandleHealthAndMetrics(t *testing.T) {
	h, _ := newRedisServer(t)
	w := do(t, h, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"ok"`)

	do(t, h, http.MethodPost, "/api/v1/query", models.QueryInput{Text: "alpha"})
	w = do(t, h, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "kioku_query_misses_total")
}
