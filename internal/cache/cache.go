// Package cache keeps each modality's vector index consistent with the record store: it hydrates
// indexes lazily, issues ids, grows indexes on demand and serves similarity lookups.
package cache

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kioku/internal/models"
	"github.com/hyperjump/kioku/internal/registry"
	"github.com/hyperjump/kioku/internal/storage"
	kerr "github.com/hyperjump/kioku/pkg/errors"
	"github.com/hyperjump/kioku/pkg/utils"
)

// GrowthIncrement is how many slots a full index gains on resize.
const GrowthIncrement = 1000

// Entry is a new record to cache. The id and timestamp are assigned by Store.
type Entry struct {
	Query     string
	Image     string
	Embedding []float32
	Response  string
}

// modalityState is the mutable per-modality state. mu guards nextID, initialized and every
// mutation of the modality's index.
type modalityState struct {
	mod         *registry.Modality
	mu          sync.RWMutex
	nextID      int64
	initialized bool
}

// Cache orchestrates the vector indexes and the record store for every registered modality.
type Cache struct {
	registry *registry.Registry
	store    storage.RecordStore
	states   map[string]*modalityState
	ttl      time.Duration
	now      func() time.Time
	logger   *zap.Logger
	metrics  *Metrics
}

// Option configures a Cache.
type Option func(*Cache)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Cache) {
		c.logger = l
	}
}

// WithTTL sets the namespace time-to-live refreshed on every store. Zero disables expiry.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		c.ttl = ttl
	}
}

// WithClock sets the time source for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

// WithMetrics sets the Prometheus collectors.
func WithMetrics(m *Metrics) Option {
	return func(c *Cache) {
		c.metrics = m
	}
}

// New creates a cache over every modality in reg. No store access happens until first use.
func New(reg *registry.Registry, store storage.RecordStore, opts ...Option) *Cache {
	c := &Cache{
		registry: reg,
		store:    store,
		states:   make(map[string]*modalityState),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = utils.LoggerOrNop(c.logger)
	for _, name := range reg.Names() {
		mod, _ := reg.Lookup(name)
		c.states[name] = &modalityState{mod: mod}
	}
	return c
}

// Registry returns the modality registry.
func (c *Cache) Registry() *registry.Registry {
	return c.registry
}

func (c *Cache) state(modality string) (*modalityState, error) {
	if _, err := c.registry.Lookup(modality); err != nil {
		return nil, err
	}
	return c.states[modality], nil
}

func sizeMismatch(mod *registry.Modality, got int) error {
	return kerr.New(kerr.CodeCacheEmbeddingSizeMismatch, "embedding size does not match modality dimension",
		kerr.FieldModality(mod.Name), kerr.Field("got", got), kerr.Field("expected", mod.Dimension))
}

func isZeroVector(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

// Store persists entry under a fresh id and indexes its embedding. Store and index errors are
// returned unchanged; an id consumed by a failed store is never reissued.
func (c *Cache) Store(ctx context.Context, modality string, entry Entry) (id int64, err error) {
	st, err := c.state(modality)
	if err != nil {
		return 0, err
	}
	if len(entry.Embedding) != st.mod.Dimension {
		return 0, sizeMismatch(st.mod, len(entry.Embedding))
	}
	if isZeroVector(entry.Embedding) {
		return 0, kerr.New(kerr.CodeCacheEmbeddingInvalid, "embedding must have a non-zero norm",
			kerr.FieldModality(modality))
	}
	defer func(start time.Time) { c.metrics.observe("store", start, err) }(time.Now())

	st.mu.Lock()
	defer st.mu.Unlock()
	if !st.initialized {
		if err := c.hydrateLocked(ctx, st); err != nil {
			return 0, err
		}
	}

	id = st.nextID
	st.nextID++

	rec := &models.EmbeddingRecord{
		ID:        id,
		Query:     entry.Query,
		Image:     entry.Image,
		Embedding: entry.Embedding,
		Response:  entry.Response,
		Timestamp: c.now().Unix(),
	}
	raw, err := rec.Encode()
	if err != nil {
		return 0, kerr.Wrap(err, kerr.CodeCacheRecordEncodeFailure, "encoding record", kerr.FieldModality(modality))
	}
	ns := st.mod.Namespace()
	if err := c.store.HashSet(ctx, ns, rec.Field(), raw); err != nil {
		return 0, err
	}
	if c.ttl > 0 {
		if err := c.store.Expire(ctx, ns, c.ttl); err != nil {
			return 0, err
		}
	}

	idx := st.mod.Index
	if idx.Count() >= idx.Capacity() {
		newCapacity := idx.Count() + GrowthIncrement
		if err := idx.Resize(newCapacity); err != nil {
			return 0, err
		}
		c.metrics.recordResize(modality)
		c.logger.Debug("resized vector index",
			zap.String("modality", modality), zap.Int("capacity", newCapacity))
	}
	if err := idx.Add(ctx, entry.Embedding, id); err != nil {
		return 0, err
	}
	c.metrics.recordStore(modality, idx.Count())
	c.logger.Debug("stored record", zap.String("modality", modality), zap.Int64("id", id))
	return id, nil
}

// Search returns up to k records nearest to embedding, closest first. Ids whose record has
// expired or been deleted are dropped from the result.
func (c *Cache) Search(ctx context.Context, modality string, embedding []float32, k int) (records []*models.EmbeddingRecord, err error) {
	st, err := c.state(modality)
	if err != nil {
		return nil, err
	}
	if len(embedding) != st.mod.Dimension {
		return nil, sizeMismatch(st.mod, len(embedding))
	}
	defer func(start time.Time) { c.metrics.observe("search", start, err) }(time.Now())

	for {
		st.mu.RLock()
		if st.initialized {
			break
		}
		st.mu.RUnlock()
		if err := c.hydrate(ctx, st); err != nil {
			return nil, err
		}
	}
	defer st.mu.RUnlock()
	c.metrics.recordSearch(modality)

	idx := st.mod.Index
	count := idx.Count()
	if k > count {
		k = count
	}
	if k <= 0 {
		return []*models.EmbeddingRecord{}, nil
	}
	neighbors, err := idx.SearchKNN(ctx, embedding, k)
	if err != nil {
		return nil, err
	}
	if len(neighbors) == 0 {
		return []*models.EmbeddingRecord{}, nil
	}
	fields := make([]string, len(neighbors))
	for i, n := range neighbors {
		fields[i] = models.FieldForID(n.ID)
	}
	entries, err := c.store.HashMultiGet(ctx, st.mod.Namespace(), fields)
	if err != nil {
		return nil, err
	}

	records = make([]*models.EmbeddingRecord, 0, len(entries))
	missing := 0
	for i, e := range entries {
		if !e.Found {
			missing++
			continue
		}
		rec, err := models.DecodeRecord(e.Value)
		if err != nil {
			return nil, kerr.Wrap(err, kerr.CodeStoreRecordDecodeFailure, "decoding record",
				kerr.FieldModality(modality), kerr.Field("field", fields[i]))
		}
		records = append(records, rec)
	}
	if missing > 0 {
		c.metrics.recordInconsistent(modality, missing)
		c.logger.Debug("dropped index ids without records",
			zap.String("modality", modality), zap.Int("missing", missing))
	}
	return records, nil
}

// hydrate takes the write lock and hydrates st unless another caller already did.
func (c *Cache) hydrate(ctx context.Context, st *modalityState) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.initialized {
		return nil
	}
	return c.hydrateLocked(ctx, st)
}

// hydrateLocked rebuilds the index from the store. Caller holds st.mu for writing.
// nextID never moves backwards.
func (c *Cache) hydrateLocked(ctx context.Context, st *modalityState) error {
	mod := st.mod
	raw, err := c.store.HashGetAll(ctx, mod.Namespace())
	if err != nil {
		return err
	}

	records := make([]*models.EmbeddingRecord, 0, len(raw))
	for field, value := range raw {
		rec, err := models.DecodeRecord(value)
		if err != nil {
			return kerr.Wrap(err, kerr.CodeStoreRecordDecodeFailure, "decoding record during hydration",
				kerr.FieldModality(mod.Name), kerr.Field("field", field))
		}
		if len(rec.Embedding) != mod.Dimension {
			return kerr.New(kerr.CodeStoreRecordDecodeFailure, "stored embedding has wrong dimension",
				kerr.FieldModality(mod.Name), kerr.Field("field", field),
				kerr.Field("got", len(rec.Embedding)), kerr.Field("expected", mod.Dimension))
		}
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })

	capacity := mod.InitialCapacity
	if len(records) > 0 {
		capacity = len(records)
	}
	st.initialized = false
	if err := mod.Index.Init(capacity, mod.Dimension); err != nil {
		return err
	}
	for _, rec := range records {
		if err := mod.Index.Add(ctx, rec.Embedding, rec.ID); err != nil {
			return err
		}
		if rec.ID >= st.nextID {
			st.nextID = rec.ID + 1
		}
	}
	st.initialized = true
	c.metrics.recordIndexSize(mod.Name, len(records))
	c.logger.Debug("hydrated vector index",
		zap.String("modality", mod.Name), zap.Int("records", len(records)), zap.Int64("next_id", st.nextID))
	return nil
}

// Flush deletes every record of modality. The index is rebuilt empty on next access; ids keep
// increasing.
func (c *Cache) Flush(ctx context.Context, modality string) error {
	st, err := c.state(modality)
	if err != nil {
		return err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if err := c.store.DeleteNamespace(ctx, st.mod.Namespace()); err != nil {
		return err
	}
	st.initialized = false
	c.metrics.recordIndexSize(modality, 0)
	c.logger.Info("flushed modality", zap.String("modality", modality))
	return nil
}

// Reconcile rebuilds the modality's index from the store, dropping points whose records have
// expired. It returns the number of points removed.
func (c *Cache) Reconcile(ctx context.Context, modality string) (removed int, err error) {
	st, err := c.state(modality)
	if err != nil {
		return 0, err
	}
	defer func(start time.Time) { c.metrics.observe("reconcile", start, err) }(time.Now())
	st.mu.Lock()
	defer st.mu.Unlock()
	before := 0
	if st.initialized {
		before = st.mod.Index.Count()
	}
	if err := c.hydrateLocked(ctx, st); err != nil {
		return 0, err
	}
	removed = before - st.mod.Index.Count()
	if removed < 0 {
		removed = 0
	}
	if removed > 0 {
		c.logger.Info("reconciled vector index",
			zap.String("modality", modality), zap.Int("removed", removed))
	}
	return removed, nil
}

// Warm hydrates every modality that is not yet initialized.
func (c *Cache) Warm(ctx context.Context) error {
	for _, name := range c.registry.Names() {
		if err := c.hydrate(ctx, c.states[name]); err != nil {
			return kerr.With(err, kerr.FieldModality(name))
		}
	}
	return nil
}

// RunReconciler reconciles every modality each interval until ctx is done.
func (c *Cache) RunReconciler(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, name := range c.registry.Names() {
				if _, err := c.Reconcile(ctx, name); err != nil {
					c.logger.Warn("reconcile failed", zap.String("modality", name), zap.Error(err))
				}
			}
		}
	}
}

// Stats returns the state of every modality, sorted by name.
func (c *Cache) Stats() []models.ModalityStats {
	names := c.registry.Names()
	stats := make([]models.ModalityStats, 0, len(names))
	for _, name := range names {
		st := c.states[name]
		st.mu.RLock()
		s := models.ModalityStats{
			Name:        name,
			Kind:        string(st.mod.Kind),
			Namespace:   st.mod.Namespace(),
			Dimension:   st.mod.Dimension,
			IndexType:   st.mod.Index.Type(),
			NextID:      st.nextID,
			Initialized: st.initialized,
		}
		if st.initialized {
			s.Count = st.mod.Index.Count()
			s.Capacity = st.mod.Index.Capacity()
		}
		st.mu.RUnlock()
		stats = append(stats, s)
	}
	return stats
}

// Close releases every modality's index. The record store is owned by the caller.
func (c *Cache) Close() error {
	var errs []error
	for _, name := range c.registry.Names() {
		st := c.states[name]
		st.mu.Lock()
		if err := st.mod.Index.Close(); err != nil {
			errs = append(errs, err)
		}
		st.initialized = false
		st.mu.Unlock()
	}
	return kerr.Join(errs...)
}
