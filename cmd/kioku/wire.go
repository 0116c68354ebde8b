package main

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/hyperjump/kioku/internal/cache"
	"github.com/hyperjump/kioku/internal/config"
	"github.com/hyperjump/kioku/internal/embedding"
	"github.com/hyperjump/kioku/internal/provider"
	"github.com/hyperjump/kioku/internal/registry"
	"github.com/hyperjump/kioku/internal/search"
	"github.com/hyperjump/kioku/internal/storage"
	"github.com/hyperjump/kioku/internal/vector"
	kerr "github.com/hyperjump/kioku/pkg/errors"
)

// components holds everything a kioku process runs on.
type components struct {
	Store    storage.RecordStore
	Cache    *cache.Cache
	Engine   *search.Engine
	Embedder embedding.Embedder
	Metrics  *prometheus.Registry
}

// Close releases the indexes, the embedder and the store.
func (c *components) Close() error {
	var errs []error
	if c.Cache != nil {
		errs = append(errs, c.Cache.Close())
	}
	if c.Embedder != nil {
		errs = append(errs, c.Embedder.Close())
	}
	if c.Store != nil {
		errs = append(errs, c.Store.Close())
	}
	return kerr.Join(errs...)
}

// initializeComponents builds the store, registry, cache, providers and query engine from cfg.
// On failure everything already opened is closed.
func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (_ *components, err error) {
	c := &components{Metrics: prometheus.NewRegistry()}
	defer func() {
		if err != nil {
			_ = c.Close()
		}
	}()
	c.Metrics.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	c.Store, err = storage.NewRecordStore(ctx, storage.Options{
		Backend: cfg.Store.Backend,
		Redis: storage.RedisConfig{
			URL:          cfg.Store.Redis.URL,
			DialTimeout:  cfg.Store.Redis.DialTimeout,
			ReadTimeout:  cfg.Store.Redis.ReadTimeout,
			WriteTimeout: cfg.Store.Redis.WriteTimeout,
			PoolSize:     cfg.Store.Redis.PoolSize,
		},
		SQLitePath: cfg.Store.SQLite.Path,
	})
	if err != nil {
		return nil, err
	}

	reg, err := buildRegistry(cfg)
	if err != nil {
		return nil, err
	}
	ttl := cfg.Store.TTL
	if ttl < 0 {
		ttl = 0
	}
	c.Cache = cache.New(reg, c.Store,
		cache.WithLogger(logger),
		cache.WithTTL(ttl),
		cache.WithMetrics(cache.NewMetrics(c.Metrics)),
	)

	textDim, imageDim := embeddingDimensions(cfg)
	c.Embedder, err = newEmbedder(cfg, textDim, imageDim, logger)
	if err != nil {
		return nil, err
	}
	gen, err := newGenerator(cfg, logger)
	if err != nil {
		return nil, err
	}

	c.Engine, err = search.NewEngine(c.Cache, c.Embedder, gen, search.Config{
		TopK:               cfg.Query.TopK,
		Threshold:          cfg.Query.Threshold(),
		TextModality:       cfg.Query.TextModality,
		MultimodalModality: cfg.Query.MultimodalModality,
	}, search.WithLogger(logger), search.WithMetrics(search.NewMetrics(c.Metrics)))
	if err != nil {
		return nil, err
	}

	logger.Debug("components initialized",
		zap.String("store", c.Store.Backend()),
		zap.String("index", cfg.Index.Type),
		zap.Strings("modalities", reg.Names()),
		zap.String("llm", cfg.LLM.Kind),
		zap.String("embedding", cfg.Embedding.Kind),
	)
	return c, nil
}

func buildRegistry(cfg *config.Config) (*registry.Registry, error) {
	mods := make([]registry.Modality, 0, len(cfg.Modalities))
	for _, m := range cfg.Modalities {
		idx, err := vector.NewIndex(cfg.Index.Type, vector.HNSWOptions{M: cfg.Index.HNSW.M, EfSearch: cfg.Index.HNSW.EfSearch})
		if err != nil {
			return nil, err
		}
		mods = append(mods, registry.Modality{
			Name:            m.Name,
			Kind:            registry.Kind(m.Kind),
			Dimension:       m.TotalDimension(),
			TextDimension:   m.TextDimension,
			InitialCapacity: m.InitialCapacity,
			Index:           idx,
		})
	}
	return registry.New(cfg.Store.KeyPrefix, mods)
}

// embeddingDimensions returns the text vector length of the text modality and the image
// segment length of the multimodal modality.
func embeddingDimensions(cfg *config.Config) (textDim, imageDim int) {
	textDim, imageDim = config.DefaultTextDimension, config.DefaultImageDimension
	for _, m := range cfg.Modalities {
		switch m.Name {
		case cfg.Query.TextModality:
			textDim = m.TotalDimension()
		case cfg.Query.MultimodalModality:
			imageDim = m.TotalDimension() - m.TextDimension
		}
	}
	return textDim, imageDim
}

func newEmbedder(cfg *config.Config, textDim, imageDim int, logger *zap.Logger) (embedding.Embedder, error) {
	var base embedding.Embedder
	switch provider.Kind(cfg.Embedding.Kind) {
	case provider.KindMock:
		base = embedding.NewMockEmbedder(textDim, imageDim)
	default:
		pcfg := provider.Config{
			Kind:           provider.Kind(cfg.Embedding.Kind),
			APIKey:         cfg.Embedding.APIKey,
			BaseURL:        cfg.Embedding.BaseURL,
			EmbeddingModel: cfg.Embedding.Model,
			Timeout:        cfg.Embedding.Timeout,
			MaxRetries:     cfg.Embedding.MaxRetries,
		}
		client, err := provider.NewClient(pcfg)
		if err != nil {
			return nil, err
		}
		base = embedding.NewOpenAIEmbedder(client, pcfg, textDim, logger)
	}
	if cfg.Embedding.CacheSize <= 0 {
		return base, nil
	}
	return embedding.NewCachedEmbedder(base, cfg.Embedding.CacheSize)
}

func newGenerator(cfg *config.Config, logger *zap.Logger) (provider.Generator, error) {
	var gen provider.Generator
	switch provider.Kind(cfg.LLM.Kind) {
	case provider.KindMock:
		gen = &provider.StaticGenerator{}
	default:
		pcfg := provider.Config{
			Kind:         provider.Kind(cfg.LLM.Kind),
			APIKey:       cfg.LLM.APIKey,
			BaseURL:      cfg.LLM.BaseURL,
			LLMModel:     cfg.LLM.Model,
			PromptPrefix: cfg.LLM.PromptPrefix,
			Timeout:      cfg.LLM.Timeout,
			MaxRetries:   cfg.LLM.MaxRetries,
		}
		client, err := provider.NewClient(pcfg)
		if err != nil {
			return nil, err
		}
		openaiGen, err := provider.NewOpenAIGenerator(client, pcfg, logger)
		if err != nil {
			return nil, err
		}
		gen = openaiGen
	}
	if cfg.LLM.NoBreaker {
		return gen, nil
	}
	return provider.NewBreakerGenerator(gen, provider.DefaultBreakerConfig(), logger), nil
}
