package config

import (
	"time"

	"github.com/hyperjump/kioku/internal/provider"
)

// Multimodal vectors are the text embedding followed by the image embedding.
const (
	DefaultTextDimension  = 768
	DefaultImageDimension = 512
)

// DefaultSimilarityThreshold applies when query.similarity_threshold is absent.
const DefaultSimilarityThreshold = 0.8

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = 120 * time.Second
	}
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = "redis"
	}
	if cfg.Store.KeyPrefix == "" {
		cfg.Store.KeyPrefix = "embeddings"
	}
	if cfg.Store.TTL == 0 {
		cfg.Store.TTL = time.Hour
	}
	if cfg.Store.Redis.URL == "" {
		cfg.Store.Redis.URL = "redis://localhost:6379/0"
	}
	if cfg.Store.Redis.DialTimeout == 0 {
		cfg.Store.Redis.DialTimeout = 5 * time.Second
	}
	if cfg.Store.SQLite.Path == "" {
		cfg.Store.SQLite.Path = "/usr/local/var/kioku/data/kioku.db"
	}
	if cfg.Index.Type == "" {
		cfg.Index.Type = "memory"
	}
	if cfg.Index.InitialCapacity == 0 {
		cfg.Index.InitialCapacity = 1000
	}
	if cfg.Index.HNSW.M == 0 {
		cfg.Index.HNSW.M = 16
	}
	if cfg.Index.HNSW.EfSearch == 0 {
		cfg.Index.HNSW.EfSearch = 100
	}
	if len(cfg.Modalities) == 0 {
		cfg.Modalities = []ModalityConfig{
			{Name: "text", Kind: "text", Dimension: DefaultTextDimension},
			{Name: "multimodal", Kind: "multimodal", TextDimension: DefaultTextDimension, ImageDimension: DefaultImageDimension},
		}
	}
	for i := range cfg.Modalities {
		if cfg.Modalities[i].InitialCapacity == 0 {
			cfg.Modalities[i].InitialCapacity = cfg.Index.InitialCapacity
		}
	}
	if cfg.Query.TopK == 0 {
		cfg.Query.TopK = 5
	}
	if cfg.Query.SimilarityThreshold == nil {
		threshold := DefaultSimilarityThreshold
		cfg.Query.SimilarityThreshold = &threshold
	}
	if cfg.Query.TextModality == "" {
		cfg.Query.TextModality = "text"
	}
	if cfg.Query.MultimodalModality == "" {
		cfg.Query.MultimodalModality = "multimodal"
	}
	if cfg.LLM.Kind == "" {
		cfg.LLM.Kind = string(provider.KindOpenRouter)
	}
	if cfg.LLM.PromptPrefix == "" {
		cfg.LLM.PromptPrefix = provider.DefaultPromptPrefix
	}
	if cfg.LLM.Timeout == 0 {
		cfg.LLM.Timeout = 60 * time.Second
	}
	if cfg.LLM.MaxRetries == 0 {
		cfg.LLM.MaxRetries = 3
	}
	if cfg.Embedding.Kind == "" {
		cfg.Embedding.Kind = string(provider.KindOpenAI)
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "text-embedding-3-small"
	}
	if cfg.Embedding.Timeout == 0 {
		cfg.Embedding.Timeout = 30 * time.Second
	}
	if cfg.Embedding.MaxRetries == 0 {
		cfg.Embedding.MaxRetries = 3
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
}
