// Package config provides configuration loading and structs for the kioku server.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	kerr "github.com/hyperjump/kioku/pkg/errors"
)

// Config holds all configuration for the application.
type Config struct {
	Debug      bool             `yaml:"debug"`
	Server     ServerConfig     `yaml:"server"`
	Store      StoreConfig      `yaml:"store"`
	Index      IndexConfig      `yaml:"index"`
	Modalities []ModalityConfig `yaml:"modalities"`
	Query      QueryConfig      `yaml:"query"`
	LLM        LLMConfig        `yaml:"llm"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Cache      CacheConfig      `yaml:"cache"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// StoreConfig selects the record store. A negative TTL disables namespace expiry.
type StoreConfig struct {
	Backend   string        `yaml:"backend"`
	KeyPrefix string        `yaml:"key_prefix"`
	TTL       time.Duration `yaml:"ttl"`
	Redis     RedisConfig   `yaml:"redis"`
	SQLite    SQLiteConfig  `yaml:"sqlite"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	URL          string        `yaml:"url"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	PoolSize     int           `yaml:"pool_size"`
}

// SQLiteConfig holds the embedded store path.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// IndexConfig selects the vector index implementation.
type IndexConfig struct {
	Type            string     `yaml:"type"`
	InitialCapacity int        `yaml:"initial_capacity"`
	HNSW            HNSWConfig `yaml:"hnsw"`
}

// HNSWConfig tunes the HNSW graph.
type HNSWConfig struct {
	M        int `yaml:"m"`
	EfSearch int `yaml:"ef_search"`
}

// ModalityConfig describes one modality. Multimodal entries give text and image dimensions;
// their full dimension is the sum.
type ModalityConfig struct {
	Name            string `yaml:"name"`
	Kind            string `yaml:"kind"`
	Dimension       int    `yaml:"dimension,omitempty"`
	TextDimension   int    `yaml:"text_dimension,omitempty"`
	ImageDimension  int    `yaml:"image_dimension,omitempty"`
	InitialCapacity int    `yaml:"initial_capacity,omitempty"`
}

// TotalDimension returns the full embedding length of the modality.
func (m ModalityConfig) TotalDimension() int {
	if m.Kind == "multimodal" && m.Dimension == 0 {
		return m.TextDimension + m.ImageDimension
	}
	return m.Dimension
}

// QueryConfig holds the hit/miss policy and routing.
type QueryConfig struct {
	TopK                int      `yaml:"top_k"`
	SimilarityThreshold *float64 `yaml:"similarity_threshold"`
	TextModality        string   `yaml:"text_modality"`
	MultimodalModality  string   `yaml:"multimodal_modality"`
}

// Threshold returns the configured similarity threshold. An absent key means the default; an
// explicit 0 is kept.
func (q QueryConfig) Threshold() float64 {
	if q.SimilarityThreshold == nil {
		return DefaultSimilarityThreshold
	}
	return *q.SimilarityThreshold
}

// LLMConfig holds the generative model provider settings.
type LLMConfig struct {
	Kind         string        `yaml:"kind"`
	APIKey       string        `yaml:"api_key,omitempty"`
	BaseURL      string        `yaml:"base_url,omitempty"`
	Model        string        `yaml:"model"`
	PromptPrefix string        `yaml:"prompt_prefix"`
	Timeout      time.Duration `yaml:"timeout"`
	MaxRetries   int           `yaml:"max_retries"`
	NoBreaker    bool          `yaml:"disable_breaker"`
}

// EmbeddingConfig holds the embedding provider settings.
type EmbeddingConfig struct {
	Kind       string        `yaml:"kind"`
	APIKey     string        `yaml:"api_key,omitempty"`
	BaseURL    string        `yaml:"base_url,omitempty"`
	Model      string        `yaml:"model"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
	CacheSize  int           `yaml:"cache_size"`
}

// CacheConfig holds background maintenance settings.
type CacheConfig struct {
	ReconcileInterval time.Duration `yaml:"reconcile_interval"`
	WarmOnStart       bool          `yaml:"warm_on_start"`
}

// Load reads and parses the config file at path, applies defaults and environment
// overrides, expands paths and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, kerr.Wrap(err, kerr.CodeConfigLoadReadFailure, "failed to read config", kerr.Field("path", path))
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, kerr.Wrap(err, kerr.CodeConfigParseInvalidFormat, "failed to parse config", kerr.Field("path", path))
	}

	ApplyDefaults(&cfg)
	ApplyEnv(&cfg, os.Getenv)

	configDir := filepath.Dir(path)
	cfg.Store.SQLite.Path = expandPath(cfg.Store.SQLite.Path, configDir)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes the config to path. API keys are never written.
func Save(path string, cfg *Config) error {
	out := *cfg
	out.LLM.APIKey = ""
	out.Embedding.APIKey = ""
	data, err := yaml.Marshal(&out)
	if err != nil {
		return kerr.Wrap(err, kerr.CodeConfigParseInvalidFormat, "failed to marshal config")
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return kerr.Wrap(err, kerr.CodeConfigLoadReadFailure, "failed to write config", kerr.Field("path", path))
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
