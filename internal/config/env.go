package config

import (
	"strconv"

	"github.com/hyperjump/kioku/internal/provider"
)

// ApplyEnv overrides cfg from the environment. Unset or unparsable variables are ignored.
// API keys are taken from OPENAI_API_KEY or OPENROUTER_API_KEY according to each provider's kind
// when the file does not set one.
func ApplyEnv(cfg *Config, getenv func(string) string) {
	if v := getenv("KIOKU_REDIS_URL"); v != "" {
		cfg.Store.Redis.URL = v
	} else if v := getenv("REDIS_URL"); v != "" {
		cfg.Store.Redis.URL = v
	}
	if v := getenv("LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := getenv("EMBEDDINGS_MODEL"); v != "" {
		cfg.Embedding.Model = v
	}
	if v := getenv("SIMILARITY_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Query.SimilarityThreshold = &f
		}
	}
	if v := getenv("THRESHOLD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Query.TopK = n
		}
	}
	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = keyFor(cfg.LLM.Kind, getenv)
	}
	if cfg.Embedding.APIKey == "" {
		cfg.Embedding.APIKey = keyFor(cfg.Embedding.Kind, getenv)
	}
}

func keyFor(kind string, getenv func(string) string) string {
	switch provider.Kind(kind) {
	case provider.KindOpenAI:
		return getenv("OPENAI_API_KEY")
	case provider.KindOpenRouter:
		return getenv("OPENROUTER_API_KEY")
	default:
		return ""
	}
}
