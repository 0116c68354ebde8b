package config

import (
	"github.com/hyperjump/kioku/internal/provider"
	kerr "github.com/hyperjump/kioku/pkg/errors"
)

func invalid(msg string, fields ...kerr.Attr) error {
	return kerr.New(kerr.CodeConfigValidateInvalidValue, msg, fields...)
}

// Validate checks values that defaults cannot repair. Modality shapes are checked again by the
// registry when the cache is built.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return invalid("server port out of range", kerr.Field("port", c.Server.Port))
	}
	switch c.Store.Backend {
	case "redis", "sqlite":
	default:
		return invalid("store backend must be redis or sqlite", kerr.Field("backend", c.Store.Backend))
	}
	switch c.Index.Type {
	case "memory", "hnsw":
	default:
		return invalid("index type must be memory or hnsw", kerr.Field("type", c.Index.Type))
	}
	if c.Index.InitialCapacity <= 0 {
		return invalid("index initial capacity must be positive", kerr.Field("initial_capacity", c.Index.InitialCapacity))
	}
	names := make(map[string]ModalityConfig, len(c.Modalities))
	for _, m := range c.Modalities {
		if m.Name == "" {
			return invalid("modality name must not be empty")
		}
		if _, dup := names[m.Name]; dup {
			return invalid("duplicate modality", kerr.FieldModality(m.Name))
		}
		switch m.Kind {
		case "text":
			if m.Dimension <= 0 {
				return invalid("text modality needs a positive dimension", kerr.FieldModality(m.Name))
			}
		case "multimodal":
			if m.TextDimension <= 0 || m.TotalDimension() <= m.TextDimension {
				return invalid("multimodal modality needs positive text and image dimensions", kerr.FieldModality(m.Name))
			}
		default:
			return invalid("modality kind must be text or multimodal", kerr.FieldModality(m.Name), kerr.Field("kind", m.Kind))
		}
		names[m.Name] = m
	}
	if text, ok := names[c.Query.TextModality]; !ok || text.Kind != "text" {
		return invalid("query text modality must name a text modality", kerr.FieldModality(c.Query.TextModality))
	}
	if mm, ok := names[c.Query.MultimodalModality]; ok {
		if mm.Kind != "multimodal" {
			return invalid("query multimodal modality must name a multimodal modality", kerr.FieldModality(c.Query.MultimodalModality))
		}
		// One text embedder serves both modalities.
		if text := names[c.Query.TextModality]; mm.TextDimension != text.Dimension {
			return invalid("multimodal text_dimension must equal the text modality dimension",
				kerr.FieldModality(mm.Name),
				kerr.Field("text_dimension", mm.TextDimension), kerr.Field("dimension", text.Dimension))
		}
	}
	if c.Query.TopK <= 0 {
		return invalid("query top_k must be positive", kerr.Field("top_k", c.Query.TopK))
	}
	if threshold := c.Query.Threshold(); threshold < -1 || threshold > 1 {
		return invalid("similarity threshold must be within [-1, 1]", kerr.Field("threshold", threshold))
	}
	for _, kind := range []string{c.LLM.Kind, c.Embedding.Kind} {
		switch provider.Kind(kind) {
		case provider.KindOpenAI, provider.KindOpenRouter, provider.KindMock:
		default:
			return invalid("provider kind must be openai, openrouter or mock", kerr.FieldProvider(kind))
		}
	}
	return nil
}
