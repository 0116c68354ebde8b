// Package provider talks to the generative model APIs (OpenAI, OpenRouter) that produce the
// responses kioku caches.
package provider

import (
	"context"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"

	kerr "github.com/hyperjump/kioku/pkg/errors"
)

// Kind selects the upstream API.
type Kind string

const (
	KindOpenAI     Kind = "openai"
	KindOpenRouter Kind = "openrouter"
	// KindMock serves deterministic offline responses and embeddings.
	KindMock Kind = "mock"
)

// OpenRouterBaseURL is the OpenAI-compatible endpoint of OpenRouter.
const OpenRouterBaseURL = "https://openrouter.ai/api/v1"

// DefaultPromptPrefix is prepended to every generation request.
const DefaultPromptPrefix = "You are a search assistant. Give me a response in 5 sentences."

// Request is what a Generator answers: a text prompt and an optional image reference.
type Request struct {
	Prompt string
	Image  string
}

// Generator produces a fresh response for a cache miss.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// Config holds client settings shared by the generator and the embedder.
type Config struct {
	Kind           Kind
	APIKey         string
	BaseURL        string
	LLMModel       string
	EmbeddingModel string
	PromptPrefix   string
	Timeout        time.Duration
	MaxRetries     int
}

// NewClient builds an OpenAI-compatible client for cfg.Kind.
func NewClient(cfg Config) (*openai.Client, error) {
	if cfg.Kind != KindOpenAI && cfg.Kind != KindOpenRouter {
		return nil, kerr.New(kerr.CodeProviderKindUnsupported, "provider kind has no remote client",
			kerr.FieldProvider(string(cfg.Kind)))
	}
	if cfg.APIKey == "" {
		return nil, kerr.New(kerr.CodeConfigValidateInvalidValue, "provider api key is required",
			kerr.FieldProvider(string(cfg.Kind)))
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	switch {
	case cfg.BaseURL != "":
		clientCfg.BaseURL = cfg.BaseURL
	case cfg.Kind == KindOpenRouter:
		clientCfg.BaseURL = OpenRouterBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	clientCfg.HTTPClient = &http.Client{Timeout: timeout}
	return openai.NewClientWithConfig(clientCfg), nil
}
