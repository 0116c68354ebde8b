// Package search answers queries from the semantic cache, falling through to the generator on
// a miss and caching the fresh response.
package search

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/kioku/internal/cache"
	"github.com/hyperjump/kioku/internal/embedding"
	"github.com/hyperjump/kioku/internal/models"
	"github.com/hyperjump/kioku/internal/policy"
	"github.com/hyperjump/kioku/internal/provider"
	"github.com/hyperjump/kioku/internal/registry"
	kerr "github.com/hyperjump/kioku/pkg/errors"
	"github.com/hyperjump/kioku/pkg/utils"
)

// Config holds the query settings.
type Config struct {
	TopK               int
	Threshold          float64
	TextModality       string
	MultimodalModality string
}

// Engine runs the cached query pipeline.
type Engine struct {
	cache     *cache.Cache
	embedder  embedding.Embedder
	generator provider.Generator
	logger    *zap.Logger
	metrics   *Metrics

	textModality       string
	multimodalModality string

	mu     sync.RWMutex
	policy policy.Policy
	topK   int
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithMetrics sets the Prometheus collectors.
func WithMetrics(m *Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// NewEngine creates a query engine. The text modality must be registered and of kind text.
func NewEngine(c *cache.Cache, embedder embedding.Embedder, generator provider.Generator, cfg Config, opts ...Option) (*Engine, error) {
	mod, err := c.Registry().Lookup(cfg.TextModality)
	if err != nil {
		return nil, err
	}
	if mod.Kind != registry.KindText {
		return nil, kerr.New(kerr.CodeConfigValidateInvalidValue, "text modality must be of kind text",
			kerr.FieldModality(cfg.TextModality))
	}
	if err := validatePolicy(cfg.Threshold, cfg.TopK); err != nil {
		return nil, err
	}
	e := &Engine{
		cache:              c,
		embedder:           embedder,
		generator:          generator,
		textModality:       cfg.TextModality,
		multimodalModality: cfg.MultimodalModality,
		policy:             policy.Policy{Threshold: cfg.Threshold},
		topK:               cfg.TopK,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = utils.LoggerOrNop(e.logger)
	return e, nil
}

func validatePolicy(threshold float64, topK int) error {
	if threshold < -1 || threshold > 1 {
		return kerr.New(kerr.CodeQueryPolicyInvalid, "similarity threshold must be within [-1, 1]",
			kerr.Field("threshold", threshold))
	}
	if topK <= 0 {
		return kerr.New(kerr.CodeQueryPolicyInvalid, "top_k must be positive", kerr.Field("top_k", topK))
	}
	return nil
}

// SetPolicy replaces the threshold and top-k used by subsequent queries.
func (e *Engine) SetPolicy(threshold float64, topK int) error {
	if err := validatePolicy(threshold, topK); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.policy = policy.Policy{Threshold: threshold}
	e.topK = topK
	return nil
}

// Policy returns the current threshold and top-k.
func (e *Engine) Policy() (threshold float64, topK int) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.policy.Threshold, e.topK
}

// Query answers in from the cache when a similar enough entry exists; otherwise it asks the
// generator and caches the new response.
func (e *Engine) Query(ctx context.Context, in *models.QueryInput) (*models.QueryOutput, error) {
	start := time.Now()
	modality, err := ProcessQuery(in, e.textModality, e.multimodalModality)
	if err != nil {
		return nil, err
	}
	mod, err := e.cache.Registry().Lookup(modality)
	if err != nil {
		return nil, err
	}
	vec, err := e.embed(ctx, mod, in)
	if err != nil {
		return nil, err
	}

	e.mu.RLock()
	pol, topK := e.policy, e.topK
	e.mu.RUnlock()

	candidates, err := e.cache.Search(ctx, modality, vec, topK)
	if err != nil {
		return nil, err
	}
	decision, err := pol.Decide(mod, vec, candidates)
	if err != nil {
		return nil, err
	}

	out := &models.QueryOutput{RequestID: uuid.NewString(), Modality: modality}
	if decision.Hit {
		out.IsHit = true
		out.Text = decision.Best.Response
		out.BestCandidate = decision.Best
		out.TextScore, out.ImageScore = decision.TextScore, decision.ImageScore
		out.QueryTime = time.Since(start).Milliseconds()
		e.metrics.recordHit(modality)
		e.logger.Debug("cache hit",
			zap.String("request_id", out.RequestID), zap.String("modality", modality),
			zap.Int64("id", decision.Best.ID), zap.Float64("text_score", decision.TextScore))
		return out, nil
	}

	genStart := time.Now()
	response, err := e.generator.Generate(ctx, provider.Request{Prompt: in.Text, Image: in.Image})
	if err != nil {
		return nil, err
	}
	e.metrics.recordMiss(modality, time.Since(genStart).Seconds())
	id, err := e.cache.Store(ctx, modality, cache.Entry{
		Query:     in.Text,
		Image:     in.Image,
		Embedding: vec,
		Response:  response,
	})
	if err != nil {
		return nil, err
	}
	out.Text = response
	out.QueryTime = time.Since(start).Milliseconds()
	e.logger.Debug("cache miss",
		zap.String("request_id", out.RequestID), zap.String("modality", modality), zap.Int64("id", id))
	return out, nil
}

// embed builds the query vector for mod: the text embedding, or text || image for multimodal.
func (e *Engine) embed(ctx context.Context, mod *registry.Modality, in *models.QueryInput) ([]float32, error) {
	text, err := e.embedder.EmbedText(ctx, in.Text)
	if err != nil {
		return nil, err
	}
	if mod.Kind != registry.KindMultimodal {
		return text, nil
	}
	image, err := e.embedder.EmbedImage(ctx, in.Image)
	if err != nil {
		return nil, err
	}
	if len(text) != mod.TextDimension || len(image) != mod.ImageDimension() {
		return nil, kerr.New(kerr.CodeCacheEmbeddingSizeMismatch, "embedding segments do not match modality",
			kerr.FieldModality(mod.Name),
			kerr.Field("text", len(text)), kerr.Field("image", len(image)),
			kerr.Field("text_expected", mod.TextDimension), kerr.Field("image_expected", mod.ImageDimension()))
	}
	return models.SegmentedVector{Text: text, Image: image}.Concat(), nil
}
