package embedding

import (
	"context"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/hyperjump/kioku/internal/provider"
	kerr "github.com/hyperjump/kioku/pkg/errors"
	"github.com/hyperjump/kioku/pkg/utils"
)

// DefaultEmbeddingModel is used when no embedding model is configured.
const DefaultEmbeddingModel = "text-embedding-3-small"

// OpenAIEmbedder computes text embeddings with the embeddings API. The API has no image
// embeddings, so EmbedImage always fails.
type OpenAIEmbedder struct {
	client     *openai.Client
	kind       provider.Kind
	model      openai.EmbeddingModel
	dimensions int
	maxRetries int
	logger     *zap.Logger
}

// NewOpenAIEmbedder creates an embedder on client. dimensions asks the model for vectors of
// that length (0 keeps the model default).
func NewOpenAIEmbedder(client *openai.Client, cfg provider.Config, dimensions int, logger *zap.Logger) *OpenAIEmbedder {
	model := cfg.EmbeddingModel
	if model == "" {
		model = DefaultEmbeddingModel
	}
	return &OpenAIEmbedder{
		client:     client,
		kind:       cfg.Kind,
		model:      openai.EmbeddingModel(model),
		dimensions: dimensions,
		maxRetries: cfg.MaxRetries,
		logger:     utils.LoggerOrNop(logger),
	}
}

// EmbedText creates a vector embedding for text.
func (e *OpenAIEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	var out []float32
	err := provider.Retry(ctx, e.maxRetries, e.logger, func() error {
		resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Input:      []string{text},
			Model:      e.model,
			Dimensions: e.dimensions,
		})
		if err != nil {
			return err
		}
		if len(resp.Data) == 0 {
			return kerr.New(kerr.CodeProviderResponseInvalid, "embedding response has no data",
				kerr.FieldProvider(string(e.kind)))
		}
		out = resp.Data[0].Embedding
		return nil
	})
	if err != nil {
		if kerr.CodeOf(err) != "" || ctx.Err() != nil {
			return nil, err
		}
		return nil, kerr.Wrap(err, kerr.CodeProviderUpstreamFailure, "embedding request failed",
			kerr.FieldProvider(string(e.kind)), kerr.Field("model", string(e.model)))
	}
	return out, nil
}

// EmbedImage is not supported by the embeddings API.
func (e *OpenAIEmbedder) EmbedImage(ctx context.Context, image string) ([]float32, error) {
	return nil, kerr.New(kerr.CodeProviderRequestUnsupported, "image embeddings are not supported by this provider",
		kerr.FieldProvider(string(e.kind)))
}

// Close is a no-op; the HTTP client is shared.
func (e *OpenAIEmbedder) Close() error {
	return nil
}
