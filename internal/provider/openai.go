package provider

import (
	"context"
	"strings"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	kerr "github.com/hyperjump/kioku/pkg/errors"
	"github.com/hyperjump/kioku/pkg/utils"
)

// OpenAIGenerator answers prompts with the chat completions API.
type OpenAIGenerator struct {
	client     *openai.Client
	kind       Kind
	model      string
	prefix     string
	maxRetries int
	logger     *zap.Logger
}

// NewOpenAIGenerator creates a generator on client. An empty model is rejected.
func NewOpenAIGenerator(client *openai.Client, cfg Config, logger *zap.Logger) (*OpenAIGenerator, error) {
	if cfg.LLMModel == "" {
		return nil, kerr.New(kerr.CodeConfigValidateInvalidValue, "llm model is required",
			kerr.FieldProvider(string(cfg.Kind)))
	}
	return &OpenAIGenerator{
		client:     client,
		kind:       cfg.Kind,
		model:      cfg.LLMModel,
		prefix:     cfg.PromptPrefix,
		maxRetries: cfg.MaxRetries,
		logger:     utils.LoggerOrNop(logger),
	}, nil
}

// Generate sends the prefixed prompt (and image URL, when given) and returns the trimmed answer.
func (g *OpenAIGenerator) Generate(ctx context.Context, req Request) (string, error) {
	msg := buildMessage(g.prefix, req)
	var content string
	err := Retry(ctx, g.maxRetries, g.logger, func() error {
		resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:    g.model,
			Messages: []openai.ChatCompletionMessage{msg},
		})
		if err != nil {
			return err
		}
		if len(resp.Choices) == 0 {
			return kerr.New(kerr.CodeProviderResponseInvalid, "completion has no choices",
				kerr.FieldProvider(string(g.kind)))
		}
		content = resp.Choices[0].Message.Content
		return nil
	})
	if err != nil {
		if kerr.CodeOf(err) != "" || ctx.Err() != nil {
			return "", err
		}
		return "", kerr.Wrap(err, kerr.CodeProviderUpstreamFailure, "chat completion failed",
			kerr.FieldProvider(string(g.kind)), kerr.Field("model", g.model))
	}
	return strings.TrimSpace(content), nil
}

func buildMessage(prefix string, req Request) openai.ChatCompletionMessage {
	text := req.Prompt
	if p := strings.TrimSpace(prefix); p != "" {
		text = p + "\n\n" + req.Prompt
	}
	if isRemoteImage(req.Image) {
		return openai.ChatCompletionMessage{
			Role: openai.ChatMessageRoleUser,
			MultiContent: []openai.ChatMessagePart{
				{Type: openai.ChatMessagePartTypeText, Text: text},
				{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{URL: req.Image}},
			},
		}
	}
	if req.Image != "" {
		text += "\n\nImage: " + req.Image
	}
	return openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: text}
}

func isRemoteImage(ref string) bool {
	return strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") || strings.HasPrefix(ref, "data:image/")
}
