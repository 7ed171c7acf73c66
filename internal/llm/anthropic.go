package llm

import (
	"context"
	"errors"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// DefaultAnthropicModel is used when no model is configured.
const DefaultAnthropicModel = "claude-haiku-4-5-20251001"

// AnthropicGateway generates reviews with the Anthropic Messages API.
type AnthropicGateway struct {
	api   *anthropic.Client
	model anthropic.Model
}

// NewAnthropicGateway creates an Anthropic client for cfg. The SDK's built-in
// retries are disabled so one Generate call is one request.
func NewAnthropicGateway(cfg Config) *AnthropicGateway {
	opts := []option.RequestOption{option.WithMaxRetries(0)}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	model := cfg.Model
	if model == "" {
		model = DefaultAnthropicModel
	}

	client := anthropic.NewClient(opts...)
	return &AnthropicGateway{
		api:   &client,
		model: anthropic.Model(model),
	}
}

// Generate sends prompt as a single user message and returns the first text block.
func (g *AnthropicGateway) Generate(ctx context.Context, prompt string) (string, error) {
	msg, err := g.api.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     g.model,
		MaxTokens: 4096,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", generationError("anthropic", err)
	}

	for _, block := range msg.Content {
		if block.Type == "text" && block.Text != "" {
			return block.Text, nil
		}
	}
	return "", generationError("anthropic", errors.New("no text content in API response"))
}
