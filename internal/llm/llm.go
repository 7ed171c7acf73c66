package llm

import (
	"context"
	"errors"
	"fmt"
)

// ErrGenerationFailed is wrapped by every Gateway error.
var ErrGenerationFailed = errors.New("generation failed")

// Gateway sends a prompt to a text-generation service and returns its raw output.
// One request, one response: implementations do not retry or stream.
type Gateway interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Provider names accepted by New.
const (
	ProviderGemini    = "gemini"
	ProviderAnthropic = "anthropic"
)

// Config selects and configures a Gateway.
type Config struct {
	Provider string
	APIKey   string
	Model    string
	BaseURL  string // optional endpoint override
}

// New builds the Gateway named by cfg.Provider.
func New(ctx context.Context, cfg Config) (Gateway, error) {
	switch cfg.Provider {
	case ProviderGemini, "":
		return NewGeminiGateway(ctx, cfg)
	case ProviderAnthropic:
		return NewAnthropicGateway(cfg), nil
	default:
		return nil, fmt.Errorf("unknown model provider %q (want %q or %q)", cfg.Provider, ProviderGemini, ProviderAnthropic)
	}
}

func generationError(provider string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrGenerationFailed, provider, err)
}
