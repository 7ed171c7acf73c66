package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/joescharf/codelens/internal/auth"
	"github.com/joescharf/codelens/internal/llm"
	"github.com/joescharf/codelens/internal/review"
)

// newLogger builds the process logger. Verbose forces debug level.
func newLogger(level, format string, verbose bool) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log.level %q: %w", level, err)
	}
	if verbose {
		lvl.SetLevel(zapcore.DebugLevel)
	}

	var cfg zap.Config
	switch format {
	case "json", "":
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	case "console":
		cfg = zap.NewDevelopmentConfig()
	default:
		return nil, fmt.Errorf("invalid log.format %q (want json or console)", format)
	}
	cfg.Level = lvl
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}

	return cfg.Build()
}

// gatewayConfig resolves the model provider settings from config/env.
func gatewayConfig() llm.Config {
	provider := viper.GetString("model.provider")
	cfg := llm.Config{Provider: provider}

	switch provider {
	case llm.ProviderAnthropic:
		cfg.APIKey = viper.GetString("anthropic.api_key")
		if cfg.APIKey == "" {
			cfg.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		}
		cfg.Model = viper.GetString("anthropic.model")
	default:
		cfg.APIKey = viper.GetString("gemini.api_key")
		if cfg.APIKey == "" {
			cfg.APIKey = os.Getenv("GEMINI_API_KEY")
		}
		cfg.Model = viper.GetString("gemini.model")
	}
	return cfg
}

// newGateway creates the model gateway, or returns nil if no API key is configured.
func newGateway(ctx context.Context) (llm.Gateway, error) {
	cfg := gatewayConfig()
	if cfg.APIKey == "" {
		logger.Warn("no model API key configured, review submissions will fail",
			zap.String("provider", cfg.Provider))
		return nil, nil
	}
	gw, err := llm.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create model gateway: %w", err)
	}
	return gw, nil
}

// newVerifier creates the identity verifier selected by auth.mode.
func newVerifier(ctx context.Context) (auth.Verifier, error) {
	creds := viper.GetString("firebase.credentials")
	if creds == "" {
		creds = os.Getenv("FIREBASE_CONFIG")
	}
	return auth.New(ctx, auth.Config{
		Mode:            viper.GetString("auth.mode"),
		Credentials:     creds,
		CredentialsFile: viper.GetString("firebase.credentials_file"),
		StubUID:         viper.GetString("auth.stub_uid"),
		StubEmail:       viper.GetString("auth.stub_email"),
	}, logger)
}

// newReviewService wires the store and model gateway into the review pipeline.
func newReviewService(ctx context.Context) (*review.Service, error) {
	s, err := getStore()
	if err != nil {
		return nil, err
	}
	gw, err := newGateway(ctx)
	if err != nil {
		return nil, err
	}
	return review.NewService(gw, s, logger), nil
}
