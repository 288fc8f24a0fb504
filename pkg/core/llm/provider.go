package llm

import (
	"context"
	"os"
)

// Provider is the interface for all LLM providers.
type Provider interface {
	GenerateResponse(ctx context.Context, prompt string, systemPrompt string, opts Options) (string, error)
	// AdaptInstructions transforms raw instructions into model-specific formats
	AdaptInstructions(rawInstructions string) string
}

// Options are per-call generation settings.
type Options struct {
	Model       string
	Temperature float64
	MaxTokens   int
	// APIKey overrides the provider's environment variable when set.
	APIKey string
}

// DefaultMaxTokens leaves room for portfolios with several hundred holdings.
const DefaultMaxTokens = 8096

func (o Options) maxTokens() int {
	if o.MaxTokens > 0 {
		return o.MaxTokens
	}
	return DefaultMaxTokens
}

func (o Options) model(fallback string) string {
	if o.Model != "" {
		return o.Model
	}
	return fallback
}

func (o Options) apiKey(envVars ...string) string {
	if o.APIKey != "" {
		return o.APIKey
	}
	for _, name := range envVars {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return ""
}
