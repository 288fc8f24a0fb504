package llm

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicProvider calls the Messages API.
type AnthropicProvider struct {
	Model   string // e.g. "claude-3-opus-20240229"
	BaseURL string // empty uses the public endpoint
}

var _ Provider = (*AnthropicProvider)(nil)

// GenerateResponse returns the first text block of the reply. Retries are
// disabled; a failed call is reported to the caller as is.
func (p *AnthropicProvider) GenerateResponse(ctx context.Context, prompt string, systemPrompt string, opts Options) (string, error) {
	apiKey := opts.apiKey("ANTHROPIC_API_KEY")
	if apiKey == "" {
		return "", fmt.Errorf("ANTHROPIC_API_KEY environment variable not set")
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(0)}
	if p.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(p.BaseURL))
	}
	client := anthropic.NewClient(reqOpts...)

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(opts.model(p.defaultModel())),
		MaxTokens:   int64(opts.maxTokens()),
		Temperature: anthropic.Float(opts.Temperature),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: systemPrompt}}
	}

	msg, err := client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anthropic generation failed: %w", err)
	}

	for _, block := range msg.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", fmt.Errorf("anthropic reply %s has no text content", msg.ID)
}

func (p *AnthropicProvider) defaultModel() string {
	if p.Model != "" {
		return p.Model
	}
	return "claude-3-opus-20240229"
}

func (p *AnthropicProvider) AdaptInstructions(raw string) string {
	return raw
}
