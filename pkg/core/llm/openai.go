package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// OpenAICompatibleProvider talks to any chat-completions endpoint that follows
// the OpenAI wire format (DeepSeek, DashScope compatible mode, vLLM, ...).
type OpenAICompatibleProvider struct {
	Name      string // used in error codes, e.g. "deepseek"
	BaseURL   string // e.g. "https://api.deepseek.com"
	APIKeyEnv string // e.g. "DEEPSEEK_API_KEY"
	Model     string
	Client    *http.Client
}

var _ Provider = (*OpenAICompatibleProvider)(nil)

// NewDeepSeekProvider returns a provider for the DeepSeek chat API.
func NewDeepSeekProvider() *OpenAICompatibleProvider {
	return &OpenAICompatibleProvider{
		Name:      "deepseek",
		BaseURL:   "https://api.deepseek.com",
		APIKeyEnv: "DEEPSEEK_API_KEY",
		Model:     "deepseek-chat",
	}
}

// ChatRequest is the chat-completions request body.
type ChatRequest struct {
	Messages       []Message      `json:"messages"`
	Model          string         `json:"model"`
	MaxTokens      int            `json:"max_tokens"`
	ResponseFormat ResponseFormat `json:"response_format"`
	Stream         bool           `json:"stream"`
	Temperature    float64        `json:"temperature"`
}

type Message struct {
	Content string `json:"content"`
	Role    string `json:"role"`
}

type ResponseFormat struct {
	Type string `json:"type"`
}

type ChatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (p *OpenAICompatibleProvider) code(suffix string) string {
	return strings.ToUpper(p.Name) + "_" + suffix
}

func (p *OpenAICompatibleProvider) GenerateResponse(ctx context.Context, prompt string, systemPrompt string, opts Options) (string, error) {
	apiKey := opts.apiKey(p.APIKeyEnv)
	if apiKey == "" {
		return "", fmt.Errorf("%s: Please set %s env var", p.code("API_KEY_MISSING"), p.APIKeyEnv)
	}

	var messages []Message
	if systemPrompt != "" {
		messages = append(messages, Message{Content: systemPrompt, Role: "system"})
	}
	messages = append(messages, Message{Content: prompt, Role: "user"})

	reqBody := ChatRequest{
		Messages:       messages,
		Model:          opts.model(p.Model),
		MaxTokens:      opts.maxTokens(),
		ResponseFormat: ResponseFormat{Type: "text"},
		Stream:         false,
		Temperature:    opts.Temperature,
	}

	jsonBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("%s: %v", p.code("MARSHAL_ERROR"), err)
	}

	url := strings.TrimRight(p.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBytes))
	if err != nil {
		return "", fmt.Errorf("%s: %v", p.code("REQ_CREATE_ERROR"), err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	res, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%s: %w", p.code("API_CALL_ERROR"), err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return "", fmt.Errorf("%s: %v", p.code("READ_BODY_ERROR"), err)
	}

	if res.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%s: status=%d found=%s", p.code("API_ERROR"), res.StatusCode, string(body))
	}

	var response ChatResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return "", fmt.Errorf("%s: %v", p.code("UNMARSHAL_ERROR"), err)
	}

	if len(response.Choices) == 0 {
		return "", fmt.Errorf("%s: %s", p.code("NO_CHOICES"), string(body))
	}

	return response.Choices[0].Message.Content, nil
}

func (p *OpenAICompatibleProvider) AdaptInstructions(raw string) string {
	return raw
}
