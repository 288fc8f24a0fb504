package llm

import (
	"context"
	"fmt"
	"os"
	"sync"
)

// Call records one request seen by a MockProvider.
type Call struct {
	Prompt       string
	SystemPrompt string
	Options      Options
}

// MockProvider replays scripted replies. Replies are returned in order and the
// last one repeats; Err, when set, is returned instead. ResponseFile, when
// set and Replies is empty, is read on every call.
type MockProvider struct {
	Replies      []string
	Err          error
	ResponseFile string
	// Hook, when set, runs before the reply is chosen and may block.
	Hook func(ctx context.Context) error

	mu    sync.Mutex
	calls []Call
	next  int
}

var _ Provider = (*MockProvider)(nil)

func (p *MockProvider) GenerateResponse(ctx context.Context, prompt string, systemPrompt string, opts Options) (string, error) {
	p.mu.Lock()
	p.calls = append(p.calls, Call{Prompt: prompt, SystemPrompt: systemPrompt, Options: opts})
	p.mu.Unlock()

	if p.Hook != nil {
		if err := p.Hook(ctx); err != nil {
			return "", err
		}
	}
	if p.Err != nil {
		return "", p.Err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.Replies) == 0 {
		if p.ResponseFile == "" {
			return "", fmt.Errorf("MOCK_NO_REPLY: no scripted reply configured")
		}
		b, err := os.ReadFile(p.ResponseFile)
		if err != nil {
			return "", fmt.Errorf("MOCK_READ_ERROR: %w", err)
		}
		return string(b), nil
	}
	reply := p.Replies[p.next]
	if p.next < len(p.Replies)-1 {
		p.next++
	}
	return reply, nil
}

// Calls returns a copy of the recorded requests.
func (p *MockProvider) Calls() []Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Call(nil), p.calls...)
}

func (p *MockProvider) AdaptInstructions(raw string) string {
	return raw
}
