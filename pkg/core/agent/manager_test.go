package agent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fund_extractor/pkg/core/errs"
	"fund_extractor/pkg/core/llm"
)

func newMockManager(t *testing.T, limits Limits) (*Manager, *llm.MockProvider) {
	t.Helper()
	cfg := Config{
		ActiveProvider: "mock",
		Providers: map[string]ProviderConfig{
			"mock":      {Kind: "mock", Model: "scripted", MaxTokens: 1234},
			"anthropic": {Kind: "anthropic"},
		},
	}
	m, err := NewManager(cfg, limits, nil)
	require.NoError(t, err)
	mock := &llm.MockProvider{Replies: []string{`{"ok": true}`}}
	m.Register("mock", mock)
	return m, mock
}

func TestCompleteUsesActiveProvider(t *testing.T) {
	m, mock := newMockManager(t, Limits{})

	out, err := m.Complete(context.Background(), Extraction, "prompt", "system")
	require.NoError(t, err)
	assert.Equal(t, `{"ok": true}`, out)

	calls := mock.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "prompt", calls[0].Prompt)
	assert.Equal(t, "system", calls[0].SystemPrompt)
	assert.Equal(t, llm.Options{Model: "scripted", MaxTokens: 1234}, calls[0].Options)
}

func TestCompleteWrapsFailures(t *testing.T) {
	m, mock := newMockManager(t, Limits{})
	cause := errors.New("connection refused")
	mock.Err = cause

	_, err := m.Complete(context.Background(), Extraction, "p", "s")
	require.Error(t, err)
	assert.Equal(t, errs.RemoteCallError, errs.KindOf(err))
	assert.ErrorIs(t, err, cause)
}

func TestCompleteRejectsEmptyReply(t *testing.T) {
	m, _ := newMockManager(t, Limits{})
	m.Register("mock", &llm.MockProvider{Replies: []string{"  \n"}})

	_, err := m.Complete(context.Background(), Extraction, "p", "s")
	assert.True(t, errs.IsKind(err, errs.RemoteCallError))
}

func TestCompleteTimeout(t *testing.T) {
	m, mock := newMockManager(t, Limits{Timeout: 20 * time.Millisecond})
	mock.Hook = func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}

	_, err := m.Complete(context.Background(), Extraction, "p", "s")
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.RemoteCallError))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCompleteRateLimitHonoursContext(t *testing.T) {
	m, _ := newMockManager(t, Limits{RequestsPerMinute: 1, Burst: 1})

	_, err := m.Complete(context.Background(), Extraction, "p", "s")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = m.Complete(ctx, Extraction, "p", "s")
	assert.True(t, errs.IsKind(err, errs.RemoteCallError))
}

func TestAgentOverrideAndSwitch(t *testing.T) {
	m, _ := newMockManager(t, Limits{})
	m.config.Agents = map[string]AgentConfig{"review": {Provider: "anthropic"}}

	name, _ := m.GetProvider("review")
	assert.Equal(t, "anthropic", name)
	name, _ = m.GetProvider(Extraction)
	assert.Equal(t, "mock", name)

	require.NoError(t, m.SetGlobalProvider("anthropic"))
	assert.Equal(t, "anthropic", m.GetActiveProvider())
	assert.Error(t, m.SetGlobalProvider("nope"))
	assert.Equal(t, []string{"anthropic", "mock"}, m.ProviderNames())
}

func TestUnknownProvider(t *testing.T) {
	_, err := NewManager(Config{Providers: map[string]ProviderConfig{"x": {Kind: "teletype"}}}, Limits{}, nil)
	assert.Error(t, err)

	m, err := NewManager(Config{ActiveProvider: "missing"}, Limits{}, nil)
	require.NoError(t, err)
	_, err = m.Complete(context.Background(), Extraction, "p", "s")
	assert.True(t, errs.IsKind(err, errs.RemoteCallError))
}
