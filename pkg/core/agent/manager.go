// Package agent routes completion requests to the configured LLM provider.
package agent

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"fund_extractor/pkg/core/errs"
	"fund_extractor/pkg/core/llm"
)

// Extraction is the agent type used by the portfolio pipeline.
const Extraction = "extraction"

// Config is the provider routing document (config/models.yaml).
type Config struct {
	ActiveProvider string                    `yaml:"active_provider"`
	Agents         map[string]AgentConfig    `yaml:"agents"`
	Providers      map[string]ProviderConfig `yaml:"providers"`
}

type AgentConfig struct {
	Provider    string `yaml:"provider"` // Optional override
	Description string `yaml:"description"`
}

// ProviderConfig describes one named provider.
type ProviderConfig struct {
	Kind         string `yaml:"kind"` // anthropic, gemini, openai, mock
	Model        string `yaml:"model"`
	MaxTokens    int    `yaml:"max_tokens"`
	BaseURL      string `yaml:"base_url"`
	APIKeyEnv    string `yaml:"api_key_env"`
	ResponseFile string `yaml:"response_file"` // mock only
}

// Limits bound every outgoing call.
type Limits struct {
	// RequestsPerMinute caps call starts; 0 means unlimited.
	RequestsPerMinute float64
	Burst             int
	// Timeout wraps each call; 0 means the call runs until it finishes.
	Timeout time.Duration
}

// DefaultConfig routes everything to Anthropic.
func DefaultConfig() Config {
	return Config{
		ActiveProvider: "anthropic",
		Providers: map[string]ProviderConfig{
			"anthropic": {Kind: "anthropic", Model: "claude-3-opus-20240229", MaxTokens: llm.DefaultMaxTokens},
		},
	}
}

type Manager struct {
	mu        sync.RWMutex
	config    Config
	providers map[string]llm.Provider
	limiter   *rate.Limiter
	timeout   time.Duration
	logger    *zap.Logger
}

// NewManager builds a provider for every entry in config.Providers.
func NewManager(config Config, limits Limits, logger *zap.Logger) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{
		config:    config,
		providers: make(map[string]llm.Provider, len(config.Providers)),
		timeout:   limits.Timeout,
		logger:    logger,
	}
	if limits.RequestsPerMinute > 0 {
		burst := limits.Burst
		if burst < 1 {
			burst = 1
		}
		m.limiter = rate.NewLimiter(rate.Limit(limits.RequestsPerMinute/60), burst)
	}

	for name, pc := range config.Providers {
		p, err := buildProvider(name, pc)
		if err != nil {
			return nil, err
		}
		m.providers[name] = p
	}
	return m, nil
}

func buildProvider(name string, pc ProviderConfig) (llm.Provider, error) {
	kind := pc.Kind
	if kind == "" {
		kind = name
	}
	switch kind {
	case "anthropic":
		return &llm.AnthropicProvider{Model: pc.Model, BaseURL: pc.BaseURL}, nil
	case "gemini":
		return &llm.GeminiProvider{Model: pc.Model, BaseURL: pc.BaseURL}, nil
	case "deepseek":
		p := llm.NewDeepSeekProvider()
		if pc.Model != "" {
			p.Model = pc.Model
		}
		if pc.BaseURL != "" {
			p.BaseURL = pc.BaseURL
		}
		if pc.APIKeyEnv != "" {
			p.APIKeyEnv = pc.APIKeyEnv
		}
		return p, nil
	case "openai":
		if pc.BaseURL == "" {
			return nil, fmt.Errorf("provider %s: base_url is required for openai-compatible endpoints", name)
		}
		env := pc.APIKeyEnv
		if env == "" {
			env = strings.ToUpper(name) + "_API_KEY"
		}
		return &llm.OpenAICompatibleProvider{Name: name, BaseURL: pc.BaseURL, APIKeyEnv: env, Model: pc.Model}, nil
	case "mock":
		return &llm.MockProvider{ResponseFile: pc.ResponseFile}, nil
	default:
		return nil, fmt.Errorf("provider %s: unknown kind %q", name, kind)
	}
}

// Register adds or replaces a provider instance under name.
func (m *Manager) Register(name string, p llm.Provider) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.providers[name] = p
}

// GetProvider resolves the provider for agentType: agent override first, then
// the active provider.
func (m *Manager) GetProvider(agentType string) (string, llm.Provider) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	// 1. Check for agent-specific override
	if agentConfig, ok := m.config.Agents[agentType]; ok && agentConfig.Provider != "" {
		if p, ok := m.providers[agentConfig.Provider]; ok {
			return agentConfig.Provider, p
		}
	}

	// 2. Use global active provider
	if p, ok := m.providers[m.config.ActiveProvider]; ok {
		return m.config.ActiveProvider, p
	}
	return m.config.ActiveProvider, nil
}

// GetProviderByName retrieves a provider instance by its specific name (e.g. "deepseek", "gemini")
func (m *Manager) GetProviderByName(name string) llm.Provider {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.providers[name]
}

// Complete sends one prompt for agentType and returns the raw reply text.
// Every failure, including an empty reply, is a RemoteCallError.
func (m *Manager) Complete(ctx context.Context, agentType, prompt, systemPrompt string) (string, error) {
	name, provider := m.GetProvider(agentType)
	if provider == nil {
		return "", errs.New(errs.RemoteCallError, "provider %s not found", name)
	}
	opts := m.optionsFor(name)

	if m.limiter != nil {
		if err := m.limiter.Wait(ctx); err != nil {
			return "", errs.Wrap(errs.RemoteCallError, err, "rate limiter for %s", name)
		}
	}
	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	m.logger.Info("Sending request to LLM provider",
		zap.String("agent", agentType), zap.String("provider", name),
		zap.String("model", opts.Model), zap.Int("prompt_length", len(prompt)))

	start := time.Now()
	adaptedSystemPrompt := provider.AdaptInstructions(systemPrompt)
	reply, err := provider.GenerateResponse(ctx, prompt, adaptedSystemPrompt, opts)
	if err != nil {
		return "", errs.Wrap(errs.RemoteCallError, err, "completion via %s failed", name)
	}
	if strings.TrimSpace(reply) == "" {
		return "", errs.New(errs.RemoteCallError, "empty response from %s", name)
	}

	m.logger.Info("Received response from LLM provider",
		zap.String("provider", name), zap.Int("response_length", len(reply)),
		zap.Duration("elapsed", time.Since(start)))
	return reply, nil
}

// optionsFor builds call options. Temperature is always zero.
func (m *Manager) optionsFor(name string) llm.Options {
	m.mu.RLock()
	pc := m.config.Providers[name]
	m.mu.RUnlock()

	opts := llm.Options{Model: pc.Model, MaxTokens: pc.MaxTokens, Temperature: 0}
	if opts.MaxTokens == 0 {
		opts.MaxTokens = llm.DefaultMaxTokens
	}
	return opts
}

func (m *Manager) SetGlobalProvider(newProvider string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.providers[newProvider]; !ok {
		return fmt.Errorf("provider %s not found", newProvider)
	}
	m.config.ActiveProvider = newProvider
	m.logger.Info("Global provider set", zap.String("provider", newProvider))
	return nil
}

func (m *Manager) GetActiveProvider() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config.ActiveProvider
}

// ProviderNames lists the registered providers in sorted order.
func (m *Manager) ProviderNames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.providers))
	for name := range m.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
