package store

import (
	"context"
	"sync"

	"fund_extractor/pkg/models"
)

// Memory is the process-local store. The lock serializes appends and reads.
type Memory struct {
	mu      sync.RWMutex
	results []*models.PortfolioResult
	match   *Matcher
}

func NewMemory(m *Matcher) *Memory {
	if m == nil {
		m = NewMatcher(false, nil)
	}
	return &Memory{match: m}
}

func (s *Memory) Append(_ context.Context, r *models.PortfolioResult) error {
	stamp(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, r)
	return nil
}

func (s *Memory) List(_ context.Context, filter Filter) ([]*models.PortfolioResult, error) {
	s.mu.RLock()
	all := append([]*models.PortfolioResult(nil), s.results...)
	s.mu.RUnlock()
	return s.match.apply(all, filter)
}

func (s *Memory) Close() error { return nil }
