package ledger

import (
	"context"
	"fmt"
	"sync"
)

// Memory is an in-process ledger. The zero value is not usable; call NewMemory.
type Memory struct {
	mu         sync.Mutex
	tokens     map[string]Token
	placements []*Placement
	history    int
}

// NewMemory returns an empty in-process ledger keeping up to DefaultHistory placements.
func NewMemory() *Memory {
	return &Memory{
		tokens:  make(map[string]Token),
		history: DefaultHistory,
	}
}

// SaveToken stores a worker's token.
func (m *Memory) SaveToken(ctx context.Context, worker string, t Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[worker] = t
	return nil
}

// LoadToken returns the stored token for worker.
func (m *Memory) LoadToken(ctx context.Context, worker string) (Token, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[worker]
	return t, ok, nil
}

// RecordPlacement prepends a placement to the journal.
func (m *Memory) RecordPlacement(ctx context.Context, p *Placement) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("invalid placement: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.placements = append([]*Placement{p}, m.placements...)
	if len(m.placements) > m.history {
		m.placements = m.placements[:m.history]
	}
	return nil
}

// RecentPlacements returns up to n entries, newest first.
func (m *Memory) RecentPlacements(ctx context.Context, n int) ([]*Placement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n > len(m.placements) {
		n = len(m.placements)
	}
	if n < 0 {
		n = 0
	}
	out := make([]*Placement, n)
	copy(out, m.placements[:n])
	return out, nil
}
