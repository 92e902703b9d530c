package refdata

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// DefaultRuleSet is the rule set used when a request names none
const DefaultRuleSet = "default"

// ErrUnknownRuleSet is returned for rule sets that were never loaded
var ErrUnknownRuleSet = errors.New("rule set not loaded")

// Source builds a reference snapshot for a named rule set
type Source interface {
	Load(ctx context.Context, ruleSet string) (*Reference, error)
}

// Manager holds the current snapshot of every loaded rule set.
// Reloading builds a complete new snapshot and swaps it in; analyses already
// holding the previous snapshot keep using it unchanged.
type Manager struct {
	source    Source
	snapshots map[string]*Reference
	mu        sync.RWMutex
}

// NewManager creates a manager backed by source
func NewManager(source Source) *Manager {
	return &Manager{
		source:    source,
		snapshots: make(map[string]*Reference),
	}
}

// Load builds the named rule set and atomically replaces any previous snapshot.
// On error the previous snapshot stays in service.
func (m *Manager) Load(ctx context.Context, ruleSet string) (*Reference, error) {
	ref, err := m.source.Load(ctx, ruleSet)
	if err != nil {
		return nil, fmt.Errorf("failed to load rule set %s: %w", ruleSet, err)
	}

	m.mu.Lock()
	m.snapshots[ruleSet] = ref
	m.mu.Unlock()

	return ref, nil
}

// LoadAll loads every named rule set, stopping at the first failure
func (m *Manager) LoadAll(ctx context.Context, ruleSets ...string) error {
	for _, rs := range ruleSets {
		if _, err := m.Load(ctx, rs); err != nil {
			return err
		}
	}
	return nil
}

// Get returns the current snapshot of a rule set
func (m *Manager) Get(ruleSet string) (*Reference, error) {
	if ruleSet == "" {
		ruleSet = DefaultRuleSet
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	ref, ok := m.snapshots[ruleSet]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRuleSet, ruleSet)
	}
	return ref, nil
}

// RuleSets returns the loaded rule set names in sorted order
func (m *Manager) RuleSets() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.snapshots))
	for name := range m.snapshots {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Remove drops a rule set snapshot. It does not touch the underlying source.
func (m *Manager) Remove(ruleSet string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.snapshots[ruleSet]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownRuleSet, ruleSet)
	}
	delete(m.snapshots, ruleSet)
	return nil
}
