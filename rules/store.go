package rules

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

var (
	// ErrNotFound is returned when a rule ID does not exist in the store
	ErrNotFound = errors.New("rule not found")
	// ErrDuplicate is returned when adding a rule whose ID already exists
	ErrDuplicate = errors.New("rule already exists")
)

// RuleStore manages rule persistence and retrieval
type RuleStore interface {
	// Add a new rule
	Add(rule *Rule) error

	// Get a rule by ID
	Get(id string) (*Rule, error)

	// ListActive returns the active rules of one kind
	ListActive(kind Kind) ([]*Rule, error)

	// Update an existing rule
	Update(rule *Rule) error

	// Delete a rule
	Delete(id string) error
}

// InMemoryRuleStore implements RuleStore using an in-memory map.
// It keeps its own copy of every rule and hands out copies, so callers cannot
// change a stored rule without going through Update.
type InMemoryRuleStore struct {
	rules map[string]*Rule
	mu    sync.RWMutex
}

// NewInMemoryRuleStore creates a new in-memory rule store
func NewInMemoryRuleStore() *InMemoryRuleStore {
	return &InMemoryRuleStore{
		rules: make(map[string]*Rule),
	}
}

// NewInMemoryRuleStoreFrom creates a store pre-loaded with rules
func NewInMemoryRuleStoreFrom(rules []*Rule) (*InMemoryRuleStore, error) {
	s := NewInMemoryRuleStore()
	for _, r := range rules {
		if err := s.Add(r); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Add adds a new rule to the store
func (s *InMemoryRuleStore) Add(rule *Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.rules[rule.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicate, rule.ID)
	}

	now := time.Now()
	rule.CreatedAt = now
	rule.UpdatedAt = now
	if rule.Version == 0 {
		rule.Version = 1
	}
	s.rules[rule.ID] = clone(rule)
	return nil
}

// Get retrieves a rule by ID
func (s *InMemoryRuleStore) Get(id string) (*Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rule, exists := s.rules[id]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return clone(rule), nil
}

// ListActive returns all active rules of a kind ordered by ID
func (s *InMemoryRuleStore) ListActive(kind Kind) ([]*Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var active []*Rule
	for _, rule := range s.rules {
		if rule.Active && rule.Kind == kind {
			active = append(active, clone(rule))
		}
	}
	sort.Slice(active, func(i, j int) bool { return active[i].ID < active[j].ID })
	return active, nil
}

// ListAll returns every rule, active or not, ordered by kind then ID
func (s *InMemoryRuleStore) ListAll() ([]*Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]*Rule, 0, len(s.rules))
	for _, rule := range s.rules {
		all = append(all, clone(rule))
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].Kind != all[j].Kind {
			return all[i].Kind < all[j].Kind
		}
		return all[i].ID < all[j].ID
	})
	return all, nil
}

// Update replaces an existing rule and bumps its version
func (s *InMemoryRuleStore) Update(rule *Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.rules[rule.ID]
	if !exists {
		return fmt.Errorf("%w: %s", ErrNotFound, rule.ID)
	}

	rule.CreatedAt = existing.CreatedAt
	rule.UpdatedAt = time.Now()
	rule.Version = existing.Version + 1
	s.rules[rule.ID] = clone(rule)
	return nil
}

// Delete removes a rule from the store
func (s *InMemoryRuleStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.rules[id]; !exists {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	delete(s.rules, id)
	return nil
}

func clone(r *Rule) *Rule {
	cp := *r
	cp.Fields = append([]string(nil), r.Fields...)
	cp.Requires = append([]string(nil), r.Requires...)
	return &cp
}
