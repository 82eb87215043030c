package rules

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrNotFound is returned when a rule ID does not exist in a store.
var ErrNotFound = errors.New("rule not found")

// RuleStore manages rule persistence and retrieval.
type RuleStore interface {
	// Add a new rule; rule IDs are unique.
	Add(rule *Rule) error

	// Get a rule by ID.
	Get(id string) (*Rule, error)

	// ListActive returns all active rules, platform-wide and
	// tenant-scoped alike; the selector narrows them per event.
	ListActive() ([]*Rule, error)

	// Update an existing rule.
	Update(rule *Rule) error

	// Delete a rule.
	Delete(id string) error
}

// ExecutionLog is the append-only record of rule evaluations. Rows are
// never updated or deleted: audit immutability.
type ExecutionLog interface {
	Append(exec *RuleExecution) error
	Recent(tenantID *string, limit int) ([]*RuleExecution, error)
}

// InMemoryRuleStore implements RuleStore with a mutex-guarded map.
// Suitable for tests and embedded single-process use.
type InMemoryRuleStore struct {
	rules map[string]*Rule
	mu    sync.RWMutex
}

func NewInMemoryRuleStore() *InMemoryRuleStore {
	return &InMemoryRuleStore{rules: make(map[string]*Rule)}
}

func (s *InMemoryRuleStore) Add(rule *Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.rules[rule.ID]; exists {
		return fmt.Errorf("rule with ID %s already exists", rule.ID)
	}

	now := time.Now()
	rule.CreatedAt = now
	rule.UpdatedAt = now
	if rule.Version == 0 {
		rule.Version = 1
	}
	s.rules[rule.ID] = rule
	return nil
}

func (s *InMemoryRuleStore) Get(id string) (*Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rule, exists := s.rules[id]
	if !exists {
		return nil, fmt.Errorf("rule %s: %w", id, ErrNotFound)
	}
	return rule, nil
}

func (s *InMemoryRuleStore) ListActive() ([]*Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var active []*Rule
	for _, rule := range s.rules {
		if rule.Active {
			active = append(active, rule)
		}
	}
	return active, nil
}

func (s *InMemoryRuleStore) Update(rule *Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.rules[rule.ID]
	if !exists {
		return fmt.Errorf("rule %s: %w", rule.ID, ErrNotFound)
	}

	rule.CreatedAt = existing.CreatedAt
	rule.UpdatedAt = time.Now()
	rule.Version = existing.Version + 1
	s.rules[rule.ID] = rule
	return nil
}

func (s *InMemoryRuleStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.rules[id]; !exists {
		return fmt.Errorf("rule %s: %w", id, ErrNotFound)
	}
	delete(s.rules, id)
	return nil
}

// InMemoryExecutionLog keeps execution rows in order of arrival.
type InMemoryExecutionLog struct {
	entries []*RuleExecution
	mu      sync.RWMutex
}

func NewInMemoryExecutionLog() *InMemoryExecutionLog {
	return &InMemoryExecutionLog{}
}

func (l *InMemoryExecutionLog) Append(exec *RuleExecution) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, exec)
	return nil
}

// Recent returns up to limit executions, newest first, optionally
// filtered to one tenant.
func (l *InMemoryExecutionLog) Recent(tenantID *string, limit int) ([]*RuleExecution, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []*RuleExecution
	for i := len(l.entries) - 1; i >= 0 && len(out) < limit; i-- {
		e := l.entries[i]
		if tenantID != nil && (e.TenantID == nil || *e.TenantID != *tenantID) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}
