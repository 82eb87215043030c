package trigger

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// ErrNotFound is returned when a trigger ID does not exist in a store.
var ErrNotFound = errors.New("trigger not found")

// TriggerStore manages trigger persistence and retrieval.
type TriggerStore interface {
	Add(t *EventTrigger) error
	Get(id string) (*EventTrigger, error)

	// ListActiveForEvent returns active triggers listening for the
	// event type, platform-wide plus the given tenant's.
	ListActiveForEvent(eventType string, tenantID *string) ([]*EventTrigger, error)

	// List returns every trigger, active or not.
	List() ([]*EventTrigger, error)

	Update(t *EventTrigger) error
	Delete(id string) error
}

// ExecutionLog is the append-only record of trigger firings.
type ExecutionLog interface {
	Append(exec *TriggerExecution) error
	Recent(triggerID string, limit int) ([]*TriggerExecution, error)
}

// InMemoryTriggerStore implements TriggerStore with a mutex-guarded
// map.
type InMemoryTriggerStore struct {
	triggers map[string]*EventTrigger
	mu       sync.RWMutex
}

func NewInMemoryTriggerStore() *InMemoryTriggerStore {
	return &InMemoryTriggerStore{triggers: make(map[string]*EventTrigger)}
}

func (s *InMemoryTriggerStore) Add(t *EventTrigger) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.triggers[t.ID]; exists {
		return fmt.Errorf("trigger with ID %s already exists", t.ID)
	}

	now := time.Now()
	t.CreatedAt = now
	t.UpdatedAt = now
	s.triggers[t.ID] = t
	return nil
}

func (s *InMemoryTriggerStore) Get(id string) (*EventTrigger, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, exists := s.triggers[id]
	if !exists {
		return nil, fmt.Errorf("trigger %s: %w", id, ErrNotFound)
	}
	return t, nil
}

func (s *InMemoryTriggerStore) ListActiveForEvent(eventType string, tenantID *string) ([]*EventTrigger, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*EventTrigger
	for _, t := range s.triggers {
		if !t.Active || t.EventType != eventType {
			continue
		}
		if t.TenantID != nil {
			if tenantID == nil || *t.TenantID != *tenantID {
				continue
			}
		}
		out = append(out, t)
	}
	return out, nil
}

func (s *InMemoryTriggerStore) List() ([]*EventTrigger, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*EventTrigger, 0, len(s.triggers))
	for _, t := range s.triggers {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (s *InMemoryTriggerStore) Update(t *EventTrigger) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.triggers[t.ID]
	if !exists {
		return fmt.Errorf("trigger %s: %w", t.ID, ErrNotFound)
	}

	t.CreatedAt = existing.CreatedAt
	t.UpdatedAt = time.Now()
	s.triggers[t.ID] = t
	return nil
}

func (s *InMemoryTriggerStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.triggers[id]; !exists {
		return fmt.Errorf("trigger %s: %w", id, ErrNotFound)
	}
	delete(s.triggers, id)
	return nil
}

// InMemoryExecutionLog keeps firing records in order of arrival.
type InMemoryExecutionLog struct {
	entries []*TriggerExecution
	mu      sync.RWMutex
}

func NewInMemoryExecutionLog() *InMemoryExecutionLog {
	return &InMemoryExecutionLog{}
}

func (l *InMemoryExecutionLog) Append(exec *TriggerExecution) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, exec)
	return nil
}

// Recent returns up to limit firings for one trigger, newest first.
// An empty triggerID matches all triggers.
func (l *InMemoryExecutionLog) Recent(triggerID string, limit int) ([]*TriggerExecution, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []*TriggerExecution
	for i := len(l.entries) - 1; i >= 0 && len(out) < limit; i-- {
		e := l.entries[i]
		if triggerID != "" && e.TriggerID != triggerID {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}
