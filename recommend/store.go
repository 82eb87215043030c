package recommend

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// ErrNotFound is returned when a recommendation does not exist.
var ErrNotFound = errors.New("recommendation not found")

// Store persists recommendations. Status is the only mutable column;
// every change goes through Transition so illegal moves are rejected
// before they reach storage.
type Store interface {
	Add(rec Recommendation) error
	Get(id string) (*Recommendation, error)
	// ListPending returns actionable recommendations for an entity,
	// priority ascending then confidence descending. Rows past their
	// expiry are excluded even if not yet swept.
	ListPending(tenantID *string, entityType, entityID string, now time.Time) ([]Recommendation, error)
	// UpdateStatus applies one lifecycle transition.
	UpdateStatus(id string, to Status, actedBy string, now time.Time) (*Recommendation, error)
	// Sweep marks pending recommendations past their expiry as
	// Expired and reports how many rows it touched.
	Sweep(now time.Time) (int, error)
}

// InMemoryStore is a map-backed Store for tests and single-process use.
type InMemoryStore struct {
	mu   sync.RWMutex
	recs map[string]Recommendation
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{recs: make(map[string]Recommendation)}
}

func (s *InMemoryStore) Add(rec Recommendation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.recs[rec.ID]; ok {
		return fmt.Errorf("recommendation %s already exists", rec.ID)
	}
	s.recs[rec.ID] = rec
	return nil
}

func (s *InMemoryStore) Get(id string) (*Recommendation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.recs[id]
	if !ok {
		return nil, fmt.Errorf("get recommendation %s: %w", id, ErrNotFound)
	}
	return &rec, nil
}

func (s *InMemoryStore) ListPending(tenantID *string, entityType, entityID string, now time.Time) ([]Recommendation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Recommendation
	for _, rec := range s.recs {
		if rec.EntityType != entityType || rec.EntityID != entityID {
			continue
		}
		if !tenantMatches(rec.TenantID, tenantID) {
			continue
		}
		if EffectiveStatus(&rec, now) != StatusPending {
			continue
		}
		out = append(out, rec)
	}
	sortPending(out)
	return out, nil
}

func (s *InMemoryStore) UpdateStatus(id string, to Status, actedBy string, now time.Time) (*Recommendation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.recs[id]
	if !ok {
		return nil, fmt.Errorf("update recommendation %s: %w", id, ErrNotFound)
	}
	if err := Transition(&rec, to, actedBy, now); err != nil {
		return nil, err
	}
	s.recs[id] = rec
	return &rec, nil
}

func (s *InMemoryStore) Sweep(now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	swept := 0
	for id, rec := range s.recs {
		if rec.Status != StatusPending {
			continue
		}
		if rec.ExpiresAt == nil || !rec.ExpiresAt.Before(now) {
			continue
		}
		if err := Transition(&rec, StatusExpired, "", now); err != nil {
			return swept, err
		}
		s.recs[id] = rec
		swept++
	}
	return swept, nil
}

func tenantMatches(recTenant, want *string) bool {
	if want == nil {
		return true
	}
	return recTenant != nil && *recTenant == *want
}

func sortPending(recs []Recommendation) {
	sort.SliceStable(recs, func(i, j int) bool {
		if recs[i].Priority != recs[j].Priority {
			return recs[i].Priority < recs[j].Priority
		}
		return recs[i].Confidence > recs[j].Confidence
	})
}
