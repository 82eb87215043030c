package scoring

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// ScoreType names one of the four composite scores.
type ScoreType string

const (
	TypePCI        ScoreType = "pci"
	TypeEngagement ScoreType = "engagement"
	TypeMotivation ScoreType = "motivation"
	TypeConfidence ScoreType = "evidence_confidence"
)

// ErrNoScore is returned when no score has been recorded yet for an
// entity.
var ErrNoScore = errors.New("no score recorded")

// ScoreRecord is one append-only score row.
type ScoreRecord struct {
	ID            string
	TenantID      *string
	EntityType    string
	EntityID      string
	ScoreType     ScoreType
	Score         int
	Band          string
	BreakdownJSON string
	PreviousScore *int
	ScoreChange   *int
	CalculatedAt  time.Time
}

// ScoreStore persists score history. Rows are append-only.
type ScoreStore interface {
	Append(rec *ScoreRecord) error
	Latest(entityType, entityID string, scoreType ScoreType) (*ScoreRecord, error)
	History(entityType, entityID string, scoreType ScoreType, since time.Time) ([]*ScoreRecord, error)
}

// InMemoryScoreStore implements ScoreStore with a mutex-guarded slice.
type InMemoryScoreStore struct {
	records []*ScoreRecord
	mu      sync.RWMutex
}

func NewInMemoryScoreStore() *InMemoryScoreStore {
	return &InMemoryScoreStore{}
}

func (s *InMemoryScoreStore) Append(rec *ScoreRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

func (s *InMemoryScoreStore) Latest(entityType, entityID string, scoreType ScoreType) (*ScoreRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := len(s.records) - 1; i >= 0; i-- {
		r := s.records[i]
		if r.EntityType == entityType && r.EntityID == entityID && r.ScoreType == scoreType {
			return r, nil
		}
	}
	return nil, ErrNoScore
}

func (s *InMemoryScoreStore) History(entityType, entityID string, scoreType ScoreType, since time.Time) ([]*ScoreRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*ScoreRecord
	for i := len(s.records) - 1; i >= 0; i-- {
		r := s.records[i]
		if r.EntityType != entityType || r.EntityID != entityID || r.ScoreType != scoreType {
			continue
		}
		if r.CalculatedAt.Before(since) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

// EntityRef identifies one entity for a batch rescan.
type EntityRef struct {
	TenantID   *string
	EntityType string
	EntityID   string
}

// Service coordinates score recomputation: it resolves the previous
// score, runs the pure scorer, and appends the record. Concurrent
// recomputation requests for the same (entityType, entityID,
// scoreType) collapse into a single in-flight computation.
type Service struct {
	store   ScoreStore
	logger  *slog.Logger
	workers int
	group   singleflight.Group
}

// NewService creates a scoring service. workers bounds batch rescan
// parallelism; values below 1 default to 4.
func NewService(store ScoreStore, logger *slog.Logger, workers int) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if workers < 1 {
		workers = 4
	}
	return &Service{store: store, logger: logger, workers: workers}
}

func flightKey(ref EntityRef, scoreType ScoreType) string {
	return ref.EntityType + "|" + ref.EntityID + "|" + string(scoreType)
}

// recompute funnels one score calculation through singleflight and
// appends the resulting record.
func (s *Service) recompute(ref EntityRef, scoreType ScoreType, compute func(previous *ScoreRecord) (*ScoreRecord, error)) (*ScoreRecord, error) {
	v, err, _ := s.group.Do(flightKey(ref, scoreType), func() (any, error) {
		previous, err := s.store.Latest(ref.EntityType, ref.EntityID, scoreType)
		if err != nil && !errors.Is(err, ErrNoScore) {
			return nil, fmt.Errorf("failed to load previous score: %w", err)
		}

		rec, err := compute(previous)
		if err != nil {
			return nil, err
		}

		rec.ID = uuid.New().String()
		rec.TenantID = ref.TenantID
		rec.EntityType = ref.EntityType
		rec.EntityID = ref.EntityID
		rec.ScoreType = scoreType

		if err := s.store.Append(rec); err != nil {
			return nil, fmt.Errorf("failed to append score: %w", err)
		}

		s.logger.Info("score recorded",
			"score_type", string(scoreType),
			"entity_type", ref.EntityType,
			"entity_id", ref.EntityID,
			"score", rec.Score,
			"band", rec.Band)

		return rec, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*ScoreRecord), nil
}

// ComputePCI scores the Progress Certainty Index for one entity and
// records it. in.PreviousScore is resolved from the store.
func (s *Service) ComputePCI(ctx context.Context, ref EntityRef, in PCIInputs) (*ScoreRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.recompute(ref, TypePCI, func(previous *ScoreRecord) (*ScoreRecord, error) {
		if previous != nil {
			in.PreviousScore = &previous.Score
		}
		if in.Now.IsZero() {
			in.Now = time.Now()
		}
		result := ScorePCI(in)
		return buildRecord(result.Score, string(result.RiskBand), result, in.Now, result.PreviousScore, result.ScoreChange)
	})
}

// ComputeEngagement scores engagement for one entity and records it.
func (s *Service) ComputeEngagement(ctx context.Context, ref EntityRef, in EngagementInputs) (*ScoreRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.recompute(ref, TypeEngagement, func(previous *ScoreRecord) (*ScoreRecord, error) {
		if previous != nil {
			in.PreviousScore = &previous.Score
		}
		result := ScoreEngagement(in)
		return buildRecord(result.Score, string(result.State), result, time.Now(), result.PreviousScore, result.ScoreChange)
	})
}

// ComputeMotivation scores motivation for one entity and records it.
func (s *Service) ComputeMotivation(ctx context.Context, ref EntityRef, in MotivationInputs) (*ScoreRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.recompute(ref, TypeMotivation, func(previous *ScoreRecord) (*ScoreRecord, error) {
		if previous != nil {
			in.PreviousScore = &previous.Score
		}
		result := ScoreMotivation(in)
		return buildRecord(result.Score, string(result.Level), result, time.Now(), result.PreviousScore, result.ScoreChange)
	})
}

// ComputeConfidence scores evidence confidence for one entity and
// records it.
func (s *Service) ComputeConfidence(ctx context.Context, ref EntityRef, in ConfidenceInputs) (*ScoreRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.recompute(ref, TypeConfidence, func(previous *ScoreRecord) (*ScoreRecord, error) {
		if previous != nil {
			in.PreviousScore = &previous.Score
		}
		result := ScoreConfidence(in)
		return buildRecord(result.Score, string(result.Level), result, time.Now(), result.PreviousScore, result.ScoreChange)
	})
}

func buildRecord(score int, band string, breakdown any, calculatedAt time.Time, previous, change *int) (*ScoreRecord, error) {
	data, err := json.Marshal(breakdown)
	if err != nil {
		return nil, fmt.Errorf("failed to encode score breakdown: %w", err)
	}
	return &ScoreRecord{
		Score:         score,
		Band:          band,
		BreakdownJSON: string(data),
		PreviousScore: previous,
		ScoreChange:   change,
		CalculatedAt:  calculatedAt,
	}, nil
}

// Latest returns the most recent score of one type for an entity.
func (s *Service) Latest(ref EntityRef, scoreType ScoreType) (*ScoreRecord, error) {
	return s.store.Latest(ref.EntityType, ref.EntityID, scoreType)
}

// History returns score rows for the last `days` days, newest first.
func (s *Service) History(ref EntityRef, scoreType ScoreType, days int) ([]*ScoreRecord, error) {
	since := time.Now().AddDate(0, 0, -days)
	return s.store.History(ref.EntityType, ref.EntityID, scoreType, since)
}

// Rescan runs fn for every entity on a bounded worker pool.
// Cancellation is cooperative: no new entity starts after ctx is done,
// and each entity's score write is independent, so a cancelled rescan
// leaves earlier writes intact.
func (s *Service) Rescan(ctx context.Context, refs []EntityRef, fn func(ctx context.Context, ref EntityRef) error) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)

	for _, ref := range refs {
		ref := ref
		if err := ctx.Err(); err != nil {
			break
		}
		g.Go(func() error {
			if err := fn(ctx, ref); err != nil {
				return fmt.Errorf("rescan %s/%s: %w", ref.EntityType, ref.EntityID, err)
			}
			return nil
		})
	}

	return g.Wait()
}
