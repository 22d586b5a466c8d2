package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"SigTrail/internal/domain/models"
	drepo "SigTrail/internal/domain/repository"
)

// MemorySignalStore keeps the canonical signal records in process memory.
// All transitions happen under one mutex, which makes the per-id
// compare-and-swap on state trivially atomic. Callers always receive copies.
type MemorySignalStore struct {
	mu      sync.RWMutex
	signals map[string]models.Signal
}

// NewMemorySignalStore creates an empty store.
func NewMemorySignalStore() *MemorySignalStore {
	return &MemorySignalStore{signals: make(map[string]models.Signal)}
}

func (m *MemorySignalStore) Track(ctx context.Context, s *models.Signal) (string, error) {
	if s == nil {
		return "", &models.ValidationError{Reason: "signal is nil"}
	}
	probe := *s
	if probe.CreatedAt.IsZero() {
		probe.CreatedAt = time.Now().UTC()
	}
	probe.CreatedAt = probe.CreatedAt.UTC()
	probe.Symbol = strings.ToUpper(probe.Symbol)
	probe.State = models.StatePending
	probe.Outcome = models.OutcomeNone
	probe.ActualReturn = 0
	probe.EvaluatedAt = time.Time{}
	if err := probe.Validate(); err != nil {
		return "", err
	}

	probe.ID = uuid.NewString()

	m.mu.Lock()
	m.signals[probe.ID] = probe
	m.mu.Unlock()
	return probe.ID, nil
}

func (m *MemorySignalStore) Get(ctx context.Context, id string) (models.Signal, error) {
	m.mu.RLock()
	s, ok := m.signals[id]
	m.mu.RUnlock()
	if !ok {
		return models.Signal{}, fmt.Errorf("signal %s: %w", id, models.ErrNotFound)
	}
	return s, nil
}

func (m *MemorySignalStore) List(ctx context.Context, f drepo.SignalFilter) ([]models.Signal, error) {
	m.mu.RLock()
	out := make([]models.Signal, 0, len(m.signals))
	for _, s := range m.signals {
		if f.Symbol != "" && !strings.EqualFold(s.Symbol, f.Symbol) {
			continue
		}
		if f.Timeframe != "" && s.Timeframe != f.Timeframe {
			continue
		}
		if f.State != "" && s.State != f.State {
			continue
		}
		if !f.CreatedAfter.IsZero() && !s.CreatedAt.After(f.CreatedAfter) {
			continue
		}
		out = append(out, s)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *MemorySignalStore) ListEligible(ctx context.Context, createdBefore time.Time, limit int) ([]models.Signal, error) {
	m.mu.RLock()
	out := make([]models.Signal, 0)
	for _, s := range m.signals {
		if s.IsTerminal() {
			continue
		}
		if !s.CreatedAt.Before(createdBefore) {
			continue
		}
		out = append(out, s)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemorySignalStore) MarkExecuted(ctx context.Context, id string, executionPrice float64, source string) (models.Signal, error) {
	if executionPrice <= 0 {
		return models.Signal{}, &models.ValidationError{Field: "execution_price", Reason: "must be positive"}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.signals[id]
	if !ok {
		return models.Signal{}, fmt.Errorf("signal %s: %w", id, models.ErrNotFound)
	}
	if s.IsTerminal() {
		return models.Signal{}, fmt.Errorf("signal %s in state %s: %w", id, s.State, models.ErrAlreadyEvaluated)
	}
	if s.State != models.StatePending {
		return models.Signal{}, fmt.Errorf("signal %s in state %s: %w", id, s.State, models.ErrInvalidTransition)
	}

	s.State = models.StateExecuted
	s.ExecutionPrice = executionPrice
	s.ExecutionSource = source
	m.signals[id] = s
	return s, nil
}

func (m *MemorySignalStore) TransitionToEvaluated(ctx context.Context, id string, outcome models.Outcome, actualReturn float64, evaluatedAt time.Time) (models.Signal, error) {
	if outcome == models.OutcomeNone {
		return models.Signal{}, &models.ValidationError{Field: "outcome", Reason: "terminal transition requires a concrete outcome"}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.signals[id]
	if !ok {
		return models.Signal{}, fmt.Errorf("signal %s: %w", id, models.ErrNotFound)
	}
	// CAS guard: commit only from a non-terminal pre-state.
	if s.IsTerminal() {
		return models.Signal{}, fmt.Errorf("signal %s in state %s: %w", id, s.State, models.ErrAlreadyEvaluated)
	}

	s.State = models.StateEvaluated
	if outcome == models.OutcomeTimeout {
		s.State = models.StateExpired
	}
	s.Outcome = outcome
	s.ActualReturn = actualReturn
	s.EvaluatedAt = evaluatedAt.UTC()
	m.signals[id] = s
	return s, nil
}

func (m *MemorySignalStore) Health(ctx context.Context) error { return nil }

func (m *MemorySignalStore) Close() error { return nil }

var _ drepo.SignalStore = (*MemorySignalStore)(nil)
