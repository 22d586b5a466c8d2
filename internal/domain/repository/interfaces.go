package repository

import (
	"context"
	"time"

	"SigTrail/internal/domain/models"
)

// SignalFilter narrows List results. Zero values match everything.
type SignalFilter struct {
	Symbol       string
	Timeframe    string
	State        models.State
	CreatedAfter time.Time
	Limit        int
}

// SignalStore owns the canonical signal records and their lifecycle state.
// All state transitions are serialized per signal id via a compare-and-swap
// on state: a transition commits only if the current state still matches the
// expected pre-state.
type SignalStore interface {
	// Track validates and inserts a new signal with state PENDING,
	// assigning a unique id. Rejected signals are never stored.
	Track(ctx context.Context, s *models.Signal) (string, error)

	// Get returns a copy of the signal or models.ErrNotFound.
	Get(ctx context.Context, id string) (models.Signal, error)

	// List returns matching signals most-recent-first.
	List(ctx context.Context, f SignalFilter) ([]models.Signal, error)

	// ListEligible returns PENDING/EXECUTED signals created before the
	// cutoff, oldest first, as a point-in-time snapshot for batch runs.
	ListEligible(ctx context.Context, createdBefore time.Time, limit int) ([]models.Signal, error)

	// MarkExecuted transitions PENDING -> EXECUTED. Outcome fields are
	// untouched. Fails with models.ErrInvalidTransition from any other
	// state and models.ErrAlreadyEvaluated from a terminal state.
	MarkExecuted(ctx context.Context, id string, executionPrice float64, source string) (models.Signal, error)

	// TransitionToEvaluated moves a PENDING or EXECUTED signal to the
	// terminal state implied by outcome (TIMEOUT -> EXPIRED, otherwise
	// EVALUATED), atomically with respect to concurrent evaluators.
	// Returns models.ErrAlreadyEvaluated if another evaluator won the race.
	TransitionToEvaluated(ctx context.Context, id string, outcome models.Outcome, actualReturn float64, evaluatedAt time.Time) (models.Signal, error)

	Health(ctx context.Context) error
	Close() error
}

// MarketData is the external price-history collaborator. PricePath returns
// bars ordered chronologically from `from` through now. Failures map to
// models.ErrMarketDataUnavailable (transient) or models.ErrMarketDataNotFound
// (permanent).
type MarketData interface {
	PricePath(ctx context.Context, symbol string, tf Timeframe, from time.Time) ([]models.PriceBar, error)
}

// Archive receives terminal signals for long-horizon analytics. Append-only.
type Archive interface {
	ArchiveSignal(ctx context.Context, s models.Signal) error
	ArchiveBatch(ctx context.Context, signals []models.Signal) error
	Close() error
}

// Publisher emits signal lifecycle events. Best-effort from the core's
// perspective; failures are logged by callers, never surfaced as core errors.
type Publisher interface {
	PublishLifecycle(ctx context.Context, event string, s models.Signal) error
	Close() error
}

// LastPriceSource exposes the freshest observed price per symbol, typically
// backed by a live tick stream.
type LastPriceSource interface {
	LastPrice(symbol string) (price float64, at time.Time, ok bool)
}

// Metrics records operational measurements.
type Metrics interface {
	RecordSignalTracked(symbol, direction string)
	RecordTransition(state string)
	RecordEvaluation(outcome string)
	RecordDeferred(reason string)
	RecordError(kind string)
	RecordLastPrice(symbol string, price float64)
	RecordLatency(op string, seconds float64)
}
