package usecase

import (
	"context"
	"time"

	"SigTrail/internal/domain/models"
	drepo "SigTrail/internal/domain/repository"
	dsvc "SigTrail/internal/domain/service"
	"SigTrail/pkg/logger"
)

// SignalTracker is the write-side entry point: it validates and stores new
// signals, drives the EXECUTED transition, and fans out the best-effort side
// channels (lifecycle events, chat notification, narrative enrichment).
type SignalTracker struct {
	store     drepo.SignalStore
	metrics   drepo.Metrics
	l         *logger.Logger
	pub       drepo.Publisher
	notifier  dsvc.Notifier
	narrative dsvc.NarrativeGenerator
}

// TrackerOption configures SignalTracker.
type TrackerOption func(*SignalTracker)

// WithTrackerPublisher wires the lifecycle event publisher.
func WithTrackerPublisher(p drepo.Publisher) TrackerOption {
	return func(t *SignalTracker) { t.pub = p }
}

// WithNotifier wires the chat notification sink.
func WithNotifier(n dsvc.Notifier) TrackerOption {
	return func(t *SignalTracker) { t.notifier = n }
}

// WithNarrative wires the narrative generator used for notifications.
func WithNarrative(g dsvc.NarrativeGenerator) TrackerOption {
	return func(t *SignalTracker) { t.narrative = g }
}

// NewSignalTracker creates a tracker.
func NewSignalTracker(store drepo.SignalStore, metrics drepo.Metrics, l *logger.Logger, opts ...TrackerOption) *SignalTracker {
	t := &SignalTracker{store: store, metrics: metrics, l: l}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Track stores a new signal and returns its assigned id. Validation failures
// are returned as-is; nothing is stored.
func (t *SignalTracker) Track(ctx context.Context, s *models.Signal, conf models.Confluence) (string, error) {
	start := time.Now()
	id, err := t.store.Track(ctx, s)
	if err != nil {
		t.metrics.RecordError("track")
		return "", err
	}
	t.metrics.RecordSignalTracked(s.Symbol, string(s.Direction))
	t.metrics.RecordLatency("track", time.Since(start).Seconds())

	stored, err := t.store.Get(ctx, id)
	if err != nil {
		// Stored but unreadable; the id is still valid.
		t.l.Warn("read-back after track failed", logger.String("signal_id", id), logger.Error(err))
		return id, nil
	}
	t.fanOut(ctx, "signal.tracked", stored, conf)
	return id, nil
}

// MarkExecuted transitions a pending signal to EXECUTED.
func (t *SignalTracker) MarkExecuted(ctx context.Context, id string, price float64, source string) (models.Signal, error) {
	s, err := t.store.MarkExecuted(ctx, id, price, source)
	if err != nil {
		return models.Signal{}, err
	}
	t.metrics.RecordTransition(string(models.StateExecuted))
	if t.pub != nil {
		if perr := t.pub.PublishLifecycle(ctx, "signal.executed", s); perr != nil {
			t.metrics.RecordError("publish")
			t.l.Warn("publish lifecycle failed", logger.String("signal_id", id), logger.Error(perr))
		}
	}
	return s, nil
}

// fanOut delivers the best-effort side channels. Never fails the caller.
func (t *SignalTracker) fanOut(ctx context.Context, event string, s models.Signal, conf models.Confluence) {
	if t.pub != nil {
		if err := t.pub.PublishLifecycle(ctx, event, s); err != nil {
			t.metrics.RecordError("publish")
			t.l.Warn("publish lifecycle failed", logger.String("signal_id", s.ID), logger.Error(err))
		}
	}
	if t.notifier != nil {
		msg := ""
		if t.narrative != nil {
			n := t.narrative.Describe(ctx, s, conf)
			msg = n.Text
		}
		if msg == "" {
			msg = s.Symbol + " " + string(s.Direction) + " signal tracked"
		}
		go func(msg string) {
			if err := t.notifier.Send(context.Background(), msg); err != nil {
				t.metrics.RecordError("notify")
				t.l.Warn("notification failed", logger.String("signal_id", s.ID), logger.Error(err))
			}
		}(msg)
	}
}
