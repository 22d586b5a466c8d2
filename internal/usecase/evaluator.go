package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"SigTrail/internal/domain/models"
	drepo "SigTrail/internal/domain/repository"
	dsvc "SigTrail/internal/domain/service"
	"SigTrail/pkg/cache"
	"SigTrail/pkg/logger"
	"SigTrail/pkg/queue"
)

// EvaluatorOption configures OutcomeEvaluator.
type EvaluatorOption func(*OutcomeEvaluator)

// WithMaxHolding sets the maximum holding horizon after which an unresolved
// signal times out.
func WithMaxHolding(d time.Duration) EvaluatorOption {
	return func(e *OutcomeEvaluator) {
		if d > 0 {
			e.maxHolding = d
		}
	}
}

// WithMinAge sets the minimum signal age before batch evaluation considers it.
func WithMinAge(d time.Duration) EvaluatorOption {
	return func(e *OutcomeEvaluator) {
		if d >= 0 {
			e.minAge = d
		}
	}
}

// WithFetchTimeout bounds a single price-path fetch.
func WithFetchTimeout(d time.Duration) EvaluatorOption {
	return func(e *OutcomeEvaluator) {
		if d > 0 {
			e.fetchTimeout = d
		}
	}
}

// WithRetry sets transient-failure retry attempts and base backoff.
func WithRetry(attempts int, backoff time.Duration) EvaluatorOption {
	return func(e *OutcomeEvaluator) {
		if attempts > 0 {
			e.retryAttempts = attempts
		}
		if backoff > 0 {
			e.retryBackoff = backoff
		}
	}
}

// WithArchive wires an append-only terminal-signal archive.
func WithArchive(a drepo.Archive) EvaluatorOption {
	return func(e *OutcomeEvaluator) { e.archive = a }
}

// WithPublisher wires a lifecycle event publisher.
func WithPublisher(p drepo.Publisher) EvaluatorOption {
	return func(e *OutcomeEvaluator) { e.pub = p }
}

// WithLastPrices wires a live last-price source used for TIMEOUT exits when
// fresher than the final bar.
func WithLastPrices(lp drepo.LastPriceSource) EvaluatorOption {
	return func(e *OutcomeEvaluator) { e.lastPrices = lp }
}

// WithDeferralCache wires a cache used to mark signals whose market data is
// permanently missing, so subsequent batches skip them until the marker
// expires.
func WithDeferralCache(c cache.Service, ttl time.Duration) EvaluatorOption {
	return func(e *OutcomeEvaluator) {
		e.deferrals = c
		if ttl > 0 {
			e.deferralTTL = ttl
		}
	}
}

// WithRetryQueue wires a queue that re-attempts evaluations deferred on
// transient market-data failures.
func WithRetryQueue(q queue.QueueService) EvaluatorOption {
	return func(e *OutcomeEvaluator) { e.retryQueue = q }
}

// WithEvaluatorNotifier wires a chat sink for evaluation summaries.
func WithEvaluatorNotifier(n dsvc.Notifier) EvaluatorOption {
	return func(e *OutcomeEvaluator) { e.notifier = n }
}

// OutcomeEvaluator resolves pending signals against price history and writes
// the terminal state back through the store's CAS transition.
type OutcomeEvaluator struct {
	store   drepo.SignalStore
	market  drepo.MarketData
	metrics drepo.Metrics
	l       *logger.Logger

	archive    drepo.Archive
	pub        drepo.Publisher
	lastPrices drepo.LastPriceSource
	deferrals  cache.Service
	retryQueue queue.QueueService
	notifier   dsvc.Notifier

	maxHolding    time.Duration
	minAge        time.Duration
	fetchTimeout  time.Duration
	retryAttempts int
	retryBackoff  time.Duration
	deferralTTL   time.Duration
}

// NewOutcomeEvaluator creates an evaluator.
func NewOutcomeEvaluator(
	store drepo.SignalStore,
	market drepo.MarketData,
	metrics drepo.Metrics,
	l *logger.Logger,
	opts ...EvaluatorOption,
) *OutcomeEvaluator {
	e := &OutcomeEvaluator{
		store:         store,
		market:        market,
		metrics:       metrics,
		l:             l,
		maxHolding:    72 * time.Hour,
		minAge:        time.Hour,
		fetchTimeout:  10 * time.Second,
		retryAttempts: 3,
		retryBackoff:  500 * time.Millisecond,
		deferralTTL:   6 * time.Hour,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate resolves one signal. The transition is committed through the
// store's compare-and-swap, so at most one concurrent evaluation succeeds;
// losers receive models.ErrAlreadyEvaluated. Cancellation before the
// transition leaves the signal in its prior state.
func (e *OutcomeEvaluator) Evaluate(ctx context.Context, id string) (models.EvaluationResult, error) {
	start := time.Now()

	s, err := e.store.Get(ctx, id)
	if err != nil {
		return models.EvaluationResult{}, err
	}
	if s.IsTerminal() {
		return models.EvaluationResult{}, fmt.Errorf("signal %s in state %s: %w", id, s.State, models.ErrAlreadyEvaluated)
	}

	path, err := e.fetchPath(ctx, &s)
	if err != nil {
		e.noteFetchFailure(ctx, &s, err)
		return models.EvaluationResult{}, err
	}

	now := time.Now().UTC()
	outcome, exitPrice, ok := e.resolveOutcome(&s, path, now)
	if !ok {
		return models.EvaluationResult{}, fmt.Errorf("signal %s: %w", id, models.ErrOutcomeUnresolved)
	}

	actualReturn := s.DirectionSign() * (exitPrice - s.EntryPrice) / s.EntryPrice * 100

	updated, err := e.store.TransitionToEvaluated(ctx, id, outcome, actualReturn, now)
	if err != nil {
		return models.EvaluationResult{}, err
	}

	e.metrics.RecordEvaluation(string(outcome))
	e.metrics.RecordLatency("evaluate", time.Since(start).Seconds())
	e.afterTerminal(ctx, updated)

	return models.EvaluationResult{
		ID:           updated.ID,
		Outcome:      updated.Outcome,
		State:        updated.State,
		ActualReturn: updated.ActualReturn,
		ExitPrice:    exitPrice,
		EvaluatedAt:  updated.EvaluatedAt,
	}, nil
}

// EvaluateBatch resolves up to maxSignals eligible signals. The eligible set
// is snapshotted before any network call; signals tracked during the run are
// not included, and races with single-signal evaluations are rejected by the
// store's CAS rather than double-counted. One signal's failure never aborts
// the batch.
func (e *OutcomeEvaluator) EvaluateBatch(ctx context.Context, maxSignals int) (models.BatchReport, error) {
	report := models.BatchReport{
		OutcomeCounts: make(map[models.Outcome]int),
		StartedAt:     time.Now().UTC(),
	}
	if maxSignals <= 0 {
		maxSignals = 50
	}

	cutoff := time.Now().Add(-e.minAge)
	eligible, err := e.store.ListEligible(ctx, cutoff, maxSignals)
	if err != nil {
		return report, fmt.Errorf("list eligible: %w", err)
	}

	var returnSum float64
	for _, s := range eligible {
		if ctx.Err() != nil {
			break
		}
		if e.isDeferred(ctx, s.ID) {
			report.Deferred++
			continue
		}
		res, err := e.Evaluate(ctx, s.ID)
		switch {
		case err == nil:
			report.TotalEvaluated++
			report.OutcomeCounts[res.Outcome]++
			returnSum += res.ActualReturn
		case errors.Is(err, models.ErrAlreadyEvaluated):
			// Lost a race with a single-signal evaluation; not an error.
			report.Skipped++
		case errors.Is(err, models.ErrOutcomeUnresolved):
			report.Skipped++
		case errors.Is(err, models.ErrMarketDataUnavailable), errors.Is(err, models.ErrMarketDataNotFound):
			report.Deferred++
		default:
			report.Deferred++
			e.l.Warn("batch evaluate failed",
				logger.String("signal_id", s.ID), logger.Error(err))
		}
	}

	if report.TotalEvaluated > 0 {
		report.AvgReturn = returnSum / float64(report.TotalEvaluated)
	}
	report.FinishedAt = time.Now().UTC()
	e.l.Info("batch evaluation finished",
		logger.Int("evaluated", report.TotalEvaluated),
		logger.Int("deferred", report.Deferred),
		logger.Int("skipped", report.Skipped))
	return report, nil
}

// fetchPath pulls the price path with a bounded timeout and retries transient
// failures with linear backoff up to the configured attempt count.
func (e *OutcomeEvaluator) fetchPath(ctx context.Context, s *models.Signal) ([]models.PriceBar, error) {
	tf := drepo.NormalizeTimeframe(s.Timeframe)
	var lastErr error
	for attempt := 1; attempt <= e.retryAttempts; attempt++ {
		fetchCtx, cancel := context.WithTimeout(ctx, e.fetchTimeout)
		path, err := e.market.PricePath(fetchCtx, s.Symbol, tf, s.CreatedAt)
		cancel()
		if err == nil {
			return path, nil
		}
		lastErr = err
		if errors.Is(err, models.ErrMarketDataNotFound) {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if attempt < e.retryAttempts {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * e.retryBackoff):
			}
		}
	}
	return nil, fmt.Errorf("price path for %s after %d attempts: %w (%v)",
		s.Symbol, e.retryAttempts, models.ErrMarketDataUnavailable, lastErr)
}

// resolveOutcome walks the path chronologically for the first bar crossing
// take-profit or stop-loss. When both thresholds fall inside the same bar the
// intrabar ordering is unknown, so the loss is assumed: SL_HIT.
func (e *OutcomeEvaluator) resolveOutcome(s *models.Signal, path []models.PriceBar, now time.Time) (models.Outcome, float64, bool) {
	deadline := s.CreatedAt.Add(e.maxHolding)
	var lastClose float64
	var lastAt time.Time

	for _, bar := range path {
		if bar.Timestamp.Before(s.CreatedAt) {
			continue
		}
		if bar.Timestamp.After(deadline) {
			break
		}
		lastClose = bar.Close
		lastAt = bar.Timestamp

		var tpCrossed, slCrossed bool
		if s.Direction == models.DirectionBuy {
			tpCrossed = bar.High >= s.TakeProfit
			slCrossed = bar.Low <= s.StopLoss
		} else {
			tpCrossed = bar.Low <= s.TakeProfit
			slCrossed = bar.High >= s.StopLoss
		}

		switch {
		case slCrossed:
			// Covers the same-bar tie as well.
			return models.OutcomeSLHit, s.StopLoss, true
		case tpCrossed:
			return models.OutcomeTPHit, s.TakeProfit, true
		}
	}

	if now.After(deadline) {
		exit := lastClose
		if e.lastPrices != nil {
			if p, at, ok := e.lastPrices.LastPrice(s.Symbol); ok && at.After(lastAt) && !at.After(deadline) {
				exit = p
			}
		}
		if exit <= 0 {
			// No observed price at all; cannot resolve.
			return models.OutcomeNone, 0, false
		}
		return models.OutcomeTimeout, exit, true
	}
	return models.OutcomeNone, 0, false
}

// afterTerminal handles the best-effort side channels: archive and lifecycle
// event. Failures are logged and never surfaced.
func (e *OutcomeEvaluator) afterTerminal(ctx context.Context, s models.Signal) {
	if e.archive != nil {
		if err := e.archive.ArchiveSignal(ctx, s); err != nil {
			e.metrics.RecordError("archive")
			e.l.Warn("archive signal failed", logger.String("signal_id", s.ID), logger.Error(err))
		}
	}
	if e.pub != nil {
		if err := e.pub.PublishLifecycle(ctx, "signal.evaluated", s); err != nil {
			e.metrics.RecordError("publish")
			e.l.Warn("publish lifecycle failed", logger.String("signal_id", s.ID), logger.Error(err))
		}
	}
	if e.notifier != nil {
		msg := fmt.Sprintf("%s %s %s: %s (%.2f%%)",
			s.Symbol, s.Direction, s.Timeframe, s.Outcome, s.ActualReturn)
		go func() {
			if err := e.notifier.Send(context.Background(), msg); err != nil {
				e.metrics.RecordError("notify")
				e.l.Warn("notification failed", logger.String("signal_id", s.ID), logger.Error(err))
			}
		}()
	}
}

func (e *OutcomeEvaluator) noteFetchFailure(ctx context.Context, s *models.Signal, err error) {
	reason := "unavailable"
	if errors.Is(err, models.ErrMarketDataNotFound) {
		reason = "not_found"
		if e.deferrals != nil {
			key := cache.GenerateKey("deferral", s.ID)
			if derr := e.deferrals.Set(ctx, key, reason, e.deferralTTL); derr != nil {
				e.l.Warn("deferral marker set failed", logger.String("signal_id", s.ID), logger.Error(derr))
			}
		}
	} else if e.retryQueue != nil {
		payload := EvaluationRetryPayload{SignalID: s.ID, Reason: reason}
		if qerr := e.retryQueue.PublishMessage(ctx, evaluationRetryType, payload); qerr != nil {
			e.l.Warn("retry enqueue failed", logger.String("signal_id", s.ID), logger.Error(qerr))
		}
	}
	e.metrics.RecordDeferred(reason)
	e.l.Warn("market data fetch failed, signal keeps prior state",
		logger.String("signal_id", s.ID),
		logger.String("symbol", s.Symbol),
		logger.Error(err))
}

func (e *OutcomeEvaluator) isDeferred(ctx context.Context, id string) bool {
	if e.deferrals == nil {
		return false
	}
	ok, err := e.deferrals.Exists(ctx, cache.GenerateKey("deferral", id))
	return err == nil && ok
}

// ClearDeferral removes a permanent-failure marker so the signal becomes
// eligible again (manual retry path).
func (e *OutcomeEvaluator) ClearDeferral(ctx context.Context, id string) error {
	if e.deferrals == nil {
		return nil
	}
	return e.deferrals.Delete(ctx, cache.GenerateKey("deferral", id))
}
