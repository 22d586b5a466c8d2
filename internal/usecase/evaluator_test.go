package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"SigTrail/internal/domain/models"
	drepo "SigTrail/internal/domain/repository"
	"SigTrail/internal/repository"
	"SigTrail/pkg/cache"
	"SigTrail/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	l, err := logger.New(&logger.Config{Level: "error", Format: "console", Output: "stdout"})
	require.NoError(t, err)
	return l
}

// fakeMetrics satisfies the metrics collaborator without a registry.
type fakeMetrics struct {
	mu          sync.Mutex
	evaluations map[string]int
	deferred    map[string]int
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{evaluations: map[string]int{}, deferred: map[string]int{}}
}

func (f *fakeMetrics) RecordSignalTracked(string, string) {}
func (f *fakeMetrics) RecordTransition(string)            {}
func (f *fakeMetrics) RecordEvaluation(outcome string) {
	f.mu.Lock()
	f.evaluations[outcome]++
	f.mu.Unlock()
}
func (f *fakeMetrics) RecordDeferred(reason string) {
	f.mu.Lock()
	f.deferred[reason]++
	f.mu.Unlock()
}
func (f *fakeMetrics) RecordError(string)              {}
func (f *fakeMetrics) RecordLastPrice(string, float64) {}
func (f *fakeMetrics) RecordLatency(string, float64)   {}

// fakeMarket serves a fixed path per symbol, optionally failing the first
// N calls.
type fakeMarket struct {
	mu       sync.Mutex
	bars     map[string][]models.PriceBar
	errs     map[string]error
	failures int
	calls    int
}

func newFakeMarket() *fakeMarket {
	return &fakeMarket{bars: map[string][]models.PriceBar{}, errs: map[string]error{}}
}

func (f *fakeMarket) PricePath(_ context.Context, symbol string, _ drepo.Timeframe, _ time.Time) ([]models.PriceBar, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failures > 0 {
		f.failures--
		return nil, fmt.Errorf("flaky upstream: %w", models.ErrMarketDataUnavailable)
	}
	if err, ok := f.errs[symbol]; ok {
		return nil, err
	}
	bars, ok := f.bars[symbol]
	if !ok {
		return nil, fmt.Errorf("no fixture for %s: %w", symbol, models.ErrMarketDataNotFound)
	}
	return bars, nil
}

func bar(at time.Time, high, low, close float64) models.PriceBar {
	return models.PriceBar{Timestamp: at, Open: close, High: high, Low: low, Close: close, Volume: 100}
}

func newBuySignal(createdAt time.Time) *models.Signal {
	return &models.Signal{
		Symbol:     "BTCUSDT",
		Timeframe:  "1h",
		Direction:  models.DirectionBuy,
		Confidence: 70,
		EntryPrice: 100,
		TakeProfit: 110,
		StopLoss:   95,
		CreatedAt:  createdAt,
	}
}

func TestEvaluateTakeProfitHit(t *testing.T) {
	store := repository.NewMemorySignalStore()
	market := newFakeMarket()
	created := time.Now().UTC().Add(-3 * time.Hour)

	id, err := store.Track(context.Background(), newBuySignal(created))
	require.NoError(t, err)

	market.bars["BTCUSDT"] = []models.PriceBar{
		bar(created.Add(1*time.Hour), 104, 99, 103),
		bar(created.Add(2*time.Hour), 111, 102, 109),
	}

	e := NewOutcomeEvaluator(store, market, newFakeMetrics(), testLogger(t))
	res, err := e.Evaluate(context.Background(), id)
	require.NoError(t, err)

	assert.Equal(t, models.OutcomeTPHit, res.Outcome)
	assert.Equal(t, models.StateEvaluated, res.State)
	assert.InDelta(t, 110.0, res.ExitPrice, 1e-9)
	assert.InDelta(t, 10.0, res.ActualReturn, 1e-9)

	stored, err := store.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, models.StateEvaluated, stored.State)
	assert.False(t, stored.EvaluatedAt.IsZero())
}

func TestEvaluateStopLossWinsSameBar(t *testing.T) {
	store := repository.NewMemorySignalStore()
	market := newFakeMarket()
	created := time.Now().UTC().Add(-2 * time.Hour)

	id, err := store.Track(context.Background(), newBuySignal(created))
	require.NoError(t, err)

	// One bar spans both thresholds; intrabar ordering is unknown, so the
	// stop is assumed to fill first.
	market.bars["BTCUSDT"] = []models.PriceBar{
		bar(created.Add(time.Hour), 112, 94, 100),
	}

	e := NewOutcomeEvaluator(store, market, newFakeMetrics(), testLogger(t))
	res, err := e.Evaluate(context.Background(), id)
	require.NoError(t, err)

	assert.Equal(t, models.OutcomeSLHit, res.Outcome)
	assert.InDelta(t, 95.0, res.ExitPrice, 1e-9)
	assert.InDelta(t, -5.0, res.ActualReturn, 1e-9)
}

func TestEvaluateSellDirection(t *testing.T) {
	store := repository.NewMemorySignalStore()
	market := newFakeMarket()
	created := time.Now().UTC().Add(-2 * time.Hour)

	s := &models.Signal{
		Symbol:     "ETHUSDT",
		Timeframe:  "1h",
		Direction:  models.DirectionSell,
		EntryPrice: 100,
		TakeProfit: 90,
		StopLoss:   105,
		CreatedAt:  created,
	}
	id, err := store.Track(context.Background(), s)
	require.NoError(t, err)

	market.bars["ETHUSDT"] = []models.PriceBar{
		bar(created.Add(30*time.Minute), 102, 96, 97),
		bar(created.Add(time.Hour), 98, 89, 91),
	}

	e := NewOutcomeEvaluator(store, market, newFakeMetrics(), testLogger(t))
	res, err := e.Evaluate(context.Background(), id)
	require.NoError(t, err)

	assert.Equal(t, models.OutcomeTPHit, res.Outcome)
	assert.InDelta(t, 90.0, res.ExitPrice, 1e-9)
	// Shorts profit when price falls.
	assert.InDelta(t, 10.0, res.ActualReturn, 1e-9)
}

func TestEvaluateTimeoutExpires(t *testing.T) {
	store := repository.NewMemorySignalStore()
	market := newFakeMarket()
	created := time.Now().UTC().Add(-3 * time.Hour)

	id, err := store.Track(context.Background(), newBuySignal(created))
	require.NoError(t, err)

	market.bars["BTCUSDT"] = []models.PriceBar{
		bar(created.Add(20*time.Minute), 103, 99, 101),
		bar(created.Add(50*time.Minute), 104, 100, 102),
	}

	e := NewOutcomeEvaluator(store, market, newFakeMetrics(), testLogger(t),
		WithMaxHolding(time.Hour))
	res, err := e.Evaluate(context.Background(), id)
	require.NoError(t, err)

	assert.Equal(t, models.OutcomeTimeout, res.Outcome)
	assert.Equal(t, models.StateExpired, res.State)
	assert.InDelta(t, 102.0, res.ExitPrice, 1e-9)
	assert.InDelta(t, 2.0, res.ActualReturn, 1e-9)
}

func TestEvaluateUnresolvedKeepsState(t *testing.T) {
	store := repository.NewMemorySignalStore()
	market := newFakeMarket()
	created := time.Now().UTC().Add(-2 * time.Hour)

	id, err := store.Track(context.Background(), newBuySignal(created))
	require.NoError(t, err)

	market.bars["BTCUSDT"] = []models.PriceBar{
		bar(created.Add(time.Hour), 103, 99, 101),
	}

	e := NewOutcomeEvaluator(store, market, newFakeMetrics(), testLogger(t))
	_, err = e.Evaluate(context.Background(), id)
	require.ErrorIs(t, err, models.ErrOutcomeUnresolved)

	stored, err := store.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, models.StatePending, stored.State)
	assert.Equal(t, models.OutcomeNone, stored.Outcome)
}

func TestEvaluateRetriesTransientFailures(t *testing.T) {
	store := repository.NewMemorySignalStore()
	market := newFakeMarket()
	created := time.Now().UTC().Add(-2 * time.Hour)

	id, err := store.Track(context.Background(), newBuySignal(created))
	require.NoError(t, err)

	market.failures = 2
	market.bars["BTCUSDT"] = []models.PriceBar{
		bar(created.Add(time.Hour), 111, 101, 110),
	}

	e := NewOutcomeEvaluator(store, market, newFakeMetrics(), testLogger(t),
		WithRetry(3, time.Millisecond))
	res, err := e.Evaluate(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeTPHit, res.Outcome)
	assert.Equal(t, 3, market.calls)
}

func TestEvaluateMarketDataNotFoundDefers(t *testing.T) {
	store := repository.NewMemorySignalStore()
	market := newFakeMarket()
	metrics := newFakeMetrics()
	created := time.Now().UTC().Add(-2 * time.Hour)

	id, err := store.Track(context.Background(), newBuySignal(created))
	require.NoError(t, err)

	deferrals := cache.NewMemoryCache()
	e := NewOutcomeEvaluator(store, market, metrics, testLogger(t),
		WithDeferralCache(deferrals, time.Hour))

	_, err = e.Evaluate(context.Background(), id)
	require.ErrorIs(t, err, models.ErrMarketDataNotFound)
	// Permanent failure never retries.
	assert.Equal(t, 1, market.calls)
	assert.Equal(t, 1, metrics.deferred["not_found"])

	stored, err := store.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, models.StatePending, stored.State)

	ok, err := deferrals.Exists(context.Background(), "deferral:"+id)
	require.NoError(t, err)
	assert.True(t, ok)

	// Deferred signals are skipped by the batch until the marker clears.
	report, err := e.EvaluateBatch(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 0, report.TotalEvaluated)
	assert.Equal(t, 1, report.Deferred)

	require.NoError(t, e.ClearDeferral(context.Background(), id))
	ok, err = deferrals.Exists(context.Background(), "deferral:"+id)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEvaluateAtMostOnce(t *testing.T) {
	store := repository.NewMemorySignalStore()
	market := newFakeMarket()
	created := time.Now().UTC().Add(-2 * time.Hour)

	id, err := store.Track(context.Background(), newBuySignal(created))
	require.NoError(t, err)

	market.bars["BTCUSDT"] = []models.PriceBar{
		bar(created.Add(time.Hour), 111, 101, 110),
	}

	e := NewOutcomeEvaluator(store, market, newFakeMetrics(), testLogger(t))

	const workers = 8
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = e.Evaluate(context.Background(), id)
		}(i)
	}
	wg.Wait()

	var successes, conflicts int
	for _, err := range errs {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, models.ErrAlreadyEvaluated):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, successes)
	assert.Equal(t, workers-1, conflicts)
}

func TestEvaluateBatch(t *testing.T) {
	store := repository.NewMemorySignalStore()
	market := newFakeMarket()
	created := time.Now().UTC().Add(-2 * time.Hour)

	winner, err := store.Track(context.Background(), newBuySignal(created))
	require.NoError(t, err)

	orphan := &models.Signal{
		Symbol:     "NODATA",
		Timeframe:  "1h",
		Direction:  models.DirectionBuy,
		EntryPrice: 10,
		TakeProfit: 12,
		StopLoss:   9,
		CreatedAt:  created,
	}
	_, err = store.Track(context.Background(), orphan)
	require.NoError(t, err)

	// Too young for the eligibility cutoff; untouched by the batch.
	young := newBuySignal(time.Now().UTC().Add(-time.Minute))
	youngID, err := store.Track(context.Background(), young)
	require.NoError(t, err)

	market.bars["BTCUSDT"] = []models.PriceBar{
		bar(created.Add(time.Hour), 111, 101, 110),
	}

	e := NewOutcomeEvaluator(store, market, newFakeMetrics(), testLogger(t),
		WithRetry(1, time.Millisecond))

	report, err := e.EvaluateBatch(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, report.TotalEvaluated)
	assert.Equal(t, 1, report.Deferred)
	assert.Equal(t, 0, report.Skipped)
	assert.Equal(t, 1, report.OutcomeCounts[models.OutcomeTPHit])
	assert.InDelta(t, 10.0, report.AvgReturn, 1e-9)

	stored, err := store.Get(context.Background(), winner)
	require.NoError(t, err)
	assert.Equal(t, models.StateEvaluated, stored.State)

	untouched, err := store.Get(context.Background(), youngID)
	require.NoError(t, err)
	assert.Equal(t, models.StatePending, untouched.State)

	// Re-running leaves terminal signals alone.
	report, err = e.EvaluateBatch(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 0, report.TotalEvaluated)
	assert.Equal(t, 1, report.Deferred)
}

func TestEvaluateTerminalSignalRejected(t *testing.T) {
	store := repository.NewMemorySignalStore()
	market := newFakeMarket()
	created := time.Now().UTC().Add(-2 * time.Hour)

	id, err := store.Track(context.Background(), newBuySignal(created))
	require.NoError(t, err)
	market.bars["BTCUSDT"] = []models.PriceBar{
		bar(created.Add(time.Hour), 111, 101, 110),
	}

	e := NewOutcomeEvaluator(store, market, newFakeMetrics(), testLogger(t))
	_, err = e.Evaluate(context.Background(), id)
	require.NoError(t, err)

	_, err = e.Evaluate(context.Background(), id)
	assert.ErrorIs(t, err, models.ErrAlreadyEvaluated)
}
