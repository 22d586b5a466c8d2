package usecase

import (
	"context"
	"fmt"
	"testing"
	"time"

	"SigTrail/internal/domain/models"
	drepo "SigTrail/internal/domain/repository"
	"SigTrail/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// seedTerminal tracks a signal and drives it to its terminal state.
func seedTerminal(t *testing.T, store drepo.SignalStore, symbol string, outcome models.Outcome, actualReturn float64) string {
	t.Helper()
	s := &models.Signal{
		Symbol:     symbol,
		Timeframe:  "1h",
		Direction:  models.DirectionBuy,
		EntryPrice: 100,
		TakeProfit: 110,
		StopLoss:   95,
		CreatedAt:  time.Now().UTC().Add(-24 * time.Hour),
	}
	id, err := store.Track(context.Background(), s)
	require.NoError(t, err)
	_, err = store.TransitionToEvaluated(context.Background(), id, outcome, actualReturn, time.Now().UTC())
	require.NoError(t, err)
	return id
}

func TestInsightsEmptyStore(t *testing.T) {
	a := NewInsightsAggregator(repository.NewMemorySignalStore(), testLogger(t), 5)

	report, err := a.Insights(context.Background(), 30)
	require.NoError(t, err)
	assert.Equal(t, 0, report.TotalSignals)
	assert.Zero(t, report.Overall.SuccessRate)
	assert.NotNil(t, report.Symbols)
	assert.Empty(t, report.Suggestions)
	assert.False(t, report.Partial)
}

func TestInsightsAggregatesTerminalSignals(t *testing.T) {
	store := repository.NewMemorySignalStore()

	seedTerminal(t, store, "BTCUSDT", models.OutcomeTPHit, 10)
	seedTerminal(t, store, "BTCUSDT", models.OutcomeSLHit, -5)
	seedTerminal(t, store, "ETHUSDT", models.OutcomeTimeout, 1)

	// Pending signals never enter the report.
	pending := &models.Signal{
		Symbol: "BTCUSDT", Timeframe: "1h", Direction: models.DirectionBuy,
		EntryPrice: 100, TakeProfit: 110, StopLoss: 95,
	}
	_, err := store.Track(context.Background(), pending)
	require.NoError(t, err)

	a := NewInsightsAggregator(store, testLogger(t), 5)
	report, err := a.Insights(context.Background(), 30)
	require.NoError(t, err)

	assert.Equal(t, 3, report.TotalSignals)
	assert.InDelta(t, 1.0/3.0, report.Overall.SuccessRate, 1e-9)
	assert.InDelta(t, 2.0, report.Overall.AvgReturn, 1e-9)
	assert.InDelta(t, 6.0, report.Overall.TotalReturn, 1e-9)

	btc := report.Symbols["BTCUSDT"]
	assert.Equal(t, 2, btc.Total)
	assert.Equal(t, 1, btc.Wins)
	assert.InDelta(t, 0.5, btc.SuccessRate, 1e-9)

	eth := report.Symbols["ETHUSDT"]
	assert.Equal(t, 1, eth.Total)
	assert.Equal(t, 0, eth.Wins)
}

func TestInsightsPeriodCutoff(t *testing.T) {
	store := repository.NewMemorySignalStore()

	seedTerminal(t, store, "BTCUSDT", models.OutcomeTPHit, 10)

	stale := &models.Signal{
		Symbol: "ETHUSDT", Timeframe: "1h", Direction: models.DirectionBuy,
		EntryPrice: 100, TakeProfit: 110, StopLoss: 95,
		CreatedAt: time.Now().UTC().Add(-90 * 24 * time.Hour),
	}
	id, err := store.Track(context.Background(), stale)
	require.NoError(t, err)
	_, err = store.TransitionToEvaluated(context.Background(), id, models.OutcomeSLHit, -5,
		time.Now().UTC().Add(-60*24*time.Hour))
	require.NoError(t, err)

	a := NewInsightsAggregator(store, testLogger(t), 5)

	// The 60-day-old evaluation falls outside a 30-day window.
	report, err := a.Insights(context.Background(), 30)
	require.NoError(t, err)
	assert.Equal(t, 1, report.TotalSignals)
	assert.NotContains(t, report.Symbols, "ETHUSDT")

	// A wider window picks it up.
	report, err = a.Insights(context.Background(), 90)
	require.NoError(t, err)
	assert.Equal(t, 2, report.TotalSignals)

	// A non-positive period falls back to the 30-day default.
	report, err = a.Insights(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 30, report.PeriodDays)
	assert.Equal(t, 1, report.TotalSignals)
}

func TestInsightsSuggestions(t *testing.T) {
	store := repository.NewMemorySignalStore()

	// BTCUSDT loses often enough to trip the low-performance rule.
	seedTerminal(t, store, "BTCUSDT", models.OutcomeTPHit, 20)
	seedTerminal(t, store, "BTCUSDT", models.OutcomeSLHit, -5)
	seedTerminal(t, store, "BTCUSDT", models.OutcomeSLHit, -5)
	// ETHUSDT wins consistently.
	seedTerminal(t, store, "ETHUSDT", models.OutcomeTPHit, 4)
	seedTerminal(t, store, "ETHUSDT", models.OutcomeTPHit, 3)
	// SOLUSDT is below the sample floor and must stay silent.
	seedTerminal(t, store, "SOLUSDT", models.OutcomeSLHit, -9)

	a := NewInsightsAggregator(store, testLogger(t), 2)
	report, err := a.Insights(context.Background(), 30)
	require.NoError(t, err)

	require.Len(t, report.Suggestions, 2)
	// Deterministic symbol order: BTCUSDT before ETHUSDT.
	assert.Contains(t, report.Suggestions[0], "BTCUSDT")
	assert.Contains(t, report.Suggestions[0], "below 40%")
	assert.Contains(t, report.Suggestions[1], "ETHUSDT")
	assert.Contains(t, report.Suggestions[1], "larger allocation")
	for _, s := range report.Suggestions {
		assert.NotContains(t, s, "SOLUSDT")
	}
}

func TestInsightsNegativeAvgReturnSuggestion(t *testing.T) {
	store := repository.NewMemorySignalStore()
	seedTerminal(t, store, "BTCUSDT", models.OutcomeSLHit, -5)
	seedTerminal(t, store, "ETHUSDT", models.OutcomeSLHit, -4)
	seedTerminal(t, store, "SOLUSDT", models.OutcomeTPHit, 2)

	a := NewInsightsAggregator(store, testLogger(t), 3)
	report, err := a.Insights(context.Background(), 30)
	require.NoError(t, err)

	require.NotEmpty(t, report.Suggestions)
	assert.Contains(t, report.Suggestions[len(report.Suggestions)-1], "negative")
}

// faultyStore fails listings for one state to exercise the degraded path.
type faultyStore struct {
	drepo.SignalStore
	failState models.State
}

func (f *faultyStore) List(ctx context.Context, filter drepo.SignalFilter) ([]models.Signal, error) {
	if filter.State == f.failState {
		return nil, fmt.Errorf("snapshot read: connection reset")
	}
	return f.SignalStore.List(ctx, filter)
}

func TestInsightsPartialSnapshot(t *testing.T) {
	mem := repository.NewMemorySignalStore()
	seedTerminal(t, mem, "BTCUSDT", models.OutcomeTPHit, 10)

	a := NewInsightsAggregator(&faultyStore{SignalStore: mem, failState: models.StateExpired}, testLogger(t), 5)
	report, err := a.Insights(context.Background(), 30)
	require.NoError(t, err)

	assert.True(t, report.Partial)
	assert.Contains(t, report.Warning, "EXPIRED")
	// EVALUATED listing still succeeded.
	assert.Equal(t, 1, report.TotalSignals)
}
