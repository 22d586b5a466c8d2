package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"SigTrail/internal/domain/models"
	drepo "SigTrail/internal/domain/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validBuy() *models.Signal {
	return &models.Signal{
		Symbol:     "btcusdt",
		Timeframe:  "1h",
		Direction:  models.DirectionBuy,
		Confidence: 60,
		EntryPrice: 100,
		TakeProfit: 110,
		StopLoss:   95,
	}
}

func TestTrackNormalizesAndValidates(t *testing.T) {
	store := NewMemorySignalStore()

	t.Run("stores a copy with forced initial state", func(t *testing.T) {
		s := validBuy()
		s.State = models.StateEvaluated
		s.Outcome = models.OutcomeTPHit
		s.ActualReturn = 42

		id, err := store.Track(context.Background(), s)
		require.NoError(t, err)
		require.NotEmpty(t, id)

		got, err := store.Get(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, "BTCUSDT", got.Symbol)
		assert.Equal(t, models.StatePending, got.State)
		assert.Equal(t, models.OutcomeNone, got.Outcome)
		assert.Zero(t, got.ActualReturn)
		assert.True(t, got.EvaluatedAt.IsZero())
		assert.False(t, got.CreatedAt.IsZero())
		// The caller's struct is never mutated.
		assert.Empty(t, s.ID)
	})

	t.Run("backdated created_at survives", func(t *testing.T) {
		s := validBuy()
		created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		s.CreatedAt = created

		id, err := store.Track(context.Background(), s)
		require.NoError(t, err)
		got, err := store.Get(context.Background(), id)
		require.NoError(t, err)
		assert.True(t, got.CreatedAt.Equal(created))
	})

	t.Run("nil signal rejected", func(t *testing.T) {
		_, err := store.Track(context.Background(), nil)
		var verr *models.ValidationError
		assert.ErrorAs(t, err, &verr)
	})

	t.Run("inverted buy bracket rejected", func(t *testing.T) {
		s := validBuy()
		s.StopLoss = 120
		_, err := store.Track(context.Background(), s)
		var verr *models.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "prices", verr.Field)
	})

	t.Run("confidence out of range rejected", func(t *testing.T) {
		s := validBuy()
		s.Confidence = 120
		_, err := store.Track(context.Background(), s)
		var verr *models.ValidationError
		assert.ErrorAs(t, err, &verr)
	})
}

func TestGetUnknownID(t *testing.T) {
	store := NewMemorySignalStore()
	_, err := store.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestListFilterSortLimit(t *testing.T) {
	store := NewMemorySignalStore()
	base := time.Now().UTC().Add(-time.Hour)

	for i, sym := range []string{"BTCUSDT", "ETHUSDT", "BTCUSDT"} {
		s := validBuy()
		s.Symbol = sym
		s.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		_, err := store.Track(context.Background(), s)
		require.NoError(t, err)
	}

	t.Run("newest first", func(t *testing.T) {
		all, err := store.List(context.Background(), drepo.SignalFilter{})
		require.NoError(t, err)
		require.Len(t, all, 3)
		for i := 1; i < len(all); i++ {
			assert.False(t, all[i].CreatedAt.After(all[i-1].CreatedAt))
		}
	})

	t.Run("symbol filter is case-insensitive", func(t *testing.T) {
		btc, err := store.List(context.Background(), drepo.SignalFilter{Symbol: "btcusdt"})
		require.NoError(t, err)
		assert.Len(t, btc, 2)
	})

	t.Run("state filter", func(t *testing.T) {
		pending, err := store.List(context.Background(), drepo.SignalFilter{State: models.StatePending})
		require.NoError(t, err)
		assert.Len(t, pending, 3)
		done, err := store.List(context.Background(), drepo.SignalFilter{State: models.StateEvaluated})
		require.NoError(t, err)
		assert.Empty(t, done)
	})

	t.Run("created_after excludes the boundary", func(t *testing.T) {
		recent, err := store.List(context.Background(), drepo.SignalFilter{CreatedAfter: base})
		require.NoError(t, err)
		assert.Len(t, recent, 2)
		none, err := store.List(context.Background(), drepo.SignalFilter{CreatedAfter: base.Add(time.Hour)})
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("limit", func(t *testing.T) {
		capped, err := store.List(context.Background(), drepo.SignalFilter{Limit: 2})
		require.NoError(t, err)
		assert.Len(t, capped, 2)
	})
}

func TestListEligible(t *testing.T) {
	store := NewMemorySignalStore()
	now := time.Now().UTC()

	old := validBuy()
	old.CreatedAt = now.Add(-3 * time.Hour)
	oldID, err := store.Track(context.Background(), old)
	require.NoError(t, err)

	young := validBuy()
	young.CreatedAt = now.Add(-time.Minute)
	_, err = store.Track(context.Background(), young)
	require.NoError(t, err)

	done := validBuy()
	done.CreatedAt = now.Add(-5 * time.Hour)
	doneID, err := store.Track(context.Background(), done)
	require.NoError(t, err)
	_, err = store.TransitionToEvaluated(context.Background(), doneID, models.OutcomeTPHit, 10, now)
	require.NoError(t, err)

	eligible, err := store.ListEligible(context.Background(), now.Add(-time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, eligible, 1)
	assert.Equal(t, oldID, eligible[0].ID)

	// Oldest first, capped by limit.
	for i := 0; i < 5; i++ {
		s := validBuy()
		s.CreatedAt = now.Add(-time.Duration(10+i) * time.Hour)
		_, err := store.Track(context.Background(), s)
		require.NoError(t, err)
	}
	eligible, err = store.ListEligible(context.Background(), now.Add(-time.Hour), 3)
	require.NoError(t, err)
	require.Len(t, eligible, 3)
	for i := 1; i < len(eligible); i++ {
		assert.True(t, eligible[i].CreatedAt.After(eligible[i-1].CreatedAt) ||
			eligible[i].CreatedAt.Equal(eligible[i-1].CreatedAt))
	}
}

func TestMarkExecuted(t *testing.T) {
	store := NewMemorySignalStore()

	id, err := store.Track(context.Background(), validBuy())
	require.NoError(t, err)

	t.Run("pending to executed", func(t *testing.T) {
		got, err := store.MarkExecuted(context.Background(), id, 100.5, "manual")
		require.NoError(t, err)
		assert.Equal(t, models.StateExecuted, got.State)
		assert.InDelta(t, 100.5, got.ExecutionPrice, 1e-9)
		assert.Equal(t, "manual", got.ExecutionSource)
	})

	t.Run("executed twice is an invalid transition", func(t *testing.T) {
		_, err := store.MarkExecuted(context.Background(), id, 101, "manual")
		assert.ErrorIs(t, err, models.ErrInvalidTransition)
	})

	t.Run("non-positive price rejected", func(t *testing.T) {
		otherID, err := store.Track(context.Background(), validBuy())
		require.NoError(t, err)
		_, err = store.MarkExecuted(context.Background(), otherID, 0, "manual")
		var verr *models.ValidationError
		assert.ErrorAs(t, err, &verr)
	})

	t.Run("terminal signal rejected", func(t *testing.T) {
		_, err := store.TransitionToEvaluated(context.Background(), id, models.OutcomeTPHit, 10, time.Now().UTC())
		require.NoError(t, err)
		_, err = store.MarkExecuted(context.Background(), id, 102, "manual")
		assert.ErrorIs(t, err, models.ErrAlreadyEvaluated)
	})

	t.Run("unknown id", func(t *testing.T) {
		_, err := store.MarkExecuted(context.Background(), "missing", 100, "manual")
		assert.ErrorIs(t, err, models.ErrNotFound)
	})
}

func TestTransitionToEvaluated(t *testing.T) {
	store := NewMemorySignalStore()
	now := time.Now().UTC()

	t.Run("timeout maps to expired", func(t *testing.T) {
		id, err := store.Track(context.Background(), validBuy())
		require.NoError(t, err)

		got, err := store.TransitionToEvaluated(context.Background(), id, models.OutcomeTimeout, 1.2, now)
		require.NoError(t, err)
		assert.Equal(t, models.StateExpired, got.State)
		assert.Equal(t, models.OutcomeTimeout, got.Outcome)
		assert.InDelta(t, 1.2, got.ActualReturn, 1e-9)
		assert.True(t, got.EvaluatedAt.Equal(now))
	})

	t.Run("concrete outcome maps to evaluated", func(t *testing.T) {
		id, err := store.Track(context.Background(), validBuy())
		require.NoError(t, err)

		got, err := store.TransitionToEvaluated(context.Background(), id, models.OutcomeSLHit, -5, now)
		require.NoError(t, err)
		assert.Equal(t, models.StateEvaluated, got.State)
	})

	t.Run("NONE outcome rejected", func(t *testing.T) {
		id, err := store.Track(context.Background(), validBuy())
		require.NoError(t, err)

		_, err = store.TransitionToEvaluated(context.Background(), id, models.OutcomeNone, 0, now)
		var verr *models.ValidationError
		assert.ErrorAs(t, err, &verr)
	})

	t.Run("terminal state is sticky", func(t *testing.T) {
		id, err := store.Track(context.Background(), validBuy())
		require.NoError(t, err)
		_, err = store.TransitionToEvaluated(context.Background(), id, models.OutcomeTPHit, 10, now)
		require.NoError(t, err)

		_, err = store.TransitionToEvaluated(context.Background(), id, models.OutcomeSLHit, -5, now)
		assert.ErrorIs(t, err, models.ErrAlreadyEvaluated)

		got, err := store.Get(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, models.OutcomeTPHit, got.Outcome)
		assert.InDelta(t, 10.0, got.ActualReturn, 1e-9)
	})
}

func TestTransitionToEvaluatedConcurrent(t *testing.T) {
	store := NewMemorySignalStore()
	id, err := store.Track(context.Background(), validBuy())
	require.NoError(t, err)

	const workers = 16
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = store.TransitionToEvaluated(context.Background(), id,
				models.OutcomeTPHit, 10, time.Now().UTC())
		}(i)
	}
	wg.Wait()

	var successes int
	for _, err := range errs {
		if err == nil {
			successes++
			continue
		}
		require.True(t, errors.Is(err, models.ErrAlreadyEvaluated), "unexpected error: %v", err)
	}
	assert.Equal(t, 1, successes)
}
