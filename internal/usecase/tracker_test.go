package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"SigTrail/internal/domain/models"
	drepo "SigTrail/internal/domain/repository"
	dsvc "SigTrail/internal/domain/service"
	"SigTrail/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePublisher struct {
	mu     sync.Mutex
	events []string
	err    error
}

func (f *fakePublisher) PublishLifecycle(_ context.Context, event string, _ models.Signal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, event)
	return nil
}

func (f *fakePublisher) Close() error { return nil }

type fakeNotifier struct {
	mu       sync.Mutex
	messages []string
	done     chan struct{}
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{done: make(chan struct{}, 8)}
}

func (f *fakeNotifier) Send(_ context.Context, msg string) error {
	f.mu.Lock()
	f.messages = append(f.messages, msg)
	f.mu.Unlock()
	f.done <- struct{}{}
	return nil
}

func (f *fakeNotifier) wait(t *testing.T) string {
	t.Helper()
	select {
	case <-f.done:
	case <-time.After(2 * time.Second):
		t.Fatal("notification never delivered")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.messages[len(f.messages)-1]
}

type fakeNarrator struct{ text string }

func (f *fakeNarrator) Describe(context.Context, models.Signal, models.Confluence) dsvc.Narrative {
	return dsvc.Narrative{Text: f.text, Source: dsvc.NarrativeFallback}
}

func TestTrackStoresAndFansOut(t *testing.T) {
	store := repository.NewMemorySignalStore()
	pub := &fakePublisher{}
	notifier := newFakeNotifier()

	tr := NewSignalTracker(store, newFakeMetrics(), testLogger(t),
		WithTrackerPublisher(pub),
		WithNotifier(notifier),
		WithNarrative(&fakeNarrator{text: "long setup forming"}))

	id, err := tr.Track(context.Background(), newBuySignal(time.Time{}), models.Confluence{})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	stored, err := store.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, models.StatePending, stored.State)

	assert.Equal(t, []string{"signal.tracked"}, pub.events)
	assert.Equal(t, "long setup forming", notifier.wait(t))
}

func TestTrackNotificationFallsBackToSummary(t *testing.T) {
	store := repository.NewMemorySignalStore()
	notifier := newFakeNotifier()

	tr := NewSignalTracker(store, newFakeMetrics(), testLogger(t),
		WithNotifier(notifier),
		WithNarrative(&fakeNarrator{text: ""}))

	_, err := tr.Track(context.Background(), newBuySignal(time.Time{}), models.Confluence{})
	require.NoError(t, err)
	assert.Equal(t, "BTCUSDT BUY signal tracked", notifier.wait(t))
}

func TestTrackValidationFailureStoresNothing(t *testing.T) {
	store := repository.NewMemorySignalStore()
	pub := &fakePublisher{}

	tr := NewSignalTracker(store, newFakeMetrics(), testLogger(t), WithTrackerPublisher(pub))

	bad := newBuySignal(time.Time{})
	bad.StopLoss = 200
	_, err := tr.Track(context.Background(), bad, models.Confluence{})
	var verr *models.ValidationError
	require.ErrorAs(t, err, &verr)

	all, err := store.List(context.Background(), drepo.SignalFilter{})
	require.NoError(t, err)
	assert.Empty(t, all)
	assert.Empty(t, pub.events)
}

func TestTrackSurvivesPublisherFailure(t *testing.T) {
	store := repository.NewMemorySignalStore()
	pub := &fakePublisher{err: context.DeadlineExceeded}

	tr := NewSignalTracker(store, newFakeMetrics(), testLogger(t), WithTrackerPublisher(pub))

	id, err := tr.Track(context.Background(), newBuySignal(time.Time{}), models.Confluence{})
	require.NoError(t, err)
	assert.NotEmpty(t, id)
}

func TestMarkExecutedPublishesLifecycle(t *testing.T) {
	store := repository.NewMemorySignalStore()
	pub := &fakePublisher{}

	tr := NewSignalTracker(store, newFakeMetrics(), testLogger(t), WithTrackerPublisher(pub))

	id, err := tr.Track(context.Background(), newBuySignal(time.Time{}), models.Confluence{})
	require.NoError(t, err)

	got, err := tr.MarkExecuted(context.Background(), id, 100.25, "kafka")
	require.NoError(t, err)
	assert.Equal(t, models.StateExecuted, got.State)
	assert.InDelta(t, 100.25, got.ExecutionPrice, 1e-9)
	assert.Contains(t, pub.events, "signal.executed")

	_, err = tr.MarkExecuted(context.Background(), id, 101, "kafka")
	assert.ErrorIs(t, err, models.ErrInvalidTransition)
}
