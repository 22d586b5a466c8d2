package narrative

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"SigTrail/internal/domain/models"
	dservice "SigTrail/internal/domain/service"
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

func sampleSignal() models.Signal {
	return models.Signal{
		ID:         "sig-1",
		Symbol:     "BTCUSDT",
		Timeframe:  "1h",
		Direction:  models.DirectionBuy,
		Confidence: 75,
		EntryPrice: 50000,
		TakeProfit: 52000,
		StopLoss:   48500,
	}
}

func sampleConfluence() models.Confluence {
	return models.Confluence{
		Score:      0.75,
		Level:      models.ConfluenceHigh,
		Supporting: []string{"rsi_oversold", "ema_bullish"},
		Strength:   0.75,
	}
}

func TestDescribeFallbackWithoutService(t *testing.T) {
	g := New("", testLogger(t))

	n := g.Describe(context.Background(), sampleSignal(), sampleConfluence())
	assert.Equal(t, dservice.NarrativeFallback, n.Source)
	assert.Contains(t, n.Text, "BUY BTCUSDT on 1h")
	assert.Contains(t, n.Text, "high confluence")
	assert.Contains(t, n.Text, "rsi_oversold, ema_bullish")
	assert.Contains(t, n.Text, "Entry 50000")
}

func TestDescribeFallbackOmitsEmptySupport(t *testing.T) {
	g := New("", testLogger(t))
	conf := sampleConfluence()
	conf.Supporting = nil

	n := g.Describe(context.Background(), sampleSignal(), conf)
	assert.Equal(t, dservice.NarrativeFallback, n.Source)
	assert.NotContains(t, n.Text, ":")
}

func TestDescribeUsesRemoteService(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/narratives", r.URL.Path)

		var req generateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "BTCUSDT", req.Symbol)
		assert.Equal(t, "BUY", req.Direction)
		assert.Equal(t, "HIGH", req.Level)

		_ = json.NewEncoder(w).Encode(generateResponse{Text: "  strong long setup  "})
	}))
	defer srv.Close()

	g := New(srv.URL, testLogger(t))
	n := g.Describe(context.Background(), sampleSignal(), sampleConfluence())
	assert.Equal(t, dservice.NarrativeGenerated, n.Source)
	assert.Equal(t, "strong long setup", n.Text)
}

func TestDescribeFallsBackAfterRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	g := New(srv.URL, testLogger(t), WithAttempts(3))
	n := g.Describe(context.Background(), sampleSignal(), sampleConfluence())
	assert.Equal(t, dservice.NarrativeFallback, n.Source)
	assert.NotEmpty(t, n.Text)
	assert.EqualValues(t, 3, calls.Load())
}
