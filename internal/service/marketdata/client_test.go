package marketdata

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"SigTrail/internal/domain/models"
	drepo "SigTrail/internal/domain/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func klineRow(fields ...string) []json.RawMessage {
	row := make([]json.RawMessage, len(fields))
	for i, f := range fields {
		row[i] = json.RawMessage(f)
	}
	return row
}

func TestPricePathParsesKlines(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/klines", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "BTCUSDT", q.Get("symbol"))
		assert.Equal(t, "1h", q.Get("interval"))
		assert.NotEmpty(t, q.Get("startTime"))
		assert.Equal(t, "500", q.Get("limit"))

		rows := [][]json.RawMessage{
			klineRow(`1756600000000`, `"50000.5"`, `"50500"`, `"49900"`, `"50400.25"`, `"1234.5"`),
			klineRow(`1756603600000`, `"50400.25"`, `"50800"`, `"50200"`, `"50750"`, `"987"`),
		}
		_ = json.NewEncoder(w).Encode(rows)
	}))
	defer srv.Close()

	c := New(srv.URL, WithMaxBars(500))
	bars, err := c.PricePath(context.Background(), "BTCUSDT", drepo.TF1h, time.Now().Add(-2*time.Hour))
	require.NoError(t, err)
	require.Len(t, bars, 2)

	first := bars[0]
	assert.Equal(t, time.UnixMilli(1756600000000).UTC(), first.Timestamp)
	assert.InDelta(t, 50000.5, first.Open, 1e-9)
	assert.InDelta(t, 50500, first.High, 1e-9)
	assert.InDelta(t, 49900, first.Low, 1e-9)
	assert.InDelta(t, 50400.25, first.Close, 1e-9)
	assert.InDelta(t, 1234.5, first.Volume, 1e-9)
}

func TestPricePathErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		status int
		want   error
	}{
		{"unknown symbol", http.StatusNotFound, models.ErrMarketDataNotFound},
		{"bad request", http.StatusBadRequest, models.ErrMarketDataNotFound},
		{"rate limited", http.StatusTooManyRequests, models.ErrMarketDataUnavailable},
		{"server error", http.StatusInternalServerError, models.ErrMarketDataUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", tc.status)
			}))
			defer srv.Close()

			c := New(srv.URL)
			_, err := c.PricePath(context.Background(), "BTCUSDT", drepo.TF1h, time.Now())
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestPricePathEmptyResponseIsNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, err := c.PricePath(context.Background(), "BTCUSDT", drepo.TF1h, time.Now())
	assert.ErrorIs(t, err, models.ErrMarketDataNotFound)
}

func TestPricePathUnconfigured(t *testing.T) {
	c := New("")
	_, err := c.PricePath(context.Background(), "BTCUSDT", drepo.TF1h, time.Now())
	assert.ErrorIs(t, err, models.ErrMarketDataUnavailable)
}

func TestParseKline(t *testing.T) {
	t.Run("numeric fields accepted", func(t *testing.T) {
		bar, err := parseKline(klineRow(`1756600000000`, `100.5`, `101`, `99`, `100`, `42`))
		require.NoError(t, err)
		assert.InDelta(t, 100.5, bar.Open, 1e-9)
		assert.InDelta(t, 42, bar.Volume, 1e-9)
	})
	t.Run("short row rejected", func(t *testing.T) {
		_, err := parseKline(klineRow(`1756600000000`, `"1"`, `"2"`))
		assert.Error(t, err)
	})
	t.Run("garbage price rejected", func(t *testing.T) {
		_, err := parseKline(klineRow(`1756600000000`, `"abc"`, `"2"`, `"1"`, `"1.5"`, `"10"`))
		assert.Error(t, err)
	})
}
