package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"SigTrail/internal/domain/models"
	drepo "SigTrail/internal/domain/repository"
	xhttp "SigTrail/pkg/http"
)

// Client fetches candle history from an exchange-style klines REST API.
// It maps failures onto the domain taxonomy: 4xx "unknown symbol" responses
// become ErrMarketDataNotFound (permanent), everything else transient.
type Client struct {
	baseURL string
	http    *xhttp.Client
	maxBars int
}

// Option configures Client.
type Option func(*Client)

// WithTimeout bounds a single request.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http = xhttp.NewClient(xhttp.WithTimeout(d)) }
}

// WithMaxBars caps the number of bars fetched per request.
func WithMaxBars(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxBars = n
		}
	}
}

// New creates a market-data client.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		http:    xhttp.NewClient(xhttp.WithTimeout(10 * time.Second)),
		maxBars: 1000,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// PricePath returns bars for symbol/tf from `from` through now, oldest first.
func (c *Client) PricePath(ctx context.Context, symbol string, tf drepo.Timeframe, from time.Time) ([]models.PriceBar, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("market data base url not configured: %w", models.ErrMarketDataUnavailable)
	}

	resp, err := c.http.SendRequest(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodGet,
		URL:    c.baseURL + "/klines",
		QueryParams: map[string][]string{
			"symbol":    {symbol},
			"interval":  {string(tf)},
			"startTime": {strconv.FormatInt(from.UnixMilli(), 10)},
			"limit":     {strconv.Itoa(c.maxBars)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("klines request for %s: %w (%v)", symbol, models.ErrMarketDataUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusBadRequest:
		return nil, fmt.Errorf("klines for %s/%s: status %d: %w", symbol, tf, resp.StatusCode, models.ErrMarketDataNotFound)
	default:
		return nil, fmt.Errorf("klines for %s/%s: status %d: %w", symbol, tf, resp.StatusCode, models.ErrMarketDataUnavailable)
	}

	// Binance-style kline rows: [openTime, open, high, low, close, volume, ...]
	var raw [][]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode klines: %w (%v)", models.ErrMarketDataUnavailable, err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("no klines for %s/%s since %s: %w", symbol, tf, from.Format(time.RFC3339), models.ErrMarketDataNotFound)
	}

	bars := make([]models.PriceBar, 0, len(raw))
	for _, row := range raw {
		bar, err := parseKline(row)
		if err != nil {
			return nil, fmt.Errorf("parse kline: %w (%v)", models.ErrMarketDataUnavailable, err)
		}
		bars = append(bars, bar)
	}
	return bars, nil
}

func parseKline(row []json.RawMessage) (models.PriceBar, error) {
	if len(row) < 6 {
		return models.PriceBar{}, fmt.Errorf("kline row has %d fields, want >= 6", len(row))
	}
	var openTime int64
	if err := json.Unmarshal(row[0], &openTime); err != nil {
		return models.PriceBar{}, fmt.Errorf("open time: %w", err)
	}
	vals := make([]float64, 5)
	for i := 1; i <= 5; i++ {
		// Prices arrive as JSON strings.
		var s string
		if err := json.Unmarshal(row[i], &s); err != nil {
			var f float64
			if err2 := json.Unmarshal(row[i], &f); err2 != nil {
				return models.PriceBar{}, fmt.Errorf("field %d: %w", i, err)
			}
			vals[i-1] = f
			continue
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return models.PriceBar{}, fmt.Errorf("field %d: %w", i, err)
		}
		vals[i-1] = f
	}
	return models.PriceBar{
		Timestamp: time.UnixMilli(openTime).UTC(),
		Open:      vals[0],
		High:      vals[1],
		Low:       vals[2],
		Close:     vals[3],
		Volume:    vals[4],
	}, nil
}

var _ drepo.MarketData = (*Client)(nil)
