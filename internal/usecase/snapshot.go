package usecase

import (
	"context"
	"fmt"
	"math"
	"time"

	"SigTrail/internal/domain/models"
	drepo "SigTrail/internal/domain/repository"
)

const (
	rsiPeriod     = 14
	rsiOversold   = 30.0
	rsiOverbought = 70.0
	emaFastPeriod = 20
	emaSlowPeriod = 50
	volumeWindow  = 20
	atrPeriod     = 14
	snapshotBars  = 120
)

// SnapshotBuilder is the upstream analysis step: it turns recent price
// history into a fresh IndicatorSnapshot for scoring. Each snapshot is
// produced per call and never mutated afterwards.
type SnapshotBuilder struct {
	market drepo.MarketData
}

// NewSnapshotBuilder creates a builder over the market-data collaborator.
func NewSnapshotBuilder(market drepo.MarketData) *SnapshotBuilder {
	return &SnapshotBuilder{market: market}
}

// Build fetches recent bars and computes the indicator readings. Indicators
// with insufficient history are left nil so they contribute nothing to the
// confluence score.
func (b *SnapshotBuilder) Build(ctx context.Context, symbol string, tf drepo.Timeframe) (*models.IndicatorSnapshot, []models.PriceBar, error) {
	from := time.Now().UTC().Add(-time.Duration(snapshotBars) * tf.Duration())
	bars, err := b.market.PricePath(ctx, symbol, tf, from)
	if err != nil {
		return nil, nil, fmt.Errorf("price path for snapshot: %w", err)
	}
	if len(bars) == 0 {
		return nil, nil, fmt.Errorf("snapshot %s/%s: %w", symbol, tf, models.ErrMarketDataNotFound)
	}

	closes := make([]float64, len(bars))
	volumes := make([]float64, len(bars))
	for i, bar := range bars {
		closes[i] = bar.Close
		volumes[i] = bar.Volume
	}

	snap := &models.IndicatorSnapshot{
		Symbol:    symbol,
		Timeframe: string(tf),
		At:        time.Now().UTC(),
	}

	if rsi := rsiSeries(closes, rsiPeriod); rsi != nil {
		v := rsi[len(rsi)-1]
		if !math.IsNaN(v) {
			snap.RSI = &models.RSIReading{
				Value:      v,
				Oversold:   v < rsiOversold,
				Overbought: v > rsiOverbought,
			}
		}
	}

	fast := emaSeries(closes, emaFastPeriod)
	slow := emaSeries(closes, emaSlowPeriod)
	if fast != nil && slow != nil {
		f, s := fast[len(fast)-1], slow[len(slow)-1]
		if !math.IsNaN(f) && !math.IsNaN(s) && s > 0 {
			trend := models.TrendNeutral
			// 0.05% band keeps flat tape from flapping between trends.
			switch {
			case f > s*1.0005:
				trend = models.TrendBullish
			case f < s*0.9995:
				trend = models.TrendBearish
			}
			snap.EMA = &models.EMAReading{Fast: f, Slow: s, Trend: trend}
		}
	}

	if hist, ok := macdHistogram(closes); ok {
		snap.MACD = &models.MACDReading{Histogram: hist, Bullish: hist > 0}
	}

	if len(volumes) > volumeWindow {
		var sum float64
		for _, v := range volumes[len(volumes)-volumeWindow-1 : len(volumes)-1] {
			sum += v
		}
		avg := sum / volumeWindow
		cur := volumes[len(volumes)-1]
		snap.Volume = &models.VolumeReading{
			Current:      cur,
			Average:      avg,
			AboveAverage: avg > 0 && cur > avg,
		}
	}

	return snap, bars, nil
}

// DeriveSignal constructs a candidate signal from a scored snapshot and the
// bars it was built from. The bracket is sized from the average true range.
// Returns nil when confluence is LOW or no bracket can be derived.
func DeriveSignal(snap *models.IndicatorSnapshot, conf models.Confluence, bars []models.PriceBar) *models.Signal {
	if snap == nil || conf.Level == models.ConfluenceLow || len(bars) == 0 {
		return nil
	}

	highs := make([]float64, len(bars))
	lows := make([]float64, len(bars))
	closes := make([]float64, len(bars))
	for i, bar := range bars {
		highs[i], lows[i], closes[i] = bar.High, bar.Low, bar.Close
	}
	atr, ok := averageTrueRange(highs, lows, closes, atrPeriod)
	if !ok || atr <= 0 {
		return nil
	}

	entry := closes[len(closes)-1]
	if entry <= 0 {
		return nil
	}

	s := &models.Signal{
		Symbol:     snap.Symbol,
		Timeframe:  snap.Timeframe,
		Confidence: conf.Strength * 100,
		EntryPrice: entry,
		Reasoning:  fmt.Sprintf("confluence %s (score %.2f): %v", conf.Level, conf.Score, conf.Supporting),
		CreatedAt:  time.Now().UTC(),
	}
	if conf.Score > 0 {
		s.Direction = models.DirectionBuy
		s.TakeProfit = entry + 2*atr
		s.StopLoss = entry - 1.5*atr
	} else {
		s.Direction = models.DirectionSell
		s.TakeProfit = entry - 2*atr
		s.StopLoss = entry + 1.5*atr
	}
	return s
}
