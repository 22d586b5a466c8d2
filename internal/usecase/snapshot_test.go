package usecase

import (
	"context"
	"testing"
	"time"

	"SigTrail/internal/domain/models"
	drepo "SigTrail/internal/domain/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// risingBars builds a steadily climbing tape with a volume spike on the
// final bar.
func risingBars(n int, tf drepo.Timeframe) []models.PriceBar {
	start := time.Now().UTC().Add(-time.Duration(n) * tf.Duration())
	bars := make([]models.PriceBar, n)
	price := 100.0
	for i := range bars {
		price += 0.5
		vol := 100.0
		if i == n-1 {
			vol = 400
		}
		bars[i] = models.PriceBar{
			Timestamp: start.Add(time.Duration(i) * tf.Duration()),
			Open:      price - 0.5,
			High:      price + 1,
			Low:       price - 1,
			Close:     price,
			Volume:    vol,
		}
	}
	return bars
}

func TestBuildSnapshotFullHistory(t *testing.T) {
	market := newFakeMarket()
	market.bars["BTCUSDT"] = risingBars(120, drepo.TF1h)

	b := NewSnapshotBuilder(market)
	snap, bars, err := b.Build(context.Background(), "BTCUSDT", drepo.TF1h)
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Len(t, bars, 120)

	assert.Equal(t, "BTCUSDT", snap.Symbol)
	assert.Equal(t, "1h", snap.Timeframe)
	assert.False(t, snap.At.IsZero())

	require.NotNil(t, snap.RSI)
	// Monotone gains push Wilder RSI to its ceiling.
	assert.InDelta(t, 100, snap.RSI.Value, 1e-9)
	assert.True(t, snap.RSI.Overbought)
	assert.False(t, snap.RSI.Oversold)

	require.NotNil(t, snap.EMA)
	assert.Equal(t, models.TrendBullish, snap.EMA.Trend)
	assert.Greater(t, snap.EMA.Fast, snap.EMA.Slow)

	require.NotNil(t, snap.MACD)
	require.NotNil(t, snap.Volume)
	assert.True(t, snap.Volume.AboveAverage)
	assert.InDelta(t, 100, snap.Volume.Average, 1e-9)
	assert.InDelta(t, 400, snap.Volume.Current, 1e-9)
}

func TestBuildSnapshotShortHistory(t *testing.T) {
	market := newFakeMarket()
	market.bars["BTCUSDT"] = risingBars(10, drepo.TF1h)

	b := NewSnapshotBuilder(market)
	snap, _, err := b.Build(context.Background(), "BTCUSDT", drepo.TF1h)
	require.NoError(t, err)

	// 10 bars is below every indicator period; all readings stay nil and the
	// snapshot scores neutral.
	assert.Nil(t, snap.RSI)
	assert.Nil(t, snap.EMA)
	assert.Nil(t, snap.MACD)
	assert.Nil(t, snap.Volume)

	conf := NewConfluenceScorer().Score(snap)
	assert.Zero(t, conf.Score)
	assert.Equal(t, models.ConfluenceLow, conf.Level)
}

func TestBuildSnapshotNoData(t *testing.T) {
	market := newFakeMarket()

	b := NewSnapshotBuilder(market)
	_, _, err := b.Build(context.Background(), "UNKNOWN", drepo.TF1h)
	assert.ErrorIs(t, err, models.ErrMarketDataNotFound)
}

func TestDeriveSignalBuyBracket(t *testing.T) {
	bars := risingBars(120, drepo.TF1h)
	snap := &models.IndicatorSnapshot{Symbol: "BTCUSDT", Timeframe: "1h"}
	conf := models.Confluence{
		Score:      0.75,
		Level:      models.ConfluenceHigh,
		Supporting: []string{"ema_bullish", "macd_bullish"},
		Strength:   0.75,
	}

	s := DeriveSignal(snap, conf, bars)
	require.NotNil(t, s)
	require.NoError(t, s.Validate())

	entry := bars[len(bars)-1].Close
	assert.Equal(t, models.DirectionBuy, s.Direction)
	assert.InDelta(t, entry, s.EntryPrice, 1e-9)
	assert.Greater(t, s.TakeProfit, s.EntryPrice)
	assert.Less(t, s.StopLoss, s.EntryPrice)
	assert.InDelta(t, 75, s.Confidence, 1e-9)
	// Reward is sized 2 ATR against a 1.5 ATR risk.
	reward := s.TakeProfit - s.EntryPrice
	risk := s.EntryPrice - s.StopLoss
	assert.InDelta(t, 2.0/1.5, reward/risk, 1e-9)
}

func TestDeriveSignalSellBracket(t *testing.T) {
	bars := risingBars(120, drepo.TF1h)
	snap := &models.IndicatorSnapshot{Symbol: "BTCUSDT", Timeframe: "1h"}
	conf := models.Confluence{
		Score:      -0.6,
		Level:      models.ConfluenceMedium,
		Supporting: []string{"ema_bearish"},
		Strength:   0.6,
	}

	s := DeriveSignal(snap, conf, bars)
	require.NotNil(t, s)
	require.NoError(t, s.Validate())
	assert.Equal(t, models.DirectionSell, s.Direction)
	assert.Less(t, s.TakeProfit, s.EntryPrice)
	assert.Greater(t, s.StopLoss, s.EntryPrice)
}

func TestDeriveSignalNilCases(t *testing.T) {
	bars := risingBars(120, drepo.TF1h)
	snap := &models.IndicatorSnapshot{Symbol: "BTCUSDT", Timeframe: "1h"}

	t.Run("low confluence", func(t *testing.T) {
		conf := models.Confluence{Score: 0.2, Level: models.ConfluenceLow, Strength: 0.2}
		assert.Nil(t, DeriveSignal(snap, conf, bars))
	})
	t.Run("nil snapshot", func(t *testing.T) {
		conf := models.Confluence{Score: 0.8, Level: models.ConfluenceHigh, Strength: 0.8}
		assert.Nil(t, DeriveSignal(nil, conf, bars))
	})
	t.Run("no bars", func(t *testing.T) {
		conf := models.Confluence{Score: 0.8, Level: models.ConfluenceHigh, Strength: 0.8}
		assert.Nil(t, DeriveSignal(snap, conf, nil))
	})
	t.Run("history too short for atr", func(t *testing.T) {
		conf := models.Confluence{Score: 0.8, Level: models.ConfluenceHigh, Strength: 0.8}
		assert.Nil(t, DeriveSignal(snap, conf, risingBars(5, drepo.TF1h)))
	})
}

func TestIndicatorSeries(t *testing.T) {
	t.Run("rsi needs period closes", func(t *testing.T) {
		assert.Nil(t, rsiSeries([]float64{1, 2, 3}, 14))
	})
	t.Run("rsi all losses is zero", func(t *testing.T) {
		closes := make([]float64, 30)
		for i := range closes {
			closes[i] = 100 - float64(i)
		}
		rsi := rsiSeries(closes, 14)
		require.NotNil(t, rsi)
		assert.InDelta(t, 0, rsi[len(rsi)-1], 1e-9)
	})
	t.Run("ema converges toward constant tape", func(t *testing.T) {
		values := make([]float64, 60)
		for i := range values {
			values[i] = 42
		}
		ema := emaSeries(values, 20)
		require.NotNil(t, ema)
		assert.InDelta(t, 42, ema[len(ema)-1], 1e-9)
	})
	t.Run("atr of fixed range bars", func(t *testing.T) {
		n := 20
		highs := make([]float64, n)
		lows := make([]float64, n)
		closes := make([]float64, n)
		for i := 0; i < n; i++ {
			highs[i], lows[i], closes[i] = 102, 98, 100
		}
		atr, ok := averageTrueRange(highs, lows, closes, 14)
		require.True(t, ok)
		assert.InDelta(t, 4, atr, 1e-9)
	})
}
