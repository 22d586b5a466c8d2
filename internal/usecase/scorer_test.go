package usecase

import (
	"testing"

	"SigTrail/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWeightsSumToOne(t *testing.T) {
	assert.InDelta(t, 1.0, WeightRSI+WeightEMA+WeightMACD+WeightVolume, 1e-9)
}

func TestScoreAllBullish(t *testing.T) {
	scorer := NewConfluenceScorer()
	snap := &models.IndicatorSnapshot{
		Symbol:    "BTCUSDT",
		Timeframe: "1h",
		RSI:       &models.RSIReading{Value: 25, Oversold: true},
		EMA:       &models.EMAReading{Fast: 101, Slow: 100, Trend: models.TrendBullish},
		MACD:      &models.MACDReading{Histogram: 1.2, Bullish: true},
		Volume:    &models.VolumeReading{Current: 200, Average: 100, AboveAverage: true},
	}

	conf := scorer.Score(snap)
	assert.InDelta(t, 1.0, conf.Score, 1e-9)
	assert.Equal(t, models.ConfluenceHigh, conf.Level)
	assert.InDelta(t, 1.0, conf.Strength, 1e-9)
	assert.ElementsMatch(t, []string{
		"rsi_oversold", "ema_bullish", "macd_bullish", "volume_above_average",
	}, conf.Supporting)
}

func TestScoreBearishReadings(t *testing.T) {
	scorer := NewConfluenceScorer()
	snap := &models.IndicatorSnapshot{
		RSI:  &models.RSIReading{Value: 78, Overbought: true},
		EMA:  &models.EMAReading{Fast: 99, Slow: 100, Trend: models.TrendBearish},
		MACD: &models.MACDReading{Histogram: -0.4, Bullish: false},
	}

	conf := scorer.Score(snap)
	assert.InDelta(t, -0.80, conf.Score, 1e-9)
	assert.Equal(t, models.ConfluenceHigh, conf.Level)
	assert.InDelta(t, 0.80, conf.Strength, 1e-9)
}

func TestScoreVolumeNeverSubtracts(t *testing.T) {
	scorer := NewConfluenceScorer()

	// Bearish tape with heavy volume: the volume weight still adds.
	snap := &models.IndicatorSnapshot{
		EMA:    &models.EMAReading{Fast: 98, Slow: 100, Trend: models.TrendBearish},
		MACD:   &models.MACDReading{Histogram: -1, Bullish: false},
		Volume: &models.VolumeReading{Current: 500, Average: 100, AboveAverage: true},
	}
	conf := scorer.Score(snap)
	assert.InDelta(t, -WeightEMA-WeightMACD+WeightVolume, conf.Score, 1e-9)

	// Below-average volume contributes nothing in either direction.
	snap.Volume = &models.VolumeReading{Current: 50, Average: 100, AboveAverage: false}
	conf = scorer.Score(snap)
	assert.InDelta(t, -WeightEMA-WeightMACD, conf.Score, 1e-9)
	assert.NotContains(t, conf.Supporting, "volume_above_average")
}

func TestScoreLevels(t *testing.T) {
	scorer := NewConfluenceScorer()

	t.Run("medium", func(t *testing.T) {
		snap := &models.IndicatorSnapshot{
			EMA:  &models.EMAReading{Trend: models.TrendBullish},
			MACD: &models.MACDReading{Histogram: 0.3, Bullish: true},
		}
		conf := scorer.Score(snap)
		assert.InDelta(t, 0.55, conf.Score, 1e-9)
		assert.Equal(t, models.ConfluenceMedium, conf.Level)
	})

	t.Run("low", func(t *testing.T) {
		snap := &models.IndicatorSnapshot{
			Volume: &models.VolumeReading{AboveAverage: true},
		}
		conf := scorer.Score(snap)
		assert.InDelta(t, 0.20, conf.Score, 1e-9)
		assert.Equal(t, models.ConfluenceLow, conf.Level)
	})

	t.Run("boundaries are exclusive", func(t *testing.T) {
		assert.Equal(t, models.ConfluenceLow, models.LevelForScore(0.5))
		assert.Equal(t, models.ConfluenceMedium, models.LevelForScore(0.51))
		assert.Equal(t, models.ConfluenceMedium, models.LevelForScore(0.7))
		assert.Equal(t, models.ConfluenceHigh, models.LevelForScore(0.71))
		assert.Equal(t, models.ConfluenceHigh, models.LevelForScore(-0.9))
	})
}

func TestScoreNeutralOnMissingInput(t *testing.T) {
	scorer := NewConfluenceScorer()

	for _, snap := range []*models.IndicatorSnapshot{nil, {}} {
		conf := scorer.Score(snap)
		assert.Zero(t, conf.Score)
		assert.Equal(t, models.ConfluenceLow, conf.Level)
		assert.Zero(t, conf.Strength)
		require.NotNil(t, conf.Supporting)
		assert.Empty(t, conf.Supporting)
	}
}

func TestScoreDeterministic(t *testing.T) {
	scorer := NewConfluenceScorer()
	snap := &models.IndicatorSnapshot{
		RSI:    &models.RSIReading{Value: 28, Oversold: true},
		EMA:    &models.EMAReading{Trend: models.TrendNeutral},
		MACD:   &models.MACDReading{Histogram: 0.1, Bullish: true},
		Volume: &models.VolumeReading{AboveAverage: true},
	}

	first := scorer.Score(snap)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, scorer.Score(snap))
	}
}
