package usecase

import (
	"math"

	"SigTrail/internal/domain/models"
)

// Confluence weights per indicator. They sum to 1.0; that sum is an
// invariant, not incidental, so the score stays inside [-1,1].
const (
	WeightRSI    = 0.25
	WeightEMA    = 0.30
	WeightMACD   = 0.25
	WeightVolume = 0.20
)

// ConfluenceScorer turns an indicator snapshot into a confluence score.
// Deterministic and side-effect free.
type ConfluenceScorer struct{}

// NewConfluenceScorer creates a scorer.
func NewConfluenceScorer() *ConfluenceScorer { return &ConfluenceScorer{} }

// Score scores the snapshot. Missing indicators contribute 0 and are not
// listed in Supporting. Any internal error yields the neutral result instead
// of propagating.
func (cs *ConfluenceScorer) Score(snap *models.IndicatorSnapshot) (result models.Confluence) {
	result = neutralConfluence()
	defer func() {
		if r := recover(); r != nil {
			result = neutralConfluence()
		}
	}()
	if snap == nil {
		return result
	}

	score := 0.0
	supporting := make([]string, 0, 4)

	if snap.RSI != nil {
		switch {
		case snap.RSI.Oversold:
			score += WeightRSI
			supporting = append(supporting, "rsi_oversold")
		case snap.RSI.Overbought:
			score -= WeightRSI
			supporting = append(supporting, "rsi_overbought")
		}
	}
	if snap.EMA != nil {
		switch snap.EMA.Trend {
		case models.TrendBullish:
			score += WeightEMA
			supporting = append(supporting, "ema_bullish")
		case models.TrendBearish:
			score -= WeightEMA
			supporting = append(supporting, "ema_bearish")
		}
	}
	if snap.MACD != nil {
		if snap.MACD.Bullish {
			score += WeightMACD
			supporting = append(supporting, "macd_bullish")
		} else {
			score -= WeightMACD
			supporting = append(supporting, "macd_bearish")
		}
	}
	// Volume only ever adds: above-average participation confirms, absence
	// of it is not a bearish reading.
	if snap.Volume != nil && snap.Volume.AboveAverage {
		score += WeightVolume
		supporting = append(supporting, "volume_above_average")
	}

	score = clamp(score, -1, 1)

	result = models.Confluence{
		Score:      score,
		Level:      models.LevelForScore(score),
		Supporting: supporting,
		Strength:   math.Min(math.Abs(score), 1.0),
	}
	return result
}

func neutralConfluence() models.Confluence {
	return models.Confluence{
		Score:      0,
		Level:      models.ConfluenceLow,
		Supporting: []string{},
		Strength:   0,
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
