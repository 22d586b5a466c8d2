package models

import "time"

// Trend is the coarse direction read from a moving-average pair.
type Trend string

const (
	TrendBullish Trend = "bullish"
	TrendBearish Trend = "bearish"
	TrendNeutral Trend = "neutral"
)

// RSIReading is the relative strength index reading.
type RSIReading struct {
	Value      float64 `json:"value"`
	Oversold   bool    `json:"oversold"`
	Overbought bool    `json:"overbought"`
}

// EMAReading compares a fast and a slow exponential moving average.
type EMAReading struct {
	Fast  float64 `json:"fast"`
	Slow  float64 `json:"slow"`
	Trend Trend   `json:"trend"`
}

// MACDReading carries the MACD histogram sign.
type MACDReading struct {
	Histogram float64 `json:"histogram"`
	Bullish   bool    `json:"bullish"`
}

// VolumeReading compares current volume against its rolling average.
type VolumeReading struct {
	Current      float64 `json:"current"`
	Average      float64 `json:"average"`
	AboveAverage bool    `json:"above_average"`
}

// IndicatorSnapshot is an ephemeral, per-call view of the indicators for one
// symbol/timeframe. A nil reading means the indicator could not be computed
// and contributes nothing to the confluence score. Never mutated after
// creation and never persisted.
type IndicatorSnapshot struct {
	Symbol    string         `json:"symbol"`
	Timeframe string         `json:"timeframe"`
	At        time.Time      `json:"at"`
	RSI       *RSIReading    `json:"rsi,omitempty"`
	EMA       *EMAReading    `json:"ema,omitempty"`
	MACD      *MACDReading   `json:"macd,omitempty"`
	Volume    *VolumeReading `json:"volume,omitempty"`
}

// ConfluenceLevel is the coarse bucket derived from the score magnitude.
type ConfluenceLevel string

const (
	ConfluenceLow    ConfluenceLevel = "LOW"
	ConfluenceMedium ConfluenceLevel = "MEDIUM"
	ConfluenceHigh   ConfluenceLevel = "HIGH"
)

// LevelForScore maps a score magnitude onto its confluence level.
func LevelForScore(score float64) ConfluenceLevel {
	abs := score
	if abs < 0 {
		abs = -abs
	}
	switch {
	case abs > 0.7:
		return ConfluenceHigh
	case abs > 0.5:
		return ConfluenceMedium
	default:
		return ConfluenceLow
	}
}

// Confluence is the result of scoring an indicator snapshot.
type Confluence struct {
	Score      float64         `json:"score"`
	Level      ConfluenceLevel `json:"level"`
	Supporting []string        `json:"supporting"`
	Strength   float64         `json:"strength"`
}
