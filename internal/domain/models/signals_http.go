package models

// Requests for the signals HTTP endpoints. Defined in domain for consistency
// and reuse across handlers.

type TrackSignalRequest struct {
	Symbol     string  `json:"symbol" validate:"required"`
	Timeframe  string  `json:"timeframe" default:"1h" validate:"oneof=1m 5m 15m 1h 4h 1d"`
	Direction  string  `json:"direction" validate:"required,oneof=BUY SELL"`
	Confidence float64 `json:"confidence" validate:"gte=0,lte=100"`
	EntryPrice float64 `json:"entry_price" validate:"required,gt=0"`
	TakeProfit float64 `json:"take_profit" validate:"required,gt=0"`
	StopLoss   float64 `json:"stop_loss" validate:"required,gt=0"`
	Reasoning  string  `json:"reasoning" validate:"max=2000"`
}

type ListSignalsRequest struct {
	Symbol    string `query:"symbol" json:"symbol"`
	Timeframe string `query:"timeframe" json:"timeframe" validate:"omitempty,oneof=1m 5m 15m 1h 4h 1d"`
	State     string `query:"state" json:"state" validate:"omitempty,oneof=PENDING EXECUTED EVALUATED EXPIRED"`
	Limit     int    `query:"limit" json:"limit" default:"50" validate:"gte=1,lte=500"`
}

type ExecuteSignalRequest struct {
	Price  float64 `json:"price" validate:"required,gt=0"`
	Source string  `json:"source" default:"manual" validate:"max=64"`
}

type EvaluateBatchRequest struct {
	MaxSignals int `query:"max_signals" json:"max_signals" default:"50" validate:"gte=1,lte=500"`
}

type InsightsRequest struct {
	PeriodDays int `query:"period_days" json:"period_days" default:"30" validate:"gte=1,lte=365"`
}

type AnalyzeRequest struct {
	Symbol    string `query:"symbol" json:"symbol" validate:"required"`
	Timeframe string `query:"timeframe" json:"timeframe" default:"1h" validate:"oneof=1m 5m 15m 1h 4h 1d"`
	Track     bool   `query:"track" json:"track"`
}
