package models

import (
	"fmt"
	"time"
)

// Direction is the side of a trading signal.
type Direction string

const (
	DirectionBuy  Direction = "BUY"
	DirectionSell Direction = "SELL"
)

// State is the lifecycle state of a signal. Transitions are monotonic:
// PENDING -> EXECUTED -> EVALUATED, PENDING -> EVALUATED, or
// PENDING/EXECUTED -> EXPIRED. No state is ever revisited.
type State string

const (
	StatePending   State = "PENDING"
	StateExecuted  State = "EXECUTED"
	StateEvaluated State = "EVALUATED"
	StateExpired   State = "EXPIRED"
)

// Outcome is the terminal classification of a signal against price history.
type Outcome string

const (
	OutcomeNone    Outcome = "NONE"
	OutcomeTPHit   Outcome = "TP_HIT"
	OutcomeSLHit   Outcome = "SL_HIT"
	OutcomeTimeout Outcome = "TIMEOUT"
)

// Signal is the central persisted entity: one trading decision tracked from
// creation through its real-world outcome.
type Signal struct {
	ID              string    `json:"id" db:"id"`
	Symbol          string    `json:"symbol" db:"symbol"`
	Timeframe       string    `json:"timeframe" db:"timeframe"`
	Direction       Direction `json:"direction" db:"direction"`
	Confidence      float64   `json:"confidence" db:"confidence"`
	EntryPrice      float64   `json:"entry_price" db:"entry_price"`
	TakeProfit      float64   `json:"take_profit" db:"take_profit"`
	StopLoss        float64   `json:"stop_loss" db:"stop_loss"`
	State           State     `json:"state" db:"state"`
	Outcome         Outcome   `json:"outcome" db:"outcome"`
	ActualReturn    float64   `json:"actual_return" db:"actual_return"`
	Reasoning       string    `json:"reasoning,omitempty" db:"reasoning"`
	ExecutionPrice  float64   `json:"execution_price,omitempty" db:"execution_price"`
	ExecutionSource string    `json:"execution_source,omitempty" db:"execution_source"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
	EvaluatedAt     time.Time `json:"evaluated_at,omitempty" db:"evaluated_at"`
}

// IsTerminal reports whether the signal has reached a terminal state.
func (s *Signal) IsTerminal() bool {
	return s.State == StateEvaluated || s.State == StateExpired
}

// DirectionSign returns +1 for BUY and -1 for SELL.
func (s *Signal) DirectionSign() float64 {
	if s.Direction == DirectionSell {
		return -1
	}
	return 1
}

// Validate checks the bracket invariant and value ranges. A signal rejected
// here is never stored.
func (s *Signal) Validate() error {
	if s.Symbol == "" {
		return &ValidationError{Field: "symbol", Reason: "symbol is required"}
	}
	if s.Timeframe == "" {
		return &ValidationError{Field: "timeframe", Reason: "timeframe is required"}
	}
	if s.Direction != DirectionBuy && s.Direction != DirectionSell {
		return &ValidationError{Field: "direction", Reason: fmt.Sprintf("unknown direction %q", s.Direction)}
	}
	if s.Confidence < 0 || s.Confidence > 100 {
		return &ValidationError{Field: "confidence", Reason: fmt.Sprintf("confidence %.2f outside [0,100]", s.Confidence)}
	}
	if s.EntryPrice <= 0 || s.TakeProfit <= 0 || s.StopLoss <= 0 {
		return &ValidationError{Field: "prices", Reason: "entry, take_profit and stop_loss must be positive"}
	}
	switch s.Direction {
	case DirectionBuy:
		if !(s.StopLoss < s.EntryPrice && s.EntryPrice < s.TakeProfit) {
			return &ValidationError{
				Field:  "prices",
				Reason: fmt.Sprintf("BUY bracket requires stop_loss < entry < take_profit, got %.8g / %.8g / %.8g", s.StopLoss, s.EntryPrice, s.TakeProfit),
			}
		}
	case DirectionSell:
		if !(s.TakeProfit < s.EntryPrice && s.EntryPrice < s.StopLoss) {
			return &ValidationError{
				Field:  "prices",
				Reason: fmt.Sprintf("SELL bracket requires take_profit < entry < stop_loss, got %.8g / %.8g / %.8g", s.TakeProfit, s.EntryPrice, s.StopLoss),
			}
		}
	}
	return nil
}

// PriceBar is one bar of the price path used for outcome resolution.
// Intrabar ordering of High and Low is unknown to us.
type PriceBar struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// EvaluationResult is the outcome of resolving a single signal.
type EvaluationResult struct {
	ID           string    `json:"id"`
	Outcome      Outcome   `json:"outcome"`
	State        State     `json:"state"`
	ActualReturn float64   `json:"actual_return"`
	ExitPrice    float64   `json:"exit_price"`
	EvaluatedAt  time.Time `json:"evaluated_at"`
}

// BatchReport summarizes one batch evaluation run.
type BatchReport struct {
	TotalEvaluated int             `json:"total_evaluated"`
	Deferred       int             `json:"deferred"`
	Skipped        int             `json:"skipped"`
	OutcomeCounts  map[Outcome]int `json:"outcome_counts"`
	AvgReturn      float64         `json:"avg_return"`
	StartedAt      time.Time       `json:"started_at"`
	FinishedAt     time.Time       `json:"finished_at"`
}
