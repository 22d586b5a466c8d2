package models

import "time"

// OverallPerformance aggregates returns across all terminal signals.
type OverallPerformance struct {
	SuccessRate float64 `json:"success_rate"`
	AvgReturn   float64 `json:"avg_return"`
	TotalReturn float64 `json:"total_return"`
}

// SymbolPerformance aggregates outcomes per symbol.
type SymbolPerformance struct {
	Total       int     `json:"total"`
	Wins        int     `json:"wins"`
	SuccessRate float64 `json:"success_rate"`
}

// InsightsReport is the read-only rollup over evaluated signals.
// Partial is set when the snapshot could not be read completely; the
// report still carries best-effort numbers.
type InsightsReport struct {
	PeriodDays   int                          `json:"period_days"`
	TotalSignals int                          `json:"total_signals"`
	Overall      OverallPerformance           `json:"overall_performance"`
	Symbols      map[string]SymbolPerformance `json:"symbol_performance"`
	Suggestions  []string                     `json:"suggestions"`
	Partial      bool                         `json:"partial,omitempty"`
	Warning      string                       `json:"warning,omitempty"`
	GeneratedAt  time.Time                    `json:"generated_at"`
}
