package usecase

import (
	"context"
	"fmt"
	"sort"
	"time"

	"SigTrail/internal/domain/models"
	drepo "SigTrail/internal/domain/repository"
	"SigTrail/pkg/logger"
)

// InsightsAggregator computes read-only rollups over terminal signals.
// It reads a snapshot of the store and never blocks or mutates writers;
// a signal evaluated mid-aggregation may or may not be included.
type InsightsAggregator struct {
	store     drepo.SignalStore
	l         *logger.Logger
	minSample int
}

// NewInsightsAggregator creates an aggregator. minSample guards suggestions
// against insufficient per-symbol data.
func NewInsightsAggregator(store drepo.SignalStore, l *logger.Logger, minSample int) *InsightsAggregator {
	if minSample <= 0 {
		minSample = 5
	}
	return &InsightsAggregator{store: store, l: l, minSample: minSample}
}

// Insights aggregates all EVALUATED/EXPIRED signals evaluated within the last
// periodDays. It never raises: on partial snapshot reads it degrades
// gracefully, flagging the report instead.
func (a *InsightsAggregator) Insights(ctx context.Context, periodDays int) (models.InsightsReport, error) {
	if periodDays <= 0 {
		periodDays = 30
	}
	report := models.InsightsReport{
		PeriodDays:  periodDays,
		Symbols:     make(map[string]models.SymbolPerformance),
		Suggestions: []string{},
		GeneratedAt: time.Now().UTC(),
	}
	cutoff := report.GeneratedAt.AddDate(0, 0, -periodDays)

	var terminal []models.Signal
	for _, state := range []models.State{models.StateEvaluated, models.StateExpired} {
		batch, err := a.store.List(ctx, drepo.SignalFilter{State: state})
		if err != nil {
			report.Partial = true
			report.Warning = fmt.Sprintf("incomplete snapshot: listing %s signals failed: %v", state, err)
			a.l.Warn("insights snapshot incomplete",
				logger.String("state", string(state)), logger.Error(err))
			continue
		}
		terminal = append(terminal, batch...)
	}

	var wins int
	var returnSum float64
	for i := range terminal {
		s := &terminal[i]
		if s.EvaluatedAt.Before(cutoff) {
			continue
		}
		report.TotalSignals++
		returnSum += s.ActualReturn

		perf := report.Symbols[s.Symbol]
		perf.Total++
		if s.Outcome == models.OutcomeTPHit {
			perf.Wins++
			wins++
		}
		report.Symbols[s.Symbol] = perf
	}

	if report.TotalSignals > 0 {
		report.Overall = models.OverallPerformance{
			SuccessRate: float64(wins) / float64(report.TotalSignals),
			AvgReturn:   returnSum / float64(report.TotalSignals),
			TotalReturn: returnSum,
		}
	}
	for sym, perf := range report.Symbols {
		if perf.Total > 0 {
			perf.SuccessRate = float64(perf.Wins) / float64(perf.Total)
		}
		report.Symbols[sym] = perf
	}

	report.Suggestions = a.suggest(&report)
	return report, nil
}

// suggest applies the rule set in a deterministic symbol order.
func (a *InsightsAggregator) suggest(r *models.InsightsReport) []string {
	out := []string{}

	symbols := make([]string, 0, len(r.Symbols))
	for sym := range r.Symbols {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	for _, sym := range symbols {
		perf := r.Symbols[sym]
		if perf.Total < a.minSample {
			continue
		}
		switch {
		case perf.SuccessRate < 0.4:
			out = append(out, fmt.Sprintf(
				"success rate for %s below 40%% (%.0f%% over %d signals); reduce exposure or exclude it",
				sym, perf.SuccessRate*100, perf.Total))
		case perf.SuccessRate >= 0.6:
			out = append(out, fmt.Sprintf(
				"%s wins %.0f%% of %d signals; candidate for larger allocation",
				sym, perf.SuccessRate*100, perf.Total))
		}
	}

	if r.TotalSignals >= a.minSample && r.Overall.AvgReturn < 0 {
		out = append(out, fmt.Sprintf(
			"average return %.2f%% is negative over %d signals; review entry criteria before sizing up",
			r.Overall.AvgReturn, r.TotalSignals))
	}
	return out
}
