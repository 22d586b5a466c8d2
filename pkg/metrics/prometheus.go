package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	signalsTracked *prometheus.CounterVec
	transitions    *prometheus.CounterVec
	evaluations    *prometheus.CounterVec
	deferred       *prometheus.CounterVec
	errorsTotal    *prometheus.CounterVec
	lastPrice      *prometheus.GaugeVec
	latency        *prometheus.HistogramVec
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		signalsTracked: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sigtrail_signals_tracked_total",
				Help: "Total number of signals accepted into tracking",
			},
			[]string{"symbol", "direction"},
		),
		transitions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sigtrail_state_transitions_total",
				Help: "Total number of signal state transitions",
			},
			[]string{"state"},
		),
		evaluations: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sigtrail_evaluations_total",
				Help: "Total number of completed evaluations by outcome",
			},
			[]string{"outcome"},
		),
		deferred: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sigtrail_evaluations_deferred_total",
				Help: "Total number of evaluations deferred for missing market data",
			},
			[]string{"reason"},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sigtrail_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		lastPrice: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "sigtrail_last_price",
				Help: "Last streamed price for a symbol",
			},
			[]string{"symbol"},
		),
		latency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sigtrail_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordSignalTracked records a signal accepted into tracking.
func (r *Recorder) RecordSignalTracked(symbol, direction string) {
	r.signalsTracked.WithLabelValues(symbol, direction).Inc()
}

// RecordTransition records a state transition.
func (r *Recorder) RecordTransition(state string) {
	r.transitions.WithLabelValues(state).Inc()
}

// RecordEvaluation records a completed evaluation by outcome.
func (r *Recorder) RecordEvaluation(outcome string) {
	r.evaluations.WithLabelValues(outcome).Inc()
}

// RecordDeferred records an evaluation deferred for missing market data.
func (r *Recorder) RecordDeferred(reason string) {
	r.deferred.WithLabelValues(reason).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLastPrice records the last price for a symbol.
func (r *Recorder) RecordLastPrice(symbol string, price float64) {
	r.lastPrice.WithLabelValues(symbol).Set(price)
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
