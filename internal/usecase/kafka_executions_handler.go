package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"SigTrail/internal/domain/models"
	drepo "SigTrail/internal/domain/repository"
	"SigTrail/pkg/kafka"
	"SigTrail/pkg/logger"
)

// KafkaExecutionsHandler consumes fill events from the execution engine's
// topic and advances the matching signal to EXECUTED.
type KafkaExecutionsHandler struct {
	topic   string
	tracker *SignalTracker
	metrics drepo.Metrics
	l       *logger.Logger
}

func NewKafkaExecutionsHandler(topic string, tracker *SignalTracker, metrics drepo.Metrics, l *logger.Logger) *KafkaExecutionsHandler {
	return &KafkaExecutionsHandler{topic: topic, tracker: tracker, metrics: metrics, l: l}
}

func (h *KafkaExecutionsHandler) Topic() string { return h.topic }

// incoming message schema: {signal_id, price, source, t}
func (h *KafkaExecutionsHandler) Handle(ctx context.Context, b []byte) error {
	var m struct {
		SignalID string  `json:"signal_id"`
		Price    float64 `json:"price"`
		Source   string  `json:"source"`
		T        int64   `json:"t"`
	}
	if err := json.Unmarshal(b, &m); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return err
	}
	if m.SignalID == "" || m.Price <= 0 {
		h.metrics.RecordError("consumer_bad_fill")
		h.l.Warn("fill event missing signal_id or price, dropping")
		return nil
	}
	if m.Source == "" {
		m.Source = "execution-engine"
	}
	if m.T > 0 {
		if m.T > 1e11 { // ms
			m.T = m.T / 1000
		}
		h.metrics.RecordLatency("fill_e2e_seconds", time.Since(time.Unix(m.T, 0)).Seconds())
	}

	_, err := h.tracker.MarkExecuted(ctx, m.SignalID, m.Price, m.Source)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, models.ErrNotFound), errors.Is(err, models.ErrInvalidTransition), errors.Is(err, models.ErrAlreadyEvaluated):
		// Stale or duplicate fill; retrying cannot help.
		h.metrics.RecordError("consumer_stale_fill")
		h.l.Warn("dropping fill for signal",
			logger.String("signal_id", m.SignalID), logger.Error(err))
		return nil
	default:
		h.metrics.RecordError("consumer_store")
		return err
	}
}

var _ kafka.MessageHandler = (*KafkaExecutionsHandler)(nil)
