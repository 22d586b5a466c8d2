package repository

import (
	"context"
	"time"

	"SigTrail/internal/domain/models"
	drepo "SigTrail/internal/domain/repository"
	pkgkafka "SigTrail/pkg/kafka"
)

// KafkaLifecyclePublisher emits signal lifecycle events. The message key is
// the signal id so all events of one signal land in the same partition.
type KafkaLifecyclePublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

// NewKafkaLifecyclePublisher creates the publisher.
func NewKafkaLifecyclePublisher(producer *pkgkafka.Producer, topic string) drepo.Publisher {
	return &KafkaLifecyclePublisher{producer: producer, topic: topic}
}

func (p *KafkaLifecyclePublisher) PublishLifecycle(ctx context.Context, event string, s models.Signal) error {
	return p.producer.Publish(ctx, p.topic, []byte(s.ID), lifecycleEvent(event, &s))
}

func (p *KafkaLifecyclePublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

// lifecycleEvent is the boundary record shape shared with consumers.
func lifecycleEvent(event string, s *models.Signal) map[string]interface{} {
	m := map[string]interface{}{
		"event":         event,
		"emitted_at":    time.Now().UTC(),
		"signal_id":     s.ID,
		"symbol":        s.Symbol,
		"timeframe":     s.Timeframe,
		"direction":     s.Direction,
		"confidence":    s.Confidence,
		"entry_price":   s.EntryPrice,
		"take_profit":   s.TakeProfit,
		"stop_loss":     s.StopLoss,
		"state":         s.State,
		"outcome":       s.Outcome,
		"actual_return": s.ActualReturn,
		"created_at":    s.CreatedAt,
	}
	if s.Reasoning != "" {
		m["reasoning"] = s.Reasoning
	}
	if !s.EvaluatedAt.IsZero() {
		m["evaluated_at"] = s.EvaluatedAt
	}
	return m
}
