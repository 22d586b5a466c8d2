package usecase

import (
	"context"
	"errors"
	"fmt"

	"SigTrail/internal/domain/models"
	"SigTrail/pkg/logger"
	"SigTrail/pkg/queue"
)

// EvaluationRetryPayload is the queue payload for a deferred evaluation.
type EvaluationRetryPayload struct {
	SignalID string `json:"signal_id"`
	Reason   string `json:"reason"`
}

// evaluationRetryType is the queue message type for deferred evaluations.
const evaluationRetryType = "evaluation_retry"

// EvaluationRetryJob re-runs evaluations that were deferred on transient
// market-data failures. Permanent conditions are dropped instead of retried.
type EvaluationRetryJob struct {
	evaluator *OutcomeEvaluator
	l         *logger.Logger
}

func NewEvaluationRetryJob(evaluator *OutcomeEvaluator, l *logger.Logger) *EvaluationRetryJob {
	return &EvaluationRetryJob{evaluator: evaluator, l: l}
}

func (j *EvaluationRetryJob) Name() string { return "evaluation-retry" }
func (j *EvaluationRetryJob) Type() string { return evaluationRetryType }

func (j *EvaluationRetryJob) Handle(ctx context.Context, payload interface{}) error {
	p, err := queue.ParsePayload[EvaluationRetryPayload](payload)
	if err != nil {
		return fmt.Errorf("parse retry payload: %w", err)
	}
	if p.SignalID == "" {
		return nil
	}

	_, err = j.evaluator.Evaluate(ctx, p.SignalID)
	switch {
	case err == nil:
		j.l.Info("deferred evaluation resolved", logger.String("signal_id", p.SignalID))
		return nil
	case errors.Is(err, models.ErrAlreadyEvaluated),
		errors.Is(err, models.ErrNotFound),
		errors.Is(err, models.ErrOutcomeUnresolved),
		errors.Is(err, models.ErrMarketDataNotFound):
		// Nothing a retry can change; the batch path owns these.
		return nil
	default:
		// Transient; let the queue back off and retry.
		return err
	}
}

var _ queue.Job = (*EvaluationRetryJob)(nil)
