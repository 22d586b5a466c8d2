package models

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound reports an unknown signal id.
	ErrNotFound = errors.New("signal not found")

	// ErrInvalidTransition reports a state transition attempted from an
	// incompatible state.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrAlreadyEvaluated reports that a signal already reached a terminal
	// state. Expected under concurrent evaluators, not a bug.
	ErrAlreadyEvaluated = errors.New("signal already evaluated")

	// ErrMarketDataUnavailable is a transient collaborator failure; the
	// evaluator retries with bounded backoff before deferring.
	ErrMarketDataUnavailable = errors.New("market data unavailable")

	// ErrMarketDataNotFound is a permanent collaborator failure for this
	// symbol/timeframe; the signal is deferred until manually retried.
	ErrMarketDataNotFound = errors.New("market data not found")

	// ErrOutcomeUnresolved means no threshold was crossed within the
	// available history and the holding horizon has not elapsed yet.
	// The signal keeps its prior state.
	ErrOutcomeUnresolved = errors.New("outcome not resolvable yet")
)

// ValidationError rejects a malformed signal or indicator snapshot at the
// boundary.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
