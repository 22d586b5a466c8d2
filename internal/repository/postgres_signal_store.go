package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"SigTrail/internal/domain/models"
	drepo "SigTrail/internal/domain/repository"
)

const signalsSchema = `
CREATE TABLE IF NOT EXISTS signals (
	id               TEXT PRIMARY KEY,
	symbol           TEXT NOT NULL,
	timeframe        TEXT NOT NULL,
	direction        TEXT NOT NULL,
	confidence       DOUBLE PRECISION NOT NULL,
	entry_price      DOUBLE PRECISION NOT NULL,
	take_profit      DOUBLE PRECISION NOT NULL,
	stop_loss        DOUBLE PRECISION NOT NULL,
	state            TEXT NOT NULL,
	outcome          TEXT NOT NULL DEFAULT 'NONE',
	actual_return    DOUBLE PRECISION NOT NULL DEFAULT 0,
	reasoning        TEXT NOT NULL DEFAULT '',
	execution_price  DOUBLE PRECISION NOT NULL DEFAULT 0,
	execution_source TEXT NOT NULL DEFAULT '',
	created_at       TIMESTAMPTZ NOT NULL,
	evaluated_at     TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_signals_state_created ON signals (state, created_at);
CREATE INDEX IF NOT EXISTS idx_signals_symbol ON signals (symbol);
`

// signalRow maps the signals table; evaluated_at is nullable.
type signalRow struct {
	models.Signal
	EvaluatedAtNull sql.NullTime `db:"evaluated_at_null"`
}

// PostgresSignalStore persists signals in Postgres. The per-id CAS is a
// conditional UPDATE on state, so concurrent evaluators of the same id race
// on the row and exactly one commits.
type PostgresSignalStore struct {
	db *sqlx.DB
}

// NewPostgresSignalStore opens the pool and ensures the schema.
func NewPostgresSignalStore(dsn string, maxOpen, maxIdle int) (*PostgresSignalStore, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres open: %w", err)
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, signalsSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres schema: %w", err)
	}
	return &PostgresSignalStore{db: db}, nil
}

func (p *PostgresSignalStore) Track(ctx context.Context, s *models.Signal) (string, error) {
	if s == nil {
		return "", &models.ValidationError{Reason: "signal is nil"}
	}
	probe := *s
	if probe.CreatedAt.IsZero() {
		probe.CreatedAt = time.Now().UTC()
	}
	probe.CreatedAt = probe.CreatedAt.UTC()
	probe.Symbol = strings.ToUpper(probe.Symbol)
	probe.State = models.StatePending
	probe.Outcome = models.OutcomeNone
	if err := probe.Validate(); err != nil {
		return "", err
	}
	probe.ID = uuid.NewString()

	const q = `INSERT INTO signals
		(id, symbol, timeframe, direction, confidence, entry_price, take_profit, stop_loss,
		 state, outcome, actual_return, reasoning, execution_price, execution_source, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`
	_, err := p.db.ExecContext(ctx, q,
		probe.ID, probe.Symbol, probe.Timeframe, probe.Direction, probe.Confidence,
		probe.EntryPrice, probe.TakeProfit, probe.StopLoss,
		probe.State, probe.Outcome, probe.ActualReturn, probe.Reasoning,
		probe.ExecutionPrice, probe.ExecutionSource, probe.CreatedAt)
	if err != nil {
		return "", fmt.Errorf("insert signal: %w", err)
	}
	return probe.ID, nil
}

const selectCols = `id, symbol, timeframe, direction, confidence, entry_price, take_profit,
	stop_loss, state, outcome, actual_return, reasoning, execution_price, execution_source,
	created_at, evaluated_at AS evaluated_at_null`

func (p *PostgresSignalStore) Get(ctx context.Context, id string) (models.Signal, error) {
	var row signalRow
	err := p.db.GetContext(ctx, &row, `SELECT `+selectCols+` FROM signals WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Signal{}, fmt.Errorf("signal %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return models.Signal{}, fmt.Errorf("select signal: %w", err)
	}
	return row.toSignal(), nil
}

func (p *PostgresSignalStore) List(ctx context.Context, f drepo.SignalFilter) ([]models.Signal, error) {
	q := `SELECT ` + selectCols + ` FROM signals WHERE 1=1`
	args := []interface{}{}
	if f.Symbol != "" {
		args = append(args, strings.ToUpper(f.Symbol))
		q += fmt.Sprintf(" AND symbol = $%d", len(args))
	}
	if f.Timeframe != "" {
		args = append(args, f.Timeframe)
		q += fmt.Sprintf(" AND timeframe = $%d", len(args))
	}
	if f.State != "" {
		args = append(args, f.State)
		q += fmt.Sprintf(" AND state = $%d", len(args))
	}
	if !f.CreatedAfter.IsZero() {
		args = append(args, f.CreatedAfter.UTC())
		q += fmt.Sprintf(" AND created_at > $%d", len(args))
	}
	q += " ORDER BY created_at DESC, id DESC"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		q += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	var rows []signalRow
	if err := p.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, fmt.Errorf("list signals: %w", err)
	}
	out := make([]models.Signal, len(rows))
	for i := range rows {
		out[i] = rows[i].toSignal()
	}
	return out, nil
}

func (p *PostgresSignalStore) ListEligible(ctx context.Context, createdBefore time.Time, limit int) ([]models.Signal, error) {
	const q = `SELECT ` + selectCols + ` FROM signals
		WHERE state IN ('PENDING','EXECUTED') AND created_at < $1
		ORDER BY created_at ASC LIMIT $2`
	var rows []signalRow
	if err := p.db.SelectContext(ctx, &rows, q, createdBefore.UTC(), limit); err != nil {
		return nil, fmt.Errorf("list eligible: %w", err)
	}
	out := make([]models.Signal, len(rows))
	for i := range rows {
		out[i] = rows[i].toSignal()
	}
	return out, nil
}

func (p *PostgresSignalStore) MarkExecuted(ctx context.Context, id string, executionPrice float64, source string) (models.Signal, error) {
	if executionPrice <= 0 {
		return models.Signal{}, &models.ValidationError{Field: "execution_price", Reason: "must be positive"}
	}

	const q = `UPDATE signals
		SET state = 'EXECUTED', execution_price = $2, execution_source = $3
		WHERE id = $1 AND state = 'PENDING'
		RETURNING ` + selectCols
	var row signalRow
	err := p.db.GetContext(ctx, &row, q, id, executionPrice, source)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Signal{}, p.transitionConflict(ctx, id)
	}
	if err != nil {
		return models.Signal{}, fmt.Errorf("mark executed: %w", err)
	}
	return row.toSignal(), nil
}

func (p *PostgresSignalStore) TransitionToEvaluated(ctx context.Context, id string, outcome models.Outcome, actualReturn float64, evaluatedAt time.Time) (models.Signal, error) {
	if outcome == models.OutcomeNone {
		return models.Signal{}, &models.ValidationError{Field: "outcome", Reason: "terminal transition requires a concrete outcome"}
	}
	state := models.StateEvaluated
	if outcome == models.OutcomeTimeout {
		state = models.StateExpired
	}

	// The WHERE clause is the compare-and-swap: only one concurrent
	// evaluator finds the row in a non-terminal state.
	const q = `UPDATE signals
		SET state = $2, outcome = $3, actual_return = $4, evaluated_at = $5
		WHERE id = $1 AND state IN ('PENDING','EXECUTED')
		RETURNING ` + selectCols
	var row signalRow
	err := p.db.GetContext(ctx, &row, q, id, state, outcome, actualReturn, evaluatedAt.UTC())
	if errors.Is(err, sql.ErrNoRows) {
		return models.Signal{}, p.evaluationConflict(ctx, id)
	}
	if err != nil {
		return models.Signal{}, fmt.Errorf("transition to evaluated: %w", err)
	}
	return row.toSignal(), nil
}

// transitionConflict distinguishes a missing row from an incompatible state
// after a zero-row conditional update.
func (p *PostgresSignalStore) transitionConflict(ctx context.Context, id string) error {
	s, err := p.Get(ctx, id)
	if err != nil {
		return err
	}
	if s.IsTerminal() {
		return fmt.Errorf("signal %s in state %s: %w", id, s.State, models.ErrAlreadyEvaluated)
	}
	return fmt.Errorf("signal %s in state %s: %w", id, s.State, models.ErrInvalidTransition)
}

func (p *PostgresSignalStore) evaluationConflict(ctx context.Context, id string) error {
	s, err := p.Get(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("signal %s in state %s: %w", id, s.State, models.ErrAlreadyEvaluated)
}

func (p *PostgresSignalStore) Health(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

func (p *PostgresSignalStore) Close() error { return p.db.Close() }

func (r *signalRow) toSignal() models.Signal {
	s := r.Signal
	if r.EvaluatedAtNull.Valid {
		s.EvaluatedAt = r.EvaluatedAtNull.Time.UTC()
	}
	s.CreatedAt = s.CreatedAt.UTC()
	return s
}

var _ drepo.SignalStore = (*PostgresSignalStore)(nil)
