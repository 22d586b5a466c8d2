package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"SigTrail/internal/domain/models"
	drepo "SigTrail/internal/domain/repository"
)

// ClickHouseArchive appends terminal signals to an analytical table.
// Write-only from this process; long-horizon reporting reads it elsewhere.
type ClickHouseArchive struct {
	db    *sql.DB
	table string
}

// NewClickHouseArchive creates the archive over an existing connection pool.
func NewClickHouseArchive(db *sql.DB, table string) drepo.Archive {
	return &ClickHouseArchive{db: db, table: table}
}

const archiveCols = "(id, symbol, timeframe, direction, confidence, entry_price, take_profit, stop_loss, state, outcome, actual_return, reasoning, created_at, evaluated_at)"

func (a *ClickHouseArchive) ArchiveSignal(ctx context.Context, s models.Signal) error {
	q := fmt.Sprintf("INSERT INTO %s %s VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)", a.table, archiveCols)
	_, err := a.db.ExecContext(ctx, q, archiveArgs(&s)...)
	if err != nil {
		return fmt.Errorf("archive signal %s: %w", s.ID, err)
	}
	return nil
}

func (a *ClickHouseArchive) ArchiveBatch(ctx context.Context, signals []models.Signal) error {
	if len(signals) == 0 {
		return nil
	}
	// Multi-row VALUES insert to reduce round-trips.
	const chunkSize = 1000
	for start := 0; start < len(signals); start += chunkSize {
		end := start + chunkSize
		if end > len(signals) {
			end = len(signals)
		}
		values := make([]string, 0, end-start)
		args := make([]interface{}, 0, (end-start)*14)
		for i := start; i < end; i++ {
			s := &signals[i]
			if s.ID == "" || !s.IsTerminal() {
				continue
			}
			values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
			args = append(args, archiveArgs(s)...)
		}
		if len(values) == 0 {
			continue
		}
		q := fmt.Sprintf("INSERT INTO %s %s VALUES %s", a.table, archiveCols, strings.Join(values, ","))
		if _, err := a.db.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("archive batch: %w", err)
		}
	}
	return nil
}

func archiveArgs(s *models.Signal) []interface{} {
	return []interface{}{
		s.ID, s.Symbol, s.Timeframe, string(s.Direction), s.Confidence,
		s.EntryPrice, s.TakeProfit, s.StopLoss,
		string(s.State), string(s.Outcome), s.ActualReturn, s.Reasoning,
		s.CreatedAt, s.EvaluatedAt,
	}
}

func (a *ClickHouseArchive) Close() error {
	return nil // pool is owned by pkg/clickhouse
}

// ArchiveSchema returns the idempotent DDL for the archive table.
func ArchiveSchema(database, table string) []string {
	return []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id String,
			symbol String,
			timeframe String,
			direction String,
			confidence Float64,
			entry_price Float64,
			take_profit Float64,
			stop_loss Float64,
			state String,
			outcome String,
			actual_return Float64,
			reasoning String,
			created_at DateTime,
			evaluated_at DateTime
		) ENGINE=MergeTree ORDER BY (symbol, evaluated_at)`, table),
	}
}
