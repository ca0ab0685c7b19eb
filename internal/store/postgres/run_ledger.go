// Package postgres provides the Postgres-backed run ledger.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/fightstats-crawler/internal/store"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool used for ledger rows.
type Config struct {
	DSN      string
	Table    string
	MaxConns int32
}

type querier interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Close()
}

// RunLedger writes crawl runs into Postgres.
type RunLedger struct {
	pool  querier
	table string
}

var _ store.RunLedger = (*RunLedger)(nil)

// New connects, creates the table if needed and returns a RunLedger.
func New(ctx context.Context, cfg Config) (*RunLedger, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	l, err := NewWithPool(pool, cfg.Table)
	if err != nil {
		pool.Close()
		return nil, err
	}
	if err := l.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return l, nil
}

// NewWithPool builds a ledger over an existing pool (primarily for testing).
func NewWithPool(pool querier, table string) (*RunLedger, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "crawl_runs"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &RunLedger{pool: pool, table: table}, nil
}

// EnsureSchema creates the ledger table if it does not exist.
func (l *RunLedger) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id UUID PRIMARY KEY,
	started_at TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ,
	status TEXT NOT NULL,
	scope TEXT NOT NULL,
	records JSONB NOT NULL DEFAULT '{}',
	error_message TEXT
)`, l.table)
	if _, err := l.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create %s: %w", l.table, err)
	}
	return nil
}

// Close releases the underlying pool resources.
func (l *RunLedger) Close() {
	if l == nil || l.pool == nil {
		return
	}
	l.pool.Close()
}

// StartRun inserts a running row. Restarting the same id only resets status.
func (l *RunLedger) StartRun(ctx context.Context, id uuid.UUID, startedAt time.Time, scope string) error {
	query := fmt.Sprintf(`
INSERT INTO %s (id, started_at, status, scope)
VALUES ($1, $2, $3, $4)
ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status`, l.table)
	if _, err := l.pool.Exec(ctx, query, id, startedAt, store.RunRunning, scope); err != nil {
		return fmt.Errorf("start run %s: %w", id, err)
	}
	return nil
}

// FinishRun records how a run ended.
func (l *RunLedger) FinishRun(
	ctx context.Context,
	id uuid.UUID,
	finishedAt time.Time,
	status store.RunStatus,
	records map[string]int,
	errMsg *string,
) error {
	if records == nil {
		records = map[string]int{}
	}
	recordsJSON, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("marshal records: %w", err)
	}
	query := fmt.Sprintf(`
UPDATE %s
SET finished_at = $1, status = $2, records = $3, error_message = $4
WHERE id = $5`, l.table)
	tag, err := l.pool.Exec(ctx, query, finishedAt, status, recordsJSON, errMsg, id)
	if err != nil {
		return fmt.Errorf("finish run %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("finish run %s: %w", id, store.ErrNotFound)
	}
	return nil
}

// LastRun returns the most recently started run.
func (l *RunLedger) LastRun(ctx context.Context) (store.Run, error) {
	query := fmt.Sprintf(`
SELECT id, started_at, finished_at, status, scope, records, error_message
FROM %s
ORDER BY started_at DESC
LIMIT 1`, l.table)

	var (
		run         store.Run
		status      string
		recordsJSON []byte
	)
	err := l.pool.QueryRow(ctx, query).Scan(
		&run.ID,
		&run.StartedAt,
		&run.FinishedAt,
		&status,
		&run.Scope,
		&recordsJSON,
		&run.ErrorMessage,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.Run{}, store.ErrNotFound
	}
	if err != nil {
		return store.Run{}, fmt.Errorf("last run: %w", err)
	}
	run.Status = store.RunStatus(status)
	if len(recordsJSON) > 0 {
		if err := json.Unmarshal(recordsJSON, &run.Records); err != nil {
			return store.Run{}, fmt.Errorf("decode records of run %s: %w", run.ID, err)
		}
	}
	return run, nil
}
