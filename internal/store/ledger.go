package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound signals that no run has been recorded.
var ErrNotFound = errors.New("run not found")

// RunStatus mirrors the status column.
type RunStatus string

// Run statuses.
const (
	RunRunning RunStatus = "running"
	RunSuccess RunStatus = "success"
	RunError   RunStatus = "error"
)

// Run is one ledger row.
type Run struct {
	ID         uuid.UUID
	StartedAt  time.Time
	FinishedAt *time.Time
	Status     RunStatus
	// Scope lists the crawled entity types, e.g. "events,fights".
	Scope string
	// Records is the committed row count per dataset at the end of the run.
	Records      map[string]int
	ErrorMessage *string
}

// RunLedger persists crawl runs.
type RunLedger interface {
	StartRun(ctx context.Context, id uuid.UUID, startedAt time.Time, scope string) error
	FinishRun(ctx context.Context, id uuid.UUID, finishedAt time.Time, status RunStatus, records map[string]int, errMsg *string) error
	LastRun(ctx context.Context) (Run, error)
	Close()
}

// NoOpLedger records nothing. It backs runs without a database.
type NoOpLedger struct{}

// StartRun does nothing.
func (NoOpLedger) StartRun(context.Context, uuid.UUID, time.Time, string) error { return nil }

// FinishRun does nothing.
func (NoOpLedger) FinishRun(context.Context, uuid.UUID, time.Time, RunStatus, map[string]int, *string) error {
	return nil
}

// LastRun always reports ErrNotFound.
func (NoOpLedger) LastRun(context.Context) (Run, error) { return Run{}, ErrNotFound }

// Close does nothing.
func (NoOpLedger) Close() {}
