// Package store defines storage interfaces for per-symbol bar datasets and
// the run ledger, with Parquet and SQLite implementations.
package store

import (
	"context"
	"errors"
	"time"

	"barsync/internal/domain"
)

// ErrCorruptDataset marks a dataset file that exists but cannot be used as a
// resume point. Callers treat it as "no existing history".
var ErrCorruptDataset = errors.New("corrupt dataset")

// DatasetStore reads and writes one file per symbol.
type DatasetStore interface {
	// HasDataset reports whether a dataset file exists for symbol.
	HasDataset(ctx context.Context, symbol string) (bool, error)

	// ReadDataset loads the symbol's dataset. ok is false when the file is
	// missing, unreadable or structurally invalid.
	ReadDataset(ctx context.Context, symbol string) (bars []domain.Bar, ok bool)

	// WriteDataset replaces the symbol's dataset atomically.
	WriteDataset(ctx context.Context, symbol string, bars []domain.Bar) error

	// ListSymbols returns all symbols with a dataset file, sorted.
	ListSymbols(ctx context.Context) ([]string, error)
}

// RunRecord is one row of the run ledger.
type RunRecord struct {
	ID            string
	LastTradeDate time.Time
	Total         int
	Succeeded     int
	Failed        int
	Started       time.Time
	Finished      time.Time
}

// RunStore persists the history of sync runs and their per-symbol outcomes.
type RunStore interface {
	// BeginRun records the start of a run.
	BeginRun(ctx context.Context, id string, lastTradeDate time.Time, total int, started time.Time) error

	// RecordOutcome appends one symbol's outcome to a run.
	RecordOutcome(ctx context.Context, runID, symbol string, outcome domain.SyncOutcome) error

	// FinishRun stores the final tallies of a run.
	FinishRun(ctx context.Context, summary domain.Summary) error

	// RecentRuns returns up to limit runs, newest first.
	RecentRuns(ctx context.Context, limit int) ([]RunRecord, error)
}
