package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"barsync/internal/domain"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface check.
var _ RunStore = (*SQLiteStore)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS sync_runs (
	id              TEXT PRIMARY KEY,
	last_trade_date TEXT NOT NULL,
	total           INTEGER NOT NULL,
	succeeded       INTEGER NOT NULL DEFAULT 0,
	failed          INTEGER NOT NULL DEFAULT 0,
	started_at      INTEGER NOT NULL,
	finished_at     INTEGER
);
CREATE TABLE IF NOT EXISTS sync_outcomes (
	run_id  TEXT NOT NULL REFERENCES sync_runs(id),
	seq     INTEGER NOT NULL,
	symbol  TEXT NOT NULL,
	ok      INTEGER NOT NULL,
	message TEXT NOT NULL,
	PRIMARY KEY (run_id, seq)
);
CREATE INDEX IF NOT EXISTS idx_sync_outcomes_symbol ON sync_outcomes(symbol);
`

// SQLiteStore implements RunStore backed by a SQLite database.
type SQLiteStore struct {
	db  *sql.DB
	seq map[string]int
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath, creates the
// ledger tables and returns a ready-to-use SQLiteStore.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// One connection keeps writes serialised; the aggregator is the only writer.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating ledger tables: %w", err)
	}
	return &SQLiteStore{db: db, seq: make(map[string]int)}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// BeginRun inserts a new run row.
func (s *SQLiteStore) BeginRun(ctx context.Context, id string, lastTradeDate time.Time, total int, started time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sync_runs (id, last_trade_date, total, started_at) VALUES (?, ?, ?, ?)`,
		id, lastTradeDate.Format(domain.DateLayout), total, started.UnixMilli())
	if err != nil {
		return fmt.Errorf("inserting run %s: %w", id, err)
	}
	return nil
}

// RecordOutcome appends an outcome to the run in arrival order.
func (s *SQLiteStore) RecordOutcome(ctx context.Context, runID, symbol string, outcome domain.SyncOutcome) error {
	s.seq[runID]++
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sync_outcomes (run_id, seq, symbol, ok, message) VALUES (?, ?, ?, ?, ?)`,
		runID, s.seq[runID], symbol, outcome.OK, outcome.Message)
	if err != nil {
		return fmt.Errorf("inserting outcome for %s: %w", symbol, err)
	}
	return nil
}

// FinishRun stores the final counts of a run.
func (s *SQLiteStore) FinishRun(ctx context.Context, summary domain.Summary) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sync_runs SET succeeded = ?, failed = ?, finished_at = ? WHERE id = ?`,
		summary.Succeeded, summary.Failed, summary.Finished.UnixMilli(), summary.RunID)
	if err != nil {
		return fmt.Errorf("finishing run %s: %w", summary.RunID, err)
	}
	delete(s.seq, summary.RunID)
	return nil
}

// RecentRuns returns the most recent runs, newest first.
func (s *SQLiteStore) RecentRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, last_trade_date, total, succeeded, failed, started_at, COALESCE(finished_at, 0)
		 FROM sync_runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		var (
			r                 RunRecord
			date              string
			started, finished int64
		)
		if err := rows.Scan(&r.ID, &date, &r.Total, &r.Succeeded, &r.Failed, &started, &finished); err != nil {
			return nil, err
		}
		r.LastTradeDate, _ = time.Parse(domain.DateLayout, date)
		r.Started = time.UnixMilli(started)
		if finished > 0 {
			r.Finished = time.UnixMilli(finished)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// OutcomeRecord is one stored per-symbol outcome.
type OutcomeRecord struct {
	Symbol  string
	OK      bool
	Message string
}

// Outcomes returns the recorded outcomes of a run in arrival order.
func (s *SQLiteStore) Outcomes(ctx context.Context, runID string) ([]OutcomeRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT symbol, ok, message FROM sync_outcomes WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("querying outcomes: %w", err)
	}
	defer rows.Close()

	var out []OutcomeRecord
	for rows.Next() {
		var r OutcomeRecord
		if err := rows.Scan(&r.Symbol, &r.OK, &r.Message); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
