package gather

import (
	"context"
	"time"

	"barsync/internal/domain"
)

// Gatherer is the interface for all data gathering processes.
type Gatherer interface {
	// Name returns the gatherer identifier.
	Name() string
	// Run performs one gathering pass and returns when it completes or ctx
	// is cancelled.
	Run(ctx context.Context) error
}

// ---------------------------------------------------------------------------
// Remote collaborators
// ---------------------------------------------------------------------------

// CalendarSource lists historical trading days.
type CalendarSource interface {
	// TradingDays returns the trading days within [start, end], ordered.
	TradingDays(ctx context.Context, start, end time.Time) ([]time.Time, error)
}

// UniverseSource takes a point-in-time snapshot of all tracked symbols.
type UniverseSource interface {
	// Snapshot returns every tracked symbol with its latest price, if any.
	Snapshot(ctx context.Context) ([]domain.Listing, error)
}

// BarFetcher downloads a symbol's bars for a date range. The deadline of ctx
// bounds the request. An empty result is not an error.
type BarFetcher interface {
	FetchBars(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error)
}

// BarFetcherFunc adapts a function to BarFetcher.
type BarFetcherFunc func(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error)

// FetchBars calls f.
func (f BarFetcherFunc) FetchBars(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error) {
	return f(ctx, symbol, start, end)
}

// ---------------------------------------------------------------------------
// Reporting collaborators
// ---------------------------------------------------------------------------

// ProgressSink receives live progress and the final summary of a run.
type ProgressSink interface {
	Update(p domain.Progress)
	Done(s domain.Summary)
}

// ErrorReporter persists the error report of a run.
type ErrorReporter interface {
	WriteErrors(ctx context.Context, entries []domain.ErrorEntry) error
}

// FetchObserver is notified after every remote fetch.
type FetchObserver interface {
	ObserveFetch(symbol string, elapsed time.Duration, rows int, err error)
}
