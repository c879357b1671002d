// Package domain holds the value types shared by the sync engine, the stores
// and the data providers.
package domain

import (
	"fmt"
	"time"
)

// DateLayout is the canonical YYYY-MM-DD layout used for trade dates.
const DateLayout = "2006-01-02"

// ---------------------------------------------------------------------------
// Market data
// ---------------------------------------------------------------------------

// Bar is one dated OHLCV record of a symbol's history.
type Bar struct {
	Symbol     string
	Timestamp  time.Time
	Open       float64
	High       float64
	Low        float64
	Close      float64
	Volume     int64
	TradeCount int64
	VWAP       float64
}

// Date returns the trade date of the bar. It is the sole ordering and dedup
// key within one symbol's dataset.
func (b Bar) Date() time.Time {
	return DateOf(b.Timestamp)
}

// DateOf truncates t to its UTC calendar day.
func DateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD string into a UTC trade date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing date %q: %w", s, err)
	}
	return t, nil
}

// Listing is one entry of a universe snapshot. LastPrice is nil when the
// snapshot carries no latest price for the symbol.
type Listing struct {
	Symbol    string
	LastPrice *float64
}

// ---------------------------------------------------------------------------
// Sync run
// ---------------------------------------------------------------------------

// RunContext is the immutable input shared read-only by every worker of a
// run.
type RunContext struct {
	lastTradeDate time.Time
	delisted      map[string]struct{}
}

// NewRunContext builds a RunContext. The delisted slice is copied.
func NewRunContext(lastTradeDate time.Time, delisted []string) *RunContext {
	set := make(map[string]struct{}, len(delisted))
	for _, sym := range delisted {
		set[sym] = struct{}{}
	}
	return &RunContext{
		lastTradeDate: DateOf(lastTradeDate),
		delisted:      set,
	}
}

// LastTradeDate returns the target end date of the run.
func (rc *RunContext) LastTradeDate() time.Time { return rc.lastTradeDate }

// IsDelisted reports whether symbol was flagged delisted by the snapshot.
func (rc *RunContext) IsDelisted(symbol string) bool {
	_, ok := rc.delisted[symbol]
	return ok
}

// DelistedCount returns the size of the delisted set.
func (rc *RunContext) DelistedCount() int { return len(rc.delisted) }

// SyncOutcome is the per-symbol result of a run.
type SyncOutcome struct {
	OK      bool
	Message string
}

// Success returns a successful outcome carrying msg.
func Success(msg string) SyncOutcome { return SyncOutcome{OK: true, Message: msg} }

// Failure returns a failed outcome carrying msg.
func Failure(msg string) SyncOutcome { return SyncOutcome{OK: false, Message: msg} }

func (o SyncOutcome) String() string {
	if o.OK {
		return "ok: " + o.Message
	}
	return "failed: " + o.Message
}

// ErrorEntry is one row of the error report.
type ErrorEntry struct {
	Symbol  string
	Message string
}

// Progress is a point-in-time tally of a running sync.
type Progress struct {
	Total     int
	Done      int
	Succeeded int
	Failed    int
}

// Summary is the final result of a run.
type Summary struct {
	RunID         string
	LastTradeDate time.Time
	Total         int
	Succeeded     int
	Failed        int
	Errors        []ErrorEntry
	Started       time.Time
	Finished      time.Time
}
