package gather

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"barsync/internal/domain"
	"barsync/internal/store"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// barsBetween returns one bar per calendar day in [from, to].
func barsBetween(sym string, from, to time.Time, closePx float64) []domain.Bar {
	var bars []domain.Bar
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		bars = append(bars, domain.Bar{Symbol: sym, Timestamp: d.Add(5 * time.Hour), Close: closePx, Volume: 100})
	}
	return bars
}

// ---------------------------------------------------------------------------
// memStore
// ---------------------------------------------------------------------------

var _ store.DatasetStore = (*memStore)(nil)

type memStore struct {
	mu       sync.Mutex
	data     map[string][]domain.Bar
	corrupt  map[string]bool
	writeErr error
	writes   int
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string][]domain.Bar), corrupt: make(map[string]bool)}
}

func (m *memStore) HasDataset(_ context.Context, symbol string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.data[symbol]
	return ok || m.corrupt[symbol], nil
}

func (m *memStore) ReadDataset(_ context.Context, symbol string) ([]domain.Bar, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.corrupt[symbol] {
		return nil, false
	}
	bars, ok := m.data[symbol]
	if !ok {
		return nil, false
	}
	return append([]domain.Bar(nil), bars...), true
}

func (m *memStore) WriteDataset(_ context.Context, symbol string, bars []domain.Bar) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writeErr != nil {
		return m.writeErr
	}
	m.writes++
	delete(m.corrupt, symbol)
	m.data[symbol] = append([]domain.Bar(nil), bars...)
	return nil
}

func (m *memStore) ListSymbols(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for s := range m.data {
		out = append(out, s)
	}
	sort.Strings(out)
	return out, nil
}

// ---------------------------------------------------------------------------
// fakeFetcher
// ---------------------------------------------------------------------------

type fetchCall struct {
	Symbol     string
	Start, End time.Time
}

type fakeFetcher struct {
	mu    sync.Mutex
	calls []fetchCall
	count atomic.Int64
	fn    func(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error)
}

func (f *fakeFetcher) FetchBars(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error) {
	f.count.Add(1)
	f.mu.Lock()
	f.calls = append(f.calls, fetchCall{symbol, start, end})
	f.mu.Unlock()
	if f.fn == nil {
		return nil, nil
	}
	return f.fn(ctx, symbol, start, end)
}

func (f *fakeFetcher) callsFor(symbol string) []fetchCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []fetchCall
	for _, c := range f.calls {
		if c.Symbol == symbol {
			out = append(out, c)
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// Upstream fakes
// ---------------------------------------------------------------------------

type fakeCalendar struct {
	days []time.Time
	err  error
}

func (c *fakeCalendar) TradingDays(_ context.Context, start, end time.Time) ([]time.Time, error) {
	if c.err != nil {
		return nil, c.err
	}
	var out []time.Time
	for _, d := range c.days {
		if !d.Before(start) && !d.After(end) {
			out = append(out, d)
		}
	}
	return out, nil
}

type fakeUniverse struct {
	listings []domain.Listing
	err      error
	calls    int
}

func (u *fakeUniverse) Snapshot(context.Context) ([]domain.Listing, error) {
	u.calls++
	return u.listings, u.err
}

func priced(sym string, px float64) domain.Listing { return domain.Listing{Symbol: sym, LastPrice: &px} }
func unpriced(sym string) domain.Listing         { return domain.Listing{Symbol: sym} }

var errTimeout = errors.New("timeout")

// ---------------------------------------------------------------------------
// Reporting fakes
// ---------------------------------------------------------------------------

type recordSink struct {
	updates []domain.Progress
	final   *domain.Summary
}

func (s *recordSink) Update(p domain.Progress) { s.updates = append(s.updates, p) }
func (s *recordSink) Done(sum domain.Summary)  { s.final = &sum }

type recordReporter struct {
	calls   int
	entries []domain.ErrorEntry
	err     error
}

func (r *recordReporter) WriteErrors(_ context.Context, entries []domain.ErrorEntry) error {
	r.calls++
	r.entries = append([]domain.ErrorEntry(nil), entries...)
	return r.err
}
