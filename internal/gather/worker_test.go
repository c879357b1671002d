package gather

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"barsync/internal/domain"
	"barsync/internal/util"
)

var globalStart = date(1990, 12, 19)

func TestWorkerIncrementalFetch(t *testing.T) {
	st := newMemStore()
	st.data["A"] = barsBetween("A", date(2024, 1, 1), date(2024, 1, 10), 10)

	f := &fakeFetcher{fn: func(_ context.Context, sym string, start, end time.Time) ([]domain.Bar, error) {
		return barsBetween(sym, start, end, 20), nil
	}}
	w := NewWorker(st, f, globalStart, time.Second)
	rc := domain.NewRunContext(date(2024, 1, 12), nil)

	got := w.Sync(context.Background(), "A", rc)
	if !got.OK || got.Message != "Added 2 rows" {
		t.Fatalf("Sync(A) = %+v, want Success(Added 2 rows)", got)
	}

	calls := f.callsFor("A")
	if len(calls) != 1 {
		t.Fatalf("fetch calls = %d, want 1", len(calls))
	}
	if !calls[0].Start.Equal(date(2024, 1, 11)) || !calls[0].End.Equal(date(2024, 1, 12)) {
		t.Errorf("fetch range = [%v, %v], want [2024-01-11, 2024-01-12]", calls[0].Start, calls[0].End)
	}

	bars := st.data["A"]
	if len(bars) != 12 {
		t.Fatalf("dataset has %d rows, want 12", len(bars))
	}
	if last := bars[len(bars)-1].Date(); !last.Equal(date(2024, 1, 12)) {
		t.Errorf("dataset ends %v, want 2024-01-12", last)
	}
}

func TestWorkerFirstSyncUsesGlobalStart(t *testing.T) {
	st := newMemStore()
	f := &fakeFetcher{fn: func(_ context.Context, sym string, _, end time.Time) ([]domain.Bar, error) {
		return barsBetween(sym, end.AddDate(0, 0, -2), end, 1), nil
	}}
	w := NewWorker(st, f, globalStart, time.Second)

	got := w.Sync(context.Background(), "NEW", domain.NewRunContext(date(2024, 1, 12), nil))
	if !got.OK || got.Message != "Added 3 rows" {
		t.Fatalf("Sync(NEW) = %+v", got)
	}
	if c := f.callsFor("NEW"); len(c) != 1 || !c[0].Start.Equal(globalStart) {
		t.Errorf("fetch calls = %+v, want one starting at the global start", c)
	}
}

func TestWorkerFetchErrorLeavesFileAbsent(t *testing.T) {
	st := newMemStore()
	f := &fakeFetcher{fn: func(context.Context, string, time.Time, time.Time) ([]domain.Bar, error) {
		return nil, errTimeout
	}}
	w := NewWorker(st, f, globalStart, time.Second)

	got := w.Sync(context.Background(), "B", domain.NewRunContext(date(2024, 1, 12), nil))
	if got.OK || got.Message != "timeout" {
		t.Fatalf("Sync(B) = %+v, want Failure(timeout)", got)
	}
	if _, ok := st.data["B"]; ok {
		t.Error("B's dataset should remain absent")
	}
}

func TestWorkerDelistedShortCircuit(t *testing.T) {
	st := newMemStore()
	st.data["C"] = barsBetween("C", date(2020, 1, 1), date(2020, 1, 3), 5)
	f := &fakeFetcher{}
	w := NewWorker(st, f, globalStart, time.Second)

	got := w.Sync(context.Background(), "C", domain.NewRunContext(date(2024, 1, 12), []string{"C"}))
	if !got.OK || got.Message != MsgDelisted {
		t.Fatalf("Sync(C) = %+v, want Success(Delisted)", got)
	}
	if n := f.count.Load(); n != 0 {
		t.Errorf("fetch calls = %d, want 0", n)
	}
	if st.writes != 0 {
		t.Errorf("writes = %d, want 0", st.writes)
	}
}

func TestWorkerDelistedWithoutHistoryFetches(t *testing.T) {
	st := newMemStore()
	f := &fakeFetcher{fn: func(_ context.Context, sym string, _, end time.Time) ([]domain.Bar, error) {
		return barsBetween(sym, end, end, 1), nil
	}}
	w := NewWorker(st, f, globalStart, time.Second)

	got := w.Sync(context.Background(), "D", domain.NewRunContext(date(2024, 1, 12), []string{"D"}))
	if !got.OK || got.Message != "Added 1 rows" {
		t.Fatalf("Sync(D) = %+v", got)
	}
	if f.count.Load() != 1 {
		t.Errorf("fetch calls = %d, want 1", f.count.Load())
	}
}

func TestWorkerAlreadyUpToDate(t *testing.T) {
	st := newMemStore()
	st.data["A"] = barsBetween("A", date(2024, 1, 10), date(2024, 1, 12), 1)
	f := &fakeFetcher{}
	w := NewWorker(st, f, globalStart, time.Second)

	got := w.Sync(context.Background(), "A", domain.NewRunContext(date(2024, 1, 12), nil))
	if !got.OK || got.Message != MsgUpToDate {
		t.Fatalf("Sync(A) = %+v, want Success(Already up-to-date)", got)
	}
	if f.count.Load() != 0 {
		t.Errorf("fetch calls = %d, want 0", f.count.Load())
	}
}

func TestWorkerNoNewData(t *testing.T) {
	st := newMemStore()
	st.data["A"] = barsBetween("A", date(2024, 1, 1), date(2024, 1, 10), 1)
	w := NewWorker(st, &fakeFetcher{}, globalStart, time.Second)

	got := w.Sync(context.Background(), "A", domain.NewRunContext(date(2024, 1, 12), nil))
	if got.OK || got.Message != MsgNoNewData {
		t.Fatalf("Sync(A) = %+v, want Failure(No new data)", got)
	}
	if st.writes != 0 {
		t.Errorf("writes = %d, want 0", st.writes)
	}
}

func TestWorkerCorruptDatasetResyncs(t *testing.T) {
	st := newMemStore()
	st.corrupt["A"] = true
	f := &fakeFetcher{fn: func(_ context.Context, sym string, start, _ time.Time) ([]domain.Bar, error) {
		return barsBetween(sym, date(2024, 1, 11), date(2024, 1, 12), 1), nil
	}}
	w := NewWorker(st, f, globalStart, time.Second)

	got := w.Sync(context.Background(), "A", domain.NewRunContext(date(2024, 1, 12), nil))
	if !got.OK {
		t.Fatalf("Sync(A) = %+v, want success", got)
	}
	if c := f.callsFor("A"); len(c) != 1 || !c[0].Start.Equal(globalStart) {
		t.Errorf("corrupt dataset should resync from the global start, calls = %+v", c)
	}
}

func TestWorkerPersistFailure(t *testing.T) {
	st := newMemStore()
	st.writeErr = errors.New("disk full")
	f := &fakeFetcher{fn: func(_ context.Context, sym string, _, end time.Time) ([]domain.Bar, error) {
		return barsBetween(sym, end, end, 1), nil
	}}
	w := NewWorker(st, f, globalStart, time.Second)

	got := w.Sync(context.Background(), "A", domain.NewRunContext(date(2024, 1, 12), nil))
	if got.OK || !strings.Contains(got.Message, "disk full") || !strings.Contains(got.Message, ErrPersistFailed.Error()) {
		t.Fatalf("Sync(A) = %+v, want persist failure", got)
	}
}

func TestWorkerRequestTimeout(t *testing.T) {
	f := &fakeFetcher{fn: func(ctx context.Context, _ string, _, _ time.Time) ([]domain.Bar, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	w := NewWorker(newMemStore(), f, globalStart, 20*time.Millisecond)

	got := w.Sync(context.Background(), "SLOW", domain.NewRunContext(date(2024, 1, 12), nil))
	if got.OK || !strings.Contains(got.Message, context.DeadlineExceeded.Error()) {
		t.Fatalf("Sync(SLOW) = %+v, want deadline failure", got)
	}
}

func TestWorkerRecoversPanic(t *testing.T) {
	f := &fakeFetcher{fn: func(context.Context, string, time.Time, time.Time) ([]domain.Bar, error) {
		panic("malformed response")
	}}
	w := NewWorker(newMemStore(), f, globalStart, time.Second)

	got := w.Sync(context.Background(), "P", domain.NewRunContext(date(2024, 1, 12), nil))
	if got.OK || !strings.Contains(got.Message, "malformed response") {
		t.Fatalf("Sync(P) = %+v, want recovered failure", got)
	}
}

func TestWorkerIdempotentRemerge(t *testing.T) {
	st := newMemStore()
	st.data["A"] = barsBetween("A", date(2024, 1, 1), date(2024, 1, 10), 10)
	// The provider returns an overlapping window with different prices.
	f := &fakeFetcher{fn: func(_ context.Context, sym string, _, end time.Time) ([]domain.Bar, error) {
		return barsBetween(sym, date(2024, 1, 9), end, 99), nil
	}}
	w := NewWorker(st, f, globalStart, time.Second)

	got := w.Sync(context.Background(), "A", domain.NewRunContext(date(2024, 1, 12), nil))
	if !got.OK || got.Message != "Added 4 rows" {
		t.Fatalf("Sync(A) = %+v", got)
	}
	bars := st.data["A"]
	if len(bars) != 12 {
		t.Fatalf("dataset has %d rows, want 12", len(bars))
	}
	for _, b := range bars {
		if !b.Date().After(date(2024, 1, 10)) && b.Close != 10 {
			t.Errorf("existing row %v was overwritten (close %v)", b.Date(), b.Close)
		}
	}
}

func TestWorkerThrottleWaitsOutsideTimeout(t *testing.T) {
	f := &fakeFetcher{fn: func(_ context.Context, sym string, _, end time.Time) ([]domain.Bar, error) {
		return barsBetween(sym, end, end, 1), nil
	}}
	// One token per 100ms; the tenth symbol waits ~900ms, well past the
	// 250ms request timeout.
	w := NewWorker(newMemStore(), f, globalStart, 250*time.Millisecond).
		Throttle(util.NewRateLimiter(600))
	rc := domain.NewRunContext(date(2024, 1, 12), nil)

	symbols := make([]string, 10)
	for i := range symbols {
		symbols[i] = fmt.Sprintf("S%d", i)
	}
	got := drain(Schedule(context.Background(), symbols, len(symbols), func(ctx context.Context, sym string) domain.SyncOutcome {
		return w.Sync(ctx, sym, rc)
	}))

	for _, c := range got {
		if !c.Outcome.OK {
			t.Errorf("Sync(%s) = %+v, want success", c.Symbol, c.Outcome)
		}
	}
	if n := f.count.Load(); n != int64(len(symbols)) {
		t.Errorf("fetch calls = %d, want %d", n, len(symbols))
	}
}

func TestWorkerThrottleHonoursCancel(t *testing.T) {
	f := &fakeFetcher{}
	w := NewWorker(newMemStore(), f, globalStart, time.Second).Throttle(util.NewRateLimiter(1))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	got := w.Sync(ctx, "A", domain.NewRunContext(date(2024, 1, 12), nil))
	if got.OK || !strings.Contains(got.Message, context.Canceled.Error()) {
		t.Fatalf("Sync(A) = %+v, want cancelled failure", got)
	}
	if n := f.count.Load(); n != 0 {
		t.Errorf("fetch calls = %d, want 0", n)
	}
}
