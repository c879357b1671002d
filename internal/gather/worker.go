package gather

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"barsync/internal/domain"
	"barsync/internal/store"
	"barsync/internal/util"
)

const defaultRequestTimeout = 15 * time.Second

// Worker synchronises one symbol at a time. It is safe for concurrent use
// as long as no two calls share a symbol.
type Worker struct {
	store     store.DatasetStore
	fetcher   BarFetcher
	startDate time.Time
	timeout   time.Duration
	limiter   *util.RateLimiter
	log       *slog.Logger
}

// NewWorker creates a Worker that resumes from the local dataset, or from
// startDate when there is none, bounding each fetch by timeout.
func NewWorker(s store.DatasetStore, f BarFetcher, startDate time.Time, timeout time.Duration) *Worker {
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return &Worker{
		store:     s,
		fetcher:   f,
		startDate: domain.DateOf(startDate),
		timeout:   timeout,
		log:       slog.Default().With("component", "sync-worker"),
	}
}

// Throttle makes every fetch wait for a token from rl first. The wait is not
// bounded by the request timeout. A nil rl disables throttling.
func (w *Worker) Throttle(rl *util.RateLimiter) *Worker {
	w.limiter = rl
	return w
}

// Sync brings symbol up to rc's last trade date. It never fails: every
// error, including a panic, is returned as a Failure outcome.
func (w *Worker) Sync(ctx context.Context, symbol string, rc *domain.RunContext) (outcome domain.SyncOutcome) {
	defer func() {
		if r := recover(); r != nil {
			w.log.Error("sync panicked", "symbol", symbol, "panic", r)
			outcome = domain.Failure(fmt.Sprintf("panic: %v", r))
		}
	}()

	outcome, err := w.sync(ctx, symbol, rc)
	var fe *fetchError
	switch {
	case err == nil:
		return outcome
	case errors.Is(err, ErrNoNewData):
		w.log.Debug("no new data", "symbol", symbol)
		return domain.Failure(MsgNoNewData)
	case errors.As(err, &fe):
		w.log.Warn("sync failed", "symbol", symbol, "err", err)
		return domain.Failure(fe.cause.Error())
	default:
		w.log.Warn("sync failed", "symbol", symbol, "err", err)
		return domain.Failure(err.Error())
	}
}

func (w *Worker) sync(ctx context.Context, symbol string, rc *domain.RunContext) (domain.SyncOutcome, error) {
	// 1. Delisted symbols with history are frozen.
	if rc.IsDelisted(symbol) {
		has, err := w.store.HasDataset(ctx, symbol)
		if err != nil {
			return domain.SyncOutcome{}, fmt.Errorf("checking dataset: %w", err)
		}
		if has {
			return domain.Success(MsgDelisted), nil
		}
	}

	// 2. Resume point.
	target := rc.LastTradeDate()
	existing, ok := w.store.ReadDataset(ctx, symbol)
	start := w.startDate
	if ok {
		last, usable := store.LastDate(existing)
		switch {
		case !usable:
			existing = nil
		case !last.Before(target):
			return domain.Success(MsgUpToDate), nil
		default:
			start = last.AddDate(0, 0, 1)
		}
	}

	// 3. Fetch the missing range. Throttling holds the symbol back; only the
	// request itself runs under the timeout.
	if err := w.limiter.Wait(ctx); err != nil {
		return domain.SyncOutcome{}, fmt.Errorf("waiting for rate limit: %w", err)
	}
	fctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()
	incoming, err := w.fetcher.FetchBars(fctx, symbol, start, target)
	if err != nil {
		return domain.SyncOutcome{}, &fetchError{cause: err}
	}
	if len(incoming) == 0 {
		return domain.SyncOutcome{}, ErrNoNewData
	}

	// 4. Merge and persist.
	merged := store.MergeBars(existing, incoming)
	if err := w.store.WriteDataset(ctx, symbol, merged); err != nil {
		return domain.SyncOutcome{}, fmt.Errorf("%w: %w", ErrPersistFailed, err)
	}

	w.log.Debug("synced", "symbol", symbol,
		"from", start.Format(domain.DateLayout),
		"to", target.Format(domain.DateLayout),
		"rows", len(incoming),
	)
	return domain.Success(fmt.Sprintf(msgAddedRowsF, len(incoming))), nil
}
