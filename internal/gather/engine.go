package gather

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"barsync/internal/domain"
	"barsync/internal/store"
)

// Compile-time interface check.
var _ Gatherer = (*IncrementalGatherer)(nil)

// Options tunes an IncrementalGatherer.
type Options struct {
	// MaxWorkers caps the number of symbols synced concurrently.
	MaxWorkers int
	// Location is the market time zone used to determine "today".
	Location *time.Location
	// Symbols, when non-empty, restricts the run to these universe members.
	Symbols []string
}

// IncrementalGatherer runs one incremental sync pass over the whole
// universe: resolve the target date, snapshot the universe, fan the
// per-symbol workers out and aggregate their outcomes.
type IncrementalGatherer struct {
	name       string
	calendar   *CalendarResolver
	universe   *UniverseProvider
	worker     *Worker
	aggregator *Aggregator
	ledger     store.RunStore
	opts       Options
	now        func() time.Time
	log        *slog.Logger
}

// NewIncrementalGatherer wires the engine. ledger may be nil.
func NewIncrementalGatherer(name string, cal *CalendarResolver, uni *UniverseProvider, w *Worker, agg *Aggregator, ledger store.RunStore, opts Options) *IncrementalGatherer {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &IncrementalGatherer{
		name:       name,
		calendar:   cal,
		universe:   uni,
		worker:     w,
		aggregator: agg,
		ledger:     ledger,
		opts:       opts,
		now:        time.Now,
		log:        slog.Default().With("gatherer", name),
	}
}

// Name returns the gatherer identifier.
func (g *IncrementalGatherer) Name() string { return g.name }

// Run performs one sync pass. Per-symbol failures do not fail the run; only
// an unavailable calendar or universe does.
func (g *IncrementalGatherer) Run(ctx context.Context) error {
	_, err := g.Sync(ctx)
	return err
}

// Sync performs one sync pass and returns its summary.
func (g *IncrementalGatherer) Sync(ctx context.Context) (domain.Summary, error) {
	started := g.now()

	// 1. Target date from the trading calendar.
	now := started.In(g.opts.Location)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	lastTradeDate, err := g.calendar.Resolve(ctx, today)
	if err != nil {
		g.log.Error("resolving last trade date", "err", err)
		return domain.Summary{}, err
	}
	g.log.Info("last trade date", "date", lastTradeDate.Format(domain.DateLayout))

	// 2. Universe snapshot.
	symbols, delisted, err := g.universe.Snapshot(ctx)
	if err != nil {
		g.log.Error("snapshotting universe", "err", err)
		return domain.Summary{}, err
	}
	if len(g.opts.Symbols) > 0 {
		symbols = restrict(symbols, g.opts.Symbols, g.log)
	}
	rc := domain.NewRunContext(lastTradeDate, delisted)
	g.log.Info("universe", "symbols", len(symbols), "delisted", rc.DelistedCount())

	// 3. Fan out, fan in.
	seed := domain.Summary{
		RunID:         uuid.NewString(),
		LastTradeDate: lastTradeDate,
		Total:         len(symbols),
		Started:       started,
	}
	if g.ledger != nil {
		if err := g.ledger.BeginRun(context.WithoutCancel(ctx), seed.RunID, lastTradeDate, seed.Total, started); err != nil {
			g.log.Error("recording run start", "err", err)
		}
	}

	completions := Schedule(ctx, symbols, g.opts.MaxWorkers, func(ctx context.Context, symbol string) domain.SyncOutcome {
		return g.worker.Sync(ctx, symbol, rc)
	})
	sum := g.aggregator.Consume(ctx, seed, completions)

	if err := ctx.Err(); err != nil {
		return sum, fmt.Errorf("sync interrupted: %w", err)
	}
	return sum, nil
}

// restrict keeps the universe members named in only, in universe order.
func restrict(symbols, only []string, log *slog.Logger) []string {
	want := make(map[string]bool, len(only))
	for _, s := range only {
		want[strings.ToUpper(strings.TrimSpace(s))] = true
	}

	var kept []string
	for _, s := range symbols {
		if want[s] {
			kept = append(kept, s)
			delete(want, s)
		}
	}
	for s := range want {
		log.Warn("requested symbol not in universe", "symbol", s)
	}
	return kept
}
