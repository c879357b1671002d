package gather

import (
	"context"

	"golang.org/x/sync/errgroup"

	"barsync/internal/domain"
)

// Completion is one finished symbol task.
type Completion struct {
	Symbol  string
	Outcome domain.SyncOutcome
}

// SyncFunc syncs a single symbol. It must not fail; errors are outcomes.
type SyncFunc func(ctx context.Context, symbol string) domain.SyncOutcome

// Schedule runs fn for every symbol with at most maxWorkers in flight and
// streams the results in completion order. The channel is closed once every
// symbol has produced exactly one Completion. A failing task never stops
// the others.
//
// When ctx is cancelled no further tasks are admitted; symbols that never
// ran complete with a Failure carrying the context error.
func Schedule(ctx context.Context, symbols []string, maxWorkers int, fn SyncFunc) <-chan Completion {
	workers := max(maxWorkers, 1)
	out := make(chan Completion, workers)

	go func() {
		defer close(out)

		var g errgroup.Group
		g.SetLimit(workers)

		for i, sym := range symbols {
			if err := ctx.Err(); err != nil {
				g.Wait()
				for _, skipped := range symbols[i:] {
					out <- Completion{Symbol: skipped, Outcome: domain.Failure(err.Error())}
				}
				return
			}
			g.Go(func() error {
				out <- Completion{Symbol: sym, Outcome: fn(ctx, sym)}
				return nil
			})
		}
		g.Wait()
	}()

	return out
}
