package gather

import (
	"context"
	"log/slog"
	"time"

	"barsync/internal/domain"
	"barsync/internal/store"
)

// Aggregator is the single consumer of a run's completion stream. It owns
// every counter of the run; workers only hand it results.
type Aggregator struct {
	sink     ProgressSink
	reporter ErrorReporter
	ledger   store.RunStore
	log      *slog.Logger
}

// NewAggregator creates an Aggregator. ledger may be nil.
func NewAggregator(sink ProgressSink, reporter ErrorReporter, ledger store.RunStore) *Aggregator {
	return &Aggregator{
		sink:     sink,
		reporter: reporter,
		ledger:   ledger,
		log:      slog.Default().With("component", "aggregator"),
	}
}

// Consume drains completions, forwarding a progress update after each one.
// seed carries the run identity (RunID, LastTradeDate, Total, Started). When
// the stream ends, failures are written through the ErrorReporter in the
// order they completed and the final summary is returned.
func (a *Aggregator) Consume(ctx context.Context, seed domain.Summary, completions <-chan Completion) domain.Summary {
	// Bookkeeping outlives a cancelled run.
	bg := context.WithoutCancel(ctx)

	sum := seed
	sum.Errors = nil
	done := 0

	for c := range completions {
		done++
		if c.Outcome.OK {
			sum.Succeeded++
		} else {
			sum.Failed++
			sum.Errors = append(sum.Errors, domain.ErrorEntry{Symbol: c.Symbol, Message: c.Outcome.Message})
		}

		if a.ledger != nil {
			if err := a.ledger.RecordOutcome(bg, sum.RunID, c.Symbol, c.Outcome); err != nil {
				a.log.Error("recording outcome", "symbol", c.Symbol, "err", err)
			}
		}

		if a.sink != nil {
			a.sink.Update(domain.Progress{
				Total:     max(sum.Total, done),
				Done:      done,
				Succeeded: sum.Succeeded,
				Failed:    sum.Failed,
			})
		}
	}
	sum.Total = max(sum.Total, done)
	sum.Finished = time.Now()

	if len(sum.Errors) > 0 && a.reporter != nil {
		if err := a.reporter.WriteErrors(bg, sum.Errors); err != nil {
			a.log.Error("writing error report", "failures", len(sum.Errors), "err", err)
		}
	}

	if a.ledger != nil {
		if err := a.ledger.FinishRun(bg, sum); err != nil {
			a.log.Error("finishing run in ledger", "run", sum.RunID, "err", err)
		}
	}
	if a.sink != nil {
		a.sink.Done(sum)
	}

	a.log.Info("sync complete",
		"run", sum.RunID,
		"succeeded", sum.Succeeded,
		"failed", sum.Failed,
		"elapsed", sum.Finished.Sub(sum.Started).Round(time.Second),
	)
	return sum
}
