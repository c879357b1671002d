package gather

import (
	"context"
	"time"

	"github.com/sony/gobreaker"

	"barsync/internal/domain"
)

// ---------------------------------------------------------------------------
// BarFetcher decorators
// ---------------------------------------------------------------------------

// CircuitBroken stops calling next after failures consecutive errors and
// fails fast until cooldown elapses. failures <= 0 returns next.
func CircuitBroken(next BarFetcher, name string, failures int, cooldown time.Duration) BarFetcher {
	if failures <= 0 {
		return next
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(failures)
		},
	})
	return BarFetcherFunc(func(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error) {
		out, err := cb.Execute(func() (interface{}, error) {
			return next.FetchBars(ctx, symbol, start, end)
		})
		if err != nil {
			return nil, err
		}
		return out.([]domain.Bar), nil
	})
}

// Observed reports every call to next to obs. A nil obs returns next.
func Observed(next BarFetcher, obs FetchObserver) BarFetcher {
	if obs == nil {
		return next
	}
	return BarFetcherFunc(func(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error) {
		began := time.Now()
		bars, err := next.FetchBars(ctx, symbol, start, end)
		obs.ObserveFetch(symbol, time.Since(began), len(bars), err)
		return bars, err
	})
}
