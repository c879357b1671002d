package util

import (
	"context"
	"log/slog"
	"time"
)

// Retry runs fn until it succeeds or attempts run out, doubling the pause
// after each failure starting from baseDelay. fn always runs at least once.
// Failed attempts other than the last are logged at Warn under op. A
// cancelled ctx ends the wait and returns ctx.Err().
func Retry(ctx context.Context, op string, attempts int, baseDelay time.Duration, fn func() error) error {
	attempts = max(attempts, 1)
	delay := baseDelay

	for n := 1; ; n++ {
		err := fn()
		if err == nil || n == attempts {
			return err
		}
		slog.Warn("retrying", "op", op, "attempt", n, "of", attempts, "backoff", delay, "err", err)

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
		delay *= 2
	}
}
