package gather

import (
	"context"
	"fmt"
	"time"

	"barsync/internal/domain"
	"barsync/internal/util"
)

// CalendarResolver finds the sync target date from a trading calendar.
type CalendarResolver struct {
	source       CalendarSource
	lookbackDays int
	retries      int
	retryDelay   time.Duration
}

// NewCalendarResolver creates a resolver that looks lookbackDays back from
// today and tries the remote call up to retries times.
func NewCalendarResolver(source CalendarSource, lookbackDays, retries int) *CalendarResolver {
	return &CalendarResolver{
		source:       source,
		lookbackDays: max(lookbackDays, 1),
		retries:      max(retries, 1),
		retryDelay:   time.Second,
	}
}

// Resolve returns the latest trading day not after today. Any remote failure
// or an empty calendar is reported as ErrUpstreamUnavailable.
func (r *CalendarResolver) Resolve(ctx context.Context, today time.Time) (time.Time, error) {
	today = domain.DateOf(today)
	start := today.AddDate(0, 0, -r.lookbackDays)

	var days []time.Time
	err := util.Retry(ctx, "trading calendar", r.retries, r.retryDelay, func() error {
		var err error
		days, err = r.source.TradingDays(ctx, start, today)
		return err
	})
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: trading calendar: %w", ErrUpstreamUnavailable, err)
	}

	last, ok := LatestOnOrBefore(days, today)
	if !ok {
		return time.Time{}, fmt.Errorf("%w: no trading days on or before %s",
			ErrUpstreamUnavailable, today.Format(domain.DateLayout))
	}
	return last, nil
}

// LatestOnOrBefore returns the greatest day in days that is not after
// today, compared by calendar date.
func LatestOnOrBefore(days []time.Time, today time.Time) (time.Time, bool) {
	today = domain.DateOf(today)
	var (
		best  time.Time
		found bool
	)
	for _, d := range days {
		d = domain.DateOf(d)
		if d.After(today) {
			continue
		}
		if !found || d.After(best) {
			best, found = d, true
		}
	}
	return best, found
}
