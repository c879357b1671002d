package us

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"

	"barsync/internal/domain"
)

// AlpacaCalendar lists US trading days from the Alpaca trading calendar.
type AlpacaCalendar struct {
	client *alpaca.Client
}

// NewAlpacaCalendar creates a calendar source from cfg.
func NewAlpacaCalendar(cfg AlpacaConfig) *AlpacaCalendar {
	return &AlpacaCalendar{client: cfg.tradingClient()}
}

// TradingDays returns the trading days within [start, end], ascending.
func (c *AlpacaCalendar) TradingDays(ctx context.Context, start, end time.Time) ([]time.Time, error) {
	calendar, err := withContext(ctx, func() ([]alpaca.CalendarDay, error) {
		return c.client.GetCalendar(alpaca.GetCalendarRequest{Start: start, End: end})
	})
	if err != nil {
		return nil, fmt.Errorf("GetCalendar: %w", err)
	}
	return parseCalendarDays(calendar)
}

func parseCalendarDays(calendar []alpaca.CalendarDay) ([]time.Time, error) {
	days := make([]time.Time, 0, len(calendar))
	for _, cd := range calendar {
		d, err := domain.ParseDate(cd.Date)
		if err != nil {
			return nil, fmt.Errorf("calendar day %q: %w", cd.Date, err)
		}
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })
	return days, nil
}
