package us

import (
	"context"
	"fmt"
	"strings"
	"time"

	polygon "github.com/polygon-io/client-go/rest"
	"github.com/polygon-io/client-go/rest/models"

	"barsync/internal/domain"
	"barsync/internal/gather"
)

var _ gather.BarFetcher = (*PolygonBars)(nil)

// PolygonBars fetches one symbol's aggregates from the Polygon REST API.
type PolygonBars struct {
	client   *polygon.Client
	timespan models.Timespan
	adjusted bool
}

// NewPolygonBars creates a bar fetcher for the given period and adjustment.
// Polygon only distinguishes adjusted from raw prices, so any adjustment
// other than "raw" requests adjusted aggregates.
func NewPolygonBars(apiKey, period, adjustment string) (*PolygonBars, error) {
	ts, err := TimespanFor(period)
	if err != nil {
		return nil, err
	}
	if _, err := AdjustmentFor(adjustment); err != nil {
		return nil, err
	}
	return &PolygonBars{
		client:   polygon.New(apiKey),
		timespan: ts,
		adjusted: !strings.EqualFold(adjustment, "raw"),
	}, nil
}

// FetchBars returns the bars of symbol dated within [start, end].
func (p *PolygonBars) FetchBars(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error) {
	params := (&models.ListAggsParams{
		Ticker:     strings.ToUpper(symbol),
		Multiplier: 1,
		Timespan:   p.timespan,
		From:       models.Millis(domain.DateOf(start)),
		To:         models.Millis(domain.DateOf(end)),
	}).WithAdjusted(p.adjusted)

	var bars []domain.Bar
	iter := p.client.ListAggs(ctx, params)
	for iter.Next() {
		agg := iter.Item()
		b := domain.Bar{
			Symbol:     strings.ToUpper(symbol),
			Timestamp:  time.Time(agg.Timestamp).UTC(),
			Open:       agg.Open,
			High:       agg.High,
			Low:        agg.Low,
			Close:      agg.Close,
			Volume:     int64(agg.Volume),
			TradeCount: agg.Transactions,
			VWAP:       agg.VWAP,
		}
		if inRange(b.Date(), start, end) {
			bars = append(bars, b)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("ListAggs %s: %w", symbol, err)
	}
	return bars, nil
}

// TimespanFor maps a bar period name to a Polygon timespan.
func TimespanFor(period string) (models.Timespan, error) {
	switch strings.ToLower(period) {
	case "", "daily":
		return models.Day, nil
	case "weekly":
		return models.Week, nil
	case "monthly":
		return models.Month, nil
	}
	return "", fmt.Errorf("unsupported period %q", period)
}
