package us

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"barsync/internal/domain"
	"barsync/internal/gather"
)

// ---------------------------------------------------------------------------
// Compile-time interface checks
// ---------------------------------------------------------------------------

var _ gather.BarFetcher = (*AlpacaBars)(nil)
var _ gather.CalendarSource = (*AlpacaCalendar)(nil)
var _ gather.UniverseSource = (*AlpacaUniverse)(nil)

// AlpacaConfig holds the credentials and endpoints shared by the Alpaca
// adapters.
type AlpacaConfig struct {
	APIKey    string
	APISecret string
	BaseURL   string // trading API (calendar, assets)
	DataURL   string // market-data API (bars, snapshots)
	Feed      string // "sip" or "iex"
	Timeout   time.Duration
}

func (c AlpacaConfig) tradingClient() *alpaca.Client {
	return alpaca.NewClient(alpaca.ClientOpts{
		APIKey:    c.APIKey,
		APISecret: c.APISecret,
		BaseURL:   c.BaseURL,
	})
}

func (c AlpacaConfig) dataClient() *marketdata.Client {
	opts := marketdata.ClientOpts{
		APIKey:    c.APIKey,
		APISecret: c.APISecret,
	}
	if c.DataURL != "" {
		opts.BaseURL = c.DataURL
	}
	if c.Timeout > 0 {
		opts.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	return marketdata.NewClient(opts)
}

// ---------------------------------------------------------------------------
// AlpacaBars
// ---------------------------------------------------------------------------

// AlpacaBars fetches one symbol's bars over a date range.
type AlpacaBars struct {
	client     *marketdata.Client
	timeframe  marketdata.TimeFrame
	adjustment marketdata.Adjustment
	feed       string
}

// NewAlpacaBars creates a bar fetcher for the given period ("daily",
// "weekly", "monthly") and adjustment ("raw", "split", "dividend", "all").
func NewAlpacaBars(cfg AlpacaConfig, period, adjustment string) (*AlpacaBars, error) {
	tf, err := TimeFrameFor(period)
	if err != nil {
		return nil, err
	}
	adj, err := AdjustmentFor(adjustment)
	if err != nil {
		return nil, err
	}
	return &AlpacaBars{
		client:     cfg.dataClient(),
		timeframe:  tf,
		adjustment: adj,
		feed:       cfg.Feed,
	}, nil
}

// FetchBars returns the bars of symbol dated within [start, end].
func (a *AlpacaBars) FetchBars(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error) {
	req := marketdata.GetBarsRequest{
		TimeFrame:  a.timeframe,
		Adjustment: a.adjustment,
		Start:      domain.DateOf(start),
		// Daily bars are stamped at midnight ET, after midnight UTC.
		End: domain.DateOf(end).AddDate(0, 0, 1),
	}
	if a.feed != "" {
		req.Feed = marketdata.Feed(a.feed)
	}

	raw, err := withContext(ctx, func() ([]marketdata.Bar, error) {
		return a.client.GetBars(symbol, req)
	})
	if err != nil {
		return nil, fmt.Errorf("GetBars %s: %w", symbol, err)
	}

	bars := make([]domain.Bar, 0, len(raw))
	for _, ab := range raw {
		b := domain.Bar{
			Symbol:     strings.ToUpper(symbol),
			Timestamp:  ab.Timestamp.UTC(),
			Open:       ab.Open,
			High:       ab.High,
			Low:        ab.Low,
			Close:      ab.Close,
			Volume:     int64(ab.Volume),
			TradeCount: int64(ab.TradeCount),
			VWAP:       ab.VWAP,
		}
		if inRange(b.Date(), start, end) {
			bars = append(bars, b)
		}
	}
	return bars, nil
}

// TimeFrameFor maps a bar period name to an Alpaca timeframe.
func TimeFrameFor(period string) (marketdata.TimeFrame, error) {
	switch strings.ToLower(period) {
	case "", "daily":
		return marketdata.OneDay, nil
	case "weekly":
		return marketdata.NewTimeFrame(1, marketdata.Week), nil
	case "monthly":
		return marketdata.NewTimeFrame(1, marketdata.Month), nil
	}
	return marketdata.TimeFrame{}, fmt.Errorf("unsupported period %q", period)
}

// AdjustmentFor maps a price adjustment name to an Alpaca adjustment.
func AdjustmentFor(adjustment string) (marketdata.Adjustment, error) {
	switch a := strings.ToLower(adjustment); a {
	case "":
		return marketdata.Adjustment("all"), nil
	case "raw", "split", "dividend", "all":
		return marketdata.Adjustment(a), nil
	}
	return "", fmt.Errorf("unsupported adjustment %q", adjustment)
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// withContext runs call and returns early when ctx is done. The Alpaca
// client has no context support; the abandoned call is bounded by the HTTP
// client timeout.
func withContext[T any](ctx context.Context, call func() (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	if err := ctx.Err(); err != nil {
		var zero T
		return zero, err
	}

	ch := make(chan result, 1)
	go func() {
		v, err := call()
		ch <- result{v, err}
	}()

	select {
	case r := <-ch:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func inRange(d, start, end time.Time) bool {
	return !d.Before(domain.DateOf(start)) && !d.After(domain.DateOf(end))
}
