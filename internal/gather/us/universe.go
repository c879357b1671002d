package us

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"barsync/internal/domain"
)

const defaultSnapshotBatch = 1000

// AlpacaUniverse snapshots every US equity known to Alpaca, active or not,
// with its latest trade price. Symbols without a latest trade come back
// with a nil LastPrice.
type AlpacaUniverse struct {
	trading   *alpaca.Client
	data      *marketdata.Client
	feed      string
	batchSize int
	log       *slog.Logger
}

// NewAlpacaUniverse creates a universe source from cfg.
func NewAlpacaUniverse(cfg AlpacaConfig) *AlpacaUniverse {
	return &AlpacaUniverse{
		trading:   cfg.tradingClient(),
		data:      cfg.dataClient(),
		feed:      cfg.Feed,
		batchSize: defaultSnapshotBatch,
		log:       slog.Default().With("provider", "alpaca"),
	}
}

// Snapshot lists the assets and prices them in batches.
func (u *AlpacaUniverse) Snapshot(ctx context.Context) ([]domain.Listing, error) {
	assets, err := withContext(ctx, func() ([]alpaca.Asset, error) {
		return u.trading.GetAssets(alpaca.GetAssetsRequest{AssetClass: "us_equity"})
	})
	if err != nil {
		return nil, fmt.Errorf("GetAssets: %w", err)
	}

	symbols := make([]string, 0, len(assets))
	for _, a := range assets {
		if sym := strings.TrimSpace(a.Symbol); sym != "" {
			symbols = append(symbols, sym)
		}
	}

	prices := make(map[string]float64, len(symbols))
	for _, batch := range chunk(symbols, u.batchSize) {
		req := marketdata.GetSnapshotRequest{}
		if u.feed != "" {
			req.Feed = marketdata.Feed(u.feed)
		}
		snaps, err := withContext(ctx, func() (map[string]*marketdata.Snapshot, error) {
			return u.data.GetSnapshots(batch, req)
		})
		if err != nil {
			return nil, fmt.Errorf("GetSnapshots: %w", err)
		}
		for sym, s := range snaps {
			if s != nil && s.LatestTrade != nil {
				prices[sym] = s.LatestTrade.Price
			}
		}
	}

	listings := make([]domain.Listing, 0, len(symbols))
	for _, sym := range symbols {
		l := domain.Listing{Symbol: sym}
		if px, ok := prices[sym]; ok {
			l.LastPrice = &px
		}
		listings = append(listings, l)
	}
	u.log.Debug("universe snapshot", "assets", len(symbols), "priced", len(prices))
	return listings, nil
}

// chunk splits items into consecutive slices of at most size elements.
func chunk(items []string, size int) [][]string {
	if size <= 0 {
		size = len(items)
	}
	var out [][]string
	for i := 0; i < len(items); i += size {
		out = append(out, items[i:min(i+size, len(items))])
	}
	return out
}
