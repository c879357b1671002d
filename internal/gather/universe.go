package gather

import (
	"context"
	"fmt"
	"strings"
	"time"

	"barsync/internal/domain"
	"barsync/internal/util"
)

// UniverseProvider snapshots the symbol universe and flags delisted symbols.
//
// A symbol is delisted when the snapshot has no latest price for it. A symbol
// delisted between two runs that the snapshot still prices is not detected;
// it takes the normal incremental path.
type UniverseProvider struct {
	source     UniverseSource
	retries    int
	retryDelay time.Duration
}

// NewUniverseProvider creates a UniverseProvider over source.
func NewUniverseProvider(source UniverseSource, retries int) *UniverseProvider {
	return &UniverseProvider{
		source:     source,
		retries:    max(retries, 1),
		retryDelay: time.Second,
	}
}

// Snapshot returns the de-duplicated, upper-cased symbols in first-seen
// order and the subset that is delisted. Remote failure or an empty universe
// is reported as ErrUpstreamUnavailable.
func (p *UniverseProvider) Snapshot(ctx context.Context) (symbols, delisted []string, err error) {
	var snap []domain.Listing
	err = util.Retry(ctx, "universe snapshot", p.retries, p.retryDelay, func() error {
		var err error
		snap, err = p.source.Snapshot(ctx)
		return err
	})
	if err != nil {
		return nil, nil, fmt.Errorf("%w: universe snapshot: %w", ErrUpstreamUnavailable, err)
	}

	seen := make(map[string]struct{}, len(snap))
	for _, l := range snap {
		sym := strings.ToUpper(strings.TrimSpace(l.Symbol))
		if sym == "" {
			continue
		}
		if _, dup := seen[sym]; dup {
			continue
		}
		seen[sym] = struct{}{}
		symbols = append(symbols, sym)
		if l.LastPrice == nil {
			delisted = append(delisted, sym)
		}
	}
	if len(symbols) == 0 {
		return nil, nil, fmt.Errorf("%w: universe snapshot is empty", ErrUpstreamUnavailable)
	}
	return symbols, delisted, nil
}
