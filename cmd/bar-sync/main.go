package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"barsync/internal/config"
	"barsync/internal/domain"
	"barsync/internal/gather"
	"barsync/internal/gather/us"
	"barsync/internal/metrics"
	"barsync/internal/progress"
	"barsync/internal/report"
	"barsync/internal/store"
	"barsync/internal/util"
)

func main() {
	status := flag.Bool("status", false, "list locally stored symbols with their last bar date and exit")
	history := flag.Int("history", 0, "print the N most recent runs from the ledger and exit")
	symbols := flag.String("symbols", "", "comma-separated subset of the universe to sync")
	flag.Parse()

	cfgPath := "config/barsync.yaml"
	if p := os.Getenv("BARSYNC_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// Dual logger: stdout + rotated log file.
	var w io.Writer = os.Stdout
	if cfg.Logging.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.Logging.File,
			MaxSize:    100, // MB
			MaxBackups: 5,
			MaxAge:     30, // days
			Compress:   true,
		}
		defer rotator.Close()
		w = io.MultiWriter(os.Stdout, rotator)
	}
	util.SetDefault(util.NewLogger(cfg.Logging.Level, cfg.Logging.Format, w))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	pstore := store.NewParquetStore(cfg.Storage.DataDir, cfg.Storage.Market)

	var ledger *store.SQLiteStore
	if cfg.Storage.LedgerPath != "" {
		ledger, err = store.NewSQLiteStore(cfg.Storage.LedgerPath)
		if err != nil {
			log.Fatalf("failed to open ledger: %v", err)
		}
		defer ledger.Close()
	}

	switch {
	case *status:
		if err := printStatus(ctx, os.Stdout, pstore); err != nil {
			log.Fatalf("status: %v", err)
		}
		return
	case *history > 0:
		if ledger == nil {
			log.Fatalf("history: storage.ledger_path is not configured")
		}
		if err := printHistory(ctx, os.Stdout, ledger, *history); err != nil {
			log.Fatalf("history: %v", err)
		}
		return
	}

	engine, err := buildEngine(ctx, cfg, pstore, ledger, splitSymbols(*symbols))
	if err != nil {
		log.Fatalf("failed to build sync engine: %v", err)
	}

	slog.Info("starting bar-sync",
		"provider", cfg.Sync.Provider,
		"universe", cfg.Sync.Universe,
		"dataDir", cfg.Storage.DataDir,
		"workers", cfg.Sync.MaxWorkers,
	)
	if _, err := engine.Sync(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			slog.Warn("interrupted", "err", err)
			os.Exit(130)
		}
		log.Fatalf("sync failed: %v", err)
	}
}

// buildEngine wires the configured providers, decorators and sinks.
func buildEngine(ctx context.Context, cfg *config.Config, pstore *store.ParquetStore, ledger *store.SQLiteStore, only []string) (*gather.IncrementalGatherer, error) {
	startDate, err := domain.ParseDate(cfg.Sync.StartDate)
	if err != nil {
		return nil, err
	}

	alpacaCfg := us.AlpacaConfig{
		APIKey:    cfg.Alpaca.APIKey,
		APISecret: cfg.Alpaca.APISecret,
		BaseURL:   cfg.Alpaca.BaseURL,
		DataURL:   cfg.Alpaca.DataURL,
		Feed:      cfg.Alpaca.Feed,
		Timeout:   cfg.Sync.RequestTimeout,
	}

	// Bar fetcher chain: circuit breaker -> observer -> provider. The worker
	// applies the rate limit ahead of the request timeout.
	var fetcher gather.BarFetcher
	switch cfg.Sync.Provider {
	case "polygon":
		fetcher, err = us.NewPolygonBars(cfg.Polygon.APIKey, cfg.Sync.Period, cfg.Sync.Adjustment)
	default:
		fetcher, err = us.NewAlpacaBars(alpacaCfg, cfg.Sync.Period, cfg.Sync.Adjustment)
	}
	if err != nil {
		return nil, err
	}

	var (
		sinks progress.Multi
		obs   gather.FetchObserver
	)
	if cfg.Metrics.Addr != "" {
		reg := metrics.NewRegistry()
		go func() {
			if err := reg.Serve(ctx, cfg.Metrics.Addr); err != nil {
				slog.Error("metrics server", "err", err)
			}
		}()
		obs = reg
		sinks = append(sinks, reg)
	}
	switch cfg.Sync.Progress {
	case "terminal":
		sinks = append(sinks, progress.NewTerminal(os.Stderr, 100*time.Millisecond))
	case "log":
		sinks = append(sinks, progress.NewLog(nil))
	}

	fetcher = gather.Observed(fetcher, obs)
	fetcher = gather.CircuitBroken(fetcher, cfg.Sync.Provider, cfg.Sync.BreakerFailures, cfg.Sync.BreakerCooldown)

	var universe gather.UniverseSource
	switch cfg.Sync.Universe {
	case "csv":
		universe = &us.CSVUniverse{Path: cfg.Sync.UniverseCSV}
	default:
		universe = us.NewAlpacaUniverse(alpacaCfg)
	}

	var reporter gather.ErrorReporter = report.NewCSVWriter(cfg.Storage.ErrorReport)
	if cfg.Archive.Endpoint != "" {
		a, err := report.NewArchiver(report.NewCSVWriter(cfg.Storage.ErrorReport), report.ArchiveConfig{
			Endpoint:  cfg.Archive.Endpoint,
			Bucket:    cfg.Archive.Bucket,
			AccessKey: cfg.Archive.AccessKey,
			SecretKey: cfg.Archive.SecretKey,
			Secure:    cfg.Archive.Secure,
			Prefix:    cfg.Archive.Prefix,
		})
		if err != nil {
			return nil, err
		}
		reporter = a
	}

	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		slog.Warn("loading ET timezone, falling back to UTC", "err", err)
		loc = time.UTC
	}

	// A nil *SQLiteStore must not become a non-nil interface.
	var runs store.RunStore
	if ledger != nil {
		runs = ledger
	}

	return gather.NewIncrementalGatherer("us-bar-sync",
		gather.NewCalendarResolver(us.NewAlpacaCalendar(alpacaCfg), cfg.Sync.CalendarLookbackDays, cfg.Sync.UpstreamRetries),
		gather.NewUniverseProvider(universe, cfg.Sync.UpstreamRetries),
		gather.NewWorker(pstore, fetcher, startDate, cfg.Sync.RequestTimeout).
			Throttle(util.NewRateLimiter(cfg.Sync.RateLimitPerMin)),
		gather.NewAggregator(sinks, reporter, runs),
		runs,
		gather.Options{MaxWorkers: cfg.Sync.MaxWorkers, Location: loc, Symbols: only},
	), nil
}

func splitSymbols(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func printStatus(ctx context.Context, w io.Writer, s *store.ParquetStore) error {
	symbols, err := s.ListSymbols(ctx)
	if err != nil {
		return err
	}
	for _, sym := range symbols {
		bars, ok := s.ReadDataset(ctx, sym)
		last, usable := store.LastDate(bars)
		if !ok || !usable {
			fmt.Fprintf(w, "%-10s %s\n", sym, "unreadable")
			continue
		}
		fmt.Fprintf(w, "%-10s %s %6d rows\n", sym, last.Format(domain.DateLayout), len(bars))
	}
	fmt.Fprintf(w, "%d symbols\n", len(symbols))
	return nil
}

func printHistory(ctx context.Context, w io.Writer, ledger *store.SQLiteStore, n int) error {
	runs, err := ledger.RecentRuns(ctx, n)
	if err != nil {
		return err
	}
	for _, r := range runs {
		elapsed := "running"
		if !r.Finished.IsZero() {
			elapsed = r.Finished.Sub(r.Started).Round(time.Second).String()
		}
		fmt.Fprintf(w, "%s  %s  target=%s  total=%d ok=%d failed=%d  %s\n",
			r.Started.Format(time.DateTime), r.ID, r.LastTradeDate.Format(domain.DateLayout),
			r.Total, r.Succeeded, r.Failed, elapsed)
	}
	return nil
}
