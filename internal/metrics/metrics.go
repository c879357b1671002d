// Package metrics exposes sync run metrics to Prometheus.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"barsync/internal/domain"
)

// Registry holds every barsync metric on its own prometheus.Registry.
type Registry struct {
	reg *prometheus.Registry

	FetchDuration *prometheus.HistogramVec
	FetchRows     prometheus.Counter

	SymbolsTotal     prometheus.Gauge
	SymbolsDone      prometheus.Gauge
	SymbolsSucceeded prometheus.Gauge
	SymbolsFailed    prometheus.Gauge

	RunDuration   prometheus.Gauge
	LastTradeDate prometheus.Gauge
	RunsTotal     prometheus.Counter
}

// NewRegistry creates and registers all metrics.
func NewRegistry() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),

		FetchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "barsync_fetch_duration_seconds",
				Help:    "Duration of remote bar fetches in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15, 30},
			},
			[]string{"result"},
		),
		FetchRows: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "barsync_fetch_rows_total",
			Help: "Total number of bars returned by remote fetches",
		}),

		SymbolsTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "barsync_symbols_total",
			Help: "Number of symbols in the current run",
		}),
		SymbolsDone: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "barsync_symbols_done",
			Help: "Number of symbols finished in the current run",
		}),
		SymbolsSucceeded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "barsync_symbols_succeeded",
			Help: "Number of successful symbols in the current run",
		}),
		SymbolsFailed: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "barsync_symbols_failed",
			Help: "Number of failed symbols in the current run",
		}),

		RunDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "barsync_last_run_duration_seconds",
			Help: "Wall time of the last completed run",
		}),
		LastTradeDate: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "barsync_last_trade_date_seconds",
			Help: "Target trading date of the last completed run as a Unix timestamp",
		}),
		RunsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "barsync_runs_total",
			Help: "Total number of completed runs",
		}),
	}

	r.reg.MustRegister(
		r.FetchDuration, r.FetchRows,
		r.SymbolsTotal, r.SymbolsDone, r.SymbolsSucceeded, r.SymbolsFailed,
		r.RunDuration, r.LastTradeDate, r.RunsTotal,
	)
	return r
}

// ObserveFetch records one remote fetch.
func (r *Registry) ObserveFetch(_ string, elapsed time.Duration, rows int, err error) {
	result := "ok"
	switch {
	case err != nil:
		result = "error"
	case rows == 0:
		result = "empty"
	}
	r.FetchDuration.WithLabelValues(result).Observe(elapsed.Seconds())
	r.FetchRows.Add(float64(rows))
}

// Update mirrors the live progress counters.
func (r *Registry) Update(p domain.Progress) {
	r.SymbolsTotal.Set(float64(p.Total))
	r.SymbolsDone.Set(float64(p.Done))
	r.SymbolsSucceeded.Set(float64(p.Succeeded))
	r.SymbolsFailed.Set(float64(p.Failed))
}

// Done records the finished run.
func (r *Registry) Done(s domain.Summary) {
	r.Update(domain.Progress{
		Total:     s.Total,
		Done:      s.Succeeded + s.Failed,
		Succeeded: s.Succeeded,
		Failed:    s.Failed,
	})
	r.RunDuration.Set(s.Finished.Sub(s.Started).Seconds())
	r.LastTradeDate.Set(float64(s.LastTradeDate.Unix()))
	r.RunsTotal.Inc()
}

// Handler returns the HTTP handler serving the registry.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (r *Registry) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	slog.Info("metrics listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
