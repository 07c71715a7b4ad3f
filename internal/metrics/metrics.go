// Package metrics exposes Prometheus counters and histograms for a
// single run of the ETL engine: files processed by outcome, rows
// loaded by table, and per-file load duration.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry bundles the metrics the orchestrator reports against, scoped
// to its own prometheus.Registerer so multiple runs in the same process
// (as in tests) don't collide on the global default registry.
type Registry struct {
	reg *prometheus.Registry

	FilesProcessedTotal *prometheus.CounterVec
	RowsLoadedTotal     *prometheus.CounterVec
	FileLoadDuration    prometheus.Histogram
}

// New constructs a Registry with all metrics registered.
func New() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		reg: reg,
		FilesProcessedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eudravigilance_files_processed_total",
				Help: "Total number of ICSR files processed, by outcome status",
			},
			[]string{"status"},
		),
		RowsLoadedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eudravigilance_rows_loaded_total",
				Help: "Total number of rows loaded, by target table",
			},
			[]string{"table"},
		),
		FileLoadDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "eudravigilance_file_load_duration_seconds",
				Help:    "Wall-clock time to hash, validate, extract, transform, and load one file",
				Buckets: prometheus.DefBuckets,
			},
		),
	}

	reg.MustRegister(r.FilesProcessedTotal, r.RowsLoadedTotal, r.FileLoadDuration)
	return r
}

// ObserveFile records a completed file's outcome and duration.
func (r *Registry) ObserveFile(status string, duration time.Duration) {
	r.FilesProcessedTotal.WithLabelValues(status).Inc()
	r.FileLoadDuration.Observe(duration.Seconds())
}

// AddRows records rows loaded into a given table.
func (r *Registry) AddRows(table string, n int) {
	if n <= 0 {
		return
	}
	r.RowsLoadedTotal.WithLabelValues(table).Add(float64(n))
}

// Handler returns an http.Handler scraping this registry only.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// Serve starts an HTTP server exposing Handler() at /metrics on addr
// and blocks until ctx is canceled, at which point it shuts the server
// down. A no-op if addr is empty.
func Serve(ctx context.Context, addr string, r *Registry) error {
	if addr == "" {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
