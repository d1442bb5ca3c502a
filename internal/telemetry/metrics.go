package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Registry holds the Prometheus metrics exposed by the backtester.
type Registry struct {
	// Run counters
	BacktestsTotal *prometheus.CounterVec
	BacktestErrors *prometheus.CounterVec
	RunDuration    *prometheus.HistogramVec
	TradesRecorded *prometheus.CounterVec

	// Optimizer metrics
	GridEvaluations *prometheus.CounterVec
	CacheHits       prometheus.Counter
	CacheMisses     prometheus.Counter

	// Validation metrics
	ValidationRuns *prometheus.CounterVec
}

// NewRegistry creates and registers all backtester metrics.
func NewRegistry() *Registry {
	r := &Registry{
		BacktestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quantfuse_backtests_total",
				Help: "Total number of backtest runs by strategy",
			},
			[]string{"strategy"},
		),

		BacktestErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quantfuse_backtest_errors_total",
				Help: "Total number of failed backtest runs by strategy",
			},
			[]string{"strategy"},
		),

		RunDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "quantfuse_run_duration_seconds",
				Help:    "Duration of pipeline runs in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0},
			},
			[]string{"mode"},
		),

		TradesRecorded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quantfuse_trades_total",
				Help: "Total number of simulated trades by exit reason",
			},
			[]string{"exit_reason"},
		),

		GridEvaluations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quantfuse_grid_evaluations_total",
				Help: "Total number of optimizer grid evaluations by status",
			},
			[]string{"status"},
		),

		CacheHits: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "quantfuse_optimizer_cache_hits_total",
				Help: "Total number of optimizer result cache hits",
			},
		),

		CacheMisses: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "quantfuse_optimizer_cache_misses_total",
				Help: "Total number of optimizer result cache misses",
			},
		),

		ValidationRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quantfuse_validation_runs_total",
				Help: "Total number of validation runs by overfit level",
			},
			[]string{"overfit_level"},
		),
	}

	prometheus.MustRegister(
		r.BacktestsTotal,
		r.BacktestErrors,
		r.RunDuration,
		r.TradesRecorded,
		r.GridEvaluations,
		r.CacheHits,
		r.CacheMisses,
		r.ValidationRuns,
	)

	return r
}

// RunTimer tracks execution time for one pipeline run.
type RunTimer struct {
	registry *Registry
	mode     string
	start    time.Time
}

// StartRun begins timing a pipeline run.
func (r *Registry) StartRun(mode string) *RunTimer {
	return &RunTimer{registry: r, mode: mode, start: time.Now()}
}

// Stop records the run duration.
func (t *RunTimer) Stop() {
	duration := time.Since(t.start)
	t.registry.RunDuration.WithLabelValues(t.mode).Observe(duration.Seconds())

	log.Debug().
		Str("mode", t.mode).
		Dur("duration", duration).
		Msg("pipeline run completed")
}

// Serve exposes /metrics and /health on the given address. It blocks until
// the server exits.
func Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	log.Info().Str("addr", addr).Msg("metrics endpoint listening")
	return http.ListenAndServe(addr, mux)
}
