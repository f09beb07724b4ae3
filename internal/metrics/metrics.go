// Package metrics exposes refresher collectors over HTTP.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Collectors are the refresher's instruments.
type Collectors struct {
	Refreshes       *prometheus.CounterVec
	FetchLatency    prometheus.Histogram
	StaleDropped    prometheus.Counter
	Excluded        prometheus.Counter
	Opportunities   prometheus.Gauge
	TotalProfit     prometheus.Gauge
	MaxProfit       prometheus.Gauge
	SummaryMismatch prometheus.Counter
	AlertsSent      prometheus.Counter
}

// New creates collectors and registers them on reg.
func New(reg prometheus.Registerer) *Collectors {
	c := &Collectors{
		Refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arbexplorer_refreshes_total",
			Help: "Snapshot refreshes by outcome",
		}, []string{"outcome"}),
		FetchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "arbexplorer_fetch_latency_seconds",
			Help:    "Time to fetch one upstream snapshot",
			Buckets: prometheus.DefBuckets,
		}),
		StaleDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "arbexplorer_stale_snapshots_dropped_total",
			Help: "Snapshots discarded because a newer one was already applied",
		}),
		Excluded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "arbexplorer_malformed_entries_total",
			Help: "Malformed upstream records and samples excluded",
		}),
		Opportunities: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "arbexplorer_opportunities",
			Help: "Opportunities in the current working set",
		}),
		TotalProfit: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "arbexplorer_total_profit_usd",
			Help: "Summed net profit of the current working set",
		}),
		MaxProfit: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "arbexplorer_max_profit_usd",
			Help: "Largest single net profit in the current working set",
		}),
		SummaryMismatch: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "arbexplorer_summary_mismatch_total",
			Help: "Snapshots whose upstream summary disagrees with local aggregation",
		}),
		AlertsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "arbexplorer_alerts_sent_total",
			Help: "Opportunity alerts dispatched",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			c.Refreshes,
			c.FetchLatency,
			c.StaleDropped,
			c.Excluded,
			c.Opportunities,
			c.TotalProfit,
			c.MaxProfit,
			c.SummaryMismatch,
			c.AlertsSent,
		)
	}
	return c
}

// Handler serves /healthz and /metrics for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	}))
	return mux
}

// Serve runs the metrics server until ctx is cancelled. An empty addr
// disables it.
func Serve(ctx context.Context, addr string, gatherer prometheus.Gatherer, logger zerolog.Logger) {
	log := logger.With().Str("component", "metrics").Logger()
	if addr == "" {
		log.Info().Msg("metrics disabled: empty addr")
		return
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           Handler(gatherer),
		ReadTimeout:       5 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("metrics server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("metrics server error")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("metrics server shutdown error")
			return
		}
		log.Info().Msg("metrics server stopped")
	}()
}
