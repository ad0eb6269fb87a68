package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fieldsync/internal/conflict"
	"fieldsync/internal/logging"
	"fieldsync/internal/syncer"
)

const namespace = "fieldsync"

// Collector exports sync activity as Prometheus metrics. It satisfies
// syncer.Observer and its ObserveConflict method fits conflict.Observer.
type Collector struct {
	items       *prometheus.CounterVec
	itemLatency *prometheus.HistogramVec
	runs        *prometheus.CounterVec
	runLatency  prometheus.Histogram
	conflicts   *prometheus.CounterVec
	pending     prometheus.Gauge
	abandoned   prometheus.Gauge
	lastSync    prometheus.Gauge
	online      *prometheus.GaugeVec
}

// NewCollector builds a collector and registers it with reg. A nil reg uses
// the default registerer.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	c := &Collector{
		items: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_total",
			Help:      "Queue items processed, by entity type and disposition.",
		}, []string{"entity_type", "disposition"}),
		itemLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "item_duration_seconds",
			Help:      "Time spent uploading one queue item.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"entity_type"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Sync runs, by result.",
		}, []string{"result"}),
		runLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of a sync run.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300},
		}),
		conflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conflicts_total",
			Help:      "Conflict resolutions, by entity type and strategy.",
		}, []string{"entity_type", "strategy"}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_pending",
			Help:      "Items waiting to be synced.",
		}),
		abandoned: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_abandoned",
			Help:      "Items that exhausted their retry budget.",
		}),
		lastSync: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_sync_timestamp_seconds",
			Help:      "Unix time of the last finished sync run.",
		}),
		online: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connectivity",
			Help:      "1 for the current connectivity class, 0 otherwise.",
		}, []string{"class"}),
	}
	for _, col := range []prometheus.Collector{
		c.items, c.itemLatency, c.runs, c.runLatency, c.conflicts,
		c.pending, c.abandoned, c.lastSync, c.online,
	} {
		if err := reg.Register(col); err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
	}
	return c, nil
}

// ObserveItem records one item outcome.
func (c *Collector) ObserveItem(outcome syncer.ItemOutcome) {
	entityType := string(outcome.EntityType)
	c.items.WithLabelValues(entityType, string(outcome.Disposition)).Inc()
	c.itemLatency.WithLabelValues(entityType).Observe(outcome.Duration.Seconds())
}

// ObserveRun records a finished run.
func (c *Collector) ObserveRun(result syncer.Result, err error) {
	c.runs.WithLabelValues(runLabel(result, err)).Inc()
	if !result.FinishedAt.IsZero() && !result.StartedAt.IsZero() {
		c.runLatency.Observe(result.FinishedAt.Sub(result.StartedAt).Seconds())
		c.lastSync.Set(float64(result.FinishedAt.Unix()))
	}
}

func runLabel(result syncer.Result, err error) string {
	switch {
	case err == nil && result.Claimed() == 0:
		return "empty"
	case err == nil:
		return "ok"
	case errors.Is(err, syncer.ErrAllFailed):
		return "all_failed"
	default:
		return "error"
	}
}

// ObserveConflict records a conflict resolver decision.
func (c *Collector) ObserveConflict(entityType string, decision conflict.Decision) {
	c.conflicts.WithLabelValues(entityType, string(decision.Strategy())).Inc()
}

// ObserveSnapshot mirrors the aggregate sync state into gauges.
func (c *Collector) ObserveSnapshot(snap syncer.Snapshot) {
	c.pending.Set(float64(snap.PendingCount))
	c.abandoned.Set(float64(snap.AbandonedCount))
	c.online.Reset()
	if snap.Connectivity != "" {
		c.online.WithLabelValues(snap.Connectivity).Set(1)
	}
}

// Follow applies every snapshot published by state until ctx is done.
func (c *Collector) Follow(ctx context.Context, state *syncer.State) {
	updates, cancel := state.Subscribe()
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-updates:
			if !ok {
				return
			}
			c.ObserveSnapshot(snap)
		}
	}
}

// StatusSource reports the aggregate sync state; syncer.Engine satisfies it.
type StatusSource interface {
	AggregateSyncState(ctx context.Context) (syncer.Snapshot, error)
}

// ServerOption customizes a Server.
type ServerOption func(*serverOptions)

type serverOptions struct {
	status StatusSource
}

// WithStatus also serves the aggregate sync state as JSON on /api/status,
// for dashboards that do not scrape Prometheus.
func WithStatus(source StatusSource) ServerOption {
	return func(o *serverOptions) { o.status = source }
}

// Server exposes a gatherer on /metrics.
type Server struct {
	bind   string
	srv    *http.Server
	logger *slog.Logger
}

// NewServer builds a metrics endpoint bound to bind.
func NewServer(bind string, gatherer prometheus.Gatherer, logger *slog.Logger, opts ...ServerOption) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	var options serverOptions
	for _, opt := range opts {
		opt(&options)
	}
	s := &Server{
		bind:   bind,
		logger: logging.NewComponentLogger(logger, "metrics"),
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	if options.status != nil {
		mux.Handle("/api/status", s.statusHandler(options.status))
	}
	s.srv = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
	return s
}

// Handler returns the server's routes.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

func (s *Server) statusHandler(source StatusSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		snap, err := source.AggregateSyncState(r.Context())
		if err != nil {
			s.logger.Warn("status request failed",
				logging.Error(err),
				logging.String(logging.FieldEventType, "status_unavailable"),
				logging.String(logging.FieldErrorHint, "check queue database access"),
			)
			http.Error(w, "sync state unavailable", http.StatusServiceUnavailable)
			return
		}
		body, err := json.Marshal(snap)
		if err != nil {
			http.Error(w, "encode sync state", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(body)
	}
}

// Run serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("listen metrics %s: %w", s.bind, err)
	}
	s.logger.Info("metrics endpoint listening", logging.String("bind", listener.Addr().String()))

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.srv.Serve(listener)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("metrics shutdown failed", logging.Error(err))
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
