package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"fieldsync/internal/config"
	"fieldsync/internal/conflict"
	"fieldsync/internal/connectivity"
	"fieldsync/internal/daemon"
	"fieldsync/internal/ipc"
	"fieldsync/internal/logging"
	"fieldsync/internal/metrics"
	"fieldsync/internal/queue"
	"fieldsync/internal/records"
	"fieldsync/internal/remote"
	"fieldsync/internal/syncer"
	"fieldsync/internal/trigger"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
}

// BuildOption overrides a component Build would otherwise derive from config.
type BuildOption func(*buildOptions)

type buildOptions struct {
	remote   syncer.RemoteAPI
	source   connectivity.Source
	registry *prometheus.Registry
}

// WithRemote replaces the HTTP remote adapter.
func WithRemote(api syncer.RemoteAPI) BuildOption {
	return func(o *buildOptions) { o.remote = api }
}

// WithSource replaces the connectivity source.
func WithSource(source connectivity.Source) BuildOption {
	return func(o *buildOptions) { o.source = source }
}

// WithRegistry registers metrics on reg instead of a fresh registry.
func WithRegistry(reg *prometheus.Registry) BuildOption {
	return func(o *buildOptions) { o.registry = reg }
}

// Build opens the stores and wires the sync engine, orchestrator, trigger
// gate and optional metrics into a daemon. The caller owns the returned
// daemon and must Close it.
func Build(cfg *config.Config, logger *slog.Logger, opts ...BuildOption) (*daemon.Daemon, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	var options buildOptions
	for _, opt := range opts {
		opt(&options)
	}

	source := options.source
	if source == nil {
		var err error
		source, err = sourceFromConfig(cfg, logger)
		if err != nil {
			return nil, err
		}
	}

	store, err := queue.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open queue store: %w", err)
	}
	state := syncer.NewState()
	engine := syncer.NewEngine(store, state, nil, logger,
		syncer.WithDefaultPriority(cfg.Sync.DefaultPriority),
		syncer.WithMaxRetries(cfg.Sync.MaxRetries),
	)
	recs, err := records.Open(cfg, records.WithEnqueuer(engine))
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("open records store: %w", err)
	}
	fail := func(err error) (*daemon.Daemon, error) {
		return nil, errors.Join(err, recs.Close(), store.Close())
	}

	api := options.remote
	if api == nil {
		client, err := remote.New(cfg, logger)
		if err != nil {
			return fail(err)
		}
		api = client
	}

	var (
		collector     *metrics.Collector
		metricsServer *metrics.Server
		observe       conflict.Observer
		orchOpts      = []syncer.Option{syncer.WithState(state)}
	)
	if cfg.Metrics.Enabled {
		reg := options.registry
		if reg == nil {
			reg = prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		}
		collector, err = metrics.NewCollector(reg)
		if err != nil {
			return fail(fmt.Errorf("register metrics: %w", err))
		}
		metricsServer = metrics.NewServer(cfg.Metrics.Bind, reg, logger, metrics.WithStatus(engine))
		observe = collector.ObserveConflict
		orchOpts = append(orchOpts, syncer.WithObserver(collector))
	}
	orchOpts = append(orchOpts, syncer.WithResolver(conflict.NewResolver(logger, observe)))

	orch := syncer.New(cfg, store, syncer.Dependencies{
		Sessions:     recs.Sessions(),
		Phases:       recs.Phases(),
		Frames:       recs,
		SetupConfigs: recs.SetupConfigs(),
		Remote:       api,
	}, logger, orchOpts...)

	gate := trigger.New(cfg, orch, source, logger, trigger.WithState(state))
	engine.SetTrigger(gate)

	d, err := daemon.New(cfg, daemon.Components{
		Queue:         store,
		Records:       recs,
		Engine:        engine,
		Gate:          gate,
		Collector:     collector,
		MetricsServer: metricsServer,
	}, logger)
	if err != nil {
		return fail(fmt.Errorf("create daemon: %w", err))
	}
	return d, nil
}

func sourceFromConfig(cfg *config.Config, logger *slog.Logger) (connectivity.Source, error) {
	forced := strings.TrimSpace(cfg.Connectivity.ForceClass)
	if forced != "" {
		class, ok := connectivity.ParseClass(forced)
		if !ok {
			return nil, fmt.Errorf("connectivity.force_class: unknown class %q", forced)
		}
		logger.Info("connectivity pinned by config", logging.String("class", string(class)))
		return connectivity.NewStatic(class), nil
	}
	return connectivity.NewMonitor(connectivity.NewProbe(cfg.Connectivity), cfg.PollInterval(), logger), nil
}

// Run starts the fieldsync daemon runtime loop and blocks until SIGINT or
// SIGTERM.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	level := cfg.Logging.Level
	if strings.TrimSpace(opts.LogLevel) != "" {
		level = opts.LogLevel
	}
	logger, err := logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stdout", filepath.Join(cfg.Paths.LogDir, "fieldsyncd.log")},
		Development: opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	pidPath := filepath.Join(cfg.Paths.DataDir, "fieldsyncd.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	d, err := Build(cfg, logger)
	if err != nil {
		logging.ErrorWithContext(logger, "daemon assembly failed", "daemon_build_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check configuration and database access"),
		)
		return err
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}

	ipcServer, err := ipc.NewServer(signalCtx, cfg.Paths.SocketPath, d, logger)
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	logger.Info("fieldsync daemon ready",
		logging.String(logging.FieldEventType, "daemon_ready"),
		logging.String("socket", cfg.Paths.SocketPath),
		logging.String("remote", cfg.Remote.BaseURL),
		logging.Bool("metrics_enabled", cfg.Metrics.Enabled),
		logging.Bool("allow_cellular", cfg.Sync.AllowCellular),
	)

	<-signalCtx.Done()
	logger.Info("fieldsync daemon shutting down")
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}
