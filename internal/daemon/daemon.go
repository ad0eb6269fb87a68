package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"fieldsync/internal/config"
	"fieldsync/internal/connectivity"
	"fieldsync/internal/logging"
	"fieldsync/internal/metrics"
	"fieldsync/internal/queue"
	"fieldsync/internal/records"
	"fieldsync/internal/syncer"
	"fieldsync/internal/trigger"
)

// Components are the long-lived services the daemon supervises. Collector and
// MetricsServer are optional.
type Components struct {
	Queue         *queue.Store
	Records       *records.Store
	Engine        *syncer.Engine
	Gate          *trigger.Gate
	Collector     *metrics.Collector
	MetricsServer *metrics.Server
}

// Daemon coordinates the background sync services and enforces single-instance execution.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger
	comp   Components

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started time.Time
}

// Status represents daemon runtime information.
type Status struct {
	Running       bool
	PID           int
	StartedAt     time.Time
	Sync          syncer.Snapshot
	Connectivity  connectivity.Class
	QueueStats    map[queue.Status]int
	QueueDBPath   string
	RecordsDBPath string
	LockFilePath  string
	FreeBytes     uint64
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, comp Components, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || comp.Queue == nil || comp.Records == nil || comp.Engine == nil || comp.Gate == nil {
		return nil, errors.New("daemon requires config, queue, records, engine, and trigger gate")
	}
	lockPath := cfg.LockPath()
	return &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		comp:     comp,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}, nil
}

// Start acquires the daemon lock, runs startup maintenance and launches the
// trigger gate and metrics services.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another fieldsync daemon instance is already running")
	}

	d.checkDiskSpace()
	d.maintain(ctx)

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.started = time.Now()

	d.spawn("trigger", func() error { return d.comp.Gate.Run(runCtx) })
	if d.comp.Collector != nil {
		d.spawn("metrics-follow", func() error {
			d.comp.Collector.Follow(runCtx, d.comp.Engine.State())
			return nil
		})
	}
	if d.comp.MetricsServer != nil {
		d.spawn("metrics-server", func() error { return d.comp.MetricsServer.Run(runCtx) })
	}

	d.running.Store(true)
	d.logger.Info("fieldsync daemon started",
		logging.String("lock", d.lockPath),
		logging.String("queue_db", d.comp.Queue.Path()),
		logging.String("records_db", d.comp.Records.Path()),
	)
	return nil
}

func (d *Daemon) spawn(name string, fn func() error) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := fn(); err != nil && !errors.Is(err, context.Canceled) {
			logging.ErrorWithContext(d.logger, "daemon service stopped", "service_failed",
				logging.String("service", name),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check the log above for the cause and restart the daemon"),
			)
		}
	}()
}

// maintain reclaims items a crashed process left PROCESSING and purges old
// completed items.
func (d *Daemon) maintain(ctx context.Context) {
	now := time.Now()
	reclaimed, err := d.comp.Queue.ReclaimStaleProcessing(ctx, now.Add(-d.cfg.ProcessingTimeout()))
	if err != nil {
		logging.WarnWithContext(d.logger, "stale item reclaim failed", "queue_reclaim_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "run 'fieldsync queue health'"),
			logging.String(logging.FieldImpact, "stale items are reclaimed by the next sync run instead"),
		)
	} else if reclaimed > 0 {
		d.logger.Info("reclaimed stale items", logging.Int64("count", reclaimed))
	}

	purged, err := d.comp.Queue.PurgeCompleted(ctx, now.Add(-d.cfg.CompletedRetention()))
	if err != nil {
		logging.WarnWithContext(d.logger, "completed item purge failed", "queue_purge_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "run 'fieldsync queue purge' manually"),
			logging.String(logging.FieldImpact, "completed items accumulate until the next purge"),
		)
	} else if purged > 0 {
		d.logger.Info("purged completed items", logging.Int64("count", purged))
	}

	if _, err := d.comp.Engine.AggregateSyncState(ctx); err != nil {
		d.logger.Warn("initial sync state refresh failed", logging.Error(err))
	}
}

func (d *Daemon) checkDiskSpace() {
	free, err := freeBytes(d.cfg.Paths.DataDir)
	if err != nil {
		d.logger.Debug("free space check failed", logging.Error(err))
		return
	}
	if free < minFreeBytes {
		logging.WarnWithContext(d.logger, "data directory low on space", "low_disk_space",
			logging.Int64("free_bytes", int64(free)),
			logging.String("data_dir", d.cfg.Paths.DataDir),
			logging.String(logging.FieldErrorHint, "free space on the data volume"),
			logging.String(logging.FieldImpact, "local writes and queue updates may fail"),
		)
	}
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running.Load() {
		return
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.wg.Wait()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("fieldsync daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	return errors.Join(d.comp.Records.Close(), d.comp.Queue.Close())
}

// Running reports whether Start succeeded and Stop has not been called.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	snap, err := d.comp.Engine.AggregateSyncState(ctx)
	if err != nil {
		d.logger.Debug("sync state refresh failed", logging.Error(err))
	}
	stats, err := d.comp.Queue.Stats(ctx)
	if err != nil {
		d.logger.Debug("queue stats failed", logging.Error(err))
	}
	free, _ := freeBytes(d.cfg.Paths.DataDir)
	d.mu.Lock()
	started := d.started
	d.mu.Unlock()
	return Status{
		Running:       d.running.Load(),
		PID:           os.Getpid(),
		StartedAt:     started,
		Sync:          snap,
		Connectivity:  d.comp.Gate.Class(),
		QueueStats:    stats,
		QueueDBPath:   d.comp.Queue.Path(),
		RecordsDBPath: d.comp.Records.Path(),
		LockFilePath:  d.lockPath,
		FreeBytes:     free,
	}
}

// Sync runs the orchestrator now or joins the run in flight.
func (d *Daemon) Sync(ctx context.Context, force bool) (syncer.Result, error) {
	return d.comp.Engine.TriggerImmediateSync(ctx, force)
}

// Enqueue records a mutation directly, bypassing the records store.
func (d *Daemon) Enqueue(ctx context.Context, entityType queue.EntityType, entityID string, op queue.Operation) (queue.EnqueueResult, error) {
	return d.comp.Engine.Enqueue(ctx, entityType, entityID, op)
}

// Import loads a YAML bundle into the records store.
func (d *Daemon) Import(ctx context.Context, path string) (records.ImportSummary, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return records.ImportSummary{}, errors.New("bundle path is required")
	}
	summary, err := d.comp.Records.ImportFile(ctx, path)
	if err != nil {
		return summary, err
	}
	d.logger.Info("bundle imported",
		logging.String("path", path),
		logging.Int("sessions", summary.Sessions),
		logging.Int("phases", summary.Phases),
		logging.Int("frames", summary.Frames),
	)
	return summary, nil
}

// ListQueue returns queue items filtered by optional statuses.
func (d *Daemon) ListQueue(ctx context.Context, statuses []queue.Status) ([]*queue.Item, error) {
	return d.comp.Queue.List(ctx, statuses...)
}

// GetQueueItem returns one item, or nil when it does not exist.
func (d *Daemon) GetQueueItem(ctx context.Context, id string) (*queue.Item, error) {
	return d.comp.Queue.GetByID(ctx, id)
}

// RetryAbandoned resets abandoned and failed items (optionally a subset).
func (d *Daemon) RetryAbandoned(ctx context.Context, ids []string) (int64, error) {
	updated, err := d.comp.Queue.RetryAbandoned(ctx, ids...)
	if err != nil {
		return 0, err
	}
	if _, err := d.comp.Engine.AggregateSyncState(ctx); err != nil {
		d.logger.Debug("sync state refresh failed", logging.Error(err))
	}
	return updated, nil
}

// PurgeCompleted removes completed items older than olderThan; zero uses the
// configured retention.
func (d *Daemon) PurgeCompleted(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		olderThan = d.cfg.CompletedRetention()
	}
	return d.comp.Queue.PurgeCompleted(ctx, time.Now().Add(-olderThan))
}

// ClearQueue removes items in the given statuses, or every item when none are given.
func (d *Daemon) ClearQueue(ctx context.Context, statuses []queue.Status) (int64, error) {
	removed, err := d.comp.Queue.Clear(ctx, statuses...)
	if err != nil {
		return 0, err
	}
	if _, err := d.comp.Engine.AggregateSyncState(ctx); err != nil {
		d.logger.Debug("sync state refresh failed", logging.Error(err))
	}
	return removed, nil
}

// QueueHealth returns aggregate queue diagnostics.
func (d *Daemon) QueueHealth(ctx context.Context) (queue.HealthSummary, error) {
	return d.comp.Queue.Health(ctx)
}

// DatabaseHealth returns detailed database diagnostics.
func (d *Daemon) DatabaseHealth(ctx context.Context) (queue.DatabaseHealth, error) {
	return d.comp.Queue.CheckHealth(ctx)
}
