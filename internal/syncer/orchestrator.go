package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"fieldsync/internal/config"
	"fieldsync/internal/conflict"
	"fieldsync/internal/entity"
	"fieldsync/internal/logging"
	"fieldsync/internal/queue"
	"fieldsync/internal/retry"
	"fieldsync/internal/services"
)

// Orchestrator drains the queue one bounded batch per Run.
type Orchestrator struct {
	store    *queue.Store
	deps     Dependencies
	resolver *conflict.Resolver
	policy   retry.Policy
	logger   *slog.Logger
	state    *State
	observer Observer
	now      func() time.Time

	heartbeat         *heartbeatMonitor
	batchSize         int
	chunkSize         int
	processingTimeout time.Duration
	retention         time.Duration
}

// Option configures optional Orchestrator behavior.
type Option func(*Orchestrator)

// WithClock injects the time source. Pass the queue store's clock so
// scheduling decisions agree.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// WithObserver registers an outcome observer.
func WithObserver(observer Observer) Option {
	return func(o *Orchestrator) { o.observer = observer }
}

// WithResolver replaces the default conflict resolver.
func WithResolver(resolver *conflict.Resolver) Option {
	return func(o *Orchestrator) {
		if resolver != nil {
			o.resolver = resolver
		}
	}
}

// WithState shares an existing State, e.g. one already observed by the daemon.
func WithState(state *State) Option {
	return func(o *Orchestrator) {
		if state != nil {
			o.state = state
		}
	}
}

// New constructs an orchestrator from configuration.
func New(cfg *config.Config, store *queue.Store, deps Dependencies, logger *slog.Logger, opts ...Option) *Orchestrator {
	logger = logging.NewComponentLogger(logger, "syncer")
	o := &Orchestrator{
		store:    store,
		deps:     deps,
		resolver: conflict.NewResolver(logger, nil),
		policy: retry.Policy{
			BaseInterval: cfg.RetryBaseInterval(),
			MaxRetries:   cfg.Sync.MaxRetries,
		},
		logger:            logger,
		state:             NewState(),
		now:               func() time.Time { return time.Now().UTC() },
		heartbeat:         newHeartbeatMonitor(store, logger, cfg.HeartbeatInterval()),
		batchSize:         cfg.Sync.BatchSize,
		chunkSize:         cfg.Sync.FrameChunkSize,
		processingTimeout: cfg.ProcessingTimeout(),
		retention:         cfg.CompletedRetention(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// State returns the observable state owned by the orchestrator.
func (o *Orchestrator) State() *State {
	return o.state
}

// Run claims one batch and processes it in claim order. Item failures are
// recorded on the queue and never returned; the error is non-nil only when
// the batch could not be claimed or every attempted item failed.
func (o *Orchestrator) Run(ctx context.Context) (Result, error) {
	runID := uuid.NewString()
	if !o.state.begin(runID) {
		return Result{}, ErrRunActive
	}
	ctx = services.WithRunID(ctx, runID)
	logger := logging.WithContext(ctx, o.logger)
	result := Result{RunID: runID, StartedAt: o.now()}

	runErr := o.run(ctx, logger, &result)
	result.FinishedAt = o.now()

	o.refreshCounts(ctx, logger)
	o.state.finish(result.FinishedAt, runErr)
	if o.observer != nil {
		o.observer.ObserveRun(result, runErr)
	}
	return result, runErr
}

func (o *Orchestrator) run(ctx context.Context, logger *slog.Logger, result *Result) error {
	staleBefore := result.StartedAt.Add(-o.processingTimeout)
	items, err := o.store.ClaimBatch(ctx, o.batchSize, staleBefore)
	if err != nil {
		logger.Error("claim batch failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "claim_failed"),
			logging.String(logging.FieldErrorHint, "check queue database access"),
		)
		return fmt.Errorf("claim batch: %w", err)
	}
	if len(items) == 0 {
		logger.Debug("sync run found no eligible items")
		o.collectGarbage(ctx, logger, result)
		return nil
	}

	logger.Info("sync run started",
		logging.String(logging.FieldEventType, "run_start"),
		logging.Int("claimed", len(items)),
	)

	for i, item := range items {
		if ctx.Err() != nil {
			result.Unprocessed = len(items) - i
			logging.WarnWithContext(logger, "sync run interrupted", "run_interrupted",
				logging.Int("unprocessed", result.Unprocessed),
				logging.String(logging.FieldImpact, "remaining items are reclaimed after the processing timeout"),
			)
			break
		}
		outcome := o.processItem(ctx, item)
		result.Items = append(result.Items, outcome)
		if o.observer != nil {
			o.observer.ObserveItem(outcome)
		}
	}

	o.collectGarbage(ctx, logger, result)

	logger.Info("sync run finished",
		logging.String(logging.FieldEventType, "run_complete"),
		logging.Int("completed", result.Count(DispositionCompleted)+result.Count(DispositionRequeued)),
		logging.Int("failed", result.Failures()),
		logging.Int("deferred", result.Count(DispositionDeferred)),
		logging.Duration("run_duration", o.now().Sub(result.StartedAt)),
	)

	if result.allFailed() {
		return fmt.Errorf("%w: %d of %d items", ErrAllFailed, result.Failures(), len(result.Items))
	}
	return nil
}

func (o *Orchestrator) processItem(ctx context.Context, item *queue.Item) ItemOutcome {
	ctx = services.WithItemID(ctx, item.ID)
	ctx = services.WithEntity(ctx, string(item.EntityType), item.EntityID)
	logger := logging.WithContext(ctx, o.logger)
	started := o.now()

	outcome := ItemOutcome{
		ItemID:     item.ID,
		EntityType: item.EntityType,
		EntityID:   item.EntityID,
		Operation:  item.Operation,
	}

	stop := o.heartbeat.start(ctx, item.ID)
	deferUntil, err := o.upload(ctx, item)
	stop()

	switch {
	case err != nil && ctx.Err() != nil:
		outcome.Disposition = DispositionInterrupted
		logger.Info("upload interrupted; item left claimed for reclaim",
			logging.String(logging.FieldEventType, "item_interrupted"),
		)
	case deferUntil != nil:
		outcome.Disposition = DispositionDeferred
		updated, relErr := o.store.Release(ctx, item.ID, *deferUntil)
		o.settle(ctx, logger, &outcome, updated, relErr)
		logger.Info("item deferred until parent session syncs",
			logging.String(logging.FieldEventType, "item_deferred"),
			logging.String("retry_at", deferUntil.Format(time.RFC3339)),
		)
	default:
		o.apply(ctx, logger, item, err, &outcome)
	}

	outcome.Duration = o.now().Sub(started)
	return outcome
}

// apply records the retry policy's verdict on the queue and the entity.
func (o *Orchestrator) apply(ctx context.Context, logger *slog.Logger, item *queue.Item, uploadErr error, outcome *ItemOutcome) {
	switch verdict := o.policy.Evaluate(item, uploadErr, o.now()).(type) {
	case retry.Complete:
		updated, err := o.store.MarkCompleted(ctx, item.ID)
		outcome.Disposition = DispositionCompleted
		if updated != nil && updated.Status == queue.StatusPending {
			outcome.Disposition = DispositionRequeued
		}
		o.settle(ctx, logger, outcome, updated, err)
		if err != nil {
			return
		}
		if outcome.Disposition == DispositionRequeued {
			o.markEntity(ctx, logger, item, entity.SyncPending)
		} else {
			o.markEntity(ctx, logger, item, entity.SyncSynced)
		}
		attrs := []logging.Attr{
			logging.String(logging.FieldEventType, "item_complete"),
			logging.String("disposition", string(outcome.Disposition)),
		}
		if verdict.Reason != "" {
			attrs = append(attrs, logging.String("reason", verdict.Reason))
		}
		logger.Info("item synced", logging.Args(attrs...)...)

	case retry.Reschedule:
		updated, err := o.store.MarkFailed(ctx, item.ID, verdict.Message, string(verdict.Kind), verdict.At)
		outcome.Disposition = DispositionRescheduled
		outcome.Kind = verdict.Kind
		outcome.Message = verdict.Message
		o.settle(ctx, logger, outcome, updated, err)
		if err == nil {
			o.markEntity(ctx, logger, item, entity.SyncError)
		}
		logging.WarnWithContext(logger, "item upload failed; retry scheduled", "item_failed",
			logging.Error(uploadErr),
			logging.String(logging.FieldErrorHint, hintFor(verdict.Kind)),
			logging.String(logging.FieldImpact, "entity stays unsynced until the retry succeeds"),
			logging.String("error_kind", string(verdict.Kind)),
			logging.String("retry_at", verdict.At.Format(time.RFC3339)),
			logging.Int("retry_count", item.RetryCount+1),
		)

	case retry.Abandon:
		updated, err := o.store.MarkAbandoned(ctx, item.ID, verdict.Message, string(verdict.Kind))
		outcome.Disposition = DispositionAbandoned
		outcome.Kind = verdict.Kind
		outcome.Message = verdict.Message
		o.settle(ctx, logger, outcome, updated, err)
		if err == nil {
			status := entity.SyncError
			switch {
			case updated != nil && updated.Status == queue.StatusPending:
				status = entity.SyncPending
			case verdict.Kind == services.KindConflict:
				status = entity.SyncConflict
			}
			o.markEntity(ctx, logger, item, status)
		}
		logger.Error("item abandoned",
			logging.Error(uploadErr),
			logging.Alert("item_abandoned"),
			logging.String(logging.FieldEventType, "item_abandoned"),
			logging.String(logging.FieldErrorHint, "fix the cause, then run 'fieldsync queue retry "+item.ID+"'"),
			logging.String("error_kind", string(verdict.Kind)),
		)
	}
}

// settle copies the post-transition status into the outcome. A lost claim
// means another run reclaimed the item; its transition wins.
func (o *Orchestrator) settle(ctx context.Context, logger *slog.Logger, outcome *ItemOutcome, updated *queue.Item, err error) {
	if err == nil {
		if updated != nil {
			outcome.Status = updated.Status
		}
		return
	}
	if errors.Is(err, queue.ErrNotClaimed) {
		outcome.Disposition = DispositionLost
		logging.WarnWithContext(logger, "item claim lost before transition", "claim_lost",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "raise sync.processing_timeout_seconds if uploads are slow"),
			logging.String(logging.FieldImpact, "the reclaiming run repeats the upload"),
		)
		return
	}
	outcome.Disposition = DispositionLost
	outcome.Message = err.Error()
	if ctx.Err() != nil {
		logger.Debug("transition skipped during shutdown", logging.Error(err))
		return
	}
	logger.Error("failed to persist item transition",
		logging.Error(err),
		logging.String(logging.FieldEventType, "transition_failed"),
		logging.String(logging.FieldErrorHint, "check queue database access"),
	)
}

func (o *Orchestrator) collectGarbage(ctx context.Context, logger *slog.Logger, result *Result) {
	if o.retention <= 0 || ctx.Err() != nil {
		return
	}
	purged, err := o.store.PurgeCompleted(ctx, o.now().Add(-o.retention))
	if err != nil {
		logger.Warn("completed item cleanup failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "purge_failed"),
			logging.String(logging.FieldErrorHint, "check queue database access"),
			logging.String(logging.FieldImpact, "completed items accumulate until the next run"),
		)
		return
	}
	result.Purged = purged
	if purged > 0 {
		logger.Debug("purged completed items", logging.Int64("count", purged))
	}
}

func (o *Orchestrator) refreshCounts(ctx context.Context, logger *slog.Logger) {
	if ctx.Err() != nil {
		return
	}
	pending, err := o.store.PendingCount(ctx)
	if err != nil {
		logger.Debug("pending count unavailable", logging.Error(err))
		return
	}
	abandoned, err := o.store.AbandonedCount(ctx)
	if err != nil {
		logger.Debug("abandoned count unavailable", logging.Error(err))
		return
	}
	o.state.SetCounts(pending, abandoned)
}

func hintFor(kind services.Kind) string {
	switch kind {
	case services.KindNetwork:
		return "check connectivity and the remote.base_url setting"
	case services.KindValidation:
		return "the remote rejected the payload; inspect the local record"
	case services.KindConflict:
		return "inspect local and remote copies"
	default:
		return "see error for details"
	}
}
