package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"fieldsync/internal/conflict"
	"fieldsync/internal/cues"
	"fieldsync/internal/entity"
	"fieldsync/internal/logging"
	"fieldsync/internal/queue"
	"fieldsync/internal/retry"
	"fieldsync/internal/services"
)

// upload performs the remote calls for one item. A non-nil time means the
// item must wait for its parent session and should be released, not failed.
func (o *Orchestrator) upload(ctx context.Context, item *queue.Item) (*time.Time, error) {
	switch item.EntityType {
	case queue.EntitySession:
		return nil, o.uploadSession(ctx, item)
	case queue.EntityFrames:
		return o.uploadFrames(ctx, item)
	case queue.EntityPhase:
		return o.uploadPhase(ctx, item)
	case queue.EntitySetupConfig:
		return o.uploadSetupConfig(ctx, item)
	default:
		return nil, retry.Permanent(services.Wrap(services.ErrValidation, "syncer", "upload",
			fmt.Sprintf("unknown entity type %q", item.EntityType), nil))
	}
}

func (o *Orchestrator) uploadSession(ctx context.Context, item *queue.Item) error {
	remote := o.deps.Remote
	if item.Operation == queue.OpDelete {
		return remote.DeleteSession(ctx, item.EntityID)
	}

	local, err := o.deps.Sessions.Get(ctx, item.EntityID)
	if err != nil {
		return localReadError("session", item, err)
	}
	o.setStatus(ctx, item, entity.SyncSyncing)

	if item.Operation == queue.OpCreate {
		err := remote.CreateSession(ctx, local)
		if !services.IsConflict(err) {
			return err
		}
		// Created by an earlier attempt whose completion was never recorded.
	}
	return o.reconcileSession(ctx, item, local)
}

// reconcileSession fetches the remote copy, resolves any divergence and pushes
// the locally editable fields.
func (o *Orchestrator) reconcileSession(ctx context.Context, item *queue.Item, local entity.Session) error {
	remote := o.deps.Remote
	snapshot, err := remote.GetSession(ctx, local.ID)
	if services.IsNotFound(err) {
		return remote.CreateSession(ctx, local)
	}
	if err != nil {
		return err
	}

	decision, conflicted := o.resolver.Session(ctx, local, snapshot)
	if !conflicted {
		return remote.SetTrim(ctx, local)
	}

	o.setStatus(ctx, item, entity.SyncConflict)
	switch res := decision.Resolution.(type) {
	case conflict.UseLocal:
		return remote.SetTrim(ctx, local)
	case conflict.UseServer:
		if err := o.deps.Sessions.UpdateFromMerge(ctx, snapshot); err != nil {
			return fmt.Errorf("apply server session: %w", err)
		}
		return nil
	case conflict.Merge:
		if err := o.deps.Sessions.UpdateFromMerge(ctx, res.Session); err != nil {
			return fmt.Errorf("apply merged session: %w", err)
		}
		return remote.SetTrim(ctx, res.Session)
	case conflict.Manual:
		return retry.Permanent(services.Wrap(services.ErrConflict, "syncer", "resolve session", res.Reason, nil))
	default:
		return fmt.Errorf("unhandled resolution %T", res)
	}
}

func (o *Orchestrator) uploadFrames(ctx context.Context, item *queue.Item) (*time.Time, error) {
	sessionID := item.EntityID
	if until, err := o.parentPending(ctx, sessionID); until != nil || err != nil {
		return until, err
	}

	frames, err := o.deps.Frames.FramesFor(ctx, sessionID)
	if err != nil {
		return nil, localReadError("frames", item, err)
	}
	o.setStatus(ctx, item, entity.SyncSyncing)

	logger := logging.WithContext(ctx, o.logger)
	chunks := entity.Chunk(frames, o.chunkSize)
	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := o.deps.Remote.SubmitFrameBatch(ctx, sessionID, chunk); err != nil {
			return nil, fmt.Errorf("frame chunk %d/%d: %w", i+1, len(chunks), err)
		}
		logger.Debug("frame chunk uploaded",
			logging.Int("chunk", i+1),
			logging.Int("chunks", len(chunks)),
			logging.Int("frames", len(chunk)),
		)
	}
	return nil, nil
}

func (o *Orchestrator) uploadPhase(ctx context.Context, item *queue.Item) (*time.Time, error) {
	remote := o.deps.Remote
	if item.Operation == queue.OpDelete {
		return nil, remote.DeletePhase(ctx, item.EntityID)
	}

	phase, err := o.deps.Phases.Get(ctx, item.EntityID)
	if err != nil {
		return nil, localReadError("phase", item, err)
	}
	if until, err := o.parentPending(ctx, phase.SessionID); until != nil || err != nil {
		return until, err
	}
	if _, err := cues.Encode(phase.Cues); err != nil {
		return nil, retry.Permanent(err)
	}
	o.setStatus(ctx, item, entity.SyncSyncing)

	if item.Operation == queue.OpCreate {
		err := remote.CreatePhase(ctx, phase)
		if !services.IsConflict(err) {
			return nil, err
		}
	}

	snapshot, err := remote.GetPhase(ctx, phase.ID)
	if services.IsNotFound(err) {
		return nil, remote.CreatePhase(ctx, phase)
	}
	if err != nil {
		return nil, err
	}
	// Local annotations always win; the resolver only records what is overwritten.
	o.resolver.Phase(ctx, phase, snapshot)
	return nil, remote.UpdatePhase(ctx, phase)
}

func (o *Orchestrator) uploadSetupConfig(ctx context.Context, item *queue.Item) (*time.Time, error) {
	remote := o.deps.Remote
	if item.Operation == queue.OpDelete {
		return nil, remote.DeleteSetupConfig(ctx, item.EntityID)
	}

	setup, err := o.deps.SetupConfigs.Get(ctx, item.EntityID)
	if err != nil {
		return nil, localReadError("setup config", item, err)
	}
	if until, err := o.parentPending(ctx, setup.SessionID); until != nil || err != nil {
		return until, err
	}
	o.setStatus(ctx, item, entity.SyncSyncing)
	return nil, remote.PutSetupConfig(ctx, setup)
}

// parentPending returns when a child item may next be tried if its session's
// CREATE has not reached the remote yet.
func (o *Orchestrator) parentPending(ctx context.Context, sessionID string) (*time.Time, error) {
	if sessionID == "" {
		return nil, nil
	}
	parent, err := o.store.PendingParent(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("check parent session: %w", err)
	}
	if parent == nil {
		return nil, nil
	}
	until := parent.ScheduledAt
	if now := o.now(); until.Before(now) {
		until = now
	}
	return &until, nil
}

// localReadError turns a failed local lookup into an upload error. A record
// that no longer exists cannot be uploaded by any retry. The cause is not
// wrapped so the item is classified as a validation failure, not not-found.
func localReadError(what string, item *queue.Item, err error) error {
	if services.IsNotFound(err) {
		return retry.Permanent(services.Wrap(services.ErrValidation, "syncer", "load "+what,
			fmt.Sprintf("local %s %s missing for %s (%v)", what, item.EntityID, item.Operation, err), nil))
	}
	return fmt.Errorf("load local %s: %w", what, err)
}

func (o *Orchestrator) setStatus(ctx context.Context, item *queue.Item, status entity.SyncStatus) {
	o.markEntity(ctx, logging.WithContext(ctx, o.logger), item, status)
}

// markEntity writes status to the record that owns item. Deleted records are
// skipped. Frames report through their session, which is only marked synced
// once it has no queued work of its own.
func (o *Orchestrator) markEntity(ctx context.Context, logger *slog.Logger, item *queue.Item, status entity.SyncStatus) {
	if item.Operation == queue.OpDelete || ctx.Err() != nil {
		return
	}
	var err error
	switch item.EntityType {
	case queue.EntitySession:
		err = o.deps.Sessions.UpdateSyncStatus(ctx, item.EntityID, status)
	case queue.EntityFrames:
		if status == entity.SyncSynced {
			active, findErr := o.store.FindActive(ctx, queue.EntitySession, item.EntityID)
			if findErr != nil || active != nil {
				return
			}
		}
		err = o.deps.Sessions.UpdateSyncStatus(ctx, item.EntityID, status)
	case queue.EntityPhase:
		err = o.deps.Phases.UpdateSyncStatus(ctx, item.EntityID, status)
	case queue.EntitySetupConfig:
		err = o.deps.SetupConfigs.UpdateSyncStatus(ctx, item.EntityID, status)
	}
	if err == nil {
		return
	}
	if services.IsNotFound(err) {
		logger.Debug("sync status target missing", logging.String("status", string(status)))
		return
	}
	logger.Warn("failed to update entity sync status",
		logging.Error(err),
		logging.String("status", string(status)),
		logging.String(logging.FieldEventType, "sync_status_failed"),
		logging.String(logging.FieldErrorHint, "check records database access"),
		logging.String(logging.FieldImpact, "status indicators may be stale"),
	)
}
