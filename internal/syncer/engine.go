package syncer

import (
	"context"
	"fmt"
	"log/slog"

	"fieldsync/internal/logging"
	"fieldsync/internal/queue"
)

// Triggerer starts a sync run on demand. force bypasses the connectivity
// class restriction.
type Triggerer interface {
	Trigger(ctx context.Context, force bool) (Result, error)
}

// Engine is the entry point for the rest of the application: local writers
// enqueue through it and status readers observe it.
type Engine struct {
	store      *queue.Store
	state      *State
	trigger    Triggerer
	logger     *slog.Logger
	priority   int
	maxRetries int
}

// EngineOption configures optional Engine behavior.
type EngineOption func(*Engine)

// WithDefaultPriority sets the priority given to new items.
func WithDefaultPriority(priority int) EngineOption {
	return func(e *Engine) { e.priority = priority }
}

// WithMaxRetries sets the retry budget stored on new items.
func WithMaxRetries(maxRetries int) EngineOption {
	return func(e *Engine) { e.maxRetries = maxRetries }
}

// NewEngine wires the facade. trigger may be nil until the gate is built;
// see SetTrigger.
func NewEngine(store *queue.Store, state *State, trigger Triggerer, logger *slog.Logger, opts ...EngineOption) *Engine {
	if state == nil {
		state = NewState()
	}
	e := &Engine{
		store:      store,
		state:      state,
		trigger:    trigger,
		logger:     logging.NewComponentLogger(logger, "engine"),
		maxRetries: queue.DefaultMaxRetries,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SetTrigger installs the trigger used by TriggerImmediateSync.
func (e *Engine) SetTrigger(trigger Triggerer) {
	e.trigger = trigger
}

// State exposes the observable state.
func (e *Engine) State() *State {
	return e.state
}

// Enqueue records a local mutation for upload.
func (e *Engine) Enqueue(ctx context.Context, entityType queue.EntityType, entityID string, op queue.Operation) (queue.EnqueueResult, error) {
	result, err := e.store.Enqueue(ctx, queue.EnqueueRequest{
		EntityType: entityType,
		EntityID:   entityID,
		Operation:  op,
		Priority:   e.priority,
		MaxRetries: e.maxRetries,
	})
	if err != nil {
		return queue.EnqueueResult{}, err
	}
	logger := logging.WithContext(ctx, e.logger)
	switch {
	case result.Created:
		logger.Debug("mutation queued", logging.String("item", result.Item.Label()))
	case result.Superseded:
		logger.Debug("in-flight item superseded", logging.String("item", result.Item.Label()))
	case result.Coalesced:
		logger.Debug("mutation coalesced", logging.String("item", result.Item.Label()))
	}
	if _, err := e.AggregateSyncState(ctx); err != nil {
		logger.Debug("state refresh failed", logging.Error(err))
	}
	return result, nil
}

// PendingCount returns the number of items still waiting for upload.
func (e *Engine) PendingCount(ctx context.Context) (int, error) {
	return e.store.PendingCount(ctx)
}

// AggregateSyncState refreshes the queue counts and returns the snapshot.
func (e *Engine) AggregateSyncState(ctx context.Context) (Snapshot, error) {
	pending, err := e.store.PendingCount(ctx)
	if err != nil {
		return e.state.Snapshot(), fmt.Errorf("pending count: %w", err)
	}
	abandoned, err := e.store.AbandonedCount(ctx)
	if err != nil {
		return e.state.Snapshot(), fmt.Errorf("abandoned count: %w", err)
	}
	e.state.SetCounts(pending, abandoned)
	return e.state.Snapshot(), nil
}

// TriggerImmediateSync asks for a run now. Concurrent requests join the run
// already in flight.
func (e *Engine) TriggerImmediateSync(ctx context.Context, force bool) (Result, error) {
	if e.trigger == nil {
		return Result{}, fmt.Errorf("sync trigger not configured")
	}
	return e.trigger.Trigger(ctx, force)
}
