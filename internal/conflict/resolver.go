package conflict

import (
	"context"
	"log/slog"
	"strings"

	"fieldsync/internal/entity"
	"fieldsync/internal/logging"
)

// Observer receives every decision a Resolver makes, e.g. for metrics.
type Observer func(entityType string, decision Decision)

// Resolver runs detection and resolution with logging and an observer hook.
type Resolver struct {
	logger  *slog.Logger
	observe Observer
}

// NewResolver constructs a Resolver. Both arguments may be nil.
func NewResolver(logger *slog.Logger, observe Observer) *Resolver {
	return &Resolver{
		logger:  logging.NewComponentLogger(logger, "conflict"),
		observe: observe,
	}
}

// Session detects and, when the copies differ, resolves a session conflict.
// The boolean is false when no field differs and no resolution is needed.
func (r *Resolver) Session(ctx context.Context, local, remote entity.Session) (Decision, bool) {
	if len(DetectSession(local, remote)) == 0 && (local.ID == remote.ID || remote.ID == "") {
		return Decision{}, false
	}
	decision := ResolveSession(local, remote)
	r.record(ctx, "SESSION", decision)
	return decision, true
}

// Phase detects and, when the copies differ, resolves a phase conflict.
func (r *Resolver) Phase(ctx context.Context, local, remote entity.Phase) (Decision, bool) {
	if len(DetectPhase(local, remote)) == 0 {
		return Decision{}, false
	}
	decision := ResolvePhase(local, remote)
	r.record(ctx, "PHASE", decision)
	return decision, true
}

func (r *Resolver) record(ctx context.Context, entityType string, decision Decision) {
	if r == nil {
		return
	}
	logger := logging.WithContext(ctx, r.logger)
	attrs := []logging.Attr{
		logging.String("strategy", string(decision.Strategy())),
		logging.String("conflicting_fields", strings.Join(decision.ConflictingFields, ",")),
		logging.String("reason", decision.Reason),
	}
	if decision.AutoResolvable {
		logger.Info("conflict resolved", logging.Args(attrs...)...)
	} else {
		logging.WarnWithContext(logger, "conflict needs manual resolution", "conflict_manual",
			append(attrs,
				logging.String(logging.FieldErrorHint, "inspect local and remote copies, then re-enqueue"),
				logging.String(logging.FieldImpact, "entity left unsynced"),
			)...)
	}
	if r.observe != nil {
		r.observe(entityType, decision)
	}
}
