package services

import "context"

type contextKey string

const (
	itemIDKey    contextKey = "item_id"
	entityKey    contextKey = "entity"
	runIDKey     contextKey = "run_id"
	requestIDKey contextKey = "request_id"
)

// EntityRef names the entity a queue item targets.
type EntityRef struct {
	Type string
	ID   string
}

// WithItemID annotates context with the queue item identifier.
func WithItemID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, itemIDKey, id)
}

// ItemIDFromContext extracts the queue item identifier if present.
func ItemIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(itemIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithEntity annotates context with the entity type and id being synced.
func WithEntity(ctx context.Context, entityType, entityID string) context.Context {
	if entityType == "" && entityID == "" {
		return ctx
	}
	return context.WithValue(ctx, entityKey, EntityRef{Type: entityType, ID: entityID})
}

// EntityFromContext returns the entity reference if present.
func EntityFromContext(ctx context.Context) (EntityRef, bool) {
	ref, ok := ctx.Value(entityKey).(EntityRef)
	return ref, ok
}

// WithRunID annotates context with the orchestrator run identifier.
func WithRunID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, runIDKey, id)
}

// RunIDFromContext returns the orchestrator run identifier if present.
func RunIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(runIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithRequestID annotates context with a correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the correlation identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(requestIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
