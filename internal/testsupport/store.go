package testsupport

import (
	"context"
	"sync"
	"testing"
	"time"

	"fieldsync/internal/config"
	"fieldsync/internal/queue"
	"fieldsync/internal/records"
)

// MustOpenStore opens a queue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config, opts ...queue.Option) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg, opts...)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// MustOpenRecords opens a records.Store for tests and registers cleanup.
func MustOpenRecords(t testing.TB, cfg *config.Config, opts ...records.Option) *records.Store {
	t.Helper()

	store, err := records.Open(cfg, opts...)
	if err != nil {
		t.Fatalf("records.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// MustEnqueue enqueues a mutation and fails the test on error.
func MustEnqueue(t testing.TB, store *queue.Store, entityType queue.EntityType, entityID string, op queue.Operation) *queue.Item {
	t.Helper()

	res, err := store.Enqueue(context.Background(), queue.EnqueueRequest{
		EntityType: entityType,
		EntityID:   entityID,
		Operation:  op,
	})
	if err != nil {
		t.Fatalf("store.Enqueue: %v", err)
	}
	return res.Item
}

// Clock is a manually advanced clock for deterministic scheduling tests.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock returns a clock starting at a fixed instant.
func NewClock() *Clock {
	return &Clock{now: time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)}
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
