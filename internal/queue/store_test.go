package queue_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"fieldsync/internal/queue"
	"fieldsync/internal/services"
	"fieldsync/internal/testsupport"
)

func openClockedStore(t *testing.T) (*queue.Store, *testsupport.Clock) {
	t.Helper()
	clock := testsupport.NewClock()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg, queue.WithClock(clock.Now))
	return store, clock
}

func TestEnqueueIsIdempotentPerEntity(t *testing.T) {
	store, _ := openClockedStore(t)
	ctx := context.Background()

	first, err := store.Enqueue(ctx, queue.EnqueueRequest{EntityType: queue.EntitySession, EntityID: "S1", Operation: queue.OpUpdate})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if !first.Created {
		t.Fatal("expected first enqueue to create an item")
	}
	second, err := store.Enqueue(ctx, queue.EnqueueRequest{EntityType: queue.EntitySession, EntityID: "S1", Operation: queue.OpUpdate, Priority: 4})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if !second.Coalesced || second.Item.ID != first.Item.ID {
		t.Fatalf("expected coalesced into %s, got %+v", first.Item.ID, second)
	}
	if second.Item.Priority != 4 {
		t.Fatalf("expected priority raised to 4, got %d", second.Item.Priority)
	}

	items, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected exactly one queue item, got %d", len(items))
	}
}

func TestEnqueueCoalescesOperations(t *testing.T) {
	cases := []struct {
		name  string
		ops   []queue.Operation
		want  queue.Operation
		entry queue.EntityType
	}{
		{"create then update stays create", []queue.Operation{queue.OpCreate, queue.OpUpdate}, queue.OpCreate, queue.EntitySession},
		{"update then delete becomes delete", []queue.Operation{queue.OpUpdate, queue.OpDelete}, queue.OpDelete, queue.EntityPhase},
		{"create then delete becomes delete", []queue.Operation{queue.OpCreate, queue.OpDelete}, queue.OpDelete, queue.EntitySession},
		{"delete then create becomes create", []queue.Operation{queue.OpDelete, queue.OpCreate}, queue.OpCreate, queue.EntityPhase},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store, _ := openClockedStore(t)
			var last *queue.Item
			for _, op := range tc.ops {
				last = testsupport.MustEnqueue(t, store, tc.entry, "E1", op)
			}
			if last.Operation != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, last.Operation)
			}
			if last.Precedence != queue.Precedence(tc.entry, tc.want) {
				t.Fatalf("precedence not recomputed: %d", last.Precedence)
			}
		})
	}
}

func TestEnqueueRejectsInvalidMutations(t *testing.T) {
	store, _ := openClockedStore(t)
	ctx := context.Background()

	cases := []queue.EnqueueRequest{
		{EntityType: queue.EntityFrames, EntityID: "S1", Operation: queue.OpDelete},
		{EntityType: "PHOTO", EntityID: "P1", Operation: queue.OpCreate},
		{EntityType: queue.EntityPhase, EntityID: "P1", Operation: "UPSERT"},
		{EntityType: queue.EntityPhase, EntityID: "  ", Operation: queue.OpCreate},
	}
	for _, req := range cases {
		if _, err := store.Enqueue(ctx, req); !errors.Is(err, services.ErrValidation) {
			t.Fatalf("expected validation error for %+v, got %v", req, err)
		}
	}
}

func TestClaimBatchHonoursPrecedence(t *testing.T) {
	store, clock := openClockedStore(t)
	ctx := context.Background()

	// Enqueue in reverse dependency order so creation time alone would be wrong.
	testsupport.MustEnqueue(t, store, queue.EntitySession, "S9", queue.OpDelete)
	testsupport.MustEnqueue(t, store, queue.EntitySetupConfig, "C1", queue.OpCreate)
	testsupport.MustEnqueue(t, store, queue.EntityPhase, "P1", queue.OpCreate)
	testsupport.MustEnqueue(t, store, queue.EntityFrames, "S1", queue.OpCreate)
	testsupport.MustEnqueue(t, store, queue.EntitySession, "S2", queue.OpUpdate)
	testsupport.MustEnqueue(t, store, queue.EntitySession, "S1", queue.OpCreate)
	clock.Advance(time.Second)

	claimed, err := store.ClaimBatch(ctx, 10, clock.Now().Add(-time.Minute))
	if err != nil {
		t.Fatalf("ClaimBatch: %v", err)
	}
	want := []string{
		"SESSION:S1 CREATE",
		"SESSION:S2 UPDATE",
		"FRAMES:S1 CREATE",
		"PHASE:P1 CREATE",
		"SETUP_CONFIG:C1 CREATE",
		"SESSION:S9 DELETE",
	}
	if len(claimed) != len(want) {
		t.Fatalf("expected %d claimed, got %d", len(want), len(claimed))
	}
	for i, item := range claimed {
		if item.Label() != want[i] {
			t.Fatalf("position %d: got %s want %s", i, item.Label(), want[i])
		}
		if item.Status != queue.StatusProcessing {
			t.Fatalf("expected PROCESSING, got %s", item.Status)
		}
	}
}

func TestClaimBatchPriorityWithinClass(t *testing.T) {
	store, clock := openClockedStore(t)
	ctx := context.Background()

	if _, err := store.Enqueue(ctx, queue.EnqueueRequest{EntityType: queue.EntityPhase, EntityID: "low", Operation: queue.OpCreate}); err != nil {
		t.Fatal(err)
	}
	clock.Advance(time.Millisecond)
	if _, err := store.Enqueue(ctx, queue.EnqueueRequest{EntityType: queue.EntityPhase, EntityID: "high", Operation: queue.OpCreate, Priority: 10}); err != nil {
		t.Fatal(err)
	}

	claimed, err := store.ClaimBatch(ctx, 1, clock.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("ClaimBatch: %v", err)
	}
	if len(claimed) != 1 || claimed[0].EntityID != "high" {
		t.Fatalf("expected high priority phase first, got %+v", claimed)
	}
}

func TestClaimBatchIsAtomicAcrossCallers(t *testing.T) {
	store, clock := openClockedStore(t)
	ctx := context.Background()
	for _, id := range []string{"P1", "P2", "P3", "P4", "P5", "P6"} {
		testsupport.MustEnqueue(t, store, queue.EntityPhase, id, queue.OpCreate)
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = map[string]int{}
	)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			claimed, err := store.ClaimBatch(ctx, 4, clock.Now().Add(-time.Hour))
			if err != nil {
				t.Errorf("ClaimBatch: %v", err)
				return
			}
			mu.Lock()
			defer mu.Unlock()
			for _, item := range claimed {
				seen[item.ID]++
			}
		}()
	}
	wg.Wait()

	if len(seen) != 6 {
		t.Fatalf("expected all 6 items claimed once, got %d distinct", len(seen))
	}
	for id, count := range seen {
		if count != 1 {
			t.Fatalf("item %s claimed %d times", id, count)
		}
	}
}

func TestFailedItemsWaitForSchedule(t *testing.T) {
	store, clock := openClockedStore(t)
	ctx := context.Background()
	item := testsupport.MustEnqueue(t, store, queue.EntityPhase, "P1", queue.OpUpdate)

	claimed, err := store.ClaimBatch(ctx, 5, clock.Now().Add(-time.Hour))
	if err != nil || len(claimed) != 1 {
		t.Fatalf("ClaimBatch: %v (%d)", err, len(claimed))
	}
	failed, err := store.MarkFailed(ctx, item.ID, "remote offline", "network", clock.Now().Add(30*time.Second))
	if err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}
	if failed.Status != queue.StatusFailed || failed.RetryCount != 1 || failed.ErrorKind != "network" {
		t.Fatalf("unexpected failed item: %+v", failed)
	}

	claimed, err = store.ClaimBatch(ctx, 5, clock.Now().Add(-time.Hour))
	if err != nil || len(claimed) != 0 {
		t.Fatalf("expected nothing eligible before schedule, got %d (%v)", len(claimed), err)
	}

	clock.Advance(31 * time.Second)
	claimed, err = store.ClaimBatch(ctx, 5, clock.Now().Add(-time.Hour))
	if err != nil || len(claimed) != 1 || claimed[0].ID != item.ID {
		t.Fatalf("expected failed item eligible after schedule, got %d (%v)", len(claimed), err)
	}
}

func TestMarkAbandonedIsTerminal(t *testing.T) {
	store, clock := openClockedStore(t)
	ctx := context.Background()
	item := testsupport.MustEnqueue(t, store, queue.EntitySession, "S1", queue.OpCreate)

	if _, err := store.ClaimBatch(ctx, 1, clock.Now().Add(-time.Hour)); err != nil {
		t.Fatal(err)
	}
	abandoned, err := store.MarkAbandoned(ctx, item.ID, "validation: bad payload", "validation")
	if err != nil {
		t.Fatalf("MarkAbandoned: %v", err)
	}
	if abandoned.Status != queue.StatusAbandoned || abandoned.RetryCount != 1 {
		t.Fatalf("unexpected abandoned item: %+v", abandoned)
	}

	clock.Advance(24 * time.Hour)
	claimed, err := store.ClaimBatch(ctx, 5, clock.Now())
	if err != nil || len(claimed) != 0 {
		t.Fatalf("abandoned item must never be claimed, got %d (%v)", len(claimed), err)
	}
	count, err := store.AbandonedCount(ctx)
	if err != nil || count != 1 {
		t.Fatalf("expected 1 abandoned, got %d (%v)", count, err)
	}

	// A fresh mutation after abandonment starts a new item.
	fresh := testsupport.MustEnqueue(t, store, queue.EntitySession, "S1", queue.OpUpdate)
	if fresh.ID == item.ID {
		t.Fatal("expected new item after abandonment")
	}

	// Manual retry skips the abandoned row because newer work exists.
	n, err := store.RetryAbandoned(ctx, item.ID)
	if err != nil || n != 0 {
		t.Fatalf("expected retry to be skipped, got %d (%v)", n, err)
	}
}

func TestRetryAbandonedResetsBudget(t *testing.T) {
	store, clock := openClockedStore(t)
	ctx := context.Background()
	item := testsupport.MustEnqueue(t, store, queue.EntityPhase, "P1", queue.OpCreate)
	if _, err := store.ClaimBatch(ctx, 1, clock.Now().Add(-time.Hour)); err != nil {
		t.Fatal(err)
	}
	if _, err := store.MarkAbandoned(ctx, item.ID, "gave up", "network"); err != nil {
		t.Fatal(err)
	}

	n, err := store.RetryAbandoned(ctx)
	if err != nil || n != 1 {
		t.Fatalf("RetryAbandoned: %d (%v)", n, err)
	}
	retried, err := store.GetByID(ctx, item.ID)
	if err != nil {
		t.Fatal(err)
	}
	if retried.Status != queue.StatusPending || retried.RetryCount != 0 || retried.ErrorMessage != "" {
		t.Fatalf("unexpected retried item: %+v", retried)
	}
}

func TestRetryAbandonedRevivesNewestRowPerEntity(t *testing.T) {
	store, clock := openClockedStore(t)
	ctx := context.Background()

	abandon := func(op queue.Operation) *queue.Item {
		t.Helper()
		item := testsupport.MustEnqueue(t, store, queue.EntityPhase, "P1", op)
		if _, err := store.ClaimBatch(ctx, 1, clock.Now().Add(-time.Hour)); err != nil {
			t.Fatal(err)
		}
		if _, err := store.MarkAbandoned(ctx, item.ID, "gave up", "network"); err != nil {
			t.Fatal(err)
		}
		clock.Advance(time.Minute)
		return item
	}
	older := abandon(queue.OpCreate)
	newer := abandon(queue.OpUpdate)
	other := testsupport.MustEnqueue(t, store, queue.EntitySession, "S9", queue.OpCreate)
	if _, err := store.ClaimBatch(ctx, 1, clock.Now().Add(-time.Hour)); err != nil {
		t.Fatal(err)
	}
	if _, err := store.MarkAbandoned(ctx, other.ID, "gave up", "network"); err != nil {
		t.Fatal(err)
	}

	n, err := store.RetryAbandoned(ctx)
	if err != nil {
		t.Fatalf("RetryAbandoned: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected one row per entity retried, got %d", n)
	}

	for id, want := range map[string]queue.Status{
		older.ID: queue.StatusAbandoned,
		newer.ID: queue.StatusPending,
		other.ID: queue.StatusPending,
	} {
		item, err := store.GetByID(ctx, id)
		if err != nil {
			t.Fatal(err)
		}
		if item.Status != want {
			t.Fatalf("item %s: expected %s, got %s", id, want, item.Status)
		}
	}

	// The entity now has active work, so the older row stays parked.
	if n, err := store.RetryAbandoned(ctx, older.ID); err != nil || n != 0 {
		t.Fatalf("expected older row skipped, got %d (%v)", n, err)
	}
}

func TestSupersededItemIsRequeuedOnCompletion(t *testing.T) {
	store, clock := openClockedStore(t)
	ctx := context.Background()
	item := testsupport.MustEnqueue(t, store, queue.EntitySession, "S1", queue.OpCreate)

	if _, err := store.ClaimBatch(ctx, 1, clock.Now().Add(-time.Hour)); err != nil {
		t.Fatal(err)
	}
	res, err := store.Enqueue(ctx, queue.EnqueueRequest{EntityType: queue.EntitySession, EntityID: "S1", Operation: queue.OpUpdate})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if !res.Superseded || res.Item.ID != item.ID {
		t.Fatalf("expected supersede of in-flight item, got %+v", res)
	}

	completed, err := store.MarkCompleted(ctx, item.ID)
	if err != nil {
		t.Fatalf("MarkCompleted: %v", err)
	}
	if completed.Status != queue.StatusPending {
		t.Fatalf("expected superseded item requeued, got %s", completed.Status)
	}
	if completed.Operation != queue.OpUpdate || completed.Precedence != queue.Precedence(queue.EntitySession, queue.OpUpdate) {
		t.Fatalf("expected follow-up UPDATE, got %s (precedence %d)", completed.Operation, completed.Precedence)
	}
	if completed.Superseded {
		t.Fatal("expected superseded flag cleared")
	}
}

func TestSupersededDeleteSurvivesFailure(t *testing.T) {
	store, clock := openClockedStore(t)
	ctx := context.Background()
	item := testsupport.MustEnqueue(t, store, queue.EntityPhase, "P1", queue.OpUpdate)
	if _, err := store.ClaimBatch(ctx, 1, clock.Now().Add(-time.Hour)); err != nil {
		t.Fatal(err)
	}
	testsupport.MustEnqueue(t, store, queue.EntityPhase, "P1", queue.OpDelete)

	failed, err := store.MarkFailed(ctx, item.ID, "timeout", "network", clock.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}
	if failed.Operation != queue.OpDelete || failed.Status != queue.StatusFailed {
		t.Fatalf("expected failed DELETE, got %s %s", failed.Status, failed.Operation)
	}
}

func TestStaleProcessingIsReclaimed(t *testing.T) {
	store, clock := openClockedStore(t)
	ctx := context.Background()
	item := testsupport.MustEnqueue(t, store, queue.EntityFrames, "S1", queue.OpCreate)

	if _, err := store.ClaimBatch(ctx, 1, clock.Now().Add(-time.Hour)); err != nil {
		t.Fatal(err)
	}
	clock.Advance(2 * time.Minute)

	// Heartbeat still fresh relative to a one-hour timeout: not reclaimable.
	claimed, err := store.ClaimBatch(ctx, 1, clock.Now().Add(-time.Hour))
	if err != nil || len(claimed) != 0 {
		t.Fatalf("expected in-flight item to stay claimed, got %d (%v)", len(claimed), err)
	}

	// With a one-minute timeout the heartbeat is stale.
	claimed, err = store.ClaimBatch(ctx, 1, clock.Now().Add(-time.Minute))
	if err != nil || len(claimed) != 1 || claimed[0].ID != item.ID {
		t.Fatalf("expected stale item reclaimed, got %d (%v)", len(claimed), err)
	}

	clock.Advance(2 * time.Minute)
	n, err := store.ReclaimStaleProcessing(ctx, clock.Now().Add(-time.Minute))
	if err != nil || n != 1 {
		t.Fatalf("ReclaimStaleProcessing: %d (%v)", n, err)
	}
	reclaimed, err := store.GetByID(ctx, item.ID)
	if err != nil || reclaimed.Status != queue.StatusPending {
		t.Fatalf("expected PENDING after reclaim, got %+v (%v)", reclaimed, err)
	}
}

func TestTransitionsRequireClaim(t *testing.T) {
	store, clock := openClockedStore(t)
	ctx := context.Background()
	item := testsupport.MustEnqueue(t, store, queue.EntityPhase, "P1", queue.OpCreate)

	if _, err := store.MarkCompleted(ctx, item.ID); !errors.Is(err, queue.ErrNotClaimed) {
		t.Fatalf("expected ErrNotClaimed for pending item, got %v", err)
	}
	if err := store.UpdateHeartbeat(ctx, item.ID); !errors.Is(err, queue.ErrNotClaimed) {
		t.Fatalf("expected ErrNotClaimed heartbeat, got %v", err)
	}
	if _, err := store.MarkFailed(ctx, "missing", "x", "unknown", clock.Now()); !errors.Is(err, queue.ErrNotClaimed) {
		t.Fatalf("expected ErrNotClaimed for missing item, got %v", err)
	}
}

func TestReleaseDoesNotChargeAttempt(t *testing.T) {
	store, clock := openClockedStore(t)
	ctx := context.Background()
	item := testsupport.MustEnqueue(t, store, queue.EntityFrames, "S1", queue.OpCreate)
	if _, err := store.ClaimBatch(ctx, 1, clock.Now().Add(-time.Hour)); err != nil {
		t.Fatal(err)
	}
	released, err := store.Release(ctx, item.ID, clock.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("Release: %v", err)
	}
	if released.Status != queue.StatusPending || released.RetryCount != 0 {
		t.Fatalf("unexpected released item: %+v", released)
	}
	if !released.ScheduledAt.Equal(clock.Now().Add(time.Minute)) {
		t.Fatalf("expected schedule honoured, got %v", released.ScheduledAt)
	}
}

func TestPurgeCompletedAndCounts(t *testing.T) {
	store, clock := openClockedStore(t)
	ctx := context.Background()
	done := testsupport.MustEnqueue(t, store, queue.EntityPhase, "P1", queue.OpCreate)
	testsupport.MustEnqueue(t, store, queue.EntityPhase, "P2", queue.OpCreate)

	claimed, err := store.ClaimBatch(ctx, 1, clock.Now().Add(-time.Hour))
	if err != nil || len(claimed) != 1 {
		t.Fatalf("ClaimBatch: %v", err)
	}
	active, _ := store.ActiveCount(ctx)
	pending, _ := store.PendingCount(ctx)
	if active != 1 || pending != 1 {
		t.Fatalf("expected 1 active / 1 pending, got %d / %d", active, pending)
	}
	if _, err := store.MarkCompleted(ctx, done.ID); err != nil {
		t.Fatal(err)
	}

	n, err := store.PurgeCompleted(ctx, clock.Now().Add(-time.Hour))
	if err != nil || n != 0 {
		t.Fatalf("expected recent completion retained, got %d (%v)", n, err)
	}
	clock.Advance(73 * time.Hour)
	n, err = store.PurgeCompleted(ctx, clock.Now().Add(-72*time.Hour))
	if err != nil || n != 1 {
		t.Fatalf("expected one purged, got %d (%v)", n, err)
	}

	health, err := store.Health(ctx)
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if health.Total != 1 || health.Pending != 1 || health.OldestPending == nil {
		t.Fatalf("unexpected health: %+v", health)
	}
}

func TestCheckHealthReportsSchema(t *testing.T) {
	store, _ := openClockedStore(t)
	testsupport.MustEnqueue(t, store, queue.EntitySession, "S1", queue.OpCreate)

	health, err := store.CheckHealth(context.Background())
	if err != nil {
		t.Fatalf("CheckHealth: %v", err)
	}
	if !health.DatabaseExists || !health.DatabaseReadable || !health.TableExists || !health.IntegrityCheck {
		t.Fatalf("unexpected health: %+v", health)
	}
	if len(health.MissingColumns) != 0 {
		t.Fatalf("unexpected missing columns: %v", health.MissingColumns)
	}
	if health.TotalItems != 1 || health.SchemaVersion != 1 {
		t.Fatalf("unexpected totals: %+v", health)
	}
}

func TestClearAndRemove(t *testing.T) {
	store, _ := openClockedStore(t)
	ctx := context.Background()
	a := testsupport.MustEnqueue(t, store, queue.EntityPhase, "P1", queue.OpCreate)
	testsupport.MustEnqueue(t, store, queue.EntityPhase, "P2", queue.OpCreate)
	testsupport.MustEnqueue(t, store, queue.EntityPhase, "P3", queue.OpCreate)

	if n, err := store.Remove(ctx, a.ID); err != nil || n != 1 {
		t.Fatalf("Remove: %d (%v)", n, err)
	}
	if n, err := store.Clear(ctx, queue.StatusCompleted); err != nil || n != 0 {
		t.Fatalf("Clear completed: %d (%v)", n, err)
	}
	if n, err := store.Clear(ctx); err != nil || n != 2 {
		t.Fatalf("Clear all: %d (%v)", n, err)
	}
}
