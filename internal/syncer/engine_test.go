package syncer_test

import (
	"context"
	"testing"

	"fieldsync/internal/queue"
	"fieldsync/internal/syncer"
)

type stubTrigger struct {
	forced []bool
	run    func(context.Context) (syncer.Result, error)
}

func (s *stubTrigger) Trigger(ctx context.Context, force bool) (syncer.Result, error) {
	s.forced = append(s.forced, force)
	return s.run(ctx)
}

func TestEngineEnqueueIsIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first, err := h.engine.Enqueue(ctx, queue.EntitySession, "S1", queue.OpCreate)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	second, err := h.engine.Enqueue(ctx, queue.EntitySession, "S1", queue.OpUpdate)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if !first.Created || second.Created || second.Item.ID != first.Item.ID {
		t.Fatalf("expected second enqueue to coalesce into %s, got %+v", first.Item.ID, second)
	}
	if second.Item.Operation != queue.OpCreate {
		t.Fatalf("expected CREATE kept, got %s", second.Item.Operation)
	}
	pending, err := h.engine.PendingCount(ctx)
	if err != nil || pending != 1 {
		t.Fatalf("expected one pending item, got %d err=%v", pending, err)
	}
	if snap := h.engine.State().Snapshot(); snap.PendingCount != 1 {
		t.Fatalf("expected state refreshed on enqueue, got %+v", snap)
	}
}

func TestEngineTriggerImmediateSync(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if _, err := h.engine.TriggerImmediateSync(ctx, true); err == nil {
		t.Fatal("expected error without trigger")
	}

	h.records.PutSession(session("S1"))
	h.enqueue(t, queue.EntitySession, "S1", queue.OpCreate)
	trigger := &stubTrigger{run: h.orch.Run}
	h.engine.SetTrigger(trigger)

	result, err := h.engine.TriggerImmediateSync(ctx, true)
	if err != nil {
		t.Fatalf("TriggerImmediateSync: %v", err)
	}
	if len(trigger.forced) != 1 || !trigger.forced[0] {
		t.Fatalf("expected forced trigger, got %v", trigger.forced)
	}
	if result.Count(syncer.DispositionCompleted) != 1 {
		t.Fatalf("expected completed item, got %+v", result.Items)
	}
	snap, err := h.engine.AggregateSyncState(ctx)
	if err != nil {
		t.Fatalf("AggregateSyncState: %v", err)
	}
	if snap.PendingCount != 0 || snap.LastRunID != result.RunID {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
}

func TestStateSubscribeCancel(t *testing.T) {
	state := syncer.NewState()
	updates, cancel := state.Subscribe()
	<-updates
	state.SetConnectivity("wifi")
	if got := <-updates; got.Connectivity != "wifi" {
		t.Fatalf("expected wifi, got %q", got.Connectivity)
	}
	cancel()
	cancel()
	if _, ok := <-updates; ok {
		t.Fatal("expected closed channel after cancel")
	}
	state.SetConnectivity("none")
	if got := state.Snapshot().Connectivity; got != "none" {
		t.Fatalf("expected none, got %q", got)
	}
}
