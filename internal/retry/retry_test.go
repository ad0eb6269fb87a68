package retry_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"fieldsync/internal/queue"
	"fieldsync/internal/retry"
	"fieldsync/internal/services"
)

var now = time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

func TestNextAttemptIsLinear(t *testing.T) {
	policy := retry.Policy{BaseInterval: 30 * time.Second, MaxRetries: 5}
	cases := map[int]time.Duration{0: 30 * time.Second, 1: 60 * time.Second, 4: 150 * time.Second, -3: 30 * time.Second}
	for count, want := range cases {
		if got := policy.NextAttempt(count, now).Sub(now); got != want {
			t.Fatalf("retryCount %d: got %v want %v", count, got, want)
		}
	}
}

func TestEvaluateBackoffMonotonicUntilAbandon(t *testing.T) {
	policy := retry.Policy{BaseInterval: time.Minute, MaxRetries: 4}
	item := &queue.Item{Operation: queue.OpUpdate}
	netErr := services.Wrap(services.ErrNetwork, "remote", "put", "connection reset", nil)

	clock := now
	var last time.Time
	for attempt := 0; attempt < 4; attempt++ {
		outcome := policy.Evaluate(item, netErr, clock)
		resched, ok := outcome.(retry.Reschedule)
		if !ok {
			t.Fatalf("attempt %d: expected Reschedule, got %T", attempt, outcome)
		}
		if !resched.At.After(last) {
			t.Fatalf("attempt %d: schedule %v not after %v", attempt, resched.At, last)
		}
		if resched.Kind != services.KindNetwork {
			t.Fatalf("unexpected kind %s", resched.Kind)
		}
		last = resched.At
		item.RetryCount++
		clock = resched.At
	}

	outcome := policy.Evaluate(item, netErr, clock)
	if _, ok := outcome.(retry.Abandon); !ok {
		t.Fatalf("expected Abandon after budget, got %T", outcome)
	}
}

func TestItemBudgetOverridesPolicy(t *testing.T) {
	policy := retry.Policy{BaseInterval: time.Second, MaxRetries: 10}
	item := &queue.Item{Operation: queue.OpCreate, MaxRetries: 1}
	if _, ok := policy.Evaluate(item, errors.New("boom"), now).(retry.Reschedule); !ok {
		t.Fatal("expected first failure to be rescheduled")
	}
	item.RetryCount = 1
	if _, ok := policy.Evaluate(item, errors.New("boom"), now).(retry.Abandon); !ok {
		t.Fatal("expected spent budget of one to abandon")
	}
}

func TestDeleteNotFoundCompletes(t *testing.T) {
	policy := retry.Policy{BaseInterval: time.Second, MaxRetries: 3}
	notFound := fmt.Errorf("delete phase: %w", services.ErrNotFound)

	outcome := policy.Evaluate(&queue.Item{Operation: queue.OpDelete}, notFound, now)
	complete, ok := outcome.(retry.Complete)
	if !ok || complete.Reason == "" {
		t.Fatalf("expected tolerated Complete, got %#v", outcome)
	}

	// Not-found on an update is a real failure.
	if _, ok := policy.Evaluate(&queue.Item{Operation: queue.OpUpdate}, notFound, now).(retry.Reschedule); !ok {
		t.Fatal("expected not-found on update to reschedule")
	}
}

func TestValidationMessagesAreFlagged(t *testing.T) {
	policy := retry.Policy{BaseInterval: time.Second, MaxRetries: 3}
	err := services.Wrap(services.ErrValidation, "remote", "create phase", "end_frame before start_frame", nil)
	outcome := policy.Evaluate(&queue.Item{Operation: queue.OpCreate}, err, now)
	resched, ok := outcome.(retry.Reschedule)
	if !ok {
		t.Fatalf("validation stays retryable within budget, got %T", outcome)
	}
	if resched.Kind != services.KindValidation || !strings.HasPrefix(resched.Message, "validation") {
		t.Fatalf("unexpected reschedule: %+v", resched)
	}
	if got := retry.Message(services.KindValidation, errors.New("bad")); got != "validation: bad" {
		t.Fatalf("unexpected message %q", got)
	}
}

func TestPermanentAbandonsImmediately(t *testing.T) {
	policy := retry.Policy{BaseInterval: time.Second, MaxRetries: 5}
	err := retry.Permanent(services.Wrap(services.ErrValidation, "syncer", "load", "session missing locally", nil))
	if !retry.IsPermanent(err) || !errors.Is(err, services.ErrValidation) {
		t.Fatalf("permanent wrapper lost identity: %v", err)
	}
	if _, ok := policy.Evaluate(&queue.Item{Operation: queue.OpUpdate}, err, now).(retry.Abandon); !ok {
		t.Fatal("expected permanent error to abandon")
	}
	if retry.Permanent(nil) != nil {
		t.Fatal("Permanent(nil) should be nil")
	}
}

func TestNilErrorCompletes(t *testing.T) {
	policy := retry.Policy{BaseInterval: time.Second}
	if c, ok := policy.Evaluate(&queue.Item{}, nil, now).(retry.Complete); !ok || c.Reason != "" {
		t.Fatalf("expected plain Complete, got %#v", c)
	}
}
