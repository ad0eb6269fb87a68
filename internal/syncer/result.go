package syncer

import (
	"errors"
	"time"

	"fieldsync/internal/queue"
	"fieldsync/internal/services"
)

// ErrAllFailed is returned by Run when every attempted item failed.
var ErrAllFailed = errors.New("all claimed items failed")

// ErrRunActive is returned by Run when another run holds the state.
var ErrRunActive = errors.New("sync run already active")

// Disposition is what happened to an item during a run.
type Disposition string

const (
	DispositionCompleted   Disposition = "completed"
	DispositionRequeued    Disposition = "requeued"
	DispositionRescheduled Disposition = "rescheduled"
	DispositionAbandoned   Disposition = "abandoned"
	DispositionDeferred    Disposition = "deferred"
	DispositionLost        Disposition = "lost"
	DispositionInterrupted Disposition = "interrupted"
)

// Failed reports whether the disposition counts as a failed attempt.
func (d Disposition) Failed() bool {
	switch d {
	case DispositionRescheduled, DispositionAbandoned, DispositionLost:
		return true
	default:
		return false
	}
}

// ItemOutcome is the per-item detail of a run.
type ItemOutcome struct {
	ItemID      string           `json:"item_id"`
	EntityType  queue.EntityType `json:"entity_type"`
	EntityID    string           `json:"entity_id"`
	Operation   queue.Operation  `json:"operation"`
	Disposition Disposition      `json:"disposition"`
	Status      queue.Status     `json:"status,omitempty"`
	Kind        services.Kind    `json:"error_kind,omitempty"`
	Message     string           `json:"message,omitempty"`
	Duration    time.Duration    `json:"duration"`
}

// Result summarizes one orchestrator run.
type Result struct {
	RunID       string        `json:"run_id"`
	StartedAt   time.Time     `json:"started_at"`
	FinishedAt  time.Time     `json:"finished_at"`
	Items       []ItemOutcome `json:"items"`
	Unprocessed int           `json:"unprocessed,omitempty"`
	Purged      int64         `json:"purged,omitempty"`
}

// Claimed returns the number of items the run claimed.
func (r Result) Claimed() int {
	return len(r.Items) + r.Unprocessed
}

// Count returns how many items ended with disposition d.
func (r Result) Count(d Disposition) int {
	n := 0
	for _, item := range r.Items {
		if item.Disposition == d {
			n++
		}
	}
	return n
}

// Failures returns the number of failed attempts.
func (r Result) Failures() int {
	n := 0
	for _, item := range r.Items {
		if item.Disposition.Failed() {
			n++
		}
	}
	return n
}

// allFailed is true when at least one item was attempted and none succeeded.
// Deferred and interrupted items do not count as attempts.
func (r Result) allFailed() bool {
	attempted := len(r.Items) - r.Count(DispositionDeferred) - r.Count(DispositionInterrupted)
	return attempted > 0 && r.Failures() == attempted
}
