// Package retry turns an upload error into the next step for a queue item:
// complete it, reschedule it with linear backoff, or abandon it once the
// retry budget is spent.
package retry

import (
	"errors"
	"strings"
	"time"

	"fieldsync/internal/queue"
	"fieldsync/internal/services"
)

// Policy holds the backoff step and the default retry budget.
type Policy struct {
	BaseInterval time.Duration
	MaxRetries   int
}

// NextAttempt returns now + (retryCount+1) * BaseInterval. retryCount is the
// value before the failure being recorded is counted.
func (p Policy) NextAttempt(retryCount int, now time.Time) time.Time {
	if retryCount < 0 {
		retryCount = 0
	}
	return now.Add(time.Duration(retryCount+1) * p.BaseInterval)
}

// Outcome is what the orchestrator does with an item after an attempt. The
// concrete types are Complete, Reschedule and Abandon.
type Outcome interface {
	outcome()
}

// Complete marks the item done. Reason is set when an error was tolerated.
type Complete struct {
	Reason string
}

// Reschedule records the failure and retries the item at At.
type Reschedule struct {
	At      time.Time
	Kind    services.Kind
	Message string
}

// Abandon records the failure and parks the item for manual action.
type Abandon struct {
	Kind    services.Kind
	Message string
}

func (Complete) outcome()   {}
func (Reschedule) outcome() {}
func (Abandon) outcome()    {}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as one no retry can fix; Evaluate abandons it at once.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Evaluate decides the outcome of one attempt at item. The item is abandoned
// when the retry count recorded before this attempt has reached its budget, so
// a budget of n yields n FAILED states before ABANDONED.
func (p Policy) Evaluate(item *queue.Item, err error, now time.Time) Outcome {
	if err == nil {
		return Complete{}
	}
	kind := services.KindOf(err)
	if kind == services.KindNotFound && item.Operation == queue.OpDelete {
		return Complete{Reason: "already deleted remotely"}
	}

	message := Message(kind, err)
	if IsPermanent(err) || p.exhausted(item) {
		return Abandon{Kind: kind, Message: message}
	}
	return Reschedule{At: p.NextAttempt(item.RetryCount, now), Kind: kind, Message: message}
}

func (p Policy) exhausted(item *queue.Item) bool {
	budget := item.MaxRetries
	if budget <= 0 {
		budget = p.MaxRetries
	}
	if budget <= 0 {
		budget = queue.DefaultMaxRetries
	}
	return item.RetryCount >= budget
}

// Message renders the persisted error_message. Validation failures carry a
// "validation:" prefix so they stand apart from transport noise.
func Message(kind services.Kind, err error) string {
	if err == nil {
		return ""
	}
	text := strings.TrimSpace(err.Error())
	if kind == services.KindValidation && !strings.HasPrefix(text, "validation") {
		return "validation: " + text
	}
	return text
}
