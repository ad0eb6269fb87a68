package queue

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// EntityType names the kind of record a queue item synchronizes.
type EntityType string

const (
	EntitySession     EntityType = "SESSION"
	EntityFrames      EntityType = "FRAMES"
	EntityPhase       EntityType = "PHASE"
	EntitySetupConfig EntityType = "SETUP_CONFIG"
)

// Operation is the local mutation a queue item replays remotely.
type Operation string

const (
	OpCreate Operation = "CREATE"
	OpUpdate Operation = "UPDATE"
	OpDelete Operation = "DELETE"
)

// Status represents the lifecycle of a queue item.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
	StatusAbandoned  Status = "ABANDONED"
)

// DefaultMaxRetries applies when an enqueue request leaves MaxRetries unset.
const DefaultMaxRetries = 5

var allStatuses = []Status{
	StatusPending,
	StatusProcessing,
	StatusCompleted,
	StatusFailed,
	StatusAbandoned,
}

var entityTypes = []EntityType{EntitySession, EntityFrames, EntityPhase, EntitySetupConfig}

var operations = []Operation{OpCreate, OpUpdate, OpDelete}

// AllStatuses returns every queue status in lifecycle order.
func AllStatuses() []Status {
	return append([]Status(nil), allStatuses...)
}

// ParseStatus converts user input into a Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToUpper(strings.TrimSpace(value)))
	for _, status := range allStatuses {
		if status == normalized {
			return status, true
		}
	}
	return "", false
}

// ParseEntityType converts user input into an EntityType. "setup-config" and
// "setup_config" are both accepted.
func ParseEntityType(value string) (EntityType, bool) {
	normalized := strings.ToUpper(strings.TrimSpace(value))
	normalized = strings.ReplaceAll(normalized, "-", "_")
	for _, t := range entityTypes {
		if string(t) == normalized {
			return t, true
		}
	}
	return "", false
}

// ParseOperation converts user input into an Operation.
func ParseOperation(value string) (Operation, bool) {
	normalized := Operation(strings.ToUpper(strings.TrimSpace(value)))
	for _, op := range operations {
		if op == normalized {
			return op, true
		}
	}
	return "", false
}

// IsTerminal reports whether the status ends an item's lifecycle.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusAbandoned
}

// Precedence returns the claim-order class of an (entity type, operation)
// pair. Lower values drain first so a session exists remotely before the
// records attached to it, and a session is deleted only after them.
func Precedence(entityType EntityType, op Operation) int {
	switch entityType {
	case EntitySession:
		switch op {
		case OpCreate:
			return 0
		case OpDelete:
			return 5
		default:
			return 1
		}
	case EntityFrames:
		return 2
	case EntityPhase:
		return 3
	case EntitySetupConfig:
		return 4
	default:
		return 9
	}
}

// ValidateMutation rejects entity/operation pairs the sync engine cannot replay.
func ValidateMutation(entityType EntityType, op Operation) error {
	if _, ok := ParseEntityType(string(entityType)); !ok {
		return fmt.Errorf("unknown entity type %q", entityType)
	}
	if _, ok := ParseOperation(string(op)); !ok {
		return fmt.Errorf("unknown operation %q", op)
	}
	if entityType == EntityFrames && op == OpDelete {
		return fmt.Errorf("frames are removed with their session; %s %s is not supported", entityType, op)
	}
	return nil
}

// CoalesceOperation merges a new local mutation into work that has not been
// uploaded yet. A delete always wins; a create followed by edits is still a
// create; otherwise the newest mutation applies.
func CoalesceOperation(pending, incoming Operation) Operation {
	if incoming == OpDelete {
		return OpDelete
	}
	if pending == OpCreate && incoming == OpUpdate {
		return OpCreate
	}
	return incoming
}

// FollowUpOperation picks the operation to replay after completed succeeded
// remotely while incoming arrived locally in the meantime.
func FollowUpOperation(completed, incoming Operation) Operation {
	switch {
	case incoming == OpDelete:
		return OpDelete
	case completed == OpDelete:
		return OpCreate
	default:
		return OpUpdate
	}
}

// DatabaseHealth captures diagnostic information about the queue database.
type DatabaseHealth struct {
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	SchemaVersion    int
	TableExists      bool
	ColumnsPresent   []string
	MissingColumns   []string
	IntegrityCheck   bool
	TotalItems       int
	Error            string
}

// HealthSummary describes aggregated queue counts per lifecycle state.
type HealthSummary struct {
	Total         int
	Pending       int
	Processing    int
	Failed        int
	Abandoned     int
	Completed     int
	OldestPending *time.Time
}

// Item represents a queue item persisted in SQLite.
type Item struct {
	ID            string
	EntityType    EntityType
	EntityID      string
	Operation     Operation
	Status        Status
	Precedence    int
	Priority      int
	RetryCount    int
	MaxRetries    int
	ScheduledAt   time.Time
	ErrorMessage  string
	ErrorKind     string
	Superseded    bool
	NextOperation Operation
	CreatedAt     time.Time
	UpdatedAt     time.Time
	ProcessedAt   *time.Time
	LastHeartbeat *time.Time
}

// IsTerminal reports whether the item has reached a terminal status.
func (i *Item) IsTerminal() bool {
	return i != nil && i.Status.IsTerminal()
}

// Label renders a compact "TYPE:id OP" description for logs and tables.
func (i *Item) Label() string {
	if i == nil {
		return ""
	}
	return fmt.Sprintf("%s:%s %s", i.EntityType, i.EntityID, i.Operation)
}

// SortKey is the explicit claim ordering: precedence class, then priority
// (higher first), then creation time, with the id as a stable tie breaker.
type SortKey struct {
	Precedence int
	Priority   int
	CreatedAt  time.Time
	ID         string
}

// SortKey returns the item's claim ordering key.
func (i *Item) SortKey() SortKey {
	return SortKey{Precedence: i.Precedence, Priority: i.Priority, CreatedAt: i.CreatedAt, ID: i.ID}
}

// Less reports whether k drains before other.
func (k SortKey) Less(other SortKey) bool {
	if k.Precedence != other.Precedence {
		return k.Precedence < other.Precedence
	}
	if k.Priority != other.Priority {
		return k.Priority > other.Priority
	}
	if !k.CreatedAt.Equal(other.CreatedAt) {
		return k.CreatedAt.Before(other.CreatedAt)
	}
	return k.ID < other.ID
}

// SortItems orders items in place by SortKey.
func SortItems(items []*Item) {
	sort.SliceStable(items, func(a, b int) bool {
		return items[a].SortKey().Less(items[b].SortKey())
	})
}

// EnqueueRequest describes one local mutation to replay remotely.
type EnqueueRequest struct {
	EntityType EntityType
	EntityID   string
	Operation  Operation
	Priority   int
	// MaxRetries overrides DefaultMaxRetries when positive.
	MaxRetries int
}

// EnqueueResult reports how the store absorbed a request.
type EnqueueResult struct {
	Item *Item
	// Created is true when a new row was inserted.
	Created bool
	// Coalesced is true when an existing pending or failed item was rewritten.
	Coalesced bool
	// Superseded is true when the mutation landed on an item currently being
	// uploaded; the item is requeued once that upload finishes.
	Superseded bool
}
