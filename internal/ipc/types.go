package ipc

import (
	"time"

	"fieldsync/internal/queue"
	"fieldsync/internal/records"
	"fieldsync/internal/syncer"
)

// QueueItem is the wire representation of a queue entry.
type QueueItem struct {
	ID            string     `json:"id"`
	EntityType    string     `json:"entity_type"`
	EntityID      string     `json:"entity_id"`
	Operation     string     `json:"operation"`
	Status        string     `json:"status"`
	Priority      int        `json:"priority"`
	RetryCount    int        `json:"retry_count"`
	MaxRetries    int        `json:"max_retries"`
	ScheduledAt   time.Time  `json:"scheduled_at"`
	ErrorMessage  string     `json:"error_message,omitempty"`
	ErrorKind     string     `json:"error_kind,omitempty"`
	Superseded    bool       `json:"superseded,omitempty"`
	NextOperation string     `json:"next_operation,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	ProcessedAt   *time.Time `json:"processed_at,omitempty"`
	LastHeartbeat *time.Time `json:"last_heartbeat,omitempty"`
}

// FromQueueItem converts a store item to its wire form.
func FromQueueItem(item *queue.Item) QueueItem {
	if item == nil {
		return QueueItem{}
	}
	return QueueItem{
		ID:            item.ID,
		EntityType:    string(item.EntityType),
		EntityID:      item.EntityID,
		Operation:     string(item.Operation),
		Status:        string(item.Status),
		Priority:      item.Priority,
		RetryCount:    item.RetryCount,
		MaxRetries:    item.MaxRetries,
		ScheduledAt:   item.ScheduledAt,
		ErrorMessage:  item.ErrorMessage,
		ErrorKind:     item.ErrorKind,
		Superseded:    item.Superseded,
		NextOperation: string(item.NextOperation),
		CreatedAt:     item.CreatedAt,
		UpdatedAt:     item.UpdatedAt,
		ProcessedAt:   item.ProcessedAt,
		LastHeartbeat: item.LastHeartbeat,
	}
}

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// StatusResponse represents combined daemon and sync status information.
type StatusResponse struct {
	Running        bool           `json:"running"`
	PID            int            `json:"pid"`
	StartedAt      time.Time      `json:"started_at"`
	SyncActive     bool           `json:"sync_active"`
	PendingCount   int            `json:"pending_count"`
	AbandonedCount int            `json:"abandoned_count"`
	LastSyncTime   *time.Time     `json:"last_sync_time,omitempty"`
	LastRunID      string         `json:"last_run_id,omitempty"`
	LastError      string         `json:"last_error,omitempty"`
	Connectivity   string         `json:"connectivity"`
	QueueStats     map[string]int `json:"queue_stats"`
	QueueDBPath    string         `json:"queue_db_path"`
	RecordsDBPath  string         `json:"records_db_path"`
	LockPath       string         `json:"lock_path"`
	FreeBytes      uint64         `json:"free_bytes"`
}

// SyncRequest asks the daemon to run the orchestrator now.
type SyncRequest struct {
	Force bool `json:"force"`
}

// SyncResponse summarizes the run the request started or joined.
type SyncResponse struct {
	Result syncer.Result `json:"result"`
}

// EnqueueRequest records a mutation without touching local records.
type EnqueueRequest struct {
	EntityType string `json:"entity_type"`
	EntityID   string `json:"entity_id"`
	Operation  string `json:"operation"`
}

// EnqueueResponse reports how the mutation landed in the queue.
type EnqueueResponse struct {
	Item       QueueItem `json:"item"`
	Created    bool      `json:"created"`
	Coalesced  bool      `json:"coalesced"`
	Superseded bool      `json:"superseded"`
}

// ImportRequest loads a YAML bundle from a path readable by the daemon.
type ImportRequest struct {
	Path string `json:"path"`
}

// ImportResponse counts the imported records.
type ImportResponse struct {
	Summary records.ImportSummary `json:"summary"`
}

// QueueListRequest filters queue listing by status.
type QueueListRequest struct {
	Statuses []string `json:"statuses"`
}

// QueueListResponse contains queue entries.
type QueueListResponse struct {
	Items []QueueItem `json:"items"`
}

// QueueDescribeRequest fetches a single queue item by id.
type QueueDescribeRequest struct {
	ID string `json:"id"`
}

// QueueDescribeResponse contains a single queue entry.
type QueueDescribeResponse struct {
	Item QueueItem `json:"item"`
}

// QueueRetryRequest resets abandoned or failed items; empty IDs means all.
type QueueRetryRequest struct {
	IDs []string `json:"ids"`
}

// QueueRetryResponse reports how many items were reset.
type QueueRetryResponse struct {
	Updated int64 `json:"updated"`
}

// QueuePurgeRequest removes completed items older than the given age.
type QueuePurgeRequest struct {
	OlderThanSeconds int64 `json:"older_than_seconds"`
}

// QueuePurgeResponse reports number of removed entries.
type QueuePurgeResponse struct {
	Removed int64 `json:"removed"`
}

// QueueClearRequest removes items in the given statuses, or all items.
type QueueClearRequest struct {
	Statuses []string `json:"statuses"`
}

// QueueClearResponse reports number of removed entries.
type QueueClearResponse struct {
	Removed int64 `json:"removed"`
}

// QueueHealthRequest fetches aggregate queue counters.
type QueueHealthRequest struct{}

// QueueHealthResponse summarises queue counts.
type QueueHealthResponse struct {
	Total         int        `json:"total"`
	Pending       int        `json:"pending"`
	Processing    int        `json:"processing"`
	Failed        int        `json:"failed"`
	Abandoned     int        `json:"abandoned"`
	Completed     int        `json:"completed"`
	OldestPending *time.Time `json:"oldest_pending,omitempty"`
}

// DatabaseHealthRequest fetches detailed database diagnostics.
type DatabaseHealthRequest struct{}

// DatabaseHealthResponse contains database diagnostic information.
type DatabaseHealthResponse struct {
	DBPath           string   `json:"db_path"`
	DatabaseExists   bool     `json:"database_exists"`
	DatabaseReadable bool     `json:"database_readable"`
	SchemaVersion    int      `json:"schema_version"`
	TableExists      bool     `json:"table_exists"`
	ColumnsPresent   []string `json:"columns_present"`
	MissingColumns   []string `json:"missing_columns"`
	IntegrityCheck   bool     `json:"integrity_check"`
	TotalItems       int      `json:"total_items"`
	Error            string   `json:"error"`
}
