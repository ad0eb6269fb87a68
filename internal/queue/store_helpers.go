package queue

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"fieldsync/internal/sqlitex"
)

const itemColumns = "id, entity_type, entity_id, operation, next_operation, status, precedence, priority, retry_count, max_retries, scheduled_at, error_message, error_kind, superseded, last_heartbeat, created_at, updated_at, processed_at"

func scanItem(scanner interface{ Scan(dest ...any) error }) (*Item, error) {
	var (
		id               string
		entityType       string
		entityID         string
		operation        string
		nextOperation    sql.NullString
		statusStr        string
		precedence       int
		priority         int
		retryCount       int
		maxRetries       int
		scheduledRaw     string
		errorMessage     sql.NullString
		errorKind        sql.NullString
		superseded       int
		lastHeartbeatRaw sql.NullString
		createdRaw       string
		updatedRaw       string
		processedRaw     sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&entityType,
		&entityID,
		&operation,
		&nextOperation,
		&statusStr,
		&precedence,
		&priority,
		&retryCount,
		&maxRetries,
		&scheduledRaw,
		&errorMessage,
		&errorKind,
		&superseded,
		&lastHeartbeatRaw,
		&createdRaw,
		&updatedRaw,
		&processedRaw,
	); err != nil {
		return nil, err
	}

	item := &Item{
		ID:            id,
		EntityType:    EntityType(entityType),
		EntityID:      entityID,
		Operation:     Operation(operation),
		NextOperation: Operation(nextOperation.String),
		Status:        Status(statusStr),
		Precedence:    precedence,
		Priority:      priority,
		RetryCount:    retryCount,
		MaxRetries:    maxRetries,
		ErrorMessage:  errorMessage.String,
		ErrorKind:     errorKind.String,
		Superseded:    superseded != 0,
	}
	if scheduled, err := sqlitex.ParseTime(scheduledRaw); err == nil {
		item.ScheduledAt = scheduled
	}
	if created, err := sqlitex.ParseTime(createdRaw); err == nil {
		item.CreatedAt = created
	}
	if updated, err := sqlitex.ParseTime(updatedRaw); err == nil {
		item.UpdatedAt = updated
	}
	item.LastHeartbeat = parseNullableTime(lastHeartbeatRaw)
	item.ProcessedAt = parseNullableTime(processedRaw)
	return item, nil
}

func parseNullableTime(raw sql.NullString) *time.Time {
	if !raw.Valid {
		return nil
	}
	parsed, err := sqlitex.ParseTime(raw.String)
	if err != nil {
		return nil
	}
	return &parsed
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func queryItems(ctx context.Context, q querier, query string, args ...any) ([]*Item, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func idArgs(ids []string) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}
