package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"fieldsync/internal/services"
	"fieldsync/internal/sqlitex"
)

const activeStatusList = "'PENDING', 'PROCESSING', 'FAILED'"

// Enqueue records a local mutation. At most one non-terminal item exists per
// (entity type, entity id): a pending or failed item absorbs the mutation in
// place, and an item mid-upload is flagged superseded so it is requeued once
// the current upload finishes.
func (s *Store) Enqueue(ctx context.Context, req EnqueueRequest) (EnqueueResult, error) {
	req.EntityID = strings.TrimSpace(req.EntityID)
	if req.EntityID == "" {
		return EnqueueResult{}, services.Wrap(services.ErrValidation, "queue", "enqueue", "entity id is required", nil)
	}
	if err := ValidateMutation(req.EntityType, req.Operation); err != nil {
		return EnqueueResult{}, services.Wrap(services.ErrValidation, "queue", "enqueue", err.Error(), nil)
	}
	maxRetries := req.MaxRetries
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}

	now := s.clock()
	timestamp := sqlitex.FormatTime(now)

	var (
		result EnqueueResult
		itemID string
	)
	err := sqlitex.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		result = EnqueueResult{}
		existing, err := findActive(ctx, tx, req.EntityType, req.EntityID)
		if err != nil {
			return err
		}

		switch {
		case existing == nil:
			id, err := s.newID(now)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO sync_queue (
                    id, entity_type, entity_id, operation, status, precedence, priority,
                    retry_count, max_retries, scheduled_at, superseded, created_at, updated_at
                ) VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?, ?, 0, ?, ?)`,
				id,
				req.EntityType,
				req.EntityID,
				req.Operation,
				StatusPending,
				Precedence(req.EntityType, req.Operation),
				req.Priority,
				maxRetries,
				timestamp,
				timestamp,
				timestamp,
			); err != nil {
				return fmt.Errorf("insert item: %w", err)
			}
			itemID = id
			result.Created = true

		case existing.Status == StatusProcessing:
			next := req.Operation
			if existing.Superseded && existing.NextOperation != "" {
				next = CoalesceOperation(existing.NextOperation, req.Operation)
			}
			if _, err := tx.ExecContext(ctx,
				`UPDATE sync_queue
                 SET superseded = 1, next_operation = ?, priority = MAX(priority, ?), updated_at = ?
                 WHERE id = ?`,
				next,
				req.Priority,
				timestamp,
				existing.ID,
			); err != nil {
				return fmt.Errorf("supersede item: %w", err)
			}
			itemID = existing.ID
			result.Superseded = true

		default:
			op := CoalesceOperation(existing.Operation, req.Operation)
			if _, err := tx.ExecContext(ctx,
				`UPDATE sync_queue
                 SET operation = ?, precedence = ?, priority = MAX(priority, ?), status = ?,
                     retry_count = 0, max_retries = ?, scheduled_at = ?, error_message = NULL,
                     error_kind = NULL, superseded = 0, next_operation = NULL, updated_at = ?
                 WHERE id = ?`,
				op,
				Precedence(req.EntityType, op),
				req.Priority,
				StatusPending,
				maxRetries,
				timestamp,
				timestamp,
				existing.ID,
			); err != nil {
				return fmt.Errorf("coalesce item: %w", err)
			}
			itemID = existing.ID
			result.Coalesced = true
		}
		return nil
	})
	if err != nil {
		return EnqueueResult{}, fmt.Errorf("enqueue %s:%s: %w", req.EntityType, req.EntityID, err)
	}

	item, err := s.GetByID(ctx, itemID)
	if err != nil {
		return EnqueueResult{}, err
	}
	result.Item = item
	return result, nil
}

func findActive(ctx context.Context, q querier, entityType EntityType, entityID string) (*Item, error) {
	items, err := queryItems(ctx, q,
		`SELECT `+itemColumns+` FROM sync_queue
         WHERE entity_type = ? AND entity_id = ? AND status IN (`+activeStatusList+`)
         LIMIT 1`,
		entityType, entityID,
	)
	if err != nil {
		return nil, fmt.Errorf("find active item: %w", err)
	}
	if len(items) == 0 {
		return nil, nil
	}
	return items[0], nil
}

// FindActive returns the non-terminal item for an entity, or nil.
func (s *Store) FindActive(ctx context.Context, entityType EntityType, entityID string) (*Item, error) {
	return findActive(sqlitex.EnsureContext(ctx), s.db, entityType, entityID)
}

// PendingParent returns the unfinished SESSION CREATE item for sessionID, or
// nil when the session has no create still waiting to reach the remote.
func (s *Store) PendingParent(ctx context.Context, sessionID string) (*Item, error) {
	item, err := s.FindActive(ctx, EntitySession, sessionID)
	if err != nil || item == nil {
		return nil, err
	}
	if item.Operation != OpCreate {
		return nil, nil
	}
	return item, nil
}

// GetByID fetches a queue item by identifier. A missing item yields nil, nil.
func (s *Store) GetByID(ctx context.Context, id string) (*Item, error) {
	ctx = sqlitex.EnsureContext(ctx)
	row := s.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM sync_queue WHERE id = ?`, id)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	return item, nil
}

// List returns queue items filtered by status set (or all items when no
// status is provided) in claim order.
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Item, error) {
	ctx = sqlitex.EnsureContext(ctx)
	baseQuery := `SELECT ` + itemColumns + ` FROM sync_queue`
	orderClause := ` ORDER BY precedence, priority DESC, created_at, id`

	var (
		items []*Item
		err   error
	)
	if len(statuses) == 0 {
		items, err = queryItems(ctx, s.db, baseQuery+orderClause)
	} else {
		args := make([]any, len(statuses))
		for i, status := range statuses {
			args[i] = status
		}
		query := baseQuery + ` WHERE status IN (` + sqlitex.Placeholders(len(statuses)) + `)` + orderClause
		items, err = queryItems(ctx, s.db, query, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("list queue items: %w", err)
	}
	return items, nil
}

// ClaimBatch atomically moves up to limit eligible items to PROCESSING and
// returns them in claim order. Eligible items are PENDING or FAILED items whose
// scheduled time has passed, plus PROCESSING items whose heartbeat is older
// than staleBefore (left behind by a cancelled or crashed run).
func (s *Store) ClaimBatch(ctx context.Context, limit int, staleBefore time.Time) ([]*Item, error) {
	if limit <= 0 {
		return nil, nil
	}
	ctx = sqlitex.EnsureContext(ctx)
	now := sqlitex.FormatTime(s.clock())
	stale := sqlitex.FormatTime(staleBefore)

	var claimed []*Item
	err := sqlitex.RetryOnBusy(ctx, func() error {
		items, err := queryItems(ctx, s.db,
			`UPDATE sync_queue
             SET status = ?, last_heartbeat = ?, updated_at = ?
             WHERE id IN (
                 SELECT id FROM sync_queue
                 WHERE (status IN (?, ?) AND scheduled_at <= ?)
                    OR (status = ? AND COALESCE(last_heartbeat, updated_at) < ?)
                 ORDER BY precedence, priority DESC, created_at, id
                 LIMIT ?
             )
             RETURNING `+itemColumns,
			StatusProcessing, now, now,
			StatusPending, StatusFailed, now,
			StatusProcessing, stale,
			limit,
		)
		if err != nil {
			return err
		}
		claimed = items
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("claim batch: %w", err)
	}
	SortItems(claimed)
	return claimed, nil
}
