package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"fieldsync/internal/sqlitex"
)

// ErrNotClaimed reports a transition on an item that is no longer PROCESSING,
// typically because a later run reclaimed it after its heartbeat went stale.
var ErrNotClaimed = errors.New("queue item is not claimed")

func (s *Store) transition(ctx context.Context, id string, apply func(tx *sql.Tx, item *Item, now string) error) (*Item, error) {
	ctx = sqlitex.EnsureContext(ctx)
	now := sqlitex.FormatTime(s.clock())
	err := sqlitex.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM sync_queue WHERE id = ?`, id)
		item, err := scanItem(row)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("item %s: %w", id, ErrNotClaimed)
		}
		if err != nil {
			return err
		}
		if item.Status != StatusProcessing {
			return fmt.Errorf("item %s is %s: %w", id, item.Status, ErrNotClaimed)
		}
		return apply(tx, item, now)
	})
	if err != nil {
		return nil, err
	}
	return s.GetByID(ctx, id)
}

// requeue returns a superseded item to PENDING with a fresh retry budget so the
// newer local state is uploaded on the next run.
func requeue(ctx context.Context, tx *sql.Tx, item *Item, op Operation, now string) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE sync_queue
         SET status = ?, operation = ?, precedence = ?, retry_count = 0, scheduled_at = ?,
             error_message = NULL, error_kind = NULL, superseded = 0, next_operation = NULL,
             last_heartbeat = NULL, processed_at = ?, updated_at = ?
         WHERE id = ?`,
		StatusPending,
		op,
		Precedence(item.EntityType, op),
		now,
		now,
		now,
		item.ID,
	)
	return err
}

// MarkCompleted finishes a claimed item. A superseded item is requeued with
// its follow-up operation instead of completing.
func (s *Store) MarkCompleted(ctx context.Context, id string) (*Item, error) {
	item, err := s.transition(ctx, id, func(tx *sql.Tx, item *Item, now string) error {
		if item.Superseded {
			return requeue(ctx, tx, item, FollowUpOperation(item.Operation, item.NextOperation), now)
		}
		_, err := tx.ExecContext(ctx,
			`UPDATE sync_queue
             SET status = ?, error_message = NULL, error_kind = NULL, last_heartbeat = NULL,
                 processed_at = ?, updated_at = ?
             WHERE id = ?`,
			StatusCompleted, now, now, id,
		)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("mark completed: %w", err)
	}
	return item, nil
}

// MarkFailed records a failed attempt: retry_count is incremented and the item
// becomes eligible again at nextAttemptAt.
func (s *Store) MarkFailed(ctx context.Context, id, reason, kind string, nextAttemptAt time.Time) (*Item, error) {
	item, err := s.transition(ctx, id, func(tx *sql.Tx, item *Item, now string) error {
		op := item.Operation
		if item.Superseded {
			op = CoalesceOperation(item.Operation, item.NextOperation)
		}
		_, err := tx.ExecContext(ctx,
			`UPDATE sync_queue
             SET status = ?, operation = ?, precedence = ?, retry_count = retry_count + 1,
                 scheduled_at = ?, error_message = ?, error_kind = ?, superseded = 0,
                 next_operation = NULL, last_heartbeat = NULL, processed_at = ?, updated_at = ?
             WHERE id = ?`,
			StatusFailed,
			op,
			Precedence(item.EntityType, op),
			sqlitex.FormatTime(nextAttemptAt),
			sqlitex.NullableString(reason),
			sqlitex.NullableString(kind),
			now,
			now,
			id,
		)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("mark failed: %w", err)
	}
	return item, nil
}

// MarkAbandoned records the final failed attempt and parks the item as
// ABANDONED until a manual retry. A superseded item carries newer local state
// and is requeued with a fresh budget instead.
func (s *Store) MarkAbandoned(ctx context.Context, id, reason, kind string) (*Item, error) {
	item, err := s.transition(ctx, id, func(tx *sql.Tx, item *Item, now string) error {
		if item.Superseded {
			return requeue(ctx, tx, item, CoalesceOperation(item.Operation, item.NextOperation), now)
		}
		_, err := tx.ExecContext(ctx,
			`UPDATE sync_queue
             SET status = ?, retry_count = retry_count + 1, error_message = ?, error_kind = ?,
                 last_heartbeat = NULL, processed_at = ?, updated_at = ?
             WHERE id = ?`,
			StatusAbandoned,
			sqlitex.NullableString(reason),
			sqlitex.NullableString(kind),
			now,
			now,
			id,
		)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("mark abandoned: %w", err)
	}
	return item, nil
}

// Release hands a claimed item back without charging an attempt, e.g. when
// its parent session has not reached the remote yet.
func (s *Store) Release(ctx context.Context, id string, at time.Time) (*Item, error) {
	item, err := s.transition(ctx, id, func(tx *sql.Tx, item *Item, now string) error {
		op := item.Operation
		if item.Superseded {
			op = CoalesceOperation(item.Operation, item.NextOperation)
		}
		_, err := tx.ExecContext(ctx,
			`UPDATE sync_queue
             SET status = ?, operation = ?, precedence = ?, scheduled_at = ?, superseded = 0,
                 next_operation = NULL, last_heartbeat = NULL, updated_at = ?
             WHERE id = ?`,
			StatusPending,
			op,
			Precedence(item.EntityType, op),
			sqlitex.FormatTime(at),
			now,
			id,
		)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("release item: %w", err)
	}
	return item, nil
}

// UpdateHeartbeat updates the last heartbeat timestamp for an in-flight item.
func (s *Store) UpdateHeartbeat(ctx context.Context, id string) error {
	now := sqlitex.FormatTime(s.clock())
	res, err := s.execWithRetry(
		ctx,
		`UPDATE sync_queue SET last_heartbeat = ?, updated_at = ? WHERE id = ? AND status = ?`,
		now,
		now,
		id,
		StatusProcessing,
	)
	if err != nil {
		return fmt.Errorf("update heartbeat: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update heartbeat %s: %w", id, ErrNotClaimed)
	}
	return nil
}

// ReclaimStaleProcessing returns items stuck in PROCESSING to PENDING when
// their heartbeats expire before cutoff.
func (s *Store) ReclaimStaleProcessing(ctx context.Context, cutoff time.Time) (int64, error) {
	now := sqlitex.FormatTime(s.clock())
	res, err := s.execWithRetry(
		ctx,
		`UPDATE sync_queue
         SET status = ?, scheduled_at = ?, last_heartbeat = NULL, updated_at = ?
         WHERE status = ? AND COALESCE(last_heartbeat, updated_at) < ?`,
		StatusPending,
		now,
		now,
		StatusProcessing,
		sqlitex.FormatTime(cutoff),
	)
	if err != nil {
		return 0, fmt.Errorf("reclaim stale items: %w", err)
	}
	return res.RowsAffected()
}

// RetryAbandoned moves abandoned (and failed) items back to PENDING with a
// fresh retry budget. With no ids every abandoned or failed item is retried.
// Abandoned items whose entity already has newer queued work are left alone,
// and an entity with several abandoned rows only has its newest one revived.
func (s *Store) RetryAbandoned(ctx context.Context, ids ...string) (int64, error) {
	now := sqlitex.FormatTime(s.clock())
	args := []any{StatusPending, now, now, StatusAbandoned, StatusFailed, StatusAbandoned, StatusFailed}
	query := `UPDATE sync_queue
        SET status = ?, retry_count = 0, scheduled_at = ?, error_message = NULL,
            error_kind = NULL, processed_at = NULL, updated_at = ?
        WHERE status IN (?, ?)
          AND sync_queue.id = (
              SELECT MAX(latest.id) FROM sync_queue latest
              WHERE latest.entity_type = sync_queue.entity_type
                AND latest.entity_id = sync_queue.entity_id
                AND latest.status IN (?, ?)
          )
          AND NOT EXISTS (
              SELECT 1 FROM sync_queue other
              WHERE other.entity_type = sync_queue.entity_type
                AND other.entity_id = sync_queue.entity_id
                AND other.id != sync_queue.id
                AND other.status IN (` + activeStatusList + `)
          )`
	if len(ids) > 0 {
		query += ` AND id IN (` + sqlitex.Placeholders(len(ids)) + `)`
		args = append(args, idArgs(ids)...)
	}
	res, err := s.execWithRetry(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("retry abandoned items: %w", err)
	}
	return res.RowsAffected()
}
