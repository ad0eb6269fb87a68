package records

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"fieldsync/internal/entity"
	"fieldsync/internal/queue"
	"fieldsync/internal/sqlitex"
)

const sessionColumns = "id, label, captured_at, updated_at, media_ref, frame_count, duration_ms, trim_start_ms, trim_end_ms, quality_score, consistency_score, coverage_score, sync_status"

const upsertSession = `INSERT INTO sessions (` + sessionColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    label = excluded.label,
    captured_at = excluded.captured_at,
    updated_at = excluded.updated_at,
    media_ref = excluded.media_ref,
    frame_count = excluded.frame_count,
    duration_ms = excluded.duration_ms,
    trim_start_ms = excluded.trim_start_ms,
    trim_end_ms = excluded.trim_end_ms,
    quality_score = excluded.quality_score,
    consistency_score = excluded.consistency_score,
    coverage_score = excluded.coverage_score`

// Sessions implements syncer.SessionRepository.
type Sessions struct{ s *Store }

func scanSession(scanner interface{ Scan(dest ...any) error }) (entity.Session, error) {
	var (
		session     entity.Session
		label       sql.NullString
		capturedRaw string
		updatedRaw  string
		mediaRef    sql.NullString
		trimStart   sql.NullInt64
		trimEnd     sql.NullInt64
		quality     sql.NullFloat64
		consistency sql.NullFloat64
		coverage    sql.NullFloat64
		status      string
	)
	if err := scanner.Scan(
		&session.ID,
		&label,
		&capturedRaw,
		&updatedRaw,
		&mediaRef,
		&session.FrameCount,
		&session.DurationMillis,
		&trimStart,
		&trimEnd,
		&quality,
		&consistency,
		&coverage,
		&status,
	); err != nil {
		return entity.Session{}, err
	}
	session.Label = label.String
	session.MediaRef = mediaRef.String
	session.CapturedAt = parseTime(capturedRaw)
	session.UpdatedAt = parseTime(updatedRaw)
	session.TrimStartMillis = int64Ptr(trimStart)
	session.TrimEndMillis = int64Ptr(trimEnd)
	session.QualityScore = float64Ptr(quality)
	session.ConsistencyScore = float64Ptr(consistency)
	session.CoverageScore = float64Ptr(coverage)
	session.SyncStatus = entity.ParseSyncStatus(status)
	return session, nil
}

func sessionArgs(session entity.Session, status entity.SyncStatus) []any {
	return []any{
		session.ID,
		sqlitex.NullableString(session.Label),
		sqlitex.FormatTime(session.CapturedAt),
		sqlitex.FormatTime(session.UpdatedAt),
		sqlitex.NullableString(session.MediaRef),
		session.FrameCount,
		session.DurationMillis,
		nullableInt64(session.TrimStartMillis),
		nullableInt64(session.TrimEndMillis),
		nullableFloat64(session.QualityScore),
		nullableFloat64(session.ConsistencyScore),
		nullableFloat64(session.CoverageScore),
		string(status),
	}
}

// Get loads a session by id.
func (r *Sessions) Get(ctx context.Context, id string) (entity.Session, error) {
	row := r.s.db.QueryRowContext(ctx, "SELECT "+sessionColumns+" FROM sessions WHERE id = ?", id)
	session, err := scanSession(row)
	if err != nil {
		return entity.Session{}, mapNoRows(err, "session", id)
	}
	return session, nil
}

// List returns every session ordered by capture time.
func (r *Sessions) List(ctx context.Context) ([]entity.Session, error) {
	rows, err := r.s.db.QueryContext(ctx, "SELECT "+sessionColumns+" FROM sessions ORDER BY captured_at, id")
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()
	var sessions []entity.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

// UpdateSyncStatus sets the session's sync status.
func (r *Sessions) UpdateSyncStatus(ctx context.Context, id string, status entity.SyncStatus) error {
	return r.s.updateStatus(ctx, "sessions", "session", id, string(status))
}

// UpdateFromMerge overwrites the local copy with session. The sync status is
// left alone and nothing is enqueued.
func (r *Sessions) UpdateFromMerge(ctx context.Context, session entity.Session) error {
	if strings.TrimSpace(session.ID) == "" {
		return invalid("merge_session", "session id is required")
	}
	if _, err := sqlitex.ExecWithRetry(ctx, r.s.db, upsertSession, sessionArgs(session, entity.SyncLocalOnly)...); err != nil {
		return fmt.Errorf("merge session %s: %w", session.ID, err)
	}
	return nil
}

// SaveSession creates or updates a session and enqueues the upload.
// UpdatedAt is always stamped with the store clock: a save is a local edit
// and must win last-write-wins against older remote copies.
func (s *Store) SaveSession(ctx context.Context, session entity.Session) (entity.Session, error) {
	return s.saveSession(ctx, session, false)
}

// saveSession keeps a caller supplied UpdatedAt when keepTimestamp is set;
// imports carry the capture device's own edit times.
func (s *Store) saveSession(ctx context.Context, session entity.Session, keepTimestamp bool) (entity.Session, error) {
	session.ID = strings.TrimSpace(session.ID)
	if session.ID == "" {
		return entity.Session{}, invalid("save_session", "session id is required")
	}
	if session.TrimStartMillis != nil && session.TrimEndMillis != nil && *session.TrimStartMillis > *session.TrimEndMillis {
		return entity.Session{}, invalid("save_session", "trim start after trim end")
	}
	now := s.clock()
	if !keepTimestamp || session.UpdatedAt.IsZero() {
		session.UpdatedAt = now
	}
	if session.CapturedAt.IsZero() {
		session.CapturedAt = now
	}

	existed, err := s.exists(ctx, "sessions", session.ID)
	if err != nil {
		return entity.Session{}, err
	}
	session.SyncStatus = s.queuedStatus()
	query := upsertSession + ",\n    sync_status = excluded.sync_status"
	if _, err := sqlitex.ExecWithRetry(ctx, s.db, query, sessionArgs(session, session.SyncStatus)...); err != nil {
		return entity.Session{}, fmt.Errorf("save session %s: %w", session.ID, err)
	}
	op := queue.OpUpdate
	if !existed {
		op = queue.OpCreate
	}
	return session, s.enqueue(ctx, queue.EntitySession, session.ID, op)
}

// DeleteSession removes a session with its phases, frames and setup configs.
// Phases and setup configs get their own DELETE so any queued upload of them
// coalesces into a delete instead of failing on the missing record; they sort
// ahead of the session delete.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	phases, err := s.childIDs(ctx, "phases", id)
	if err != nil {
		return err
	}
	setups, err := s.childIDs(ctx, "setup_configs", id)
	if err != nil {
		return err
	}
	res, err := sqlitex.ExecWithRetry(ctx, s.db, "DELETE FROM sessions WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete session %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound("session", id)
	}
	for _, phaseID := range phases {
		if err := s.enqueue(ctx, queue.EntityPhase, phaseID, queue.OpDelete); err != nil {
			return err
		}
	}
	for _, setupID := range setups {
		if err := s.enqueue(ctx, queue.EntitySetupConfig, setupID, queue.OpDelete); err != nil {
			return err
		}
	}
	return s.enqueue(ctx, queue.EntitySession, id, queue.OpDelete)
}

func (s *Store) childIDs(ctx context.Context, table, sessionID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id FROM "+table+" WHERE session_id = ? ORDER BY id", sessionID)
	if err != nil {
		return nil, fmt.Errorf("list %s of session %s: %w", table, sessionID, err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan %s id: %w", table, err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) queuedStatus() entity.SyncStatus {
	if s.enqueuer == nil {
		return entity.SyncLocalOnly
	}
	return entity.SyncPending
}
