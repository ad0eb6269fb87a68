package records

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/goccy/go-json"

	"fieldsync/internal/entity"
	"fieldsync/internal/queue"
	"fieldsync/internal/sqlitex"
)

// FramesFor returns a session's frames in index order.
func (s *Store) FramesFor(ctx context.Context, sessionID string) ([]entity.Frame, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT idx, timestamp_ms, landmarks, confidence FROM frames WHERE session_id = ? ORDER BY idx", sessionID)
	if err != nil {
		return nil, fmt.Errorf("load frames for %s: %w", sessionID, err)
	}
	defer rows.Close()
	var frames []entity.Frame
	for rows.Next() {
		frame := entity.Frame{SessionID: sessionID}
		var landmarks string
		if err := rows.Scan(&frame.Index, &frame.TimestampMillis, &landmarks, &frame.Confidence); err != nil {
			return nil, fmt.Errorf("scan frame: %w", err)
		}
		if err := json.Unmarshal([]byte(landmarks), &frame.Landmarks); err != nil {
			return nil, fmt.Errorf("decode landmarks for %s/%d: %w", sessionID, frame.Index, err)
		}
		frames = append(frames, frame)
	}
	return frames, rows.Err()
}

// SaveFrames upserts frames for a session, refreshes its frame count and
// enqueues a frame upload. Frames are always uploaded as a whole set.
func (s *Store) SaveFrames(ctx context.Context, sessionID string, frames []entity.Frame) error {
	if len(frames) == 0 {
		return nil
	}
	parent, err := s.exists(ctx, "sessions", sessionID)
	if err != nil {
		return err
	}
	if !parent {
		return notFound("session", sessionID)
	}

	err = sqlitex.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO frames (session_id, idx, timestamp_ms, landmarks, confidence)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(session_id, idx) DO UPDATE SET
    timestamp_ms = excluded.timestamp_ms,
    landmarks = excluded.landmarks,
    confidence = excluded.confidence`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, frame := range frames {
			if frame.SessionID != "" && frame.SessionID != sessionID {
				return invalid("save_frames", fmt.Sprintf("frame %d belongs to session %s", frame.Index, frame.SessionID))
			}
			landmarks, err := json.Marshal(frame.Landmarks)
			if err != nil {
				return fmt.Errorf("encode landmarks: %w", err)
			}
			if _, err := stmt.ExecContext(ctx, sessionID, frame.Index, frame.TimestampMillis, string(landmarks), frame.Confidence); err != nil {
				return err
			}
		}
		_, err = tx.ExecContext(ctx,
			"UPDATE sessions SET frame_count = (SELECT COUNT(1) FROM frames WHERE session_id = ?), updated_at = ? WHERE id = ?",
			sessionID, sqlitex.FormatTime(s.clock()), sessionID)
		return err
	})
	if err != nil {
		return fmt.Errorf("save frames for %s: %w", sessionID, err)
	}
	return s.enqueue(ctx, queue.EntityFrames, sessionID, queue.OpCreate)
}
