package records

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"fieldsync/internal/cues"
	"fieldsync/internal/entity"
	"fieldsync/internal/queue"
	"fieldsync/internal/sqlitex"
)

const phaseColumns = "id, session_id, phase_name, start_frame, end_frame, cues, notes, updated_at, sync_status"

// Phases implements syncer.PhaseRepository.
type Phases struct{ s *Store }

func scanPhase(scanner interface{ Scan(dest ...any) error }) (entity.Phase, error) {
	var (
		phase      entity.Phase
		cuesRaw    string
		notes      sql.NullString
		updatedRaw string
		status     string
	)
	if err := scanner.Scan(
		&phase.ID,
		&phase.SessionID,
		&phase.PhaseName,
		&phase.StartFrame,
		&phase.EndFrame,
		&cuesRaw,
		&notes,
		&updatedRaw,
		&status,
	); err != nil {
		return entity.Phase{}, err
	}
	set, err := cues.Decode([]byte(cuesRaw))
	if err != nil {
		return entity.Phase{}, fmt.Errorf("phase %s cues: %w", phase.ID, err)
	}
	phase.Cues = set
	phase.Notes = notes.String
	phase.UpdatedAt = parseTime(updatedRaw)
	phase.SyncStatus = entity.ParseSyncStatus(status)
	return phase, nil
}

// Get loads a phase by id.
func (r *Phases) Get(ctx context.Context, id string) (entity.Phase, error) {
	row := r.s.db.QueryRowContext(ctx, "SELECT "+phaseColumns+" FROM phases WHERE id = ?", id)
	phase, err := scanPhase(row)
	if err != nil {
		return entity.Phase{}, mapNoRows(err, "phase", id)
	}
	return phase, nil
}

// ListForSession returns a session's phases ordered by start frame.
func (r *Phases) ListForSession(ctx context.Context, sessionID string) ([]entity.Phase, error) {
	rows, err := r.s.db.QueryContext(ctx,
		"SELECT "+phaseColumns+" FROM phases WHERE session_id = ? ORDER BY start_frame, id", sessionID)
	if err != nil {
		return nil, fmt.Errorf("list phases: %w", err)
	}
	defer rows.Close()
	var phases []entity.Phase
	for rows.Next() {
		phase, err := scanPhase(rows)
		if err != nil {
			return nil, err
		}
		phases = append(phases, phase)
	}
	return phases, rows.Err()
}

// UpdateSyncStatus sets the phase's sync status.
func (r *Phases) UpdateSyncStatus(ctx context.Context, id string, status entity.SyncStatus) error {
	return r.s.updateStatus(ctx, "phases", "phase", id, string(status))
}

// SavePhase creates or updates a phase annotation and enqueues the upload.
// The parent session must exist locally.
func (s *Store) SavePhase(ctx context.Context, phase entity.Phase) (entity.Phase, error) {
	phase.ID = strings.TrimSpace(phase.ID)
	switch {
	case phase.ID == "":
		return entity.Phase{}, invalid("save_phase", "phase id is required")
	case strings.TrimSpace(phase.SessionID) == "":
		return entity.Phase{}, invalid("save_phase", "phase session id is required")
	case strings.TrimSpace(phase.PhaseName) == "":
		return entity.Phase{}, invalid("save_phase", "phase name is required")
	case phase.StartFrame < 0 || phase.EndFrame < phase.StartFrame:
		return entity.Phase{}, invalid("save_phase", fmt.Sprintf("invalid frame range %d-%d", phase.StartFrame, phase.EndFrame))
	}
	encoded, err := cues.EncodeString(phase.Cues)
	if err != nil {
		return entity.Phase{}, err
	}
	parent, err := s.exists(ctx, "sessions", phase.SessionID)
	if err != nil {
		return entity.Phase{}, err
	}
	if !parent {
		return entity.Phase{}, notFound("session", phase.SessionID)
	}
	if phase.UpdatedAt.IsZero() {
		phase.UpdatedAt = s.clock()
	}

	existed, err := s.exists(ctx, "phases", phase.ID)
	if err != nil {
		return entity.Phase{}, err
	}
	phase.SyncStatus = s.queuedStatus()
	_, err = sqlitex.ExecWithRetry(ctx, s.db, `INSERT INTO phases (`+phaseColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    session_id = excluded.session_id,
    phase_name = excluded.phase_name,
    start_frame = excluded.start_frame,
    end_frame = excluded.end_frame,
    cues = excluded.cues,
    notes = excluded.notes,
    updated_at = excluded.updated_at,
    sync_status = excluded.sync_status`,
		phase.ID,
		phase.SessionID,
		phase.PhaseName,
		phase.StartFrame,
		phase.EndFrame,
		encoded,
		sqlitex.NullableString(phase.Notes),
		sqlitex.FormatTime(phase.UpdatedAt),
		string(phase.SyncStatus),
	)
	if err != nil {
		return entity.Phase{}, fmt.Errorf("save phase %s: %w", phase.ID, err)
	}
	op := queue.OpUpdate
	if !existed {
		op = queue.OpCreate
	}
	return phase, s.enqueue(ctx, queue.EntityPhase, phase.ID, op)
}

// DeletePhase removes a phase and enqueues the remote delete.
func (s *Store) DeletePhase(ctx context.Context, id string) error {
	res, err := sqlitex.ExecWithRetry(ctx, s.db, "DELETE FROM phases WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete phase %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound("phase", id)
	}
	return s.enqueue(ctx, queue.EntityPhase, id, queue.OpDelete)
}
