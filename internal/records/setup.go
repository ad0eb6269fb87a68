package records

import (
	"context"
	"fmt"
	"strings"

	"fieldsync/internal/entity"
	"fieldsync/internal/queue"
	"fieldsync/internal/sqlitex"
)

const setupColumns = "id, session_id, camera_height_cm, camera_distance_cm, camera_angle_deg, updated_at, sync_status"

// SetupConfigs implements syncer.SetupConfigRepository.
type SetupConfigs struct{ s *Store }

// Get loads a setup config by id.
func (r *SetupConfigs) Get(ctx context.Context, id string) (entity.SetupConfig, error) {
	var (
		setup      entity.SetupConfig
		updatedRaw string
		status     string
	)
	err := r.s.db.QueryRowContext(ctx, "SELECT "+setupColumns+" FROM setup_configs WHERE id = ?", id).Scan(
		&setup.ID,
		&setup.SessionID,
		&setup.CameraHeightCm,
		&setup.CameraDistanceCm,
		&setup.CameraAngleDeg,
		&updatedRaw,
		&status,
	)
	if err != nil {
		return entity.SetupConfig{}, mapNoRows(err, "setup config", id)
	}
	setup.UpdatedAt = parseTime(updatedRaw)
	setup.SyncStatus = entity.ParseSyncStatus(status)
	return setup, nil
}

// UpdateSyncStatus sets the setup config's sync status.
func (r *SetupConfigs) UpdateSyncStatus(ctx context.Context, id string, status entity.SyncStatus) error {
	return r.s.updateStatus(ctx, "setup_configs", "setup config", id, string(status))
}

// SaveSetupConfig creates or updates a setup config and enqueues the upload.
func (s *Store) SaveSetupConfig(ctx context.Context, setup entity.SetupConfig) (entity.SetupConfig, error) {
	setup.ID = strings.TrimSpace(setup.ID)
	if setup.ID == "" {
		return entity.SetupConfig{}, invalid("save_setup_config", "setup config id is required")
	}
	if setup.CameraHeightCm < 0 || setup.CameraDistanceCm < 0 {
		return entity.SetupConfig{}, invalid("save_setup_config", "camera height and distance must not be negative")
	}
	parent, err := s.exists(ctx, "sessions", setup.SessionID)
	if err != nil {
		return entity.SetupConfig{}, err
	}
	if !parent {
		return entity.SetupConfig{}, notFound("session", setup.SessionID)
	}
	if setup.UpdatedAt.IsZero() {
		setup.UpdatedAt = s.clock()
	}
	existed, err := s.exists(ctx, "setup_configs", setup.ID)
	if err != nil {
		return entity.SetupConfig{}, err
	}
	setup.SyncStatus = s.queuedStatus()
	_, err = sqlitex.ExecWithRetry(ctx, s.db, `INSERT INTO setup_configs (`+setupColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    session_id = excluded.session_id,
    camera_height_cm = excluded.camera_height_cm,
    camera_distance_cm = excluded.camera_distance_cm,
    camera_angle_deg = excluded.camera_angle_deg,
    updated_at = excluded.updated_at,
    sync_status = excluded.sync_status`,
		setup.ID,
		setup.SessionID,
		setup.CameraHeightCm,
		setup.CameraDistanceCm,
		setup.CameraAngleDeg,
		sqlitex.FormatTime(setup.UpdatedAt),
		string(setup.SyncStatus),
	)
	if err != nil {
		return entity.SetupConfig{}, fmt.Errorf("save setup config %s: %w", setup.ID, err)
	}
	op := queue.OpUpdate
	if !existed {
		op = queue.OpCreate
	}
	return setup, s.enqueue(ctx, queue.EntitySetupConfig, setup.ID, op)
}

// DeleteSetupConfig removes a setup config and enqueues the remote delete.
func (s *Store) DeleteSetupConfig(ctx context.Context, id string) error {
	res, err := sqlitex.ExecWithRetry(ctx, s.db, "DELETE FROM setup_configs WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete setup config %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound("setup config", id)
	}
	return s.enqueue(ctx, queue.EntitySetupConfig, id, queue.OpDelete)
}
