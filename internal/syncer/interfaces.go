package syncer

import (
	"context"

	"fieldsync/internal/entity"
)

// SessionRepository is the local store of capture sessions. Get reports a
// missing record with an error matching services.ErrNotFound.
type SessionRepository interface {
	Get(ctx context.Context, id string) (entity.Session, error)
	UpdateSyncStatus(ctx context.Context, id string, status entity.SyncStatus) error
	// UpdateFromMerge overwrites the local copy with a server or merged version
	// without queueing another upload.
	UpdateFromMerge(ctx context.Context, session entity.Session) error
}

// PhaseRepository is the local store of expert phase annotations.
type PhaseRepository interface {
	Get(ctx context.Context, id string) (entity.Phase, error)
	UpdateSyncStatus(ctx context.Context, id string, status entity.SyncStatus) error
}

// FrameSource yields the pose frames captured for a session in index order.
type FrameSource interface {
	FramesFor(ctx context.Context, sessionID string) ([]entity.Frame, error)
}

// SetupConfigRepository is the local store of camera setup records.
type SetupConfigRepository interface {
	Get(ctx context.Context, id string) (entity.SetupConfig, error)
	UpdateSyncStatus(ctx context.Context, id string, status entity.SyncStatus) error
}

// RemoteAPI is the remote authority. Implementations report a missing remote
// record with an error matching services.ErrNotFound and an existing one on
// create with services.ErrConflict.
type RemoteAPI interface {
	CreateSession(ctx context.Context, session entity.Session) error
	GetSession(ctx context.Context, id string) (entity.Session, error)
	// SetTrim pushes trim bounds and locally editable metadata.
	SetTrim(ctx context.Context, session entity.Session) error
	DeleteSession(ctx context.Context, id string) error

	SubmitFrameBatch(ctx context.Context, sessionID string, frames []entity.Frame) error

	CreatePhase(ctx context.Context, phase entity.Phase) error
	GetPhase(ctx context.Context, id string) (entity.Phase, error)
	UpdatePhase(ctx context.Context, phase entity.Phase) error
	DeletePhase(ctx context.Context, id string) error

	PutSetupConfig(ctx context.Context, setup entity.SetupConfig) error
	DeleteSetupConfig(ctx context.Context, id string) error
}

// Dependencies bundles the collaborators an Orchestrator needs.
type Dependencies struct {
	Sessions     SessionRepository
	Phases       PhaseRepository
	Frames       FrameSource
	SetupConfigs SetupConfigRepository
	Remote       RemoteAPI
}

// Observer receives per-item and per-run outcomes, e.g. for metrics.
type Observer interface {
	ObserveItem(outcome ItemOutcome)
	ObserveRun(result Result, err error)
}
