package testsupport

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"fieldsync/internal/entity"
	"fieldsync/internal/services"
)

// MemoryRecords is an in-memory implementation of the local repositories the
// orchestrator reads from. It does not enqueue on write.
type MemoryRecords struct {
	mu       sync.Mutex
	sessions map[string]entity.Session
	phases   map[string]entity.Phase
	setups   map[string]entity.SetupConfig
	frames   map[string][]entity.Frame
	merges   int
}

// NewMemoryRecords returns empty repositories.
func NewMemoryRecords() *MemoryRecords {
	return &MemoryRecords{
		sessions: make(map[string]entity.Session),
		phases:   make(map[string]entity.Phase),
		setups:   make(map[string]entity.SetupConfig),
		frames:   make(map[string][]entity.Frame),
	}
}

// Sessions, Phases and SetupConfigs expose typed views for syncer.Dependencies.
func (m *MemoryRecords) Sessions() *MemorySessions         { return &MemorySessions{m} }
func (m *MemoryRecords) Phases() *MemoryPhases             { return &MemoryPhases{m} }
func (m *MemoryRecords) SetupConfigs() *MemorySetupConfigs { return &MemorySetupConfigs{m} }

// PutSession stores a session.
func (m *MemoryRecords) PutSession(s entity.Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.SyncStatus == "" {
		s.SyncStatus = entity.SyncPending
	}
	m.sessions[s.ID] = s
}

// PutPhase stores a phase.
func (m *MemoryRecords) PutPhase(p entity.Phase) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.SyncStatus == "" {
		p.SyncStatus = entity.SyncPending
	}
	m.phases[p.ID] = p
}

// PutSetupConfig stores a setup config.
func (m *MemoryRecords) PutSetupConfig(s entity.SetupConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.SyncStatus == "" {
		s.SyncStatus = entity.SyncPending
	}
	m.setups[s.ID] = s
}

// PutFrames replaces the frames of a session.
func (m *MemoryRecords) PutFrames(sessionID string, frames []entity.Frame) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frames[sessionID] = slices.Clone(frames)
}

// DeleteSession drops a session record.
func (m *MemoryRecords) DeleteSession(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
}

// Session returns the stored session.
func (m *MemoryRecords) Session(id string) (entity.Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

// SessionStatus returns the sync status of a stored session.
func (m *MemoryRecords) SessionStatus(id string) entity.SyncStatus {
	s, _ := m.Session(id)
	return s.SyncStatus
}

// PhaseStatus returns the sync status of a stored phase.
func (m *MemoryRecords) PhaseStatus(id string) entity.SyncStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phases[id].SyncStatus
}

// Merges counts UpdateFromMerge calls.
func (m *MemoryRecords) Merges() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.merges
}

// FramesFor implements syncer.FrameSource.
func (m *MemoryRecords) FramesFor(_ context.Context, sessionID string) ([]entity.Frame, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.frames[sessionID]), nil
}

func missing(kind, id string) error {
	return services.Wrap(services.ErrNotFound, "memory-records", "get", fmt.Sprintf("%s %s", kind, id), nil)
}

// MemorySessions implements syncer.SessionRepository.
type MemorySessions struct{ m *MemoryRecords }

func (r *MemorySessions) Get(_ context.Context, id string) (entity.Session, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	s, ok := r.m.sessions[id]
	if !ok {
		return entity.Session{}, missing("session", id)
	}
	return s, nil
}

func (r *MemorySessions) UpdateSyncStatus(_ context.Context, id string, status entity.SyncStatus) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	s, ok := r.m.sessions[id]
	if !ok {
		return missing("session", id)
	}
	s.SyncStatus = status
	r.m.sessions[id] = s
	return nil
}

func (r *MemorySessions) UpdateFromMerge(_ context.Context, session entity.Session) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	session.SyncStatus = r.m.sessions[session.ID].SyncStatus
	r.m.sessions[session.ID] = session
	r.m.merges++
	return nil
}

// MemoryPhases implements syncer.PhaseRepository.
type MemoryPhases struct{ m *MemoryRecords }

func (r *MemoryPhases) Get(_ context.Context, id string) (entity.Phase, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	p, ok := r.m.phases[id]
	if !ok {
		return entity.Phase{}, missing("phase", id)
	}
	return p, nil
}

func (r *MemoryPhases) UpdateSyncStatus(_ context.Context, id string, status entity.SyncStatus) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	p, ok := r.m.phases[id]
	if !ok {
		return missing("phase", id)
	}
	p.SyncStatus = status
	r.m.phases[id] = p
	return nil
}

// MemorySetupConfigs implements syncer.SetupConfigRepository.
type MemorySetupConfigs struct{ m *MemoryRecords }

func (r *MemorySetupConfigs) Get(_ context.Context, id string) (entity.SetupConfig, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	s, ok := r.m.setups[id]
	if !ok {
		return entity.SetupConfig{}, missing("setup config", id)
	}
	return s, nil
}

func (r *MemorySetupConfigs) UpdateSyncStatus(_ context.Context, id string, status entity.SyncStatus) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	s, ok := r.m.setups[id]
	if !ok {
		return missing("setup config", id)
	}
	s.SyncStatus = status
	r.m.setups[id] = s
	return nil
}

// Frames builds n synthetic frames for a session.
func Frames(sessionID string, n int) []entity.Frame {
	frames := make([]entity.Frame, n)
	for i := range frames {
		frames[i] = entity.Frame{
			SessionID:       sessionID,
			Index:           i,
			TimestampMillis: int64(i) * 33,
			Landmarks:       []float32{0.5, 0.5, 0},
			Confidence:      0.9,
		}
	}
	return frames
}
