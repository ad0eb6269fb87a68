package testsupport

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"fieldsync/internal/entity"
	"fieldsync/internal/services"
)

// FakeRemote is an in-memory remote authority with scriptable failures.
type FakeRemote struct {
	mu       sync.Mutex
	sessions map[string]entity.Session
	phases   map[string]entity.Phase
	setups   map[string]entity.SetupConfig
	frames   map[string][]entity.Frame
	calls    []string
	scripted map[string][]error
	always   map[string]error
	before   map[string]func()
}

// NewFakeRemote returns an empty remote.
func NewFakeRemote() *FakeRemote {
	return &FakeRemote{
		sessions: make(map[string]entity.Session),
		phases:   make(map[string]entity.Phase),
		setups:   make(map[string]entity.SetupConfig),
		frames:   make(map[string][]entity.Frame),
		scripted: make(map[string][]error),
		always:   make(map[string]error),
		before:   make(map[string]func()),
	}
}

// Before runs fn at the start of every call to method, while the call is in
// flight. fn must not call back into the remote.
func (f *FakeRemote) Before(method string, fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.before[method] = fn
}

// Script queues results for the next calls to method, in order. A nil entry
// lets that call through.
func (f *FakeRemote) Script(method string, errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scripted[method] = append(f.scripted[method], errs...)
}

// FailAlways makes every call to method fail with err until Heal is called.
func (f *FakeRemote) FailAlways(method string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.always[method] = err
}

// Heal clears every scripted and permanent failure.
func (f *FakeRemote) Heal() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scripted = make(map[string][]error)
	f.always = make(map[string]error)
}

// Calls returns the method names called so far, in order.
func (f *FakeRemote) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.calls)
}

// CallCount returns how often method was called.
func (f *FakeRemote) CallCount(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, call := range f.calls {
		if call == method {
			n++
		}
	}
	return n
}

// PutSession seeds a remote session.
func (f *FakeRemote) PutSession(session entity.Session) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[session.ID] = session
}

// Session returns the stored remote session.
func (f *FakeRemote) Session(id string) (entity.Session, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	return s, ok
}

// PutPhase seeds a remote phase.
func (f *FakeRemote) PutPhase(phase entity.Phase) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.phases[phase.ID] = phase
}

// Phase returns the stored remote phase.
func (f *FakeRemote) Phase(id string) (entity.Phase, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.phases[id]
	return p, ok
}

// SetupConfig returns the stored remote setup config.
func (f *FakeRemote) SetupConfig(id string) (entity.SetupConfig, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.setups[id]
	return s, ok
}

// Frames returns every frame received for a session across all batches.
func (f *FakeRemote) Frames(sessionID string) []entity.Frame {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.frames[sessionID])
}

// call records method and returns its scripted failure, if any. Callers hold mu.
func (f *FakeRemote) call(method string) error {
	f.calls = append(f.calls, method)
	if fn := f.before[method]; fn != nil {
		fn()
	}
	if err := f.always[method]; err != nil {
		return err
	}
	if queued := f.scripted[method]; len(queued) > 0 {
		f.scripted[method] = queued[1:]
		return queued[0]
	}
	return nil
}

func notFound(kind, id string) error {
	return services.Wrap(services.ErrNotFound, "fake-remote", kind, fmt.Sprintf("%s %s", kind, id), nil)
}

func exists(kind, id string) error {
	return services.Wrap(services.ErrConflict, "fake-remote", kind, fmt.Sprintf("%s %s already exists", kind, id), nil)
}

func (f *FakeRemote) CreateSession(_ context.Context, session entity.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("CreateSession"); err != nil {
		return err
	}
	if _, ok := f.sessions[session.ID]; ok {
		return exists("session", session.ID)
	}
	f.sessions[session.ID] = session
	return nil
}

func (f *FakeRemote) GetSession(_ context.Context, id string) (entity.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("GetSession"); err != nil {
		return entity.Session{}, err
	}
	session, ok := f.sessions[id]
	if !ok {
		return entity.Session{}, notFound("session", id)
	}
	return session, nil
}

func (f *FakeRemote) SetTrim(_ context.Context, session entity.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("SetTrim"); err != nil {
		return err
	}
	current, ok := f.sessions[session.ID]
	if !ok {
		return notFound("session", session.ID)
	}
	current.Label = session.Label
	current.TrimStartMillis = session.TrimStartMillis
	current.TrimEndMillis = session.TrimEndMillis
	current.UpdatedAt = session.UpdatedAt
	f.sessions[session.ID] = current
	return nil
}

func (f *FakeRemote) DeleteSession(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("DeleteSession"); err != nil {
		return err
	}
	if _, ok := f.sessions[id]; !ok {
		return notFound("session", id)
	}
	delete(f.sessions, id)
	delete(f.frames, id)
	return nil
}

func (f *FakeRemote) SubmitFrameBatch(_ context.Context, sessionID string, frames []entity.Frame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("SubmitFrameBatch"); err != nil {
		return err
	}
	f.frames[sessionID] = append(f.frames[sessionID], frames...)
	return nil
}

func (f *FakeRemote) CreatePhase(_ context.Context, phase entity.Phase) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("CreatePhase"); err != nil {
		return err
	}
	if _, ok := f.phases[phase.ID]; ok {
		return exists("phase", phase.ID)
	}
	f.phases[phase.ID] = phase
	return nil
}

func (f *FakeRemote) GetPhase(_ context.Context, id string) (entity.Phase, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("GetPhase"); err != nil {
		return entity.Phase{}, err
	}
	phase, ok := f.phases[id]
	if !ok {
		return entity.Phase{}, notFound("phase", id)
	}
	return phase, nil
}

func (f *FakeRemote) UpdatePhase(_ context.Context, phase entity.Phase) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("UpdatePhase"); err != nil {
		return err
	}
	if _, ok := f.phases[phase.ID]; !ok {
		return notFound("phase", phase.ID)
	}
	f.phases[phase.ID] = phase
	return nil
}

func (f *FakeRemote) DeletePhase(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("DeletePhase"); err != nil {
		return err
	}
	if _, ok := f.phases[id]; !ok {
		return notFound("phase", id)
	}
	delete(f.phases, id)
	return nil
}

func (f *FakeRemote) PutSetupConfig(_ context.Context, setup entity.SetupConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("PutSetupConfig"); err != nil {
		return err
	}
	f.setups[setup.ID] = setup
	return nil
}

func (f *FakeRemote) DeleteSetupConfig(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("DeleteSetupConfig"); err != nil {
		return err
	}
	if _, ok := f.setups[id]; !ok {
		return notFound("setup config", id)
	}
	delete(f.setups, id)
	return nil
}
