package syncer

import (
	"sync"
	"time"
)

// Snapshot is a point-in-time copy of the sync state.
type Snapshot struct {
	Active         bool      `json:"active"`
	PendingCount   int       `json:"pending_count"`
	AbandonedCount int       `json:"abandoned_count"`
	LastSyncTime   time.Time `json:"last_sync_time"`
	LastRunID      string    `json:"last_run_id,omitempty"`
	LastError      string    `json:"last_error,omitempty"`
	Connectivity   string    `json:"connectivity"`
}

// State is the observable sync state owned by the orchestrator. Subscribers
// always see the latest snapshot; intermediate ones may be skipped.
type State struct {
	mu     sync.RWMutex
	snap   Snapshot
	subs   map[int]chan Snapshot
	nextID int
}

// NewState returns an idle state with unknown connectivity.
func NewState() *State {
	return &State{
		snap: Snapshot{Connectivity: "unknown"},
		subs: make(map[int]chan Snapshot),
	}
}

// Snapshot returns the current state.
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// Subscribe returns a channel that receives every state change and a cancel
// function that closes it. The channel starts with the current snapshot.
func (s *State) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = ch
	ch <- s.snap
	s.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			close(ch)
			s.mu.Unlock()
		})
	}
	return ch, cancel
}

// SetConnectivity records the current network class.
func (s *State) SetConnectivity(class string) {
	s.update(func(snap *Snapshot) { snap.Connectivity = class })
}

// SetCounts records queue counts read from the store.
func (s *State) SetCounts(pending, abandoned int) {
	s.update(func(snap *Snapshot) {
		snap.PendingCount = pending
		snap.AbandonedCount = abandoned
	})
}

// begin flips the state to active. It returns false if a run is in progress.
func (s *State) begin(runID string) bool {
	started := false
	s.update(func(snap *Snapshot) {
		if snap.Active {
			return
		}
		snap.Active = true
		snap.LastRunID = runID
		started = true
	})
	return started
}

func (s *State) finish(at time.Time, runErr error) {
	s.update(func(snap *Snapshot) {
		snap.Active = false
		snap.LastSyncTime = at
		if runErr != nil {
			snap.LastError = runErr.Error()
		} else {
			snap.LastError = ""
		}
	})
}

func (s *State) update(mutate func(*Snapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	before := s.snap
	mutate(&s.snap)
	if s.snap == before {
		return
	}
	for _, ch := range s.subs {
		select {
		case <-ch:
		default:
		}
		ch <- s.snap
	}
}
