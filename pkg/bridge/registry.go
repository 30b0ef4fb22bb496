package bridge

import (
	"errors"
	"sort"
	"sync"
	"time"
)

var ErrDuplicateSession = errors.New("bridge: session already active for call")

// Registry is the process-wide index of live sessions keyed by call
// identifier. Only the owning session mutates its state; everything else
// reads through snapshots.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Add registers a session. A second registration for the same call fails
// with ErrDuplicateSession unless the existing session is already terminal,
// in which case the stale entry is replaced.
func (r *Registry) Add(s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.sessions[s.ID]; ok && !existing.State().Terminal() {
		return ErrDuplicateSession
	}
	r.sessions[s.ID] = s
	return nil
}

// Get looks up the session for a call.
func (r *Registry) Get(callID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[callID]
	return s, ok
}

// Remove deletes a session entry. Callers remove only after the session is
// terminal and handoff has been attempted.
func (r *Registry) Remove(callID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, callID)
}

// Len reports how many sessions are registered.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// SessionInfo is a read-only view of one session for listing.
type SessionInfo struct {
	CallID   string    `json:"call_id"`
	TestID   string    `json:"test_id"`
	State    string    `json:"state"`
	Turns    int       `json:"turns"`
	Snapshot time.Time `json:"snapshot"`
}

// List snapshots all registered sessions, ordered by call identifier.
func (r *Registry) List() []SessionInfo {
	r.mu.RLock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.RUnlock()

	now := time.Now().UTC()
	infos := make([]SessionInfo, 0, len(sessions))
	for _, s := range sessions {
		infos = append(infos, SessionInfo{
			CallID:   s.ID,
			TestID:   s.TestID,
			State:    s.State().String(),
			Turns:    s.Ledger().Len(),
			Snapshot: now,
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].CallID < infos[j].CallID })
	return infos
}
