package session

import (
	"sync"

	"github.com/google/uuid"

	"gamesmith/internal/types"
)

// Manager grants at most one in-flight cycle per session. A second caller
// arriving while a cycle holds the slot gets a conflict fault instead of
// queueing; the UI is expected to retry after the running cycle finishes.
type Manager struct {
	mu       sync.Mutex
	inflight map[string]struct{}
}

// NewManager returns an empty manager.
func NewManager() *Manager {
	return &Manager{inflight: make(map[string]struct{})}
}

// NewID mints a session identifier.
func (m *Manager) NewID() string {
	return uuid.New().String()
}

// Acquire claims the cycle slot for a session. The returned release func is
// idempotent and must be called when the cycle ends, success or not.
func (m *Manager) Acquire(sessionID string) (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, busy := m.inflight[sessionID]; busy {
		return nil, types.Faultf(types.ClassConflict, "session %s already has a cycle in flight", sessionID)
	}
	m.inflight[sessionID] = struct{}{}
	var once sync.Once
	release := func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.inflight, sessionID)
			m.mu.Unlock()
		})
	}
	return release, nil
}

// Busy reports whether a cycle currently holds the slot for a session.
func (m *Manager) Busy(sessionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, busy := m.inflight[sessionID]
	return busy
}
