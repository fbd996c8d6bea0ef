// Package session maintains the sticky session identifier presented to
// relays. The identifier asks the relay for a consistent exit IP across
// related calls; it is a routing hint, not a security boundary.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Manager holds one process-wide session identifier and rotates it when it
// outlives the rotation window.
type Manager struct {
	mu        sync.Mutex
	id        string
	createdAt time.Time
	rotation  time.Duration
	now       func() time.Time
}

// NewManager creates a manager that rotates the identifier after the given
// window. A zero window means a fresh identifier per call.
func NewManager(rotation time.Duration) *Manager {
	return &Manager{rotation: rotation, now: time.Now}
}

// Current returns the active session identifier, regenerating it first if
// the one on hand has aged past the rotation window.
func (m *Manager) Current() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.id == "" || m.now().Sub(m.createdAt) >= m.rotation {
		m.id = uuid.NewString()
		m.createdAt = m.now()
	}
	return m.id
}
