package intake

import (
	"sync"
	"time"
)

// Phase is the sub-protocol the service reports for a session.
type Phase string

const (
	PhaseNone          Phase = "none"
	PhaseIntake        Phase = "intake"
	PhaseClarification Phase = "clarification"
	PhaseComplete      Phase = "complete"
)

// Clarifying reports whether answers go to the follow-up endpoint.
func (p Phase) Clarifying() bool {
	return p == PhaseClarification
}

// Session is one dialogue with the service, from a successful start until a
// summary arrives. Its id is fixed when the session is created.
type Session struct {
	id      string
	started time.Time
}

// ID returns the service-assigned session id.
func (s *Session) ID() string {
	return s.id
}

// Started returns when the session was established.
func (s *Session) Started() time.Time {
	return s.started
}

// SessionIDStore keeps the current session id outside the controller. The
// controller only writes it; Get serves tools that inspect a session from
// outside, such as a transcript viewer.
type SessionIDStore interface {
	Get() (string, bool)
	Set(id string) error
	Clear() error
}

// MemoryIDStore keeps the session id for the life of the process.
type MemoryIDStore struct {
	mu sync.Mutex
	id string
}

// Get implements SessionIDStore.
func (m *MemoryIDStore) Get() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.id, m.id != ""
}

// Set implements SessionIDStore.
func (m *MemoryIDStore) Set(id string) error {
	m.mu.Lock()
	m.id = id
	m.mu.Unlock()
	return nil
}

// Clear implements SessionIDStore.
func (m *MemoryIDStore) Clear() error {
	m.mu.Lock()
	m.id = ""
	m.mu.Unlock()
	return nil
}
