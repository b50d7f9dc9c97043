package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type sessionKey struct {
	testID    uuid.UUID
	studentID int
}

// Manager is the registry of live session controllers, one per
// (test, student). It replaces any notion of ambient session state:
// every controller is explicitly owned here and released on disconnect.
//
// A second Open for the same key is rejected with ErrSessionOpen —
// concurrent sessions on one attempt (two tabs) are unsupported.
type Manager struct {
	adapter SyncAdapter
	log     zerolog.Logger
	tick    time.Duration

	mu       sync.Mutex
	sessions map[sessionKey]*Controller
}

// NewManager creates a session manager backed by the given adapter.
func NewManager(adapter SyncAdapter, log zerolog.Logger) *Manager {
	return &Manager{
		adapter:  adapter,
		log:      log.With().Str("component", "session_manager").Logger(),
		tick:     time.Second,
		sessions: make(map[sessionKey]*Controller),
	}
}

// Open starts a session for the student on the test and registers it.
// The returned controller is active on success; the caller must
// Release it when done with it.
func (m *Manager) Open(ctx context.Context, testID uuid.UUID, studentID int, hooks Hooks) (*Controller, error) {
	key := sessionKey{testID: testID, studentID: studentID}

	m.mu.Lock()
	if _, exists := m.sessions[key]; exists {
		m.mu.Unlock()
		return nil, ErrSessionOpen
	}
	ctrl := New(Config{
		Adapter:      m.adapter,
		Logger:       m.log,
		Hooks:        hooks,
		TickInterval: m.tick,
	})
	m.sessions[key] = ctrl
	m.mu.Unlock()

	if err := ctrl.Start(ctx, testID, studentID); err != nil {
		m.mu.Lock()
		delete(m.sessions, key)
		m.mu.Unlock()
		return nil, err
	}

	return ctrl, nil
}

// Release closes the controller and removes it from the registry. The
// controller argument guards against releasing a session that was
// already replaced.
func (m *Manager) Release(testID uuid.UUID, studentID int, ctrl *Controller) {
	key := sessionKey{testID: testID, studentID: studentID}

	m.mu.Lock()
	if current, ok := m.sessions[key]; ok && current == ctrl {
		delete(m.sessions, key)
	}
	m.mu.Unlock()

	ctrl.Close()
}

// ActiveCount returns the number of live sessions.
func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Shutdown closes every live session. Called on server shutdown; open
// attempts stay open in the store and can be resumed.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	controllers := make([]*Controller, 0, len(m.sessions))
	for _, c := range m.sessions {
		controllers = append(controllers, c)
	}
	m.sessions = make(map[sessionKey]*Controller)
	m.mu.Unlock()

	for _, c := range controllers {
		c.Close()
	}
}
