// Package session tracks each user's progress through the buy/sell
// dialogue. Sessions are process-local, keyed by Telegram user id, and
// expire after a configurable idle period so an abandoned sell flow does
// not pin scratch data forever.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/DemidSergeev/notes-bot/internal/domain"
)

// State identifies a step of the conversation machine.
type State string

const (
	StateIdle           State = "idle"
	StateChoosingAction State = "choosing_action"
	StateChoosingType   State = "choosing_type"
	StateChoosingCourse State = "choosing_course"
	StateChoosingSubj   State = "choosing_subject"
	StateSellUpload     State = "sell_upload"
	StateSellPayDetails State = "sell_paydetails"
)

// All lists every state, used by transition-totality tests.
func All() []State {
	return []State{
		StateIdle,
		StateChoosingAction,
		StateChoosingType,
		StateChoosingCourse,
		StateChoosingSubj,
		StateSellUpload,
		StateSellPayDetails,
	}
}

// Session holds the current state plus flow-scoped scratch fields.
type Session struct {
	State State

	// Sell flow scratch. Cleared on completion, cancel, or reset.
	SellYear        domain.CourseYear
	SellSubjectID   uuid.UUID
	SellSubjectName string
	UploadedFile    string

	LastSeen time.Time
}

// DefaultIdleTimeout resets sessions abandoned mid-flow.
const DefaultIdleTimeout = 30 * time.Minute

// Manager owns the per-user session map. All access is mutex-guarded;
// sessions of different users never share state. Only active
// conversations occupy a map entry: idle, cleared, and expired sessions
// are dropped, so the map is bounded by the number of users mid-flow.
type Manager struct {
	mu          sync.Mutex
	sessions    map[int64]*Session
	idleTimeout time.Duration
	now         func() time.Time
}

// Option customises a Manager.
type Option func(*Manager)

// WithIdleTimeout overrides the idle expiry period.
func WithIdleTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.idleTimeout = d
		}
	}
}

// WithClock overrides the time source, used by tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewManager creates an empty session manager.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		sessions:    make(map[int64]*Session),
		idleTimeout: DefaultIdleTimeout,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Get returns a copy of the user's session. Unknown users and sessions
// past the idle timeout read as a fresh idle session.
func (m *Manager) Get(userID int64) Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sess := m.live(userID); sess != nil {
		return *sess
	}
	return Session{State: StateIdle, LastSeen: m.now()}
}

// SetState transitions the user to the given state.
func (m *Manager) SetState(userID int64, st State) {
	m.Update(userID, func(s *Session) { s.State = st })
}

// Update applies fn to the user's session under the lock. A session left
// in the idle state is dropped rather than stored.
func (m *Manager) Update(userID int64, fn func(*Session)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess := m.live(userID)
	if sess == nil {
		sess = &Session{State: StateIdle}
	}
	fn(sess)
	sess.LastSeen = m.now()
	if sess.State == StateIdle {
		delete(m.sessions, userID)
		return
	}
	m.sessions[userID] = sess
}

// Clear ends the user's flow, dropping the session with its scratch.
func (m *Manager) Clear(userID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, userID)
}

// InProgress reports whether the user is mid-flow.
func (m *Manager) InProgress(userID int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.live(userID) != nil
}

// Len reports how many conversations are currently tracked.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// live returns the stored session for userID, deleting it when the idle
// timeout has passed. Callers must hold m.mu.
func (m *Manager) live(userID int64) *Session {
	sess, ok := m.sessions[userID]
	if !ok {
		return nil
	}
	if m.now().Sub(sess.LastSeen) > m.idleTimeout {
		delete(m.sessions, userID)
		return nil
	}
	return sess
}
