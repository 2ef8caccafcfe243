package session

import (
	"sync"

	"github.com/joestump/dapclient/internal/hookable"
)

// Manager is the session registry named in SPEC_FULL.md §4.6: it
// allocates ids, tracks every live Session, notifies onSession listeners,
// and re-parents a removed session's children to its own parent (or
// promotes them to root if it had none).
type Manager struct {
	mu       sync.Mutex
	nextID   int
	sessions map[int]*Session
	hooks    *hookable.Hookable
}

// Event fired on Manager's Hookable whenever a Session is added.
const EventSessionAdded = "SessionAdded"

// NewManager creates an empty session registry.
func NewManager() *Manager {
	return &Manager{sessions: make(map[int]*Session), hooks: hookable.New()}
}

// NextID allocates (without yet registering) the next session id.
func (m *Manager) NextID() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	return m.nextID
}

// add registers s under a freshly allocated id. Called from session.New.
func (m *Manager) add(s *Session) {
	id := m.NextID()
	s.setID(id)
	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()
	m.hooks.Emit(EventSessionAdded, s)
}

// remove drops id from the registry and re-parents its children: each
// child's parent becomes the removed session's own parent, or the child
// is promoted to a root session if the removed session had none.
func (m *Manager) remove(id int) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if !ok {
		m.mu.Unlock()
		return
	}
	delete(m.sessions, id)
	m.mu.Unlock()

	newParent := s.Parent()
	for _, child := range s.Children() {
		child.reparent(newParent)
		if newParent != nil {
			newParent.addChild(child)
		}
	}
}

// Get returns the Session registered under id, if any.
func (m *Manager) Get(id int) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

// All returns every currently registered Session.
func (m *Manager) All() []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out
}

// OnSession registers a listener invoked for every Session added to the
// registry, past and future (existing sessions fire synchronously before
// OnSession returns, matching the resync-on-subscribe convention used by
// BreakpointManager.OnBreakpoint).
func (m *Manager) OnSession(fn func(s *Session)) hookable.DisposeFunc {
	for _, s := range m.All() {
		fn(s)
	}
	return m.hooks.On(EventSessionAdded, func(payload any) hookable.CleanupFunc {
		if s, ok := payload.(*Session); ok {
			fn(s)
		}
		return nil
	})
}

func (s *Session) reparent(newParent *Session) {
	s.mu.Lock()
	s.parent = newParent
	if newParent != nil {
		s.depth = newParent.depth + 1
	} else {
		s.depth = 0
	}
	s.mu.Unlock()
}
