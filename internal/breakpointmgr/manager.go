// Package breakpointmgr is the reconciliation engine bridging per-
// Breakpoint user intent (package breakpoint) to per-Session adapter
// state via source-level batched setBreakpoints synchronization, per
// SPEC_FULL.md §4.10.
package breakpointmgr

import (
	"context"
	"sync"
	"time"

	"github.com/joestump/dapclient/internal/breakpoint"
	"github.com/joestump/dapclient/internal/events"
	"github.com/joestump/dapclient/internal/hookable"
	"github.com/joestump/dapclient/internal/source"
)

// Session is the narrow view BreakpointManager needs of an active
// Session: enough to send setBreakpoints/breakpointLocations requests and
// to listen for stopped events, without importing internal/session (which
// would create an import cycle, since Session owns a BreakpointManager
// reference).
type Session interface {
	ID() int
	SendRequest(ctx context.Context, command string, arguments, out any) error
	Capabilities() events.Capabilities
	Hooks() *hookable.Hookable
	// ResolveSource returns the DAP Source object to send in a
	// setBreakpoints request for id (name/path or sourceReference).
	ResolveSource(id source.Identifier) events.SourceDesc
}

type syncKey struct {
	source    source.Identifier
	sessionID int
}

type syncState struct {
	mu       sync.Mutex
	timer    *time.Timer
	inFlight bool
	again    bool
}

// Manager is the BreakpointManager: shared across sessions, serializes
// per-(source,session) synchronization, and owns the Breakpoint/Binding
// Collections.
type Manager struct {
	collections   *breakpoint.Collections
	debounce      time.Duration
	hooks         *hookable.Hookable

	mu       sync.Mutex
	sessions map[int]Session
	unsub    map[int][]hookable.DisposeFunc
	loaded   map[int]map[source.Identifier]bool

	syncMu sync.Mutex
	syncs  map[syncKey]*syncState

	exceptions *exceptionState
}

// Manager-level events, emitted on the Manager's own Hookable (see Hooks)
// and distinct from the per-Breakpoint/per-Binding Hookables.
const (
	EventSyncFailed = "SyncFailed"
)

// New creates a Manager. debounce is the per-(source,session) batching
// window (SyncDebounceMillis in configuration, default 50ms).
func New(debounce time.Duration) *Manager {
	return &Manager{
		collections: breakpoint.NewCollections(),
		debounce:    debounce,
		hooks:       hookable.New(),
		sessions:    make(map[int]Session),
		unsub:       make(map[int][]hookable.DisposeFunc),
		loaded:      make(map[int]map[source.Identifier]bool),
		syncs:       make(map[syncKey]*syncState),
		exceptions:  newExceptionState(),
	}
}

// Hooks exposes the Manager's own Hookable: SyncFailed, plus the
// Breakpoint and Binding events the On* methods below subscribe to.
func (m *Manager) Hooks() *hookable.Hookable { return m.hooks }

// AddBreakpoint creates a Breakpoint at location (or returns an existing
// one under smart-placement equivalence — see findEquivalent) and
// schedules a sync for every session that has the containing source
// loaded.
func (m *Manager) AddBreakpoint(location source.Location, opts ...breakpoint.Option) *breakpoint.Breakpoint {
	if existing := m.findEquivalent(location); existing != nil {
		return existing
	}

	bp := breakpoint.New(m.hooks, location, opts...)
	m.collections.AddBreakpoint(bp)
	m.hooks.Emit(breakpoint.EventAdded, bp)
	m.scheduleSyncsForSource(location.Source)
	return bp
}

// findEquivalent implements smart-placement equivalence: an exact
// location match always short-circuits; a range-matching equivalence
// (the breakpoint the adapter already relocated to cover this position)
// is additionally honored when at least one registered session advertises
// breakpointLocations support. Without any active session this is
// best-effort and falls back to the exact-id check only.
func (m *Manager) findEquivalent(location source.Location) *breakpoint.Breakpoint {
	if existing, ok := m.collections.Get(location.String()); ok {
		return existing
	}

	m.mu.Lock()
	haveCapableSession := false
	for _, s := range m.sessions {
		if s.Capabilities().SupportsBreakpointLocationsRequest {
			haveCapableSession = true
			break
		}
	}
	m.mu.Unlock()
	if !haveCapableSession {
		return nil
	}

	matches := m.collections.AtLocation(location)
	if len(matches) > 0 {
		return matches[0]
	}
	return nil
}

// RemoveBreakpoint destroys bp together with its Bindings (each reported
// through OnBindingUnbound) and schedules a sync for every session that
// had a Binding for it (the next sync omits it, causing the adapter to
// drop the verified state).
func (m *Manager) RemoveBreakpoint(bp *breakpoint.Breakpoint) {
	bindings := m.collections.BindingsForBreakpoint(bp.ID())
	sessionIDs := make(map[int]bool)
	for _, bd := range bindings {
		sessionIDs[bd.SessionID()] = true
	}
	loc := bp.Location()
	m.collections.RemoveBreakpoint(bp.ID())
	m.hooks.Emit(breakpoint.EventRemoved, bp)
	for _, bd := range bindings {
		m.hooks.Emit(breakpoint.EventBindingUnbound, bd)
	}
	for sid := range sessionIDs {
		m.scheduleSync(loc.Source, sid)
	}
}

// ToggleBreakpoint removes the Breakpoint matching location under
// range-matching rules if one exists, otherwise adds one at location.
// Returns the newly created Breakpoint, or nil if one was removed.
func (m *Manager) ToggleBreakpoint(location source.Location) *breakpoint.Breakpoint {
	matches := m.collections.AtLocation(location)
	if len(matches) > 0 {
		m.RemoveBreakpoint(matches[0])
		return nil
	}
	return m.AddBreakpoint(location)
}

// SetCondition, SetHitCondition, and SetLogMessage mutate bp and schedule
// a re-sync for every session with a source containing bp loaded.
func (m *Manager) SetCondition(bp *breakpoint.Breakpoint, condition string) {
	bp.SetCondition(condition)
	m.scheduleSyncsForSource(bp.Location().Source)
}

func (m *Manager) SetHitCondition(bp *breakpoint.Breakpoint, hitCondition string) {
	bp.SetHitCondition(hitCondition)
	m.scheduleSyncsForSource(bp.Location().Source)
}

func (m *Manager) SetLogMessage(bp *breakpoint.Breakpoint, logMessage string) {
	bp.SetLogMessage(logMessage)
	m.scheduleSyncsForSource(bp.Location().Source)
}

// Collections exposes the underlying indexed Breakpoint/Binding store for
// read-only queries (atLocation, atSourceId, forSession, ...).
func (m *Manager) Collections() *breakpoint.Collections { return m.collections }

// onBreakpoint, onBinding, onBindingHit, onBindingUnbound, and
// onBreakpointRemoved delegate listener registration to the
// breakpoint/binding Hookables, matching the cross-layer hierarchy named
// in the design: manager:onBreakpoint(bp => bp:onBinding(bd => bd:onHit(h => ...))).

// OnBreakpoint is called for every Breakpoint created through this
// Manager (existing ones at registration time, and any added later).
func (m *Manager) OnBreakpoint(fn func(bp *breakpoint.Breakpoint)) hookable.DisposeFunc {
	for _, bp := range m.collections.All() {
		fn(bp)
	}
	return m.hooks.On(breakpoint.EventAdded, func(payload any) hookable.CleanupFunc {
		if bp, ok := payload.(*breakpoint.Breakpoint); ok {
			fn(bp)
		}
		return nil
	})
}

// OnBreakpointRemoved fires when any Breakpoint owned by this Manager is
// removed.
func (m *Manager) OnBreakpointRemoved(fn func(bp *breakpoint.Breakpoint)) hookable.DisposeFunc {
	return m.hooks.On(breakpoint.EventRemoved, func(payload any) hookable.CleanupFunc {
		if bp, ok := payload.(*breakpoint.Breakpoint); ok {
			fn(bp)
		}
		return nil
	})
}

// OnBinding fires whenever a Binding becomes bound, across every
// Breakpoint this Manager owns.
func (m *Manager) OnBinding(fn func(bd *breakpoint.Binding)) hookable.DisposeFunc {
	return m.hooks.On(breakpoint.EventBindingBound, func(payload any) hookable.CleanupFunc {
		if bd, ok := payload.(*breakpoint.Binding); ok {
			fn(bd)
		}
		return nil
	})
}

// OnBindingHit fires whenever a Binding is hit (a stopped event names its
// adapter-assigned id in hitBreakpointIds).
func (m *Manager) OnBindingHit(fn func(bd *breakpoint.Binding, hit breakpoint.HitInfo)) hookable.DisposeFunc {
	return m.hooks.On(breakpoint.EventBindingHit, func(payload any) hookable.CleanupFunc {
		if p, ok := payload.(bindingHitPayload); ok {
			fn(p.binding, p.hit)
		}
		return nil
	})
}

// OnBindingUnbound fires whenever a Binding is destroyed (orphaned by a
// resync, or its Breakpoint/Session was destroyed).
func (m *Manager) OnBindingUnbound(fn func(bd *breakpoint.Binding)) hookable.DisposeFunc {
	return m.hooks.On(breakpoint.EventBindingUnbound, func(payload any) hookable.CleanupFunc {
		if bd, ok := payload.(*breakpoint.Binding); ok {
			fn(bd)
		}
		return nil
	})
}

type bindingHitPayload struct {
	binding *breakpoint.Binding
	hit     breakpoint.HitInfo
}

// RegisterSession makes s participate in synchronization and starts
// listening on s.Hooks() for stopped events (hit detection). It schedules
// no sync itself: syncs for s start as NotifySourceLoaded reports sources
// loaded in it.
func (m *Manager) RegisterSession(s Session) {
	m.mu.Lock()
	m.sessions[s.ID()] = s
	m.loaded[s.ID()] = make(map[source.Identifier]bool)
	m.mu.Unlock()

	var unsub []hookable.DisposeFunc
	unsub = append(unsub, s.Hooks().On("dap:stopped", func(payload any) hookable.CleanupFunc {
		m.handleStopped(s, payload)
		return nil
	}, hookable.WithName("breakpointmgr.hitdetect")))

	m.mu.Lock()
	m.unsub[s.ID()] = unsub
	m.mu.Unlock()
}

// UnregisterSession drops s from participation and destroys every Binding
// it held.
func (m *Manager) UnregisterSession(sessionID int) {
	m.mu.Lock()
	for _, d := range m.unsub[sessionID] {
		d()
	}
	delete(m.unsub, sessionID)
	delete(m.sessions, sessionID)
	delete(m.loaded, sessionID)
	m.mu.Unlock()

	for _, bd := range m.collections.BindingsForSession(sessionID) {
		if removed, ok := m.collections.RemoveBinding(bd.Breakpoint().ID(), sessionID); ok {
			m.hooks.Emit(breakpoint.EventBindingUnbound, removed)
		}
	}
}

// NotifySourceLoaded records that sourceID is now loaded in sessionID and
// schedules an immediate sync for it if any Breakpoints target it.
func (m *Manager) NotifySourceLoaded(sessionID int, sourceID source.Identifier) {
	m.mu.Lock()
	if idx, ok := m.loaded[sessionID]; ok {
		idx[sourceID] = true
	}
	m.mu.Unlock()

	if len(m.collections.AtSourceID(sourceID)) > 0 {
		m.scheduleSync(sourceID, sessionID)
	}
}

// NotifySourceUnloaded forgets sourceID was loaded in sessionID; it does
// not retroactively destroy Bindings, since the adapter itself reports
// their disposition via the next setBreakpoints/terminated sequence.
func (m *Manager) NotifySourceUnloaded(sessionID int, sourceID source.Identifier) {
	m.mu.Lock()
	if idx, ok := m.loaded[sessionID]; ok {
		delete(idx, sourceID)
	}
	m.mu.Unlock()
}

func (m *Manager) scheduleSyncsForSource(sourceID source.Identifier) {
	m.mu.Lock()
	var targets []int
	for sid, idx := range m.loaded {
		if idx[sourceID] {
			targets = append(targets, sid)
		}
	}
	m.mu.Unlock()
	for _, sid := range targets {
		m.scheduleSync(sourceID, sid)
	}
}

func (m *Manager) handleStopped(s Session, payload any) {
	body, ok := payload.(events.StoppedBody)
	if !ok || len(body.HitBreakpointIDs) == 0 {
		return
	}
	for _, bd := range m.collections.BindingsForSession(s.ID()) {
		for _, id := range body.HitBreakpointIDs {
			if bd.AdapterID() == id {
				line, col := bd.ActualPosition()
				sourceID := bd.Breakpoint().Location().Source.String()
				bd.NotifyHit(sourceID, line, col)
				m.hooks.Emit(breakpoint.EventBindingHit, bindingHitPayload{
					binding: bd,
					hit:     breakpoint.HitInfo{SourceID: sourceID, Line: line, Column: col},
				})
			}
		}
	}
}
