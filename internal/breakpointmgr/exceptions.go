package breakpointmgr

import (
	"context"
	"sync"
	"time"

	"github.com/joestump/dapclient/internal/events"
)

// ExceptionBreakpoint is a user-enabled exception filter, identified by
// the adapter-advertised filterId from the initialize response's
// exceptionBreakpointFilters. Unlike a location Breakpoint it has no
// Location and is synced via setExceptionBreakpoints rather than
// setBreakpoints.
type ExceptionBreakpoint struct {
	FilterID  string
	Condition string
}

type exceptionState struct {
	mu      sync.Mutex
	filters map[string]ExceptionBreakpoint
}

func newExceptionState() *exceptionState {
	return &exceptionState{filters: make(map[string]ExceptionBreakpoint)}
}

// SetExceptionBreakpoints replaces the active exception filter set and
// resyncs every registered session, whatever exception filter support it
// advertises. Unlike location breakpoints this is not
// debounced: exception filter changes are rare, user-driven, toggles, and
// the spec places no batching requirement on them.
func (m *Manager) SetExceptionBreakpoints(filters []ExceptionBreakpoint) {
	m.exceptions.mu.Lock()
	m.exceptions.filters = make(map[string]ExceptionBreakpoint, len(filters))
	for _, f := range filters {
		m.exceptions.filters[f.FilterID] = f
	}
	snapshot := make([]ExceptionBreakpoint, 0, len(filters))
	snapshot = append(snapshot, filters...)
	m.exceptions.mu.Unlock()

	m.mu.Lock()
	sessions := make([]Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	for _, s := range sessions {
		go m.syncExceptionBreakpoints(s, snapshot)
	}
}

// DefaultExceptionBreakpoints returns the filters s's adapter advertises
// as defaults (ExceptionBreakpointFilter.Default). It only builds the
// list: nothing is sent to the adapter and the active filter set is left
// unchanged.
func (m *Manager) DefaultExceptionBreakpoints(s Session) []ExceptionBreakpoint {
	var defaults []ExceptionBreakpoint
	for _, f := range s.Capabilities().ExceptionBreakpointFilters {
		if f.Default {
			defaults = append(defaults, ExceptionBreakpoint{FilterID: f.Filter})
		}
	}
	return defaults
}

func (m *Manager) syncExceptionBreakpoints(s Session, filters []ExceptionBreakpoint) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	args := events.SetExceptionBreakpointsArgs{}
	caps := s.Capabilities()
	for _, f := range filters {
		args.Filters = append(args.Filters, f.FilterID)
		if caps.SupportsExceptionOptions && f.Condition != "" {
			args.FilterOptions = append(args.FilterOptions, events.ExceptionFilterArg{
				FilterID: f.FilterID, Condition: f.Condition,
			})
		}
	}

	if err := s.SendRequest(ctx, "setExceptionBreakpoints", args, nil); err != nil {
		m.hooks.Emit(EventSyncFailed, syncFailure{SessionID: s.ID(), Err: err})
	}
}
