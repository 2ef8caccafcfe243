package breakpointmgr

import (
	"context"
	"time"

	"github.com/joestump/dapclient/internal/breakpoint"
	"github.com/joestump/dapclient/internal/events"
	"github.com/joestump/dapclient/internal/source"
)

// scheduleSync debounces a setBreakpoints sync for (sourceID, sessionID):
// repeated calls within the debounce window collapse into a single
// execution reading Collections state at fire time, so the latest queued
// intent always wins. If a sync is already in flight for this key, the
// fresh request is deferred until it completes rather than running
// concurrently — DAP's setBreakpoints replaces the whole source, so two
// in-flight requests racing would leave the adapter's state
// nondeterministic.
func (m *Manager) scheduleSync(sourceID source.Identifier, sessionID int) {
	m.mu.Lock()
	s, ok := m.sessions[sessionID]
	m.mu.Unlock()
	if !ok {
		return
	}

	key := syncKey{source: sourceID, sessionID: sessionID}
	m.syncMu.Lock()
	st, ok := m.syncs[key]
	if !ok {
		st = &syncState{}
		m.syncs[key] = st
	}
	m.syncMu.Unlock()

	st.mu.Lock()
	defer st.mu.Unlock()
	if st.inFlight {
		st.again = true
		return
	}
	if st.timer != nil {
		st.timer.Stop()
	}
	st.timer = time.AfterFunc(m.debounce, func() {
		m.runSync(key, s, st)
	})
}

func (m *Manager) runSync(key syncKey, s Session, st *syncState) {
	st.mu.Lock()
	st.inFlight = true
	st.timer = nil
	st.mu.Unlock()

	err := m.executeSync(key.source, s)

	st.mu.Lock()
	st.inFlight = false
	again := st.again
	st.again = false
	st.mu.Unlock()

	if err != nil {
		m.hooks.Emit(EventSyncFailed, syncFailure{Source: key.source, SessionID: key.sessionID, Err: err})
	}

	if again {
		m.scheduleSync(key.source, key.sessionID)
	}
}

// syncFailure is the payload of a SyncFailed emission.
type syncFailure struct {
	Source    source.Identifier
	SessionID int
	Err       error
}

// executeSync runs one setBreakpoints batch for sourceID against s,
// reconciling the response by array index per SPEC_FULL.md §4.10:
//  1. gather Breakpoints at this source
//  2. index existing Bindings by Breakpoint id
//  3. build the request, sending an already-bound breakpoint at its
//     Binding's actual position (the adapter-assigned id is not sent)
//  4. send setBreakpoints
//  5. reconcile by index: bind/rebind verified entries
//  6. destroy any Binding whose Breakpoint no longer appears
func (m *Manager) executeSync(sourceID source.Identifier, s Session) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	bps := m.collections.AtSourceID(sourceID)
	existing := make(map[string]*breakpoint.Binding, len(bps))
	for _, bp := range bps {
		if bd, ok := m.collections.FindBinding(bp.ID(), s.ID()); ok {
			existing[bp.ID()] = bd
		}
	}

	args := events.SetBreakpointsArgs{
		Source:      s.ResolveSource(sourceID),
		Breakpoints: make([]events.SourceBreakpointArg, 0, len(bps)),
	}
	for _, bp := range bps {
		line, col := bp.Location().Line, bp.Location().Column
		if bd, ok := existing[bp.ID()]; ok {
			line, col = bd.ActualPosition()
		}
		args.Breakpoints = append(args.Breakpoints, events.SourceBreakpointArg{
			Line:         line,
			Column:       col,
			Condition:    bp.Condition(),
			HitCondition: bp.HitCondition(),
			LogMessage:   bp.LogMessage(),
		})
	}

	var resp events.SetBreakpointsResponseBody
	if err := s.SendRequest(ctx, "setBreakpoints", args, &resp); err != nil {
		return err
	}

	seen := make(map[string]bool, len(bps))
	for i, result := range resp.Breakpoints {
		if i >= len(bps) {
			break
		}
		bp := bps[i]
		seen[bp.ID()] = true
		if !result.Verified {
			if bd, ok := existing[bp.ID()]; ok {
				m.unbind(bp, bd)
			}
			continue
		}

		reqLine, reqCol := bp.Location().Line, bp.Location().Column
		if bd, ok := existing[bp.ID()]; ok {
			bd.Rebind(result.ID, reqLine, reqCol, result.Line, result.Column)
			m.hooks.Emit(breakpoint.EventBindingBound, bd)
			continue
		}
		bd := breakpoint.Bind(bp, s.ID(), result.ID, reqLine, reqCol, result.Line, result.Column)
		m.collections.PutBinding(bd)
		m.hooks.Emit(breakpoint.EventBindingBound, bd)
	}

	// Any Breakpoint that had a Binding before this sync but isn't
	// confirmed verified afterward (including one the adapter dropped
	// from a shorter response) is now orphaned.
	for id, bd := range existing {
		if !seen[id] {
			bp := bd.Breakpoint()
			m.unbind(bp, bd)
		}
	}
	return nil
}

func (m *Manager) unbind(bp *breakpoint.Breakpoint, bd *breakpoint.Binding) {
	m.collections.RemoveBinding(bp.ID(), bd.SessionID())
	m.hooks.Emit(breakpoint.EventBindingUnbound, bd)
}
