package breakpointmgr

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/joestump/dapclient/internal/breakpoint"
	"github.com/joestump/dapclient/internal/events"
	"github.com/joestump/dapclient/internal/hookable"
	"github.com/joestump/dapclient/internal/source"
)

// fakeSession is a breakpointmgr.Session stub that answers setBreakpoints
// with a scripted response and records every request it receives.
type fakeSession struct {
	id     int
	hooks  *hookable.Hookable
	caps   events.Capabilities
	desc   events.SourceDesc
	script []events.SetBreakpointsResponseBody
	calls  []events.SetBreakpointsArgs
}

func (f *fakeSession) ID() int                                             { return f.id }
func (f *fakeSession) Capabilities() events.Capabilities                   { return f.caps }
func (f *fakeSession) Hooks() *hookable.Hookable                           { return f.hooks }
func (f *fakeSession) ResolveSource(id source.Identifier) events.SourceDesc { return f.desc }

func (f *fakeSession) SendRequest(ctx context.Context, command string, arguments, out any) error {
	if command != "setBreakpoints" {
		return nil
	}
	raw, _ := json.Marshal(arguments)
	var args events.SetBreakpointsArgs
	_ = json.Unmarshal(raw, &args)
	f.calls = append(f.calls, args)

	resp := f.script[0]
	if len(f.script) > 1 {
		f.script = f.script[1:]
	}
	if out != nil {
		respRaw, _ := json.Marshal(resp)
		_ = json.Unmarshal(respRaw, out)
	}
	return nil
}

func waitForCalls(t *testing.T, s *fakeSession, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(s.calls) >= n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d setBreakpoints calls, got %d", n, len(s.calls))
}

func newTestManager() *Manager {
	return New(10 * time.Millisecond)
}

func TestAddBreakpointSyncsAndBinds(t *testing.T) {
	m := newTestManager()
	srcID := source.FileIdentifier("/tmp/loop.js")
	sess := &fakeSession{
		id:    1,
		hooks: hookable.New(),
		script: []events.SetBreakpointsResponseBody{
			{Breakpoints: []events.BreakpointResult{{ID: 7, Verified: true, Line: 4, Column: 2}}},
		},
	}
	m.RegisterSession(sess)

	var boundSeen []*breakpoint.Binding
	m.OnBinding(func(bd *breakpoint.Binding) { boundSeen = append(boundSeen, bd) })

	bp := m.AddBreakpoint(source.Location{Source: srcID, Line: 3, Column: 0})
	m.NotifySourceLoaded(sess.id, srcID)

	waitForCalls(t, sess, 1)
	// OnBinding fires asynchronously off the debounce timer; give it a beat.
	deadline := time.Now().Add(time.Second)
	for len(boundSeen) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	bd, ok := m.Collections().FindBinding(bp.ID(), sess.id)
	if !ok {
		t.Fatal("expected a Binding after sync")
	}
	if bd.AdapterID() != 7 {
		t.Fatalf("adapterID = %d, want 7", bd.AdapterID())
	}
	line, col := bd.ActualPosition()
	if line != 4 || col != 2 {
		t.Fatalf("actual position = %d:%d, want 4:2", line, col)
	}
	if len(boundSeen) == 0 {
		t.Fatal("expected OnBinding to fire")
	}
}

func TestResyncSendsBoundActualPosition(t *testing.T) {
	m := newTestManager()
	srcID := source.FileIdentifier("/tmp/loop.js")
	sess := &fakeSession{
		id:    1,
		hooks: hookable.New(),
		script: []events.SetBreakpointsResponseBody{
			{Breakpoints: []events.BreakpointResult{{ID: 7, Verified: true, Line: 4, Column: 2}}},
			{Breakpoints: []events.BreakpointResult{
				{ID: 7, Verified: true, Line: 4, Column: 2},
				{ID: 8, Verified: true, Line: 10, Column: 0},
			}},
		},
	}
	m.RegisterSession(sess)
	m.NotifySourceLoaded(sess.id, srcID)

	m.AddBreakpoint(source.Location{Source: srcID, Line: 3, Column: 0})
	waitForCalls(t, sess, 1)

	m.AddBreakpoint(source.Location{Source: srcID, Line: 10, Column: 0})
	waitForCalls(t, sess, 2)

	last := sess.calls[len(sess.calls)-1]
	if len(last.Breakpoints) != 2 {
		t.Fatalf("expected 2 breakpoints in resync request, got %d", len(last.Breakpoints))
	}
	if last.Breakpoints[0].Line != 4 || last.Breakpoints[0].Column != 2 {
		t.Fatalf("expected first breakpoint's request to use the bound actual position 4:2, got %d:%d",
			last.Breakpoints[0].Line, last.Breakpoints[0].Column)
	}
}

func TestHitDetectionEmitsBindingHit(t *testing.T) {
	m := newTestManager()
	srcID := source.FileIdentifier("/tmp/loop.js")
	sess := &fakeSession{
		id:    1,
		hooks: hookable.New(),
		script: []events.SetBreakpointsResponseBody{
			{Breakpoints: []events.BreakpointResult{{ID: 7, Verified: true, Line: 4, Column: 2}}},
		},
	}
	m.RegisterSession(sess)
	m.NotifySourceLoaded(sess.id, srcID)
	m.AddBreakpoint(source.Location{Source: srcID, Line: 3, Column: 0})
	waitForCalls(t, sess, 1)

	deadline := time.Now().Add(time.Second)
	for {
		if _, ok := m.Collections().FindBinding(source.Location{Source: srcID, Line: 3, Column: 0}.String(), sess.id); ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for binding to appear")
		}
		time.Sleep(5 * time.Millisecond)
	}

	hitCh := make(chan breakpoint.HitInfo, 1)
	m.OnBindingHit(func(bd *breakpoint.Binding, info breakpoint.HitInfo) { hitCh <- info })

	sess.hooks.Emit("dap:stopped", events.StoppedBody{
		Reason: "breakpoint", ThreadID: 1, HitBreakpointIDs: []int{7},
	})

	select {
	case info := <-hitCh:
		if info.Line != 4 || info.Column != 2 {
			t.Fatalf("hit info = %+v, want line=4 column=2", info)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for BindingHit")
	}
}

func TestUnregisterSessionDropsBindings(t *testing.T) {
	m := newTestManager()
	srcID := source.FileIdentifier("/tmp/loop.js")
	sess := &fakeSession{
		id:    1,
		hooks: hookable.New(),
		script: []events.SetBreakpointsResponseBody{
			{Breakpoints: []events.BreakpointResult{{ID: 7, Verified: true, Line: 4, Column: 2}}},
		},
	}
	m.RegisterSession(sess)
	m.NotifySourceLoaded(sess.id, srcID)
	bp := m.AddBreakpoint(source.Location{Source: srcID, Line: 3, Column: 0})
	waitForCalls(t, sess, 1)

	deadline := time.Now().Add(time.Second)
	for {
		if _, ok := m.Collections().FindBinding(bp.ID(), sess.id); ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for binding")
		}
		time.Sleep(5 * time.Millisecond)
	}

	m.UnregisterSession(sess.id)
	if _, ok := m.Collections().FindBinding(bp.ID(), sess.id); ok {
		t.Fatal("expected binding to be dropped after UnregisterSession")
	}
}

func TestToggleBreakpointRangeMatch(t *testing.T) {
	m := newTestManager()
	srcID := source.FileIdentifier("/tmp/loop.js")
	sess := &fakeSession{
		id:    1,
		hooks: hookable.New(),
		script: []events.SetBreakpointsResponseBody{
			{Breakpoints: []events.BreakpointResult{{ID: 7, Verified: true, Line: 4, Column: 2}}},
		},
	}
	m.RegisterSession(sess)
	m.NotifySourceLoaded(sess.id, srcID)
	m.AddBreakpoint(source.Location{Source: srcID, Line: 3, Column: 0})
	waitForCalls(t, sess, 1)

	deadline := time.Now().Add(time.Second)
	for {
		if len(m.Collections().All()) > 0 {
			if _, ok := m.Collections().FindBinding(m.Collections().All()[0].ID(), sess.id); ok {
				break
			}
		}
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for binding")
		}
		time.Sleep(5 * time.Millisecond)
	}

	m.ToggleBreakpoint(source.Location{Source: srcID, Line: 3, Column: 5})
	if len(m.Collections().All()) != 0 {
		t.Fatalf("expected toggle to remove the range-matched breakpoint, got %d remaining", len(m.Collections().All()))
	}
}
