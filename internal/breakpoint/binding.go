package breakpoint

import (
	"sync"

	"github.com/joestump/dapclient/internal/hookable"
)

// Event names emitted on a Binding's own Hookable.
const (
	EventBindingBound   = "BindingBound"
	EventBindingHit     = "BindingHit"
	EventBindingUnbound = "BindingUnbound"
)

// HitInfo is the payload BindingHit carries.
type HitInfo struct {
	SourceID string // source.Identifier.String(), avoids an import cycle through source
	Line     int
	Column   int
}

// Binding is the verified projection of a Breakpoint within one Session.
// A Binding exists only after the adapter has confirmed the breakpoint;
// Verified is always true for any observable Binding — there is no
// "pending" state.
type Binding struct {
	mu sync.Mutex

	breakpoint *Breakpoint
	sessionID  int
	adapterID  int

	requestedLine, requestedColumn int
	actualLine, actualColumn       int

	hooks *hookable.Hookable
}

// newBinding constructs a Binding as a child of breakpoint's Hookable, so
// destroying the Breakpoint also destroys every Binding registered
// against it.
func newBinding(breakpoint *Breakpoint, sessionID, adapterID int, reqLine, reqCol, actLine, actCol int) *Binding {
	return &Binding{
		breakpoint:      breakpoint,
		sessionID:       sessionID,
		adapterID:       adapterID,
		requestedLine:   reqLine,
		requestedColumn: reqCol,
		actualLine:      actLine,
		actualColumn:    actCol,
		hooks:           hookable.Create(breakpoint.Hooks()),
	}
}

// Bind constructs a new verified Binding for (bp, sessionID) and emits
// BindingBound. Called by BreakpointManager's reconcile step when a
// setBreakpoints response confirms a Breakpoint it had no prior Binding
// for.
func Bind(bp *Breakpoint, sessionID, adapterID, reqLine, reqCol, actLine, actCol int) *Binding {
	bd := newBinding(bp, sessionID, adapterID, reqLine, reqCol, actLine, actCol)
	bd.emitBound()
	return bd
}

// Rebind refreshes an existing Binding from a subsequent setBreakpoints
// response and re-emits BindingBound.
func (bd *Binding) Rebind(adapterID, reqLine, reqCol, actLine, actCol int) {
	bd.update(adapterID, reqLine, reqCol, actLine, actCol)
	bd.emitBound()
}

// NotifyHit is called by BreakpointManager when a stopped event's
// hitBreakpointIds resolves to this Binding; it emits BindingHit.
func (bd *Binding) NotifyHit(sourceID string, line, column int) {
	bd.emitHit(sourceID, line, column)
}

func (bd *Binding) Breakpoint() *Breakpoint { return bd.breakpoint }
func (bd *Binding) SessionID() int          { return bd.sessionID }
func (bd *Binding) AdapterID() int {
	bd.mu.Lock()
	defer bd.mu.Unlock()
	return bd.adapterID
}

// Verified is always true: no unverified Binding is ever constructed.
func (bd *Binding) Verified() bool { return true }

func (bd *Binding) RequestedPosition() (line, column int) {
	bd.mu.Lock()
	defer bd.mu.Unlock()
	return bd.requestedLine, bd.requestedColumn
}

func (bd *Binding) ActualPosition() (line, column int) {
	bd.mu.Lock()
	defer bd.mu.Unlock()
	return bd.actualLine, bd.actualColumn
}

// update refreshes a Binding in place from a subsequent setBreakpoints
// response for the same (breakpoint, session) pair, replacing the
// adapter-assigned id and the requested/actual positions with the
// response's values.
func (bd *Binding) update(adapterID, reqLine, reqCol, actLine, actCol int) {
	bd.mu.Lock()
	bd.adapterID = adapterID
	bd.requestedLine = reqLine
	bd.requestedColumn = reqCol
	bd.actualLine = actLine
	bd.actualColumn = actCol
	bd.mu.Unlock()
}

// Hooks returns this Binding's Hookable.
func (bd *Binding) Hooks() *hookable.Hookable { return bd.hooks }

func (bd *Binding) emitBound() { bd.hooks.Emit(EventBindingBound, bd) }

// emitHit is called by BreakpointManager when a stopped event's
// hitBreakpointIds resolves to this Binding.
func (bd *Binding) emitHit(sourceID string, line, column int) {
	bd.hooks.Emit(EventBindingHit, HitInfo{SourceID: sourceID, Line: line, Column: column})
}

// destroy emits BindingUnbound and tears down this Binding's Hookable.
func (bd *Binding) destroy() {
	bd.hooks.Emit(EventBindingUnbound, bd)
	bd.hooks.Destroy()
}
