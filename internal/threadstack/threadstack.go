// Package threadstack models the per-thread stopped/running state a
// Session exposes once an adapter reports a stop: Thread, its Stack of
// Frames, each Frame's Scopes, and each Scope's lazily-resolved Variables.
// The whole graph invalidates on the thread's next resume or exit, per
// SPEC_FULL.md §4.7.
package threadstack

import (
	"context"
	"sync"

	"github.com/joestump/dapclient/internal/dapclienterr"
	"github.com/joestump/dapclient/internal/events"
	"github.com/joestump/dapclient/internal/hookable"
)

// RequestSender is the narrow seam Thread/Stack/Variable need from the
// owning Session: send a request, block for the response. Defined here
// (rather than importing internal/session) so this package has no
// dependency on session and session can depend on it instead.
type RequestSender interface {
	SendRequest(ctx context.Context, command string, arguments, out any) error
}

// Stepping granularities accepted by stepIn/stepOver/stepOut.
const (
	GranularityStatement = "statement"
	GranularityLine      = "line"
	GranularityInstruction = "instruction"
)

// Thread lifecycle events, emitted on its own Hookable.
const (
	EventStopped  = "stopped"
	EventResumed  = "resumed"
	EventExited   = "exited"
)

// Thread tracks one DAP thread's run state and, while stopped, its call
// stack. It is invalidated (stack torn down) the instant the thread
// resumes or exits; invalidation runs as a priority listener on the
// session's Hookable so it always completes before any externally
// registered listener observes the same stopped/continued event.
type Thread struct {
	mu        sync.Mutex
	id        int
	sessionID int
	sender    RequestSender
	hooks     *hookable.Hookable

	stopped bool
	reason  string
	stack   *Stack

	unsubscribe []hookable.DisposeFunc
}

// New creates a Thread bound to id, listening for stopped/continued/
// thread events scoped to id on sessionHooks. parentHooks becomes the
// parent of the Thread's own Hookable (typically the owning Session's
// child registry Hookable), so destroying the session tears the thread
// down too.
func New(parentHooks, sessionHooks *hookable.Hookable, sessionID, id int, sender RequestSender) *Thread {
	t := &Thread{
		id:        id,
		sessionID: sessionID,
		sender:    sender,
		hooks:     hookable.Create(parentHooks),
	}

	t.unsubscribe = append(t.unsubscribe, sessionHooks.On(eventStoppedDAP, func(payload any) hookable.CleanupFunc {
		body, ok := payload.(events.StoppedBody)
		if !ok || (!body.AllThreadsStopped && body.ThreadID != id) {
			return nil
		}
		t.handleStopped(body)
		return nil
	}, hookable.WithPriority(1000), hookable.WithName("threadstack.invalidate.stopped")))

	t.unsubscribe = append(t.unsubscribe, sessionHooks.On(eventContinuedDAP, func(payload any) hookable.CleanupFunc {
		body, ok := payload.(events.ContinuedBody)
		if !ok || (!body.AllThreadsContinued && body.ThreadID != id) {
			return nil
		}
		t.handleResumed()
		return nil
	}, hookable.WithPriority(1000), hookable.WithName("threadstack.invalidate.continued")))

	t.unsubscribe = append(t.unsubscribe, sessionHooks.On(eventThreadDAP, func(payload any) hookable.CleanupFunc {
		body, ok := payload.(events.ThreadBody)
		if !ok || body.ThreadID != id || body.Reason != "exited" {
			return nil
		}
		t.handleExited()
		return nil
	}, hookable.WithPriority(1000), hookable.WithName("threadstack.invalidate.thread")))

	return t
}

// DAP event names forwarded onto a session's Hookable. Defined locally to
// avoid a dependency on the session package for three string constants.
const (
	eventStoppedDAP   = "dap:stopped"
	eventContinuedDAP = "dap:continued"
	eventThreadDAP    = "dap:thread"
)

// ID returns the DAP threadId.
func (t *Thread) ID() int { return t.id }

// Stopped reports whether the thread is currently stopped.
func (t *Thread) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

// Reason returns the stop reason ("breakpoint", "step", "exception", ...)
// of the most recent stop, or "" if the thread is running.
func (t *Thread) Reason() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.reason
}

// Stack returns the thread's current call stack, or nil if it is running.
// Fetching frames lazily happens on first access via Stack.Frames.
func (t *Thread) Stack() *Stack {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stack
}

// Hooks exposes the Thread's own Hookable for stopped/resumed/exited
// subscriptions.
func (t *Thread) Hooks() *hookable.Hookable { return t.hooks }

func (t *Thread) handleStopped(body events.StoppedBody) {
	t.mu.Lock()
	t.stopped = true
	t.reason = body.Reason
	t.stack = newStack(t.sender, t.sessionID, t.id)
	t.mu.Unlock()
	t.hooks.Emit(EventStopped, body)
}

func (t *Thread) handleResumed() {
	t.mu.Lock()
	wasStopped := t.stopped
	t.stopped = false
	t.reason = ""
	t.stack = nil
	t.mu.Unlock()
	if wasStopped {
		t.hooks.Emit(EventResumed, nil)
	}
}

func (t *Thread) handleExited() {
	t.mu.Lock()
	t.stopped = false
	t.stack = nil
	t.mu.Unlock()
	t.hooks.Emit(EventExited, nil)
	t.Destroy()
}

// Destroy unsubscribes from the session Hookable and destroys the
// Thread's own Hookable tree.
func (t *Thread) Destroy() {
	for _, d := range t.unsubscribe {
		d()
	}
	t.hooks.Destroy()
}

// pause sends a pause request for this thread.
func (t *Thread) Pause(ctx context.Context) error {
	return t.sender.SendRequest(ctx, "pause", map[string]any{"threadId": t.id}, nil)
}

// Continue resumes this thread (or all threads, per adapter behavior).
func (t *Thread) Continue(ctx context.Context) error {
	var out struct {
		AllThreadsContinued bool `json:"allThreadsContinued"`
	}
	return t.sender.SendRequest(ctx, "continue", map[string]any{"threadId": t.id}, &out)
}

// StepIn steps into the next call, if any, at the given granularity ("" uses the adapter default).
func (t *Thread) StepIn(ctx context.Context, granularity string) error {
	return t.step(ctx, "stepIn", granularity)
}

// StepOver steps over the current line/statement.
func (t *Thread) StepOver(ctx context.Context, granularity string) error {
	return t.step(ctx, "next", granularity)
}

// StepOut steps out of the current frame.
func (t *Thread) StepOut(ctx context.Context, granularity string) error {
	return t.step(ctx, "stepOut", granularity)
}

func (t *Thread) step(ctx context.Context, command, granularity string) error {
	args := map[string]any{"threadId": t.id}
	if granularity != "" {
		args["granularity"] = granularity
	}
	return t.sender.SendRequest(ctx, command, args, nil)
}

// Stack is the lazily-populated call stack of a stopped thread. Frames
// are fetched once on first Frames() call and cached until the thread
// resumes (the owning Thread discards the whole Stack on resume/exit,
// so there is no separate per-Stack invalidation path).
type Stack struct {
	mu        sync.Mutex
	sender    RequestSender
	sessionID int
	threadID  int
	fetched   bool
	frames    []*Frame
	err       error
}

func newStack(sender RequestSender, sessionID, threadID int) *Stack {
	return &Stack{sender: sender, sessionID: sessionID, threadID: threadID}
}

// Frames returns the thread's call stack, fetching it from the adapter on
// first call and caching the result thereafter.
func (s *Stack) Frames(ctx context.Context) ([]*Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fetched {
		return s.frames, s.err
	}
	s.fetched = true

	var resp events.StackTraceResponseBody
	err := s.sender.SendRequest(ctx, "stackTrace", map[string]any{"threadId": s.threadID}, &resp)
	if err != nil {
		s.err = err
		return nil, err
	}
	frames := make([]*Frame, 0, len(resp.StackFrames))
	for _, fd := range resp.StackFrames {
		frames = append(frames, newFrame(s.sender, fd))
	}
	s.frames = frames
	return frames, nil
}

// Frame is one entry of a stopped thread's call stack.
type Frame struct {
	sender RequestSender
	desc   events.StackFrameDesc

	mu         sync.Mutex
	fetched    bool
	scopes     []*Scope
	scopesErr  error
}

func newFrame(sender RequestSender, desc events.StackFrameDesc) *Frame {
	return &Frame{sender: sender, desc: desc}
}

// ID returns the frame's DAP frameId, used as the scopes request's frameId.
func (f *Frame) ID() int { return f.desc.ID }

// Name returns the frame's display name (function name, typically).
func (f *Frame) Name() string { return f.desc.Name }

// Line and Column return the frame's current source position.
func (f *Frame) Line() int   { return f.desc.Line }
func (f *Frame) Column() int { return f.desc.Column }

// Source returns the frame's source descriptor, which may be a file path
// or a sourceReference into adapter-held virtual content.
func (f *Frame) Source() events.SourceDesc { return f.desc.Source }

// Scopes fetches (once) and returns the frame's variable scopes.
func (f *Frame) Scopes(ctx context.Context) ([]*Scope, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetched {
		return f.scopes, f.scopesErr
	}
	f.fetched = true

	var resp events.ScopesResponseBody
	if err := f.sender.SendRequest(ctx, "scopes", map[string]any{"frameId": f.desc.ID}, &resp); err != nil {
		f.scopesErr = err
		return nil, err
	}
	scopes := make([]*Scope, 0, len(resp.Scopes))
	for _, sd := range resp.Scopes {
		scopes = append(scopes, newScope(f.sender, sd))
	}
	f.scopes = scopes
	return scopes, nil
}

// Scope presentation hints, matched against ScopeDesc.PresentationHint.
const (
	ScopeLocals    = "locals"
	ScopeArguments = "arguments"
	ScopeRegisters = "registers"
	ScopeGlobals   = "globals"
)

// Scope is one named variable scope of a Frame (locals, arguments,
// registers, or an adapter-defined generic scope).
type Scope struct {
	sender RequestSender
	desc   events.ScopeDesc

	mu        sync.Mutex
	fetched   bool
	variables []*Variable
	err       error
}

func newScope(sender RequestSender, desc events.ScopeDesc) *Scope {
	return &Scope{sender: sender, desc: desc}
}

// Name returns the scope's display name.
func (s *Scope) Name() string { return s.desc.Name }

// Kind returns the scope's presentation hint (locals/arguments/registers/
// an adapter-defined value), or "" if the adapter did not provide one.
func (s *Scope) Kind() string { return s.desc.PresentationHint }

// Expensive reports whether the adapter flagged this scope as costly to
// fetch (e.g. a large globals table) — callers may defer fetching it.
func (s *Scope) Expensive() bool { return s.desc.Expensive }

// Variables fetches (once) and returns the scope's top-level variables.
func (s *Scope) Variables(ctx context.Context) ([]*Variable, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fetched {
		return s.variables, s.err
	}
	s.fetched = true

	if s.desc.VariablesReference == 0 {
		return nil, nil
	}
	vars, err := fetchVariables(ctx, s.sender, s.desc.VariablesReference)
	if err != nil {
		s.err = err
		return nil, err
	}
	s.variables = vars
	return vars, nil
}

// Variable is one variable or compound-value member. A Variable with a
// non-zero VariablesReference has children, fetched lazily via Children.
// A Variable flagged Lazy in its presentation hint requires an explicit
// Resolve call before Value reflects the adapter's evaluated value — some
// adapters report a placeholder string until then.
type Variable struct {
	sender RequestSender
	desc   events.VariableDesc

	mu       sync.Mutex
	resolved bool
	children []*Variable
	childErr error
}

func newVariable(sender RequestSender, desc events.VariableDesc) *Variable {
	return &Variable{sender: sender, desc: desc}
}

// Name returns the variable's name.
func (v *Variable) Name() string { return v.desc.Name }

// Value returns the variable's display value. For a Lazy variable this may
// be a placeholder until Resolve is called.
func (v *Variable) Value() string { return v.desc.Value }

// Type returns the variable's declared or runtime type, if the adapter
// supplied one.
func (v *Variable) Type() string { return v.desc.Type }

// Lazy reports whether the adapter marked this variable as requiring an
// explicit Resolve before its Value is meaningful.
func (v *Variable) Lazy() bool {
	return v.desc.PresentationHint != nil && v.desc.PresentationHint.Lazy
}

// HasChildren reports whether Children would return a non-empty slice.
func (v *Variable) HasChildren() bool { return v.desc.VariablesReference != 0 }

// Children fetches (once) and returns this variable's child variables —
// struct fields, array/slice elements, or map entries, depending on what
// the adapter reports. Some adapters answer a single-element variables
// response for a scalar Lazy variable rather than exposing real children;
// callers needing the resolved scalar value should call Resolve, not
// Children, in that case.
func (v *Variable) Children(ctx context.Context) ([]*Variable, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.resolved {
		return v.children, v.childErr
	}
	v.resolved = true
	if v.desc.VariablesReference == 0 {
		return nil, nil
	}
	children, err := fetchVariables(ctx, v.sender, v.desc.VariablesReference)
	if err != nil {
		v.childErr = err
		return nil, err
	}
	v.children = children
	return children, nil
}

// Resolve forces a fresh variables fetch for a Lazy variable and updates
// Value/Type from the result. Per the DAP spec a lazy variable's real
// value is obtained by fetching its (single) child and using that child's
// value; adapters that instead return a fully-formed value without any
// child leave desc unchanged.
func (v *Variable) Resolve(ctx context.Context) error {
	if !v.Lazy() {
		return nil
	}
	if v.desc.VariablesReference == 0 {
		return dapclienterr.Protocol("lazy variable has no variablesReference to resolve")
	}
	children, err := fetchVariables(ctx, v.sender, v.desc.VariablesReference)
	if err != nil {
		return err
	}
	if len(children) == 1 {
		v.mu.Lock()
		v.desc.Value = children[0].desc.Value
		v.desc.Type = children[0].desc.Type
		v.desc.VariablesReference = children[0].desc.VariablesReference
		v.mu.Unlock()
	}
	return nil
}

func fetchVariables(ctx context.Context, sender RequestSender, variablesReference int) ([]*Variable, error) {
	var resp events.VariablesResponseBody
	if err := sender.SendRequest(ctx, "variables", map[string]any{"variablesReference": variablesReference}, &resp); err != nil {
		return nil, err
	}
	out := make([]*Variable, 0, len(resp.Variables))
	for _, vd := range resp.Variables {
		out = append(out, newVariable(sender, vd))
	}
	return out, nil
}
