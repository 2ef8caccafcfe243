package threadstack

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/joestump/dapclient/internal/events"
	"github.com/joestump/dapclient/internal/hookable"
)

// fakeSender is a RequestSender stub keyed by command name, used to drive
// Thread/Stack/Frame/Scope/Variable fetches without a real adapter.
type fakeSender struct {
	responses map[string]any
	calls     []string
}

func (f *fakeSender) SendRequest(ctx context.Context, command string, arguments, out any) error {
	f.calls = append(f.calls, command)
	resp, ok := f.responses[command]
	if !ok || out == nil {
		return nil
	}
	raw, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

func TestThreadStopEmitsAndBuildsStack(t *testing.T) {
	root := hookable.New()
	sessionHooks := hookable.New()
	sender := &fakeSender{responses: map[string]any{
		"stackTrace": events.StackTraceResponseBody{
			StackFrames: []events.StackFrameDesc{{ID: 1, Name: "main", Line: 10, Column: 1}},
		},
	}}

	thread := New(root, sessionHooks, 1, 7, sender)

	var gotStopped bool
	thread.Hooks().On(EventStopped, func(payload any) hookable.CleanupFunc {
		gotStopped = true
		return nil
	})

	sessionHooks.Emit(eventStoppedDAP, events.StoppedBody{Reason: "breakpoint", ThreadID: 7})

	if !gotStopped {
		t.Fatal("expected stopped listener to fire")
	}
	if !thread.Stopped() {
		t.Fatal("expected thread to be stopped")
	}
	if thread.Reason() != "breakpoint" {
		t.Fatalf("reason = %q", thread.Reason())
	}

	frames, err := thread.Stack().Frames(context.Background())
	if err != nil {
		t.Fatalf("Frames: %v", err)
	}
	if len(frames) != 1 || frames[0].Name() != "main" {
		t.Fatalf("unexpected frames: %+v", frames)
	}

	// Second call to Frames must not re-fetch.
	if _, err := thread.Stack().Frames(context.Background()); err != nil {
		t.Fatalf("Frames (cached): %v", err)
	}
	count := 0
	for _, c := range sender.calls {
		if c == "stackTrace" {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("expected exactly one stackTrace call, got %d", count)
	}
}

func TestThreadIgnoresOtherThreadStop(t *testing.T) {
	root := hookable.New()
	sessionHooks := hookable.New()
	sender := &fakeSender{}
	thread := New(root, sessionHooks, 1, 7, sender)

	sessionHooks.Emit(eventStoppedDAP, events.StoppedBody{Reason: "breakpoint", ThreadID: 99})

	if thread.Stopped() {
		t.Fatal("thread for id=7 should ignore a stop for threadId=99")
	}
}

func TestThreadResumeInvalidatesStack(t *testing.T) {
	root := hookable.New()
	sessionHooks := hookable.New()
	sender := &fakeSender{responses: map[string]any{
		"stackTrace": events.StackTraceResponseBody{StackFrames: []events.StackFrameDesc{{ID: 1}}},
	}}
	thread := New(root, sessionHooks, 1, 7, sender)
	sessionHooks.Emit(eventStoppedDAP, events.StoppedBody{ThreadID: 7, Reason: "step"})

	var gotResumed bool
	thread.Hooks().On(EventResumed, func(payload any) hookable.CleanupFunc {
		gotResumed = true
		return nil
	})

	sessionHooks.Emit(eventContinuedDAP, events.ContinuedBody{ThreadID: 7})

	if !gotResumed {
		t.Fatal("expected resumed listener to fire")
	}
	if thread.Stopped() {
		t.Fatal("thread should no longer be stopped")
	}
	if thread.Stack() != nil {
		t.Fatal("stack should be discarded on resume")
	}
}

func TestThreadAllThreadsContinued(t *testing.T) {
	root := hookable.New()
	sessionHooks := hookable.New()
	thread := New(root, sessionHooks, 1, 7, &fakeSender{})
	sessionHooks.Emit(eventStoppedDAP, events.StoppedBody{ThreadID: 7})

	sessionHooks.Emit(eventContinuedDAP, events.ContinuedBody{AllThreadsContinued: true})

	if thread.Stopped() {
		t.Fatal("allThreadsContinued should resume every thread")
	}
}

func TestVariableResolveLazySingleChild(t *testing.T) {
	sender := &fakeSender{responses: map[string]any{
		"variables": events.VariablesResponseBody{
			Variables: []events.VariableDesc{{Name: "0", Value: "42", Type: "int"}},
		},
	}}
	v := newVariable(sender, events.VariableDesc{
		Name:               "x",
		Value:              "<lazy>",
		VariablesReference: 5,
		PresentationHint:   &events.VariablePresentationHint{Lazy: true},
	})

	if !v.Lazy() {
		t.Fatal("expected variable to report Lazy")
	}
	if err := v.Resolve(context.Background()); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if v.Value() != "42" {
		t.Fatalf("Value = %q, want 42", v.Value())
	}
}

func TestFrameScopesAndVariables(t *testing.T) {
	sender := &fakeSender{responses: map[string]any{
		"scopes": events.ScopesResponseBody{
			Scopes: []events.ScopeDesc{{Name: "Locals", PresentationHint: ScopeLocals, VariablesReference: 3}},
		},
		"variables": events.VariablesResponseBody{
			Variables: []events.VariableDesc{{Name: "n", Value: "1"}},
		},
	}}
	frame := newFrame(sender, events.StackFrameDesc{ID: 2, Name: "foo"})

	scopes, err := frame.Scopes(context.Background())
	if err != nil {
		t.Fatalf("Scopes: %v", err)
	}
	if len(scopes) != 1 || scopes[0].Name() != "Locals" {
		t.Fatalf("unexpected scopes: %+v", scopes)
	}

	vars, err := scopes[0].Variables(context.Background())
	if err != nil {
		t.Fatalf("Variables: %v", err)
	}
	if len(vars) != 1 || vars[0].Name() != "n" {
		t.Fatalf("unexpected variables: %+v", vars)
	}
}
