package session

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/joestump/dapclient/internal/dap"
	"github.com/joestump/dapclient/internal/events"
	"github.com/joestump/dapclient/internal/hookable"
	"github.com/joestump/dapclient/internal/transport"
)

// fakeTransport answers requests synchronously from Send, letting a test
// script each command's response. Events are injected with emit.
type fakeTransport struct {
	mu        sync.Mutex
	onMessage transport.OnMessage
	onClose   transport.OnClose
	closed    bool
	script    map[string]func(seq int) (body any, success bool, message string)
	sent      []string
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{script: make(map[string]func(int) (any, bool, string))}
}

func (f *fakeTransport) Start(onMessage transport.OnMessage, onClose transport.OnClose) error {
	f.mu.Lock()
	f.onMessage = onMessage
	f.onClose = onClose
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) Send(raw []byte) error {
	f.mu.Lock()
	f.sent = append(f.sent, string(raw))
	f.mu.Unlock()

	msg, err := dap.Decode(raw)
	if err != nil || msg.Kind != dap.TypeRequest {
		return nil
	}
	req := msg.Request

	f.mu.Lock()
	fn, ok := f.script[req.Command]
	f.mu.Unlock()
	if !ok {
		fn = func(int) (any, bool, string) { return nil, true, "" }
	}

	go func() {
		body, success, message := fn(req.Seq)
		resp, _ := dap.NewResponse(req.Seq, req.Command, success, body, message)
		out, _ := json.Marshal(resp)
		f.mu.Lock()
		cb := f.onMessage
		f.mu.Unlock()
		if cb != nil {
			cb(out)
		}
	}()
	return nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeTransport) emitEvent(name string, body any) {
	raw, _ := json.Marshal(body)
	ev := dap.Event{Type: dap.TypeEvent, Event: name, Body: raw}
	out, _ := json.Marshal(ev)
	f.mu.Lock()
	cb := f.onMessage
	f.mu.Unlock()
	if cb != nil {
		cb(out)
	}
}

func basicTransport(caps events.Capabilities) *fakeTransport {
	tr := newFakeTransport()
	tr.script["initialize"] = func(seq int) (any, bool, string) {
		go tr.emitEvent("initialized", nil)
		return caps, true, ""
	}
	tr.script["launch"] = func(seq int) (any, bool, string) { return nil, true, "" }
	return tr
}

// fakeDialer returns a Dialer that opens a fresh basicTransport per call,
// standing in for a real adapter connection in tests that exercise
// startDebugging child spawning.
func fakeDialer(caps events.Capabilities) Dialer {
	return func(ctx context.Context) (transport.Transport, error) {
		return basicTransport(caps), nil
	}
}

func TestStartReachesReadyInitializedAfterLaunch(t *testing.T) {
	mgr := NewManager()
	tr := basicTransport(events.Capabilities{SupportsConfigurationDoneRequest: true})

	s := New(mgr, nil, nil, tr, LaunchConfig{Request: "launch"}, time.Second, 5, nil)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if s.State() != StateReady {
		t.Fatalf("expected StateReady, got %s", s.State())
	}
	if s.ID() == 0 {
		t.Fatalf("expected a nonzero registry id")
	}
}

func TestStartInitializedBeforeLaunchResponse(t *testing.T) {
	mgr := NewManager()
	tr := newFakeTransport()
	launchGate := make(chan struct{})
	tr.script["initialize"] = func(seq int) (any, bool, string) {
		tr.emitEvent("initialized", nil)
		return events.Capabilities{}, true, ""
	}
	tr.script["launch"] = func(seq int) (any, bool, string) {
		<-launchGate
		return nil, true, ""
	}

	s := New(mgr, nil, nil, tr, LaunchConfig{Request: "launch"}, 2*time.Second, 5, nil)
	done := make(chan error, 1)
	go func() { done <- s.Start(context.Background()) }()

	time.Sleep(20 * time.Millisecond)
	if s.State() != StateConfigDoneSent && s.State() != StateInitialized {
		t.Fatalf("expected configuration to have run while launch is pending, got %s", s.State())
	}
	close(launchGate)

	if err := <-done; err != nil {
		t.Fatalf("Start: %v", err)
	}
	if s.State() != StateReady {
		t.Fatalf("expected StateReady, got %s", s.State())
	}
}

func TestStartFailsOnAdapterError(t *testing.T) {
	mgr := NewManager()
	tr := newFakeTransport()
	tr.script["initialize"] = func(seq int) (any, bool, string) {
		return nil, false, "adapter refused"
	}

	s := New(mgr, nil, nil, tr, LaunchConfig{Request: "launch"}, time.Second, 5, nil)
	if err := s.Start(context.Background()); err == nil {
		t.Fatal("expected Start to fail")
	}
	if s.State() != StateTerminated {
		t.Fatalf("expected StateTerminated after failed start, got %s", s.State())
	}
	if _, ok := mgr.Get(s.ID()); ok {
		t.Fatal("expected the manager to have removed the session after a failed start")
	}
}

func TestStartDebuggingSpawnsChildWithinDepthLimit(t *testing.T) {
	mgr := NewManager()
	tr := basicTransport(events.Capabilities{})

	s := New(mgr, nil, nil, tr, LaunchConfig{Request: "launch"}, time.Second, 1, fakeDialer(events.Capabilities{}))
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	childAdded := make(chan *Session, 1)
	s.Hooks().On(EventChildAdded, func(payload any) hookable.CleanupFunc {
		if child, ok := payload.(*Session); ok {
			childAdded <- child
		}
		return nil
	})

	args := events.StartDebuggingArgs{Request: "launch", Configuration: map[string]any{"program": "x"}}
	raw, _ := json.Marshal(args)
	req := &dap.Request{Type: dap.TypeRequest, Seq: 99, Command: "startDebugging", Arguments: raw}
	out, _ := json.Marshal(req)
	tr.onMessage(out)

	select {
	case child := <-childAdded:
		if child.Depth() != s.Depth()+1 {
			t.Fatalf("expected child depth %d, got %d", s.Depth()+1, child.Depth())
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for child session")
	}
}

func TestStartDebuggingRejectsBeyondMaxDepth(t *testing.T) {
	mgr := NewManager()
	tr := basicTransport(events.Capabilities{})

	s := New(mgr, nil, nil, tr, LaunchConfig{Request: "launch"}, time.Second, 0, nil)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	args := events.StartDebuggingArgs{Request: "launch", Configuration: map[string]any{}}
	raw, _ := json.Marshal(args)
	req := &dap.Request{Type: dap.TypeRequest, Seq: 5, Command: "startDebugging"}
	req.Arguments = raw
	reqBytes, _ := json.Marshal(req)
	tr.onMessage(reqBytes)

	time.Sleep(20 * time.Millisecond)
	if len(s.Children()) != 0 {
		t.Fatalf("expected no children spawned beyond max depth, got %d", len(s.Children()))
	}
}

func TestRunInTerminalDelegatesToHandler(t *testing.T) {
	mgr := NewManager()
	tr := basicTransport(events.Capabilities{})

	called := make(chan events.RunInTerminalArgs, 1)
	launch := LaunchConfig{
		Request: "launch",
		RunInTerminal: func(ctx context.Context, args events.RunInTerminalArgs) (events.RunInTerminalResponseBody, error) {
			called <- args
			return events.RunInTerminalResponseBody{ProcessID: 123}, nil
		},
	}
	s := New(mgr, nil, nil, tr, launch, time.Second, 5, nil)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	args := events.RunInTerminalArgs{Kind: "integrated", Cwd: "/tmp", Args: []string{"prog"}}
	raw, _ := json.Marshal(args)
	req := &dap.Request{Type: dap.TypeRequest, Seq: 7, Command: "runInTerminal", Arguments: raw}
	reqBytes, _ := json.Marshal(req)
	tr.onMessage(reqBytes)

	select {
	case got := <-called:
		if got.Cwd != "/tmp" {
			t.Fatalf("unexpected args: %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for runInTerminal delegation")
	}
}

func TestTerminatedEventTearsDownSession(t *testing.T) {
	mgr := NewManager()
	tr := basicTransport(events.Capabilities{})

	s := New(mgr, nil, nil, tr, LaunchConfig{Request: "launch"}, time.Second, 5, nil)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	exited := make(chan events.ExitedBody, 1)
	s.Hooks().On(EventExited, func(payload any) hookable.CleanupFunc {
		if body, ok := payload.(events.ExitedBody); ok {
			exited <- body
		}
		return nil
	})

	tr.emitEvent("terminated", events.TerminatedBody{})

	select {
	case <-exited:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for synthesized exited event")
	}
	if s.State() != StateTerminated {
		t.Fatalf("expected StateTerminated, got %s", s.State())
	}
	if _, ok := mgr.Get(s.ID()); ok {
		t.Fatal("expected manager to drop the session on terminate")
	}
}

func TestDisconnectCascadesToChildrenFirst(t *testing.T) {
	mgr := NewManager()
	tr := basicTransport(events.Capabilities{})

	parent := New(mgr, nil, nil, tr, LaunchConfig{Request: "launch"}, time.Second, 5, nil)
	if err := parent.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	child := New(mgr, nil, parent, basicTransport(events.Capabilities{}), LaunchConfig{Request: "launch"}, time.Second, 5, nil)
	if err := child.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if err := parent.Disconnect(context.Background(), false); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	if _, ok := mgr.Get(child.ID()); ok {
		t.Fatal("expected child to be torn down along with its parent")
	}
	if len(parent.Children()) != 0 {
		t.Fatalf("expected parent to have dropped its children, got %d", len(parent.Children()))
	}
}

func TestManagerReparentsOrphanedChildren(t *testing.T) {
	mgr := NewManager()
	tr := basicTransport(events.Capabilities{})

	root := New(mgr, nil, nil, tr, LaunchConfig{Request: "launch"}, time.Second, 5, nil)
	if err := root.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	mid := New(mgr, nil, root, tr, LaunchConfig{Request: "launch"}, time.Second, 5, nil)
	if err := mid.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	leaf := New(mgr, nil, mid, tr, LaunchConfig{Request: "launch"}, time.Second, 5, nil)
	if err := leaf.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	mgr.remove(mid.ID())

	if leaf.Parent() != root {
		t.Fatalf("expected leaf to be reparented to root after mid was removed")
	}
	found := false
	for _, c := range root.Children() {
		if c.ID() == leaf.ID() {
			found = true
		}
	}
	if !found {
		t.Fatal("expected root to list leaf among its children after reparenting")
	}
}

func TestStartTimesOutWhenAdapterNeverResponds(t *testing.T) {
	mgr := NewManager()
	tr := newFakeTransport()
	// No scripted response for "initialize": Send still succeeds but the
	// default handler replies immediately, so instead block entirely by
	// never invoking the callback.
	tr.script["initialize"] = func(seq int) (any, bool, string) {
		select {} // never responds
	}

	s := New(mgr, nil, nil, tr, LaunchConfig{Request: "launch"}, 30*time.Millisecond, 5, nil)
	err := s.Start(context.Background())
	if err == nil {
		t.Fatal("expected Start to time out")
	}
	if s.State() != StateTerminated {
		t.Fatalf("expected StateTerminated after timeout, got %s", s.State())
	}
}
