package session

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Disconnect recursively disconnects children first (concurrently, since
// each sibling session owns its own transport), then
// sends a disconnect request, then closes the transport. terminateDebuggee
// controls whether the adapter should kill the debuggee process too.
func (s *Session) Disconnect(ctx context.Context, terminateDebuggee bool) error {
	var g errgroup.Group
	for _, child := range s.Children() {
		child := child
		g.Go(func() error { return child.Disconnect(ctx, terminateDebuggee) })
	}
	_ = g.Wait()

	err := s.SendRequest(ctx, "disconnect", map[string]any{
		"terminateDebuggee": terminateDebuggee,
	}, nil)

	return s.teardown(err)
}

// Terminate recursively terminates children (concurrently), then — if the
// adapter advertises support — sends a terminate request, followed in all
// cases by a disconnect request with terminateDebuggee=true, then closes
// the transport. The trailing disconnect is not a fallback for adapters
// without the terminate capability; it runs after terminate too, per
// SPEC_FULL.md §4.5.
func (s *Session) Terminate(ctx context.Context) error {
	var g errgroup.Group
	for _, child := range s.Children() {
		child := child
		g.Go(func() error { return child.Terminate(ctx) })
	}
	_ = g.Wait()

	var err error
	if s.Capabilities().SupportsTerminateRequest {
		err = s.SendRequest(ctx, "terminate", nil, nil)
	}
	if dErr := s.SendRequest(ctx, "disconnect", map[string]any{"terminateDebuggee": true}, nil); err == nil {
		err = dErr
	}

	return s.teardown(err)
}

// teardown closes the transport, detaches from the parent, removes the
// session from its registry, and unregisters it from the shared
// BreakpointManager. Safe to call more than once (Close and the registry
// removal are both idempotent).
func (s *Session) teardown(cause error) error {
	s.removeFromParent()
	closeErr := s.transport.Close()
	s.setState(StateTerminated)
	if s.bpMgr != nil {
		s.bpMgr.UnregisterSession(s.id)
	}
	s.manager.remove(s.id)
	if cause != nil {
		return cause
	}
	return closeErr
}
