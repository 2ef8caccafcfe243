package session

import (
	"context"
	"encoding/json"

	"github.com/joestump/dapclient/internal/dap"
	"github.com/joestump/dapclient/internal/events"
	"github.com/joestump/dapclient/internal/source"
	"github.com/joestump/dapclient/internal/threadstack"
)

// onMessage is the Transport's OnMessage callback: parse one frame and
// route it. Requests/responses go to the Correlator; events are forwarded
// onto the Session's Hookable (after any Session-internal bookkeeping,
// e.g. creating a Thread on first "thread" event, updating the Source
// table on "loadedSource").
func (s *Session) onMessage(raw []byte) {
	msg, err := dap.Decode(raw)
	if err != nil {
		return
	}
	switch msg.Kind {
	case dap.TypeRequest, dap.TypeResponse:
		s.correlator.Receive(context.Background(), msg)
	case dap.TypeEvent:
		s.handleEvent(msg.Event)
	}
}

func (s *Session) handleEvent(ev *dap.Event) {
	switch ev.Event {
	case "initialized":
		s.hooks.Emit(EventInitialized, nil)
		return
	case "stopped":
		var body events.StoppedBody
		_ = json.Unmarshal(ev.Body, &body)
		s.ensureThread(body.ThreadID)
		s.hooks.Emit(EventStopped, body)
		return
	case "continued":
		var body events.ContinuedBody
		_ = json.Unmarshal(ev.Body, &body)
		s.hooks.Emit(EventContinued, body)
		return
	case "thread":
		var body events.ThreadBody
		_ = json.Unmarshal(ev.Body, &body)
		if body.Reason == "started" {
			s.ensureThread(body.ThreadID)
		}
		// Emit before forgetting an exited thread: Thread listens for
		// this same event on s.hooks to self-destroy (emitting its own
		// Exited first) — removing it from the map beforehand would
		// unsubscribe that listener before it ever saw the event.
		s.hooks.Emit(EventThread, body)
		if body.Reason == "exited" {
			s.forgetThread(body.ThreadID)
		}
		return
	case "output":
		var body events.OutputBody
		_ = json.Unmarshal(ev.Body, &body)
		s.hooks.Emit(EventOutput, body)
		return
	case "breakpoint":
		var body events.BreakpointEventBody
		_ = json.Unmarshal(ev.Body, &body)
		s.hooks.Emit(EventBreakpoint, body)
		return
	case "loadedSource":
		var body events.LoadedSourceBody
		_ = json.Unmarshal(ev.Body, &body)
		s.handleLoadedSource(body)
		s.hooks.Emit(EventLoadedSource, body)
		return
	case "terminated":
		var body events.TerminatedBody
		_ = json.Unmarshal(ev.Body, &body)
		s.hooks.Emit(EventTerminated, body)
		s.handleTerminated()
		return
	case "exited":
		var body events.ExitedBody
		_ = json.Unmarshal(ev.Body, &body)
		s.mu.Lock()
		s.exitedReceived = true
		s.mu.Unlock()
		s.hooks.Emit(EventExited, body)
		return
	case "capabilities":
		var body struct {
			Capabilities events.Capabilities `json:"capabilities"`
		}
		_ = json.Unmarshal(ev.Body, &body)
		s.mu.Lock()
		s.capabilities = body.Capabilities
		s.mu.Unlock()
		s.hooks.Emit(EventCapabilities, body.Capabilities)
		return
	case "progressStart":
		s.forwardProgress(EventProgressStart, ev.Body)
		return
	case "progressUpdate":
		s.forwardProgress(EventProgressUpd, ev.Body)
		return
	case "progressEnd":
		s.forwardProgress(EventProgressEnd, ev.Body)
		return
	case "invalidated":
		var body events.InvalidatedBody
		_ = json.Unmarshal(ev.Body, &body)
		s.hooks.Emit(EventInvalidated, body)
		return
	case "memory":
		var body events.MemoryBody
		_ = json.Unmarshal(ev.Body, &body)
		s.hooks.Emit(EventMemory, body)
		return
	case "module":
		var body events.ModuleBody
		_ = json.Unmarshal(ev.Body, &body)
		s.hooks.Emit(EventModule, body)
		return
	case "process":
		var body events.ProcessBody
		_ = json.Unmarshal(ev.Body, &body)
		s.hooks.Emit(EventProcess, body)
		return
	}
}

func (s *Session) forwardProgress(name string, raw json.RawMessage) {
	var body events.ProgressBody
	_ = json.Unmarshal(raw, &body)
	s.hooks.Emit(name, body)
}

func (s *Session) ensureThread(threadID int) *threadstack.Thread {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.threads[threadID]; ok {
		return t
	}
	t := threadstack.New(s.hooks, s.hooks, s.id, threadID, s)
	s.threads[threadID] = t
	return t
}

// forgetThread drops threadID from the session's registry. The Thread
// itself has already destroyed its own Hookable by this point (triggered
// by its own "dap:thread" exited listener), so this just stops the
// session from handing out a reference to a dead Thread.
func (s *Session) forgetThread(threadID int) {
	s.mu.Lock()
	delete(s.threads, threadID)
	s.mu.Unlock()
}

// Thread returns the Thread for threadID, if the session has seen a
// thread-started or stopped event naming it.
func (s *Session) Thread(threadID int) (*threadstack.Thread, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.threads[threadID]
	return t, ok
}

// Threads returns every Thread this session currently tracks.
func (s *Session) Threads() []*threadstack.Thread {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*threadstack.Thread, 0, len(s.threads))
	for _, t := range s.threads {
		out = append(out, t)
	}
	return out
}

func (s *Session) handleLoadedSource(body events.LoadedSourceBody) {
	id := identifierFor(s.id, body.Source)
	descriptor := descriptorFrom(body.Source)

	switch body.Reason {
	case "new":
		s.mu.Lock()
		if _, exists := s.sources[id]; !exists {
			s.sources[id] = source.New(id, descriptor, nil, s.fetchSourceContent, s.fetchBreakpointLocations(id))
		}
		s.mu.Unlock()
	case "changed":
		s.mu.Lock()
		src, exists := s.sources[id]
		if !exists {
			src = source.New(id, descriptor, nil, s.fetchSourceContent, s.fetchBreakpointLocations(id))
			s.sources[id] = src
		} else {
			src.UpdateRef(descriptor)
		}
		s.mu.Unlock()
	case "removed":
		s.mu.Lock()
		delete(s.sources, id)
		s.mu.Unlock()
	}

	if s.bpMgr != nil {
		if body.Reason == "removed" {
			s.bpMgr.NotifySourceUnloaded(s.id, id)
		} else {
			s.bpMgr.NotifySourceLoaded(s.id, id)
		}
	}
}

func identifierFor(sessionID int, desc events.SourceDesc) source.Identifier {
	if desc.SourceReference > 0 {
		return source.VirtualIdentifier(sessionID, desc.SourceReference, stabilityHash(desc))
	}
	return source.FileIdentifier(desc.Path)
}

func stabilityHash(desc events.SourceDesc) string {
	if desc.Origin != "" {
		return desc.Name + "|" + desc.Origin
	}
	return desc.Name
}

func descriptorFrom(desc events.SourceDesc) source.Descriptor {
	out := source.Descriptor{
		Name:             desc.Name,
		Path:             desc.Path,
		SourceReference:  desc.SourceReference,
		PresentationHint: desc.PresentationHint,
		Origin:           desc.Origin,
	}
	for _, cs := range desc.Checksums {
		out.Checksums = append(out.Checksums, source.Checksum{Algorithm: cs.Algorithm, Checksum: cs.Checksum})
	}
	return out
}

func (s *Session) fetchSourceContent(ctx context.Context, sourceReference int) ([]byte, error) {
	var resp events.SourceResponseBody
	if err := s.SendRequest(ctx, "source", map[string]any{"sourceReference": sourceReference}, &resp); err != nil {
		return nil, err
	}
	return []byte(resp.Content), nil
}

func (s *Session) fetchBreakpointLocations(id source.Identifier) source.BreakpointLocationsFetcher {
	return func(ctx context.Context, line int) ([]source.Location, error) {
		if !s.Capabilities().SupportsBreakpointLocationsRequest {
			return nil, nil
		}
		var resp events.BreakpointLocationsResponseBody
		err := s.SendRequest(ctx, "breakpointLocations", map[string]any{
			"source": s.ResolveSource(id), "line": line,
		}, &resp)
		if err != nil {
			return nil, err
		}
		out := make([]source.Location, 0, len(resp.Breakpoints))
		for _, bl := range resp.Breakpoints {
			out = append(out, source.Location{Source: id, Line: bl.Line, Column: bl.Column})
		}
		return out, nil
	}
}

// Sources returns every Source this session currently has loaded.
func (s *Session) Sources() []*source.Source {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*source.Source, 0, len(s.sources))
	for _, src := range s.sources {
		out = append(out, src)
	}
	return out
}

func (s *Session) handleTerminated() {
	s.removeFromParent()
	_ = s.transport.Close()
	s.setState(StateTerminated)
	// Synthesize an exited event only if the adapter never sent a real one;
	// callers that only listen for "exited" still observe session end, but
	// an adapter that sends both must not be reported to them twice.
	s.mu.Lock()
	exited := s.exitedReceived
	s.mu.Unlock()
	if !exited {
		s.hooks.Emit(EventExited, events.ExitedBody{ExitCode: 0})
	}
	if s.bpMgr != nil {
		s.bpMgr.UnregisterSession(s.id)
	}
	s.manager.remove(s.id)
}

func (s *Session) removeFromParent() {
	if s.parent != nil {
		s.parent.removeChild(s.id)
	}
}
