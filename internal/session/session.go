// Package session implements one adapter conversation end-to-end: the
// initialize/launch-or-attach/configurationDone startup sequence, event
// forwarding onto a Hookable, source and thread bookkeeping, reverse
// request handling (startDebugging child spawning, runInTerminal), and
// disconnect/terminate shutdown, per SPEC_FULL.md §4.5.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/joestump/dapclient/internal/breakpointmgr"
	"github.com/joestump/dapclient/internal/correlator"
	"github.com/joestump/dapclient/internal/dap"
	"github.com/joestump/dapclient/internal/dapclienterr"
	"github.com/joestump/dapclient/internal/events"
	"github.com/joestump/dapclient/internal/hookable"
	"github.com/joestump/dapclient/internal/source"
	"github.com/joestump/dapclient/internal/threadstack"
	"github.com/joestump/dapclient/internal/transport"
)

// State is a Session's position in its startup/shutdown lifecycle.
type State int

const (
	StateStarting State = iota
	StateInitSent
	StateLaunchSent
	StateInitialized
	StateConfigDoneSent
	StateReady
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "Starting"
	case StateInitSent:
		return "InitSent"
	case StateLaunchSent:
		return "LaunchSent"
	case StateInitialized:
		return "Initialized"
	case StateConfigDoneSent:
		return "ConfigDoneSent"
	case StateReady:
		return "Ready"
	case StateTerminated:
		return "Terminated"
	default:
		return "Unknown"
	}
}

// DAP event names forwarded verbatim onto a Session's Hookable, prefixed
// with "dap:" so they never collide with a Session's own lifecycle events
// (StateChanged, ChildAdded, ...).
const (
	evPrefix           = "dap:"
	EventStopped       = evPrefix + "stopped"
	EventContinued     = evPrefix + "continued"
	EventThread        = evPrefix + "thread"
	EventOutput        = evPrefix + "output"
	EventBreakpoint    = evPrefix + "breakpoint"
	EventLoadedSource  = evPrefix + "loadedSource"
	EventTerminated    = evPrefix + "terminated"
	EventExited        = evPrefix + "exited"
	EventInitialized   = evPrefix + "initialized"
	EventCapabilities  = evPrefix + "capabilities"
	EventProgressStart = evPrefix + "progressStart"
	EventProgressUpd   = evPrefix + "progressUpdate"
	EventProgressEnd   = evPrefix + "progressEnd"
	EventInvalidated   = evPrefix + "invalidated"
	EventMemory        = evPrefix + "memory"
	EventModule        = evPrefix + "module"
	EventProcess       = evPrefix + "process"

	// Session's own lifecycle events (distinct from forwarded DAP events).
	EventStateChanged = "StateChanged"
	EventChildAdded   = "ChildAdded"
)

// RunInTerminalHandler spawns (or otherwise honors) a runInTerminal
// reverse request. The default, if none is supplied, answers
// success=false ("unsupported").
type RunInTerminalHandler func(ctx context.Context, args events.RunInTerminalArgs) (events.RunInTerminalResponseBody, error)

// LaunchConfig carries the user-supplied launch/attach configuration and
// the optional hooks Session's startup sequence invokes along the way.
type LaunchConfig struct {
	// Request is "launch" or "attach".
	Request string
	// Arguments is the launch/attach request's argument body.
	Arguments map[string]any
	// ClientID, ClientName, and AdapterID populate the identity fields of
	// the initialize request. ClientID/ClientName default to "dapclient"
	// when empty; AdapterID defaults to "".
	ClientID   string
	ClientName string
	AdapterID  string
	// PreConfigurationHook runs after the adapter's initialized event and
	// before configurationDone is sent — the place to install initial
	// breakpoints while the adapter is paused awaiting configuration.
	PreConfigurationHook func(ctx context.Context) error
	// RunInTerminal answers runInTerminal reverse requests. Nil uses a
	// handler that always replies unsupported.
	RunInTerminal RunInTerminalHandler
}

// Dialer opens a fresh transport for a startDebugging-spawned child
// session. Each child gets its own dedicated connection rather than
// sharing its parent's: a Transport's read pump is started at most once
// (see transport.Transport), so reusing the parent's transport would
// leave the child's responses routed to the parent's correlator.
type Dialer func(ctx context.Context) (transport.Transport, error)

// Session is one adapter conversation: the connection, correlator,
// capability set, and the Thread/Source subsystems scoped to it.
type Session struct {
	id       int
	uid      string
	depth    int
	parent   *Session
	manager  *Manager
	bpMgr    *breakpointmgr.Manager
	launch   LaunchConfig
	timeout  time.Duration
	maxDepth int
	dial     Dialer

	transport  transport.Transport
	correlator *correlator.Correlator
	hooks      *hookable.Hookable

	mu             sync.Mutex
	state          State
	capabilities   events.Capabilities
	threads        map[int]*threadstack.Thread
	sources        map[source.Identifier]*source.Source
	children       map[int]*Session
	startupErr     error
	readyCh        chan struct{}
	readyOnce      sync.Once
	exitedReceived bool
}

// New constructs a Session bound to tr (already dialed, not yet started).
// mgr allocates the session's id and tracks it in the registry; bpMgr, if
// non-nil, is registered against this session once it reaches Ready. dial,
// if non-nil, opens a fresh dedicated transport for each startDebugging
// reverse request this session (or one of its descendants) receives; a nil
// dial means startDebugging reverse requests are rejected.
func New(mgr *Manager, bpMgr *breakpointmgr.Manager, parent *Session, tr transport.Transport, launch LaunchConfig, timeout time.Duration, maxDepth int, dial Dialer) *Session {
	depth := 0
	if parent != nil {
		depth = parent.depth + 1
	}
	s := &Session{
		uid:       uuid.NewString(),
		depth:     depth,
		parent:    parent,
		manager:   mgr,
		bpMgr:     bpMgr,
		launch:    launch,
		timeout:   timeout,
		maxDepth:  maxDepth,
		dial:      dial,
		transport: tr,
		hooks:     hookable.Create(nil),
		threads:   make(map[int]*threadstack.Thread),
		sources:   make(map[source.Identifier]*source.Source),
		children:  make(map[int]*Session),
		readyCh:   make(chan struct{}),
	}
	s.correlator = correlator.New(tr)
	mgr.add(s)
	if parent != nil {
		parent.addChild(s)
	}
	return s
}

// ID returns the registry-assigned session id.
func (s *Session) ID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

func (s *Session) setID(id int) {
	s.mu.Lock()
	s.id = id
	s.mu.Unlock()
}

// UID returns the session's process-lifetime-unique identifier, stable
// even if its registry id is later reused.
func (s *Session) UID() string { return s.uid }

// Depth returns the session's nesting depth (0 for a root session).
func (s *Session) Depth() int { return s.depth }

// Parent returns the owning Session, or nil for a root session.
func (s *Session) Parent() *Session { return s.parent }

// Hooks returns the Session's Hookable for forwarded DAP events and its
// own lifecycle events.
func (s *Session) Hooks() *hookable.Hookable { return s.hooks }

// Capabilities returns the adapter's advertised capabilities from its
// initialize response.
func (s *Session) Capabilities() events.Capabilities {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.capabilities
}

// State returns the Session's current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
	s.hooks.Emit(EventStateChanged, st)
}

// Ready blocks until the session reaches StateReady or StateTerminated,
// or ctx is cancelled. It returns the startup error, if any.
func (s *Session) Ready(ctx context.Context) error {
	select {
	case <-s.readyCh:
		s.mu.Lock()
		err := s.startupErr
		s.mu.Unlock()
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) markReady(err error) {
	s.readyOnce.Do(func() {
		s.mu.Lock()
		s.startupErr = err
		s.mu.Unlock()
		close(s.readyCh)
	})
}

func (s *Session) addChild(child *Session) {
	s.mu.Lock()
	s.children[child.ID()] = child
	s.mu.Unlock()
	s.hooks.Emit(EventChildAdded, child)
}

func (s *Session) removeChild(id int) {
	s.mu.Lock()
	delete(s.children, id)
	s.mu.Unlock()
}

// Children returns the session's currently registered child sessions.
func (s *Session) Children() []*Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Session, 0, len(s.children))
	for _, c := range s.children {
		out = append(out, c)
	}
	return out
}

// SendRequest sends a DAP request and, if out is non-nil, unmarshals the
// response body into it. Implements both threadstack.RequestSender and
// breakpointmgr.Session.
func (s *Session) SendRequest(ctx context.Context, command string, arguments, out any) error {
	raw, err := s.correlator.SendRequest(ctx, command, arguments)
	if err != nil {
		return err
	}
	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return dapclienterr.Wrap(dapclienterr.KindProtocol, command, err)
		}
	}
	return nil
}

// ResolveSource returns the DAP Source descriptor to use in a
// setBreakpoints request for id, consulting the loaded Source if one
// exists, or falling back to a bare path-only descriptor otherwise (the
// adapter tolerates breakpoints on sources it hasn't loaded yet).
func (s *Session) ResolveSource(id source.Identifier) events.SourceDesc {
	s.mu.Lock()
	src, ok := s.sources[id]
	s.mu.Unlock()
	if !ok {
		if id.Kind == source.KindFile {
			return events.SourceDesc{Path: id.Path}
		}
		return events.SourceDesc{SourceReference: id.SourceRef}
	}
	ref := src.Ref()
	desc := events.SourceDesc{
		Name:             ref.Name,
		Path:             ref.Path,
		SourceReference:  ref.SourceReference,
		PresentationHint: ref.PresentationHint,
		Origin:           ref.Origin,
	}
	for _, cs := range ref.Checksums {
		desc.Checksums = append(desc.Checksums, events.ChecksumDesc{Algorithm: cs.Algorithm, Checksum: cs.Checksum})
	}
	return desc
}

// Start runs the full startup sequence described in SPEC_FULL.md §4.5:
// open the transport, initialize, register reverse handlers, launch or
// attach, then — once both the launch/attach response and the
// initialized-triggered configurationDone have completed — mark the
// session Ready. The whole sequence must finish within the configured
// startup timeout or the session is torn down with a Timeout error.
func (s *Session) Start(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.doStart(ctx); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			err = dapclienterr.Wrap(dapclienterr.KindTimeout, "startup", err)
		}
		s.markReady(err)
		_ = s.teardown(fmt.Errorf("startup failed: %w", err))
		return err
	}
	return nil
}

func (s *Session) doStart(ctx context.Context) error {
	s.registerReverseHandlers()

	if err := s.transport.Start(s.onMessage, s.onTransportClosed); err != nil {
		return dapclienterr.Wrap(dapclienterr.KindConnectionClosed, "start", err)
	}

	s.setState(StateInitSent)
	clientID, clientName := s.launch.ClientID, s.launch.ClientName
	if clientID == "" {
		clientID = "dapclient"
	}
	if clientName == "" {
		clientName = "dapclient"
	}
	var initResp events.Capabilities
	initArgs := map[string]any{
		"clientID":                      clientID,
		"clientName":                    clientName,
		"adapterID":                     s.launch.AdapterID,
		"linesStartAt1":                 true,
		"columnsStartAt1":               true,
		"pathFormat":                    "path",
		"supportsRunInTerminalRequest":  true,
		"supportsStartDebuggingRequest": true,
		"supportsVariableType":          true,
		"supportsVariablePaging":        true,
		"supportsProgressReporting":     true,
		"supportsInvalidatedEvent":      true,
		"supportsMemoryEvent":           true,
	}
	if err := s.SendRequest(ctx, "initialize", initArgs, &initResp); err != nil {
		return err
	}
	s.mu.Lock()
	s.capabilities = initResp
	s.mu.Unlock()
	s.hooks.Emit(EventCapabilities, initResp)

	launchDone := make(chan error, 1)
	initializedDone := make(chan struct{}, 1)

	var once sync.Once
	unsubInit := s.hooks.On(EventInitialized, func(payload any) hookable.CleanupFunc {
		once.Do(func() {
			go func() {
				err := s.runConfiguration(ctx)
				if err != nil {
					select {
					case launchDone <- err:
					default:
					}
				}
				initializedDone <- struct{}{}
			}()
		})
		return nil
	}, hookable.Once())
	defer unsubInit()

	s.setState(StateLaunchSent)
	go func() {
		err := s.SendRequest(ctx, s.launch.Request, s.launch.Arguments, nil)
		launchDone <- err
	}()

	var launchErr error
	select {
	case launchErr = <-launchDone:
	case <-ctx.Done():
		return ctx.Err()
	}
	if launchErr != nil {
		return launchErr
	}

	select {
	case <-initializedDone:
	case <-ctx.Done():
		return ctx.Err()
	}

	s.setState(StateReady)
	if s.bpMgr != nil {
		s.bpMgr.RegisterSession(s)
	}
	s.markReady(nil)
	return nil
}

// runConfiguration sends configurationDone (if the PreConfigurationHook,
// if any, succeeds, and if the adapter advertises support for it).
func (s *Session) runConfiguration(ctx context.Context) error {
	if s.launch.PreConfigurationHook != nil {
		if err := s.launch.PreConfigurationHook(ctx); err != nil {
			return err
		}
	}
	s.setState(StateInitialized)
	if !s.Capabilities().SupportsConfigurationDoneRequest {
		s.setState(StateConfigDoneSent)
		return nil
	}
	if err := s.SendRequest(ctx, "configurationDone", nil, nil); err != nil {
		return err
	}
	s.setState(StateConfigDoneSent)
	return nil
}

func (s *Session) registerReverseHandlers() {
	s.correlator.RegisterHandler("startDebugging", func(ctx context.Context, raw json.RawMessage) (any, bool, string) {
		var args events.StartDebuggingArgs
		if err := json.Unmarshal(raw, &args); err != nil {
			return nil, false, err.Error()
		}
		if s.depth+1 > s.maxDepth {
			// The reverse request's reply uses the wire-level text the spec
			// mandates; dapclienterr.DepthExceeded remains available for
			// internal logging/errors.Is matching of this same condition.
			return nil, false, "Maximum session depth exceeded"
		}
		if s.dial == nil {
			return nil, false, "startDebugging is not supported: no transport dialer configured"
		}
		childTr, err := s.dial(ctx)
		if err != nil {
			return nil, false, fmt.Sprintf("failed to open child transport: %v", err)
		}
		child := New(s.manager, s.bpMgr, s, childTr, LaunchConfig{
			Request:       args.Request,
			Arguments:     args.Configuration,
			ClientID:      s.launch.ClientID,
			ClientName:    s.launch.ClientName,
			AdapterID:     s.launch.AdapterID,
			RunInTerminal: s.launch.RunInTerminal,
		}, s.timeout, s.maxDepth, s.dial)
		go func() { _ = child.Start(context.Background()) }()
		return nil, true, ""
	})

	s.correlator.RegisterHandler("runInTerminal", func(ctx context.Context, raw json.RawMessage) (any, bool, string) {
		var args events.RunInTerminalArgs
		if err := json.Unmarshal(raw, &args); err != nil {
			return nil, false, err.Error()
		}
		if s.launch.RunInTerminal == nil {
			return nil, false, "unsupported"
		}
		resp, err := s.launch.RunInTerminal(ctx, args)
		if err != nil {
			return nil, false, err.Error()
		}
		return resp, true, ""
	})
}

func (s *Session) onTransportClosed(err error) {
	s.correlator.Close(err)
	s.setState(StateTerminated)
	s.markReady(err)
}
