// Package events defines the Go shapes of DAP event bodies, response
// bodies, and reverse-request arguments shared across the session,
// threadstack, source, and breakpointmgr packages. Keeping them in one
// leaf package (depending on nothing but encoding/json) avoids an import
// cycle between the packages that produce these values (Session) and the
// packages that consume them (Thread, Stack, BreakpointManager, Source).
package events

// Capabilities mirrors the subset of the adapter's InitializeResponse
// capabilities this runtime gates behavior on.
type Capabilities struct {
	SupportsConfigurationDoneRequest      bool `json:"supportsConfigurationDoneRequest"`
	SupportsConditionalBreakpoints        bool `json:"supportsConditionalBreakpoints"`
	SupportsHitConditionalBreakpoints     bool `json:"supportsHitConditionalBreakpoints"`
	SupportsLogPoints                     bool `json:"supportsLogPoints"`
	SupportsBreakpointLocationsRequest    bool `json:"supportsBreakpointLocationsRequest"`
	SupportsStartDebuggingRequest         bool `json:"supportsStartDebuggingRequest"`
	SupportsRunInTerminalRequest          bool `json:"supportsRunInTerminalRequest"`
	SupportsExceptionInfoRequest          bool `json:"supportsExceptionInfoRequest"`
	SupportsExceptionOptions              bool `json:"supportsExceptionOptions"`
	SupportsProgressReporting             bool `json:"supportsProgressReporting"`
	SupportsInvalidatedEvent              bool `json:"supportsInvalidatedEvent"`
	SupportsMemoryEvent                   bool `json:"supportsMemoryEvent"`
	SupportsTerminateRequest              bool `json:"supportsTerminateRequest"`
	SupportsSteppingGranularity           bool `json:"supportsSteppingGranularity"`
	ExceptionBreakpointFilters            []ExceptionBreakpointFilter `json:"exceptionBreakpointFilters"`
}

// ExceptionBreakpointFilter mirrors one entry of the initialize response's
// exceptionBreakpointFilters array.
type ExceptionBreakpointFilter struct {
	Filter             string `json:"filter"`
	Label              string `json:"label"`
	Default            bool   `json:"default"`
	SupportsCondition  bool   `json:"supportsCondition"`
}

// StoppedBody is the event body of a "stopped" event.
type StoppedBody struct {
	Reason           string `json:"reason"`
	Description      string `json:"description,omitempty"`
	ThreadID         int    `json:"threadId"`
	AllThreadsStopped bool  `json:"allThreadsStopped,omitempty"`
	HitBreakpointIDs []int  `json:"hitBreakpointIds,omitempty"`
	Text             string `json:"text,omitempty"`
}

// ContinuedBody is the event body of a "continued" event.
type ContinuedBody struct {
	ThreadID            int  `json:"threadId"`
	AllThreadsContinued bool `json:"allThreadsContinued,omitempty"`
}

// ThreadBody is the event body of a "thread" event.
type ThreadBody struct {
	Reason   string `json:"reason"` // "started" | "exited"
	ThreadID int    `json:"threadId"`
}

// OutputBody is the event body of an "output" event.
type OutputBody struct {
	Category string `json:"category,omitempty"`
	Output   string `json:"output"`
}

// BreakpointEventBody is the event body of a "breakpoint" event (adapter
// unilaterally updating a previously-reported breakpoint, e.g. resolving
// a deferred one).
type BreakpointEventBody struct {
	Reason     string            `json:"reason"`
	Breakpoint BreakpointResult  `json:"breakpoint"`
}

// LoadedSourceBody is the event body of a "loadedSource" event.
type LoadedSourceBody struct {
	Reason string     `json:"reason"` // "new" | "changed" | "removed"
	Source SourceDesc `json:"source"`
}

// TerminatedBody is the event body of a "terminated" event.
type TerminatedBody struct {
	Restart bool `json:"restart,omitempty"`
}

// ExitedBody is the event body of an "exited" event.
type ExitedBody struct {
	ExitCode int `json:"exitCode"`
}

// ProgressBody covers progressStart/progressUpdate/progressEnd bodies.
type ProgressBody struct {
	ProgressID  string  `json:"progressId"`
	Title       string  `json:"title,omitempty"`
	Message     string  `json:"message,omitempty"`
	Percentage  float64 `json:"percentage,omitempty"`
	Cancellable bool    `json:"cancellable,omitempty"`
}

// InvalidatedBody is the event body of an "invalidated" event.
type InvalidatedBody struct {
	Areas     []string `json:"areas,omitempty"`
	ThreadID  int      `json:"threadId,omitempty"`
	StackFrameID int   `json:"stackFrameId,omitempty"`
}

// MemoryBody is the event body of a "memory" event.
type MemoryBody struct {
	MemoryReference string `json:"memoryReference"`
	Offset          int    `json:"offset"`
	Count           int    `json:"count"`
}

// ModuleBody is the event body of a "module" event.
type ModuleBody struct {
	Reason string `json:"reason"`
}

// ProcessBody is the event body of a "process" event.
type ProcessBody struct {
	Name            string `json:"name"`
	SystemProcessID int    `json:"systemProcessId,omitempty"`
	IsLocalProcess  bool   `json:"isLocalProcess,omitempty"`
	StartMethod     string `json:"startMethod,omitempty"`
}

// SourceDesc mirrors a raw DAP Source object.
type SourceDesc struct {
	Name             string           `json:"name,omitempty"`
	Path             string           `json:"path,omitempty"`
	SourceReference  int              `json:"sourceReference,omitempty"`
	PresentationHint string           `json:"presentationHint,omitempty"`
	Origin           string           `json:"origin,omitempty"`
	Checksums        []ChecksumDesc   `json:"checksums,omitempty"`
}

// ChecksumDesc mirrors one entry of Source.checksums.
type ChecksumDesc struct {
	Algorithm string `json:"algorithm"`
	Checksum  string `json:"checksum"`
}

// BreakpointResult mirrors one entry of a setBreakpoints response's
// (or a "breakpoint" event's) breakpoints array.
type BreakpointResult struct {
	ID       int        `json:"id,omitempty"`
	Verified bool       `json:"verified"`
	Message  string     `json:"message,omitempty"`
	Source   SourceDesc `json:"source,omitempty"`
	Line     int        `json:"line,omitempty"`
	Column   int        `json:"column,omitempty"`
}

// SetBreakpointsResponseBody is the body of a setBreakpoints response.
type SetBreakpointsResponseBody struct {
	Breakpoints []BreakpointResult `json:"breakpoints"`
}

// SourceBreakpointArg is one entry of a setBreakpoints request's
// breakpoints array.
type SourceBreakpointArg struct {
	Line         int    `json:"line"`
	Column       int    `json:"column,omitempty"`
	Condition    string `json:"condition,omitempty"`
	HitCondition string `json:"hitCondition,omitempty"`
	LogMessage   string `json:"logMessage,omitempty"`
}

// SetBreakpointsArgs is the argument body of a setBreakpoints request.
type SetBreakpointsArgs struct {
	Source      SourceDesc            `json:"source"`
	Breakpoints []SourceBreakpointArg `json:"breakpoints"`
}

// BreakpointLocation is one entry of a breakpointLocations response.
type BreakpointLocation struct {
	Line      int `json:"line"`
	Column    int `json:"column,omitempty"`
	EndLine   int `json:"endLine,omitempty"`
	EndColumn int `json:"endColumn,omitempty"`
}

// BreakpointLocationsResponseBody is the body of a breakpointLocations
// response.
type BreakpointLocationsResponseBody struct {
	Breakpoints []BreakpointLocation `json:"breakpoints"`
}

// ThreadDesc mirrors one entry of a threads response.
type ThreadDesc struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// ThreadsResponseBody is the body of a threads response.
type ThreadsResponseBody struct {
	Threads []ThreadDesc `json:"threads"`
}

// StackFrameDesc mirrors one entry of a stackTrace response.
type StackFrameDesc struct {
	ID     int        `json:"id"`
	Name   string     `json:"name"`
	Source SourceDesc `json:"source,omitempty"`
	Line   int        `json:"line"`
	Column int        `json:"column"`
}

// StackTraceResponseBody is the body of a stackTrace response.
type StackTraceResponseBody struct {
	StackFrames []StackFrameDesc `json:"stackFrames"`
	TotalFrames int              `json:"totalFrames,omitempty"`
}

// ScopeDesc mirrors one entry of a scopes response.
type ScopeDesc struct {
	Name               string `json:"name"`
	PresentationHint   string `json:"presentationHint,omitempty"`
	VariablesReference int    `json:"variablesReference"`
	Expensive          bool   `json:"expensive"`
}

// ScopesResponseBody is the body of a scopes response.
type ScopesResponseBody struct {
	Scopes []ScopeDesc `json:"scopes"`
}

// VariablePresentationHint mirrors DAP's VariablePresentationHint, the
// only field this runtime reads from it being Lazy.
type VariablePresentationHint struct {
	Kind string `json:"kind,omitempty"`
	Lazy bool   `json:"lazy,omitempty"`
}

// VariableDesc mirrors one entry of a variables response.
type VariableDesc struct {
	Name               string                    `json:"name"`
	Value              string                    `json:"value"`
	Type               string                    `json:"type,omitempty"`
	VariablesReference int                       `json:"variablesReference"`
	PresentationHint   *VariablePresentationHint `json:"presentationHint,omitempty"`
}

// VariablesResponseBody is the body of a variables response.
type VariablesResponseBody struct {
	Variables []VariableDesc `json:"variables"`
}

// SourceResponseBody is the body of a source response.
type SourceResponseBody struct {
	Content  string `json:"content"`
	MimeType string `json:"mimeType,omitempty"`
}

// StartDebuggingArgs is the argument body of a startDebugging reverse
// request.
type StartDebuggingArgs struct {
	Configuration map[string]any `json:"configuration"`
	Request       string         `json:"request"` // "launch" | "attach"
}

// RunInTerminalArgs is the argument body of a runInTerminal reverse
// request.
type RunInTerminalArgs struct {
	Kind  string            `json:"kind,omitempty"`
	Title string            `json:"title,omitempty"`
	Cwd   string             `json:"cwd"`
	Args  []string          `json:"args"`
	Env   map[string]string `json:"env,omitempty"`
}

// RunInTerminalResponseBody is the body a runInTerminal handler answers
// with.
type RunInTerminalResponseBody struct {
	ProcessID int `json:"processId,omitempty"`
	ShellProcessID int `json:"shellProcessId,omitempty"`
}

// ExceptionInfoResponseBody is the body of an exceptionInfo response.
type ExceptionInfoResponseBody struct {
	ExceptionID string `json:"exceptionId"`
	Description string `json:"description,omitempty"`
	BreakMode   string `json:"breakMode"`
}

// ExceptionFilterArg is one entry of a setExceptionBreakpoints request's
// filterOptions array.
type ExceptionFilterArg struct {
	FilterID  string `json:"filterId"`
	Condition string `json:"condition,omitempty"`
}

// SetExceptionBreakpointsArgs is the argument body of a
// setExceptionBreakpoints request.
type SetExceptionBreakpointsArgs struct {
	Filters       []string             `json:"filters"`
	FilterOptions []ExceptionFilterArg `json:"filterOptions,omitempty"`
}
