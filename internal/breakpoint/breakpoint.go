// Package breakpoint models user-intent Breakpoints (application-wide,
// session-independent) and their per-Session verified Bindings, plus the
// indexed Collections the BreakpointManager queries and mutates.
package breakpoint

import (
	"sync"

	"github.com/joestump/dapclient/internal/hookable"
	"github.com/joestump/dapclient/internal/source"
)

// Event names emitted on a Breakpoint's own Hookable.
const (
	EventAdded             = "BreakpointAdded"
	EventConditionChanged  = "ConditionChanged"
	EventLogMessageChanged = "LogMessageChanged"
	EventRemoved           = "BreakpointRemoved"
)

// Breakpoint is a user's intent to pause at a Location. It carries no
// session-specific state; its id is derived from its canonical location so
// the same Breakpoint is reconstructible across process lifetimes (though
// this runtime itself does not persist it — see SPEC_FULL.md's explicit
// non-goal).
type Breakpoint struct {
	mu sync.Mutex

	id           string
	location     source.Location
	condition    string
	hitCondition string
	logMessage   string
	enabled      bool

	hooks *hookable.Hookable
}

// Option configures optional Breakpoint fields at creation time.
type Option func(*Breakpoint)

// WithCondition sets the Breakpoint's initial condition.
func WithCondition(condition string) Option {
	return func(b *Breakpoint) { b.condition = condition }
}

// WithHitCondition sets the Breakpoint's initial hit condition.
func WithHitCondition(hitCondition string) Option {
	return func(b *Breakpoint) { b.hitCondition = hitCondition }
}

// WithLogMessage sets the Breakpoint's initial log message, making it a
// logpoint rather than a pausing breakpoint.
func WithLogMessage(msg string) Option {
	return func(b *Breakpoint) { b.logMessage = msg }
}

// New constructs a Breakpoint at location. It does not emit EventAdded;
// the BreakpointManager does so once the Breakpoint is registered in a
// Collections, so listeners attached via manager.OnBreakpoint never race
// the add.
func New(parent *hookable.Hookable, location source.Location, opts ...Option) *Breakpoint {
	b := &Breakpoint{
		id:       location.String(),
		location: location,
		enabled:  true,
		hooks:    hookable.Create(parent),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Breakpoint) ID() string { return b.id }

func (b *Breakpoint) Location() source.Location {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.location
}

func (b *Breakpoint) Condition() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.condition
}

func (b *Breakpoint) HitCondition() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.hitCondition
}

func (b *Breakpoint) LogMessage() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.logMessage
}

func (b *Breakpoint) Enabled() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.enabled
}

// SetEnabled toggles whether this Breakpoint should be included in future
// source syncs. It does not itself trigger a sync; callers go through
// BreakpointManager so the change is batched like any other intent edit.
func (b *Breakpoint) SetEnabled(enabled bool) {
	b.mu.Lock()
	b.enabled = enabled
	b.mu.Unlock()
}

// SetCondition updates the condition and emits ConditionChanged. Position
// is unchanged; the caller (BreakpointManager) is responsible for
// enqueuing a sync.
func (b *Breakpoint) SetCondition(condition string) {
	b.mu.Lock()
	b.condition = condition
	b.mu.Unlock()
	b.hooks.Emit(EventConditionChanged, b)
}

// SetHitCondition updates the hit condition. No dedicated event is
// defined for it in the spec; ConditionChanged covers it since both
// affect the same sync-triggering "condition" concept from the adapter's
// point of view.
func (b *Breakpoint) SetHitCondition(hitCondition string) {
	b.mu.Lock()
	b.hitCondition = hitCondition
	b.mu.Unlock()
	b.hooks.Emit(EventConditionChanged, b)
}

// SetLogMessage updates the log message and emits LogMessageChanged.
func (b *Breakpoint) SetLogMessage(msg string) {
	b.mu.Lock()
	b.logMessage = msg
	b.mu.Unlock()
	b.hooks.Emit(EventLogMessageChanged, b)
}

// Hooks returns this Breakpoint's Hookable, letting callers register
// listeners scoped precisely to this Breakpoint's lifetime — destroyed
// along with it.
func (b *Breakpoint) Hooks() *hookable.Hookable { return b.hooks }

// destroy emits BreakpointRemoved and tears down this Breakpoint's
// Hookable (and therefore every Binding's Hookable registered as its
// dependent, since Bindings are created with this Breakpoint's Hookable
// as parent).
func (b *Breakpoint) destroy() {
	b.hooks.Emit(EventRemoved, b)
	b.hooks.Destroy()
}
