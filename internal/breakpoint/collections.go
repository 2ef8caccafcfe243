package breakpoint

import (
	"sync"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/joestump/dapclient/internal/source"
)

type bindingKey struct {
	breakpointID string
	sessionID    int
}

// Collections indexes Breakpoints (primary by id, secondary by source)
// and Bindings (by (breakpointId, sessionId) and by session), using
// insertion-ordered maps so iteration — and therefore the request bodies
// BreakpointManager builds from it — is deterministic.
type Collections struct {
	mu sync.Mutex

	breakpoints *orderedmap.OrderedMap[string, *Breakpoint]
	bySource    map[source.Identifier]*orderedmap.OrderedMap[string, *Breakpoint]

	bindings          map[bindingKey]*Binding
	bindingsBySession map[int]*orderedmap.OrderedMap[string, *Binding]
}

// NewCollections creates an empty Collections.
func NewCollections() *Collections {
	return &Collections{
		breakpoints:       orderedmap.New[string, *Breakpoint](),
		bySource:          make(map[source.Identifier]*orderedmap.OrderedMap[string, *Breakpoint]),
		bindings:          make(map[bindingKey]*Binding),
		bindingsBySession: make(map[int]*orderedmap.OrderedMap[string, *Binding]),
	}
}

// AddBreakpoint registers bp in both the primary and by-source indexes.
func (c *Collections) AddBreakpoint(bp *Breakpoint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.breakpoints.Set(bp.ID(), bp)
	loc := bp.Location()
	idx, ok := c.bySource[loc.Source]
	if !ok {
		idx = orderedmap.New[string, *Breakpoint]()
		c.bySource[loc.Source] = idx
	}
	idx.Set(bp.ID(), bp)
}

// Get returns the Breakpoint registered under id, if any.
func (c *Collections) Get(id string) (*Breakpoint, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.breakpoints.Get(id)
}

// All returns every registered Breakpoint in insertion order.
func (c *Collections) All() []*Breakpoint {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Breakpoint, 0, c.breakpoints.Len())
	for pair := c.breakpoints.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Value)
	}
	return out
}

// AtSourceID returns every Breakpoint whose location is within source id,
// in insertion order.
func (c *Collections) AtSourceID(id source.Identifier) []*Breakpoint {
	c.mu.Lock()
	defer c.mu.Unlock()
	idx, ok := c.bySource[id]
	if !ok {
		return nil
	}
	out := make([]*Breakpoint, 0, idx.Len())
	for pair := idx.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Value)
	}
	return out
}

// AtLocation returns every Breakpoint whose requested position or any of
// its Bindings' actual positions spans query (range matching — see
// SPEC_FULL.md §4.9).
func (c *Collections) AtLocation(query source.Location) []*Breakpoint {
	candidates := c.AtSourceID(query.Source)
	var out []*Breakpoint
	for _, bp := range candidates {
		if c.spansLocation(bp, query) {
			out = append(out, bp)
		}
	}
	return out
}

func (c *Collections) spansLocation(bp *Breakpoint, query source.Location) bool {
	loc := bp.Location()
	if query.Source != loc.Source {
		return false
	}
	// With no binding yet, the only matching position is the exact
	// requested one.
	matched := loc.Line == query.Line && loc.Column == query.Column

	for _, bd := range c.BindingsForBreakpoint(bp.ID()) {
		actLine, actCol := bd.ActualPosition()
		s := spanOf(loc.Line, loc.Column, actLine, actCol)
		if s.contains(query.Line, query.Column) {
			matched = true
		}
	}
	return matched
}

// RemoveBreakpoint removes bp (and every Binding registered against it,
// across all sessions) from every index and destroys bp's Hookable.
func (c *Collections) RemoveBreakpoint(id string) (*Breakpoint, bool) {
	c.mu.Lock()
	bp, ok := c.breakpoints.Get(id)
	if !ok {
		c.mu.Unlock()
		return nil, false
	}
	c.breakpoints.Delete(id)
	loc := bp.Location()
	if idx, ok := c.bySource[loc.Source]; ok {
		idx.Delete(id)
		if idx.Len() == 0 {
			delete(c.bySource, loc.Source)
		}
	}

	var removedBindings []*Binding
	for key, bd := range c.bindings {
		if key.breakpointID == id {
			removedBindings = append(removedBindings, bd)
			delete(c.bindings, key)
			if sessIdx, ok := c.bindingsBySession[key.sessionID]; ok {
				sessIdx.Delete(id)
			}
		}
	}
	c.mu.Unlock()

	for _, bd := range removedBindings {
		bd.destroy()
	}
	bp.destroy()
	return bp, true
}

// PutBinding registers or replaces the Binding for (breakpoint, session).
func (c *Collections) PutBinding(bd *Binding) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := bindingKey{breakpointID: bd.Breakpoint().ID(), sessionID: bd.SessionID()}
	c.bindings[key] = bd
	idx, ok := c.bindingsBySession[bd.SessionID()]
	if !ok {
		idx = orderedmap.New[string, *Binding]()
		c.bindingsBySession[bd.SessionID()] = idx
	}
	idx.Set(bd.Breakpoint().ID(), bd)
}

// FindBinding returns the Binding for (breakpointID, sessionID), if any.
func (c *Collections) FindBinding(breakpointID string, sessionID int) (*Binding, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	bd, ok := c.bindings[bindingKey{breakpointID: breakpointID, sessionID: sessionID}]
	return bd, ok
}

// RemoveBinding removes and destroys the Binding for (breakpointID,
// sessionID), if one exists.
func (c *Collections) RemoveBinding(breakpointID string, sessionID int) (*Binding, bool) {
	c.mu.Lock()
	key := bindingKey{breakpointID: breakpointID, sessionID: sessionID}
	bd, ok := c.bindings[key]
	if !ok {
		c.mu.Unlock()
		return nil, false
	}
	delete(c.bindings, key)
	if idx, ok := c.bindingsBySession[sessionID]; ok {
		idx.Delete(breakpointID)
	}
	c.mu.Unlock()
	bd.destroy()
	return bd, true
}

// BindingsForBreakpoint returns every Binding registered against
// breakpointID, across all sessions. The order across sessions is not
// defined.
func (c *Collections) BindingsForBreakpoint(breakpointID string) []*Binding {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*Binding
	for _, idx := range c.bindingsBySession {
		if bd, ok := idx.Get(breakpointID); ok {
			out = append(out, bd)
		}
	}
	return out
}

// BindingsForSession returns every Binding currently registered for
// sessionID, in insertion order.
func (c *Collections) BindingsForSession(sessionID int) []*Binding {
	c.mu.Lock()
	defer c.mu.Unlock()
	idx, ok := c.bindingsBySession[sessionID]
	if !ok {
		return nil
	}
	out := make([]*Binding, 0, idx.Len())
	for pair := idx.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Value)
	}
	return out
}

// BindingsForSource returns every Binding, across all sessions, whose
// Breakpoint is located within source id.
func (c *Collections) BindingsForSource(id source.Identifier) []*Binding {
	var out []*Binding
	for _, bp := range c.AtSourceID(id) {
		out = append(out, c.BindingsForBreakpoint(bp.ID())...)
	}
	return out
}
