// Package hookable implements the named, priority-ordered event bus used
// throughout the session tree: Sessions, Threads, Breakpoints, and
// Bindings each own a Hookable and emit their own lifecycle events on it.
// A Hookable may have a parent; destroying the parent destroys every
// descendant first (post-order) and is guaranteed to invoke every
// registered listener's cleanup closure exactly once, regardless of how
// that listener was configured.
package hookable

import "sync"

// CleanupFunc is returned by a Listener to release resources the listener
// acquired. It runs exactly once: on explicit disposal, on the owning (or
// an ancestor) Hookable's Destroy, or — for Once listeners — right after
// the listener fires.
type CleanupFunc func()

// Listener receives an emitted payload and may return a CleanupFunc.
type Listener func(payload any) CleanupFunc

// DisposeFunc removes a previously registered listener. Calling it more
// than once is a no-op.
type DisposeFunc func()

// Option configures a single On registration. The zero Opts equivalent is
// Priority=50, Once=false, Preemptible=true, Name="".
type Option func(*config)

type config struct {
	name        string
	priority    int
	once        bool
	preemptible bool
}

func defaultConfig() config {
	return config{priority: 50, preemptible: true}
}

// WithName sets a listener name, used for dedup/overwrite and debugging.
func WithName(name string) Option { return func(c *config) { c.name = name } }

// WithPriority overrides the default priority of 50. Listeners fire in
// descending priority order; ties break by registration order.
func WithPriority(p int) Option { return func(c *config) { c.priority = p } }

// Once marks the listener to auto-dispose after its first invocation.
func Once() Option { return func(c *config) { c.once = true } }

// NonPreemptible marks the listener as immune to destruction propagation:
// it keeps firing for emits that occur while its Hookable is mid-teardown,
// whereas a preemptible (default) listener stops receiving new emits once
// Destroy of its own Hookable has begun. Regardless of this
// flag, Destroy always invokes every listener's cleanup exactly once.
func NonPreemptible() Option { return func(c *config) { c.preemptible = false } }

type entry struct {
	id          uint64
	seq         uint64
	name        string
	priority    int
	once        bool
	preemptible bool
	fn          Listener
	cleanup     CleanupFunc
	disposed    bool
}

// Hookable is one node in the event-bus tree.
type Hookable struct {
	mu          sync.Mutex
	parent      *Hookable
	children    map[uint64]*Hookable
	listeners   map[string][]*entry
	destroyed   bool
	tearingDown bool
	nextID      uint64
	nextSeq     uint64
	selfHandle  uint64 // this node's key in parent.children
}

// New creates a root Hookable with no parent.
func New() *Hookable {
	return &Hookable{children: make(map[uint64]*Hookable), listeners: make(map[string][]*entry)}
}

// Create creates a new Hookable registered as a dependent of parent.
// Destroying parent destroys the returned Hookable (and its own
// descendants) before parent's own listeners are cleaned up. A nil parent
// produces a root Hookable equivalent to New().
func Create(parent *Hookable) *Hookable {
	child := New()
	if parent == nil {
		return child
	}
	parent.mu.Lock()
	defer parent.mu.Unlock()
	if parent.destroyed {
		// A destroyed parent cannot adopt children; return an
		// already-inert child so callers don't need a nil check.
		child.destroyed = true
		return child
	}
	parent.nextID++
	handle := parent.nextID
	child.parent = parent
	child.selfHandle = handle
	parent.children[handle] = child
	return child
}

// On registers listener for event and returns a DisposeFunc. If opts
// names an existing listener for this event, the prior registration is
// replaced (its cleanup runs first).
func (h *Hookable) On(event string, listener Listener, opts ...Option) DisposeFunc {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	h.mu.Lock()
	if h.destroyed {
		h.mu.Unlock()
		return func() {}
	}

	if cfg.name != "" {
		h.removeByNameLocked(event, cfg.name)
	}

	h.nextID++
	id := h.nextID
	h.nextSeq++
	e := &entry{
		id:          id,
		seq:         h.nextSeq,
		name:        cfg.name,
		priority:    cfg.priority,
		once:        cfg.once,
		preemptible: cfg.preemptible,
		fn:          listener,
	}
	h.listeners[event] = insertSorted(h.listeners[event], e)
	h.mu.Unlock()

	return func() { h.dispose(event, id) }
}

func insertSorted(list []*entry, e *entry) []*entry {
	i := 0
	for i < len(list) {
		cur := list[i]
		if e.priority > cur.priority {
			break
		}
		i++
	}
	list = append(list, nil)
	copy(list[i+1:], list[i:])
	list[i] = e
	return list
}

func (h *Hookable) removeByNameLocked(event, name string) {
	list := h.listeners[event]
	kept := list[:0]
	for _, e := range list {
		if e.name == name && !e.disposed {
			e.disposed = true
			if e.cleanup != nil {
				e.cleanup()
			}
			continue
		}
		kept = append(kept, e)
	}
	h.listeners[event] = kept
}

func (h *Hookable) dispose(event string, id uint64) {
	h.mu.Lock()
	list := h.listeners[event]
	var cleanup CleanupFunc
	for _, e := range list {
		if e.id == id && !e.disposed {
			e.disposed = true
			cleanup = e.cleanup
			break
		}
	}
	h.mu.Unlock()
	if cleanup != nil {
		cleanup()
	}
}

// Emit invokes every live listener registered for event, highest priority
// first, ties broken by registration order. Listeners disposed mid-emit
// (by an earlier listener in the same Emit) are skipped if not yet
// started, but an Emit in progress is not aborted by a concurrent Dispose.
func (h *Hookable) Emit(event string, payload any) {
	h.mu.Lock()
	if h.destroyed {
		h.mu.Unlock()
		return
	}
	snapshot := make([]*entry, 0, len(h.listeners[event]))
	for _, e := range h.listeners[event] {
		if e.disposed {
			continue
		}
		if h.tearingDown && e.preemptible {
			continue
		}
		snapshot = append(snapshot, e)
	}
	h.mu.Unlock()

	for _, e := range snapshot {
		h.mu.Lock()
		if e.disposed {
			h.mu.Unlock()
			continue
		}
		h.mu.Unlock()

		cleanup := e.fn(payload)

		h.mu.Lock()
		if cleanup != nil {
			e.cleanup = cleanup
		}
		if e.once && !e.disposed {
			e.disposed = true
			toRun := e.cleanup
			h.mu.Unlock()
			if toRun != nil {
				toRun()
			}
			continue
		}
		h.mu.Unlock()
	}
}

// Destroyed reports whether Destroy has completed on this Hookable.
func (h *Hookable) Destroyed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.destroyed
}

// Destroy tears the Hookable down: descendants are destroyed first
// (post-order), then every remaining listener's cleanup closure on this
// node runs exactly once. After Destroy returns, On and Emit are no-ops.
// Calling Destroy more than once is safe; only the first call acts.
func (h *Hookable) Destroy() {
	h.mu.Lock()
	if h.destroyed {
		h.mu.Unlock()
		return
	}
	h.tearingDown = true
	children := make([]*Hookable, 0, len(h.children))
	for _, c := range h.children {
		children = append(children, c)
	}
	h.mu.Unlock()

	for _, c := range children {
		c.Destroy()
	}

	h.mu.Lock()
	all := make([]*entry, 0)
	for _, list := range h.listeners {
		all = append(all, list...)
	}
	h.listeners = make(map[string][]*entry)
	h.children = make(map[uint64]*Hookable)
	h.destroyed = true
	parent := h.parent
	handle := h.selfHandle
	h.mu.Unlock()

	for _, e := range all {
		h.mu.Lock()
		already := e.disposed
		e.disposed = true
		cleanup := e.cleanup
		h.mu.Unlock()
		if !already && cleanup != nil {
			cleanup()
		}
	}

	if parent != nil {
		parent.mu.Lock()
		delete(parent.children, handle)
		parent.mu.Unlock()
	}
}
