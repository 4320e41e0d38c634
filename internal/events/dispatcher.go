package events

import (
	"log/slog"
	"sync"
)

// Handler receives dispatched events.
type Handler func(Event)

type listener struct {
	id   uint64
	name string
	fn   Handler
}

// Dispatcher routes decoded events to the listeners registered by each
// consuming context. Dispatch is synchronous, in the caller's goroutine, and
// preserves arrival order. The dispatcher does not reorder, batch or
// deduplicate.
type Dispatcher struct {
	mu        sync.RWMutex
	listeners []listener
	nextID    uint64
	logger    *slog.Logger
}

// NewDispatcher creates a dispatcher. A nil logger uses slog.Default().
func NewDispatcher(logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{logger: logger}
}

// Register installs fn as the listener of the named context, replacing any
// previous listener of that name. The returned function unregisters it; it is
// a no-op once the listener has been replaced.
func (d *Dispatcher) Register(name string, fn Handler) (unregister func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.nextID++
	id := d.nextID
	d.removeLocked(func(l listener) bool { return l.name == name })
	d.listeners = append(d.listeners, listener{id: id, name: name, fn: fn})

	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		d.removeLocked(func(l listener) bool { return l.id == id })
	}
}

// Listeners returns the registered context names in dispatch order.
func (d *Dispatcher) Listeners() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	names := make([]string, len(d.listeners))
	for i, l := range d.listeners {
		names[i] = l.name
	}
	return names
}

// HandleFrame decodes a raw frame and dispatches it. Malformed frames are
// logged and dropped; ignored tags are dropped.
func (d *Dispatcher) HandleFrame(frame []byte) {
	ev, err := Decode(frame)
	if err != nil {
		d.logger.Warn("dropping frame", "error", err, "bytes", len(frame))
		return
	}
	if ig, ok := ev.(Ignored); ok {
		d.logger.Debug("ignoring event", "type", ig.Tag)
		return
	}
	d.Dispatch(ev)
}

// Dispatch delivers ev to every listener in registration order.
func (d *Dispatcher) Dispatch(ev Event) {
	d.mu.RLock()
	ls := make([]listener, len(d.listeners))
	copy(ls, d.listeners)
	d.mu.RUnlock()

	for _, l := range ls {
		d.deliver(l, ev)
	}
}

// deliver calls one listener, containing any panic it raises.
func (d *Dispatcher) deliver(l listener, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("event listener panicked", "listener", l.name, "type", ev.Kind(), "panic", r)
		}
	}()
	l.fn(ev)
}

// removeLocked drops listeners matching match. Caller must hold the write lock.
func (d *Dispatcher) removeLocked(match func(listener) bool) {
	kept := d.listeners[:0]
	for _, l := range d.listeners {
		if !match(l) {
			kept = append(kept, l)
		}
	}
	d.listeners = kept
}
