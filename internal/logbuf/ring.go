// Package logbuf provides a bounded, append-only buffer of progress messages.
package logbuf

import (
	"strings"
	"sync"
	"time"
)

// Capacities used by the dashboard views.
const (
	DetailedCapacity  = 500
	CondensedCapacity = 200
)

// Level is the severity of a log entry.
type Level string

const (
	LevelInfo    Level = "info"
	LevelWarn    Level = "warn"
	LevelError   Level = "error"
	LevelSuccess Level = "success"
)

// ParseLevel maps a wire level to a Level. Unknown values become LevelInfo.
func ParseLevel(s string) Level {
	switch Level(strings.ToLower(strings.TrimSpace(s))) {
	case LevelWarn, "warning":
		return LevelWarn
	case LevelError:
		return LevelError
	case LevelSuccess:
		return LevelSuccess
	default:
		return LevelInfo
	}
}

// Entry is one log line.
type Entry struct {
	Time    time.Time
	Level   Level
	Message string
}

// Ring keeps the most recent entries up to its capacity. Once full, each
// append evicts the oldest entry. Entries are never reordered or deduplicated.
// All methods are thread-safe.
type Ring struct {
	mu    sync.RWMutex
	buf   []Entry
	start int
	size  int
}

// New creates a ring holding at most capacity entries (minimum 1).
func New(capacity int) *Ring {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring{buf: make([]Entry, capacity)}
}

// Append adds an entry, evicting the oldest when the ring is full.
func (r *Ring) Append(e Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.size < len(r.buf) {
		r.buf[(r.start+r.size)%len(r.buf)] = e
		r.size++
		return
	}
	r.buf[r.start] = e
	r.start = (r.start + 1) % len(r.buf)
}

// Entries returns a copy of the buffered entries, oldest first.
func (r *Ring) Entries() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Entry, r.size)
	for i := 0; i < r.size; i++ {
		out[i] = r.buf[(r.start+i)%len(r.buf)]
	}
	return out
}

// Tail returns up to n of the most recent entries, oldest first.
func (r *Ring) Tail(n int) []Entry {
	entries := r.Entries()
	if n >= 0 && len(entries) > n {
		entries = entries[len(entries)-n:]
	}
	return entries
}

// Len returns the number of buffered entries.
func (r *Ring) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.size
}

// Cap returns the capacity.
func (r *Ring) Cap() int {
	return len(r.buf)
}

// Reset drops all entries.
func (r *Ring) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.buf)
	r.start = 0
	r.size = 0
}
