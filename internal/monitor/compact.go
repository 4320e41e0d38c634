package monitor

import (
	"sync"
	"time"

	"github.com/raphaelgruber/leadwatch/internal/events"
	"github.com/raphaelgruber/leadwatch/internal/logbuf"
)

// CompactProgress is the state of the condensed progress panel.
type CompactProgress struct {
	LeadsFound int
	Duplicates int
	Processed  int
	Total      int
	Percent    int
	Done       bool
	Logs       []logbuf.Entry
}

// CompactMonitor follows one workspace's job with absolute counters only. It
// keeps its own short log buffer and does not track records.
type CompactMonitor struct {
	workspaceID string
	now         func() time.Time
	logs        *logbuf.Ring

	mu   sync.RWMutex
	p    CompactProgress
	seen map[string]struct{}
}

// NewCompactMonitor creates a panel monitor for workspaceID.
func NewCompactMonitor(workspaceID string) *CompactMonitor {
	return &CompactMonitor{
		workspaceID: workspaceID,
		now:         time.Now,
		logs:        logbuf.New(logbuf.CondensedCapacity),
		seen:        make(map[string]struct{}),
	}
}

// Handle is the dispatcher listener.
func (c *CompactMonitor) Handle(ev events.Event) {
	switch e := ev.(type) {
	case events.JobStarted:
		if e.WorkspaceID != "" && e.WorkspaceID != c.workspaceID {
			return
		}
		c.mu.Lock()
		c.p = CompactProgress{}
		c.seen = make(map[string]struct{})
		c.mu.Unlock()
		c.logs.Reset()
	case events.ProgressUpdate:
		if e.WorkspaceID != c.workspaceID {
			return
		}
		c.mu.Lock()
		if n, ok := e.Leads(); ok {
			c.p.LeadsFound = max(c.p.LeadsFound, n)
		}
		if n, ok := e.Duplicates(); ok {
			c.p.Duplicates = max(c.p.Duplicates, n)
		}
		if e.Processed != nil {
			c.p.Processed = max(c.p.Processed, *e.Processed)
		}
		if e.Total != nil {
			c.p.Total = max(c.p.Total, *e.Total)
		}
		if e.Percent != nil && !c.p.Done {
			c.p.Percent = min(100, max(c.p.Percent, *e.Percent))
		}
		c.mu.Unlock()
	case events.RecordFound:
		key := e.Lead.Key()
		c.mu.Lock()
		if _, dup := c.seen[key]; key != "" && !dup && !c.p.Done {
			c.seen[key] = struct{}{}
			c.p.LeadsFound++
		}
		c.mu.Unlock()
	case events.LogMessage:
		if e.WorkspaceID != "" && e.WorkspaceID != c.workspaceID {
			return
		}
		c.logs.Append(logbuf.Entry{Time: c.now(), Level: logbuf.ParseLevel(e.Level), Message: e.Message})
	case events.JobCompleted:
		if e.WorkspaceID != c.workspaceID {
			return
		}
		c.mu.Lock()
		c.p.Done = true
		c.p.Percent = 100
		if n, ok := e.Leads(); ok {
			c.p.LeadsFound = max(c.p.LeadsFound, n)
		}
		c.mu.Unlock()
	}
}

// Snapshot returns a copy of the panel state.
func (c *CompactMonitor) Snapshot() CompactProgress {
	c.mu.RLock()
	p := c.p
	c.mu.RUnlock()
	p.Logs = c.logs.Entries()
	return p
}
