package job

import (
	"log/slog"
	"sync"
	"time"

	"github.com/raphaelgruber/leadwatch/internal/events"
)

// Tracker is the job lifecycle state machine. It is fed dispatched events
// and the user's stop action, and hands out Progress snapshots.
//
// Events that do not fit the current phase are ignored. Stream delivery is
// not serialised with request/response actions, so such events are expected.
type Tracker struct {
	mu     sync.RWMutex
	now    func() time.Time
	logger *slog.Logger

	p Progress
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock overrides the clock used for elapsed-time accounting.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithLogger sets the logger for ignored-event diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Tracker) { t.logger = logger }
}

// NewTracker returns a tracker in PhaseIdle.
func NewTracker(opts ...Option) *Tracker {
	t := &Tracker{
		now:    time.Now,
		logger: slog.Default(),
		p:      Progress{Phase: PhaseIdle},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Apply feeds one event into the state machine. It reports whether the event
// changed the tracked state; events that are not job-scoped or arrive in a
// phase that cannot accept them return false.
func (t *Tracker) Apply(ev events.Event) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if e, ok := ev.(events.JobStarted); ok {
		t.start(e)
		return true
	}

	if !t.p.Phase.Active() {
		switch ev.(type) {
		case events.UnitStarted, events.UnitsDiscovered, events.ProgressUpdate,
			events.SearchAttempt, events.JobCompleted, events.JobFailed:
			t.logger.Debug("ignoring event outside running job", "type", ev.Kind(), "phase", t.p.Phase)
		}
		return false
	}

	switch e := ev.(type) {
	case events.UnitStarted:
		t.p.ProcessedQueries++
		if e.Sector != "" {
			t.p.CurrentSector = e.Sector
		}
		if e.Country != "" {
			t.p.CurrentCountry = e.Country
		}
	case events.UnitsDiscovered:
		total := e.Count
		if t.p.TotalDomains != nil {
			total += *t.p.TotalDomains
		}
		t.p.TotalDomains = &total
	case events.ProgressUpdate:
		t.p.ProcessedDomains++
		if n, ok := e.Leads(); ok {
			t.p.LeadsFound = max(t.p.LeadsFound, n)
		}
		if n, ok := e.Errors(); ok {
			t.p.ErrorsCount = max(t.p.ErrorsCount, n)
		}
		if n, ok := e.Duplicates(); ok {
			t.p.Duplicates = max(t.p.Duplicates, n)
		}
		if e.Domain != "" {
			t.p.CurrentDomain = e.Domain
		}
	case events.SearchAttempt:
		attempt := e
		t.p.LastSearch = &attempt
	case events.JobCompleted:
		if n, ok := e.Leads(); ok {
			t.p.LeadsFound = max(t.p.LeadsFound, n)
		}
		t.p.FinalStatus = e.FinalStatus
		t.finish(PhaseDone)
	case events.JobFailed:
		t.p.Error = e.Reason()
		t.finish(PhaseError)
	default:
		return false
	}
	return true
}

// RequestStop makes the optimistic running -> stopping transition. It
// reports false in any other phase.
func (t *Tracker) RequestStop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.p.Phase != PhaseRunning {
		return false
	}
	t.p.Phase = PhaseStopping
	return true
}

// CountRecords adds n newly seen records to leadsFound while a job is
// active. Callers pass only records whose key was new to the live set.
func (t *Tracker) CountRecords(n int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if n <= 0 || !t.p.Phase.Active() {
		return false
	}
	t.p.LeadsFound += n
	return true
}

// Accepting reports whether job-scoped events are currently applied.
func (t *Tracker) Accepting() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.p.Phase.Active()
}

// Phase returns the current phase.
func (t *Tracker) Phase() Phase {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.p.Phase
}

// Snapshot returns a copy of the tracked progress with Elapsed computed at
// the current instant, or at the freeze instant once the job has finished.
func (t *Tracker) Snapshot() Progress {
	t.mu.RLock()
	defer t.mu.RUnlock()

	p := t.p.clone()
	switch {
	case p.StartedAt.IsZero():
		p.Elapsed = 0
	case !p.FinishedAt.IsZero():
		p.Elapsed = p.FinishedAt.Sub(p.StartedAt)
	default:
		p.Elapsed = max(t.now().Sub(p.StartedAt), 0)
	}
	return p
}

// start replaces the tracked job. Caller must hold the write lock.
func (t *Tracker) start(e events.JobStarted) {
	t.p = Progress{
		Phase:        PhaseRunning,
		TotalQueries: cloneInt(e.Queries),
		WorkspaceID:  e.WorkspaceID,
		SessionID:    e.SessionID,
		ListID:       e.ListID,
		StartedAt:    t.now(),
	}
	t.logger.Info("job started", "session_id", e.SessionID, "workspace_id", e.WorkspaceID)
}

// finish moves to a terminal phase and freezes the clock. The phase check in
// Apply guarantees it runs once per job. Caller must hold the write lock.
func (t *Tracker) finish(phase Phase) {
	t.p.Phase = phase
	t.p.FinishedAt = t.now()
	t.logger.Info("job finished",
		"phase", phase,
		"leads", t.p.LeadsFound,
		"elapsed", t.p.FinishedAt.Sub(t.p.StartedAt).Round(time.Second))
}
