// Package monitor binds dispatched events to the state each view renders:
// the job dashboard, the condensed progress panel and the session list.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/raphaelgruber/leadwatch/internal/events"
	"github.com/raphaelgruber/leadwatch/internal/job"
	"github.com/raphaelgruber/leadwatch/internal/logbuf"
	"github.com/raphaelgruber/leadwatch/internal/metrics"
	"github.com/raphaelgruber/leadwatch/internal/models"
	"github.com/raphaelgruber/leadwatch/internal/records"
)

// ErrNotRunning is returned by Stop when no job is running.
var ErrNotRunning = errors.New("no running job")

// Starter starts scrape jobs.
type Starter interface {
	ExtendList(ctx context.Context, listID, workspaceID string, cfg models.ScrapeConfig) (*models.ExtendResponse, error)
}

// Stopper requests a running job to stop.
type Stopper interface {
	StopScrape(ctx context.Context, workspaceID string) error
}

// JobConfig configures a JobMonitor.
type JobConfig struct {
	WorkspaceID string
	Target      int // target lead count for progress and ETA
	SettleDelay time.Duration
	Clock       func() time.Time
	Logger      *slog.Logger
}

// Snapshot is everything the job dashboard renders.
type Snapshot struct {
	Progress  job.Progress
	Derived   metrics.Derived
	Target    int
	Records   records.View
	Logs      []logbuf.Entry
	Connected bool
	LinkErr   error
}

// JobMonitor is the dispatcher listener of the job dashboard. It owns the
// tracker, the record store and the detailed log buffer for one workspace.
type JobMonitor struct {
	tracker *job.Tracker
	store   *records.Store
	logs    *logbuf.Ring

	workspaceID string
	settle      time.Duration
	now         func() time.Time
	logger      *slog.Logger

	mu        sync.RWMutex
	target    int
	connected bool
	linkErr   error

	updates chan struct{}
}

// NewJobMonitor wires a monitor around an existing store and log buffer.
func NewJobMonitor(store *records.Store, logs *logbuf.Ring, cfg JobConfig) *JobMonitor {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = 500 * time.Millisecond
	}
	return &JobMonitor{
		tracker:     job.NewTracker(job.WithClock(cfg.Clock), job.WithLogger(cfg.Logger)),
		store:       store,
		logs:        logs,
		workspaceID: cfg.WorkspaceID,
		settle:      cfg.SettleDelay,
		now:         cfg.Clock,
		logger:      cfg.Logger,
		target:      cfg.Target,
		updates:     make(chan struct{}, 1),
	}
}

// Handle is the dispatcher listener.
func (m *JobMonitor) Handle(ev events.Event) {
	switch e := ev.(type) {
	case events.Status:
		return
	case events.JobStarted:
		if !m.ours(e.WorkspaceID) {
			return
		}
		m.tracker.Apply(e)
		m.store.ResetLive()
		m.logs.Reset()
	case events.RecordFound:
		if !m.ours(e.WorkspaceID) || !m.tracker.Accepting() {
			return
		}
		if m.store.AddLive(e.Lead) {
			m.tracker.CountRecords(1)
		}
	case events.RecordsFound:
		if !m.ours(e.WorkspaceID) || !m.tracker.Accepting() {
			return
		}
		m.tracker.CountRecords(m.store.AddLiveBatch(e.Leads))
	case events.LogMessage:
		if !m.ours(e.WorkspaceID) {
			return
		}
		m.logs.Append(logbuf.Entry{Time: m.now(), Level: logbuf.ParseLevel(e.Level), Message: e.Message})
	case events.ProgressUpdate:
		if !m.ours(e.WorkspaceID) || !m.tracker.Apply(e) {
			return
		}
	case events.JobCompleted:
		if !m.ours(e.WorkspaceID) || !m.tracker.Apply(e) {
			return
		}
		m.store.RefreshAfter(m.settle)
	case events.JobFailed:
		if !m.ours(e.WorkspaceID) || !m.tracker.Apply(e) {
			return
		}
	default:
		if !m.tracker.Apply(ev) {
			return
		}
	}
	m.notify()
}

// ours reports whether an event tagged with workspaceID belongs to the
// monitored workspace. Untagged events always do.
func (m *JobMonitor) ours(workspaceID string) bool {
	return workspaceID == "" || m.workspaceID == "" || workspaceID == m.workspaceID
}

// SetConnected records link transitions for the connectivity indicator. It
// never touches job state.
func (m *JobMonitor) SetConnected(connected bool, err error) {
	m.mu.Lock()
	m.connected = connected
	m.linkErr = err
	m.mu.Unlock()
	m.notify()
}

// SetTarget changes the target lead count used for derived metrics.
func (m *JobMonitor) SetTarget(target int) {
	m.mu.Lock()
	m.target = target
	m.mu.Unlock()
	m.notify()
}

// Start asks the backend to start a job for listID. The dashboard switches
// to running only when job_started arrives.
func (m *JobMonitor) Start(ctx context.Context, s Starter, listID string, cfg models.ScrapeConfig) (string, error) {
	resp, err := s.ExtendList(ctx, listID, m.workspaceID, cfg)
	if err != nil {
		return "", fmt.Errorf("start job: %w", err)
	}
	m.SetTarget(cfg.TargetLeads)
	m.logger.Info("job requested", "list_id", listID, "session_id", resp.SessionID, "target", cfg.TargetLeads)
	return resp.SessionID, nil
}

// Stop makes the optimistic running -> stopping transition and asks the
// backend to stop. The job_done event confirms the stop; a failed request
// leaves the phase at stopping until the stream says otherwise.
func (m *JobMonitor) Stop(ctx context.Context, s Stopper) error {
	if !m.tracker.RequestStop() {
		return ErrNotRunning
	}
	m.notify()
	if err := s.StopScrape(ctx, m.workspaceID); err != nil {
		m.logger.Warn("stop request failed", "error", err)
		return fmt.Errorf("stop job: %w", err)
	}
	return nil
}

// SetQuery changes the page or filter of the record table.
func (m *JobMonitor) SetQuery(ctx context.Context, q models.LeadQuery) error {
	err := m.store.SetQuery(ctx, q)
	m.notify()
	return err
}

// Refresh re-runs the persisted query.
func (m *JobMonitor) Refresh(ctx context.Context) error {
	err := m.store.Refresh(ctx)
	m.notify()
	return err
}

// Updates signals that the snapshot changed. Signals are coalesced.
func (m *JobMonitor) Updates() <-chan struct{} {
	return m.updates
}

// Notify wakes Updates readers; used as the store's change callback.
func (m *JobMonitor) Notify() { m.notify() }

func (m *JobMonitor) notify() {
	select {
	case m.updates <- struct{}{}:
	default:
	}
}

// Snapshot returns the dashboard state with derived metrics recomputed from
// the current progress.
func (m *JobMonitor) Snapshot() Snapshot {
	m.mu.RLock()
	target, connected, linkErr := m.target, m.connected, m.linkErr
	m.mu.RUnlock()

	p := m.tracker.Snapshot()
	return Snapshot{
		Progress:  p,
		Derived:   metrics.Compute(p.LeadsFound, p.Elapsed.Seconds(), target),
		Target:    target,
		Records:   m.store.View(),
		Logs:      m.logs.Entries(),
		Connected: connected,
		LinkErr:   linkErr,
	}
}

// Phase returns the current job phase.
func (m *JobMonitor) Phase() job.Phase {
	return m.tracker.Phase()
}
