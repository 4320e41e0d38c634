package monitor

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/raphaelgruber/leadwatch/internal/events"
	"github.com/raphaelgruber/leadwatch/internal/models"
)

// SessionLister fetches the scrape session history of a workspace.
type SessionLister interface {
	ListSessions(ctx context.Context, workspaceID string) ([]models.ScrapeSession, error)
}

// SessionsWatcher keeps the session list of a workspace fresh. Progress
// events arrive far more often than the list changes, so refetches are
// throttled to one per interval; the last event in a burst always yields a
// trailing refetch.
type SessionsWatcher struct {
	lister      SessionLister
	workspaceID string
	limiter     *rate.Limiter
	timeout     time.Duration
	logger      *slog.Logger

	pending atomic.Bool
	closed  atomic.Bool

	mu       sync.RWMutex
	sessions []models.ScrapeSession
	err      error

	updates chan struct{}
}

// NewSessionsWatcher creates a watcher refetching at most once per interval.
func NewSessionsWatcher(lister SessionLister, workspaceID string, interval time.Duration, logger *slog.Logger) *SessionsWatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &SessionsWatcher{
		lister:      lister,
		workspaceID: workspaceID,
		limiter:     rate.NewLimiter(rate.Every(interval), 1),
		timeout:     15 * time.Second,
		logger:      logger,
		updates:     make(chan struct{}, 1),
	}
}

// Handle is the dispatcher listener. Session-changing events schedule a
// refetch.
func (w *SessionsWatcher) Handle(ev events.Event) {
	switch ev.Kind() {
	case events.KindJobStarted, events.KindProgress, events.KindJobCompleted, events.KindJobFailed:
		w.trigger()
	}
}

// trigger schedules one refetch at the limiter's next free slot, unless one
// is already scheduled.
func (w *SessionsWatcher) trigger() {
	if w.closed.Load() || !w.pending.CompareAndSwap(false, true) {
		return
	}
	r := w.limiter.Reserve()
	time.AfterFunc(r.Delay(), func() {
		w.pending.Store(false)
		if w.closed.Load() {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
		defer cancel()
		_ = w.Refresh(ctx)
	})
}

// Refresh refetches the session list now.
func (w *SessionsWatcher) Refresh(ctx context.Context) error {
	sessions, err := w.lister.ListSessions(ctx, w.workspaceID)

	w.mu.Lock()
	if err != nil {
		w.err = err
	} else {
		w.sessions, w.err = sessions, nil
	}
	w.mu.Unlock()

	if err != nil {
		w.logger.Warn("session list refresh failed", "error", err)
	}
	select {
	case w.updates <- struct{}{}:
	default:
	}
	return err
}

// Sessions returns the last fetched list split into running and finished
// sessions, plus the last refresh error.
func (w *SessionsWatcher) Sessions() (running, finished []models.ScrapeSession, err error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	running, finished = SplitSessions(w.sessions)
	return running, finished, w.err
}

// Updates signals a completed refresh. Signals are coalesced.
func (w *SessionsWatcher) Updates() <-chan struct{} {
	return w.updates
}

// Close stops scheduling refetches.
func (w *SessionsWatcher) Close() {
	w.closed.Store(true)
}

// SplitSessions separates running sessions from the rest, keeping order.
func SplitSessions(sessions []models.ScrapeSession) (running, finished []models.ScrapeSession) {
	for _, s := range sessions {
		if s.Status == models.SessionRunning {
			running = append(running, s)
		} else {
			finished = append(finished, s)
		}
	}
	return running, finished
}
