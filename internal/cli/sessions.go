package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/raphaelgruber/leadwatch/internal/events"
	"github.com/raphaelgruber/leadwatch/internal/models"
	"github.com/raphaelgruber/leadwatch/internal/monitor"
	"github.com/raphaelgruber/leadwatch/internal/stream"
)

var sessionsWatch bool

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Show the scrape session history",
	Long: `Show the workspace's scrape sessions, running ones first.

With --watch the list is refreshed as the running job reports progress, and
a condensed progress panel follows the job. Stop with Ctrl+C.`,
	Args: cobra.NoArgs,
	RunE: runSessions,
}

func init() {
	sessionsCmd.Flags().BoolVar(&sessionsWatch, "watch", false, "keep the list up to date")
}

func runSessions(cmd *cobra.Command, args []string) error {
	ws, err := activeWorkspace()
	if err != nil {
		return err
	}
	if !sessionsWatch {
		sessions, err := api.ListSessions(cmd.Context(), ws.ID)
		if err != nil {
			return loginHint(fmt.Errorf("list sessions: %w", err))
		}
		running, finished := monitor.SplitSessions(sessions)
		renderSessions(os.Stdout, running, finished, time.Now())
		return nil
	}
	return watchSessions(cmd.Context(), ws)
}

// watchSessions re-renders the session list and the condensed progress
// panel until interrupted.
func watchSessions(ctx context.Context, ws models.Workspace) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	watcher := monitor.NewSessionsWatcher(api, ws.ID, cfg.SessionsRefresh, logger)
	defer watcher.Close()
	panel := monitor.NewCompactMonitor(ws.ID)

	dispatcher := events.NewDispatcher(logger)
	defer dispatcher.Register("sessions", watcher.Handle)()
	defer dispatcher.Register("panel", panel.Handle)()

	linkErr := make(chan error, 1)
	mgr := stream.New(stream.Options{
		URL:            cfg.WSURL,
		Tokens:         sess,
		ReconnectDelay: cfg.ReconnectDelay,
		MaxReconnects:  cfg.MaxReconnects,
		OnFrame:        dispatcher.HandleFrame,
		OnDisconnect: func(err error) {
			if errors.Is(err, stream.ErrAuthRejected) || errors.Is(err, stream.ErrRetriesExhausted) {
				select {
				case linkErr <- err:
				default:
				}
			}
		},
		Logger: logger,
	})
	defer mgr.Disconnect()
	defer dispatcher.Register("auth", monitor.AuthGuard(mgr.Reject, logger))()
	if err := mgr.Connect(); err != nil {
		return loginHint(fmt.Errorf("connect: %w", err))
	}

	clearScreen := term.IsTerminal(int(os.Stdout.Fd()))
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := watcher.Refresh(gctx); err != nil {
			return loginHint(fmt.Errorf("list sessions: %w", err))
		}
		return nil
	})
	g.Go(func() error {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case err := <-linkErr:
				if errors.Is(err, stream.ErrAuthRejected) {
					sess.Invalidate()
				}
				return loginHint(fmt.Errorf("event stream: %w", err))
			case <-watcher.Updates():
			case <-ticker.C:
			}
			running, finished, err := watcher.Sessions()
			if clearScreen {
				fmt.Print("\033[H\033[2J")
			}
			renderCompact(os.Stdout, panel.Snapshot())
			renderSessions(os.Stdout, running, finished, time.Now())
			if err != nil {
				fmt.Printf("\n(refresh failed: %v)\n", err)
			}
		}
	})
	return g.Wait()
}

func renderSessions(w io.Writer, running, finished []models.ScrapeSession, now time.Time) {
	if len(running)+len(finished) == 0 {
		fmt.Fprintln(w, "No sessions found.")
		return
	}
	if len(running) > 0 {
		fmt.Fprintf(w, "Running (%d):\n", len(running))
		for _, s := range running {
			renderSession(w, s, now)
		}
		fmt.Fprintln(w)
	}
	if len(finished) > 0 {
		fmt.Fprintf(w, "Finished (%d):\n", len(finished))
		for _, s := range finished {
			renderSession(w, s, now)
		}
	}
}

func renderSession(w io.Writer, s models.ScrapeSession, now time.Time) {
	name := s.ListName
	if name == "" {
		name = s.ListID
	}
	fmt.Fprintf(w, "  %-12s %-24s %-8s %5d leads %4d dupes  %s  %s\n",
		truncate(s.ID, 12), truncate(name, 24), s.Status, s.LeadsFound, s.DupesSkipped,
		s.CreatedAt.Local().Format("2006-01-02 15:04"), formatDuration(s.Duration(now)))
}

func renderCompact(w io.Writer, p monitor.CompactProgress) {
	if p.Processed == 0 && p.LeadsFound == 0 && !p.Done && len(p.Logs) == 0 {
		return
	}
	state := "running"
	if p.Done {
		state = "done"
	}
	fmt.Fprintf(w, "Job %s: %d%%  %d leads  %d dupes  %d/%d sites\n",
		state, p.Percent, p.LeadsFound, p.Duplicates, p.Processed, p.Total)
	logs := p.Logs
	if len(logs) > 3 {
		logs = logs[len(logs)-3:]
	}
	for _, e := range logs {
		fmt.Fprintf(w, "  %s %s\n", e.Time.Format("15:04:05"), e.Message)
	}
	fmt.Fprintln(w)
}
