package cli

import (
	"context"
	"errors"
	"fmt"

	tea "charm.land/bubbletea/v2"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/raphaelgruber/leadwatch/internal/events"
	"github.com/raphaelgruber/leadwatch/internal/logbuf"
	"github.com/raphaelgruber/leadwatch/internal/models"
	"github.com/raphaelgruber/leadwatch/internal/monitor"
	"github.com/raphaelgruber/leadwatch/internal/records"
	"github.com/raphaelgruber/leadwatch/internal/stream"
)

var (
	watchList   string
	watchTarget int
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Open the live job dashboard",
	Long: `Follow the workspace's scrape job live: phase, progress against the
target, throughput and ETA, the backend log and a lead table that shows new
leads the moment they are found.

Logs are written to the log file only while the dashboard is open.

Examples:
  leadwatch watch
  leadwatch watch --list abc123`,
	Args:        cobra.NoArgs,
	Annotations: map[string]string{tuiAnnotation: ""},
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := activeWorkspace()
		if err != nil {
			return err
		}
		return runDashboard(cmd.Context(), dashboardOptions{
			workspace: ws,
			listID:    watchList,
			target:    watchTarget,
		})
	},
}

func init() {
	watchCmd.Flags().StringVarP(&watchList, "list", "l", "", "lead list to show (default: all leads of the workspace)")
	watchCmd.Flags().IntVarP(&watchTarget, "target", "t", 0, "target used for progress and ETA (default: the list's target)")
	startCmd.Annotations = map[string]string{tuiAnnotation: "watch"}
}

// ownsTerminal reports whether cmd renders a full-screen UI. An annotation
// value names a bool flag that must be set for the UI to open.
func ownsTerminal(cmd *cobra.Command) bool {
	flag, ok := cmd.Annotations[tuiAnnotation]
	if !ok {
		return false
	}
	if flag == "" {
		return true
	}
	on, _ := cmd.Flags().GetBool(flag)
	return on
}

// runDashboard wires the stream, the dispatcher and the monitor together
// and runs the dashboard until the user quits.
func runDashboard(ctx context.Context, opts dashboardOptions) error {
	if _, err := sess.RequireToken(); err != nil {
		return loginHint(err)
	}
	if opts.target <= 0 {
		opts.target = models.DefaultScrapeConfig().TargetLeads
		if opts.listID != "" {
			list, err := api.GetList(ctx, opts.workspace.ID, opts.listID)
			if err != nil {
				return loginHint(fmt.Errorf("get list: %w", err))
			}
			if list.TargetLeads > 0 {
				opts.target = list.TargetLeads
			}
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		mon  *monitor.JobMonitor
		prog *tea.Program
	)

	store := records.NewStore(api, models.LeadQuery{
		WorkspaceID: opts.workspace.ID,
		ListID:      opts.listID,
		Page:        1,
		Limit:       cfg.PageSize,
	},
		records.WithLogger(logger),
		records.WithFetchTimeout(cfg.ClientTimeout),
		records.WithOnChange(func() { mon.Notify() }),
	)
	defer store.Close()

	dispatcher := events.NewDispatcher(logger)
	mgr := stream.New(stream.Options{
		URL:            cfg.WSURL,
		Tokens:         sess,
		ReconnectDelay: cfg.ReconnectDelay,
		MaxReconnects:  cfg.MaxReconnects,
		OnFrame:        dispatcher.HandleFrame,
		OnConnect:      func() { mon.SetConnected(true, nil) },
		OnDisconnect: func(err error) {
			mon.SetConnected(false, err)
			if errors.Is(err, stream.ErrAuthRejected) {
				sess.Invalidate()
				prog.Send(authRejectedMsg{err: err})
			}
		},
		Logger: logger,
	})
	defer mgr.Disconnect()

	mon = monitor.NewJobMonitor(store, logbuf.New(cfg.LogCapacity), monitor.JobConfig{
		WorkspaceID: opts.workspace.ID,
		Target:      opts.target,
		SettleDelay: cfg.SettleDelay,
		Logger:      logger,
	})
	defer dispatcher.Register("auth", monitor.AuthGuard(mgr.Reject, logger))()
	defer dispatcher.Register("job", mon.Handle)()

	prog = tea.NewProgram(newDashboardModel(ctx, mon, api, opts))
	if err := mgr.Connect(); err != nil {
		return loginHint(fmt.Errorf("connect: %w", err))
	}
	logger.Info("dashboard opened", "workspace_id", opts.workspace.ID, "list_id", opts.listID, "target", opts.target)

	var final tea.Model
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := mon.Refresh(gctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("initial lead fetch failed", "error", err)
		}
		return nil
	})
	g.Go(func() error {
		defer cancel()
		var err error
		final, err = prog.Run()
		if err != nil {
			return fmt.Errorf("dashboard UI error: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	if m, ok := final.(dashboardModel); ok && m.err != nil {
		return m.err
	}
	return nil
}
