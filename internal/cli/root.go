// Package cli provides the command-line interface for leadwatch.
package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/leadwatch/internal/client"
	"github.com/raphaelgruber/leadwatch/internal/config"
	"github.com/raphaelgruber/leadwatch/internal/metrics"
	"github.com/raphaelgruber/leadwatch/internal/models"
	"github.com/raphaelgruber/leadwatch/internal/session"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	verbose      bool
	apiURLFlag   string
	wsURLFlag    string
	workspaceArg string

	// Global state, set up before every command
	cfg      config.Config
	logger   *slog.Logger
	closeLog func() error
	sess     *session.Session
	api      *client.Client
)

// tuiAnnotation marks commands that own the terminal; their logs go to the
// log file only. See ownsTerminal.
const tuiAnnotation = "tui"

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "leadwatch",
	Short: "Follow lead-scraping jobs from the terminal",
	Long: `Leadwatch is a terminal client for the lead-scraping backend.

It signs in, selects a workspace, starts and stops scrape jobs and follows
them live: progress against the lead target, throughput, ETA, the backend's
log stream and a lead table that merges live discoveries with persisted
results.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}

		cfg = config.Load()
		if apiURLFlag != "" {
			cfg.APIURL = apiURLFlag
		}
		if wsURLFlag != "" {
			cfg.WSURL = wsURLFlag
		}
		level := cfg.LogLevel
		if verbose {
			level = slog.LevelDebug
		}

		if ownsTerminal(cmd) {
			logger, closeLog = config.SetupFileLogger(cfg.LogFile, level)
		} else {
			logger, closeLog = config.SetupLogger(cfg.LogFile, level)
		}
		slog.SetDefault(logger)

		var err error
		sess, err = session.Open(stateStore(), logger)
		if err != nil {
			return fmt.Errorf("load session: %w", err)
		}

		api = client.New(cfg.APIURL,
			client.WithTimeout(cfg.ClientTimeout),
			client.WithTokenSource(sess),
			client.WithUnauthorizedHook(sess.Invalidate),
			client.WithCollector(metrics.NewCollector()),
			client.WithLogger(logger),
		)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if verbose && api != nil {
			printStats(api.Stats())
		}
		if closeLog != nil {
			if err := closeLog(); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to close log file: %v\n", err)
			}
		}
	},
}

// stateStore picks the persisted-state backend from the configuration.
func stateStore() session.Store {
	file := session.NewFileStore(cfg.StateFile)
	if cfg.TokenStore == config.TokenStoreKeyring {
		return session.NewKeyringStore(file, "default")
	}
	return file
}

// activeWorkspace resolves the workspace a command acts on: the --workspace
// flag if given, else the persisted selection.
func activeWorkspace() (models.Workspace, error) {
	if _, err := sess.RequireToken(); err != nil {
		return models.Workspace{}, loginHint(err)
	}
	if workspaceArg != "" {
		return models.Workspace{ID: workspaceArg, Name: workspaceArg}, nil
	}
	ws, err := sess.Workspace()
	if err != nil {
		return models.Workspace{}, fmt.Errorf("%w: run 'leadwatch workspaces use <id>'", err)
	}
	return ws, nil
}

// loginHint decorates authentication failures with the way out.
func loginHint(err error) error {
	if errors.Is(err, session.ErrNotLoggedIn) || errors.Is(err, client.ErrUnauthorized) {
		return fmt.Errorf("%w: run 'leadwatch login'", err)
	}
	return err
}

func printStats(s metrics.Snapshot) {
	if len(s.Operations) == 0 {
		return
	}
	fmt.Fprintln(os.Stderr, "\nRequests:")
	for _, op := range s.Operations {
		fmt.Fprintf(os.Stderr, "  %-16s %3d calls  %d failed  avg %.0fms  max %dms\n",
			op.Op, op.Count, op.Failures, op.AvgTimeMs, op.MaxTimeMs)
	}
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&apiURLFlag, "api-url", "", "backend REST URL (overrides LEADWATCH_API_URL)")
	rootCmd.PersistentFlags().StringVar(&wsURLFlag, "ws-url", "", "backend websocket URL (overrides LEADWATCH_WS_URL)")
	rootCmd.PersistentFlags().StringVarP(&workspaceArg, "workspace", "w", "", "workspace ID (defaults to the selected workspace)")

	// Add subcommands
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(registerCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(workspacesCmd)
	rootCmd.AddCommand(listsCmd)
	rootCmd.AddCommand(leadsCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(sectorsCmd)
	rootCmd.AddCommand(watchCmd)
}
