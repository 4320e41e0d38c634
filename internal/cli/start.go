package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/leadwatch/internal/models"
)

var (
	startTarget      int
	startSectors     []string
	startCountries   []string
	startMinScore    int
	startConcurrency int
	startEmail       bool
	startDeep        bool
	startPuppeteer   bool
	startWatch       bool
)

var startCmd = &cobra.Command{
	Use:   "start <list-id>",
	Short: "Start a scrape job that extends a lead list",
	Long: `Ask the backend to find more leads for a list. Without --target the list's
own target is used.

With --watch the dashboard opens first and the job is requested once the
event stream is connected, so no early events are missed.

Examples:
  leadwatch start abc123
  leadwatch start abc123 --target 250 --sectors bakery,butcher --countries nl,be
  leadwatch start abc123 --watch`,
	Args: cobra.ExactArgs(1),
	RunE: runStart,
}

func init() {
	def := models.DefaultScrapeConfig()
	startCmd.Flags().IntVarP(&startTarget, "target", "t", 0, "target number of leads (default: the list's target)")
	startCmd.Flags().StringSliceVar(&startSectors, "sectors", nil, "sector keys to search")
	startCmd.Flags().StringSliceVar(&startCountries, "countries", nil, "country keys to search")
	startCmd.Flags().IntVar(&startMinScore, "min-score", def.MinScore, "minimum lead score to keep")
	startCmd.Flags().IntVar(&startConcurrency, "concurrency", def.Concurrency, "parallel site visits")
	startCmd.Flags().BoolVar(&startEmail, "email-validation", def.EmailValidation, "validate email addresses")
	startCmd.Flags().BoolVar(&startDeep, "deep-validation", def.DeepValidation, "run deep (SMTP) validation")
	startCmd.Flags().BoolVar(&startPuppeteer, "puppeteer", def.UsePuppeteer, "search with a headless browser")
	startCmd.Flags().BoolVar(&startWatch, "watch", false, "open the dashboard and follow the job")
}

func runStart(cmd *cobra.Command, args []string) error {
	ws, err := activeWorkspace()
	if err != nil {
		return err
	}
	listID := args[0]

	sc := models.DefaultScrapeConfig()
	sc.MinScore = startMinScore
	sc.Concurrency = startConcurrency
	sc.EmailValidation = startEmail
	sc.DeepValidation = startDeep
	sc.UsePuppeteer = startPuppeteer
	if len(startSectors) > 0 {
		sc.SectorKeys = startSectors
	}
	if len(startCountries) > 0 {
		sc.CountryKeys = startCountries
	}

	sc.TargetLeads = startTarget
	if sc.TargetLeads <= 0 {
		list, err := api.GetList(cmd.Context(), ws.ID, listID)
		if err != nil {
			return loginHint(fmt.Errorf("get list: %w", err))
		}
		sc.TargetLeads = list.TargetLeads
	}
	if sc.TargetLeads <= 0 {
		sc.TargetLeads = models.DefaultScrapeConfig().TargetLeads
	}

	if startWatch {
		return runDashboard(cmd.Context(), dashboardOptions{
			workspace: ws,
			listID:    listID,
			target:    sc.TargetLeads,
			start:     &sc,
		})
	}

	resp, err := api.ExtendList(cmd.Context(), listID, ws.ID, sc)
	if err != nil {
		return loginHint(fmt.Errorf("start job: %w", err))
	}
	fmt.Printf("Job started (session %s), target %d leads.\n", resp.SessionID, sc.TargetLeads)
	fmt.Println("Follow it with 'leadwatch watch --list " + listID + "'.")
	return nil
}
