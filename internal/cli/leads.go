package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/leadwatch/internal/models"
)

var (
	leadsList     string
	leadsPage     int
	leadsLimit    int
	leadsMinScore int
	leadsSearch   string
)

var leadsCmd = &cobra.Command{
	Use:   "leads",
	Short: "Show persisted leads",
	Long: `Show one page of persisted leads of the active workspace.

Examples:
  leadwatch leads
  leadwatch leads --list abc123 --min-score 60
  leadwatch leads --search bakery --page 2`,
	Args: cobra.NoArgs,
	RunE: runLeads,
}

func init() {
	leadsCmd.Flags().StringVarP(&leadsList, "list", "l", "", "restrict to one lead list")
	leadsCmd.Flags().IntVar(&leadsPage, "page", 1, "page number (1-based)")
	leadsCmd.Flags().IntVarP(&leadsLimit, "limit", "n", 0, "page size (default LEADWATCH_PAGE_SIZE)")
	leadsCmd.Flags().IntVar(&leadsMinScore, "min-score", 0, "minimum score")
	leadsCmd.Flags().StringVarP(&leadsSearch, "search", "s", "", "search text")
}

func runLeads(cmd *cobra.Command, args []string) error {
	ws, err := activeWorkspace()
	if err != nil {
		return err
	}
	limit := leadsLimit
	if limit <= 0 {
		limit = cfg.PageSize
	}
	q := models.LeadQuery{
		WorkspaceID: ws.ID,
		ListID:      leadsList,
		Page:        leadsPage,
		Limit:       limit,
		MinScore:    leadsMinScore,
		Search:      leadsSearch,
	}.Normalize()

	page, err := api.ListLeads(cmd.Context(), q)
	if err != nil {
		return loginHint(fmt.Errorf("list leads: %w", err))
	}

	if len(page.Data) == 0 {
		fmt.Println("No leads found.")
		return nil
	}

	fmt.Printf("%-28s %-30s %-32s %5s\n", "DOMAIN", "COMPANY", "EMAIL", "SCORE")
	fmt.Println("------------------------------------------------------------------------------------------------")
	for _, l := range page.Data {
		fmt.Printf("%-28s %-30s %-32s %5d\n", truncate(l.Key(), 28), truncate(l.CompanyName, 30), truncate(l.Email, 32), l.Score)
		if verbose {
			if l.Phone != "" {
				fmt.Printf("  Phone: %s\n", l.Phone)
			}
			if l.Sector != "" || l.Country != "" {
				fmt.Printf("  Sector: %s  Country: %s\n", l.Sector, l.Country)
			}
		}
	}

	pages := max(1, (page.Total+q.Limit-1)/q.Limit)
	fmt.Printf("\nPage %d/%d, %d leads total\n", q.Page, pages, page.Total)
	return nil
}
