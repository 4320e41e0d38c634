package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/leadwatch/internal/models"
)

var (
	listTarget  int
	listUseCase string
)

var listsCmd = &cobra.Command{
	Use:   "lists",
	Short: "List or create lead lists",
	Long: `List the lead lists of the active workspace.

Examples:
  leadwatch lists
  leadwatch lists create "Installers NL" --target 200 --use-case erp`,
	Args: cobra.NoArgs,
	RunE: runLists,
}

var listsCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a lead list",
	Args:  cobra.ExactArgs(1),
	RunE:  runCreateList,
}

func init() {
	listsCreateCmd.Flags().IntVarP(&listTarget, "target", "t", 100, "target number of leads")
	listsCreateCmd.Flags().StringVar(&listUseCase, "use-case", "", "use case the sector catalogue is tuned for")
	listsCmd.AddCommand(listsCreateCmd)
}

func runLists(cmd *cobra.Command, args []string) error {
	ws, err := activeWorkspace()
	if err != nil {
		return err
	}
	lists, err := api.ListLists(cmd.Context(), ws.ID)
	if err != nil {
		return loginHint(fmt.Errorf("list lists: %w", err))
	}

	if len(lists) == 0 {
		fmt.Println("No lists found.")
		return nil
	}

	fmt.Printf("%-24s %-30s %-10s %s\n", "ID", "NAME", "LEADS", "USE CASE")
	fmt.Println("--------------------------------------------------------------------------------")
	for _, l := range lists {
		fmt.Printf("%-24s %-30s %-10s %s\n", l.ID, truncate(l.Name, 30),
			fmt.Sprintf("%d/%d", l.LeadCount, l.TargetLeads), l.UseCase)
	}
	return nil
}

func runCreateList(cmd *cobra.Command, args []string) error {
	ws, err := activeWorkspace()
	if err != nil {
		return err
	}
	if listTarget <= 0 {
		return fmt.Errorf("--target must be positive")
	}
	list, err := api.CreateList(cmd.Context(), models.CreateListInput{
		WorkspaceID: ws.ID,
		Name:        args[0],
		TargetLeads: listTarget,
		UseCase:     listUseCase,
	})
	if err != nil {
		return loginHint(fmt.Errorf("create list: %w", err))
	}
	fmt.Printf("Created list %s (%s), target %d leads.\n", list.Name, list.ID, list.TargetLeads)
	return nil
}
