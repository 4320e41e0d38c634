package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/leadwatch/internal/models"
)

var workspacesCmd = &cobra.Command{
	Use:     "workspaces",
	Aliases: []string{"ws"},
	Short:   "List, create or select workspaces",
	Long: `List the workspaces of the signed-in account. The selected workspace is
marked with '*' and used by every other command unless --workspace is given.

Examples:
  leadwatch workspaces
  leadwatch workspaces use acme
  leadwatch workspaces create "Acme BV"`,
	Args: cobra.NoArgs,
	RunE: runListWorkspaces,
}

var workspacesUseCmd = &cobra.Command{
	Use:   "use <id-or-name>",
	Short: "Select the active workspace",
	Args:  cobra.ExactArgs(1),
	RunE:  runUseWorkspace,
}

var workspacesCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a workspace and select it",
	Args:  cobra.ExactArgs(1),
	RunE:  runCreateWorkspace,
}

func init() {
	workspacesCmd.AddCommand(workspacesUseCmd)
	workspacesCmd.AddCommand(workspacesCreateCmd)
}

func runListWorkspaces(cmd *cobra.Command, args []string) error {
	if _, err := sess.RequireToken(); err != nil {
		return loginHint(err)
	}
	workspaces, err := api.ListWorkspaces(cmd.Context())
	if err != nil {
		return loginHint(fmt.Errorf("list workspaces: %w", err))
	}

	if len(workspaces) == 0 {
		fmt.Println("No workspaces found. Create one with 'leadwatch workspaces create <name>'.")
		return nil
	}

	active, _ := sess.Workspace()
	fmt.Printf("Workspaces (%d):\n\n", len(workspaces))
	for _, ws := range workspaces {
		mark := " "
		if ws.ID == active.ID {
			mark = "*"
		}
		fmt.Printf("%s %-24s %s\n", mark, ws.ID, ws.Name)
	}
	return nil
}

func runUseWorkspace(cmd *cobra.Command, args []string) error {
	if _, err := sess.RequireToken(); err != nil {
		return loginHint(err)
	}
	workspaces, err := api.ListWorkspaces(cmd.Context())
	if err != nil {
		return loginHint(fmt.Errorf("list workspaces: %w", err))
	}

	ws, ok := findWorkspace(workspaces, args[0])
	if !ok {
		return fmt.Errorf("workspace not found: %s", args[0])
	}
	if err := sess.SetWorkspace(ws); err != nil {
		return fmt.Errorf("select workspace: %w", err)
	}
	fmt.Printf("Using workspace %s (%s).\n", ws.Name, ws.ID)
	return nil
}

func runCreateWorkspace(cmd *cobra.Command, args []string) error {
	if _, err := sess.RequireToken(); err != nil {
		return loginHint(err)
	}
	ws, err := api.CreateWorkspace(cmd.Context(), args[0])
	if err != nil {
		return loginHint(fmt.Errorf("create workspace: %w", err))
	}
	if err := sess.SetWorkspace(*ws); err != nil {
		return fmt.Errorf("select workspace: %w", err)
	}
	fmt.Printf("Created and selected workspace %s (%s).\n", ws.Name, ws.ID)
	return nil
}

// findWorkspace matches by ID first, then by case-insensitive name.
func findWorkspace(workspaces []models.Workspace, ref string) (models.Workspace, bool) {
	for _, ws := range workspaces {
		if ws.ID == ref {
			return ws, true
		}
	}
	for _, ws := range workspaces {
		if strings.EqualFold(ws.Name, ref) {
			return ws, true
		}
	}
	return models.Workspace{}, false
}
