package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Ask the running job of the workspace to stop",
	Long: `Request a stop of the workspace's running job. The job finishes its
current unit of work and reports itself as stopped.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := activeWorkspace()
		if err != nil {
			return err
		}
		if err := api.StopScrape(cmd.Context(), ws.ID); err != nil {
			return loginHint(fmt.Errorf("stop job: %w", err))
		}
		fmt.Println("Stop requested.")
		return nil
	},
}
