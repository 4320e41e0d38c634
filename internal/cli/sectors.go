package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/raphaelgruber/leadwatch/internal/models"
)

var sectorsUseCase string

var sectorsCmd = &cobra.Command{
	Use:   "sectors",
	Short: "Show or replace the sector catalogue",
	Long: `Print the sector catalogue (sector keys, labels and search queries) as
YAML. Edit the output and load it back with 'sectors save'.

Examples:
  leadwatch sectors > sectors.yaml
  leadwatch sectors save sectors.yaml
  cat sectors.yaml | leadwatch sectors save -`,
	Args: cobra.NoArgs,
	RunE: runSectors,
}

var sectorsSaveCmd = &cobra.Command{
	Use:   "save <file|->",
	Short: "Replace the sector catalogue from a YAML file",
	Args:  cobra.ExactArgs(1),
	RunE:  runSaveSectors,
}

func init() {
	sectorsCmd.Flags().StringVar(&sectorsUseCase, "use-case", "", "use case to show the catalogue for")
	sectorsCmd.AddCommand(sectorsSaveCmd)
}

func runSectors(cmd *cobra.Command, args []string) error {
	if _, err := sess.RequireToken(); err != nil {
		return loginHint(err)
	}
	sectors, err := api.Sectors(cmd.Context(), sectorsUseCase)
	if err != nil {
		return loginHint(fmt.Errorf("get sectors: %w", err))
	}

	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	if err := enc.Encode(sectors); err != nil {
		return fmt.Errorf("encode sectors: %w", err)
	}
	return enc.Close()
}

func runSaveSectors(cmd *cobra.Command, args []string) error {
	if _, err := sess.RequireToken(); err != nil {
		return loginHint(err)
	}

	var (
		data []byte
		err  error
	)
	if args[0] == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(args[0])
	}
	if err != nil {
		return fmt.Errorf("read sectors: %w", err)
	}

	sectors, err := parseSectors(data)
	if err != nil {
		return err
	}
	if err := api.SaveSectors(cmd.Context(), sectors); err != nil {
		return loginHint(fmt.Errorf("save sectors: %w", err))
	}
	fmt.Printf("Saved %d sectors.\n", len(sectors))
	return nil
}

// parseSectors decodes and validates a YAML sector catalogue.
func parseSectors(data []byte) ([]models.Sector, error) {
	var sectors []models.Sector
	if err := yaml.Unmarshal(data, &sectors); err != nil {
		return nil, fmt.Errorf("parse sectors: %w", err)
	}
	seen := make(map[string]bool, len(sectors))
	for i, s := range sectors {
		if s.Key == "" {
			return nil, fmt.Errorf("sector %d: key is required", i+1)
		}
		if seen[s.Key] {
			return nil, fmt.Errorf("sector %q: duplicate key", s.Key)
		}
		seen[s.Key] = true
		if len(s.Queries) == 0 {
			return nil, fmt.Errorf("sector %q: at least one query is required", s.Key)
		}
	}
	return sectors, nil
}
