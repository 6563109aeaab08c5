package commands

import (
	"fmt"

	"github.com/dyluth/mosaic/internal/scaffold"
	"github.com/spf13/cobra"
)

var (
	forceInit bool
	initDir   string
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a new mosaic project",
	Long: `Initialize a new mosaic project with a starter configuration.

Creates:
  • mosaic.yml - Template, workers, pacing and remote settings
  • canvas.yml - Canvas offsets, re-read on every template refresh

Use --force to reinitialize an existing project (WARNING: overwrites existing configuration).`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVarP(&forceInit, "force", "f", false, "Overwrite existing mosaic.yml and canvas.yml")
	initCmd.Flags().StringVarP(&initDir, "dir", "d", ".", "Directory to initialize")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	if err := scaffold.Initialize(initDir, forceInit); err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	scaffold.PrintSuccess()
	return nil
}
