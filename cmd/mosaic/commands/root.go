package commands

import (
	"fmt"

	"github.com/dyluth/mosaic/internal/config"
	"github.com/dyluth/mosaic/internal/printer"
	"github.com/spf13/cobra"
)

var (
	version string
	commit  string
	date    string

	configPath string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "mosaic",
	Short: "Mosaic - collaborative canvas pixel placer",
	Long: `Mosaic keeps a region of a shared pixel canvas matching a template image.

It runs one worker per configured account. Each worker finds a pixel that
differs from the template, places the right colour, and waits out the
server-imposed cooldown before placing the next one.`,
	Version: version,
	// If no subcommand is specified, show help
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
	// Enable strict flag parsing - unknown flags will cause an error
	FParseErrWhitelist: cobra.FParseErrWhitelist{},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	// We print formatted colored errors directly in the printer package
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
	return rootCmd.Execute()
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", v, c, d)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "mosaic.yml", "Path to the configuration file")
}

// loadConfig reads the --config file, turning failures into a printed error.
func loadConfig() (*config.MosaicConfig, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, printer.Error(
			"failed to load configuration",
			err.Error(),
			[]string{
				fmt.Sprintf("Check %s, or create a starter project:\n  mosaic init", configPath),
			},
		)
	}
	return cfg, nil
}
