package commands

import (
	"os"

	"github.com/dyluth/mosaic/internal/palette"
	"github.com/dyluth/mosaic/internal/printer"
	"github.com/spf13/cobra"
)

var paletteCmd = &cobra.Command{
	Use:   "palette",
	Short: "List the colour palette",
	Long: `List every palette colour with its ID, swatch, hex value and name.

Uses the palette override from the configuration file when one is present,
otherwise the built-in 32-colour palette.`,
	Args: cobra.NoArgs,
	RunE: runPalette,
}

func init() {
	rootCmd.AddCommand(paletteCmd)
}

func runPalette(cmd *cobra.Command, args []string) error {
	p := palette.Default()

	// A missing config file is fine here; a broken one is not.
	if _, err := os.Stat(configPath); err == nil {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if p, err = cfg.BuildPalette(); err != nil {
			return err
		}
	}

	printer.Swatches(swatchRows(p))
	return nil
}

func swatchRows(p *palette.Palette) []printer.SwatchRow {
	colors := p.Colors()
	rows := make([]printer.SwatchRow, len(colors))
	for i, c := range colors {
		rows[i] = printer.SwatchRow{ID: c.ID, Hex: c.Hex, Name: c.Name, RGB: c.RGB}
	}
	return rows
}
