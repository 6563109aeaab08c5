package commands

import (
	"context"
	"fmt"
	"image"
	"sort"
	"time"

	"github.com/dyluth/mosaic/internal/artwork"
	"github.com/dyluth/mosaic/internal/canvas"
	"github.com/dyluth/mosaic/internal/config"
	"github.com/dyluth/mosaic/internal/palette"
	"github.com/dyluth/mosaic/internal/printer"
	"github.com/dyluth/mosaic/internal/remote"
	"github.com/spf13/cobra"
)

var (
	diffBoardPath string
	diffLimit     int
)

var diffCmd = &cobra.Command{
	Use:   "diff",
	Short: "Compare the template against a saved board image",
	Long: `Compare the configured template against a board image on disk.

The board image is in API coordinates, as stitched by 'mosaic run'. The
template area is cropped out of it and every opaque template pixel whose
colour differs is reported, with its visual position and target colour.

Examples:
  # Count and show the first 20 wrong pixels
  mosaic diff --board board.png

  # Show every wrong pixel
  mosaic diff --board board.png --limit 0`,
	Args: cobra.NoArgs,
	RunE: runDiff,
}

func init() {
	diffCmd.Flags().StringVarP(&diffBoardPath, "board", "b", "", "Board image (PNG or JPEG) to compare against")
	diffCmd.Flags().IntVarP(&diffLimit, "limit", "l", 20, "Maximum discrepancies to list (0 = all)")
	_ = diffCmd.MarkFlagRequired("board")
	rootCmd.AddCommand(diffCmd)
}

func runDiff(cmd *cobra.Command, args []string) error {
	if diffLimit < 0 {
		return printer.Error(
			"invalid limit",
			fmt.Sprintf("--limit must be 0 or greater, got %d", diffLimit),
			nil,
		)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	board, err := artwork.LoadImage(diffBoardPath)
	if err != nil {
		return printer.Error("failed to load board", err.Error(), nil)
	}

	report, err := diffBoard(cmd.Context(), cfg, board)
	if err != nil {
		return err
	}

	report.print(diffLimit)
	return nil
}

// diffReport is the outcome of one offline comparison.
type diffReport struct {
	area          image.Rectangle
	offsets       canvas.Offsets
	mapper        *palette.Mapper
	discrepancies []canvas.Discrepancy
}

// diffBoard loads the template and runs the discrepancy engine against board.
func diffBoard(ctx context.Context, cfg *config.MosaicConfig, board image.Image) (*diffReport, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	p, err := cfg.BuildPalette()
	if err != nil {
		return nil, err
	}
	mapper := palette.NewMapper(p)

	pool, err := remote.NewProxyPool(cfg.Proxies)
	if err != nil {
		return nil, err
	}

	loader, err := artwork.NewLoader(cfg.TemplateSource(), cfg.CanvasPath, pool.Client(30*time.Second))
	if err != nil {
		return nil, err
	}

	tmpl, offsets, err := loader.Load(ctx)
	if err != nil {
		return nil, printer.Error("failed to load template", err.Error(), nil)
	}

	area := tmpl.Area(offsets)
	found, err := canvas.Diff(mapper, tmpl, canvas.Crop(board, area))
	if err != nil {
		return nil, err
	}

	sort.Slice(found, func(i, j int) bool {
		if found[i].Local.Y != found[j].Local.Y {
			return found[i].Local.Y < found[j].Local.Y
		}
		return found[i].Local.X < found[j].Local.X
	})

	return &diffReport{area: area, offsets: offsets, mapper: mapper, discrepancies: found}, nil
}

// visual returns the site-facing position of d.
func (r *diffReport) visual(d canvas.Discrepancy) image.Point {
	return r.area.Min.Add(d.Local).Add(r.offsets.Visual)
}

func (r *diffReport) print(limit int) {
	if len(r.discrepancies) == 0 {
		printer.Success("Board matches the template (%dx%d at %v)\n", r.area.Dx(), r.area.Dy(), r.area.Min)
		return
	}

	printer.Warning("%d pixel(s) differ from the template (%dx%d at %v)\n",
		len(r.discrepancies), r.area.Dx(), r.area.Dy(), r.area.Min)

	shown := r.discrepancies
	if limit > 0 && len(shown) > limit {
		shown = shown[:limit]
	}
	for _, d := range shown {
		pos := r.visual(d)
		printer.Printf("  (%d, %d) %s %s\n", pos.X, pos.Y, printer.Swatch(r.mapper.RGB(d.ColorID)), r.mapper.Name(d.ColorID))
	}
	if len(shown) < len(r.discrepancies) {
		printer.Printf("  ... and %d more\n", len(r.discrepancies)-len(shown))
	}
}
