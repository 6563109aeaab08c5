// Package history reads the placement journal for the CLI: listing recent
// attempts with filters and following new ones as they are recorded.
package history

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dyluth/mosaic/internal/filter"
	"github.com/dyluth/mosaic/internal/ledger"
)

// OutputFormat specifies how to format the placement list output.
type OutputFormat string

const (
	// OutputFormatDefault uses a table format
	OutputFormatDefault OutputFormat = "default"

	// OutputFormatJSONL outputs complete placements as line-delimited JSON
	OutputFormatJSONL OutputFormat = "jsonl"
)

// ParseFormat validates a --output flag value.
func ParseFormat(s string) (OutputFormat, error) {
	switch OutputFormat(s) {
	case OutputFormatDefault, "":
		return OutputFormatDefault, nil
	case OutputFormatJSONL:
		return OutputFormatJSONL, nil
	}
	return "", fmt.Errorf("unsupported output format %q (use 'default' or 'jsonl')", s)
}

// Reader returns recent journal entries, newest first. *ledger.Client and
// *ledger.Memory implement it.
type Reader interface {
	RecentPlacements(ctx context.Context, n int) ([]*ledger.Placement, error)
}

// ListPlacements reads up to limit entries, applies filters and writes them
// oldest first.
func ListPlacements(ctx context.Context, r Reader, instanceName string, format OutputFormat, filters *filter.Criteria, limit int, w io.Writer) error {
	placements, err := r.RecentPlacements(ctx, limit)
	if err != nil {
		return fmt.Errorf("failed to read placement journal: %w", err)
	}

	matched := make([]*ledger.Placement, 0, len(placements))
	for i := len(placements) - 1; i >= 0; i-- {
		if filters == nil || filters.Matches(placements[i]) {
			matched = append(matched, placements[i])
		}
	}

	switch format {
	case OutputFormatJSONL:
		return FormatJSONL(w, matched)
	default:
		FormatTable(w, matched, instanceName, time.Now())
		return nil
	}
}

// Follow streams placement events matching filters until ctx is done or the
// subscription ends.
func Follow(ctx context.Context, sub *ledger.Subscription, format OutputFormat, filters *filter.Criteria, w io.Writer) error {
	defer sub.Close()

	errs := sub.Errors()
	for {
		select {
		case <-ctx.Done():
			return nil

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			fmt.Fprintf(os.Stderr, "Warning: skipping malformed placement event: %v\n", err)

		case p, ok := <-sub.Events():
			if !ok {
				return nil
			}
			if filters != nil && !filters.Matches(p) {
				continue
			}

			if format == OutputFormatJSONL {
				if err := FormatJSONL(w, []*ledger.Placement{p}); err != nil {
					return err
				}
				continue
			}
			fmt.Fprintln(w, FormatLine(p))
		}
	}
}
