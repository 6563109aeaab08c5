package history

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/dyluth/mosaic/internal/ledger"
)

// FormatTable writes placements as a formatted table to the provided writer.
// The table includes columns: ID, WORKER, OUTCOME, POSITION, COLOUR, AGE and NEXT.
// Returns the number of placements formatted.
func FormatTable(w io.Writer, placements []*ledger.Placement, instanceName string, now time.Time) int {
	if len(placements) == 0 {
		fmt.Fprintf(w, "No placements found for instance '%s'\n", instanceName)
		return 0
	}

	fmt.Fprintf(w, "Placements for instance '%s':\n\n", instanceName)

	fmt.Fprintf(w, "%-8s %-16s %-15s %-11s %-12s %-8s %s\n",
		"ID", "WORKER", "OUTCOME", "POSITION", "COLOUR", "AGE", "NEXT")
	fmt.Fprintf(w, "%-8s %-16s %-15s %-11s %-12s %-8s %s\n",
		"--------", "----------------", "---------------", "-----------", "------------", "--------", "--------")

	for _, p := range placements {
		fmt.Fprintf(w, "%-8s %-16s %-15s %-11s %-12s %-8s %s\n",
			formatID(p.ID),
			truncate(p.Worker, 16),
			p.Outcome,
			fmt.Sprintf("%d,%d", p.X, p.Y),
			truncate(p.ColorName, 12),
			formatAge(p.AttemptedAtMs, now),
			formatNext(p.NextEligibleAtMs, p.AttemptedAtMs),
		)
	}

	noun := "placement"
	if len(placements) != 1 {
		noun = "placements"
	}
	fmt.Fprintf(w, "\n%d %s found\n", len(placements), noun)

	return len(placements)
}

// FormatJSONL writes placements as line-delimited JSON, one object per line.
func FormatJSONL(w io.Writer, placements []*ledger.Placement) error {
	for _, p := range placements {
		data, err := ledger.EncodePlacement(p)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "%s\n", data); err != nil {
			return fmt.Errorf("failed to write JSONL output: %w", err)
		}
	}
	return nil
}

// FormatDetail writes one placement as indented JSON.
func FormatDetail(w io.Writer, p *ledger.Placement) error {
	data, err := ledger.EncodePlacement(p)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := json.Indent(&buf, data, "", "  "); err != nil {
		return fmt.Errorf("failed to format placement: %w", err)
	}
	buf.WriteByte('\n')

	_, err = w.Write(buf.Bytes())
	return err
}

// FormatLine renders one placement as a single human-readable line.
func FormatLine(p *ledger.Placement) string {
	line := fmt.Sprintf("%s %-15s %-16s %-12s %d,%d",
		time.UnixMilli(p.AttemptedAtMs).Format("15:04:05"),
		p.Outcome, p.Worker, p.ColorName, p.X, p.Y)
	if p.Message != "" {
		line += " (" + p.Message + ")"
	}
	return line
}

// formatID truncates the placement ID to its first 8 characters.
func formatID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, n int) string {
	if s == "" {
		return "-"
	}
	if len(s) > n {
		return s[:n-3] + "..."
	}
	return s
}

// formatAge shows how long ago the attempt was, like "2m ago".
func formatAge(timestampMs int64, now time.Time) string {
	if timestampMs == 0 {
		return "-"
	}

	diff := now.Sub(time.UnixMilli(timestampMs))
	switch {
	case diff < time.Minute:
		return fmt.Sprintf("%ds ago", int(diff.Seconds()))
	case diff < time.Hour:
		return fmt.Sprintf("%dm ago", int(diff.Minutes()))
	case diff < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(diff.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(diff.Hours()/24))
	}
}

// formatNext shows the cooldown that followed the attempt, like "+5m0s".
func formatNext(nextMs, attemptedMs int64) string {
	if nextMs == 0 || nextMs <= attemptedMs {
		return "-"
	}
	return "+" + (time.Duration(nextMs-attemptedMs) * time.Millisecond).Round(time.Second).String()
}
