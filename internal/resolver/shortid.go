// Package resolver maps short placement ID prefixes, as shown in history
// tables, back to journal entries.
package resolver

import (
	"context"
	"fmt"
	"strings"

	"github.com/dyluth/mosaic/internal/ledger"
)

// MinShortIDLength is the minimum required length for short ID prefixes.
const MinShortIDLength = 6

// Reader returns recent journal entries, newest first.
type Reader interface {
	RecentPlacements(ctx context.Context, n int) ([]*ledger.Placement, error)
}

// ResolvePlacement finds the single kept journal entry whose ID starts with
// shortID. A full UUID must match exactly.
func ResolvePlacement(ctx context.Context, r Reader, shortID string) (*ledger.Placement, error) {
	shortID = strings.ToLower(shortID)
	if len(shortID) < MinShortIDLength {
		return nil, fmt.Errorf("short ID must be at least %d characters (got %d)", MinShortIDLength, len(shortID))
	}

	placements, err := r.RecentPlacements(ctx, ledger.DefaultHistory)
	if err != nil {
		return nil, fmt.Errorf("failed to search placement journal: %w", err)
	}

	var matches []*ledger.Placement
	for _, p := range placements {
		if strings.HasPrefix(p.ID, shortID) {
			matches = append(matches, p)
		}
	}

	switch len(matches) {
	case 0:
		return nil, &NotFoundError{ShortID: shortID}
	case 1:
		return matches[0], nil
	default:
		ids := make([]string, len(matches))
		for i, p := range matches {
			ids[i] = p.ID
		}
		return nil, &AmbiguousError{ShortID: shortID, Matches: ids}
	}
}

// NotFoundError indicates no kept placement matched the short ID.
type NotFoundError struct {
	ShortID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no placements found matching '%s'", e.ShortID)
}

// AmbiguousError indicates multiple placements matched the short ID.
type AmbiguousError struct {
	ShortID string
	Matches []string
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("ambiguous short ID '%s' matches %d placements", e.ShortID, len(e.Matches))
}

// FormatAmbiguousError lists the matching IDs (up to 10, then "...and N more").
func FormatAmbiguousError(err *AmbiguousError) string {
	var b strings.Builder
	fmt.Fprintf(&b, "ambiguous short ID '%s' matches %d placements:\n", err.ShortID, len(err.Matches))

	displayCount := min(len(err.Matches), 10)
	for i := 0; i < displayCount; i++ {
		fmt.Fprintf(&b, "  %s\n", err.Matches[i])
	}
	if len(err.Matches) > 10 {
		fmt.Fprintf(&b, "  ...and %d more\n", len(err.Matches)-10)
	}

	b.WriteString("\nUse a longer prefix to uniquely identify the placement.")
	return b.String()
}

// IsNotFoundError checks if an error is a NotFoundError.
func IsNotFoundError(err error) bool {
	_, ok := err.(*NotFoundError)
	return ok
}

// IsAmbiguousError checks if an error is an AmbiguousError.
func IsAmbiguousError(err error) bool {
	_, ok := err.(*AmbiguousError)
	return ok
}
