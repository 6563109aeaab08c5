package filter

import (
	"path/filepath"

	"github.com/dyluth/mosaic/internal/ledger"
)

// Criteria defines filtering criteria for placement journal entries.
// All filters are ANDed together - an entry must match ALL criteria to pass.
type Criteria struct {
	SinceTimestampMs int64          // Unix timestamp in milliseconds, 0 = no filter
	UntilTimestampMs int64          // Unix timestamp in milliseconds, 0 = no filter
	WorkerGlob       string         // Glob pattern for the worker name, empty = no filter
	Outcome          ledger.Outcome // Exact outcome match, empty = no filter
}

// Matches returns true if the placement matches all filter criteria.
func (c *Criteria) Matches(p *ledger.Placement) bool {
	if c.SinceTimestampMs > 0 && p.AttemptedAtMs < c.SinceTimestampMs {
		return false
	}
	if c.UntilTimestampMs > 0 && p.AttemptedAtMs > c.UntilTimestampMs {
		return false
	}

	if c.WorkerGlob != "" {
		matched, err := filepath.Match(c.WorkerGlob, p.Worker)
		if err != nil || !matched {
			return false
		}
	}

	if c.Outcome != "" && p.Outcome != c.Outcome {
		return false
	}

	return true
}

// HasFilters returns true if any filters are active.
func (c *Criteria) HasFilters() bool {
	return c.SinceTimestampMs > 0 ||
		c.UntilTimestampMs > 0 ||
		c.WorkerGlob != "" ||
		c.Outcome != ""
}
