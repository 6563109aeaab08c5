// Package timespec turns the --since and --until values of `mosaic history`
// into journal timestamps.
package timespec

import (
	"fmt"
	"strconv"
	"time"
)

// minJournalMs rejects bare numbers too small to be a placement timestamp
// (anything before 2001), so "90" is not read as 90ms after the epoch.
const minJournalMs = 1_000_000_000_000

// Parse resolves an instant in the journal's millisecond clock. Accepted:
//
//	30m, 1h30m               attempts that long before now
//	2025-10-29T13:00:00Z     an RFC3339 instant
//	1690000300000            attempted_at_ms copied from JSONL output
func Parse(value string, now time.Time) (int64, error) {
	if value == "" {
		return 0, fmt.Errorf("empty time value")
	}

	if ms, err := strconv.ParseInt(value, 10, 64); err == nil {
		if ms < minJournalMs {
			return 0, fmt.Errorf("time value %s is not a millisecond timestamp", value)
		}
		return ms, nil
	}

	if at, err := time.Parse(time.RFC3339, value); err == nil {
		return at.UnixMilli(), nil
	}

	ago, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("unrecognised time value %q: want a duration ago (45m), RFC3339, or attempted_at_ms", value)
	}
	if ago < 0 {
		return 0, fmt.Errorf("time value %s looks into the future; durations count back from now", value)
	}
	return now.Add(-ago).UnixMilli(), nil
}

// ParseRange resolves both flags against the same now. An unset flag yields 0,
// which the placement filter treats as open-ended.
func ParseRange(since, until string, now time.Time) (sinceMs, untilMs int64, err error) {
	if since != "" {
		if sinceMs, err = Parse(since, now); err != nil {
			return 0, 0, fmt.Errorf("invalid --since: %w", err)
		}
	}
	if until != "" {
		if untilMs, err = Parse(until, now); err != nil {
			return 0, 0, fmt.Errorf("invalid --until: %w", err)
		}
	}

	if sinceMs > 0 && untilMs > 0 && sinceMs >= untilMs {
		return 0, 0, fmt.Errorf("--since must be before --until")
	}
	return sinceMs, untilMs, nil
}
