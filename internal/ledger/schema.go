package ledger

import (
	"fmt"
	"regexp"
)

// MaxInstanceNameLength bounds instance names so keys stay readable.
const MaxInstanceNameLength = 63

// instanceNamePattern allows lowercase alphanumerics with inner hyphens.
var instanceNamePattern = regexp.MustCompile(`^[a-z0-9]([-a-z0-9]*[a-z0-9])?$`)

// ValidateInstanceName checks a key namespace. Names must be lowercase
// alphanumeric with hyphens (not at start/end) so they never contain ':'.
func ValidateInstanceName(name string) error {
	if name == "" {
		return fmt.Errorf("instance name cannot be empty")
	}
	if len(name) > MaxInstanceNameLength {
		return fmt.Errorf("instance name too long: %d characters (max: %d)", len(name), MaxInstanceNameLength)
	}
	if !instanceNamePattern.MatchString(name) {
		return fmt.Errorf("invalid instance name '%s': must be lowercase alphanumeric with hyphens (not at start/end)", name)
	}
	return nil
}

// TokenKey returns the Redis key holding a worker's session token.
// Pattern: mosaic:{instance}:token:{worker}
func TokenKey(instanceName, worker string) string {
	return fmt.Sprintf("mosaic:%s:token:%s", instanceName, worker)
}

// PlacementsKey returns the Redis list holding the placement journal.
// Pattern: mosaic:{instance}:placements
func PlacementsKey(instanceName string) string {
	return fmt.Sprintf("mosaic:%s:placements", instanceName)
}

// PlacementEventsChannel returns the Pub/Sub channel for placement events.
// Pattern: mosaic:{instance}:placement_events
func PlacementEventsChannel(instanceName string) string {
	return fmt.Sprintf("mosaic:%s:placement_events", instanceName)
}
