package realtime

import "strings"

// Named realtime streams used across the portal.
const (
	// StreamActivity carries the per-organization admin activity feed. The
	// concrete stream name is scoped with the organization ID.
	StreamActivity = "activity"
)

// ActivityStream returns the stream name for an organization's activity feed.
func ActivityStream(orgID string) string {
	return StreamActivity + ":" + strings.ToLower(orgID)
}
