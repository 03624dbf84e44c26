package realtime

import (
	"context"
	"net/http"
	"time"
)

// ActivityFeed pushes domain events onto each organization's activity stream.
// It satisfies the event emitter interface the post service publishes through.
type ActivityFeed struct {
	hub *Hub
	now func() time.Time
}

// NewActivityFeed wraps a hub in an organization-scoped event emitter.
func NewActivityFeed(hub *Hub) *ActivityFeed {
	return &ActivityFeed{hub: hub, now: time.Now}
}

// Emit broadcasts the event to every dashboard watching the organization.
func (f *ActivityFeed) Emit(_ context.Context, orgID, event string, payload map[string]any) {
	if orgID == "" || event == "" {
		return
	}
	f.hub.Broadcast(ActivityStream(orgID), Message{
		Event:      event,
		Data:       payload,
		OccurredAt: f.now().UTC(),
	})
}

// Serve attaches a team member's dashboard to their organization's stream.
func (f *ActivityFeed) Serve(userID, orgID string, w http.ResponseWriter, r *http.Request) {
	stream := ActivityStream(orgID)
	allowed := map[string]struct{}{stream: {}}
	f.hub.Serve(userID, []string{stream}, allowed, w, r)
}
