package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/quackback/quackback/internal/realtime"
)

// RealtimeHandler upgrades admin dashboard connections onto the live
// activity feed.
type RealtimeHandler struct {
	feed *realtime.ActivityFeed
}

func NewRealtimeHandler(feed *realtime.ActivityFeed) *RealtimeHandler {
	return &RealtimeHandler{feed: feed}
}

// GET /api/realtime
func (h *RealtimeHandler) Activity(c *gin.Context) {
	h.feed.Serve(userID(c), orgID(c), c.Writer, c.Request)
}
