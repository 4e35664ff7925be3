package httpapi

import (
	"io"

	"github.com/gin-gonic/gin"

	"github.com/fleetward/fleetward/internal/middleware"
)

// pipeline streams server-sent events (§4.8) to the caller for as long as the connection
// stays open, framing every message in the fixed "event: ...\ndata: ...\n\n" wire format.
func (h *Handlers) pipeline(c *gin.Context) {
	status := middleware.MustAuthStatus(c)
	sub := h.Broadcaster.Subscribe(status.UserID)
	defer h.Broadcaster.Unsubscribe(sub)

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case msg, ok := <-sub.C():
			if !ok {
				return false
			}
			if _, err := w.Write([]byte(msg.Frame())); err != nil {
				return false
			}
			return true
		case <-ctx.Done():
			return false
		}
	})
}
