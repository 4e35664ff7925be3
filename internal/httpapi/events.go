package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (h *Handlers) listEvents(c *gin.Context) {
	if !requirePermission(c, "event.list") {
		return
	}
	events, err := h.Store.ListEvents(c.Request.Context(), pageFromQuery(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, events)
}
