package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fleetward/fleetward/internal/master"
	"github.com/fleetward/fleetward/internal/models"
)

func (h *Handlers) listKeys(c *gin.Context) {
	if !requirePermission(c, "key.list") {
		return
	}
	status := mustStatus(c)

	var keys []models.MinionKey
	err := h.Token.CallMaster(c.Request.Context(), status, func(tok *models.MasterToken) error {
		var callErr error
		keys, callErr = h.Master.ListKeys(c.Request.Context(), tok)
		return callErr
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, keys)
}

func (h *Handlers) acceptKey(c *gin.Context) {
	h.keyAction(c, "key.accept", func(ctx *gin.Context, tok *models.MasterToken, state master.KeyState, id string) error {
		return h.Master.AcceptKey(ctx.Request.Context(), tok, state, id)
	})
}

func (h *Handlers) rejectKey(c *gin.Context) {
	h.keyAction(c, "key.reject", func(ctx *gin.Context, tok *models.MasterToken, state master.KeyState, id string) error {
		return h.Master.RejectKey(ctx.Request.Context(), tok, state, id)
	})
}

func (h *Handlers) deleteKey(c *gin.Context) {
	h.keyAction(c, "key.delete", func(ctx *gin.Context, tok *models.MasterToken, state master.KeyState, id string) error {
		return h.Master.DeleteKey(ctx.Request.Context(), tok, state, id)
	})
}

func (h *Handlers) keyAction(c *gin.Context, perm string, fn func(*gin.Context, *models.MasterToken, master.KeyState, string) error) {
	if !requirePermission(c, perm) {
		return
	}
	state := master.KeyState(c.Param("state"))
	id := c.Param("id")
	status := mustStatus(c)

	err := h.Token.CallMaster(c.Request.Context(), status, func(tok *models.MasterToken) error {
		return fn(c, tok, state, id)
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
