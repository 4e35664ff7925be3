package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/fleetward/fleetward/internal/filter"
	"github.com/fleetward/fleetward/internal/models"
)

type presetRequest struct {
	Name   string          `json:"name"`
	Filter []filter.Filter `json:"filter"`
}

func (h *Handlers) listPresets(c *gin.Context) {
	if !requirePermission(c, "preset.list") {
		return
	}
	presets, err := h.Store.ListPresets(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, presets)
}

func (h *Handlers) createPreset(c *gin.Context) {
	if !requirePermission(c, "preset.create") {
		return
	}
	var req presetRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Name == "" {
		invalid(c, "invalid preset payload")
		return
	}
	encoded, err := json.Marshal(req.Filter)
	if err != nil {
		invalid(c, "invalid filter expression")
		return
	}

	preset := &models.MinionPreset{ID: uuid.NewString(), Name: req.Name, Filter: string(encoded)}
	if err := h.Store.CreatePreset(c.Request.Context(), preset); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, preset)
}

func (h *Handlers) getPreset(c *gin.Context) {
	if !requirePermission(c, "preset.list") {
		return
	}
	preset, err := h.Store.GetPreset(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	if preset == nil {
		fail(c, models.NewAPIError(models.KindNotFound, "preset not found"))
		return
	}
	c.JSON(http.StatusOK, preset)
}

func (h *Handlers) updatePreset(c *gin.Context) {
	if !requirePermission(c, "preset.update") {
		return
	}
	var req presetRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Name == "" {
		invalid(c, "invalid preset payload")
		return
	}
	encoded, err := json.Marshal(req.Filter)
	if err != nil {
		invalid(c, "invalid filter expression")
		return
	}

	preset := &models.MinionPreset{ID: c.Param("id"), Name: req.Name, Filter: string(encoded)}
	if err := h.Store.UpdatePreset(c.Request.Context(), preset); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, preset)
}

func (h *Handlers) deletePreset(c *gin.Context) {
	if !requirePermission(c, "preset.delete") {
		return
	}
	if err := h.Store.DeletePreset(c.Request.Context(), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
