package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fleetward/fleetward/internal/models"
)

func (h *Handlers) listGroups(c *gin.Context) {
	if !requirePermission(c, "permission.list") {
		return
	}
	groups, err := h.Groups.ListGroups(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, groups)
}

func (h *Handlers) getGroup(c *gin.Context) {
	if !requirePermission(c, "permission.list") {
		return
	}
	group, err := h.Groups.GetGroup(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	if group == nil {
		fail(c, models.NewAPIError(models.KindNotFound, "permission group not found"))
		return
	}
	c.JSON(http.StatusOK, group)
}

type groupRequest struct {
	Name  string `json:"name"`
	Perms string `json:"perms"`
}

func (h *Handlers) createGroup(c *gin.Context) {
	if !requirePermission(c, "permission.create") {
		return
	}
	var req groupRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Name == "" {
		invalid(c, "invalid permission group payload")
		return
	}
	if req.Perms == "" {
		req.Perms = "[]"
	}

	group, err := h.Groups.CreateGroup(c.Request.Context(), req.Name, req.Perms)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, group)
}

func (h *Handlers) updateGroup(c *gin.Context) {
	if !requirePermission(c, "permission.update") {
		return
	}
	var req groupRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Name == "" {
		invalid(c, "invalid permission group payload")
		return
	}

	group := &models.PermissionGroup{ID: c.Param("id"), Name: req.Name, Perms: req.Perms}
	if err := h.Groups.UpdateGroup(c.Request.Context(), group); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, group)
}

func (h *Handlers) deleteGroup(c *gin.Context) {
	if !requirePermission(c, "permission.delete") {
		return
	}
	if err := h.Groups.DeleteGroup(c.Request.Context(), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handlers) addMember(c *gin.Context) {
	if !requirePermission(c, "permission.member.add") {
		return
	}
	if err := h.Groups.AddMembership(c.Request.Context(), c.Param("userId"), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handlers) removeMember(c *gin.Context) {
	if !requirePermission(c, "permission.member.remove") {
		return
	}
	if err := h.Groups.RemoveMembership(c.Request.Context(), c.Param("userId"), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
