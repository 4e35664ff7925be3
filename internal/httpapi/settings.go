package httpapi

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fleetward/fleetward/internal/models"
	"github.com/fleetward/fleetward/internal/permission"
)

// settingsBundle is the full export/import payload: every operator-managed object that
// isn't minion-derived state.
type settingsBundle struct {
	Users   []*models.User           `json:"users"`
	Groups  []*models.PermissionGroup `json:"groups"`
	Presets []*models.MinionPreset  `json:"presets"`
}

// exportSettings dumps the full operator-managed configuration. Restricted to the
// superadmin permission since the bundle includes password hashes.
func (h *Handlers) exportSettings(c *gin.Context) {
	if !requirePermission(c, permission.SuperAdmin) {
		return
	}

	users, err := h.Store.ListUsers(c.Request.Context(), pageFromQuery(c))
	if err != nil {
		fail(c, err)
		return
	}
	groups, err := h.Store.ListGroups(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	presets, err := h.Store.ListPresets(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, settingsBundle{Users: users, Groups: groups, Presets: presets})
}

// importSettings upserts every object in the bundle by ID. Restricted to the superadmin
// permission for the same reason exportSettings is.
func (h *Handlers) importSettings(c *gin.Context) {
	if !requirePermission(c, permission.SuperAdmin) {
		return
	}

	var bundle settingsBundle
	if err := c.ShouldBindJSON(&bundle); err != nil {
		invalid(c, "invalid settings bundle")
		return
	}

	ctx := c.Request.Context()
	for _, u := range bundle.Users {
		if err := h.upsertUser(ctx, u); err != nil {
			fail(c, err)
			return
		}
	}
	for _, g := range bundle.Groups {
		if err := h.upsertGroup(ctx, g); err != nil {
			fail(c, err)
			return
		}
	}
	for _, p := range bundle.Presets {
		if err := h.upsertPreset(ctx, p); err != nil {
			fail(c, err)
			return
		}
	}

	c.Status(http.StatusNoContent)
}

func (h *Handlers) upsertUser(ctx context.Context, u *models.User) error {
	existing, err := h.Store.GetUserByID(ctx, u.ID)
	if err != nil {
		return err
	}
	if existing == nil {
		return h.Store.CreateUser(ctx, u)
	}
	return h.Store.UpdateUser(ctx, u)
}

func (h *Handlers) upsertGroup(ctx context.Context, g *models.PermissionGroup) error {
	existing, err := h.Store.GetGroup(ctx, g.ID)
	if err != nil {
		return err
	}
	if existing == nil {
		return h.Store.CreateGroup(ctx, g)
	}
	return h.Store.UpdateGroup(ctx, g)
}

func (h *Handlers) upsertPreset(ctx context.Context, p *models.MinionPreset) error {
	existing, err := h.Store.GetPreset(ctx, p.ID)
	if err != nil {
		return err
	}
	if existing == nil {
		return h.Store.CreatePreset(ctx, p)
	}
	return h.Store.UpdatePreset(ctx, p)
}
