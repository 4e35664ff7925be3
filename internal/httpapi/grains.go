package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fleetward/fleetward/internal/filter"
	"github.com/fleetward/fleetward/internal/store"
)

var errPresetNotFound = errors.New("preset not found")

// queryGrains lists minions matching an ad-hoc filter expression passed as a JSON-encoded
// "filter" query parameter, or (if "preset" is given instead) a saved preset's expression.
func (h *Handlers) queryGrains(c *gin.Context) {
	if !requirePermission(c, "grains.query") {
		return
	}

	filters, err := h.resolveFilters(c)
	if err != nil {
		invalid(c, err.Error())
		return
	}

	candidates, err := h.Store.ListMinions(c.Request.Context(), store.MinionFilter{}, store.MinionSortIDAsc, store.Page{Limit: 10000})
	if err != nil {
		fail(c, err)
		return
	}

	matched := make([]string, 0, len(candidates))
	for _, m := range candidates {
		if filter.MatchAll(filters, m) {
			matched = append(matched, m.ID)
		}
	}
	c.JSON(http.StatusOK, matched)
}

func (h *Handlers) resolveFilters(c *gin.Context) ([]filter.Filter, error) {
	if presetID := c.Query("preset"); presetID != "" {
		preset, err := h.Store.GetPreset(c.Request.Context(), presetID)
		if err != nil {
			return nil, err
		}
		if preset == nil {
			return nil, errPresetNotFound
		}
		var filters []filter.Filter
		if err := json.Unmarshal([]byte(preset.Filter), &filters); err != nil {
			return nil, err
		}
		return filters, nil
	}

	raw := c.Query("filter")
	if raw == "" {
		return nil, nil
	}
	var filters []filter.Filter
	if err := json.Unmarshal([]byte(raw), &filters); err != nil {
		return nil, err
	}
	return filters, nil
}
