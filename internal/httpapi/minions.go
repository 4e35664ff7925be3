package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/fleetward/fleetward/internal/models"
	"github.com/fleetward/fleetward/internal/store"
)

func pageFromQuery(c *gin.Context) store.Page {
	limit, _ := strconv.ParseInt(c.DefaultQuery("limit", "100"), 10, 64)
	offset, _ := strconv.ParseInt(c.DefaultQuery("offset", "0"), 10, 64)
	if limit <= 0 {
		limit = 100
	}
	return store.Page{Limit: limit, Offset: offset}
}

// listMinions returns a paginated, optionally substring-filtered and sorted listing.
func (h *Handlers) listMinions(c *gin.Context) {
	if !requirePermission(c, "minion.list") {
		return
	}

	filter := store.MinionFilter{Query: c.Query("query")}
	sort := store.MinionSortLastSeenDesc
	if c.Query("sort") == string(store.MinionSortIDAsc) {
		sort = store.MinionSortIDAsc
	}

	minions, err := h.Store.ListMinions(c.Request.Context(), filter, sort, pageFromQuery(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, minions)
}

func (h *Handlers) getMinion(c *gin.Context) {
	if !requirePermission(c, "minion.get") {
		return
	}
	minion, err := h.Store.GetMinion(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	if minion == nil {
		fail(c, models.NewAPIError(models.KindNotFound, "minion not found"))
		return
	}
	c.JSON(http.StatusOK, minion)
}

// refreshMinion asks the master to re-push grains/pillar/pkg data for one minion; the
// resulting materialization happens asynchronously via the event loop, not inline here.
func (h *Handlers) refreshMinion(c *gin.Context) {
	if !requirePermission(c, "minion.refresh") {
		return
	}
	status := mustStatus(c)
	id := c.Param("id")

	err := h.Token.CallMaster(c.Request.Context(), status, func(tok *models.MasterToken) error {
		return h.Master.RefreshMinion(c.Request.Context(), tok, id)
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}
