package httpapi

import (
	"github.com/gin-gonic/gin"

	"github.com/fleetward/fleetward/internal/middleware"
	"github.com/fleetward/fleetward/internal/models"
	"github.com/fleetward/fleetward/internal/permission"
)

// fail translates err into the fixed JSON/status contract (§7) and aborts the request.
func fail(c *gin.Context, err error) {
	apiErr := models.AsAPIError(err)
	c.AbortWithStatusJSON(apiErr.Kind.HTTPStatus(), gin.H{"error": apiErr.Message})
}

func invalid(c *gin.Context, message string) {
	fail(c, models.NewAPIError(models.KindInvalidRequest, message))
}

func mustStatus(c *gin.Context) *models.AuthStatus {
	return middleware.MustAuthStatus(c)
}

// requirePermission aborts the request with 403 unless the caller's stored perms grant id.
// Returns false when the request was aborted, so callers can "if !requirePermission(...) { return }".
func requirePermission(c *gin.Context, id string) bool {
	status := middleware.MustAuthStatus(c)
	if !permission.HasPermission(status.Perms, id) {
		fail(c, models.NewAPIError(models.KindForbidden, "missing permission: "+id))
		return false
	}
	return true
}
