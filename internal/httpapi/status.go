package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/fleetward/fleetward/internal/middleware"
)

type publicConfigResponse struct {
	AppName            string `json:"appName"`
	Version            string `json:"version"`
	ForwardAuthEnabled bool   `json:"forwardAuthEnabled"`
	DirectoryEnabled   bool   `json:"directoryEnabled"`
}

// getConfig exposes only the subset of configuration the login page needs to decide how
// to present itself; nothing secret (tokens, DSNs, bind credentials) ever leaves here.
func (h *Handlers) getConfig(c *gin.Context) {
	c.JSON(http.StatusOK, publicConfigResponse{
		AppName:            h.Config.App.Name,
		Version:            h.Config.App.Version,
		ForwardAuthEnabled: h.Config.Auth.ForwardAuthEnabled,
		DirectoryEnabled:   h.Config.Directory.Enabled,
	})
}

type metricsResponse struct {
	MinionCount       int64 `json:"minionCount"`
	UserCount         int64 `json:"userCount"`
	UptimeSeconds     int64 `json:"uptimeSeconds"`
	EventLoopConnected bool `json:"eventLoopConnected"`
}

// getMetrics reports a small set of operational counters. It is intentionally not a
// Prometheus exposition endpoint (the monitoring section of SPEC_FULL.md scopes that out);
// it mirrors the teacher's own /api/metrics shape for dashboards that poll plain JSON.
func (h *Handlers) getMetrics(c *gin.Context) {
	minionCount, err := h.Store.CountMinions(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	userCount, err := h.Store.CountUsers(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}

	connected := false
	if h.EventLoop != nil {
		connected = h.EventLoop.Connected()
	}

	c.JSON(http.StatusOK, metricsResponse{
		MinionCount:        minionCount,
		UserCount:          userCount,
		UptimeSeconds:      int64(time.Since(h.StartedAt).Seconds()),
		EventLoopConnected: connected,
	})
}

type statusResponse struct {
	Status             string `json:"status"`
	EventLoopConnected bool   `json:"eventLoopConnected"`
}

// getStatus is the unauthenticated liveness probe the reverse proxy and dashboards poll.
func (h *Handlers) getStatus(c *gin.Context) {
	connected := false
	if h.EventLoop != nil {
		connected = h.EventLoop.Connected()
	}
	c.JSON(http.StatusOK, statusResponse{Status: "ok", EventLoopConnected: connected})
}

type myselfResponse struct {
	UserID string `json:"userId"`
	Perms  string `json:"perms"`
}

// myself returns the caller's own identity and effective permission set.
func (h *Handlers) myself(c *gin.Context) {
	status := middleware.MustAuthStatus(c)
	c.JSON(http.StatusOK, myselfResponse{UserID: status.UserID, Perms: status.Perms})
}
