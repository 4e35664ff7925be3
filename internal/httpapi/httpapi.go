// Package httpapi wires the HTTP surface (§6) onto gin: thin handlers that translate
// requests into calls against the Token Coordinator, Group Membership Service, Store, and
// MasterClient, and translate models.APIError back into the fixed JSON/status contract.
package httpapi

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/fleetward/fleetward/internal/config"
	"github.com/fleetward/fleetward/internal/directory"
	"github.com/fleetward/fleetward/internal/eventloop"
	"github.com/fleetward/fleetward/internal/group"
	"github.com/fleetward/fleetward/internal/master"
	"github.com/fleetward/fleetward/internal/middleware"
	"github.com/fleetward/fleetward/internal/sse"
	"github.com/fleetward/fleetward/internal/store"
	"github.com/fleetward/fleetward/internal/token"
	"github.com/fleetward/fleetward/internal/updatecache"
)

// Handlers holds every dependency the route handlers need.
type Handlers struct {
	Config      *config.Config
	Store       store.Store
	Token       *token.Coordinator
	Groups      *group.Service
	Master      master.Client
	Directory   directory.Client // nil when directory integration is disabled
	Broadcaster *sse.Broadcaster
	UpdateCache *updatecache.Cache
	EventLoop   *eventloop.Loop
	StartedAt   time.Time
	Log         *zap.Logger
}

// Register mounts every route named in §6 onto router.
func (h *Handlers) Register(router *gin.Engine) {
	api := router.Group("/api")
	api.POST("/login", h.login)
	api.POST("/logout", h.logout)
	api.POST("/token", h.validateForMaster)
	api.GET("/config", h.getConfig)
	api.GET("/metrics", h.getMetrics)
	api.GET("/status", h.getStatus)

	auth := api.Group("")
	auth.Use(middleware.RequireAuth(h.Token))

	auth.GET("/myself", h.myself)

	auth.GET("/minions", h.listMinions)
	auth.GET("/minions/:id", h.getMinion)
	auth.POST("/minions/:id/refresh", h.refreshMinion)

	auth.GET("/presets", h.listPresets)
	auth.POST("/presets", h.createPreset)
	auth.GET("/presets/:id", h.getPreset)
	auth.PUT("/presets/:id", h.updatePreset)
	auth.DELETE("/presets/:id", h.deletePreset)

	auth.GET("/grains", h.queryGrains)

	auth.GET("/jobs", h.listJobs)
	auth.POST("/jobs", h.runJob)
	auth.GET("/jobs/:jid", h.getJob)

	auth.GET("/events", h.listEvents)

	auth.GET("/users", h.listUsers)
	auth.POST("/users", h.createUser)
	auth.GET("/users/:id", h.getUser)
	auth.PUT("/users/:id", h.updateUser)
	auth.DELETE("/users/:id", h.deleteUser)

	auth.GET("/keys", h.listKeys)
	auth.POST("/keys/:state/:id/accept", h.acceptKey)
	auth.POST("/keys/:state/:id/reject", h.rejectKey)
	auth.POST("/keys/:state/:id/delete", h.deleteKey)

	auth.GET("/permissions", h.listGroups)
	auth.POST("/permissions", h.createGroup)
	auth.GET("/permissions/:id", h.getGroup)
	auth.PUT("/permissions/:id", h.updateGroup)
	auth.DELETE("/permissions/:id", h.deleteGroup)
	auth.POST("/permissions/:id/members/:userId", h.addMember)
	auth.DELETE("/permissions/:id/members/:userId", h.removeMember)

	auth.GET("/settings/export", h.exportSettings)
	auth.POST("/settings/import", h.importSettings)

	auth.GET("/pipeline", h.pipeline)
}
