// Package main is the entry point for the fleetward server. It initializes all services,
// establishes database connections, and starts the HTTP server with graceful shutdown
// handling for production deployment.
package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/fleetward/fleetward/internal/config"
	"github.com/fleetward/fleetward/internal/directory"
	"github.com/fleetward/fleetward/internal/directorysync"
	"github.com/fleetward/fleetward/internal/eventloop"
	"github.com/fleetward/fleetward/internal/group"
	"github.com/fleetward/fleetward/internal/httpapi"
	"github.com/fleetward/fleetward/internal/master"
	"github.com/fleetward/fleetward/internal/minion"
	"github.com/fleetward/fleetward/internal/scheduler"
	"github.com/fleetward/fleetward/internal/session"
	"github.com/fleetward/fleetward/internal/sse"
	"github.com/fleetward/fleetward/internal/store/mongostore"
	"github.com/fleetward/fleetward/internal/token"
	"github.com/fleetward/fleetward/internal/updatecache"
	"github.com/fleetward/fleetward/pkg/auth"
	"github.com/fleetward/fleetward/pkg/cache"
	"github.com/fleetward/fleetward/pkg/database"
	"github.com/fleetward/fleetward/pkg/logger"
)

// updateInfoURL is polled hourly by the Scheduler to refresh the Update Info Cache.
const updateInfoURL = "https://secure.fleetward.dev/version.json"

// Application holds all application dependencies and services.
// This structure provides dependency injection and service management.
type Application struct {
	config   *config.Config
	logger   *logger.Logger
	database *database.Client
	cache    *cache.Client
	server   *http.Server

	broadcaster *sse.Broadcaster
	eventLoop   *eventloop.Loop
	scheduler   *scheduler.Scheduler

	bgCancel context.CancelFunc
}

// main is the application entry point.
//
// The application follows these initialization steps:
// 1. Load configuration from environment and files
// 2. Initialize structured logging
// 3. Connect to MongoDB database
// 4. Connect to Redis cache
// 5. Wire the core components and set up HTTP routes
// 6. Start the HTTP server plus the event ingestion loop and scheduler
// 7. Wait for shutdown signals
// 8. Perform graceful shutdown
func main() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	app, err := NewApplication(ctx)
	if err != nil {
		fmt.Printf("Failed to initialize application: %v\n", err)
		os.Exit(1)
	}

	if err := app.Start(ctx); err != nil {
		app.logger.Error(ctx, "Failed to start application", err)
		os.Exit(1)
	}

	app.WaitForShutdown()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := app.Shutdown(shutdownCtx); err != nil {
		app.logger.Error(shutdownCtx, "Error during shutdown", err)
		os.Exit(1)
	}

	app.logger.Info("Application shutdown complete")
}

// NewApplication creates and initializes a new application instance. It loads
// configuration, establishes database connections, wires every core component, and sets
// up the HTTP server.
func NewApplication(ctx context.Context) (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	log, err := logger.New(&cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	log.Info("Application initialization started",
		logger.String("name", cfg.App.Name),
		logger.String("version", cfg.App.Version),
		logger.String("environment", cfg.App.Environment),
	)

	log.Info("Connecting to MongoDB...")
	dbClient, err := database.NewClient(&cfg.Database, log)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	log.Info("Creating database indexes...")
	if err := dbClient.CreateIndexes(ctx); err != nil {
		log.Error(ctx, "Failed to create database indexes", err)
		// Don't fail startup, just log the error
	}

	log.Info("Connecting to Redis...")
	cacheClient, err := cache.NewClient(&cfg.Cache, log)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to cache: %w", err)
	}

	app := &Application{
		config:   cfg,
		logger:   log,
		database: dbClient,
		cache:    cacheClient,
	}

	if err := app.wireAndSetupServer(); err != nil {
		return nil, fmt.Errorf("failed to setup HTTP server: %w", err)
	}

	log.Info("Application initialized successfully")
	return app, nil
}

// wireAndSetupServer constructs every core component (A–K) on top of the store/cache/
// master/directory dependencies, then mounts the HTTP surface onto a gin router.
func (app *Application) wireAndSetupServer() error {
	cfg := app.config
	log := app.logger.Logger // the embedded *zap.Logger the core components take

	st := mongostore.New(app.database)

	masterCli, err := master.NewHTTPClient(master.Config{
		BaseURL:            cfg.Master.URL,
		InsecureSkipVerify: cfg.Master.InsecureSkipVerify,
		Timeout:            cfg.Master.Timeout,
	})
	if err != nil {
		return fmt.Errorf("failed to construct master client: %w", err)
	}

	var dirCli directory.Client
	if cfg.Directory.Enabled {
		ldapCli, err := directory.NewLDAPClient(directory.Config{
			URL:                cfg.Directory.URL,
			StartTLS:           cfg.Directory.StartTLS,
			InsecureSkipVerify: cfg.Directory.InsecureSkipVerify,
			BindDN:             cfg.Directory.BindDN,
			BindPassword:       cfg.Directory.BindPassword,
			BaseDN:             cfg.Directory.BaseDN,
			UserAttribute:      cfg.Directory.UserAttribute,
			UserFilter:         cfg.Directory.UserFilter,
		})
		if err != nil {
			return fmt.Errorf("failed to construct directory client: %w", err)
		}
		dirCli = ldapCli
	}

	sessions := session.New(st)
	groups := group.New(st, log)
	hasher := auth.NewPasswordHasher(cfg.Auth.BCryptCost)

	var reconciler *directorysync.Reconciler
	tokenCfg := token.Config{
		ForwardAuthEnabled: cfg.Auth.ForwardAuthEnabled,
		SessionLifespan:    cfg.Auth.SessionLifespan,
		ServiceToken:       cfg.Master.ServiceToken,
	}
	var tokenCoord *token.Coordinator
	if cfg.Directory.Enabled {
		// Passed as a genuinely non-nil interface value only when enabled: a nil
		// *directorysync.Reconciler boxed into the interface parameter would compare
		// non-nil inside Coordinator and panic on first use.
		reconciler = directorysync.New(st, dirCli, groups, log)
		tokenCoord = token.New(tokenCfg, st, sessions, masterCli, dirCli, reconciler, groups, hasher, log)
	} else {
		tokenCoord = token.New(tokenCfg, st, sessions, masterCli, dirCli, nil, groups, hasher, log)
	}

	materializer := minion.New(st)
	broadcaster := sse.New()
	eventLoop := eventloop.New(masterCli, cfg.Master.ServiceToken, materializer, broadcaster, log)

	updateCache := updatecache.New(app.cache, fetchUpdateInfo)

	schedulerJobs := []scheduler.Job{
		{Name: "update-info-refresh", Interval: time.Hour, Run: updateCache.Refresh},
	}
	if reconciler != nil {
		schedulerJobs = append(schedulerJobs, scheduler.Job{
			Name: "directory-sync", Interval: time.Hour, Run: reconciler.Run,
		})
	}
	sched := scheduler.New(log, schedulerJobs...)

	app.broadcaster = broadcaster
	app.eventLoop = eventLoop
	app.scheduler = sched

	handlers := &httpapi.Handlers{
		Config:      cfg,
		Store:       st,
		Token:       tokenCoord,
		Groups:      groups,
		Master:      masterCli,
		Directory:   dirCli,
		Broadcaster: broadcaster,
		UpdateCache: updateCache,
		EventLoop:   eventLoop,
		StartedAt:   time.Now(),
		Log:         log,
	}

	return app.setupServer(handlers)
}

// fetchUpdateInfo retrieves the current advisory blob from the upstream version manifest.
// A single outbound GET with no retry semantics of its own; internal/scheduler already
// provides the retry-by-next-tick behavior, so this stays on the standard library rather
// than pulling in an HTTP client abstraction for one call site.
func fetchUpdateInfo(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, updateInfoURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("update info fetch: unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// setupServer configures the HTTP server with routes, middleware, and settings.
func (app *Application) setupServer(handlers *httpapi.Handlers) error {
	if app.config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(app.loggingMiddleware())
	router.Use(app.corsMiddleware())

	router.GET("/health", app.healthCheckHandler)
	router.GET("/ready", app.readinessHandler)

	handlers.Register(router)

	app.server = &http.Server{
		Addr:         app.config.GetServerAddr(),
		Handler:      router,
		ReadTimeout:  app.config.App.Timeout,
		WriteTimeout: app.config.App.Timeout,
		IdleTimeout:  2 * app.config.App.Timeout,
	}

	return nil
}

// Start begins serving HTTP requests and launches the Event Ingestion Loop and Scheduler
// as background goroutines tied to a cancelable context released on Shutdown.
func (app *Application) Start(ctx context.Context) error {
	app.logger.Info("Starting HTTP server",
		logger.String("address", app.server.Addr),
		logger.String("environment", app.config.App.Environment),
	)

	go func() {
		if err := app.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			app.logger.Error(ctx, "HTTP server error", err)
		}
	}()

	bgCtx, cancel := context.WithCancel(context.Background())
	app.bgCancel = cancel

	go app.eventLoop.Run(bgCtx)
	go app.scheduler.Run(bgCtx)

	app.logger.Info("HTTP server started successfully",
		logger.String("address", app.server.Addr),
	)

	return nil
}

// WaitForShutdown waits for termination signals and begins graceful shutdown.
func (app *Application) WaitForShutdown() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	sig := <-quit
	app.logger.Info("Received shutdown signal",
		logger.String("signal", sig.String()),
	)
}

// Shutdown performs graceful shutdown of all application services.
func (app *Application) Shutdown(ctx context.Context) error {
	app.logger.Info("Starting graceful shutdown...")

	if app.bgCancel != nil {
		app.bgCancel()
	}
	app.broadcaster.Close()

	app.logger.Info("Shutting down HTTP server...")
	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error(ctx, "HTTP server shutdown error", err)
		return fmt.Errorf("HTTP server shutdown failed: %w", err)
	}

	app.logger.Info("Closing cache connection...")
	if err := app.cache.Close(); err != nil {
		app.logger.Error(ctx, "Cache connection close error", err)
		// Don't return error, continue with other cleanup
	}

	app.logger.Info("Closing database connection...")
	if err := app.database.Close(ctx); err != nil {
		app.logger.Error(ctx, "Database connection close error", err)
		return fmt.Errorf("database connection close failed: %w", err)
	}

	if err := app.logger.Sync(); err != nil {
		// Ignore sync errors during shutdown
		_ = err
	}

	return nil
}

// HTTP Handlers

// healthCheckHandler provides a basic health check endpoint.
func (app *Application) healthCheckHandler(c *gin.Context) {
	ctx := c.Request.Context()

	dbHealth := app.database.HealthCheck(ctx)
	cacheHealth := app.cache.HealthCheck(ctx)

	status := "healthy"
	if dbHealth.Status != "healthy" || cacheHealth.Status != "healthy" {
		status = "unhealthy"
		c.Status(http.StatusServiceUnavailable)
	} else {
		c.Status(http.StatusOK)
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    status,
		"timestamp": time.Now().UTC(),
		"version":   app.config.App.Version,
		"checks": gin.H{
			"database": dbHealth,
			"cache":    cacheHealth,
		},
	})
}

// readinessHandler provides a readiness check for Kubernetes deployments.
func (app *Application) readinessHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ready",
		"timestamp": time.Now().UTC(),
		"version":   app.config.App.Version,
	})
}

// Middleware

// loggingMiddleware provides structured request logging for audit trails.
func (app *Application) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		correlationID := fmt.Sprintf("%d", start.UnixNano())
		c.Set("correlation_id", correlationID)
		c.Header("X-Correlation-ID", correlationID)

		c.Next()

		duration := time.Since(start)
		app.logger.Performance(c.Request.Context(), "http_request", duration,
			logger.String("method", c.Request.Method),
			logger.String("path", c.Request.URL.Path),
			logger.String("correlation_id", correlationID),
			logger.Int("status", c.Writer.Status()),
			logger.String("client_ip", c.ClientIP()),
			logger.String("user_agent", c.Request.UserAgent()),
		)
	}
}

// corsMiddleware configures Cross-Origin Resource Sharing (CORS) settings.
func (app *Application) corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		allowed := false
		for _, allowedOrigin := range app.config.App.CORS.AllowedOrigins {
			if origin == allowedOrigin || allowedOrigin == "*" {
				allowed = true
				break
			}
		}

		if allowed {
			c.Header("Access-Control-Allow-Origin", origin)
		}

		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Correlation-ID")
		c.Header("Access-Control-Expose-Headers", "X-Correlation-ID")
		c.Header("Access-Control-Allow-Credentials", "true")

		if c.Request.Method == "OPTIONS" {
			c.Status(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
