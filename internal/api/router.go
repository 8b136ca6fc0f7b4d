// Package api wires the HTTP routes of the dispatcher.
//
// The mutating server operations under /v2 and /v2.1 are served by the
// servers handler, which records each completed call. Every other path is
// proxied to the upstream compute API unchanged.
package api

import (
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/instance-action-log/instance-action-log/internal/actionlog"
	"github.com/instance-action-log/instance-action-log/internal/api/servers"
	"github.com/instance-action-log/instance-action-log/internal/config"
	"github.com/instance-action-log/instance-action-log/internal/middleware"
)

// Version is reported by /version; set at build time via -ldflags.
var Version = "dev"

// apiVersions are the compute API version prefixes whose server routes are recorded.
var apiVersions = []string{"/v2", "/v2.1"}

// NewRouter creates and configures the Gin router. db may be nil when records
// are kept in memory.
func NewRouter(cfg *config.Config, h *servers.Handler, db *sql.DB) (*gin.Engine, error) {
	router := gin.New()
	router.RedirectTrailingSlash = false

	if err := router.SetTrustedProxies(cfg.Server.TrustedProxies); err != nil {
		return nil, fmt.Errorf("invalid server.trusted_proxies: %w", err)
	}

	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.MetricsMiddleware())
	router.Use(LoggerMiddleware())

	router.GET("/health", healthCheckHandler(db))
	router.GET("/version", versionHandler(cfg))

	for _, prefix := range apiVersions {
		g := router.Group(prefix)
		g.POST("/:project_id/servers", h.CreateServer)
		g.DELETE("/:project_id/servers/:server_id", h.DeleteServer)
		g.POST("/:project_id/servers/:server_id/action", h.ServerAction)
	}

	router.NoRoute(h.Proxy)

	return router, nil
}

// healthCheckHandler reports liveness; with a database it also pings it.
func healthCheckHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if db != nil {
			if err := db.PingContext(c.Request.Context()); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"status": "unhealthy",
					"error":  "database connection failed",
				})
				return
			}
		}

		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

func versionHandler(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":       Version,
			"audit_enabled": cfg.Audit.Enabled,
			"actions":       actionlog.Actions(),
		})
	}
}

// LoggerMiddleware provides structured request logging through the default
// slog handler configured by telemetry.SetupLogger.
func LoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		slog.LogAttrs(
			c.Request.Context(),
			slog.LevelInfo,
			"http request",
			slog.String("method", c.Request.Method),
			slog.String("path", path),
			slog.Int("status", c.Writer.Status()),
			slog.Int("size", c.Writer.Size()),
			slog.Duration("latency", time.Since(start)),
			slog.String("ip", c.ClientIP()),
			slog.String("request_id", middleware.RequestID(c)),
		)
	}
}
