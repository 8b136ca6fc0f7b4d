// Package middleware provides the Gin middleware registered by the dispatcher
// router ahead of every route, including the catch-all upstream proxy.
package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/instance-action-log/instance-action-log/internal/telemetry"
)

// ProxiedPathLabel is the path label for requests that matched no dispatcher
// route and were forwarded to the upstream unchanged.
const ProxiedPathLabel = "<proxied>"

// MetricsMiddleware records http_requests_total and http_request_duration_seconds.
//
// The path label is the matched route template (c.FullPath()), e.g.
// /v2.1/:project_id/servers/:server_id/action, so instance and project ids
// never become label values. Unmatched requests use ProxiedPathLabel.
//
// Register after gin.Recovery() and RequestIDMiddleware so the final status
// is observed.
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = ProxiedPathLabel
		}
		method := c.Request.Method

		telemetry.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(c.Writer.Status())).Inc()
		telemetry.HTTPRequestDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	}
}
