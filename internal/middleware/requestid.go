package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// RequestIDHeader is the HTTP header used to propagate the request identifier.
	RequestIDHeader = "X-Request-ID"

	// RequestIDKey is the gin.Context key under which the request ID is stored.
	RequestIDKey = "request_id"
)

// RequestIDMiddleware ensures every request carries an X-Request-ID.
//
// An inbound id is reused unchanged; otherwise a new UUID is generated. The id
// is stored under RequestIDKey, echoed in the response, and written back onto
// the inbound request headers so that the call forwarded to the compute API
// carries the same id. Audit warnings and upstream errors log it, which ties a
// missing record to the exact request that produced it.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.New().String()
			c.Request.Header.Set(RequestIDHeader, id)
		}

		c.Set(RequestIDKey, id)
		c.Header(RequestIDHeader, id)

		c.Next()
	}
}

// RequestID returns the id assigned by RequestIDMiddleware, or "".
func RequestID(c *gin.Context) string {
	return c.GetString(RequestIDKey)
}
