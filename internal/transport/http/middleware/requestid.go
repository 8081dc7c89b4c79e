package middleware

import (
	ctxlog "github.com/ErlanBelekov/pipeline-scheduler/internal/log"
	"github.com/gin-gonic/gin"
)

const requestIDHeader = "X-Request-ID"

// RequestID keeps an incoming X-Request-ID or generates one, and attaches it
// to the request context so every log line of the request carries it.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = ctxlog.NewID()
		}

		ctx := ctxlog.WithRequestID(c.Request.Context(), id)
		c.Request = c.Request.WithContext(ctx)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}
