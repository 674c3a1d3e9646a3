package middleware

import (
	"net/http"

	"github.com/casaviva/backoffice/internal/infrastructure/logger"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Tracing returns the handlers that trace a request: the otelgin server
// span, named after the route ("POST /api/v1/clients/:id/payments"), and
// annotateSpan. Register them after RequestID and Actor. When tracing is
// off there is nothing to register.
func Tracing(serviceName string, enabled bool) []gin.HandlerFunc {
	if !enabled {
		return nil
	}
	return []gin.HandlerFunc{otelgin.Middleware(serviceName), annotateSpan}
}

// annotateSpan tags the server span with the request ID and actor and marks
// it failed on 4xx and 5xx answers, so rejected ledger commands show up in
// trace search.
func annotateSpan(c *gin.Context) {
	span := trace.SpanFromContext(c.Request.Context())
	if !span.IsRecording() {
		c.Next()
		return
	}
	if id := c.GetString(logger.GinRequestIDKey); id != "" {
		span.SetAttributes(attribute.String("request_id", id))
	}
	if actor := c.GetString(logger.GinActorKey); actor != "" {
		span.SetAttributes(attribute.String("actor", actor))
	}

	c.Next()

	if status := c.Writer.Status(); status >= http.StatusBadRequest {
		span.SetStatus(codes.Error, http.StatusText(status))
	}
}
