package logger

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Gin context keys set by the request ID and actor middleware.
const (
	GinRequestIDKey = "request_id"
	GinActorKey     = "actor"
)

const accessMessage = "HTTP Request"

// AccessLog derives the request logger, stores it on the request context
// for handlers and services, and writes one access line per request once
// the handler chain returns. It must run after the request ID and actor
// middleware.
func AccessLog(base *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		req := c.Request

		ctx, log := WithRequest(req.Context(),
			base.With(zap.String("method", req.Method), zap.String("path", req.URL.Path)),
			c.GetString(GinRequestIDKey),
			c.GetString(GinActorKey),
		)
		c.Request = req.WithContext(ctx)

		c.Next()

		status := c.Writer.Status()
		ce := log.Check(accessLevel(status), accessMessage)
		if ce == nil {
			return
		}
		fields := []zap.Field{
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
			zap.String("user_agent", req.UserAgent()),
			zap.Int("body_size", c.Writer.Size()),
		}
		if req.URL.RawQuery != "" {
			fields = append(fields, zap.String("query", req.URL.RawQuery))
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.Strings("errors", c.Errors.Errors()))
		}
		ce.Write(fields...)
	}
}

// accessLevel logs client mistakes as warnings and server failures as
// errors.
func accessLevel(status int) zapcore.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return zapcore.ErrorLevel
	case status >= http.StatusBadRequest:
		return zapcore.WarnLevel
	}
	return zapcore.InfoLevel
}

// RequestLogger returns the logger AccessLog stored for this request, or a
// no-op logger outside it.
func RequestLogger(c *gin.Context) *zap.Logger {
	return FromContext(c.Request.Context(), zap.NewNop())
}

// Recovery turns a handler panic into a logged 500 with the standard error
// envelope.
func Recovery(base *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			requestID := c.GetString(GinRequestIDKey)
			FromContext(c.Request.Context(), base).Error("Panic recovered",
				zap.String("request_id", requestID),
				zap.String("path", c.Request.URL.Path),
				zap.Any("panic", r),
				zap.Stack("stacktrace"),
			)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"success": false,
				"error": gin.H{
					"code":       "INTERNAL_ERROR",
					"message":    "An unexpected error occurred",
					"request_id": requestID,
				},
			})
		}()
		c.Next()
	}
}
