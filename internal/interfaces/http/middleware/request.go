// Package middleware provides the HTTP middleware chain of the back-office
// API.
package middleware

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/casaviva/backoffice/internal/infrastructure/logger"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Header names understood by the API.
const (
	HeaderRequestID      = "X-Request-ID"
	HeaderActor          = "X-Actor-Name"
	HeaderIdempotencyKey = "Idempotency-Key"
)

const (
	maxRequestIDLength = 128
	// MaxActorLength bounds the actor name accepted from the header, in runes.
	MaxActorLength = 120
)

// RequestID tags the request with an ID, echoed in X-Request-ID. A
// caller's own ID is kept when it is short enough to be a correlation ID.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID)
		if id == "" || len(id) > maxRequestIDLength {
			id = uuid.NewString()
		}
		c.Set(logger.GinRequestIDKey, id)
		c.Header(HeaderRequestID, id)
		c.Next()
	}
}

// Actor reads the display name of the person operating the back office
// from X-Actor-Name. Mutating handlers refuse requests without one; reads
// work anonymously.
func Actor() gin.HandlerFunc {
	return func(c *gin.Context) {
		if actor := CleanActor(c.GetHeader(HeaderActor)); actor != "" {
			c.Set(logger.GinActorKey, actor)
		}
		c.Next()
	}
}

// CleanActor trims an actor name. Names that are too long, not UTF-8 or
// carry control characters come back empty.
func CleanActor(raw string) string {
	actor := strings.TrimSpace(raw)
	if !utf8.ValidString(actor) || utf8.RuneCountInString(actor) > MaxActorLength {
		return ""
	}
	if strings.ContainsFunc(actor, unicode.IsControl) {
		return ""
	}
	return actor
}

// GetActor returns the actor set by Actor, or "".
func GetActor(c *gin.Context) string {
	return c.GetString(logger.GinActorKey)
}
