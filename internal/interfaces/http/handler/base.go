package handler

import (
	"net/http"

	"github.com/casaviva/backoffice/internal/infrastructure/logger"
	"github.com/casaviva/backoffice/internal/interfaces/http/dto"
	"github.com/casaviva/backoffice/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// BaseHandler is embedded by every handler for the envelope writers and
// the request parsing shared by the sales endpoints.
type BaseHandler struct{}

// requestID prefers the value the RequestID middleware set, then the one
// AccessLog stored on the request context.
func requestID(c *gin.Context) string {
	if id := c.GetString(logger.GinRequestIDKey); id != "" {
		return id
	}
	return logger.RequestID(c.Request.Context())
}

func (h *BaseHandler) ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, dto.OK(data))
}

func (h *BaseHandler) created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, dto.OK(data))
}

// list answers a collection; limit is 0 when nothing was cut off.
func (h *BaseHandler) list(c *gin.Context, data any, total, limit int) {
	c.JSON(http.StatusOK, dto.Page(data, total, limit))
}

func (h *BaseHandler) badRequest(c *gin.Context, code, message string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, dto.Fail(code, message, requestID(c)))
}

// fail maps err onto the envelope. Errors outside the domain taxonomy are
// logged with the request logger and answered as an opaque 500.
func (h *BaseHandler) fail(c *gin.Context, err error) {
	if err == nil {
		return
	}
	status, info := dto.ErrorInfoFor(err, requestID(c))
	if status >= http.StatusInternalServerError {
		logger.RequestLogger(c).Error("Request failed", zap.Error(err))
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, dto.Failure(info))
}

func (h *BaseHandler) requireActor(c *gin.Context) (string, bool) {
	if actor := middleware.GetActor(c); actor != "" {
		return actor, true
	}
	h.badRequest(c, dto.ErrCodeMissingActor, "The "+middleware.HeaderActor+" header is required")
	return "", false
}

func (h *BaseHandler) parseUUIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		h.badRequest(c, dto.ErrCodeInvalidID, "Invalid "+name+" format")
		return uuid.Nil, false
	}
	return id, true
}

func (h *BaseHandler) bindJSON(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		middleware.HandleBindError(c, err)
		return false
	}
	return true
}
