package handler

import (
	appsales "github.com/casaviva/backoffice/internal/application/sales"
	"github.com/casaviva/backoffice/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// RenunciationHandler handles refund payout and reversal of renunciations
type RenunciationHandler struct {
	BaseHandler
	registry *appsales.RegistryService
	ledger   *appsales.LedgerService
}

// NewRenunciationHandler creates a new RenunciationHandler
func NewRenunciationHandler(registry *appsales.RegistryService, ledger *appsales.LedgerService) *RenunciationHandler {
	return &RenunciationHandler{
		registry: registry,
		ledger:   ledger,
	}
}

// CloseRefundRequest records how a pending refund was paid. Amount
// defaults to the refundable amount.
type CloseRefundRequest struct {
	Method    string          `json:"method" binding:"required,max=100"`
	Reference string          `json:"reference" binding:"max=200"`
	Amount    decimal.Decimal `json:"amount" binding:"gte=0"`
	PaidAt    *dto.Date       `json:"paid_at"`
}

// Get returns a renunciation record.
// GET /api/v1/renunciations/:id
func (h *RenunciationHandler) Get(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	record, err := h.registry.GetRenunciation(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, toRenunciationResponse(record))
}

// CloseRefund records the refund payout.
// POST /api/v1/renunciations/:id/refund
func (h *RenunciationHandler) CloseRefund(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	actor, ok := h.requireActor(c)
	if !ok {
		return
	}
	var req CloseRefundRequest
	if !h.bindJSON(c, &req) {
		return
	}

	cmd := appsales.CloseRefundCommand{
		RenunciationID: id,
		Method:         req.Method,
		Reference:      req.Reference,
		Amount:         req.Amount,
		Actor:          actor,
	}
	if req.PaidAt != nil {
		cmd.PaidAt = req.PaidAt.Time
	}
	result, err := h.ledger.CloseRefund(c.Request.Context(), cmd)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, toRenunciationResult(result))
}

// Reverse undoes a renunciation whose refund was not paid out.
// POST /api/v1/renunciations/:id/reverse
func (h *RenunciationHandler) Reverse(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	actor, ok := h.requireActor(c)
	if !ok {
		return
	}

	result, err := h.ledger.ReverseRenunciation(c.Request.Context(), appsales.ReverseRenunciationCommand{
		RenunciationID: id,
		Actor:          actor,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, toRenunciationResult(result))
}
