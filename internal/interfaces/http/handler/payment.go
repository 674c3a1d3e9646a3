package handler

import (
	appsales "github.com/casaviva/backoffice/internal/application/sales"
	"github.com/casaviva/backoffice/internal/domain/process"
	"github.com/casaviva/backoffice/internal/interfaces/http/dto"
	"github.com/casaviva/backoffice/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// maxIdempotencyKeyLength bounds the Idempotency-Key header.
const maxIdempotencyKeyLength = 200

// PaymentHandler handles payment registration and corrections
type PaymentHandler struct {
	BaseHandler
	registry *appsales.RegistryService
	ledger   *appsales.LedgerService
}

// NewPaymentHandler creates a new PaymentHandler
func NewPaymentHandler(registry *appsales.RegistryService, ledger *appsales.LedgerService) *PaymentHandler {
	return &PaymentHandler{
		registry: registry,
		ledger:   ledger,
	}
}

// RegisterPaymentRequest registers an installment. ReceiptKey is the
// storage key returned by the evidence upload endpoint; disbursement
// payments need one.
type RegisterPaymentRequest struct {
	HouseID     uuid.UUID             `json:"house_id" binding:"required"`
	ClientID    uuid.UUID             `json:"client_id" binding:"required"`
	Source      process.FundingSource `json:"source" binding:"required,oneof=down_payment bank_credit housing_subsidy compensation_fund_subsidy"`
	Amount      decimal.Decimal       `json:"amount" binding:"required,gt=0"`
	PaymentDate dto.Date              `json:"payment_date"`
	ReceiptKey  string                `json:"receipt_key" binding:"max=512"`
	Note        string                `json:"note" binding:"max=1000"`
}

// EditPaymentRequest changes the amount of an active payment.
// PreviousAmount is the amount the caller last saw; omit it to skip the
// check.
type EditPaymentRequest struct {
	Amount         decimal.Decimal `json:"amount" binding:"required,gt=0"`
	PreviousAmount decimal.Decimal `json:"previous_amount" binding:"gte=0"`
}

// VoidPaymentRequest voids an active payment.
type VoidPaymentRequest struct {
	Reason string `json:"reason" binding:"required,max=500"`
}

// Register records a payment. An Idempotency-Key header makes retries of
// the same request safe.
// POST /api/v1/payments
func (h *PaymentHandler) Register(c *gin.Context) {
	actor, ok := h.requireActor(c)
	if !ok {
		return
	}
	key := c.GetHeader(middleware.HeaderIdempotencyKey)
	if len(key) > maxIdempotencyKeyLength {
		h.badRequest(c, dto.ErrCodeBadRequest, middleware.HeaderIdempotencyKey+" is too long")
		return
	}
	var req RegisterPaymentRequest
	if !h.bindJSON(c, &req) {
		return
	}

	result, err := h.ledger.RegisterPayment(c.Request.Context(), appsales.RegisterPaymentCommand{
		HouseID:        req.HouseID,
		ClientID:       req.ClientID,
		Source:         req.Source,
		Amount:         req.Amount,
		PaymentDate:    req.PaymentDate.Time,
		ReceiptKey:     req.ReceiptKey,
		Note:           req.Note,
		IdempotencyKey: key,
		Actor:          actor,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	h.created(c, toPaymentResult(result))
}

// Get returns a payment.
// GET /api/v1/payments/:id
func (h *PaymentHandler) Get(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	payment, err := h.registry.GetPayment(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, toPaymentResponse(payment))
}

// Edit changes a payment amount.
// PATCH /api/v1/payments/:id
func (h *PaymentHandler) Edit(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	actor, ok := h.requireActor(c)
	if !ok {
		return
	}
	var req EditPaymentRequest
	if !h.bindJSON(c, &req) {
		return
	}

	result, err := h.ledger.EditPayment(c.Request.Context(), appsales.EditPaymentCommand{
		PaymentID:      id,
		NewAmount:      req.Amount,
		PreviousAmount: req.PreviousAmount,
		Actor:          actor,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, toPaymentResult(result))
}

// Void voids a payment and reopens the step it funded.
// POST /api/v1/payments/:id/void
func (h *PaymentHandler) Void(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	actor, ok := h.requireActor(c)
	if !ok {
		return
	}
	var req VoidPaymentRequest
	if !h.bindJSON(c, &req) {
		return
	}

	result, err := h.ledger.VoidPayment(c.Request.Context(), appsales.VoidPaymentCommand{
		PaymentID: id,
		Reason:    req.Reason,
		Actor:     actor,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, toPaymentResult(result))
}

// ReverseVoid reinstates a voided payment.
// POST /api/v1/payments/:id/reverse-void
func (h *PaymentHandler) ReverseVoid(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	actor, ok := h.requireActor(c)
	if !ok {
		return
	}

	result, err := h.ledger.ReversePaymentVoid(c.Request.Context(), appsales.ReversePaymentVoidCommand{
		PaymentID: id,
		Actor:     actor,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, toPaymentResult(result))
}
