package handler

import (
	"strconv"

	appsales "github.com/casaviva/backoffice/internal/application/sales"
	"github.com/casaviva/backoffice/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// HouseHandler handles house inventory and house-level ledger endpoints
type HouseHandler struct {
	BaseHandler
	registry *appsales.RegistryService
	ledger   *appsales.LedgerService
}

// NewHouseHandler creates a new HouseHandler
func NewHouseHandler(registry *appsales.RegistryService, ledger *appsales.LedgerService) *HouseHandler {
	return &HouseHandler{
		registry: registry,
		ledger:   ledger,
	}
}

// CreateHouseRequest represents a request to add a house to the inventory
type CreateHouseRequest struct {
	Code      string          `json:"code" binding:"required,max=50"`
	Project   string          `json:"project" binding:"max=200"`
	PriceBase decimal.Decimal `json:"price_base" binding:"required,gt=0"`
}

// ApplyDiscountRequest sets the house discount. Zero clears it.
type ApplyDiscountRequest struct {
	Amount decimal.Decimal `json:"amount" binding:"gte=0"`
	Reason string          `json:"reason" binding:"max=500"`
}

// WaiveBalanceRequest forgives the remaining balance of a house.
type WaiveBalanceRequest struct {
	ClientID uuid.UUID `json:"client_id" binding:"required"`
	Reason   string    `json:"reason" binding:"required,max=500"`
}

// Create adds a house.
// POST /api/v1/houses
func (h *HouseHandler) Create(c *gin.Context) {
	actor, ok := h.requireActor(c)
	if !ok {
		return
	}
	var req CreateHouseRequest
	if !h.bindJSON(c, &req) {
		return
	}

	house, err := h.registry.CreateHouse(c.Request.Context(), appsales.CreateHouseCommand{
		Code:      req.Code,
		Project:   req.Project,
		PriceBase: req.PriceBase,
		Actor:     actor,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	h.created(c, toHouseResponse(house))
}

// List lists houses. ?available=true keeps only unassigned ones.
// GET /api/v1/houses
func (h *HouseHandler) List(c *gin.Context) {
	onlyAvailable := false
	if raw := c.Query("available"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			h.badRequest(c, dto.ErrCodeBadRequest, "available must be true or false")
			return
		}
		onlyAvailable = v
	}

	houses, err := h.registry.ListHouses(c.Request.Context(), onlyAvailable)
	if err != nil {
		h.fail(c, err)
		return
	}
	out := make([]*HouseResponse, 0, len(houses))
	for i := range houses {
		out = append(out, toHouseResponse(&houses[i]))
	}
	h.list(c, out, len(out), 0)
}

// Get returns a house.
// GET /api/v1/houses/:id
func (h *HouseHandler) Get(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	house, err := h.registry.GetHouse(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, toHouseResponse(house))
}

// ApplyDiscount replaces the house discount.
// PUT /api/v1/houses/:id/discount
func (h *HouseHandler) ApplyDiscount(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	actor, ok := h.requireActor(c)
	if !ok {
		return
	}
	var req ApplyDiscountRequest
	if !h.bindJSON(c, &req) {
		return
	}

	house, err := h.ledger.ApplyDiscount(c.Request.Context(), appsales.ApplyDiscountCommand{
		HouseID: id,
		Amount:  req.Amount,
		Reason:  req.Reason,
		Actor:   actor,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, toHouseResponse(house))
}

// WaiveBalance closes out the remaining balance with a waiver payment.
// POST /api/v1/houses/:id/waiver
func (h *HouseHandler) WaiveBalance(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	actor, ok := h.requireActor(c)
	if !ok {
		return
	}
	var req WaiveBalanceRequest
	if !h.bindJSON(c, &req) {
		return
	}

	result, err := h.ledger.WaiveRemainingBalance(c.Request.Context(), appsales.WaiveBalanceCommand{
		HouseID:  id,
		ClientID: req.ClientID,
		Reason:   req.Reason,
		Actor:    actor,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	h.created(c, toPaymentResult(result))
}

// Verify recomputes the house paid total from its payments.
// GET /api/v1/houses/:id/verification
func (h *HouseHandler) Verify(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	check, err := h.ledger.VerifyHouse(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, check)
}
