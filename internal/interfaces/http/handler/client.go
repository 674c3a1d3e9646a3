package handler

import (
	"strconv"

	appsales "github.com/casaviva/backoffice/internal/application/sales"
	"github.com/casaviva/backoffice/internal/domain/process"
	"github.com/casaviva/backoffice/internal/domain/sales"
	"github.com/casaviva/backoffice/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ClientHandler handles buyer registration, the purchase process and the
// per-client listings.
type ClientHandler struct {
	BaseHandler
	registry *appsales.RegistryService
	process  *appsales.ProcessService
	ledger   *appsales.LedgerService
}

// NewClientHandler creates a new ClientHandler
func NewClientHandler(registry *appsales.RegistryService, proc *appsales.ProcessService, ledger *appsales.LedgerService) *ClientHandler {
	return &ClientHandler{
		registry: registry,
		process:  proc,
		ledger:   ledger,
	}
}

// SourcePlanRequest is the pledge for one funding source.
type SourcePlanRequest struct {
	Applied bool            `json:"applied"`
	Amount  decimal.Decimal `json:"amount" binding:"gte=0"`
}

// FinancialPlanRequest maps funding sources to their pledges.
type FinancialPlanRequest struct {
	Sources map[process.FundingSource]SourcePlanRequest `json:"sources" binding:"required,dive"`
}

func (r FinancialPlanRequest) toPlan() process.FinancialPlan {
	plan := process.FinancialPlan{Sources: make(map[process.FundingSource]process.SourcePlan, len(r.Sources))}
	for src, sp := range r.Sources {
		plan.Sources[src] = process.SourcePlan{Applied: sp.Applied, Amount: sp.Amount}
	}
	return plan
}

// RegisterClientRequest registers a buyer on an available house
type RegisterClientRequest struct {
	FullName         string               `json:"full_name" binding:"required,max=200"`
	DocumentNumber   string               `json:"document_number" binding:"required,max=50"`
	Email            string               `json:"email" binding:"omitempty,email,max=200"`
	Phone            string               `json:"phone" binding:"max=50"`
	HouseID          uuid.UUID            `json:"house_id" binding:"required"`
	Plan             FinancialPlanRequest `json:"plan" binding:"required"`
	ProcessStartedAt *dto.Date            `json:"process_started_at"`
}

// StepDraftRequest is the editable part of a step state. Evidence maps an
// evidence ID to its document URL.
type StepDraftRequest struct {
	Completed      bool              `json:"completed"`
	CompletionDate *dto.Date         `json:"completion_date"`
	Evidence       map[string]string `json:"evidence"`
}

// ProcessDraftRequest carries edited step states keyed by step key.
// Reasons is required for every completed step being changed.
type ProcessDraftRequest struct {
	Steps   map[process.StepKey]StepDraftRequest `json:"steps" binding:"required"`
	Reasons map[process.StepKey]string           `json:"reasons"`
}

func (r ProcessDraftRequest) toStates() process.StepStates {
	states := make(process.StepStates, len(r.Steps))
	for key, d := range r.Steps {
		st := process.StepState{Completed: d.Completed}
		if d.CompletionDate != nil && !d.CompletionDate.IsZero() {
			st.CompletionDate = process.DatePtr(d.CompletionDate.Time)
		}
		if len(d.Evidence) > 0 {
			st.Evidence = make(map[string]process.Evidence, len(d.Evidence))
			for id, url := range d.Evidence {
				if url == "" {
					continue
				}
				st.Evidence[id] = process.Evidence{URL: url}
			}
		}
		states[key] = st
	}
	return states
}

// ProcessRenunciationRequest withdraws the client from its house
type ProcessRenunciationRequest struct {
	HouseID uuid.UUID       `json:"house_id" binding:"required"`
	Motive  string          `json:"motive" binding:"required,max=1000"`
	Penalty decimal.Decimal `json:"penalty" binding:"gte=0"`
}

// Register registers a buyer and starts its purchase process.
// POST /api/v1/clients
func (h *ClientHandler) Register(c *gin.Context) {
	actor, ok := h.requireActor(c)
	if !ok {
		return
	}
	var req RegisterClientRequest
	if !h.bindJSON(c, &req) {
		return
	}

	cmd := appsales.RegisterClientCommand{
		FullName:       req.FullName,
		DocumentNumber: req.DocumentNumber,
		Email:          req.Email,
		Phone:          req.Phone,
		HouseID:        req.HouseID,
		Plan:           req.Plan.toPlan(),
		Actor:          actor,
	}
	if req.ProcessStartedAt != nil {
		cmd.ProcessStartedAt = req.ProcessStartedAt.Time
	}
	client, err := h.registry.RegisterClient(c.Request.Context(), cmd)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.created(c, toClientResponse(client))
}

// List lists clients, optionally filtered by ?status=.
// GET /api/v1/clients
func (h *ClientHandler) List(c *gin.Context) {
	status := sales.ClientStatus(c.Query("status"))
	switch status {
	case "", sales.ClientActive, sales.ClientPendingRefund, sales.ClientWithdrawn:
	default:
		h.badRequest(c, dto.ErrCodeBadRequest, "status must be one of: active pending_refund withdrawn")
		return
	}

	clients, err := h.registry.ListClients(c.Request.Context(), status)
	if err != nil {
		h.fail(c, err)
		return
	}
	out := make([]*ClientResponse, 0, len(clients))
	for i := range clients {
		out = append(out, toClientResponse(&clients[i]))
	}
	h.list(c, out, len(out), 0)
}

// Get returns a client.
// GET /api/v1/clients/:id
func (h *ClientHandler) Get(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	client, err := h.registry.GetClient(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, toClientResponse(client))
}

// GetProcess evaluates the saved purchase process.
// GET /api/v1/clients/:id/process
func (h *ClientHandler) GetProcess(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	view, err := h.process.Evaluate(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, view)
}

// EvaluateDraft evaluates unsaved step edits without writing them.
// POST /api/v1/clients/:id/process/evaluate
func (h *ClientHandler) EvaluateDraft(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	var req ProcessDraftRequest
	if !h.bindJSON(c, &req) {
		return
	}
	view, err := h.process.EvaluateDraft(c.Request.Context(), id, req.toStates())
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, view)
}

// SaveProcess stores edited step states.
// PUT /api/v1/clients/:id/process
func (h *ClientHandler) SaveProcess(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	actor, ok := h.requireActor(c)
	if !ok {
		return
	}
	var req ProcessDraftRequest
	if !h.bindJSON(c, &req) {
		return
	}
	view, err := h.process.SaveProcess(c.Request.Context(), appsales.SaveProcessCommand{
		ClientID: id,
		Steps:    req.toStates(),
		Reasons:  req.Reasons,
		Actor:    actor,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, view)
}

// UpdatePlan replaces the financial plan.
// PUT /api/v1/clients/:id/plan
func (h *ClientHandler) UpdatePlan(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	actor, ok := h.requireActor(c)
	if !ok {
		return
	}
	var req FinancialPlanRequest
	if !h.bindJSON(c, &req) {
		return
	}
	view, err := h.process.UpdateFinancialPlan(c.Request.Context(), appsales.UpdatePlanCommand{
		ClientID: id,
		Plan:     req.toPlan(),
		Actor:    actor,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, view)
}

// ListPayments lists the client's payments, newest first.
// GET /api/v1/clients/:id/payments
func (h *ClientHandler) ListPayments(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	payments, err := h.registry.ListPayments(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	out := toPaymentResponses(payments)
	h.list(c, out, len(out), 0)
}

// ListAudit returns the client's latest activity, ?limit= capped at
// DefaultAuditLimit.
// GET /api/v1/clients/:id/audit
func (h *ClientHandler) ListAudit(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	limit := appsales.DefaultAuditLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			h.badRequest(c, dto.ErrCodeBadRequest, "limit must be a positive integer")
			return
		}
		if n < limit {
			limit = n
		}
	}
	entries, err := h.registry.ListAudit(c.Request.Context(), id, limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	out := toAuditResponses(entries)
	h.list(c, out, len(out), limit)
}

// ListRenunciations lists the client's renunciation records.
// GET /api/v1/clients/:id/renunciations
func (h *ClientHandler) ListRenunciations(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	records, err := h.registry.ListRenunciations(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	out := make([]*RenunciationResponse, 0, len(records))
	for i := range records {
		out = append(out, toRenunciationResponse(&records[i]))
	}
	h.list(c, out, len(out), 0)
}

// Renounce withdraws the client from its house and computes the refund.
// POST /api/v1/clients/:id/renunciations
func (h *ClientHandler) Renounce(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	actor, ok := h.requireActor(c)
	if !ok {
		return
	}
	var req ProcessRenunciationRequest
	if !h.bindJSON(c, &req) {
		return
	}
	result, err := h.ledger.ProcessRenunciation(c.Request.Context(), appsales.ProcessRenunciationCommand{
		ClientID: id,
		HouseID:  req.HouseID,
		Motive:   req.Motive,
		Penalty:  req.Penalty,
		Actor:    actor,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	h.created(c, toRenunciationResult(result))
}
