package handler

import (
	"time"

	appsales "github.com/casaviva/backoffice/internal/application/sales"
	"github.com/casaviva/backoffice/internal/domain/process"
	"github.com/casaviva/backoffice/internal/domain/sales"
	"github.com/casaviva/backoffice/internal/interfaces/http/dto"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// HouseResponse is a house with its running balance.
type HouseResponse struct {
	ID               uuid.UUID       `json:"id"`
	Code             string          `json:"code"`
	Project          string          `json:"project"`
	PriceBase        decimal.Decimal `json:"price_base"`
	DiscountAmount   decimal.Decimal `json:"discount_amount"`
	DiscountReason   string          `json:"discount_reason,omitempty"`
	FinalPrice       decimal.Decimal `json:"final_price"`
	TotalPaid        decimal.Decimal `json:"total_paid"`
	BalanceDue       decimal.Decimal `json:"balance_due"`
	AssignedClientID *uuid.UUID      `json:"assigned_client_id"`
	Version          int             `json:"version"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

func toHouseResponse(h *sales.House) *HouseResponse {
	if h == nil {
		return nil
	}
	return &HouseResponse{
		ID:               h.ID,
		Code:             h.Code,
		Project:          h.Project,
		PriceBase:        h.PriceBase,
		DiscountAmount:   h.DiscountAmount,
		DiscountReason:   h.DiscountReason,
		FinalPrice:       h.FinalPrice,
		TotalPaid:        h.TotalPaid,
		BalanceDue:       h.BalanceDue,
		AssignedClientID: h.AssignedClientID,
		Version:          h.Version,
		CreatedAt:        h.CreatedAt,
		UpdatedAt:        h.UpdatedAt,
	}
}

// ClientResponse is a buyer without its step states; those are served by
// the process endpoints.
type ClientResponse struct {
	ID               uuid.UUID             `json:"id"`
	FullName         string                `json:"full_name"`
	DocumentNumber   string                `json:"document_number"`
	Email            string                `json:"email,omitempty"`
	Phone            string                `json:"phone,omitempty"`
	Status           sales.ClientStatus    `json:"status"`
	HouseID          *uuid.UUID            `json:"house_id"`
	Plan             process.FinancialPlan `json:"plan"`
	ProcessStartedAt dto.Date              `json:"process_started_at"`
	Version          int                   `json:"version"`
	CreatedAt        time.Time             `json:"created_at"`
	UpdatedAt        time.Time             `json:"updated_at"`
}

func toClientResponse(c *sales.Client) *ClientResponse {
	if c == nil {
		return nil
	}
	return &ClientResponse{
		ID:               c.ID,
		FullName:         c.FullName,
		DocumentNumber:   c.DocumentNumber,
		Email:            c.Email,
		Phone:            c.Phone,
		Status:           c.Status,
		HouseID:          c.HouseID,
		Plan:             c.Plan,
		ProcessStartedAt: dto.DateOf(c.ProcessStartedAt),
		Version:          c.Version,
		CreatedAt:        c.CreatedAt,
		UpdatedAt:        c.UpdatedAt,
	}
}

// PaymentResponse is a single installment.
type PaymentResponse struct {
	ID          uuid.UUID             `json:"id"`
	HouseID     uuid.UUID             `json:"house_id"`
	ClientID    uuid.UUID             `json:"client_id"`
	Amount      decimal.Decimal       `json:"amount"`
	PaymentDate dto.Date              `json:"payment_date"`
	Source      process.FundingSource `json:"source"`
	Status      sales.PaymentStatus   `json:"status"`
	ReceiptURL  string                `json:"receipt_url,omitempty"`
	Note        string                `json:"note,omitempty"`
	RecordedBy  string                `json:"recorded_by"`
	VoidReason  string                `json:"void_reason,omitempty"`
	VoidedAt    *time.Time            `json:"voided_at,omitempty"`
	CreatedAt   time.Time             `json:"created_at"`
	UpdatedAt   time.Time             `json:"updated_at"`
}

func toPaymentResponse(p *sales.Payment) *PaymentResponse {
	if p == nil {
		return nil
	}
	return &PaymentResponse{
		ID:          p.ID,
		HouseID:     p.HouseID,
		ClientID:    p.ClientID,
		Amount:      p.Amount,
		PaymentDate: dto.DateOf(p.PaymentDate),
		Source:      p.Source,
		Status:      p.Status,
		ReceiptURL:  p.ReceiptURL,
		Note:        p.Note,
		RecordedBy:  p.RecordedBy,
		VoidReason:  p.VoidReason,
		VoidedAt:    p.VoidedAt,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

func toPaymentResponses(payments []sales.Payment) []*PaymentResponse {
	out := make([]*PaymentResponse, 0, len(payments))
	for i := range payments {
		out = append(out, toPaymentResponse(&payments[i]))
	}
	return out
}

// PaymentResultResponse is the state left behind by a payment operation.
type PaymentResultResponse struct {
	Payment *PaymentResponse   `json:"payment"`
	House   *HouseResponse     `json:"house"`
	StepKey process.StepKey    `json:"step_key,omitempty"`
	Step    *process.StepState `json:"step,omitempty"`
}

func toPaymentResult(r *appsales.PaymentResult) *PaymentResultResponse {
	return &PaymentResultResponse{
		Payment: toPaymentResponse(r.Payment),
		House:   toHouseResponse(r.House),
		StepKey: r.StepKey,
		Step:    r.Step,
	}
}

// AuditEntryResponse is one line of a client's activity history.
type AuditEntryResponse struct {
	ID         uuid.UUID         `json:"id"`
	ClientID   uuid.UUID         `json:"client_id"`
	HouseID    *uuid.UUID        `json:"house_id,omitempty"`
	StepKey    string            `json:"step_key,omitempty"`
	Action     sales.AuditAction `json:"action"`
	Message    string            `json:"message"`
	ActorName  string            `json:"actor_name"`
	OccurredAt time.Time         `json:"occurred_at"`
}

func toAuditResponses(entries []sales.AuditEntry) []AuditEntryResponse {
	out := make([]AuditEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, AuditEntryResponse{
			ID:         e.ID,
			ClientID:   e.ClientID,
			HouseID:    e.HouseID,
			StepKey:    e.StepKey,
			Action:     e.Action,
			Message:    e.Message,
			ActorName:  e.ActorName,
			OccurredAt: e.OccurredAt,
		})
	}
	return out
}

// RenunciationResponse is a withdrawal and the refund it owes.
type RenunciationResponse struct {
	ID               uuid.UUID               `json:"id"`
	ClientID         uuid.UUID               `json:"client_id"`
	HouseID          uuid.UUID               `json:"house_id"`
	Motive           string                  `json:"motive"`
	PenaltyAmount    decimal.Decimal         `json:"penalty_amount"`
	TotalPaidReal    decimal.Decimal         `json:"total_paid_real"`
	AmountRefundable decimal.Decimal         `json:"amount_refundable"`
	RefundStatus     sales.RefundStatus      `json:"refund_status"`
	PaymentsSnapshot []sales.PaymentSnapshot `json:"payments_snapshot"`
	Payout           *sales.Payout           `json:"payout,omitempty"`
	ProcessedBy      string                  `json:"processed_by"`
	ClosedAt         *time.Time              `json:"closed_at,omitempty"`
	CreatedAt        time.Time               `json:"created_at"`
}

func toRenunciationResponse(r *sales.Renunciation) *RenunciationResponse {
	if r == nil {
		return nil
	}
	return &RenunciationResponse{
		ID:               r.ID,
		ClientID:         r.ClientID,
		HouseID:          r.HouseID,
		Motive:           r.Motive,
		PenaltyAmount:    r.PenaltyAmount,
		TotalPaidReal:    r.TotalPaidReal,
		AmountRefundable: r.AmountRefundable,
		RefundStatus:     r.RefundStatus,
		PaymentsSnapshot: r.PaymentsSnapshot,
		Payout:           r.Payout,
		ProcessedBy:      r.ProcessedBy,
		ClosedAt:         r.ClosedAt,
		CreatedAt:        r.CreatedAt,
	}
}

// RenunciationResultResponse is the state left behind by a renunciation
// operation.
type RenunciationResultResponse struct {
	Renunciation *RenunciationResponse `json:"renunciation"`
	House        *HouseResponse        `json:"house,omitempty"`
	Client       *ClientResponse       `json:"client"`
}

func toRenunciationResult(r *appsales.RenunciationResult) *RenunciationResultResponse {
	return &RenunciationResultResponse{
		Renunciation: toRenunciationResponse(r.Renunciation),
		House:        toHouseResponse(r.House),
		Client:       toClientResponse(r.Client),
	}
}
