package models

import (
	"time"

	"github.com/casaviva/backoffice/internal/domain/process"
	"github.com/casaviva/backoffice/internal/domain/sales"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// HouseModel is the persistence model for the House aggregate root.
type HouseModel struct {
	AggregateModel
	Code             string          `gorm:"type:varchar(40);not null;uniqueIndex"`
	Project          string          `gorm:"type:varchar(120)"`
	PriceBase        decimal.Decimal `gorm:"type:decimal(18,2);not null"`
	DiscountAmount   decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0"`
	DiscountReason   string          `gorm:"type:text"`
	FinalPrice       decimal.Decimal `gorm:"type:decimal(18,2);not null"`
	TotalPaid        decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0"`
	BalanceDue       decimal.Decimal `gorm:"type:decimal(18,2);not null"`
	AssignedClientID *uuid.UUID      `gorm:"type:uuid;index"`
}

// TableName returns the table name for GORM
func (HouseModel) TableName() string {
	return "houses"
}

// ToDomain converts the persistence model to a domain House.
func (m *HouseModel) ToDomain() *sales.House {
	return &sales.House{
		BaseAggregateRoot: m.root(),
		Code:              m.Code,
		Project:           m.Project,
		PriceBase:         m.PriceBase,
		DiscountAmount:    m.DiscountAmount,
		DiscountReason:    m.DiscountReason,
		FinalPrice:        m.FinalPrice,
		TotalPaid:         m.TotalPaid,
		BalanceDue:        m.BalanceDue,
		AssignedClientID:  m.AssignedClientID,
	}
}

// FromDomain populates the persistence model from a domain House.
func (m *HouseModel) FromDomain(h *sales.House) {
	m.AggregateModel = aggregateModel(h.BaseAggregateRoot)
	m.Code = h.Code
	m.Project = h.Project
	m.PriceBase = h.PriceBase
	m.DiscountAmount = h.DiscountAmount
	m.DiscountReason = h.DiscountReason
	m.FinalPrice = h.FinalPrice
	m.TotalPaid = h.TotalPaid
	m.BalanceDue = h.BalanceDue
	m.AssignedClientID = h.AssignedClientID
}

// HouseModelFromDomain creates a new persistence model from a domain House.
func HouseModelFromDomain(h *sales.House) *HouseModel {
	m := &HouseModel{}
	m.FromDomain(h)
	return m
}

// ClientModel is the persistence model for the Client aggregate root. The
// plan and step states are stored as JSON documents.
type ClientModel struct {
	AggregateModel
	FullName         string                `gorm:"type:varchar(200);not null"`
	DocumentNumber   string                `gorm:"type:varchar(40);not null;uniqueIndex"`
	Email            string                `gorm:"type:varchar(200)"`
	Phone            string                `gorm:"type:varchar(40)"`
	Status           string                `gorm:"type:varchar(20);not null;index"`
	HouseID          *uuid.UUID            `gorm:"type:uuid;index"`
	Plan             process.FinancialPlan `gorm:"type:jsonb;serializer:json"`
	Steps            process.StepStates    `gorm:"type:jsonb;serializer:json"`
	ProcessStartedAt time.Time             `gorm:"not null"`
}

// TableName returns the table name for GORM
func (ClientModel) TableName() string {
	return "clients"
}

// ToDomain converts the persistence model to a domain Client.
func (m *ClientModel) ToDomain() *sales.Client {
	steps := m.Steps
	if steps == nil {
		steps = process.StepStates{}
	}
	return &sales.Client{
		BaseAggregateRoot: m.root(),
		FullName:          m.FullName,
		DocumentNumber:    m.DocumentNumber,
		Email:             m.Email,
		Phone:             m.Phone,
		Status:            sales.ClientStatus(m.Status),
		HouseID:           m.HouseID,
		Plan:              m.Plan,
		Steps:             steps,
		ProcessStartedAt:  m.ProcessStartedAt.UTC(),
	}
}

// FromDomain populates the persistence model from a domain Client.
func (m *ClientModel) FromDomain(c *sales.Client) {
	m.AggregateModel = aggregateModel(c.BaseAggregateRoot)
	m.FullName = c.FullName
	m.DocumentNumber = c.DocumentNumber
	m.Email = c.Email
	m.Phone = c.Phone
	m.Status = string(c.Status)
	m.HouseID = c.HouseID
	m.Plan = c.Plan
	m.Steps = c.Steps
	m.ProcessStartedAt = c.ProcessStartedAt
}

// ClientModelFromDomain creates a new persistence model from a domain Client.
func ClientModelFromDomain(c *sales.Client) *ClientModel {
	m := &ClientModel{}
	m.FromDomain(c)
	return m
}

// PaymentModel is the persistence model for the Payment aggregate root.
type PaymentModel struct {
	AggregateModel
	HouseID      uuid.UUID          `gorm:"type:uuid;not null;index:idx_payments_house_client,priority:1"`
	ClientID     uuid.UUID          `gorm:"type:uuid;not null;index:idx_payments_house_client,priority:2;index"`
	Amount       decimal.Decimal    `gorm:"type:decimal(18,2);not null"`
	PaymentDate  time.Time          `gorm:"not null"`
	Source       string             `gorm:"type:varchar(40);not null"`
	Status       string             `gorm:"type:varchar(20);not null;index"`
	ReceiptURL   string             `gorm:"type:text"`
	Note         string             `gorm:"type:text"`
	RecordedBy   string             `gorm:"type:varchar(200);not null"`
	StepSnapshot *process.StepState `gorm:"type:jsonb;serializer:json"`
	VoidReason   string             `gorm:"type:text"`
	VoidedAt     *time.Time
}

// TableName returns the table name for GORM
func (PaymentModel) TableName() string {
	return "payments"
}

// ToDomain converts the persistence model to a domain Payment.
func (m *PaymentModel) ToDomain() *sales.Payment {
	return &sales.Payment{
		BaseAggregateRoot: m.root(),
		HouseID:           m.HouseID,
		ClientID:          m.ClientID,
		Amount:            m.Amount,
		PaymentDate:       m.PaymentDate.UTC(),
		Source:            process.FundingSource(m.Source),
		Status:            sales.PaymentStatus(m.Status),
		ReceiptURL:        m.ReceiptURL,
		Note:              m.Note,
		RecordedBy:        m.RecordedBy,
		StepSnapshot:      m.StepSnapshot,
		VoidReason:        m.VoidReason,
		VoidedAt:          m.VoidedAt,
	}
}

// FromDomain populates the persistence model from a domain Payment.
func (m *PaymentModel) FromDomain(p *sales.Payment) {
	m.AggregateModel = aggregateModel(p.BaseAggregateRoot)
	m.HouseID = p.HouseID
	m.ClientID = p.ClientID
	m.Amount = p.Amount
	m.PaymentDate = p.PaymentDate
	m.Source = string(p.Source)
	m.Status = string(p.Status)
	m.ReceiptURL = p.ReceiptURL
	m.Note = p.Note
	m.RecordedBy = p.RecordedBy
	m.StepSnapshot = p.StepSnapshot
	m.VoidReason = p.VoidReason
	m.VoidedAt = p.VoidedAt
}

// PaymentModelFromDomain creates a new persistence model from a domain Payment.
func PaymentModelFromDomain(p *sales.Payment) *PaymentModel {
	m := &PaymentModel{}
	m.FromDomain(p)
	return m
}

// RenunciationModel is the persistence model for the Renunciation
// aggregate root. Snapshots are JSON documents.
type RenunciationModel struct {
	AggregateModel
	ClientID         uuid.UUID               `gorm:"type:uuid;not null;index"`
	HouseID          uuid.UUID               `gorm:"type:uuid;not null;index"`
	Motive           string                  `gorm:"type:text;not null"`
	PenaltyAmount    decimal.Decimal         `gorm:"type:decimal(18,2);not null;default:0"`
	TotalPaidReal    decimal.Decimal         `gorm:"type:decimal(18,2);not null"`
	AmountRefundable decimal.Decimal         `gorm:"type:decimal(18,2);not null"`
	RefundStatus     string                  `gorm:"type:varchar(20);not null;index"`
	PlanSnapshot     process.FinancialPlan   `gorm:"type:jsonb;serializer:json"`
	StepsSnapshot    process.StepStates      `gorm:"type:jsonb;serializer:json"`
	PaymentsSnapshot []sales.PaymentSnapshot `gorm:"type:jsonb;serializer:json"`
	HouseSnapshot    sales.HouseSnapshot     `gorm:"type:jsonb;serializer:json"`
	Payout           *sales.Payout           `gorm:"type:jsonb;serializer:json"`
	ProcessedBy      string                  `gorm:"type:varchar(200);not null"`
	ClosedAt         *time.Time
}

// TableName returns the table name for GORM
func (RenunciationModel) TableName() string {
	return "renunciations"
}

// ToDomain converts the persistence model to a domain Renunciation.
func (m *RenunciationModel) ToDomain() *sales.Renunciation {
	return &sales.Renunciation{
		BaseAggregateRoot: m.root(),
		ClientID:          m.ClientID,
		HouseID:           m.HouseID,
		Motive:            m.Motive,
		PenaltyAmount:     m.PenaltyAmount,
		TotalPaidReal:     m.TotalPaidReal,
		AmountRefundable:  m.AmountRefundable,
		RefundStatus:      sales.RefundStatus(m.RefundStatus),
		PlanSnapshot:      m.PlanSnapshot,
		StepsSnapshot:     m.StepsSnapshot,
		PaymentsSnapshot:  m.PaymentsSnapshot,
		HouseSnapshot:     m.HouseSnapshot,
		Payout:            m.Payout,
		ProcessedBy:       m.ProcessedBy,
		ClosedAt:          m.ClosedAt,
	}
}

// FromDomain populates the persistence model from a domain Renunciation.
func (m *RenunciationModel) FromDomain(r *sales.Renunciation) {
	m.AggregateModel = aggregateModel(r.BaseAggregateRoot)
	m.ClientID = r.ClientID
	m.HouseID = r.HouseID
	m.Motive = r.Motive
	m.PenaltyAmount = r.PenaltyAmount
	m.TotalPaidReal = r.TotalPaidReal
	m.AmountRefundable = r.AmountRefundable
	m.RefundStatus = string(r.RefundStatus)
	m.PlanSnapshot = r.PlanSnapshot
	m.StepsSnapshot = r.StepsSnapshot
	m.PaymentsSnapshot = r.PaymentsSnapshot
	m.HouseSnapshot = r.HouseSnapshot
	m.Payout = r.Payout
	m.ProcessedBy = r.ProcessedBy
	m.ClosedAt = r.ClosedAt
}

// RenunciationModelFromDomain creates a new persistence model from a
// domain Renunciation.
func RenunciationModelFromDomain(r *sales.Renunciation) *RenunciationModel {
	m := &RenunciationModel{}
	m.FromDomain(r)
	return m
}
