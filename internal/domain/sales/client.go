package sales

import (
	"strings"
	"time"

	"github.com/casaviva/backoffice/internal/domain/process"
	"github.com/casaviva/backoffice/internal/domain/shared"
	"github.com/google/uuid"
)

// ClientStatus is the buyer lifecycle state.
type ClientStatus string

const (
	ClientActive        ClientStatus = "active"
	ClientPendingRefund ClientStatus = "pending_refund"
	ClientWithdrawn     ClientStatus = "withdrawn"
)

// Client is a buyer. It owns its financial plan and purchase-process step
// states.
type Client struct {
	shared.BaseAggregateRoot
	FullName         string
	DocumentNumber   string
	Email            string
	Phone            string
	Status           ClientStatus
	HouseID          *uuid.UUID
	Plan             process.FinancialPlan
	Steps            process.StepStates
	ProcessStartedAt time.Time
}

// NewClient creates an active client with an empty process.
func NewClient(fullName, documentNumber string, startedAt time.Time) (*Client, error) {
	fullName = strings.TrimSpace(fullName)
	documentNumber = strings.TrimSpace(documentNumber)
	details := make(map[string]string)
	if fullName == "" {
		details["full_name"] = "required"
	}
	if documentNumber == "" {
		details["document_number"] = "required"
	}
	if len(details) > 0 {
		return nil, shared.NewValidationError("Invalid client", details)
	}
	return &Client{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		FullName:          fullName,
		DocumentNumber:    documentNumber,
		Status:            ClientActive,
		Steps:             process.StepStates{},
		ProcessStartedAt:  process.Day(startedAt),
	}, nil
}

// IsActive reports whether the client is an active buyer.
func (c *Client) IsActive() bool {
	return c.Status == ClientActive
}

// StartProcess assigns the house and plan and creates the initial step
// states.
func (c *Client) StartProcess(cat *process.Catalog, houseID uuid.UUID, plan process.FinancialPlan, now time.Time) error {
	if !c.IsActive() {
		return ErrClientNotActive
	}
	if c.HouseID != nil && *c.HouseID != houseID {
		return ErrHouseAlreadyAssigned.WithMessage("The client already holds another house")
	}
	c.HouseID = &houseID
	c.Plan = plan.Clone()
	c.Steps = process.InitialStates(cat, c.Plan)
	c.Touch(now)
	return nil
}

// ChangePlan replaces the plan and reconciles step states with it.
func (c *Client) ChangePlan(cat *process.Catalog, plan process.FinancialPlan, now time.Time) []process.ReconcileChange {
	c.Plan = plan.Clone()
	var changes []process.ReconcileChange
	c.Steps, changes = process.Reconcile(cat, c.Plan, c.Steps)
	c.Touch(now)
	return changes
}

// ReplaceSteps stores a validated draft.
func (c *Client) ReplaceSteps(steps process.StepStates, now time.Time) {
	c.Steps = steps.Clone()
	c.Touch(now)
}

// CompleteAutomaticStep marks a ledger-driven step completed on date with
// the receipt attached as evidence. It returns the state it replaced.
func (c *Client) CompleteAutomaticStep(key process.StepKey, date time.Time, evidenceID, url string, now time.Time) process.StepState {
	prev := c.Steps.Get(key).Clone()
	st := prev.Clone()
	st.Completed = true
	st.CompletionDate = process.DatePtr(date)
	if st.Evidence == nil {
		st.Evidence = make(map[string]process.Evidence, 1)
	}
	st.Evidence[evidenceID] = process.Evidence{URL: url, UploadedAt: now}
	st.Archived = false
	c.setStep(key, st)
	c.Touch(now)
	return prev
}

// ReopenStep clears completion of key, records why, and returns the state
// it replaced.
func (c *Client) ReopenStep(key process.StepKey, evidenceID, reason string, now time.Time) process.StepState {
	prev := c.Steps.Get(key).Clone()
	st := prev.Clone()
	st.Completed = false
	st.CompletionDate = nil
	delete(st.Evidence, evidenceID)
	st.LastChangeReason = reason
	st.LastChangeDate = process.DatePtr(now)
	c.setStep(key, st)
	c.Touch(now)
	return prev
}

// RestoreStep puts back a state captured earlier.
func (c *Client) RestoreStep(key process.StepKey, st process.StepState, now time.Time) {
	c.setStep(key, st.Clone())
	c.Touch(now)
}

func (c *Client) setStep(key process.StepKey, st process.StepState) {
	if c.Steps == nil {
		c.Steps = process.StepStates{}
	}
	c.Steps[key] = st
}

// Withdraw finalizes the client as withdrawn.
func (c *Client) Withdraw(now time.Time) {
	c.Status = ClientWithdrawn
	c.HouseID = nil
	c.Touch(now)
}

// Renounce detaches the client from its house and clears the process. The
// client waits for a refund unless nothing is refundable.
func (c *Client) Renounce(refundPending bool, now time.Time) {
	c.Status = ClientWithdrawn
	if refundPending {
		c.Status = ClientPendingRefund
	}
	c.HouseID = nil
	c.Plan = process.FinancialPlan{}
	c.Steps = process.StepStates{}
	c.Touch(now)
}

// Reinstate restores an active client from a renunciation snapshot.
func (c *Client) Reinstate(houseID uuid.UUID, plan process.FinancialPlan, steps process.StepStates, now time.Time) {
	c.Status = ClientActive
	c.HouseID = &houseID
	c.Plan = plan.Clone()
	c.Steps = steps.Clone()
	c.Touch(now)
}
