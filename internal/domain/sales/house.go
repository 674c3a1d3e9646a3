package sales

import (
	"fmt"
	"strings"
	"time"

	"github.com/casaviva/backoffice/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// House is a unit in the inventory together with its running balance.
// FinalPrice and BalanceDue are stored and kept in step with PriceBase,
// DiscountAmount and TotalPaid by every mutating method.
type House struct {
	shared.BaseAggregateRoot
	Code             string
	Project          string
	PriceBase        decimal.Decimal
	DiscountAmount   decimal.Decimal
	DiscountReason   string
	FinalPrice       decimal.Decimal
	TotalPaid        decimal.Decimal
	BalanceDue       decimal.Decimal
	AssignedClientID *uuid.UUID
}

// NewHouse creates an unassigned house.
func NewHouse(code, project string, priceBase decimal.Decimal) (*House, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, shared.NewDomainError("INVALID_CODE", "House code cannot be empty")
	}
	if !priceBase.IsPositive() {
		return nil, shared.NewDomainError("INVALID_PRICE", "House base price must be positive")
	}
	h := &House{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		Code:              code,
		Project:           strings.TrimSpace(project),
		PriceBase:         priceBase,
		DiscountAmount:    decimal.Zero,
		TotalPaid:         decimal.Zero,
	}
	h.recompute()
	return h, nil
}

func (h *House) recompute() {
	h.FinalPrice = h.PriceBase.Sub(h.DiscountAmount)
	h.BalanceDue = h.FinalPrice.Sub(h.TotalPaid)
}

// IsAssigned reports whether a client holds the house.
func (h *House) IsAssigned() bool {
	return h.AssignedClientID != nil
}

// IsAssignedTo reports whether clientID holds the house.
func (h *House) IsAssignedTo(clientID uuid.UUID) bool {
	return h.AssignedClientID != nil && *h.AssignedClientID == clientID
}

// Assign reserves the house for a client.
func (h *House) Assign(clientID uuid.UUID, now time.Time) error {
	if h.IsAssigned() && !h.IsAssignedTo(clientID) {
		return ErrHouseAlreadyAssigned
	}
	h.AssignedClientID = &clientID
	h.Touch(now)
	return nil
}

// RecordPayment adds amount to the paid total. It refuses to take the
// balance below zero.
func (h *House) RecordPayment(amount decimal.Decimal, now time.Time) error {
	if !amount.IsPositive() {
		return shared.NewDomainError("INVALID_AMOUNT", "Payment amount must be positive")
	}
	if amount.GreaterThan(h.BalanceDue) {
		return ErrOverpayment.WithMessage(fmt.Sprintf(
			"Amount %s exceeds the balance due %s", amount.StringFixed(2), h.BalanceDue.StringFixed(2)))
	}
	h.TotalPaid = h.TotalPaid.Add(amount)
	h.recompute()
	h.Touch(now)
	return nil
}

// ReversePayment removes amount from the paid total.
func (h *House) ReversePayment(amount decimal.Decimal, now time.Time) error {
	if amount.GreaterThan(h.TotalPaid) {
		return ErrLedgerInvariant.WithMessage(fmt.Sprintf(
			"Cannot reverse %s: only %s has been paid", amount.StringFixed(2), h.TotalPaid.StringFixed(2)))
	}
	h.TotalPaid = h.TotalPaid.Sub(amount)
	h.recompute()
	h.Touch(now)
	return nil
}

// AdjustPayment applies the difference between a payment's old and new
// amount.
func (h *House) AdjustPayment(previous, next decimal.Decimal, now time.Time) error {
	delta := next.Sub(previous)
	switch {
	case delta.IsPositive():
		return h.RecordPayment(delta, now)
	case delta.IsNegative():
		return h.ReversePayment(delta.Neg(), now)
	}
	return nil
}

// ApplyDiscount sets the discount on the base price. The new discount
// replaces the previous one; the increase over the current discount may
// not exceed the balance due. A positive discount needs a reason.
func (h *House) ApplyDiscount(amount decimal.Decimal, reason string, now time.Time) error {
	reason = strings.TrimSpace(reason)
	if amount.IsNegative() {
		return shared.NewDomainError("INVALID_AMOUNT", "Discount cannot be negative")
	}
	if amount.IsPositive() && reason == "" {
		return shared.NewValidationError("Discount reason is required", map[string]string{
			"reason": "required when the discount is greater than zero",
		})
	}
	if amount.Sub(h.DiscountAmount).GreaterThan(h.BalanceDue) {
		return ErrOverpayment.WithMessage(fmt.Sprintf(
			"Discount of %s exceeds what is owed (balance due %s, current discount %s)",
			amount.StringFixed(2), h.BalanceDue.StringFixed(2), h.DiscountAmount.StringFixed(2)))
	}
	h.DiscountAmount = amount
	h.DiscountReason = reason
	if amount.IsZero() {
		h.DiscountReason = ""
	}
	h.recompute()
	h.Touch(now)
	return nil
}

// Release frees the house and resets it to its full base price.
func (h *House) Release(now time.Time) {
	h.AssignedClientID = nil
	h.DiscountAmount = decimal.Zero
	h.DiscountReason = ""
	h.TotalPaid = decimal.Zero
	h.recompute()
	h.Touch(now)
}

// HouseSnapshot captures the ledger fields of a house.
type HouseSnapshot struct {
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	DiscountReason string          `json:"discount_reason,omitempty"`
	TotalPaid      decimal.Decimal `json:"total_paid"`
}

// Snapshot returns the ledger fields for later restoration.
func (h *House) Snapshot() HouseSnapshot {
	return HouseSnapshot{
		DiscountAmount: h.DiscountAmount,
		DiscountReason: h.DiscountReason,
		TotalPaid:      h.TotalPaid,
	}
}

// Restore reassigns the house to clientID with the snapshot's balance.
func (h *House) Restore(clientID uuid.UUID, s HouseSnapshot, now time.Time) error {
	if h.IsAssigned() {
		return ErrHouseAlreadyAssigned
	}
	h.AssignedClientID = &clientID
	h.DiscountAmount = s.DiscountAmount
	h.DiscountReason = s.DiscountReason
	h.TotalPaid = s.TotalPaid
	h.recompute()
	h.Touch(now)
	return h.CheckLedger()
}

// CheckLedger verifies totalPaid + balanceDue == finalPrice and that the
// stored figures are consistent with one another.
func (h *House) CheckLedger() error {
	switch {
	case !h.FinalPrice.Equal(h.PriceBase.Sub(h.DiscountAmount)):
		return ErrLedgerInvariant.WithMessage("final price does not match base price minus discount")
	case !h.TotalPaid.Add(h.BalanceDue).Equal(h.FinalPrice):
		return ErrLedgerInvariant.WithMessage(fmt.Sprintf(
			"total paid %s plus balance due %s differs from final price %s",
			h.TotalPaid.StringFixed(2), h.BalanceDue.StringFixed(2), h.FinalPrice.StringFixed(2)))
	case h.TotalPaid.IsNegative():
		return ErrLedgerInvariant.WithMessage("total paid is negative")
	case h.BalanceDue.IsNegative():
		return ErrLedgerInvariant.WithMessage("balance due is negative")
	}
	return nil
}
