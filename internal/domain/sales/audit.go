package sales

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// AuditAction classifies an audit entry.
type AuditAction string

const (
	AuditStepCompleted       AuditAction = "step_completed"
	AuditStepModified        AuditAction = "step_modified"
	AuditStepReopened        AuditAction = "step_reopened"
	AuditStepRestored        AuditAction = "step_restored"
	AuditStepArchived        AuditAction = "step_archived"
	AuditPaymentRegistered   AuditAction = "payment_registered"
	AuditPaymentEdited       AuditAction = "payment_edited"
	AuditPaymentVoided       AuditAction = "payment_voided"
	AuditPaymentReinstated   AuditAction = "payment_reinstated"
	AuditDiscountApplied     AuditAction = "discount_applied"
	AuditBalanceWaived       AuditAction = "balance_waived"
	AuditPlanChanged         AuditAction = "plan_changed"
	AuditRenunciation        AuditAction = "renunciation_processed"
	AuditRefundClosed        AuditAction = "refund_closed"
	AuditRenunciationReverse AuditAction = "renunciation_reversed"
)

// AuditEntry is a human-readable activity line attached to a client.
type AuditEntry struct {
	ID         uuid.UUID
	ClientID   uuid.UUID
	HouseID    *uuid.UUID
	StepKey    string
	Action     AuditAction
	Message    string
	ActorName  string
	OccurredAt time.Time
}

// NewAuditEntry builds an entry with a fresh ID.
func NewAuditEntry(clientID uuid.UUID, houseID *uuid.UUID, stepKey string, action AuditAction, message, actor string, at time.Time) AuditEntry {
	return AuditEntry{
		ID:         uuid.New(),
		ClientID:   clientID,
		HouseID:    houseID,
		StepKey:    stepKey,
		Action:     action,
		Message:    message,
		ActorName:  actor,
		OccurredAt: at,
	}
}

// AuditTrail is the append-only activity sink. Appends are best-effort:
// implementations used inside a ledger transaction must not let a failed
// append abort the business change.
type AuditTrail interface {
	Append(ctx context.Context, entry AuditEntry) error
}
