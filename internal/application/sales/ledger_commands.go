package sales

import (
	"time"

	"github.com/casaviva/backoffice/internal/domain/process"
	"github.com/casaviva/backoffice/internal/domain/sales"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RegisterPaymentCommand registers a payment for the client holding a house.
type RegisterPaymentCommand struct {
	HouseID     uuid.UUID
	ClientID    uuid.UUID
	Source      process.FundingSource
	Amount      decimal.Decimal
	PaymentDate time.Time
	// ReceiptKey is the blob key of the uploaded receipt. Required for
	// disbursement sources.
	ReceiptKey string
	Note       string
	// IdempotencyKey, when set, makes a replayed request fail with
	// shared.ErrDuplicateRequest instead of paying twice.
	IdempotencyKey string
	Actor          string
}

// EditPaymentCommand changes the amount of an active payment.
type EditPaymentCommand struct {
	PaymentID uuid.UUID
	NewAmount decimal.Decimal
	// PreviousAmount is the amount the caller saw. Zero skips the check.
	PreviousAmount decimal.Decimal
	Actor          string
}

// VoidPaymentCommand voids an active payment.
type VoidPaymentCommand struct {
	PaymentID uuid.UUID
	Reason    string
	Actor     string
}

// ReversePaymentVoidCommand reactivates a voided payment.
type ReversePaymentVoidCommand struct {
	PaymentID uuid.UUID
	Actor     string
}

// ApplyDiscountCommand sets a house discount.
type ApplyDiscountCommand struct {
	HouseID uuid.UUID
	Amount  decimal.Decimal
	Reason  string
	Actor   string
}

// WaiveBalanceCommand forgives the remaining balance of a house.
type WaiveBalanceCommand struct {
	HouseID  uuid.UUID
	ClientID uuid.UUID
	Reason   string
	Actor    string
}

// ProcessRenunciationCommand withdraws a client from its house.
type ProcessRenunciationCommand struct {
	ClientID uuid.UUID
	HouseID  uuid.UUID
	Motive   string
	Penalty  decimal.Decimal
	Actor    string
}

// CloseRefundCommand records the payout of a pending refund.
type CloseRefundCommand struct {
	RenunciationID uuid.UUID
	Method         string
	Reference      string
	// Amount defaults to the refundable amount when zero.
	Amount decimal.Decimal
	PaidAt time.Time
	Actor  string
}

// ReverseRenunciationCommand undoes a renunciation.
type ReverseRenunciationCommand struct {
	RenunciationID uuid.UUID
	Actor          string
}

// PaymentResult is the state left behind by a payment operation.
type PaymentResult struct {
	House   *sales.House
	Payment *sales.Payment
	// StepKey and Step are set when the payment funds a disbursement step.
	StepKey process.StepKey
	Step    *process.StepState
}

func (r *PaymentResult) setStep(key process.StepKey, steps process.StepStates) {
	st := steps.Get(key).Clone()
	r.StepKey = key
	r.Step = &st
}

// RenunciationResult is the state left behind by a renunciation operation.
// House is nil for CloseRefund.
type RenunciationResult struct {
	Renunciation *sales.Renunciation
	House        *sales.House
	Client       *sales.Client
}

// HouseCheck reports whether a house's stored totals agree with its
// payments.
type HouseCheck struct {
	HouseID       uuid.UUID       `json:"house_id"`
	RecordedPaid  decimal.Decimal `json:"recorded_paid"`
	ComputedPaid  decimal.Decimal `json:"computed_paid"`
	Drift         decimal.Decimal `json:"drift"`
	LedgerBalance bool            `json:"ledger_balance"`
	Consistent    bool            `json:"consistent"`
}
