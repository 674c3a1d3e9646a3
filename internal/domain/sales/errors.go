package sales

import "github.com/casaviva/backoffice/internal/domain/shared"

// Ledger precondition failures. All are recoverable: the command is
// rejected and nothing is written.
var (
	ErrRequestPending = shared.NewKindError(shared.KindPrecondition, "REQUEST_PENDING",
		"The disbursement request step must be completed before registering this payment")
	ErrProcessAlreadyClosed = shared.NewKindError(shared.KindPrecondition, "PROCESS_ALREADY_CLOSED",
		"The final invoice is already completed; the sale cannot be modified")
	ErrOverpayment = shared.NewKindError(shared.KindPrecondition, "OVERPAYMENT",
		"The amount exceeds the house balance due")
	ErrDuplicateActiveDisbursement = shared.NewKindError(shared.KindPrecondition, "DUPLICATE_ACTIVE_DISBURSEMENT",
		"An active payment already exists for this client and source")
	ErrHouseAlreadyAssigned = shared.NewKindError(shared.KindPrecondition, "HOUSE_ALREADY_ASSIGNED",
		"The house is assigned to another client")
	ErrClientNotActive = shared.NewKindError(shared.KindPrecondition, "CLIENT_NOT_ACTIVE",
		"The client is not an active buyer")
	ErrClientNotAssigned = shared.NewKindError(shared.KindPrecondition, "CLIENT_NOT_ASSIGNED",
		"The client is not assigned to this house")
	ErrSourceNotInPlan = shared.NewKindError(shared.KindPrecondition, "SOURCE_NOT_IN_PLAN",
		"The payment source is not part of the client's financial plan")
	ErrSourceHasActivePayments = shared.NewKindError(shared.KindPrecondition, "SOURCE_HAS_ACTIVE_PAYMENTS",
		"A funding source with active payments cannot be removed from the plan")
	ErrPaymentNotActive = shared.NewKindError(shared.KindPrecondition, "PAYMENT_NOT_ACTIVE",
		"Only active payments can be changed")
	ErrPaymentNotVoided = shared.NewKindError(shared.KindPrecondition, "PAYMENT_NOT_VOIDED",
		"Only voided payments can be restored")
	ErrRefundAlreadyClosed = shared.NewKindError(shared.KindPrecondition, "REFUND_ALREADY_CLOSED",
		"The refund is already closed")
	ErrNothingToWaive = shared.NewKindError(shared.KindPrecondition, "NOTHING_TO_WAIVE",
		"The house has no balance due")
	ErrRenunciationNotReversible = shared.NewKindError(shared.KindPrecondition, "RENUNCIATION_NOT_REVERSIBLE",
		"The refund has already been paid out")
	ErrWaiverNotEditable = shared.NewKindError(shared.KindPrecondition, "WAIVER_NOT_EDITABLE",
		"A balance waiver cannot be edited; void it instead")

	// ErrPaymentAmountChanged means the caller edited from an amount that is
	// no longer the stored one. It is not retried.
	ErrPaymentAmountChanged = shared.NewKindError(shared.KindConflict, "PAYMENT_AMOUNT_CHANGED",
		"The payment amount was changed by someone else")
	ErrLedgerInvariant = shared.NewKindError(shared.KindConflict, "LEDGER_INVARIANT_VIOLATED",
		"House balance is inconsistent")
)
