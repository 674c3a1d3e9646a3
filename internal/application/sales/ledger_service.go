package sales

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/casaviva/backoffice/internal/domain/process"
	"github.com/casaviva/backoffice/internal/domain/sales"
	"github.com/casaviva/backoffice/internal/domain/shared"
	"github.com/casaviva/backoffice/internal/infrastructure/logger"
	"github.com/casaviva/backoffice/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// paymentNamespace derives payment IDs from idempotency keys.
var paymentNamespace = uuid.MustParse("5c1d3e0a-7f0b-4c47-9d1e-2b6a8f4e9c31")

// LedgerService moves money between houses, clients and payments. Every
// operation is one transaction over the records it touches and keeps
// totalPaid + balanceDue == finalPrice for the house.
type LedgerService struct {
	*engine
}

// NewLedgerService creates a new LedgerService
func NewLedgerService(deps Dependencies) *LedgerService {
	return &LedgerService{engine: newEngine(deps)}
}

// PaymentIDForKey returns the payment ID an idempotency key maps to.
func PaymentIDForKey(key string) uuid.UUID {
	return uuid.NewSHA1(paymentNamespace, []byte(key))
}

// RegisterPayment records a payment for the client holding the house. A
// payment from a disbursement source needs its request step completed and
// completes the matching disbursement step with the receipt as evidence.
func (s *LedgerService) RegisterPayment(ctx context.Context, cmd RegisterPaymentCommand) (*PaymentResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "ledger", "register_payment")
	defer span.End()

	telemetry.SetAttributes(span,
		telemetry.SpanAttrHouseID, cmd.HouseID.String(),
		telemetry.SpanAttrClientID, cmd.ClientID.String(),
		telemetry.SpanAttrSource, string(cmd.Source),
		telemetry.SpanAttrAmount, cmd.Amount.String(),
	)

	if err := s.validateNewPayment(cmd); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	flow, isFlow := s.catalog.Flow(cmd.Source)
	paymentDate := process.Day(cmd.PaymentDate)

	receiptURL, err := s.resolveReceipt(ctx, cmd.ReceiptKey, isFlow)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	paymentID := uuid.Nil
	if cmd.IdempotencyKey != "" {
		paymentID = PaymentIDForKey(cmd.IdempotencyKey)
		if err := s.claimIdempotencyKey(ctx, cmd.IdempotencyKey); err != nil {
			telemetry.RecordError(span, err)
			return nil, err
		}
	}

	var result *PaymentResult
	err = s.runner.run(ctx, "register_payment", func(repos TransactionalRepositories) error {
		now := s.now()
		if paymentID != uuid.Nil {
			if _, err := repos.PaymentRepo().FindByID(ctx, paymentID); err == nil {
				return shared.ErrDuplicateRequest.WithMessage("This payment was already registered")
			} else if !isNotFound(err) {
				return err
			}
		}

		house, client, err := loadAssignment(ctx, repos, cmd.HouseID, cmd.ClientID)
		if err != nil {
			return addressed(err)
		}
		if !client.Plan.Applies(cmd.Source) {
			return sales.ErrSourceNotInPlan
		}
		if s.saleClosed(client) {
			return sales.ErrProcessAlreadyClosed
		}
		if isFlow {
			if err := s.checkDisbursementAllowed(ctx, repos, client, house, flow, paymentDate, uuid.Nil); err != nil {
				return err
			}
		}

		if err := house.RecordPayment(cmd.Amount, now); err != nil {
			return err
		}
		payment, err := sales.NewPayment(paymentID, house.ID, client.ID, cmd.Source, cmd.Amount, paymentDate, cmd.Actor)
		if err != nil {
			return err
		}
		payment.ReceiptURL = receiptURL
		payment.Note = strings.TrimSpace(cmd.Note)
		if err := repos.PaymentRepo().Create(ctx, payment); err != nil {
			return err
		}

		res := &PaymentResult{Payment: payment}
		if isFlow {
			client.CompleteAutomaticStep(flow.DisbursementStep, paymentDate, flow.EvidenceID, receiptURL, now)
			if err := repos.ClientRepo().SaveWithLock(ctx, client); err != nil {
				return err
			}
			res.setStep(flow.DisbursementStep, client.Steps)
		}
		if err := saveHouse(ctx, repos, house); err != nil {
			return err
		}
		res.House = house

		s.appendAudit(ctx, repos, sales.NewAuditEntry(client.ID, &house.ID, "", sales.AuditPaymentRegistered,
			s.messages.paymentRegistered(cmd.Source, cmd.Amount), cmd.Actor, now))
		if isFlow {
			s.appendAudit(ctx, repos, sales.NewAuditEntry(client.ID, &house.ID, string(flow.DisbursementStep), sales.AuditStepCompleted,
				s.messages.stepCompletedByPayment(s.stepLabel(flow.DisbursementStep), cmd.Amount), cmd.Actor, now))
		}
		result = res
		return nil
	})
	if err != nil {
		if cmd.IdempotencyKey != "" && !errors.Is(err, shared.ErrDuplicateRequest) {
			s.releaseIdempotencyKey(ctx, cmd.IdempotencyKey)
		}
		telemetry.RecordError(span, err)
		return nil, err
	}

	telemetry.SetAttribute(span, telemetry.SpanAttrPaymentID, result.Payment.ID.String())
	return result, nil
}

func (s *LedgerService) validateNewPayment(cmd RegisterPaymentCommand) error {
	details := make(map[string]string)
	if strings.TrimSpace(cmd.Actor) == "" {
		details["actor"] = "required"
	}
	if !cmd.Amount.IsPositive() {
		details["amount"] = "must be greater than zero"
	}
	if !cmd.Source.IsPlanSource() {
		details["source"] = "must be a funding source of the plan"
	}
	switch {
	case cmd.PaymentDate.IsZero():
		details["payment_date"] = "required"
	case process.Day(cmd.PaymentDate).After(s.today()):
		details["payment_date"] = "cannot be in the future"
	}
	if len(details) > 0 {
		return shared.NewValidationError("Invalid payment", details)
	}
	return nil
}

// checkDisbursementAllowed enforces the request-before-disbursement rule and
// the single active disbursement per client and source.
func (s *LedgerService) checkDisbursementAllowed(
	ctx context.Context,
	repos TransactionalRepositories,
	client *sales.Client,
	house *sales.House,
	flow process.SourceFlow,
	paymentDate time.Time,
	except uuid.UUID,
) error {
	ev := s.evaluate(client, house, nil)
	req, ok := ev.Step(flow.RequestStep)
	if !ok || !req.Valid() {
		return sales.ErrRequestPending.WithMessage(fmt.Sprintf(
			"Step %q must be completed before registering a %s payment", s.stepLabel(flow.RequestStep), flow.Source))
	}
	if err := ensureNoActivePayment(ctx, repos, client.ID, flow.Source, except); err != nil {
		return err
	}
	if requested := process.Day(*req.State.CompletionDate); paymentDate.Before(requested) {
		return shared.NewValidationError("Payment date precedes the disbursement request", map[string]string{
			"payment_date": "cannot be before " + requested.Format(time.DateOnly),
		})
	}
	return nil
}

func (s *LedgerService) resolveReceipt(ctx context.Context, key string, required bool) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		if required {
			return "", shared.NewValidationError("A disbursement receipt is required", map[string]string{
				"receipt_key": "required for disbursement payments",
			})
		}
		return "", nil
	}
	if s.evidence == nil {
		return key, nil
	}
	url, err := s.evidence.ResolveEvidenceURL(ctx, key)
	if err != nil {
		return "", fmt.Errorf("failed to resolve receipt %q: %w", key, err)
	}
	return url, nil
}

func (s *LedgerService) claimIdempotencyKey(ctx context.Context, key string) error {
	if s.idempotency == nil {
		return nil
	}
	fresh, err := s.idempotency.Claim(ctx, idempotencyKey(key), s.idempotencyTTL)
	if err != nil {
		return fmt.Errorf("failed to check idempotency key: %w", err)
	}
	if !fresh {
		return shared.ErrDuplicateRequest.WithMessage("This payment request was already processed")
	}
	return nil
}

func (s *LedgerService) releaseIdempotencyKey(ctx context.Context, key string) {
	if s.idempotency == nil {
		return
	}
	if err := s.idempotency.Release(ctx, idempotencyKey(key)); err != nil {
		logger.FromContext(ctx, s.logger).Warn("Failed to release idempotency key", zap.String("key", key), zap.Error(err))
	}
}

func idempotencyKey(key string) string {
	return "payment:" + key
}

// EditPayment changes the amount of an active payment. PreviousAmount, when
// set, must match the stored amount. Step completion is not touched.
func (s *LedgerService) EditPayment(ctx context.Context, cmd EditPaymentCommand) (*PaymentResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "ledger", "edit_payment")
	defer span.End()

	telemetry.SetAttributes(span,
		telemetry.SpanAttrPaymentID, cmd.PaymentID.String(),
		telemetry.SpanAttrAmount, cmd.NewAmount.String(),
	)

	if err := requireActor(cmd.Actor); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if !cmd.NewAmount.IsPositive() {
		err := shared.NewValidationError("Invalid payment", map[string]string{"amount": "must be greater than zero"})
		telemetry.RecordError(span, err)
		return nil, err
	}

	var result *PaymentResult
	err := s.runner.run(ctx, "edit_payment", func(repos TransactionalRepositories) error {
		now := s.now()
		payment, err := repos.PaymentRepo().FindByID(ctx, cmd.PaymentID)
		if err != nil {
			return addressed(err)
		}
		if !payment.IsActive() {
			return sales.ErrPaymentNotActive
		}
		if payment.IsWaiver() {
			return sales.ErrWaiverNotEditable
		}
		previous := payment.Amount
		if !cmd.PreviousAmount.IsZero() && !cmd.PreviousAmount.Equal(previous) {
			return sales.ErrPaymentAmountChanged.WithMessage(fmt.Sprintf(
				"The payment amount is now %s", previous.StringFixed(2)))
		}
		house, client, err := loadAssignment(ctx, repos, payment.HouseID, payment.ClientID)
		if err != nil {
			return err
		}
		if s.saleClosed(client) {
			return sales.ErrProcessAlreadyClosed
		}

		if err := house.AdjustPayment(previous, cmd.NewAmount, now); err != nil {
			return err
		}
		if err := payment.ChangeAmount(cmd.NewAmount, now); err != nil {
			return err
		}
		if err := repos.PaymentRepo().SaveWithLock(ctx, payment); err != nil {
			return err
		}
		if err := saveHouse(ctx, repos, house); err != nil {
			return err
		}

		s.appendAudit(ctx, repos, sales.NewAuditEntry(client.ID, &house.ID, "", sales.AuditPaymentEdited,
			s.messages.paymentEdited(payment.Source, previous, cmd.NewAmount), cmd.Actor, now))
		result = &PaymentResult{House: house, Payment: payment}
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	return result, nil
}

// VoidPayment reverses an active payment. If it funded a disbursement step,
// that step is reopened and its prior state kept on the payment so that
// ReversePaymentVoid can put it back.
func (s *LedgerService) VoidPayment(ctx context.Context, cmd VoidPaymentCommand) (*PaymentResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "ledger", "void_payment")
	defer span.End()

	telemetry.SetAttribute(span, telemetry.SpanAttrPaymentID, cmd.PaymentID.String())

	details := make(map[string]string)
	if strings.TrimSpace(cmd.Actor) == "" {
		details["actor"] = "required"
	}
	if strings.TrimSpace(cmd.Reason) == "" {
		details["reason"] = "required"
	}
	if len(details) > 0 {
		err := shared.NewValidationError("Invalid void request", details)
		telemetry.RecordError(span, err)
		return nil, err
	}

	var result *PaymentResult
	err := s.runner.run(ctx, "void_payment", func(repos TransactionalRepositories) error {
		now := s.now()
		payment, err := repos.PaymentRepo().FindByID(ctx, cmd.PaymentID)
		if err != nil {
			return addressed(err)
		}
		if !payment.IsActive() {
			return sales.ErrPaymentNotActive
		}
		house, client, err := loadAssignment(ctx, repos, payment.HouseID, payment.ClientID)
		if err != nil {
			return err
		}
		if s.saleClosed(client) {
			return sales.ErrProcessAlreadyClosed
		}

		if err := house.ReversePayment(payment.Amount, now); err != nil {
			return err
		}
		res := &PaymentResult{}
		flow, isFlow := s.catalog.Flow(payment.Source)
		var before *process.StepState
		if isFlow {
			prev := client.ReopenStep(flow.DisbursementStep, flow.EvidenceID, cmd.Reason, now)
			before = &prev
			if err := repos.ClientRepo().SaveWithLock(ctx, client); err != nil {
				return err
			}
			res.setStep(flow.DisbursementStep, client.Steps)
		}
		if err := payment.Void(cmd.Reason, before, now); err != nil {
			return err
		}
		if err := repos.PaymentRepo().SaveWithLock(ctx, payment); err != nil {
			return err
		}
		if err := saveHouse(ctx, repos, house); err != nil {
			return err
		}

		s.appendAudit(ctx, repos, sales.NewAuditEntry(client.ID, &house.ID, "", sales.AuditPaymentVoided,
			s.messages.paymentVoided(payment.Source, payment.Amount, payment.VoidReason), cmd.Actor, now))
		if isFlow {
			s.appendAudit(ctx, repos, sales.NewAuditEntry(client.ID, &house.ID, string(flow.DisbursementStep), sales.AuditStepReopened,
				s.messages.stepReopened(s.stepLabel(flow.DisbursementStep), payment.VoidReason), cmd.Actor, now))
		}
		res.House = house
		res.Payment = payment
		result = res
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	return result, nil
}

// ReversePaymentVoid reactivates a voided payment and restores the step
// state it funded.
func (s *LedgerService) ReversePaymentVoid(ctx context.Context, cmd ReversePaymentVoidCommand) (*PaymentResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "ledger", "reverse_payment_void")
	defer span.End()

	telemetry.SetAttribute(span, telemetry.SpanAttrPaymentID, cmd.PaymentID.String())

	if err := requireActor(cmd.Actor); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	var result *PaymentResult
	err := s.runner.run(ctx, "reverse_payment_void", func(repos TransactionalRepositories) error {
		now := s.now()
		payment, err := repos.PaymentRepo().FindByID(ctx, cmd.PaymentID)
		if err != nil {
			return addressed(err)
		}
		if payment.Status != sales.PaymentVoided {
			return sales.ErrPaymentNotVoided
		}
		house, client, err := loadAssignment(ctx, repos, payment.HouseID, payment.ClientID)
		if err != nil {
			return err
		}
		if s.saleClosed(client) {
			return sales.ErrProcessAlreadyClosed
		}

		if err := house.RecordPayment(payment.Amount, now); err != nil {
			return err
		}
		flow, isFlow := s.catalog.Flow(payment.Source)
		if isFlow {
			if err := ensureNoActivePayment(ctx, repos, client.ID, payment.Source, payment.ID); err != nil {
				return err
			}
		}
		snapshot, err := payment.Reinstate(now)
		if err != nil {
			return err
		}
		if err := repos.PaymentRepo().SaveWithLock(ctx, payment); err != nil {
			return err
		}

		res := &PaymentResult{}
		if isFlow {
			if snapshot != nil {
				client.RestoreStep(flow.DisbursementStep, *snapshot, now)
			} else {
				client.CompleteAutomaticStep(flow.DisbursementStep, payment.PaymentDate, flow.EvidenceID, payment.ReceiptURL, now)
			}
			if err := repos.ClientRepo().SaveWithLock(ctx, client); err != nil {
				return err
			}
			res.setStep(flow.DisbursementStep, client.Steps)
		}
		if err := saveHouse(ctx, repos, house); err != nil {
			return err
		}

		s.appendAudit(ctx, repos, sales.NewAuditEntry(client.ID, &house.ID, "", sales.AuditPaymentReinstated,
			s.messages.paymentReinstated(payment.Source, payment.Amount), cmd.Actor, now))
		if isFlow {
			s.appendAudit(ctx, repos, sales.NewAuditEntry(client.ID, &house.ID, string(flow.DisbursementStep), sales.AuditStepRestored,
				s.messages.stepRestored(s.stepLabel(flow.DisbursementStep)), cmd.Actor, now))
		}
		res.House = house
		res.Payment = payment
		result = res
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	return result, nil
}

// ApplyDiscount sets the house discount. The new discount replaces the
// previous one and totalPaid is preserved.
func (s *LedgerService) ApplyDiscount(ctx context.Context, cmd ApplyDiscountCommand) (*sales.House, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "ledger", "apply_discount")
	defer span.End()

	telemetry.SetAttributes(span,
		telemetry.SpanAttrHouseID, cmd.HouseID.String(),
		telemetry.SpanAttrAmount, cmd.Amount.String(),
	)

	if err := requireActor(cmd.Actor); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	var result *sales.House
	err := s.runner.run(ctx, "apply_discount", func(repos TransactionalRepositories) error {
		now := s.now()
		house, err := repos.HouseRepo().FindByID(ctx, cmd.HouseID)
		if err != nil {
			return addressed(err)
		}
		var client *sales.Client
		if house.IsAssigned() {
			if client, err = repos.ClientRepo().FindByID(ctx, *house.AssignedClientID); err != nil {
				return err
			}
			if s.saleClosed(client) {
				return sales.ErrProcessAlreadyClosed
			}
		}

		if err := house.ApplyDiscount(cmd.Amount, cmd.Reason, now); err != nil {
			return err
		}
		if err := saveHouse(ctx, repos, house); err != nil {
			return err
		}
		if client != nil {
			s.appendAudit(ctx, repos, sales.NewAuditEntry(client.ID, &house.ID, "", sales.AuditDiscountApplied,
				s.messages.discountApplied(house.DiscountAmount, house.DiscountReason), cmd.Actor, now))
		}
		result = house
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	return result, nil
}

// WaiveRemainingBalance closes out the balance due with a waiver payment
// so that the house balance reaches exactly zero.
func (s *LedgerService) WaiveRemainingBalance(ctx context.Context, cmd WaiveBalanceCommand) (*PaymentResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "ledger", "waive_remaining_balance")
	defer span.End()

	telemetry.SetAttributes(span,
		telemetry.SpanAttrHouseID, cmd.HouseID.String(),
		telemetry.SpanAttrClientID, cmd.ClientID.String(),
	)

	details := make(map[string]string)
	if strings.TrimSpace(cmd.Actor) == "" {
		details["actor"] = "required"
	}
	if strings.TrimSpace(cmd.Reason) == "" {
		details["reason"] = "required"
	}
	if len(details) > 0 {
		err := shared.NewValidationError("Invalid waiver", details)
		telemetry.RecordError(span, err)
		return nil, err
	}

	var result *PaymentResult
	err := s.runner.run(ctx, "waive_remaining_balance", func(repos TransactionalRepositories) error {
		now := s.now()
		house, client, err := loadAssignment(ctx, repos, cmd.HouseID, cmd.ClientID)
		if err != nil {
			return addressed(err)
		}
		if s.saleClosed(client) {
			return sales.ErrProcessAlreadyClosed
		}
		due := house.BalanceDue
		if !due.IsPositive() {
			return sales.ErrNothingToWaive
		}

		if err := house.RecordPayment(due, now); err != nil {
			return err
		}
		waiver, err := sales.NewPayment(uuid.Nil, house.ID, client.ID, process.SourceDiscountWaiver, due, s.today(), cmd.Actor)
		if err != nil {
			return err
		}
		waiver.Note = strings.TrimSpace(cmd.Reason)
		if err := repos.PaymentRepo().Create(ctx, waiver); err != nil {
			return err
		}
		if err := saveHouse(ctx, repos, house); err != nil {
			return err
		}

		s.appendAudit(ctx, repos, sales.NewAuditEntry(client.ID, &house.ID, "", sales.AuditBalanceWaived,
			s.messages.balanceWaived(due, waiver.Note), cmd.Actor, now))
		result = &PaymentResult{House: house, Payment: waiver}
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	return result, nil
}

// ProcessRenunciation withdraws the client from the house. The house is
// released at full price; the refund is the money actually received minus
// the penalty. With nothing to refund the client is withdrawn and the
// payments archived at once.
func (s *LedgerService) ProcessRenunciation(ctx context.Context, cmd ProcessRenunciationCommand) (*RenunciationResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "ledger", "process_renunciation")
	defer span.End()

	telemetry.SetAttributes(span,
		telemetry.SpanAttrHouseID, cmd.HouseID.String(),
		telemetry.SpanAttrClientID, cmd.ClientID.String(),
		telemetry.SpanAttrAmount, cmd.Penalty.String(),
	)

	if err := requireActor(cmd.Actor); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	var result *RenunciationResult
	err := s.runner.run(ctx, "process_renunciation", func(repos TransactionalRepositories) error {
		now := s.now()
		house, client, err := loadAssignment(ctx, repos, cmd.HouseID, cmd.ClientID)
		if err != nil {
			return addressed(err)
		}
		if s.saleClosed(client) {
			return sales.ErrProcessAlreadyClosed
		}
		payments, err := repos.PaymentRepo().ListByHouseAndClient(ctx, house.ID, client.ID)
		if err != nil {
			return err
		}
		ptrs := make([]*sales.Payment, len(payments))
		for i := range payments {
			ptrs[i] = &payments[i]
		}

		record, err := sales.NewRenunciation(sales.RenunciationInput{
			Client:   client,
			House:    house,
			Payments: ptrs,
			Motive:   cmd.Motive,
			Penalty:  cmd.Penalty,
			Actor:    cmd.Actor,
		}, now)
		if err != nil {
			return err
		}

		house.Release(now)
		client.Renounce(record.IsPending(), now)
		if !record.IsPending() {
			if err := archivePayments(ctx, repos, ptrs, now); err != nil {
				return err
			}
		}
		if err := repos.RenunciationRepo().Create(ctx, record); err != nil {
			return err
		}
		if err := repos.ClientRepo().SaveWithLock(ctx, client); err != nil {
			return err
		}
		if err := saveHouse(ctx, repos, house); err != nil {
			return err
		}

		s.appendAudit(ctx, repos, sales.NewAuditEntry(client.ID, &house.ID, "", sales.AuditRenunciation,
			s.messages.renunciationProcessed(record.Motive, record.AmountRefundable), cmd.Actor, now))
		result = &RenunciationResult{Renunciation: record, House: house, Client: client}
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	return result, nil
}

// CloseRefund records the payout of a pending refund, withdraws the client
// and archives its payments.
func (s *LedgerService) CloseRefund(ctx context.Context, cmd CloseRefundCommand) (*RenunciationResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "ledger", "close_refund")
	defer span.End()

	telemetry.SetAttribute(span, telemetry.SpanAttrRenunciationID, cmd.RenunciationID.String())

	if err := requireActor(cmd.Actor); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	var result *RenunciationResult
	err := s.runner.run(ctx, "close_refund", func(repos TransactionalRepositories) error {
		now := s.now()
		record, err := repos.RenunciationRepo().FindByID(ctx, cmd.RenunciationID)
		if err != nil {
			return addressed(err)
		}
		if !record.IsPending() {
			return sales.ErrRefundAlreadyClosed
		}
		client, err := repos.ClientRepo().FindByID(ctx, record.ClientID)
		if err != nil {
			return err
		}
		payments, err := repos.PaymentRepo().ListByHouseAndClient(ctx, record.HouseID, record.ClientID)
		if err != nil {
			return err
		}

		if err := record.Close(sales.Payout{
			Method:    strings.TrimSpace(cmd.Method),
			Reference: strings.TrimSpace(cmd.Reference),
			Amount:    cmd.Amount,
			PaidAt:    cmd.PaidAt,
		}, now); err != nil {
			return err
		}
		client.Withdraw(now)
		ptrs := make([]*sales.Payment, len(payments))
		for i := range payments {
			ptrs[i] = &payments[i]
		}
		if err := archivePayments(ctx, repos, ptrs, now); err != nil {
			return err
		}
		if err := repos.RenunciationRepo().SaveWithLock(ctx, record); err != nil {
			return err
		}
		if err := repos.ClientRepo().SaveWithLock(ctx, client); err != nil {
			return err
		}

		s.appendAudit(ctx, repos, sales.NewAuditEntry(client.ID, &record.HouseID, "", sales.AuditRefundClosed,
			s.messages.refundClosed(record.Payout.Amount, record.Payout.Method), cmd.Actor, now))
		result = &RenunciationResult{Renunciation: record, Client: client}
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	return result, nil
}

// ReverseRenunciation undoes a renunciation whose refund has not been paid
// out: the house balance, the client's plan and process, and the payment
// statuses are restored and the record is deleted.
func (s *LedgerService) ReverseRenunciation(ctx context.Context, cmd ReverseRenunciationCommand) (*RenunciationResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "ledger", "reverse_renunciation")
	defer span.End()

	telemetry.SetAttribute(span, telemetry.SpanAttrRenunciationID, cmd.RenunciationID.String())

	if err := requireActor(cmd.Actor); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	var result *RenunciationResult
	err := s.runner.run(ctx, "reverse_renunciation", func(repos TransactionalRepositories) error {
		now := s.now()
		record, err := repos.RenunciationRepo().FindByID(ctx, cmd.RenunciationID)
		if err != nil {
			return addressed(err)
		}
		if !record.Reversible() {
			return sales.ErrRenunciationNotReversible
		}
		house, err := repos.HouseRepo().FindByID(ctx, record.HouseID)
		if err != nil {
			return err
		}
		client, err := repos.ClientRepo().FindByID(ctx, record.ClientID)
		if err != nil {
			return err
		}
		if client.IsActive() {
			return shared.ErrInvalidState.WithMessage("The client is already active")
		}

		if err := house.Restore(client.ID, record.HouseSnapshot, now); err != nil {
			return err
		}
		client.Reinstate(house.ID, record.PlanSnapshot, record.StepsSnapshot, now)
		for _, snap := range record.PaymentsSnapshot {
			payment, err := repos.PaymentRepo().FindByID(ctx, snap.PaymentID)
			if err != nil {
				return err
			}
			if payment.Status == snap.Status {
				continue
			}
			payment.SetStatus(snap.Status, now)
			if err := repos.PaymentRepo().SaveWithLock(ctx, payment); err != nil {
				return err
			}
		}
		if err := repos.RenunciationRepo().Delete(ctx, record); err != nil {
			return err
		}
		if err := repos.ClientRepo().SaveWithLock(ctx, client); err != nil {
			return err
		}
		if err := saveHouse(ctx, repos, house); err != nil {
			return err
		}

		s.appendAudit(ctx, repos, sales.NewAuditEntry(client.ID, &house.ID, "", sales.AuditRenunciationReverse,
			s.messages.renunciationReversed(), cmd.Actor, now))
		result = &RenunciationResult{Renunciation: record, House: house, Client: client}
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	return result, nil
}

// VerifyHouse recomputes what the house should show as paid from the
// active payments of its client and reports any drift. It writes nothing.
func (s *LedgerService) VerifyHouse(ctx context.Context, houseID uuid.UUID) (*HouseCheck, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "ledger", "verify_house")
	defer span.End()

	telemetry.SetAttribute(span, telemetry.SpanAttrHouseID, houseID.String())

	var result *HouseCheck
	err := s.read(ctx, "verify_house", func(repos TransactionalRepositories) error {
		house, err := repos.HouseRepo().FindByID(ctx, houseID)
		if err != nil {
			return err
		}
		computed := decimal.Zero
		if house.IsAssigned() {
			payments, err := repos.PaymentRepo().ListByHouseAndClient(ctx, house.ID, *house.AssignedClientID)
			if err != nil {
				return err
			}
			for _, p := range payments {
				if p.IsActive() {
					computed = computed.Add(p.Amount)
				}
			}
		}
		check := &HouseCheck{
			HouseID:       house.ID,
			RecordedPaid:  house.TotalPaid,
			ComputedPaid:  computed,
			Drift:         house.TotalPaid.Sub(computed),
			LedgerBalance: house.CheckLedger() == nil,
		}
		check.Consistent = check.Drift.IsZero() && check.LedgerBalance
		result = check
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if !result.Consistent {
		logger.FromContext(ctx, s.logger).Warn("House ledger drift detected",
			zap.String("house_id", houseID.String()),
			zap.String("recorded", result.RecordedPaid.String()),
			zap.String("computed", result.ComputedPaid.String()),
		)
	}
	return result, nil
}

func archivePayments(ctx context.Context, repos TransactionalRepositories, payments []*sales.Payment, now time.Time) error {
	for _, p := range payments {
		if p.Status == sales.PaymentArchived {
			continue
		}
		p.Archive(now)
		if err := repos.PaymentRepo().SaveWithLock(ctx, p); err != nil {
			return err
		}
	}
	return nil
}
