package process_test

import (
	"testing"
	"time"

	"github.com/casaviva/backoffice/internal/domain/process"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	promiseSent      process.StepKey = "promise_sent"
	promiseSigned    process.StepKey = "promise_signed"
	creditApproval   process.StepKey = "credit_approval"
	appraisal        process.StepKey = "appraisal"
	deedSigned       process.StepKey = "deed_signed"
	registrationSlip process.StepKey = "registration_slip"
	bankRequest      process.StepKey = "bank_credit_request"
	bankDisbursement process.StepKey = "bank_credit_disbursement"
	subsidyRequest   process.StepKey = "housing_subsidy_request"
	houseDelivery    process.StepKey = "house_delivery"
	finalInvoice     process.StepKey = "final_invoice"
)

func TestEvaluate_EmptyProcess(t *testing.T) {
	ev := evaluate(creditPlan(), process.InitialStates(catalog, creditPlan()), millions(100))

	assert.Equal(t, 10, ev.TotalApplicable)
	assert.Equal(t, 0, ev.CompletedCount)
	assert.False(t, ev.IsProcessComplete)
	assert.False(t, ev.HasAnyReopenedStep)

	first := view(t, ev, promiseSent)
	assert.False(t, first.Locked)
	assert.True(t, first.IsNext)
	assert.Equal(t, processStart, first.MinDate)
	assert.Equal(t, today, first.MaxDate)

	for _, v := range ev.Steps[1:] {
		assert.True(t, v.Locked, "step %s should be locked", v.Key())
		assert.False(t, v.IsNext)
	}
}

func TestEvaluate_ApplicabilityFollowsPlan(t *testing.T) {
	tests := []struct {
		name    string
		plan    process.FinancialPlan
		present []process.StepKey
		absent  []process.StepKey
		total   int
	}{
		{
			name:    "cash purchase",
			plan:    cashPlan(),
			present: []process.StepKey{promiseSent, deedSigned, registrationSlip, houseDelivery, finalInvoice},
			absent:  []process.StepKey{creditApproval, bankRequest, bankDisbursement, subsidyRequest},
			total:   6,
		},
		{
			name:    "bank credit",
			plan:    creditPlan(),
			present: []process.StepKey{creditApproval, appraisal, bankRequest, bankDisbursement},
			absent:  []process.StepKey{subsidyRequest, "compensation_fund_approval"},
			total:   10,
		},
		{
			name:    "every source",
			plan:    subsidyPlan(),
			present: []process.StepKey{subsidyRequest, "housing_subsidy_disbursement", "compensation_fund_approval", "compensation_fund_disbursement"},
			total:   15,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := evaluate(tt.plan, nil, millions(100))
			assert.Equal(t, tt.total, ev.TotalApplicable)
			for _, k := range tt.present {
				_, ok := ev.Step(k)
				assert.True(t, ok, "expected %s", k)
			}
			for _, k := range tt.absent {
				_, ok := ev.Step(k)
				assert.False(t, ok, "did not expect %s", k)
			}
		})
	}
}

func TestEvaluate_InapplicableStepsDoNotGateSequence(t *testing.T) {
	// Cash plan skips credit approval and appraisal, so the deed follows
	// the signed promise directly.
	steps := completeThrough(t, cashPlan(), promiseSigned)
	ev := evaluate(cashPlan(), steps, millions(100))

	deed := view(t, ev, deedSigned)
	assert.False(t, deed.Locked)
	assert.True(t, deed.IsNext)
}

func TestEvaluate_ValidationErrors(t *testing.T) {
	tests := []struct {
		name  string
		state func(t *testing.T) process.StepState
		field string
		msg   string
	}{
		{
			name: "missing evidence",
			state: func(t *testing.T) process.StepState {
				s := done(t, promiseSent, day(2024, time.February, 1))
				s.Evidence = nil
				return s
			},
			field: process.FieldEvidencePrefix + "promise_draft",
			msg:   process.MsgMissingEvidence,
		},
		{
			name: "evidence with empty url",
			state: func(t *testing.T) process.StepState {
				s := done(t, promiseSent, day(2024, time.February, 1))
				s.Evidence["promise_draft"] = process.Evidence{}
				return s
			},
			field: process.FieldEvidencePrefix + "promise_draft",
			msg:   process.MsgMissingEvidence,
		},
		{
			name: "date required",
			state: func(t *testing.T) process.StepState {
				s := done(t, promiseSent, day(2024, time.February, 1))
				s.CompletionDate = nil
				return s
			},
			field: process.FieldCompletionDate,
			msg:   process.MsgDateRequired,
		},
		{
			name: "future date",
			state: func(t *testing.T) process.StepState {
				return done(t, promiseSent, today.AddDate(0, 0, 1))
			},
			field: process.FieldCompletionDate,
			msg:   process.MsgDateInFuture,
		},
		{
			name: "before process start",
			state: func(t *testing.T) process.StepState {
				return done(t, promiseSent, processStart.AddDate(0, 0, -1))
			},
			field: process.FieldCompletionDate,
			msg:   process.MsgDatePrecedesPrior,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			steps := process.StepStates{promiseSent: tt.state(t)}
			ev := evaluate(cashPlan(), steps, millions(100))

			v := view(t, ev, promiseSent)
			require.Contains(t, v.Errors, tt.field)
			assert.Contains(t, v.Errors[tt.field], tt.msg)
			assert.False(t, v.Valid())
			assert.True(t, view(t, ev, promiseSigned).Locked, "invalid predecessor must keep the next step locked")
			assert.Equal(t, 0, ev.CompletedCount)
		})
	}
}

func TestEvaluate_TodayIsAllowed(t *testing.T) {
	ev := evaluate(cashPlan(), process.StepStates{promiseSent: done(t, promiseSent, today)}, millions(100))
	assert.Empty(t, view(t, ev, promiseSent).Errors)
}

func TestEvaluate_DatePrecedesPriorStep(t *testing.T) {
	steps := process.StepStates{
		promiseSent:   done(t, promiseSent, day(2024, time.March, 10)),
		promiseSigned: done(t, promiseSigned, day(2024, time.March, 9)),
	}
	ev := evaluate(cashPlan(), steps, millions(100))

	signed := view(t, ev, promiseSigned)
	assert.Equal(t, day(2024, time.March, 10), signed.MinDate)
	assert.Equal(t, process.MsgDatePrecedesPrior, signed.Errors[process.FieldCompletionDate])

	steps[promiseSigned] = done(t, promiseSigned, day(2024, time.March, 10))
	ev = evaluate(cashPlan(), steps, millions(100))
	assert.Empty(t, view(t, ev, promiseSigned).Errors, "same day as predecessor is allowed")
}

func TestEvaluate_InvalidPredecessorDoesNotRaiseFloor(t *testing.T) {
	steps := process.StepStates{
		promiseSent:   done(t, promiseSent, today.AddDate(0, 0, 5)),
		promiseSigned: done(t, promiseSigned, day(2024, time.March, 1)),
	}
	ev := evaluate(cashPlan(), steps, millions(100))

	assert.NotEmpty(t, view(t, ev, promiseSent).Errors)
	signed := view(t, ev, promiseSigned)
	assert.Equal(t, processStart, signed.MinDate)
	assert.Empty(t, signed.Errors)
}

func TestEvaluate_DefaultLockRule(t *testing.T) {
	steps := completeThrough(t, creditPlan(), promiseSent)
	ev := evaluate(creditPlan(), steps, millions(100))

	signed := view(t, ev, promiseSigned)
	assert.False(t, signed.Locked)
	assert.True(t, signed.IsNext)
	assert.True(t, view(t, ev, creditApproval).Locked)
	assert.Equal(t, 1, ev.CompletedCount)
}

func TestEvaluate_NoNextStepWhenBlockedByError(t *testing.T) {
	s := done(t, promiseSent, day(2024, time.February, 1))
	s.Evidence = nil
	ev := evaluate(cashPlan(), process.StepStates{promiseSent: s}, millions(100))

	_, ok := ev.NextStep()
	assert.False(t, ok)
}

func TestEvaluate_RequestStepsUnlockedByAnchor(t *testing.T) {
	plan := subsidyPlan()

	before := evaluate(plan, completeThrough(t, plan, deedSigned), millions(100))
	assert.True(t, view(t, before, bankRequest).Locked)
	assert.True(t, view(t, before, subsidyRequest).Locked)

	steps := completeThrough(t, plan, registrationSlip)
	ev := evaluate(plan, steps, millions(100))

	anchorDate := *steps[registrationSlip].CompletionDate
	for _, k := range []process.StepKey{bankRequest, subsidyRequest, "compensation_fund_request"} {
		v := view(t, ev, k)
		assert.False(t, v.Locked, "%s should be unlocked by the anchor", k)
		assert.Equal(t, anchorDate, v.MinDate)
	}
	assert.True(t, view(t, ev, bankRequest).IsNext)
	assert.True(t, view(t, ev, bankDisbursement).Locked)
	assert.True(t, view(t, ev, "housing_subsidy_disbursement").Locked)
}

func TestEvaluate_RequestStepsAreParallel(t *testing.T) {
	plan := subsidyPlan()
	steps := completeThrough(t, plan, registrationSlip)
	anchorDate := *steps[registrationSlip].CompletionDate

	// Housing subsidy request completed before the bank credit one.
	steps[subsidyRequest] = done(t, subsidyRequest, anchorDate.AddDate(0, 0, 1))
	ev := evaluate(plan, steps, millions(100))

	assert.Empty(t, view(t, ev, subsidyRequest).Errors)
	assert.False(t, view(t, ev, bankRequest).Locked)
	assert.False(t, view(t, ev, "housing_subsidy_disbursement").Locked)
	assert.True(t, view(t, ev, bankDisbursement).Locked)
}

func TestEvaluate_RequestFloorIgnoresOtherSources(t *testing.T) {
	plan := subsidyPlan()
	steps := completeThrough(t, plan, registrationSlip)
	anchorDate := *steps[registrationSlip].CompletionDate

	steps[bankRequest] = done(t, bankRequest, anchorDate.AddDate(0, 0, 3))
	steps[bankDisbursement] = done(t, bankDisbursement, anchorDate.AddDate(0, 0, 5))
	steps[subsidyRequest] = done(t, subsidyRequest, anchorDate.AddDate(0, 0, 1))
	ev := evaluate(plan, steps, millions(50))

	require.True(t, view(t, ev, bankDisbursement).Valid())
	subsidy := view(t, ev, subsidyRequest)
	assert.Equal(t, anchorDate, subsidy.MinDate)
	assert.Empty(t, subsidy.Errors)
	assert.Equal(t, *steps[subsidyRequest].CompletionDate, view(t, ev, "housing_subsidy_disbursement").MinDate)
}

func TestEvaluate_RequestDateBeforeAnchor(t *testing.T) {
	steps := completeThrough(t, creditPlan(), registrationSlip)
	anchorDate := *steps[registrationSlip].CompletionDate
	steps[bankRequest] = done(t, bankRequest, anchorDate.AddDate(0, 0, -1))

	ev := evaluate(creditPlan(), steps, millions(100))
	assert.Equal(t, process.MsgDatePrecedesPrior, view(t, ev, bankRequest).Errors[process.FieldCompletionDate])
	assert.True(t, view(t, ev, bankDisbursement).Locked)
}

func TestEvaluate_DisbursementUnlockedByOwnRequest(t *testing.T) {
	steps := completeThrough(t, creditPlan(), bankRequest)
	ev := evaluate(creditPlan(), steps, millions(70))

	dis := view(t, ev, bankDisbursement)
	assert.False(t, dis.Locked)
	assert.True(t, dis.IsNext)
	assert.Equal(t, *steps[bankRequest].CompletionDate, dis.MinDate)

	// House delivery ignores the automatic disbursement step.
	assert.False(t, view(t, ev, houseDelivery).Locked)
}

func TestEvaluate_InvoiceRequiresZeroBalance(t *testing.T) {
	steps := completeThrough(t, creditPlan(), houseDelivery)

	owing := evaluate(creditPlan(), steps, millions(1))
	invoice := view(t, owing, finalInvoice)
	assert.True(t, invoice.Locked)
	assert.False(t, invoice.IsNext)

	paid := evaluate(creditPlan(), steps, decimal.Zero)
	invoice = view(t, paid, finalInvoice)
	assert.False(t, invoice.Locked)
	assert.True(t, invoice.IsNext)
	assert.Equal(t, *steps[houseDelivery].CompletionDate, invoice.MinDate)

	overpaid := evaluate(creditPlan(), steps, decimal.NewFromInt(-5))
	assert.False(t, view(t, overpaid, finalInvoice).Locked)
}

func TestEvaluate_InvoiceRequiresEveryOtherStep(t *testing.T) {
	steps := completeThrough(t, creditPlan(), houseDelivery)
	steps[bankDisbursement] = process.StepState{}

	ev := evaluate(creditPlan(), steps, decimal.Zero)
	assert.True(t, view(t, ev, finalInvoice).Locked)
	assert.True(t, view(t, ev, bankDisbursement).IsNext)
}

func TestEvaluate_MilestonePermanentlyLocksEarlierSteps(t *testing.T) {
	steps := completeThrough(t, creditPlan(), deedSigned)
	ev := evaluate(creditPlan(), steps, millions(100))

	for _, k := range []process.StepKey{promiseSent, promiseSigned, creditApproval, appraisal, deedSigned} {
		v := view(t, ev, k)
		assert.True(t, v.PermanentlyLocked, "%s", k)
		assert.True(t, v.Locked, "%s", k)
		assert.False(t, v.DependencyLocked, "%s", k)
	}
	slip := view(t, ev, registrationSlip)
	assert.False(t, slip.PermanentlyLocked)
	assert.False(t, slip.Locked)
	assert.True(t, slip.IsNext)
}

func TestEvaluate_PermanentLockSurvivesLaterReopening(t *testing.T) {
	plan := creditPlan()
	persisted := completeThrough(t, plan, bankRequest)
	draft := persisted.Clone()
	draft[bankRequest] = process.StepState{}

	ev := process.Evaluate(catalog, process.Input{
		Plan:         plan,
		Steps:        draft,
		Persisted:    persisted,
		BalanceDue:   millions(70),
		ProcessStart: processStart,
		Today:        today,
	})

	assert.True(t, view(t, ev, appraisal).PermanentlyLocked)
	assert.True(t, view(t, ev, registrationSlip).PermanentlyLocked)
	assert.False(t, view(t, ev, bankRequest).PermanentlyLocked)
}

func TestEvaluate_Reopened(t *testing.T) {
	plan := cashPlan()
	persisted := completeThrough(t, plan, promiseSigned)
	draft := persisted.Clone()
	draft[promiseSigned] = process.StepState{LastChangeReason: "wrong document"}

	ev := process.Evaluate(catalog, process.Input{
		Plan:         plan,
		Steps:        draft,
		Persisted:    persisted,
		BalanceDue:   millions(100),
		ProcessStart: processStart,
		Today:        today,
	})

	assert.True(t, ev.HasAnyReopenedStep)
	assert.True(t, view(t, ev, promiseSigned).Reopened)
	assert.False(t, view(t, ev, promiseSent).Reopened)
	assert.True(t, view(t, ev, promiseSigned).IsNext)
}

func TestEvaluate_ProcessComplete(t *testing.T) {
	steps := completeThrough(t, creditPlan(), finalInvoice)
	ev := evaluate(creditPlan(), steps, decimal.Zero)

	assert.True(t, ev.IsProcessComplete)
	assert.Equal(t, ev.TotalApplicable, ev.CompletedCount)
	_, ok := ev.NextStep()
	assert.False(t, ok)
}

func TestEvaluate_Idempotent(t *testing.T) {
	steps := completeThrough(t, subsidyPlan(), bankRequest)
	broken := done(t, subsidyRequest, today.AddDate(0, 1, 0))
	steps[subsidyRequest] = broken

	first := evaluate(subsidyPlan(), steps, millions(80))
	second := evaluate(subsidyPlan(), steps, millions(80))
	assert.Equal(t, first, second)
}

func TestEvaluate_DoesNotMutateInput(t *testing.T) {
	steps := completeThrough(t, creditPlan(), appraisal)
	snapshot := steps.Clone()

	ev := evaluate(creditPlan(), steps, millions(100))
	require.NotEmpty(t, ev.Steps)
	ev.Steps[0].State.Evidence["promise_draft"] = process.Evidence{URL: "changed"}

	assert.Empty(t, steps.Changed(snapshot))
}

func TestEvaluate_AtMostOneNextStep(t *testing.T) {
	plan := subsidyPlan()
	for _, def := range catalog.Steps() {
		if !def.IsApplicable(plan) {
			continue
		}
		ev := evaluate(plan, completeThrough(t, plan, def.Key), millions(10))
		next := 0
		for _, v := range ev.Steps {
			if v.IsNext {
				next++
				assert.False(t, v.Locked)
				assert.False(t, v.State.Completed)
			}
		}
		assert.LessOrEqual(t, next, 1, "after %s", def.Key)
	}
}

// Completing steps in order only ever releases locks on steps that are
// still incomplete.
func TestEvaluate_MonotonicLockRelease(t *testing.T) {
	plan := subsidyPlan()
	wasUnlocked := make(map[process.StepKey]bool)

	var applicable []process.StepKey
	for _, def := range catalog.Steps() {
		if def.IsApplicable(plan) {
			applicable = append(applicable, def.Key)
		}
	}

	for _, last := range applicable {
		ev := evaluate(plan, completeThrough(t, plan, last), decimal.Zero)
		for _, v := range ev.Steps {
			if v.State.Completed {
				continue
			}
			if wasUnlocked[v.Key()] {
				assert.False(t, v.Locked, "%s relocked after completing %s", v.Key(), last)
			}
			if !v.Locked {
				wasUnlocked[v.Key()] = true
			}
		}
	}
}

func TestEvaluate_ScenarioA_InvoiceLockedWhileBalanceDue(t *testing.T) {
	steps := completeThrough(t, creditPlan(), promiseSigned)
	ev := evaluate(creditPlan(), steps, millions(70))

	assert.Equal(t, 2, ev.CompletedCount)
	assert.True(t, view(t, ev, finalInvoice).Locked)
}

func TestEvaluate_ScenarioB_InvoiceNextOnceSettled(t *testing.T) {
	steps := completeThrough(t, creditPlan(), houseDelivery)
	ev := evaluate(creditPlan(), steps, decimal.Zero)

	invoice := view(t, ev, finalInvoice)
	assert.False(t, invoice.Locked)
	assert.True(t, invoice.IsNext)
}
