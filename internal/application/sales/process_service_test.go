package sales_test

import (
	"context"
	"testing"

	appsales "github.com/casaviva/backoffice/internal/application/sales"
	"github.com/casaviva/backoffice/internal/domain/process"
	"github.com/casaviva/backoffice/internal/domain/sales"
	"github.com/casaviva/backoffice/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	promiseSent    process.StepKey = "promise_sent"
	promiseSigned  process.StepKey = "promise_signed"
	creditApproval process.StepKey = "credit_approval"
	deedSigned     process.StepKey = "deed_signed"
)

func TestProcessService_Evaluate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	h, c := f.sale("P-100", creditPlan())

	view, err := f.process.Evaluate(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, h.ID, view.HouseID)
	assert.Equal(t, 10, view.Evaluation.TotalApplicable)
	assert.Zero(t, view.Evaluation.CompletedCount)
	assert.False(t, view.Evaluation.IsProcessComplete)

	first, ok := view.Evaluation.Step(promiseSent)
	require.True(t, ok)
	assert.True(t, first.IsNext)
	assert.False(t, first.Locked)

	second, ok := view.Evaluation.Step(promiseSigned)
	require.True(t, ok)
	assert.True(t, second.Locked)

	_, ok = view.Evaluation.Step("housing_subsidy_request")
	assert.False(t, ok)

	_, err = f.process.Evaluate(ctx, uuid.New())
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestProcessService_EvaluateDraft(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, c := f.sale("P-110", creditPlan())

	view, err := f.process.EvaluateDraft(ctx, c.ID, process.StepStates{
		promiseSent: completed(t, promiseSent, day(2024, 5, 2)),
	})
	require.NoError(t, err)
	require.NotNil(t, view.Save)
	assert.True(t, view.Save.Allowed)
	assert.True(t, view.Steps.Get(promiseSent).Completed)
	assert.Equal(t, 1, view.Evaluation.CompletedCount)

	next, _ := view.Evaluation.Step(promiseSigned)
	assert.False(t, next.Locked, "the draft unlocks the following step")

	view, err = f.process.EvaluateDraft(ctx, c.ID, process.StepStates{
		promiseSent: {Completed: true, CompletionDate: process.DatePtr(day(2024, 5, 2))},
	})
	require.NoError(t, err)
	assert.False(t, view.Save.Allowed)
	assert.Equal(t, process.BlockValidationErrors, view.Save.Reason)
	assert.Equal(t, []process.StepKey{promiseSent}, view.Save.Steps)

	assert.False(t, f.loadClient(c.ID).Steps.Get(promiseSent).Completed, "drafts are never stored")
}

func TestProcessService_SaveProcess(t *testing.T) {
	ctx := context.Background()

	save := func(f *fixture, c *sales.Client, steps process.StepStates, reasons map[process.StepKey]string) (*appsales.ProcessView, error) {
		return f.process.SaveProcess(ctx, appsales.SaveProcessCommand{
			ClientID: c.ID,
			Steps:    steps,
			Reasons:  reasons,
			Actor:    actor,
		})
	}

	t.Run("rejected edits", func(t *testing.T) {
		f := newFixture(t)
		_, c := f.sale("P-200", creditPlan())

		tests := []struct {
			name  string
			steps process.StepStates
			field string
			want  string
		}{
			{
				name:  "locked step",
				steps: process.StepStates{promiseSigned: completed(t, promiseSigned, day(2024, 5, 2))},
				field: "steps.promise_signed",
			},
			{
				name:  "automatic step",
				steps: process.StepStates{bankDisbursement: completed(t, bankDisbursement, day(2024, 5, 2))},
				field: "steps.bank_credit_disbursement",
			},
			{
				name:  "unknown step",
				steps: process.StepStates{"notary_visit": {Completed: true}},
				field: "steps.notary_visit",
				want:  "unknown step",
			},
			{
				name:  "step outside the plan",
				steps: process.StepStates{"housing_subsidy_request": completed(t, "housing_subsidy_request", day(2024, 5, 2))},
				field: "steps.housing_subsidy_request",
				want:  "not applicable to the financial plan",
			},
			{
				name:  "missing evidence",
				steps: process.StepStates{promiseSent: {Completed: true, CompletionDate: process.DatePtr(day(2024, 5, 2))}},
				field: "process",
				want:  string(process.BlockValidationErrors),
			},
			{
				name:  "date before the process started",
				steps: process.StepStates{promiseSent: completed(t, promiseSent, day(2024, 4, 1))},
				field: "process",
				want:  string(process.BlockValidationErrors),
			},
			{
				name:  "nothing changed",
				steps: process.StepStates{},
				field: "process",
				want:  string(process.BlockNoChanges),
			},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := save(f, c, tt.steps, nil)
				require.ErrorIs(t, err, shared.ErrValidation)
				details := detailsOf(t, err)
				require.Contains(t, details, tt.field)
				if tt.want != "" {
					assert.Equal(t, tt.want, details[tt.field])
				}
			})
		}
		assert.Empty(t, f.auditActions(c.ID))
	})

	t.Run("complete and modify", func(t *testing.T) {
		f := newFixture(t)
		_, c := f.sale("P-210", creditPlan())

		view, err := save(f, c, process.StepStates{promiseSent: completed(t, promiseSent, day(2024, 5, 2))}, nil)
		require.NoError(t, err)
		assert.True(t, view.Steps.Get(promiseSent).Completed)
		assert.False(t, view.Steps.Get(promiseSent).Evidence["promise_draft"].UploadedAt.IsZero())
		assert.Contains(t, f.auditActions(c.ID), sales.AuditStepCompleted)

		moved := completed(t, promiseSent, day(2024, 5, 3))
		_, err = save(f, c, process.StepStates{promiseSent: moved}, nil)
		require.ErrorIs(t, err, shared.ErrValidation)
		assert.Contains(t, detailsOf(t, err), "reasons.promise_sent")

		view, err = save(f, c, process.StepStates{promiseSent: moved},
			map[process.StepKey]string{promiseSent: "Fecha corregida según radicado"})
		require.NoError(t, err)
		st := view.Steps.Get(promiseSent)
		assert.True(t, st.CompletionDate.Equal(day(2024, 5, 3)))
		assert.Equal(t, "Fecha corregida según radicado", st.LastChangeReason)
		require.NotNil(t, st.LastChangeDate)
		assert.Contains(t, f.auditActions(c.ID), sales.AuditStepModified)

		stored := f.loadClient(c.ID).Steps.Get(promiseSent)
		assert.Equal(t, "Fecha corregida según radicado", stored.LastChangeReason)
	})

	t.Run("reopening is not saved", func(t *testing.T) {
		f := newFixture(t)
		_, c := f.sale("P-220", creditPlan())
		f.completeThrough(c, promiseSent)

		_, err := save(f, c, process.StepStates{promiseSent: {}},
			map[process.StepKey]string{promiseSent: "Documento rechazado"})
		require.ErrorIs(t, err, shared.ErrValidation)
		assert.Equal(t, string(process.BlockReopenedStep), detailsOf(t, err)["process"])
		assert.True(t, f.loadClient(c.ID).Steps.Get(promiseSent).Completed)
	})

	t.Run("milestone locks earlier steps", func(t *testing.T) {
		f := newFixture(t)
		_, c := f.sale("P-230", cashPlan())
		f.completeThrough(c, deedSigned)

		_, err := save(f, c, process.StepStates{promiseSent: completed(t, promiseSent, day(2024, 5, 1))},
			map[process.StepKey]string{promiseSent: "Corrección"})
		require.ErrorIs(t, err, shared.ErrValidation)
		assert.Equal(t, "permanently locked by a completed milestone", detailsOf(t, err)["steps.promise_sent"])
	})

	t.Run("milestones saved one by one", func(t *testing.T) {
		f := newFixture(t)
		h, c := f.sale("P-250", creditPlan())
		f.completeThrough(c, "appraisal")

		view, err := save(f, c, process.StepStates{deedSigned: completed(t, deedSigned, day(2024, 5, 10))}, nil)
		require.NoError(t, err)
		deed, _ := view.Evaluation.Step(deedSigned)
		assert.True(t, deed.Valid())
		assert.True(t, deed.PermanentlyLocked)
		assert.False(t, deed.DependencyLocked)

		_, err = save(f, c, process.StepStates{"registration_slip": completed(t, "registration_slip", day(2024, 5, 11))}, nil)
		require.NoError(t, err)
		view, err = save(f, c, process.StepStates{bankRequest: completed(t, bankRequest, day(2024, 5, 12))}, nil)
		require.NoError(t, err)
		dis, _ := view.Evaluation.Step(bankDisbursement)
		assert.True(t, dis.IsNext)

		res, err := f.pay(h, c, process.SourceBankCredit, millions(70), receiptKey)
		require.NoError(t, err)
		assert.Equal(t, bankDisbursement, res.StepKey)
		assert.True(t, f.loadClient(c.ID).Steps.Get(bankDisbursement).Completed)
	})

	t.Run("draft through the anchor", func(t *testing.T) {
		f := newFixture(t)
		_, c := f.sale("P-260", creditPlan())

		view := f.completeThrough(c, "registration_slip")
		slip, _ := view.Evaluation.Step("registration_slip")
		assert.True(t, slip.PermanentlyLocked)
		request, _ := view.Evaluation.Step(bankRequest)
		assert.False(t, request.Locked)
		assert.True(t, request.IsNext)
		assert.Equal(t, 6, view.Evaluation.CompletedCount)
	})

	t.Run("missing actor", func(t *testing.T) {
		f := newFixture(t)
		_, c := f.sale("P-240", creditPlan())

		_, err := f.process.SaveProcess(ctx, appsales.SaveProcessCommand{ClientID: c.ID})
		require.ErrorIs(t, err, shared.ErrValidation)
	})
}

func TestProcessService_UpdateFinancialPlan(t *testing.T) {
	ctx := context.Background()

	update := func(f *fixture, c *sales.Client, plan process.FinancialPlan) (*appsales.ProcessView, error) {
		return f.process.UpdateFinancialPlan(ctx, appsales.UpdatePlanCommand{ClientID: c.ID, Plan: plan, Actor: actor})
	}

	t.Run("total must match the price", func(t *testing.T) {
		f := newFixture(t)
		_, c := f.sale("Q-100", creditPlan())

		_, err := update(f, c, process.NewFinancialPlan(map[process.FundingSource]decimal.Decimal{
			process.SourceDownPayment: millions(50),
		}))
		require.ErrorIs(t, err, shared.ErrValidation)
		assert.Contains(t, detailsOf(t, err), "total")
	})

	t.Run("steps follow the plan", func(t *testing.T) {
		f := newFixture(t)
		_, c := f.sale("Q-110", creditPlan())
		f.completeThrough(c, creditApproval)

		view, err := update(f, c, cashPlan())
		require.NoError(t, err)
		assert.True(t, view.Plan.Equal(cashPlan()))
		assert.True(t, view.Steps.Get(creditApproval).Archived)
		assert.True(t, view.Steps.Get(creditApproval).Completed)
		_, ok := view.Evaluation.Step(creditApproval)
		assert.False(t, ok)

		actions := f.auditActions(c.ID)
		assert.Contains(t, actions, sales.AuditPlanChanged)
		assert.Contains(t, actions, sales.AuditStepArchived)

		view, err = update(f, c, creditPlan())
		require.NoError(t, err)
		st := view.Steps.Get(creditApproval)
		assert.False(t, st.Archived)
		assert.True(t, st.Completed)
		assert.Contains(t, f.auditActions(c.ID), sales.AuditStepRestored)
	})

	t.Run("source with active payments stays", func(t *testing.T) {
		f := newFixture(t)
		h, c := f.sale("Q-120", creditPlan())
		_, err := f.pay(h, c, process.SourceDownPayment, millions(10), "")
		require.NoError(t, err)

		_, err = update(f, c, process.NewFinancialPlan(map[process.FundingSource]decimal.Decimal{
			process.SourceBankCredit: millions(100),
		}))
		require.ErrorIs(t, err, sales.ErrSourceHasActivePayments)
		assert.True(t, f.loadClient(c.ID).Plan.Equal(creditPlan()))

		view, err := update(f, c, process.NewFinancialPlan(map[process.FundingSource]decimal.Decimal{
			process.SourceDownPayment: millions(20),
			process.SourceBankCredit:  millions(80),
		}))
		require.NoError(t, err)
		assertAmount(t, millions(80), view.Plan.Pledged(process.SourceBankCredit), "bank credit")
	})
}
