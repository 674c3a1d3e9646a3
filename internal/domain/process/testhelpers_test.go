package process_test

import (
	"testing"
	"time"

	"github.com/casaviva/backoffice/internal/domain/process"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var catalog = process.DefaultCatalog()

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

var (
	processStart = day(2024, time.January, 10)
	today        = day(2024, time.June, 30)
)

func millions(n int64) decimal.Decimal {
	return decimal.NewFromInt(n * 1_000_000)
}

func creditPlan() process.FinancialPlan {
	return process.NewFinancialPlan(map[process.FundingSource]decimal.Decimal{
		process.SourceDownPayment: millions(30),
		process.SourceBankCredit:  millions(70),
	})
}

func cashPlan() process.FinancialPlan {
	return process.NewFinancialPlan(map[process.FundingSource]decimal.Decimal{
		process.SourceDownPayment: millions(100),
	})
}

func subsidyPlan() process.FinancialPlan {
	return process.NewFinancialPlan(map[process.FundingSource]decimal.Decimal{
		process.SourceDownPayment:      millions(20),
		process.SourceBankCredit:       millions(50),
		process.SourceHousingSubsidy:   millions(20),
		process.SourceCompensationFund: millions(10),
	})
}

// done returns a valid completed state for key carrying every required document.
func done(t *testing.T, key process.StepKey, d time.Time) process.StepState {
	t.Helper()
	def, ok := catalog.Step(key)
	require.True(t, ok, "unknown step %s", key)
	ev := make(map[string]process.Evidence, len(def.RequiredEvidence))
	for _, r := range def.RequiredEvidence {
		ev[r.ID] = process.Evidence{URL: "https://files.test/" + string(key) + "/" + r.ID, UploadedAt: d}
	}
	return process.StepState{Completed: true, CompletionDate: process.DatePtr(d), Evidence: ev}
}

// completeThrough marks every applicable step up to and including last as
// done, one day apart starting at processStart.
func completeThrough(t *testing.T, plan process.FinancialPlan, last process.StepKey) process.StepStates {
	t.Helper()
	states := process.InitialStates(catalog, plan)
	d := processStart
	for _, def := range catalog.Steps() {
		if !def.IsApplicable(plan) {
			continue
		}
		d = d.AddDate(0, 0, 1)
		states[def.Key] = done(t, def.Key, d)
		if def.Key == last {
			break
		}
	}
	return states
}

func evaluate(plan process.FinancialPlan, steps process.StepStates, balance decimal.Decimal) process.Evaluation {
	return process.Evaluate(catalog, process.Input{
		Plan:         plan,
		Steps:        steps,
		BalanceDue:   balance,
		ProcessStart: processStart,
		Today:        today,
	})
}

func view(t *testing.T, ev process.Evaluation, key process.StepKey) process.StepView {
	t.Helper()
	v, ok := ev.Step(key)
	require.True(t, ok, "step %s not applicable", key)
	return v
}
