package sales_test

import (
	"errors"
	"testing"

	"github.com/casaviva/backoffice/internal/domain/process"
	"github.com/casaviva/backoffice/internal/domain/sales"
	"github.com/casaviva/backoffice/internal/domain/shared"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func renunciationInput(t *testing.T, penalty decimal.Decimal, payments ...*sales.Payment) sales.RenunciationInput {
	t.Helper()
	client, err := sales.NewClient("Laura Gómez", "1020304050", now)
	require.NoError(t, err)
	client.Plan = process.NewFinancialPlan(map[process.FundingSource]decimal.Decimal{process.SourceDownPayment: millions(100)})
	return sales.RenunciationInput{
		Client:   client,
		House:    newHouse(t),
		Payments: payments,
		Motive:   "Relocating abroad",
		Penalty:  penalty,
		Actor:    "ana",
	}
}

func TestNewRenunciation_RefundPending(t *testing.T) {
	voided := newPayment(t, process.SourceDownPayment, millions(3))
	require.NoError(t, voided.Void("typo", nil, now))
	in := renunciationInput(t, millions(2),
		newPayment(t, process.SourceDownPayment, millions(10)),
		newPayment(t, process.SourceDownPayment, millions(5)),
		newPayment(t, process.SourceDiscountWaiver, millions(4)),
		voided,
	)

	r, err := sales.NewRenunciation(in, now)
	require.NoError(t, err)
	assert.True(t, r.TotalPaidReal.Equal(millions(15)), "waivers and voided payments are not money received")
	assert.True(t, r.AmountRefundable.Equal(millions(13)))
	assert.True(t, r.IsPending())
	assert.Nil(t, r.ClosedAt)
	assert.Len(t, r.PaymentsSnapshot, 4)
	assert.True(t, r.PlanSnapshot.Equal(in.Client.Plan))
	assert.True(t, r.Reversible())
}

func TestNewRenunciation_PenaltyExceedsPaid(t *testing.T) {
	in := renunciationInput(t, millions(25), newPayment(t, process.SourceDownPayment, millions(20)))

	r, err := sales.NewRenunciation(in, now)
	require.NoError(t, err)
	assert.True(t, r.AmountRefundable.IsZero())
	assert.Equal(t, sales.RefundClosed, r.RefundStatus)
	assert.NotNil(t, r.ClosedAt)
	assert.True(t, r.Reversible(), "nothing was paid out yet")
}

func TestNewRenunciation_Validation(t *testing.T) {
	in := renunciationInput(t, millions(1))
	in.Motive = " "
	_, err := sales.NewRenunciation(in, now)
	assert.Equal(t, shared.KindValidation, shared.KindOf(err))

	in = renunciationInput(t, millions(-1))
	_, err = sales.NewRenunciation(in, now)
	assert.Equal(t, shared.KindValidation, shared.KindOf(err))
}

func TestRenunciation_Close(t *testing.T) {
	in := renunciationInput(t, decimal.Zero, newPayment(t, process.SourceDownPayment, millions(8)))
	r, err := sales.NewRenunciation(in, now)
	require.NoError(t, err)

	err = r.Close(sales.Payout{Method: "transfer", Amount: millions(7)}, now)
	assert.Equal(t, shared.KindValidation, shared.KindOf(err))
	assert.True(t, r.IsPending())

	require.NoError(t, r.Close(sales.Payout{Method: "transfer", Reference: "TRX-1"}, now))
	assert.Equal(t, sales.RefundClosed, r.RefundStatus)
	require.NotNil(t, r.Payout)
	assert.True(t, r.Payout.Amount.Equal(millions(8)))
	assert.False(t, r.Reversible())

	assert.True(t, errors.Is(r.Close(sales.Payout{Method: "cash"}, now), sales.ErrRefundAlreadyClosed))
}
