package sales_test

import (
	"errors"
	"testing"
	"time"

	"github.com/casaviva/backoffice/internal/domain/sales"
	"github.com/casaviva/backoffice/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2024, time.June, 1, 10, 0, 0, 0, time.UTC)

func millions(n int64) decimal.Decimal {
	return decimal.NewFromInt(n * 1_000_000)
}

func newHouse(t *testing.T) *sales.House {
	t.Helper()
	h, err := sales.NewHouse("MZ3-C12", "Altos del Rio", millions(100))
	require.NoError(t, err)
	return h
}

func assertLedger(t *testing.T, h *sales.House, paid, due int64) {
	t.Helper()
	require.NoError(t, h.CheckLedger())
	assert.True(t, h.TotalPaid.Equal(millions(paid)), "total paid %s", h.TotalPaid)
	assert.True(t, h.BalanceDue.Equal(millions(due)), "balance due %s", h.BalanceDue)
}

func TestNewHouse(t *testing.T) {
	h := newHouse(t)
	assert.Equal(t, 1, h.Version)
	assert.False(t, h.IsAssigned())
	assert.True(t, h.FinalPrice.Equal(millions(100)))
	assertLedger(t, h, 0, 100)

	_, err := sales.NewHouse(" ", "p", millions(1))
	assert.Error(t, err)
	_, err = sales.NewHouse("A1", "p", decimal.Zero)
	assert.Error(t, err)
}

func TestHouse_RecordAndReversePayment(t *testing.T) {
	h := newHouse(t)

	require.NoError(t, h.RecordPayment(millions(30), now))
	assertLedger(t, h, 30, 70)

	err := h.RecordPayment(millions(71), now)
	assert.True(t, errors.Is(err, sales.ErrOverpayment))
	assertLedger(t, h, 30, 70)

	require.NoError(t, h.RecordPayment(millions(70), now))
	assertLedger(t, h, 100, 0)

	require.NoError(t, h.ReversePayment(millions(50), now))
	assertLedger(t, h, 50, 50)

	assert.True(t, errors.Is(h.ReversePayment(millions(60), now), sales.ErrLedgerInvariant))
}

func TestHouse_AdjustPayment(t *testing.T) {
	h := newHouse(t)
	require.NoError(t, h.RecordPayment(millions(40), now))

	require.NoError(t, h.AdjustPayment(millions(40), millions(55), now))
	assertLedger(t, h, 55, 45)

	require.NoError(t, h.AdjustPayment(millions(55), millions(10), now))
	assertLedger(t, h, 10, 90)

	assert.True(t, errors.Is(h.AdjustPayment(millions(10), millions(101), now), sales.ErrOverpayment))
	assertLedger(t, h, 10, 90)
}

func TestHouse_ApplyDiscount(t *testing.T) {
	tests := []struct {
		name     string
		paid     int64
		discount int64
		reason   string
		wantErr  error
		wantKind shared.ErrorKind
		final    int64
	}{
		{name: "discount within balance", paid: 90, discount: 5, reason: "promo", final: 95},
		{name: "discount equal to balance", paid: 90, discount: 10, reason: "promo", final: 90},
		{name: "discount above balance", paid: 90, discount: 11, reason: "promo", wantErr: sales.ErrOverpayment},
		{name: "missing reason", paid: 0, discount: 5, reason: "  ", wantKind: shared.KindValidation},
		{name: "zero discount needs no reason", paid: 0, discount: 0, final: 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHouse(t)
			if tt.paid > 0 {
				require.NoError(t, h.RecordPayment(millions(tt.paid), now))
			}
			err := h.ApplyDiscount(millions(tt.discount), tt.reason, now)
			switch {
			case tt.wantErr != nil:
				assert.True(t, errors.Is(err, tt.wantErr))
				assert.True(t, h.FinalPrice.Equal(millions(100)))
			case tt.wantKind != "":
				assert.Equal(t, tt.wantKind, shared.KindOf(err))
			default:
				require.NoError(t, err)
				assert.True(t, h.FinalPrice.Equal(millions(tt.final)))
				assert.True(t, h.TotalPaid.Equal(millions(tt.paid)), "discount preserves total paid")
				require.NoError(t, h.CheckLedger())
			}
		})
	}
}

func TestHouse_DiscountReplacesPrevious(t *testing.T) {
	h := newHouse(t)
	require.NoError(t, h.RecordPayment(millions(90), now))
	require.NoError(t, h.ApplyDiscount(millions(8), "first", now))
	assertLedger(t, h, 90, 2)

	// Raising to 10 only needs the 2 still owed.
	require.NoError(t, h.ApplyDiscount(millions(10), "second", now))
	assertLedger(t, h, 90, 0)

	require.NoError(t, h.ApplyDiscount(decimal.Zero, "", now))
	assert.Empty(t, h.DiscountReason)
	assertLedger(t, h, 90, 10)
}

func TestHouse_AssignReleaseRestore(t *testing.T) {
	h := newHouse(t)
	client := uuid.New()

	require.NoError(t, h.Assign(client, now))
	assert.True(t, h.IsAssignedTo(client))
	assert.True(t, errors.Is(h.Assign(uuid.New(), now), sales.ErrHouseAlreadyAssigned))

	require.NoError(t, h.RecordPayment(millions(20), now))
	require.NoError(t, h.ApplyDiscount(millions(5), "early buyer", now))
	snap := h.Snapshot()

	h.Release(now)
	assert.False(t, h.IsAssigned())
	assertLedger(t, h, 0, 100)

	require.NoError(t, h.Restore(client, snap, now))
	assert.True(t, h.IsAssignedTo(client))
	assertLedger(t, h, 20, 75)
	assert.Equal(t, "early buyer", h.DiscountReason)

	assert.True(t, errors.Is(h.Restore(uuid.New(), snap, now), sales.ErrHouseAlreadyAssigned))
}

func TestHouse_CheckLedgerDetectsDrift(t *testing.T) {
	h := newHouse(t)
	h.BalanceDue = millions(99)
	assert.True(t, errors.Is(h.CheckLedger(), sales.ErrLedgerInvariant))
}
