package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/casaviva/backoffice/internal/domain/sales"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestGormAuditRepository_AppendAndList(t *testing.T) {
	db := setupSalesTestDB(t)
	repo := NewGormAuditRepository(db)
	ctx := context.Background()

	clientID := uuid.New()
	houseID := uuid.New()
	base := time.Date(2024, time.June, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		entry := sales.NewAuditEntry(clientID, &houseID, "down_payment", sales.AuditPaymentRegistered,
			"Abono registrado", "cajero", base.Add(time.Duration(i)*time.Hour))
		require.NoError(t, repo.Append(ctx, entry))
	}
	require.NoError(t, repo.Append(ctx, sales.NewAuditEntry(uuid.New(), nil, "", sales.AuditPlanChanged,
		"Otro cliente", "cajero", base)))

	entries, err := repo.ListByClient(ctx, clientID, 3)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.True(t, entries[0].OccurredAt.Equal(base.Add(4*time.Hour)))
	assert.True(t, entries[2].OccurredAt.Equal(base.Add(2*time.Hour)))
	assert.Equal(t, sales.AuditPaymentRegistered, entries[0].Action)
	assert.Equal(t, "down_payment", entries[0].StepKey)
	assert.Equal(t, "cajero", entries[0].ActorName)
	require.NotNil(t, entries[0].HouseID)
	assert.Equal(t, houseID, *entries[0].HouseID)
}

func TestGormAuditRepository_FailedAppendDoesNotAbortTransaction(t *testing.T) {
	db := setupSalesTestDB(t)
	ctx := context.Background()

	house := newHouse(t, "T-1")
	entry := sales.NewAuditEntry(uuid.New(), &house.ID, "", sales.AuditDiscountApplied, "Descuento", "gerente", time.Now())

	err := db.Transaction(func(tx *gorm.DB) error {
		audit := newTxAuditRepository(tx)
		if err := NewGormHouseRepository(tx).Create(ctx, house); err != nil {
			return err
		}
		require.NoError(t, audit.Append(ctx, entry))
		// Same ID again: the insert fails and only the savepoint is undone.
		assert.Error(t, audit.Append(ctx, entry))

		house.DiscountReason = "after failed append"
		return NewGormHouseRepository(tx).SaveWithLock(ctx, house)
	})
	require.NoError(t, err)

	found, err := NewGormHouseRepository(db).FindByID(ctx, house.ID)
	require.NoError(t, err)
	assert.Equal(t, "after failed append", found.DiscountReason)

	entries, err := NewGormAuditRepository(db).ListByClient(ctx, entry.ClientID, 10)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
