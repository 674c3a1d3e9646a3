package sales_test

import (
	"context"
	"testing"
	"time"

	appsales "github.com/casaviva/backoffice/internal/application/sales"
	"github.com/casaviva/backoffice/internal/domain/process"
	"github.com/casaviva/backoffice/internal/domain/sales"
	"github.com/casaviva/backoffice/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryService_CreateHouse(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	h := f.house("  R-100 ")
	assert.Equal(t, "R-100", h.Code)
	assertAmount(t, millions(100), h.FinalPrice, "final price")
	assertAmount(t, millions(100), h.BalanceDue, "balance due")
	assert.False(t, h.IsAssigned())

	_, err := f.registry.CreateHouse(ctx, appsales.CreateHouseCommand{Code: "R-100", PriceBase: millions(90), Actor: actor})
	require.ErrorIs(t, err, shared.ErrAlreadyExists)

	_, err = f.registry.CreateHouse(ctx, appsales.CreateHouseCommand{Code: "R-101", PriceBase: millions(90)})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = f.registry.CreateHouse(ctx, appsales.CreateHouseCommand{Code: "R-102", PriceBase: decimal.Zero, Actor: actor})
	require.Error(t, err)

	_, err = f.registry.GetHouse(ctx, uuid.New())
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestRegistryService_RegisterClient(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	h := f.house("R-200")

	register := func(doc string, houseID uuid.UUID, plan process.FinancialPlan, mutate ...func(*appsales.RegisterClientCommand)) (*sales.Client, error) {
		cmd := appsales.RegisterClientCommand{
			FullName:         "Ana María Rojas",
			DocumentNumber:   doc,
			Email:            " ana@example.com ",
			HouseID:          houseID,
			Plan:             plan,
			ProcessStartedAt: processStart,
			Actor:            actor,
		}
		for _, m := range mutate {
			m(&cmd)
		}
		return f.registry.RegisterClient(ctx, cmd)
	}

	t.Run("future start date", func(t *testing.T) {
		_, err := register("1010", h.ID, creditPlan(), func(c *appsales.RegisterClientCommand) {
			c.ProcessStartedAt = today.AddDate(0, 0, 1)
		})
		require.ErrorIs(t, err, shared.ErrValidation)
		assert.Contains(t, detailsOf(t, err), "process_started_at")
	})

	t.Run("plan must cover the price", func(t *testing.T) {
		_, err := register("1011", h.ID, process.NewFinancialPlan(map[process.FundingSource]decimal.Decimal{
			process.SourceDownPayment: millions(10),
		}))
		require.ErrorIs(t, err, shared.ErrValidation)
	})

	t.Run("unknown house", func(t *testing.T) {
		_, err := register("1012", uuid.New(), creditPlan())
		require.ErrorIs(t, err, shared.ErrNotFound)
	})

	c, err := register("1013", h.ID, creditPlan())
	require.NoError(t, err)
	assert.Equal(t, sales.ClientActive, c.Status)
	assert.Equal(t, "ana@example.com", c.Email)
	require.NotNil(t, c.HouseID)
	assert.Equal(t, h.ID, *c.HouseID)
	assert.Contains(t, c.Steps, process.StepKey("bank_credit_request"))
	assert.NotContains(t, c.Steps, process.StepKey("housing_subsidy_request"))

	house := f.loadHouse(h.ID)
	require.NotNil(t, house.AssignedClientID)
	assert.Equal(t, c.ID, *house.AssignedClientID)

	t.Run("house already assigned", func(t *testing.T) {
		_, err := register("1014", h.ID, creditPlan())
		require.ErrorIs(t, err, sales.ErrHouseAlreadyAssigned)
	})

	t.Run("duplicate document", func(t *testing.T) {
		other := f.house("R-201")
		_, err := register("1013", other.ID, creditPlan())
		require.ErrorIs(t, err, shared.ErrAlreadyExists)
	})

	t.Run("start defaults to today", func(t *testing.T) {
		other := f.house("R-202")
		c, err := register("1015", other.ID, cashPlan(), func(c *appsales.RegisterClientCommand) {
			c.ProcessStartedAt = time.Time{}
		})
		require.NoError(t, err)
		assert.True(t, process.Day(c.ProcessStartedAt).Equal(today))
	})
}

func TestRegistryService_Listings(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	h1, c1 := f.sale("S-100", cashPlan())
	f.sale("S-101", creditPlan())
	f.house("S-102")

	houses, err := f.registry.ListHouses(ctx, false)
	require.NoError(t, err)
	assert.Len(t, houses, 3)

	available, err := f.registry.ListHouses(ctx, true)
	require.NoError(t, err)
	require.Len(t, available, 1)
	assert.Equal(t, "S-102", available[0].Code)

	_, err = f.ledger.ProcessRenunciation(ctx, appsales.ProcessRenunciationCommand{
		ClientID: c1.ID, HouseID: h1.ID, Motive: "Desistimiento", Actor: actor,
	})
	require.NoError(t, err)

	active, err := f.registry.ListClients(ctx, sales.ClientActive)
	require.NoError(t, err)
	assert.Len(t, active, 1)

	withdrawn, err := f.registry.ListClients(ctx, sales.ClientWithdrawn)
	require.NoError(t, err)
	require.Len(t, withdrawn, 1)
	assert.Equal(t, c1.ID, withdrawn[0].ID)

	all, err := f.registry.ListClients(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	records, err := f.registry.ListRenunciations(ctx, c1.ID)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestRegistryService_ListAudit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	h, c := f.sale("T-100", cashPlan())
	for i := 0; i < 3; i++ {
		_, err := f.pay(h, c, process.SourceDownPayment, millions(1), "")
		require.NoError(t, err)
	}

	entries, err := f.registry.ListAudit(ctx, c.ID, 2)
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	entries, err = f.registry.ListAudit(ctx, c.ID, 0)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	for _, e := range entries {
		assert.Equal(t, sales.AuditPaymentRegistered, e.Action)
		assert.Equal(t, actor, e.ActorName)
		require.NotNil(t, e.HouseID)
		assert.Equal(t, h.ID, *e.HouseID)
		assert.NotEmpty(t, e.Message)
	}

	entries, err = f.registry.ListAudit(ctx, uuid.New(), 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
