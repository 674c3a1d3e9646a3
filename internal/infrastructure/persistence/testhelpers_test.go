package persistence

import (
	"testing"
	"time"

	"github.com/casaviva/backoffice/internal/domain/process"
	"github.com/casaviva/backoffice/internal/domain/sales"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// setupSalesTestDB opens an in-memory SQLite database with the sales schema.
// A single connection keeps every statement on the same memory database.
func setupSalesTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, AutoMigrate(db))
	return db
}

func millions(n int64) decimal.Decimal {
	return decimal.NewFromInt(n * 1_000_000)
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func creditPlan() process.FinancialPlan {
	return process.NewFinancialPlan(map[process.FundingSource]decimal.Decimal{
		process.SourceDownPayment: millions(30),
		process.SourceBankCredit:  millions(70),
	})
}

func newHouse(t *testing.T, code string) *sales.House {
	t.Helper()
	h, err := sales.NewHouse(code, "Altos del Parque", millions(100))
	require.NoError(t, err)
	return h
}

func newClient(t *testing.T, doc string) *sales.Client {
	t.Helper()
	c, err := sales.NewClient("Ana María Restrepo", doc, day(2024, time.January, 10))
	require.NoError(t, err)
	return c
}

func newPayment(t *testing.T, house *sales.House, client *sales.Client, source process.FundingSource, amount decimal.Decimal) *sales.Payment {
	t.Helper()
	p, err := sales.NewPayment(uuid.Nil, house.ID, client.ID, source, amount, day(2024, time.March, 1), "cajero")
	require.NoError(t, err)
	return p
}
