package sales_test

import (
	"context"
	"errors"
	"testing"
	"time"

	appsales "github.com/casaviva/backoffice/internal/application/sales"
	"github.com/casaviva/backoffice/internal/domain/process"
	"github.com/casaviva/backoffice/internal/domain/sales"
	"github.com/casaviva/backoffice/internal/domain/shared"
	"github.com/casaviva/backoffice/internal/infrastructure/cache"
	"github.com/casaviva/backoffice/internal/infrastructure/persistence"
	"github.com/casaviva/backoffice/internal/infrastructure/storage"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const actor = "Laura Gómez"

var (
	now          = time.Date(2024, time.June, 15, 12, 0, 0, 0, time.UTC)
	today        = day(2024, time.June, 15)
	processStart = day(2024, time.May, 1)
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

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

type fixture struct {
	t        *testing.T
	db       *gorm.DB
	scope    appsales.TransactionScope
	deps     appsales.Dependencies
	registry *appsales.RegistryService
	ledger   *appsales.LedgerService
	process  *appsales.ProcessService
}

type option func(*appsales.Dependencies)

func withScope(wrap func(appsales.TransactionScope) appsales.TransactionScope) option {
	return func(d *appsales.Dependencies) { d.Scope = wrap(d.Scope) }
}

func withLogger(l *zap.Logger) option {
	return func(d *appsales.Dependencies) { d.Logger = l }
}

func newFixture(t *testing.T, opts ...option) *fixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, persistence.AutoMigrate(db))

	idem := cache.NewMemoryStore()
	t.Cleanup(func() { _ = idem.Close() })

	scope := persistence.NewGormTransactionScope(db)
	deps := appsales.Dependencies{
		Scope:       scope,
		Catalog:     process.DefaultCatalog(),
		Evidence:    storage.NewStubObjectStorage("https://files.test"),
		Idempotency: idem,
		Logger:      zaptest.NewLogger(t),
		Retry: appsales.RetryPolicy{
			MaxRetries:      2,
			InitialInterval: time.Millisecond,
			MaxInterval:     2 * time.Millisecond,
		},
		Locale: "es-CO",
		Clock:  func() time.Time { return now },
	}
	for _, opt := range opts {
		opt(&deps)
	}
	return &fixture{
		t:        t,
		db:       db,
		scope:    scope,
		deps:     deps,
		registry: appsales.NewRegistryService(deps),
		ledger:   appsales.NewLedgerService(deps),
		process:  appsales.NewProcessService(deps),
	}
}

func (f *fixture) house(code string) *sales.House {
	f.t.Helper()
	h, err := f.registry.CreateHouse(context.Background(), appsales.CreateHouseCommand{
		Code:      code,
		Project:   "Altos del Río",
		PriceBase: millions(100),
		Actor:     actor,
	})
	require.NoError(f.t, err)
	return h
}

func (f *fixture) client(houseID uuid.UUID, document string, plan process.FinancialPlan) *sales.Client {
	f.t.Helper()
	c, err := f.registry.RegisterClient(context.Background(), appsales.RegisterClientCommand{
		FullName:         "Carlos Pérez",
		DocumentNumber:   document,
		HouseID:          houseID,
		Plan:             plan,
		ProcessStartedAt: processStart,
		Actor:            actor,
	})
	require.NoError(f.t, err)
	return c
}

// sale creates a house and a client holding it.
func (f *fixture) sale(code string, plan process.FinancialPlan) (*sales.House, *sales.Client) {
	f.t.Helper()
	h := f.house(code)
	c := f.client(h.ID, "CC-"+code, plan)
	return h, c
}

func (f *fixture) pay(h *sales.House, c *sales.Client, source process.FundingSource, amount decimal.Decimal, receipt string) (*appsales.PaymentResult, error) {
	return f.ledger.RegisterPayment(context.Background(), appsales.RegisterPaymentCommand{
		HouseID:     h.ID,
		ClientID:    c.ID,
		Source:      source,
		Amount:      amount,
		PaymentDate: today,
		ReceiptKey:  receipt,
		Actor:       actor,
	})
}

func (f *fixture) loadHouse(id uuid.UUID) *sales.House {
	f.t.Helper()
	h, err := f.registry.GetHouse(context.Background(), id)
	require.NoError(f.t, err)
	return h
}

func (f *fixture) loadClient(id uuid.UUID) *sales.Client {
	f.t.Helper()
	c, err := f.registry.GetClient(context.Background(), id)
	require.NoError(f.t, err)
	return c
}

// requireBalanced checks totalPaid + balanceDue == finalPrice and that the
// stored total matches the active payments.
func (f *fixture) requireBalanced(houseID uuid.UUID) {
	f.t.Helper()
	check, err := f.ledger.VerifyHouse(context.Background(), houseID)
	require.NoError(f.t, err)
	require.True(f.t, check.Consistent, "house %s drifted: recorded %s computed %s",
		houseID, check.RecordedPaid, check.ComputedPaid)
}

func (f *fixture) auditActions(clientID uuid.UUID) []sales.AuditAction {
	f.t.Helper()
	entries, err := f.registry.ListAudit(context.Background(), clientID, 0)
	require.NoError(f.t, err)
	actions := make([]sales.AuditAction, 0, len(entries))
	for _, e := range entries {
		actions = append(actions, e.Action)
	}
	return actions
}

// completed returns a valid completed state for key with every required
// document attached.
func completed(t *testing.T, key process.StepKey, d time.Time) process.StepState {
	t.Helper()
	def, ok := process.DefaultCatalog().Step(key)
	require.True(t, ok, "unknown step %s", key)
	ev := make(map[string]process.Evidence, len(def.RequiredEvidence))
	for _, r := range def.RequiredEvidence {
		ev[r.ID] = process.Evidence{URL: "https://files.test/" + string(key) + "/" + r.ID}
	}
	return process.StepState{Completed: true, CompletionDate: process.DatePtr(d), Evidence: ev}
}

// completeThrough saves every applicable manual step up to and including
// last, one day apart from the process start.
func (f *fixture) completeThrough(c *sales.Client, last process.StepKey) *appsales.ProcessView {
	f.t.Helper()
	draft := process.StepStates{}
	d := processStart
	for _, def := range process.DefaultCatalog().Steps() {
		if !def.IsApplicable(c.Plan) || def.IsAutomatic {
			continue
		}
		d = d.AddDate(0, 0, 1)
		draft[def.Key] = completed(f.t, def.Key, d)
		if def.Key == last {
			break
		}
	}
	view, err := f.process.SaveProcess(context.Background(), appsales.SaveProcessCommand{
		ClientID: c.ID,
		Steps:    draft,
		Actor:    actor,
	})
	require.NoError(f.t, err)
	return view
}

func assertAmount(t *testing.T, want, got decimal.Decimal, field string) {
	t.Helper()
	assert.Truef(t, want.Equal(got), "%s: want %s, got %s", field, want, got)
}

func detailsOf(t *testing.T, err error) map[string]string {
	t.Helper()
	var de *shared.DomainError
	require.True(t, errors.As(err, &de), "expected a domain error, got %v", err)
	return de.Details
}

// brokenAudit rejects every append.
type brokenAudit struct{}

func (brokenAudit) Append(context.Context, sales.AuditEntry) error {
	return errors.New("audit table is read-only")
}

type brokenAuditRepos struct {
	appsales.TransactionalRepositories
}

func (brokenAuditRepos) AuditRepo() sales.AuditTrail { return brokenAudit{} }

type brokenAuditScope struct {
	inner appsales.TransactionScope
}

func (s brokenAuditScope) Execute(ctx context.Context, fn func(appsales.TransactionalRepositories) error) error {
	return s.inner.Execute(ctx, func(repos appsales.TransactionalRepositories) error {
		return fn(brokenAuditRepos{repos})
	})
}

// vanishingScope hides one house from lookups, as if it was deleted
// between two reads of the same transaction.
type vanishingScope struct {
	inner appsales.TransactionScope
	house uuid.UUID
}

func (s *vanishingScope) Execute(ctx context.Context, fn func(appsales.TransactionalRepositories) error) error {
	return s.inner.Execute(ctx, func(repos appsales.TransactionalRepositories) error {
		return fn(vanishingRepos{TransactionalRepositories: repos, house: s.house})
	})
}

type vanishingRepos struct {
	appsales.TransactionalRepositories
	house uuid.UUID
}

func (r vanishingRepos) HouseRepo() sales.HouseRepository {
	return vanishingHouses{HouseRepository: r.TransactionalRepositories.HouseRepo(), id: r.house}
}

type vanishingHouses struct {
	sales.HouseRepository
	id uuid.UUID
}

func (h vanishingHouses) FindByID(ctx context.Context, id uuid.UUID) (*sales.House, error) {
	if h.id != uuid.Nil && id == h.id {
		return nil, shared.ErrNotFound.WithMessage("House not found")
	}
	return h.HouseRepository.FindByID(ctx, id)
}

// conflictingScope fails the next n executions with a concurrency
// conflict, as if another writer had committed first.
type conflictingScope struct {
	inner    appsales.TransactionScope
	failures int
	calls    int
}

func (s *conflictingScope) failNext(n int) {
	s.failures = n
	s.calls = 0
}

func (s *conflictingScope) Execute(ctx context.Context, fn func(appsales.TransactionalRepositories) error) error {
	s.calls++
	if s.calls <= s.failures {
		return shared.ErrConcurrencyConflict
	}
	return s.inner.Execute(ctx, fn)
}
