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
	"go.uber.org/zap"
)

// Dependencies wires the collaborators shared by the sales services.
// Scope and Catalog are required; everything else has a usable default.
type Dependencies struct {
	Scope       TransactionScope
	Catalog     *process.Catalog
	Evidence    EvidenceResolver
	Idempotency shared.IdempotencyStore
	Metrics     *telemetry.LedgerMetrics
	Logger      *zap.Logger
	Retry       RetryPolicy
	// IdempotencyTTL is how long a payment idempotency key is remembered.
	IdempotencyTTL time.Duration
	// Location is where "today" is read for date validation.
	Location *time.Location
	// Locale formats audit messages, e.g. "es-CO".
	Locale string
	Clock  func() time.Time
}

// engine holds what every sales service needs: the atomic runner, the
// catalog, the clock and the audit sink policy.
type engine struct {
	scope          TransactionScope
	runner         *atomicRunner
	catalog        *process.Catalog
	evidence       EvidenceResolver
	idempotency    shared.IdempotencyStore
	idempotencyTTL time.Duration
	metrics        *telemetry.LedgerMetrics
	logger         *zap.Logger
	location       *time.Location
	clock          func() time.Time
	messages       *auditMessages
}

func newEngine(d Dependencies) *engine {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Clock == nil {
		d.Clock = time.Now
	}
	if d.Location == nil {
		d.Location = time.UTC
	}
	if d.Retry == (RetryPolicy{}) {
		d.Retry = DefaultRetryPolicy()
	}
	if d.IdempotencyTTL <= 0 {
		d.IdempotencyTTL = shared.DefaultIdempotencyTTL
	}
	return &engine{
		scope: d.Scope,
		runner: &atomicRunner{
			scope:   d.Scope,
			policy:  d.Retry,
			logger:  d.Logger,
			metrics: d.Metrics,
		},
		catalog:        d.Catalog,
		evidence:       d.Evidence,
		idempotency:    d.Idempotency,
		idempotencyTTL: d.IdempotencyTTL,
		metrics:        d.Metrics,
		logger:         d.Logger,
		location:       d.Location,
		clock:          d.Clock,
		messages:       newAuditMessages(d.Locale),
	}
}

func (e *engine) now() time.Time {
	return e.clock().UTC()
}

// today is the current calendar day in the configured location.
func (e *engine) today() time.Time {
	return process.Day(e.clock().In(e.location))
}

// read runs fn in a transaction without retries. Missing records stay
// shared.ErrNotFound.
func (e *engine) read(ctx context.Context, operation string, fn func(repos TransactionalRepositories) error) error {
	ctx, span := telemetry.StartServiceSpan(ctx, "sales", operation)
	defer span.End()
	if err := e.scope.Execute(ctx, fn); err != nil {
		telemetry.RecordError(span, err)
		return err
	}
	return nil
}

// appendAudit writes an audit entry. Failures are logged and swallowed.
func (e *engine) appendAudit(ctx context.Context, repos TransactionalRepositories, entry sales.AuditEntry) {
	if err := repos.AuditRepo().Append(ctx, entry); err != nil {
		e.metrics.RecordAuditFailure(ctx, string(entry.Action))
		logger.FromContext(ctx, e.logger).Warn("Failed to append audit entry",
			zap.String("action", string(entry.Action)),
			zap.String("client_id", entry.ClientID.String()),
			zap.String("step_key", entry.StepKey),
			zap.Error(err),
		)
	}
}

func (e *engine) evaluate(client *sales.Client, house *sales.House, persisted process.StepStates) process.Evaluation {
	return process.Evaluate(e.catalog, process.Input{
		Plan:         client.Plan,
		Steps:        client.Steps,
		Persisted:    persisted,
		BalanceDue:   house.BalanceDue,
		ProcessStart: client.ProcessStartedAt,
		Today:        e.today(),
	})
}

// saleClosed reports whether the client's final invoice step is completed.
func (e *engine) saleClosed(client *sales.Client) bool {
	return client.Steps.Get(e.catalog.InvoiceStep()).Completed
}

func (e *engine) stepLabel(key process.StepKey) string {
	if def, ok := e.catalog.Step(key); ok {
		return def.Label
	}
	return string(key)
}

// loadAssignment reads a house and the active client holding it.
func loadAssignment(ctx context.Context, repos TransactionalRepositories, houseID, clientID uuid.UUID) (*sales.House, *sales.Client, error) {
	house, err := repos.HouseRepo().FindByID(ctx, houseID)
	if err != nil {
		return nil, nil, err
	}
	client, err := repos.ClientRepo().FindByID(ctx, clientID)
	if err != nil {
		return nil, nil, err
	}
	if !client.IsActive() {
		return nil, nil, sales.ErrClientNotActive
	}
	if !house.IsAssignedTo(client.ID) || client.HouseID == nil || *client.HouseID != house.ID {
		return nil, nil, sales.ErrClientNotAssigned
	}
	return house, client, nil
}

// saveHouse checks the balance invariant before writing the house.
func saveHouse(ctx context.Context, repos TransactionalRepositories, house *sales.House) error {
	if err := house.CheckLedger(); err != nil {
		return err
	}
	return repos.HouseRepo().SaveWithLock(ctx, house)
}

// ensureNoActivePayment fails if the client already has an active payment
// for source other than except.
func ensureNoActivePayment(ctx context.Context, repos TransactionalRepositories, clientID uuid.UUID, source process.FundingSource, except uuid.UUID) error {
	active, err := repos.PaymentRepo().FindActiveBySource(ctx, clientID, source)
	if err != nil {
		return err
	}
	for _, p := range active {
		if p.ID != except {
			return sales.ErrDuplicateActiveDisbursement.WithMessage(fmt.Sprintf(
				"Payment %s is already active for source %s", p.ID, source))
		}
	}
	return nil
}

func requireActor(actor string) error {
	if strings.TrimSpace(actor) == "" {
		return shared.NewValidationError("Actor name is required", map[string]string{"actor": "required"})
	}
	return nil
}

func isNotFound(err error) bool {
	return errors.Is(err, shared.ErrNotFound)
}
