package sales

import (
	"context"
	"strings"
	"time"

	"github.com/casaviva/backoffice/internal/domain/process"
	"github.com/casaviva/backoffice/internal/domain/sales"
	"github.com/casaviva/backoffice/internal/domain/shared"
	"github.com/casaviva/backoffice/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DefaultAuditLimit caps audit listings when no limit is given.
const DefaultAuditLimit = 200

// RegistryService creates houses and clients and serves the read models
// around them.
type RegistryService struct {
	*engine
}

// NewRegistryService creates a new RegistryService
func NewRegistryService(deps Dependencies) *RegistryService {
	return &RegistryService{engine: newEngine(deps)}
}

// CreateHouseCommand adds a house to the inventory.
type CreateHouseCommand struct {
	Code      string
	Project   string
	PriceBase decimal.Decimal
	Actor     string
}

// RegisterClientCommand registers a buyer on an available house.
type RegisterClientCommand struct {
	FullName       string
	DocumentNumber string
	Email          string
	Phone          string
	HouseID        uuid.UUID
	Plan           process.FinancialPlan
	// ProcessStartedAt defaults to today.
	ProcessStartedAt time.Time
	Actor            string
}

// CreateHouse creates an unassigned house with a unique code.
func (s *RegistryService) CreateHouse(ctx context.Context, cmd CreateHouseCommand) (*sales.House, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "registry", "create_house")
	defer span.End()

	if err := requireActor(cmd.Actor); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	house, err := sales.NewHouse(cmd.Code, cmd.Project, cmd.PriceBase)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	err = s.runner.run(ctx, "create_house", func(repos TransactionalRepositories) error {
		if _, err := repos.HouseRepo().FindByCode(ctx, house.Code); err == nil {
			return shared.ErrAlreadyExists.WithMessage("A house with code " + house.Code + " already exists")
		} else if !isNotFound(err) {
			return err
		}
		return repos.HouseRepo().Create(ctx, house)
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	telemetry.SetAttribute(span, telemetry.SpanAttrHouseID, house.ID.String())
	return house, nil
}

// RegisterClient creates a client holding an unassigned house under the
// given plan, and initialises the purchase process.
func (s *RegistryService) RegisterClient(ctx context.Context, cmd RegisterClientCommand) (*sales.Client, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "registry", "register_client")
	defer span.End()

	telemetry.SetAttribute(span, telemetry.SpanAttrHouseID, cmd.HouseID.String())

	if err := requireActor(cmd.Actor); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	started := cmd.ProcessStartedAt
	if started.IsZero() {
		started = s.today()
	}
	if process.Day(started).After(s.today()) {
		err := shared.NewValidationError("Invalid client", map[string]string{"process_started_at": "cannot be in the future"})
		telemetry.RecordError(span, err)
		return nil, err
	}

	var result *sales.Client
	err := s.runner.run(ctx, "register_client", func(repos TransactionalRepositories) error {
		now := s.now()
		client, err := sales.NewClient(cmd.FullName, cmd.DocumentNumber, started)
		if err != nil {
			return err
		}
		client.Email = strings.TrimSpace(cmd.Email)
		client.Phone = strings.TrimSpace(cmd.Phone)

		if _, err := repos.ClientRepo().FindByDocument(ctx, client.DocumentNumber); err == nil {
			return shared.ErrAlreadyExists.WithMessage("A client with document " + client.DocumentNumber + " already exists")
		} else if !isNotFound(err) {
			return err
		}
		house, err := repos.HouseRepo().FindByID(ctx, cmd.HouseID)
		if err != nil {
			return addressed(err)
		}
		if house.IsAssigned() {
			return sales.ErrHouseAlreadyAssigned
		}
		if err := cmd.Plan.Validate(house.FinalPrice); err != nil {
			return err
		}

		if err := client.StartProcess(s.catalog, house.ID, cmd.Plan, now); err != nil {
			return err
		}
		if err := house.Assign(client.ID, now); err != nil {
			return err
		}
		if err := repos.ClientRepo().Create(ctx, client); err != nil {
			return err
		}
		if err := saveHouse(ctx, repos, house); err != nil {
			return err
		}
		result = client
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	telemetry.SetAttribute(span, telemetry.SpanAttrClientID, result.ID.String())
	return result, nil
}

// GetHouse returns a house by ID.
func (s *RegistryService) GetHouse(ctx context.Context, id uuid.UUID) (*sales.House, error) {
	var house *sales.House
	err := s.read(ctx, "get_house", func(repos TransactionalRepositories) error {
		var err error
		house, err = repos.HouseRepo().FindByID(ctx, id)
		return err
	})
	return house, err
}

// ListHouses lists houses, optionally only the unassigned ones.
func (s *RegistryService) ListHouses(ctx context.Context, onlyAvailable bool) ([]sales.House, error) {
	var houses []sales.House
	err := s.read(ctx, "list_houses", func(repos TransactionalRepositories) error {
		var err error
		houses, err = repos.HouseRepo().List(ctx, onlyAvailable)
		return err
	})
	return houses, err
}

// GetClient returns a client by ID.
func (s *RegistryService) GetClient(ctx context.Context, id uuid.UUID) (*sales.Client, error) {
	var client *sales.Client
	err := s.read(ctx, "get_client", func(repos TransactionalRepositories) error {
		var err error
		client, err = repos.ClientRepo().FindByID(ctx, id)
		return err
	})
	return client, err
}

// ListClients lists clients, optionally filtered by status.
func (s *RegistryService) ListClients(ctx context.Context, status sales.ClientStatus) ([]sales.Client, error) {
	var clients []sales.Client
	err := s.read(ctx, "list_clients", func(repos TransactionalRepositories) error {
		var err error
		clients, err = repos.ClientRepo().List(ctx, status)
		return err
	})
	return clients, err
}

// ListPayments lists every payment of a client, newest first.
func (s *RegistryService) ListPayments(ctx context.Context, clientID uuid.UUID) ([]sales.Payment, error) {
	var payments []sales.Payment
	err := s.read(ctx, "list_payments", func(repos TransactionalRepositories) error {
		if _, err := repos.ClientRepo().FindByID(ctx, clientID); err != nil {
			return err
		}
		var err error
		payments, err = repos.PaymentRepo().ListByClient(ctx, clientID)
		return err
	})
	return payments, err
}

// GetPayment returns a payment by ID.
func (s *RegistryService) GetPayment(ctx context.Context, id uuid.UUID) (*sales.Payment, error) {
	var payment *sales.Payment
	err := s.read(ctx, "get_payment", func(repos TransactionalRepositories) error {
		var err error
		payment, err = repos.PaymentRepo().FindByID(ctx, id)
		return err
	})
	return payment, err
}

// ListAudit returns the latest audit entries of a client.
func (s *RegistryService) ListAudit(ctx context.Context, clientID uuid.UUID, limit int) ([]sales.AuditEntry, error) {
	if limit <= 0 || limit > DefaultAuditLimit {
		limit = DefaultAuditLimit
	}
	var entries []sales.AuditEntry
	err := s.read(ctx, "list_audit", func(repos TransactionalRepositories) error {
		reader, ok := repos.AuditRepo().(sales.AuditRepository)
		if !ok {
			return nil
		}
		var err error
		entries, err = reader.ListByClient(ctx, clientID, limit)
		return err
	})
	return entries, err
}

// GetRenunciation returns a renunciation record by ID.
func (s *RegistryService) GetRenunciation(ctx context.Context, id uuid.UUID) (*sales.Renunciation, error) {
	var record *sales.Renunciation
	err := s.read(ctx, "get_renunciation", func(repos TransactionalRepositories) error {
		var err error
		record, err = repos.RenunciationRepo().FindByID(ctx, id)
		return err
	})
	return record, err
}

// ListRenunciations lists the renunciation records of a client.
func (s *RegistryService) ListRenunciations(ctx context.Context, clientID uuid.UUID) ([]sales.Renunciation, error) {
	var records []sales.Renunciation
	err := s.read(ctx, "list_renunciations", func(repos TransactionalRepositories) error {
		var err error
		records, err = repos.RenunciationRepo().ListByClient(ctx, clientID)
		return err
	})
	return records, err
}
