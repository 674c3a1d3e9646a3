package sales

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/casaviva/backoffice/internal/domain/process"
	"github.com/casaviva/backoffice/internal/domain/sales"
	"github.com/casaviva/backoffice/internal/domain/shared"
	"github.com/casaviva/backoffice/internal/infrastructure/telemetry"
	"github.com/google/uuid"
)

// ProcessService reads and edits a client's purchase process. Manual step
// edits go through SaveProcess, which is the only place the reopening and
// lock rules are enforced on write.
type ProcessService struct {
	*engine
}

// NewProcessService creates a new ProcessService
func NewProcessService(deps Dependencies) *ProcessService {
	return &ProcessService{engine: newEngine(deps)}
}

// ProcessView is the evaluated process of a client.
type ProcessView struct {
	ClientID   uuid.UUID             `json:"client_id"`
	HouseID    uuid.UUID             `json:"house_id"`
	Evaluation process.Evaluation    `json:"evaluation"`
	Save       *process.SaveCheck    `json:"save,omitempty"`
	Plan       process.FinancialPlan `json:"plan"`
	Steps      process.StepStates    `json:"steps"`
}

// SaveProcessCommand submits a draft of step states. Only steps present in
// Steps are considered edited. Reasons is required for every step that was
// completed before and is being changed.
type SaveProcessCommand struct {
	ClientID uuid.UUID
	Steps    process.StepStates
	Reasons  map[process.StepKey]string
	Actor    string
}

// UpdatePlanCommand replaces a client's financial plan.
type UpdatePlanCommand struct {
	ClientID uuid.UUID
	Plan     process.FinancialPlan
	Actor    string
}

// Evaluate returns the evaluation of the client's saved process.
func (s *ProcessService) Evaluate(ctx context.Context, clientID uuid.UUID) (*ProcessView, error) {
	var view *ProcessView
	err := s.read(ctx, "evaluate_process", func(repos TransactionalRepositories) error {
		house, client, err := s.loadProcess(ctx, repos, clientID)
		if err != nil {
			return err
		}
		view = &ProcessView{
			ClientID:   client.ID,
			HouseID:    house.ID,
			Evaluation: s.evaluate(client, house, nil),
			Plan:       client.Plan,
			Steps:      client.Steps,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

// EvaluateDraft evaluates unsaved edits against the saved process and
// reports whether they could be saved. Nothing is written.
func (s *ProcessService) EvaluateDraft(ctx context.Context, clientID uuid.UUID, draft process.StepStates) (*ProcessView, error) {
	var view *ProcessView
	err := s.read(ctx, "evaluate_draft", func(repos TransactionalRepositories) error {
		house, client, err := s.loadProcess(ctx, repos, clientID)
		if err != nil {
			return err
		}
		persisted := client.Steps
		merged, _ := s.mergeDraft(client, draft)
		draftClient := *client
		draftClient.Steps = merged
		ev := s.evaluate(&draftClient, house, persisted)
		check := process.CheckSave(ev, merged, persisted)
		view = &ProcessView{
			ClientID:   client.ID,
			HouseID:    house.ID,
			Evaluation: ev,
			Save:       &check,
			Plan:       client.Plan,
			Steps:      merged,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

// SaveProcess validates a draft against the saved process inside a
// transaction and stores it. Automatic steps belong to the ledger and
// cannot be edited here. Locked and permanently locked steps cannot be
// edited, and a half-finished reopening cannot be saved.
func (s *ProcessService) SaveProcess(ctx context.Context, cmd SaveProcessCommand) (*ProcessView, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "process", "save")
	defer span.End()

	telemetry.SetAttribute(span, telemetry.SpanAttrClientID, cmd.ClientID.String())

	if err := requireActor(cmd.Actor); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	var view *ProcessView
	err := s.runner.run(ctx, "save_process", func(repos TransactionalRepositories) error {
		now := s.now()
		house, client, err := s.loadProcess(ctx, repos, cmd.ClientID)
		if err != nil {
			return err
		}
		if s.saleClosed(client) {
			return sales.ErrProcessAlreadyClosed
		}

		persisted := client.Steps.Clone()
		merged, details := s.mergeDraft(client, cmd.Steps)
		draftClient := *client
		draftClient.Steps = merged
		before := s.evaluate(client, house, nil)
		ev := s.evaluate(&draftClient, house, persisted)

		changed := merged.Changed(persisted)
		sort.Slice(changed, func(i, j int) bool {
			return s.catalog.Position(changed[i]) < s.catalog.Position(changed[j])
		})
		for _, key := range changed {
			field := "steps." + string(key)
			def, _ := s.catalog.Step(key)
			prior, _ := before.Step(key)
			current, _ := ev.Step(key)
			switch {
			case def.IsAutomatic:
				details[field] = "updated automatically by payments"
			case prior.PermanentlyLocked:
				details[field] = "permanently locked by a completed milestone"
			case current.DependencyLocked:
				details[field] = "locked until the previous steps are completed"
			case persisted.Get(key).Completed && strings.TrimSpace(cmd.Reasons[key]) == "":
				details["reasons."+string(key)] = "required to modify a completed step"
			}
		}
		if len(details) > 0 {
			return shared.NewValidationError("Some steps cannot be edited", details)
		}

		check := process.CheckSave(ev, merged, persisted)
		if !check.Allowed {
			blocked := make(map[string]string, len(check.Steps)+1)
			blocked["process"] = string(check.Reason)
			for _, key := range check.Steps {
				if v, ok := ev.Step(key); ok && len(v.Errors) > 0 {
					for f, msg := range v.Errors {
						blocked["steps."+string(key)+"."+f] = msg
					}
					continue
				}
				blocked["steps."+string(key)] = string(check.Reason)
			}
			return shared.NewValidationError(fmt.Sprintf("The process cannot be saved: %s", check.Reason), blocked)
		}

		type edit struct {
			key    process.StepKey
			action sales.AuditAction
			reason string
		}
		edits := make([]edit, 0, len(changed))
		for _, key := range changed {
			st := merged.Get(key)
			if persisted.Get(key).Completed {
				reason := strings.TrimSpace(cmd.Reasons[key])
				st.LastChangeReason = reason
				st.LastChangeDate = process.DatePtr(now)
				merged[key] = st
				edits = append(edits, edit{key: key, action: sales.AuditStepModified, reason: reason})
				continue
			}
			edits = append(edits, edit{key: key, action: sales.AuditStepCompleted})
		}

		client.ReplaceSteps(merged, now)
		if err := repos.ClientRepo().SaveWithLock(ctx, client); err != nil {
			return err
		}
		for _, e := range edits {
			label := s.stepLabel(e.key)
			msg := s.messages.stepCompleted(label)
			if e.action == sales.AuditStepModified {
				msg = s.messages.stepModified(label, e.reason)
			}
			s.appendAudit(ctx, repos, sales.NewAuditEntry(client.ID, &house.ID, string(e.key), e.action, msg, cmd.Actor, now))
		}

		view = &ProcessView{
			ClientID:   client.ID,
			HouseID:    house.ID,
			Evaluation: s.evaluate(client, house, nil),
			Plan:       client.Plan,
			Steps:      client.Steps,
		}
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	return view, nil
}

// mergeDraft lays the submitted step states over the saved ones. Fields the
// server owns (change reason and date, archival) are kept from the saved
// state, and evidence upload times are preserved for unchanged URLs. Keys
// that are unknown or not applicable are reported in the returned details.
func (s *ProcessService) mergeDraft(client *sales.Client, draft process.StepStates) (process.StepStates, map[string]string) {
	now := s.now()
	details := make(map[string]string)
	merged := client.Steps.Clone()
	for key, st := range draft {
		def, ok := s.catalog.Step(key)
		if !ok {
			details["steps."+string(key)] = "unknown step"
			continue
		}
		saved := client.Steps.Get(key)
		if !def.IsApplicable(client.Plan) || saved.Archived {
			details["steps."+string(key)] = "not applicable to the financial plan"
			continue
		}
		next := st.Clone()
		next.LastChangeReason = saved.LastChangeReason
		next.LastChangeDate = saved.LastChangeDate
		next.Archived = false
		if next.CompletionDate != nil {
			next.CompletionDate = process.DatePtr(*next.CompletionDate)
		}
		for id, ev := range next.Evidence {
			if old, ok := saved.Evidence[id]; ok && old.URL == ev.URL {
				ev.UploadedAt = old.UploadedAt
			} else if ev.UploadedAt.IsZero() {
				ev.UploadedAt = now
			}
			next.Evidence[id] = ev
		}
		merged[key] = next
	}
	return merged, details
}

// UpdateFinancialPlan replaces the client's plan. The plan must add up to
// the house final price, and a source that still has active payments
// cannot be dropped. Step states follow the new plan: newly applicable
// steps are created, inapplicable ones archived, returning ones restored.
func (s *ProcessService) UpdateFinancialPlan(ctx context.Context, cmd UpdatePlanCommand) (*ProcessView, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "process", "update_plan")
	defer span.End()

	telemetry.SetAttribute(span, telemetry.SpanAttrClientID, cmd.ClientID.String())

	if err := requireActor(cmd.Actor); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	var view *ProcessView
	err := s.runner.run(ctx, "update_plan", func(repos TransactionalRepositories) error {
		now := s.now()
		house, client, err := s.loadProcess(ctx, repos, cmd.ClientID)
		if err != nil {
			return err
		}
		if s.saleClosed(client) {
			return sales.ErrProcessAlreadyClosed
		}
		if err := cmd.Plan.Validate(house.FinalPrice); err != nil {
			return err
		}

		for _, src := range client.Plan.AppliedSources() {
			if cmd.Plan.Applies(src) {
				continue
			}
			active, err := repos.PaymentRepo().FindActiveBySource(ctx, client.ID, src)
			if err != nil {
				return err
			}
			if len(active) > 0 {
				return sales.ErrSourceHasActivePayments.WithMessage(fmt.Sprintf(
					"Source %s still has %d active payment(s)", src, len(active)))
			}
		}

		if !client.Plan.Equal(cmd.Plan) {
			changes := client.ChangePlan(s.catalog, cmd.Plan, now)
			if err := repos.ClientRepo().SaveWithLock(ctx, client); err != nil {
				return err
			}
			s.appendAudit(ctx, repos, sales.NewAuditEntry(client.ID, &house.ID, "", sales.AuditPlanChanged,
				s.messages.planChanged(client.Plan.Total()), cmd.Actor, now))
			for _, ch := range changes {
				label := s.stepLabel(ch.Step)
				switch ch.Action {
				case process.ActionArchived:
					s.appendAudit(ctx, repos, sales.NewAuditEntry(client.ID, &house.ID, string(ch.Step), sales.AuditStepArchived,
						s.messages.stepArchived(label), cmd.Actor, now))
				case process.ActionRestored:
					s.appendAudit(ctx, repos, sales.NewAuditEntry(client.ID, &house.ID, string(ch.Step), sales.AuditStepRestored,
						s.messages.stepUnarchived(label), cmd.Actor, now))
				}
			}
		}

		view = &ProcessView{
			ClientID:   client.ID,
			HouseID:    house.ID,
			Evaluation: s.evaluate(client, house, nil),
			Plan:       client.Plan,
			Steps:      client.Steps,
		}
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	return view, nil
}

// loadProcess reads an active client and the house it holds.
func (s *ProcessService) loadProcess(ctx context.Context, repos TransactionalRepositories, clientID uuid.UUID) (*sales.House, *sales.Client, error) {
	client, err := repos.ClientRepo().FindByID(ctx, clientID)
	if err != nil {
		return nil, nil, addressed(err)
	}
	if client.HouseID == nil {
		return nil, nil, sales.ErrClientNotAssigned.WithMessage("The client does not hold a house")
	}
	return loadAssignment(ctx, repos, *client.HouseID, client.ID)
}
