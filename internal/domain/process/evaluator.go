package process

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Field keys used in StepView.Errors.
const (
	FieldCompletionDate = "completion_date"
	FieldEvidencePrefix = "evidence."
)

// Validation messages.
const (
	MsgMissingEvidence   = "missing evidence"
	MsgDateRequired      = "date required"
	MsgDateInFuture      = "date cannot be in the future"
	MsgDatePrecedesPrior = "date precedes prior step"
)

// Input is the snapshot the evaluator derives step state from.
type Input struct {
	Plan FinancialPlan
	// Steps is the state being looked at, usually an unsaved draft.
	Steps StepStates
	// Persisted is the last saved snapshot. Nil means Steps is the saved state.
	Persisted    StepStates
	BalanceDue   decimal.Decimal
	ProcessStart time.Time
	Today        time.Time
}

// StepView is the derived, renderable state of one applicable step.
type StepView struct {
	Definition        StepDefinition    `json:"definition"`
	Position          int               `json:"position"`
	State             StepState         `json:"state"`
	Locked            bool              `json:"locked"`
	DependencyLocked  bool              `json:"dependency_locked"`
	PermanentlyLocked bool              `json:"permanently_locked"`
	IsNext            bool              `json:"is_next"`
	Reopened          bool              `json:"reopened"`
	Errors            map[string]string `json:"errors,omitempty"`
	MinDate           time.Time         `json:"min_date"`
	MaxDate           time.Time         `json:"max_date"`
}

// Key returns the step key.
func (v StepView) Key() StepKey { return v.Definition.Key }

// Valid reports whether the step is completed without validation errors.
func (v StepView) Valid() bool {
	return v.State.Completed && len(v.Errors) == 0
}

// Evaluation is the evaluator's output for one client.
type Evaluation struct {
	Steps              []StepView `json:"steps"`
	CompletedCount     int        `json:"completed_count"`
	TotalApplicable    int        `json:"total_applicable"`
	HasAnyReopenedStep bool       `json:"has_any_reopened_step"`
	IsProcessComplete  bool       `json:"is_process_complete"`
}

// Step returns the view for key if the step is applicable.
func (e Evaluation) Step(key StepKey) (StepView, bool) {
	for _, v := range e.Steps {
		if v.Definition.Key == key {
			return v, true
		}
	}
	return StepView{}, false
}

// NextStep returns the step flagged as next, if any.
func (e Evaluation) NextStep() (StepView, bool) {
	for _, v := range e.Steps {
		if v.IsNext {
			return v, true
		}
	}
	return StepView{}, false
}

// HasErrors reports whether any step carries a validation error.
func (e Evaluation) HasErrors() bool {
	for _, v := range e.Steps {
		if len(v.Errors) > 0 {
			return true
		}
	}
	return false
}

// Evaluate derives applicability, validation errors, locks, the next step
// and date bounds for every step of c. It has no side effects and never
// fails; problems are reported per step in StepView.Errors.
func Evaluate(c *Catalog, in Input) Evaluation {
	today := Day(in.Today)
	start := Day(in.ProcessStart)
	persisted := in.Persisted
	if persisted == nil {
		persisted = in.Steps
	}

	views := make([]StepView, 0, len(c.steps))
	pos := make(map[StepKey]int, len(c.steps))
	for i, def := range c.steps {
		if !def.IsApplicable(in.Plan) {
			continue
		}
		pos[def.Key] = len(views)
		views = append(views, StepView{
			Definition: def,
			Position:   i,
			State:      in.Steps.Get(def.Key).Clone(),
			MaxDate:    today,
		})
	}

	latestOther := start
	for _, v := range views {
		if v.Definition.Key == c.invoice || !v.State.Completed || v.State.CompletionDate == nil {
			continue
		}
		if d := Day(*v.State.CompletionDate); d.After(latestOther) {
			latestOther = d
		}
	}

	// Dates and validation, in catalog order.
	floor := start
	validDate := make(map[StepKey]time.Time, len(views))
	for i := range views {
		v := &views[i]
		key := v.Definition.Key

		minDate := floor
		if _, ok := c.requests[key]; ok {
			if d, ok := validDate[c.anchor]; ok {
				minDate = d
			}
		}
		if f, ok := c.disburse[key]; ok {
			if d, ok := validDate[f.RequestStep]; ok {
				minDate = d
			}
		}
		if key == c.invoice {
			minDate = latestOther
		}
		v.MinDate = minDate

		if !v.State.Completed {
			continue
		}
		errs := validateCompleted(v.Definition, v.State, minDate, today)
		if len(errs) > 0 {
			v.Errors = errs
			continue
		}
		d := Day(*v.State.CompletionDate)
		validDate[key] = d
		if d.After(floor) {
			floor = d
		}
	}

	isValid := func(key StepKey) bool {
		i, ok := pos[key]
		return ok && views[i].Valid()
	}

	permanentUpTo := -1
	for i, v := range views {
		if v.Definition.IsMilestone && v.Valid() {
			permanentUpTo = i
		}
	}

	// Locks.
	for i := range views {
		v := &views[i]
		key := v.Definition.Key
		var unlocked bool
		switch {
		case key == c.invoice:
			unlocked = in.BalanceDue.LessThanOrEqual(decimal.Zero)
			for j := range views {
				if j != i && !views[j].Valid() {
					unlocked = false
					break
				}
			}
		case c.isRequest(key):
			unlocked = isValid(c.anchor)
		case c.isDisbursement(key):
			unlocked = isValid(c.disburse[key].RequestStep)
		default:
			unlocked = true
			for j := 0; j < i; j++ {
				if !views[j].Definition.IsAutomatic && !views[j].Valid() {
					unlocked = false
					break
				}
			}
		}
		v.DependencyLocked = !unlocked
		v.PermanentlyLocked = i <= permanentUpTo
		v.Locked = v.DependencyLocked || v.PermanentlyLocked
	}

	out := Evaluation{Steps: views, TotalApplicable: len(views)}
	nextSet := false
	for i := range views {
		v := &views[i]
		if !nextSet && !v.Locked && !v.State.Completed {
			v.IsNext = true
			nextSet = true
		}
		if persisted.Get(v.Definition.Key).Completed && !v.State.Completed {
			v.Reopened = true
			out.HasAnyReopenedStep = true
		}
		if v.Valid() {
			out.CompletedCount++
		}
	}
	out.IsProcessComplete = out.TotalApplicable > 0 && out.CompletedCount == out.TotalApplicable
	return out
}

func validateCompleted(def StepDefinition, st StepState, minDate, today time.Time) map[string]string {
	errs := make(map[string]string)
	for _, ev := range def.RequiredEvidence {
		if !st.HasEvidence(ev.ID) {
			errs[FieldEvidencePrefix+ev.ID] = fmt.Sprintf("%s: %s", MsgMissingEvidence, ev.Label)
		}
	}
	switch {
	case st.CompletionDate == nil:
		errs[FieldCompletionDate] = MsgDateRequired
	case Day(*st.CompletionDate).After(today):
		errs[FieldCompletionDate] = MsgDateInFuture
	case Day(*st.CompletionDate).Before(minDate):
		errs[FieldCompletionDate] = MsgDatePrecedesPrior
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}

func (c *Catalog) isRequest(key StepKey) bool {
	_, ok := c.requests[key]
	return ok
}

func (c *Catalog) isDisbursement(key StepKey) bool {
	_, ok := c.disburse[key]
	return ok
}
