package process

// ReconcileAction describes what Reconcile did to a step state.
type ReconcileAction string

const (
	ActionCreated  ReconcileAction = "created"
	ActionArchived ReconcileAction = "archived"
	ActionRestored ReconcileAction = "restored"
)

// ReconcileChange is one state transition made by Reconcile.
type ReconcileChange struct {
	Step   StepKey         `json:"step"`
	Action ReconcileAction `json:"action"`
}

// Reconcile brings step states in line with plan: steps that became
// applicable get an empty state or are un-archived, steps that stopped
// applying are archived. States are never deleted. The input is not
// modified.
func Reconcile(c *Catalog, plan FinancialPlan, states StepStates) (StepStates, []ReconcileChange) {
	out := states.Clone()
	if out == nil {
		out = make(StepStates, len(c.steps))
	}
	var changes []ReconcileChange
	for _, def := range c.steps {
		st, exists := out[def.Key]
		switch applicable := def.IsApplicable(plan); {
		case applicable && !exists:
			out[def.Key] = StepState{}
			changes = append(changes, ReconcileChange{Step: def.Key, Action: ActionCreated})
		case applicable && st.Archived:
			st.Archived = false
			out[def.Key] = st
			changes = append(changes, ReconcileChange{Step: def.Key, Action: ActionRestored})
		case !applicable && exists && !st.Archived:
			st.Archived = true
			out[def.Key] = st
			changes = append(changes, ReconcileChange{Step: def.Key, Action: ActionArchived})
		}
	}
	return out, changes
}

// InitialStates returns the empty states for a brand-new process.
func InitialStates(c *Catalog, plan FinancialPlan) StepStates {
	out, _ := Reconcile(c, plan, nil)
	return out
}
