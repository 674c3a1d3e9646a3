package process

// SaveBlock names why a process draft cannot be saved.
type SaveBlock string

const (
	BlockNone             SaveBlock = ""
	BlockValidationErrors SaveBlock = "validation_errors"
	BlockReopenedStep     SaveBlock = "reopened_step"
	BlockIncompleteEdits  SaveBlock = "incomplete_edits"
	BlockNoChanges        SaveBlock = "no_changes"
)

// SaveCheck is the outcome of CheckSave.
type SaveCheck struct {
	Allowed bool      `json:"allowed"`
	Reason  SaveBlock `json:"reason,omitempty"`
	Steps   []StepKey `json:"steps,omitempty"`
}

// CheckSave decides whether draft may replace persisted. ev must be the
// evaluation of draft with persisted as its saved snapshot.
//
// A draft is rejected when any step has a validation error, when a step
// that was completed is no longer completed, when a step that is not
// completed carries unsaved edits, or when nothing changed.
func CheckSave(ev Evaluation, draft, persisted StepStates) SaveCheck {
	var blocked []StepKey
	for _, v := range ev.Steps {
		if len(v.Errors) > 0 {
			blocked = append(blocked, v.Key())
		}
	}
	if len(blocked) > 0 {
		return SaveCheck{Reason: BlockValidationErrors, Steps: blocked}
	}

	for _, v := range ev.Steps {
		if v.Reopened {
			blocked = append(blocked, v.Key())
		}
	}
	if len(blocked) > 0 {
		return SaveCheck{Reason: BlockReopenedStep, Steps: blocked}
	}

	changed := make(map[StepKey]bool)
	for _, k := range draft.Changed(persisted) {
		changed[k] = true
	}
	for _, v := range ev.Steps {
		if changed[v.Key()] && !draft.Get(v.Key()).Completed {
			blocked = append(blocked, v.Key())
		}
	}
	if len(blocked) > 0 {
		return SaveCheck{Reason: BlockIncompleteEdits, Steps: blocked}
	}

	if len(changed) == 0 {
		return SaveCheck{Reason: BlockNoChanges}
	}
	return SaveCheck{Allowed: true}
}
