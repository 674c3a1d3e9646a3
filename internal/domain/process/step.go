package process

import "time"

// StepKey is the stable identifier of a step in the catalog.
type StepKey string

// Evidence is an uploaded document attached to a step.
type Evidence struct {
	URL        string    `json:"url"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// StepState is the persisted state of one step for one client. It is a
// value type: drafts are copies, and change detection is Equal.
type StepState struct {
	Completed        bool                `json:"completed"`
	CompletionDate   *time.Time          `json:"completion_date,omitempty"`
	Evidence         map[string]Evidence `json:"evidence,omitempty"`
	LastChangeReason string              `json:"last_change_reason,omitempty"`
	LastChangeDate   *time.Time          `json:"last_change_date,omitempty"`
	Archived         bool                `json:"archived,omitempty"`
}

// HasEvidence reports whether a non-empty evidence entry exists for id.
func (s StepState) HasEvidence(id string) bool {
	ev, ok := s.Evidence[id]
	return ok && ev.URL != ""
}

// Clone returns a deep copy of the state.
func (s StepState) Clone() StepState {
	c := s
	if s.CompletionDate != nil {
		d := *s.CompletionDate
		c.CompletionDate = &d
	}
	if s.LastChangeDate != nil {
		d := *s.LastChangeDate
		c.LastChangeDate = &d
	}
	if s.Evidence != nil {
		c.Evidence = make(map[string]Evidence, len(s.Evidence))
		for k, v := range s.Evidence {
			c.Evidence[k] = v
		}
	}
	return c
}

// Equal compares two states structurally. Dates compare by calendar day.
func (s StepState) Equal(o StepState) bool {
	if s.Completed != o.Completed || s.Archived != o.Archived || s.LastChangeReason != o.LastChangeReason {
		return false
	}
	if !sameDay(s.CompletionDate, o.CompletionDate) || !sameDay(s.LastChangeDate, o.LastChangeDate) {
		return false
	}
	if len(s.Evidence) != len(o.Evidence) {
		return false
	}
	for k, v := range s.Evidence {
		w, ok := o.Evidence[k]
		if !ok || v.URL != w.URL || !v.UploadedAt.Equal(w.UploadedAt) {
			return false
		}
	}
	return true
}

// StepStates maps step keys to their state for a single client.
type StepStates map[StepKey]StepState

// Get returns the state for key, or an empty state.
func (m StepStates) Get(key StepKey) StepState {
	if m == nil {
		return StepState{}
	}
	return m[key]
}

// Clone returns a deep copy.
func (m StepStates) Clone() StepStates {
	if m == nil {
		return nil
	}
	c := make(StepStates, len(m))
	for k, v := range m {
		c[k] = v.Clone()
	}
	return c
}

// Changed returns the keys whose state differs between m and other.
func (m StepStates) Changed(other StepStates) []StepKey {
	var keys []StepKey
	seen := make(map[StepKey]bool, len(m))
	for k, v := range m {
		seen[k] = true
		if !v.Equal(other.Get(k)) {
			keys = append(keys, k)
		}
	}
	for k, v := range other {
		if !seen[k] && !v.Equal(StepState{}) {
			keys = append(keys, k)
		}
	}
	return keys
}

// Day maps t to its calendar day. Step dates are calendar days stored as
// UTC midnight; the day is read in t's own location.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DatePtr returns a pointer to the calendar day of t.
func DatePtr(t time.Time) *time.Time {
	d := Day(t)
	return &d
}

func sameDay(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return Day(*a).Equal(Day(*b))
}
