package template

import (
	"errors"
	"fmt"
)

// Status describes whether a template may be used to start new sessions.
type Status string

const (
	StatusActive  Status = "active"
	StatusDraft   Status = "draft"
	StatusRetired Status = "retired"
)

// ErrNotActive is returned when a session is started against a template
// whose status is not "active".
var ErrNotActive = errors.New("template is not active")

// Expected answer types for a Question.
const (
	TypeString = "string"
	TypeNumber = "number"
	TypeBool   = "bool"
	TypeList   = "list"
)

// Template is an immutable-per-version interview definition: ordered phases,
// each with ordered questions, plus the criteria that decide when a session
// counts as complete. Templates are referenced by ID from sessions and are
// never mutated by the interview runner.
type Template struct {
	ID            string             `json:"id"`
	Name          string             `json:"name"`
	Description   string             `json:"description,omitempty"`
	Status        Status             `json:"status"`
	Phases        []Phase            `json:"phases"`
	Completion    CompletionCriteria `json:"completion"`
	FollowUpDepth int                `json:"follow_up_depth,omitempty"` // per-question follow-up budget; 0 means default
}

// Phase is an ordered, optionally-skippable group of questions.
type Phase struct {
	ID               string         `json:"id"`
	Name             string         `json:"name"`
	Required         bool           `json:"required"`
	Questions        []Question     `json:"questions"`
	Skip             *SkipCondition `json:"skip,omitempty"`
	EstimatedMinutes int            `json:"estimated_minutes,omitempty"`
}

// Question is a single prompt within a phase. Its answer is stored under
// ExtractionField in the session's extracted data.
type Question struct {
	ID              string           `json:"id"`
	Prompt          string           `json:"prompt"`
	ExpectedType    string           `json:"expected_type"` // "string", "number", "bool", "list"
	ExtractionField string           `json:"extraction_field"`
	Required        bool             `json:"required"`
	Validation      []ValidationRule `json:"validation,omitempty"`
	FollowUps       []string         `json:"follow_ups,omitempty"`
}

// ValidationRule is an optional constraint on an extracted value.
type ValidationRule struct {
	Kind  string `json:"kind"` // "min_length", "max_length", "one_of"
	Value any    `json:"value"`
}

// SkipCondition decides whether a phase should be skipped given the data
// collected so far. An unknown operator never skips.
type SkipCondition struct {
	Field    string `json:"field"`
	Operator string `json:"operator"` // equals, contains, not_empty, empty, greater_than, less_than
	Value    any    `json:"value,omitempty"`
}

// CompletionCriteria gates session completion: a minimum number of completed
// phases plus a set of phase IDs that must all be completed.
type CompletionCriteria struct {
	MinPhasesCompleted int      `json:"min_phases_completed"`
	RequiredPhaseIDs   []string `json:"required_phase_ids,omitempty"`
}

// DefaultFollowUpDepth is the per-question follow-up budget used when a
// template does not set its own.
const DefaultFollowUpDepth = 1

// FollowUpBudget returns the effective per-question follow-up budget.
func (t *Template) FollowUpBudget() int {
	if t.FollowUpDepth > 0 {
		return t.FollowUpDepth
	}
	return DefaultFollowUpDepth
}

// TotalQuestions counts questions across all phases.
func (t *Template) TotalQuestions() int {
	n := 0
	for _, p := range t.Phases {
		n += len(p.Questions)
	}
	return n
}

// FindPhase returns the phase with the given ID, or nil.
func (t *Template) FindPhase(id string) *Phase {
	for i := range t.Phases {
		if t.Phases[i].ID == id {
			return &t.Phases[i]
		}
	}
	return nil
}

// PhaseName returns the display name for a phase ID, falling back to the ID
// itself when the phase is unknown.
func (t *Template) PhaseName(id string) string {
	if p := t.FindPhase(id); p != nil && p.Name != "" {
		return p.Name
	}
	return id
}

// Validate checks structural invariants: at least one phase, unique phase and
// question IDs, and every question carrying an extraction field.
func (t *Template) Validate() error {
	if t.ID == "" {
		return errors.New("template id is required")
	}
	if len(t.Phases) == 0 {
		return fmt.Errorf("template %s has no phases", t.ID)
	}

	phaseIDs := make(map[string]bool, len(t.Phases))
	questionIDs := make(map[string]bool)
	for _, p := range t.Phases {
		if p.ID == "" {
			return fmt.Errorf("template %s: phase with empty id", t.ID)
		}
		if phaseIDs[p.ID] {
			return fmt.Errorf("template %s: duplicate phase id %q", t.ID, p.ID)
		}
		phaseIDs[p.ID] = true

		if len(p.Questions) == 0 {
			return fmt.Errorf("template %s: phase %q has no questions", t.ID, p.ID)
		}
		for _, q := range p.Questions {
			if q.ID == "" {
				return fmt.Errorf("template %s: phase %q has a question with empty id", t.ID, p.ID)
			}
			if questionIDs[q.ID] {
				return fmt.Errorf("template %s: duplicate question id %q", t.ID, q.ID)
			}
			questionIDs[q.ID] = true
			if q.ExtractionField == "" {
				return fmt.Errorf("template %s: question %q has no extraction field", t.ID, q.ID)
			}
		}
	}

	for _, id := range t.Completion.RequiredPhaseIDs {
		if !phaseIDs[id] {
			return fmt.Errorf("template %s: completion requires unknown phase %q", t.ID, id)
		}
	}
	return nil
}
