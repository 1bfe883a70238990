package interview

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/castorp/soulforge/internal/template"
)

// ShouldSkip evaluates a phase skip condition against the data collected so
// far. A nil condition and an unknown operator both evaluate false: when a
// condition is ambiguous the interview over-asks rather than silently
// dropping a phase.
func ShouldSkip(cond *template.SkipCondition, data map[string]any) bool {
	if cond == nil {
		return false
	}

	value, present := data[cond.Field]
	if present && IsEmptyValue(value) {
		present = false
	}

	switch cond.Operator {
	case "equals":
		return present && fmt.Sprintf("%v", value) == fmt.Sprintf("%v", cond.Value)
	case "contains":
		s, okS := value.(string)
		sub, okSub := cond.Value.(string)
		return present && okS && okSub && strings.Contains(s, sub)
	case "not_empty":
		return present
	case "empty":
		return !present
	case "greater_than":
		a, okA := toFloat(value)
		b, okB := toFloat(cond.Value)
		return present && okA && okB && a > b
	case "less_than":
		a, okA := toFloat(value)
		b, okB := toFloat(cond.Value)
		return present && okA && okB && a < b
	default:
		return false
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// CompletionCheck is the result of evaluating completion criteria.
type CompletionCheck struct {
	Ready          bool     `json:"ready"`
	MissingReasons []string `json:"missing_reasons,omitempty"`
}

// CheckCompletion decides whether the session meets the template's completion
// criteria: enough phases completed and every required phase among them.
// Reasons name phases, not just ids, so they can be surfaced to an operator.
func CheckCompletion(t *template.Template, s *State) CompletionCheck {
	var reasons []string

	if got, want := len(s.CompletedPhases), t.Completion.MinPhasesCompleted; got < want {
		reasons = append(reasons, fmt.Sprintf("%d of %d phases completed", got, want))
	}
	for _, id := range t.Completion.RequiredPhaseIDs {
		if !s.HasCompletedPhase(id) {
			reasons = append(reasons, fmt.Sprintf("required phase %q not completed", t.PhaseName(id)))
		}
	}

	return CompletionCheck{Ready: len(reasons) == 0, MissingReasons: reasons}
}
