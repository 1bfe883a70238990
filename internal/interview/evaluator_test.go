package interview

import (
	"testing"

	"github.com/castorp/soulforge/internal/template"
)

func TestShouldSkip(t *testing.T) {
	cases := []struct {
		name string
		cond *template.SkipCondition
		data map[string]any
		want bool
	}{
		{"nil condition never skips", nil, map[string]any{"x": 1}, false},
		{"equals match", &template.SkipCondition{Field: "kind", Operator: "equals", Value: "solo"}, map[string]any{"kind": "solo"}, true},
		{"equals mismatch", &template.SkipCondition{Field: "kind", Operator: "equals", Value: "solo"}, map[string]any{"kind": "team"}, false},
		{"equals coerces numbers", &template.SkipCondition{Field: "n", Operator: "equals", Value: float64(3)}, map[string]any{"n": float64(3)}, true},
		{"contains", &template.SkipCondition{Field: "bio", Operator: "contains", Value: "potter"}, map[string]any{"bio": "a potter from Leeds"}, true},
		{"contains non-string", &template.SkipCondition{Field: "bio", Operator: "contains", Value: "potter"}, map[string]any{"bio": 42}, false},
		{"not_empty present", &template.SkipCondition{Field: "team", Operator: "not_empty"}, map[string]any{"team": "yes"}, true},
		{"not_empty blank string counts as absent", &template.SkipCondition{Field: "team", Operator: "not_empty"}, map[string]any{"team": ""}, false},
		{"not_empty missing", &template.SkipCondition{Field: "team", Operator: "not_empty"}, map[string]any{}, false},
		{"empty missing", &template.SkipCondition{Field: "team", Operator: "empty"}, map[string]any{}, true},
		{"empty present", &template.SkipCondition{Field: "team", Operator: "empty"}, map[string]any{"team": "yes"}, false},
		{"greater_than", &template.SkipCondition{Field: "n", Operator: "greater_than", Value: float64(2)}, map[string]any{"n": float64(5)}, true},
		{"greater_than not met", &template.SkipCondition{Field: "n", Operator: "greater_than", Value: float64(2)}, map[string]any{"n": float64(2)}, false},
		{"less_than", &template.SkipCondition{Field: "n", Operator: "less_than", Value: 10}, map[string]any{"n": 3}, true},
		{"unknown operator never skips", &template.SkipCondition{Field: "x", Operator: "matches_regex", Value: ".*"}, map[string]any{"x": "y"}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ShouldSkip(tc.cond, tc.data); got != tc.want {
				t.Errorf("ShouldSkip = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestCheckCompletion(t *testing.T) {
	tpl := template.Template{
		ID: "t",
		Phases: []template.Phase{
			{ID: "a", Name: "Alpha", Questions: []template.Question{{ID: "q1", ExtractionField: "f1"}}},
			{ID: "b", Name: "Beta", Questions: []template.Question{{ID: "q2", ExtractionField: "f2"}}},
		},
		Completion: template.CompletionCriteria{
			MinPhasesCompleted: 2,
			RequiredPhaseIDs:   []string{"a"},
		},
	}

	s := &State{CompletedPhases: []string{"b"}}
	check := CheckCompletion(&tpl, s)
	if check.Ready {
		t.Fatal("expected not ready")
	}
	if len(check.MissingReasons) != 2 {
		t.Errorf("MissingReasons = %v, want count and required-phase reasons", check.MissingReasons)
	}

	s.MarkPhaseComplete("a")
	check = CheckCompletion(&tpl, s)
	if !check.Ready {
		t.Errorf("expected ready, missing: %v", check.MissingReasons)
	}
}

func TestCheckCompletionNamesPhases(t *testing.T) {
	tpl := template.Template{
		ID: "t",
		Phases: []template.Phase{
			{ID: "guardrails", Name: "Boundaries & Guardrails", Questions: []template.Question{{ID: "q", ExtractionField: "f"}}},
		},
		Completion: template.CompletionCriteria{RequiredPhaseIDs: []string{"guardrails"}},
	}

	check := CheckCompletion(&tpl, &State{})
	if check.Ready {
		t.Fatal("expected not ready")
	}
	found := false
	for _, r := range check.MissingReasons {
		if r == `required phase "Boundaries & Guardrails" not completed` {
			found = true
		}
	}
	if !found {
		t.Errorf("reasons use ids, not names: %v", check.MissingReasons)
	}
}

func TestIsEmptyValue(t *testing.T) {
	empties := []any{nil, "", []any{}, []string{}, map[string]any{}}
	for _, v := range empties {
		if !IsEmptyValue(v) {
			t.Errorf("IsEmptyValue(%#v) = false, want true", v)
		}
	}
	// Zero numbers and false are answers, not absences.
	present := []any{0, 0.0, false, "no", []any{"x"}}
	for _, v := range present {
		if IsEmptyValue(v) {
			t.Errorf("IsEmptyValue(%#v) = true, want false", v)
		}
	}
}
