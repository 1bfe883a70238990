// Package artifact derives consent-facing memory candidates and the trust
// artifact bundle from an interview's extracted data. Everything here is a
// pure function of (template, extractedData): identical input always yields
// identical output in template order, so candidates are regenerated on
// demand and never cached stale.
package artifact

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/castorp/soulforge/internal/template"
)

// Attribution records where a captured value came from, down to the original
// prompt, so a user reviewing candidates sees exactly what they answered.
type Attribution struct {
	PhaseID    string `json:"phase_id"`
	PhaseName  string `json:"phase_name"`
	QuestionID string `json:"question_id"`
	Prompt     string `json:"prompt"`
}

// MemoryCandidate is a derived, source-attributed view of one captured
// field, used for consent display and trust-artifact assembly.
type MemoryCandidate struct {
	ID      string      `json:"id"`
	Field   string      `json:"field"`
	Label   string      `json:"label"`
	Preview string      `json:"preview"`
	Source  Attribution `json:"source"`
}

// maxPreviewRunes caps candidate previews for display.
const maxPreviewRunes = 160

// BuildMemoryCandidates walks every phase and question in template order and
// returns one candidate per non-empty extracted field.
func BuildMemoryCandidates(t *template.Template, data map[string]any) []MemoryCandidate {
	var out []MemoryCandidate
	for _, p := range t.Phases {
		for _, q := range p.Questions {
			v, ok := data[q.ExtractionField]
			if !ok || isEmpty(v) {
				continue
			}
			out = append(out, MemoryCandidate{
				ID:      q.ExtractionField,
				Field:   q.ExtractionField,
				Label:   fieldLabel(q.ExtractionField),
				Preview: previewValue(v),
				Source: Attribution{
					PhaseID:    p.ID,
					PhaseName:  p.Name,
					QuestionID: q.ID,
					Prompt:     q.Prompt,
				},
			})
		}
	}
	return out
}

// CandidateIDs returns the candidate id set in candidate order.
func CandidateIDs(candidates []MemoryCandidate) []string {
	ids := make([]string, len(candidates))
	for i, c := range candidates {
		ids[i] = c.ID
	}
	return ids
}

func isEmpty(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return val == ""
	case []any:
		return len(val) == 0
	case []string:
		return len(val) == 0
	case map[string]any:
		return len(val) == 0
	default:
		return false
	}
}

// previewValue renders a value for consent display: arrays join with commas,
// objects JSON-stringify, scalars stringify.
func previewValue(v any) string {
	var s string
	switch val := v.(type) {
	case string:
		s = val
	case []string:
		s = strings.Join(val, ", ")
	case []any:
		parts := make([]string, len(val))
		for i, item := range val {
			parts[i] = fmt.Sprintf("%v", item)
		}
		s = strings.Join(parts, ", ")
	case map[string]any:
		b, err := json.Marshal(val)
		if err != nil {
			s = fmt.Sprintf("%v", val)
		} else {
			s = string(b)
		}
	default:
		s = fmt.Sprintf("%v", val)
	}
	return truncateRunes(s, maxPreviewRunes)
}

func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max]) + "..."
}

// fieldLabel turns a snake_case field id into a human label:
// "origin_story" -> "Origin Story".
func fieldLabel(field string) string {
	words := strings.FieldsFunc(field, func(r rune) bool { return r == '_' || r == '.' })
	for i, w := range words {
		if w == "" {
			continue
		}
		r := []rune(w)
		words[i] = strings.ToUpper(string(r[0])) + string(r[1:])
	}
	return strings.Join(words, " ")
}
