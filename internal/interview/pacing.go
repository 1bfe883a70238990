package interview

import (
	"fmt"
	"strings"

	"github.com/castorp/soulforge/internal/template"
)

// Pacing thresholds. Early advance is deliberately conservative: any doubt
// falls back to the literal next-question path.
const (
	// earlyAdvanceMinConfidence is the floor for the strongest extraction
	// confidence in a turn before remaining questions may be skipped.
	earlyAdvanceMinConfidence = 0.78

	// followUpConfidenceCeiling: results below this that ask for a follow-up
	// hold the session on the current question.
	followUpConfidenceCeiling = 0.7

	// minSignalFields is the captured-field floor for early advance,
	// bounded by the phase's question count.
	minSignalFields = 2

	// microSessionSize chunks total questions into fixed-size groups for
	// the "micro-session N of M" label.
	microSessionSize = 2
)

// PhaseCoverage summarizes, purely by field presence, which of a phase's
// extraction fields are captured and which required ones are still missing.
// It never guesses at meaning.
type PhaseCoverage struct {
	PhaseID         string   `json:"phase_id"`
	Captured        []string `json:"captured,omitempty"`
	Remaining       []string `json:"remaining,omitempty"`
	MissingRequired []string `json:"missing_required,omitempty"`
	CapturedCount   int      `json:"captured_count"`
	TotalQuestions  int      `json:"total_questions"`
}

// BuildPhaseCoverage computes coverage for one phase against the extracted
// data collected so far.
func BuildPhaseCoverage(phase *template.Phase, data map[string]any) PhaseCoverage {
	cov := PhaseCoverage{
		PhaseID:        phase.ID,
		TotalQuestions: len(phase.Questions),
	}
	for _, q := range phase.Questions {
		v, ok := data[q.ExtractionField]
		if ok && !IsEmptyValue(v) {
			cov.Captured = append(cov.Captured, q.ExtractionField)
			continue
		}
		cov.Remaining = append(cov.Remaining, q.ExtractionField)
		if q.Required {
			cov.MissingRequired = append(cov.MissingRequired, q.ExtractionField)
		}
	}
	cov.CapturedCount = len(cov.Captured)
	return cov
}

// ShouldAdvancePhaseEarly reports whether the remaining questions of the
// phase may be skipped: enough fields already captured, no required field
// missing, no follow-up requested this turn, and the strongest confidence of
// the turn at or above the early-advance floor.
func ShouldAdvancePhaseEarly(phase *template.Phase, data map[string]any, results []ExtractionResult) bool {
	cov := BuildPhaseCoverage(phase, data)

	minSignal := minSignalFields
	if cov.TotalQuestions < minSignal {
		minSignal = cov.TotalQuestions
	}
	if cov.CapturedCount < minSignal {
		return false
	}
	if len(cov.MissingRequired) > 0 {
		return false
	}

	best := 0.0
	for _, r := range results {
		if r.NeedsFollowUp {
			return false
		}
		if r.Confidence > best {
			best = r.Confidence
		}
	}
	return best >= earlyAdvanceMinConfidence
}

// AdaptiveSummary is the human-facing pacing frame for the current turn.
type AdaptiveSummary struct {
	MicroSession  int    `json:"micro_session"`
	MicroSessions int    `json:"micro_sessions"`
	Label         string `json:"label"`
	FocusPrompt   string `json:"focus_prompt"`
}

// BuildAdaptiveSummary chunks the template's questions into micro-sessions
// and builds a progressive-focus prompt: unmet required fields first, then
// remaining-count framing, then a generic high-signal nudge.
func BuildAdaptiveSummary(t *template.Template, s *State) AdaptiveSummary {
	total := t.TotalQuestions()
	sessions := (total + microSessionSize - 1) / microSessionSize
	if sessions < 1 {
		sessions = 1
	}

	// Absolute index of the current question across all phases.
	abs := 0
	for i := 0; i < s.CurrentPhaseIndex && i < len(t.Phases); i++ {
		abs += len(t.Phases[i].Questions)
	}
	abs += s.CurrentQuestionIndex

	current := abs/microSessionSize + 1
	if current > sessions {
		current = sessions
	}

	summary := AdaptiveSummary{
		MicroSession:  current,
		MicroSessions: sessions,
		Label:         fmt.Sprintf("micro-session %d of %d", current, sessions),
	}

	if s.CurrentPhaseIndex < len(t.Phases) {
		cov := BuildPhaseCoverage(&t.Phases[s.CurrentPhaseIndex], s.ExtractedData)
		switch {
		case len(cov.MissingRequired) > 0:
			summary.FocusPrompt = fmt.Sprintf("Focus on the required details still missing: %s.",
				strings.Join(cov.MissingRequired, ", "))
		case len(cov.Remaining) > 0:
			summary.FocusPrompt = fmt.Sprintf("%d question(s) left in this phase; short answers are fine.",
				len(cov.Remaining))
		default:
			summary.FocusPrompt = "Keep it high-signal: anything else worth capturing before we move on?"
		}
	} else {
		summary.FocusPrompt = "Keep it high-signal: anything else worth capturing before we move on?"
	}
	return summary
}
