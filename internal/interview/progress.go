package interview

import (
	"time"

	"github.com/castorp/soulforge/internal/template"
)

// Progress is the lightweight status view of a session.
type Progress struct {
	SessionID                 string          `json:"session_id"`
	TemplateID                string          `json:"template_id"`
	Status                    LifecycleStatus `json:"status"`
	Checkpoint                Checkpoint      `json:"checkpoint"`
	PercentComplete           int             `json:"percent_complete"`
	PhaseID                   string          `json:"phase_id,omitempty"`
	PhaseName                 string          `json:"phase_name,omitempty"`
	CompletedPhases           []string        `json:"completed_phases"`
	SkippedPhases             []string        `json:"skipped_phases"`
	EstimatedMinutesRemaining int             `json:"estimated_minutes_remaining"`
	IsComplete                bool            `json:"is_complete"`
	LastActivityAt            time.Time       `json:"last_activity_at"`
}

// QuestionView is what the conversational layer asks next: the current
// prompt, a pending follow-up if the session is holding for one, and the
// adaptive pacing note.
type QuestionView struct {
	PhaseID         string          `json:"phase_id"`
	PhaseName       string          `json:"phase_name"`
	QuestionID      string          `json:"question_id"`
	Prompt          string          `json:"prompt"`
	ExpectedType    string          `json:"expected_type"`
	Required        bool            `json:"required"`
	PendingFollowUp bool            `json:"pending_follow_up"`
	FollowUpPrompt  string          `json:"follow_up_prompt,omitempty"`
	Pacing          AdaptiveSummary `json:"pacing"`
}

// PhaseSummary describes one phase's standing inside a context view.
type PhaseSummary struct {
	PhaseID  string        `json:"phase_id"`
	Name     string        `json:"name"`
	Required bool          `json:"required"`
	Standing string        `json:"standing"` // completed, skipped, current, pending
	Coverage PhaseCoverage `json:"coverage"`
}

// CheckpointStatus marks one consent checkpoint as reached or not.
type CheckpointStatus struct {
	Checkpoint Checkpoint `json:"checkpoint"`
	Reached    bool       `json:"reached"`
	Active     bool       `json:"active"`
}

// ContextView is the full review surface: lifecycle, consent, everything
// captured so far, and per-phase standing.
type ContextView struct {
	SessionID     string             `json:"session_id"`
	TemplateID    string             `json:"template_id"`
	Lifecycle     Lifecycle          `json:"lifecycle"`
	Consent       *Consent           `json:"consent,omitempty"`
	ContentDNAID  string             `json:"content_dna_id,omitempty"`
	ExtractedData map[string]any     `json:"extracted_data"`
	Phases        []PhaseSummary     `json:"phases"`
	Checkpoints   []CheckpointStatus `json:"checkpoints"`
	StartedAt     time.Time          `json:"started_at"`
	CompletedAt   *time.Time         `json:"completed_at,omitempty"`
}

var checkpointOrder = []Checkpoint{
	CheckpointCaptureNotice,
	CheckpointSummaryReview,
	CheckpointSaveDecision,
	CheckpointPostSaveRevoke,
}

// BuildProgress computes the progress view from a template and state.
func BuildProgress(sessionID string, t *template.Template, s *State) Progress {
	p := Progress{
		SessionID:       sessionID,
		TemplateID:      t.ID,
		Status:          s.Lifecycle.Status,
		Checkpoint:      s.Lifecycle.Checkpoint,
		CompletedPhases: s.CompletedPhases,
		SkippedPhases:   s.SkippedPhases,
		IsComplete:      s.IsComplete,
		LastActivityAt:  s.LastActivityAt,
	}
	if p.CompletedPhases == nil {
		p.CompletedPhases = []string{}
	}
	if p.SkippedPhases == nil {
		p.SkippedPhases = []string{}
	}

	total := t.TotalQuestions()
	done := 0
	for i := range t.Phases {
		ph := &t.Phases[i]
		switch phaseStanding(s, ph.ID, i) {
		case "completed", "skipped":
			done += len(ph.Questions)
		case "current":
			done += s.CurrentQuestionIndex
			p.EstimatedMinutesRemaining += ph.EstimatedMinutes
		case "pending":
			p.EstimatedMinutesRemaining += ph.EstimatedMinutes
		}
	}
	if s.IsComplete {
		p.PercentComplete = 100
		p.EstimatedMinutesRemaining = 0
	} else if total > 0 {
		p.PercentComplete = done * 100 / total
	}

	if !s.IsComplete && s.CurrentPhaseIndex < len(t.Phases) {
		ph := &t.Phases[s.CurrentPhaseIndex]
		p.PhaseID = ph.ID
		p.PhaseName = ph.Name
	}
	return p
}

// BuildQuestionView returns the current question for an in-flight session,
// or false once the template position no longer points at one.
func BuildQuestionView(t *template.Template, s *State) (QuestionView, bool) {
	if s.IsComplete || s.CurrentPhaseIndex >= len(t.Phases) {
		return QuestionView{}, false
	}
	ph := &t.Phases[s.CurrentPhaseIndex]
	if s.CurrentQuestionIndex >= len(ph.Questions) {
		return QuestionView{}, false
	}
	q := &ph.Questions[s.CurrentQuestionIndex]
	view := QuestionView{
		PhaseID:         ph.ID,
		PhaseName:       ph.Name,
		QuestionID:      q.ID,
		Prompt:          q.Prompt,
		ExpectedType:    q.ExpectedType,
		Required:        q.Required,
		PendingFollowUp: s.PendingFollowUp,
		Pacing:          BuildAdaptiveSummary(t, s),
	}
	if s.PendingFollowUp {
		view.FollowUpPrompt = followUpPrompt(q, s.CurrentFollowUpCount, "")
	}
	return view, true
}

// BuildContextView assembles the full review surface.
func BuildContextView(sessionID string, t *template.Template, s *State) ContextView {
	view := ContextView{
		SessionID:     sessionID,
		TemplateID:    t.ID,
		Lifecycle:     s.Lifecycle,
		Consent:       s.Consent,
		ContentDNAID:  s.ContentDNAID,
		ExtractedData: s.ExtractedData,
		StartedAt:     s.StartedAt,
		CompletedAt:   s.CompletedAt,
	}
	for i := range t.Phases {
		ph := &t.Phases[i]
		view.Phases = append(view.Phases, PhaseSummary{
			PhaseID:  ph.ID,
			Name:     ph.Name,
			Required: ph.Required,
			Standing: phaseStanding(s, ph.ID, i),
			Coverage: BuildPhaseCoverage(ph, s.ExtractedData),
		})
	}

	active := s.Lifecycle.Checkpoint
	for _, cp := range checkpointOrder {
		view.Checkpoints = append(view.Checkpoints, CheckpointStatus{
			Checkpoint: cp,
			Reached:    checkpointRank(cp) <= checkpointRank(active),
			Active:     cp == active,
		})
	}
	return view
}

func phaseStanding(s *State, phaseID string, idx int) string {
	switch {
	case s.HasCompletedPhase(phaseID):
		return "completed"
	case s.HasSkippedPhase(phaseID):
		return "skipped"
	case !s.IsComplete && idx == s.CurrentPhaseIndex:
		return "current"
	default:
		return "pending"
	}
}

func checkpointRank(cp Checkpoint) int {
	for i, c := range checkpointOrder {
		if c == cp {
			return i
		}
	}
	return -1
}
