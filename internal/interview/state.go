package interview

import (
	"time"
)

// LifecycleStatus is the coarse session status driving what transitions are
// allowed. Terminal statuses are saved and discarded.
type LifecycleStatus string

const (
	StatusCapturing        LifecycleStatus = "capturing"
	StatusCheckpointReview LifecycleStatus = "checkpoint_review"
	StatusConsentPending   LifecycleStatus = "consent_pending"
	StatusSaved            LifecycleStatus = "saved"
	StatusResumableUnsaved LifecycleStatus = "resumable_unsaved"
	StatusDiscarded        LifecycleStatus = "discarded"
)

// Checkpoint names the consent stage a session is parked at. The four stages
// gate durable persistence: capture notice, summary review, save decision,
// and post-save revoke.
type Checkpoint string

const (
	CheckpointCaptureNotice  Checkpoint = "cp0_capture_notice"
	CheckpointSummaryReview  Checkpoint = "cp1_summary_review"
	CheckpointSaveDecision   Checkpoint = "cp2_save_decision"
	CheckpointPostSaveRevoke Checkpoint = "cp3_post_save_revoke"
)

// Lifecycle pairs a coarse status with the active consent checkpoint.
type Lifecycle struct {
	Status     LifecycleStatus `json:"status"`
	Checkpoint Checkpoint      `json:"checkpoint"`
}

// ConsentStatus is the consent decision state.
type ConsentStatus string

const (
	ConsentPending  ConsentStatus = "pending"
	ConsentAccepted ConsentStatus = "accepted"
	ConsentDeclined ConsentStatus = "declined"
)

// Consent records the explicit save decision gating durable persistence.
// A ContentDNAID may exist only while Status is accepted.
type Consent struct {
	Status        ConsentStatus `json:"status"`
	Scope         string        `json:"scope"`
	PromptVersion string        `json:"prompt_version"`
	CandidateIDs  []string      `json:"candidate_ids,omitempty"`
	PromptedAt    time.Time     `json:"prompted_at"`
	DecidedAt     *time.Time    `json:"decided_at,omitempty"`
	DecidedBy     string        `json:"decided_by,omitempty"`
}

// ConsentScope is the scope string stamped on consent records.
const ConsentScope = "content_dna.persist"

// ConsentPromptVersion identifies the wording shown when consent was
// requested, so a decision can be interpreted against the prompt the user
// actually saw.
const ConsentPromptVersion = "consent_prompt.v1"

// State is the mutable heart of one interview session. It is owned
// exclusively by its session record and mutated only by runner transitions.
type State struct {
	CurrentPhaseIndex    int            `json:"current_phase_index"`
	CurrentQuestionIndex int            `json:"current_question_index"`
	CompletedPhases      []string       `json:"completed_phases,omitempty"`
	SkippedPhases        []string       `json:"skipped_phases,omitempty"`
	ExtractedData        map[string]any `json:"extracted_data,omitempty"`
	CurrentFollowUpCount int            `json:"current_follow_up_count"`
	PendingFollowUp      bool           `json:"pending_follow_up"`
	StartedAt            time.Time      `json:"started_at"`
	PhaseStartedAt       time.Time      `json:"phase_started_at"`
	LastActivityAt       time.Time      `json:"last_activity_at"`
	CompletedAt          *time.Time     `json:"completed_at,omitempty"`
	IsComplete           bool           `json:"is_complete"`
	ContentDNAID         string         `json:"content_dna_id,omitempty"`
	Consent              *Consent       `json:"memory_consent,omitempty"`
	Lifecycle            Lifecycle      `json:"lifecycle"`
}

// ExtractionResult is one (field, value, confidence, needsFollowUp) tuple
// produced by parsing a free-text answer. The runner treats the list as
// already parsed; it never touches model text itself.
type ExtractionResult struct {
	Field          string  `json:"field"`
	Value          any     `json:"value"`
	Confidence     float64 `json:"confidence"`
	NeedsFollowUp  bool    `json:"needs_follow_up,omitempty"`
	FollowUpReason string  `json:"follow_up_reason,omitempty"`
}

// AdvanceType labels what an advance transition did.
type AdvanceType string

const (
	AdvanceNextQuestion AdvanceType = "next_question"
	AdvanceNextPhase    AdvanceType = "next_phase"
	AdvanceCompleted    AdvanceType = "completed"
)

// AdvanceResult is the structured outcome of an advance or skip transition.
type AdvanceResult struct {
	Advanced       bool        `json:"advanced"`
	Reason         string      `json:"reason,omitempty"`
	AdvanceType    AdvanceType `json:"advance_type,omitempty"`
	EarlyAdvance   bool        `json:"early_advance,omitempty"`
	FollowUpPrompt string      `json:"follow_up_prompt,omitempty"`
	PhaseID        string      `json:"phase_id,omitempty"`
	QuestionID     string      `json:"question_id,omitempty"`
	IsComplete     bool        `json:"is_complete"`
	MissingReasons []string    `json:"missing_reasons,omitempty"`
}

// Transition rejection reasons surfaced in AdvanceResult.Reason.
const (
	ReasonFollowUpNeeded     = "follow_up_needed"
	ReasonPhaseRequired      = "phase_required"
	ReasonCompletionNotReady = "completion_not_ready"
)

// HasCompletedPhase reports whether the phase is in the completed set.
func (s *State) HasCompletedPhase(phaseID string) bool {
	for _, id := range s.CompletedPhases {
		if id == phaseID {
			return true
		}
	}
	return false
}

// MarkPhaseComplete inserts the phase into the completed set. Idempotent —
// re-marking an already completed phase is a no-op.
func (s *State) MarkPhaseComplete(phaseID string) {
	if !s.HasCompletedPhase(phaseID) {
		s.CompletedPhases = append(s.CompletedPhases, phaseID)
	}
}

// HasSkippedPhase reports whether the phase was recorded as skipped.
func (s *State) HasSkippedPhase(phaseID string) bool {
	for _, id := range s.SkippedPhases {
		if id == phaseID {
			return true
		}
	}
	return false
}

// IsEmptyValue treats nil, empty strings, and empty collections as absent.
// Numbers and booleans are always present, including zero values.
func IsEmptyValue(v any) bool {
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
