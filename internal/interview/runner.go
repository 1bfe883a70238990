package interview

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/castorp/soulforge/internal/artifact"
	"github.com/castorp/soulforge/internal/audit"
	"github.com/castorp/soulforge/internal/storage"
	"github.com/castorp/soulforge/internal/template"
)

// Transition rejection errors.
var (
	ErrAlreadyComplete = errors.New("session is already complete")
	ErrNotComplete     = errors.New("session has not met its completion criteria")
	ErrDiscarded       = errors.New("session was discarded")
	ErrSaved           = errors.New("session is already saved")
	ErrPaused          = errors.New("session is paused; resume it first")
	ErrMalformed       = errors.New("malformed session state")
)

// SessionStore defines the storage operations the Runner needs.
// Implemented by storage.Store.
type SessionStore interface {
	CreateSession(sess storage.Session) error
	GetSession(id string) (storage.Session, error)
	UpdateSession(id string, mutate func(*storage.Session) error) (storage.Session, error)
	DeleteSessionCascade(id string) error

	SaveArtifact(a storage.Artifact) error
	GetArtifact(id string) (storage.Artifact, error)
	DeleteArtifactCascade(id string) error
	SaveArtifactLink(l storage.ArtifactLink) error
	SaveArtifactAction(a storage.ArtifactAction) error
}

// TemplateSource resolves interview templates. Implemented by
// template.Catalog.
type TemplateSource interface {
	Get(id string) (template.Template, error)
	Default() (template.Template, error)
}

// Emitter appends trust events. Implemented by audit.Emitter.
type Emitter interface {
	Emit(name, sessionID string, payload map[string]any) (storage.AuditEvent, error)
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Runner owns all transitions over interview sessions. Transition cores are
// pure functions of (template, state, input); the Runner wraps each in one
// atomic read-modify-write against the session store and emits trust events
// after the write commits. Callers serialize transitions per session.
type Runner struct {
	store     SessionStore
	templates TemplateSource
	audit     Emitter
	clock     Clock
	logger    *slog.Logger
}

// NewRunner creates a Runner over the given collaborators.
func NewRunner(store SessionStore, templates TemplateSource, emitter Emitter) *Runner {
	return &Runner{
		store:     store,
		templates: templates,
		audit:     emitter,
		clock:     realClock{},
		logger:    slog.Default(),
	}
}

// NewRunnerWithClock creates a Runner with a custom clock (for testing).
func NewRunnerWithClock(store SessionStore, templates TemplateSource, emitter Emitter, clock Clock) *Runner {
	r := NewRunner(store, templates, emitter)
	r.clock = clock
	return r
}

// Start initializes a new session against the given template (or the
// default active template when templateID is empty): phase 0, question 0,
// empty data, lifecycle capturing at the capture-notice checkpoint.
func (r *Runner) Start(templateID string) (storage.Session, *State, error) {
	var t template.Template
	var err error
	if templateID == "" {
		t, err = r.templates.Default()
	} else {
		t, err = r.templates.Get(templateID)
	}
	if err != nil {
		return storage.Session{}, nil, err
	}
	if err := t.Validate(); err != nil {
		return storage.Session{}, nil, fmt.Errorf("invalid template: %w", err)
	}

	now := r.clock.Now().UTC()
	state := &State{
		ExtractedData:  map[string]any{},
		StartedAt:      now,
		PhaseStartedAt: now,
		LastActivityAt: now,
		Lifecycle: Lifecycle{
			Status:     StatusCapturing,
			Checkpoint: CheckpointCaptureNotice,
		},
	}

	rec := storage.Session{
		ID:         uuid.New().String(),
		TemplateID: t.ID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	syncRecord(&rec, state)
	if err := encodeInto(&rec, state); err != nil {
		return storage.Session{}, nil, err
	}
	if err := r.store.CreateSession(rec); err != nil {
		return storage.Session{}, nil, fmt.Errorf("creating session: %w", err)
	}

	r.logger.Info("interview session started", "session_id", rec.ID, "template_id", t.ID)
	return rec, state, nil
}

// Advance merges a turn's extraction results into the session and moves it
// forward: hold for a follow-up, step to the next question, advance the
// phase (walking skip conditions), or complete the interview and open the
// consent checkpoint.
func (r *Runner) Advance(sessionID string, results []ExtractionResult, force bool) (AdvanceResult, *State, error) {
	t, err := r.templateFor(sessionID)
	if err != nil {
		return AdvanceResult{}, nil, err
	}

	var res AdvanceResult
	var state *State
	_, err = r.store.UpdateSession(sessionID, func(rec *storage.Session) error {
		state, err = decodeState(rec)
		if err != nil {
			return err
		}
		if err := guardMutable(state); err != nil {
			return err
		}
		res = advanceState(&t, state, results, force, r.clock.Now().UTC())
		syncRecord(rec, state)
		return encodeInto(rec, state)
	})
	if err != nil {
		return AdvanceResult{}, nil, err
	}

	if res.AdvanceType == AdvanceCompleted {
		r.emitConsentPrompted(sessionID, state)
	}
	return res, state, nil
}

// SkipPhase is the operator-initiated skip. Required phases are never
// skippable; otherwise it records the current phase as skipped and behaves
// like the found-next-phase branch of a phase advance, which can itself
// complete the interview.
func (r *Runner) SkipPhase(sessionID, reason string) (AdvanceResult, *State, error) {
	t, err := r.templateFor(sessionID)
	if err != nil {
		return AdvanceResult{}, nil, err
	}

	var res AdvanceResult
	var state *State
	_, err = r.store.UpdateSession(sessionID, func(rec *storage.Session) error {
		state, err = decodeState(rec)
		if err != nil {
			return err
		}
		if err := guardMutable(state); err != nil {
			return err
		}

		now := r.clock.Now().UTC()
		phase := &t.Phases[state.CurrentPhaseIndex]
		if phase.Required {
			res = AdvanceResult{
				Advanced: false,
				Reason:   ReasonPhaseRequired,
				PhaseID:  phase.ID,
			}
			return nil
		}

		if !state.HasSkippedPhase(phase.ID) {
			state.SkippedPhases = append(state.SkippedPhases, phase.ID)
		}
		state.CurrentFollowUpCount = 0
		state.PendingFollowUp = false
		state.LastActivityAt = now
		r.logger.Info("phase skipped by operator",
			"session_id", sessionID, "phase_id", phase.ID, "reason", reason)

		res = advancePhase(&t, state, now)
		syncRecord(rec, state)
		return encodeInto(rec, state)
	})
	if err != nil {
		return AdvanceResult{}, nil, err
	}

	if res.AdvanceType == AdvanceCompleted {
		r.emitConsentPrompted(sessionID, state)
	}
	return res, state, nil
}

// Pause parks the session as resumable_unsaved at its current checkpoint.
// Extracted data is untouched and nothing durable is written beyond the
// lifecycle flip.
func (r *Runner) Pause(sessionID string) (*State, error) {
	var state *State
	_, err := r.store.UpdateSession(sessionID, func(rec *storage.Session) error {
		var err error
		state, err = decodeState(rec)
		if err != nil {
			return err
		}
		switch state.Lifecycle.Status {
		case StatusDiscarded:
			return ErrDiscarded
		case StatusSaved:
			return ErrSaved
		case StatusResumableUnsaved:
			return nil // already paused
		}
		state.Lifecycle.Status = StatusResumableUnsaved
		syncRecord(rec, state)
		return encodeInto(rec, state)
	})
	return state, err
}

// Resume puts a paused session back into capturing at the checkpoint
// computed from its progress. Discarded sessions are terminal and complete
// sessions await a consent decision, not more capture.
func (r *Runner) Resume(sessionID string) (*State, error) {
	var state *State
	_, err := r.store.UpdateSession(sessionID, func(rec *storage.Session) error {
		var err error
		state, err = decodeState(rec)
		if err != nil {
			return err
		}
		if state.Lifecycle.Status == StatusDiscarded {
			return ErrDiscarded
		}
		if state.IsComplete {
			return ErrAlreadyComplete
		}
		state.Lifecycle.Status = StatusCapturing
		state.Lifecycle.Checkpoint = computeCheckpoint(state)
		state.LastActivityAt = r.clock.Now().UTC()
		syncRecord(rec, state)
		return encodeInto(rec, state)
	})
	return state, err
}

// ReviewCandidates regenerates the memory candidates for consent display.
// On a completed session parked at summary review, viewing the candidates
// advances the checkpoint to the save decision.
func (r *Runner) ReviewCandidates(sessionID string) ([]artifact.MemoryCandidate, *State, error) {
	t, err := r.templateFor(sessionID)
	if err != nil {
		return nil, nil, err
	}

	var state *State
	var candidates []artifact.MemoryCandidate
	_, err = r.store.UpdateSession(sessionID, func(rec *storage.Session) error {
		state, err = decodeState(rec)
		if err != nil {
			return err
		}
		candidates = artifact.BuildMemoryCandidates(&t, state.ExtractedData)
		if state.Lifecycle.Status == StatusCheckpointReview {
			state.Lifecycle.Status = StatusConsentPending
			state.Lifecycle.Checkpoint = CheckpointSaveDecision
			syncRecord(rec, state)
			return encodeInto(rec, state)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return candidates, state, nil
}

// AcceptConsent marks consent accepted and persists the Content DNA
// artifact. Only valid once the session is complete. Idempotent: a session
// that already carries a ContentDNAID returns it unchanged and no second
// artifact is created.
func (r *Runner) AcceptConsent(sessionID, actor string) (string, *State, error) {
	rec, err := r.store.GetSession(sessionID)
	if err != nil {
		return "", nil, err
	}
	t, err := r.templates.Get(rec.TemplateID)
	if err != nil {
		return "", nil, err
	}
	state, err := decodeState(&rec)
	if err != nil {
		return "", nil, err
	}

	if state.Lifecycle.Status == StatusDiscarded {
		return "", nil, ErrDiscarded
	}
	if !state.IsComplete {
		return "", nil, ErrNotComplete
	}
	if state.ContentDNAID != "" {
		return state.ContentDNAID, state, nil
	}

	now := r.clock.Now().UTC()
	artifactID, err := r.persistContentDNA(&t, &rec, state, now)
	if err != nil {
		return "", nil, err
	}

	var finalState *State
	_, err = r.store.UpdateSession(sessionID, func(fresh *storage.Session) error {
		finalState, err = decodeState(fresh)
		if err != nil {
			return err
		}
		if finalState.ContentDNAID != "" {
			// Lost the race to another accept; keep the first artifact.
			artifactID = finalState.ContentDNAID
			return nil
		}
		decidedAt := now
		if finalState.Consent == nil {
			finalState.Consent = newConsent(now, nil)
		}
		finalState.Consent.Status = ConsentAccepted
		finalState.Consent.DecidedAt = &decidedAt
		finalState.Consent.DecidedBy = actor
		finalState.ContentDNAID = artifactID
		finalState.Lifecycle = Lifecycle{
			Status:     StatusSaved,
			Checkpoint: CheckpointPostSaveRevoke,
		}
		syncRecord(fresh, finalState)
		return encodeInto(fresh, finalState)
	})
	if err != nil {
		return "", nil, err
	}

	r.emit(audit.EventConsentDecided, sessionID, map[string]any{
		"decision":   string(ConsentAccepted),
		"decided_by": actor,
		"artifact":   artifactID,
	})
	r.logger.Info("consent accepted, artifact persisted",
		"session_id", sessionID, "artifact_id", artifactID)
	return artifactID, finalState, nil
}

// Discard declines consent and closes the session. Any artifact persisted
// earlier is unwound (links, actions, the record itself) before the state
// flips, so a decline after a partial save leaves no durable trace.
// Re-discarding an already discarded session is a detected no-op.
func (r *Runner) Discard(sessionID, actor string) (*State, error) {
	rec, err := r.store.GetSession(sessionID)
	if err != nil {
		return nil, err
	}
	state, err := decodeState(&rec)
	if err != nil {
		return nil, err
	}
	if state.Lifecycle.Status == StatusDiscarded {
		return state, nil
	}

	if state.ContentDNAID != "" {
		if err := r.store.DeleteArtifactCascade(state.ContentDNAID); err != nil {
			return nil, fmt.Errorf("unwinding artifact %s: %w", state.ContentDNAID, err)
		}
	}

	now := r.clock.Now().UTC()
	var finalState *State
	_, err = r.store.UpdateSession(sessionID, func(fresh *storage.Session) error {
		finalState, err = decodeState(fresh)
		if err != nil {
			return err
		}
		decidedAt := now
		if finalState.Consent == nil {
			finalState.Consent = newConsent(now, nil)
		}
		finalState.Consent.Status = ConsentDeclined
		finalState.Consent.DecidedAt = &decidedAt
		finalState.Consent.DecidedBy = actor
		finalState.ContentDNAID = ""
		finalState.Lifecycle.Status = StatusDiscarded
		syncRecord(fresh, finalState)
		return encodeInto(fresh, finalState)
	})
	if err != nil {
		return nil, err
	}

	r.emit(audit.EventConsentDecided, sessionID, map[string]any{
		"decision":   string(ConsentDeclined),
		"decided_by": actor,
	})
	r.emit(audit.EventWriteBlockedNoConsent, sessionID, map[string]any{
		"reason": "consent declined",
	})
	r.logger.Info("session discarded", "session_id", sessionID)
	return finalState, nil
}

// Cancel hard-deletes all session-scoped records (transcript, audit trail,
// the session itself) regardless of lifecycle. Outright abandonment, not a
// recorded decline. Idempotent.
func (r *Runner) Cancel(sessionID string) error {
	if err := r.store.DeleteSessionCascade(sessionID); err != nil {
		return fmt.Errorf("cancelling session %s: %w", sessionID, err)
	}
	r.logger.Info("session cancelled", "session_id", sessionID)
	return nil
}

// Load returns the session record, its decoded state, and its template.
func (r *Runner) Load(sessionID string) (storage.Session, *State, template.Template, error) {
	rec, err := r.store.GetSession(sessionID)
	if err != nil {
		return storage.Session{}, nil, template.Template{}, err
	}
	state, err := decodeState(&rec)
	if err != nil {
		return storage.Session{}, nil, template.Template{}, err
	}
	t, err := r.templates.Get(rec.TemplateID)
	if err != nil {
		return storage.Session{}, nil, template.Template{}, err
	}
	return rec, state, t, nil
}

// --- transition cores (pure) ---

// advanceState is the pure advance transition. It mutates state in place
// and returns the structured outcome.
func advanceState(t *template.Template, state *State, results []ExtractionResult, force bool, now time.Time) AdvanceResult {
	// Merge non-empty results, last write wins per field.
	for _, res := range results {
		if res.Field == "" || IsEmptyValue(res.Value) {
			continue
		}
		state.ExtractedData[res.Field] = res.Value
	}
	state.LastActivityAt = now

	phase := &t.Phases[state.CurrentPhaseIndex]
	question := &phase.Questions[state.CurrentQuestionIndex]

	// Follow-up hold: a low-confidence result asking for a follow-up keeps
	// the session on the current question while budget remains.
	if !force && state.CurrentFollowUpCount < t.FollowUpBudget() {
		if reason, needed := wantsFollowUp(results); needed {
			state.CurrentFollowUpCount++
			state.PendingFollowUp = true
			return AdvanceResult{
				Advanced:       false,
				Reason:         ReasonFollowUpNeeded,
				PhaseID:        phase.ID,
				QuestionID:     question.ID,
				FollowUpPrompt: followUpPrompt(question, state.CurrentFollowUpCount, reason),
			}
		}
	}

	// The budget is per-question: leaving the question behind (including a
	// forced advance that still wanted a follow-up) resets it.
	state.CurrentFollowUpCount = 0
	state.PendingFollowUp = false

	early := ShouldAdvancePhaseEarly(phase, state.ExtractedData, results)
	if early || state.CurrentQuestionIndex >= len(phase.Questions)-1 {
		state.MarkPhaseComplete(phase.ID)
		res := advancePhase(t, state, now)
		res.EarlyAdvance = early
		return res
	}

	state.CurrentQuestionIndex++
	return AdvanceResult{
		Advanced:    true,
		AdvanceType: AdvanceNextQuestion,
		PhaseID:     phase.ID,
		QuestionID:  phase.Questions[state.CurrentQuestionIndex].ID,
	}
}

// advancePhase walks forward from the current phase, recording (never
// silently dropping) every phase whose skip condition fires, until a phase
// is found or the template is exhausted. Skip-condition evaluation is
// authoritative here; early advance only decides to attempt this walk.
func advancePhase(t *template.Template, state *State, now time.Time) AdvanceResult {
	idx := state.CurrentPhaseIndex + 1
	for idx < len(t.Phases) {
		p := &t.Phases[idx]
		if ShouldSkip(p.Skip, state.ExtractedData) {
			if !state.HasSkippedPhase(p.ID) {
				state.SkippedPhases = append(state.SkippedPhases, p.ID)
			}
			idx++
			continue
		}
		break
	}

	if idx < len(t.Phases) {
		state.CurrentPhaseIndex = idx
		state.CurrentQuestionIndex = 0
		state.PhaseStartedAt = now
		p := &t.Phases[idx]
		return AdvanceResult{
			Advanced:    true,
			AdvanceType: AdvanceNextPhase,
			PhaseID:     p.ID,
			QuestionID:  p.Questions[0].ID,
		}
	}

	// Template exhausted: either the session completes or it stays
	// incomplete with the missing reasons surfaced.
	check := CheckCompletion(t, state)
	if !check.Ready {
		return AdvanceResult{
			Advanced:       false,
			Reason:         ReasonCompletionNotReady,
			MissingReasons: check.MissingReasons,
		}
	}

	completedAt := now
	state.IsComplete = true
	state.CompletedAt = &completedAt
	candidates := artifact.BuildMemoryCandidates(t, state.ExtractedData)
	state.Consent = newConsent(now, artifact.CandidateIDs(candidates))
	state.Lifecycle = Lifecycle{
		Status:     StatusCheckpointReview,
		Checkpoint: CheckpointSummaryReview,
	}
	return AdvanceResult{
		Advanced:    true,
		AdvanceType: AdvanceCompleted,
		IsComplete:  true,
	}
}

func newConsent(now time.Time, candidateIDs []string) *Consent {
	return &Consent{
		Status:        ConsentPending,
		Scope:         ConsentScope,
		PromptVersion: ConsentPromptVersion,
		CandidateIDs:  candidateIDs,
		PromptedAt:    now,
	}
}

// wantsFollowUp reports whether any result in the turn asks for a follow-up
// with confidence below the ceiling.
func wantsFollowUp(results []ExtractionResult) (string, bool) {
	for _, r := range results {
		if r.NeedsFollowUp && r.Confidence < followUpConfidenceCeiling {
			return r.FollowUpReason, true
		}
	}
	return "", false
}

// followUpPrompt picks the question's scripted follow-up for this attempt,
// falling back to the extraction's own reason.
func followUpPrompt(q *template.Question, attempt int, reason string) string {
	if len(q.FollowUps) > 0 {
		i := attempt - 1
		if i >= len(q.FollowUps) {
			i = len(q.FollowUps) - 1
		}
		return q.FollowUps[i]
	}
	if reason != "" {
		return reason
	}
	return "Could you say a bit more about that?"
}

// computeCheckpoint derives the consent checkpoint from session progress.
func computeCheckpoint(state *State) Checkpoint {
	switch {
	case state.ContentDNAID != "":
		return CheckpointPostSaveRevoke
	case state.IsComplete:
		return CheckpointSummaryReview
	default:
		return CheckpointCaptureNotice
	}
}

// guardMutable rejects capture transitions on sessions that can no longer
// capture.
func guardMutable(state *State) error {
	switch state.Lifecycle.Status {
	case StatusDiscarded:
		return ErrDiscarded
	case StatusSaved:
		return ErrSaved
	case StatusResumableUnsaved:
		return ErrPaused
	}
	if state.IsComplete {
		return ErrAlreadyComplete
	}
	return nil
}

// --- record plumbing ---

func decodeState(rec *storage.Session) (*State, error) {
	var s State
	if err := json.Unmarshal([]byte(rec.StateJSON), &s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if s.ExtractedData == nil {
		s.ExtractedData = map[string]any{}
	}
	return &s, nil
}

func encodeInto(rec *storage.Session, state *State) error {
	b, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encoding session state: %w", err)
	}
	rec.StateJSON = string(b)
	return nil
}

// syncRecord mirrors the indexed columns from state.
func syncRecord(rec *storage.Session, state *State) {
	rec.Status = string(state.Lifecycle.Status)
	rec.ContentDNAID = state.ContentDNAID
	rec.LastActivityAt = state.LastActivityAt
}

func (r *Runner) templateFor(sessionID string) (template.Template, error) {
	rec, err := r.store.GetSession(sessionID)
	if err != nil {
		return template.Template{}, err
	}
	return r.templates.Get(rec.TemplateID)
}

// emit logs instead of failing the transition when the audit sink errors;
// the state change has already committed.
func (r *Runner) emit(name, sessionID string, payload map[string]any) {
	if _, err := r.audit.Emit(name, sessionID, payload); err != nil {
		r.logger.Error("emitting trust event failed", "event", name, "session_id", sessionID, "error", err)
	}
}

func (r *Runner) emitConsentPrompted(sessionID string, state *State) {
	payload := map[string]any{
		"prompt_version": ConsentPromptVersion,
		"scope":          ConsentScope,
	}
	if state != nil && state.Consent != nil {
		payload["candidate_count"] = len(state.Consent.CandidateIDs)
	}
	r.emit(audit.EventConsentPrompted, sessionID, payload)
}
