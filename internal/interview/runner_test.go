package interview

import (
	"errors"
	"testing"
	"time"

	"github.com/castorp/soulforge/internal/audit"
	"github.com/castorp/soulforge/internal/storage"
	"github.com/castorp/soulforge/internal/template"
)

type fixedClock struct{ t time.Time }

func (c *fixedClock) Now() time.Time { return c.t }

func (c *fixedClock) Tick(d time.Duration) { c.t = c.t.Add(d) }

type fakeCatalog struct {
	byID      map[string]template.Template
	defaultID string
}

func (f *fakeCatalog) Get(id string) (template.Template, error) {
	t, ok := f.byID[id]
	if !ok {
		return template.Template{}, storage.ErrNotFound
	}
	return t, nil
}

func (f *fakeCatalog) Default() (template.Template, error) {
	return f.Get(f.defaultID)
}

// creatorTemplate is a three-phase interview: a required basics phase with a
// scripted follow-up, an optional team phase skipped for solo creators, and
// a required wrap-up.
func creatorTemplate() template.Template {
	return template.Template{
		ID:     "creator_test_v1",
		Name:   "Creator Test",
		Status: template.StatusActive,
		Phases: []template.Phase{
			{
				ID:       "basics",
				Name:     "Basics",
				Required: true,
				Questions: []template.Question{
					{
						ID:              "q_craft",
						Prompt:          "What do you make?",
						ExpectedType:    template.TypeString,
						ExtractionField: "craft",
						Required:        true,
						FollowUps:       []string{"What kinds of work exactly?"},
					},
					{
						ID:              "q_medium",
						Prompt:          "What medium do you work in?",
						ExpectedType:    template.TypeString,
						ExtractionField: "medium",
					},
				},
			},
			{
				ID:       "team",
				Name:     "Team",
				Required: false,
				Skip:     &template.SkipCondition{Field: "solo", Operator: "not_empty"},
				Questions: []template.Question{
					{
						ID:              "q_team_size",
						Prompt:          "How big is your team?",
						ExpectedType:    template.TypeNumber,
						ExtractionField: "team_size",
					},
				},
			},
			{
				ID:       "wrap",
				Name:     "Wrap-up",
				Required: true,
				Questions: []template.Question{
					{
						ID:              "q_confirm",
						Prompt:          "Anything to add?",
						ExpectedType:    template.TypeString,
						ExtractionField: "closing_notes",
						Required:        true,
					},
				},
			},
		},
		Completion: template.CompletionCriteria{
			MinPhasesCompleted: 2,
			RequiredPhaseIDs:   []string{"basics", "wrap"},
		},
	}
}

func newTestRunner(t *testing.T, templates ...template.Template) (*Runner, *storage.Store, *fixedClock) {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:): %v", err)
	}
	t.Cleanup(func() { store.Close() })

	clock := &fixedClock{t: time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)}
	catalog := &fakeCatalog{byID: map[string]template.Template{}}
	for _, tpl := range templates {
		catalog.byID[tpl.ID] = tpl
		if catalog.defaultID == "" {
			catalog.defaultID = tpl.ID
		}
	}

	emitter := audit.NewEmitterWithClock(store, clock)
	return NewRunnerWithClock(store, catalog, emitter, clock), store, clock
}

func confident(field string, value any) []ExtractionResult {
	return []ExtractionResult{{Field: field, Value: value, Confidence: 0.9}}
}

func vague(field string, value any) []ExtractionResult {
	return []ExtractionResult{{
		Field:          field,
		Value:          value,
		Confidence:     0.3,
		NeedsFollowUp:  true,
		FollowUpReason: "answer was vague",
	}}
}

func mustAdvance(t *testing.T, r *Runner, sessionID string, results []ExtractionResult) (AdvanceResult, *State) {
	t.Helper()
	res, state, err := r.Advance(sessionID, results, false)
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}
	return res, state
}

// completeSession walks a session through the happy path to completion:
// basics answered, team skipped by condition, wrap answered.
func completeSession(t *testing.T, r *Runner) string {
	t.Helper()
	rec, _, err := r.Start("creator_test_v1")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	mustAdvance(t, r, rec.ID, confident("craft", "pottery"))
	mustAdvance(t, r, rec.ID, []ExtractionResult{
		{Field: "medium", Value: "stoneware", Confidence: 0.9},
		{Field: "solo", Value: "yes", Confidence: 0.9},
	})
	res, _ := mustAdvance(t, r, rec.ID, confident("closing_notes", "that covers it"))
	if res.AdvanceType != AdvanceCompleted {
		t.Fatalf("expected completion, got %+v", res)
	}
	return rec.ID
}

func TestStartInitializesSession(t *testing.T) {
	r, store, clock := newTestRunner(t, creatorTemplate())

	rec, state, err := r.Start("")
	if err != nil {
		t.Fatalf("Start with default template: %v", err)
	}
	if rec.TemplateID != "creator_test_v1" {
		t.Errorf("TemplateID = %q", rec.TemplateID)
	}
	if state.Lifecycle.Status != StatusCapturing {
		t.Errorf("Status = %q, want capturing", state.Lifecycle.Status)
	}
	if state.Lifecycle.Checkpoint != CheckpointCaptureNotice {
		t.Errorf("Checkpoint = %q, want capture notice", state.Lifecycle.Checkpoint)
	}
	if state.CurrentPhaseIndex != 0 || state.CurrentQuestionIndex != 0 {
		t.Errorf("position = (%d,%d), want (0,0)", state.CurrentPhaseIndex, state.CurrentQuestionIndex)
	}
	if !state.StartedAt.Equal(clock.Now()) {
		t.Errorf("StartedAt = %v, want clock time", state.StartedAt)
	}

	stored, err := store.GetSession(rec.ID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if stored.Status != "capturing" {
		t.Errorf("stored status = %q", stored.Status)
	}
}

func TestStartUnknownTemplate(t *testing.T) {
	r, _, _ := newTestRunner(t, creatorTemplate())

	if _, _, err := r.Start("nope"); err == nil {
		t.Fatal("expected error for unknown template")
	}
}

func TestFollowUpHoldAndBudget(t *testing.T) {
	r, _, _ := newTestRunner(t, creatorTemplate())
	rec, _, err := r.Start("")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	// A vague answer holds the session on the current question and serves
	// the scripted follow-up.
	res, state := mustAdvance(t, r, rec.ID, vague("craft", "stuff"))
	if res.Advanced {
		t.Error("expected hold, session advanced")
	}
	if res.Reason != ReasonFollowUpNeeded {
		t.Errorf("Reason = %q", res.Reason)
	}
	if res.FollowUpPrompt != "What kinds of work exactly?" {
		t.Errorf("FollowUpPrompt = %q, want scripted prompt", res.FollowUpPrompt)
	}
	if state.CurrentFollowUpCount != 1 || !state.PendingFollowUp {
		t.Errorf("follow-up bookkeeping = (%d,%v)", state.CurrentFollowUpCount, state.PendingFollowUp)
	}

	// The default budget is one follow-up per question: a second vague
	// answer moves on anyway.
	res, state = mustAdvance(t, r, rec.ID, vague("craft", "things"))
	if !res.Advanced || res.AdvanceType != AdvanceNextQuestion {
		t.Errorf("expected next question after budget exhausted, got %+v", res)
	}
	if res.QuestionID != "q_medium" {
		t.Errorf("QuestionID = %q, want q_medium", res.QuestionID)
	}
	if state.CurrentFollowUpCount != 0 || state.PendingFollowUp {
		t.Errorf("budget not reset on question change: (%d,%v)", state.CurrentFollowUpCount, state.PendingFollowUp)
	}
}

func TestForceAdvanceResetsBudget(t *testing.T) {
	r, _, _ := newTestRunner(t, creatorTemplate())
	rec, _, err := r.Start("")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	if res, _ := mustAdvance(t, r, rec.ID, vague("craft", "stuff")); res.Advanced {
		t.Fatal("expected follow-up hold")
	}

	// Force skips the pending follow-up; the budget belongs to the question
	// left behind, so the counter resets.
	res, state, err := r.Advance(rec.ID, vague("craft", "ceramics, mostly"), true)
	if err != nil {
		t.Fatalf("forced Advance: %v", err)
	}
	if !res.Advanced || res.QuestionID != "q_medium" {
		t.Fatalf("forced advance did not move on: %+v", res)
	}
	if state.CurrentFollowUpCount != 0 {
		t.Errorf("CurrentFollowUpCount = %d after forced advance, want 0", state.CurrentFollowUpCount)
	}

	// The new question gets a fresh budget.
	res, _ = mustAdvance(t, r, rec.ID, vague("medium", "um"))
	if res.Reason != ReasonFollowUpNeeded {
		t.Errorf("fresh question did not get its own follow-up budget: %+v", res)
	}
}

func TestAdvanceMergesOnlyNonEmptyValues(t *testing.T) {
	r, _, _ := newTestRunner(t, creatorTemplate())
	rec, _, err := r.Start("")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	_, state := mustAdvance(t, r, rec.ID, []ExtractionResult{
		{Field: "craft", Value: "pottery", Confidence: 0.9},
		{Field: "medium", Value: "", Confidence: 0.9},
		{Field: "", Value: "stray", Confidence: 0.9},
	})
	if state.ExtractedData["craft"] != "pottery" {
		t.Errorf("craft = %v", state.ExtractedData["craft"])
	}
	if _, ok := state.ExtractedData["medium"]; ok {
		t.Error("empty value merged into extracted data")
	}
}

func TestSkipConditionWalk(t *testing.T) {
	r, _, _ := newTestRunner(t, creatorTemplate())
	rec, _, err := r.Start("")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	mustAdvance(t, r, rec.ID, confident("craft", "pottery"))
	res, state := mustAdvance(t, r, rec.ID, []ExtractionResult{
		{Field: "medium", Value: "stoneware", Confidence: 0.9},
		{Field: "solo", Value: "yes", Confidence: 0.9},
	})

	// The team phase's skip condition fires on "solo"; the walk records the
	// skip and lands on the wrap phase.
	if res.AdvanceType != AdvanceNextPhase || res.PhaseID != "wrap" {
		t.Fatalf("expected wrap phase, got %+v", res)
	}
	if !state.HasSkippedPhase("team") {
		t.Errorf("team phase not recorded as skipped: %v", state.SkippedPhases)
	}
	if !state.HasCompletedPhase("basics") {
		t.Errorf("basics not recorded as completed: %v", state.CompletedPhases)
	}
}

func TestOperatorSkipRequiredPhaseRefused(t *testing.T) {
	r, _, _ := newTestRunner(t, creatorTemplate())
	rec, _, err := r.Start("")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	res, state, err := r.SkipPhase(rec.ID, "in a hurry")
	if err != nil {
		t.Fatalf("SkipPhase: %v", err)
	}
	if res.Advanced || res.Reason != ReasonPhaseRequired {
		t.Errorf("required phase was skippable: %+v", res)
	}
	if state.CurrentPhaseIndex != 0 {
		t.Errorf("phase index moved to %d", state.CurrentPhaseIndex)
	}
}

func TestOperatorSkipOptionalPhase(t *testing.T) {
	r, _, _ := newTestRunner(t, creatorTemplate())
	rec, _, err := r.Start("")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	// Reach the optional team phase without tripping its skip condition.
	mustAdvance(t, r, rec.ID, confident("craft", "pottery"))
	res, _ := mustAdvance(t, r, rec.ID, confident("medium", "stoneware"))
	if res.PhaseID != "team" {
		t.Fatalf("expected team phase, got %+v", res)
	}

	res, state, err := r.SkipPhase(rec.ID, "prefers not to say")
	if err != nil {
		t.Fatalf("SkipPhase: %v", err)
	}
	if res.AdvanceType != AdvanceNextPhase || res.PhaseID != "wrap" {
		t.Errorf("skip did not land on wrap: %+v", res)
	}
	if !state.HasSkippedPhase("team") {
		t.Errorf("skip not recorded: %v", state.SkippedPhases)
	}
}

func TestCompletionOpensConsentCheckpoint(t *testing.T) {
	r, store, _ := newTestRunner(t, creatorTemplate())
	sessionID := completeSession(t, r)

	_, state, _, err := r.Load(sessionID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !state.IsComplete {
		t.Fatal("session not complete")
	}
	if state.Lifecycle.Status != StatusCheckpointReview {
		t.Errorf("Status = %q, want checkpoint_review", state.Lifecycle.Status)
	}
	if state.Lifecycle.Checkpoint != CheckpointSummaryReview {
		t.Errorf("Checkpoint = %q, want summary review", state.Lifecycle.Checkpoint)
	}
	if state.Consent == nil || state.Consent.Status != ConsentPending {
		t.Errorf("Consent = %+v, want pending", state.Consent)
	}

	n, err := store.CountAuditEvents(sessionID, audit.EventConsentPrompted)
	if err != nil {
		t.Fatalf("CountAuditEvents: %v", err)
	}
	if n != 1 {
		t.Errorf("consent_prompted events = %d, want 1", n)
	}

	// No more capture once complete.
	if _, _, err := r.Advance(sessionID, confident("craft", "more"), false); !errors.Is(err, ErrAlreadyComplete) {
		t.Errorf("Advance on complete session: %v, want ErrAlreadyComplete", err)
	}
}

func TestCompletionNotReady(t *testing.T) {
	tpl := creatorTemplate()
	tpl.Completion.MinPhasesCompleted = 3
	r, _, _ := newTestRunner(t, tpl)
	rec, _, err := r.Start("")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	mustAdvance(t, r, rec.ID, confident("craft", "pottery"))
	mustAdvance(t, r, rec.ID, []ExtractionResult{
		{Field: "medium", Value: "stoneware", Confidence: 0.9},
		{Field: "solo", Value: "yes", Confidence: 0.9},
	})
	res, state := mustAdvance(t, r, rec.ID, confident("closing_notes", "done"))

	if res.Advanced || res.Reason != ReasonCompletionNotReady {
		t.Fatalf("expected completion_not_ready, got %+v", res)
	}
	if len(res.MissingReasons) == 0 {
		t.Error("missing reasons not surfaced")
	}
	if state.IsComplete {
		t.Error("session marked complete despite unmet criteria")
	}
	if state.Lifecycle.Status != StatusCapturing {
		t.Errorf("Status = %q, want capturing", state.Lifecycle.Status)
	}
}

func TestEarlyAdvance(t *testing.T) {
	tpl := template.Template{
		ID:     "deep_v1",
		Name:   "Deep Dive",
		Status: template.StatusActive,
		Phases: []template.Phase{{
			ID:       "deep",
			Name:     "Deep",
			Required: true,
			Questions: []template.Question{
				{ID: "d1", Prompt: "p1", ExpectedType: template.TypeString, ExtractionField: "f1", Required: true},
				{ID: "d2", Prompt: "p2", ExpectedType: template.TypeString, ExtractionField: "f2"},
				{ID: "d3", Prompt: "p3", ExpectedType: template.TypeString, ExtractionField: "f3"},
			},
		}},
		Completion: template.CompletionCriteria{MinPhasesCompleted: 1, RequiredPhaseIDs: []string{"deep"}},
	}
	r, _, _ := newTestRunner(t, tpl)
	rec, _, err := r.Start("")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	mustAdvance(t, r, rec.ID, confident("f1", "first"))
	res, _ := mustAdvance(t, r, rec.ID, confident("f2", "second"))

	// Two strong fields with no required gap end the phase before d3.
	if !res.EarlyAdvance {
		t.Fatalf("expected early advance, got %+v", res)
	}
	if res.AdvanceType != AdvanceCompleted {
		t.Errorf("AdvanceType = %q, want completed", res.AdvanceType)
	}
}

func TestEarlyAdvanceNeedsStrongConfidence(t *testing.T) {
	tpl := template.Template{
		ID:     "deep_v1",
		Name:   "Deep Dive",
		Status: template.StatusActive,
		Phases: []template.Phase{{
			ID:       "deep",
			Name:     "Deep",
			Required: true,
			Questions: []template.Question{
				{ID: "d1", Prompt: "p1", ExpectedType: template.TypeString, ExtractionField: "f1"},
				{ID: "d2", Prompt: "p2", ExpectedType: template.TypeString, ExtractionField: "f2"},
				{ID: "d3", Prompt: "p3", ExpectedType: template.TypeString, ExtractionField: "f3"},
			},
		}},
		Completion: template.CompletionCriteria{MinPhasesCompleted: 1},
	}
	r, _, _ := newTestRunner(t, tpl)
	rec, _, err := r.Start("")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	mustAdvance(t, r, rec.ID, []ExtractionResult{{Field: "f1", Value: "first", Confidence: 0.7}})
	res, _ := mustAdvance(t, r, rec.ID, []ExtractionResult{{Field: "f2", Value: "second", Confidence: 0.7}})

	// Below the early-advance floor the literal next question wins.
	if res.EarlyAdvance {
		t.Errorf("early advance fired below confidence floor: %+v", res)
	}
	if res.QuestionID != "d3" {
		t.Errorf("QuestionID = %q, want d3", res.QuestionID)
	}
}

func TestPauseAndResume(t *testing.T) {
	r, _, _ := newTestRunner(t, creatorTemplate())
	rec, _, err := r.Start("")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	mustAdvance(t, r, rec.ID, confident("craft", "pottery"))

	state, err := r.Pause(rec.ID)
	if err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if state.Lifecycle.Status != StatusResumableUnsaved {
		t.Errorf("Status = %q, want resumable_unsaved", state.Lifecycle.Status)
	}

	// Paused sessions refuse capture.
	if _, _, err := r.Advance(rec.ID, confident("medium", "clay"), false); !errors.Is(err, ErrPaused) {
		t.Errorf("Advance while paused: %v, want ErrPaused", err)
	}

	// Pausing twice is a no-op.
	if _, err := r.Pause(rec.ID); err != nil {
		t.Errorf("second Pause: %v", err)
	}

	state, err = r.Resume(rec.ID)
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if state.Lifecycle.Status != StatusCapturing {
		t.Errorf("Status after resume = %q", state.Lifecycle.Status)
	}
	if state.Lifecycle.Checkpoint != CheckpointCaptureNotice {
		t.Errorf("Checkpoint after resume = %q", state.Lifecycle.Checkpoint)
	}
	if state.ExtractedData["craft"] != "pottery" {
		t.Error("extracted data lost across pause/resume")
	}
}

func TestReviewCandidatesAdvancesCheckpoint(t *testing.T) {
	r, _, _ := newTestRunner(t, creatorTemplate())
	sessionID := completeSession(t, r)

	candidates, state, err := r.ReviewCandidates(sessionID)
	if err != nil {
		t.Fatalf("ReviewCandidates: %v", err)
	}
	if len(candidates) == 0 {
		t.Fatal("no memory candidates for a completed session")
	}
	if state.Lifecycle.Status != StatusConsentPending {
		t.Errorf("Status = %q, want consent_pending", state.Lifecycle.Status)
	}
	if state.Lifecycle.Checkpoint != CheckpointSaveDecision {
		t.Errorf("Checkpoint = %q, want save decision", state.Lifecycle.Checkpoint)
	}
}

func TestAcceptConsentPersistsArtifact(t *testing.T) {
	r, store, _ := newTestRunner(t, creatorTemplate())
	sessionID := completeSession(t, r)
	if _, _, err := r.ReviewCandidates(sessionID); err != nil {
		t.Fatalf("ReviewCandidates: %v", err)
	}

	artifactID, state, err := r.AcceptConsent(sessionID, "user")
	if err != nil {
		t.Fatalf("AcceptConsent: %v", err)
	}
	if artifactID == "" {
		t.Fatal("empty artifact id")
	}
	if state.Lifecycle.Status != StatusSaved || state.Lifecycle.Checkpoint != CheckpointPostSaveRevoke {
		t.Errorf("lifecycle = %+v, want saved at post-save revoke", state.Lifecycle)
	}
	if state.Consent.Status != ConsentAccepted || state.Consent.DecidedBy != "user" {
		t.Errorf("Consent = %+v", state.Consent)
	}
	if state.ContentDNAID != artifactID {
		t.Errorf("ContentDNAID = %q, want %q", state.ContentDNAID, artifactID)
	}

	if _, err := store.GetArtifact(artifactID); err != nil {
		t.Fatalf("artifact not persisted: %v", err)
	}
	dna, err := r.LoadContentDNA(artifactID)
	if err != nil {
		t.Fatalf("LoadContentDNA: %v", err)
	}
	if dna.SessionID != sessionID {
		t.Errorf("artifact session = %q, want %q", dna.SessionID, sessionID)
	}
	if len(dna.Candidates) == 0 {
		t.Error("artifact carries no candidates")
	}

	for _, name := range []string{audit.EventArtifactComposed, audit.EventConsentDecided, audit.EventInterviewCompleted} {
		n, err := store.CountAuditEvents(sessionID, name)
		if err != nil {
			t.Fatalf("CountAuditEvents(%s): %v", name, err)
		}
		if n != 1 {
			t.Errorf("%s events = %d, want 1", name, n)
		}
	}

	// Accepting again returns the same artifact, no duplicate.
	again, _, err := r.AcceptConsent(sessionID, "user")
	if err != nil {
		t.Fatalf("second AcceptConsent: %v", err)
	}
	if again != artifactID {
		t.Errorf("second accept returned %q, want %q", again, artifactID)
	}
}

func TestAcceptConsentRequiresCompletion(t *testing.T) {
	r, _, _ := newTestRunner(t, creatorTemplate())
	rec, _, err := r.Start("")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	if _, _, err := r.AcceptConsent(rec.ID, "user"); !errors.Is(err, ErrNotComplete) {
		t.Errorf("AcceptConsent mid-capture: %v, want ErrNotComplete", err)
	}
}

func TestDiscardUnwindsSavedArtifact(t *testing.T) {
	r, store, clock := newTestRunner(t, creatorTemplate())
	sessionID := completeSession(t, r)

	artifactID, _, err := r.AcceptConsent(sessionID, "user")
	if err != nil {
		t.Fatalf("AcceptConsent: %v", err)
	}
	clock.Tick(time.Minute)

	state, err := r.Discard(sessionID, "user")
	if err != nil {
		t.Fatalf("Discard: %v", err)
	}
	if state.Lifecycle.Status != StatusDiscarded {
		t.Errorf("Status = %q, want discarded", state.Lifecycle.Status)
	}
	if state.ContentDNAID != "" {
		t.Errorf("ContentDNAID = %q after discard, want empty", state.ContentDNAID)
	}
	if state.Consent.Status != ConsentDeclined {
		t.Errorf("Consent = %+v, want declined", state.Consent)
	}

	if _, err := store.GetArtifact(artifactID); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("artifact survived discard: %v", err)
	}
	n, err := store.CountAuditEvents(sessionID, audit.EventWriteBlockedNoConsent)
	if err != nil {
		t.Fatalf("CountAuditEvents: %v", err)
	}
	if n != 1 {
		t.Errorf("write_blocked_no_consent events = %d, want 1", n)
	}

	// Discarded is terminal.
	if _, _, err := r.Advance(sessionID, confident("craft", "more"), false); !errors.Is(err, ErrDiscarded) {
		t.Errorf("Advance after discard: %v, want ErrDiscarded", err)
	}
	if _, err := r.Resume(sessionID); !errors.Is(err, ErrDiscarded) {
		t.Errorf("Resume after discard: %v, want ErrDiscarded", err)
	}

	// Re-discarding is a detected no-op.
	if _, err := r.Discard(sessionID, "user"); err != nil {
		t.Errorf("second Discard: %v", err)
	}
}

func TestCancelDeletesSession(t *testing.T) {
	r, store, _ := newTestRunner(t, creatorTemplate())
	rec, _, err := r.Start("")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	if err := r.Cancel(rec.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if _, err := store.GetSession(rec.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("session survived cancel: %v", err)
	}
	if err := r.Cancel(rec.ID); err != nil {
		t.Errorf("second Cancel: %v", err)
	}
}

func TestMalformedStateSurfaces(t *testing.T) {
	r, store, _ := newTestRunner(t, creatorTemplate())

	now := time.Now().UTC()
	if err := store.CreateSession(storage.Session{
		ID:             "broken",
		TemplateID:     "creator_test_v1",
		Status:         "capturing",
		StateJSON:      "{not json",
		CreatedAt:      now,
		UpdatedAt:      now,
		LastActivityAt: now,
	}); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	if _, _, err := r.Advance("broken", confident("craft", "x"), false); !errors.Is(err, ErrMalformed) {
		t.Errorf("Advance on malformed state: %v, want ErrMalformed", err)
	}
}
