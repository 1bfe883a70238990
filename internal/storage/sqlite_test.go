package storage

import (
	"errors"
	"testing"
	"time"

	"github.com/castorp/soulforge/internal/template"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testSession(id string) Session {
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	return Session{
		ID:             id,
		TemplateID:     "creator_dna_v1",
		Status:         "capturing",
		StateJSON:      `{"current_phase_index":0}`,
		CreatedAt:      now,
		UpdatedAt:      now,
		LastActivityAt: now,
	}
}

// TestMigrationsIdempotent runs Open twice on the same database and verifies
// the schema_version count stays correct (migration not re-applied).
func TestMigrationsIdempotent(t *testing.T) {
	dir := t.TempDir()

	s1, err := Open(dir)
	if err != nil {
		t.Fatalf("first Open failed: %v", err)
	}

	v1, err := s1.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	s1.Close()

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("second Open failed: %v", err)
	}
	defer s2.Close()

	v2, err := s2.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}

	if len(v1) != len(v2) {
		t.Errorf("migration count changed: %d -> %d", len(v1), len(v2))
	}
}

func TestIndexesExist(t *testing.T) {
	s := openTestStore(t)

	indexes := []string{
		"idx_sessions_status",
		"idx_sessions_last_activity",
		"idx_messages_session",
		"idx_artifacts_session",
		"idx_audit_events_session",
	}
	for _, idx := range indexes {
		var count int
		err := s.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name=?", idx).Scan(&count)
		if err != nil {
			t.Fatalf("querying sqlite_master: %v", err)
		}
		if count != 1 {
			t.Errorf("index %s not found", idx)
		}
	}
}

func TestSessionRoundTrip(t *testing.T) {
	s := openTestStore(t)

	sess := testSession("sess-1")
	if err := s.CreateSession(sess); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	got, err := s.GetSession("sess-1")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.TemplateID != sess.TemplateID {
		t.Errorf("TemplateID = %q, want %q", got.TemplateID, sess.TemplateID)
	}
	if got.Status != "capturing" {
		t.Errorf("Status = %q, want capturing", got.Status)
	}
	if !got.CreatedAt.Equal(sess.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, sess.CreatedAt)
	}
}

func TestGetSessionNotFound(t *testing.T) {
	s := openTestStore(t)

	_, err := s.GetSession("missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateSessionAtomic(t *testing.T) {
	s := openTestStore(t)

	if err := s.CreateSession(testSession("sess-1")); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	updated, err := s.UpdateSession("sess-1", func(sess *Session) error {
		sess.Status = "paused"
		sess.StateJSON = `{"current_phase_index":2}`
		return nil
	})
	if err != nil {
		t.Fatalf("UpdateSession: %v", err)
	}
	if updated.Status != "paused" {
		t.Errorf("Status = %q, want paused", updated.Status)
	}

	// A mutate error must leave the row untouched.
	boom := errors.New("boom")
	_, err = s.UpdateSession("sess-1", func(sess *Session) error {
		sess.Status = "saved"
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected mutate error, got %v", err)
	}

	got, err := s.GetSession("sess-1")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.Status != "paused" {
		t.Errorf("Status after failed mutate = %q, want paused", got.Status)
	}
}

func TestListIdleSessions(t *testing.T) {
	s := openTestStore(t)

	old := testSession("old")
	old.LastActivityAt = time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC)
	fresh := testSession("fresh")
	fresh.LastActivityAt = time.Date(2026, 3, 14, 11, 0, 0, 0, time.UTC)
	paused := testSession("paused")
	paused.Status = "resumable_unsaved"
	paused.LastActivityAt = time.Date(2026, 3, 14, 7, 0, 0, 0, time.UTC)

	for _, sess := range []Session{old, fresh, paused} {
		if err := s.CreateSession(sess); err != nil {
			t.Fatalf("CreateSession(%s): %v", sess.ID, err)
		}
	}

	cutoff := time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC)
	idle, err := s.ListIdleSessions("capturing", cutoff)
	if err != nil {
		t.Fatalf("ListIdleSessions: %v", err)
	}
	if len(idle) != 1 || idle[0].ID != "old" {
		t.Errorf("idle sessions = %+v, want only 'old'", idle)
	}
}

func TestDeleteSessionCascade(t *testing.T) {
	s := openTestStore(t)

	if err := s.CreateSession(testSession("sess-1")); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	now := time.Now().UTC()
	if err := s.SaveMessage(Message{ID: "m1", SessionID: "sess-1", Role: "user", Content: "hi", CreatedAt: now}); err != nil {
		t.Fatalf("SaveMessage: %v", err)
	}
	if err := s.AppendAuditEvent(AuditEvent{ID: "e1", Name: "interview_started", SessionID: "sess-1", SchemaVersion: "trust.v1", PayloadJSON: "{}", Validation: "passed", OccurredAt: now}); err != nil {
		t.Fatalf("AppendAuditEvent: %v", err)
	}

	if err := s.DeleteSessionCascade("sess-1"); err != nil {
		t.Fatalf("DeleteSessionCascade: %v", err)
	}

	if _, err := s.GetSession("sess-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("session survived cascade: %v", err)
	}
	msgs, err := s.ListMessages("sess-1", 10)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("messages survived cascade: %d", len(msgs))
	}
	events, err := s.ListAuditEvents("sess-1")
	if err != nil {
		t.Fatalf("ListAuditEvents: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("audit events survived cascade: %d", len(events))
	}

	// Idempotent: deleting again is not an error.
	if err := s.DeleteSessionCascade("sess-1"); err != nil {
		t.Errorf("second DeleteSessionCascade: %v", err)
	}
}

func TestMessagesOrdered(t *testing.T) {
	s := openTestStore(t)

	base := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	for i, content := range []string{"first", "second", "third"} {
		m := Message{
			ID:        string(rune('a' + i)),
			SessionID: "sess-1",
			Role:      "user",
			Content:   content,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}
		if err := s.SaveMessage(m); err != nil {
			t.Fatalf("SaveMessage: %v", err)
		}
	}

	msgs, err := s.ListMessages("sess-1", 10)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("got %d messages, want 3", len(msgs))
	}
	for i, want := range []string{"first", "second", "third"} {
		if msgs[i].Content != want {
			t.Errorf("message %d = %q, want %q", i, msgs[i].Content, want)
		}
	}
}

func TestArtifactCascade(t *testing.T) {
	s := openTestStore(t)
	now := time.Now().UTC()

	a := Artifact{ID: "art-1", SessionID: "sess-1", TemplateID: "creator_dna_v1", PayloadJSON: "{}", CreatedAt: now}
	if err := s.SaveArtifact(a); err != nil {
		t.Fatalf("SaveArtifact: %v", err)
	}
	if err := s.SaveArtifactLink(ArtifactLink{ID: "l1", ArtifactID: "art-1", TargetType: "template", TargetID: "creator_dna_v1", Relation: "derived_from", CreatedAt: now}); err != nil {
		t.Fatalf("SaveArtifactLink: %v", err)
	}
	if err := s.SaveArtifactAction(ArtifactAction{ID: "aa1", ArtifactID: "art-1", SessionID: "sess-1", Kind: "interview_completed", PayloadJSON: "{}", CreatedAt: now}); err != nil {
		t.Fatalf("SaveArtifactAction: %v", err)
	}

	if err := s.DeleteArtifactCascade("art-1"); err != nil {
		t.Fatalf("DeleteArtifactCascade: %v", err)
	}

	if _, err := s.GetArtifact("art-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("artifact survived cascade: %v", err)
	}
	links, err := s.ListArtifactLinks("art-1")
	if err != nil {
		t.Fatalf("ListArtifactLinks: %v", err)
	}
	if len(links) != 0 {
		t.Errorf("links survived cascade: %d", len(links))
	}
	actions, err := s.ListArtifactActions("art-1")
	if err != nil {
		t.Fatalf("ListArtifactActions: %v", err)
	}
	if len(actions) != 0 {
		t.Errorf("actions survived cascade: %d", len(actions))
	}

	// Unwinding an absent artifact is fine.
	if err := s.DeleteArtifactCascade("art-1"); err != nil {
		t.Errorf("second DeleteArtifactCascade: %v", err)
	}
}

func TestAppendAuditEventDeduplicates(t *testing.T) {
	s := openTestStore(t)
	now := time.Now().UTC()

	e := AuditEvent{ID: "evt-1", Name: "consent_decided", SessionID: "sess-1", SchemaVersion: "trust.v1", PayloadJSON: "{}", Validation: "passed", OccurredAt: now}
	if err := s.AppendAuditEvent(e); err != nil {
		t.Fatalf("first append: %v", err)
	}
	if err := s.AppendAuditEvent(e); err != nil {
		t.Fatalf("replayed append: %v", err)
	}

	n, err := s.CountAuditEvents("sess-1", "consent_decided")
	if err != nil {
		t.Fatalf("CountAuditEvents: %v", err)
	}
	if n != 1 {
		t.Errorf("event count = %d, want 1 (deterministic ids deduplicate)", n)
	}
}

func TestTemplateUpsert(t *testing.T) {
	s := openTestStore(t)

	tpl := template.Template{
		ID:     "micro_v1",
		Name:   "Micro Session",
		Status: template.StatusDraft,
		Phases: []template.Phase{{
			ID:       "essentials",
			Name:     "Essentials",
			Required: true,
			Questions: []template.Question{{
				ID:              "q1",
				Prompt:          "What do you make?",
				ExpectedType:    template.TypeString,
				ExtractionField: "craft",
				Required:        true,
			}},
		}},
		Completion: template.CompletionCriteria{MinPhasesCompleted: 1},
	}
	if err := s.SaveTemplate(tpl); err != nil {
		t.Fatalf("SaveTemplate: %v", err)
	}

	// Upsert replaces the stored spec.
	tpl.Status = template.StatusActive
	tpl.Name = "Micro Session v1"
	if err := s.SaveTemplate(tpl); err != nil {
		t.Fatalf("SaveTemplate upsert: %v", err)
	}

	got, err := s.GetTemplate("micro_v1")
	if err != nil {
		t.Fatalf("GetTemplate: %v", err)
	}
	if got.Status != template.StatusActive {
		t.Errorf("Status = %q, want active", got.Status)
	}
	if got.Name != "Micro Session v1" {
		t.Errorf("Name = %q, want upserted name", got.Name)
	}
	if len(got.Phases) != 1 || len(got.Phases[0].Questions) != 1 {
		t.Errorf("phases did not survive round trip: %+v", got.Phases)
	}

	all, err := s.ListTemplates()
	if err != nil {
		t.Fatalf("ListTemplates: %v", err)
	}
	if len(all) != 1 {
		t.Errorf("template count = %d, want 1", len(all))
	}

	if _, err := s.GetTemplate("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for missing template, got %v", err)
	}
}
