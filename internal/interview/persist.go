package interview

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/castorp/soulforge/internal/artifact"
	"github.com/castorp/soulforge/internal/audit"
	"github.com/castorp/soulforge/internal/storage"
	"github.com/castorp/soulforge/internal/template"
)

// ContentDNA is the persisted artifact payload: everything the interview
// distilled, composed once at save time.
type ContentDNA struct {
	SessionID     string                     `json:"session_id"`
	TemplateID    string                     `json:"template_id"`
	FacetVersion  string                     `json:"facet_version"`
	ExtractedData map[string]any             `json:"extracted_data"`
	Candidates    []artifact.MemoryCandidate `json:"candidates"`
	TrustBundle   artifact.Bundle            `json:"trust_bundle"`
	CoreMemories  []artifact.CoreMemory      `json:"core_memories"`
	GeneratedAt   time.Time                  `json:"generated_at"`
}

// persistContentDNA composes and writes the Content DNA artifact plus its
// provenance records, and returns the new artifact ID. Callers gate on
// consent and on ContentDNAID being unset; this function only writes.
func (r *Runner) persistContentDNA(t *template.Template, rec *storage.Session, state *State, now time.Time) (string, error) {
	candidates := artifact.BuildMemoryCandidates(t, state.ExtractedData)
	bundle := artifact.BuildTrustBundle(candidates, artifact.DefaultFacetConfig())
	core := artifact.DistillCoreMemories(state.ExtractedData)

	dna := ContentDNA{
		SessionID:     rec.ID,
		TemplateID:    t.ID,
		FacetVersion:  bundle.FacetVersion,
		ExtractedData: state.ExtractedData,
		Candidates:    candidates,
		TrustBundle:   bundle,
		CoreMemories:  core,
		GeneratedAt:   now,
	}
	payload, err := json.Marshal(dna)
	if err != nil {
		return "", fmt.Errorf("encoding content dna: %w", err)
	}

	artifactID := uuid.New().String()
	if err := r.store.SaveArtifact(storage.Artifact{
		ID:          artifactID,
		SessionID:   rec.ID,
		TemplateID:  t.ID,
		PayloadJSON: string(payload),
		CreatedAt:   now,
	}); err != nil {
		return "", fmt.Errorf("saving artifact: %w", err)
	}

	link := storage.ArtifactLink{
		ID:         uuid.New().String(),
		ArtifactID: artifactID,
		TargetType: "template",
		TargetID:   t.ID,
		Relation:   "derived_from",
		CreatedAt:  now,
	}
	if err := r.store.SaveArtifactLink(link); err != nil {
		return "", fmt.Errorf("saving artifact link: %w", err)
	}

	actionPayload, _ := json.Marshal(map[string]any{
		"candidate_count":   len(candidates),
		"core_memory_count": len(core),
	})
	if err := r.store.SaveArtifactAction(storage.ArtifactAction{
		ID:          uuid.New().String(),
		ArtifactID:  artifactID,
		SessionID:   rec.ID,
		Kind:        "interview_completed",
		PayloadJSON: string(actionPayload),
		CreatedAt:   now,
	}); err != nil {
		return "", fmt.Errorf("saving artifact action: %w", err)
	}

	r.emit(audit.EventArtifactComposed, rec.ID, map[string]any{
		"artifact":        artifactID,
		"facet_version":   bundle.FacetVersion,
		"candidate_count": len(candidates),
	})
	r.emit(audit.EventArtifactSourceLinked, rec.ID, map[string]any{
		"artifact":    artifactID,
		"target_type": link.TargetType,
		"target_id":   link.TargetID,
		"relation":    link.Relation,
	})
	r.emit(audit.EventInterviewCompleted, rec.ID, map[string]any{
		"template_id": t.ID,
		"artifact":    artifactID,
	})
	return artifactID, nil
}

// LoadContentDNA fetches and decodes a persisted artifact payload.
func (r *Runner) LoadContentDNA(artifactID string) (ContentDNA, error) {
	rec, err := r.store.GetArtifact(artifactID)
	if err != nil {
		return ContentDNA{}, err
	}
	var dna ContentDNA
	if err := json.Unmarshal([]byte(rec.PayloadJSON), &dna); err != nil {
		return ContentDNA{}, fmt.Errorf("decoding content dna %s: %w", artifactID, err)
	}
	return dna, nil
}
