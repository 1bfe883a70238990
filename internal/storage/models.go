package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Session is one interview session row. The full mutable interview state
// lives in StateJSON; Status, ContentDNAID, and LastActivityAt are mirrored
// into columns for indexed lookups.
type Session struct {
	ID             string    `json:"id"`
	TemplateID     string    `json:"template_id"`
	Status         string    `json:"status"`
	ContentDNAID   string    `json:"content_dna_id,omitempty"`
	StateJSON      string    `json:"-"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
}

// Message is one transcript line of a session. Messages are session-scoped
// and removed when a session is cancelled.
type Message struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Role      string    `json:"role"` // "assistant", "user"
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Artifact is the durable Content DNA record materialized on accepted
// consent. PayloadJSON embeds candidates, trust bundle, core memories, and
// full source attribution.
type Artifact struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"session_id"`
	TemplateID  string    `json:"template_id"`
	PayloadJSON string    `json:"-"`
	CreatedAt   time.Time `json:"created_at"`
}

// ArtifactLink ties an artifact to a related record (e.g. its originating
// template).
type ArtifactLink struct {
	ID         string    `json:"id"`
	ArtifactID string    `json:"artifact_id"`
	TargetType string    `json:"target_type"`
	TargetID   string    `json:"target_id"`
	Relation   string    `json:"relation"`
	CreatedAt  time.Time `json:"created_at"`
}

// ArtifactAction is an action record appended alongside an artifact, such as
// the interview-completed action written at persistence time.
type ArtifactAction struct {
	ID          string    `json:"id"`
	ArtifactID  string    `json:"artifact_id"`
	SessionID   string    `json:"session_id"`
	Kind        string    `json:"kind"`
	PayloadJSON string    `json:"payload,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// AuditEvent is one append-only trust event. Validation is "passed" or
// "failed"; malformed events are recorded, not dropped, to preserve a
// complete audit trail.
type AuditEvent struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	SessionID     string    `json:"session_id"`
	SchemaVersion string    `json:"schema_version"`
	PayloadJSON   string    `json:"payload"`
	Validation    string    `json:"validation"`
	OccurredAt    time.Time `json:"occurred_at"`
}
