// Package audit emits the append-only trust events that accompany interview
// sessions. Audit continuity outranks strict validation at the sink: a
// malformed event is written with a failed validation tag, never dropped.
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// TaxonomyVersion tags every emitted event with the schema family it was
// validated against.
const TaxonomyVersion = "trust.v1"

// Event names in the trust.v1 taxonomy.
const (
	EventConsentPrompted       = "consent_prompted"
	EventConsentDecided        = "consent_decided"
	EventWriteBlockedNoConsent = "write_blocked_no_consent"
	EventArtifactComposed      = "artifact_composed"
	EventArtifactSourceLinked  = "artifact_source_linked"
	EventInterviewCompleted    = "interview_completed"
)

// Validation tags.
const (
	ValidationPassed = "passed"
	ValidationFailed = "failed"
)

var knownEvents = map[string]bool{
	EventConsentPrompted:       true,
	EventConsentDecided:        true,
	EventWriteBlockedNoConsent: true,
	EventArtifactComposed:      true,
	EventArtifactSourceLinked:  true,
	EventInterviewCompleted:    true,
}

// EventID derives the deterministic event id from (name, sessionID,
// timestamp) so replayed emissions dedup at the sink.
func EventID(name, sessionID string, occurredAt time.Time) string {
	h := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s", name, sessionID, occurredAt.UTC().Format(time.RFC3339Nano))))
	return hex.EncodeToString(h[:])[:32]
}

// Validate checks an event against the taxonomy. It returns the problems
// found; an empty slice means the event passes.
func Validate(name, sessionID string, occurredAt time.Time) []string {
	var problems []string
	if !knownEvents[name] {
		problems = append(problems, fmt.Sprintf("unknown event name %q", name))
	}
	if sessionID == "" {
		problems = append(problems, "missing session id")
	}
	if occurredAt.IsZero() {
		problems = append(problems, "missing timestamp")
	}
	return problems
}
