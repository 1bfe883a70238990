package audit

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/castorp/soulforge/internal/storage"
)

// EventStore defines the storage operation the Emitter needs.
// Implemented by storage.Store.
type EventStore interface {
	AppendAuditEvent(e storage.AuditEvent) error
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Emitter validates and appends trust events.
type Emitter struct {
	store  EventStore
	clock  Clock
	logger *slog.Logger
}

// NewEmitter creates an Emitter writing to the given store.
func NewEmitter(store EventStore) *Emitter {
	return NewEmitterWithClock(store, realClock{})
}

// NewEmitterWithClock creates an Emitter with a custom clock (for testing).
func NewEmitterWithClock(store EventStore, clock Clock) *Emitter {
	return &Emitter{store: store, clock: clock, logger: slog.Default()}
}

// Emit validates, tags, and appends one trust event. A failed validation
// does not block the write; only a storage failure is an error.
func (e *Emitter) Emit(name, sessionID string, payload map[string]any) (storage.AuditEvent, error) {
	now := e.clock.Now().UTC()

	body := "{}"
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return storage.AuditEvent{}, fmt.Errorf("marshalling payload for %s: %w", name, err)
		}
		body = string(b)
	}

	validation := ValidationPassed
	if problems := Validate(name, sessionID, now); len(problems) > 0 {
		validation = ValidationFailed
		e.logger.Warn("trust event failed validation, recording anyway",
			"event", name, "session_id", sessionID, "problems", problems)
	}

	event := storage.AuditEvent{
		ID:            EventID(name, sessionID, now),
		Name:          name,
		SessionID:     sessionID,
		SchemaVersion: TaxonomyVersion,
		PayloadJSON:   body,
		Validation:    validation,
		OccurredAt:    now,
	}
	if err := e.store.AppendAuditEvent(event); err != nil {
		return storage.AuditEvent{}, fmt.Errorf("appending %s event: %w", name, err)
	}
	return event, nil
}
