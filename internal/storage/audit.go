package storage

import (
	"time"
)

// AppendAuditEvent appends a trust event. Event ids are deterministic, so a
// replayed emission is a no-op rather than a duplicate row.
func (s *Store) AppendAuditEvent(e AuditEvent) error {
	_, err := s.db.Exec(`
		INSERT INTO audit_events (id, name, session_id, schema_version, payload_json, validation, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		e.ID, e.Name, e.SessionID, e.SchemaVersion, e.PayloadJSON, e.Validation,
		e.OccurredAt.UTC().Format(time.RFC3339Nano),
	)
	return err
}

// ListAuditEvents returns a session's trust events oldest first.
func (s *Store) ListAuditEvents(sessionID string) ([]AuditEvent, error) {
	rows, err := s.db.Query(`
		SELECT id, name, session_id, schema_version, payload_json, validation, occurred_at
		FROM audit_events WHERE session_id = ? ORDER BY occurred_at ASC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AuditEvent
	for rows.Next() {
		var e AuditEvent
		var occurredAt string
		if err := rows.Scan(&e.ID, &e.Name, &e.SessionID, &e.SchemaVersion, &e.PayloadJSON, &e.Validation, &occurredAt); err != nil {
			return nil, err
		}
		if e.OccurredAt, err = parseTimestamp(occurredAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// CountAuditEvents returns how many events with the given name exist for a
// session.
func (s *Store) CountAuditEvents(sessionID, name string) (int, error) {
	var n int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM audit_events WHERE session_id = ? AND name = ?`,
		sessionID, name).Scan(&n)
	return n, err
}
