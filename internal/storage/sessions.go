package storage

import (
	"database/sql"
	"fmt"
	"time"
)

const sessionColumns = "id, template_id, status, content_dna_id, state_json, created_at, updated_at, last_activity_at"

// CreateSession inserts a new session row.
func (s *Store) CreateSession(sess Session) error {
	_, err := s.db.Exec(`
		INSERT INTO sessions (`+sessionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.TemplateID, sess.Status, sess.ContentDNAID, sess.StateJSON,
		sess.CreatedAt.UTC().Format(time.RFC3339Nano),
		sess.UpdatedAt.UTC().Format(time.RFC3339Nano),
		sess.LastActivityAt.UTC().Format(time.RFC3339Nano),
	)
	return err
}

// GetSession returns a session by id, or ErrNotFound.
func (s *Store) GetSession(id string) (Session, error) {
	row := s.db.QueryRow(`SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	return scanSession(row)
}

// UpdateSession applies mutate to the current session row and writes the
// result back inside one transaction. An error from mutate aborts the
// transaction and leaves the record untouched; transitions on a session are
// therefore atomic read-modify-write units.
func (s *Store) UpdateSession(id string, mutate func(*Session) error) (Session, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return Session{}, fmt.Errorf("beginning session update: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRow(`SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	sess, err := scanSession(row)
	if err != nil {
		return Session{}, err
	}

	if err := mutate(&sess); err != nil {
		return Session{}, err
	}
	sess.UpdatedAt = time.Now().UTC()

	_, err = tx.Exec(`
		UPDATE sessions
		SET template_id = ?, status = ?, content_dna_id = ?, state_json = ?, updated_at = ?, last_activity_at = ?
		WHERE id = ?`,
		sess.TemplateID, sess.Status, sess.ContentDNAID, sess.StateJSON,
		sess.UpdatedAt.Format(time.RFC3339Nano),
		sess.LastActivityAt.UTC().Format(time.RFC3339Nano),
		sess.ID,
	)
	if err != nil {
		return Session{}, fmt.Errorf("writing session %s: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return Session{}, fmt.Errorf("committing session update: %w", err)
	}
	return sess, nil
}

// ListSessions returns the most recently updated sessions.
func (s *Store) ListSessions(limit int) ([]Session, error) {
	rows, err := s.db.Query(`
		SELECT `+sessionColumns+` FROM sessions
		ORDER BY updated_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSessions(rows)
}

// ListIdleSessions returns sessions in the given status whose last activity
// predates the cutoff. Used by the idle sweeper.
func (s *Store) ListIdleSessions(status string, before time.Time) ([]Session, error) {
	rows, err := s.db.Query(`
		SELECT `+sessionColumns+` FROM sessions
		WHERE status = ? AND last_activity_at < ?
		ORDER BY last_activity_at ASC`,
		status, before.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSessions(rows)
}

// DeleteSessionCascade hard-deletes a session with its transcript and audit
// trail in one transaction. Idempotent: deleting an absent session is not an
// error.
func (s *Store) DeleteSessionCascade(id string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning session delete: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range []string{
		`DELETE FROM session_messages WHERE session_id = ?`,
		`DELETE FROM audit_events WHERE session_id = ?`,
		`DELETE FROM artifact_actions WHERE session_id = ?`,
		`DELETE FROM sessions WHERE id = ?`,
	} {
		if _, err := tx.Exec(stmt, id); err != nil {
			return fmt.Errorf("cascading session delete: %w", err)
		}
	}
	return tx.Commit()
}

// SaveMessage appends a transcript line.
func (s *Store) SaveMessage(m Message) error {
	_, err := s.db.Exec(`
		INSERT INTO session_messages (id, session_id, role, content, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		m.ID, m.SessionID, m.Role, m.Content, m.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	return err
}

// ListMessages returns a session's transcript in insertion order.
func (s *Store) ListMessages(sessionID string, limit int) ([]Message, error) {
	rows, err := s.db.Query(`
		SELECT id, session_id, role, content, created_at
		FROM session_messages WHERE session_id = ?
		ORDER BY created_at ASC LIMIT ?`, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		var createdAt string
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Content, &createdAt); err != nil {
			return nil, err
		}
		if m.CreatedAt, err = parseTimestamp(createdAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (Session, error) {
	var sess Session
	var createdAt, updatedAt, lastActivity string
	err := row.Scan(&sess.ID, &sess.TemplateID, &sess.Status, &sess.ContentDNAID,
		&sess.StateJSON, &createdAt, &updatedAt, &lastActivity)
	if err == sql.ErrNoRows {
		return Session{}, ErrNotFound
	}
	if err != nil {
		return Session{}, err
	}
	if sess.CreatedAt, err = parseTimestamp(createdAt); err != nil {
		return Session{}, err
	}
	if sess.UpdatedAt, err = parseTimestamp(updatedAt); err != nil {
		return Session{}, err
	}
	if sess.LastActivityAt, err = parseTimestamp(lastActivity); err != nil {
		return Session{}, err
	}
	return sess, nil
}

func collectSessions(rows *sql.Rows) ([]Session, error) {
	var out []Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

func parseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", s, err)
	}
	return t, nil
}
