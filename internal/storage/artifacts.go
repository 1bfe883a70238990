package storage

import (
	"database/sql"
	"fmt"
	"time"
)

// SaveArtifact inserts the durable Content DNA record.
func (s *Store) SaveArtifact(a Artifact) error {
	_, err := s.db.Exec(`
		INSERT INTO artifacts (id, session_id, template_id, payload_json, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		a.ID, a.SessionID, a.TemplateID, a.PayloadJSON,
		a.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	return err
}

// GetArtifact returns an artifact by id, or ErrNotFound.
func (s *Store) GetArtifact(id string) (Artifact, error) {
	var a Artifact
	var createdAt string
	err := s.db.QueryRow(`
		SELECT id, session_id, template_id, payload_json, created_at
		FROM artifacts WHERE id = ?`, id,
	).Scan(&a.ID, &a.SessionID, &a.TemplateID, &a.PayloadJSON, &createdAt)
	if err == sql.ErrNoRows {
		return Artifact{}, ErrNotFound
	}
	if err != nil {
		return Artifact{}, err
	}
	if a.CreatedAt, err = parseTimestamp(createdAt); err != nil {
		return Artifact{}, err
	}
	return a, nil
}

// DeleteArtifactCascade removes an artifact with its links and actions in
// one transaction. Idempotent: an absent artifact is not an error, so a
// decline can always unwind whatever part of a save exists.
func (s *Store) DeleteArtifactCascade(id string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning artifact delete: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range []string{
		`DELETE FROM artifact_links WHERE artifact_id = ?`,
		`DELETE FROM artifact_actions WHERE artifact_id = ?`,
		`DELETE FROM artifacts WHERE id = ?`,
	} {
		if _, err := tx.Exec(stmt, id); err != nil {
			return fmt.Errorf("cascading artifact delete: %w", err)
		}
	}
	return tx.Commit()
}

// SaveArtifactLink records a relation from an artifact to another record.
func (s *Store) SaveArtifactLink(l ArtifactLink) error {
	_, err := s.db.Exec(`
		INSERT INTO artifact_links (id, artifact_id, target_type, target_id, relation, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		l.ID, l.ArtifactID, l.TargetType, l.TargetID, l.Relation,
		l.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	return err
}

// ListArtifactLinks returns all links for an artifact.
func (s *Store) ListArtifactLinks(artifactID string) ([]ArtifactLink, error) {
	rows, err := s.db.Query(`
		SELECT id, artifact_id, target_type, target_id, relation, created_at
		FROM artifact_links WHERE artifact_id = ? ORDER BY created_at ASC`, artifactID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ArtifactLink
	for rows.Next() {
		var l ArtifactLink
		var createdAt string
		if err := rows.Scan(&l.ID, &l.ArtifactID, &l.TargetType, &l.TargetID, &l.Relation, &createdAt); err != nil {
			return nil, err
		}
		if l.CreatedAt, err = parseTimestamp(createdAt); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// SaveArtifactAction appends an action record for an artifact.
func (s *Store) SaveArtifactAction(a ArtifactAction) error {
	_, err := s.db.Exec(`
		INSERT INTO artifact_actions (id, artifact_id, session_id, kind, payload_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		a.ID, a.ArtifactID, a.SessionID, a.Kind, a.PayloadJSON,
		a.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	return err
}

// ListArtifactActions returns all actions recorded for an artifact.
func (s *Store) ListArtifactActions(artifactID string) ([]ArtifactAction, error) {
	rows, err := s.db.Query(`
		SELECT id, artifact_id, session_id, kind, payload_json, created_at
		FROM artifact_actions WHERE artifact_id = ? ORDER BY created_at ASC`, artifactID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ArtifactAction
	for rows.Next() {
		var a ArtifactAction
		var createdAt string
		if err := rows.Scan(&a.ID, &a.ArtifactID, &a.SessionID, &a.Kind, &a.PayloadJSON, &createdAt); err != nil {
			return nil, err
		}
		if a.CreatedAt, err = parseTimestamp(createdAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
