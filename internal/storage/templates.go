package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/castorp/soulforge/internal/template"
)

// SaveTemplate upserts a template definition. The full spec is stored as
// JSON; status is mirrored into a column for listing.
func (s *Store) SaveTemplate(t template.Template) error {
	spec, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshalling template %s: %w", t.ID, err)
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err = s.db.Exec(`
		INSERT INTO templates (id, status, spec_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET status = excluded.status, spec_json = excluded.spec_json, updated_at = excluded.updated_at`,
		t.ID, string(t.Status), string(spec), now, now,
	)
	return err
}

// GetTemplate returns a stored template by id, or ErrNotFound.
func (s *Store) GetTemplate(id string) (template.Template, error) {
	var spec string
	err := s.db.QueryRow(`SELECT spec_json FROM templates WHERE id = ?`, id).Scan(&spec)
	if err == sql.ErrNoRows {
		return template.Template{}, ErrNotFound
	}
	if err != nil {
		return template.Template{}, err
	}
	var t template.Template
	if err := json.Unmarshal([]byte(spec), &t); err != nil {
		return template.Template{}, fmt.Errorf("parsing template %s: %w", id, err)
	}
	return t, nil
}

// ListTemplates returns all stored templates.
func (s *Store) ListTemplates() ([]template.Template, error) {
	rows, err := s.db.Query(`SELECT spec_json FROM templates ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []template.Template
	for rows.Next() {
		var spec string
		if err := rows.Scan(&spec); err != nil {
			return nil, err
		}
		var t template.Template
		if err := json.Unmarshal([]byte(spec), &t); err != nil {
			return nil, fmt.Errorf("parsing stored template: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
