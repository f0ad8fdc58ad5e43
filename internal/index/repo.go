package index

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/starford/gleaner/internal/apperr"
)

// DocumentRow represents a row in the documents table.
type DocumentRow struct {
	Path      string    `json:"path"`
	RecordID  string    `json:"record_id,omitempty"`
	Channel   string    `json:"channel,omitempty"`
	Kind      string    `json:"kind,omitempty"`
	Title     string    `json:"title"`
	Checksum  string    `json:"checksum"`
	Tags      []string  `json:"tags"`
	CreatedAt time.Time `json:"created_at,omitzero"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SearchResult represents one search hit.
type SearchResult struct {
	Path     string `json:"path"`
	RecordID string `json:"record_id,omitempty"`
	Channel  string `json:"channel,omitempty"`
	Title    string `json:"title"`
	Snippet  string `json:"snippet"`
}

// UpsertDocument stores a document with its tags and search text in one
// transaction.
func (db *DB) UpsertDocument(d DocumentRow, body string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if d.Tags == nil {
		d.Tags = []string{}
	}
	tagsJSON, _ := json.Marshal(d.Tags)
	var created any
	if !d.CreatedAt.IsZero() {
		created = d.CreatedAt.UTC()
	}

	_, err = tx.Exec(`
		INSERT INTO documents (path, record_id, channel, kind, title, checksum, tags, body, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			record_id  = excluded.record_id,
			channel    = excluded.channel,
			kind       = excluded.kind,
			title      = excluded.title,
			checksum   = excluded.checksum,
			tags       = excluded.tags,
			body       = excluded.body,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at
	`, d.Path, d.RecordID, d.Channel, d.Kind, d.Title, d.Checksum, string(tagsJSON), body, created, d.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("index: upsert document: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM document_tags WHERE path = ?`, d.Path); err != nil {
		return fmt.Errorf("index: clear tags: %w", err)
	}
	for _, tag := range d.Tags {
		if _, err := tx.Exec(`INSERT OR IGNORE INTO document_tags (path, tag) VALUES (?, ?)`, d.Path, tag); err != nil {
			return fmt.Errorf("index: tag %s: %w", tag, err)
		}
	}
	if err := ftsUpsert(tx, d.Path, d.Title, body, d.Tags); err != nil {
		return err
	}
	return tx.Commit()
}

// DeleteDocument removes a document from the index.
func (db *DB) DeleteDocument(path string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := ftsDelete(tx, path); err != nil {
		return err
	}
	// document_tags rows go with the document.
	if _, err := tx.Exec(`DELETE FROM documents WHERE path = ?`, path); err != nil {
		return fmt.Errorf("index: delete document: %w", err)
	}
	return tx.Commit()
}

// GetChecksum returns the stored checksum for a document, or empty string if not found.
func (db *DB) GetChecksum(path string) (string, error) {
	var cs string
	err := db.conn.QueryRow(`SELECT checksum FROM documents WHERE path = ?`, path).Scan(&cs)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("index: checksum: %w", err)
	}
	return cs, nil
}

// AllChecksums returns path → checksum for every indexed document.
func (db *DB) AllChecksums() (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT path, checksum FROM documents`)
	if err != nil {
		return nil, fmt.Errorf("index: all checksums: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var p, cs string
		if err := rows.Scan(&p, &cs); err != nil {
			return nil, err
		}
		out[p] = cs
	}
	return out, rows.Err()
}

const documentColumns = `path, record_id, channel, kind, title, checksum, tags, created_at, updated_at`

// GetDocument returns the row stored for path.
func (db *DB) GetDocument(path string) (*DocumentRow, error) {
	row := db.conn.QueryRow(`SELECT `+documentColumns+` FROM documents WHERE path = ?`, path)
	d, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("index: document %s: %w", path, apperr.ErrNotFound)
	}
	return d, err
}

// PathForRecord returns the document path indexed for a record id.
func (db *DB) PathForRecord(id string) (string, error) {
	var p string
	err := db.conn.QueryRow(`SELECT path FROM documents WHERE record_id = ? ORDER BY updated_at DESC LIMIT 1`, id).Scan(&p)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("index: record %s: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("index: record path: %w", err)
	}
	return p, nil
}

// ListDocuments returns documents newest first, optionally filtered by
// channel and tag, together with the unpaged total.
func (db *DB) ListDocuments(channel, tag string, limit, offset int) ([]DocumentRow, int, error) {
	if limit <= 0 {
		limit = 50
	}
	var where []string
	var args []any
	if channel != "" {
		where = append(where, "channel = ?")
		args = append(args, channel)
	}
	if tag != "" {
		where = append(where, "path IN (SELECT path FROM document_tags WHERE tag = ?)")
		args = append(args, tag)
	}
	cond := ""
	if len(where) > 0 {
		cond = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := db.conn.QueryRow(`SELECT count(*) FROM documents`+cond, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("index: count documents: %w", err)
	}

	rows, err := db.conn.Query(`SELECT `+documentColumns+` FROM documents`+cond+
		` ORDER BY coalesce(created_at, updated_at) DESC, path DESC LIMIT ? OFFSET ?`,
		append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("index: list documents: %w", err)
	}
	defer rows.Close()
	var out []DocumentRow
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *d)
	}
	return out, total, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(s scanner) (*DocumentRow, error) {
	var (
		d       DocumentRow
		tags    string
		created sql.NullTime
	)
	if err := s.Scan(&d.Path, &d.RecordID, &d.Channel, &d.Kind, &d.Title, &d.Checksum, &tags, &created, &d.UpdatedAt); err != nil {
		return nil, err
	}
	if created.Valid {
		d.CreatedAt = created.Time
	}
	if err := json.Unmarshal([]byte(tags), &d.Tags); err != nil || d.Tags == nil {
		d.Tags = []string{}
	}
	return &d, nil
}
