//go:build sqlite_fts5

package index

import (
	"database/sql"
	"fmt"
	"strings"
)

func initFTS(conn *sql.DB) error {
	_, err := conn.Exec(`CREATE VIRTUAL TABLE IF NOT EXISTS documents_fts USING fts5(
		path UNINDEXED, title, body, tags,
		tokenize = 'unicode61 remove_diacritics 2'
	)`)
	return err
}

func ftsUpsert(tx *sql.Tx, path, title, body string, tags []string) error {
	if _, err := tx.Exec(`DELETE FROM documents_fts WHERE path = ?`, path); err != nil {
		return fmt.Errorf("index: fts clear %s: %w", path, err)
	}
	if _, err := tx.Exec(`INSERT INTO documents_fts (path, title, body, tags) VALUES (?, ?, ?, ?)`,
		path, title, body, strings.Join(tags, " ")); err != nil {
		return fmt.Errorf("index: fts insert %s: %w", path, err)
	}
	return nil
}

func ftsDelete(tx *sql.Tx, path string) error {
	if _, err := tx.Exec(`DELETE FROM documents_fts WHERE path = ?`, path); err != nil {
		return fmt.Errorf("index: fts delete %s: %w", path, err)
	}
	return nil
}

// matchExpr turns free chat text into an FTS5 expression: every term is a
// quoted prefix query and all terms must match. Operators typed by the user
// are treated as words.
func matchExpr(query string) string {
	terms := searchTerms(query)
	for i, t := range terms {
		terms[i] = `"` + strings.ReplaceAll(t, `"`, `""`) + `"*`
	}
	return strings.Join(terms, " ")
}

// Search ranks documents with bm25, title hits weighted above body hits.
func (db *DB) Search(query string, limit int) ([]SearchResult, error) {
	expr := matchExpr(query)
	if expr == "" {
		return nil, nil
	}
	rows, err := db.conn.Query(`
		SELECT d.path, d.record_id, d.channel, d.title,
		       snippet(documents_fts, 2, '<b>', '</b>', '...', 24)
		FROM documents_fts
		JOIN documents d ON d.path = documents_fts.path
		WHERE documents_fts MATCH ?
		ORDER BY bm25(documents_fts, 0, 5.0, 1.0, 2.0)
		LIMIT ?`, expr, searchLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("index: search %q: %w", query, err)
	}
	defer rows.Close()
	return scanResults(rows)
}
