//go:build !sqlite_fts5

package index

import (
	"database/sql"
	"fmt"
	"strings"
	"unicode/utf8"
)

func initFTS(*sql.DB) error { return nil }

func ftsUpsert(*sql.Tx, string, string, string, []string) error { return nil }

func ftsDelete(*sql.Tx, string) error { return nil }

// Search requires every term to appear in the title, body or tags, newest
// documents first.
func (db *DB) Search(query string, limit int) ([]SearchResult, error) {
	terms := searchTerms(query)
	if len(terms) == 0 {
		return nil, nil
	}
	var where []string
	var args []any
	for _, t := range terms {
		like := "%" + t + "%"
		where = append(where, `(title LIKE ? OR body LIKE ? OR tags LIKE ?)`)
		args = append(args, like, like, like)
	}
	args = append(args, searchLimit(limit))
	rows, err := db.conn.Query(`
		SELECT path, record_id, channel, title, body
		FROM documents
		WHERE `+strings.Join(where, " AND ")+`
		ORDER BY coalesce(created_at, updated_at) DESC
		LIMIT ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("index: search %q: %w", query, err)
	}
	defer rows.Close()

	out, err := scanResults(rows)
	for i := range out {
		out[i].Snippet = snippetAround(out[i].Snippet, terms[0], 80)
	}
	return out, err
}

// snippetAround cuts a window of about width bytes of body centred on the
// first case-insensitive occurrence of term and marks the hit.
func snippetAround(body, term string, width int) string {
	at := strings.Index(body, term)
	if lower := strings.ToLower(body); len(lower) == len(body) {
		at = strings.Index(lower, strings.ToLower(term))
	}
	if at < 0 {
		return clip(body, 0, width)
	}
	start := max(0, at-width/2)
	for start > 0 && !utf8.RuneStart(body[start]) {
		start--
	}
	end := at + len(term)
	s := body[start:at] + "<b>" + body[at:end] + "</b>" + clip(body, end, width/2)
	if start > 0 {
		s = "..." + s
	}
	return s
}

func clip(s string, from, n int) string {
	end := min(len(s), from+n)
	for end < len(s) && !utf8.RuneStart(s[end]) {
		end++
	}
	out := s[from:end]
	if end < len(s) {
		out += "..."
	}
	return out
}
