package index

import (
	"database/sql"
	"strings"
	"unicode"
)

// DocumentIndex is what the ingest service, the watcher and Sync need from
// the index.
type DocumentIndex interface {
	UpsertDocument(d DocumentRow, body string) error
	DeleteDocument(path string) error
	GetChecksum(path string) (string, error)
	GetDocument(path string) (*DocumentRow, error)
	PathForRecord(id string) (string, error)
	ListDocuments(channel, tag string, limit, offset int) ([]DocumentRow, int, error)
	Search(query string, limit int) ([]SearchResult, error)
	AllChecksums() (map[string]string, error)
	Close() error
}

var _ DocumentIndex = (*DB)(nil)

// DefaultSearchLimit caps search results when the caller gives no limit.
const DefaultSearchLimit = 20

func searchLimit(n int) int {
	if n <= 0 {
		return DefaultSearchLimit
	}
	return n
}

// searchTerms splits a query into words, dropping punctuation so input like
// "transformers: attention?" is safe for both search backends.
func searchTerms(query string) []string {
	return strings.FieldsFunc(query, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-' && r != '\''
	})
}

func scanResults(rows *sql.Rows) ([]SearchResult, error) {
	var out []SearchResult
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.Path, &r.RecordID, &r.Channel, &r.Title, &r.Snippet); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
