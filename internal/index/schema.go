// Package index keeps a SQLite index of the rendered documents in the vault
// for listing, tag filtering and full-text search. Build with the
// sqlite_fts5 tag for ranked FTS5 search; otherwise a LIKE scan is used.
package index

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// migrations are applied in order; PRAGMA user_version records how many
// have run.
var migrations = []string{
	`CREATE TABLE documents (
		path       TEXT PRIMARY KEY,
		record_id  TEXT NOT NULL DEFAULT '',
		channel    TEXT NOT NULL DEFAULT '',
		kind       TEXT NOT NULL DEFAULT '',
		title      TEXT NOT NULL DEFAULT '',
		checksum   TEXT NOT NULL DEFAULT '',
		tags       TEXT NOT NULL DEFAULT '[]',
		body       TEXT NOT NULL DEFAULT '',
		created_at DATETIME,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX idx_documents_record ON documents(record_id);
	CREATE INDEX idx_documents_channel ON documents(channel);`,

	`CREATE TABLE document_tags (
		path TEXT NOT NULL REFERENCES documents(path) ON DELETE CASCADE,
		tag  TEXT NOT NULL,
		PRIMARY KEY (path, tag)
	);
	CREATE INDEX idx_document_tags_tag ON document_tags(tag);
	INSERT OR IGNORE INTO document_tags (path, tag)
		SELECT documents.path, json_each.value FROM documents, json_each(documents.tags);`,
}

// DB is the SQLite-backed DocumentIndex.
type DB struct {
	conn *sql.DB
}

// Open opens or creates the index at path and brings its schema up to date.
func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("index: open %s: %w", path, err)
	}
	if err := migrate(conn); err != nil {
		conn.Close()
		return nil, err
	}
	if err := initFTS(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: fts: %w", err)
	}
	return &DB{conn: conn}, nil
}

func migrate(conn *sql.DB) error {
	var version int
	if err := conn.QueryRow(`PRAGMA user_version`).Scan(&version); err != nil {
		return fmt.Errorf("index: read schema version: %w", err)
	}
	for i := version; i < len(migrations); i++ {
		tx, err := conn.Begin()
		if err != nil {
			return fmt.Errorf("index: migration %d: %w", i+1, err)
		}
		if _, err := tx.Exec(migrations[i]); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("index: migration %d: %w", i+1, err)
		}
		if _, err := tx.Exec(fmt.Sprintf(`PRAGMA user_version = %d`, i+1)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("index: migration %d: %w", i+1, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("index: migration %d: %w", i+1, err)
		}
	}
	return nil
}

// SchemaVersion reports how many migrations have been applied.
func (db *DB) SchemaVersion() (int, error) {
	var v int
	err := db.conn.QueryRow(`PRAGMA user_version`).Scan(&v)
	return v, err
}

// Close closes the database.
func (db *DB) Close() error {
	return db.conn.Close()
}
