package index

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/starford/gleaner/internal/parser"
	"github.com/starford/gleaner/internal/storage"
)

// Report counts what a Sync did.
type Report struct {
	Scanned   int `json:"scanned"`
	Indexed   int `json:"indexed"`
	Unchanged int `json:"unchanged"`
	Removed   int `json:"removed"`
	Failed    int `json:"failed"`
}

func (r Report) String() string {
	return fmt.Sprintf("scanned %d, indexed %d, unchanged %d, removed %d, failed %d",
		r.Scanned, r.Indexed, r.Unchanged, r.Removed, r.Failed)
}

// Sync reconciles the index with the vault. Documents whose checksum
// matches the index are skipped; index rows without a file are dropped.
// A document that cannot be read or parsed is counted and skipped.
func Sync(db DocumentIndex, vault storage.Provider, logger *slog.Logger) (Report, error) {
	var rep Report
	files, err := vault.List("")
	if err != nil {
		return rep, err
	}
	known, err := db.AllChecksums()
	if err != nil {
		return rep, err
	}
	rep.Scanned = len(files)

	for _, f := range files {
		cs, indexed := known[f.Path]
		delete(known, f.Path)
		if indexed && cs == f.Checksum {
			rep.Unchanged++
			continue
		}
		data, err := vault.Read(f.Path)
		if err == nil {
			err = IndexDocument(db, f.Path, data)
		}
		if err != nil {
			rep.Failed++
			logger.Warn("sync: document skipped", slog.String("path", f.Path), slog.String("error", err.Error()))
			continue
		}
		rep.Indexed++
	}

	// Whatever is left in known has no file behind it.
	for path := range known {
		if err := db.DeleteDocument(path); err != nil {
			rep.Failed++
			logger.Warn("sync: stale row kept", slog.String("path", path), slog.String("error", err.Error()))
			continue
		}
		rep.Removed++
	}

	logger.Info("sync: done",
		slog.Int("scanned", rep.Scanned),
		slog.Int("indexed", rep.Indexed),
		slog.Int("removed", rep.Removed),
		slog.Int("failed", rep.Failed))
	return rep, nil
}

// Rebuild drops every index row and reindexes the vault from scratch.
func Rebuild(db DocumentIndex, vault storage.Provider, logger *slog.Logger) (Report, error) {
	known, err := db.AllChecksums()
	if err != nil {
		return Report{}, err
	}
	for path := range known {
		if err := db.DeleteDocument(path); err != nil {
			return Report{}, err
		}
	}
	return Sync(db, vault, logger)
}

// IndexDocument parses a rendered document and upserts it. Record metadata
// comes from the frontmatter, so hand-edited tags and titles are indexed
// as written.
func IndexDocument(db DocumentIndex, path string, data []byte) error {
	doc, err := parser.Parse(data)
	if err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return db.UpsertDocument(DocumentRow{
		Path:      path,
		RecordID:  doc.RecordID,
		Channel:   doc.Channel,
		Kind:      doc.Kind,
		Title:     doc.Title,
		Checksum:  storage.Checksum(data),
		Tags:      doc.Tags,
		CreatedAt: doc.Created,
		UpdatedAt: time.Now().UTC(),
	}, doc.Body)
}
