// Package testutil provides shared test helpers for wiring a complete
// ingestion service over temporary storage.
package testutil

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/starford/gleaner/internal/batch"
	"github.com/starford/gleaner/internal/enrich"
	"github.com/starford/gleaner/internal/folder"
	"github.com/starford/gleaner/internal/index"
	"github.com/starford/gleaner/internal/ingest"
	"github.com/starford/gleaner/internal/recordstore"
	"github.com/starford/gleaner/internal/services/arxiv"
	"github.com/starford/gleaner/internal/storage"
)

// QuietLogger discards everything.
var QuietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// TestDB creates a temporary SQLite index that is closed on cleanup.
func TestDB(t *testing.T) *index.DB {
	t.Helper()
	db, err := index.Open(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestVault opens a vault in a temporary directory.
func TestVault(t *testing.T) (string, *storage.FS) {
	t.Helper()
	vaultDir := t.TempDir()
	store, err := storage.NewFS(vaultDir)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return vaultDir, store
}

// TestStore opens a record store in a temporary directory.
func TestStore(t *testing.T) *recordstore.Store {
	t.Helper()
	s, err := recordstore.Open(filepath.Join(t.TempDir(), "records.json"), recordstore.WithLogger(QuietLogger))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// Papers is a fixed in-memory paper catalogue.
type Papers []arxiv.Paper

// Search returns every paper regardless of query.
func (p Papers) Search(context.Context, string) ([]arxiv.Paper, error) { return p, nil }

// Lookup finds a paper by ID.
func (p Papers) Lookup(_ context.Context, id string) (arxiv.Paper, error) {
	for _, paper := range p {
		if paper.ID == id {
			return paper, nil
		}
	}
	return arxiv.Paper{}, arxiv.ErrNotFound
}

// SamplePapers returns n papers with distinct IDs and abstracts.
func SamplePapers(n int) Papers {
	out := make(Papers, n)
	for i := range out {
		out[i] = arxiv.Paper{
			ID:        "2401.0000" + string(rune('1'+i)),
			Title:     "Paper " + string(rune('A'+i)),
			Abstract:  "Abstract of paper " + string(rune('A'+i)),
			Authors:   []string{"Author"},
			Published: time.Date(2024, 1, 1+i, 0, 0, 0, 0, time.UTC),
			PDFURL:    "https://arxiv.org/pdf/2401.0000" + string(rune('1'+i)),
		}
	}
	return out
}

// Env is a fully wired ingestion service over temporary storage.
type Env struct {
	Service *ingest.Service
	Store   *recordstore.Store
	Vault   *storage.FS
	DB      *index.DB
	Root    string
}

// NewEnv wires an offline service. Batches run without delay.
func NewEnv(t *testing.T, papers Papers, opts ...ingest.Option) *Env {
	t.Helper()
	root, vault := TestVault(t)
	e := &Env{Store: TestStore(t), Vault: vault, DB: TestDB(t), Root: root}

	exec := batch.NewExecutor(0, batch.WithLogger(QuietLogger))
	opts = append([]ingest.Option{
		ingest.WithIndex(e.DB),
		ingest.WithPaperSearch(papers),
		ingest.WithLogger(QuietLogger),
	}, opts...)
	e.Service = ingest.New(e.Store, enrich.NewSummarizer(enrich.WithLogger(QuietLogger)), vault,
		folder.NewPolicy(vault, nil), exec, opts...)
	return e
}
