//go:build sqlite_fts5

package index

import (
	"testing"
	"time"
)

func TestFTS5_TableExists(t *testing.T) {
	db := testDB(t)
	var count int
	if err := db.conn.QueryRow(`SELECT count(*) FROM documents_fts`).Scan(&count); err != nil {
		t.Fatalf("documents_fts table missing: %v", err)
	}
}

func TestFTS5_SearchWithSnippet(t *testing.T) {
	db := testDB(t)
	r := row("papers/001-fts.md", "001", "papers", time.Now())
	if err := db.UpsertDocument(r, "Sparse attention gives powerful long-context models."); err != nil {
		t.Fatalf("UpsertDocument: %v", err)
	}

	results, err := db.Search("powerful", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].Path != "papers/001-fts.md" || results[0].Channel != "papers" {
		t.Errorf("result = %+v", results[0])
	}
	if results[0].Snippet == "" {
		t.Error("expected non-empty snippet")
	}
}

func TestFTS5_DeleteRemovesFromFTS(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertDocument(row("gone.md", "002", "notes", time.Time{}), "vanishing content")
	_ = db.DeleteDocument("gone.md")

	results, _ := db.Search("vanishing", 10)
	for _, r := range results {
		if r.Path == "gone.md" {
			t.Error("deleted document still in FTS index")
		}
	}
}

func TestFTS5_PrefixAndTitleRanking(t *testing.T) {
	db := testDB(t)
	inTitle := row("a.md", "010", "papers", time.Time{})
	inTitle.Title = "Transformers survey"
	_ = db.UpsertDocument(inTitle, "an overview")
	inBody := row("b.md", "011", "papers", time.Time{})
	inBody.Title = "Unrelated"
	_ = db.UpsertDocument(inBody, "we discuss transformers briefly")

	results, err := db.Search("transform", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 || results[0].Path != "a.md" {
		t.Errorf("results = %+v, want title hit first", results)
	}
}

func TestMatchExpr(t *testing.T) {
	if got := matchExpr(`attention: "long" OR`); got != `"attention"* "long"* "OR"*` {
		t.Errorf("matchExpr = %q", got)
	}
}

func TestFTS5_UpsertReplacesContent(t *testing.T) {
	db := testDB(t)
	r := row("evo.md", "003", "notes", time.Time{})
	r.Title = "Old"
	_ = db.UpsertDocument(r, "original text")
	r.Title = "New"
	_ = db.UpsertDocument(r, "replacement text")

	results, _ := db.Search("original", 10)
	if len(results) != 0 {
		t.Error("old FTS content should be gone")
	}
	results, _ = db.Search("replacement", 10)
	if len(results) != 1 || results[0].Title != "New" {
		t.Errorf("FTS not updated: %+v", results)
	}
}
