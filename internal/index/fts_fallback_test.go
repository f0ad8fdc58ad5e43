//go:build !sqlite_fts5

package index

import (
	"strings"
	"testing"
	"time"
)

func TestSnippetAround(t *testing.T) {
	body := strings.Repeat("lead ", 40) + "Needle in the middle " + strings.Repeat("tail ", 40)
	got := snippetAround(body, "needle", 40)
	if !strings.Contains(got, "<b>Needle</b>") {
		t.Errorf("hit not marked: %q", got)
	}
	if !strings.HasPrefix(got, "...") || !strings.HasSuffix(got, "...") {
		t.Errorf("missing ellipses: %q", got)
	}

	if got := snippetAround("short body", "absent", 40); got != "short body" {
		t.Errorf("no-hit snippet = %q", got)
	}
}

func TestSearch_WildcardsAreNotPatterns(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertDocument(row("a.md", "001", "notes", time.Time{}), "progress at 100 percent")
	_ = db.UpsertDocument(row("b.md", "002", "notes", time.Time{}), "snake_case names")

	if got, _ := db.Search("%", 10); len(got) != 0 {
		t.Errorf("%% matched %d documents", len(got))
	}
	if got, _ := db.Search("snake_case", 10); len(got) != 1 || got[0].Path != "b.md" {
		t.Errorf("snake_case = %+v", got)
	}
}
