package models

import (
	"testing"
)

func TestMergeTags_Dedup(t *testing.T) {
	got := MergeTags([]string{"go", "ml"}, "ml", " rust ", "", "Go", "go")
	want := []string{"go", "ml", "rust", "Go"}
	if len(got) != len(want) {
		t.Fatalf("tags = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("tags[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestMergeTags_CollapsesStoredDuplicates(t *testing.T) {
	got := MergeTags([]string{"a", "a"})
	if len(got) != 1 {
		t.Errorf("tags = %v, want [a]", got)
	}
}

func TestDraftValidate(t *testing.T) {
	cases := []struct {
		name    string
		draft   Draft
		wantErr bool
	}{
		{"text ok", Draft{Kind: KindText, Channel: "notes"}, false},
		{"voice ok", Draft{Kind: KindVoice, Channel: "notes"}, false},
		{"article ok", Draft{Kind: KindArticle, Channel: "links", Article: &ArticleMeta{URL: "https://x"}}, false},
		{"paper ok", Draft{Kind: KindPaper, Channel: "papers", Paper: &PaperMeta{ExternalID: "2401.1"}}, false},
		{"unknown kind", Draft{Kind: "video", Channel: "x"}, true},
		{"missing channel", Draft{Kind: KindText}, true},
		{"article without meta", Draft{Kind: KindArticle, Channel: "x"}, true},
		{"paper with article meta", Draft{Kind: KindPaper, Channel: "x", Paper: &PaperMeta{}, Article: &ArticleMeta{}}, true},
		{"text with meta", Draft{Kind: KindText, Channel: "x", Paper: &PaperMeta{}}, true},
	}
	for _, c := range cases {
		err := c.draft.Validate()
		if (err != nil) != c.wantErr {
			t.Errorf("%s: err = %v, wantErr %v", c.name, err, c.wantErr)
		}
	}
}

func TestRecordTitle(t *testing.T) {
	r := Record{Kind: KindText, Content: "\nfirst line\nsecond"}
	if got := r.Title(); got != "first line" {
		t.Errorf("title = %q", got)
	}
	r = Record{Kind: KindPaper, Paper: &PaperMeta{Title: "Attention"}}
	if got := r.Title(); got != "Attention" {
		t.Errorf("title = %q", got)
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("hello world", 5); got != "hell…" {
		t.Errorf("got %q", got)
	}
	if got := Truncate("short", 10); got != "short" {
		t.Errorf("got %q", got)
	}
}
