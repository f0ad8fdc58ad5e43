package arxiv

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

const sampleFeed = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom" xmlns:arxiv="http://arxiv.org/schemas/atom">
  <title>ArXiv Query</title>
  <entry>
    <id>http://arxiv.org/abs/2401.01234v2</id>
    <published>2024-01-03T18:00:00Z</published>
    <title>Sparse
      Attention at Scale</title>
    <summary>  We study sparse attention.
    It works.  </summary>
    <author><name>Jane Doe</name></author>
    <author><name>John Roe</name></author>
    <link href="http://arxiv.org/abs/2401.01234v2" rel="alternate" type="text/html"/>
    <link title="pdf" href="http://arxiv.org/pdf/2401.01234v2" rel="related" type="application/pdf"/>
    <arxiv:primary_category term="cs.LG"/>
    <category term="cs.LG"/>
    <category term="cs.CL"/>
  </entry>
  <entry>
    <id>http://arxiv.org/abs/2312.99999v1</id>
    <published>2023-12-30T00:00:00Z</published>
    <title>Second</title>
    <summary>x</summary>
  </entry>
</feed>`

func TestParseFeed(t *testing.T) {
	papers, err := ParseFeed(strings.NewReader(sampleFeed))
	if err != nil {
		t.Fatalf("ParseFeed: %v", err)
	}
	if len(papers) != 2 {
		t.Fatalf("papers = %d, want 2", len(papers))
	}
	p := papers[0]
	if p.ID != "2401.01234v2" || p.Title != "Sparse Attention at Scale" {
		t.Errorf("id=%q title=%q", p.ID, p.Title)
	}
	if p.Abstract != "We study sparse attention. It works." {
		t.Errorf("abstract = %q", p.Abstract)
	}
	if len(p.Authors) != 2 || p.Authors[1] != "John Roe" {
		t.Errorf("authors = %v", p.Authors)
	}
	if len(p.Categories) != 2 || p.Categories[0] != "cs.LG" {
		t.Errorf("categories = %v", p.Categories)
	}
	if p.PDFURL != "http://arxiv.org/pdf/2401.01234v2" {
		t.Errorf("pdf = %q", p.PDFURL)
	}
	if p.Published.Year() != 2024 {
		t.Errorf("published = %v", p.Published)
	}
	if papers[1].PDFURL != "https://arxiv.org/pdf/2312.99999v1" {
		t.Errorf("fallback pdf = %q", papers[1].PDFURL)
	}
}

func TestSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("search_query") != "all:sparse attention" || q.Get("max_results") != "5" {
			t.Errorf("query = %v", q)
		}
		_, _ = w.Write([]byte(sampleFeed))
	}))
	defer srv.Close()

	papers, err := NewClient(srv.URL, 5).Search(context.Background(), " sparse attention ")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	meta := papers[0].Meta()
	if meta.ExternalID != "2401.01234v2" || meta.DocumentURL == "" {
		t.Errorf("meta = %+v", meta)
	}
}

func TestSearch_EmptyQuery(t *testing.T) {
	if _, err := NewClient("", 0).Search(context.Background(), "  "); err == nil {
		t.Fatal("expected error")
	}
}

func TestLookup(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("id_list") == "2401.01234v2" {
			_, _ = w.Write([]byte(sampleFeed))
			return
		}
		_, _ = w.Write([]byte(`<feed xmlns="http://www.w3.org/2005/Atom"></feed>`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 0)
	p, err := c.Lookup(context.Background(), "2401.01234v2")
	if err != nil || p.Title != "Sparse Attention at Scale" {
		t.Fatalf("Lookup = %+v, %v", p, err)
	}
	if _, err := c.Lookup(context.Background(), "9999.99999"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestFindID(t *testing.T) {
	cases := map[string]string{
		"look at https://arxiv.org/abs/2401.01234":   "2401.01234",
		"pdf: http://arxiv.org/pdf/2312.12345v3.pdf": "2312.12345v3",
		"arXiv:2105.0001 is neat":                    "2105.0001",
		"https://example.com/2401.01234":             "",
	}
	for in, want := range cases {
		got, ok := FindID(in)
		if got != want || ok != (want != "") {
			t.Errorf("FindID(%q) = %q, %v; want %q", in, got, ok, want)
		}
	}
}
