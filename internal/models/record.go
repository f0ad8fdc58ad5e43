// Package models defines the domain types for gleaner.
package models

import (
	"fmt"
	"strings"
	"time"
)

// Kind classifies what a record was captured from.
type Kind string

const (
	KindText    Kind = "text"
	KindVoice   Kind = "voice"
	KindArticle Kind = "article"
	KindPaper   Kind = "paper"
)

// Kinds lists every valid Kind in display order.
var Kinds = []Kind{KindText, KindVoice, KindArticle, KindPaper}

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindText, KindVoice, KindArticle, KindPaper:
		return true
	}
	return false
}

// Record is a durable, uniquely identified unit of captured content.
type Record struct {
	ID           string       `json:"id"`
	Channel      string       `json:"channel"`
	Kind         Kind         `json:"kind"`
	Content      string       `json:"content"`
	CreatedAt    time.Time    `json:"created_at"`
	Tags         []string     `json:"tags"`
	Article      *ArticleMeta `json:"article,omitempty"`
	Paper        *PaperMeta   `json:"paper,omitempty"`
	RenderedPath string       `json:"rendered_path,omitempty"`
}

// ArticleMeta is the metadata carried by article records.
type ArticleMeta struct {
	URL           string     `json:"url"`
	Title         string     `json:"title"`
	Author        string     `json:"author,omitempty"`
	PublishedDate *time.Time `json:"published_date,omitempty"`
	SiteName      string     `json:"site_name,omitempty"`
	Description   string     `json:"description,omitempty"`
}

// PaperMeta is the metadata carried by paper records.
type PaperMeta struct {
	ExternalID    string    `json:"external_id"`
	Title         string    `json:"title"`
	Authors       []string  `json:"authors"`
	PublishedDate time.Time `json:"published_date"`
	Categories    []string  `json:"categories"`
	DocumentURL   string    `json:"document_url"`
	KeyFindings   []string  `json:"key_findings,omitempty"`
	Applications  []string  `json:"applications,omitempty"`
}

// Title returns the human-facing title of the record: the article or paper
// title when present, otherwise the first line of content.
func (r Record) Title() string {
	switch {
	case r.Article != nil && r.Article.Title != "":
		return r.Article.Title
	case r.Paper != nil && r.Paper.Title != "":
		return r.Paper.Title
	}
	line, _, _ := strings.Cut(strings.TrimSpace(r.Content), "\n")
	return Truncate(strings.TrimSpace(line), 80)
}

// Draft holds the caller-supplied fields of a record that is not yet stored.
type Draft struct {
	Kind    Kind
	Channel string
	Content string
	Tags    []string
	Article *ArticleMeta
	Paper   *PaperMeta
}

// Validate checks that the draft's metadata shape matches its kind.
func (d Draft) Validate() error {
	if !d.Kind.Valid() {
		return fmt.Errorf("unknown kind %q", d.Kind)
	}
	if strings.TrimSpace(d.Channel) == "" {
		return fmt.Errorf("channel is required")
	}
	switch d.Kind {
	case KindArticle:
		if d.Article == nil || d.Paper != nil {
			return fmt.Errorf("article record requires article metadata only")
		}
	case KindPaper:
		if d.Paper == nil || d.Article != nil {
			return fmt.Errorf("paper record requires paper metadata only")
		}
	default:
		if d.Article != nil || d.Paper != nil {
			return fmt.Errorf("%s record must not carry metadata", d.Kind)
		}
	}
	return nil
}

// MergeTags appends each tag in more to tags unless already present.
// Incoming tags are trimmed and empty ones dropped; stored tags are
// compared verbatim.
func MergeTags(tags []string, more ...string) []string {
	seen := make(map[string]struct{}, len(tags)+len(more))
	out := make([]string, 0, len(tags)+len(more))
	for _, t := range tags {
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	for _, t := range more {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// Truncate shortens s to at most n runes, marking the cut with an ellipsis.
func Truncate(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	if n == 1 {
		return "…"
	}
	return string(r[:n-1]) + "…"
}
