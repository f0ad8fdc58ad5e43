// Package render turns records into Markdown documents. Rendering is pure:
// the same record and detail always produce byte-identical output.
package render

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"github.com/starford/gleaner/internal/models"
)

// Detail carries optional enrichment output that is shown in the document
// but not stored on the record.
type Detail struct {
	Highlights []string
	Analysis   string
}

type frontmatter struct {
	ID      string   `yaml:"id"`
	Channel string   `yaml:"channel"`
	Kind    string   `yaml:"kind"`
	Created string   `yaml:"created"`
	Title   string   `yaml:"title,omitempty"`
	Source  string   `yaml:"source,omitempty"`
	Tags    []string `yaml:"tags,omitempty"`
}

// Render produces the Markdown document for rec. detail may be nil.
func Render(rec models.Record, detail *Detail) string {
	var b strings.Builder
	tags := sortedTags(rec.Tags)

	writeFrontmatter(&b, rec, tags)

	title := rec.Title()
	if title == "" {
		title = "Record " + rec.ID
	}
	fmt.Fprintf(&b, "# %s\n\n", title)
	fmt.Fprintf(&b, "> **Record %s** · #%s · %s · %s\n\n",
		rec.ID, rec.Channel, kindLabel(rec.Kind), rec.CreatedAt.UTC().Format("2006-01-02 15:04 UTC"))

	switch rec.Kind {
	case models.KindArticle:
		writeArticle(&b, rec)
	case models.KindPaper:
		writePaper(&b, rec)
	case models.KindVoice:
		section(&b, "Transcript", rec.Content)
	default:
		section(&b, "Note", rec.Content)
	}

	if detail != nil {
		list(&b, "Highlights", detail.Highlights, false)
		section(&b, "Analysis", detail.Analysis)
	}

	if len(tags) > 0 {
		b.WriteString("---\n\n")
		hashed := make([]string, len(tags))
		for i, t := range tags {
			hashed[i] = "#" + t
		}
		fmt.Fprintf(&b, "Tags: %s\n", strings.Join(hashed, " "))
	}
	return b.String()
}

func writeFrontmatter(b *strings.Builder, rec models.Record, tags []string) {
	fm := frontmatter{
		ID:      rec.ID,
		Channel: rec.Channel,
		Kind:    string(rec.Kind),
		Created: rec.CreatedAt.UTC().Format(time.RFC3339),
		Title:   rec.Title(),
		Source:  sourceURL(rec),
		Tags:    tags,
	}
	out, err := yaml.Marshal(fm)
	if err != nil {
		return
	}
	b.WriteString("---\n")
	b.Write(out)
	b.WriteString("---\n\n")
}

func writeArticle(b *strings.Builder, rec models.Record) {
	a := rec.Article
	if a == nil {
		section(b, "Summary", rec.Content)
		return
	}
	b.WriteString("## Source\n\n")
	field(b, "URL", a.URL)
	field(b, "Site", a.SiteName)
	field(b, "Author", a.Author)
	if a.PublishedDate != nil {
		field(b, "Published", a.PublishedDate.UTC().Format("2006-01-02"))
	}
	b.WriteString("\n")
	if d := strings.TrimSpace(a.Description); d != "" {
		fmt.Fprintf(b, "> %s\n\n", strings.ReplaceAll(d, "\n", "\n> "))
	}
	section(b, "Summary", rec.Content)
}

func writePaper(b *strings.Builder, rec models.Record) {
	p := rec.Paper
	if p == nil {
		section(b, "Summary", rec.Content)
		return
	}
	b.WriteString("## Bibliography\n\n")
	field(b, "ID", p.ExternalID)
	field(b, "Authors", strings.Join(p.Authors, ", "))
	if !p.PublishedDate.IsZero() {
		field(b, "Published", p.PublishedDate.UTC().Format("2006-01-02"))
	}
	field(b, "Categories", strings.Join(p.Categories, ", "))
	field(b, "PDF", p.DocumentURL)
	b.WriteString("\n")
	section(b, "Summary", rec.Content)
	list(b, "Key Findings", p.KeyFindings, true)
	list(b, "Applications", p.Applications, false)
}

func section(b *strings.Builder, heading, body string) {
	body = strings.TrimSpace(body)
	if body == "" {
		return
	}
	fmt.Fprintf(b, "## %s\n\n%s\n\n", heading, body)
}

func field(b *strings.Builder, name, value string) {
	if value = strings.TrimSpace(value); value != "" {
		fmt.Fprintf(b, "- **%s:** %s\n", name, value)
	}
}

func list(b *strings.Builder, heading string, items []string, numbered bool) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "## %s\n\n", heading)
	for i, it := range items {
		if numbered {
			fmt.Fprintf(b, "%d. %s\n", i+1, strings.TrimSpace(it))
		} else {
			fmt.Fprintf(b, "- %s\n", strings.TrimSpace(it))
		}
	}
	b.WriteString("\n")
}

func sourceURL(rec models.Record) string {
	switch {
	case rec.Article != nil:
		return rec.Article.URL
	case rec.Paper != nil:
		return rec.Paper.DocumentURL
	}
	return ""
}

func sortedTags(tags []string) []string {
	out := slices.Clone(tags)
	slices.Sort(out)
	return slices.Compact(out)
}

func kindLabel(k models.Kind) string {
	return cases.Title(language.English).String(string(k))
}

// FileName returns the document file name for rec: "<id>-<slug>.md".
func FileName(rec models.Record) string {
	slug := Slug(rec.Title(), 48)
	if slug == "" {
		return rec.ID + ".md"
	}
	return rec.ID + "-" + slug + ".md"
}

// Slug lowercases s and collapses every run of characters outside
// [a-z0-9] into a single hyphen, keeping at most n bytes.
func Slug(s string, n int) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	out := strings.TrimSuffix(b.String(), "-")
	if n > 0 && len(out) > n {
		out = strings.TrimSuffix(out[:n], "-")
	}
	return out
}
