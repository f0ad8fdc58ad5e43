// Package parser reads rendered record documents back into structured form
// and extracts inline #hashtags from free text.
package parser

import (
	"bytes"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

var tagRe = regexp.MustCompile(`(?:^|\s)#([A-Za-z][A-Za-z0-9_./-]*)`)

// Document holds the parsed form of a Markdown record document.
type Document struct {
	Frontmatter map[string]any
	Body        string
	RecordID    string
	Channel     string
	Kind        string
	Source      string
	Created     time.Time
	Tags        []string
	Title       string
}

// Parse splits frontmatter from body and reads the record fields. A
// document carrying a record id takes its tags from frontmatter only;
// other documents also collect inline #tags from the body.
func Parse(data []byte) (*Document, error) {
	fm, body := splitFrontmatter(data)
	doc := &Document{
		Frontmatter: fm,
		Body:        body,
		RecordID:    stringField(fm, "id"),
		Channel:     stringField(fm, "channel"),
		Kind:        stringField(fm, "kind"),
		Source:      stringField(fm, "source"),
		Created:     timeField(fm, "created"),
	}
	doc.Tags = listField(fm, "tags")
	if doc.RecordID == "" {
		doc.Tags = mergeUnique(doc.Tags, ExtractTags(body))
	}
	doc.Title = deriveTitle(fm, body)
	return doc, nil
}

// splitFrontmatter separates YAML frontmatter (between leading --- delimiters)
// from the Markdown body. Missing or invalid frontmatter leaves the whole
// input as body.
func splitFrontmatter(data []byte) (map[string]any, string) {
	const delim = "---"
	trimmed := bytes.TrimLeft(data, "\n\r")
	if !bytes.HasPrefix(trimmed, []byte(delim)) {
		return nil, string(data)
	}

	rest := trimmed[len(delim):]
	idx := bytes.Index(rest, []byte("\n"+delim))
	if idx < 0 {
		return nil, string(data)
	}
	yamlBlock := rest[:idx]
	body := strings.TrimLeft(string(rest[idx+1+len(delim):]), "\n\r")

	var fm map[string]any
	if err := yaml.Unmarshal(yamlBlock, &fm); err != nil {
		return nil, string(data)
	}
	return fm, body
}

// ExtractTags returns the distinct #hashtags in text, in order of first
// appearance. Trailing punctuation is not part of a tag.
func ExtractTags(text string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, m := range tagRe.FindAllStringSubmatch(text, -1) {
		t := strings.TrimRight(m[1], "./-")
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

func stringField(fm map[string]any, key string) string {
	switch v := fm[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case int:
		return strconv.Itoa(v)
	}
	return ""
}

func timeField(fm map[string]any, key string) time.Time {
	switch v := fm[key].(type) {
	case time.Time:
		return v.UTC()
	case string:
		if t, err := time.Parse(time.RFC3339, strings.TrimSpace(v)); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

func listField(fm map[string]any, key string) []string {
	raw, ok := fm[key].([]any)
	if !ok {
		return nil
	}
	var out []string
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = mergeUnique(out, []string{s})
		}
	}
	return out
}

func mergeUnique(base, more []string) []string {
	seen := make(map[string]struct{}, len(base))
	for _, s := range base {
		seen[s] = struct{}{}
	}
	for _, s := range more {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		base = append(base, s)
	}
	return base
}

// deriveTitle returns the frontmatter "title" if present, otherwise the first
// H1 heading, otherwise empty string.
func deriveTitle(fm map[string]any, body string) string {
	if s := stringField(fm, "title"); s != "" {
		return s
	}
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			return strings.TrimSpace(trimmed[2:])
		}
	}
	return ""
}
