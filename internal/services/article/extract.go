package article

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/starford/gleaner/internal/models"
)

// maxTextRunes bounds the body text handed to enrichment.
const maxTextRunes = 20000

// Page is the readable content of a web page.
type Page struct {
	models.ArticleMeta
	Text string
}

// Extract downloads rawURL and parses it as an article.
func (f *Fetcher) Extract(ctx context.Context, rawURL string) (*Page, error) {
	resp, err := f.get(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	if !isHTML(resp.Header.Get("Content-Type")) {
		return nil, fmt.Errorf("extract %s: unsupported content type %q", rawURL, resp.Header.Get("Content-Type"))
	}
	return Parse(io.LimitReader(resp.Body, MaxBodySize), resp.Request.URL.String())
}

// Parse extracts article metadata and body text from an HTML document.
// pageURL is recorded as the article URL unless the page declares a
// canonical one.
func Parse(r io.Reader, pageURL string) (*Page, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	p := &Page{}
	p.URL = pageURL
	if canon, ok := doc.Find(`link[rel="canonical"]`).Attr("href"); ok {
		if u := resolve(pageURL, canon); u != "" {
			p.URL = u
		}
	}
	p.Title = firstNonEmpty(
		meta(doc, "og:title"),
		meta(doc, "twitter:title"),
		doc.Find("title").First().Text(),
		doc.Find("h1").First().Text(),
	)
	p.Author = firstNonEmpty(
		meta(doc, "author"),
		meta(doc, "article:author"),
		doc.Find(`[rel="author"]`).First().Text(),
	)
	p.SiteName = meta(doc, "og:site_name")
	if p.SiteName == "" {
		if u, err := url.Parse(p.URL); err == nil {
			p.SiteName = strings.TrimPrefix(u.Hostname(), "www.")
		}
	}
	p.Description = firstNonEmpty(meta(doc, "og:description"), meta(doc, "description"))
	if published := firstNonEmpty(
		meta(doc, "article:published_time"),
		meta(doc, "date"),
		attr(doc.Find("time[datetime]").First(), "datetime"),
	); published != "" {
		if t, ok := parseDate(published); ok {
			p.PublishedDate = &t
		}
	}
	p.Text = bodyText(doc)
	return p, nil
}

// bodyText prefers the <article> or <main> element and joins paragraph text.
func bodyText(doc *goquery.Document) string {
	root := doc.Find("article").First()
	if root.Length() == 0 {
		root = doc.Find("main").First()
	}
	if root.Length() == 0 {
		root = doc.Find("body")
	}
	root.Find("script, style, nav, footer, aside, noscript").Remove()

	var parts []string
	root.Find("h1, h2, h3, p, li, blockquote, pre").Each(func(_ int, s *goquery.Selection) {
		if text := collapse(s.Text()); text != "" {
			parts = append(parts, text)
		}
	})
	text := strings.Join(parts, "\n\n")
	if text == "" {
		text = collapse(root.Text())
	}
	return models.Truncate(text, maxTextRunes)
}

func meta(doc *goquery.Document, name string) string {
	sel := doc.Find(fmt.Sprintf(`meta[property=%q], meta[name=%q]`, name, name)).First()
	return attr(sel, "content")
}

func attr(s *goquery.Selection, name string) string {
	v, _ := s.Attr(name)
	return strings.TrimSpace(v)
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = collapse(v); v != "" {
			return v
		}
	}
	return ""
}

func resolve(base, ref string) string {
	b, err := url.Parse(base)
	if err != nil {
		return ""
	}
	r, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return ""
	}
	return b.ResolveReference(r).String()
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
	time.RFC1123Z,
	time.RFC1123,
}

func parseDate(s string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
