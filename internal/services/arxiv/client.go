// Package arxiv queries the arXiv Atom API for papers.
package arxiv

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/starford/gleaner/internal/models"
)

const (
	defaultBaseURL    = "http://export.arxiv.org/api/query"
	defaultMaxResults = 10
	defaultTimeout    = 20 * time.Second
)

// Paper is one search hit.
type Paper struct {
	ID         string
	Title      string
	Abstract   string
	Authors    []string
	Published  time.Time
	Categories []string
	PDFURL     string
}

// Meta converts the hit to record metadata.
func (p Paper) Meta() *models.PaperMeta {
	return &models.PaperMeta{
		ExternalID:    p.ID,
		Title:         p.Title,
		Authors:       append([]string(nil), p.Authors...),
		PublishedDate: p.Published,
		Categories:    append([]string(nil), p.Categories...),
		DocumentURL:   p.PDFURL,
	}
}

// Client searches arXiv.
type Client struct {
	baseURL    string
	maxResults int
	httpClient *http.Client
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// NewClient returns a client. Empty baseURL and non-positive maxResults
// fall back to defaults.
func NewClient(baseURL string, maxResults int, opts ...Option) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultBaseURL
	}
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}
	c := &Client{
		baseURL:    baseURL,
		maxResults: maxResults,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ErrNotFound is returned by Lookup for an unknown identifier.
var ErrNotFound = errors.New("arxiv: paper not found")

// Search runs a full-text query, newest submissions first.
func (c *Client) Search(ctx context.Context, query string) ([]Paper, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.New("arxiv: empty query")
	}
	params := url.Values{}
	params.Set("search_query", "all:"+query)
	params.Set("start", "0")
	params.Set("max_results", strconv.Itoa(c.maxResults))
	params.Set("sortBy", "submittedDate")
	params.Set("sortOrder", "descending")
	return c.query(ctx, params)
}

// Lookup fetches a single paper by arXiv identifier, e.g. "2401.01234".
func (c *Client) Lookup(ctx context.Context, id string) (Paper, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Paper{}, errors.New("arxiv: empty id")
	}
	params := url.Values{}
	params.Set("id_list", id)
	papers, err := c.query(ctx, params)
	if err != nil {
		return Paper{}, err
	}
	if len(papers) == 0 {
		return Paper{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return papers[0], nil
}

var idRe = regexp.MustCompile(`(?i)(?:arxiv\.org/(?:abs|pdf)/|arxiv:\s*)(\d{4}\.\d{4,5}(?:v\d+)?)`)

// FindID returns the first arXiv identifier referenced in text, either as
// an arxiv.org link or an "arXiv:" prefix.
func FindID(text string) (string, bool) {
	m := idRe.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return m[1], true
}

func (c *Client) query(ctx context.Context, params url.Values) ([]Paper, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("arxiv: new request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("arxiv: search: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("arxiv: search: HTTP %d", resp.StatusCode)
	}
	return ParseFeed(io.LimitReader(resp.Body, 8<<20))
}

type feed struct {
	Entries []entry `xml:"http://www.w3.org/2005/Atom entry"`
}

type entry struct {
	ID        string `xml:"http://www.w3.org/2005/Atom id"`
	Title     string `xml:"http://www.w3.org/2005/Atom title"`
	Summary   string `xml:"http://www.w3.org/2005/Atom summary"`
	Published string `xml:"http://www.w3.org/2005/Atom published"`
	Authors   []struct {
		Name string `xml:"http://www.w3.org/2005/Atom name"`
	} `xml:"http://www.w3.org/2005/Atom author"`
	Links []struct {
		Href  string `xml:"href,attr"`
		Title string `xml:"title,attr"`
		Type  string `xml:"type,attr"`
	} `xml:"http://www.w3.org/2005/Atom link"`
	Categories []struct {
		Term string `xml:"term,attr"`
	} `xml:"http://www.w3.org/2005/Atom category"`
}

// ParseFeed decodes an arXiv Atom response.
func ParseFeed(r io.Reader) ([]Paper, error) {
	var f feed
	if err := xml.NewDecoder(r).Decode(&f); err != nil {
		return nil, fmt.Errorf("arxiv: decode feed: %w", err)
	}
	papers := make([]Paper, 0, len(f.Entries))
	for _, e := range f.Entries {
		id := entryID(e.ID)
		if id == "" {
			continue
		}
		p := Paper{
			ID:       id,
			Title:    collapse(e.Title),
			Abstract: collapse(e.Summary),
		}
		if t, err := time.Parse(time.RFC3339, strings.TrimSpace(e.Published)); err == nil {
			p.Published = t.UTC()
		}
		for _, a := range e.Authors {
			if name := collapse(a.Name); name != "" {
				p.Authors = append(p.Authors, name)
			}
		}
		for _, c := range e.Categories {
			if c.Term != "" {
				p.Categories = append(p.Categories, c.Term)
			}
		}
		for _, l := range e.Links {
			if l.Title == "pdf" || l.Type == "application/pdf" {
				p.PDFURL = l.Href
				break
			}
		}
		if p.PDFURL == "" {
			p.PDFURL = "https://arxiv.org/pdf/" + id
		}
		papers = append(papers, p)
	}
	return papers, nil
}

// entryID turns "http://arxiv.org/abs/2401.01234v2" into "2401.01234v2".
func entryID(raw string) string {
	raw = strings.TrimSpace(raw)
	if i := strings.Index(raw, "/abs/"); i >= 0 {
		return raw[i+len("/abs/"):]
	}
	return raw
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
