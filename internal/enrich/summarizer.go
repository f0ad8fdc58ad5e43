package enrich

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/starford/gleaner/internal/models"
	"github.com/starford/gleaner/internal/parser"
	"github.com/starford/gleaner/internal/services/article"
	"github.com/starford/gleaner/internal/services/llm"
)

const (
	maxPromptRunes  = 12000
	fallbackSummary = 600
	maxTags         = 8
)

// Completer issues a JSON-mode completion.
type Completer interface {
	CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// ArticleSource extracts readable content from a URL.
type ArticleSource interface {
	Extract(ctx context.Context, rawURL string) (*article.Page, error)
}

// Summarizer is the default Enricher. Without a Completer it runs offline:
// summaries fall back to descriptions and abstracts, tags to #hashtags.
type Summarizer struct {
	llm         Completer
	articles    ArticleSource
	transcriber Transcriber
	logger      *slog.Logger
}

// Option customizes a Summarizer.
type Option func(*Summarizer)

// WithCompleter enables LLM summaries.
func WithCompleter(c Completer) Option {
	return func(s *Summarizer) { s.llm = c }
}

// WithArticleSource sets the article extractor.
func WithArticleSource(a ArticleSource) Option {
	return func(s *Summarizer) { s.articles = a }
}

// WithTranscriber sets the voice transcriber.
func WithTranscriber(t Transcriber) Option {
	return func(s *Summarizer) { s.transcriber = t }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Summarizer) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewSummarizer returns a Summarizer.
func NewSummarizer(opts ...Option) *Summarizer {
	s := &Summarizer{logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Enrich implements Enricher.
func (s *Summarizer) Enrich(ctx context.Context, item Item) (*Result, error) {
	switch item.Kind {
	case models.KindText:
		return s.note(ctx, item.Text)
	case models.KindVoice:
		return s.voice(ctx, item)
	case models.KindArticle:
		return s.article(ctx, item)
	case models.KindPaper:
		return s.paper(ctx, item)
	}
	return nil, fmt.Errorf("enrich: unknown kind %q", item.Kind)
}

// note keeps the text verbatim. LLM tagging is best effort: the note is
// still worth keeping when the model is down.
func (s *Summarizer) note(ctx context.Context, text string) (*Result, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.New("enrich: empty text")
	}
	res := &Result{PrimaryText: text, Tags: parser.ExtractTags(text)}
	if s.llm == nil {
		return res, nil
	}
	var out struct {
		Tags []string `json:"tags"`
	}
	if err := s.complete(ctx, tagPrompt, text, &out); err != nil {
		s.logger.Warn("enrich: tagging skipped", slog.String("error", err.Error()))
		return res, nil
	}
	res.Tags = NormalizeTags(append(res.Tags, out.Tags...))
	return res, nil
}

func (s *Summarizer) voice(ctx context.Context, item Item) (*Result, error) {
	text := strings.TrimSpace(item.Text)
	if text == "" && item.AudioURL != "" {
		if s.transcriber == nil {
			return nil, errors.New("enrich: no transcriber configured")
		}
		var err error
		if text, err = s.transcriber.Transcribe(ctx, item.AudioURL); err != nil {
			return nil, fmt.Errorf("enrich: transcribe: %w", err)
		}
	}
	return s.note(ctx, text)
}

func (s *Summarizer) article(ctx context.Context, item Item) (*Result, error) {
	if s.articles == nil {
		return nil, errors.New("enrich: no article source configured")
	}
	page, err := s.articles.Extract(ctx, item.URL)
	if err != nil {
		return nil, fmt.Errorf("enrich: extract article: %w", err)
	}
	meta := page.ArticleMeta
	if meta.Title == "" {
		meta.Title = item.URL
	}
	res := &Result{
		Article: &meta,
		Tags:    parser.ExtractTags(item.Text),
	}

	if s.llm == nil {
		res.PrimaryText = firstNonEmpty(meta.Description, models.Truncate(page.Text, fallbackSummary), meta.Title)
		return res, nil
	}
	var out struct {
		Summary    string   `json:"summary"`
		Highlights []string `json:"highlights"`
		Analysis   string   `json:"analysis"`
		Tags       []string `json:"tags"`
	}
	prompt := fmt.Sprintf("Title: %s\nSite: %s\n\n%s", meta.Title, meta.SiteName,
		models.Truncate(firstNonEmpty(page.Text, meta.Description), maxPromptRunes))
	if err := s.complete(ctx, articlePrompt, prompt, &out); err != nil {
		return nil, err
	}
	if strings.TrimSpace(out.Summary) == "" {
		return nil, errors.New("enrich: model returned no summary")
	}
	res.PrimaryText = strings.TrimSpace(out.Summary)
	res.Highlights = trimAll(out.Highlights)
	res.Analysis = strings.TrimSpace(out.Analysis)
	res.Tags = NormalizeTags(append(res.Tags, out.Tags...))
	return res, nil
}

func (s *Summarizer) paper(ctx context.Context, item Item) (*Result, error) {
	if item.Paper == nil {
		return nil, errors.New("enrich: paper metadata required")
	}
	meta := *item.Paper
	meta.Authors = append([]string(nil), meta.Authors...)
	meta.Categories = append([]string(nil), meta.Categories...)
	abstract := strings.TrimSpace(item.Text)
	res := &Result{Paper: &meta}

	if s.llm == nil {
		if abstract == "" {
			return nil, errors.New("enrich: paper has no abstract")
		}
		res.PrimaryText = abstract
		return res, nil
	}
	var out struct {
		Summary      string   `json:"summary"`
		KeyFindings  []string `json:"key_findings"`
		Applications []string `json:"applications"`
		Tags         []string `json:"tags"`
	}
	prompt := fmt.Sprintf("Title: %s\nAuthors: %s\nCategories: %s\n\nAbstract:\n%s",
		meta.Title, strings.Join(meta.Authors, ", "), strings.Join(meta.Categories, ", "),
		models.Truncate(abstract, maxPromptRunes))
	if err := s.complete(ctx, paperPrompt, prompt, &out); err != nil {
		return nil, err
	}
	if strings.TrimSpace(out.Summary) == "" {
		return nil, errors.New("enrich: model returned no summary")
	}
	res.PrimaryText = strings.TrimSpace(out.Summary)
	meta.KeyFindings = trimAll(out.KeyFindings)
	meta.Applications = trimAll(out.Applications)
	res.Tags = NormalizeTags(out.Tags)
	return res, nil
}

func (s *Summarizer) complete(ctx context.Context, system, user string, target any) error {
	content, err := s.llm.CompleteJSON(ctx, system, user)
	if err != nil {
		return fmt.Errorf("enrich: %w", err)
	}
	if err := llm.DecodeJSON(content, target); err != nil {
		return fmt.Errorf("enrich: decode model output: %w", err)
	}
	return nil
}

// NormalizeTags lowercases tags, strips a leading '#', replaces inner
// whitespace with hyphens and drops duplicates. At most maxTags survive.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(t), "#")))
		t = strings.Join(strings.Fields(t), "-")
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
		if len(out) == maxTags {
			break
		}
	}
	return out
}

func trimAll(items []string) []string {
	var out []string
	for _, it := range items {
		if it = strings.TrimSpace(it); it != "" {
			out = append(out, it)
		}
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
