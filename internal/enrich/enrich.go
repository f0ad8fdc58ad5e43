// Package enrich defines the enrichment boundary: raw captured items go in,
// summaries, tags and kind-specific metadata come out.
package enrich

import (
	"context"

	"github.com/starford/gleaner/internal/models"
)

// Item is a raw captured item awaiting enrichment.
type Item struct {
	Kind    models.Kind
	Channel string
	// Text is the free text, voice transcript, or paper abstract.
	Text string
	// URL is the article link for article items.
	URL string
	// AudioURL locates a voice attachment when no transcript is supplied.
	AudioURL string
	// Paper holds search metadata for paper items.
	Paper *models.PaperMeta
}

// Result is the structured output of enrichment.
type Result struct {
	PrimaryText string
	Tags        []string
	Article     *models.ArticleMeta
	Paper       *models.PaperMeta
	Highlights  []string
	Analysis    string
}

// Enricher turns an item into a Result. Implementations are slow,
// rate limited and fallible; callers do not retry.
type Enricher interface {
	Enrich(ctx context.Context, item Item) (*Result, error)
}

// Func adapts a function to the Enricher interface.
type Func func(ctx context.Context, item Item) (*Result, error)

// Enrich calls f.
func (f Func) Enrich(ctx context.Context, item Item) (*Result, error) {
	return f(ctx, item)
}

// Transcriber converts a voice attachment into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audioURL string) (string, error)
}
