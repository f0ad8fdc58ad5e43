package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/starford/gleaner/internal/apperr"
	"github.com/starford/gleaner/internal/batch"
	"github.com/starford/gleaner/internal/enrich"
	"github.com/starford/gleaner/internal/models"
	"github.com/starford/gleaner/internal/parser"
	"github.com/starford/gleaner/internal/selection"
	"github.com/starford/gleaner/internal/services/arxiv"
	"github.com/starford/gleaner/internal/sse"
)

// ErrNoCandidates is returned by SavePapers when the channel has no
// search results to select from.
var ErrNoCandidates = errors.New("no paper search results for this channel")

// SearchPapers runs a paper search and remembers the hits as the
// channel's candidate list.
func (s *Service) SearchPapers(ctx context.Context, channel, query string) ([]arxiv.Paper, error) {
	if s.papers == nil {
		return nil, errors.New("ingest: paper search not configured")
	}
	papers, err := s.papers.Search(ctx, query)
	if err != nil {
		return nil, err
	}
	s.cache.Put(channel, papers)
	s.logger.Info("ingest: paper search",
		slog.String("channel", channel),
		slog.String("query", query),
		slog.Int("results", len(papers)))
	return papers, nil
}

// CapturePaper stores a single paper referenced by arXiv identifier.
// Hashtags in note are added to the record's tags.
func (s *Service) CapturePaper(ctx context.Context, channel, id, note string) (models.Record, error) {
	if s.papers == nil {
		return models.Record{}, errors.New("ingest: paper search not configured")
	}
	p, err := s.papers.Lookup(ctx, id)
	if err != nil {
		return models.Record{}, fmt.Errorf("%w: %w", apperr.ErrCandidateUnavailable, err)
	}
	res, err := s.enricher.Enrich(ctx, enrich.Item{
		Kind:    models.KindPaper,
		Channel: channel,
		Text:    p.Abstract,
		Paper:   p.Meta(),
	})
	if err != nil {
		return models.Record{}, fmt.Errorf("%w: %w", apperr.ErrEnrichmentFailed, err)
	}
	if res == nil {
		return models.Record{}, fmt.Errorf("%w: empty result", apperr.ErrEnrichmentFailed)
	}
	res.Tags = models.MergeTags(res.Tags, parser.ExtractTags(note)...)
	return s.commit(ctx, models.KindPaper, channel, res)
}

// Candidates returns the channel's cached search results.
func (s *Service) Candidates(channel string) []arxiv.Paper {
	c, _ := s.cache.Get(channel)
	return c
}

// SavePapers parses expr against the channel's candidates and stores each
// selected paper. A selection that names nothing valid fails before any
// enrichment; individual item failures are reported in the outcome.
func (s *Service) SavePapers(ctx context.Context, channel, expr string, progress func(batch.Item)) (batch.Outcome, error) {
	cands, ok := s.cache.Get(channel)
	if !ok || len(cands) == 0 {
		return batch.Outcome{}, ErrNoCandidates
	}
	set, err := selection.Parse(expr, len(cands))
	if err != nil {
		return batch.Outcome{}, err
	}

	if s.events != nil {
		s.events.Publish(sse.Event{Type: sse.BatchStarted, Channel: channel, Data: map[string]any{
			"channel": channel, "selection": set.String(), "items": len(set),
		}})
	}
	out := batch.Run(ctx, s.exec, set, batch.Job[arxiv.Paper]{
		Candidates: batch.Slice[arxiv.Paper](cands),
		Label:      func(p arxiv.Paper) string { return p.Title },
		Enrich: func(ctx context.Context, p arxiv.Paper) (*enrich.Result, error) {
			return s.enricher.Enrich(ctx, enrich.Item{
				Kind:    models.KindPaper,
				Channel: channel,
				Text:    p.Abstract,
				Paper:   p.Meta(),
			})
		},
		Persist: func(ctx context.Context, _ arxiv.Paper, res *enrich.Result) (models.Record, error) {
			return s.commit(ctx, models.KindPaper, channel, res)
		},
		Progress: func(it batch.Item) {
			s.publishItem(channel, it)
			if progress != nil {
				progress(it)
			}
		},
	})
	if s.events != nil {
		s.events.Publish(sse.Event{Type: sse.BatchFinished, Channel: channel, Data: map[string]any{
			"batch_id": out.ID, "channel": channel,
			"succeeded": out.Succeeded(), "failed": out.Failed(),
		}})
	}
	return out, nil
}

func (s *Service) publishItem(channel string, it batch.Item) {
	if s.events == nil {
		return
	}
	data := map[string]any{"channel": channel, "position": it.Position, "label": it.Label, "ok": it.OK()}
	if it.Record != nil {
		data["record_id"] = it.Record.ID
	}
	if it.Err != nil {
		data["error"] = apperr.Kind(it.Err)
	}
	s.events.Publish(sse.Event{Type: sse.BatchItem, Channel: channel, Data: data})
}

// FormatOutcome renders a batch summary for chat and API replies: counts
// first, then one line per failure with a truncated label.
func FormatOutcome(o batch.Outcome) string {
	msg := fmt.Sprintf("Saved %d of %d", o.Succeeded(), len(o.Items))
	if ids := savedIDs(o); ids != "" {
		msg += " (" + ids + ")"
	}
	msg += "."
	for _, f := range o.Failures() {
		label := models.Truncate(f.Label, 60)
		if label == "" {
			label = "(unknown)"
		}
		msg += fmt.Sprintf("\n✗ %d. %s: %s", f.Position, label, apperr.Kind(f.Err))
	}
	return msg
}

func savedIDs(o batch.Outcome) string {
	out := ""
	for _, r := range o.Records() {
		if out != "" {
			out += ", "
		}
		out += r.ID
	}
	return out
}
