// Package ingest coordinates enrichment, the record store, document
// rendering and the search index for single captures and paper batches.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/starford/gleaner/internal/apperr"
	"github.com/starford/gleaner/internal/batch"
	"github.com/starford/gleaner/internal/enrich"
	"github.com/starford/gleaner/internal/folder"
	"github.com/starford/gleaner/internal/index"
	"github.com/starford/gleaner/internal/models"
	"github.com/starford/gleaner/internal/recordstore"
	"github.com/starford/gleaner/internal/render"
	"github.com/starford/gleaner/internal/services/arxiv"
	"github.com/starford/gleaner/internal/sse"
	"github.com/starford/gleaner/internal/storage"
)

// RecordStore is the subset of the record store the service needs.
type RecordStore interface {
	Append(ctx context.Context, d models.Draft) (models.Record, error)
	UpdateRenderedPath(ctx context.Context, id, path string) error
	Get(id string) (models.Record, error)
	Query(limit int, channel string) []models.Record
	Stats() recordstore.Stats
}

// PaperSearcher finds candidate papers and resolves single identifiers.
type PaperSearcher interface {
	Search(ctx context.Context, query string) ([]arxiv.Paper, error)
	Lookup(ctx context.Context, id string) (arxiv.Paper, error)
}

// Mirror copies rendered documents to secondary storage.
type Mirror interface {
	PutDocument(ctx context.Context, rel string, data []byte) error
}

// Publisher receives record and batch events.
type Publisher interface {
	Publish(ev sse.Event)
	PublishRecordEvent(kind string, ev sse.RecordEvent)
}

// Service is the ingestion entry point shared by the chat bot, the HTTP
// API and the MCP server.
type Service struct {
	store    RecordStore
	enricher enrich.Enricher
	vault    storage.Provider
	folders  *folder.Policy
	exec     *batch.Executor

	index  index.DocumentIndex
	papers PaperSearcher
	mirror Mirror
	events Publisher
	cache  *CandidateCache
	logger *slog.Logger
}

// Option customizes a Service.
type Option func(*Service)

// WithIndex indexes every written document.
func WithIndex(idx index.DocumentIndex) Option { return func(s *Service) { s.index = idx } }

// WithPaperSearch enables paper search and batch save.
func WithPaperSearch(p PaperSearcher) Option { return func(s *Service) { s.papers = p } }

// WithMirror copies written documents to m.
func WithMirror(m Mirror) Option { return func(s *Service) { s.mirror = m } }

// WithPublisher streams events to p.
func WithPublisher(p Publisher) Option { return func(s *Service) { s.events = p } }

// WithCandidateCache replaces the default per-channel candidate cache.
func WithCandidateCache(c *CandidateCache) Option { return func(s *Service) { s.cache = c } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New returns a Service.
func New(store RecordStore, enricher enrich.Enricher, vault storage.Provider, folders *folder.Policy, exec *batch.Executor, opts ...Option) *Service {
	s := &Service{
		store:    store,
		enricher: enricher,
		vault:    vault,
		folders:  folders,
		exec:     exec,
		cache:    NewCandidateCache(0),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Capture enriches a single item and stores it as a record with its
// rendered document.
func (s *Service) Capture(ctx context.Context, item enrich.Item) (models.Record, error) {
	res, err := s.enricher.Enrich(ctx, item)
	if err != nil {
		s.logger.Warn("ingest: enrichment failed",
			slog.String("kind", string(item.Kind)),
			slog.String("channel", item.Channel),
			slog.String("error", err.Error()))
		return models.Record{}, fmt.Errorf("%w: %w", apperr.ErrEnrichmentFailed, err)
	}
	if res == nil {
		return models.Record{}, fmt.Errorf("%w: empty result", apperr.ErrEnrichmentFailed)
	}
	return s.commit(ctx, item.Kind, item.Channel, res)
}

// commit appends the record, then writes, indexes and mirrors its document.
// Once the append succeeds the record is durable: document failures are
// logged and leave RenderedPath empty.
func (s *Service) commit(ctx context.Context, kind models.Kind, channel string, res *enrich.Result) (models.Record, error) {
	rec, err := s.store.Append(ctx, models.Draft{
		Kind:    kind,
		Channel: channel,
		Content: res.PrimaryText,
		Tags:    res.Tags,
		Article: res.Article,
		Paper:   res.Paper,
	})
	if err != nil {
		return models.Record{}, err
	}
	recordCaptured(rec.Kind)
	s.logger.Info("ingest: record stored",
		slog.String("id", rec.ID),
		slog.String("channel", rec.Channel),
		slog.String("kind", string(rec.Kind)))
	s.publishRecord(sse.RecordCreated, rec)

	detail := &render.Detail{Highlights: res.Highlights, Analysis: res.Analysis}
	if path, err := s.writeDocument(ctx, rec, detail); err != nil {
		recordDocument("error")
		s.logger.Error("ingest: document write failed",
			slog.String("id", rec.ID),
			slog.String("error", err.Error()))
	} else {
		recordDocument("ok")
		rec.RenderedPath = path
	}
	return rec, nil
}

func (s *Service) writeDocument(ctx context.Context, rec models.Record, detail *render.Detail) (string, error) {
	location := s.folders.Resolve(rec.Channel)
	if err := s.folders.EnsureExists(location); err != nil {
		return "", err
	}
	rel := folder.DocumentPath(location, render.FileName(rec))
	data := []byte(render.Render(rec, detail))
	if err := s.vault.Write(rel, data); err != nil {
		return "", fmt.Errorf("write %s: %w", rel, err)
	}
	if err := s.store.UpdateRenderedPath(ctx, rec.ID, rel); err != nil {
		return "", err
	}
	rec.RenderedPath = rel
	s.publishRecord(sse.RecordRendered, rec)

	if s.index != nil {
		if err := index.IndexDocument(s.index, rel, data); err != nil {
			s.logger.Warn("ingest: index failed", slog.String("path", rel), slog.String("error", err.Error()))
		}
	}
	if s.mirror != nil {
		if err := s.mirror.PutDocument(ctx, rel, data); err != nil {
			s.logger.Warn("ingest: mirror failed", slog.String("path", rel), slog.String("error", err.Error()))
		}
	}
	return rel, nil
}

// Rerender rewrites the document of an existing record, removing the old
// file when its path changed. Enrichment detail that is not stored on the
// record is not reproduced.
func (s *Service) Rerender(ctx context.Context, id string) (models.Record, error) {
	rec, err := s.store.Get(id)
	if err != nil {
		return models.Record{}, err
	}
	previous := rec.RenderedPath
	path, err := s.writeDocument(ctx, rec, nil)
	if err != nil {
		return models.Record{}, err
	}
	if previous != "" && previous != path {
		s.removeDocument(previous)
	}
	rec.RenderedPath = path
	return rec, nil
}

// removeDocument drops a document left behind by a folder or title change.
func (s *Service) removeDocument(rel string) {
	if err := s.vault.Remove(rel); err != nil {
		s.logger.Warn("ingest: stale document not removed", slog.String("path", rel), slog.String("error", err.Error()))
		return
	}
	if s.index != nil {
		if err := s.index.DeleteDocument(rel); err != nil {
			s.logger.Warn("ingest: stale index entry", slog.String("path", rel), slog.String("error", err.Error()))
		}
	}
}

// Document returns the rendered document for a record, reading the vault
// copy when one exists.
func (s *Service) Document(id string) (string, error) {
	rec, err := s.store.Get(id)
	if err != nil {
		return "", err
	}
	if rec.RenderedPath != "" {
		data, err := s.vault.Read(rec.RenderedPath)
		if err == nil {
			return string(data), nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return "", err
		}
	}
	return render.Render(rec, nil), nil
}

// Record returns a stored record.
func (s *Service) Record(id string) (models.Record, error) { return s.store.Get(id) }

// Recent returns the newest records, optionally for one channel.
func (s *Service) Recent(limit int, channel string) []models.Record {
	return s.store.Query(limit, channel)
}

// Stats summarizes the store.
func (s *Service) Stats() recordstore.Stats { return s.store.Stats() }

// Search queries the document index.
func (s *Service) Search(query string, limit int) ([]index.SearchResult, error) {
	if s.index == nil {
		return nil, errors.New("ingest: search index not configured")
	}
	return s.index.Search(query, limit)
}

// Documents lists indexed documents newest first with the unpaged total.
func (s *Service) Documents(channel, tag string, limit, offset int) ([]index.DocumentRow, int, error) {
	if s.index == nil {
		return nil, 0, errors.New("ingest: search index not configured")
	}
	return s.index.ListDocuments(channel, tag, limit, offset)
}

func (s *Service) publishRecord(kind string, rec models.Record) {
	if s.events == nil {
		return
	}
	s.events.PublishRecordEvent(kind, sse.RecordEvent{ID: rec.ID, Channel: rec.Channel, Path: rec.RenderedPath})
}
