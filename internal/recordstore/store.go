// Package recordstore owns the durable collection of records. The whole
// collection lives in memory and is rewritten to a single JSON array on
// every mutation.
package recordstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/starford/gleaner/internal/apperr"
	"github.com/starford/gleaner/internal/models"
	"github.com/starford/gleaner/internal/storage"
)

// idWidth is the minimum number of digits in a record ID.
const idWidth = 3

// Store is a mutex-guarded record collection backed by one JSON file.
// The file is additionally guarded by an advisory lock so that only one
// process writes it.
type Store struct {
	mu      sync.RWMutex
	path    string
	lock    *flock.Flock
	records []models.Record
	lastID  int

	now    func() time.Time
	write  func(path string, data []byte) error
	logger *slog.Logger
}

// Option customizes a Store.
type Option func(*Store)

// WithClock overrides the creation timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the logger used for load diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Open loads the collection at path, creating its directory if needed,
// and takes the writer lock. A missing file starts an empty store. A file
// that cannot be decoded is moved aside to "<path>.corrupt-<unix>" and the
// store starts empty.
func Open(path string, opts ...Option) (*Store, error) {
	s := &Store{
		path:   path,
		now:    time.Now,
		write:  storage.WriteFileAtomic,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("store: mkdir: %w", err)
	}

	s.lock = flock.New(path + ".lock")
	locked, err := s.lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("store: lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("store: %s is locked by another process", path)
	}

	if err := s.load(); err != nil {
		_ = s.lock.Unlock()
		return nil, err
	}
	return s, nil
}

// Close releases the writer lock.
func (s *Store) Close() error {
	return s.lock.Unlock()
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		s.logger.Info("store: starting empty", slog.String("path", s.path))
		return nil
	}
	if err != nil {
		return fmt.Errorf("store: read: %w", err)
	}

	var records []models.Record
	if err := json.Unmarshal(data, &records); err != nil {
		quarantine := fmt.Sprintf("%s.corrupt-%d", s.path, s.now().Unix())
		if mvErr := os.Rename(s.path, quarantine); mvErr != nil {
			return fmt.Errorf("store: quarantine corrupt file: %w", mvErr)
		}
		s.logger.Error("store: corrupt collection moved aside, starting empty",
			slog.String("path", s.path),
			slog.String("quarantine", quarantine),
			slog.String("error", err.Error()))
		return nil
	}

	for _, r := range records {
		if n, convErr := strconv.Atoi(r.ID); convErr == nil && n > s.lastID {
			s.lastID = n
		}
	}
	s.records = records
	s.logger.Info("store: loaded",
		slog.String("path", s.path),
		slog.Int("records", len(records)),
		slog.String("last_id", FormatID(s.lastID)))
	return nil
}

// FormatID renders n as a record ID: zero-padded to at least three digits.
func FormatID(n int) string {
	return fmt.Sprintf("%0*d", idWidth, n)
}

// Append validates d, assigns the next ID and persists the collection.
// The record becomes visible only once the file rewrite succeeds; on
// failure the store is left exactly as it was.
func (s *Store) Append(ctx context.Context, d models.Draft) (models.Record, error) {
	if err := d.Validate(); err != nil {
		return models.Record{}, fmt.Errorf("store: %w: %w", apperr.ErrInvalidRecord, err)
	}
	if err := ctx.Err(); err != nil {
		return models.Record{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.lastID + 1
	rec := models.Record{
		ID:        FormatID(next),
		Channel:   d.Channel,
		Kind:      d.Kind,
		Content:   d.Content,
		CreatedAt: s.now().UTC(),
		Tags:      models.MergeTags(nil, d.Tags...),
		Article:   cloneArticle(d.Article),
		Paper:     clonePaper(d.Paper),
	}

	candidate := append(s.records[:len(s.records):len(s.records)], rec)
	if err := s.persist(candidate); err != nil {
		return models.Record{}, err
	}
	s.records = candidate
	s.lastID = next
	return cloneRecord(rec), nil
}

// UpdateRenderedPath records where the rendered document for id lives.
// Unknown IDs and unchanged paths are no-ops.
func (s *Store) UpdateRenderedPath(ctx context.Context, id, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 || s.records[i].RenderedPath == path {
		return nil
	}
	candidate := slices.Clone(s.records)
	candidate[i].RenderedPath = path
	if err := s.persist(candidate); err != nil {
		return err
	}
	s.records = candidate
	return nil
}

func (s *Store) persist(records []models.Record) error {
	if records == nil {
		records = []models.Record{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("store: %w: encode: %w", apperr.ErrPersistenceFailed, err)
	}
	if err := s.write(s.path, data); err != nil {
		return fmt.Errorf("store: %w: %w", apperr.ErrPersistenceFailed, err)
	}
	return nil
}

func (s *Store) indexOf(id string) int {
	for i := range s.records {
		if s.records[i].ID == id {
			return i
		}
	}
	return -1
}

// Get returns the record with the given ID.
func (s *Store) Get(id string) (models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.indexOf(id); i >= 0 {
		return cloneRecord(s.records[i]), nil
	}
	return models.Record{}, fmt.Errorf("store: record %s: %w", id, apperr.ErrNotFound)
}

// Query returns records newest first, optionally restricted to one channel
// (exact match) and truncated to limit. A limit of zero or less returns all.
func (s *Store) Query(limit int, channel string) []models.Record {
	s.mu.RLock()
	out := make([]models.Record, 0, len(s.records))
	for _, r := range s.records {
		if channel != "" && r.Channel != channel {
			continue
		}
		out = append(out, cloneRecord(r))
	}
	s.mu.RUnlock()

	slices.SortStableFunc(out, func(a, b models.Record) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return compareIDs(b.ID, a.ID)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Len returns the number of stored records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func compareIDs(a, b string) int {
	if len(a) != len(b) {
		return len(a) - len(b)
	}
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func cloneRecord(r models.Record) models.Record {
	r.Tags = slices.Clone(r.Tags)
	r.Article = cloneArticle(r.Article)
	r.Paper = clonePaper(r.Paper)
	return r
}

func cloneArticle(a *models.ArticleMeta) *models.ArticleMeta {
	if a == nil {
		return nil
	}
	c := *a
	if a.PublishedDate != nil {
		t := *a.PublishedDate
		c.PublishedDate = &t
	}
	return &c
}

func clonePaper(p *models.PaperMeta) *models.PaperMeta {
	if p == nil {
		return nil
	}
	c := *p
	c.Authors = slices.Clone(p.Authors)
	c.Categories = slices.Clone(p.Categories)
	c.KeyFindings = slices.Clone(p.KeyFindings)
	c.Applications = slices.Clone(p.Applications)
	return &c
}
