package index

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/gleaner/internal/apperr"
	"github.com/starford/gleaner/internal/storage"
)

// ChangeOp says what a watcher-driven index change did.
type ChangeOp string

const (
	ChangeIndexed ChangeOp = "indexed"
	ChangeRemoved ChangeOp = "removed"
)

// Change is one index mutation caused by a file edit in the vault.
type Change struct {
	Op       ChangeOp
	Path     string
	RecordID string
}

// DefaultDebounce is how long a path must stay quiet before it is reindexed.
const DefaultDebounce = 150 * time.Millisecond

// Watcher keeps the index in step with hand edits in the vault. Paths are
// collected while events arrive and processed once the vault is quiet, so
// an editor's burst of writes produces one change. Documents whose content
// already matches the index, such as those just written by the ingest
// service, produce none.
type Watcher struct {
	db       DocumentIndex
	store    storage.Provider
	root     string
	debounce time.Duration
	onChange func(Change)
	logger   *slog.Logger
}

// WatchOption customizes a Watcher.
type WatchOption func(*Watcher)

// WithDebounce sets the quiet period.
func WithDebounce(d time.Duration) WatchOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// OnChange registers fn to be called after every index mutation.
func OnChange(fn func(Change)) WatchOption {
	return func(w *Watcher) { w.onChange = fn }
}

// WithWatchLogger sets the logger.
func WithWatchLogger(l *slog.Logger) WatchOption {
	return func(w *Watcher) {
		if l != nil {
			w.logger = l
		}
	}
}

// NewWatcher returns a watcher over the vault rooted at root.
func NewWatcher(db DocumentIndex, store storage.Provider, root string, opts ...WatchOption) *Watcher {
	w := &Watcher{
		db:       db,
		store:    store,
		root:     root,
		debounce: DefaultDebounce,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run watches the vault until ctx is cancelled. New directories are added
// to the watch list as they appear.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	if err := addDirsRecursive(fw, w.root); err != nil {
		return err
	}
	w.logger.Info("watcher: started", slog.String("root", w.root))

	dirty := make(map[string]struct{})
	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("watcher: stopped")
			return nil

		case <-timer.C:
			w.flush(dirty)
			clear(dirty)

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if ev.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if err := addDirsRecursive(fw, ev.Name); err != nil {
						w.logger.Warn("watcher: add new dir failed",
							slog.String("path", ev.Name),
							slog.String("error", err.Error()))
					}
					w.markTree(ev.Name, dirty)
					timer.Reset(w.debounce)
					continue
				}
			}
			if ev.Op == fsnotify.Chmod || !storage.IsDocument(ev.Name) {
				continue
			}
			if rel, err := filepath.Rel(w.root, ev.Name); err == nil {
				dirty[filepath.ToSlash(rel)] = struct{}{}
				timer.Reset(w.debounce)
			}

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watcher: error", slog.String("error", err.Error()))
		}
	}
}

// markTree marks every document below dir, which may have arrived by a
// move before its directory was watched.
func (w *Watcher) markTree(dir string, dirty map[string]struct{}) {
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !storage.IsDocument(path) {
			return nil
		}
		if rel, err := filepath.Rel(w.root, path); err == nil {
			dirty[filepath.ToSlash(rel)] = struct{}{}
		}
		return nil
	})
}

func (w *Watcher) flush(dirty map[string]struct{}) {
	paths := make([]string, 0, len(dirty))
	for p := range dirty {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, p := range paths {
		if c, ok := w.apply(p); ok && w.onChange != nil {
			w.onChange(c)
		}
	}
}

// apply reconciles one path with the index and reports whether anything
// changed.
func (w *Watcher) apply(rel string) (Change, bool) {
	data, err := w.store.Read(rel)
	if errors.Is(err, os.ErrNotExist) {
		row, err := w.db.GetDocument(rel)
		if errors.Is(err, apperr.ErrNotFound) {
			return Change{}, false
		}
		if err != nil {
			w.logger.Warn("watcher: lookup failed", slog.String("path", rel), slog.String("error", err.Error()))
			return Change{}, false
		}
		if err := w.db.DeleteDocument(rel); err != nil {
			w.logger.Warn("watcher: delete failed", slog.String("path", rel), slog.String("error", err.Error()))
			return Change{}, false
		}
		w.logger.Debug("watcher: removed", slog.String("path", rel))
		return Change{Op: ChangeRemoved, Path: rel, RecordID: row.RecordID}, true
	}
	if err != nil {
		w.logger.Warn("watcher: read failed", slog.String("path", rel), slog.String("error", err.Error()))
		return Change{}, false
	}

	if cs, _ := w.db.GetChecksum(rel); cs == storage.Checksum(data) {
		return Change{}, false
	}
	if err := IndexDocument(w.db, rel, data); err != nil {
		w.logger.Warn("watcher: index failed", slog.String("path", rel), slog.String("error", err.Error()))
		return Change{}, false
	}
	row, err := w.db.GetDocument(rel)
	if err != nil {
		return Change{Op: ChangeIndexed, Path: rel}, true
	}
	w.logger.Debug("watcher: indexed", slog.String("path", rel), slog.String("record_id", row.RecordID))
	return Change{Op: ChangeIndexed, Path: rel, RecordID: row.RecordID}, true
}

// addDirsRecursive adds root and all its subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
}
