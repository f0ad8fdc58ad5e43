package index

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/starford/gleaner/internal/models"
	"github.com/starford/gleaner/internal/render"
	"github.com/starford/gleaner/internal/storage"
)

type changeLog struct {
	mu      sync.Mutex
	changes []Change
}

func (l *changeLog) add(c Change) {
	l.mu.Lock()
	l.changes = append(l.changes, c)
	l.mu.Unlock()
}

func (l *changeLog) snapshot() []Change {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Change(nil), l.changes...)
}

func startWatcher(t *testing.T) (string, *storage.FS, *DB, *changeLog) {
	t.Helper()
	root := t.TempDir()
	fs, err := storage.NewFS(root)
	if err != nil {
		t.Fatal(err)
	}
	db := testDB(t)
	log := &changeLog{}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	w := NewWatcher(db, fs, root,
		WithDebounce(30*time.Millisecond),
		WithWatchLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		OnChange(log.add),
	)
	go func() {
		_ = w.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	// Let fsnotify register the root before the test writes.
	time.Sleep(50 * time.Millisecond)
	return root, fs, db, log
}

func waitFor(t *testing.T, fn func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func sampleDoc(id string) (string, []byte) {
	rec := models.Record{
		ID: id, Channel: "notes", Kind: models.KindText,
		Content: "note " + id, CreatedAt: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	return "notes/" + render.FileName(rec), []byte(render.Render(rec, nil))
}

func TestWatcher_IndexesNewDocumentWithRecordID(t *testing.T) {
	_, fs, db, log := startWatcher(t)

	path, data := sampleDoc("007")
	if err := fs.Write(path, data); err != nil {
		t.Fatal(err)
	}

	waitFor(t, func() bool { return len(log.snapshot()) > 0 })
	c := log.snapshot()[0]
	if c.Op != ChangeIndexed || c.Path != path || c.RecordID != "007" {
		t.Errorf("change = %+v", c)
	}
	if _, err := db.GetDocument(path); err != nil {
		t.Errorf("GetDocument: %v", err)
	}
}

func TestWatcher_CollapsesBurstOfWrites(t *testing.T) {
	_, fs, _, log := startWatcher(t)

	path, data := sampleDoc("001")
	for i := 0; i < 5; i++ {
		if err := fs.Write(path, append(data, []byte("\nedit")...)); err != nil {
			t.Fatal(err)
		}
	}

	waitFor(t, func() bool { return len(log.snapshot()) > 0 })
	time.Sleep(150 * time.Millisecond)
	if n := len(log.snapshot()); n != 1 {
		t.Errorf("changes = %d, want 1", n)
	}
}

func TestWatcher_SkipsContentAlreadyIndexed(t *testing.T) {
	_, fs, db, log := startWatcher(t)

	path, data := sampleDoc("002")
	if err := IndexDocument(db, path, data); err != nil {
		t.Fatal(err)
	}
	if err := fs.Write(path, data); err != nil {
		t.Fatal(err)
	}

	time.Sleep(200 * time.Millisecond)
	if got := log.snapshot(); len(got) != 0 {
		t.Errorf("changes = %+v, want none", got)
	}
}

func TestWatcher_RemovalReportsRecordID(t *testing.T) {
	root, fs, db, log := startWatcher(t)

	path, data := sampleDoc("003")
	if err := fs.Write(path, data); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return len(log.snapshot()) == 1 })

	if err := os.Remove(filepath.Join(root, path)); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return len(log.snapshot()) == 2 })

	c := log.snapshot()[1]
	if c.Op != ChangeRemoved || c.RecordID != "003" {
		t.Errorf("change = %+v", c)
	}
	if _, err := db.GetDocument(path); err == nil {
		t.Error("document still indexed after removal")
	}
}

func TestWatcher_PicksUpDirectoryMovedIn(t *testing.T) {
	root, _, db, log := startWatcher(t)

	staging := t.TempDir()
	_, data := sampleDoc("004")
	if err := os.MkdirAll(filepath.Join(staging, "inbox"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(staging, "inbox", "004.md"), data, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Rename(filepath.Join(staging, "inbox"), filepath.Join(root, "inbox")); err != nil {
		t.Skipf("cross-device rename: %v", err)
	}

	waitFor(t, func() bool { return len(log.snapshot()) > 0 })
	if _, err := db.GetDocument("inbox/004.md"); err != nil {
		t.Errorf("GetDocument: %v", err)
	}
}

func TestWatcher_IgnoresNonMarkdown(t *testing.T) {
	root, _, _, log := startWatcher(t)

	if err := os.WriteFile(filepath.Join(root, "scratch.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	time.Sleep(150 * time.Millisecond)
	if got := log.snapshot(); len(got) != 0 {
		t.Errorf("changes = %+v", got)
	}
}
