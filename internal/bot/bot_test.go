package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/starford/gleaner/internal/apperr"
	"github.com/starford/gleaner/internal/batch"
	"github.com/starford/gleaner/internal/enrich"
	"github.com/starford/gleaner/internal/ingest"
	"github.com/starford/gleaner/internal/models"
	"github.com/starford/gleaner/internal/recordstore"
	"github.com/starford/gleaner/internal/services/arxiv"
)

type sent struct {
	channel, text string
}

type fakeTransport struct {
	mu    sync.Mutex
	sent  []sent
	inbox []Message
}

func (f *fakeTransport) Receive(ctx context.Context, handle func(context.Context, Message)) error {
	for _, m := range f.inbox {
		handle(ctx, m)
	}
	return nil
}

func (f *fakeTransport) Send(_ context.Context, channel, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sent{channel, text})
	return nil
}

func (f *fakeTransport) last(t *testing.T) string {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		t.Fatal("no reply sent")
	}
	return f.sent[len(f.sent)-1].text
}

type fakeIngestor struct {
	captured   []enrich.Item
	papers     []string
	candidates []arxiv.Paper
	records    []models.Record
	captureErr error
	saveErr    error
	saveExpr   string
}

func (f *fakeIngestor) Capture(_ context.Context, item enrich.Item) (models.Record, error) {
	if f.captureErr != nil {
		return models.Record{}, f.captureErr
	}
	f.captured = append(f.captured, item)
	return models.Record{ID: fmt.Sprintf("%06d", len(f.captured)), Kind: item.Kind, Content: item.Text}, nil
}

func (f *fakeIngestor) CapturePaper(_ context.Context, _, id, _ string) (models.Record, error) {
	f.papers = append(f.papers, id)
	return models.Record{ID: "000009", Kind: models.KindPaper, Paper: &models.PaperMeta{ExternalID: id, Title: "A Paper"}}, nil
}

func (f *fakeIngestor) SearchPapers(_ context.Context, _, query string) ([]arxiv.Paper, error) {
	f.candidates = []arxiv.Paper{
		{ID: "2401.00001", Title: "First " + query, Authors: []string{"Ada", "Bob"}},
		{ID: "2401.00002", Title: "Second " + query, Authors: []string{"Cy"}},
	}
	return f.candidates, nil
}

func (f *fakeIngestor) SavePapers(_ context.Context, _, expr string, _ func(batch.Item)) (batch.Outcome, error) {
	f.saveExpr = expr
	if f.saveErr != nil {
		return batch.Outcome{}, f.saveErr
	}
	rec := models.Record{ID: "000001", Kind: models.KindPaper}
	return batch.Outcome{Items: []batch.Item{
		{Position: 1, Label: "First", Record: &rec},
		{Position: 2, Label: "Second", Err: apperr.ErrEnrichmentFailed},
	}}, nil
}

func (f *fakeIngestor) Candidates(string) []arxiv.Paper { return f.candidates }

func (f *fakeIngestor) Recent(limit int, _ string) []models.Record {
	if limit < len(f.records) {
		return f.records[:limit]
	}
	return f.records
}

func (f *fakeIngestor) Document(id string) (string, error) {
	for _, r := range f.records {
		if r.ID == id {
			return "# " + r.Title(), nil
		}
	}
	return "", apperr.ErrNotFound
}

func (f *fakeIngestor) Stats() recordstore.Stats {
	return recordstore.Stats{
		Total:      3,
		PerKind:    map[models.Kind]int{models.KindText: 2, models.KindPaper: 1},
		PerChannel: map[string]int{"notes": 2},
	}
}

func newBot(opts ...Option) (*Bot, *fakeIngestor, *fakeTransport) {
	svc := &fakeIngestor{}
	tr := &fakeTransport{}
	return New(svc, tr, opts...), svc, tr
}

func TestClassify(t *testing.T) {
	cases := []struct {
		msg  Message
		want models.Kind
	}{
		{Message{Text: "just a thought"}, models.KindText},
		{Message{Text: "read https://example.com/post."}, models.KindArticle},
		{Message{Text: "see https://arxiv.org/abs/2401.12345"}, models.KindPaper},
		{Message{Text: "arXiv:2401.12345v2 is neat"}, models.KindPaper},
		{Message{AudioURL: "https://cdn/x.ogg", Text: "https://example.com"}, models.KindVoice},
		{Message{Transcript: "spoken words"}, models.KindVoice},
	}
	for _, c := range cases {
		if got := Classify(c.msg).Kind; got != c.want {
			t.Errorf("Classify(%+v) = %s, want %s", c.msg, got, c.want)
		}
	}
	if got := Classify(Message{Text: "read https://example.com/post."}).URL; got != "https://example.com/post" {
		t.Errorf("url = %q", got)
	}
}

func TestHandle_CapturesByKind(t *testing.T) {
	b, svc, tr := newBot()
	ctx := context.Background()

	b.Handle(ctx, Message{Channel: "notes", Text: "remember the milk #todo"})
	if len(svc.captured) != 1 || svc.captured[0].Kind != models.KindText || svc.captured[0].Channel != "notes" {
		t.Fatalf("captured = %+v", svc.captured)
	}
	if got := tr.last(t); !strings.HasPrefix(got, "Saved text 000001") {
		t.Errorf("reply = %q", got)
	}

	b.Handle(ctx, Message{Channel: "links", Text: "look https://example.com/a"})
	if svc.captured[1].Kind != models.KindArticle || svc.captured[1].URL != "https://example.com/a" {
		t.Errorf("article item = %+v", svc.captured[1])
	}

	b.Handle(ctx, Message{Channel: "papers", Text: "https://arxiv.org/abs/2401.12345"})
	if len(svc.papers) != 1 || svc.papers[0] != "2401.12345" {
		t.Errorf("papers = %v", svc.papers)
	}
}

func TestHandle_CaptureFailureReported(t *testing.T) {
	b, svc, tr := newBot()
	svc.captureErr = fmt.Errorf("llm down: %w", apperr.ErrEnrichmentFailed)

	b.Handle(context.Background(), Message{Channel: "notes", Text: "hello"})
	if got := tr.last(t); !strings.Contains(got, "EnrichmentFailed") {
		t.Errorf("reply = %q", got)
	}
}

func TestHandle_IgnoresEmptyAndChannelless(t *testing.T) {
	b, svc, tr := newBot()
	b.Handle(context.Background(), Message{Channel: "notes", Text: "   "})
	b.Handle(context.Background(), Message{Text: "orphan"})
	if len(svc.captured) != 0 || len(tr.sent) != 0 {
		t.Errorf("captured %d, sent %d", len(svc.captured), len(tr.sent))
	}
}

func TestCommands_PapersThenSave(t *testing.T) {
	b, svc, tr := newBot()
	ctx := context.Background()

	b.Handle(ctx, Message{Channel: "papers", Text: "!papers diffusion"})
	list := tr.last(t)
	if !strings.Contains(list, "1. First diffusion") || !strings.Contains(list, "Ada et al.") {
		t.Errorf("list = %q", list)
	}

	b.Handle(ctx, Message{Channel: "papers", Text: "!save 1-2"})
	if svc.saveExpr != "1-2" {
		t.Errorf("expr = %q", svc.saveExpr)
	}
	if got := tr.last(t); !strings.Contains(got, "Saved 1 of 2") || !strings.Contains(got, "EnrichmentFailed") {
		t.Errorf("summary = %q", got)
	}
}

func TestCommands_SaveErrors(t *testing.T) {
	b, svc, tr := newBot()
	ctx := context.Background()

	svc.saveErr = ingest.ErrNoCandidates
	b.Handle(ctx, Message{Channel: "c", Text: "!save 1"})
	if got := tr.last(t); !strings.Contains(got, "!papers") {
		t.Errorf("reply = %q", got)
	}

	svc.saveErr = apperr.ErrNoValidSelection
	b.Handle(ctx, Message{Channel: "c", Text: "!save abc"})
	if got := tr.last(t); !strings.Contains(got, "No valid selection") {
		t.Errorf("reply = %q", got)
	}

	b.Handle(ctx, Message{Channel: "c", Text: "!save"})
	if got := tr.last(t); !strings.HasPrefix(got, "Usage") {
		t.Errorf("reply = %q", got)
	}
}

func TestCommands_RecentGetStats(t *testing.T) {
	b, svc, tr := newBot()
	ctx := context.Background()
	svc.records = []models.Record{
		{ID: "000002", Kind: models.KindText, Content: "second"},
		{ID: "000001", Kind: models.KindText, Content: "first"},
	}

	b.Handle(ctx, Message{Channel: "notes", Text: "!recent 1"})
	if got := tr.last(t); got != "000002 · text · second" {
		t.Errorf("recent = %q", got)
	}
	b.Handle(ctx, Message{Channel: "notes", Text: "!recent zero"})
	if got := tr.last(t); !strings.HasPrefix(got, "Usage") {
		t.Errorf("recent bad arg = %q", got)
	}

	b.Handle(ctx, Message{Channel: "notes", Text: "!get 000001"})
	if got := tr.last(t); got != "# first" {
		t.Errorf("get = %q", got)
	}
	b.Handle(ctx, Message{Channel: "notes", Text: "!get 999999"})
	if got := tr.last(t); got != "No record 999999." {
		t.Errorf("get missing = %q", got)
	}

	b.Handle(ctx, Message{Channel: "notes", Text: "!stats"})
	got := tr.last(t)
	for _, want := range []string{"3 records", "text: 2", "paper: 1", "this channel: 2"} {
		if !strings.Contains(got, want) {
			t.Errorf("stats %q missing %q", got, want)
		}
	}

	b.Handle(ctx, Message{Channel: "notes", Text: "!nope"})
	if got := tr.last(t); !strings.Contains(got, "Unknown command !nope") {
		t.Errorf("unknown = %q", got)
	}
}

func TestReply_Chunked(t *testing.T) {
	b, svc, tr := newBot(WithMessageLimit(20))
	svc.records = []models.Record{{ID: "1", Content: "x"}}
	long := strings.Repeat("line of text\n", 5)
	b.reply(context.Background(), "c", long)
	if len(tr.sent) < 3 {
		t.Fatalf("sent %d chunks, want several", len(tr.sent))
	}
	for _, s := range tr.sent {
		if len(s.text) > 20 {
			t.Errorf("chunk %q exceeds limit", s.text)
		}
	}
}

type fakeAssets struct {
	data []byte
	ct   string
}

func (f *fakeAssets) PutAsset(_ context.Context, data []byte, ct string) (string, error) {
	f.data, f.ct = data, ct
	return "assets/x.ogg", nil
}

type fakeDownloader struct{ err error }

func (f fakeDownloader) Download(context.Context, string) ([]byte, string, error) {
	if f.err != nil {
		return nil, "", f.err
	}
	return []byte("OggS"), "audio/ogg", nil
}

func TestHandle_VoiceMirrorsAsset(t *testing.T) {
	assets := &fakeAssets{}
	b, svc, _ := newBot(WithAssetMirror(assets, fakeDownloader{}))

	b.Handle(context.Background(), Message{Channel: "voice", AudioURL: "https://cdn/x.ogg", Transcript: "hi"})
	if string(assets.data) != "OggS" || assets.ct != "audio/ogg" {
		t.Errorf("asset = %q %q", assets.data, assets.ct)
	}
	if len(svc.captured) != 1 || svc.captured[0].Kind != models.KindVoice || svc.captured[0].AudioURL == "" {
		t.Errorf("captured = %+v", svc.captured)
	}
}

func TestHandle_VoiceMirrorFailureStillCaptures(t *testing.T) {
	assets := &fakeAssets{}
	b, svc, _ := newBot(WithAssetMirror(assets, fakeDownloader{err: errors.New("boom")}))

	b.Handle(context.Background(), Message{Channel: "voice", AudioURL: "https://cdn/x.ogg"})
	if len(svc.captured) != 1 {
		t.Errorf("captured = %d", len(svc.captured))
	}
	if assets.data != nil {
		t.Error("asset stored despite download failure")
	}
}

func TestRun_DeliversInbox(t *testing.T) {
	b, svc, tr := newBot()
	tr.inbox = []Message{
		{Channel: "a", Text: "one", SentAt: time.Now()},
		{Channel: "a", Text: "two"},
	}
	if err := b.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(svc.captured) != 2 {
		t.Errorf("captured = %d", len(svc.captured))
	}
}

func TestDecodeMessage(t *testing.T) {
	m, err := decodeMessage([]byte(`{"text":"hi","author":"u1"}`), "general")
	if err != nil {
		t.Fatal(err)
	}
	if m.Channel != "general" || m.Text != "hi" || m.Author != "u1" || m.SentAt.IsZero() {
		t.Errorf("message = %+v", m)
	}

	m, err = decodeMessage([]byte("plain words"), "notes")
	if err != nil || m.Text != "plain words" || m.Channel != "notes" {
		t.Errorf("plain = %+v, %v", m, err)
	}

	if _, err := decodeMessage([]byte(`{"text":`), "x"); err == nil {
		t.Error("expected error for truncated JSON")
	}
}

func TestSubjectToken(t *testing.T) {
	cases := map[string]string{
		"#general":  "general",
		"team.ml":   "team_ml",
		"a b":       "a_b",
		"":          "_",
		"weird>*":   "weird__",
		"research/": "research/",
	}
	for in, want := range cases {
		if got := SubjectToken(in); got != want {
			t.Errorf("SubjectToken(%q) = %q, want %q", in, got, want)
		}
	}
}
