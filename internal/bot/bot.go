package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/starford/gleaner/internal/apperr"
	"github.com/starford/gleaner/internal/batch"
	"github.com/starford/gleaner/internal/enrich"
	"github.com/starford/gleaner/internal/ingest"
	"github.com/starford/gleaner/internal/models"
	"github.com/starford/gleaner/internal/recordstore"
	"github.com/starford/gleaner/internal/render"
	"github.com/starford/gleaner/internal/services/arxiv"
)

// DefaultMessageLimit is the reply chunk size when none is configured.
const DefaultMessageLimit = 2000

// Ingestor is the ingestion surface the bot drives.
type Ingestor interface {
	Capture(ctx context.Context, item enrich.Item) (models.Record, error)
	CapturePaper(ctx context.Context, channel, id, note string) (models.Record, error)
	SearchPapers(ctx context.Context, channel, query string) ([]arxiv.Paper, error)
	SavePapers(ctx context.Context, channel, expr string, progress func(batch.Item)) (batch.Outcome, error)
	Candidates(channel string) []arxiv.Paper
	Recent(limit int, channel string) []models.Record
	Document(id string) (string, error)
	Stats() recordstore.Stats
}

// AssetStore keeps a copy of voice attachments.
type AssetStore interface {
	PutAsset(ctx context.Context, data []byte, contentType string) (string, error)
}

// Downloader fetches attachment bytes.
type Downloader interface {
	Download(ctx context.Context, rawURL string) ([]byte, string, error)
}

// Bot dispatches chat messages.
type Bot struct {
	svc       Ingestor
	transport Transport
	limit     int
	assets    AssetStore
	download  Downloader
	logger    *slog.Logger
}

// Option customizes a Bot.
type Option func(*Bot)

// WithMessageLimit sets the maximum reply chunk size.
func WithMessageLimit(n int) Option {
	return func(b *Bot) {
		if n > 0 {
			b.limit = n
		}
	}
}

// WithAssetMirror copies voice attachments to store, fetched with d.
func WithAssetMirror(store AssetStore, d Downloader) Option {
	return func(b *Bot) {
		b.assets = store
		b.download = d
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Bot) {
		if l != nil {
			b.logger = l
		}
	}
}

// New returns a Bot.
func New(svc Ingestor, transport Transport, opts ...Option) *Bot {
	b := &Bot{svc: svc, transport: transport, limit: DefaultMessageLimit, logger: slog.Default()}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Run receives messages until ctx is done.
func (b *Bot) Run(ctx context.Context) error {
	b.logger.Info("bot: listening")
	return b.transport.Receive(ctx, b.Handle)
}

// Handle processes one message. Errors are reported to the channel.
func (b *Bot) Handle(ctx context.Context, m Message) {
	if strings.TrimSpace(m.Channel) == "" {
		b.logger.Warn("bot: message without channel dropped")
		return
	}
	text := strings.TrimSpace(m.Text)
	if strings.HasPrefix(text, "!") {
		b.command(ctx, m.Channel, text)
		return
	}
	if text == "" && m.AudioURL == "" && m.Transcript == "" {
		return
	}
	b.capture(ctx, m)
}

func (b *Bot) capture(ctx context.Context, m Message) {
	c := Classify(m)
	var (
		rec models.Record
		err error
	)
	switch c.Kind {
	case models.KindPaper:
		rec, err = b.svc.CapturePaper(ctx, m.Channel, c.PaperID, m.Text)
	case models.KindVoice:
		b.mirrorAudio(ctx, m.AudioURL)
		rec, err = b.svc.Capture(ctx, enrich.Item{
			Kind: models.KindVoice, Channel: m.Channel, Text: m.Transcript, AudioURL: m.AudioURL,
		})
	case models.KindArticle:
		rec, err = b.svc.Capture(ctx, enrich.Item{
			Kind: models.KindArticle, Channel: m.Channel, Text: m.Text, URL: c.URL,
		})
	default:
		rec, err = b.svc.Capture(ctx, enrich.Item{Kind: models.KindText, Channel: m.Channel, Text: m.Text})
	}
	if err != nil {
		b.logger.Warn("bot: capture failed",
			slog.String("channel", m.Channel),
			slog.String("kind", string(c.Kind)),
			slog.String("error", err.Error()))
		b.reply(ctx, m.Channel, fmt.Sprintf("Could not save that %s (%s).", c.Kind, apperr.Kind(err)))
		return
	}
	b.reply(ctx, m.Channel, fmt.Sprintf("Saved %s %s: %s", rec.Kind, rec.ID, models.Truncate(rec.Title(), 80)))
}

func (b *Bot) mirrorAudio(ctx context.Context, url string) {
	if b.assets == nil || b.download == nil || url == "" {
		return
	}
	data, ct, err := b.download.Download(ctx, url)
	if err == nil {
		var key string
		if key, err = b.assets.PutAsset(ctx, data, ct); err == nil {
			b.logger.Info("bot: voice asset mirrored", slog.String("key", key))
			return
		}
	}
	b.logger.Warn("bot: voice asset mirror failed", slog.String("error", err.Error()))
}

const helpText = `Send text, a link, an arXiv reference or a voice note and I will file it.
Commands:
!papers <query>   search arXiv
!save <selection> save results, e.g. !save 1,3-5
!recent [n]       list the newest records in this channel
!get <id>         show a record
!stats            record counts
!help             this message`

func (b *Bot) command(ctx context.Context, channel, text string) {
	name, arg, _ := strings.Cut(text, " ")
	arg = strings.TrimSpace(arg)
	switch strings.ToLower(name) {
	case "!help":
		b.reply(ctx, channel, helpText)
	case "!papers":
		b.papers(ctx, channel, arg)
	case "!save":
		b.save(ctx, channel, arg)
	case "!recent":
		b.recent(ctx, channel, arg)
	case "!get":
		b.get(ctx, channel, arg)
	case "!stats":
		b.stats(ctx, channel)
	default:
		b.reply(ctx, channel, fmt.Sprintf("Unknown command %s. Try !help.", name))
	}
}

func (b *Bot) papers(ctx context.Context, channel, query string) {
	if query == "" {
		b.reply(ctx, channel, "Usage: !papers <query>")
		return
	}
	papers, err := b.svc.SearchPapers(ctx, channel, query)
	if err != nil {
		b.logger.Warn("bot: paper search failed", slog.String("error", err.Error()))
		b.reply(ctx, channel, "Paper search failed, try again later.")
		return
	}
	if len(papers) == 0 {
		b.reply(ctx, channel, fmt.Sprintf("No papers found for %q.", query))
		return
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d papers for %q:\n", len(papers), query)
	for i, p := range papers {
		fmt.Fprintf(&sb, "%d. %s", i+1, models.Truncate(p.Title, 100))
		if !p.Published.IsZero() {
			fmt.Fprintf(&sb, " (%s)", p.Published.Format("2006-01-02"))
		}
		if len(p.Authors) > 0 {
			authors := p.Authors[0]
			if len(p.Authors) > 1 {
				authors += " et al."
			}
			fmt.Fprintf(&sb, " · %s", authors)
		}
		sb.WriteByte('\n')
	}
	sb.WriteString("Reply !save <numbers> to keep some, e.g. !save 1,3-4")
	b.reply(ctx, channel, sb.String())
}

func (b *Bot) save(ctx context.Context, channel, expr string) {
	if expr == "" {
		b.reply(ctx, channel, "Usage: !save <selection>, e.g. !save 1,3-5")
		return
	}
	if n := len(b.svc.Candidates(channel)); n > 0 {
		b.reply(ctx, channel, fmt.Sprintf("Saving selection %q from %d results…", expr, n))
	}
	out, err := b.svc.SavePapers(ctx, channel, expr, nil)
	switch {
	case errors.Is(err, ingest.ErrNoCandidates):
		b.reply(ctx, channel, "Nothing to save yet. Run !papers <query> first.")
		return
	case errors.Is(err, apperr.ErrNoValidSelection):
		b.reply(ctx, channel, fmt.Sprintf("No valid selection in %q. Use numbers from the last search, e.g. 1,3-5.", expr))
		return
	case err != nil:
		b.logger.Error("bot: save failed", slog.String("error", err.Error()))
		b.reply(ctx, channel, "Save failed.")
		return
	}
	b.reply(ctx, channel, ingest.FormatOutcome(out))
}

func (b *Bot) recent(ctx context.Context, channel, arg string) {
	n := 5
	if arg != "" {
		v, err := strconv.Atoi(arg)
		if err != nil || v <= 0 {
			b.reply(ctx, channel, "Usage: !recent [n]")
			return
		}
		n = min(v, 50)
	}
	recs := b.svc.Recent(n, channel)
	if len(recs) == 0 {
		b.reply(ctx, channel, "No records in this channel yet.")
		return
	}
	var sb strings.Builder
	for _, r := range recs {
		fmt.Fprintf(&sb, "%s · %s · %s\n", r.ID, r.Kind, models.Truncate(r.Title(), 80))
	}
	b.reply(ctx, channel, strings.TrimRight(sb.String(), "\n"))
}

func (b *Bot) get(ctx context.Context, channel, id string) {
	if id == "" {
		b.reply(ctx, channel, "Usage: !get <id>")
		return
	}
	doc, err := b.svc.Document(id)
	if errors.Is(err, apperr.ErrNotFound) {
		b.reply(ctx, channel, fmt.Sprintf("No record %s.", id))
		return
	}
	if err != nil {
		b.logger.Error("bot: get failed", slog.String("id", id), slog.String("error", err.Error()))
		b.reply(ctx, channel, "Could not load that record.")
		return
	}
	b.reply(ctx, channel, doc)
}

func (b *Bot) stats(ctx context.Context, channel string) {
	st := b.svc.Stats()
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d records", st.Total)
	for _, k := range models.Kinds {
		if n := st.PerKind[k]; n > 0 {
			fmt.Fprintf(&sb, "\n%s: %d", k, n)
		}
	}
	if n := st.PerChannel[channel]; n > 0 {
		fmt.Fprintf(&sb, "\nthis channel: %d", n)
	}
	b.reply(ctx, channel, sb.String())
}

// reply sends text in chunks no longer than the message limit.
func (b *Bot) reply(ctx context.Context, channel, text string) {
	for _, chunk := range render.Chunk(text, b.limit) {
		if err := b.transport.Send(ctx, channel, chunk); err != nil {
			b.logger.Error("bot: send failed", slog.String("channel", channel), slog.String("error", err.Error()))
			return
		}
	}
}
