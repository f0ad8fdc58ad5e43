package bot

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
)

// NATSConfig configures the NATS chat bridge. Inbound messages arrive on
// <Subject>.in.<channel> and replies go to <Subject>.out.<channel>.
type NATSConfig struct {
	URL            string
	Subject        string
	ConnectTimeout time.Duration
}

const (
	pendingMsgLimit   = 4096
	pendingBytesLimit = 64 << 20
)

// NATSTransport bridges chat traffic over NATS subjects.
type NATSTransport struct {
	conn    *nats.Conn
	subject string
	logger  *slog.Logger
}

// Reply is the payload published for outbound messages.
type Reply struct {
	Channel string `json:"channel"`
	Text    string `json:"text"`
}

// NewNATSTransport connects to the server in cfg.
func NewNATSTransport(cfg NATSConfig, logger *slog.Logger) (*NATSTransport, error) {
	if cfg.URL == "" {
		cfg.URL = nats.DefaultURL
	}
	if cfg.Subject == "" {
		cfg.Subject = "gleaner.chat"
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := nats.Connect(cfg.URL,
		nats.Name("gleaner"),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			attrs := []any{slog.String("error", err.Error())}
			if sub != nil {
				attrs = append(attrs, slog.String("subject", sub.Subject))
			}
			logger.Error("bot: nats async error", attrs...)
		}),
		nats.Timeout(cfg.ConnectTimeout),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return &NATSTransport{conn: conn, subject: cfg.Subject, logger: logger}, nil
}

// Receive subscribes to inbound messages until ctx is done. Each channel
// is handled on its own worker in arrival order, so the subscription keeps
// draining while a capture is in flight.
func (t *NATSTransport) Receive(ctx context.Context, handle func(context.Context, Message)) error {
	ctx, cancel := context.WithCancel(ctx)
	dispatcher := newChannelDispatcher(ctx, handle, t.logger)
	defer dispatcher.Close()
	defer cancel()

	prefix := t.subject + ".in."
	sub, err := t.conn.Subscribe(prefix+">", func(raw *nats.Msg) {
		m, err := decodeMessage(raw.Data, strings.TrimPrefix(raw.Subject, prefix))
		if err != nil {
			t.logger.Warn("bot: bad inbound message",
				slog.String("subject", raw.Subject),
				slog.String("error", err.Error()))
			return
		}
		dispatcher.Dispatch(m)
	})
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	defer sub.Unsubscribe() //nolint:errcheck
	if err := sub.SetPendingLimits(pendingMsgLimit, pendingBytesLimit); err != nil {
		return fmt.Errorf("set pending limits: %w", err)
	}

	<-ctx.Done()
	return nil
}

// Send publishes text to the channel's outbound subject.
func (t *NATSTransport) Send(_ context.Context, channel, text string) error {
	data, err := json.Marshal(Reply{Channel: channel, Text: text})
	if err != nil {
		return err
	}
	return t.conn.Publish(t.subject+".out."+SubjectToken(channel), data)
}

// Close drains the connection.
func (t *NATSTransport) Close() error {
	return t.conn.Drain()
}

// decodeMessage parses a JSON message, or treats a non-JSON payload as
// plain text. The subject suffix names the channel when the payload does
// not.
func decodeMessage(data []byte, subjectChannel string) (Message, error) {
	var m Message
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "{") {
		if err := json.Unmarshal(data, &m); err != nil {
			return Message{}, err
		}
	} else {
		m.Text = trimmed
	}
	if m.Channel == "" {
		m.Channel = subjectChannel
	}
	if m.SentAt.IsZero() {
		m.SentAt = time.Now().UTC()
	}
	return m, nil
}

// SubjectToken maps a channel name to a single NATS subject token.
func SubjectToken(channel string) string {
	var b strings.Builder
	for _, r := range strings.TrimPrefix(channel, "#") {
		switch {
		case r == '.' || r == '*' || r == '>' || r <= ' ':
			b.WriteByte('_')
		default:
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "_"
	}
	return b.String()
}
