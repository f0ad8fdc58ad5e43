// Package sse streams record, document and batch activity to dashboards as
// Server-Sent Events. Clients may filter by channel and resume after a
// disconnect with Last-Event-ID.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// Event types.
const (
	RecordCreated   = "record.created"
	RecordRendered  = "record.rendered"
	DocumentChanged = "document.changed"
	DocumentRemoved = "document.removed"
	BatchStarted    = "batch.started"
	BatchItem       = "batch.item"
	BatchFinished   = "batch.finished"
	StatsUpdated    = "stats.updated"
)

// Event is one message for subscribers. Channel scopes it for filtered
// subscribers; an empty Channel reaches everyone.
type Event struct {
	Type    string
	Channel string
	Data    any
}

// RecordEvent describes a change to a stored record or its document.
type RecordEvent struct {
	ID      string `json:"id,omitempty"`
	Channel string `json:"channel,omitempty"`
	Path    string `json:"path,omitempty"`
}

type frame struct {
	id      uint64
	channel string
	raw     []byte
}

type client struct {
	ch      chan []byte
	channel string
}

func (c *client) wants(f frame) bool {
	return c.channel == "" || f.channel == "" || f.channel == c.channel
}

// Broker fans events out to subscribers and keeps a short history for
// reconnecting clients. Slow subscribers lose events rather than stall
// publishers.
type Broker struct {
	statsEvery time.Duration
	stats      func() any
	historyLen int
	keepAlive  time.Duration
	bufferLen  int

	mu        sync.Mutex
	clients   map[*client]struct{}
	seq       uint64
	history   []frame
	lastStats time.Time
	closed    bool
}

// Option configures a Broker.
type Option func(*Broker)

// WithStatsThrottle limits stats.updated to one per d.
func WithStatsThrottle(d time.Duration) Option {
	return func(b *Broker) {
		if d > 0 {
			b.statsEvery = d
		}
	}
}

// WithStatsSource sets the payload of stats.updated events.
func WithStatsSource(fn func() any) Option { return func(b *Broker) { b.stats = fn } }

// WithHistory sets how many events are kept for Last-Event-ID replay.
func WithHistory(n int) Option {
	return func(b *Broker) {
		if n >= 0 {
			b.historyLen = n
		}
	}
}

// WithKeepAlive sets the interval of comment pings on idle streams.
func WithKeepAlive(d time.Duration) Option {
	return func(b *Broker) {
		if d > 0 {
			b.keepAlive = d
		}
	}
}

// NewBroker returns a ready broker.
func NewBroker(opts ...Option) *Broker {
	b := &Broker{
		statsEvery: 2 * time.Second,
		historyLen: 128,
		keepAlive:  15 * time.Second,
		bufferLen:  64,
		clients:    make(map[*client]struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Publish delivers ev to every matching subscriber.
func (b *Broker) Publish(ev Event) {
	payload, err := json.Marshal(ev.Data)
	if err != nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.publishLocked(ev, payload)
}

func (b *Broker) publishLocked(ev Event, payload []byte) {
	if b.closed {
		return
	}
	b.seq++
	f := frame{
		id:      b.seq,
		channel: ev.Channel,
		raw:     fmt.Appendf(nil, "id: %d\nevent: %s\ndata: %s\n\n", b.seq, ev.Type, payload),
	}
	if b.historyLen > 0 {
		if len(b.history) == b.historyLen {
			b.history = append(b.history[:0], b.history[1:]...)
		}
		b.history = append(b.history, f)
	}
	for c := range b.clients {
		if !c.wants(f) {
			continue
		}
		select {
		case c.ch <- f.raw:
		default:
		}
	}
}

// PublishRecordEvent publishes a record or document change followed, at
// most once per throttle window, by stats.updated. Unknown kinds are
// dropped.
func (b *Broker) PublishRecordEvent(kind string, ev RecordEvent) {
	switch kind {
	case RecordCreated, RecordRendered, DocumentChanged, DocumentRemoved:
	default:
		return
	}
	b.Publish(Event{Type: kind, Channel: ev.Channel, Data: ev})

	b.mu.Lock()
	now := time.Now()
	due := !b.closed && now.Sub(b.lastStats) >= b.statsEvery
	if due {
		b.lastStats = now
	}
	b.mu.Unlock()
	if !due {
		return
	}
	var data any = struct{}{}
	if b.stats != nil {
		data = b.stats()
	}
	b.Publish(Event{Type: StatsUpdated, Data: data})
}

// Subscribe registers a subscriber for channel ("" for all) and queues any
// retained events newer than lastID. The returned cancel func is safe to
// call more than once.
func (b *Broker) Subscribe(channel string, lastID uint64) (<-chan []byte, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c := &client{channel: channel}
	var replay [][]byte
	if lastID > 0 {
		for _, f := range b.history {
			if f.id > lastID && c.wants(f) {
				replay = append(replay, f.raw)
			}
		}
	}
	c.ch = make(chan []byte, b.bufferLen+len(replay))
	for _, raw := range replay {
		c.ch <- raw
	}
	if b.closed {
		close(c.ch)
		return c.ch, func() {}
	}
	b.clients[c] = struct{}{}
	return c.ch, func() { b.drop(c) }
}

func (b *Broker) drop(c *client) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.clients[c]; ok {
		delete(b.clients, c)
		close(c.ch)
	}
}

// ClientCount returns the number of live subscribers.
func (b *Broker) ClientCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

// Close disconnects every subscriber. Later publishes are no-ops.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for c := range b.clients {
		close(c.ch)
	}
	clear(b.clients)
}

// ServeHTTP streams events (GET /api/events). The optional channel query
// parameter restricts the stream to one chat channel.
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	lastID, _ := strconv.ParseUint(r.Header.Get("Last-Event-ID"), 10, 64)
	events, cancel := b.Subscribe(r.URL.Query().Get("channel"), lastID)
	defer cancel()

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprint(w, "retry: 3000\n\n")
	flusher.Flush()

	ping := time.NewTicker(b.keepAlive)
	defer ping.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ping.C:
			_, _ = fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case msg, ok := <-events:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
