package sse

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// drain collects whatever is queued on ch without blocking.
func drain(ch <-chan []byte) []string {
	var out []string
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, string(msg))
		default:
			return out
		}
	}
}

func TestSubscribeAndCancel(t *testing.T) {
	b := NewBroker()
	defer b.Close()

	_, cancel := b.Subscribe("", 0)
	if n := b.ClientCount(); n != 1 {
		t.Fatalf("clients = %d", n)
	}
	cancel()
	cancel()
	if n := b.ClientCount(); n != 0 {
		t.Fatalf("clients after cancel = %d", n)
	}
}

func TestPublish_FrameCarriesIDTypeAndData(t *testing.T) {
	b := NewBroker()
	defer b.Close()
	ch, cancel := b.Subscribe("", 0)
	defer cancel()

	b.Publish(Event{Type: BatchFinished, Data: map[string]string{"batch_id": "01J"}})

	got := drain(ch)
	if len(got) != 1 {
		t.Fatalf("frames = %q", got)
	}
	want := "id: 1\nevent: batch.finished\ndata: {\"batch_id\":\"01J\"}\n\n"
	if got[0] != want {
		t.Errorf("frame = %q, want %q", got[0], want)
	}
}

func TestSubscribe_ChannelFilter(t *testing.T) {
	b := NewBroker()
	defer b.Close()
	ml, cancelML := b.Subscribe("ml", 0)
	defer cancelML()
	all, cancelAll := b.Subscribe("", 0)
	defer cancelAll()

	b.Publish(Event{Type: BatchStarted, Channel: "ml", Data: 1})
	b.Publish(Event{Type: BatchStarted, Channel: "notes", Data: 2})
	b.Publish(Event{Type: StatsUpdated, Data: 3})

	if got := drain(ml); len(got) != 2 || strings.Contains(strings.Join(got, ""), "data: 2") {
		t.Errorf("ml subscriber got %q", got)
	}
	if got := drain(all); len(got) != 3 {
		t.Errorf("unfiltered subscriber got %d frames", len(got))
	}
}

func TestSubscribe_ReplaysAfterLastEventID(t *testing.T) {
	b := NewBroker(WithHistory(3))
	defer b.Close()
	for i := 0; i < 5; i++ {
		b.Publish(Event{Type: BatchItem, Data: i})
	}

	ch, cancel := b.Subscribe("", 3)
	defer cancel()
	got := drain(ch)
	if len(got) != 2 || !strings.HasPrefix(got[0], "id: 4\n") || !strings.HasPrefix(got[1], "id: 5\n") {
		t.Errorf("replay = %q", got)
	}

	// Anything older than the retained window is gone.
	old, cancelOld := b.Subscribe("", 1)
	defer cancelOld()
	if got := drain(old); len(got) != 3 {
		t.Errorf("replay from 1 = %d frames, want 3", len(got))
	}
}

func TestPublishRecordEvent_ThrottlesStats(t *testing.T) {
	calls := 0
	b := NewBroker(WithStatsThrottle(time.Hour), WithStatsSource(func() any {
		calls++
		return map[string]int{"total": 7}
	}))
	defer b.Close()
	ch, cancel := b.Subscribe("", 0)
	defer cancel()

	b.PublishRecordEvent(RecordCreated, RecordEvent{ID: "001", Channel: "notes"})
	b.PublishRecordEvent(RecordRendered, RecordEvent{ID: "001", Path: "notes/001.md"})
	b.PublishRecordEvent("record.bogus", RecordEvent{ID: "002"})

	var records, stats int
	for _, msg := range drain(ch) {
		if strings.Contains(msg, "event: "+StatsUpdated) {
			stats++
			if !strings.Contains(msg, `"total":7`) {
				t.Errorf("stats payload = %q", msg)
			}
			continue
		}
		records++
	}
	if records != 2 || stats != 1 || calls != 1 {
		t.Errorf("records = %d, stats = %d, source calls = %d", records, stats, calls)
	}
}

func TestPublish_SlowSubscriberDoesNotBlock(t *testing.T) {
	b := NewBroker()
	defer b.Close()
	_, cancel := b.Subscribe("", 0)
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 200; i++ {
			b.Publish(Event{Type: BatchItem, Data: i})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
}

func TestClose_DisconnectsAndIgnoresLaterPublishes(t *testing.T) {
	b := NewBroker()
	ch, cancel := b.Subscribe("", 0)

	b.Close()
	b.Close()
	if _, ok := <-ch; ok {
		t.Fatal("subscriber channel still open")
	}
	cancel()
	b.Publish(Event{Type: BatchStarted, Data: 1})
	b.PublishRecordEvent(DocumentChanged, RecordEvent{Path: "x.md"})
	if n := b.ClientCount(); n != 0 {
		t.Errorf("clients = %d", n)
	}
	late, _ := b.Subscribe("", 0)
	if _, ok := <-late; ok {
		t.Error("subscribe after close returned an open channel")
	}
}

func TestServeHTTP_StreamsFilteredEvents(t *testing.T) {
	b := NewBroker(WithKeepAlive(20 * time.Millisecond))
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/api/events?channel=links", nil).WithContext(ctx)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		b.ServeHTTP(w, req)
		close(done)
	}()
	deadline := time.Now().Add(time.Second)
	for b.ClientCount() != 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	b.PublishRecordEvent(RecordCreated, RecordEvent{ID: "004", Channel: "links"})
	b.PublishRecordEvent(RecordCreated, RecordEvent{ID: "005", Channel: "notes"})
	time.Sleep(60 * time.Millisecond)
	cancel()
	<-done

	body := w.Body.String()
	if !strings.HasPrefix(body, "retry: 3000\n\n") {
		t.Errorf("missing retry hint: %q", body)
	}
	if !strings.Contains(body, `"id":"004"`) || strings.Contains(body, `"id":"005"`) {
		t.Errorf("unexpected stream: %q", body)
	}
	if !strings.Contains(body, ": ping") {
		t.Errorf("no keep-alive in %q", body)
	}
	if got := w.Header().Get("Content-Type"); got != "text/event-stream" {
		t.Errorf("content type = %q", got)
	}

	time.Sleep(20 * time.Millisecond)
	if n := b.ClientCount(); n != 0 {
		t.Errorf("client not released: %d", n)
	}
}

func TestServeHTTP_ResumesFromLastEventID(t *testing.T) {
	b := NewBroker()
	defer b.Close()
	b.Publish(Event{Type: BatchItem, Data: "first"})
	b.Publish(Event{Type: BatchItem, Data: "second"})

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/api/events", nil).WithContext(ctx)
	req.Header.Set("Last-Event-ID", "1")
	w := httptest.NewRecorder()
	done := make(chan struct{})
	go func() {
		b.ServeHTTP(w, req)
		close(done)
	}()
	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done

	body := w.Body.String()
	if strings.Contains(body, `"first"`) || !strings.Contains(body, `"second"`) {
		t.Errorf("resume stream = %q", body)
	}
}
