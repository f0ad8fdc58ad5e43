package bot

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestChannelDispatcher_SlowChannelDoesNotBlockOthers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	release := make(chan struct{})
	done := make(chan string, 4)
	handle := func(_ context.Context, m Message) {
		if m.Channel == "slow" {
			<-release
		}
		done <- m.Channel + ":" + m.Text
	}
	d := newChannelDispatcher(ctx, handle, discardLogger)

	d.Dispatch(Message{Channel: "slow", Text: "long capture"})
	d.Dispatch(Message{Channel: "fast", Text: "hi"})

	select {
	case got := <-done:
		if got != "fast:hi" {
			t.Fatalf("first handled = %q, want fast:hi", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("fast channel stalled behind slow channel")
	}

	close(release)
	select {
	case got := <-done:
		if got != "slow:long capture" {
			t.Fatalf("second handled = %q", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("slow channel never finished")
	}
	cancel()
	d.Close()
}

func TestChannelDispatcher_PreservesOrderWithinChannel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	const n = 50
	var (
		mu  sync.Mutex
		got []string
		wg  sync.WaitGroup
	)
	wg.Add(n)
	handle := func(_ context.Context, m Message) {
		mu.Lock()
		got = append(got, m.Text)
		mu.Unlock()
		wg.Done()
	}
	d := newChannelDispatcher(ctx, handle, discardLogger)
	for i := 0; i < n; i++ {
		d.Dispatch(Message{Channel: "papers", Text: fmt.Sprint(i)})
	}
	wg.Wait()
	cancel()
	d.Close()

	for i, text := range got {
		if text != fmt.Sprint(i) {
			t.Fatalf("message %d = %q, order lost: %v", i, text, got)
		}
	}
}

func TestChannelDispatcher_FullQueueDrops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	handle := func(ctx context.Context, _ Message) {
		select {
		case started <- struct{}{}:
		default:
		}
		select {
		case <-release:
		case <-ctx.Done():
		}
	}
	d := newChannelDispatcher(ctx, handle, discardLogger)

	d.Dispatch(Message{Channel: "a", Text: "first"})
	<-started
	for i := 0; i < channelQueueSize; i++ {
		if !d.Dispatch(Message{Channel: "a", Text: "queued"}) {
			t.Fatalf("message %d dropped before queue filled", i)
		}
	}
	if d.Dispatch(Message{Channel: "a", Text: "overflow"}) {
		t.Error("overflow message accepted")
	}
	if !d.Dispatch(Message{Channel: "b", Text: "other"}) {
		t.Error("other channel affected by full queue")
	}

	cancel()
	close(release)
	d.Close()
	if d.Dispatch(Message{Channel: "a", Text: "late"}) {
		t.Error("message accepted after Close")
	}
}
