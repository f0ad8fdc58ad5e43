package bot

import (
	"context"
	"log/slog"
	"sync"
)

const channelQueueSize = 256

// channelDispatcher runs handle on one goroutine per chat channel, so a
// slow capture in one channel never stalls the others while messages in a
// channel keep their arrival order.
type channelDispatcher struct {
	ctx    context.Context
	handle func(context.Context, Message)
	logger *slog.Logger

	mu     sync.Mutex
	queues map[string]chan Message
	closed bool
	wg     sync.WaitGroup
}

func newChannelDispatcher(ctx context.Context, handle func(context.Context, Message), logger *slog.Logger) *channelDispatcher {
	return &channelDispatcher{
		ctx:    ctx,
		handle: handle,
		logger: logger,
		queues: make(map[string]chan Message),
	}
}

// Dispatch queues m for its channel. It never blocks; a message arriving
// while the channel queue is full, or after Close, is dropped.
func (d *channelDispatcher) Dispatch(m Message) bool {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return false
	}
	q, ok := d.queues[m.Channel]
	if !ok {
		q = make(chan Message, channelQueueSize)
		d.queues[m.Channel] = q
		d.wg.Add(1)
		go d.work(q)
	}
	d.mu.Unlock()

	select {
	case q <- m:
		return true
	default:
		d.logger.Warn("bot: channel queue full, message dropped",
			slog.String("channel", m.Channel),
			slog.Int("queued", len(q)))
		return false
	}
}

func (d *channelDispatcher) work(q chan Message) {
	defer d.wg.Done()
	for {
		select {
		case <-d.ctx.Done():
			return
		case m := <-q:
			d.handle(d.ctx, m)
		}
	}
}

// Close stops accepting messages and waits for every worker. Workers
// return once the dispatcher context is done.
func (d *channelDispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.wg.Wait()
}
