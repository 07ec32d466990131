package backend

import (
	"context"
	"io"
	"sync"

	"github.com/kpfister44/Kinnect-sub000/internal/remote"
)

// feedHub fans change records out to every open feed subscription.
type feedHub struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan remote.ChangeRecord
	closed bool
}

const subscriberBuffer = 64

func newFeedHub() *feedHub {
	return &feedHub{subs: make(map[int]chan remote.ChangeRecord)}
}

func (h *feedHub) subscribe() (id int, ch chan remote.ChangeRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	ch = make(chan remote.ChangeRecord, subscriberBuffer)
	if h.closed {
		close(ch)
		return h.nextID, ch
	}
	h.subs[h.nextID] = ch
	return h.nextID, ch
}

func (h *feedHub) unsubscribe(id int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.subs[id]; ok {
		delete(h.subs, id)
		close(ch)
	}
}

// broadcast delivers to every subscriber without blocking: a subscriber that
// stops draining loses records, same as a real stream under backpressure.
func (h *feedHub) broadcast(record remote.ChangeRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs {
		select {
		case ch <- record:
		default:
		}
	}
}

func (h *feedHub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
}

// Subscribe opens a raw change-record channel. The HTTP server's websocket
// handler drains it; in-process clients wrap it in a ChangeFeed.
func (b *Backend) Subscribe() (ch <-chan remote.ChangeRecord, cancel func()) {
	id, c := b.hub.subscribe()
	return c, func() { b.hub.unsubscribe(id) }
}

// localFeed adapts a hub subscription to remote.ChangeFeed.
type localFeed struct {
	ch     <-chan remote.ChangeRecord
	cancel func()
}

func (f *localFeed) Next(ctx context.Context) (remote.ChangeRecord, error) {
	select {
	case record, ok := <-f.ch:
		if !ok {
			return remote.ChangeRecord{}, io.EOF
		}
		return record, nil
	case <-ctx.Done():
		return remote.ChangeRecord{}, ctx.Err()
	}
}

func (f *localFeed) Close() error {
	f.cancel()
	return nil
}
