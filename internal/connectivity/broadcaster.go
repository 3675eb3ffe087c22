package connectivity

import (
	"context"
	"sync"
)

// defaultBuffer is the per-subscriber channel capacity.
const defaultBuffer = 16

// StateChange is the message fanned out on every transition.
type StateChange struct {
	IsOnline bool `json:"isOnline"`
}

// Broadcaster fans StateChange messages out to channel subscribers.
// Publishing never blocks: a subscriber whose buffer is full misses the
// message.
type Broadcaster struct {
	mu     sync.RWMutex
	subs   map[*subscription]struct{}
	buffer int
	closed bool
}

type subscription struct {
	ch   chan StateChange
	once sync.Once
	stop func() bool
}

func (s *subscription) close() {
	s.once.Do(func() {
		if s.stop != nil {
			s.stop()
		}
		close(s.ch)
	})
}

// NewBroadcaster creates a Broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subs:   make(map[*subscription]struct{}),
		buffer: defaultBuffer,
	}
}

// Subscribe returns a buffered channel of state changes. The channel is
// closed when ctx is done or the broadcaster is closed. Nothing waits on a
// ctx that is never cancelled; Close releases those subscriptions.
func (b *Broadcaster) Subscribe(ctx context.Context) <-chan StateChange {
	sub := &subscription{ch: make(chan StateChange, b.buffer)}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		sub.close()
		return sub.ch
	}
	b.subs[sub] = struct{}{}
	// AfterFunc may fire at once for a done ctx; remove blocks on mu until
	// stop is recorded.
	sub.stop = context.AfterFunc(ctx, func() { b.remove(sub) })
	return sub.ch
}

// Publish sends msg to every subscriber without blocking.
func (b *Broadcaster) Publish(msg StateChange) {
	// Sends happen under the read lock so remove cannot close a channel
	// mid-send.
	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.subs {
		select {
		case sub.ch <- msg:
		default:
		}
	}
}

// Subscribers returns the current subscriber count.
func (b *Broadcaster) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close closes every subscriber channel. Later subscriptions get a closed
// channel.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for sub := range b.subs {
		sub.close()
		delete(b.subs, sub)
	}
}

func (b *Broadcaster) remove(sub *subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[sub]; ok {
		delete(b.subs, sub)
	}
	sub.close()
}
