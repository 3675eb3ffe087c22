package connectivity

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
)

// Listener receives the new state after a transition.
type Listener func(online bool)

type listenerEntry struct {
	id int
	fn Listener
}

// Monitor owns the connectivity state.
//
// Transitions are serialized: listeners of one transition all run before the
// next transition is applied. A listener must not call Signal.
type Monitor struct {
	mu        sync.Mutex
	online    bool
	nextID    int
	listeners []listenerEntry
	reconnect []func()

	// transition serializes Signal so listeners observe transitions in order.
	transition sync.Mutex

	broadcaster *Broadcaster
	logger      *slog.Logger
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Monitor) {
		m.logger = logger
	}
}

// WithBroadcaster publishes every transition on b.
func WithBroadcaster(b *Broadcaster) Option {
	return func(m *Monitor) {
		m.broadcaster = b
	}
}

// NewMonitor creates a monitor with the platform-reported initial state.
func NewMonitor(initialOnline bool, opts ...Option) *Monitor {
	m := &Monitor{
		online: initialOnline,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Online returns the cached state. It never probes.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Subscribe registers l for future transitions and returns a function that
// removes it.
func (m *Monitor) Subscribe(l Listener) (unsubscribe func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	id := m.nextID
	m.listeners = append(m.listeners, listenerEntry{id: id, fn: l})

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			m.listeners = slices.DeleteFunc(m.listeners, func(e listenerEntry) bool {
				return e.id == id
			})
		})
	}
}

// OnReconnect registers fn to run on every offline to online transition,
// before any listener is notified. It is how the sync trigger is wired.
func (m *Monitor) OnReconnect(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reconnect = append(m.reconnect, fn)
}

// Signal applies a platform connectivity signal. Signalling the current
// state is a no-op.
func (m *Monitor) Signal(online bool) {
	m.transition.Lock()
	defer m.transition.Unlock()

	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	listeners := slices.Clone(m.listeners)
	reconnect := slices.Clone(m.reconnect)
	m.mu.Unlock()

	m.logger.Info("connectivity changed", "online", online)

	if online {
		for _, fn := range reconnect {
			m.safeCall("reconnect", func() { fn() })
		}
	}
	for _, e := range listeners {
		m.safeCall("listener", func() { e.fn(online) })
	}
	if m.broadcaster != nil {
		m.broadcaster.Publish(StateChange{IsOnline: online})
	}
}

// Watch feeds Signal from a platform signal channel until ctx is cancelled
// or the channel is closed.
func (m *Monitor) Watch(ctx context.Context, signals <-chan bool) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case online, ok := <-signals:
			if !ok {
				return nil
			}
			m.Signal(online)
		}
	}
}

func (m *Monitor) safeCall(kind string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("connectivity callback panicked",
				"kind", kind,
				"panic", fmt.Sprint(r),
			)
		}
	}()
	fn()
}
