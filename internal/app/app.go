// Package app builds the process-wide components once and wires them
// together: the store, queue, connectivity monitor, sync coordinator,
// deliverer, metrics and cache facade.
package app

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/civicsync/internal/cache"
	"github.com/roach88/civicsync/internal/config"
	"github.com/roach88/civicsync/internal/connectivity"
	"github.com/roach88/civicsync/internal/engine"
	"github.com/roach88/civicsync/internal/metrics"
	"github.com/roach88/civicsync/internal/queue"
	"github.com/roach88/civicsync/internal/record"
	"github.com/roach88/civicsync/internal/store"
	"github.com/roach88/civicsync/internal/transport"
)

// ErrNoEndpoint is the delivery error when no delivery endpoint is
// configured. Every mutation stays queued.
var ErrNoEndpoint = errors.New("no delivery endpoint configured")

// App is the process context. Every field is built once by New.
type App struct {
	Config      config.Config
	Logger      *slog.Logger
	Store       *store.Store
	Queue       *queue.Queue
	Broadcaster *connectivity.Broadcaster
	Monitor     *connectivity.Monitor
	Prober      *connectivity.HTTPProber // nil without probe_url
	Deliverer   engine.Deliverer
	Engine      *engine.Engine
	Metrics     *metrics.Registry
	Cache       *cache.Cache

	wg sync.WaitGroup
}

type options struct {
	logger    *slog.Logger
	deliverer engine.Deliverer
	now       func() time.Time
	keys      queue.KeyGenerator
	online    *bool
}

// Option customizes New, mostly for tests.
type Option func(*options)

// WithLogger sets the logger shared by every component.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithDeliverer replaces the HTTP deliverer.
func WithDeliverer(d engine.Deliverer) Option {
	return func(o *options) { o.deliverer = d }
}

// WithClock sets the clock used for action timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithKeyGenerator sets the idempotency key generator.
func WithKeyGenerator(g queue.KeyGenerator) Option {
	return func(o *options) { o.keys = g }
}

// WithInitialOnline fixes the initial connectivity state, skipping the
// startup probe.
func WithInitialOnline(online bool) Option {
	return func(o *options) { o.online = &online }
}

// New opens the store and wires every component. ctx bounds background
// sync runs and the startup probe.
func New(ctx context.Context, cfg config.Config, opts ...Option) (*App, error) {
	o := options{logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	s, err := store.Open(cfg.Database, store.WithClock(o.now))
	if err != nil {
		return nil, err
	}

	queueOpts := []queue.Option{queue.WithClock(o.now)}
	if o.keys != nil {
		queueOpts = append(queueOpts, queue.WithKeyGenerator(o.keys))
	}
	q := queue.New(s, queueOpts...)

	reg := metrics.NewRegistry()

	d := o.deliverer
	if d == nil {
		d = newDeliverer(cfg)
	}

	a := &App{
		Config:      cfg,
		Logger:      o.logger,
		Store:       s,
		Queue:       q,
		Broadcaster: connectivity.NewBroadcaster(),
		Deliverer:   d,
		Metrics:     reg,
	}

	if cfg.ProbeURL != "" {
		a.Prober = connectivity.NewHTTPProber(cfg.ProbeURL,
			connectivity.WithInterval(cfg.ProbeInterval),
			connectivity.WithProberLogger(o.logger),
		)
	}

	a.Engine = engine.New(q, d,
		engine.WithLogger(o.logger),
		engine.WithMetrics(reg),
		engine.WithContext(ctx),
	)

	initial := a.initialState(ctx, o.online)
	a.Monitor = connectivity.NewMonitor(initial,
		connectivity.WithLogger(o.logger),
		connectivity.WithBroadcaster(a.Broadcaster),
	)
	a.Monitor.OnReconnect(a.Engine.Trigger)
	a.Monitor.Subscribe(func(online bool) { reg.SetOnline(online, true) })
	reg.SetOnline(initial, false)

	a.Cache = cache.New(s, q, a.Monitor, a.Engine, d,
		cache.WithLogger(o.logger),
		cache.WithMetrics(reg),
	)

	if n, err := q.Len(ctx); err == nil {
		reg.SetPendingActions(n)
	}

	o.logger.Debug("app initialized",
		"database", cfg.Database,
		"online", initial,
		"endpoint", cfg.DeliveryEndpoint,
	)
	return a, nil
}

// initialState is the platform-reported status: a fixed override, one
// synchronous probe, or the configured default.
func (a *App) initialState(ctx context.Context, override *bool) bool {
	if override != nil {
		return *override
	}
	if a.Prober != nil {
		return a.Prober.Probe(ctx)
	}
	return a.Config.InitialOnline
}

// Start runs the configured background work: a startup sync when online and
// sync_on_start is set, and the connectivity prober feeding the monitor.
// Everything stops when ctx is cancelled.
func (a *App) Start(ctx context.Context) {
	if a.Config.SyncOnStart && a.Monitor.Online() {
		a.Engine.Trigger()
	}
	if a.Prober == nil {
		return
	}

	signals := make(chan bool)
	a.wg.Add(2)
	go func() {
		defer a.wg.Done()
		a.Prober.Run(ctx, signals)
	}()
	go func() {
		defer a.wg.Done()
		if err := a.Monitor.Watch(ctx, signals); err != nil && !errors.Is(err, context.Canceled) {
			a.Logger.Warn("connectivity watch stopped", "error", err)
		}
	}()
}

// Close waits for background work and sync runs, then closes the store.
// Cancel the context given to Start first.
func (a *App) Close() error {
	a.wg.Wait()
	a.Engine.Wait()
	a.Broadcaster.Close()
	return a.Store.Close()
}

func newDeliverer(cfg config.Config) engine.Deliverer {
	if cfg.DeliveryEndpoint == "" {
		return engine.DelivererFunc(func(context.Context, record.PendingAction) error {
			return ErrNoEndpoint
		})
	}
	opts := []transport.Option{transport.WithTimeout(cfg.DeliveryTimeout)}
	if cfg.DeliveryToken != "" {
		opts = append(opts, transport.WithToken(cfg.DeliveryToken))
	}
	return transport.NewHTTPDeliverer(cfg.DeliveryEndpoint, opts...)
}
