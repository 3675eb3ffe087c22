// Package cache is the public face of the offline layer.
//
// Reads and writes go straight to the durable store (read-through,
// write-through) with no network fallback. Mutations go through Submit,
// which delivers when it can and queues when it cannot. SyncPendingActions
// drains the queue on demand.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/civicsync/internal/connectivity"
	"github.com/roach88/civicsync/internal/engine"
	"github.com/roach88/civicsync/internal/metrics"
	"github.com/roach88/civicsync/internal/queue"
	"github.com/roach88/civicsync/internal/record"
	"github.com/roach88/civicsync/internal/store"
)

// Cache is the offline cache facade.
type Cache struct {
	store     *store.Store
	queue     *queue.Queue
	monitor   *connectivity.Monitor
	engine    *engine.Engine
	deliverer engine.Deliverer
	logger    *slog.Logger
	metrics   *metrics.Registry
}

// Option configures a Cache.
type Option func(*Cache)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) {
		c.logger = logger
	}
}

// WithMetrics records cache operations and queue depth in reg.
func WithMetrics(reg *metrics.Registry) Option {
	return func(c *Cache) {
		c.metrics = reg
	}
}

// New creates the facade. The engine must drain q through d.
func New(
	s *store.Store,
	q *queue.Queue,
	m *connectivity.Monitor,
	e *engine.Engine,
	d engine.Deliverer,
	opts ...Option,
) *Cache {
	c := &Cache{
		store:     s,
		queue:     q,
		monitor:   m,
		engine:    e,
		deliverer: d,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RecordFailure describes one record of a bulk write that was not stored.
type RecordFailure struct {
	Index int
	Err   error
}

// BulkResult reports the outcome of CacheRecords.
type BulkResult struct {
	Written  int
	Failures []RecordFailure
}

// CacheRecords writes each record independently. A failing record does not
// stop the others and nothing is rolled back. The returned error joins the
// per-record failures and is nil when every record was written.
func (c *Cache) CacheRecords(ctx context.Context, p record.Partition, records []record.Record) (BulkResult, error) {
	var res BulkResult
	var errs []error
	for i, r := range records {
		if _, err := c.store.Set(ctx, p, r); err != nil {
			res.Failures = append(res.Failures, RecordFailure{Index: i, Err: err})
			errs = append(errs, fmt.Errorf("record %d: %w", i, err))
			continue
		}
		res.Written++
	}
	err := errors.Join(errs...)
	c.observe("cache_records", p, err)
	if err != nil {
		c.logger.Warn("bulk cache write incomplete",
			"partition", p,
			"written", res.Written,
			"failed", len(res.Failures),
		)
	}
	return res, err
}

// GetCachedRecords returns every record in the partition.
func (c *Cache) GetCachedRecords(ctx context.Context, p record.Partition) ([]record.Record, error) {
	records, err := c.store.GetAll(ctx, p)
	c.observe("get_all", p, err)
	return records, err
}

// GetRecord returns one record. A missing key is found == false, not an
// error.
func (c *Cache) GetRecord(ctx context.Context, p record.Partition, key string) (record.Record, bool, error) {
	r, found, err := c.store.Get(ctx, p, key)
	c.observe("get", p, err)
	return r, found, err
}

// SetRecord upserts one record and returns its key.
func (c *Cache) SetRecord(ctx context.Context, p record.Partition, r record.Record) (string, error) {
	key, err := c.store.Set(ctx, p, r)
	c.observe("set", p, err)
	return key, err
}

// DeleteRecord removes one record. Deleting a missing key is not an error.
func (c *Cache) DeleteRecord(ctx context.Context, p record.Partition, key string) error {
	err := c.store.Delete(ctx, p, key)
	c.observe("delete", p, err)
	return err
}

// EventsByCategory queries the events category index.
func (c *Cache) EventsByCategory(ctx context.Context, category string) ([]record.Record, error) {
	records, err := c.store.EventsByCategory(ctx, category)
	c.observe("events_by_category", record.Events, err)
	return records, err
}

// EventsStartingBetween queries the events start date index.
func (c *Cache) EventsStartingBetween(ctx context.Context, from, to string) ([]record.Record, error) {
	records, err := c.store.EventsStartingBetween(ctx, from, to)
	c.observe("events_between", record.Events, err)
	return records, err
}

// Ping checks that the store is reachable.
func (c *Cache) Ping(ctx context.Context) error {
	return c.store.Ping(ctx)
}

// GetCacheStats recomputes partition counts and reads the connectivity
// state. Nothing is cached between calls.
func (c *Cache) GetCacheStats(ctx context.Context) (record.CacheStats, error) {
	counts := make(map[record.Partition]int, len(record.Partitions))
	for _, p := range record.Partitions {
		n, err := c.store.Count(ctx, p)
		if err != nil {
			c.observe("stats", p, err)
			return record.CacheStats{}, err
		}
		counts[p] = n
	}
	if c.metrics != nil {
		c.metrics.SetPendingActions(counts[record.PendingActions])
	}
	return record.CacheStats{
		Events:          counts[record.Events],
		Notifications:   counts[record.Notifications],
		UserPreferences: counts[record.UserPreferences],
		PendingActions:  counts[record.PendingActions],
		IsOnline:        c.monitor.Online(),
	}, nil
}

// ClearAllCache empties the cache partitions. Pending actions are never
// touched. Every partition is attempted; the error joins the failures.
func (c *Cache) ClearAllCache(ctx context.Context) error {
	var errs []error
	for _, p := range record.CachePartitions {
		err := c.store.Clear(ctx, p)
		c.observe("clear", p, err)
		if err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}
	c.logger.Info("cache cleared")
	return nil
}

// Online reports the monitor's cached connectivity state.
func (c *Cache) Online() bool {
	return c.monitor.Online()
}

func (c *Cache) observe(op string, p record.Partition, err error) {
	if c.metrics != nil {
		c.metrics.RecordCacheOperation(op, string(p), err)
	}
}
