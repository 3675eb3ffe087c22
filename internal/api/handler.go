// Package api exposes the cache over a local HTTP API for UI collaborators.
package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/roach88/civicsync/internal/cache"
	"github.com/roach88/civicsync/internal/connectivity"
	"github.com/roach88/civicsync/internal/metrics"
	"github.com/roach88/civicsync/internal/record"
)

type Handler struct {
	Cache       *cache.Cache
	Monitor     *connectivity.Monitor
	Broadcaster *connectivity.Broadcaster
	Metrics     *metrics.Registry
	Logger      *slog.Logger
}

// recordFailure is the wire form of cache.RecordFailure.
type recordFailure struct {
	Index int    `json:"index"`
	Error string `json:"error"`
}

func (h *Handler) logger() *slog.Logger {
	if h.Logger == nil {
		return slog.Default()
	}
	return h.Logger
}

// statusFor maps an error to a response code. Unknown partitions and
// records without a key are the caller's fault.
func statusFor(err error) int {
	switch {
	case errors.Is(err, record.ErrUnknownPartition), errors.Is(err, record.ErrMissingKey):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func fail(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"error": err.Error()})
}

func partitionParam(c *gin.Context) (record.Partition, bool) {
	p, err := record.ParsePartition(c.Param("partition"))
	if err != nil {
		fail(c, err)
		return "", false
	}
	return p, true
}

func (h *Handler) Stats(c *gin.Context) {
	stats, err := h.Cache.GetCacheStats(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// Health reports 503 when the store cannot be reached.
func (h *Handler) Health(c *gin.Context) {
	if err := h.Cache.Ping(c.Request.Context()); err != nil {
		h.logger().Warn("health check failed", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ListRecords returns every record of a partition. For events, the category
// query selects one category and from/to select a start_date range.
func (h *Handler) ListRecords(c *gin.Context) {
	p, ok := partitionParam(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	var (
		records []record.Record
		err     error
	)
	category, hasCategory := c.GetQuery("category")
	from, to := c.Query("from"), c.Query("to")
	switch {
	case p == record.Events && hasCategory:
		records, err = h.Cache.EventsByCategory(ctx, category)
	case p == record.Events && (from != "" || to != ""):
		records, err = h.Cache.EventsStartingBetween(ctx, from, to)
	default:
		records, err = h.Cache.GetCachedRecords(ctx, p)
	}
	if err != nil {
		fail(c, err)
		return
	}
	if records == nil {
		records = []record.Record{}
	}
	c.JSON(http.StatusOK, records)
}

func (h *Handler) GetRecord(c *gin.Context) {
	p, ok := partitionParam(c)
	if !ok {
		return
	}
	r, found, err := h.Cache.GetRecord(c.Request.Context(), p, c.Param("key"))
	if err != nil {
		fail(c, err)
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "record not found"})
		return
	}
	c.JSON(http.StatusOK, r)
}

// PutRecords upserts one record (a JSON object body) or many (an array).
// Each record is written on its own; failures are reported per index.
func (h *Handler) PutRecords(c *gin.Context) {
	p, ok := partitionParam(c)
	if !ok {
		return
	}
	records, err := decodeRecords(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := h.Cache.CacheRecords(c.Request.Context(), p, records)
	failures := make([]recordFailure, 0, len(res.Failures))
	for _, f := range res.Failures {
		failures = append(failures, recordFailure{Index: f.Index, Error: f.Err.Error()})
	}
	status := http.StatusOK
	if err != nil {
		status = statusFor(err)
	}
	c.JSON(status, gin.H{"written": res.Written, "failures": failures})
}

func decodeRecords(c *gin.Context) ([]record.Record, error) {
	data, err := c.GetRawData()
	if err != nil {
		return nil, err
	}
	return record.ParseRecords(data)
}

func (h *Handler) DeleteRecord(c *gin.Context) {
	p, ok := partitionParam(c)
	if !ok {
		return
	}
	if err := h.Cache.DeleteRecord(c.Request.Context(), p, c.Param("key")); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

func (h *Handler) ClearCache(c *gin.Context) {
	if err := h.Cache.ClearAllCache(c.Request.Context()); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

// SubmitAction runs the mutation path: 200 when delivered, 202 when queued.
func (h *Handler) SubmitAction(c *gin.Context) {
	var payload map[string]any
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res, err := h.Cache.Submit(c.Request.Context(), payload)
	if err != nil {
		fail(c, err)
		return
	}
	status := http.StatusOK
	if res.Status == cache.StatusQueued {
		status = http.StatusAccepted
	}
	c.JSON(status, res)
}

func (h *Handler) ListActions(c *gin.Context) {
	actions, err := h.Cache.PendingActions(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	if actions == nil {
		actions = []record.PendingAction{}
	}
	c.JSON(http.StatusOK, actions)
}

func (h *Handler) GetAction(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid action id"})
		return
	}
	a, found, err := h.Cache.PendingAction(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "action not found"})
		return
	}
	c.JSON(http.StatusOK, a)
}

func (h *Handler) ClearActions(c *gin.Context) {
	if err := h.Cache.ClearPendingActions(c.Request.Context()); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

// Sync drains the queue. Actions that failed to deliver are counted in the
// 200 response; offline is 503 and an aborted run is 500.
func (h *Handler) Sync(c *gin.Context) {
	res := h.Cache.SyncPendingActions(c.Request.Context())
	switch {
	case res.Success:
		c.JSON(http.StatusOK, res)
	case res.Error == cache.ReasonOffline:
		c.JSON(http.StatusServiceUnavailable, res)
	default:
		c.JSON(http.StatusInternalServerError, res)
	}
}

func (h *Handler) GetConnectivity(c *gin.Context) {
	c.JSON(http.StatusOK, connectivity.StateChange{IsOnline: h.Monitor.Online()})
}

// SetConnectivity applies a manual connectivity signal.
func (h *Handler) SetConnectivity(c *gin.Context) {
	var input struct {
		Online *bool `json:"online" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.Monitor.Signal(*input.Online)
	c.JSON(http.StatusOK, connectivity.StateChange{IsOnline: h.Monitor.Online()})
}
