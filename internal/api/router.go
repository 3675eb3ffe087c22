package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// NewRouter registers every route on a fresh gin engine.
func NewRouter(h *Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), h.observe(), cors())

	r.GET("/healthz", h.Health)
	r.GET("/stats", h.Stats)

	partitions := r.Group("/partitions")
	{
		partitions.GET("/:partition", h.ListRecords)
		partitions.PUT("/:partition", h.PutRecords)
		partitions.GET("/:partition/:key", h.GetRecord)
		partitions.DELETE("/:partition/:key", h.DeleteRecord)
	}

	r.POST("/cache/clear", h.ClearCache)

	r.POST("/actions", h.SubmitAction)
	r.GET("/actions", h.ListActions)
	r.GET("/actions/:id", h.GetAction)
	r.DELETE("/actions", h.ClearActions)
	r.POST("/sync", h.Sync)

	r.GET("/connectivity", h.GetConnectivity)
	r.POST("/connectivity", h.SetConnectivity)
	r.GET("/events", h.Events)

	if h.Metrics != nil {
		r.GET("/metrics", gin.WrapH(h.Metrics.Handler()))
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
	})
	return r
}

func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// observe records request counts and latency by route template.
func (h *Handler) observe() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		if h.Metrics != nil {
			h.Metrics.RecordHTTPRequest(c.Request.Method, path, status, time.Since(start))
		}
		h.logger().Debug("http request",
			"method", c.Request.Method,
			"path", path,
			"status", status,
		)
	}
}
