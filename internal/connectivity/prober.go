package connectivity

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

const (
	defaultProbeInterval = 15 * time.Second
	defaultProbeTimeout  = 5 * time.Second
)

// HTTPProber derives connectivity from a HEAD request to a health URL.
// Any response below 500 means the network path works; 5xx or a transport
// error means offline.
type HTTPProber struct {
	url      string
	client   *http.Client
	interval time.Duration
	logger   *slog.Logger
}

// ProberOption configures an HTTPProber.
type ProberOption func(*HTTPProber)

// WithHTTPClient sets the HTTP client used for probes.
func WithHTTPClient(c *http.Client) ProberOption {
	return func(p *HTTPProber) {
		p.client = c
	}
}

// WithInterval sets the time between probes in Run.
func WithInterval(d time.Duration) ProberOption {
	return func(p *HTTPProber) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithProberLogger sets the logger.
func WithProberLogger(logger *slog.Logger) ProberOption {
	return func(p *HTTPProber) {
		p.logger = logger
	}
}

// NewHTTPProber creates a prober for url.
func NewHTTPProber(url string, opts ...ProberOption) *HTTPProber {
	p := &HTTPProber{
		url:      url,
		client:   &http.Client{Timeout: defaultProbeTimeout},
		interval: defaultProbeInterval,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Probe performs one check.
func (p *HTTPProber) Probe(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.url, nil)
	if err != nil {
		p.logger.Warn("invalid probe request", "url", p.url, "error", err)
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		p.logger.Debug("probe failed", "url", p.url, "error", err)
		return false
	}
	resp.Body.Close()
	return resp.StatusCode < http.StatusInternalServerError
}

// Run probes immediately and then on every interval, sending each result
// to out. It returns when ctx is done.
func (p *HTTPProber) Run(ctx context.Context, out chan<- bool) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		online := p.Probe(ctx)
		select {
		case out <- online:
		case <-ctx.Done():
			return
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}
