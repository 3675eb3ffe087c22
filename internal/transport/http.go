// Package transport delivers pending actions to the server over HTTP.
package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/roach88/civicsync/internal/record"
)

// DefaultTimeout bounds a single delivery.
const DefaultTimeout = 10 * time.Second

// maxErrorBody caps how much of an error response is kept.
const maxErrorBody = 4 << 10

// Header names sent with every delivery.
const (
	HeaderIdempotencyKey  = "Idempotency-Key"
	HeaderActionID        = "X-Action-Id"
	HeaderActionTimestamp = "X-Action-Timestamp"
	HeaderPayloadDigest   = "X-Payload-Digest"
)

// StatusError is returned when the server answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("server returned %d", e.StatusCode)
	}
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Body)
}

// HTTPDeliverer POSTs each action's payload as canonical JSON to a fixed
// endpoint. The idempotency key lets the server drop duplicate replays.
type HTTPDeliverer struct {
	endpoint   string
	token      string
	userAgent  string
	httpClient *http.Client
}

// Option configures an HTTPDeliverer.
type Option func(*HTTPDeliverer)

// WithTimeout sets the per-delivery timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(d *HTTPDeliverer) { d.httpClient.Timeout = timeout }
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(d *HTTPDeliverer) { d.httpClient = client }
}

// WithToken sends "Authorization: Bearer <token>".
func WithToken(token string) Option {
	return func(d *HTTPDeliverer) { d.token = token }
}

// NewHTTPDeliverer creates a deliverer for endpoint.
func NewHTTPDeliverer(endpoint string, opts ...Option) *HTTPDeliverer {
	d := &HTTPDeliverer{
		endpoint:  strings.TrimRight(endpoint, "/"),
		userAgent: "civicsync",
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Deliver sends one action. Any 2xx response confirms it.
func (d *HTTPDeliverer) Deliver(ctx context.Context, action record.PendingAction) error {
	payload := action.Payload
	if payload == nil {
		payload = record.Record{}
	}
	body, err := record.MarshalCanonical(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}
	digest, err := record.Fingerprint(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", d.userAgent)
	req.Header.Set(HeaderPayloadDigest, digest)
	if action.ID > 0 {
		req.Header.Set(HeaderActionID, strconv.FormatInt(action.ID, 10))
	}
	if !action.Timestamp.IsZero() {
		req.Header.Set(HeaderActionTimestamp, action.Timestamp.UTC().Format(time.RFC3339Nano))
	}
	if action.IdempotencyKey != "" {
		req.Header.Set(HeaderIdempotencyKey, action.IdempotencyKey)
	}
	if d.token != "" {
		req.Header.Set("Authorization", "Bearer "+d.token)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
}
