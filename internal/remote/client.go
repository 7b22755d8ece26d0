// Package remote talks to the batch sync endpoint.
//
// One sync attempt is exactly one POST carrying the whole snapshot:
//
//	{"submissions": [{"id": ..., "data": {...}, "createdAt": ..., "status": ...}]}
//
// Any 2xx status accepts the batch; the response body is not used to count
// anything. Any other status, or no response at all, rejects the whole batch.
//
// The endpoint is expected to deduplicate by submission id, which makes
// replaying an accepted-but-locally-unmoved batch safe.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/roach88/fieldsync/internal/record"
)

// DefaultEndpoint matches the reference development server.
const DefaultEndpoint = "http://localhost:5000/api/sync"

// maxErrorBody caps how much of a rejection body is kept for diagnostics.
const maxErrorBody = 512

// Pusher delivers one batch to the remote authority.
//
// The remote must deduplicate by submission id: a batch accepted remotely
// but not recorded locally is pushed again by the next sync.
type Pusher interface {
	PushBatch(ctx context.Context, subs []record.Submission) error
}

// HTTPClient is the JSON-over-HTTP Pusher.
//
// Thread-safety: safe for concurrent use.
type HTTPClient struct {
	endpoint string
	http     *http.Client
	logger   *zap.Logger
}

// Option configures an HTTPClient.
type Option func(*HTTPClient)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(c *http.Client) Option {
	return func(h *HTTPClient) {
		h.http = c
	}
}

// WithLogger sets the client logger.
func WithLogger(l *zap.Logger) Option {
	return func(h *HTTPClient) {
		if l != nil {
			h.logger = l
		}
	}
}

// NewHTTPClient creates a client posting to endpoint.
// No client-level timeout is set; callers bound each call with ctx.
func NewHTTPClient(endpoint string, opts ...Option) *HTTPClient {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	h := &HTTPClient{
		endpoint: endpoint,
		http:     &http.Client{},
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Endpoint returns the batch URL.
func (h *HTTPClient) Endpoint() string {
	return h.endpoint
}

// PushBatch posts subs as one batch.
//
// Returns *TransportError when no response arrives (including ctx expiry)
// and *ServerRejectedError for a non-2xx status.
func (h *HTTPClient) PushBatch(ctx context.Context, subs []record.Submission) error {
	body, err := json.Marshal(record.NewBatch(subs))
	if err != nil {
		return fmt.Errorf("push batch: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("push batch: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	started := time.Now()
	resp, err := h.http.Do(req)
	if err != nil {
		return &TransportError{Endpoint: h.endpoint, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &ServerRejectedError{
			Endpoint:   h.endpoint,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(snippet)),
		}
	}

	// Drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, resp.Body)

	h.logger.Debug("batch accepted",
		zap.String("endpoint", h.endpoint),
		zap.Int("count", len(subs)),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(started)),
	)
	return nil
}

// Ping reports whether the endpoint host answers at all. Any HTTP response,
// whatever its status, counts as reachable.
func (h *HTTPClient) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, h.endpoint, nil)
	if err != nil {
		return fmt.Errorf("ping: build request: %w", err)
	}
	resp, err := h.http.Do(req)
	if err != nil {
		return &TransportError{Endpoint: h.endpoint, Err: err}
	}
	resp.Body.Close()
	return nil
}
