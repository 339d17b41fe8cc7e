// Package trace tags outbound backend requests with a request ID and keeps
// simple call counters.
package trace

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"
)

// ContextKey type for context keys
type ContextKey string

const (
	// RequestIDKey is the context key for request ID
	RequestIDKey ContextKey = "request_id"

	// HeaderRequestID carries the request ID to the backend.
	HeaderRequestID = "X-Request-ID"
)

// Metrics tracks request metrics
type Metrics struct {
	TotalRequests       int64
	FailedRequests      int64
	AverageResponseTime time.Duration
}

// Transport sets HeaderRequestID on every request that does not carry one.
// The ID comes from the context when present and is generated otherwise.
type Transport struct {
	next     http.RoundTripper
	total    atomic.Int64
	failed   atomic.Int64
	totalDur atomic.Int64
}

// NewTransport wraps next (http.DefaultTransport when nil).
func NewTransport(next http.RoundTripper) *Transport {
	if next == nil {
		next = http.DefaultTransport
	}
	return &Transport{next: next}
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get(HeaderRequestID) == "" {
		id := GetRequestID(req.Context())
		if id == "" {
			id = GenerateRequestID()
		}
		req = req.Clone(req.Context())
		req.Header.Set(HeaderRequestID, id)
	}

	start := time.Now()
	resp, err := t.next.RoundTrip(req)
	t.totalDur.Add(int64(time.Since(start)))
	t.total.Add(1)
	if err != nil || resp.StatusCode >= 500 {
		t.failed.Add(1)
	}
	return resp, err
}

// Metrics returns the counters collected so far.
func (t *Transport) Metrics() Metrics {
	m := Metrics{
		TotalRequests:  t.total.Load(),
		FailedRequests: t.failed.Load(),
	}
	if m.TotalRequests > 0 {
		m.AverageResponseTime = time.Duration(t.totalDur.Load() / m.TotalRequests)
	}
	return m
}

// GenerateRequestID creates a unique request ID for tracing
func GenerateRequestID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback to timestamp if random fails
		return fmt.Sprintf("req_%d", time.Now().UnixNano())
	}
	return "req_" + hex.EncodeToString(bytes)
}

// WithRequestID makes outbound requests made with ctx carry id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RequestIDKey, id)
}

// GetRequestID extracts the request ID from context
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	return ""
}
