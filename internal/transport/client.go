// Package transport is the single point of contact with the analytics backend.
//
// It issues JSON and multipart requests against a configurable origin and
// normalises every failure into *Error. There is no retry, caching or queuing:
// each call is independent and happens at most once.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"fluxo/internal/log"
	"fluxo/internal/middleware/trace"
)

// DefaultBaseURL is used when no backend origin is configured.
const DefaultBaseURL = "http://localhost:8000"

// maxBodyBytes caps how much of a response is read.
const maxBodyBytes = 32 << 20

// Client talks to the backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	tracer     *trace.Transport
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout bounds every request. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithLogger logs outbound requests through logger.
func WithLogger(logger *log.Logger) Option {
	return func(c *Client) {
		c.httpClient.Transport = log.NewRoundTripper(c.httpClient.Transport, logger)
	}
}

// New creates a client for baseURL (DefaultBaseURL when empty).
func New(baseURL string, opts ...Option) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:    baseURL,
		httpClient: newHTTPClientWithPooling(),
	}
	for _, opt := range opts {
		opt(c)
	}

	// request IDs are set outermost so the logging transport sees them
	hc := *c.httpClient
	c.tracer = trace.NewTransport(hc.Transport)
	hc.Transport = c.tracer
	c.httpClient = &hc
	return c
}

// Metrics returns call counters for this client.
func (c *Client) Metrics() trace.Metrics {
	return c.tracer.Metrics()
}

// BaseURL returns the backend origin.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// newHTTPClientWithPooling returns a client with keep-alive pooling and
// connection-level timeouts. The overall deadline comes from the context.
func newHTTPClientWithPooling() *http.Client {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
	}

	return &http.Client{Transport: transport}
}

// Get issues a GET with optional query parameters.
func (c *Client) Get(ctx context.Context, path string, params url.Values) (json.RawMessage, error) {
	target := path
	if len(params) > 0 {
		target += "?" + params.Encode()
	}
	return c.do(ctx, http.MethodGet, target, nil, "")
}

// Post issues a POST with a JSON body. A nil body sends no payload.
func (c *Client) Post(ctx context.Context, path string, body any) (json.RawMessage, error) {
	var (
		reader      io.Reader
		contentType string
	)
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, Validation(fmt.Errorf("encode request body: %w", err))
		}
		reader = bytes.NewReader(data)
		contentType = "application/json"
	}
	return c.do(ctx, http.MethodPost, path, reader, contentType)
}

// PostForm issues a multipart POST. The content type, boundary included,
// comes from the form writer.
func (c *Client) PostForm(ctx context.Context, path string, form *Form) (json.RawMessage, error) {
	if form == nil {
		return nil, Validation(errors.New("missing multipart form"))
	}
	body, contentType, err := form.close()
	if err != nil {
		return nil, Validation(err)
	}
	return c.do(ctx, http.MethodPost, path, body, contentType)
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string) (json.RawMessage, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, method, c.url(path), body)
	if err != nil {
		return nil, Validation(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &Error{Kind: KindNetwork, Message: fmt.Sprintf("%s %s: %v", method, path, unwrapURLError(err)), Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &Error{Kind: KindNetwork, Status: resp.StatusCode, Message: fmt.Sprintf("read response: %v", err), Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, httpError(resp, data)
	}

	data = bytes.TrimSpace(data)
	if len(data) == 0 || !json.Valid(data) {
		return nil, &Error{
			Kind:    KindDecode,
			Status:  resp.StatusCode,
			Message: fmt.Sprintf("%s %s: response is not valid JSON", method, path),
		}
	}
	return json.RawMessage(data), nil
}

func (c *Client) url(path string) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.baseURL + path
}

func unwrapURLError(err error) error {
	var ue *url.Error
	if errors.As(err, &ue) {
		return ue.Err
	}
	return err
}
