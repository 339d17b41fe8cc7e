package log

import (
	"log/slog"
	"net/http"
	"time"
)

// RoundTripper logs every outbound request made through next.
// Successful calls are logged at debug level, 4xx at warn and 5xx or
// transport failures at error.
type RoundTripper struct {
	next   http.RoundTripper
	logger *Logger
}

// NewRoundTripper wraps next (http.DefaultTransport when nil).
func NewRoundTripper(next http.RoundTripper, logger *Logger) *RoundTripper {
	if next == nil {
		next = http.DefaultTransport
	}
	if logger == nil {
		logger = Default()
	}
	return &RoundTripper{next: next, logger: logger.WithComponent(ComponentTransport)}
}

func (rt *RoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := rt.next.RoundTrip(req)
	elapsed := time.Since(start).Milliseconds()

	fields := NewFields().WithHTTPRequest(req.Method, req.URL.Path, req.URL.RawQuery)
	if id := req.Header.Get("X-Request-ID"); id != "" {
		fields[FieldRequestID] = id
	}
	if err != nil {
		rt.logger.ErrorContext(req.Context(), "Backend request failed", fields.WithError(err).ToSlice()...)
		return nil, err
	}

	level := slog.LevelDebug
	switch {
	case resp.StatusCode >= 500:
		level = slog.LevelError
	case resp.StatusCode >= 400:
		level = slog.LevelWarn
	}
	fields = fields.WithHTTPResponse(resp.StatusCode, elapsed, resp.StatusCode < 400)
	rt.logger.Log(req.Context(), level, "Backend request completed", fields.ToSlice()...)
	return resp, nil
}
