package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind classifies a failed call.
type Kind string

const (
	// KindNetwork means no response was received.
	KindNetwork Kind = "network_error"
	// KindHTTP means the backend answered with a non-2xx status.
	KindHTTP Kind = "http_error"
	// KindDecode means a 2xx response did not carry JSON.
	KindDecode Kind = "decode_error"
	// KindBackend means a 2xx body reported that the operation failed.
	KindBackend Kind = "backend_error"
	// KindValidation means the call was refused before reaching the network.
	KindValidation Kind = "validation_error"
)

// Error is the single error type surfaced by the client. Status is zero
// when no HTTP response was received.
type Error struct {
	Kind    Kind
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Validation builds a KindValidation error wrapping err.
func Validation(err error) *Error {
	return &Error{Kind: KindValidation, Message: err.Error(), Err: err}
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Status
	}
	return 0
}

// KindOf returns the kind carried by err, or "" for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// errorBody covers the shapes the backend uses for error payloads.
type errorBody struct {
	Detail  json.RawMessage `json:"detail"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
}

// httpError builds the error for a non-2xx response from its status and body.
func httpError(resp *http.Response, body []byte) *Error {
	msg := serverMessage(body)
	if msg == "" {
		msg = fmt.Sprintf("HTTP error %s", statusLine(resp))
	}
	return &Error{Kind: KindHTTP, Status: resp.StatusCode, Message: msg}
}

func statusLine(resp *http.Response) string {
	if resp.Status != "" {
		return resp.Status
	}
	return fmt.Sprintf("%d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
}

// serverMessage extracts a human readable message from a structured error
// body. It returns "" when the body is not JSON or carries nothing usable.
func serverMessage(body []byte) string {
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err != nil {
		return ""
	}
	if msg := detailMessage(eb.Detail); msg != "" {
		return msg
	}
	if m := strings.TrimSpace(eb.Message); m != "" {
		return m
	}
	return strings.TrimSpace(eb.Error)
}

// detailMessage handles both `"detail": "text"` and the validation form
// `"detail": [{"loc": [...], "msg": "text"}, ...]`.
func detailMessage(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var items []struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(raw, &items); err == nil {
		msgs := make([]string, 0, len(items))
		for _, it := range items {
			if m := strings.TrimSpace(it.Msg); m != "" {
				msgs = append(msgs, m)
			}
		}
		return strings.Join(msgs, "; ")
	}
	return ""
}
