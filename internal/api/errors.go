package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"net/http"
	"slices"
	"strings"
	"unicode/utf8"
)

// HTTPError is returned for non-2xx upstream responses.
type HTTPError struct {
	Status  int
	Message string
	Method  string
	Path    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("api: %s %s: %d %s", e.Method, e.Path, e.Status, e.Message)
}

// TransportError wraps network level failures (DNS, refused connections, timeouts).
type TransportError struct {
	Method string
	Path   string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("api: %s %s: transport: %v", e.Method, e.Path, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ShapeError reports a payload that does not match the expected schema.
type ShapeError struct {
	Path string
	Err  error
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("api: %s: unexpected response shape: %v", e.Path, e.Err)
}

func (e *ShapeError) Unwrap() error { return e.Err }

// IsUnauthorized reports whether err carries an upstream 401.
func IsUnauthorized(err error) bool {
	return StatusOf(err) == http.StatusUnauthorized
}

// StatusOf returns the upstream HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Status
	}
	return 0
}

// IsTransport reports whether err is a network level failure.
func IsTransport(err error) bool {
	var tErr *TransportError
	return errors.As(err, &tErr)
}

// IsShape reports whether err is a schema or decoding failure.
func IsShape(err error) bool {
	var sErr *ShapeError
	return errors.As(err, &sErr)
}

// UserMessage renders err as text suitable for a page banner.
func UserMessage(err error) string {
	var httpErr *HTTPError
	switch {
	case err == nil:
		return ""
	case IsTransport(err):
		return "We could not reach the server. Check your connection and try again."
	case IsShape(err):
		return "The server returned data we could not read."
	case errors.As(err, &httpErr):
		if httpErr.Message != "" && httpErr.Status < http.StatusInternalServerError {
			return httpErr.Message
		}
		return "Something went wrong on our side. Please try again."
	default:
		return "Something went wrong. Please try again."
	}
}

const maxMessageLen = 200

// extractMessage pulls a human readable message out of an error body. Field
// errors are read in key order so the same body always yields the same line.
func extractMessage(status int, body []byte) string {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return http.StatusText(status)
	}
	var doc map[string]any
	if err := json.Unmarshal(body, &doc); err == nil {
		for _, key := range []string{"detail", "message", "error", "non_field_errors"} {
			if msg := messageValue(doc[key]); msg != "" {
				return truncate(msg, maxMessageLen)
			}
		}
		for _, key := range slices.Sorted(maps.Keys(doc)) {
			if msg := messageValue(doc[key]); msg != "" {
				return truncate(msg, maxMessageLen)
			}
		}
		return http.StatusText(status)
	}
	return truncate(trimmed, maxMessageLen)
}

// truncate shortens s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func messageValue(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case []any:
		for _, item := range val {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s)
			}
		}
	}
	return ""
}
