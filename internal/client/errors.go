package client

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// DefaultErrorMessage is used when neither the server nor the transport
// supplied anything more useful.
const DefaultErrorMessage = "Something went wrong"

// APIError is the single shape every failed backend call is reported in,
// whether the request never left the process, the server answered with a
// non-2xx status or the response body could not be decoded.
type APIError struct {
	// TraceID identifies the request server side, empty when none was supplied.
	TraceID string `json:"traceId"`
	// Status is the HTTP status code, 0 when no response was received.
	Status int `json:"status"`
	// Timestamp is when the failure was observed (or reported by the server).
	Timestamp time.Time `json:"timestamp"`
	// Message is human readable and never empty.
	Message string `json:"message"`
	// Payload carries any structured detail the server attached.
	Payload json.RawMessage `json:"payload,omitempty"`

	cause error
}

func (e *APIError) Error() string {
	var b strings.Builder
	if e.Status != 0 {
		fmt.Fprintf(&b, "api error %d: ", e.Status)
	} else {
		b.WriteString("api error: ")
	}
	b.WriteString(e.Message)
	if e.TraceID != "" {
		fmt.Fprintf(&b, " (trace %s)", e.TraceID)
	}
	return b.String()
}

func (e *APIError) Unwrap() error {
	return e.cause
}

// Unauthorized reports whether the server rejected the credential.
func (e *APIError) Unauthorized() bool {
	return e.Status == http.StatusUnauthorized
}

// Temporary reports whether retrying the same request could succeed.
func (e *APIError) Temporary() bool {
	return e.Status == 0 || e.Status == http.StatusTooManyRequests || e.Status >= http.StatusInternalServerError
}

// AsAPIError extracts an APIError from err.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// Normalize converts any error into an APIError, returning nil for nil.
func Normalize(err error) *APIError {
	if err == nil {
		return nil
	}
	if apiErr, ok := AsAPIError(err); ok {
		return apiErr
	}
	return transportError(err, 0, "", time.Now())
}

// transportError wraps a failure that produced no usable server error body.
func transportError(err error, status int, traceID string, now time.Time) *APIError {
	msg := DefaultErrorMessage
	if err != nil && err.Error() != "" {
		msg = err.Error()
	}

	return &APIError{
		TraceID:   traceID,
		Status:    status,
		Timestamp: now.UTC(),
		Message:   msg,
		cause:     err,
	}
}

// errorBody is the error document returned by the backend. Fields are all
// optional, message may be a string or a list of validation messages.
type errorBody struct {
	TraceID    string          `json:"traceId"`
	StatusCode int             `json:"statusCode"`
	Timestamp  string          `json:"timestamp"`
	Message    json.RawMessage `json:"message"`
	Error      string          `json:"error"`
	Data       json.RawMessage `json:"data"`
	Errors     json.RawMessage `json:"errors"`
}

// responseError builds an APIError from a non-2xx response.
func responseError(resp *http.Response, body []byte, now time.Time) *APIError {
	apiErr := &APIError{
		TraceID:   traceIDFromHeader(resp.Header),
		Status:    resp.StatusCode,
		Timestamp: now.UTC(),
	}

	var eb errorBody
	if len(bytes.TrimSpace(body)) > 0 && json.Unmarshal(body, &eb) == nil {
		if eb.TraceID != "" {
			apiErr.TraceID = eb.TraceID
		}
		if ts, err := time.Parse(time.RFC3339, eb.Timestamp); err == nil {
			apiErr.Timestamp = ts.UTC()
		}
		apiErr.Message = decodeMessage(eb.Message)
		if apiErr.Message == "" {
			apiErr.Message = eb.Error
		}
		switch {
		case len(eb.Data) > 0 && string(eb.Data) != "null":
			apiErr.Payload = eb.Data
		case len(eb.Errors) > 0 && string(eb.Errors) != "null":
			apiErr.Payload = eb.Errors
		}
	}

	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	if apiErr.Message == "" {
		apiErr.Message = DefaultErrorMessage
	}

	return apiErr
}

func decodeMessage(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return strings.Join(list, "; ")
	}

	return ""
}

func traceIDFromHeader(h http.Header) string {
	for _, name := range []string{"X-Trace-Id", "X-Request-Id"} {
		if v := h.Get(name); v != "" {
			return v
		}
	}
	return ""
}
