package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_NormalizesServerErrors(t *testing.T) {
	tests := []struct {
		name            string
		status          int
		header          map[string]string
		body            string
		expectedTrace   string
		expectedMessage string
		expectedPayload string
	}{
		{
			name:            "server error document",
			status:          http.StatusInternalServerError,
			body:            `{"traceId":"trace-1","statusCode":500,"timestamp":"2026-01-02T03:04:05Z","message":"database unavailable","data":{"retry":true}}`,
			expectedTrace:   "trace-1",
			expectedMessage: "database unavailable",
			expectedPayload: `{"retry":true}`,
		},
		{
			name:            "validation messages",
			status:          http.StatusBadRequest,
			body:            `{"statusCode":400,"message":["email must be an email","otp should not be empty"],"error":"Bad Request"}`,
			expectedMessage: "email must be an email; otp should not be empty",
		},
		{
			name:            "error field only",
			status:          http.StatusForbidden,
			body:            `{"error":"Forbidden resource","errors":[{"field":"role"}]}`,
			expectedMessage: "Forbidden resource",
			expectedPayload: `[{"field":"role"}]`,
		},
		{
			name:            "plain text body with trace header",
			status:          http.StatusBadGateway,
			header:          map[string]string{"X-Trace-Id": "trace-header"},
			body:            "<html>bad gateway</html>",
			expectedTrace:   "trace-header",
			expectedMessage: "Bad Gateway",
		},
		{
			name:            "unknown status without body",
			status:          599,
			expectedMessage: DefaultErrorMessage,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				for k, v := range tt.header {
					w.Header().Set(k, v)
				}
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := newTestClient(t, srv, nil)
			err := c.Do(context.Background(), http.MethodGet, "/fail", nil, nil)
			require.Error(t, err)

			apiErr, ok := AsAPIError(err)
			require.True(t, ok)
			assert.Equal(t, tt.status, apiErr.Status)
			assert.Equal(t, tt.expectedTrace, apiErr.TraceID)
			assert.Equal(t, tt.expectedMessage, apiErr.Message)
			assert.False(t, apiErr.Timestamp.IsZero())
			if tt.expectedPayload != "" {
				assert.JSONEq(t, tt.expectedPayload, string(apiErr.Payload))
			} else {
				assert.Empty(t, apiErr.Payload)
			}
		})
	}
}

func TestClient_ServerTimestampIsKept(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"jwt expired","timestamp":"2026-01-02T03:04:05Z"}`))
	}))
	defer srv.Close()

	err := newTestClient(t, srv, nil).Do(context.Background(), http.MethodGet, "/users/me/profile", nil, nil)
	apiErr, ok := AsAPIError(err)
	require.True(t, ok)
	require.True(t, apiErr.Unauthorized())
	require.False(t, apiErr.Temporary())
	require.Equal(t, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), apiErr.Timestamp)
}

func TestClient_NetworkErrorIsNormalized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	c := newTestClient(t, srv, nil)
	srv.Close()

	err := c.Do(context.Background(), http.MethodPost, "/auth/refreshToken", nil, nil)
	apiErr, ok := AsAPIError(err)
	require.True(t, ok)
	assert.Equal(t, 0, apiErr.Status)
	assert.Empty(t, apiErr.TraceID)
	assert.NotEmpty(t, apiErr.Message)
	assert.True(t, apiErr.Temporary())
}

func TestClient_MalformedBodyIsNormalized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Request-Id", "req-1")
		_, _ = w.Write([]byte(`{"accessToken":`))
	}))
	defer srv.Close()

	var out struct {
		AccessToken string `json:"accessToken"`
	}
	err := newTestClient(t, srv, nil).Do(context.Background(), http.MethodPost, "/auth/refreshToken", nil, &out)
	apiErr, ok := AsAPIError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusOK, apiErr.Status)
	assert.Equal(t, "req-1", apiErr.TraceID)
	assert.Contains(t, apiErr.Message, "malformed response body")
}

func TestNormalize(t *testing.T) {
	require.Nil(t, Normalize(nil))

	cause := errors.New("dial tcp: connection refused")
	apiErr := Normalize(cause)
	require.Equal(t, "dial tcp: connection refused", apiErr.Message)
	require.ErrorIs(t, apiErr, cause)
	require.Same(t, apiErr, Normalize(apiErr))

	wrapped := Normalize(errors.New(""))
	require.Equal(t, DefaultErrorMessage, wrapped.Message)
}

func TestAPIError_Error(t *testing.T) {
	err := &APIError{Status: 500, Message: "boom", TraceID: "t-1"}
	require.Equal(t, "api error 500: boom (trace t-1)", err.Error())

	err = &APIError{Message: "offline"}
	require.Equal(t, "api error: offline", err.Error())
}
