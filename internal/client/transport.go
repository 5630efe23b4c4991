package client

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

// RequestIDHeader is set on every outgoing request that does not carry one.
const RequestIDHeader = "X-Request-Id"

type credentialMode int

const (
	credentialHeld credentialMode = iota
	credentialExplicit
	credentialNone
)

type credentialOverride struct {
	mode  credentialMode
	token string
}

type contextKey string

const credentialContextKey contextKey = "credential_override"

// RequestOption adjusts how a single request is authenticated.
type RequestOption func(*credentialOverride)

// WithBearer sends token instead of the currently held credential.
func WithBearer(token string) RequestOption {
	return func(o *credentialOverride) {
		o.mode = credentialExplicit
		o.token = token
	}
}

// WithoutCredential sends the request without an Authorization header.
func WithoutCredential() RequestOption {
	return func(o *credentialOverride) {
		o.mode = credentialNone
	}
}

// ContextWithOptions attaches request options to ctx so they apply to any
// request made through the bearer transport with that context.
func ContextWithOptions(ctx context.Context, opts ...RequestOption) context.Context {
	if len(opts) == 0 {
		return ctx
	}

	o := credentialOverride{}
	for _, opt := range opts {
		opt(&o)
	}
	return context.WithValue(ctx, credentialContextKey, o)
}

func overrideFromContext(ctx context.Context) credentialOverride {
	o, _ := ctx.Value(credentialContextKey).(credentialOverride)
	return o
}

// BearerTransport attaches the current credential to each outgoing request.
// The token source is consulted immediately before every send so a refresh
// that completed a moment ago is used by the very next call.
type BearerTransport struct {
	Base      http.RoundTripper
	Source    oauth2.TokenSource
	UserAgent string
}

// RoundTrip implements http.RoundTripper.
func (t *BearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// RoundTrippers must not modify the caller's request
	out := req.Clone(req.Context())

	if out.Header.Get(RequestIDHeader) == "" {
		out.Header.Set(RequestIDHeader, uuid.Must(uuid.NewV7()).String())
	}
	if t.UserAgent != "" && out.Header.Get("User-Agent") == "" {
		out.Header.Set("User-Agent", t.UserAgent)
	}

	override := overrideFromContext(req.Context())
	switch override.mode {
	case credentialExplicit:
		out.Header.Set("Authorization", "Bearer "+override.token)
	case credentialNone:
		out.Header.Del("Authorization")
	default:
		t.setHeldCredential(out)
	}

	return t.base().RoundTrip(out)
}

func (t *BearerTransport) setHeldCredential(req *http.Request) {
	if t.Source == nil {
		return
	}

	tok, err := t.Source.Token()
	if err != nil || tok == nil || tok.AccessToken == "" {
		// no credential held, send the request anonymously
		log.Debug().Str("path", req.URL.Path).Msg("no credential held for request")
		return
	}

	tok.SetAuthHeader(req)
}

func (t *BearerTransport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}
