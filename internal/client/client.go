package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"path"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/oauth2"
)

// maxResponseBytes bounds how much of a response body is read.
const maxResponseBytes = 4 << 20

// envelopeKeys are the top level keys of the backend's optional success
// envelope, {"success": true, "data": {...}}.
var envelopeKeys = map[string]bool{
	"data":       true,
	"success":    true,
	"message":    true,
	"statusCode": true,
	"traceId":    true,
	"timestamp":  true,
}

// Config holds common client configuration
type Config struct {
	ServerURL string
	Timeout   time.Duration
	UserAgent string

	// CachePaths lists path prefixes of public reference data which may be
	// served from an HTTP cache. Empty disables caching.
	CachePaths []string
	// CacheDir selects a disk cache, in-memory when empty.
	CacheDir string

	Tracing bool
}

// DefaultConfig returns a default client configuration
func DefaultConfig() Config {
	return Config{
		ServerURL: "https://localhost:8080",
		Timeout:   30 * time.Second,
		UserAgent: "hoteladmin/dev",
	}
}

// Client is the shared HTTP client every backend call goes through.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	transport  http.RoundTripper
}

// New creates a client which attaches the credential held by tokens to
// every request. The cookie jar carries the server managed refresh cookie.
func New(config Config, tokens oauth2.TokenSource) (*Client, error) {
	if config.ServerURL == "" {
		return nil, errors.New("server URL is required")
	}

	baseURL, err := url.Parse(config.ServerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse server URL: %w", err)
	}
	if baseURL.Scheme != "http" && baseURL.Scheme != "https" {
		return nil, fmt.Errorf("unsupported server URL scheme %q", baseURL.Scheme)
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	var base http.RoundTripper = http.DefaultTransport.(*http.Transport).Clone()
	if config.Tracing {
		base = otelhttp.NewTransport(base)
	}
	if len(config.CachePaths) > 0 {
		prefixes := make([]string, 0, len(config.CachePaths))
		for _, p := range config.CachePaths {
			prefixes = append(prefixes, path.Join("/", baseURL.Path, p))
		}
		base = newCachingTransport(base, config.CacheDir, prefixes)
	}

	transport := &BearerTransport{
		Base:      base,
		Source:    tokens,
		UserAgent: config.UserAgent,
	}

	log.Debug().
		Str("server", baseURL.String()).
		Bool("tracing", config.Tracing).
		Strs("cache_paths", config.CachePaths).
		Msg("initialized api client")

	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   config.Timeout,
			Jar:       jar,
		},
		transport: transport,
	}, nil
}

// BaseURL returns the backend base URL.
func (c *Client) BaseURL() *url.URL {
	u := *c.baseURL
	return &u
}

// HTTPClient returns the underlying client for collaborators which build
// their own requests.
func (c *Client) HTTPClient() *http.Client {
	return c.httpClient
}

// Transport returns the credential attaching round tripper, used by the
// dashboard reverse proxy.
func (c *Client) Transport() http.RoundTripper {
	return c.transport
}

// Do sends a JSON request and decodes a JSON response into out. in and out
// may be nil. Every failure is returned as an *APIError.
func (c *Client) Do(ctx context.Context, method, p string, in, out any, opts ...RequestOption) error {
	ctx = ContextWithOptions(ctx, opts...)

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return transportError(fmt.Errorf("failed to encode request: %w", err), 0, "", time.Now())
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.JoinPath(p).String(), body)
	if err != nil {
		return transportError(fmt.Errorf("failed to create request: %w", err), 0, "", time.Now())
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Debug().Err(err).Str("method", method).Str("path", p).Msg("request failed")
		return transportError(err, 0, "", time.Now())
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return transportError(fmt.Errorf("failed to read response: %w", err), resp.StatusCode, traceIDFromHeader(resp.Header), time.Now())
	}

	log.Debug().
		Str("method", method).
		Str("path", p).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(started)).
		Msg("api call")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return responseError(resp, data, time.Now())
	}

	if out == nil {
		return nil
	}

	if err := decodeResult(data, out); err != nil {
		return transportError(fmt.Errorf("malformed response body: %w", err), resp.StatusCode, traceIDFromHeader(resp.Header), time.Now())
	}

	return nil
}

// decodeResult decodes data into out, unwrapping the success envelope when
// the body is one.
func decodeResult(data []byte, out any) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return errors.New("empty body")
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err == nil {
		if raw, ok := fields["data"]; ok && isEnvelope(fields) {
			return json.Unmarshal(raw, out)
		}
	}

	return json.Unmarshal(data, out)
}

func isEnvelope(fields map[string]json.RawMessage) bool {
	for k := range fields {
		if !envelopeKeys[k] {
			return false
		}
	}
	return true
}
