package client

import (
	"net/http"
	"strings"

	"github.com/gregjones/httpcache"
	"github.com/gregjones/httpcache/diskcache"
)

// cachingTransport routes GET requests for the configured path prefixes
// through an HTTP cache and everything else straight to the base transport.
// Only reference data which is identical for every user should be listed,
// the cache is keyed on URL alone.
type cachingTransport struct {
	cached   http.RoundTripper
	direct   http.RoundTripper
	prefixes []string
}

// newCachingTransport creates a caching transport with disk-based storage
// when cacheDir is set, otherwise the cache is kept in memory.
func newCachingTransport(base http.RoundTripper, cacheDir string, prefixes []string) *cachingTransport {
	var cache httpcache.Cache
	if cacheDir == "" {
		cache = httpcache.NewMemoryCache()
	} else {
		// Use disk-based cache for persistence across restarts
		cache = diskcache.New(cacheDir)
	}

	transport := httpcache.NewTransport(cache)
	transport.Transport = base
	transport.MarkCachedResponses = true

	return &cachingTransport{
		cached:   transport,
		direct:   base,
		prefixes: prefixes,
	}
}

func (t *cachingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Method == http.MethodGet && t.cacheable(req.URL.Path) {
		return t.cached.RoundTrip(req)
	}
	return t.direct.RoundTrip(req)
}

func (t *cachingTransport) cacheable(path string) bool {
	for _, prefix := range t.prefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}
