package dashboard

import (
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"github.com/rs/zerolog"
	"github.com/wolfeidau/hoteladmin/internal/client"
	"github.com/wolfeidau/hoteladmin/internal/guard"
)

// backendPrefix is stripped from proxied paths, relative to /api.
const backendPrefix = "/backend"

// newBackendProxy forwards /api/backend/* to the REST backend. The browser's
// cookies and authorization never reach the backend, the transport attaches
// the held credential instead.
func newBackendProxy(target *url.URL, transport http.RoundTripper) http.Handler {
	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.Out.URL.Path = strings.TrimPrefix(pr.In.URL.Path, "/api"+backendPrefix)
			pr.Out.URL.RawPath = ""
			pr.Out.Header.Del("Cookie")
			pr.Out.Header.Del("Authorization")
			pr.SetURL(target)
			pr.SetXForwarded()
		},
		Transport: transport,
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			zerolog.Ctx(r.Context()).Warn().Err(err).Msg("backend proxy failed")
			guard.WriteAPIError(w, client.Normalize(err))
		},
	}
}
