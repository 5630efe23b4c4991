// Package guard protects HTTP routes with the session state.
package guard

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/hoteladmin/internal/client"
	"github.com/wolfeidau/hoteladmin/internal/models"
	"github.com/wolfeidau/hoteladmin/internal/session"
)

type contextKey string

const profileContextKey contextKey = "profile"

// ErrorCodeUnauthenticated is appended to the login redirect.
const ErrorCodeUnauthenticated = "unauthenticated"

// Source is the read side of the session manager.
type Source interface {
	State() session.State
	Profile() *models.UserProfile
}

// RequireSession holds requests until the session has settled, sends anonymous
// requests to loginURL with an error_code query parameter and passes
// authenticated ones on with the profile in the request context.
//
// Clients asking for JSON get a 401 instead of the redirect.
func RequireSession(src Source, loginURL string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch src.State() {
			case session.Initializing:
				w.Header().Set("Retry-After", "1")
				WriteError(w, r, http.StatusServiceUnavailable, "session is initializing")
				return

			case session.Authenticated:
				ctx := r.Context()
				if profile := src.Profile(); profile != nil {
					ctx = context.WithValue(ctx, profileContextKey, profile)
				}
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			log.Debug().Str("path", r.URL.Path).Msg("No session, redirecting to login")

			if wantsJSON(r) {
				WriteError(w, r, http.StatusUnauthorized, "authentication required")
				return
			}

			http.Redirect(w, r, loginURL+"?error_code="+ErrorCodeUnauthenticated, http.StatusFound)
		})
	}
}

// RequireRole rejects requests whose profile holds none of roles. It must be
// mounted behind RequireSession.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			profile, ok := ProfileFromContext(r.Context())
			if !ok {
				WriteError(w, r, http.StatusForbidden, "profile not loaded")
				return
			}

			for _, role := range roles {
				if profile.HasRole(role) {
					next.ServeHTTP(w, r)
					return
				}
			}

			log.Debug().Str("user", profile.Email).Strs("roles", roles).Msg("Missing role")
			WriteError(w, r, http.StatusForbidden, "insufficient role")
		})
	}
}

// ProfileFromContext returns the profile stored by RequireSession.
func ProfileFromContext(ctx context.Context) (*models.UserProfile, bool) {
	profile, ok := ctx.Value(profileContextKey).(*models.UserProfile)
	return profile, ok && profile != nil
}

// WriteError renders an error in the same shape the backend uses.
func WriteError(w http.ResponseWriter, r *http.Request, status int, message string) {
	apiErr := &client.APIError{
		TraceID:   middleware.GetReqID(r.Context()),
		Status:    status,
		Timestamp: time.Now().UTC(),
		Message:   message,
	}
	WriteAPIError(w, apiErr)
}

// WriteAPIError renders apiErr as JSON with its status code, 502 when the
// failure never reached the backend.
func WriteAPIError(w http.ResponseWriter, apiErr *client.APIError) {
	status := apiErr.Status
	if status == 0 {
		status = http.StatusBadGateway
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(apiErr); err != nil {
		log.Error().Err(err).Msg("failed to write error response")
	}
}

func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}
