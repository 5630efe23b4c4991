// Package dashboard serves the session API and backend proxy used by the
// browser front-end.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"filippo.io/csrf"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/klauspost/compress/gzhttp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/wolfeidau/hoteladmin/internal/api"
	"github.com/wolfeidau/hoteladmin/internal/guard"
	"github.com/wolfeidau/hoteladmin/internal/logger"
	"github.com/wolfeidau/hoteladmin/internal/models"
	"github.com/wolfeidau/hoteladmin/internal/session"
)

// Session is the part of session.Manager the dashboard drives.
type Session interface {
	guard.Source
	Snapshot() session.Snapshot
	LoginWithResponse(ctx context.Context, resp *api.TokenResponse) error
	Logout(ctx context.Context) error
	RefreshUser(ctx context.Context) (*models.UserProfile, error)
}

// OTPService issues and verifies email one time passwords, see api.Auth.
type OTPService interface {
	SendEmailOTP(ctx context.Context, email string) error
	VerifyEmailOTP(ctx context.Context, email, otp string) (*api.TokenResponse, error)
}

// Config configures the dashboard host.
type Config struct {
	// LoginURL is where unauthenticated page requests are redirected.
	LoginURL string

	// CORSOrigins are allowed to call the API cross origin.
	CORSOrigins []string

	// TrustedOrigins may submit session mutations cross origin.
	TrustedOrigins []string

	// BackendURL is the REST backend proxied under /api/backend/.
	BackendURL *url.URL

	// BackendTransport sends proxied requests, it attaches the bearer.
	BackendTransport http.RoundTripper

	// RequestTimeout bounds each request, zero disables it.
	RequestTimeout time.Duration
}

// Server is the dashboard HTTP host.
type Server struct {
	session  Session
	otp      OTPService
	config   Config
	logger   zerolog.Logger
	registry *prometheus.Registry
	router   chi.Router
}

// New builds the dashboard host and its routes.
func New(sess Session, otp OTPService, cfg Config, log zerolog.Logger) (*Server, error) {
	if cfg.BackendURL == nil {
		return nil, errors.New("backend URL is required")
	}
	if cfg.LoginURL == "" {
		cfg.LoginURL = "/login"
	}

	protection := csrf.New()
	for _, origin := range cfg.TrustedOrigins {
		if err := protection.AddTrustedOrigin(origin); err != nil {
			return nil, fmt.Errorf("invalid trusted origin %q: %w", origin, err)
		}
	}

	s := &Server{
		session:  sess,
		otp:      otp,
		config:   cfg,
		logger:   log,
		registry: prometheus.NewRegistry(),
	}

	s.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "hoteladmin",
			Subsystem: "session",
			Name:      "state",
			Help:      "Current session state: 0 initializing, 1 unauthenticated, 2 authenticated.",
		}, func() float64 {
			return float64(sess.State())
		}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "hoteladmin",
			Subsystem: "session",
			Name:      "expiry_seconds",
			Help:      "Seconds until the held credential expires, 0 without a session.",
		}, func() float64 {
			snap := sess.Snapshot()
			if snap.ExpiresAt == nil {
				return 0
			}
			return max(time.Until(*snap.ExpiresAt).Seconds(), 0)
		}),
	)

	s.router = s.routes(protection, newBackendProxy(cfg.BackendURL, cfg.BackendTransport))

	return s, nil
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes(protection *csrf.Protection, backend http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logger.Requests(s.logger))
	r.Use(middleware.Recoverer)
	if s.config.RequestTimeout > 0 {
		r.Use(middleware.Timeout(s.config.RequestTimeout))
	}

	r.Get("/healthz", s.healthz)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	r.Get("/login", s.loginPage)

	r.Group(func(r chi.Router) {
		r.Use(guard.RequireSession(s.session, s.config.LoginURL))
		r.Get("/", s.home)
	})

	// API routes get CORS, session mutations are also checked for cross
	// origin submissions
	r.Route("/api", func(r chi.Router) {
		r.Use(withCORS(s.config.CORSOrigins))
		r.Use(compress)

		r.Get("/session", s.getSession)

		r.Group(func(r chi.Router) {
			r.Use(protection.Handler)
			r.Post("/session/otp", s.sendOTP)
			r.Post("/session/login", s.login)
			r.Post("/session/logout", s.logout)
			r.Post("/session/user", s.refreshUser)
		})

		r.Group(func(r chi.Router) {
			r.Use(guard.RequireSession(s.session, s.config.LoginURL))
			r.Handle(backendPrefix+"/*", backend)
		})
	})

	return r
}

// withCORS adds CORS support to the API routes.
func withCORS(allowedOrigins []string) func(http.Handler) http.Handler {
	middleware := cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowedHeaders:   []string{"Accept", "Content-Type", middleware.RequestIDHeader},
		ExposedHeaders:   []string{middleware.RequestIDHeader, "Retry-After"},
		AllowCredentials: true,
	})
	return middleware.Handler
}

func compress(next http.Handler) http.Handler {
	return gzhttp.GzipHandler(next)
}
