package commands

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/wolfeidau/hoteladmin/internal/api"
	"github.com/wolfeidau/hoteladmin/internal/client"
	"github.com/wolfeidau/hoteladmin/internal/session"
	"github.com/wolfeidau/hoteladmin/internal/telemetry"
)

type Globals struct {
	Debug   bool
	Version string
}

// ClientFlags configure the REST backend client.
type ClientFlags struct {
	ServerURL   string        `help:"REST backend base URL" default:"https://localhost:8080" env:"HOTELADMIN_SERVER_URL"`
	Timeout     time.Duration `help:"backend request timeout" default:"30s" env:"HOTELADMIN_TIMEOUT"`
	CachePaths  []string      `help:"backend path prefixes whose GET responses are shared reference data and may be cached" env:"HOTELADMIN_CACHE_PATHS"`
	CacheDir    string        `help:"directory for the response cache, kept in memory when empty" env:"HOTELADMIN_CACHE_DIR"`
	Tracing     bool          `help:"enable tracing" default:"false" env:"HOTELADMIN_TRACING"`
	SampleRatio float64       `help:"fraction of traces kept when tracing" default:"1" env:"HOTELADMIN_TRACE_SAMPLE_RATIO"`
}

func (f ClientFlags) config(version string) client.Config {
	cfg := client.DefaultConfig()
	cfg.ServerURL = f.ServerURL
	cfg.Timeout = f.Timeout
	cfg.UserAgent = "hoteladmin/" + version
	cfg.CachePaths = f.CachePaths
	cfg.CacheDir = f.CacheDir
	cfg.Tracing = f.Tracing
	return cfg
}

// SessionFlags tune the session lifecycle.
type SessionFlags struct {
	SafetyMargin    time.Duration `help:"refresh the credential this long before it expires" default:"30s" env:"HOTELADMIN_SESSION_SAFETY_MARGIN"`
	ProfileAttempts uint          `help:"attempts made to load the user profile" default:"3" env:"HOTELADMIN_SESSION_PROFILE_ATTEMPTS"`
	LogoutTimeout   time.Duration `help:"timeout for the server logout call" default:"5s" env:"HOTELADMIN_SESSION_LOGOUT_TIMEOUT"`
}

func (f SessionFlags) config() session.Config {
	cfg := session.DefaultConfig()
	cfg.SafetyMargin = f.SafetyMargin
	cfg.ProfileMaxAttempts = f.ProfileAttempts
	cfg.LogoutTimeout = f.LogoutTimeout
	return cfg
}

// stack is the client, endpoints and session manager sharing one holder.
type stack struct {
	client  *client.Client
	auth    *api.Auth
	users   *api.Users
	manager *session.Manager
}

func newStack(clientFlags ClientFlags, sessionFlags SessionFlags, version string, log zerolog.Logger, opts ...session.Option) (*stack, error) {
	holder := session.NewHolder()

	c, err := client.New(clientFlags.config(version), holder)
	if err != nil {
		return nil, fmt.Errorf("failed to create api client: %w", err)
	}

	auth := api.NewAuth(c)
	users := api.NewUsers(c)

	opts = append([]session.Option{
		session.WithHolder(holder),
		session.WithLogger(log),
		session.WithConfig(sessionFlags.config()),
	}, opts...)

	manager, err := session.NewManager(auth, users, opts...)
	if err != nil {
		return nil, err
	}

	return &stack{client: c, auth: auth, users: users, manager: manager}, nil
}

// startTelemetry installs the OTLP exporters when enabled and returns the
// function flushing them.
func startTelemetry(ctx context.Context, flags ClientFlags, version string, log zerolog.Logger) func() {
	if !flags.Tracing {
		return func() {}
	}

	log.Info().Msg("Tracing is enabled")
	shutdown, err := telemetry.InitTelemetry(ctx, telemetry.Options{
		ServiceName: "hoteladmin",
		Version:     version,
		SampleRatio: flags.SampleRatio,
	})
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize telemetry, continuing without metrics")
		return func() {}
	}

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Failed to shutdown telemetry")
		}
	}
}

func configureHTTPServer(addr string, handler http.Handler) *http.Server {
	// Create HTTP server
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       time.Minute,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       5 * time.Minute,
		MaxHeaderBytes:    8 * 1024, // 8KiB
	}
}
