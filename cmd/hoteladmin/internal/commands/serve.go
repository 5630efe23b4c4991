package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/wolfeidau/hoteladmin/internal/dashboard"
	"github.com/wolfeidau/hoteladmin/internal/logger"
	"github.com/wolfeidau/hoteladmin/internal/session"
)

type ServeCmd struct {
	Listen         string        `help:"HTTP server listen address" default:"127.0.0.1:8090" env:"HOTELADMIN_LISTEN"`
	LoginURL       string        `help:"where anonymous page requests are redirected" default:"/login" env:"HOTELADMIN_LOGIN_URL"`
	CORSOrigins    []string      `help:"allowed CORS origins for API requests" default:"http://localhost:5173" env:"HOTELADMIN_CORS_ORIGINS"`
	TrustedOrigins []string      `help:"origins allowed to submit session changes cross origin" env:"HOTELADMIN_TRUSTED_ORIGINS"`
	RequestTimeout time.Duration `help:"per request timeout, 0 disables" default:"60s" env:"HOTELADMIN_REQUEST_TIMEOUT"`
	NoBanner       bool          `help:"skip the startup banner" env:"HOTELADMIN_NO_BANNER"`

	Client  ClientFlags  `embed:""`
	Session SessionFlags `embed:"" prefix:"session-"`
}

func (c *ServeCmd) Run(ctx context.Context, globals *Globals) error {
	log := logger.Setup(globals.Debug)

	if !c.NoBanner {
		figure.NewFigure("hoteladmin", "cybermedium", true).Print()
	}

	log.Info().Str("version", globals.Version).Bool("debug", globals.Debug).Msg("Starting dashboard host")

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	defer startTelemetry(ctx, c.Client, globals.Version, log)()

	st, err := newStack(c.Client, c.Session, globals.Version, log,
		session.WithPendingBootstrap(),
		session.WithListener(func(t session.Transition) {
			log.Info().Stringer("from", t.From).Stringer("to", t.To).Str("reason", t.Reason).Msg("Session changed")
		}),
	)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.manager.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close session manager")
		}
	}()

	host, err := dashboard.New(st.manager, st.auth, dashboard.Config{
		LoginURL:         c.LoginURL,
		CORSOrigins:      c.CORSOrigins,
		TrustedOrigins:   c.TrustedOrigins,
		BackendURL:       st.client.BaseURL(),
		BackendTransport: st.client.Transport(),
		RequestTimeout:   c.RequestTimeout,
	}, log)
	if err != nil {
		return fmt.Errorf("failed to create dashboard host: %w", err)
	}

	srv := configureHTTPServer(c.Listen, host.Handler())

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", c.Listen).Str("backend", c.Client.ServerURL).Msg("Starting HTTP server")
		errCh <- srv.ListenAndServe()
	}()

	// resume the previous session while the guard answers with initializing
	go func() {
		if err := st.manager.Bootstrap(ctx); err != nil {
			log.Error().Err(err).Msg("Failed to bootstrap session")
		}
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}
