package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/wolfeidau/hoteladmin/internal/logger"
	"github.com/wolfeidau/hoteladmin/internal/session"
	"golang.org/x/term"
)

type SessionCmd struct {
	Email string `arg:"" help:"email address the code was sent to"`
	OTP   string `help:"one time password, prompted for when omitted" env:"HOTELADMIN_OTP"`

	Client  ClientFlags  `embed:""`
	Session SessionFlags `embed:"" prefix:"session-"`
}

func (s *SessionCmd) Run(ctx context.Context, globals *Globals) error {
	log := logger.Setup(globals.Debug)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	defer startTelemetry(ctx, s.Client, globals.Version, log)()

	otp := strings.TrimSpace(s.OTP)
	if otp == "" {
		var err error
		otp, err = promptOTP(os.Stdin, os.Stderr)
		if err != nil {
			return err
		}
	}

	ended := make(chan struct{})
	st, err := newStack(s.Client, s.Session, globals.Version, log,
		session.WithListener(sessionListener(log, ended)),
	)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.manager.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close session manager")
		}
	}()

	resp, err := st.auth.VerifyEmailOTP(ctx, s.Email, otp)
	if err != nil {
		return fmt.Errorf("failed to verify otp: %w", err)
	}

	if err := st.manager.LoginWithResponse(ctx, resp); err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}

	if profile := st.manager.Profile(); profile != nil {
		log.Info().Str("user", profile.DisplayName()).Strs("roles", profile.Roles).Msg("Signed in")
	}

	select {
	case <-ctx.Done():
		log.Info().Msg("Signing out")
		return st.manager.Logout(context.WithoutCancel(ctx))
	case <-ended:
		return errors.New("session ended")
	}
}

// sessionListener logs transitions and closes ended once the session drops
// back to unauthenticated.
func sessionListener(log zerolog.Logger, ended chan<- struct{}) func(session.Transition) {
	closed := false
	return func(t session.Transition) {
		log.Info().Stringer("from", t.From).Stringer("to", t.To).Str("reason", t.Reason).Msg("Session changed")

		if t.To == session.Unauthenticated && t.Reason != session.ReasonLogout && !closed {
			closed = true
			close(ended)
		}
	}
}

func promptOTP(stdin *os.File, out io.Writer) (string, error) {
	fd := int(stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("no terminal available to prompt for the one time password (use --otp)")
	}

	fmt.Fprint(out, "One time password: ")
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(out)
	if err != nil {
		return "", fmt.Errorf("failed to read one time password: %w", err)
	}

	otp := strings.TrimSpace(string(b))
	if otp == "" {
		return "", errors.New("one time password is required")
	}
	return otp, nil
}
