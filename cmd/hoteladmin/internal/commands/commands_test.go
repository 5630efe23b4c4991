package commands

import (
	"io"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/alecthomas/kong"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/hoteladmin/internal/session"
)

func TestServeCmd_Flags(t *testing.T) {
	var cli struct {
		Serve ServeCmd `cmd:""`
	}
	parser, err := kong.New(&cli)
	require.NoError(t, err)

	_, err = parser.Parse([]string{"serve",
		"--server-url=https://api.example.com",
		"--session-safety-margin=45s",
		"--session-profile-attempts=5",
		"--cache-paths=/amenities,/countries",
	})
	require.NoError(t, err)

	clientCfg := cli.Serve.Client.config("1.2.3")
	require.Equal(t, "https://api.example.com", clientCfg.ServerURL)
	require.Equal(t, "hoteladmin/1.2.3", clientCfg.UserAgent)
	require.Equal(t, 30*time.Second, clientCfg.Timeout)
	require.Equal(t, []string{"/amenities", "/countries"}, clientCfg.CachePaths)

	sessCfg := cli.Serve.Session.config()
	require.Equal(t, 45*time.Second, sessCfg.SafetyMargin)
	require.Equal(t, uint(5), sessCfg.ProfileMaxAttempts)
	require.Equal(t, 5*time.Second, sessCfg.LogoutTimeout)
	require.NoError(t, sessCfg.Validate())

	require.Equal(t, "127.0.0.1:8090", cli.Serve.Listen)
}

func TestNewStack(t *testing.T) {
	var flags struct {
		Client  ClientFlags  `embed:""`
		Session SessionFlags `embed:"" prefix:"session-"`
	}
	parser, err := kong.New(&flags)
	require.NoError(t, err)
	_, err = parser.Parse(nil)
	require.NoError(t, err)

	st, err := newStack(flags.Client, flags.Session, "dev", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.manager.Close() })

	require.Equal(t, session.Unauthenticated, st.manager.State())
	require.Equal(t, "localhost:8080", st.client.BaseURL().Host)

	flags.Client.ServerURL = "ftp://example.com"
	_, err = newStack(flags.Client, flags.Session, "dev", zerolog.Nop())
	require.Error(t, err)
}

func TestSessionListener(t *testing.T) {
	ended := make(chan struct{})
	listener := sessionListener(zerolog.Nop(), ended)

	listener(session.Transition{From: session.Unauthenticated, To: session.Authenticated, Reason: session.ReasonLogin})
	listener(session.Transition{From: session.Authenticated, To: session.Unauthenticated, Reason: session.ReasonLogout})

	select {
	case <-ended:
		t.Fatal("logout must not end the command")
	default:
	}

	listener(session.Transition{From: session.Authenticated, To: session.Unauthenticated, Reason: session.ReasonRefreshFailed})
	listener(session.Transition{From: session.Authenticated, To: session.Unauthenticated, Reason: session.ReasonExpired})

	select {
	case <-ended:
	default:
		t.Fatal("refresh failure should end the command")
	}
}

func TestPromptOTP_NoTerminal(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = r.Close()
		_ = w.Close()
	})

	_, err = promptOTP(r, io.Discard)
	require.ErrorContains(t, err, "--otp")
}

func TestConfigureHTTPServer(t *testing.T) {
	srv := configureHTTPServer(":0", http.NotFoundHandler())
	require.Equal(t, ":0", srv.Addr)
	require.Equal(t, time.Second, srv.ReadHeaderTimeout)
	require.Equal(t, 8*1024, srv.MaxHeaderBytes)
}
