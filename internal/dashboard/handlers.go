package dashboard

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
	"github.com/wolfeidau/hoteladmin/internal/client"
	"github.com/wolfeidau/hoteladmin/internal/guard"
	"github.com/wolfeidau/hoteladmin/internal/models"
	"github.com/wolfeidau/hoteladmin/internal/session"
)

const maxBodyBytes = 64 << 10

type otpRequest struct {
	Email string `json:"email"`
}

type loginRequest struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok", "session": s.session.State().String()})
}

func (s *Server) loginPage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if code := r.URL.Query().Get("error_code"); code != "" {
		fmt.Fprintf(w, "Sign in required (%s).\n", code)
	}
	fmt.Fprintln(w, "Request a code with POST /api/session/otp then sign in with POST /api/session/login.")
}

func (s *Server) home(w http.ResponseWriter, r *http.Request) {
	name := "there"
	if profile, ok := guard.ProfileFromContext(r.Context()); ok {
		name = profile.DisplayName()
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintf(w, "Hello %s, your session is active.\n", name)
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, s.session.Snapshot())
}

func (s *Server) sendOTP(w http.ResponseWriter, r *http.Request) {
	var req otpRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	email := strings.TrimSpace(req.Email)
	if email == "" {
		guard.WriteError(w, r, http.StatusBadRequest, "email is required")
		return
	}

	if err := s.otp.SendEmailOTP(r.Context(), email); err != nil {
		s.writeErr(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	email, otp := strings.TrimSpace(req.Email), strings.TrimSpace(req.OTP)
	if email == "" || otp == "" {
		guard.WriteError(w, r, http.StatusBadRequest, "email and otp are required")
		return
	}

	resp, err := s.otp.VerifyEmailOTP(r.Context(), email, otp)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}

	if err := s.session.LoginWithResponse(r.Context(), resp); err != nil {
		s.writeErr(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, s.session.Snapshot())
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	if err := s.session.Logout(r.Context()); err != nil {
		s.writeErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) refreshUser(w http.ResponseWriter, r *http.Request) {
	profile, err := s.session.RefreshUser(r.Context())
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, profile)
}

// writeErr maps session and transport failures onto HTTP responses.
func (s *Server) writeErr(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, session.ErrNotAuthenticated):
		guard.WriteError(w, r, http.StatusUnauthorized, "authentication required")
	case errors.Is(err, session.ErrSessionClosed):
		guard.WriteError(w, r, http.StatusServiceUnavailable, "shutting down")
	case errors.Is(err, models.ErrInvalidCredential), errors.Is(err, session.ErrExpiredCredential):
		zerolog.Ctx(r.Context()).Warn().Err(err).Msg("backend issued an unusable credential")
		guard.WriteError(w, r, http.StatusBadGateway, "login response was not usable")
	default:
		guard.WriteAPIError(w, client.Normalize(err))
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		guard.WriteError(w, r, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("failed to write response")
	}
}
