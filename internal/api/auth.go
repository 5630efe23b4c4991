package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/wolfeidau/hoteladmin/internal/client"
	"github.com/wolfeidau/hoteladmin/internal/models"
)

// Backend auth endpoints.
const (
	PathRefreshToken   = "/auth/refreshToken"
	PathSendEmailOTP   = "/auth/login/email/send-otp"
	PathVerifyEmailOTP = "/auth/login/email/verify-otp"
	PathLogout         = "/auth/logout"
)

// epochMillisThreshold separates epoch seconds from epoch milliseconds;
// second based timestamps stay below it until the year 5138.
const epochMillisThreshold = 1e11

// Expiry is an absolute timestamp which the backend encodes either as an
// RFC 3339 string or as a number of epoch seconds or milliseconds.
type Expiry struct {
	time.Time
}

// UnmarshalJSON implements json.Unmarshaler.
func (e *Expiry) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		e.Time = time.Time{}
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			e.Time = time.Time{}
			return nil
		}
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			e.Time = t
			return nil
		}
		// numeric timestamps are sometimes sent as strings
		data = []byte(s)
	}

	n, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return fmt.Errorf("invalid expiry %q: %w", string(data), err)
	}
	if math.IsNaN(n) || math.IsInf(n, 0) || n <= 0 {
		return fmt.Errorf("invalid expiry %q", string(data))
	}

	if n >= epochMillisThreshold {
		e.Time = time.UnixMilli(int64(n))
	} else {
		e.Time = time.UnixMilli(int64(math.Round(n * 1000)))
	}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (e Expiry) MarshalJSON() ([]byte, error) {
	if e.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(e.UTC().Format(time.RFC3339Nano))
}

// TokenResponse is returned by every endpoint which issues an access token.
type TokenResponse struct {
	AccessToken       string `json:"accessToken"`
	AccessTokenExpiry Expiry `json:"accessTokenExpiry"`
}

// Credential converts the response into a credential. When the expiry is
// missing the exp claim of the token is used.
func (t *TokenResponse) Credential() (*models.Credential, error) {
	if t == nil {
		return nil, fmt.Errorf("%w: empty token response", models.ErrInvalidCredential)
	}

	expiresAt := t.AccessTokenExpiry.Time
	if expiresAt.IsZero() && t.AccessToken != "" {
		exp, err := models.ExpiryFromJWT(t.AccessToken)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", models.ErrInvalidCredential, err)
		}
		expiresAt = exp
	}

	return models.NewCredential(t.AccessToken, expiresAt)
}

// Auth wraps the authentication endpoints.
type Auth struct {
	client *client.Client
}

// NewAuth creates the auth endpoint wrapper.
func NewAuth(c *client.Client) *Auth {
	return &Auth{client: c}
}

// RefreshToken exchanges the server managed refresh cookie for a new access
// token. No bearer credential is sent.
func (a *Auth) RefreshToken(ctx context.Context) (*TokenResponse, error) {
	var resp TokenResponse
	if err := a.client.Do(ctx, http.MethodPost, PathRefreshToken, nil, &resp, client.WithoutCredential()); err != nil {
		return nil, err
	}
	return &resp, nil
}

type sendOTPRequest struct {
	Email string `json:"email"`
}

type verifyOTPRequest struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
}

// SendEmailOTP asks the backend to email a one time password.
func (a *Auth) SendEmailOTP(ctx context.Context, email string) error {
	if email == "" {
		return errors.New("email is required")
	}
	return a.client.Do(ctx, http.MethodPost, PathSendEmailOTP, sendOTPRequest{Email: email}, nil, client.WithoutCredential())
}

// VerifyEmailOTP completes an email login and returns the issued token.
func (a *Auth) VerifyEmailOTP(ctx context.Context, email, otp string) (*TokenResponse, error) {
	if email == "" || otp == "" {
		return nil, errors.New("email and otp are required")
	}

	var resp TokenResponse
	err := a.client.Do(ctx, http.MethodPost, PathVerifyEmailOTP, verifyOTPRequest{Email: email, OTP: otp}, &resp, client.WithoutCredential())
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// Logout invalidates the server side session. token is sent explicitly as
// the caller has usually already dropped it locally.
func (a *Auth) Logout(ctx context.Context, token string) error {
	opt := client.WithoutCredential()
	if token != "" {
		opt = client.WithBearer(token)
	}
	return a.client.Do(ctx, http.MethodPost, PathLogout, nil, nil, opt)
}
