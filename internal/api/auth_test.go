package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/hoteladmin/internal/client"
	"github.com/wolfeidau/hoteladmin/internal/models"
	"golang.org/x/oauth2"
)

func newTestClient(t *testing.T, handler http.Handler, tokens oauth2.TokenSource) *client.Client {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := client.DefaultConfig()
	cfg.ServerURL = srv.URL
	c, err := client.New(cfg, tokens)
	require.NoError(t, err)
	return c
}

func TestExpiry_UnmarshalJSON(t *testing.T) {
	expected := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)

	tests := []struct {
		name  string
		input string
		want  time.Time
	}{
		{name: "rfc3339", input: `"2026-03-04T05:06:07Z"`, want: expected},
		{name: "rfc3339 with offset", input: `"2026-03-04T15:06:07+10:00"`, want: expected},
		{name: "epoch seconds", input: `1772600767`, want: expected},
		{name: "fractional epoch seconds", input: `1772600767.9`, want: expected.Add(900 * time.Millisecond)},
		{name: "epoch milliseconds", input: `1772600767000`, want: expected},
		{name: "epoch as string", input: `"1772600767000"`, want: expected},
		{name: "null", input: `null`, want: time.Time{}},
		{name: "empty string", input: `""`, want: time.Time{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var e Expiry
			require.NoError(t, json.Unmarshal([]byte(tt.input), &e))
			require.True(t, tt.want.Equal(e.Time), "got %s", e.Time)
		})
	}

	var e Expiry
	require.Error(t, json.Unmarshal([]byte(`"next tuesday"`), &e))
	require.Error(t, json.Unmarshal([]byte(`-5`), &e))
}

func TestExpiry_MarshalJSON(t *testing.T) {
	data, err := json.Marshal(Expiry{Time: time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)})
	require.NoError(t, err)
	require.JSONEq(t, `"2026-03-04T05:06:07Z"`, string(data))

	data, err = json.Marshal(Expiry{})
	require.NoError(t, err)
	require.Equal(t, "null", string(data))
}

func TestTokenResponse_Credential(t *testing.T) {
	expiry := time.Now().Add(time.Hour).Truncate(time.Second)

	resp := &TokenResponse{AccessToken: "abc", AccessTokenExpiry: Expiry{Time: expiry}}
	cred, err := resp.Credential()
	require.NoError(t, err)
	require.Equal(t, "abc", cred.Token)
	require.True(t, expiry.Equal(cred.ExpiresAt))

	// expiry falls back to the exp claim
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(expiry),
	}).SignedString([]byte("test-secret-test-secret-test-secret"))
	require.NoError(t, err)

	cred, err = (&TokenResponse{AccessToken: signed}).Credential()
	require.NoError(t, err)
	require.True(t, expiry.Equal(cred.ExpiresAt))

	_, err = (&TokenResponse{AccessToken: "opaque"}).Credential()
	require.ErrorIs(t, err, models.ErrInvalidCredential)

	_, err = (&TokenResponse{AccessTokenExpiry: Expiry{Time: expiry}}).Credential()
	require.ErrorIs(t, err, models.ErrInvalidCredential)

	var missing *TokenResponse
	_, err = missing.Credential()
	require.ErrorIs(t, err, models.ErrInvalidCredential)
}

func TestAuth_RefreshToken(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+PathRefreshToken, func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"accessToken":"new-token","accessTokenExpiry":"2026-03-04T05:06:07Z"}`))
	})

	held := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "held"})
	auth := NewAuth(newTestClient(t, mux, held))

	resp, err := auth.RefreshToken(context.Background())
	require.NoError(t, err)
	require.Equal(t, "new-token", resp.AccessToken)
	require.Equal(t, 2026, resp.AccessTokenExpiry.Year())
}

func TestAuth_RefreshToken_Failure(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+PathRefreshToken, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"refresh token expired","traceId":"t-9"}`))
	})

	auth := NewAuth(newTestClient(t, mux, nil))

	_, err := auth.RefreshToken(context.Background())
	apiErr, ok := client.AsAPIError(err)
	require.True(t, ok)
	require.Equal(t, http.StatusUnauthorized, apiErr.Status)
	require.Equal(t, "t-9", apiErr.TraceID)
}

func TestAuth_EmailOTP(t *testing.T) {
	var sent, verified map[string]string

	mux := http.NewServeMux()
	mux.HandleFunc("POST "+PathSendEmailOTP, func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&sent))
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("POST "+PathVerifyEmailOTP, func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&verified))
		_, _ = w.Write([]byte(`{"success":true,"data":{"accessToken":"abc","accessTokenExpiry":1772600767000}}`))
	})

	auth := NewAuth(newTestClient(t, mux, nil))
	ctx := context.Background()

	require.NoError(t, auth.SendEmailOTP(ctx, "owner@example.com"))
	require.Equal(t, map[string]string{"email": "owner@example.com"}, sent)

	resp, err := auth.VerifyEmailOTP(ctx, "owner@example.com", "123456")
	require.NoError(t, err)
	require.Equal(t, map[string]string{"email": "owner@example.com", "otp": "123456"}, verified)
	require.Equal(t, "abc", resp.AccessToken)

	require.Error(t, auth.SendEmailOTP(ctx, ""))
	_, err = auth.VerifyEmailOTP(ctx, "owner@example.com", "")
	require.Error(t, err)
}

func TestAuth_Logout_SendsExplicitToken(t *testing.T) {
	got := make(chan string, 1)

	mux := http.NewServeMux()
	mux.HandleFunc("POST "+PathLogout, func(w http.ResponseWriter, r *http.Request) {
		got <- r.Header.Get("Authorization")
		w.WriteHeader(http.StatusNoContent)
	})

	auth := NewAuth(newTestClient(t, mux, nil))
	require.NoError(t, auth.Logout(context.Background(), "dropped-token"))
	require.Equal(t, "Bearer dropped-token", <-got)
}

func TestUsers_Profile(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+PathProfile, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer held", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"id":"u-1","email":"owner@example.com","firstName":"Olive","roles":["HOTEL_OWNER"]}`))
	})

	held := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "held", TokenType: "Bearer"})
	users := NewUsers(newTestClient(t, mux, held))

	profile, err := users.Profile(context.Background())
	require.NoError(t, err)
	require.Equal(t, "u-1", profile.ID)
	require.True(t, profile.HasRole(models.RoleHotelOwner))
	require.Equal(t, "Olive", profile.DisplayName())
}
