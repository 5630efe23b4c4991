package models

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCredential(t *testing.T) {
	expiry := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	cred, err := NewCredential("abc", expiry)
	require.NoError(t, err)
	assert.Equal(t, "abc", cred.Token)
	assert.Equal(t, expiry, cred.ExpiresAt)

	_, err = NewCredential("", expiry)
	require.ErrorIs(t, err, ErrInvalidCredential)

	_, err = NewCredential("abc", time.Time{})
	require.ErrorIs(t, err, ErrInvalidCredential)
}

func TestCredential_ValidAt(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		cred     *Credential
		expected bool
	}{
		{name: "nil credential", cred: nil, expected: false},
		{name: "future expiry", cred: &Credential{Token: "a", ExpiresAt: now.Add(time.Second)}, expected: true},
		{name: "expiry equal to now", cred: &Credential{Token: "a", ExpiresAt: now}, expected: false},
		{name: "past expiry", cred: &Credential{Token: "a", ExpiresAt: now.Add(-time.Second)}, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expected, tt.cred.ValidAt(now))
		})
	}
}

func TestCredential_OAuth2Token(t *testing.T) {
	expiry := time.Now().Add(time.Hour)
	cred := &Credential{Token: "abc", ExpiresAt: expiry}

	tok := cred.OAuth2Token()
	assert.Equal(t, "abc", tok.AccessToken)
	assert.Equal(t, "Bearer", tok.Type())
	assert.Equal(t, expiry, tok.Expiry)
}

func TestCredential_Fingerprint(t *testing.T) {
	a := &Credential{Token: "token-a", ExpiresAt: time.Now()}
	b := &Credential{Token: "token-b", ExpiresAt: time.Now()}

	require.Len(t, a.Fingerprint(), fingerprintLength)
	require.Equal(t, a.Fingerprint(), a.Fingerprint())
	require.NotEqual(t, a.Fingerprint(), b.Fingerprint())
	require.NotContains(t, a.Fingerprint(), "token")

	var empty *Credential
	require.Empty(t, empty.Fingerprint())
}

func TestExpiryFromJWT(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	expiry := time.Now().Add(15 * time.Minute).Truncate(time.Second)
	signed, err := jwt.NewWithClaims(jwt.SigningMethodES256, jwt.RegisteredClaims{
		Subject:   "user-1",
		ExpiresAt: jwt.NewNumericDate(expiry),
	}).SignedString(key)
	require.NoError(t, err)

	got, err := ExpiryFromJWT(signed)
	require.NoError(t, err)
	require.True(t, expiry.Equal(got))
}

func TestExpiryFromJWT_NoExpiry(t *testing.T) {
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject: "user-1",
	}).SignedString([]byte("test-secret-test-secret-test-secret"))
	require.NoError(t, err)

	_, err = ExpiryFromJWT(signed)
	require.ErrorIs(t, err, ErrNoExpiry)

	_, err = ExpiryFromJWT("opaque-token")
	require.ErrorIs(t, err, ErrNoExpiry)
}
