package models

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/mr-tron/base58"
	"golang.org/x/oauth2"
)

// fingerprintLength is the number of base58 characters kept when a token
// fingerprint is logged.
const fingerprintLength = 12

var (
	// ErrInvalidCredential is returned when a credential is missing its token or expiry.
	ErrInvalidCredential = errors.New("invalid credential")

	// ErrNoExpiry is returned when a token carries no usable expiry.
	ErrNoExpiry = errors.New("token has no expiry")
)

// Credential is the access token currently used to call the backend along
// with the absolute time it expires. A Credential is immutable; a refresh
// replaces it with a new value.
type Credential struct {
	Token     string
	ExpiresAt time.Time
}

// NewCredential creates a credential, rejecting partially populated values.
func NewCredential(token string, expiresAt time.Time) (*Credential, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: empty token", ErrInvalidCredential)
	}
	if expiresAt.IsZero() {
		return nil, fmt.Errorf("%w: missing expiry", ErrInvalidCredential)
	}

	return &Credential{Token: token, ExpiresAt: expiresAt}, nil
}

// ValidAt reports whether the credential has not yet expired at now.
func (c *Credential) ValidAt(now time.Time) bool {
	if c == nil {
		return false
	}
	return c.ExpiresAt.After(now)
}

// OAuth2Token converts the credential into a bearer oauth2.Token.
func (c *Credential) OAuth2Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken: c.Token,
		TokenType:   "Bearer",
		Expiry:      c.ExpiresAt,
	}
}

// Fingerprint returns a short, non-reversible identifier for the token
// which is safe to write to logs.
func (c *Credential) Fingerprint() string {
	if c == nil || c.Token == "" {
		return ""
	}

	hash := sha256.Sum256([]byte(c.Token))
	fingerprint := base58.Encode(hash[:])
	if len(fingerprint) > fingerprintLength {
		fingerprint = fingerprint[:fingerprintLength]
	}
	return fingerprint
}

// ExpiryFromJWT reads the exp claim from a JWT without verifying its
// signature. The backend is the only party able to verify the token, this is
// used purely to learn when it will stop accepting it.
func ExpiryFromJWT(token string) (time.Time, error) {
	claims := jwt.RegisteredClaims{}

	_, _, err := jwt.NewParser().ParseUnverified(token, &claims)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrNoExpiry, err)
	}

	if claims.ExpiresAt == nil {
		return time.Time{}, ErrNoExpiry
	}

	return claims.ExpiresAt.Time, nil
}
