package session

import (
	"errors"
	"time"
)

// Config tunes the session manager.
type Config struct {
	// SafetyMargin is how long before expiry the credential is refreshed.
	SafetyMargin time.Duration

	// ProfileMaxAttempts bounds profile fetch attempts per session.
	ProfileMaxAttempts uint

	// ProfileInitialInterval is the first backoff between profile attempts.
	ProfileInitialInterval time.Duration

	// LogoutTimeout bounds the best effort server logout call.
	LogoutTimeout time.Duration
}

// DefaultConfig returns the production settings.
func DefaultConfig() Config {
	return Config{
		SafetyMargin:           SafetyMargin,
		ProfileMaxAttempts:     3,
		ProfileInitialInterval: 500 * time.Millisecond,
		LogoutTimeout:          5 * time.Second,
	}
}

// Validate checks the configuration is usable.
func (c Config) Validate() error {
	var errs []error
	if c.SafetyMargin < 0 {
		errs = append(errs, errors.New("safety margin must not be negative"))
	}
	if c.ProfileMaxAttempts == 0 {
		errs = append(errs, errors.New("profile max attempts must be at least 1"))
	}
	if c.ProfileInitialInterval < 0 {
		errs = append(errs, errors.New("profile initial interval must not be negative"))
	}
	if c.LogoutTimeout <= 0 {
		errs = append(errs, errors.New("logout timeout must be positive"))
	}
	return errors.Join(errs...)
}
