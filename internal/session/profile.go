package session

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"
	"github.com/wolfeidau/hoteladmin/internal/client"
	"github.com/wolfeidau/hoteladmin/internal/models"
	"github.com/wolfeidau/hoteladmin/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// ProfileService fetches the acting user's profile, see api.Users.
type ProfileService interface {
	Profile(ctx context.Context) (*models.UserProfile, error)
}

// ProfileLoader fetches the profile, retrying transient failures.
type ProfileLoader struct {
	service     ProfileService
	maxAttempts uint
	interval    time.Duration
	logger      zerolog.Logger
}

// NewProfileLoader creates a loader using the retry settings from cfg.
func NewProfileLoader(service ProfileService, cfg Config, logger zerolog.Logger) *ProfileLoader {
	return &ProfileLoader{
		service:     service,
		maxAttempts: cfg.ProfileMaxAttempts,
		interval:    cfg.ProfileInitialInterval,
		logger:      logger,
	}
}

// Load fetches the profile. Transport failures and 5xx responses are retried,
// anything else is returned after the first attempt.
func (p *ProfileLoader) Load(ctx context.Context) (*models.UserProfile, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.interval

	attempt := 0
	profile, err := backoff.Retry(ctx, func() (*models.UserProfile, error) {
		attempt++
		profile, err := p.service.Profile(ctx)
		if err == nil {
			return profile, nil
		}

		apiErr := client.Normalize(err)
		if !apiErr.Temporary() {
			return nil, backoff.Permanent(err)
		}

		p.logger.Debug().Err(err).Int("attempt", attempt).Msg("profile fetch failed, retrying")
		return nil, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(p.maxAttempts))

	result := "success"
	if err != nil {
		result = "failure"
	}
	telemetry.GetMetrics().ProfileLoadsTotal.Add(ctx, 1,
		metric.WithAttributes(attribute.String("result", result)))

	if err != nil {
		return nil, err
	}
	return profile, nil
}
