package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/wolfeidau/hoteladmin/internal/api"
	"github.com/wolfeidau/hoteladmin/internal/client"
	"github.com/wolfeidau/hoteladmin/internal/logger"
)

type OTPCmd struct {
	Email string `arg:"" help:"email address to send the code to"`

	Client ClientFlags `embed:""`
}

func (o *OTPCmd) Run(ctx context.Context, globals *Globals) error {
	log := logger.Setup(globals.Debug)

	email := strings.TrimSpace(o.Email)
	if email == "" {
		return errors.New("email is required")
	}

	c, err := client.New(o.Client.config(globals.Version), nil)
	if err != nil {
		return fmt.Errorf("failed to create api client: %w", err)
	}

	if err := api.NewAuth(c).SendEmailOTP(ctx, email); err != nil {
		return fmt.Errorf("failed to send otp: %w", err)
	}

	log.Info().Str("email", email).Msg("One time password sent")
	return nil
}
