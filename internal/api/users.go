package api

import (
	"context"
	"net/http"

	"github.com/wolfeidau/hoteladmin/internal/client"
	"github.com/wolfeidau/hoteladmin/internal/models"
)

// PathProfile returns the acting user's profile.
const PathProfile = "/users/me/profile"

// Users wraps the user endpoints.
type Users struct {
	client *client.Client
}

// NewUsers creates the user endpoint wrapper.
func NewUsers(c *client.Client) *Users {
	return &Users{client: c}
}

// Profile fetches the profile of the user owning the held credential.
func (u *Users) Profile(ctx context.Context) (*models.UserProfile, error) {
	var profile models.UserProfile
	if err := u.client.Do(ctx, http.MethodGet, PathProfile, nil, &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}
