package models

import (
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Role tokens assigned to dashboard users.
const (
	RoleSuperAdmin    = "SUPER_ADMIN"    // Platform operator
	RoleHotelOwner    = "HOTEL_OWNER"    // Owns one or more properties
	RoleHotelManager  = "HOTEL_MANAGER"  // Manages rooms, rates and promotions
	RoleFrontDesk     = "FRONT_DESK"     // Read mostly access to bookings and rooms
	RoleContentEditor = "CONTENT_EDITOR" // Edits property profiles and amenities
)

// UserProfile is the acting user's identity as returned by the profile endpoint.
// It is owned by the session and discarded when the session ends.
type UserProfile struct {
	ID          string   `json:"id"`
	Email       string   `json:"email"`
	FirstName   string   `json:"firstName,omitempty"`
	LastName    string   `json:"lastName,omitempty"`
	PhoneNumber string   `json:"phoneNumber,omitempty"`
	AvatarURL   string   `json:"avatarUrl,omitempty"`
	Roles       []string `json:"roles"`

	// Properties the user has access to, empty for platform roles.
	PropertyIDs []string `json:"propertyIds,omitempty"`
}

// HasRole reports whether the profile carries the given role token.
// Comparison is case-insensitive as the backend is not consistent.
func (p *UserProfile) HasRole(role string) bool {
	if p == nil {
		return false
	}
	return slices.ContainsFunc(p.Roles, func(r string) bool {
		return strings.EqualFold(r, role)
	})
}

// DisplayName returns the full name, falling back to the email address.
func (p *UserProfile) DisplayName() string {
	if p == nil {
		return ""
	}

	name := strings.TrimSpace(strings.Join([]string{p.FirstName, p.LastName}, " "))
	if name != "" {
		return name
	}
	return p.Email
}

// Initial returns the single upper-case letter shown in place of an avatar.
// A nil profile, which is what a failed profile load leaves behind, yields "?".
func (p *UserProfile) Initial() string {
	if p == nil {
		return "?"
	}

	for _, s := range []string{p.FirstName, p.Email} {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		r, _ := utf8.DecodeRuneInString(s)
		if r != utf8.RuneError {
			return string(unicode.ToUpper(r))
		}
	}

	return "?"
}
