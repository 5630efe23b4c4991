package session

import (
	"fmt"
	"time"

	"github.com/wolfeidau/hoteladmin/internal/models"
)

// State is the derived authentication state consumed by route guards.
type State int

const (
	// Initializing means the bootstrap refresh is still in flight.
	Initializing State = iota
	// Unauthenticated means no valid credential is held.
	Unauthenticated
	// Authenticated means a credential is held and has not expired.
	Authenticated
)

func (s State) String() string {
	switch s {
	case Initializing:
		return "initializing"
	case Unauthenticated:
		return "unauthenticated"
	case Authenticated:
		return "authenticated"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Evaluate derives the state of a settled session from its credential.
// It is recomputed on every read rather than cached so it never drifts from
// the wall clock.
func Evaluate(cred *models.Credential, now time.Time) State {
	if cred.ValidAt(now) {
		return Authenticated
	}
	return Unauthenticated
}

// Reasons recorded on transitions.
const (
	ReasonBootstrap       = "bootstrap"
	ReasonBootstrapFailed = "bootstrap_failed"
	ReasonLogin           = "login"
	ReasonLogout          = "logout"
	ReasonRefresh         = "refresh"
	ReasonRefreshFailed   = "refresh_failed"
	ReasonExpired         = "expired"
)

// Transition describes a change of session state.
type Transition struct {
	From   State
	To     State
	Reason string
	At     time.Time
}
