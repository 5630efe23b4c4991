package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/hoteladmin/internal/api"
	"github.com/wolfeidau/hoteladmin/internal/models"
	"github.com/wolfeidau/hoteladmin/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/singleflight"
)

var (
	// ErrNotAuthenticated is returned by operations which need a live session.
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrAlreadyBootstrapped is returned when Bootstrap is called twice.
	ErrAlreadyBootstrapped = errors.New("session already bootstrapped")

	// ErrSessionClosed is returned once the manager has been closed.
	ErrSessionClosed = errors.New("session manager closed")

	// ErrExpiredCredential is returned when a credential is already past its expiry.
	ErrExpiredCredential = errors.New("credential already expired")

	// ErrSuperseded is returned when a refresh result was dropped because a
	// login or logout happened while it was in flight.
	ErrSuperseded = errors.New("refresh superseded by a newer session change")
)

const refreshKey = "refresh"

// minRefreshDelay is the shortest timer armed for a credential which came
// back from a refresh already inside the safety margin.
const minRefreshDelay = time.Second

// refresh triggers, recorded on metrics and logs
const (
	triggerBootstrap = "bootstrap"
	triggerScheduled = "scheduled"
	triggerImmediate = "immediate"
	triggerManual    = "manual"
)

// AuthService is the subset of the auth endpoints the manager drives, see
// api.Auth.
type AuthService interface {
	RefreshToken(ctx context.Context) (*api.TokenResponse, error)
	Logout(ctx context.Context, token string) error
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock replaces the wall clock, used by tests.
func WithClock(clock clockwork.Clock) Option {
	return func(m *Manager) { m.clock = clock }
}

// WithLogger sets the logger, defaults to the global zerolog logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// WithConfig overrides DefaultConfig.
func WithConfig(cfg Config) Option {
	return func(m *Manager) { m.config = cfg }
}

// WithHolder shares an existing credential holder, typically the one the
// HTTP client reads the bearer from.
func WithHolder(holder CredentialStore) Option {
	return func(m *Manager) { m.holder = holder }
}

// WithPendingBootstrap makes the manager report Initializing from
// construction until Bootstrap completes, so requests served before the
// bootstrap goroutine runs are not treated as anonymous.
func WithPendingBootstrap() Option {
	return func(m *Manager) { m.initializing = true }
}

// WithListener registers a callback for state transitions. Listeners run
// outside the manager lock in the order transitions happened, and must not
// call Login, Logout or Refresh synchronously.
func WithListener(fn func(Transition)) Option {
	return func(m *Manager) { m.listeners = append(m.listeners, fn) }
}

// Manager owns the session lifecycle: the held credential, the proactive
// refresh timer, the derived state and the cached profile.
//
// Every credential change bumps generation. Refresh results and timer
// callbacks carry the generation they started under and are dropped when it
// no longer matches, so a logout always wins over a refresh in flight.
type Manager struct {
	auth      AuthService
	holder    CredentialStore
	clock     clockwork.Clock
	config    Config
	logger    zerolog.Logger
	listeners []func(Transition)

	profiles  *ProfileLoader
	scheduler *Scheduler
	flight    singleflight.Group
	metrics   *telemetry.Metrics

	// background is the parent of timer driven refreshes.
	background context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup

	mu           sync.Mutex
	generation   uint64
	epoch        uint64 // bumped on entering or leaving Authenticated
	initializing bool
	bootstrapped bool
	settled      bool // a login or logout has happened
	closed       bool
	profile      *models.UserProfile
	pending      []Transition

	notifyMu sync.Mutex
}

// NewManager creates a manager in the Unauthenticated state. Call Bootstrap
// once at startup to resume a session from the refresh cookie.
func NewManager(auth AuthService, profiles ProfileService, opts ...Option) (*Manager, error) {
	m := &Manager{
		auth:   auth,
		clock:  clockwork.NewRealClock(),
		config: DefaultConfig(),
		logger: log.Logger,
	}

	for _, opt := range opts {
		opt(m)
	}

	if err := m.config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid session config: %w", err)
	}

	if m.holder == nil {
		m.holder = NewHolder()
	}

	m.profiles = NewProfileLoader(profiles, m.config, m.logger)
	m.scheduler = NewScheduler(m.clock, m.config.SafetyMargin, m.onTimer)
	m.metrics = telemetry.GetMetrics()
	m.background, m.cancel = context.WithCancel(context.Background())

	return m, nil
}

// Holder returns the credential holder the manager writes to.
func (m *Manager) Holder() CredentialStore {
	return m.holder
}

// Scheduler exposes the refresh timer for inspection.
func (m *Manager) Scheduler() *Scheduler {
	return m.scheduler
}

// Bootstrap attempts one refresh to resume a session carried by the refresh
// cookie. The state reads Initializing until it completes. A failed refresh
// is not an error, the session simply settles as Unauthenticated.
func (m *Manager) Bootstrap(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrSessionClosed
	}
	if m.bootstrapped {
		m.mu.Unlock()
		return ErrAlreadyBootstrapped
	}
	m.bootstrapped = true
	if m.settled {
		// an explicit login or logout already decided the session
		m.mu.Unlock()
		return nil
	}
	m.initializing = true
	gen := m.generation
	m.mu.Unlock()

	_, err := m.refresh(ctx, gen, triggerBootstrap)
	switch {
	case err == nil:
		m.logger.Info().Msg("session resumed")
	case errors.Is(err, ErrSuperseded):
		m.logger.Debug().Msg("bootstrap superseded by login or logout")
	default:
		m.logger.Info().Err(err).Msg("no session to resume")
	}

	return nil
}

// Login installs a credential obtained from an interactive login and loads
// the user's profile.
func (m *Manager) Login(ctx context.Context, token string, expiresAt time.Time) error {
	cred, err := models.NewCredential(token, expiresAt)
	if err != nil {
		return err
	}
	return m.login(ctx, cred)
}

// LoginWithResponse is Login for a login endpoint response.
func (m *Manager) LoginWithResponse(ctx context.Context, resp *api.TokenResponse) error {
	cred, err := resp.Credential()
	if err != nil {
		return err
	}
	return m.login(ctx, cred)
}

func (m *Manager) login(ctx context.Context, cred *models.Credential) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrSessionClosed
	}

	now := m.clock.Now()
	if !cred.ValidAt(now) {
		m.mu.Unlock()
		return ErrExpiredCredential
	}

	// a login always starts a new session, the identity may have changed
	m.settled = true
	m.epoch++
	m.profile = nil
	immediate := m.installLocked(cred, now, ReasonLogin, false)
	gen, epoch := m.generation, m.epoch
	m.mu.Unlock()

	m.logger.Info().Str("credential", cred.Fingerprint()).Time("expires_at", cred.ExpiresAt).Msg("logged in")
	m.notify()

	if immediate {
		m.refreshAsync(gen)
	}

	m.loadProfile(ctx, epoch)

	return nil
}

// Logout ends the session. The timer is cancelled and the credential dropped
// before the server is told, and the server call is best effort. Calling it
// without a session is a no-op.
func (m *Manager) Logout(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrSessionClosed
	}

	// discard any refresh in flight, even when there is nothing to clear
	m.generation++
	m.settled = true

	cred, held := m.holder.Get()
	if !held && !m.initializing {
		m.mu.Unlock()
		return nil
	}

	m.endSessionLocked(m.clock.Now(), ReasonLogout)
	m.mu.Unlock()

	m.notify()

	if !held {
		return nil
	}

	m.logger.Info().Str("credential", cred.Fingerprint()).Msg("logged out")

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.config.LogoutTimeout)
	defer cancel()

	if err := m.auth.Logout(ctx, cred.Token); err != nil {
		m.logger.Warn().Err(err).Msg("server logout failed")
	}

	return nil
}

// Refresh exchanges the refresh cookie for a new credential now. Concurrent
// callers share one request.
func (m *Manager) Refresh(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrSessionClosed
	}
	gen := m.generation
	m.mu.Unlock()

	_, err := m.refresh(ctx, gen, triggerManual)
	return err
}

// RefreshUser reloads the profile of the current session.
func (m *Manager) RefreshUser(ctx context.Context) (*models.UserProfile, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrSessionClosed
	}
	if m.stateLocked(m.clock.Now()) != Authenticated {
		m.mu.Unlock()
		return nil, ErrNotAuthenticated
	}
	epoch := m.epoch
	m.mu.Unlock()

	return m.loadProfile(ctx, epoch)
}

// State returns the current state, evaluated against the clock on every call.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stateLocked(m.clock.Now())
}

// Initializing reports whether the bootstrap refresh is outstanding.
func (m *Manager) Initializing() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.initializing
}

// Profile returns the cached profile, nil unless Authenticated.
func (m *Manager) Profile() *models.UserProfile {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stateLocked(m.clock.Now()) != Authenticated {
		return nil
	}
	return m.profile
}

// Snapshot is a point in time view of the session.
type Snapshot struct {
	State        State               `json:"state"`
	Initializing bool                `json:"initializing"`
	ExpiresAt    *time.Time          `json:"expiresAt,omitempty"`
	RefreshAt    *time.Time          `json:"refreshAt,omitempty"`
	Profile      *models.UserProfile `json:"profile,omitempty"`
}

// Snapshot returns the state, expiry and profile read under one lock.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := Snapshot{
		State:        m.stateLocked(m.clock.Now()),
		Initializing: m.initializing,
	}
	if snap.State != Authenticated {
		return snap
	}

	if cred, ok := m.holder.Get(); ok {
		expiresAt := cred.ExpiresAt
		snap.ExpiresAt = &expiresAt
	}
	if deadline, ok := m.scheduler.Deadline(); ok {
		snap.RefreshAt = &deadline
	}
	snap.Profile = m.profile

	return snap
}

// Close stops the refresh timer and waits for background refreshes. The held
// credential is left untouched.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.generation++
	m.scheduler.Cancel()
	m.mu.Unlock()

	m.cancel()
	m.wg.Wait()

	return nil
}

// refresh runs a single flighted refresh for generation gen and applies the
// result unless the session changed underneath it.
func (m *Manager) refresh(ctx context.Context, gen uint64, trigger string) (*models.Credential, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrSessionClosed
	}
	m.mu.Unlock()

	// the exchange is shared, a caller giving up must not fail it for the
	// others, only Close cancels it
	ch := m.flight.DoChan(refreshKey, func() (any, error) {
		flightCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		defer cancel()
		stop := context.AfterFunc(m.background, cancel)
		defer stop()

		return m.doRefresh(flightCtx, gen, trigger)
	})

	select {
	case res := <-ch:
		if res.Shared {
			m.logger.Debug().Str("trigger", trigger).Msg("joined in-flight refresh")
		}
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*models.Credential), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (m *Manager) doRefresh(ctx context.Context, gen uint64, trigger string) (*models.Credential, error) {
	m.mu.Lock()
	if gen != m.generation {
		m.mu.Unlock()
		m.discarded(ctx, trigger)
		return nil, ErrSuperseded
	}
	m.mu.Unlock()

	start := m.clock.Now()

	cred, err := m.exchange(ctx)

	m.metrics.RefreshDuration.Record(ctx, float64(m.clock.Since(start).Milliseconds()),
		metric.WithAttributes(attribute.String("trigger", trigger)))

	m.mu.Lock()
	if m.closed || gen != m.generation {
		m.mu.Unlock()
		m.discarded(ctx, trigger)
		return nil, ErrSuperseded
	}

	now := m.clock.Now()

	if err != nil {
		reason := ReasonRefreshFailed
		switch {
		case trigger == triggerBootstrap:
			reason = ReasonBootstrapFailed
		case m.lapsedLocked(now):
			reason = ReasonExpired
		}
		m.endSessionLocked(now, reason)
		m.mu.Unlock()

		m.refreshResult(ctx, trigger, "failure")
		m.logger.Warn().Err(err).Str("trigger", trigger).Msg("credential refresh failed")
		m.notify()

		return nil, fmt.Errorf("refresh failed: %w", err)
	}

	entering := m.stateLocked(now) != Authenticated
	if entering {
		m.epoch++
		m.profile = nil
	}

	reason := ReasonRefresh
	if trigger == triggerBootstrap {
		reason = ReasonBootstrap
	}
	m.installLocked(cred, now, reason, true)
	epoch := m.epoch
	m.mu.Unlock()

	m.refreshResult(ctx, trigger, "success")
	m.logger.Debug().
		Str("trigger", trigger).
		Str("credential", cred.Fingerprint()).
		Time("expires_at", cred.ExpiresAt).
		Msg("credential refreshed")
	m.notify()

	if entering {
		m.loadProfile(ctx, epoch)
	}

	return cred, nil
}

func (m *Manager) exchange(ctx context.Context) (*models.Credential, error) {
	resp, err := m.auth.RefreshToken(ctx)
	if err != nil {
		return nil, err
	}

	cred, err := resp.Credential()
	if err != nil {
		return nil, err
	}

	if !cred.ValidAt(m.clock.Now()) {
		return nil, ErrExpiredCredential
	}

	return cred, nil
}

// installLocked stores cred and re-arms the timer for it in one step. It
// reports whether the refresh is already due. A credential returned by a
// refresh is never refreshed again straight away, that would loop against a
// server issuing short lived tokens.
func (m *Manager) installLocked(cred *models.Credential, now time.Time, reason string, fromRefresh bool) (immediate bool) {
	from := m.stateLocked(now)

	m.generation++
	m.initializing = false
	m.holder.Set(cred)

	immediate = m.scheduler.Arm(m.generation, cred.ExpiresAt)
	if immediate && fromRefresh {
		delay := max(cred.ExpiresAt.Sub(now)/2, minRefreshDelay)
		m.scheduler.ArmIn(m.generation, delay)
		immediate = false
	}

	m.recordLocked(from, Authenticated, reason, now)

	return immediate
}

// endSessionLocked clears everything tied to the current session.
func (m *Manager) endSessionLocked(now time.Time, reason string) {
	from := m.stateLocked(now)
	if m.lapsedLocked(now) {
		// listeners last saw Authenticated, expiry itself is not reported
		from = Authenticated
	}

	m.scheduler.Cancel()
	m.generation++
	m.epoch++
	m.initializing = false
	m.holder.Clear()
	m.profile = nil

	m.recordLocked(from, Unauthenticated, reason, now)
}

// lapsedLocked reports whether the held credential expired while waiting
// for its refresh.
func (m *Manager) lapsedLocked(now time.Time) bool {
	cred, ok := m.holder.Get()
	return ok && !m.initializing && !cred.ValidAt(now)
}

func (m *Manager) stateLocked(now time.Time) State {
	if m.initializing {
		return Initializing
	}
	cred, _ := m.holder.Get()
	return Evaluate(cred, now)
}

func (m *Manager) recordLocked(from, to State, reason string, now time.Time) {
	// refreshes are reported even though the state does not change
	if from == to && reason != ReasonRefresh && reason != ReasonLogin {
		return
	}
	m.pending = append(m.pending, Transition{From: from, To: to, Reason: reason, At: now})
}

// notify delivers queued transitions. notifyMu keeps deliveries from
// concurrent operations in the order they were recorded.
func (m *Manager) notify() {
	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()

	m.mu.Lock()
	pending := m.pending
	m.pending = nil
	m.mu.Unlock()

	for _, t := range pending {
		m.metrics.TransitionsTotal.Add(context.Background(), 1,
			metric.WithAttributes(attribute.String("to", t.To.String()), attribute.String("reason", t.Reason)))

		m.logger.Debug().
			Stringer("from", t.From).
			Stringer("to", t.To).
			Str("reason", t.Reason).
			Msg("session transition")

		for _, fn := range m.listeners {
			fn(t)
		}
	}
}

// onTimer is the scheduler callback.
func (m *Manager) onTimer(gen uint64) {
	m.mu.Lock()
	if m.closed || gen != m.generation {
		m.mu.Unlock()
		return
	}

	// a process suspended past expiry still refreshes, the refresh cookie
	// may outlive the access token
	m.wg.Add(1)
	m.mu.Unlock()
	defer m.wg.Done()

	if _, err := m.refresh(m.background, gen, triggerScheduled); err != nil && !errors.Is(err, ErrSuperseded) {
		m.logger.Debug().Err(err).Msg("scheduled refresh ended the session")
	}
}

// refreshAsync refreshes a credential installed already inside the margin.
func (m *Manager) refreshAsync(gen uint64) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.wg.Add(1)
	m.mu.Unlock()

	go func() {
		defer m.wg.Done()
		if _, err := m.refresh(m.background, gen, triggerImmediate); err != nil && !errors.Is(err, ErrSuperseded) {
			m.logger.Debug().Err(err).Msg("immediate refresh ended the session")
		}
	}()
}

// loadProfile fetches the profile for session epoch and caches it unless the
// session has moved on. A failure leaves the profile empty.
func (m *Manager) loadProfile(ctx context.Context, epoch uint64) (*models.UserProfile, error) {
	profile, err := m.profiles.Load(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()

	if epoch != m.epoch {
		m.logger.Debug().Msg("discarding profile for a finished session")
		return nil, ErrSuperseded
	}

	if err != nil {
		m.profile = nil
		m.logger.Warn().Err(err).Msg("failed to load user profile")
		return nil, err
	}

	m.profile = profile
	return profile, nil
}

func (m *Manager) refreshResult(ctx context.Context, trigger, result string) {
	m.metrics.RefreshTotal.Add(ctx, 1,
		metric.WithAttributes(attribute.String("trigger", trigger), attribute.String("result", result)))
}

func (m *Manager) discarded(ctx context.Context, trigger string) {
	m.metrics.RefreshDiscarded.Add(ctx, 1, metric.WithAttributes(attribute.String("trigger", trigger)))
	m.logger.Debug().Str("trigger", trigger).Msg("discarding stale refresh")
}
