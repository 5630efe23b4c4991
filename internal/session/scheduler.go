package session

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// SafetyMargin is how long before expiry a credential is refreshed.
const SafetyMargin = 30 * time.Second

// Delay returns how long to wait before refreshing a credential expiring at
// expiresAt. A wall clock that moved backwards or a credential already inside
// the margin both yield zero.
func Delay(expiresAt, now time.Time, margin time.Duration) time.Duration {
	d := expiresAt.Sub(now) - margin
	if d < 0 {
		return 0
	}
	return d
}

// Scheduler owns the single proactive refresh timer. Arming always stops the
// previous timer first, so at most one is ever pending.
type Scheduler struct {
	clock  clockwork.Clock
	margin time.Duration
	fire   func(generation uint64)

	mu       sync.Mutex
	timer    clockwork.Timer
	seq      uint64
	deadline time.Time
}

// NewScheduler creates a scheduler which calls fire with the generation a
// timer was armed for when it expires.
func NewScheduler(clock clockwork.Clock, margin time.Duration, fire func(generation uint64)) *Scheduler {
	return &Scheduler{
		clock:  clock,
		margin: margin,
		fire:   fire,
	}
}

// Arm replaces any pending timer with one firing margin before expiresAt.
// It returns true when the refresh is already due, in which case nothing is
// armed and the caller is expected to refresh straight away.
func (s *Scheduler) Arm(generation uint64, expiresAt time.Time) (immediate bool) {
	now := s.clock.Now()
	delay := Delay(expiresAt, now, s.margin)
	if delay <= 0 {
		s.Cancel()
		return true
	}
	s.arm(generation, now, delay)
	return false
}

// ArmIn replaces any pending timer with one firing after delay.
func (s *Scheduler) ArmIn(generation uint64, delay time.Duration) {
	s.arm(generation, s.clock.Now(), delay)
}

func (s *Scheduler) arm(generation uint64, now time.Time, delay time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopLocked()

	s.seq++
	seq := s.seq
	s.deadline = now.Add(delay)
	s.timer = s.clock.AfterFunc(delay, func() {
		s.expired(seq, generation)
	})
}

func (s *Scheduler) expired(seq, generation uint64) {
	s.mu.Lock()
	// a timer stopped after its callback was already scheduled
	if s.timer == nil || seq != s.seq {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	s.deadline = time.Time{}
	s.mu.Unlock()

	s.fire(generation)
}

// Cancel stops the pending timer, if any.
func (s *Scheduler) Cancel() {
	s.mu.Lock()
	s.stopLocked()
	s.mu.Unlock()
}

func (s *Scheduler) stopLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	// invalidate callbacks which lost the race with Stop
	s.seq++
	s.deadline = time.Time{}
}

// Deadline reports when the pending timer fires.
func (s *Scheduler) Deadline() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deadline, s.timer != nil
}

// Armed returns the number of pending timers, which is zero or one.
func (s *Scheduler) Armed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		return 1
	}
	return 0
}
