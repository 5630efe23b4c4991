package session

import (
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

func TestDelay(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	tests := []struct {
		name      string
		expiresAt time.Time
		want      time.Duration
	}{
		{name: "an hour out", expiresAt: now.Add(time.Hour), want: time.Hour - SafetyMargin},
		{name: "exactly the margin", expiresAt: now.Add(SafetyMargin), want: 0},
		{name: "inside the margin", expiresAt: now.Add(10 * time.Second), want: 0},
		{name: "already expired", expiresAt: now.Add(-time.Hour), want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, Delay(tt.expiresAt, now, SafetyMargin))
		})
	}
}

type fired struct {
	mu   sync.Mutex
	gens []uint64
}

func (f *fired) record(gen uint64) {
	f.mu.Lock()
	f.gens = append(f.gens, gen)
	f.mu.Unlock()
}

func (f *fired) get() []uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]uint64(nil), f.gens...)
}

func TestScheduler_ArmReplacesPendingTimer(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	var f fired
	s := NewScheduler(clock, SafetyMargin, f.record)

	require.False(t, s.Arm(1, clock.Now().Add(time.Minute)))
	require.False(t, s.Arm(2, clock.Now().Add(2*time.Minute)))
	require.Equal(t, 1, s.Armed())

	deadline, ok := s.Deadline()
	require.True(t, ok)
	require.Equal(t, clock.Now().Add(2*time.Minute-SafetyMargin), deadline)

	// the first timer would have fired here
	clock.Advance(time.Minute)
	require.Never(t, func() bool { return len(f.get()) > 0 }, 50*time.Millisecond, 5*time.Millisecond)

	clock.Advance(time.Minute)
	require.Eventually(t, func() bool { return len(f.get()) == 1 }, time.Second, 5*time.Millisecond)
	require.Equal(t, []uint64{2}, f.get())
	require.Equal(t, 0, s.Armed())
}

func TestScheduler_ImmediateInsideMargin(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	var f fired
	s := NewScheduler(clock, SafetyMargin, f.record)

	require.False(t, s.Arm(1, clock.Now().Add(time.Hour)))
	require.True(t, s.Arm(2, clock.Now().Add(10*time.Second)))
	require.Equal(t, 0, s.Armed())

	_, ok := s.Deadline()
	require.False(t, ok)
}

func TestScheduler_Cancel(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	var f fired
	s := NewScheduler(clock, SafetyMargin, f.record)

	s.Arm(1, clock.Now().Add(time.Hour))
	s.Cancel()
	require.Equal(t, 0, s.Armed())

	clock.Advance(2 * time.Hour)
	require.Never(t, func() bool { return len(f.get()) > 0 }, 50*time.Millisecond, 5*time.Millisecond)
}
