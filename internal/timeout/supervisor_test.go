package timeout

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingTarget struct {
	mu    sync.Mutex
	fired []int
}

func (r *recordingTarget) ExpireTurn(turnID int) {
	r.mu.Lock()
	r.fired = append(r.fired, turnID)
	r.mu.Unlock()
}

func (r *recordingTarget) turns() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.fired...)
}

func TestFiresAfterDeadline(t *testing.T) {
	clock := NewManualClock(time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC))
	s := NewSupervisor(250*time.Millisecond, clock)
	target := &recordingTarget{}
	id := uuid.New()

	s.Arm(id, 4, clock.Now().Add(30*time.Second), target)

	assert.Zero(t, s.Tick(clock.Advance(29*time.Second)))
	assert.Empty(t, target.turns())

	assert.Equal(t, 1, s.Tick(clock.Advance(2*time.Second)))
	assert.Equal(t, []int{4}, target.turns())

	// Fired entries are gone until re-armed.
	assert.Zero(t, s.Tick(clock.Advance(time.Minute)))
	_, _, ok := s.Deadline(id)
	assert.False(t, ok)
}

func TestArmReplacesAndDisarmRemoves(t *testing.T) {
	clock := NewManualClock(time.Unix(1000, 0))
	s := NewSupervisor(time.Second, clock)
	target := &recordingTarget{}
	id := uuid.New()

	s.Arm(id, 1, clock.Now().Add(time.Second), target)
	s.Arm(id, 2, clock.Now().Add(10*time.Second), target)
	deadline, turn, ok := s.Deadline(id)
	require.True(t, ok)
	assert.Equal(t, 2, turn)
	assert.Equal(t, clock.Now().Add(10*time.Second), deadline)

	assert.Zero(t, s.Tick(clock.Advance(5*time.Second)))

	s.Disarm(id)
	assert.Zero(t, s.Tick(clock.Advance(time.Hour)))
	assert.Empty(t, target.turns())
}

func TestTickFiresOnlyExpiredSessions(t *testing.T) {
	clock := NewManualClock(time.Unix(0, 0))
	s := NewSupervisor(time.Second, clock)
	early, late := &recordingTarget{}, &recordingTarget{}
	s.Arm(uuid.New(), 7, clock.Now().Add(time.Second), early)
	s.Arm(uuid.New(), 9, clock.Now().Add(time.Minute), late)

	assert.Equal(t, 1, s.Tick(clock.Advance(time.Second)))
	assert.Equal(t, []int{7}, early.turns())
	assert.Empty(t, late.turns())
}

func TestRunStopsOnCancel(t *testing.T) {
	s := NewSupervisor(time.Millisecond, nil)
	target := &recordingTarget{}
	s.Arm(uuid.New(), 1, time.Now().Add(-time.Second), target)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return len(target.turns()) == 1 }, time.Second, time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
