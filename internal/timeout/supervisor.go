// internal/timeout/supervisor.go
package timeout

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Target receives expiry notifications. ExpireTurn must only enqueue work;
// it is called from the supervisor goroutine.
type Target interface {
	ExpireTurn(turnID int)
}

// Clock is the time source the supervisor compares deadlines against.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock is the wall clock.
var SystemClock Clock = systemClock{}

type entry struct {
	turnID   int
	deadline time.Time
	target   Target
}

// Supervisor tracks one turn deadline per session and fires expired ones on
// a periodic tick.
type Supervisor struct {
	mu      sync.Mutex
	entries map[uuid.UUID]entry
	clock   Clock
	tick    time.Duration
	log     *logrus.Entry
}

// NewSupervisor returns a supervisor ticking every tick. A nil clock uses the
// wall clock.
func NewSupervisor(tick time.Duration, clock Clock) *Supervisor {
	if clock == nil {
		clock = SystemClock
	}
	return &Supervisor{
		entries: make(map[uuid.UUID]entry),
		clock:   clock,
		tick:    tick,
		log:     logrus.WithField("component", "timeout"),
	}
}

// Now reports the supervisor's clock.
func (s *Supervisor) Now() time.Time { return s.clock.Now() }

// Arm sets the deadline for sessionID's turn turnID, replacing any previous
// entry for that session.
func (s *Supervisor) Arm(sessionID uuid.UUID, turnID int, deadline time.Time, t Target) {
	s.mu.Lock()
	s.entries[sessionID] = entry{turnID: turnID, deadline: deadline, target: t}
	s.mu.Unlock()
}

// Disarm removes the entry for sessionID.
func (s *Supervisor) Disarm(sessionID uuid.UUID) {
	s.mu.Lock()
	delete(s.entries, sessionID)
	s.mu.Unlock()
}

// Deadline returns the armed deadline and turn for sessionID.
func (s *Supervisor) Deadline(sessionID uuid.UUID) (time.Time, int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[sessionID]
	return e.deadline, e.turnID, ok
}

// Tick fires every entry whose deadline is not after now and returns how
// many fired. Fired entries are removed; the session re-arms on its next
// turn advance.
func (s *Supervisor) Tick(now time.Time) int {
	type due struct {
		id uuid.UUID
		entry
	}
	var fire []due
	s.mu.Lock()
	for id, e := range s.entries {
		if !now.Before(e.deadline) {
			fire = append(fire, due{id, e})
			delete(s.entries, id)
		}
	}
	s.mu.Unlock()

	for _, d := range fire {
		s.log.Infof("Game %s: Turn %d expired at %s.", d.id, d.turnID, d.deadline.Format(time.RFC3339))
		d.target.ExpireTurn(d.turnID)
	}
	return len(fire)
}

// Run ticks until ctx is cancelled.
func (s *Supervisor) Run(ctx context.Context) error {
	t := time.NewTicker(s.tick)
	defer t.Stop()
	s.log.Infof("Timeout supervisor running every %s.", s.tick)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			s.Tick(s.clock.Now())
		}
	}
}
