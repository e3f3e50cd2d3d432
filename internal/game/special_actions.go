// internal/game/special_actions.go
package game

import (
	"context"
	"time"

	"github.com/google/uuid"
	engine "github.com/phaseten/phaseten/engine"
	"github.com/phaseten/phaseten/internal/timeout"
)

var _ timeout.Target = (*Session)(nil)

// armDeadline sets the deadline of the current turn and registers it with
// the turn timer.
func (s *Session) armDeadline() {
	if !s.InProgress || s.Rules.TurnLimit <= 0 {
		s.Deadline = time.Time{}
		return
	}
	s.Deadline = s.now().Add(s.Rules.TurnLimit)
	if s.timer != nil {
		s.timer.Arm(s.ID, s.TurnID, s.Deadline, s)
	}
}

// ExpireTurn implements timeout.Target. The forced action is queued behind
// any request already waiting; a turn that has moved on is left alone.
func (s *Session) ExpireTurn(turnID int) {
	s.submit(func() error {
		if !s.InProgress || s.Errored || turnID != s.TurnID {
			s.log.Debugf("Game %s: Ignoring stale timeout for turn %d (now %d).", s.ID, turnID, s.TurnID)
			return nil
		}
		s.log.Infof("Game %s: Turn %d timed out for seat %d.", s.ID, turnID, s.Engine.CurrentPlayer)
		return s.forceTimeout()
	})
}

// SkipSlowPlayer lets any other member end the current turn once its
// deadline has passed.
func (s *Session) SkipSlowPlayer(ctx context.Context, userID uuid.UUID) error {
	return s.Do(ctx, func() error {
		if _, err := s.playableSeat(userID); err != nil {
			return err
		}
		if !s.InProgress {
			return engine.ErrGameFinished
		}
		if s.EngineToPlayer[s.Engine.CurrentPlayer] == userID {
			return engine.ErrInvalidTarget.Withf("you cannot skip your own turn")
		}
		if s.Deadline.IsZero() || s.now().Before(s.Deadline) {
			return engine.ErrTurnNotExpired
		}
		s.logAction(userID, "skip_slow_player", map[string]interface{}{"turn": s.TurnID})
		return s.forceTimeout()
	})
}

// forceTimeout resolves the current turn on the player's behalf.
func (s *Session) forceTimeout() error {
	g := s.Engine
	seat := g.CurrentPlayer
	prevTurn, prevRound := g.TurnNumber, g.Round
	if err := g.ForceTimeout(); err != nil {
		return err
	}
	return s.afterEngineChange(seat, engine.Action{Kind: g.LastAction.Kind}, prevTurn, prevRound)
}
