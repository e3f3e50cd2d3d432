// internal/game/engine_adapter.go
package game

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	engine "github.com/phaseten/phaseten/engine"
	"github.com/phaseten/phaseten/internal/database"
)

// PlayerAction is a player_action request as received from a client.
type PlayerAction struct {
	Action      string    `json:"action"`
	PlayerID    uuid.UUID `json:"player_id,omitempty"`
	CardID      int       `json:"card_id,omitempty"`
	To          uuid.UUID `json:"to,omitempty"`
	Cards       []int     `json:"cards,omitempty"`
	PhaseDeckID int       `json:"phase_deck_id,omitempty"`
	Direction   string    `json:"direction,omitempty"`
}

// HandleAction applies one player action for userID.
func (s *Session) HandleAction(ctx context.Context, userID uuid.UUID, pa PlayerAction) error {
	return s.Do(ctx, func() error {
		seat, err := s.playableSeat(userID)
		if err != nil {
			return err
		}
		a, err := s.toEngineAction(seat, pa)
		if err != nil {
			return err
		}
		return s.applyEngine(seat, a)
	})
}

// playableSeat resolves userID to a seat of a running session.
func (s *Session) playableSeat(userID uuid.UUID) (int, error) {
	if s.memberIndex(userID) < 0 {
		return 0, engine.ErrNotMember
	}
	if s.Errored {
		return 0, engine.ErrSessionErrored
	}
	if s.Engine == nil {
		return 0, engine.ErrNotStarted
	}
	seat, ok := s.PlayerToEngine[userID]
	if !ok {
		return 0, engine.ErrPlayerNotFound
	}
	return seat, nil
}

// toEngineAction translates client ids into engine seats.
func (s *Session) toEngineAction(seat int, pa PlayerAction) (engine.Action, error) {
	if pa.PlayerID != uuid.Nil {
		if m, _ := s.member(s.EngineToPlayer[seat]); m.PlayerID != pa.PlayerID {
			return engine.Action{}, engine.ErrUnauthorized.Withf("player %s is not yours", pa.PlayerID)
		}
	}
	a := engine.Action{
		Kind:   engine.ActionKind(pa.Action),
		CardID: pa.CardID,
		Cards:  pa.Cards,
		DeckID: pa.PhaseDeckID,
		Target: -1,
	}
	switch a.Kind {
	case engine.ActionDrawDeck, engine.ActionDrawDiscard, engine.ActionDiscard,
		engine.ActionCompletePhase, engine.ActionSortByColor, engine.ActionSortByRank:
	case engine.ActionPutDown:
		dir, err := engine.ParseDirection(pa.Direction)
		if err != nil {
			return engine.Action{}, engine.ErrBadDirection.Withf("bad direction %q", pa.Direction)
		}
		a.Direction = dir
	case engine.ActionSkipPlayer:
		target, ok := s.seatOf(pa.To)
		if !ok {
			return engine.Action{}, engine.ErrInvalidTarget.Withf("no player %s in this game", pa.To)
		}
		a.Target = target
	default:
		return engine.Action{}, engine.ErrUnknownAction.Withf("unknown action %q", pa.Action)
	}
	return a, nil
}

// seatOf accepts either a player id or a user id.
func (s *Session) seatOf(id uuid.UUID) (int, bool) {
	if id == uuid.Nil {
		return 0, false
	}
	for _, m := range s.Members {
		if m.PlayerID == id || m.UserID == id {
			seat, ok := s.PlayerToEngine[m.UserID]
			return seat, ok
		}
	}
	return 0, false
}

// applyEngine applies a to the engine and runs the post-action bookkeeping.
func (s *Session) applyEngine(seat int, a engine.Action) error {
	prevTurn, prevRound := s.Engine.TurnNumber, s.Engine.Round
	if err := s.Engine.Apply(seat, a); err != nil {
		s.log.Debugf("Game %s: Action %s from seat %d rejected: %v", s.ID, a.Kind, seat, err)
		return err
	}
	return s.afterEngineChange(seat, a, prevTurn, prevRound)
}

// afterEngineChange verifies the new state, records what happened and
// handles round and turn boundaries.
func (s *Session) afterEngineChange(seat int, a engine.Action, prevTurn, prevRound int) error {
	g := s.Engine
	if err := g.Verify(); err != nil {
		s.halt(err)
		return engine.ErrInvariant.Withf("game halted: %v", err)
	}
	actor := s.EngineToPlayer[seat]

	payload := map[string]interface{}{"turn": s.TurnID, "round": g.Round}
	switch a.Kind {
	case engine.ActionDiscard, engine.ActionSkipPlayer:
		payload["card"] = g.LastAction.Card.String()
	case engine.ActionCompletePhase, engine.ActionPutDown:
		payload["cards"] = a.Cards
	}
	if g.LastAction.Forced {
		payload["forced"] = true
	}
	s.logAction(actor, string(a.Kind), payload)

	if msg := s.describe(g.LastAction, a.Kind); msg != "" {
		s.LastMove = msg
		s.addMessage("", msg)
	}
	s.touch()

	if g.Round != prevRound || g.Over {
		s.onRoundEnd(prevRound)
	}
	if g.Over {
		s.finish()
		return nil
	}
	if g.TurnNumber != prevTurn {
		s.onTurnAdvanced()
	}
	return nil
}

// describe renders the last action for the message log. Sorting is private
// and produces no message.
func (s *Session) describe(la engine.LastAction, kind engine.ActionKind) string {
	if kind == engine.ActionSortByColor || kind == engine.ActionSortByRank {
		return ""
	}
	who := s.displayOfSeat(la.Player)
	prefix := who
	if la.Forced {
		prefix = who + " ran out of time and"
	}
	switch la.Kind {
	case engine.ActionDrawDeck:
		if la.Card.ID == 0 {
			return who + " ran out of time"
		}
		return prefix + " drew from the deck"
	case engine.ActionDrawDiscard:
		return fmt.Sprintf("%s took %s from the discard pile", prefix, la.Card)
	case engine.ActionDiscard:
		return fmt.Sprintf("%s discarded %s", prefix, la.Card)
	case engine.ActionSkipPlayer:
		return fmt.Sprintf("%s skipped %s", who, s.displayOfSeat(la.Target))
	case engine.ActionCompletePhase:
		return fmt.Sprintf("%s completed phase %d", who, s.Engine.Players[la.Player].PhaseIndex+1)
	case engine.ActionPutDown:
		return fmt.Sprintf("%s put down cards on %s's phase", who, s.displayOfSeat(la.Target))
	}
	return ""
}

func (s *Session) onRoundEnd(prevRound int) {
	g := s.Engine
	if g.WentOut >= 0 {
		s.addMessage("", fmt.Sprintf("%s went out and ended round %d", s.displayOfSeat(g.WentOut), prevRound+1))
	}
	scores := make([]string, 0, len(g.Players))
	for seat, ps := range g.Players {
		scores = append(scores, fmt.Sprintf("%s %d", s.displayOfSeat(seat), ps.Score))
	}
	s.addMessage("", "Scores: "+strings.Join(scores, ", "))
	s.logAction(uuid.Nil, "round_end", map[string]interface{}{"round": prevRound, "went_out": g.WentOut})
	if !g.Over {
		s.addMessage("", fmt.Sprintf("Round %d begins", g.Round+1))
	}
	s.touchLobby()
}

// onTurnAdvanced is called after the engine passed the turn on. It re-arms
// the turn clock and queues the next_player notice.
func (s *Session) onTurnAdvanced() {
	s.TurnID++
	s.turnNotice = true
	s.armDeadline()
	s.log.Debugf("Game %s: Turn %d starting for seat %d.", s.ID, s.TurnID, s.Engine.CurrentPlayer)
}

// driveBots plays every consecutive bot turn.
func (s *Session) driveBots() {
	for steps := 0; steps < maxBotSteps; steps++ {
		if !s.InProgress || s.Errored || s.Engine == nil {
			return
		}
		seat := s.Engine.CurrentPlayer
		if !s.Engine.Players[seat].IsBot {
			return
		}
		a, ok := s.brain.NextAction(s.Engine, seat)
		if ok {
			err := s.applyEngine(seat, a)
			if err == nil {
				continue
			}
			s.log.Warnf("Game %s: Bot at seat %d chose an illegal %s: %v", s.ID, seat, a.Kind, err)
			if s.Errored {
				return
			}
		}
		if err := s.forceTimeout(); err != nil {
			s.log.Errorf("Game %s: Could not pass bot turn at seat %d: %v", s.ID, seat, err)
			return
		}
	}
	s.log.Warnf("Game %s: Bots took %d actions without reaching a human turn.", s.ID, maxBotSteps)
}

// finish records the end of the game.
func (s *Session) finish() {
	g := s.Engine
	s.InProgress = false
	s.Finished = true
	s.Deadline = time.Time{}
	if s.timer != nil {
		s.timer.Disarm(s.ID)
	}
	if g.Winner >= 0 {
		s.Winner = s.EngineToPlayer[g.Winner]
		s.addMessage("", fmt.Sprintf("%s won the game", s.displayOfSeat(g.Winner)))
	}
	s.logAction(uuid.Nil, "game_end", map[string]interface{}{"winner": s.Winner.String(), "rounds": g.Round + 1})
	s.log.Infof("Game %s: Finished after %d rounds. Winner %s.", s.ID, g.Round+1, s.Winner)
	s.touchLobby()
	s.persistFinalGameState()
}

// halt marks the session errored after a broken invariant. The state is kept
// for inspection but no further actions are accepted.
func (s *Session) halt(cause error) {
	if s.Errored {
		return
	}
	s.Errored = true
	s.Deadline = time.Time{}
	if s.timer != nil {
		s.timer.Disarm(s.ID)
	}
	s.log.WithError(cause).Errorf("Game %s: Halting after internal error.", s.ID)
	s.addMessage("", "The game was stopped after an internal error")
	s.logAction(uuid.Nil, "game_error", map[string]interface{}{"error": cause.Error()})
	s.touchLobby()
}

// persistFinalGameState writes the result to the store in the background.
func (s *Session) persistFinalGameState() {
	if s.results == nil {
		return
	}
	g := s.Engine
	res := database.GameResult{
		GameID:     s.ID,
		HostID:     s.HostID,
		Winner:     s.Winner,
		Rounds:     g.Round + 1,
		Phases:     engine.PhaseStrings(s.Phases),
		FinishedAt: s.now(),
	}
	for seat, ps := range g.Players {
		m, _ := s.member(s.EngineToPlayer[seat])
		res.Players = append(res.Players, database.PlayerResult{
			UserID:     m.UserID,
			Display:    m.Display,
			IsBot:      m.IsBot,
			PhaseIndex: ps.PhaseIndex,
			Score:      ps.Score,
		})
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.results.StoreGameResult(ctx, res); err != nil {
			s.log.WithError(err).Errorf("Game %s: Failed storing final result.", s.ID)
		}
	}()
}
