// internal/game/membership.go
package game

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	engine "github.com/phaseten/phaseten/engine"
)

// requireLobby checks that userID may change the table before the deal.
func (s *Session) requireLobby(userID uuid.UUID, hostOnly bool) error {
	if s.memberIndex(userID) < 0 {
		return engine.ErrNotMember
	}
	if hostOnly && userID != s.HostID {
		return engine.ErrNotHost
	}
	if s.Finished {
		return engine.ErrGameFinished
	}
	if s.InProgress || s.Errored {
		return engine.ErrAlreadyStarted
	}
	return nil
}

// Join seats a user before the game starts.
func (s *Session) Join(ctx context.Context, who Identity) error {
	return s.Do(ctx, func() error {
		if s.Finished {
			return engine.ErrGameFinished
		}
		if s.InProgress || s.Errored {
			return engine.ErrAlreadyStarted
		}
		if s.memberIndex(who.ID) >= 0 {
			return engine.ErrAlreadyJoined
		}
		if s.Rules.MaxPlayers > 0 && len(s.Members) >= s.Rules.MaxPlayers {
			return engine.ErrGameFull
		}
		s.Members = append(s.Members, Member{PlayerID: uuid.New(), UserID: who.ID, Display: who.Display})
		s.addMessage("", fmt.Sprintf("%s joined the game", who.Display))
		s.logAction(who.ID, "player_join", map[string]interface{}{"display": who.Display})
		s.log.Infof("Game %s: Player %s (%s) joined.", s.ID, who.ID, who.Display)
		s.touchLobby()
		return nil
	})
}

// Leave removes a user before the game starts. It reports true when the
// leaver is the host: the session is then marked deleted and refuses every
// later request, and the caller drops it. Leaving a started game changes
// nothing.
func (s *Session) Leave(ctx context.Context, userID uuid.UUID) (hostLeft bool, err error) {
	err = s.Do(ctx, func() error {
		i := s.memberIndex(userID)
		if i < 0 {
			return engine.ErrNotMember
		}
		if s.InProgress || s.Finished || s.Errored {
			return nil
		}
		if userID == s.HostID {
			hostLeft = true
			s.deleted = true
			s.logAction(userID, "game_delete", nil)
			return nil
		}
		m := s.Members[i]
		s.Members = append(s.Members[:i:i], s.Members[i+1:]...)
		s.addMessage("", fmt.Sprintf("%s left the game", m.Display))
		s.logAction(userID, "player_leave", nil)
		s.log.Infof("Game %s: Player %s left.", s.ID, userID)
		s.touchLobby()
		return nil
	})
	return hostLeft, err
}

// Delete marks the session deleted on the host's request. A game in
// progress needs confirm. The check and the mark happen in one request so a
// concurrent start cannot slip between them.
func (s *Session) Delete(ctx context.Context, userID uuid.UUID, confirm bool) error {
	return s.Do(ctx, func() error {
		if userID != s.HostID {
			return engine.ErrNotHost
		}
		if s.InProgress && !confirm {
			return engine.ErrConfirmRequired
		}
		s.deleted = true
		s.logAction(userID, "game_delete", nil)
		return nil
	})
}

// AddBot seats a bot. Host only, before the start.
func (s *Session) AddBot(ctx context.Context, userID uuid.UUID) (Member, error) {
	var bot Member
	err := s.Do(ctx, func() error {
		if err := s.requireLobby(userID, true); err != nil {
			return err
		}
		if s.Rules.MaxPlayers > 0 && len(s.Members) >= s.Rules.MaxPlayers {
			return engine.ErrGameFull
		}
		s.botSeq++
		bot = Member{
			PlayerID: uuid.New(),
			UserID:   uuid.New(),
			Display:  fmt.Sprintf("Bot %d", s.botSeq),
			IsBot:    true,
		}
		s.Members = append(s.Members, bot)
		s.addMessage("", fmt.Sprintf("%s joined the game", bot.Display))
		s.logAction(userID, "bot_add", map[string]interface{}{"bot": bot.UserID.String()})
		s.touchLobby()
		return nil
	})
	return bot, err
}

// RemoveBot removes a bot by its user or player id. Host only, before the
// start.
func (s *Session) RemoveBot(ctx context.Context, userID, botID uuid.UUID) error {
	return s.Do(ctx, func() error {
		if err := s.requireLobby(userID, true); err != nil {
			return err
		}
		for i, m := range s.Members {
			if !m.IsBot || (m.UserID != botID && m.PlayerID != botID) {
				continue
			}
			s.Members = append(s.Members[:i:i], s.Members[i+1:]...)
			s.addMessage("", fmt.Sprintf("%s left the game", m.Display))
			s.logAction(userID, "bot_remove", map[string]interface{}{"bot": m.UserID.String()})
			s.touchLobby()
			return nil
		}
		return engine.ErrPlayerNotFound.Withf("no bot %s in this game", botID)
	})
}

// EditPhases replaces the phase list. Host only, before the start.
func (s *Session) EditPhases(ctx context.Context, userID uuid.UUID, phases []string) error {
	return s.Do(ctx, func() error {
		if err := s.requireLobby(userID, true); err != nil {
			return err
		}
		if len(phases) == 0 {
			return engine.ErrInvalidPhase.Withf("phase list is empty")
		}
		parsed, err := engine.ParsePhases(phases)
		if err != nil {
			return err
		}
		if err := engine.CheckPhasesFit(parsed, s.Rules.HandSize); err != nil {
			return err
		}
		s.Phases = parsed
		s.addMessage("", fmt.Sprintf("Phases changed to %v", engine.PhaseStrings(parsed)))
		s.logAction(userID, "edit_phases", map[string]interface{}{"phases": engine.PhaseStrings(parsed)})
		s.touchLobby()
		return nil
	})
}

// SetTurnLimit changes the per-turn time limit; zero disables it. Host only,
// before the start.
func (s *Session) SetTurnLimit(ctx context.Context, userID uuid.UUID, limit time.Duration) error {
	return s.Do(ctx, func() error {
		if err := s.requireLobby(userID, true); err != nil {
			return err
		}
		if limit < 0 {
			return engine.ErrInvalidSetting.Withf("turn limit must not be negative")
		}
		s.Rules.TurnLimit = limit
		s.logAction(userID, "set_turn_limit", map[string]interface{}{"seconds": int(limit / time.Second)})
		s.touchLobby()
		return nil
	})
}

// Rename updates a member's display name. Unknown users are ignored.
func (s *Session) Rename(ctx context.Context, userID uuid.UUID, display string) error {
	return s.Do(ctx, func() error {
		i := s.memberIndex(userID)
		if i < 0 || s.Members[i].Display == display {
			return nil
		}
		s.Members[i].Display = display
		s.touchLobby()
		return nil
	})
}

// Start deals the first round. Host only.
func (s *Session) Start(ctx context.Context, userID uuid.UUID) error {
	return s.Do(ctx, func() error {
		if err := s.requireLobby(userID, true); err != nil {
			return err
		}
		if need := max(s.Rules.MinPlayers, 2); len(s.Members) < need {
			return engine.ErrNotEnoughPlayers.Withf("need at least %d players, have %d", need, len(s.Members))
		}

		seed := s.seed()
		g, err := engine.NewGame(seed, s.Rules, s.Phases, len(s.Members))
		if err != nil {
			return err
		}
		s.EngineToPlayer = make([]uuid.UUID, len(s.Members))
		for i, m := range s.Members {
			g.Players[i].IsBot = m.IsBot
			s.PlayerToEngine[m.UserID] = i
			s.EngineToPlayer[i] = m.UserID
		}
		g.Deal()
		if err := g.Verify(); err != nil {
			return fmt.Errorf("deal: %w", err)
		}

		s.Engine = g
		s.InProgress = true
		s.addMessage("", fmt.Sprintf("The game has started with %d players", len(s.Members)))
		s.logAction(userID, "game_start", map[string]interface{}{"seed": seed, "players": len(s.Members)})
		s.log.Infof("Game %s: Started with %d players (seed %d).", s.ID, len(s.Members), seed)
		s.touchLobby()
		s.onTurnAdvanced()
		return nil
	})
}
