// internal/game/sync_state.go
package game

import (
	"time"

	"github.com/google/uuid"
	engine "github.com/phaseten/phaseten/engine"
)

// CardView is a card as sent to clients.
type CardView struct {
	ID    int    `json:"id"`
	Color string `json:"color"`
	Rank  string `json:"rank"`
}

// Message is one line of a game's message log. Author is empty for system
// messages.
type Message struct {
	Author    string    `json:"author"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// UserView identifies a member.
type UserView struct {
	ID       uuid.UUID `json:"id"`
	PlayerID uuid.UUID `json:"player_id"`
	Display  string    `json:"display_name"`
	IsBot    bool      `json:"is_bot"`
}

// PlayerSummary is the public state of one seat.
type PlayerSummary struct {
	ID             uuid.UUID `json:"id"`
	UserID         uuid.UUID `json:"user_id"`
	Display        string    `json:"display_name"`
	IsBot          bool      `json:"is_bot"`
	HandSize       int       `json:"hand_size"`
	PhaseIndex     int       `json:"phase_index"`
	Phase          string    `json:"phase,omitempty"`
	CompletedPhase bool      `json:"completed_phase"`
	DrewCard       bool      `json:"drew_card"`
	SkipCards      int       `json:"skip_cards"`
	Score          int       `json:"score"`
}

// PhaseDeckView is a group laid down on the table.
type PhaseDeckView struct {
	ID    int        `json:"id"`
	Owner uuid.UUID  `json:"owner"`
	Phase string     `json:"phase"`
	Deck  []CardView `json:"deck"`
}

// GameView is the public snapshot of a session, identical for every viewer.
type GameView struct {
	ID              uuid.UUID       `json:"id"`
	Host            uuid.UUID       `json:"host"`
	Users           []UserView      `json:"users"`
	Players         []PlayerSummary `json:"players"`
	PhaseList       []string        `json:"phase_list"`
	CurrentPlayer   *uuid.UUID      `json:"current_player,omitempty"`
	Winner          *uuid.UUID      `json:"winner,omitempty"`
	InProgress      bool            `json:"in_progress"`
	Finished        bool            `json:"finished"`
	Errored         bool            `json:"errored"`
	Discard         []CardView      `json:"discard"`
	DeckSize        int             `json:"deck_size"`
	PhaseDecks      []PhaseDeckView `json:"phase_decks"`
	MessageList     []Message       `json:"message_list"`
	LastMoveMade    string          `json:"last_move_made"`
	NextPlayerAlarm *time.Time      `json:"next_player_alarm,omitempty"`
	PlayerTimeLimit int             `json:"player_time_limit"` // seconds, 0 when off
	Round           int             `json:"round"`
	TurnID          int             `json:"turn_id"`
	Version         int64           `json:"version"`
}

// PlayerView is the private snapshot of one member.
type PlayerView struct {
	GameID         uuid.UUID  `json:"game_id"`
	ID             uuid.UUID  `json:"id"`
	UserID         uuid.UUID  `json:"user_id"`
	Display        string     `json:"display_name"`
	Hand           []CardView `json:"hand"`
	PhaseIndex     int        `json:"phase_index"`
	Phase          string     `json:"phase,omitempty"`
	CompletedPhase bool       `json:"completed_phase"`
	DrewCard       bool       `json:"drew_card"`
	SkipCards      int        `json:"skip_cards"`
	Score          int        `json:"score"`
	IsCurrent      bool       `json:"is_current"`
	Actions        []string   `json:"actions"`
	Version        int64      `json:"version"`
}

// Summary is a session's entry in the game list.
type Summary struct {
	ID         uuid.UUID  `json:"id"`
	Host       uuid.UUID  `json:"host"`
	HostName   string     `json:"host_name"`
	Users      []UserView `json:"users"`
	PhaseList  []string   `json:"phase_list"`
	InProgress bool       `json:"in_progress"`
	Finished   bool       `json:"finished"`
	Errored    bool       `json:"errored"`
	Created    time.Time  `json:"created"`
}

func cardView(c engine.Card) CardView {
	return CardView{ID: c.ID, Color: c.Color.String(), Rank: c.Rank.String()}
}

func cardViews(cards []engine.Card) []CardView {
	out := make([]CardView, len(cards))
	for i, c := range cards {
		out[i] = cardView(c)
	}
	return out
}

func (s *Session) userViews() []UserView {
	out := make([]UserView, len(s.Members))
	for i, m := range s.Members {
		out[i] = UserView{ID: m.UserID, PlayerID: m.PlayerID, Display: m.Display, IsBot: m.IsBot}
	}
	return out
}

// buildView assembles the public snapshot.
func (s *Session) buildView() GameView {
	v := GameView{
		ID:              s.ID,
		Host:            s.HostID,
		Users:           s.userViews(),
		PhaseList:       engine.PhaseStrings(s.Phases),
		InProgress:      s.InProgress,
		Finished:        s.Finished,
		Errored:         s.Errored,
		Discard:         []CardView{},
		PhaseDecks:      []PhaseDeckView{},
		MessageList:     append([]Message(nil), s.Messages...),
		LastMoveMade:    s.LastMove,
		PlayerTimeLimit: int(s.Rules.TurnLimit / time.Second),
		TurnID:          s.TurnID,
		Version:         s.Version,
	}
	if s.Winner != uuid.Nil {
		w := s.Winner
		v.Winner = &w
	}
	if !s.Deadline.IsZero() {
		d := s.Deadline
		v.NextPlayerAlarm = &d
	}

	g := s.Engine
	if g == nil {
		v.Players = make([]PlayerSummary, len(s.Members))
		for i, m := range s.Members {
			v.Players[i] = PlayerSummary{ID: m.PlayerID, UserID: m.UserID, Display: m.Display, IsBot: m.IsBot}
		}
		return v
	}

	v.Round = g.Round + 1
	v.DeckSize = len(g.DrawPile)
	v.Discard = cardViews(g.DiscardPile)
	if s.InProgress {
		cur := s.EngineToPlayer[g.CurrentPlayer]
		v.CurrentPlayer = &cur
	}
	v.Players = make([]PlayerSummary, len(g.Players))
	for seat, ps := range g.Players {
		m, _ := s.member(s.EngineToPlayer[seat])
		sum := PlayerSummary{
			ID:             m.PlayerID,
			UserID:         m.UserID,
			Display:        m.Display,
			IsBot:          m.IsBot,
			HandSize:       len(ps.Hand),
			PhaseIndex:     ps.PhaseIndex,
			CompletedPhase: ps.CompletedPhase,
			DrewCard:       ps.DrewCard,
			SkipCards:      len(ps.PendingSkips),
			Score:          ps.Score,
		}
		if ph := g.CurrentPhase(seat); ph != nil {
			sum.Phase = ph.String()
		}
		v.Players[seat] = sum
	}
	for _, d := range g.PhaseDecks {
		v.PhaseDecks = append(v.PhaseDecks, PhaseDeckView{
			ID:    d.ID,
			Owner: s.EngineToPlayer[d.Owner],
			Phase: d.Group.String(),
			Deck:  cardViews(d.Cards),
		})
	}
	return v
}

// buildPlayerView assembles userID's private snapshot. The engine must exist.
func (s *Session) buildPlayerView(userID uuid.UUID) PlayerView {
	m, _ := s.member(userID)
	pv := PlayerView{
		GameID:  s.ID,
		ID:      m.PlayerID,
		UserID:  userID,
		Display: m.Display,
		Hand:    []CardView{},
		Actions: []string{},
		Version: s.Version,
	}
	seat, ok := s.PlayerToEngine[userID]
	if !ok {
		return pv
	}
	g := s.Engine
	ps := g.Players[seat]
	pv.Hand = cardViews(ps.Hand)
	pv.PhaseIndex = ps.PhaseIndex
	pv.CompletedPhase = ps.CompletedPhase
	pv.DrewCard = ps.DrewCard
	pv.SkipCards = len(ps.PendingSkips)
	pv.Score = ps.Score
	pv.IsCurrent = s.InProgress && g.CurrentPlayer == seat
	if ph := g.CurrentPhase(seat); ph != nil {
		pv.Phase = ph.String()
	}
	if !s.Errored {
		for _, k := range g.LegalActions(seat) {
			pv.Actions = append(pv.Actions, string(k))
		}
	}
	return pv
}

func (s *Session) buildSummary() Summary {
	sum := Summary{
		ID:         s.ID,
		Host:       s.HostID,
		Users:      s.userViews(),
		PhaseList:  engine.PhaseStrings(s.Phases),
		InProgress: s.InProgress,
		Finished:   s.Finished,
		Errored:    s.Errored,
		Created:    s.Created,
	}
	if m, ok := s.member(s.HostID); ok {
		sum.HostName = m.Display
	}
	return sum
}
