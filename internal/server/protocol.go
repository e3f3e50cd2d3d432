// internal/server/protocol.go
package server

import (
	"errors"

	"github.com/google/uuid"
	engine "github.com/phaseten/phaseten/engine"
	"github.com/phaseten/phaseten/internal/game"
	"github.com/phaseten/phaseten/internal/users"
)

// Client -> server message types.
const (
	TypeConnection      = "connection"
	TypeDisconnection   = "disconnection"
	TypeNewUser         = "new_user"
	TypeGetUsers        = "get_users"
	TypeGetGames        = "get_games"
	TypeGetPlayer       = "get_player"
	TypeGetGame         = "get_game"
	TypeCreateGame      = "create_game"
	TypeJoinGame        = "join_game"
	TypeUnjoinGame      = "unjoin_game"
	TypeDeleteGame      = "delete_game"
	TypeStartGame       = "start_game"
	TypeAddBot          = "add_bot"
	TypeRemoveBot       = "remove_bot"
	TypeEditGamePhase   = "edit_game_phase"
	TypeSetTurnLimit    = "set_turn_limit"
	TypeEditDisplayName = "edit_display_name"
	TypePlayerAction    = "player_action"
	TypeSkipSlowPlayer  = "skip_slow_player"
)

// Server -> client message types not covered by game.GameEventType.
const (
	TypeRejection = "rejection"
)

// Message is the envelope of every client request. Ids are kept as strings
// so an empty value from a client is "absent" rather than a decode error.
type Message struct {
	Type   string `json:"type"`
	UserID string `json:"user_id,omitempty"`
	Token  string `json:"token,omitempty"`
	GameID string `json:"game_id,omitempty"`

	Name        string   `json:"name,omitempty"`
	DisplayName string   `json:"display_name,omitempty"`
	BotID       string   `json:"bot_id,omitempty"`
	Confirm     bool     `json:"confirm,omitempty"`
	NewPhase    []string `json:"new_phase,omitempty"`
	TurnLimit   *int     `json:"turn_limit,omitempty"` // seconds

	Action      string `json:"action,omitempty"`
	PlayerID    string `json:"player_id,omitempty"`
	CardID      int    `json:"card_id,omitempty"`
	To          string `json:"to,omitempty"`
	Cards       []int  `json:"cards,omitempty"`
	PhaseDeckID int    `json:"phase_deck_id,omitempty"`
	Direction   string `json:"direction,omitempty"`
}

// playerAction converts the action fields of m.
func (m Message) playerAction() (game.PlayerAction, error) {
	pa := game.PlayerAction{
		Action:      m.Action,
		CardID:      m.CardID,
		Cards:       m.Cards,
		PhaseDeckID: m.PhaseDeckID,
		Direction:   m.Direction,
	}
	var err error
	if pa.PlayerID, err = optionalID(m.PlayerID, engine.ErrPlayerNotFound); err != nil {
		return pa, err
	}
	if pa.To, err = optionalID(m.To, engine.ErrInvalidTarget); err != nil {
		return pa, err
	}
	return pa, nil
}

// optionalID parses s, returning uuid.Nil when s is empty and notFound when
// it is malformed.
func optionalID(s string, notFound *engine.Error) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, nil
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, notFound.Withf("malformed id %q", s)
	}
	return id, nil
}

// requiredID is optionalID with an empty value treated as not found.
func requiredID(s string, notFound *engine.Error) (uuid.UUID, error) {
	id, err := optionalID(s, notFound)
	if err == nil && id == uuid.Nil {
		err = notFound
	}
	return id, err
}

// Rejection reports a refused request to the sender only.
type Rejection struct {
	Type    string `json:"type"`
	Request string `json:"request,omitempty"`
	GameID  string `json:"game_id,omitempty"`
	Message string `json:"message"`
	Kind    string `json:"kind"`
	Code    string `json:"code"`
}

func rejection(m Message, err error) Rejection {
	r := Rejection{
		Type:    TypeRejection,
		Request: m.Type,
		GameID:  m.GameID,
		Message: err.Error(),
		Kind:    string(engine.KindOf(err)),
		Code:    engine.CodeOf(err),
	}
	var ee *engine.Error
	if !errors.As(err, &ee) {
		// Internal details stay in the log.
		r.Message = "internal error"
	}
	return r
}

// NewUserReply answers new_user with the caller's identity and token.
type NewUserReply struct {
	Type  string     `json:"type"`
	User  users.User `json:"user"`
	Token string     `json:"token"`
}

// UsersReply carries the user directory.
type UsersReply struct {
	Type  string     `json:"type"`
	Users []UserInfo `json:"users"`
}

// UserInfo is a directory entry with presence.
type UserInfo struct {
	users.User
	Online bool `json:"online"`
}

// GamesReply carries the full game list.
type GamesReply struct {
	Type  string         `json:"type"`
	Games []game.Summary `json:"games"`
}

// CreateGameReply answers create_game.
type CreateGameReply struct {
	Type   string        `json:"type"`
	GameID uuid.UUID     `json:"game_id"`
	Game   game.GameView `json:"game"`
}
