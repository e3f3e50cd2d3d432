package engine

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failure for callers that need to map it onto a
// transport status.
type ErrorKind string

const (
	KindValidation ErrorKind = "validation"
	KindNotFound   ErrorKind = "not_found"
	KindConflict   ErrorKind = "conflict"
	KindInternal   ErrorKind = "internal"
)

// Error is the typed error returned by every game and lobby operation. Two
// errors match under errors.Is when their codes are equal, so the sentinels
// below can be compared against errors carrying a more specific message.
type Error struct {
	Kind ErrorKind
	Code string
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// Withf returns a copy of e carrying a more specific message.
func (e *Error) Withf(format string, args ...any) *Error {
	return &Error{Kind: e.Kind, Code: e.Code, Msg: fmt.Sprintf(format, args...)}
}

// KindOf extracts the ErrorKind of err, defaulting to KindInternal for errors
// that did not originate here.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// CodeOf extracts the machine readable code of err, or "internal".
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return "internal"
}

func newError(kind ErrorKind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Msg: msg}
}

// Turn and card errors.
var (
	ErrNotYourTurn       = newError(KindValidation, "not_your_turn", "it is not your turn")
	ErrAlreadyDrew       = newError(KindValidation, "already_drew", "you have already drawn this turn")
	ErrMustDrawFirst     = newError(KindValidation, "must_draw_first", "you must draw before doing that")
	ErrSkipOnDiscard     = newError(KindValidation, "skip_on_discard", "a SKIP on the discard pile cannot be drawn")
	ErrDiscardEmpty      = newError(KindValidation, "discard_empty", "the discard pile is empty")
	ErrDrawPileEmpty     = newError(KindConflict, "draw_pile_empty", "no cards left to draw")
	ErrCardNotInHand     = newError(KindNotFound, "card_not_in_hand", "card is not in your hand")
	ErrDuplicateCard     = newError(KindValidation, "duplicate_card", "card listed more than once")
	ErrPhaseNotSatisfied = newError(KindValidation, "phase_not_satisfied", "cards do not satisfy the phase")
	ErrPhaseAlreadyDone  = newError(KindValidation, "phase_already_complete", "phase already completed this round")
	ErrPhaseNotDone      = newError(KindValidation, "phase_not_complete", "complete your phase first")
	ErrMustKeepCard      = newError(KindValidation, "must_keep_card", "you must keep a card to discard")
	ErrDeckNotFound      = newError(KindNotFound, "phase_deck_not_found", "phase deck not found")
	ErrBadExtension      = newError(KindValidation, "bad_extension", "cards do not extend that phase deck")
	ErrBadDirection      = newError(KindValidation, "bad_direction", "direction must be start or end")
	ErrNotSkipCard       = newError(KindValidation, "not_skip_card", "that card is not a SKIP")
	ErrInvalidTarget     = newError(KindValidation, "invalid_target", "invalid skip target")
	ErrNoCards           = newError(KindValidation, "no_cards", "no cards given")
	ErrUnknownAction     = newError(KindValidation, "unknown_action", "unknown action")
	ErrGameFinished      = newError(KindConflict, "game_finished", "the game is over")
	ErrInvariant         = newError(KindInternal, "invariant_violation", "game state is inconsistent")
)

// Session and lobby errors.
var (
	ErrGameNotFound     = newError(KindNotFound, "game_not_found", "game not found")
	ErrUserNotFound     = newError(KindNotFound, "user_not_found", "user not found")
	ErrPlayerNotFound   = newError(KindNotFound, "player_not_found", "player not found")
	ErrNotMember        = newError(KindValidation, "not_member", "you are not in this game")
	ErrNotHost          = newError(KindValidation, "not_host", "only the host can do that")
	ErrAlreadyStarted   = newError(KindConflict, "already_started", "the game has already started")
	ErrNotStarted       = newError(KindConflict, "not_started", "the game has not started")
	ErrAlreadyJoined    = newError(KindConflict, "already_joined", "you have already joined this game")
	ErrGameFull         = newError(KindConflict, "game_full", "the game is full")
	ErrNotEnoughPlayers = newError(KindValidation, "not_enough_players", "not enough players to start")
	ErrConfirmRequired  = newError(KindValidation, "confirm_required", "deleting a game in progress must be confirmed")
	ErrInvalidPhase     = newError(KindValidation, "invalid_phase", "invalid phase")
	ErrTurnNotExpired   = newError(KindValidation, "turn_not_expired", "the player still has time")
	ErrUnauthorized     = newError(KindValidation, "unauthorized", "invalid credentials")
	ErrInvalidName      = newError(KindValidation, "invalid_name", "display name must be 1 to 32 characters")
	ErrInvalidSetting   = newError(KindValidation, "invalid_setting", "invalid game setting")
	ErrSessionErrored   = newError(KindInternal, "session_errored", "game halted after an internal error")
	ErrSessionClosed    = newError(KindConflict, "session_closed", "game is closed")
)
