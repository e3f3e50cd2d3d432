// internal/game/game.go
package game

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	engine "github.com/phaseten/phaseten/engine"
	"github.com/phaseten/phaseten/engine/agent"
	"github.com/phaseten/phaseten/internal/cache"
	"github.com/phaseten/phaseten/internal/database"
	"github.com/phaseten/phaseten/internal/timeout"
	"github.com/sirupsen/logrus"
)

// GameEventType is the type discriminator of an event sent to clients.
type GameEventType string

const (
	EventGameState   GameEventType = "get_game"    // Public: full game snapshot.
	EventPlayerState GameEventType = "get_player"  // Private: the receiver's own hand and state.
	EventNextPlayer  GameEventType = "next_player" // Private: it is now the receiver's turn.
)

// GameEvent is the envelope for everything a session pushes to clients.
type GameEvent struct {
	Type     GameEventType `json:"type"`
	GameID   uuid.UUID     `json:"game_id"`
	Game     *GameView     `json:"game,omitempty"`
	Player   *PlayerView   `json:"player,omitempty"`
	TurnID   int           `json:"turn_id,omitempty"`
	Deadline *time.Time    `json:"deadline,omitempty"`
}

// Identity is a user as the session sees it.
type Identity struct {
	ID      uuid.UUID
	Display string
}

// Member is one seat at the table, human or bot.
type Member struct {
	PlayerID uuid.UUID
	UserID   uuid.UUID
	Display  string
	IsBot    bool
}

// Historian records every applied action. cache.Historian satisfies it.
type Historian interface {
	PublishGameAction(ctx context.Context, rec cache.GameActionRecord) error
}

// ResultStore persists finished games. database.Store satisfies it.
type ResultStore interface {
	StoreGameResult(ctx context.Context, r database.GameResult) error
}

// TurnTimer tracks turn deadlines. timeout.Supervisor satisfies it.
type TurnTimer interface {
	Arm(sessionID uuid.UUID, turnID int, deadline time.Time, t timeout.Target)
	Disarm(sessionID uuid.UUID)
}

// Options configures a new Session. Only Host is required.
type Options struct {
	ID        uuid.UUID // uuid.Nil picks a random id
	Host      Identity
	Rules     engine.HouseRules
	Phases    []engine.Phase // nil uses the ten standard phases
	Timer     TurnTimer
	Clock     func() time.Time
	Historian Historian
	Results   ResultStore
	Brain     agent.Brain
	Seed      func() uint64
}

type request struct {
	fn  func() error
	res chan error
}

// maxBotSteps bounds the bot actions run after a single request.
const maxBotSteps = 2000

// Session is one game from lobby to final result. All state below is owned
// by the session goroutine started with Run; other goroutines go through Do
// or read the published snapshots.
type Session struct {
	ID      uuid.UUID
	HostID  uuid.UUID
	Created time.Time

	Rules   engine.HouseRules
	Phases  []engine.Phase
	Members []Member

	// Engine integration: authoritative game state once started.
	Engine         *engine.Game
	PlayerToEngine map[uuid.UUID]int // user id -> seat
	EngineToPlayer []uuid.UUID       // seat -> user id

	InProgress bool
	Finished   bool
	Errored    bool
	Winner     uuid.UUID // user id, uuid.Nil until Finished

	TurnID   int       // increments on every turn advance
	Deadline time.Time // zero when the turn clock is off
	Version  int64     // increments with every published snapshot
	Messages []Message
	LastMove string

	actionIndex int
	botSeq      int
	deleted     bool // set by the request that removes the game

	// Communication callbacks. Set before Run.
	BroadcastFn         func(ev GameEvent)                   // every client watching the game
	BroadcastToPlayerFn func(userID uuid.UUID, ev GameEvent) // every connection of one user
	OnChange            func(id uuid.UUID)                   // lobby-visible change; called on its own goroutine

	timer     TurnTimer
	now       func() time.Time
	historian Historian
	results   ResultStore
	brain     agent.Brain
	seed      func() uint64
	log       *logrus.Entry

	dirty      bool
	structural bool
	turnNotice bool

	view    atomic.Pointer[GameView]
	summary atomic.Pointer[Summary]

	reqs      chan request
	done      chan struct{}
	closeOnce sync.Once
}

// NewSession creates a session in the lobby with the host as its only
// member. Call Run to start processing requests.
func NewSession(opts Options) (*Session, error) {
	if opts.Host.ID == uuid.Nil {
		return nil, engine.ErrUserNotFound.Withf("a game needs a host")
	}
	phases := opts.Phases
	if phases == nil {
		phases = engine.DefaultPhases()
	}
	if len(phases) == 0 {
		return nil, engine.ErrInvalidPhase.Withf("phase list is empty")
	}
	rules := opts.Rules
	if rules.HandSize == 0 {
		rules = engine.DefaultHouseRules()
	}
	id := opts.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	s := &Session{
		ID:             id,
		HostID:         opts.Host.ID,
		Rules:          rules,
		Phases:         append([]engine.Phase(nil), phases...),
		PlayerToEngine: make(map[uuid.UUID]int),
		timer:          opts.Timer,
		now:            opts.Clock,
		historian:      opts.Historian,
		results:        opts.Results,
		brain:          opts.Brain,
		seed:           opts.Seed,
		reqs:           make(chan request, 64),
		done:           make(chan struct{}),
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.brain == nil {
		s.brain = agent.Heuristic{}
	}
	if s.seed == nil {
		s.seed = func() uint64 { return uint64(time.Now().UnixNano()) }
	}
	s.log = logrus.WithFields(logrus.Fields{"component": "game", "game": s.ID})
	s.Created = s.now()
	s.Members = []Member{{PlayerID: uuid.New(), UserID: opts.Host.ID, Display: opts.Host.Display}}
	s.addMessage("", fmt.Sprintf("%s created the game", opts.Host.Display))
	s.logAction(opts.Host.ID, "game_create", map[string]interface{}{"phases": engine.PhaseStrings(s.Phases)})

	s.dirty = true
	s.flush()
	return s, nil
}

// Run processes requests until Close is called.
func (s *Session) Run() {
	for {
		select {
		case r := <-s.reqs:
			err := s.exec(r.fn)
			if r.res != nil {
				r.res <- err
			}
		case <-s.done:
			return
		}
	}
}

// Close stops the session goroutine and its turn clock.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		if s.timer != nil {
			s.timer.Disarm(s.ID)
		}
	})
}

// Do runs fn on the session goroutine and waits for its result.
func (s *Session) Do(ctx context.Context, fn func() error) error {
	r := request{fn: fn, res: make(chan error, 1)}
	select {
	case s.reqs <- r:
	case <-s.done:
		return engine.ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-r.res:
		return err
	case <-s.done:
		return engine.ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// submit enqueues fn without waiting for it.
func (s *Session) submit(fn func() error) bool {
	select {
	case s.reqs <- request{fn: fn}:
		return true
	case <-s.done:
		return false
	}
}

// exec runs one request, lets bots take their turns and publishes the
// resulting snapshot. A panic halts the session instead of the process.
func (s *Session) exec(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Errorf("Game %s: panic while processing request: %v\n%s", s.ID, r, debug.Stack())
			s.halt(fmt.Errorf("panic: %v", r))
			err = engine.ErrInvariant
		}
		s.flush()
	}()
	if s.deleted {
		return engine.ErrGameNotFound.Withf("game %s was deleted", s.ID)
	}
	if err = fn(); err == nil {
		s.driveBots()
	}
	return err
}

// touch marks the state changed so the next flush publishes a snapshot.
func (s *Session) touch() { s.dirty = true }

// touchLobby also marks the change as visible in the game list.
func (s *Session) touchLobby() {
	s.dirty = true
	s.structural = true
}

// flush publishes the current snapshot to watchers and members.
func (s *Session) flush() {
	if !s.dirty {
		return
	}
	s.dirty = false
	s.Version++

	view := s.buildView()
	s.view.Store(&view)
	sum := s.buildSummary()
	s.summary.Store(&sum)

	s.fireEvent(GameEvent{Type: EventGameState, GameID: s.ID, Game: &view})
	if s.Engine != nil {
		for _, m := range s.Members {
			if m.IsBot {
				continue
			}
			pv := s.buildPlayerView(m.UserID)
			s.fireEventToPlayer(m.UserID, GameEvent{Type: EventPlayerState, GameID: s.ID, Player: &pv})
		}
	}
	if s.turnNotice {
		s.turnNotice = false
		s.notifyNextPlayer()
	}
	if s.structural {
		s.structural = false
		if s.OnChange != nil {
			go s.OnChange(s.ID)
		}
	}
}

// View returns the last published snapshot.
func (s *Session) View() GameView {
	return *s.view.Load()
}

// Summary returns the last published lobby summary.
func (s *Session) Summary() Summary {
	return *s.summary.Load()
}

// PlayerView builds userID's private view on the session goroutine.
func (s *Session) PlayerView(ctx context.Context, userID uuid.UUID) (PlayerView, error) {
	var pv PlayerView
	err := s.Do(ctx, func() error {
		if s.memberIndex(userID) < 0 {
			return engine.ErrNotMember
		}
		if s.Engine == nil {
			return engine.ErrNotStarted
		}
		pv = s.buildPlayerView(userID)
		return nil
	})
	return pv, err
}

func (s *Session) notifyNextPlayer() {
	if !s.InProgress || s.Engine == nil {
		return
	}
	seat := s.Engine.CurrentPlayer
	if s.Engine.Players[seat].IsBot {
		return
	}
	ev := GameEvent{Type: EventNextPlayer, GameID: s.ID, TurnID: s.TurnID}
	if !s.Deadline.IsZero() {
		d := s.Deadline
		ev.Deadline = &d
	}
	s.fireEventToPlayer(s.EngineToPlayer[seat], ev)
}

// fireEvent broadcasts an event to everyone watching the game.
func (s *Session) fireEvent(ev GameEvent) {
	if s.BroadcastFn != nil {
		s.BroadcastFn(ev)
	}
}

// fireEventToPlayer sends an event to one user.
func (s *Session) fireEventToPlayer(userID uuid.UUID, ev GameEvent) {
	if s.BroadcastToPlayerFn != nil {
		s.BroadcastToPlayerFn(userID, ev)
	}
}

func (s *Session) addMessage(author, text string) {
	s.Messages = append(s.Messages, Message{Author: author, Message: text, Timestamp: s.now()})
}

func (s *Session) memberIndex(userID uuid.UUID) int {
	for i, m := range s.Members {
		if m.UserID == userID {
			return i
		}
	}
	return -1
}

func (s *Session) member(userID uuid.UUID) (Member, bool) {
	if i := s.memberIndex(userID); i >= 0 {
		return s.Members[i], true
	}
	return Member{}, false
}

func (s *Session) displayOfSeat(seat int) string {
	if m, ok := s.member(s.EngineToPlayer[seat]); ok {
		return m.Display
	}
	return fmt.Sprintf("seat %d", seat)
}

// logAction sends an action record to the historian. Publishing happens on
// its own goroutine with a short timeout.
func (s *Session) logAction(actorID uuid.UUID, actionType string, payload map[string]interface{}) {
	s.actionIndex++
	if s.historian == nil {
		return
	}
	if payload == nil {
		payload = make(map[string]interface{})
	}
	record := cache.GameActionRecord{
		GameID:        s.ID,
		ActionIndex:   s.actionIndex,
		ActorUserID:   actorID,
		ActionType:    actionType,
		ActionPayload: payload,
		Timestamp:     s.now().UnixMilli(),
	}
	go func(rec cache.GameActionRecord) {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := s.historian.PublishGameAction(ctx, rec); err != nil {
			s.log.WithError(err).Errorf("Game %s: Failed publishing action %d (%s).", s.ID, rec.ActionIndex, rec.ActionType)
		}
	}(record)
}
