// internal/game/game_test.go
package game

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	engine "github.com/phaseten/phaseten/engine"
	"github.com/phaseten/phaseten/internal/cache"
	"github.com/phaseten/phaseten/internal/database"
	"github.com/phaseten/phaseten/internal/timeout"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockBroadcaster captures game events for testing assertions.
type mockBroadcaster struct {
	mu           sync.Mutex
	allEvents    []GameEvent
	playerEvents map[uuid.UUID][]GameEvent
}

func newMockBroadcaster() *mockBroadcaster {
	return &mockBroadcaster{playerEvents: make(map[uuid.UUID][]GameEvent)}
}

func (mb *mockBroadcaster) broadcastFn(ev GameEvent) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	mb.allEvents = append(mb.allEvents, ev)
}

func (mb *mockBroadcaster) broadcastToPlayerFn(userID uuid.UUID, ev GameEvent) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	mb.playerEvents[userID] = append(mb.playerEvents[userID], ev)
}

func (mb *mockBroadcaster) clear() {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	mb.allEvents = nil
	mb.playerEvents = make(map[uuid.UUID][]GameEvent)
}

func (mb *mockBroadcaster) getLastEvent() *GameEvent {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	if len(mb.allEvents) == 0 {
		return nil
	}
	return &mb.allEvents[len(mb.allEvents)-1]
}

func (mb *mockBroadcaster) findPlayerEventByType(userID uuid.UUID, eventType GameEventType) *GameEvent {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	events := mb.playerEvents[userID]
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].Type == eventType {
			return &events[i]
		}
	}
	return nil
}

// recordingHistorian collects published action records.
type recordingHistorian struct {
	mu      sync.Mutex
	records []cache.GameActionRecord
}

func (h *recordingHistorian) PublishGameAction(_ context.Context, rec cache.GameActionRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, rec)
	return nil
}

func (h *recordingHistorian) hasType(actionType string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, r := range h.records {
		if r.ActionType == actionType {
			return true
		}
	}
	return false
}

// recordingResults collects stored results.
type recordingResults struct {
	mu      sync.Mutex
	results []database.GameResult
}

func (r *recordingResults) StoreGameResult(_ context.Context, res database.GameResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, res)
	return nil
}

func (r *recordingResults) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.results)
}

type testTable struct {
	s       *Session
	mb      *mockBroadcaster
	users   []Identity
	clock   *timeout.ManualClock
	hist    *recordingHistorian
	results *recordingResults
}

// setupTestSession creates a running session hosted by users[0] with the
// other humans joined. opts may adjust the options before creation.
func setupTestSession(t *testing.T, humans int, opts func(*Options)) *testTable {
	t.Helper()
	tt := &testTable{
		mb:      newMockBroadcaster(),
		clock:   timeout.NewManualClock(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)),
		hist:    &recordingHistorian{},
		results: &recordingResults{},
	}
	for i := 0; i < humans; i++ {
		tt.users = append(tt.users, Identity{ID: uuid.New(), Display: "Player" + string(rune('A'+i))})
	}
	o := Options{
		Host:      tt.users[0],
		Rules:     engine.DefaultHouseRules(),
		Clock:     tt.clock.Now,
		Historian: tt.hist,
		Results:   tt.results,
		Seed:      func() uint64 { return 42 },
	}
	if opts != nil {
		opts(&o)
	}
	s, err := NewSession(o)
	require.NoError(t, err)
	s.BroadcastFn = tt.mb.broadcastFn
	s.BroadcastToPlayerFn = tt.mb.broadcastToPlayerFn
	go s.Run()
	t.Cleanup(s.Close)
	tt.s = s

	for _, u := range tt.users[1:] {
		require.NoError(t, s.Join(context.Background(), u))
	}
	return tt
}

func (tt *testTable) start(t *testing.T) {
	t.Helper()
	require.NoError(t, tt.s.Start(context.Background(), tt.users[0].ID))
	tt.mb.clear()
}

func (tt *testTable) act(userID uuid.UUID, pa PlayerAction) error {
	return tt.s.HandleAction(context.Background(), userID, pa)
}

// inspect runs fn on the session goroutine.
func (tt *testTable) inspect(t *testing.T, fn func(s *Session)) {
	t.Helper()
	require.NoError(t, tt.s.Do(context.Background(), func() error {
		fn(tt.s)
		return nil
	}))
}

// rigHand gives seat exactly the cards in notation, pooling the draw pile and
// the other hands. Other hands keep their sizes.
func (tt *testTable) rigHand(t *testing.T, seat int, notation string) []engine.Card {
	t.Helper()
	want, err := engine.ParseCards(notation)
	require.NoError(t, err)
	var hand []engine.Card
	require.NoError(t, tt.s.Do(context.Background(), func() error {
		g := tt.s.Engine
		sizes := make([]int, len(g.Players))
		pool := append([]engine.Card(nil), g.DrawPile...)
		for p := range g.Players {
			sizes[p] = len(g.Players[p].Hand)
			pool = append(pool, g.Players[p].Hand...)
			g.Players[p].Hand = nil
		}
		for _, w := range want {
			found := -1
			for i, c := range pool {
				if c.Color == w.Color && c.Rank == w.Rank {
					found = i
					break
				}
			}
			if found < 0 {
				return fmt.Errorf("rigHand: %s not available", w)
			}
			hand = append(hand, pool[found])
			pool = append(pool[:found:found], pool[found+1:]...)
		}
		g.Players[seat].Hand = hand
		for p := range g.Players {
			if p == seat {
				continue
			}
			n := sizes[p]
			g.Players[p].Hand = append([]engine.Card(nil), pool[len(pool)-n:]...)
			pool = pool[:len(pool)-n]
		}
		g.DrawPile = pool
		return g.Verify()
	}))
	return hand
}

func (tt *testTable) currentUser(t *testing.T) uuid.UUID {
	t.Helper()
	var id uuid.UUID
	tt.inspect(t, func(s *Session) { id = s.EngineToPlayer[s.Engine.CurrentPlayer] })
	return id
}

func (tt *testTable) handLen(t *testing.T, seat int) int {
	t.Helper()
	var n int
	tt.inspect(t, func(s *Session) { n = len(s.Engine.Players[seat].Hand) })
	return n
}

// TestTwoPlayerDrawDiscard verifies the basic draw -> discard flow and the
// events it produces.
func TestTwoPlayerDrawDiscard(t *testing.T) {
	tt := setupTestSession(t, 2, func(o *Options) { o.Rules.TurnLimit = 0 })
	tt.start(t)
	host, guest := tt.users[0], tt.users[1]

	v := tt.s.View()
	require.True(t, v.InProgress)
	require.NotNil(t, v.CurrentPlayer)
	assert.Equal(t, host.ID, *v.CurrentPlayer, "seat 0 opens the first round")
	assert.Len(t, v.Discard, 1)
	assert.Equal(t, 108-21, v.DeckSize)
	assert.Equal(t, 1, v.Round)

	err := tt.act(guest.ID, PlayerAction{Action: "draw_deck"})
	assert.ErrorIs(t, err, engine.ErrNotYourTurn)

	require.NoError(t, tt.act(host.ID, PlayerAction{Action: "draw_deck"}))
	assert.Equal(t, 11, tt.handLen(t, 0))
	err = tt.act(host.ID, PlayerAction{Action: "draw_discard"})
	assert.ErrorIs(t, err, engine.ErrAlreadyDrew)

	pv, err := tt.s.PlayerView(context.Background(), host.ID)
	require.NoError(t, err)
	require.Len(t, pv.Hand, 11)
	assert.True(t, pv.DrewCard)
	assert.Contains(t, pv.Actions, "discard")

	discarded := pv.Hand[0]
	require.NoError(t, tt.act(host.ID, PlayerAction{Action: "discard", CardID: discarded.ID}))

	assert.Equal(t, 10, tt.handLen(t, 0))
	assert.Equal(t, guest.ID, tt.currentUser(t))

	v = tt.s.View()
	assert.Equal(t, discarded, v.Discard[len(v.Discard)-1])
	assert.Equal(t, 2, v.TurnID)
	assert.Contains(t, v.LastMoveMade, "discarded")

	last := tt.mb.getLastEvent()
	require.NotNil(t, last)
	assert.Equal(t, EventGameState, last.Type)
	assert.Equal(t, v.Version, last.Game.Version)

	next := tt.mb.findPlayerEventByType(guest.ID, EventNextPlayer)
	require.NotNil(t, next, "guest should be told it is their turn")
	assert.Equal(t, 2, next.TurnID)
	assert.NotNil(t, tt.mb.findPlayerEventByType(host.ID, EventPlayerState))

	tt.inspect(t, func(s *Session) { assert.NoError(t, s.Engine.Verify()) })
}

// TestVersionIncreasesOnEverySnapshot verifies snapshot sequencing.
func TestVersionIncreasesOnEverySnapshot(t *testing.T) {
	tt := setupTestSession(t, 2, nil)
	before := tt.s.View().Version
	tt.start(t)
	afterStart := tt.s.View().Version
	assert.Greater(t, afterStart, before)

	require.NoError(t, tt.act(tt.users[0].ID, PlayerAction{Action: "sort_by_rank"}))
	assert.Greater(t, tt.s.View().Version, afterStart)

	// A rejected action publishes nothing.
	v := tt.s.View().Version
	_ = tt.act(tt.users[1].ID, PlayerAction{Action: "draw_deck"})
	assert.Equal(t, v, tt.s.View().Version)
}

// TestCompletePhaseAndWin plays the S2+S3 scenario through to the end of a
// one-phase game.
func TestCompletePhaseAndWin(t *testing.T) {
	tt := setupTestSession(t, 2, func(o *Options) { o.Rules.TurnLimit = 0 })
	host := tt.users[0]
	require.NoError(t, tt.s.EditPhases(context.Background(), host.ID, []string{"S2+S3"}))
	tt.start(t)

	require.NoError(t, tt.act(host.ID, PlayerAction{Action: "draw_deck"}))
	hand := tt.rigHand(t, 0, "R4 B4 G7 B7 Y7 R1")

	err := tt.act(host.ID, PlayerAction{Action: "complete_phase", Cards: []int{hand[0].ID, hand[2].ID, hand[3].ID, hand[4].ID, hand[5].ID}})
	assert.ErrorIs(t, err, engine.ErrPhaseNotSatisfied)

	require.NoError(t, tt.act(host.ID, PlayerAction{Action: "complete_phase", Cards: []int{hand[0].ID, hand[1].ID, hand[2].ID, hand[3].ID, hand[4].ID}}))
	v := tt.s.View()
	require.Len(t, v.PhaseDecks, 2)
	assert.Equal(t, "S2", v.PhaseDecks[0].Phase)
	assert.Equal(t, "S3", v.PhaseDecks[1].Phase)
	assert.Equal(t, host.ID, v.PhaseDecks[0].Owner)
	assert.Equal(t, host.ID, *v.CurrentPlayer, "completing a phase does not end the turn")
	assert.True(t, v.Players[0].CompletedPhase)

	require.NoError(t, tt.act(host.ID, PlayerAction{Action: "discard", CardID: hand[5].ID}))

	v = tt.s.View()
	assert.False(t, v.InProgress)
	assert.True(t, v.Finished)
	require.NotNil(t, v.Winner)
	assert.Equal(t, host.ID, *v.Winner)
	assert.Nil(t, v.CurrentPlayer)

	err = tt.act(tt.users[1].ID, PlayerAction{Action: "draw_deck"})
	assert.ErrorIs(t, err, engine.ErrGameFinished)

	require.Eventually(t, func() bool { return tt.results.count() == 1 }, time.Second, 5*time.Millisecond)
	tt.results.mu.Lock()
	res := tt.results.results[0]
	tt.results.mu.Unlock()
	assert.Equal(t, host.ID, res.Winner)
	assert.Equal(t, []string{"S2+S3"}, res.Phases)
	require.Len(t, res.Players, 2)
	assert.Equal(t, 1, res.Players[0].PhaseIndex)

	require.Eventually(t, func() bool { return tt.hist.hasType("game_end") }, time.Second, 5*time.Millisecond)
	assert.True(t, tt.s.Summary().Finished)
}

// TestSkipPlayer verifies a skipped player loses their next turn.
func TestSkipPlayer(t *testing.T) {
	tt := setupTestSession(t, 3, func(o *Options) { o.Rules.TurnLimit = 0 })
	tt.start(t)
	host, second, third := tt.users[0], tt.users[1], tt.users[2]

	require.NoError(t, tt.act(host.ID, PlayerAction{Action: "draw_deck"}))
	tt.rigHand(t, 0, "S R1 R2 R3 R4 R5 R6 R7 R8 R9 R10")

	err := tt.act(host.ID, PlayerAction{Action: "skip_player", To: host.ID})
	assert.ErrorIs(t, err, engine.ErrInvalidTarget)
	err = tt.act(host.ID, PlayerAction{Action: "skip_player", To: uuid.New()})
	assert.ErrorIs(t, err, engine.ErrInvalidTarget)

	pv, err := tt.s.PlayerView(context.Background(), second.ID)
	require.NoError(t, err)
	require.NoError(t, tt.act(host.ID, PlayerAction{Action: "skip_player", To: pv.ID}))

	assert.Equal(t, third.ID, tt.currentUser(t))
	v := tt.s.View()
	assert.Equal(t, "S", v.Discard[len(v.Discard)-1].Rank)
	assert.Contains(t, v.LastMoveMade, "skipped")
	assert.Zero(t, v.Players[1].SkipCards, "the skip is consumed when the turn passes over")
}

// TestPutDownDirection verifies the direction field is parsed and checked.
func TestPutDownDirection(t *testing.T) {
	tt := setupTestSession(t, 2, func(o *Options) { o.Rules.TurnLimit = 0 })
	host := tt.users[0]
	require.NoError(t, tt.s.EditPhases(context.Background(), host.ID, []string{"R4"}))
	tt.start(t)

	require.NoError(t, tt.act(host.ID, PlayerAction{Action: "draw_deck"}))
	hand := tt.rigHand(t, 0, "R3 B4 G5 Y6 R7 B2 G11")
	require.NoError(t, tt.act(host.ID, PlayerAction{Action: "complete_phase", Cards: []int{hand[0].ID, hand[1].ID, hand[2].ID, hand[3].ID}}))
	deckID := tt.s.View().PhaseDecks[0].ID

	err := tt.act(host.ID, PlayerAction{Action: "put_down", PhaseDeckID: deckID, Direction: "sideways", Cards: []int{hand[4].ID}})
	assert.ErrorIs(t, err, engine.ErrBadDirection)
	err = tt.act(host.ID, PlayerAction{Action: "put_down", PhaseDeckID: deckID, Direction: "start", Cards: []int{hand[4].ID}})
	assert.ErrorIs(t, err, engine.ErrBadExtension)

	require.NoError(t, tt.act(host.ID, PlayerAction{Action: "put_down", PhaseDeckID: deckID, Direction: "end", Cards: []int{hand[4].ID}}))
	require.NoError(t, tt.act(host.ID, PlayerAction{Action: "put_down", PhaseDeckID: deckID, Direction: "start", Cards: []int{hand[5].ID}}))

	deck := tt.s.View().PhaseDecks[0].Deck
	require.Len(t, deck, 6)
	assert.Equal(t, "2", deck[0].Rank)
	assert.Equal(t, "7", deck[5].Rank)
}

// TestTimeoutKeepsForcedDraw verifies a 30s turn limit fires on a 31s tick
// and the forced draw is kept.
func TestTimeoutKeepsForcedDraw(t *testing.T) {
	tt := setupTestSession(t, 2, func(o *Options) { o.Rules.TurnLimit = 30 * time.Second })
	sup := timeout.NewSupervisor(250*time.Millisecond, tt.clock)
	tt.inspect(t, func(s *Session) { s.timer = sup })
	tt.start(t)

	deadline, turn, ok := sup.Deadline(tt.s.ID)
	require.True(t, ok)
	assert.Equal(t, 1, turn)
	assert.Equal(t, tt.clock.Now().Add(30*time.Second), deadline)

	assert.Zero(t, sup.Tick(tt.clock.Advance(29*time.Second)))
	assert.Equal(t, 1, sup.Tick(tt.clock.Advance(2*time.Second)))

	// The forced action is queued; any later request runs after it.
	assert.Equal(t, 11, tt.handLen(t, 0))
	assert.Equal(t, tt.users[1].ID, tt.currentUser(t))
	v := tt.s.View()
	assert.Equal(t, 2, v.TurnID)
	assert.Contains(t, v.LastMoveMade, "ran out of time")

	_, turn, ok = sup.Deadline(tt.s.ID)
	require.True(t, ok, "the next turn is armed")
	assert.Equal(t, 2, turn)
}

// TestTimeoutAfterDrawDiscardsFirstCard verifies the forced discard.
func TestTimeoutAfterDrawDiscardsFirstCard(t *testing.T) {
	tt := setupTestSession(t, 2, func(o *Options) { o.Rules.TurnLimit = 30 * time.Second })
	tt.start(t)
	host := tt.users[0]

	require.NoError(t, tt.act(host.ID, PlayerAction{Action: "draw_deck"}))
	pv, err := tt.s.PlayerView(context.Background(), host.ID)
	require.NoError(t, err)
	first := pv.Hand[0]

	tt.clock.Advance(31 * time.Second)
	tt.s.ExpireTurn(1)

	assert.Equal(t, 10, tt.handLen(t, 0))
	v := tt.s.View()
	assert.Equal(t, first, v.Discard[len(v.Discard)-1])
	assert.Equal(t, tt.users[1].ID, *v.CurrentPlayer)
}

// TestTimeoutCanDiscardDrawnCard verifies the draw-then-discard rule option.
func TestTimeoutCanDiscardDrawnCard(t *testing.T) {
	tt := setupTestSession(t, 2, func(o *Options) {
		o.Rules.TurnLimit = 30 * time.Second
		o.Rules.TimeoutDiscardsDrawn = true
	})
	tt.start(t)
	tt.s.ExpireTurn(1)
	assert.Equal(t, 10, tt.handLen(t, 0))
	assert.Equal(t, tt.users[1].ID, tt.currentUser(t))
}

// TestStaleTimeoutIgnored verifies an expiry for an old turn does nothing.
func TestStaleTimeoutIgnored(t *testing.T) {
	tt := setupTestSession(t, 2, func(o *Options) { o.Rules.TurnLimit = 30 * time.Second })
	tt.start(t)
	host := tt.users[0]
	require.NoError(t, tt.act(host.ID, PlayerAction{Action: "draw_deck"}))
	pv, _ := tt.s.PlayerView(context.Background(), host.ID)
	require.NoError(t, tt.act(host.ID, PlayerAction{Action: "discard", CardID: pv.Hand[0].ID}))

	before := tt.s.View()
	tt.s.ExpireTurn(1)
	tt.inspect(t, func(*Session) {})
	after := tt.s.View()
	assert.Equal(t, before.TurnID, after.TurnID)
	assert.Equal(t, before.Version, after.Version)
	assert.Equal(t, 10, tt.handLen(t, 1))
}

// TestSkipSlowPlayer verifies the deadline gate on skip_slow_player.
func TestSkipSlowPlayer(t *testing.T) {
	tt := setupTestSession(t, 2, func(o *Options) { o.Rules.TurnLimit = 30 * time.Second })
	tt.start(t)
	host, guest := tt.users[0], tt.users[1]
	ctx := context.Background()

	assert.ErrorIs(t, tt.s.SkipSlowPlayer(ctx, guest.ID), engine.ErrTurnNotExpired)
	assert.ErrorIs(t, tt.s.SkipSlowPlayer(ctx, host.ID), engine.ErrInvalidTarget)
	assert.ErrorIs(t, tt.s.SkipSlowPlayer(ctx, uuid.New()), engine.ErrNotMember)

	tt.clock.Advance(31 * time.Second)
	require.NoError(t, tt.s.SkipSlowPlayer(ctx, guest.ID))
	assert.Equal(t, guest.ID, tt.currentUser(t))
	assert.Equal(t, 11, tt.handLen(t, 0))
}

// TestSkipSlowPlayerWithoutClock verifies a game without a turn limit can
// never be forced.
func TestSkipSlowPlayerWithoutClock(t *testing.T) {
	tt := setupTestSession(t, 2, func(o *Options) { o.Rules.TurnLimit = 0 })
	tt.start(t)
	tt.clock.Advance(time.Hour)
	assert.ErrorIs(t, tt.s.SkipSlowPlayer(context.Background(), tt.users[1].ID), engine.ErrTurnNotExpired)
	assert.Nil(t, tt.s.View().NextPlayerAlarm)
}

// TestBotsPlayInline verifies bot turns run inside the request that handed
// them the turn.
func TestBotsPlayInline(t *testing.T) {
	tt := setupTestSession(t, 1, func(o *Options) { o.Rules.TurnLimit = 0 })
	host := tt.users[0]
	ctx := context.Background()
	bot1, err := tt.s.AddBot(ctx, host.ID)
	require.NoError(t, err)
	_, err = tt.s.AddBot(ctx, host.ID)
	require.NoError(t, err)
	assert.Equal(t, "Bot 1", bot1.Display)
	tt.start(t)

	require.NoError(t, tt.act(host.ID, PlayerAction{Action: "draw_deck"}))
	pv, _ := tt.s.PlayerView(ctx, host.ID)
	require.NoError(t, tt.act(host.ID, PlayerAction{Action: "discard", CardID: pv.Hand[0].ID}))

	v := tt.s.View()
	assert.Equal(t, host.ID, *v.CurrentPlayer, "both bots played before the request returned")
	assert.GreaterOrEqual(t, v.TurnID, 4)
	assert.Nil(t, tt.mb.findPlayerEventByType(bot1.UserID, EventPlayerState), "bots get no private events")
	tt.inspect(t, func(s *Session) { assert.NoError(t, s.Engine.Verify()) })
}

// TestBotOnlyTableFinishes lets bots play a short game around a human who
// always times out.
func TestBotOnlyTableFinishes(t *testing.T) {
	tt := setupTestSession(t, 1, func(o *Options) {
		o.Rules.TurnLimit = time.Second
		o.Phases = []engine.Phase{{{Kind: engine.GroupSet, Size: 3}}}
	})
	host := tt.users[0]
	_, err := tt.s.AddBot(context.Background(), host.ID)
	require.NoError(t, err)
	tt.start(t)

	for i := 0; i < 500 && !tt.s.View().Finished; i++ {
		v := tt.s.View()
		tt.s.ExpireTurn(v.TurnID)
		tt.inspect(t, func(*Session) {})
	}
	v := tt.s.View()
	require.True(t, v.Finished, "game should finish")
	require.NotNil(t, v.Winner)
	assert.False(t, v.Errored)
}

// TestInvariantViolationHaltsSession verifies a corrupted game stops taking
// actions and reports itself errored.
func TestInvariantViolationHaltsSession(t *testing.T) {
	tt := setupTestSession(t, 2, func(o *Options) { o.Rules.TurnLimit = 0 })
	tt.start(t)
	host := tt.users[0]

	tt.inspect(t, func(s *Session) {
		p := &s.Engine.Players[0]
		p.Hand = append(p.Hand, p.Hand[0])
	})

	err := tt.act(host.ID, PlayerAction{Action: "draw_deck"})
	assert.ErrorIs(t, err, engine.ErrInvariant)

	v := tt.s.View()
	assert.True(t, v.Errored)
	assert.True(t, tt.s.Summary().Errored)

	err = tt.act(tt.users[1].ID, PlayerAction{Action: "sort_by_color"})
	assert.ErrorIs(t, err, engine.ErrSessionErrored)
}

// TestUnknownAction verifies unknown action names are rejected.
func TestUnknownAction(t *testing.T) {
	tt := setupTestSession(t, 2, nil)
	tt.start(t)
	err := tt.act(tt.users[0].ID, PlayerAction{Action: "call_cambia"})
	assert.ErrorIs(t, err, engine.ErrUnknownAction)
	assert.Equal(t, engine.KindValidation, engine.KindOf(err))
}

// TestLobbyRules covers membership before and after the start.
func TestLobbyRules(t *testing.T) {
	tt := setupTestSession(t, 2, nil)
	ctx := context.Background()
	host, guest := tt.users[0], tt.users[1]
	late := Identity{ID: uuid.New(), Display: "Late"}

	assert.ErrorIs(t, tt.s.Join(ctx, guest), engine.ErrAlreadyJoined)
	assert.ErrorIs(t, tt.s.Start(ctx, guest.ID), engine.ErrNotHost)
	_, err := tt.s.AddBot(ctx, guest.ID)
	assert.ErrorIs(t, err, engine.ErrNotHost)
	assert.ErrorIs(t, tt.s.EditPhases(ctx, host.ID, []string{"S3", "Q9"}), engine.ErrInvalidPhase)
	assert.ErrorIs(t, tt.s.EditPhases(ctx, host.ID, []string{"S3", "S11"}), engine.ErrInvalidPhase)
	assert.ErrorIs(t, tt.s.RemoveBot(ctx, host.ID, guest.ID), engine.ErrPlayerNotFound)
	assert.ErrorIs(t, tt.s.SetTurnLimit(ctx, host.ID, -time.Second), engine.ErrInvalidSetting)

	require.NoError(t, tt.s.SetTurnLimit(ctx, host.ID, 45*time.Second))
	assert.Equal(t, 45, tt.s.View().PlayerTimeLimit)

	bot, err := tt.s.AddBot(ctx, host.ID)
	require.NoError(t, err)
	require.NoError(t, tt.s.RemoveBot(ctx, host.ID, bot.PlayerID))
	assert.Len(t, tt.s.View().Users, 2)

	hostLeft, err := tt.s.Leave(ctx, guest.ID)
	require.NoError(t, err)
	assert.False(t, hostLeft)
	assert.ErrorIs(t, tt.s.Start(ctx, host.ID), engine.ErrNotEnoughPlayers)
	require.NoError(t, tt.s.Join(ctx, guest))

	require.NoError(t, tt.s.Start(ctx, host.ID))
	assert.ErrorIs(t, tt.s.Start(ctx, host.ID), engine.ErrAlreadyStarted)
	assert.ErrorIs(t, tt.s.Join(ctx, late), engine.ErrAlreadyStarted)

	// Leaving a running game is a no-op.
	hostLeft, err = tt.s.Leave(ctx, guest.ID)
	require.NoError(t, err)
	assert.False(t, hostLeft)
	assert.Len(t, tt.s.View().Users, 2)

	assert.ErrorIs(t, tt.s.Delete(ctx, guest.ID, true), engine.ErrNotHost)
	assert.ErrorIs(t, tt.s.Delete(ctx, host.ID, false), engine.ErrConfirmRequired)
	require.NoError(t, tt.s.Delete(ctx, host.ID, true))
	assert.ErrorIs(t, tt.act(host.ID, PlayerAction{Action: "draw_deck"}), engine.ErrGameNotFound)
}

// TestHostLeavingDeletesLobby verifies that once the host leaves, a start
// queued behind the leave is refused.
func TestHostLeavingDeletesLobby(t *testing.T) {
	tt := setupTestSession(t, 2, nil)
	ctx := context.Background()
	host := tt.users[0]

	hostLeft, err := tt.s.Leave(ctx, host.ID)
	require.NoError(t, err)
	assert.True(t, hostLeft)

	err = tt.s.Start(ctx, host.ID)
	assert.ErrorIs(t, err, engine.ErrGameNotFound)
	assert.False(t, tt.s.View().InProgress)
	assert.ErrorIs(t, tt.s.Delete(ctx, host.ID, true), engine.ErrGameNotFound)
}

// TestGameFull verifies the seat limit.
func TestGameFull(t *testing.T) {
	tt := setupTestSession(t, 2, func(o *Options) { o.Rules.MaxPlayers = 2 })
	err := tt.s.Join(context.Background(), Identity{ID: uuid.New(), Display: "Third"})
	assert.ErrorIs(t, err, engine.ErrGameFull)
}

// TestClosedSessionRefusesRequests verifies Do after Close.
func TestClosedSessionRefusesRequests(t *testing.T) {
	tt := setupTestSession(t, 1, nil)
	tt.s.Close()
	err := tt.s.Join(context.Background(), Identity{ID: uuid.New(), Display: "X"})
	assert.ErrorIs(t, err, engine.ErrSessionClosed)
}

// TestOnChangeFiresForStructuralChanges verifies the lobby hook.
func TestOnChangeFiresForStructuralChanges(t *testing.T) {
	tt := setupTestSession(t, 1, nil)
	changed := make(chan uuid.UUID, 8)
	tt.inspect(t, func(s *Session) { s.OnChange = func(id uuid.UUID) { changed <- id } })

	require.NoError(t, tt.s.Join(context.Background(), Identity{ID: uuid.New(), Display: "B"}))
	select {
	case id := <-changed:
		assert.Equal(t, tt.s.ID, id)
	case <-time.After(time.Second):
		t.Fatal("OnChange not called")
	}
}
