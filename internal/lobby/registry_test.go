// internal/lobby/registry_test.go
package lobby

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	engine "github.com/phaseten/phaseten/engine"
	"github.com/phaseten/phaseten/internal/game"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu      sync.Mutex
	games   []game.GameEvent
	players map[uuid.UUID][]game.GameEvent
	lists   [][]game.Summary
}

func newRecordingPublisher() *recordingPublisher {
	return &recordingPublisher{players: make(map[uuid.UUID][]game.GameEvent)}
}

func (p *recordingPublisher) GameEvent(ev game.GameEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.games = append(p.games, ev)
}

func (p *recordingPublisher) PlayerEvent(userID uuid.UUID, ev game.GameEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.players[userID] = append(p.players[userID], ev)
}

func (p *recordingPublisher) GameList(list []game.Summary) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lists = append(p.lists, list)
}

func (p *recordingPublisher) lastList() []game.Summary {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.lists) == 0 {
		return nil
	}
	return p.lists[len(p.lists)-1]
}

func newTestRegistry(t *testing.T) (*Registry, *recordingPublisher) {
	t.Helper()
	rules := engine.DefaultHouseRules()
	rules.TurnLimit = 0
	pub := newRecordingPublisher()
	r := NewRegistry(Deps{Rules: rules, Seed: func() uint64 { return 7 }}, pub)
	t.Cleanup(r.Close)
	return r, pub
}

func identity(name string) game.Identity {
	return game.Identity{ID: uuid.New(), Display: name}
}

func TestCreateAndJoinPublishList(t *testing.T) {
	r, pub := newTestRegistry(t)
	ctx := context.Background()
	host, guest := identity("Host"), identity("Guest")

	s, err := r.Create(ctx, host)
	require.NoError(t, err)
	list := pub.lastList()
	require.Len(t, list, 1)
	assert.Equal(t, s.ID, list[0].ID)
	assert.Equal(t, "Host", list[0].HostName)

	require.NoError(t, r.Join(ctx, s.ID, guest))
	assert.ErrorIs(t, r.Join(ctx, s.ID, guest), engine.ErrAlreadyJoined)
	assert.ErrorIs(t, r.Join(ctx, uuid.New(), guest), engine.ErrGameNotFound)

	require.Eventually(t, func() bool {
		l := pub.lastList()
		return len(l) == 1 && len(l[0].Users) == 2
	}, time.Second, 5*time.Millisecond, "join should republish the full list")

	games := r.Games()
	require.Len(t, games, 1)
	assert.Len(t, games[0].Users, 2)
}

func TestGamesAreOrderedByCreation(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()
	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		s, err := r.Create(ctx, identity("H"))
		require.NoError(t, err)
		ids = append(ids, s.ID)
		time.Sleep(2 * time.Millisecond)
	}
	games := r.Games()
	require.Len(t, games, 3)
	for i, g := range games {
		assert.Equal(t, ids[i], g.ID)
	}
}

func TestHostUnjoinDeletesLobby(t *testing.T) {
	r, pub := newTestRegistry(t)
	ctx := context.Background()
	host, guest := identity("Host"), identity("Guest")
	s, err := r.Create(ctx, host)
	require.NoError(t, err)
	require.NoError(t, r.Join(ctx, s.ID, guest))

	require.NoError(t, r.Unjoin(ctx, s.ID, guest.ID))
	_, err = r.Get(s.ID)
	require.NoError(t, err, "a guest leaving keeps the game")

	require.NoError(t, r.Unjoin(ctx, s.ID, host.ID))
	_, err = r.Get(s.ID)
	assert.ErrorIs(t, err, engine.ErrGameNotFound)
	assert.Empty(t, pub.lastList())
}

func TestGameOfPlayer(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()
	host := identity("Host")
	first, err := r.Create(ctx, host)
	require.NoError(t, err)
	second, err := r.Create(ctx, identity("Other"))
	require.NoError(t, err)
	bot, err := r.AddBot(ctx, first.ID, host.ID)
	require.NoError(t, err)

	for _, u := range first.View().Users {
		id, err := r.GameOfPlayer(u.PlayerID)
		require.NoError(t, err)
		assert.Equal(t, first.ID, id)
	}
	id, err := r.GameOfPlayer(second.View().Users[0].PlayerID)
	require.NoError(t, err)
	assert.Equal(t, second.ID, id)

	require.NoError(t, r.RemoveBot(ctx, first.ID, host.ID, bot.PlayerID))
	_, err = r.GameOfPlayer(bot.PlayerID)
	assert.ErrorIs(t, err, engine.ErrGameNotFound)
}

func TestUnjoinAfterStartIsNoop(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()
	host, guest := identity("Host"), identity("Guest")
	s, err := r.Create(ctx, host)
	require.NoError(t, err)
	require.NoError(t, r.Join(ctx, s.ID, guest))
	require.NoError(t, r.Start(ctx, s.ID, host.ID))

	require.NoError(t, r.Unjoin(ctx, s.ID, host.ID))
	_, err = r.Get(s.ID)
	require.NoError(t, err)
	assert.Len(t, s.View().Users, 2)
}

func TestDeleteRequiresHostAndConfirm(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()
	host, guest := identity("Host"), identity("Guest")
	s, err := r.Create(ctx, host)
	require.NoError(t, err)
	require.NoError(t, r.Join(ctx, s.ID, guest))
	require.NoError(t, r.Start(ctx, s.ID, host.ID))

	assert.ErrorIs(t, r.Delete(ctx, s.ID, guest.ID, true), engine.ErrNotHost)
	assert.ErrorIs(t, r.Delete(ctx, s.ID, host.ID, false), engine.ErrConfirmRequired)
	require.NoError(t, r.Delete(ctx, s.ID, host.ID, true))
	_, err = r.Get(s.ID)
	assert.ErrorIs(t, err, engine.ErrGameNotFound)
}

func TestStartErrorsRouteThrough(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()
	host, guest := identity("Host"), identity("Guest")
	s, err := r.Create(ctx, host)
	require.NoError(t, err)

	assert.ErrorIs(t, r.Start(ctx, s.ID, host.ID), engine.ErrNotEnoughPlayers)
	require.NoError(t, r.Join(ctx, s.ID, guest))
	assert.ErrorIs(t, r.Start(ctx, s.ID, guest.ID), engine.ErrNotHost)
	require.NoError(t, r.EditPhases(ctx, s.ID, host.ID, []string{"S3", "R5"}))
	require.NoError(t, r.SetTurnLimit(ctx, s.ID, host.ID, 20*time.Second))
	require.NoError(t, r.Start(ctx, s.ID, host.ID))
	assert.ErrorIs(t, r.Start(ctx, s.ID, host.ID), engine.ErrAlreadyStarted)

	v := s.View()
	assert.Equal(t, []string{"S3", "R5"}, v.PhaseList)
	assert.Equal(t, 20, v.PlayerTimeLimit)

	pv, err := r.PlayerView(ctx, s.ID, host.ID)
	require.NoError(t, err)
	assert.Len(t, pv.Hand, 10)
	assert.True(t, pv.IsCurrent)

	require.NoError(t, r.Action(ctx, s.ID, host.ID, game.PlayerAction{Action: "draw_deck"}))
	assert.ErrorIs(t, r.SkipSlowPlayer(ctx, s.ID, guest.ID), engine.ErrTurnNotExpired)
}

func TestBotsThroughRegistry(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()
	host := identity("Host")
	s, err := r.Create(ctx, host)
	require.NoError(t, err)

	bot, err := r.AddBot(ctx, s.ID, host.ID)
	require.NoError(t, err)
	assert.True(t, bot.IsBot)
	require.NoError(t, r.RemoveBot(ctx, s.ID, host.ID, bot.UserID))
	assert.Len(t, s.View().Users, 1)
}

func TestRenameUserAcrossSessions(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()
	alice := identity("Alice")
	s1, err := r.Create(ctx, alice)
	require.NoError(t, err)
	s2, err := r.Create(ctx, identity("Bob"))
	require.NoError(t, err)
	require.NoError(t, r.Join(ctx, s2.ID, alice))
	other, err := r.Create(ctx, identity("Carol"))
	require.NoError(t, err)

	require.NoError(t, r.RenameUser(ctx, alice.ID, "Alicia"))
	assert.Equal(t, "Alicia", s1.Summary().HostName)
	assert.Equal(t, "Alicia", s2.View().Users[1].Display)
	assert.Equal(t, "Carol", other.Summary().HostName)
}

// finishGame plays a one-phase game between host and a bot by letting the
// host's clock run out every turn.
func finishGame(t *testing.T, r *Registry, host game.Identity) *game.Session {
	t.Helper()
	ctx := context.Background()
	s, err := r.Create(ctx, host)
	require.NoError(t, err)
	_, err = r.AddBot(ctx, s.ID, host.ID)
	require.NoError(t, err)
	require.NoError(t, r.EditPhases(ctx, s.ID, host.ID, []string{"S3"}))
	require.NoError(t, r.Start(ctx, s.ID, host.ID))

	for i := 0; i < 500 && !s.View().Finished; i++ {
		s.ExpireTurn(s.View().TurnID)
		_, _ = s.PlayerView(ctx, host.ID)
	}
	require.True(t, s.View().Finished)
	return s
}

func TestFinishedGameArchivedWhenHumansLeave(t *testing.T) {
	r, _ := newTestRegistry(t)
	host := identity("Host")
	r.Connected(host.ID)
	r.Connected(host.ID)

	s := finishGame(t, r, host)
	_, err := r.Get(s.ID)
	require.NoError(t, err, "a connected member keeps the finished game around")

	r.Disconnected(host.ID)
	assert.True(t, r.Online(host.ID))
	_, err = r.Get(s.ID)
	require.NoError(t, err)

	r.Disconnected(host.ID)
	assert.False(t, r.Online(host.ID))
	_, err = r.Get(s.ID)
	assert.ErrorIs(t, err, engine.ErrGameNotFound)
}

func TestFinishedGameWithNobodyOnlineIsArchived(t *testing.T) {
	r, _ := newTestRegistry(t)
	s := finishGame(t, r, identity("Host"))
	require.Eventually(t, func() bool {
		_, err := r.Get(s.ID)
		return err != nil
	}, time.Second, 5*time.Millisecond)
}

func TestRunningGameSurvivesDisconnect(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()
	host, guest := identity("Host"), identity("Guest")
	r.Connected(host.ID)
	s, err := r.Create(ctx, host)
	require.NoError(t, err)
	require.NoError(t, r.Join(ctx, s.ID, guest))
	require.NoError(t, r.Start(ctx, s.ID, host.ID))

	r.Disconnected(host.ID)
	_, err = r.Get(s.ID)
	require.NoError(t, err)
	assert.True(t, s.View().InProgress)
}
