// internal/lobby/registry.go
package lobby

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	engine "github.com/phaseten/phaseten/engine"
	"github.com/phaseten/phaseten/engine/agent"
	"github.com/phaseten/phaseten/internal/game"
	"github.com/phaseten/phaseten/internal/logging"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Publisher delivers what sessions and the registry produce. The websocket
// hub implements it.
type Publisher interface {
	GameEvent(ev game.GameEvent)
	PlayerEvent(userID uuid.UUID, ev game.GameEvent)
	GameList(list []game.Summary)
}

// Deps are shared by every session the registry creates.
type Deps struct {
	Rules     engine.HouseRules
	Timer     game.TurnTimer
	Clock     func() time.Time
	Historian game.Historian
	Results   game.ResultStore
	Brain     agent.Brain
	Seed      func() uint64
}

// Registry owns every live session and the presence counts used to archive
// finished games. The map lock is never held while waiting on a session.
type Registry struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*game.Session
	presence map[uuid.UUID]int

	listMu sync.Mutex

	deps Deps
	pub  Publisher
	log  *logrus.Entry
}

// NewRegistry creates an empty registry. pub may be nil.
func NewRegistry(deps Deps, pub Publisher) *Registry {
	return &Registry{
		sessions: make(map[uuid.UUID]*game.Session),
		presence: make(map[uuid.UUID]int),
		deps:     deps,
		pub:      pub,
		log:      logging.For("lobby"),
	}
}

// Create starts a new session hosted by host.
func (r *Registry) Create(ctx context.Context, host game.Identity) (*game.Session, error) {
	s, err := game.NewSession(game.Options{
		Host:      host,
		Rules:     r.deps.Rules,
		Timer:     r.deps.Timer,
		Clock:     r.deps.Clock,
		Historian: r.deps.Historian,
		Results:   r.deps.Results,
		Brain:     r.deps.Brain,
		Seed:      r.deps.Seed,
	})
	if err != nil {
		return nil, err
	}
	if r.pub != nil {
		s.BroadcastFn = r.pub.GameEvent
		s.BroadcastToPlayerFn = r.pub.PlayerEvent
	}
	s.OnChange = r.onSessionChange
	go s.Run()

	r.mu.Lock()
	r.sessions[s.ID] = s
	r.mu.Unlock()

	r.log.Infof("Game %s created by %s (%s).", s.ID, host.ID, host.Display)
	r.publishList()
	return s, nil
}

// Get returns a live session.
func (r *Registry) Get(id uuid.UUID) (*game.Session, error) {
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return nil, engine.ErrGameNotFound.Withf("game %s not found", id)
	}
	return s, nil
}

// GameOfPlayer returns the live session that seats playerID.
func (r *Registry) GameOfPlayer(playerID uuid.UUID) (uuid.UUID, error) {
	for _, s := range r.live() {
		for _, u := range s.Summary().Users {
			if u.PlayerID == playerID {
				return s.ID, nil
			}
		}
	}
	return uuid.Nil, engine.ErrGameNotFound.Withf("no game seats player %s", playerID)
}

// Join adds a user to a session in the lobby.
func (r *Registry) Join(ctx context.Context, id uuid.UUID, who game.Identity) error {
	s, err := r.Get(id)
	if err != nil {
		return err
	}
	return s.Join(ctx, who)
}

// Unjoin removes a user before the start. The host leaving deletes the game.
func (r *Registry) Unjoin(ctx context.Context, id, userID uuid.UUID) error {
	s, err := r.Get(id)
	if err != nil {
		return err
	}
	hostLeft, err := s.Leave(ctx, userID)
	if err != nil {
		return err
	}
	if hostLeft {
		r.log.Infof("Game %s: Host left the lobby, deleting.", id)
		r.remove(id)
	}
	return nil
}

// Delete removes a session on the host's request. A game in progress needs
// confirm.
func (r *Registry) Delete(ctx context.Context, id, userID uuid.UUID, confirm bool) error {
	s, err := r.Get(id)
	if err != nil {
		return err
	}
	if err := s.Delete(ctx, userID, confirm); err != nil {
		return err
	}
	r.log.Infof("Game %s deleted by host.", id)
	r.remove(id)
	return nil
}

// Start deals the first round.
func (r *Registry) Start(ctx context.Context, id, userID uuid.UUID) error {
	s, err := r.Get(id)
	if err != nil {
		return err
	}
	return s.Start(ctx, userID)
}

// AddBot seats a bot in a lobby.
func (r *Registry) AddBot(ctx context.Context, id, userID uuid.UUID) (game.Member, error) {
	s, err := r.Get(id)
	if err != nil {
		return game.Member{}, err
	}
	return s.AddBot(ctx, userID)
}

// RemoveBot removes a bot from a lobby.
func (r *Registry) RemoveBot(ctx context.Context, id, userID, botID uuid.UUID) error {
	s, err := r.Get(id)
	if err != nil {
		return err
	}
	return s.RemoveBot(ctx, userID, botID)
}

// EditPhases replaces a lobby's phase list.
func (r *Registry) EditPhases(ctx context.Context, id, userID uuid.UUID, phases []string) error {
	s, err := r.Get(id)
	if err != nil {
		return err
	}
	return s.EditPhases(ctx, userID, phases)
}

// SetTurnLimit changes a lobby's turn clock.
func (r *Registry) SetTurnLimit(ctx context.Context, id, userID uuid.UUID, limit time.Duration) error {
	s, err := r.Get(id)
	if err != nil {
		return err
	}
	return s.SetTurnLimit(ctx, userID, limit)
}

// Action routes a player action.
func (r *Registry) Action(ctx context.Context, id, userID uuid.UUID, pa game.PlayerAction) error {
	s, err := r.Get(id)
	if err != nil {
		return err
	}
	return s.HandleAction(ctx, userID, pa)
}

// SkipSlowPlayer routes a skip_slow_player request.
func (r *Registry) SkipSlowPlayer(ctx context.Context, id, userID uuid.UUID) error {
	s, err := r.Get(id)
	if err != nil {
		return err
	}
	return s.SkipSlowPlayer(ctx, userID)
}

// PlayerView returns userID's private view of a session.
func (r *Registry) PlayerView(ctx context.Context, id, userID uuid.UUID) (game.PlayerView, error) {
	s, err := r.Get(id)
	if err != nil {
		return game.PlayerView{}, err
	}
	return s.PlayerView(ctx, userID)
}

// RenameUser updates a display name in every session the user belongs to.
func (r *Registry) RenameUser(ctx context.Context, userID uuid.UUID, display string) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, s := range r.live() {
		g.Go(func() error {
			err := s.Rename(ctx, userID, display)
			if errors.Is(err, engine.ErrSessionClosed) || errors.Is(err, engine.ErrGameNotFound) {
				return nil
			}
			return err
		})
	}
	return g.Wait()
}

// Games returns the summary of every live session, oldest first.
func (r *Registry) Games() []game.Summary {
	list := make([]game.Summary, 0)
	for _, s := range r.live() {
		list = append(list, s.Summary())
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].Created.Equal(list[j].Created) {
			return list[i].ID.String() < list[j].ID.String()
		}
		return list[i].Created.Before(list[j].Created)
	})
	return list
}

// Connected records a new connection for userID.
func (r *Registry) Connected(userID uuid.UUID) {
	r.mu.Lock()
	r.presence[userID]++
	r.mu.Unlock()
}

// Disconnected records a closed connection. Finished games left without any
// connected human are archived.
func (r *Registry) Disconnected(userID uuid.UUID) {
	r.mu.Lock()
	if r.presence[userID] > 1 {
		r.presence[userID]--
		r.mu.Unlock()
		return
	}
	delete(r.presence, userID)
	r.mu.Unlock()
	if r.sweep() > 0 {
		r.publishList()
	}
}

// Online reports whether userID has at least one open connection.
func (r *Registry) Online(userID uuid.UUID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.presence[userID] > 0
}

// Close stops every session.
func (r *Registry) Close() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[uuid.UUID]*game.Session)
	r.mu.Unlock()
	for _, s := range sessions {
		s.Close()
	}
}

func (r *Registry) live() []*game.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*game.Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

func (r *Registry) remove(id uuid.UUID) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if ok {
		s.Close()
		r.publishList()
	}
}

// sweep archives finished sessions whose human members are all offline and
// returns how many it removed.
func (r *Registry) sweep() int {
	r.mu.Lock()
	var archived []*game.Session
	for id, s := range r.sessions {
		sum := s.Summary()
		if !sum.Finished && !sum.Errored {
			continue
		}
		if r.anyHumanOnline(sum) {
			continue
		}
		delete(r.sessions, id)
		archived = append(archived, s)
	}
	r.mu.Unlock()

	for _, s := range archived {
		r.log.Infof("Game %s archived.", s.ID)
		s.Close()
	}
	return len(archived)
}

// anyHumanOnline must be called with mu held.
func (r *Registry) anyHumanOnline(sum game.Summary) bool {
	for _, u := range sum.Users {
		if !u.IsBot && r.presence[u.ID] > 0 {
			return true
		}
	}
	return false
}

func (r *Registry) onSessionChange(uuid.UUID) {
	r.sweep()
	r.publishList()
}

// publishList sends the full game list. Calls are serialized so a later
// list is never overtaken by an earlier one.
func (r *Registry) publishList() {
	if r.pub == nil {
		return
	}
	r.listMu.Lock()
	defer r.listMu.Unlock()
	r.pub.GameList(r.Games())
}
