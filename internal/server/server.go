// internal/server/server.go
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	engine "github.com/phaseten/phaseten/engine"
	"github.com/phaseten/phaseten/internal/game"
	"github.com/phaseten/phaseten/internal/lobby"
	"github.com/phaseten/phaseten/internal/logging"
	"github.com/phaseten/phaseten/internal/users"
	"github.com/sirupsen/logrus"
)

const (
	readLimit      = 64 << 10
	requestTimeout = 10 * time.Second
)

type handlerFunc func(ctx context.Context, c *client, m Message) error

// Server speaks the JSON websocket protocol on /ws.
type Server struct {
	hub      *Hub
	lobby    *lobby.Registry
	users    *users.Directory
	origins  []string
	handlers map[string]handlerFunc
	log      *logrus.Entry
}

// New wires a server. hub must be the publisher the registry was built with.
// origins lists additional accepted Origin host patterns.
func New(hub *Hub, reg *lobby.Registry, dir *users.Directory, origins []string) *Server {
	s := &Server{
		hub:     hub,
		lobby:   reg,
		users:   dir,
		origins: origins,
		log:     logging.For("server"),
	}
	s.handlers = map[string]handlerFunc{
		TypeConnection:      s.handleConnection,
		TypeDisconnection:   s.handleDisconnection,
		TypeNewUser:         s.handleNewUser,
		TypeGetUsers:        s.handleGetUsers,
		TypeGetGames:        s.handleGetGames,
		TypeGetPlayer:       s.handleGetPlayer,
		TypeGetGame:         s.handleGetGame,
		TypeCreateGame:      s.handleCreateGame,
		TypeJoinGame:        s.handleJoinGame,
		TypeUnjoinGame:      s.handleUnjoinGame,
		TypeDeleteGame:      s.handleDeleteGame,
		TypeStartGame:       s.handleStartGame,
		TypeAddBot:          s.handleAddBot,
		TypeRemoveBot:       s.handleRemoveBot,
		TypeEditGamePhase:   s.handleEditGamePhase,
		TypeSetTurnLimit:    s.handleSetTurnLimit,
		TypeEditDisplayName: s.handleEditDisplayName,
		TypePlayerAction:    s.handlePlayerAction,
		TypeSkipSlowPlayer:  s.handleSkipSlowPlayer,
	}
	return s
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.serveWS)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: s.origins})
	if err != nil {
		s.log.WithError(err).Warn("Websocket upgrade failed.")
		return
	}
	conn.SetReadLimit(readLimit)

	ctx, cancel := context.WithCancel(r.Context())
	c := &client{
		id:     uuid.New(),
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		cancel: cancel,
	}
	c.log = s.log.WithField("conn", c.id)
	s.hub.register(c)
	go c.writeLoop(ctx)
	c.log.Debug("Connection opened.")

	defer func() {
		cancel()
		if user := s.hub.unregister(c); user != uuid.Nil {
			s.lobby.Disconnected(user)
			s.broadcastUsers()
		}
		conn.Close(websocket.StatusNormalClosure, "")
		c.log.Debug("Connection closed.")
	}()

	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			if !errClosed(err) {
				c.log.WithError(err).Debug("Read failed.")
			}
			return
		}
		if typ != websocket.MessageText {
			continue
		}
		var m Message
		if err := json.Unmarshal(data, &m); err != nil {
			s.hub.reply(c, rejection(Message{}, engine.ErrUnknownAction.Withf("malformed message: %v", err)))
			continue
		}
		s.dispatch(ctx, c, m)
	}
}

// dispatch runs one request and answers failures with a rejection.
func (s *Server) dispatch(ctx context.Context, c *client, m Message) {
	h, ok := s.handlers[m.Type]
	if !ok {
		s.hub.reply(c, rejection(m, engine.ErrUnknownAction.Withf("unknown message type %q", m.Type)))
		return
	}
	rctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	err := h(rctx, c, m)
	if err == nil {
		return
	}
	entry := c.log.WithFields(logrus.Fields{"type": m.Type, "game": m.GameID})
	if engine.KindOf(err) == engine.KindInternal {
		entry.WithError(err).Error("Request failed.")
	} else {
		entry.WithError(err).Debug("Request rejected.")
	}
	s.hub.reply(c, rejection(m, err))
}

// identify resolves the caller from the message credentials or the identity
// bound to the connection.
func (s *Server) identify(c *client, m Message) (users.User, error) {
	switch {
	case m.UserID != "":
		id, err := requiredID(m.UserID, engine.ErrUnauthorized)
		if err != nil {
			return users.User{}, err
		}
		return s.users.Authenticate(id, m.Token)
	case m.Token != "":
		return s.users.AuthenticateToken(m.Token)
	}
	if id := s.hub.boundUser(c); id != uuid.Nil {
		if u, ok := s.users.Get(id); ok {
			return u, nil
		}
	}
	return users.User{}, engine.ErrUnauthorized.Withf("send user_id and token, or a connection message first")
}

// bindUser moves the connection to userID and keeps presence counts right.
func (s *Server) bindUser(c *client, userID uuid.UUID) {
	prev := s.hub.bind(c, userID)
	if prev == userID {
		return
	}
	if prev != uuid.Nil {
		s.lobby.Disconnected(prev)
	}
	if userID != uuid.Nil {
		s.lobby.Connected(userID)
	}
	s.broadcastUsers()
}

func (s *Server) usersReply() UsersReply {
	list := s.users.List()
	out := UsersReply{Type: TypeGetUsers, Users: make([]UserInfo, len(list))}
	for i, u := range list {
		out.Users[i] = UserInfo{User: u, Online: s.lobby.Online(u.ID)}
	}
	return out
}

func (s *Server) broadcastUsers() {
	s.hub.broadcast(s.usersReply())
}

func identity(u users.User) game.Identity {
	return game.Identity{ID: u.ID, Display: u.Display}
}

func (s *Server) handleConnection(ctx context.Context, c *client, m Message) error {
	if m.Token != "" || m.UserID != "" {
		u, err := s.identify(c, m)
		if err != nil {
			return err
		}
		s.bindUser(c, u.ID)
		c.log.Infof("Connection bound to user %s.", u.ID)
	}
	s.hub.reply(c, s.usersReply())
	s.hub.reply(c, GamesReply{Type: TypeGetGames, Games: s.lobby.Games()})
	return nil
}

func (s *Server) handleDisconnection(ctx context.Context, c *client, m Message) error {
	s.bindUser(c, uuid.Nil)
	return nil
}

func (s *Server) handleNewUser(ctx context.Context, c *client, m Message) error {
	u, token, err := s.users.Create(m.Name)
	if err != nil {
		return err
	}
	c.log.Infof("Created user %s (%s).", u.ID, u.Display)
	s.hub.reply(c, NewUserReply{Type: TypeNewUser, User: u, Token: token})
	s.bindUser(c, u.ID)
	return nil
}

func (s *Server) handleGetUsers(ctx context.Context, c *client, m Message) error {
	s.hub.reply(c, s.usersReply())
	return nil
}

func (s *Server) handleGetGames(ctx context.Context, c *client, m Message) error {
	s.hub.reply(c, GamesReply{Type: TypeGetGames, Games: s.lobby.Games()})
	return nil
}

func (s *Server) handleGetPlayer(ctx context.Context, c *client, m Message) error {
	u, err := s.identify(c, m)
	if err != nil {
		return err
	}
	gameID, err := requiredID(m.GameID, engine.ErrGameNotFound)
	if err != nil {
		return err
	}
	pv, err := s.lobby.PlayerView(ctx, gameID, u.ID)
	if err != nil {
		return err
	}
	s.hub.reply(c, game.GameEvent{Type: game.EventPlayerState, GameID: gameID, Player: &pv})
	return nil
}

// handleGetGame also subscribes the connection to the game's snapshots.
func (s *Server) handleGetGame(ctx context.Context, c *client, m Message) error {
	sess, err := s.session(m)
	if err != nil {
		return err
	}
	s.hub.watch(c, sess.ID)
	v := sess.View()
	s.hub.reply(c, game.GameEvent{Type: game.EventGameState, GameID: sess.ID, Game: &v})
	return nil
}

func (s *Server) handleCreateGame(ctx context.Context, c *client, m Message) error {
	u, err := s.identify(c, m)
	if err != nil {
		return err
	}
	sess, err := s.lobby.Create(ctx, identity(u))
	if err != nil {
		return err
	}
	s.hub.watch(c, sess.ID)
	s.hub.reply(c, CreateGameReply{Type: TypeCreateGame, GameID: sess.ID, Game: sess.View()})
	return nil
}

func (s *Server) handleJoinGame(ctx context.Context, c *client, m Message) error {
	u, err := s.identify(c, m)
	if err != nil {
		return err
	}
	sess, err := s.session(m)
	if err != nil {
		return err
	}
	s.hub.watch(c, sess.ID)
	return sess.Join(ctx, identity(u))
}

func (s *Server) handleUnjoinGame(ctx context.Context, c *client, m Message) error {
	return s.withGame(c, m, func(u users.User, gameID uuid.UUID) error {
		return s.lobby.Unjoin(ctx, gameID, u.ID)
	})
}

func (s *Server) handleDeleteGame(ctx context.Context, c *client, m Message) error {
	return s.withGame(c, m, func(u users.User, gameID uuid.UUID) error {
		return s.lobby.Delete(ctx, gameID, u.ID, m.Confirm)
	})
}

func (s *Server) handleStartGame(ctx context.Context, c *client, m Message) error {
	return s.withGame(c, m, func(u users.User, gameID uuid.UUID) error {
		return s.lobby.Start(ctx, gameID, u.ID)
	})
}

func (s *Server) handleAddBot(ctx context.Context, c *client, m Message) error {
	return s.withGame(c, m, func(u users.User, gameID uuid.UUID) error {
		_, err := s.lobby.AddBot(ctx, gameID, u.ID)
		return err
	})
}

func (s *Server) handleRemoveBot(ctx context.Context, c *client, m Message) error {
	botID, err := requiredID(m.BotID, engine.ErrPlayerNotFound)
	if err != nil {
		return err
	}
	return s.withGame(c, m, func(u users.User, gameID uuid.UUID) error {
		return s.lobby.RemoveBot(ctx, gameID, u.ID, botID)
	})
}

func (s *Server) handleEditGamePhase(ctx context.Context, c *client, m Message) error {
	return s.withGame(c, m, func(u users.User, gameID uuid.UUID) error {
		return s.lobby.EditPhases(ctx, gameID, u.ID, m.NewPhase)
	})
}

func (s *Server) handleSetTurnLimit(ctx context.Context, c *client, m Message) error {
	if m.TurnLimit == nil {
		return engine.ErrInvalidSetting.Withf("turn_limit is required")
	}
	limit := time.Duration(*m.TurnLimit) * time.Second
	return s.withGame(c, m, func(u users.User, gameID uuid.UUID) error {
		return s.lobby.SetTurnLimit(ctx, gameID, u.ID, limit)
	})
}

func (s *Server) handleEditDisplayName(ctx context.Context, c *client, m Message) error {
	u, err := s.identify(c, m)
	if err != nil {
		return err
	}
	u, err = s.users.Rename(u.ID, m.DisplayName)
	if err != nil {
		return err
	}
	if err := s.lobby.RenameUser(ctx, u.ID, u.Display); err != nil {
		return err
	}
	s.broadcastUsers()
	return nil
}

func (s *Server) handlePlayerAction(ctx context.Context, c *client, m Message) error {
	pa, err := m.playerAction()
	if err != nil {
		return err
	}
	return s.withSeat(c, m, func(u users.User, gameID uuid.UUID) error {
		return s.lobby.Action(ctx, gameID, u.ID, pa)
	})
}

func (s *Server) handleSkipSlowPlayer(ctx context.Context, c *client, m Message) error {
	return s.withSeat(c, m, func(u users.User, gameID uuid.UUID) error {
		return s.lobby.SkipSlowPlayer(ctx, gameID, u.ID)
	})
}

// withGame identifies the caller and parses the game id before running fn.
func (s *Server) withGame(c *client, m Message, fn func(u users.User, gameID uuid.UUID) error) error {
	u, err := s.identify(c, m)
	if err != nil {
		return err
	}
	gameID, err := requiredID(m.GameID, engine.ErrGameNotFound)
	if err != nil {
		return err
	}
	return fn(u, gameID)
}

// withSeat is withGame for in-game requests, which may name the game through
// the caller's player id alone.
func (s *Server) withSeat(c *client, m Message, fn func(u users.User, gameID uuid.UUID) error) error {
	if m.GameID != "" || m.PlayerID == "" {
		return s.withGame(c, m, fn)
	}
	u, err := s.identify(c, m)
	if err != nil {
		return err
	}
	playerID, err := requiredID(m.PlayerID, engine.ErrPlayerNotFound)
	if err != nil {
		return err
	}
	gameID, err := s.lobby.GameOfPlayer(playerID)
	if err != nil {
		return err
	}
	return fn(u, gameID)
}

func (s *Server) session(m Message) (*game.Session, error) {
	gameID, err := requiredID(m.GameID, engine.ErrGameNotFound)
	if err != nil {
		return nil, err
	}
	return s.lobby.Get(gameID)
}

// errClosed reports whether err only means the peer went away.
func errClosed(err error) bool {
	return errors.Is(err, context.Canceled) || websocket.CloseStatus(err) != -1
}
