// internal/server/hub.go
package server

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/phaseten/phaseten/internal/game"
	"github.com/phaseten/phaseten/internal/lobby"
	"github.com/sirupsen/logrus"
)

const (
	sendBuffer   = 64
	writeTimeout = 10 * time.Second
)

// client is one websocket connection. userID and watching are only touched
// under Hub.mu.
type client struct {
	id     uuid.UUID
	conn   *websocket.Conn
	send   chan []byte
	cancel context.CancelFunc
	log    *logrus.Entry

	userID   uuid.UUID
	watching map[uuid.UUID]struct{}

	closeOnce sync.Once
}

// writeLoop drains the send buffer until ctx ends.
func (c *client) writeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-c.send:
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.conn.Write(wctx, websocket.MessageText, msg)
			cancel()
			if err != nil {
				c.log.WithError(err).Debug("Write failed, dropping connection.")
				c.cancel()
				return
			}
		}
	}
}

// Hub tracks connections, the user bound to each and the games they watch.
// It implements lobby.Publisher.
type Hub struct {
	mu       sync.RWMutex
	clients  map[*client]struct{}
	byUser   map[uuid.UUID]map[*client]struct{}
	watchers map[uuid.UUID]map[*client]struct{}
	log      *logrus.Entry
}

var _ lobby.Publisher = (*Hub)(nil)

// NewHub returns an empty hub.
func NewHub(log *logrus.Entry) *Hub {
	return &Hub{
		clients:  make(map[*client]struct{}),
		byUser:   make(map[uuid.UUID]map[*client]struct{}),
		watchers: make(map[uuid.UUID]map[*client]struct{}),
		log:      log,
	}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
}

// unregister forgets c and returns the user it was bound to.
func (h *Hub) unregister(c *client) uuid.UUID {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, c)
	for gameID := range c.watching {
		removeFrom(h.watchers, gameID, c)
	}
	c.watching = nil
	user := c.userID
	if user != uuid.Nil {
		removeFrom(h.byUser, user, c)
		c.userID = uuid.Nil
	}
	return user
}

// bind associates c with userID and returns the user it replaced.
func (h *Hub) bind(c *client, userID uuid.UUID) (previous uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	previous = c.userID
	if previous == userID {
		return previous
	}
	if previous != uuid.Nil {
		removeFrom(h.byUser, previous, c)
	}
	c.userID = userID
	if userID != uuid.Nil {
		addTo(h.byUser, userID, c)
	}
	return previous
}

func (h *Hub) boundUser(c *client) uuid.UUID {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return c.userID
}

// watch subscribes c to the public snapshots of gameID.
func (h *Hub) watch(c *client, gameID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	if c.watching == nil {
		c.watching = make(map[uuid.UUID]struct{})
	}
	c.watching[gameID] = struct{}{}
	addTo(h.watchers, gameID, c)
}

// GameEvent sends a public event to every watcher of its game.
func (h *Hub) GameEvent(ev game.GameEvent) {
	msg, err := json.Marshal(ev)
	if err != nil {
		h.log.WithError(err).Error("Failed to encode game event.")
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.watchers[ev.GameID] {
		h.enqueue(c, msg)
	}
}

// PlayerEvent sends a private event to every connection of userID.
func (h *Hub) PlayerEvent(userID uuid.UUID, ev game.GameEvent) {
	msg, err := json.Marshal(ev)
	if err != nil {
		h.log.WithError(err).Error("Failed to encode player event.")
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.byUser[userID] {
		h.enqueue(c, msg)
	}
}

// GameList sends the full game list to every connection.
func (h *Hub) GameList(list []game.Summary) {
	h.broadcast(GamesReply{Type: TypeGetGames, Games: list})
}

// broadcast sends v to every connection.
func (h *Hub) broadcast(v any) {
	msg, err := json.Marshal(v)
	if err != nil {
		h.log.WithError(err).Error("Failed to encode broadcast.")
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		h.enqueue(c, msg)
	}
}

// reply sends v to c alone.
func (h *Hub) reply(c *client, v any) {
	msg, err := json.Marshal(v)
	if err != nil {
		h.log.WithError(err).Error("Failed to encode reply.")
		return
	}
	h.enqueue(c, msg)
}

// enqueue never blocks: a client that cannot keep up is disconnected.
func (h *Hub) enqueue(c *client, msg []byte) {
	select {
	case c.send <- msg:
	default:
		c.closeOnce.Do(func() {
			c.log.Warn("Send buffer full, closing slow connection.")
			c.cancel()
		})
	}
}

func addTo(m map[uuid.UUID]map[*client]struct{}, key uuid.UUID, c *client) {
	set, ok := m[key]
	if !ok {
		set = make(map[*client]struct{})
		m[key] = set
	}
	set[c] = struct{}{}
}

func removeFrom(m map[uuid.UUID]map[*client]struct{}, key uuid.UUID, c *client) {
	set, ok := m[key]
	if !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(m, key)
	}
}
