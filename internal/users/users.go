// internal/users/users.go
package users

import (
	"context"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	engine "github.com/phaseten/phaseten/engine"
	"github.com/phaseten/phaseten/internal/auth"
	"github.com/phaseten/phaseten/internal/database"
	"github.com/sirupsen/logrus"
)

// MaxNameLen is the longest display name accepted, in runes.
const MaxNameLen = 32

// User is a directory entry.
type User struct {
	ID      uuid.UUID `json:"id"`
	Display string    `json:"display_name"`
	Created time.Time `json:"created"`
}

// Store persists directory changes. database.Store satisfies it.
type Store interface {
	UpsertUser(ctx context.Context, id uuid.UUID, display string, createdAt time.Time) error
}

// Directory is the in-memory registry of known users.
type Directory struct {
	mu     sync.RWMutex
	users  map[uuid.UUID]*User
	order  []uuid.UUID
	tokens *auth.Tokens
	store  Store
	now    func() time.Time
	log    *logrus.Entry
}

// NewDirectory returns an empty directory. store may be nil.
func NewDirectory(tokens *auth.Tokens, store Store) *Directory {
	return &Directory{
		users:  make(map[uuid.UUID]*User),
		tokens: tokens,
		store:  store,
		now:    time.Now,
		log:    logrus.WithField("component", "users"),
	}
}

// Restore loads previously persisted users without re-persisting them.
func (d *Directory) Restore(records []database.UserRecord) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, r := range records {
		if _, ok := d.users[r.ID]; ok {
			continue
		}
		d.users[r.ID] = &User{ID: r.ID, Display: r.Display, Created: r.CreatedAt}
		d.order = append(d.order, r.ID)
	}
	d.log.Infof("Restored %d users.", len(records))
}

// Create registers a new user and returns it with a freshly issued token.
func (d *Directory) Create(name string) (User, string, error) {
	name, err := cleanName(name)
	if err != nil {
		return User{}, "", err
	}
	u := &User{ID: uuid.New(), Display: name, Created: d.now()}
	token, err := d.tokens.Issue(u.ID)
	if err != nil {
		return User{}, "", err
	}

	d.mu.Lock()
	d.users[u.ID] = u
	d.order = append(d.order, u.ID)
	out := *u
	d.mu.Unlock()

	d.log.Infof("User %s (%s) created.", out.ID, out.Display)
	d.persist(out)
	return out, token, nil
}

// Get returns the user with id.
func (d *Directory) Get(id uuid.UUID) (User, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.users[id]
	if !ok {
		return User{}, false
	}
	return *u, true
}

// List returns every user in creation order.
func (d *Directory) List() []User {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]User, 0, len(d.order))
	for _, id := range d.order {
		out = append(out, *d.users[id])
	}
	return out
}

// Rename changes a user's display name.
func (d *Directory) Rename(id uuid.UUID, name string) (User, error) {
	name, err := cleanName(name)
	if err != nil {
		return User{}, err
	}
	d.mu.Lock()
	u, ok := d.users[id]
	if !ok {
		d.mu.Unlock()
		return User{}, engine.ErrUserNotFound
	}
	u.Display = name
	out := *u
	d.mu.Unlock()

	d.persist(out)
	return out, nil
}

// Authenticate checks that token was issued for id and that id is known.
func (d *Directory) Authenticate(id uuid.UUID, token string) (User, error) {
	sub, err := d.tokens.Verify(token)
	if err != nil {
		return User{}, err
	}
	if sub != id {
		return User{}, engine.ErrUnauthorized.Withf("token does not belong to user %s", id)
	}
	u, ok := d.Get(id)
	if !ok {
		return User{}, engine.ErrUserNotFound
	}
	return u, nil
}

// AuthenticateToken resolves the user a token was issued for.
func (d *Directory) AuthenticateToken(token string) (User, error) {
	sub, err := d.tokens.Verify(token)
	if err != nil {
		return User{}, err
	}
	u, ok := d.Get(sub)
	if !ok {
		return User{}, engine.ErrUserNotFound
	}
	return u, nil
}

func (d *Directory) persist(u User) {
	if d.store == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := d.store.UpsertUser(ctx, u.ID, u.Display, u.Created); err != nil {
			d.log.WithError(err).Errorf("Failed persisting user %s.", u.ID)
		}
	}()
}

func cleanName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if n := utf8.RuneCountInString(name); n == 0 || n > MaxNameLen {
		return "", engine.ErrInvalidName
	}
	return name, nil
}
