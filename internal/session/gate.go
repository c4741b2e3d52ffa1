package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"vergabeflow/internal/logging"
	"vergabeflow/internal/types"
)

// ErrEmptyKey is returned by SetAPIKey for a blank key.
var ErrEmptyKey = errors.New("access key is empty")

// Gate holds the current authorization state. Generation requests may be
// issued when either an authenticated session or an access key is present.
type Gate struct {
	mu       sync.RWMutex
	identity *IdentityClient
	store    AuthStore
	session  *Session
	apiKey   string
	now      func() time.Time
}

// NewGate creates a gate. identity may be nil for key-only use; a nil store
// keeps the session in memory.
func NewGate(identity *IdentityClient, store AuthStore) *Gate {
	if store == nil {
		store = &MemoryStore{}
	}
	return &Gate{identity: identity, store: store, now: time.Now}
}

// Restore loads a persisted session. An expired session is cleared; a valid
// one is refreshed when an identity client is configured. A failed refresh
// clears the session and is not an error.
func (g *Gate) Restore(ctx context.Context) error {
	log := logging.Get(logging.CategorySession)

	s, ok, err := g.store.Load()
	if err != nil {
		log.Warnw("auth store unreadable, starting unauthenticated", "error", err)
		return g.store.Clear()
	}
	if !ok {
		return nil
	}
	if !s.Valid(g.now()) {
		log.Infow("stored session expired", "user", s.User.Email)
		return g.store.Clear()
	}

	g.mu.Lock()
	g.session = &s
	g.mu.Unlock()

	if g.identity == nil {
		return nil
	}
	if err := g.Refresh(ctx); err != nil {
		log.Infow("session refresh failed, logging out", "error", err)
		return g.Logout()
	}
	return nil
}

// Login authenticates against the identity provider and persists the session.
func (g *Gate) Login(ctx context.Context, email, password string) (types.User, error) {
	if g.identity == nil {
		return types.User{}, fmt.Errorf("%w: no identity provider configured", ErrAuth)
	}
	if strings.TrimSpace(email) == "" || password == "" {
		return types.User{}, fmt.Errorf("%w: email and password are required", ErrAuth)
	}

	ar, err := g.identity.AuthWithPassword(ctx, email, password)
	if err != nil {
		if !errors.Is(err, ErrAuth) {
			err = fmt.Errorf("%w: %w", ErrAuth, err)
		}
		return types.User{}, err
	}

	if err := g.adopt(ar); err != nil {
		return types.User{}, err
	}
	logging.Get(logging.CategorySession).Infow("logged in", "user", ar.Record.Email)
	return ar.Record, nil
}

// Refresh renews the current session token.
func (g *Gate) Refresh(ctx context.Context) error {
	g.mu.RLock()
	s := g.session
	g.mu.RUnlock()

	if s == nil {
		return ErrNotAuthorized
	}
	if g.identity == nil {
		return fmt.Errorf("%w: no identity provider configured", ErrAuth)
	}

	ar, err := g.identity.AuthRefresh(ctx, s.Token)
	if err != nil {
		return err
	}
	return g.adopt(ar)
}

func (g *Gate) adopt(ar AuthResponse) error {
	s := Session{Token: ar.Token, User: ar.Record, SavedAt: g.now()}

	g.mu.Lock()
	g.session = &s
	g.mu.Unlock()

	if err := g.store.Save(s); err != nil {
		logging.Get(logging.CategorySession).Warnw("failed to persist session", "error", err)
		return fmt.Errorf("failed to persist session: %w", err)
	}
	return nil
}

// Logout drops the session locally. The access key is kept.
func (g *Gate) Logout() error {
	g.mu.Lock()
	g.session = nil
	g.mu.Unlock()
	return g.store.Clear()
}

// SetAPIKey stores an access key for anonymous use.
func (g *Gate) SetAPIKey(key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return ErrEmptyKey
	}
	g.mu.Lock()
	g.apiKey = key
	g.mu.Unlock()
	return nil
}

// ClearAPIKey forgets the access key.
func (g *Gate) ClearAPIKey() {
	g.mu.Lock()
	g.apiKey = ""
	g.mu.Unlock()
}

// HasAPIKey reports whether an access key is set.
func (g *Gate) HasAPIKey() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.apiKey != ""
}

// Session returns the current session, if authenticated and unexpired.
func (g *Gate) Session() (Session, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.session == nil || !g.session.Valid(g.now()) {
		return Session{}, false
	}
	return *g.session, true
}

// Authenticated reports whether a valid session is present.
func (g *Gate) Authenticated() bool {
	_, ok := g.Session()
	return ok
}

// Credential returns what generation requests should carry. A session wins
// over an access key.
func (g *Gate) Credential() (types.Credential, error) {
	if s, ok := g.Session(); ok {
		return types.Credential{Bearer: s.Token}, nil
	}

	g.mu.RLock()
	key := g.apiKey
	g.mu.RUnlock()
	if key != "" {
		return types.Credential{APIKey: key}, nil
	}
	return types.Credential{}, ErrNotAuthorized
}
