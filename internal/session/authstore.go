package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"vergabeflow/internal/types"
)

// Session is an authenticated identity-provider session.
type Session struct {
	Token   string     `json:"token"`
	User    types.User `json:"record"`
	SavedAt time.Time  `json:"saved_at"`
}

// Valid reports whether the token is still usable at now.
func (s Session) Valid(now time.Time) bool {
	return TokenValid(s.Token, now)
}

// Expiry returns the token's exp claim, if any.
func (s Session) Expiry() (time.Time, bool) {
	return tokenExpiry(s.Token)
}

// TokenValid decodes the token without verifying its signature and checks
// the exp claim. A token without exp never expires, matching the identity
// provider's client SDK.
func TokenValid(token string, now time.Time) bool {
	if token == "" {
		return false
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}
	if len(claims) == 0 {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return false
	}
	if exp == nil {
		return true
	}
	return now.Before(exp.Time)
}

func tokenExpiry(token string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

// AuthStore persists a Session between runs.
type AuthStore interface {
	Load() (Session, bool, error)
	Save(Session) error
	Clear() error
}

// FileStore keeps the session as JSON in a single 0600 file.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore returns a store backed by path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file.
func (f *FileStore) Path() string { return f.path }

// Load returns the stored session; ok is false when nothing is stored.
func (f *FileStore) Load() (Session, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return Session{}, false, nil
	}
	if err != nil {
		return Session{}, false, err
	}

	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return Session{}, false, fmt.Errorf("unknown auth file format: %w", err)
	}
	if s.Token == "" {
		return Session{}, false, nil
	}
	return s, true, nil
}

// Save writes s, creating the parent directory if needed.
func (f *FileStore) Save(s Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0755); err != nil {
		return err
	}
	return os.WriteFile(f.path, data, 0600)
}

// Clear removes the stored session.
func (f *FileStore) Clear() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// MemoryStore is an AuthStore that never touches disk.
type MemoryStore struct {
	mu      sync.Mutex
	session Session
	ok      bool
}

// Load returns the held session.
func (m *MemoryStore) Load() (Session, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session, m.ok, nil
}

// Save replaces the held session.
func (m *MemoryStore) Save(s Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session, m.ok = s, true
	return nil
}

// Clear drops the held session.
func (m *MemoryStore) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session, m.ok = Session{}, false
	return nil
}
