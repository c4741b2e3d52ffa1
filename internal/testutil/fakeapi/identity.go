package fakeapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"

	"vergabeflow/internal/types"
)

// Account is a user known to the fake identity provider.
type Account struct {
	Password string
	Record   types.User
}

// Identity fakes the PocketBase record-auth endpoints.
type Identity struct {
	mu       sync.Mutex
	secret   []byte
	accounts map[string]Account
	server   *httptest.Server

	// TokenTTL is the lifetime of issued tokens.
	TokenTTL time.Duration
	// Now is the issuing clock.
	Now func() time.Time

	logins    int
	refreshes int
}

type tokenClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// NewIdentity returns an identity fake with no accounts.
func NewIdentity() *Identity {
	return &Identity{
		secret:   []byte("fakeapi-secret"),
		accounts: make(map[string]Account),
		TokenTTL: time.Hour,
		Now:      time.Now,
	}
}

// AddAccount registers a user.
func (i *Identity) AddAccount(email, password string, record types.User) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if record.Email == "" {
		record.Email = email
	}
	i.accounts[email] = Account{Password: password, Record: record}
}

// Router returns the chi router serving /api/collections/{collection}/...
func (i *Identity) Router() http.Handler {
	r := chi.NewRouter()
	r.Route("/api/collections/{collection}", func(r chi.Router) {
		r.Post("/auth-with-password", i.authWithPassword)
		r.Post("/auth-refresh", i.authRefresh)
	})
	return r
}

// Start serves the fake on a local listener.
func (i *Identity) Start() string {
	i.server = httptest.NewServer(i.Router())
	return i.server.URL
}

// Close stops the listener.
func (i *Identity) Close() {
	if i.server != nil {
		i.server.Close()
	}
}

// Counts returns how many logins and refreshes succeeded.
func (i *Identity) Counts() (logins, refreshes int) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.logins, i.refreshes
}

// IssueToken mints a token for email with the given expiry.
func (i *Identity) IssueToken(email string, expires time.Time) (string, error) {
	claims := tokenClaims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   email,
			ExpiresAt: jwt.NewNumericDate(expires),
			IssuedAt:  jwt.NewNumericDate(i.Now()),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
}

func (i *Identity) authWithPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Identity string `json:"identity"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProviderError(w, http.StatusBadRequest, "Failed to authenticate.")
		return
	}

	i.mu.Lock()
	acc, ok := i.accounts[req.Identity]
	i.mu.Unlock()
	if !ok || acc.Password != req.Password {
		writeProviderError(w, http.StatusBadRequest, "Failed to authenticate.")
		return
	}

	i.respond(w, acc.Record, true)
}

func (i *Identity) authRefresh(w http.ResponseWriter, r *http.Request) {
	raw := r.Header.Get("Authorization")
	claims := &tokenClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return i.secret, nil
	}, jwt.WithTimeFunc(i.Now))
	if err != nil || !token.Valid {
		writeProviderError(w, http.StatusUnauthorized, "The request requires valid record authorization token.")
		return
	}

	i.mu.Lock()
	acc, ok := i.accounts[claims.Email]
	i.mu.Unlock()
	if !ok {
		writeProviderError(w, http.StatusNotFound, "Missing auth record context.")
		return
	}

	i.respond(w, acc.Record, false)
}

func (i *Identity) respond(w http.ResponseWriter, record types.User, login bool) {
	token, err := i.IssueToken(record.Email, i.Now().Add(i.TokenTTL))
	if err != nil {
		writeProviderError(w, http.StatusInternalServerError, err.Error())
		return
	}

	i.mu.Lock()
	if login {
		i.logins++
	} else {
		i.refreshes++
	}
	i.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"token": token, "record": record})
}

func writeProviderError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{"code": status, "message": msg, "data": map[string]any{}})
}
