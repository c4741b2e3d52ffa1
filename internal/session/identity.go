// Package session decides whether generation requests may be issued and
// with which credential.
package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"vergabeflow/internal/logging"
	"vergabeflow/internal/types"
)

var (
	// ErrAuth is returned when the identity provider rejects a login or refresh.
	ErrAuth = errors.New("authentication failed")
	// ErrNotAuthorized is returned while neither a session nor an access key is present.
	ErrNotAuthorized = errors.New("not authorized")
)

// IdentityConfig configures an IdentityClient.
type IdentityConfig struct {
	BaseURL    string
	Collection string
	Timeout    time.Duration
}

// IdentityClient speaks the PocketBase record-auth API.
type IdentityClient struct {
	baseURL    string
	collection string
	httpClient *http.Client
}

// NewIdentityClient creates a client for cfg.
func NewIdentityClient(cfg IdentityConfig) *IdentityClient {
	if cfg.Collection == "" {
		cfg.Collection = "users"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &IdentityClient{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		collection: cfg.Collection,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// AuthResponse is the body returned by auth-with-password and auth-refresh.
type AuthResponse struct {
	Token  string     `json:"token"`
	Record types.User `json:"record"`
}

type passwordRequest struct {
	Identity string `json:"identity"`
	Password string `json:"password"`
}

type providerError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// AuthWithPassword exchanges credentials for a session token.
func (c *IdentityClient) AuthWithPassword(ctx context.Context, email, password string) (AuthResponse, error) {
	body, err := json.Marshal(passwordRequest{Identity: email, Password: password})
	if err != nil {
		return AuthResponse{}, fmt.Errorf("failed to marshal request: %w", err)
	}
	return c.do(ctx, "auth-with-password", body, "")
}

// AuthRefresh exchanges a still-valid token for a fresh one.
func (c *IdentityClient) AuthRefresh(ctx context.Context, token string) (AuthResponse, error) {
	return c.do(ctx, "auth-refresh", nil, token)
}

func (c *IdentityClient) do(ctx context.Context, action string, body []byte, token string) (AuthResponse, error) {
	log := logging.Get(logging.CategorySession)
	endpoint := fmt.Sprintf("%s/api/collections/%s/%s", c.baseURL, url.PathEscape(c.collection), action)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return AuthResponse{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		// PocketBase expects the raw token, no scheme
		req.Header.Set("Authorization", token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Warnw("identity request failed", "action", action, "error", err)
		return AuthResponse{}, fmt.Errorf("identity provider unreachable: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return AuthResponse{}, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var pe providerError
		msg := resp.Status
		if json.Unmarshal(data, &pe) == nil && pe.Message != "" {
			msg = pe.Message
		}
		log.Infow("identity provider rejected request", "action", action, "status", resp.StatusCode)
		return AuthResponse{}, fmt.Errorf("%w: %s", ErrAuth, msg)
	}

	var ar AuthResponse
	if err := json.Unmarshal(data, &ar); err != nil {
		return AuthResponse{}, fmt.Errorf("%w: malformed response: %v", ErrAuth, err)
	}
	if ar.Token == "" {
		return AuthResponse{}, fmt.Errorf("%w: response carried no token", ErrAuth)
	}
	return ar, nil
}
