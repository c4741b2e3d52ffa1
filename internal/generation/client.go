// Package generation talks to the remote question and description service.
package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"vergabeflow/internal/logging"
	"vergabeflow/internal/types"
)

var (
	// ErrService is returned for non-success responses from the service.
	ErrService = errors.New("generation service error")
	// ErrTransport is returned when the request could not be exchanged.
	ErrTransport = errors.New("generation transport error")
)

const (
	pathQuestions     = "/analysis/generate-questions"
	pathMoreQuestions = "/analysis/generate-more-questions"
	pathDescription   = "/analysis/generate-description"

	maxResponseBytes = 8 << 20
)

// Config configures a Client.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// DefaultConfig returns the production endpoint with a generous timeout;
// description generation routinely takes minutes.
func DefaultConfig() Config {
	return Config{
		BaseURL: "https://api.tenderfuchs.de/api",
		Timeout: 10 * time.Minute,
	}
}

// Client is the strict generation client. Every call is a single POST and
// every failure is returned.
type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
}

// NewClient creates a client for cfg.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultConfig().BaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{},
		timeout:    cfg.Timeout,
	}
}

// WithHTTPClient swaps the underlying http.Client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

// BaseURL returns the configured service root.
func (c *Client) BaseURL() string { return c.baseURL }

type questionsRequest struct {
	Description     string `json:"description"`
	ProcurementType string `json:"procurement_type"`
	APIKey          string `json:"openrouter_api_key,omitempty"`
}

type moreQuestionsRequest struct {
	PreviousQuestions []types.Question `json:"previous_questions"`
	PreviousAnswers   []types.Answer   `json:"previous_answers"`
	APIKey            string           `json:"openrouter_api_key,omitempty"`
}

// DescriptionRequest carries everything needed to produce the final
// requirements description.
type DescriptionRequest struct {
	ID              string           `json:"id,omitempty"`
	Description     string           `json:"description"`
	ProcurementType string           `json:"procurement_type"`
	Questions       []types.Question `json:"questions"`
	Answers         []types.Answer   `json:"answers"`
	APIKey          string           `json:"openrouter_api_key,omitempty"`
}

type errorBody struct {
	Detail json.RawMessage `json:"detail"`
}

// InitialQuestions requests the first round of clarifying questions.
func (c *Client) InitialQuestions(ctx context.Context, description, procurementType string, cred types.Credential) ([]types.Question, error) {
	req := questionsRequest{
		Description:     description,
		ProcurementType: procurementType,
		APIKey:          bodyKey(cred),
	}
	body, err := c.post(ctx, pathQuestions, req, cred, "Failed to generate questions")
	if err != nil {
		return nil, err
	}
	return c.decodeQuestions(pathQuestions, body)
}

// FollowUpQuestions requests additional questions given everything asked
// and answered so far.
func (c *Client) FollowUpQuestions(ctx context.Context, prevQuestions []types.Question, prevAnswers []types.Answer, cred types.Credential) ([]types.Question, error) {
	req := moreQuestionsRequest{
		PreviousQuestions: nonNilQuestions(prevQuestions),
		PreviousAnswers:   nonNilAnswers(prevAnswers),
		APIKey:            bodyKey(cred),
	}
	body, err := c.post(ctx, pathMoreQuestions, req, cred, "Failed to generate more questions")
	if err != nil {
		return nil, err
	}
	return c.decodeQuestions(pathMoreQuestions, body)
}

// Description requests the final requirements description. The response
// body is the text itself.
func (c *Client) Description(ctx context.Context, dr DescriptionRequest, cred types.Credential) (string, error) {
	dr.APIKey = bodyKey(cred)
	dr.Questions = nonNilQuestions(dr.Questions)
	dr.Answers = nonNilAnswers(dr.Answers)

	body, err := c.post(ctx, pathDescription, dr, cred, "Failed to generate description")
	if err != nil {
		return "", err
	}
	return decodeText(body), nil
}

func (c *Client) decodeQuestions(path string, body []byte) ([]types.Question, error) {
	shape, qs, err := ParseQuestions(body)
	if err != nil {
		logging.Get(logging.CategoryAPI).Warnw("unusable question payload", "path", path, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrService, err)
	}
	logging.Get(logging.CategoryAPI).Debugw("questions decoded", "path", path, "shape", shape.String(), "count", len(qs))
	return qs, nil
}

func (c *Client) post(ctx context.Context, path string, payload any, cred types.Credential, fallback string) ([]byte, error) {
	log := logging.Get(logging.CategoryAPI)
	timer := logging.StartTimer(logging.CategoryAPI, path)
	defer timer.Stop()

	if _, hasDeadline := ctx.Deadline(); !hasDeadline && c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create request: %v", ErrTransport, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if h := cred.AuthorizationHeader(); h != "" {
		req.Header.Set("Authorization", h)
	}

	log.Debugw("request", "path", path, "credential", cred.String(), "bytes", len(data))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Warnw("request failed", "path", path, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %v", ErrTransport, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := detailMessage(body, fallback)
		log.Warnw("service error", "path", path, "status", resp.StatusCode, "detail", msg)
		return nil, &ServiceError{Status: resp.StatusCode, Detail: msg}
	}
	return body, nil
}

// ServiceError is a non-success response. It matches ErrService.
type ServiceError struct {
	Status int
	Detail string
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("%s (status %d)", e.Detail, e.Status)
}

// Is reports ErrService so callers can match with errors.Is.
func (e *ServiceError) Is(target error) bool { return target == ErrService }

// detailMessage extracts {"detail": ...}. FastAPI validation errors carry a
// list here; those are returned as compact JSON.
func detailMessage(body []byte, fallback string) string {
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err != nil || len(eb.Detail) == 0 || string(eb.Detail) == "null" {
		return fallback
	}
	if msg := strings.TrimSpace(valueText(eb.Detail)); msg != "" {
		return msg
	}
	return fallback
}

// decodeText unwraps a JSON string body; anything else is used as-is.
func decodeText(body []byte) string {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err == nil {
			return s
		}
	}
	return string(body)
}

// bodyKey returns the access key only when no session token is present.
func bodyKey(cred types.Credential) string {
	if cred.Bearer != "" {
		return ""
	}
	return cred.APIKey
}

func nonNilQuestions(qs []types.Question) []types.Question {
	if qs == nil {
		return []types.Question{}
	}
	return qs
}

func nonNilAnswers(as []types.Answer) []types.Answer {
	if as == nil {
		return []types.Answer{}
	}
	return as
}
