// Package fakeapi provides in-process stand-ins for the generation service
// and the identity provider.
package fakeapi

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"

	"vergabeflow/internal/types"
)

// Response is a canned reply.
type Response struct {
	Status int
	Body   string
}

// Request is a recorded call.
type Request struct {
	Path          string
	Authorization string
	Body          map[string]json.RawMessage
}

// APIKey returns the openrouter_api_key body field, if present.
func (r Request) APIKey() string {
	var s string
	_ = json.Unmarshal(r.Body["openrouter_api_key"], &s)
	return s
}

// Generation fakes the question/description service.
type Generation struct {
	mu sync.Mutex

	// Initial answers /analysis/generate-questions.
	Initial Response
	// FollowUps answers /analysis/generate-more-questions, one entry per
	// call; the last entry repeats.
	FollowUps []Response
	// Description answers /analysis/generate-description.
	Description Response
	// RequireCredential rejects calls carrying neither a bearer token nor
	// an access key.
	RequireCredential bool

	requests []Request
	followN  int
	server   *httptest.Server
}

// NewGeneration returns a fake that serves two questions, no follow-ups and
// a short description.
func NewGeneration() *Generation {
	return &Generation{
		Initial: JSON(http.StatusOK, []types.Question{
			{ID: "a", Text: "Welche Bildschirmgröße wird benötigt?", Options: []string{"13 Zoll", "15 Zoll"}},
			{ID: "b", Text: "Welches Betriebssystem soll installiert sein?"},
		}),
		FollowUps:         []Response{{Status: http.StatusOK, Body: "[]"}},
		Description:       Response{Status: http.StatusOK, Body: "Beschafft werden 50 Laptops mit 15 Zoll Bildschirm und Windows 11."},
		RequireCredential: true,
	}
}

// JSON builds a Response from v.
func JSON(status int, v any) Response {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return Response{Status: status, Body: string(b)}
}

// Detail builds a FastAPI-style error response.
func Detail(status int, msg string) Response {
	return JSON(status, map[string]string{"detail": msg})
}

// Router returns the chi router serving the fake endpoints.
func (g *Generation) Router() http.Handler {
	r := chi.NewRouter()
	r.Route("/analysis", func(r chi.Router) {
		r.Post("/generate-questions", g.handle(func() Response { return g.Initial }))
		r.Post("/generate-more-questions", g.handle(g.nextFollowUp))
		r.Post("/generate-description", g.handle(func() Response { return g.Description }))
	})
	return r
}

// Start serves the fake on a local listener. Call Close when done.
func (g *Generation) Start() string {
	g.server = httptest.NewServer(g.Router())
	return g.server.URL
}

// Close stops the listener.
func (g *Generation) Close() {
	if g.server != nil {
		g.server.Close()
	}
}

// SetInitial replaces the initial-questions reply.
func (g *Generation) SetInitial(r Response) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Initial = r
}

// SetFollowUps replaces the follow-up replies and restarts their sequence.
func (g *Generation) SetFollowUps(rs ...Response) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.FollowUps = rs
	g.followN = 0
}

// SetDescription replaces the description reply.
func (g *Generation) SetDescription(r Response) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Description = r
}

// Requests returns a copy of the recorded calls.
func (g *Generation) Requests() []Request {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]Request(nil), g.requests...)
}

// Calls counts recorded calls to path.
func (g *Generation) Calls(path string) int {
	n := 0
	for _, r := range g.Requests() {
		if strings.HasSuffix(r.Path, path) {
			n++
		}
	}
	return n
}

func (g *Generation) nextFollowUp() Response {
	if len(g.FollowUps) == 0 {
		return Response{Status: http.StatusOK, Body: "[]"}
	}
	i := g.followN
	if i >= len(g.FollowUps) {
		i = len(g.FollowUps) - 1
	}
	g.followN++
	return g.FollowUps[i]
}

func (g *Generation) handle(pick func() Response) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		req := Request{Path: r.URL.Path, Authorization: r.Header.Get("Authorization")}
		_ = json.Unmarshal(data, &req.Body)

		g.mu.Lock()
		g.requests = append(g.requests, req)
		resp := pick()
		require := g.RequireCredential
		g.mu.Unlock()

		if require && !strings.HasPrefix(req.Authorization, "Bearer ") && req.APIKey() == "" {
			resp = Detail(http.StatusUnauthorized, "Kein API-Schlüssel angegeben")
		}

		status := resp.Status
		if status == 0 {
			status = http.StatusOK
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		io.WriteString(w, resp.Body)
	}
}
