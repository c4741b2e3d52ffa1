package generation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vergabeflow/internal/types"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(h)
	t.Cleanup(server.Close)
	return NewClient(Config{BaseURL: server.URL + "/", Timeout: 5 * time.Second})
}

func TestClient_InitialQuestions_BearerCredential(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, pathQuestions, r.URL.Path)
		assert.Equal(t, "Bearer tok-123", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Beschaffung von 50 Laptops", body["description"])
		assert.Equal(t, "Hardware", body["procurement_type"])
		_, hasKey := body["openrouter_api_key"]
		assert.False(t, hasKey, "access key must not be sent with a session token")

		w.Write([]byte(`[{"text":"Welche Bildschirmgröße?"},{"text":"Welches Betriebssystem?"}]`))
	})

	qs, err := client.InitialQuestions(context.Background(), "Beschaffung von 50 Laptops", "Hardware",
		types.Credential{Bearer: "tok-123", APIKey: "ignored"})
	require.NoError(t, err)
	require.Len(t, qs, 2)
	assert.Equal(t, "q-0", qs[0].ID)
	assert.Equal(t, "Welches Betriebssystem?", qs[1].Text)
}

func TestClient_InitialQuestions_APIKeyInBody(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "sk-or-abc", body["openrouter_api_key"])
		w.Write([]byte(`{"questions":[{"question":"Budget?"}]}`))
	})

	qs, err := client.InitialQuestions(context.Background(), "d", "Bauleistung", types.Credential{APIKey: "sk-or-abc"})
	require.NoError(t, err)
	require.Len(t, qs, 1)
	assert.Equal(t, "Budget?", qs[0].Text)
}

func TestClient_FollowUpQuestions_SendsHistory(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, pathMoreQuestions, r.URL.Path)
		var body struct {
			PreviousQuestions []map[string]any `json:"previous_questions"`
			PreviousAnswers   []map[string]any `json:"previous_answers"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Len(t, body.PreviousQuestions, 1)
		require.Len(t, body.PreviousAnswers, 1)
		assert.Equal(t, "q-0", body.PreviousQuestions[0]["id"])
		assert.Equal(t, "q-0", body.PreviousAnswers[0]["questionId"])
		assert.Equal(t, "15 Zoll", body.PreviousAnswers[0]["text"])
		w.Write([]byte(`[]`))
	})

	qs, err := client.FollowUpQuestions(context.Background(),
		[]types.Question{{ID: "q-0", Text: "Größe?"}},
		[]types.Answer{{QuestionID: "q-0", Text: "15 Zoll"}},
		types.Credential{Bearer: "t"})
	require.NoError(t, err)
	assert.Empty(t, qs)
}

func TestClient_FollowUpQuestions_NilSlicesSentAsArrays(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]json.RawMessage
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.JSONEq(t, `[]`, string(body["previous_questions"]))
		assert.JSONEq(t, `[]`, string(body["previous_answers"]))
		w.Write([]byte(`[]`))
	})

	_, err := client.FollowUpQuestions(context.Background(), nil, nil, types.Credential{APIKey: "k"})
	require.NoError(t, err)
}

func TestClient_Description(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
		want string
	}{
		{name: "plain text", body: "Es werden 50 Laptops beschafft.", want: "Es werden 50 Laptops beschafft."},
		{name: "json string", body: `"Es werden 50 Laptops beschafft."`, want: "Es werden 50 Laptops beschafft."},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, pathDescription, r.URL.Path)
				var body map[string]any
				require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
				assert.Equal(t, "an-1", body["id"])
				assert.Equal(t, "Hardware", body["procurement_type"])
				w.Write([]byte(tt.body))
			})

			got, err := client.Description(context.Background(), DescriptionRequest{
				ID:              "an-1",
				Description:     "Laptops",
				ProcurementType: "Hardware",
			}, types.Credential{Bearer: "t"})
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClient_ServiceErrorDetail(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{name: "string detail", status: http.StatusBadRequest, body: `{"detail":"Ungültiger API-Schlüssel"}`, want: "Ungültiger API-Schlüssel"},
		{name: "list detail", status: http.StatusUnprocessableEntity, body: `{"detail":[{"msg":"field required"}]}`, want: `[{"msg":"field required"}]`},
		{name: "no detail", status: http.StatusInternalServerError, body: `oops`, want: "Failed to generate questions"},
		{name: "null detail", status: http.StatusBadGateway, body: `{"detail":null}`, want: "Failed to generate questions"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})

			_, err := client.InitialQuestions(context.Background(), "d", "t", types.Credential{APIKey: "k"})
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrService))

			var se *ServiceError
			require.True(t, errors.As(err, &se))
			assert.Equal(t, tt.status, se.Status)
			assert.Equal(t, tt.want, se.Detail)
		})
	}
}

func TestClient_UnrecognizedPayloadIsServiceError(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`"just a string"`))
	})

	_, err := client.InitialQuestions(context.Background(), "d", "t", types.Credential{APIKey: "k"})
	assert.ErrorIs(t, err, ErrService)
	assert.ErrorIs(t, err, ErrUnrecognizedShape)
}

func TestClient_TransportError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	client := NewClient(Config{BaseURL: url, Timeout: time.Second})
	_, err := client.InitialQuestions(context.Background(), "d", "t", types.Credential{APIKey: "k"})
	assert.ErrorIs(t, err, ErrTransport)
}

func TestClient_ContextDeadline(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.Description(ctx, DescriptionRequest{}, types.Credential{APIKey: "k"})
	assert.ErrorIs(t, err, ErrTransport)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNewClient_Defaults(t *testing.T) {
	t.Parallel()

	c := NewClient(Config{})
	assert.Equal(t, "https://api.tenderfuchs.de/api", c.BaseURL())
	assert.Equal(t, 10*time.Minute, c.timeout)
}
