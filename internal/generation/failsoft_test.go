package generation

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vergabeflow/internal/types"
)

func TestFailSoft_SuccessPassesThrough(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case pathDescription:
			w.Write([]byte("Beschreibung"))
		default:
			w.Write([]byte(`[{"text":"Frage"}]`))
		}
	})
	rec := &types.NoticeRecorder{}
	fs := NewFailSoft(client, rec)
	cred := types.Credential{APIKey: "k"}

	assert.Len(t, fs.InitialQuestions(context.Background(), "d", "t", cred), 1)
	assert.Len(t, fs.FollowUpQuestions(context.Background(), nil, nil, cred), 1)
	assert.Equal(t, "Beschreibung", fs.Description(context.Background(), DescriptionRequest{}, cred))
	assert.Empty(t, rec.Notices)
}

func TestFailSoft_FailuresBecomeEmptyResultsAndNotices(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"detail":"Kein gültiger Schlüssel"}`))
	})
	rec := &types.NoticeRecorder{}
	fs := NewFailSoft(client, rec)
	cred := types.Credential{APIKey: "k"}

	assert.Nil(t, fs.InitialQuestions(context.Background(), "d", "t", cred))
	assert.Nil(t, fs.FollowUpQuestions(context.Background(), nil, nil, cred))
	assert.Equal(t, "", fs.Description(context.Background(), DescriptionRequest{}, cred))

	require.Len(t, rec.Notices, 3)
	for _, n := range rec.Notices {
		assert.Equal(t, types.NoticeError, n.Level)
		assert.Contains(t, n.Message, "Kein gültiger Schlüssel")
	}
	assert.Equal(t, MsgQuestionsFailed+": Kein gültiger Schlüssel", rec.Notices[0].Message)
	assert.Equal(t, MsgMoreQuestionsFailed+": Kein gültiger Schlüssel", rec.Notices[1].Message)
	assert.Equal(t, MsgDescriptionFailed+": Kein gültiger Schlüssel", rec.Notices[2].Message)
}

func TestFailSoft_NilNotifier(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	fs := NewFailSoft(client, nil)
	assert.NotPanics(t, func() {
		fs.InitialQuestions(context.Background(), "d", "t", types.Credential{APIKey: "k"})
	})
}
