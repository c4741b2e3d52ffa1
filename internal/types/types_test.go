package types

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

func TestMergeAnswers_AppendsNewIDs(t *testing.T) {
	existing := []Answer{{QuestionID: "q-0", Text: "a"}}
	incoming := []Answer{{QuestionID: "q-1", Text: "b"}, {QuestionID: "q-2", Text: "c"}}

	got := MergeAnswers(existing, incoming)
	want := []Answer{
		{QuestionID: "q-0", Text: "a"},
		{QuestionID: "q-1", Text: "b"},
		{QuestionID: "q-2", Text: "c"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("MergeAnswers mismatch (-want +got):\n%s", diff)
	}
}

func TestMergeAnswers_LastWriteWins(t *testing.T) {
	existing := []Answer{{QuestionID: "q-0", Text: "old"}, {QuestionID: "q-1", Text: "keep"}}
	incoming := []Answer{{QuestionID: "q-0", Text: "new"}}

	got := MergeAnswers(existing, incoming)

	assert.Len(t, got, 2)
	assert.Equal(t, "new", got[0].Text, "replacement keeps the original position")
	assert.Equal(t, "keep", got[1].Text)
}

func TestMergeAnswers_Idempotent(t *testing.T) {
	batch := []Answer{{QuestionID: "q-0", Text: "x"}, {QuestionID: "q-1", Text: "y"}}

	once := MergeAnswers(nil, batch)
	twice := MergeAnswers(once, batch)

	assert.Equal(t, once, twice)
}

func TestMergeAnswers_DuplicatesInsideIncoming(t *testing.T) {
	got := MergeAnswers(nil, []Answer{
		{QuestionID: "q-0", Text: "first"},
		{QuestionID: "q-0", Text: "second"},
	})
	assert.Equal(t, []Answer{{QuestionID: "q-0", Text: "second"}}, got)
}

func TestFindAnswer_LastMatch(t *testing.T) {
	answers := []Answer{{QuestionID: "q-0", Text: "one"}, {QuestionID: "q-0", Text: "two"}}

	a, ok := FindAnswer(answers, "q-0")
	assert.True(t, ok)
	assert.Equal(t, "two", a.Text)

	_, ok = FindAnswer(answers, "q-9")
	assert.False(t, ok)
}

func TestResequence(t *testing.T) {
	in := []Question{{ID: "q-0", Text: "A", Options: []string{"x"}}, {ID: "q-1", Text: "B"}}

	out := Resequence(in, 3)

	assert.Equal(t, "q-3", out[0].ID)
	assert.Equal(t, "q-4", out[1].ID)
	assert.Equal(t, "q-0", in[0].ID, "input must not be modified")

	out[0].Options[0] = "changed"
	assert.Equal(t, "x", in[0].Options[0], "options are copied")
}

func TestPair(t *testing.T) {
	qs := []Question{{ID: "q-0", Text: "Wie viele?"}, {ID: "q-1", Text: "Wann?"}}
	as := []Answer{{QuestionID: "q-0", Text: "50"}}

	pairs := Pair(qs, as)

	assert.Equal(t, []QAPair{
		{Question: "Wie viele?", Answer: "50", Answered: true},
		{Question: "Wann?"},
	}, pairs)
}

func TestCredential(t *testing.T) {
	tests := []struct {
		name   string
		cred   Credential
		zero   bool
		header string
		str    string
	}{
		{"empty", Credential{}, true, "", "none"},
		{"blank", Credential{APIKey: "  "}, true, "", "api_key:****"},
		{"bearer", Credential{Bearer: "tok123456"}, false, "Bearer tok123456", "bearer:to****56"},
		{"api key", Credential{APIKey: "sk-or-abcdef"}, false, "", "api_key:sk****ef"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.zero, tt.cred.IsZero())
			assert.Equal(t, tt.header, tt.cred.AuthorizationHeader())
			assert.Equal(t, tt.str, tt.cred.String())
		})
	}
}

func TestUserDisplayName(t *testing.T) {
	assert.Equal(t, "Anna", User{Email: "a@b.de", Name: "Anna"}.DisplayName())
	assert.Equal(t, "a@b.de", User{Email: "a@b.de"}.DisplayName())
}
