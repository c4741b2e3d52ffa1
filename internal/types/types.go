// Package types provides shared type definitions used across vergabeflow packages.
// This package exists to break import cycles between wizard, generation, session and export.
// Types in this package should be foundational data structures with no complex dependencies.
package types

import (
	"fmt"
	"strings"
)

// =============================================================================
// QUESTIONS AND ANSWERS
// =============================================================================

// Question is a clarifying question produced by the generation service.
// Options holds suggested answers and may be empty.
type Question struct {
	ID      string   `json:"id"`
	Text    string   `json:"text"`
	Options []string `json:"options"`
}

// Answer is the user's free-form reply to a Question.
type Answer struct {
	QuestionID string `json:"questionId"`
	Text       string `json:"text"`
}

// QuestionID returns the synthetic id for the question at position idx.
func QuestionID(idx int) string {
	return fmt.Sprintf("q-%d", idx)
}

// Resequence returns a copy of questions with ids renumbered from start.
// Normalized batches always start at q-0, so a follow-up batch has to be
// shifted past the questions already held before it is appended.
func Resequence(questions []Question, start int) []Question {
	out := make([]Question, len(questions))
	for i, q := range questions {
		q.ID = QuestionID(start + i)
		if q.Options != nil {
			q.Options = append([]string(nil), q.Options...)
		}
		out[i] = q
	}
	return out
}

// FindAnswer returns the answer recorded for questionID.
// When several entries share the id the last one wins.
func FindAnswer(answers []Answer, questionID string) (Answer, bool) {
	for i := len(answers) - 1; i >= 0; i-- {
		if answers[i].QuestionID == questionID {
			return answers[i], true
		}
	}
	return Answer{}, false
}

// MergeAnswers merges incoming into existing keyed by QuestionID.
// Entries for an id already present are replaced in place (last write wins),
// new ids are appended in submission order. The result never contains two
// entries with the same QuestionID.
func MergeAnswers(existing, incoming []Answer) []Answer {
	merged := make([]Answer, 0, len(existing)+len(incoming))
	index := make(map[string]int, len(existing)+len(incoming))

	add := func(a Answer) {
		if pos, ok := index[a.QuestionID]; ok {
			merged[pos] = a
			return
		}
		index[a.QuestionID] = len(merged)
		merged = append(merged, a)
	}
	for _, a := range existing {
		add(a)
	}
	for _, a := range incoming {
		add(a)
	}
	return merged
}

// QAPair is a question joined with its answer text for display and export.
type QAPair struct {
	Question string
	Answer   string
	Answered bool
}

// Pair joins every question with its answer (last write wins).
func Pair(questions []Question, answers []Answer) []QAPair {
	pairs := make([]QAPair, 0, len(questions))
	for _, q := range questions {
		p := QAPair{Question: q.Text}
		if a, ok := FindAnswer(answers, q.ID); ok {
			p.Answer = a.Text
			p.Answered = true
		}
		pairs = append(pairs, p)
	}
	return pairs
}

// =============================================================================
// CREDENTIALS
// =============================================================================

// Credential authorizes a generation request. Exactly one of the fields is
// expected to be set: Bearer for an authenticated session, APIKey for an
// anonymous user who entered a key manually.
type Credential struct {
	Bearer string
	APIKey string
}

// IsZero reports whether the credential carries nothing usable.
func (c Credential) IsZero() bool {
	return strings.TrimSpace(c.Bearer) == "" && strings.TrimSpace(c.APIKey) == ""
}

// AuthorizationHeader returns the value for the Authorization header, or "".
func (c Credential) AuthorizationHeader() string {
	if c.Bearer == "" {
		return ""
	}
	return "Bearer " + c.Bearer
}

// String masks secrets so credentials can be logged.
func (c Credential) String() string {
	switch {
	case c.Bearer != "":
		return "bearer:" + mask(c.Bearer)
	case c.APIKey != "":
		return "api_key:" + mask(c.APIKey)
	default:
		return "none"
	}
}

func mask(s string) string {
	if len(s) <= 4 {
		return "****"
	}
	return s[:2] + "****" + s[len(s)-2:]
}

// =============================================================================
// USERS
// =============================================================================

// User is the identity behind an authenticated session.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// DisplayName prefers the name and falls back to the email.
func (u User) DisplayName() string {
	if strings.TrimSpace(u.Name) != "" {
		return u.Name
	}
	return u.Email
}
