package generation

import (
	"context"
	"errors"

	"vergabeflow/internal/logging"
	"vergabeflow/internal/types"
)

// Notice texts shown when a request fails.
const (
	MsgQuestionsFailed     = "Fehler beim Generieren der Fragen"
	MsgMoreQuestionsFailed = "Fehler beim Generieren weiterer Fragen"
	MsgDescriptionFailed   = "Fehler beim Erstellen der Bedarfsbeschreibung"
)

// FailSoft wraps a Client so that failures never reach the caller as errors.
// A failed call yields an empty result and an error notice instead.
type FailSoft struct {
	client   *Client
	notifier types.Notifier
}

// NewFailSoft wraps client. A nil notifier discards notices.
func NewFailSoft(client *Client, notifier types.Notifier) *FailSoft {
	if notifier == nil {
		notifier = types.DiscardNotices
	}
	return &FailSoft{client: client, notifier: notifier}
}

// InitialQuestions returns nil on any failure.
func (f *FailSoft) InitialQuestions(ctx context.Context, description, procurementType string, cred types.Credential) []types.Question {
	qs, err := f.client.InitialQuestions(ctx, description, procurementType, cred)
	if err != nil {
		f.fail(MsgQuestionsFailed, err)
		return nil
	}
	return qs
}

// FollowUpQuestions returns nil on any failure.
func (f *FailSoft) FollowUpQuestions(ctx context.Context, prevQuestions []types.Question, prevAnswers []types.Answer, cred types.Credential) []types.Question {
	qs, err := f.client.FollowUpQuestions(ctx, prevQuestions, prevAnswers, cred)
	if err != nil {
		f.fail(MsgMoreQuestionsFailed, err)
		return nil
	}
	return qs
}

// Description returns "" on any failure.
func (f *FailSoft) Description(ctx context.Context, dr DescriptionRequest, cred types.Credential) string {
	text, err := f.client.Description(ctx, dr, cred)
	if err != nil {
		f.fail(MsgDescriptionFailed, err)
		return ""
	}
	return text
}

func (f *FailSoft) fail(prefix string, err error) {
	logging.Get(logging.CategoryAPI).Errorw(prefix, "error", err)
	f.notifier.Notify(types.Notice{Level: types.NoticeError, Message: noticeText(prefix, err)})
}

func noticeText(prefix string, err error) string {
	var se *ServiceError
	if errors.As(err, &se) && se.Detail != "" {
		return prefix + ": " + se.Detail
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return prefix + ": Zeitüberschreitung"
	}
	return prefix
}
