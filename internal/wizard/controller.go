package wizard

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"vergabeflow/internal/generation"
	"vergabeflow/internal/logging"
	"vergabeflow/internal/types"
)

var (
	// ErrValidation is returned for missing fields or unanswered questions.
	ErrValidation = errors.New("validation failed")
	// ErrBusy is returned while another generation call is in flight.
	ErrBusy = errors.New("a request is already in progress")
	// ErrInvalidTransition is returned for operations not allowed in the current stage.
	ErrInvalidTransition = errors.New("operation not allowed in current stage")
	// ErrNoQuestions is returned when the initial round produced nothing.
	ErrNoQuestions = errors.New("no questions generated")
	// ErrNoDescription is returned when the final description came back empty.
	ErrNoDescription = errors.New("no description generated")
	// ErrSuperseded is returned when a Reset happened while a call was in flight.
	ErrSuperseded = errors.New("analysis was reset during the request")
)

// User-facing notice texts.
const (
	MsgFillAllFields      = "Bitte füllen Sie alle Felder aus"
	MsgQuestionsGenerated = "Fragen wurden generiert"
	MsgNoQuestions        = "Keine Fragen konnten generiert werden"
	MsgMoreQuestions      = "Weitere Fragen wurden generiert"
	MsgNoMoreQuestions    = "Keine weiteren Fragen verfügbar"
	MsgDescriptionCreated = "Bedarfsbeschreibung wurde erstellt"
	MsgNoDescription      = "Es wurde keine Bedarfsbeschreibung erstellt"
	MsgNotAuthorized      = "Bitte melden Sie sich an oder geben Sie einen API-Schlüssel ein"
	MsgBusy               = "Bitte warten Sie, die Anfrage läuft noch"
)

// MsgUnanswered formats the notice for n open questions.
func MsgUnanswered(n int) string {
	return fmt.Sprintf("Bitte beantworten Sie alle %d offenen Fragen", n)
}

// Generator produces questions and descriptions. Implementations never fail;
// an unusable result is empty.
type Generator interface {
	InitialQuestions(ctx context.Context, description, procurementType string, cred types.Credential) []types.Question
	FollowUpQuestions(ctx context.Context, prevQuestions []types.Question, prevAnswers []types.Answer, cred types.Credential) []types.Question
	Description(ctx context.Context, dr generation.DescriptionRequest, cred types.Credential) string
}

// CredentialSource supplies the credential for each generation call.
type CredentialSource interface {
	Credential() (types.Credential, error)
}

// Observer is told about every state change.
type Observer interface {
	StateChanged(State)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(State)

// StateChanged calls f(s).
func (f ObserverFunc) StateChanged(s State) { f(s) }

// Option configures a Controller.
type Option func(*Controller)

// WithNotifier routes user-facing notices to n.
func WithNotifier(n types.Notifier) Option {
	return func(c *Controller) {
		if n != nil {
			c.notifier = n
		}
	}
}

// WithObserver registers o. Multiple observers are called in order.
func WithObserver(o Observer) Option {
	return func(c *Controller) {
		if o != nil {
			c.observers = append(c.observers, o)
		}
	}
}

// WithTimeout bounds every generation call. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(c *Controller) { c.timeout = d }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// WithIDGenerator replaces the analysis id generator.
func WithIDGenerator(gen func() string) Option {
	return func(c *Controller) { c.newID = gen }
}

// Controller owns one analysis. It is safe for concurrent use; at most one
// generation call runs at a time.
type Controller struct {
	mu    sync.Mutex
	state State
	epoch uint64

	busy      *semaphore.Weighted
	gen       Generator
	creds     CredentialSource
	notifier  types.Notifier
	observers []Observer
	timeout   time.Duration
	now       func() time.Time
	newID     func() string
}

// New creates a controller in StageProjectInfo.
func New(gen Generator, creds CredentialSource, opts ...Option) *Controller {
	c := &Controller{
		busy:     semaphore.NewWeighted(1),
		gen:      gen,
		creds:    creds,
		notifier: types.DiscardNotices,
		timeout:  10 * time.Minute,
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.state.UpdatedAt = c.now()
	return c
}

// State returns a snapshot of the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Clone()
}

// Stage returns the current stage.
func (c *Controller) Stage() Stage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Stage
}

// Busy reports whether a generation call is in flight.
func (c *Controller) Busy() bool {
	if c.busy.TryAcquire(1) {
		c.busy.Release(1)
		return false
	}
	return true
}

// PendingQuestions returns the questions to answer in the current stage.
func (c *Controller) PendingQuestions() []PendingQuestion {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.pending()
}

// Start validates the project info and requests the initial questions.
// On failure the inputs are kept so the call can be retried.
func (c *Controller) Start(ctx context.Context, procurementType, description string) error {
	log := logging.Get(logging.CategoryWizard)

	if !c.busy.TryAcquire(1) {
		c.notify(types.NoticeWarning, MsgBusy)
		return ErrBusy
	}
	defer c.busy.Release(1)

	c.mu.Lock()
	if c.state.Stage != StageProjectInfo {
		stage := c.state.Stage
		c.mu.Unlock()
		return fmt.Errorf("%w: start from %s", ErrInvalidTransition, stage)
	}
	c.state.ProcurementType = procurementType
	c.state.Description = description
	if c.state.AnalysisID == "" {
		c.state.AnalysisID = c.newID()
	}
	epoch := c.epoch
	c.mu.Unlock()

	if strings.TrimSpace(procurementType) == "" || strings.TrimSpace(description) == "" {
		c.notify(types.NoticeError, MsgFillAllFields)
		return fmt.Errorf("%w: procurement type and description are required", ErrValidation)
	}

	cred, err := c.credential()
	if err != nil {
		return err
	}

	log.Infow("requesting initial questions", "procurement_type", procurementType, "credential", cred.String())
	callCtx, cancel := c.callContext(ctx)
	questions := c.gen.InitialQuestions(callCtx, description, procurementType, cred)
	cancel()

	snap, err := c.apply(epoch, func(s *State) error {
		if len(questions) == 0 {
			return ErrNoQuestions
		}
		s.Questions = types.Resequence(questions, 0)
		s.Answers = nil
		s.Stage = StageInitialQuestions
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNoQuestions) {
			c.notify(types.NoticeError, MsgNoQuestions)
		}
		return err
	}

	log.Infow("initial questions received", "count", len(snap.Questions))
	c.notify(types.NoticeSuccess, MsgQuestionsGenerated)
	return nil
}

// SubmitAnswers validates and merges answers for the pending questions.
// From the initial round it asks for follow-up questions; from the
// follow-up round it moves to the summary.
func (c *Controller) SubmitAnswers(ctx context.Context, answers []types.Answer) error {
	log := logging.Get(logging.CategoryWizard)

	if !c.busy.TryAcquire(1) {
		c.notify(types.NoticeWarning, MsgBusy)
		return ErrBusy
	}
	defer c.busy.Release(1)

	c.mu.Lock()
	stage := c.state.Stage
	if stage != StageInitialQuestions && stage != StageFollowUpQuestions {
		c.mu.Unlock()
		return fmt.Errorf("%w: submit answers in %s", ErrInvalidTransition, stage)
	}

	known := make(map[string]bool, len(c.state.Questions))
	for _, q := range c.state.Questions {
		known[q.ID] = true
	}
	incoming := make([]types.Answer, 0, len(answers))
	for _, a := range answers {
		if known[a.QuestionID] && strings.TrimSpace(a.Text) != "" {
			incoming = append(incoming, a)
		}
	}

	merged := types.MergeAnswers(c.state.Answers, incoming)
	open := 0
	for _, pq := range c.state.pending() {
		if a, ok := types.FindAnswer(merged, pq.ID); !ok || strings.TrimSpace(a.Text) == "" {
			open++
		}
	}
	if open > 0 {
		c.mu.Unlock()
		c.notify(types.NoticeError, MsgUnanswered(open))
		return fmt.Errorf("%w: %d unanswered questions", ErrValidation, open)
	}

	c.state.Answers = merged
	if stage == StageFollowUpQuestions {
		c.state.Stage = StageSummary
		c.state.UpdatedAt = c.now()
		snap := c.state.Clone()
		c.mu.Unlock()
		log.Infow("follow-up answers merged", "answers", len(merged))
		c.emit(snap)
		return nil
	}

	questions := c.state.Clone().Questions
	epoch := c.epoch
	c.mu.Unlock()

	cred, err := c.credential()
	if err != nil {
		return err
	}

	log.Infow("requesting follow-up questions", "questions", len(questions), "answers", len(merged))
	callCtx, cancel := c.callContext(ctx)
	more := c.gen.FollowUpQuestions(callCtx, questions, merged, cred)
	cancel()

	_, err = c.apply(epoch, func(s *State) error {
		if len(more) == 0 {
			s.Stage = StageSummary
			return nil
		}
		s.Questions = append(s.Questions, types.Resequence(more, len(s.Questions))...)
		s.Stage = StageFollowUpQuestions
		return nil
	})
	if err != nil {
		return err
	}

	if len(more) == 0 {
		log.Infow("no follow-up questions, moving to summary")
		c.notify(types.NoticeInfo, MsgNoMoreQuestions)
	} else {
		log.Infow("follow-up questions received", "count", len(more))
		c.notify(types.NoticeSuccess, MsgMoreQuestions)
	}
	return nil
}

// Finalize requests the final description from the summary.
func (c *Controller) Finalize(ctx context.Context) error {
	log := logging.Get(logging.CategoryWizard)

	if !c.busy.TryAcquire(1) {
		c.notify(types.NoticeWarning, MsgBusy)
		return ErrBusy
	}
	defer c.busy.Release(1)

	c.mu.Lock()
	if c.state.Stage != StageSummary {
		stage := c.state.Stage
		c.mu.Unlock()
		return fmt.Errorf("%w: finalize from %s", ErrInvalidTransition, stage)
	}
	snap := c.state.Clone()
	epoch := c.epoch
	c.mu.Unlock()

	cred, err := c.credential()
	if err != nil {
		return err
	}

	req := generation.DescriptionRequest{
		ID:              snap.AnalysisID,
		Description:     snap.Description,
		ProcurementType: snap.ProcurementType,
		Questions:       snap.Questions,
		Answers:         snap.Answers,
	}

	log.Infow("requesting final description", "analysis_id", snap.AnalysisID, "pairs", len(snap.Questions))
	callCtx, cancel := c.callContext(ctx)
	text := c.gen.Description(callCtx, req, cred)
	cancel()

	_, err = c.apply(epoch, func(s *State) error {
		if strings.TrimSpace(text) == "" {
			return ErrNoDescription
		}
		s.FinalDescription = text
		s.Stage = StageFinalDescription
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNoDescription) {
			c.notify(types.NoticeError, MsgNoDescription)
		}
		return err
	}

	c.notify(types.NoticeSuccess, MsgDescriptionCreated)
	return nil
}

// BackToQuestions returns from the summary to the initial questions.
// Nothing is cleared.
func (c *Controller) BackToQuestions() error {
	return c.move(StageSummary, StageInitialQuestions)
}

// BackToSummary returns from the final description to the summary.
func (c *Controller) BackToSummary() error {
	return c.move(StageFinalDescription, StageSummary)
}

// Reset clears everything and returns to StageProjectInfo. A call still in
// flight has its result discarded.
func (c *Controller) Reset() {
	c.mu.Lock()
	c.epoch++
	c.state = State{Stage: StageProjectInfo, UpdatedAt: c.now()}
	snap := c.state.Clone()
	c.mu.Unlock()

	logging.Get(logging.CategoryWizard).Infow("analysis reset")
	c.emit(snap)
}

func (c *Controller) move(from, to Stage) error {
	if c.Busy() {
		return ErrBusy
	}

	c.mu.Lock()
	if c.state.Stage != from {
		stage := c.state.Stage
		c.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s from %s", ErrInvalidTransition, from, to, stage)
	}
	c.state.Stage = to
	c.state.UpdatedAt = c.now()
	snap := c.state.Clone()
	c.mu.Unlock()

	logging.Get(logging.CategoryWizard).Debugw("stage changed", "from", from.String(), "to", to.String())
	c.emit(snap)
	return nil
}

// apply mutates state under the lock unless a Reset happened since epoch was
// read. Observers see the new state after the lock is released.
func (c *Controller) apply(epoch uint64, fn func(*State) error) (State, error) {
	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		logging.Get(logging.CategoryWizard).Infow("discarding result of superseded request")
		return State{}, ErrSuperseded
	}
	if err := fn(&c.state); err != nil {
		c.mu.Unlock()
		return State{}, err
	}
	c.state.UpdatedAt = c.now()
	snap := c.state.Clone()
	c.mu.Unlock()

	c.emit(snap)
	return snap, nil
}

func (c *Controller) credential() (types.Credential, error) {
	if c.creds == nil {
		c.notify(types.NoticeError, MsgNotAuthorized)
		return types.Credential{}, errors.New("no credential source configured")
	}
	cred, err := c.creds.Credential()
	if err != nil {
		c.notify(types.NoticeError, MsgNotAuthorized)
		return types.Credential{}, err
	}
	return cred, nil
}

func (c *Controller) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

func (c *Controller) notify(level types.NoticeLevel, msg string) {
	c.notifier.Notify(types.Notice{Level: level, Message: msg})
}

func (c *Controller) emit(s State) {
	for _, o := range c.observers {
		o.StateChanged(s)
	}
}
