// Package tui implements the interactive requirements-analysis wizard.
package tui

import (
	"context"
	"errors"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"go.uber.org/zap"

	"vergabeflow/cmd/vergabe/ui"
	"vergabeflow/internal/export"
	"vergabeflow/internal/logging"
	"vergabeflow/internal/session"
	"vergabeflow/internal/types"
	"vergabeflow/internal/wizard"
)

// User-facing texts owned by the TUI.
const (
	MsgKeySaved     = "API-Schlüssel gespeichert"
	MsgKeyMissing   = "Bitte geben Sie einen API-Schlüssel ein"
	MsgLoggedOut    = "Erfolgreich abgemeldet"
	MsgGenerating   = "Wird generiert..."
	MsgExporting    = "PDF wird erstellt..."
	appTitle        = "Vergabebausteine"
	appSubtitle     = "Bedarfsanalyse für Ihren Vergabeprozess"
	typePlaceholder = "z.B. IT-Dienstleistung, Hardware, Bauleistung"
	descPlaceholder = "Beschreiben Sie Ihr Projekt..."
)

var stepLabels = []string{"Projekt", "Fragen", "Weitere Fragen", "Zusammenfassung", "Beschreibung"}

// Exporter writes the PDF for a finished analysis and returns its path.
type Exporter func(wizard.State) (string, error)

// Options wires a Model.
type Options struct {
	Context    context.Context
	Controller *wizard.Controller
	Gate       *session.Gate
	// Notices must be the notifier the controller and generator report to.
	Notices *NoticeQueue
	Export  Exporter
	Styles  *ui.Styles
	// Markdown renders the final description; nil uses glamour.
	Markdown func(text string, width int) string
}

// Model is the bubbletea model of the wizard.
type Model struct {
	ctx      context.Context
	ctrl     *wizard.Controller
	gate     *session.Gate
	notices  *NoticeQueue
	exporter Exporter
	styles   ui.Styles
	markdown func(string, int) string

	width  int
	height int

	stage       wizard.Stage
	loading     bool
	loadingText string
	spinner     spinner.Model
	viewport    viewport.Model

	keyInput     textinput.Model
	typeInput    textinput.Model
	descInput    textarea.Model
	projectFocus int

	pending      []wizard.PendingQuestion
	answerInputs []textinput.Model
	focus        int

	notice     *types.Notice
	lastExport string
	quitting   bool
}

// New builds the model for the controller's current state.
func New(opts Options) Model {
	styles := ui.DefaultStyles()
	if opts.Styles != nil {
		styles = *opts.Styles
	}
	if opts.Context == nil {
		opts.Context = context.Background()
	}
	if opts.Notices == nil {
		opts.Notices = &NoticeQueue{}
	}
	if opts.Markdown == nil {
		opts.Markdown = renderMarkdown
	}

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = styles.Spinner

	key := textinput.New()
	key.Placeholder = "sk-or-..."
	key.EchoMode = textinput.EchoPassword
	key.EchoCharacter = '•'
	key.Width = 60

	typ := textinput.New()
	typ.Placeholder = typePlaceholder
	typ.Width = 60

	desc := textarea.New()
	desc.Placeholder = descPlaceholder
	desc.ShowLineNumbers = false
	desc.SetWidth(70)
	desc.SetHeight(6)

	m := Model{
		ctx:       opts.Context,
		ctrl:      opts.Controller,
		gate:      opts.Gate,
		notices:   opts.Notices,
		exporter:  opts.Export,
		styles:    styles,
		markdown:  opts.Markdown,
		width:     80,
		height:    24,
		spinner:   sp,
		viewport:  viewport.New(76, 12),
		keyInput:  key,
		typeInput: typ,
		descInput: desc,
	}
	m.stage = m.ctrl.Stage()
	m = m.rebuild()
	return m
}

// Init starts the cursor blink.
func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

// Stage returns the stage the model is showing.
func (m Model) Stage() wizard.Stage { return m.stage }

// Loading reports whether a background operation is running.
func (m Model) Loading() bool { return m.loading }

// Notice returns the last notice shown.
func (m Model) Notice() (types.Notice, bool) {
	if m.notice == nil {
		return types.Notice{}, false
	}
	return *m.notice, true
}

// LastExport returns the path of the last written PDF.
func (m Model) LastExport() string { return m.lastExport }

func (m Model) needKey() bool {
	if m.gate == nil {
		return false
	}
	return !m.gate.Authenticated() && !m.gate.HasAPIKey()
}

// Update handles input and background results.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		return m.resize(msg.Width, msg.Height), nil

	case spinner.TickMsg:
		if !m.loading {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case asyncResult:
		return m.finish(msg), nil

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			m.quitting = true
			return m, tea.Quit
		}
		if m.loading {
			return m, nil
		}
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) resize(width, height int) Model {
	if width < 20 {
		width = 20
	}
	if height < 10 {
		height = 10
	}
	m.width, m.height = width, height

	m.viewport.Width = width - 4
	vpHeight := height - 10
	if vpHeight < 3 {
		vpHeight = 3
	}
	m.viewport.Height = vpHeight

	inner := width - 8
	if inner < 10 {
		inner = 10
	}
	m.keyInput.Width = inner
	m.typeInput.Width = inner
	m.descInput.SetWidth(inner)
	for i := range m.answerInputs {
		m.answerInputs[i].Width = inner
	}
	return m.refreshViewport()
}

// finish applies the result of a background operation.
func (m Model) finish(msg asyncResult) Model {
	m.loading = false
	log := logging.Get(logging.CategoryUI)

	switch r := msg.(type) {
	case exportDoneMsg:
		if r.err != nil {
			log.Warnw("export failed", "error", r.err)
			m.notices.Notify(types.Notice{Level: types.NoticeError, Message: export.MsgExportFailed})
		} else {
			m.lastExport = r.path
			m.notices.Notify(types.Notice{Level: types.NoticeSuccess, Message: export.MsgExportCreated + ": " + r.path})
		}
	case startDoneMsg:
		logResult(log, "start", r.err)
	case submitDoneMsg:
		logResult(log, "submit", r.err)
	case finalizeDoneMsg:
		logResult(log, "finalize", r.err)
	}

	return m.sync()
}

func logResult(log *zap.SugaredLogger, op string, err error) {
	if err != nil && !errors.Is(err, wizard.ErrValidation) {
		log.Debugw("operation returned", "op", op, "error", err)
	}
}

// sync drains notices and rebuilds the inputs when the stage changed.
func (m Model) sync() Model {
	for _, n := range m.notices.Drain() {
		m.notice = &n
	}
	if stage := m.ctrl.Stage(); stage != m.stage {
		m.stage = stage
		m = m.rebuild()
	}
	return m
}

// rebuild resets the inputs for the current stage from controller state.
func (m Model) rebuild() Model {
	st := m.ctrl.State()

	m.keyInput.Blur()
	m.typeInput.Blur()
	m.descInput.Blur()
	m.answerInputs = nil
	m.pending = nil
	m.focus = 0

	if m.needKey() {
		m.keyInput.Focus()
	}

	switch st.Stage {
	case wizard.StageProjectInfo:
		m.typeInput.SetValue(st.ProcurementType)
		m.descInput.SetValue(st.Description)
		m.projectFocus = 0
		if !m.needKey() {
			m.typeInput.Focus()
		}

	case wizard.StageInitialQuestions, wizard.StageFollowUpQuestions:
		m.pending = m.ctrl.PendingQuestions()
		m.answerInputs = make([]textinput.Model, len(m.pending))
		for i, pq := range m.pending {
			in := textinput.New()
			in.Placeholder = "Ihre Antwort..."
			in.Width = m.typeInput.Width
			in.SetValue(pq.Prefill)
			m.answerInputs[i] = in
		}
		if len(m.answerInputs) > 0 && !m.needKey() {
			m.answerInputs[0].Focus()
		}
	}

	m.viewport.GotoTop()
	return m.refreshViewport()
}

func (m Model) refreshViewport() Model {
	switch m.stage {
	case wizard.StageSummary:
		m.viewport.SetContent(renderSummary(m.styles, m.ctrl.State(), m.viewport.Width))
	case wizard.StageFinalDescription:
		m.viewport.SetContent(m.markdown(m.ctrl.State().FinalDescription, m.viewport.Width))
	}
	return m
}

func (m Model) busy(text string, cmd tea.Cmd) (Model, tea.Cmd) {
	m.loading = true
	m.loadingText = text
	m.notice = nil
	return m, tea.Batch(cmd, m.spinner.Tick)
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.needKey() {
		return m.handleKeyForm(msg)
	}

	switch msg.Type {
	case tea.KeyCtrlN:
		m.ctrl.Reset()
		m.stage = m.ctrl.Stage()
		m = m.rebuild()
		return m.sync(), nil
	case tea.KeyCtrlL:
		if m.gate != nil && m.gate.Authenticated() {
			if err := m.gate.Logout(); err != nil {
				logging.Get(logging.CategoryUI).Warnw("logout failed", "error", err)
			}
			m.notices.Notify(types.Notice{Level: types.NoticeSuccess, Message: MsgLoggedOut})
			m = m.rebuild()
			return m.sync(), nil
		}
	}

	switch m.stage {
	case wizard.StageProjectInfo:
		return m.handleProjectKey(msg)
	case wizard.StageInitialQuestions, wizard.StageFollowUpQuestions:
		return m.handleQuestionKey(msg)
	case wizard.StageSummary:
		return m.handleSummaryKey(msg)
	case wizard.StageFinalDescription:
		return m.handleFinalKey(msg)
	}
	return m, nil
}

func (m Model) handleKeyForm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.Type == tea.KeyEnter {
		if err := m.gate.SetAPIKey(m.keyInput.Value()); err != nil {
			m.notices.Notify(types.Notice{Level: types.NoticeError, Message: MsgKeyMissing})
			return m.sync(), nil
		}
		m.keyInput.SetValue("")
		m.notices.Notify(types.Notice{Level: types.NoticeSuccess, Message: MsgKeySaved})
		m = m.rebuild()
		return m.sync(), nil
	}
	var cmd tea.Cmd
	m.keyInput, cmd = m.keyInput.Update(msg)
	return m, cmd
}

func (m Model) handleProjectKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlS:
		return m.busy(MsgGenerating, startCmd(m.ctx, m.ctrl, m.typeInput.Value(), m.descInput.Value()))
	case tea.KeyTab, tea.KeyShiftTab:
		return m.toggleProjectFocus(), nil
	case tea.KeyEnter:
		if m.projectFocus == 0 {
			return m.toggleProjectFocus(), nil
		}
	}

	var cmd tea.Cmd
	if m.projectFocus == 0 {
		m.typeInput, cmd = m.typeInput.Update(msg)
	} else {
		m.descInput, cmd = m.descInput.Update(msg)
	}
	return m, cmd
}

func (m Model) toggleProjectFocus() Model {
	if m.projectFocus == 0 {
		m.projectFocus = 1
		m.typeInput.Blur()
		m.descInput.Focus()
	} else {
		m.projectFocus = 0
		m.descInput.Blur()
		m.typeInput.Focus()
	}
	return m
}

func (m Model) handleQuestionKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlS:
		return m.submitAnswers()
	case tea.KeyTab, tea.KeyDown:
		return m.moveFocus(1), nil
	case tea.KeyShiftTab, tea.KeyUp:
		return m.moveFocus(-1), nil
	case tea.KeyEnter:
		if m.focus >= len(m.answerInputs)-1 {
			return m.submitAnswers()
		}
		return m.moveFocus(1), nil
	}

	if len(m.answerInputs) == 0 {
		return m, nil
	}
	var cmd tea.Cmd
	m.answerInputs[m.focus], cmd = m.answerInputs[m.focus].Update(msg)
	return m, cmd
}

func (m Model) moveFocus(delta int) Model {
	if len(m.answerInputs) == 0 {
		return m
	}
	inputs := make([]textinput.Model, len(m.answerInputs))
	copy(inputs, m.answerInputs)
	inputs[m.focus].Blur()
	m.focus = (m.focus + delta + len(inputs)) % len(inputs)
	inputs[m.focus].Focus()
	m.answerInputs = inputs
	return m
}

func (m Model) submitAnswers() (Model, tea.Cmd) {
	answers := make([]types.Answer, 0, len(m.pending))
	for i, pq := range m.pending {
		answers = append(answers, types.Answer{QuestionID: pq.ID, Text: strings.TrimSpace(m.answerInputs[i].Value())})
	}
	return m.busy(MsgGenerating, submitCmd(m.ctx, m.ctrl, answers))
}

func (m Model) handleSummaryKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter", "ctrl+s":
		return m.busy(MsgGenerating, finalizeCmd(m.ctx, m.ctrl))
	case "b":
		if err := m.ctrl.BackToQuestions(); err != nil {
			return m, nil
		}
		return m.sync(), nil
	case "q":
		m.quitting = true
		return m, tea.Quit
	}
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m Model) handleFinalKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "e":
		if m.exporter == nil {
			return m, nil
		}
		return m.busy(MsgExporting, exportCmd(m.exporter, m.ctrl.State()))
	case "b":
		if err := m.ctrl.BackToSummary(); err != nil {
			return m, nil
		}
		return m.sync(), nil
	case "n":
		m.ctrl.Reset()
		return m.sync(), nil
	case "q":
		m.quitting = true
		return m, tea.Quit
	}
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func renderMarkdown(text string, width int) string {
	if width < 20 {
		width = 20
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return text
	}
	out, err := r.Render(text)
	if err != nil {
		return text
	}
	return out
}
