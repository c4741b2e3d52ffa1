package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"vergabeflow/cmd/vergabe/ui"
	"vergabeflow/internal/types"
	"vergabeflow/internal/wizard"
)

// lines a question block takes in the form
const questionBlockHeight = 4

// View renders the current screen.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	s := m.styles

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	b.WriteString(s.RenderSteps(stepLabels, m.stage.Step()))
	b.WriteString("\n")
	b.WriteString(s.RenderDivider(m.width - 2))
	b.WriteString("\n\n")

	switch {
	case m.loading:
		b.WriteString(m.spinner.View() + " " + s.Info.Render(m.loadingText))
		b.WriteString("\n")
	case m.needKey():
		b.WriteString(m.renderKeyForm())
	default:
		b.WriteString(m.renderStage())
	}

	if m.notice != nil {
		b.WriteString("\n")
		b.WriteString(s.RenderNotice(*m.notice))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(s.Footer.Render(m.helpText()))
	return b.String()
}

func (m Model) renderHeader() string {
	s := m.styles
	title := s.Header.Render(appTitle)
	sub := s.Subtitle.Render(appSubtitle)

	right := ""
	if m.gate != nil {
		if sess, ok := m.gate.Session(); ok {
			right = s.Badge.Render(sess.User.DisplayName())
		} else if m.gate.HasAPIKey() {
			right = s.Badge.Render("API-Schlüssel")
		}
	}
	top := lipgloss.JoinHorizontal(lipgloss.Center, title, "  ", right)
	return lipgloss.JoinVertical(lipgloss.Left, top, sub)
}

func (m Model) renderKeyForm() string {
	s := m.styles
	var b strings.Builder
	b.WriteString(s.Title.Render("OpenRouter API-Schlüssel"))
	b.WriteString("\n")
	b.WriteString(s.Muted.Render("Melden Sie sich mit 'vergabe login' an oder geben Sie einen Schlüssel ein."))
	b.WriteString("\n\n")
	b.WriteString(m.keyInput.View())
	b.WriteString("\n")
	return b.String()
}

func (m Model) renderStage() string {
	switch m.stage {
	case wizard.StageProjectInfo:
		return m.renderProjectForm()
	case wizard.StageInitialQuestions, wizard.StageFollowUpQuestions:
		return m.renderQuestionForm()
	case wizard.StageSummary, wizard.StageFinalDescription:
		s := m.styles
		return s.Title.Render(m.stage.Title()) + "\n\n" + m.viewport.View() + "\n"
	}
	return ""
}

func (m Model) renderProjectForm() string {
	s := m.styles
	var b strings.Builder
	b.WriteString(s.Title.Render(wizard.StageProjectInfo.Title()))
	b.WriteString("\n\n")
	b.WriteString(s.Label.Render("Beschaffungstyp"))
	b.WriteString("\n")
	b.WriteString(m.typeInput.View())
	b.WriteString("\n\n")
	b.WriteString(s.Label.Render("Projektbeschreibung"))
	b.WriteString("\n")
	b.WriteString(m.descInput.View())
	b.WriteString("\n")
	return b.String()
}

func (m Model) renderQuestionForm() string {
	s := m.styles
	var b strings.Builder
	b.WriteString(s.Title.Render(m.stage.Title()))
	b.WriteString("\n")

	if len(m.pending) == 0 {
		b.WriteString(s.Muted.Render("Keine offenen Fragen."))
		b.WriteString("\n")
		return b.String()
	}

	st := m.ctrl.State()
	offset := len(st.Questions) - len(m.pending)
	b.WriteString(s.Muted.Render(fmt.Sprintf("%d von %d Fragen beantwortet", st.AnsweredCount(), len(st.Questions))))
	b.WriteString("\n\n")

	start, end := window(len(m.pending), m.focus, m.visibleQuestions())
	if start > 0 {
		b.WriteString(s.Muted.Render(fmt.Sprintf("↑ %d weitere", start)))
		b.WriteString("\n")
	}
	for i := start; i < end; i++ {
		b.WriteString(m.renderQuestion(offset+i+1, m.pending[i].Question, m.answerInputs[i].View(), i == m.focus))
	}
	if end < len(m.pending) {
		b.WriteString(s.Muted.Render(fmt.Sprintf("↓ %d weitere", len(m.pending)-end)))
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) renderQuestion(number int, q types.Question, input string, focused bool) string {
	s := m.styles
	text := fmt.Sprintf("%d. %s", number, q.Text)
	if focused {
		text = s.Focused.Render(text)
	} else {
		text = s.Question.Render(text)
	}
	var b strings.Builder
	b.WriteString(text)
	b.WriteString("\n")
	if len(q.Options) > 0 {
		b.WriteString(s.OptionHint.Render("Mögliche Antworten: " + strings.Join(q.Options, ", ")))
		b.WriteString("\n")
	}
	b.WriteString(input)
	b.WriteString("\n\n")
	return b.String()
}

func (m Model) visibleQuestions() int {
	n := (m.height - 12) / questionBlockHeight
	if n < 1 {
		n = 1
	}
	return n
}

// window returns the [start,end) range of size at most visible around focus.
func window(total, focus, visible int) (int, int) {
	if total <= visible {
		return 0, total
	}
	start := focus - visible/2
	if start < 0 {
		start = 0
	}
	if start+visible > total {
		start = total - visible
	}
	return start, start + visible
}

func (m Model) helpText() string {
	if m.loading {
		return "ctrl+c beenden"
	}
	if m.needKey() {
		return "enter speichern • ctrl+c beenden"
	}
	logout := ""
	if m.gate != nil && m.gate.Authenticated() {
		logout = " • ctrl+l abmelden"
	}
	switch m.stage {
	case wizard.StageProjectInfo:
		return "tab wechseln • ctrl+s Fragen generieren • ctrl+c beenden" + logout
	case wizard.StageInitialQuestions, wizard.StageFollowUpQuestions:
		return "tab/↑/↓ wechseln • enter weiter • ctrl+s absenden • ctrl+n neu" + logout
	case wizard.StageSummary:
		return "enter Beschreibung erstellen • b zurück • ctrl+n neu • q beenden" + logout
	case wizard.StageFinalDescription:
		return "e PDF exportieren • b zurück • n neue Analyse • q beenden" + logout
	}
	return ""
}

func renderSummary(s ui.Styles, st wizard.State, width int) string {
	var b strings.Builder
	b.WriteString(s.Label.Render("Beschaffungstyp: "))
	b.WriteString(st.ProcurementType)
	b.WriteString("\n\n")
	b.WriteString(s.Label.Render("Projektbeschreibung:"))
	b.WriteString("\n")
	b.WriteString(s.Body.Width(max(width, 20)).Render(st.Description))
	b.WriteString("\n\n")
	b.WriteString(s.Label.Render(fmt.Sprintf("Fragen und Antworten (%d/%d beantwortet):", st.AnsweredCount(), len(st.Questions))))
	b.WriteString("\n\n")
	for i, p := range st.Pairs() {
		b.WriteString(s.Question.Render(fmt.Sprintf("Frage %d: %s", i+1, p.Question)))
		b.WriteString("\n")
		if p.Answered {
			b.WriteString(s.Answer.Render(p.Answer))
		} else {
			b.WriteString(s.Unanswered.Render("Keine Antwort"))
		}
		b.WriteString("\n\n")
	}
	return b.String()
}
