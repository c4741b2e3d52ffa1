package tui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"vergabeflow/internal/types"
	"vergabeflow/internal/wizard"
)

// asyncResult marks messages that finish a background operation.
type asyncResult interface {
	asyncResult()
}

type startDoneMsg struct{ err error }
type submitDoneMsg struct{ err error }
type finalizeDoneMsg struct{ err error }
type exportDoneMsg struct {
	path string
	err  error
}

func (startDoneMsg) asyncResult()    {}
func (submitDoneMsg) asyncResult()   {}
func (finalizeDoneMsg) asyncResult() {}
func (exportDoneMsg) asyncResult()   {}

func startCmd(ctx context.Context, c *wizard.Controller, procurementType, description string) tea.Cmd {
	return func() tea.Msg {
		return startDoneMsg{err: c.Start(ctx, procurementType, description)}
	}
}

func submitCmd(ctx context.Context, c *wizard.Controller, answers []types.Answer) tea.Cmd {
	return func() tea.Msg {
		return submitDoneMsg{err: c.SubmitAnswers(ctx, answers)}
	}
}

func finalizeCmd(ctx context.Context, c *wizard.Controller) tea.Cmd {
	return func() tea.Msg {
		return finalizeDoneMsg{err: c.Finalize(ctx)}
	}
}

func exportCmd(exp Exporter, st wizard.State) tea.Cmd {
	return func() tea.Msg {
		path, err := exp(st)
		return exportDoneMsg{path: path, err: err}
	}
}
