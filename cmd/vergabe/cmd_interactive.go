package main

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"vergabeflow/cmd/vergabe/tui"
	"vergabeflow/cmd/vergabe/ui"
	"vergabeflow/internal/logging"
)

// runInteractive launches the bubbletea wizard.
func runInteractive(cmd *cobra.Command) error {
	ctx, cancel := signalContext()
	defer cancel()

	notices := &tui.NoticeQueue{}
	a, err := newApp(cfg, notices)
	if err != nil {
		return err
	}
	defer a.Close()
	a.restore(ctx)

	styles := ui.DefaultStyles()
	m := tui.New(tui.Options{
		Context:    ctx,
		Controller: a.ctrl,
		Gate:       a.gate,
		Notices:    notices,
		Export:     a.exporter(),
		Styles:     &styles,
	})

	logging.Get(logging.CategoryBoot).Infow("starting interactive wizard", "service", cfg.Service.BaseURL)

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("wizard failed: %w", err)
	}
	return nil
}
