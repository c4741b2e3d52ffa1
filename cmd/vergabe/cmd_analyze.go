package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"vergabeflow/cmd/vergabe/ui"
	"vergabeflow/internal/types"
	"vergabeflow/internal/wizard"
)

var (
	analyzeType        string
	analyzeDescription string
	analyzePlain       bool
	analyzePDF         bool
)

// analyzeCmd runs the wizard as a line-based dialogue
var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Run a requirements analysis in the terminal without the TUI",
	Long: `Runs the full analysis as a question/answer dialogue on stdin/stdout:
  1. Submit procurement type and project description
  2. Answer the generated questions (and follow-up questions)
  3. Print the generated requirements description

Example:
  vergabe analyze --type Hardware --description "Beschaffung von 50 Laptops" --pdf`,
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().StringVarP(&analyzeType, "type", "t", "", "Procurement type (Beschaffungstyp)")
	analyzeCmd.Flags().StringVarP(&analyzeDescription, "description", "d", "", "Project description")
	analyzeCmd.Flags().BoolVar(&analyzePlain, "plain", false, "Print the description without markdown rendering")
	analyzeCmd.Flags().BoolVar(&analyzePDF, "pdf", false, "Export the result as PDF")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	in := bufio.NewReader(cmd.InOrStdin())
	out := cmd.OutOrStdout()
	styles := ui.DefaultStyles()

	notify := types.NotifierFunc(func(n types.Notice) {
		fmt.Fprintln(cmd.ErrOrStderr(), styles.RenderNotice(n))
	})
	a, err := newApp(cfg, notify)
	if err != nil {
		return err
	}
	defer a.Close()
	a.restore(ctx)

	procurementType, err := promptIfEmpty(in, out, analyzeType, "Beschaffungstyp")
	if err != nil {
		return err
	}
	description, err := promptIfEmpty(in, out, analyzeDescription, "Projektbeschreibung")
	if err != nil {
		return err
	}

	if err := a.ctrl.Start(ctx, procurementType, description); err != nil {
		return err
	}

	for {
		stage := a.ctrl.Stage()
		if stage != wizard.StageInitialQuestions && stage != wizard.StageFollowUpQuestions {
			break
		}
		fmt.Fprintf(out, "\n%s\n\n", styles.Title.Render(stage.Title()))
		pending := a.ctrl.PendingQuestions()
		answers, err := askQuestions(in, out, pending, questionOffset(a.ctrl.State(), pending))
		if err != nil {
			return err
		}
		if err := a.ctrl.SubmitAnswers(ctx, answers); err != nil && !errors.Is(err, wizard.ErrValidation) {
			return err
		}
	}

	if err := a.ctrl.Finalize(ctx); err != nil {
		return err
	}

	st := a.ctrl.State()
	fmt.Fprintf(out, "\n%s\n\n", styles.Title.Render(wizard.StageFinalDescription.Title()))
	fmt.Fprintln(out, renderDescription(st.FinalDescription, analyzePlain))
	if a.history != nil {
		fmt.Fprintf(out, "Analyse gespeichert: %s\n", st.AnalysisID)
	}

	if analyzePDF {
		path, err := a.exporter()(st)
		if err != nil {
			return fmt.Errorf("export failed: %w", err)
		}
		fmt.Fprintf(out, "PDF wurde erstellt: %s\n", path)
	}
	return nil
}

// questionOffset is the number of questions listed before pending.
// In the initial round every question is pending, so it is zero there.
func questionOffset(st wizard.State, pending []wizard.PendingQuestion) int {
	if n := len(st.Questions) - len(pending); n > 0 {
		return n
	}
	return 0
}

func promptIfEmpty(in *bufio.Reader, out io.Writer, value, label string) (string, error) {
	for strings.TrimSpace(value) == "" {
		fmt.Fprintf(out, "%s: ", label)
		line, err := readLine(in)
		if err != nil {
			return "", fmt.Errorf("failed to read %s: %w", label, err)
		}
		value = line
	}
	return strings.TrimSpace(value), nil
}

// askQuestions prompts every pending question until it has a non-blank
// answer. Pressing enter on a prefilled question keeps the prefill.
func askQuestions(in *bufio.Reader, out io.Writer, pending []wizard.PendingQuestion, offset int) ([]types.Answer, error) {
	answers := make([]types.Answer, 0, len(pending))
	for i, pq := range pending {
		fmt.Fprintf(out, "%d. %s\n", offset+i+1, pq.Text)
		if len(pq.Options) > 0 {
			fmt.Fprintf(out, "   Mögliche Antworten: %s\n", strings.Join(pq.Options, ", "))
		}
		for {
			if pq.Prefill != "" {
				fmt.Fprintf(out, "   Antwort [%s]: ", pq.Prefill)
			} else {
				fmt.Fprint(out, "   Antwort: ")
			}
			line, err := readLine(in)
			if err != nil {
				return nil, fmt.Errorf("failed to read answer: %w", err)
			}
			text := strings.TrimSpace(line)
			if text == "" {
				text = pq.Prefill
			}
			if text != "" {
				answers = append(answers, types.Answer{QuestionID: pq.ID, Text: text})
				break
			}
		}
	}
	return answers, nil
}

func renderDescription(text string, plain bool) string {
	if plain {
		return text
	}
	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(100))
	if err != nil {
		return text
	}
	md, err := r.Render(text)
	if err != nil {
		return text
	}
	return md
}
