package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"vergabeflow/internal/store"
	"vergabeflow/internal/types"
)

var historyLimit int

// historyCmd inspects stored analyses
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List stored analyses",
	Long: `Lists analyses recorded in the local history database, newest first.
Analyses can be addressed by their full id or a unique prefix.`,
	RunE: runHistoryList,
}

var historyShowCmd = &cobra.Command{
	Use:   "show [id]",
	Short: "Show an analysis with all questions and answers",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryShow,
}

var historyDeleteCmd = &cobra.Command{
	Use:   "delete [id]",
	Short: "Delete an analysis",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryDelete,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Maximum number of analyses")
	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyDeleteCmd)
}

// openHistory opens the history database or explains why it is unavailable.
func openHistory() (*store.HistoryStore, error) {
	if !cfg.Store.Enabled {
		return nil, errors.New("history is disabled (store.enabled: false)")
	}
	return store.OpenHistory(cfg.Store.DatabasePath)
}

func runHistoryList(cmd *cobra.Command, args []string) error {
	h, err := openHistory()
	if err != nil {
		return err
	}
	defer h.Close()

	list, err := h.List(cmd.Context(), historyLimit)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(list) == 0 {
		fmt.Fprintln(out, "Keine Analysen gespeichert")
		return nil
	}
	for _, a := range list {
		status := a.Stage
		if a.Complete() {
			status = "fertig"
		}
		fmt.Fprintf(out, "%-8s  %-16s  %-20s  %s\n",
			shortID(a.ID),
			a.UpdatedAt.Local().Format("02.01.2006 15:04"),
			truncate(a.ProcurementType, 20),
			status,
		)
	}
	return nil
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	h, err := openHistory()
	if err != nil {
		return err
	}
	defer h.Close()

	a, err := h.Find(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Analyse %s\n", a.ID)
	fmt.Fprintf(out, "Beschaffungstyp: %s\n", a.ProcurementType)
	fmt.Fprintf(out, "Projektbeschreibung:\n%s\n\n", a.Description)
	for i, p := range types.Pair(a.Questions, a.Answers) {
		answer := p.Answer
		if !p.Answered {
			answer = "Keine Antwort"
		}
		fmt.Fprintf(out, "Frage %d: %s\nAntwort: %s\n\n", i+1, p.Question, answer)
	}
	if a.FinalDescription != "" {
		fmt.Fprintf(out, "Bedarfsbeschreibung:\n%s\n", a.FinalDescription)
	}
	if a.ExportedPath != "" {
		fmt.Fprintf(out, "\nZuletzt exportiert: %s (%s)\n", a.ExportedPath, a.ExportedAt.Local().Format("02.01.2006 15:04"))
	}
	return nil
}

func runHistoryDelete(cmd *cobra.Command, args []string) error {
	h, err := openHistory()
	if err != nil {
		return err
	}
	defer h.Close()

	a, err := h.Find(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if err := h.Delete(cmd.Context(), a.ID); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Analyse %s gelöscht\n", shortID(a.ID))
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n-1])) + "…"
}
