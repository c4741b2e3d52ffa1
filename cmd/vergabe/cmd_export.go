package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var exportOut string

// exportCmd writes the PDF for a stored analysis
var exportCmd = &cobra.Command{
	Use:   "export [id]",
	Short: "Export a stored analysis as PDF",
	Long: `Renders a finished analysis from the history as PDF.
Without --out the file is written to the configured export directory.`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "Output file")
}

func runExport(cmd *cobra.Command, args []string) error {
	h, err := openHistory()
	if err != nil {
		return err
	}
	defer h.Close()

	a, err := h.Find(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if !a.Complete() {
		return fmt.Errorf("analysis %s has no requirements description yet", shortID(a.ID))
	}

	path := exportOut
	if path == "" {
		path = cfg.ExportPath()
	}
	if err := writePDF(a.Report(), path); err != nil {
		return fmt.Errorf("export failed: %w", err)
	}
	if err := h.MarkExported(cmd.Context(), a.ID, path); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "PDF wurde erstellt: %s\n", path)
	return nil
}
