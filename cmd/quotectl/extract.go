package main

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Lllllllleong/translationquoteflow/internal/extract"
)

// newExtractCmd runs text extraction on a local file. OCR is not available
// here, so scanned documents report extract.ErrOCRUnavailable.
func newExtractCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "extract <file>",
		Short: "Extract page text and word counts from a local document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			doc, err := extract.NewService(nil).ExtractReader(cmd.Context(), filepath.Base(args[0]), f)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), doc)
		},
	}
}
