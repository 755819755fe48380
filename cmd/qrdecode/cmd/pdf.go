package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ericlevine/qrdecode/internal/pdfimages"
)

func (a *app) pdfCommand() *cobra.Command {
	var format, pages string
	cmd := &cobra.Command{
		Use:   "pdf <file>",
		Short: "Decode the QR codes in the images embedded in a PDF",
		Args:  cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			return checkFormat(format)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			sc := a.newScanner(a.newLoader(false))
			results, err := pdfimages.Scan(cmd.Context(), sc, args[0], pages, a.cfg.Scan.Timeout)
			if err != nil {
				return err
			}
			if format != formatText {
				if results == nil {
					results = []pdfimages.Result{}
				}
				return writeStructured(cmd.OutOrStdout(), format, results)
			}
			found := 0
			for _, r := range results {
				for _, res := range r.Results {
					fmt.Fprintf(cmd.OutOrStdout(), "page %d image %d: %s\n", r.Page, r.Image, res.Content)
					found++
				}
			}
			if found == 0 {
				fmt.Fprintf(cmd.ErrOrStderr(), "%s: no QR code found\n", args[0])
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", formatText, "output format: text, json or yaml")
	cmd.Flags().StringVar(&pages, "pages", "", `pages to scan, e.g. "1-3,5" (default: all)`)
	return cmd
}
