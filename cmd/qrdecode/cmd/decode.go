package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ericlevine/qrdecode"
)

type refResult struct {
	Ref     string                  `json:"ref" yaml:"ref"`
	Results []qrdecode.DecodeResult `json:"results" yaml:"results"`
	Error   string                  `json:"error,omitempty" yaml:"error,omitempty"`
}

func (a *app) decodeCommand() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "decode <ref>...",
		Short: "Decode the QR codes in images",
		Long: `Decode every QR code in each referenced image. A reference is a file path,
a file:// or http(s):// URL, or a data: URI.

The exit status is 1 if any reference could not be loaded or its scan did
not finish, for example after --timeout. An image without QR codes is not an
error.`,
		Args: cobra.MinimumNArgs(1),
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			return checkFormat(format)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			sc := a.newScanner(a.newLoader(false))
			out, errOut := cmd.OutOrStdout(), cmd.ErrOrStderr()

			var all []refResult
			loadFailed, scanFailed := false, false
			for _, ref := range args {
				ctx, cancel := a.withScanTimeout(cmd.Context())
				results, err := sc.Decode(ctx, ref)
				cancel()

				r := refResult{Ref: ref, Results: results}
				if err != nil {
					a.log.Warn("decode failed", zap.String("ref", ref), zap.Error(err))
					r.Error = err.Error()
					r.Results = []qrdecode.DecodeResult{}
					if errors.Is(err, qrdecode.ErrImageLoad) {
						loadFailed = true
					} else {
						scanFailed = true
					}
				}
				all = append(all, r)

				if format != formatText {
					continue
				}
				switch {
				case err != nil:
					fmt.Fprintf(errOut, "%s: error: %v\n", ref, err)
				case len(results) == 0:
					fmt.Fprintf(errOut, "%s: no QR code found\n", ref)
				default:
					for _, res := range results {
						if len(args) > 1 {
							fmt.Fprintf(out, "%s: ", ref)
						}
						fmt.Fprintln(out, res.Content)
					}
				}
			}

			if format != formatText {
				if err := writeStructured(out, format, all); err != nil {
					return err
				}
			}
			switch {
			case loadFailed:
				return errLoadFailed
			case scanFailed:
				return errScanFailed
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", formatText, "output format: text, json or yaml")
	return cmd
}
