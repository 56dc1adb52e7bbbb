package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

func newExtractCmd(a *app) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "extract KEY PATH",
		Short: "Write a file, or a directory as a new ZIP archive",
		Long: `Extract the entry at PATH. Files are written as stored; directories are
written as a new ZIP archive of every file below them. Without --output the
content is written to a file named after the entry in the current
directory. Use --output - for standard output.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			x, err := a.svc.Extract(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			defer func() {
				if cerr := x.Close(); err == nil {
					err = cerr
				}
			}()

			if output == "-" {
				_, err = x.WriteTo(cmd.OutOrStdout())
				return err
			}
			if output == "" {
				output = x.Filename
			}
			n, err := writeFile(output, x)
			if err != nil {
				return err
			}
			a.logger.Info("extracted", "archive", args[0], "path", args[1], "output", output, "bytes", n)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "destination file, or - for standard output")
	return cmd
}

// writeFile writes r to a temporary file next to name and renames it into
// place once complete.
func writeFile(name string, r io.WriterTo) (int64, error) {
	tmp, err := os.CreateTemp(filepath.Dir(name), ".ziptoc-*")
	if err != nil {
		return 0, err
	}
	n, err := r.WriteTo(tmp)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Rename(tmp.Name(), name)
	}
	if err != nil {
		_ = os.Remove(tmp.Name())
		return n, fmt.Errorf("write %s: %w", name, err)
	}
	return n, nil
}
