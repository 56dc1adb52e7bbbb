package main

import (
	"io"

	"github.com/spf13/cobra"
)

func newCatCmd(a *app) *cobra.Command {
	var offset, length int64
	cmd := &cobra.Command{
		Use:   "cat KEY PATH",
		Short: "Print a file entry, optionally a byte range of it",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := a.svc.Open(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			defer h.Close()

			if offset != 0 {
				whence := io.SeekStart
				if offset < 0 {
					whence = io.SeekEnd
				}
				if _, err := h.Seek(offset, whence); err != nil {
					return err
				}
			}
			var r io.Reader = h
			if length > 0 {
				r = io.LimitReader(h, length)
			}
			_, err = io.Copy(cmd.OutOrStdout(), r)
			return err
		},
	}
	cmd.Flags().Int64Var(&offset, "offset", 0, "start offset; negative values count from the end")
	cmd.Flags().Int64Var(&length, "length", 0, "bytes to print; zero prints to the end")
	return cmd
}
