package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/meigma/ziptoc"
)

func newListCmd(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list KEY [PATH]",
		Short: "Print the entry tree of an indexed archive",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			l, err := a.svc.List(ctx, args[0])
			if err != nil {
				return err
			}
			root := l.Entries[0]
			if len(args) == 2 {
				if root, err = a.svc.Stat(ctx, args[0], args[1]); err != nil {
					return err
				}
			}
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if len(args) == 2 {
					return enc.Encode(root)
				}
				return enc.Encode(l)
			}
			printTree(out, root, 0)
			if l.Truncated {
				fmt.Fprintf(out, "(listing truncated after %d files)\n", l.Total)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the listing as JSON")
	return cmd
}

func printTree(w io.Writer, n *ziptoc.Node, depth int) {
	indent := strings.Repeat("  ", depth)
	if n.IsDir() {
		fmt.Fprintf(w, "%s%s/\n", indent, n.Key)
		for _, c := range n.Children() {
			printTree(w, c, depth+1)
		}
		return
	}
	fmt.Fprintf(w, "%s%s\t%d\t%s\n", indent, n.Key, n.Size, n.MimeType)
}
