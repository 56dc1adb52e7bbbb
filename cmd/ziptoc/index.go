package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/meigma/ziptoc"
)

func newIndexCmd(a *app) *cobra.Command {
	var skip bool
	cmd := &cobra.Command{
		Use:   "index KEY...",
		Short: "Build listings for archives that have none",
		Long: `Build and store the listing of each archive. Archives that already have
a listing are left alone. Indexing failures are logged and do not stop the
remaining archives.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, keys []string) error {
			g, gctx := errgroup.WithContext(cmd.Context())
			g.SetLimit(a.cfg.Concurrency)
			for _, key := range keys {
				g.Go(func() error {
					err := a.svc.Index(gctx, key)
					if skip && errors.Is(err, ziptoc.ErrNotIndexable) {
						a.logger.Info("skipping archive", "archive", key)
						return nil
					}
					return err
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}

			missing := 0
			for _, key := range keys {
				if !a.svc.CanProcess(key) {
					continue
				}
				l, err := a.svc.List(cmd.Context(), key)
				if err != nil {
					missing++
					cmd.PrintErrf("%s: not indexed\n", key)
					continue
				}
				suffix := ""
				if l.Truncated {
					suffix = " (truncated)"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %d entries%s\n", key, l.Total, suffix)
			}
			if missing > 0 {
				return errors.New("some archives were not indexed; see the log")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&skip, "skip-unsupported", false, "ignore keys whose extension is not configured")
	return cmd
}
