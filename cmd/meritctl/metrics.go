package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"meritlog.org/internal/auth"
	"meritlog.org/internal/entity"
)

func newMetricsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "metrics <user-id>",
		Short: "Load a user's records and print the per-year metrics",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := opts.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			ctx, cancel := opts.context(cmd)
			defer cancel()
			ctx = auth.ContextWithUser(ctx, args[0])

			es := entity.New(store)
			es.Bind(args[0])
			if err := es.Load(ctx); err != nil {
				return err
			}
			printMetrics(cmd, es)
			return nil
		},
	}
}

func printMetrics(cmd *cobra.Command, es *entity.Store) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "YEAR\tIMPACT\tCOMPLETION\tAWARDS")
	agg := es.Aggregator()
	for _, y := range agg.Years() {
		m, _ := agg.Year(y)
		fmt.Fprintf(w, "%s\t%d\t%s\t%d\n", y, m.ImpactScore, m.CompletionRate, m.Awards)
	}
	_ = w.Flush()
	fmt.Fprintf(cmd.OutOrStdout(), "%d achievements, %d goals, %d files\n",
		len(es.Achievements()), len(es.Goals()), len(es.Files()))
}
