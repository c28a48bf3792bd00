package main

import (
	"fmt"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/banshee-data/fundus.report/internal/db"
)

func newRunsCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Show the pipeline run log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := a.database()
			if err != nil {
				return err
			}
			store := db.NewRunStore(d)
			sum, err := store.Summary(cmd.Context())
			if err != nil {
				return err
			}
			runs, err := store.RecentRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%d runs, %d failed, %d with degenerate masks, mean %.1f ms\n",
				sum.Total, sum.Failed, sum.Degenerate, sum.MeanMillis)
			tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "STARTED\tOP\tID\tMS\tSTATS\tDEGENERATE\tRISK\tERROR")
			for _, r := range runs {
				risk := "-"
				if r.RiskScore != nil {
					risk = strconv.FormatFloat(*r.RiskScore, 'f', 3, 64)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%.1f\t%s\t%v\t%s\t%s\n",
					r.StartedAt.Format(time.RFC3339), r.Operation, r.ID,
					float64(r.Elapsed.Microseconds())/1000, r.StatsVersion, r.Degenerate, risk, r.Err)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of runs to show")
	return cmd
}
