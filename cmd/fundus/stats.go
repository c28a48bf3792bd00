package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/banshee-data/fundus.report/internal/db"
	"github.com/banshee-data/fundus.report/internal/fundus/normalize"
	"github.com/banshee-data/fundus.report/internal/security"
)

func newStatsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Compute, import and list normalization stats",
	}
	cmd.AddCommand(newStatsComputeCmd(a), newStatsImportCmd(a), newStatsListCmd(a), newStatsExportCmd(a))
	return cmd
}

func newStatsComputeCmd(a *app) *cobra.Command {
	var (
		features string
		out      string
		save     bool
		label    string
	)
	cmd := &cobra.Command{
		Use:   "compute",
		Short: "Compute per-dimension mean and std from a raw feature CSV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if out == "" && !save {
				return fmt.Errorf("nothing to do: pass --out and/or --save")
			}
			f, err := a.fsys.Open(features)
			if err != nil {
				return err
			}
			rows, err := normalize.ReadFeatureCSV(f)
			f.Close()
			if err != nil {
				return err
			}
			stats, err := normalize.ComputeStats(rows)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "computed stats over %d rows\n", stats.Samples)

			if out != "" {
				if err := security.ValidateOutputPath(out); err != nil {
					return err
				}
				if err := normalize.WriteStatsFile(a.fsys, out, stats); err != nil {
					return err
				}
				fmt.Fprintf(w, "wrote %s\n", out)
			}
			if save {
				row, err := a.saveStats(cmd, label, stats)
				if err != nil {
					return err
				}
				fmt.Fprintf(w, "saved stats %s\n", row.ID)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&features, "features", "", "raw feature CSV, one 1425-column row per patient (required)")
	cmd.Flags().StringVar(&out, "out", "", "write stats JSON here")
	cmd.Flags().BoolVar(&save, "save", false, "store the stats as the newest version in stats_db")
	cmd.Flags().StringVar(&label, "label", "", "label for the stored version")
	_ = cmd.MarkFlagRequired("features")
	return cmd
}

func newStatsImportCmd(a *app) *cobra.Command {
	var label string
	cmd := &cobra.Command{
		Use:   "import <stats.json>",
		Short: "Store a stats JSON file as the newest version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stats, err := normalize.LoadStatsFile(a.fsys, args[0])
			if err != nil {
				return err
			}
			row, err := a.saveStats(cmd, label, stats)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %s as %s\n", args[0], row.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&label, "label", "", "label for the stored version")
	return cmd
}

func newStatsExportCmd(a *app) *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "export <stats.json>",
		Short: "Write a stored version (default: newest) to a JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := security.ValidateOutputPath(args[0]); err != nil {
				return err
			}
			d, err := a.database()
			if err != nil {
				return err
			}
			store := db.NewStatsStore(d)
			var row *db.StoredStats
			if id == "" {
				row, err = store.Latest(cmd.Context())
			} else {
				row, err = store.Get(cmd.Context(), id)
			}
			if err != nil {
				return err
			}
			if err := normalize.WriteStatsFile(a.fsys, args[0], row.Stats); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exported %s to %s\n", row.ID, args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "stats version to export")
	return cmd
}

func newStatsListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored stats versions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := a.database()
			if err != nil {
				return err
			}
			rows, err := db.NewStatsStore(d).List(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tLABEL\tCREATED")
			for _, r := range rows {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", r.ID, r.Label, r.CreatedAt.Format(time.RFC3339))
			}
			return tw.Flush()
		},
	}
}

func (a *app) saveStats(cmd *cobra.Command, label string, stats *normalize.Stats) (*db.StoredStats, error) {
	d, err := a.database()
	if err != nil {
		return nil, err
	}
	return db.NewStatsStore(d).Save(cmd.Context(), label, stats)
}
