package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/banshee-data/fundus.report/internal/db"
)

func newMigrateCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the stats_db schema",
	}
	open := func() (*db.DB, error) {
		if a.db != nil {
			return a.db, nil
		}
		d, err := db.OpenDB(a.cfg.GetStatsDB())
		if err != nil {
			return nil, err
		}
		a.db = d
		return d, nil
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				d, err := open()
				if err != nil {
					return err
				}
				if err := d.MigrateUp(); err != nil {
					return err
				}
				return printStatus(cmd, d)
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back one migration",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				d, err := open()
				if err != nil {
					return err
				}
				if err := d.MigrateDown(); err != nil {
					return err
				}
				return printStatus(cmd, d)
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "Show the schema version",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				d, err := open()
				if err != nil {
					return err
				}
				return printStatus(cmd, d)
			},
		},
	)
	return cmd
}

func printStatus(cmd *cobra.Command, d *db.DB) error {
	st, err := d.GetMigrationStatus()
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "schema version %d of %d", st.CurrentVersion, st.LatestVersion)
	switch {
	case st.Dirty:
		fmt.Fprint(cmd.OutOrStdout(), " (dirty)")
	case st.Pending():
		fmt.Fprint(cmd.OutOrStdout(), " (pending)")
	}
	fmt.Fprintln(cmd.OutOrStdout())
	return nil
}
