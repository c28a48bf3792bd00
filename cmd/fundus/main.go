// Command fundus extracts fusion feature vectors from fundus photographs,
// manages normalization stats and runs the fusion classifier.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/banshee-data/fundus.report/internal/fsutil"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a := newApp(fsutil.OSFileSystem{}, os.Stdout)
	defer a.close()
	if err := newRootCmd(a).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "fundus",
		Short:         "fundus fusion feature pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
	}
	root.SetOut(a.out)
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "path to config JSON (default: built-in defaults)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "override log_level (debug, info, warn, error)")

	root.AddCommand(
		newExtractCmd(a),
		newPredictCmd(a),
		newBatchCmd(a),
		newAnalyzeMaskCmd(a),
		newStatsCmd(a),
		newRunsCmd(a),
		newMigrateCmd(a),
		newVersionCmd(a),
	)
	return root
}
