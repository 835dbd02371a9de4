package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sells-group/loantape/internal/reconcile"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Reconcile ECB and ESMA pools into per-pool files (stage 2)",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		session, err := reconcile.NewSession(cfg)
		if err != nil {
			return err
		}
		report, err := session.RunAll(ctx)
		if report != nil {
			printReconcileReport(report)
		}
		if err != nil {
			return err
		}
		if report.Failed > 0 {
			return fmt.Errorf("%d pool(s) failed", report.Failed)
		}
		return nil
	},
}

func printReconcileReport(report *reconcile.RunReport) {
	fmt.Printf("pools: completed: %d  skipped: %d  failed: %d\n",
		report.Completed, report.Skipped, report.Failed)
	for _, r := range report.Results {
		if r.Status == reconcile.StatusFailed {
			fmt.Printf("  FAILED %s/%s: %s\n", r.Bucket, r.Pool, r.Error)
		}
	}
}

func init() {
	rootCmd.AddCommand(reconcileCmd)
}
