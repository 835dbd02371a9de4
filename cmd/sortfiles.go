package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sells-group/loantape/internal/sorter"
)

var sortCmd = &cobra.Command{
	Use:   "sort",
	Short: "Sort country files by the composite observation key (stage 4)",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		report, err := sorter.RunAll(ctx, cfg)
		if report != nil {
			printSortReport(report)
		}
		if err != nil {
			return err
		}
		if report.Failed > 0 {
			return fmt.Errorf("%d file(s) failed", report.Failed)
		}
		return nil
	},
}

func printSortReport(report *sorter.RunReport) {
	fmt.Printf("files: completed: %d  skipped: %d  failed: %d\n",
		report.Completed, report.Skipped, report.Failed)
	for _, r := range report.Results {
		if r.Status == sorter.StatusFailed {
			fmt.Printf("  FAILED %s: %s\n", r.File, r.Error)
		}
	}
}

func init() {
	rootCmd.AddCommand(sortCmd)
}
