package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sells-group/loantape/internal/linker"
)

var linkWorkers int

var linkCmd = &cobra.Command{
	Use:   "link",
	Short: "Link UE exports with their collateral exports (stage 1)",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		workers := linkWorkers
		if workers <= 0 {
			workers = cfg.Linker.Workers
		}
		batch := &linker.Batch{
			InputDir:  cfg.Paths.ESMARawDir,
			OutputDir: cfg.Paths.ESMAMergedDir,
			Workers:   workers,
		}
		report, err := batch.Run(ctx)
		if err != nil {
			return err
		}

		fmt.Printf("pairs: %d  linked: %d  skipped: %d  failed: %d\n",
			report.Pairs, report.Successful, report.Skipped, report.Failed)
		for _, f := range report.FailedPairs {
			fmt.Printf("  FAILED %s: %s\n", f.UE, f.Error)
		}
		if report.Failed > 0 {
			return fmt.Errorf("%d pair(s) failed", report.Failed)
		}
		return nil
	},
}

func init() {
	linkCmd.Flags().IntVar(&linkWorkers, "workers", 0, "concurrent pairs (0 = config default)")
	rootCmd.AddCommand(linkCmd)
}
