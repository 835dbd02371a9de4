package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/loantape/internal/country"
	"github.com/sells-group/loantape/internal/linker"
	"github.com/sells-group/loantape/internal/reconcile"
	"github.com/sells-group/loantape/internal/sorter"
)

var runSkipLink bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run all pipeline stages in order",
	Long:  "Runs link, reconcile, countries and sort back to back. Completed units are skipped, so re-running after an interruption resumes where the previous run stopped.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if !runSkipLink {
			zap.L().Info("pipeline: stage 1, linking")
			batch := &linker.Batch{
				InputDir:  cfg.Paths.ESMARawDir,
				OutputDir: cfg.Paths.ESMAMergedDir,
				Workers:   cfg.Linker.Workers,
			}
			linkReport, err := batch.Run(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("link: pairs: %d  linked: %d  skipped: %d  failed: %d\n",
				linkReport.Pairs, linkReport.Successful, linkReport.Skipped, linkReport.Failed)
		}

		zap.L().Info("pipeline: stage 2, reconciling")
		session, err := reconcile.NewSession(cfg)
		if err != nil {
			return err
		}
		recReport, err := session.RunAll(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("reconcile: completed: %d  skipped: %d  failed: %d\n",
			recReport.Completed, recReport.Skipped, recReport.Failed)

		zap.L().Info("pipeline: stage 3, aggregating by country")
		countryReport, err := country.RunAll(ctx, cfg)
		if err != nil {
			return err
		}
		fmt.Printf("countries: completed: %d  skipped: %d  failed: %d\n",
			countryReport.Completed, countryReport.Skipped, countryReport.Failed)

		zap.L().Info("pipeline: stage 4, sorting")
		sortReport, err := sorter.RunAll(ctx, cfg)
		if err != nil {
			return err
		}
		fmt.Printf("sort: completed: %d  skipped: %d  failed: %d\n",
			sortReport.Completed, sortReport.Skipped, sortReport.Failed)

		failed := recReport.Failed + countryReport.Failed + sortReport.Failed
		if failed > 0 {
			return fmt.Errorf("%d unit(s) failed across stages", failed)
		}
		return nil
	},
}

func init() {
	runCmd.Flags().BoolVar(&runSkipLink, "skip-link", false, "skip stage 1 (use existing linked files)")
	rootCmd.AddCommand(runCmd)
}
