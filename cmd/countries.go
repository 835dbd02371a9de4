package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sells-group/loantape/internal/country"
)

var countriesCmd = &cobra.Command{
	Use:   "countries",
	Short: "Regroup reconciled pools into per-country files (stage 3)",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		report, err := country.RunAll(ctx, cfg)
		if report != nil {
			printCountryReport(report)
		}
		if err != nil {
			return err
		}
		if report.Failed > 0 {
			return fmt.Errorf("%d country(ies) failed", report.Failed)
		}
		return nil
	},
}

func printCountryReport(report *country.RunReport) {
	fmt.Printf("run %s: countries: %d  completed: %d  skipped: %d  failed: %d  rows: %d\n",
		report.RunID, report.Countries, report.Completed, report.Skipped, report.Failed, report.TotalRows)
	for _, r := range report.Results {
		if r.Status == country.StatusFailed {
			fmt.Printf("  FAILED %s: %s\n", r.Country, r.Error)
		}
	}
}

func init() {
	rootCmd.AddCommand(countriesCmd)
}
