package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sells-group/loantape/internal/fsutil"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show per-stage output counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("%-28s %8s %8s %14s\n", "stage", "done", "temp", "bytes")
		printDirStatus("linked (stage 1)", cfg.Paths.ESMAMergedDir)
		for _, bucket := range []string{"matched", "ecb_only", "esma_only"} {
			printDirStatus("reconciled/"+bucket, filepath.Join(cfg.Paths.MergedDir, bucket))
		}
		printDirStatus("by country (stage 3)", cfg.Paths.CountryDir)
		printDirStatus("sorted (stage 4)", cfg.Paths.SortedDir)
		return nil
	},
}

func printDirStatus(label, dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		fmt.Printf("%-28s %8s %8s %14s\n", label, "-", "-", "-")
		return
	}
	var done, temp int
	var bytes int64
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		switch {
		case strings.HasSuffix(name, fsutil.TempSuffix):
			temp++
		case strings.HasSuffix(name, ".csv"):
			done++
			bytes += fsutil.FileSize(filepath.Join(dir, name))
		}
	}
	fmt.Printf("%-28s %8d %8d %14d\n", label, done, temp, bytes)
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
