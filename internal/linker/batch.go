package linker

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/loantape/internal/frame"
	"github.com/sells-group/loantape/internal/fsutil"
)

// PairFailure records one pair that could not be linked, with enough
// context to re-run just that pair.
type PairFailure struct {
	UE         string `yaml:"ue"`
	Collateral string `yaml:"collateral"`
	Error      string `yaml:"error"`
}

// BatchReport aggregates a full linking run.
type BatchReport struct {
	Pairs         int            `yaml:"pairs"`
	Successful    int            `yaml:"successful"`
	Skipped       int            `yaml:"skipped"`
	Failed        int            `yaml:"failed"`
	SuccessByType map[string]int `yaml:"success_by_type"`
	KeysUsed      map[string]int `yaml:"keys_used"`
	TotalUERows   int64          `yaml:"total_ue_rows"`
	TotalMerged   int64          `yaml:"total_merged_rows"`
	TotalMatched  int64          `yaml:"total_matched_rows"`
	FailedPairs   []PairFailure  `yaml:"failed_pairs,omitempty"`
	Elapsed       time.Duration  `yaml:"-"`
}

// Batch links every UE/Collateral pair found in a source directory.
type Batch struct {
	InputDir  string
	OutputDir string
	Workers   int
}

// Run discovers pairs and links them. Pairs whose output already exists
// are skipped; a single pair's failure never aborts the batch. Pairs write
// to distinct output files, so they fan out safely.
func (b *Batch) Run(ctx context.Context) (*BatchReport, error) {
	start := time.Now()

	entries, err := os.ReadDir(b.InputDir)
	if err != nil {
		return nil, eris.Wrapf(err, "linker: read input dir %s", b.InputDir)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	pairs := MatchPairs(names)
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].UE.Filename < pairs[j].UE.Filename })

	if err := os.MkdirAll(b.OutputDir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "linker: create output dir %s", b.OutputDir)
	}

	report := &BatchReport{
		Pairs:         len(pairs),
		SuccessByType: make(map[string]int),
		KeysUsed:      make(map[string]int),
	}
	var mu sync.Mutex

	workers := b.Workers
	if workers <= 0 {
		workers = 1
	}
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for _, pair := range pairs {
		pair := pair
		g.Go(func() error {
			if gCtx.Err() != nil {
				return gCtx.Err()
			}
			outName := MergedName(pair.UE.Filename)
			outPath := filepath.Join(b.OutputDir, outName)
			if fsutil.Exists(outPath) {
				mu.Lock()
				report.Skipped++
				mu.Unlock()
				return nil
			}

			stats, err := b.linkOne(pair, outPath)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Failed++
				report.FailedPairs = append(report.FailedPairs, PairFailure{
					UE:         pair.UE.Filename,
					Collateral: pair.Collateral.Filename,
					Error:      err.Error(),
				})
				zap.L().Error("linker: pair failed",
					zap.String("ue", pair.UE.Filename),
					zap.Error(err),
				)
				return nil // contain the failure, keep the batch going
			}
			report.Successful++
			report.SuccessByType[pair.UE.AssetType]++
			report.KeysUsed[stats.Keys]++
			report.TotalUERows += int64(stats.UERows)
			report.TotalMerged += int64(stats.MergedRows)
			report.TotalMatched += int64(stats.MatchedRows)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report, eris.Wrap(err, "linker: batch interrupted")
	}

	report.Elapsed = time.Since(start)
	sort.Slice(report.FailedPairs, func(i, j int) bool {
		return report.FailedPairs[i].UE < report.FailedPairs[j].UE
	})
	zap.L().Info("linker: batch complete",
		zap.Int("pairs", report.Pairs),
		zap.Int("successful", report.Successful),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed),
		zap.Duration("elapsed", report.Elapsed),
	)
	return report, nil
}

func (b *Batch) linkOne(pair Pair, outPath string) (*PairStats, error) {
	ue, err := frame.ReadCSVFile(filepath.Join(b.InputDir, pair.UE.Filename))
	if err != nil {
		return nil, eris.Wrap(err, "linker: read ue file")
	}
	collateral, err := frame.ReadCSVFile(filepath.Join(b.InputDir, pair.Collateral.Filename))
	if err != nil {
		return nil, eris.Wrap(err, "linker: read collateral file")
	}

	merged, stats, err := LinkPair(ue, collateral)
	if err != nil {
		return nil, err
	}
	stats.Filename = filepath.Base(outPath)
	stats.AssetType = pair.UE.AssetType

	w, err := fsutil.NewAtomicWriter(outPath)
	if err != nil {
		return nil, err
	}
	fw := frame.NewWriter(w, merged.Columns)
	if err := fw.WriteFrame(merged); err != nil {
		w.Abort()
		return nil, err
	}
	if err := fw.Flush(); err != nil {
		w.Abort()
		return nil, err
	}
	if err := w.Commit(); err != nil {
		return nil, err
	}

	zap.L().Info("linker: pair linked",
		zap.String("output", stats.Filename),
		zap.String("keys", stats.Keys),
		zap.Int("ue_rows", stats.UERows),
		zap.Int("matched_rows", stats.MatchedRows),
	)
	return stats, nil
}
