package sorter

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/loantape/internal/config"
	"github.com/sells-group/loantape/internal/fsutil"
)

// Status classifies the outcome of one file.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusSkipped   Status = "skipped"
	StatusFailed    Status = "failed"
)

// FileResult records one country file's sort outcome.
type FileResult struct {
	File        string        `yaml:"file"`
	Status      Status        `yaml:"status"`
	Rows        int64         `yaml:"rows"`
	InputBytes  int64         `yaml:"input_bytes"`
	Keys        []string      `yaml:"keys,omitempty"`
	Error       string        `yaml:"error,omitempty"`
	Elapsed     time.Duration `yaml:"-"`
	ElapsedSecs float64       `yaml:"elapsed_seconds"`
}

// RunReport aggregates a sorting run.
type RunReport struct {
	Completed int           `yaml:"completed"`
	Skipped   int           `yaml:"skipped"`
	Failed    int           `yaml:"failed"`
	Results   []FileResult  `yaml:"results"`
	Elapsed   time.Duration `yaml:"-"`
}

// RunAll sorts every country file, smallest first so quick results land
// early and a capacity problem with the biggest files surfaces last. A
// file's failure is contained; only context cancellation aborts the run.
func RunAll(ctx context.Context, cfg *config.Config) (*RunReport, error) {
	start := time.Now()
	report := &RunReport{}

	files, err := listBySize(cfg.Paths.CountryDir)
	if err != nil {
		return report, err
	}
	if err := os.MkdirAll(cfg.Paths.ScratchDir, 0o755); err != nil {
		return report, eris.Wrapf(err, "sorter: mkdir scratch %s", cfg.Paths.ScratchDir)
	}

	s := &Sorter{
		ScratchDir:  cfg.Paths.ScratchDir,
		InsertBatch: cfg.Sorter.InsertBatch,
		Resources: DetectResources(
			cfg.Sorter.MemoryFraction,
			cfg.Sorter.MinMemoryBytes,
			cfg.Sorter.MaxMemoryBytes,
		),
	}

	for _, name := range files {
		if err := ctx.Err(); err != nil {
			report.Elapsed = time.Since(start)
			return report, err
		}
		result := s.sortOne(ctx, cfg.Paths.CountryDir, cfg.Paths.SortedDir, name)
		report.Results = append(report.Results, result)
		switch result.Status {
		case StatusCompleted:
			report.Completed++
		case StatusSkipped:
			report.Skipped++
		case StatusFailed:
			report.Failed++
		}
	}

	report.Elapsed = time.Since(start)
	zap.L().Info("sorter: run complete",
		zap.Int("completed", report.Completed),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed),
		zap.Duration("elapsed", report.Elapsed),
	)
	return report, nil
}

func (s *Sorter) sortOne(ctx context.Context, inDir, outDir, name string) FileResult {
	start := time.Now()
	inPath := filepath.Join(inDir, name)
	result := FileResult{File: name, InputBytes: fsutil.FileSize(inPath)}

	outPath := filepath.Join(outDir, name)
	if fsutil.Exists(outPath) {
		result.Status = StatusSkipped
		return result
	}

	rows, keys, err := s.SortFile(ctx, inPath, outPath)
	result.Elapsed = time.Since(start)
	result.ElapsedSecs = result.Elapsed.Seconds()
	if err != nil {
		result.Status = StatusFailed
		result.Error = err.Error()
		zap.L().Error("sorter: file failed",
			zap.String("file", name),
			zap.Error(err),
		)
		return result
	}

	result.Status = StatusCompleted
	result.Rows = rows
	result.Keys = keys
	zap.L().Info("sorter: file sorted",
		zap.String("file", name),
		zap.Int64("rows", rows),
		zap.Strings("keys", keys),
		zap.Duration("elapsed", result.Elapsed),
	)
	return result
}

// listBySize returns the CSV files of dir ordered smallest first.
func listBySize(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sorter: read input dir %s", dir)
	}
	type sized struct {
		name string
		size int64
	}
	var files []sized
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".csv") {
			continue
		}
		files = append(files, sized{name, fsutil.FileSize(filepath.Join(dir, name))})
	}
	sort.Slice(files, func(i, j int) bool {
		if files[i].size != files[j].size {
			return files[i].size < files[j].size
		}
		return files[i].name < files[j].name
	})
	names := make([]string, len(files))
	for i, f := range files {
		names[i] = f.name
	}
	return names, nil
}
