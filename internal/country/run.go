package country

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/loantape/internal/config"
)

// reportName is the run report written beside the country outputs. The
// leading underscore keeps it out of the CSV namespace used for resume.
const reportName = "_run_report.yaml"

// RunReport is the persisted summary of one aggregation run.
type RunReport struct {
	RunID      string    `yaml:"run_id"`
	StartedAt  time.Time `yaml:"started_at"`
	FinishedAt time.Time `yaml:"finished_at"`
	Countries  int       `yaml:"countries"`
	Completed  int       `yaml:"completed"`
	Skipped    int       `yaml:"skipped"`
	Failed     int       `yaml:"failed"`
	TotalRows  int64     `yaml:"total_rows"`
	Results    []Stats   `yaml:"results"`
}

// RunAll indexes the reconciled pool files, merges every country and
// persists the run report. A country's failure is contained; only context
// cancellation aborts the run, after the current country's temp artifact
// has been removed.
func RunAll(ctx context.Context, cfg *config.Config) (*RunReport, error) {
	report := &RunReport{
		RunID:     uuid.NewString(),
		StartedAt: time.Now().UTC(),
	}

	index, err := BuildIndex(ctx, cfg.Paths.MergedDir, cfg.Country.SampleRows)
	if err != nil {
		return report, err
	}
	report.Countries = len(index.Countries)

	merger := &Merger{
		OutputDir: cfg.Paths.CountryDir,
		ChunkRows: cfg.Country.ChunkRows,
	}

	for _, country := range index.CountryNames() {
		stats := merger.MergeCountry(ctx, country, index.Countries[country])
		report.Results = append(report.Results, stats)
		switch stats.Status {
		case StatusCompleted:
			report.Completed++
			report.TotalRows += stats.Rows
		case StatusSkipped:
			report.Skipped++
		case StatusFailed:
			report.Failed++
		}
		if err := ctx.Err(); err != nil {
			report.FinishedAt = time.Now().UTC()
			_ = writeReport(cfg.Paths.CountryDir, report)
			return report, err
		}
	}

	report.FinishedAt = time.Now().UTC()
	if err := writeReport(cfg.Paths.CountryDir, report); err != nil {
		return report, err
	}
	zap.L().Info("country: run complete",
		zap.String("run_id", report.RunID),
		zap.Int("countries", report.Countries),
		zap.Int("completed", report.Completed),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed),
		zap.Int64("total_rows", report.TotalRows),
	)
	return report, nil
}

func writeReport(dir string, report *RunReport) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrapf(err, "country: mkdir %s", dir)
	}
	data, err := yaml.Marshal(report)
	if err != nil {
		return eris.Wrap(err, "country: marshal run report")
	}
	path := filepath.Join(dir, reportName)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrapf(err, "country: write run report %s", path)
	}
	return nil
}
