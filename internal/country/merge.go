package country

import (
	"context"
	"io"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/loantape/internal/frame"
	"github.com/sells-group/loantape/internal/fsutil"
)

// Status classifies the outcome of one country merge.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusSkipped   Status = "skipped"
	StatusFailed    Status = "failed"
)

// Stats reports one country's merge.
type Stats struct {
	Country     string         `yaml:"country"`
	Status      Status         `yaml:"status"`
	Files       int            `yaml:"files"`
	Buckets     map[string]int `yaml:"buckets,omitempty"`
	Rows        int64          `yaml:"rows"`
	Columns     int            `yaml:"columns"`
	OutputBytes int64          `yaml:"output_bytes"`
	Error       string         `yaml:"error,omitempty"`
	Elapsed     time.Duration  `yaml:"-"`
	ElapsedSecs float64        `yaml:"elapsed_seconds"`
}

// Merger concatenates pool files into per-country outputs.
type Merger struct {
	OutputDir string
	ChunkRows int
}

// MergeCountry streams every contributing pool file into one country CSV.
// A country whose final file already exists is skipped without touching
// its inputs; a stale temp file from an interrupted attempt is deleted
// before work starts. Cancellation mid-country removes the temp file so a
// restart sees the country as not done.
func (m *Merger) MergeCountry(ctx context.Context, country string, files []PoolFile) Stats {
	start := time.Now()
	stats := Stats{Country: country, Files: len(files), Buckets: bucketCounts(files)}

	outPath := filepath.Join(m.OutputDir, fsutil.SafeName(country)+".csv")
	if fsutil.Exists(outPath) {
		stats.Status = StatusSkipped
		return stats
	}

	cols, err := m.unionSchema(files)
	if err != nil {
		return m.fail(stats, start, err)
	}
	stats.Columns = len(cols)

	w, err := fsutil.NewAtomicWriter(outPath)
	if err != nil {
		return m.fail(stats, start, err)
	}
	fw := frame.NewWriter(w, cols)

	for _, pf := range files {
		if err := m.appendFile(ctx, pf.Path, fw); err != nil {
			w.Abort()
			return m.fail(stats, start, err)
		}
	}
	if err := fw.Flush(); err != nil {
		w.Abort()
		return m.fail(stats, start, err)
	}
	if err := w.Commit(); err != nil {
		return m.fail(stats, start, err)
	}

	stats.Status = StatusCompleted
	stats.Rows = fw.Rows()
	stats.OutputBytes = fsutil.FileSize(outPath)
	stats.Elapsed = time.Since(start)
	stats.ElapsedSecs = stats.Elapsed.Seconds()
	zap.L().Info("country: merged",
		zap.String("country", country),
		zap.Int("files", stats.Files),
		zap.Int64("rows", stats.Rows),
		zap.Int("columns", stats.Columns),
		zap.Duration("elapsed", stats.Elapsed),
	)
	return stats
}

// bucketCounts breaks the contributing files down by reconciliation
// bucket, for the run report.
func bucketCounts(files []PoolFile) map[string]int {
	counts := make(map[string]int)
	for _, pf := range files {
		if pf.Bucket != "" {
			counts[pf.Bucket]++
		}
	}
	if len(counts) == 0 {
		return nil
	}
	return counts
}

// unionSchema reads only the header of each contributing file. The full
// rows are streamed later; the schema pass must stay cheap even for
// multi-gigabyte countries.
func (m *Merger) unionSchema(files []PoolFile) ([]string, error) {
	sets := make([][]string, 0, len(files))
	for _, pf := range files {
		header, err := frame.ReadHeader(pf.Path)
		if err != nil {
			return nil, err
		}
		sets = append(sets, header)
	}
	return frame.UnionColumns(sets...), nil
}

func (m *Merger) appendFile(ctx context.Context, path string, fw *frame.Writer) error {
	cr, err := frame.NewChunkReader(path, m.ChunkRows)
	if err != nil {
		return err
	}
	defer cr.Close() //nolint:errcheck

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		chunk, err := cr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err := fw.WriteFrame(chunk); err != nil {
			return err
		}
	}
}

func (m *Merger) fail(stats Stats, start time.Time, err error) Stats {
	stats.Status = StatusFailed
	stats.Error = err.Error()
	stats.Elapsed = time.Since(start)
	stats.ElapsedSecs = stats.Elapsed.Seconds()
	zap.L().Error("country: merge failed",
		zap.String("country", stats.Country),
		zap.Error(err),
	)
	return stats
}
