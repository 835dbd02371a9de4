package reconcile

import (
	"context"
	"path/filepath"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/loantape/internal/fsutil"
)

// Status classifies the outcome of one pool.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusSkipped   Status = "skipped"
	StatusFailed    Status = "failed"
)

// PoolResult records one pool's outcome.
type PoolResult struct {
	Pool     string        `yaml:"pool"`
	ESMAPool string        `yaml:"esma_pool,omitempty"`
	Bucket   string        `yaml:"bucket"`
	Status   Status        `yaml:"status"`
	Rows     int64         `yaml:"rows"`
	Chunked  bool          `yaml:"chunked,omitempty"`
	Error    string        `yaml:"error,omitempty"`
	Elapsed  time.Duration `yaml:"-"`
}

// RunReport aggregates a reconciliation run.
type RunReport struct {
	Completed int           `yaml:"completed"`
	Skipped   int           `yaml:"skipped"`
	Failed    int           `yaml:"failed"`
	Results   []PoolResult  `yaml:"results"`
	Elapsed   time.Duration `yaml:"-"`
}

// poolTask is one unit of work scheduled by the driver.
type poolTask struct {
	pool     string
	esmaPool string
	bucket   string
	chunked  bool
}

// RunAll reconciles every pool in every bucket. Within each bucket the
// in-memory pools run before the chunked ones, so the quick wins land
// first and an interrupted run resumes with less rework. A pool's failure
// is contained; only context cancellation aborts the run.
func (s *Session) RunAll(ctx context.Context) (*RunReport, error) {
	start := time.Now()
	report := &RunReport{}

	for _, bucket := range []string{BucketMatched, BucketECBOnly, BucketESMAOnly} {
		tasks, err := s.scheduleBucket(bucket)
		if err != nil {
			return report, err
		}
		completed, err := fsutil.CompletedCSVs(filepath.Join(s.outputDir, bucket))
		if err != nil {
			return report, err
		}

		for _, task := range tasks {
			if err := ctx.Err(); err != nil {
				report.Elapsed = time.Since(start)
				return report, err
			}
			result := s.runPool(ctx, task, completed)
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
	}

	report.Elapsed = time.Since(start)
	zap.L().Info("reconcile: run complete",
		zap.Int("completed", report.Completed),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed),
		zap.Duration("elapsed", report.Elapsed),
	)
	return report, nil
}

// scheduleBucket lists a bucket's pools in processing order: in-memory
// pools first, chunked pools last, alphabetical within each group.
func (s *Session) scheduleBucket(bucket string) ([]poolTask, error) {
	var tasks []poolTask
	switch bucket {
	case BucketMatched:
		ecbIDs := make([]string, 0, len(s.matched))
		for id := range s.matched {
			ecbIDs = append(ecbIDs, id)
		}
		sort.Strings(ecbIDs)
		for _, id := range ecbIDs {
			tasks = append(tasks, poolTask{
				pool:     id,
				esmaPool: s.matched[id],
				bucket:   bucket,
				chunked:  s.isLargeECB(id) || s.isLargeESMA(s.matched[id]),
			})
		}
	case BucketECBOnly:
		for _, id := range s.ecbOnly {
			tasks = append(tasks, poolTask{pool: id, bucket: bucket, chunked: s.isLargeECB(id)})
		}
	case BucketESMAOnly:
		for _, id := range s.esmaOnly {
			tasks = append(tasks, poolTask{pool: id, bucket: bucket, chunked: s.isLargeESMA(id)})
		}
	}
	sort.SliceStable(tasks, func(i, j int) bool {
		if tasks[i].chunked != tasks[j].chunked {
			return !tasks[i].chunked
		}
		return tasks[i].pool < tasks[j].pool
	})
	return tasks, nil
}

func (s *Session) runPool(ctx context.Context, task poolTask, completed map[string]bool) PoolResult {
	result := PoolResult{
		Pool:     task.pool,
		ESMAPool: task.esmaPool,
		Bucket:   task.bucket,
		Chunked:  task.chunked,
	}
	if completed[fsutil.SafeName(task.pool)] {
		result.Status = StatusSkipped
		return result
	}

	start := time.Now()
	rows, err := s.mergePool(ctx, task)
	result.Elapsed = time.Since(start)
	if err != nil {
		result.Status = StatusFailed
		result.Error = err.Error()
		zap.L().Error("reconcile: pool failed",
			zap.String("pool", task.pool),
			zap.String("bucket", task.bucket),
			zap.Error(err),
		)
		return result
	}

	result.Status = StatusCompleted
	result.Rows = rows
	zap.L().Info("reconcile: pool complete",
		zap.String("pool", task.pool),
		zap.String("bucket", task.bucket),
		zap.Int64("rows", rows),
		zap.Bool("chunked", task.chunked),
		zap.Duration("elapsed", result.Elapsed),
	)
	return result
}

func (s *Session) mergePool(ctx context.Context, task poolTask) (int64, error) {
	switch {
	case task.bucket == BucketMatched && task.chunked:
		return s.mergeMatchedChunked(ctx, task.pool, task.esmaPool)
	case task.bucket == BucketMatched:
		f, err := s.mergeMatchedInMemory(ctx, task.pool, task.esmaPool)
		if err != nil {
			return 0, err
		}
		return s.savePool(f, task.bucket, task.pool)
	case task.chunked:
		return s.mergeSingleChunked(ctx, task.pool, s.bucketSource(task.bucket), task.bucket)
	default:
		f, err := s.mergeSingleInMemory(ctx, task.pool, s.bucketSource(task.bucket))
		if err != nil {
			return 0, err
		}
		return s.savePool(f, task.bucket, task.pool)
	}
}

func (s *Session) bucketSource(bucket string) string {
	if bucket == BucketECBOnly {
		return sourceECB
	}
	return sourceESMA
}
