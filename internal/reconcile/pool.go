package reconcile

import (
	"context"
	"path/filepath"
	"sort"

	"go.uber.org/zap"

	"github.com/sells-group/loantape/internal/frame"
	"github.com/sells-group/loantape/internal/fsutil"
)

// mergeMatchedInMemory reconciles one matched pool whose ECB side fits in
// memory. ECB rows come first, then ESMA rows; for pools in the temporal
// overlap set, ECB observations already covered by ESMA are dropped.
func (s *Session) mergeMatchedInMemory(ctx context.Context, ecbID, esmaID string) (*frame.Frame, error) {
	ecb := s.loadPoolECB(ctx, ecbID)
	esma := s.loadPoolESMA(ctx, esmaID)

	combined := ecb
	combined.Concat(esma)

	if s.overlap[ecbID] {
		keys := observationKeys(esma)
		if keys == nil {
			zap.L().Warn("reconcile: loan id column missing, skipping temporal dedup",
				zap.String("pool", ecbID),
			)
		} else {
			before := combined.Len()
			var dropped int
			combined, dropped = dropCoveredECBRows(combined, keys)
			zap.L().Info("reconcile: temporal dedup applied",
				zap.String("pool", ecbID),
				zap.Int("before", before),
				zap.Int("dropped", dropped),
			)
		}
	}

	combined.Drop(colDateYM)
	combined.SetConst(colECBPool, ecbID)
	combined.SetConst(colESMAPool, esmaID)
	return combined, ctx.Err()
}

// mergeSingleInMemory reconciles a pool present in only one source.
func (s *Session) mergeSingleInMemory(ctx context.Context, pool, source string) (*frame.Frame, error) {
	var combined *frame.Frame
	ecbID, esmaID := "", ""
	if source == sourceECB {
		combined = s.loadPoolECB(ctx, pool)
		ecbID = pool
	} else {
		combined = s.loadPoolESMA(ctx, pool)
		esmaID = pool
	}

	combined.Drop(colDateYM)
	combined.SetConst(colECBPool, ecbID)
	combined.SetConst(colESMAPool, esmaID)
	return combined, ctx.Err()
}

// outputPath returns the final CSV path for a pool in a bucket.
func (s *Session) outputPath(bucket, pool string) string {
	return filepath.Join(s.outputDir, bucket, fsutil.SafeName(pool)+".csv")
}

// savePool writes a merged frame atomically, keeping only non-empty
// columns in lexicographic order. An empty frame writes nothing.
func (s *Session) savePool(f *frame.Frame, bucket, pool string) (int64, error) {
	if f.Empty() {
		zap.L().Warn("reconcile: pool produced no rows, nothing written",
			zap.String("pool", pool),
			zap.String("bucket", bucket),
		)
		return 0, nil
	}

	cols := f.NonEmptyColumns()
	sort.Strings(cols)

	w, err := fsutil.NewAtomicWriter(s.outputPath(bucket, pool))
	if err != nil {
		return 0, err
	}
	fw := frame.NewWriter(w, cols)
	if err := fw.WriteFrame(f); err != nil {
		w.Abort()
		return 0, err
	}
	if err := fw.Flush(); err != nil {
		w.Abort()
		return 0, err
	}
	if err := w.Commit(); err != nil {
		return 0, err
	}
	return fw.Rows(), nil
}
