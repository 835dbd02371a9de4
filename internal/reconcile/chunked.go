package reconcile

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/loantape/internal/frame"
	"github.com/sells-group/loantape/internal/fsutil"
)

// scanMatchedColumns makes the mandatory schema pass over both sides of a
// matched pool: the header cannot be known up front because column sets
// drift file-to-file, and the header must be written before the first row.
func (s *Session) scanMatchedColumns(ctx context.Context, ecbID, esmaID string) ([]string, error) {
	seen := make(map[string]bool)
	collect := func(chunk *frame.Frame) error {
		for _, c := range chunk.NonEmptyColumns() {
			seen[c] = true
		}
		return nil
	}
	if err := s.streamECB(ctx, ecbID, collect); err != nil {
		return nil, err
	}
	if err := s.streamESMA(ctx, esmaID, collect); err != nil {
		return nil, err
	}
	return finishSchema(seen, colECBPool, colESMAPool), nil
}

// scanSingleColumns is the schema pass for a single-source pool.
func (s *Session) scanSingleColumns(ctx context.Context, pool, source string) ([]string, error) {
	seen := make(map[string]bool)
	collect := func(chunk *frame.Frame) error {
		for _, c := range chunk.NonEmptyColumns() {
			seen[c] = true
		}
		return nil
	}
	var err error
	if source == sourceECB {
		err = s.streamECB(ctx, pool, collect)
	} else {
		err = s.streamESMA(ctx, pool, collect)
	}
	if err != nil {
		return nil, err
	}
	poolCol := colECBPool
	if source == sourceESMA {
		poolCol = colESMAPool
	}
	return finishSchema(seen, poolCol), nil
}

// finishSchema turns the observed column set into the output header: the
// internal dedup key is removed, the caller's provenance columns are
// guaranteed, and the order is fixed lexicographically. A single-source
// pool forces only its own side's pool-id column, so the header matches
// what the in-memory branch keeps after dropping all-null columns.
func finishSchema(seen map[string]bool, provenance ...string) []string {
	delete(seen, colDateYM)
	if len(seen) == 0 {
		return nil
	}
	for _, c := range provenance {
		seen[c] = true
	}
	cols := make([]string, 0, len(seen))
	for c := range seen {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	return cols
}

// tempOutput is a pool output being streamed to its temp twin. Unlike the
// one-shot atomic writer, it stays open across chunks and can be closed
// without renaming so a dedup rewrite may run first.
type tempOutput struct {
	final string
	tmp   string
	file  *os.File
	fw    *frame.Writer
}

func (s *Session) newTempOutput(bucket, pool string, cols []string) (*tempOutput, error) {
	final := s.outputPath(bucket, pool)
	if err := os.MkdirAll(filepath.Dir(final), 0o755); err != nil {
		return nil, eris.Wrapf(err, "reconcile: mkdir for %s", final)
	}
	tmp := fsutil.TempPath(final)
	if err := fsutil.RemoveIfExists(tmp); err != nil {
		return nil, err
	}
	file, err := os.Create(tmp)
	if err != nil {
		return nil, eris.Wrapf(err, "reconcile: create temp %s", tmp)
	}
	return &tempOutput{final: final, tmp: tmp, file: file, fw: frame.NewWriter(file, cols)}, nil
}

func (t *tempOutput) write(chunk *frame.Frame) error { return t.fw.WriteFrame(chunk) }

// close flushes and closes the temp file, leaving it in place.
func (t *tempOutput) close() error {
	if err := t.fw.Flush(); err != nil {
		_ = t.file.Close()
		return err
	}
	if err := t.file.Close(); err != nil {
		return eris.Wrapf(err, "reconcile: close temp %s", t.tmp)
	}
	return nil
}

// publish renames the temp twin over the final path.
func (t *tempOutput) publish() error {
	if err := os.Rename(t.tmp, t.final); err != nil {
		_ = os.Remove(t.tmp)
		return eris.Wrapf(err, "reconcile: rename %s", t.final)
	}
	return nil
}

// abort discards the temp twin.
func (t *tempOutput) abort() {
	_ = t.file.Close()
	_ = os.Remove(t.tmp)
}

// mergeMatchedChunked reconciles a matched pool too large for memory. The
// smaller side is held in memory when it fits under the memory-safe
// threshold; when both sides exceed it, both are streamed and the temporal
// dedup runs as a rewrite over the finished temp file.
func (s *Session) mergeMatchedChunked(ctx context.Context, ecbID, esmaID string) (int64, error) {
	cols, err := s.scanMatchedColumns(ctx, ecbID, esmaID)
	if err != nil {
		return 0, err
	}
	if cols == nil {
		zap.L().Warn("reconcile: pool produced no rows, nothing written",
			zap.String("pool", ecbID),
			zap.String("bucket", BucketMatched),
		)
		return 0, nil
	}

	out, err := s.newTempOutput(BucketMatched, ecbID, cols)
	if err != nil {
		return 0, err
	}

	ecbSize, esmaSize := s.ECBSize(ecbID), s.ESMASize(esmaID)
	needsDedup := s.overlap[ecbID]

	merge := s.streamECBHoldESMA
	strategy := "stream_ecb_hold_esma"
	switch {
	case ecbSize > s.cfg.MemorySafeBytes && esmaSize > s.cfg.MemorySafeBytes:
		merge, strategy = s.streamBothSides, "stream_both_sides"
	case esmaSize <= ecbSize:
	default:
		merge, strategy = s.streamESMAHoldECB, "stream_esma_hold_ecb"
	}
	zap.L().Info("reconcile: chunked merge",
		zap.String("pool", ecbID),
		zap.Int64("ecb_bytes", ecbSize),
		zap.Int64("esma_bytes", esmaSize),
		zap.String("strategy", strategy),
	)

	rows, err := merge(ctx, ecbID, esmaID, out, needsDedup)
	if err != nil {
		out.abort()
		return 0, err
	}
	if err := out.publish(); err != nil {
		return 0, err
	}
	return rows, nil
}

// streamBothSides writes every chunk of both sides, then deduplicates the
// finished temp file in place when the pool is in the overlap set.
func (s *Session) streamBothSides(ctx context.Context, ecbID, esmaID string, out *tempOutput, needsDedup bool) (int64, error) {
	write := func(chunk *frame.Frame) error {
		chunk.SetConst(colECBPool, ecbID)
		chunk.SetConst(colESMAPool, esmaID)
		return out.write(chunk)
	}
	if err := s.streamECB(ctx, ecbID, write); err != nil {
		return 0, err
	}
	if err := s.streamESMA(ctx, esmaID, write); err != nil {
		return 0, err
	}
	rows := out.fw.Rows()
	if err := out.close(); err != nil {
		return 0, err
	}

	if !needsDedup {
		return rows, nil
	}
	keys, err := s.collectESMAKeys(out.tmp)
	if err != nil || keys == nil {
		s.warnDedupSkipped(ecbID, err)
		return rows, nil
	}
	if len(keys) == 0 {
		return rows, nil
	}
	return s.dedupTempFile(out.tmp, ecbID, keys, rows)
}

// streamECBHoldESMA holds the ESMA side in memory and streams the ECB
// side, filtering covered observations before they are ever written.
func (s *Session) streamECBHoldESMA(ctx context.Context, ecbID, esmaID string, out *tempOutput, needsDedup bool) (int64, error) {
	esma := s.loadPoolESMA(ctx, esmaID)

	var keys map[string]bool
	if needsDedup {
		keys = observationKeys(esma)
		if keys == nil {
			s.warnDedupSkipped(ecbID, nil)
		}
	}

	err := s.streamECB(ctx, ecbID, func(chunk *frame.Frame) error {
		if keys != nil {
			chunk, _ = dropCoveredECBRows(chunk, keys)
		}
		chunk.SetConst(colECBPool, ecbID)
		chunk.SetConst(colESMAPool, esmaID)
		return out.write(chunk)
	})
	if err != nil {
		return 0, err
	}

	esma.SetConst(colECBPool, ecbID)
	esma.SetConst(colESMAPool, esmaID)
	if err := out.write(esma); err != nil {
		return 0, err
	}
	rows := out.fw.Rows()
	return rows, out.close()
}

// streamESMAHoldECB holds the ECB side in memory. ECB rows are written
// before the ESMA stream reveals which of them are covered, so covered
// observations are removed afterwards by rewriting the temp file.
func (s *Session) streamESMAHoldECB(ctx context.Context, ecbID, esmaID string, out *tempOutput, needsDedup bool) (int64, error) {
	ecb := s.loadPoolECB(ctx, ecbID)

	var ecbKeys map[string]bool
	if needsDedup {
		ecbKeys = observationKeys(ecb)
		if ecbKeys == nil {
			s.warnDedupSkipped(ecbID, nil)
		}
	}

	ecb.SetConst(colECBPool, ecbID)
	ecb.SetConst(colESMAPool, esmaID)
	if err := out.write(ecb); err != nil {
		return 0, err
	}

	covered := make(map[string]bool)
	err := s.streamESMA(ctx, esmaID, func(chunk *frame.Frame) error {
		if ecbKeys != nil {
			for k := range observationKeys(chunk) {
				if ecbKeys[k] {
					covered[k] = true
				}
			}
		}
		chunk.SetConst(colECBPool, ecbID)
		chunk.SetConst(colESMAPool, esmaID)
		return out.write(chunk)
	})
	if err != nil {
		return 0, err
	}
	rows := out.fw.Rows()
	if err := out.close(); err != nil {
		return 0, err
	}

	if len(covered) == 0 {
		return rows, nil
	}
	return s.dedupTempFile(out.tmp, ecbID, covered, rows)
}

// mergeSingleChunked reconciles a large single-source pool.
func (s *Session) mergeSingleChunked(ctx context.Context, pool, source, bucket string) (int64, error) {
	cols, err := s.scanSingleColumns(ctx, pool, source)
	if err != nil {
		return 0, err
	}
	if cols == nil {
		zap.L().Warn("reconcile: pool produced no rows, nothing written",
			zap.String("pool", pool),
			zap.String("bucket", bucket),
		)
		return 0, nil
	}

	out, err := s.newTempOutput(bucket, pool, cols)
	if err != nil {
		return 0, err
	}

	ecbID, esmaID := "", ""
	if source == sourceECB {
		ecbID = pool
	} else {
		esmaID = pool
	}
	write := func(chunk *frame.Frame) error {
		chunk.SetConst(colECBPool, ecbID)
		chunk.SetConst(colESMAPool, esmaID)
		return out.write(chunk)
	}
	if source == sourceECB {
		err = s.streamECB(ctx, pool, write)
	} else {
		err = s.streamESMA(ctx, pool, write)
	}
	if err != nil {
		out.abort()
		return 0, err
	}
	rows := out.fw.Rows()
	if err := out.close(); err != nil {
		out.abort()
		return 0, err
	}
	if err := out.publish(); err != nil {
		return 0, err
	}
	return rows, nil
}

// collectESMAKeys re-reads a finished temp file and collects the
// observation keys of its ESMA rows. Returns nil when the file lacks the
// columns dedup depends on.
func (s *Session) collectESMAKeys(tmpPath string) (map[string]bool, error) {
	cr, err := frame.NewChunkReader(tmpPath, s.cfg.ChunkRows)
	if err != nil {
		return nil, err
	}
	defer cr.Close() //nolint:errcheck

	header := frame.New(cr.Columns()...)
	if !header.Has(colLoanID) || !header.Has(colDate) || !header.Has(colSource) {
		return nil, nil
	}

	keys := make(map[string]bool)
	for {
		chunk, err := cr.Next()
		if err == io.EOF {
			return keys, nil
		}
		if err != nil {
			return nil, err
		}
		loanCol, dateCol, srcCol := chunk.Col(colLoanID), chunk.Col(colDate), chunk.Col(colSource)
		for _, row := range chunk.Rows {
			if row[srcCol] != sourceESMA || row[loanCol] == "" {
				continue
			}
			keys[obsKey(row[loanCol], yearMonth(row[dateCol]))] = true
		}
	}
}

// dedupTempFile rewrites a finished temp file, dropping ECB rows whose
// observation key is in keys. A failed rewrite keeps the undeduplicated
// file rather than losing the pool: duplicate rows are recoverable
// downstream, missing rows are not.
func (s *Session) dedupTempFile(tmpPath, pool string, keys map[string]bool, rows int64) (int64, error) {
	kept, err := s.rewriteWithoutCovered(tmpPath, keys)
	if err != nil {
		s.warnDedupSkipped(pool, err)
		return rows, nil
	}
	zap.L().Info("reconcile: temporal dedup applied",
		zap.String("pool", pool),
		zap.Int64("before", rows),
		zap.Int64("dropped", rows-kept),
	)
	return kept, nil
}

func (s *Session) rewriteWithoutCovered(tmpPath string, keys map[string]bool) (int64, error) {
	cr, err := frame.NewChunkReader(tmpPath, s.cfg.ChunkRows)
	if err != nil {
		return 0, err
	}
	defer cr.Close() //nolint:errcheck

	header := frame.New(cr.Columns()...)
	if !header.Has(colLoanID) || !header.Has(colDate) || !header.Has(colSource) {
		return 0, eris.New("reconcile: dedup columns missing from written output")
	}

	dedupPath := tmpPath + ".dedup"
	if err := fsutil.RemoveIfExists(dedupPath); err != nil {
		return 0, err
	}
	file, err := os.Create(dedupPath)
	if err != nil {
		return 0, eris.Wrapf(err, "reconcile: create %s", dedupPath)
	}
	fw := frame.NewWriter(file, cr.Columns())

	for {
		chunk, err := cr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			_ = file.Close()
			_ = os.Remove(dedupPath)
			return 0, err
		}
		loanCol, dateCol, srcCol := chunk.Col(colLoanID), chunk.Col(colDate), chunk.Col(colSource)
		kept := chunk.Filter(func(i int) bool {
			row := chunk.Rows[i]
			if row[srcCol] != sourceECB || row[loanCol] == "" {
				return true
			}
			return !keys[obsKey(row[loanCol], yearMonth(row[dateCol]))]
		})
		if err := fw.WriteFrame(kept); err != nil {
			_ = file.Close()
			_ = os.Remove(dedupPath)
			return 0, err
		}
	}
	if err := fw.Flush(); err != nil {
		_ = file.Close()
		_ = os.Remove(dedupPath)
		return 0, err
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(dedupPath)
		return 0, eris.Wrapf(err, "reconcile: close %s", dedupPath)
	}
	if err := os.Rename(dedupPath, tmpPath); err != nil {
		_ = os.Remove(dedupPath)
		return 0, eris.Wrapf(err, "reconcile: replace temp with deduped output")
	}
	return fw.Rows(), nil
}

func (s *Session) warnDedupSkipped(pool string, err error) {
	zap.L().Warn("reconcile: temporal dedup skipped, output may contain covered rows",
		zap.String("pool", pool),
		zap.Error(err),
	)
}
