// Package sorter implements stage 4: rewriting each country file with its
// rows in ascending lexicographic order of the composite observation key.
// The sort runs through an embedded SQLite scratch database so files far
// larger than memory sort under a bounded footprint.
package sorter

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/sells-group/loantape/internal/frame"
	"github.com/sells-group/loantape/internal/fsutil"
)

// sortKeyColumns is the composite observation key, in priority order. All
// three fields compare as opaque text; the date column is monotonic under
// string order because the upstream format is fixed-width YYYY-MM-DD.
var sortKeyColumns = []string{"RREL3", "RREC3", "RREL6"}

// Sorter sorts country files one at a time against a scratch directory.
type Sorter struct {
	ScratchDir  string
	InsertBatch int
	Resources   Resources
}

// SortFile sorts one CSV into outPath via a scratch database. The scratch
// database is removed whatever the outcome; the output appears only
// through the temp-then-rename step. Returns the rows written and the key
// columns actually present in the file.
func (s *Sorter) SortFile(ctx context.Context, inPath, outPath string) (int64, []string, error) {
	header, err := frame.ReadHeader(inPath)
	if err != nil {
		return 0, nil, err
	}
	if len(header) == 0 {
		return 0, nil, eris.Errorf("sorter: %s has no header", inPath)
	}

	dbPath := filepath.Join(s.ScratchDir, fsutil.SafeName(filepath.Base(inPath))+".db")
	db, err := s.openScratch(dbPath)
	if err != nil {
		return 0, nil, err
	}
	defer func() {
		_ = db.Close()
		removeScratch(dbPath)
	}()

	if err := s.createTable(ctx, db, len(header)); err != nil {
		return 0, nil, err
	}
	if err := s.loadRows(ctx, db, inPath, len(header)); err != nil {
		return 0, nil, err
	}

	keys := presentKeys(header)
	if len(keys) == 0 {
		zap.L().Warn("sorter: no key columns present, preserving input order",
			zap.String("file", filepath.Base(inPath)),
		)
	}

	rows, err := s.writeSorted(ctx, db, header, keys, outPath)
	if err != nil {
		return 0, nil, err
	}
	return rows, keys, nil
}

// openScratch opens a fresh scratch database tuned for one bulk load and
// one ordered scan. Durability is irrelevant here: the scratch file is
// deleted after use and rebuilt from the source on any retry.
func (s *Sorter) openScratch(dbPath string) (*sql.DB, error) {
	removeScratch(dbPath)
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, eris.Wrap(err, "sorter: open scratch db")
	}
	cacheKB := s.Resources.MemoryBytes / 1024
	for _, pragma := range []string{
		"PRAGMA journal_mode=OFF",
		"PRAGMA synchronous=OFF",
		"PRAGMA temp_store=FILE",
		fmt.Sprintf("PRAGMA cache_size=-%d", cacheKB),
		fmt.Sprintf("PRAGMA threads=%d", s.Resources.Threads),
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, eris.Wrapf(err, "sorter: exec %s", pragma)
		}
	}
	return db, nil
}

// createTable builds the scratch table with positional all-TEXT columns.
// Positional names sidestep quoting of arbitrary source column names and
// keep every value opaque to the engine.
func (s *Sorter) createTable(ctx context.Context, db *sql.DB, width int) error {
	cols := make([]string, width)
	for i := range cols {
		cols[i] = fmt.Sprintf("c%d TEXT", i)
	}
	ddl := "CREATE TABLE loans (" + strings.Join(cols, ", ") + ")"
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return eris.Wrap(err, "sorter: create scratch table")
	}
	return nil
}

// loadRows streams the source file into the scratch table in batched
// multi-row inserts inside one transaction.
func (s *Sorter) loadRows(ctx context.Context, db *sql.DB, inPath string, width int) error {
	cr, err := frame.NewChunkReader(inPath, s.InsertBatch)
	if err != nil {
		return err
	}
	defer cr.Close() //nolint:errcheck

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sorter: begin load tx")
	}
	defer tx.Rollback() //nolint:errcheck

	for {
		chunk, err := cr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		if err := insertChunk(ctx, tx, chunk, width); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return eris.Wrap(err, "sorter: commit load tx")
	}
	return nil
}

// sqliteMaxBindVars is SQLite's default bind-parameter ceiling
// (SQLITE_MAX_VARIABLE_NUMBER). A multi-row insert must keep
// rows x columns under it, so wide files bind fewer rows per statement.
const sqliteMaxBindVars = 32766

func insertChunk(ctx context.Context, tx *sql.Tx, chunk *frame.Frame, width int) error {
	maxRows := sqliteMaxBindVars / width
	if maxRows < 1 {
		maxRows = 1
	}
	for start := 0; start < chunk.Len(); start += maxRows {
		end := start + maxRows
		if end > chunk.Len() {
			end = chunk.Len()
		}
		if err := insertRows(ctx, tx, chunk.Rows[start:end], width); err != nil {
			return err
		}
	}
	return nil
}

func insertRows(ctx context.Context, tx *sql.Tx, rows [][]string, width int) error {
	placeholder := "(" + strings.TrimSuffix(strings.Repeat("?,", width), ",") + ")"
	values := make([]string, 0, len(rows))
	args := make([]any, 0, len(rows)*width)
	for _, row := range rows {
		values = append(values, placeholder)
		for i := 0; i < width; i++ {
			if i < len(row) {
				args = append(args, row[i])
			} else {
				args = append(args, "")
			}
		}
	}
	stmt := "INSERT INTO loans VALUES " + strings.Join(values, ",")
	if _, err := tx.ExecContext(ctx, stmt, args...); err != nil {
		return eris.Wrap(err, "sorter: insert rows")
	}
	return nil
}

// presentKeys returns the key columns actually present in the header, in
// priority order. Rows sort by whatever subset exists.
func presentKeys(header []string) []string {
	has := make(map[string]int, len(header))
	for i, c := range header {
		has[c] = i + 1
	}
	var keys []string
	for _, k := range sortKeyColumns {
		if has[k] > 0 {
			keys = append(keys, k)
		}
	}
	return keys
}

// writeSorted scans the scratch table in key order and streams the rows
// to the output through the atomic-rename step.
func (s *Sorter) writeSorted(ctx context.Context, db *sql.DB, header, keys []string, outPath string) (int64, error) {
	colIdx := make(map[string]int, len(header))
	selectCols := make([]string, len(header))
	for i, c := range header {
		colIdx[c] = i
		selectCols[i] = fmt.Sprintf("c%d", i)
	}
	query := "SELECT " + strings.Join(selectCols, ", ") + " FROM loans"
	if len(keys) > 0 {
		order := make([]string, len(keys))
		for i, k := range keys {
			order[i] = fmt.Sprintf("c%d", colIdx[k])
		}
		query += " ORDER BY " + strings.Join(order, ", ")
	}

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return 0, eris.Wrap(err, "sorter: query sorted rows")
	}
	defer rows.Close() //nolint:errcheck

	w, err := fsutil.NewAtomicWriter(outPath)
	if err != nil {
		return 0, err
	}
	fw := frame.NewWriter(w, header)

	record := make([]sql.NullString, len(header))
	scan := make([]any, len(header))
	for i := range record {
		scan[i] = &record[i]
	}
	buf := frame.New(header...)
	for rows.Next() {
		if err := rows.Scan(scan...); err != nil {
			w.Abort()
			return 0, eris.Wrap(err, "sorter: scan row")
		}
		out := make([]string, len(header))
		for i, v := range record {
			if v.Valid {
				out[i] = v.String
			}
		}
		buf.Rows = append(buf.Rows, out)
		if buf.Len() >= s.InsertBatch {
			if err := fw.WriteFrame(buf); err != nil {
				w.Abort()
				return 0, err
			}
			buf = frame.New(header...)
		}
	}
	if err := rows.Err(); err != nil {
		w.Abort()
		return 0, eris.Wrap(err, "sorter: iterate sorted rows")
	}
	// Always flush the tail frame; on an empty input this still emits the
	// header so the output is a valid CSV.
	if err := fw.WriteFrame(buf); err != nil {
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

func removeScratch(dbPath string) {
	for _, p := range []string{dbPath, dbPath + "-wal", dbPath + "-shm"} {
		_ = fsutil.RemoveIfExists(p)
	}
}
