// Package frame implements a minimal string-typed table used by every
// pipeline stage. A Frame is a header plus rows; the empty string is the
// null value. All schema operations are explicit; nothing is inferred
// while writing.
package frame

import (
	"sort"
)

// Frame holds an ordered column list and rows aligned to it.
type Frame struct {
	Columns []string
	Rows    [][]string

	colIdx map[string]int
}

// New creates an empty frame with the given columns.
func New(columns ...string) *Frame {
	f := &Frame{Columns: append([]string(nil), columns...)}
	f.reindex()
	return f
}

func (f *Frame) reindex() {
	f.colIdx = make(map[string]int, len(f.Columns))
	for i, c := range f.Columns {
		f.colIdx[c] = i
	}
}

// Len returns the number of rows.
func (f *Frame) Len() int {
	if f == nil {
		return 0
	}
	return len(f.Rows)
}

// Empty reports whether the frame has no rows.
func (f *Frame) Empty() bool { return f.Len() == 0 }

// Col returns the index of a column, or -1 if absent.
func (f *Frame) Col(name string) int {
	if f == nil || f.colIdx == nil {
		return -1
	}
	if i, ok := f.colIdx[name]; ok {
		return i
	}
	return -1
}

// Has reports whether the column exists.
func (f *Frame) Has(name string) bool { return f.Col(name) >= 0 }

// At returns the value at row i, column name ("" if the column is absent
// or the row is short).
func (f *Frame) At(i int, name string) string {
	c := f.Col(name)
	if c < 0 || i >= len(f.Rows) || c >= len(f.Rows[i]) {
		return ""
	}
	return f.Rows[i][c]
}

// AppendRow adds a row, padding or truncating it to the column count.
func (f *Frame) AppendRow(row []string) {
	f.Rows = append(f.Rows, padRow(row, len(f.Columns)))
}

func padRow(row []string, n int) []string {
	if len(row) == n {
		return row
	}
	out := make([]string, n)
	copy(out, row)
	return out
}

// Rename renames columns in place according to mapping. Columns not in the
// mapping are untouched; mapping entries for absent columns are ignored.
func (f *Frame) Rename(mapping map[string]string) {
	changed := false
	for i, c := range f.Columns {
		if to, ok := mapping[c]; ok {
			f.Columns[i] = to
			changed = true
		}
	}
	if changed {
		f.reindex()
	}
}

// SetConst adds (or overwrites) a column with the same value in every row.
func (f *Frame) SetConst(name, value string) {
	c := f.Col(name)
	if c < 0 {
		f.Columns = append(f.Columns, name)
		c = len(f.Columns) - 1
		f.reindex()
		for i, row := range f.Rows {
			f.Rows[i] = padRow(row, len(f.Columns))
		}
	}
	for i := range f.Rows {
		f.Rows[i][c] = value
	}
}

// Drop removes the named columns if present.
func (f *Frame) Drop(names ...string) {
	drop := make(map[string]bool, len(names))
	for _, n := range names {
		drop[n] = true
	}
	keep := make([]int, 0, len(f.Columns))
	cols := make([]string, 0, len(f.Columns))
	for i, c := range f.Columns {
		if !drop[c] {
			keep = append(keep, i)
			cols = append(cols, c)
		}
	}
	if len(cols) == len(f.Columns) {
		return
	}
	for ri, row := range f.Rows {
		out := make([]string, len(keep))
		for oi, ci := range keep {
			if ci < len(row) {
				out[oi] = row[ci]
			}
		}
		f.Rows[ri] = out
	}
	f.Columns = cols
	f.reindex()
}

// Concat appends other's rows, aligning on the union of both column sets.
// New columns from other are appended after f's columns; existing rows are
// padded with nulls. Mirrors how heterogeneous source files are stacked.
func (f *Frame) Concat(other *Frame) {
	if other.Empty() && len(other.Columns) == 0 {
		return
	}
	for _, c := range other.Columns {
		if !f.Has(c) {
			f.Columns = append(f.Columns, c)
		}
	}
	f.reindex()
	for i, row := range f.Rows {
		f.Rows[i] = padRow(row, len(f.Columns))
	}
	for i := range other.Rows {
		row := make([]string, len(f.Columns))
		for ci, c := range other.Columns {
			if ci < len(other.Rows[i]) {
				row[f.colIdx[c]] = other.Rows[i][ci]
			}
		}
		f.Rows = append(f.Rows, row)
	}
}

// Filter returns a new frame keeping only rows for which pred is true.
func (f *Frame) Filter(pred func(i int) bool) *Frame {
	out := New(f.Columns...)
	for i := range f.Rows {
		if pred(i) {
			out.Rows = append(out.Rows, f.Rows[i])
		}
	}
	return out
}

// NonEmptyColumns returns the columns that hold at least one non-null
// value, in frame order.
func (f *Frame) NonEmptyColumns() []string {
	var out []string
	for ci, c := range f.Columns {
		for _, row := range f.Rows {
			if ci < len(row) && row[ci] != "" {
				out = append(out, c)
				break
			}
		}
	}
	return out
}

// Select returns a new frame with exactly the given columns in the given
// order. Missing columns are padded with nulls.
func (f *Frame) Select(columns []string) *Frame {
	out := New(columns...)
	src := make([]int, len(columns))
	for i, c := range columns {
		src[i] = f.Col(c)
	}
	out.Rows = make([][]string, len(f.Rows))
	for ri, row := range f.Rows {
		dst := make([]string, len(columns))
		for i, ci := range src {
			if ci >= 0 && ci < len(row) {
				dst[i] = row[ci]
			}
		}
		out.Rows[ri] = dst
	}
	return out
}

// UnionColumns merges column sets into a deduplicated, lexicographically
// sorted list. Sorting fixes the output schema order deterministically.
func UnionColumns(sets ...[]string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, set := range sets {
		for _, c := range set {
			if !seen[c] {
				seen[c] = true
				out = append(out, c)
			}
		}
	}
	sort.Strings(out)
	return out
}
