// Package fsutil holds the write and resume discipline shared by every
// pipeline stage: final outputs appear only via temp-file-then-rename, and
// a final file's existence is the sole completion marker.
package fsutil

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// TempSuffix is appended to a final path to form its in-progress twin.
const TempSuffix = ".tmp"

// TempPath returns the temp twin for a final output path.
func TempPath(final string) string { return final + TempSuffix }

// AtomicWriter writes to <final>.tmp and renames to <final> on Commit.
// Abort (or a missing Commit) leaves no final file behind.
type AtomicWriter struct {
	final string
	tmp   string
	f     *os.File
	done  bool
}

// NewAtomicWriter creates the parent directory, removes any stale temp
// artifact from a prior interrupted attempt, and opens the temp file.
func NewAtomicWriter(final string) (*AtomicWriter, error) {
	if err := os.MkdirAll(filepath.Dir(final), 0o755); err != nil {
		return nil, eris.Wrapf(err, "fsutil: mkdir for %s", final)
	}
	tmp := TempPath(final)
	if err := os.Remove(tmp); err != nil && !os.IsNotExist(err) {
		return nil, eris.Wrapf(err, "fsutil: remove stale temp %s", tmp)
	}
	f, err := os.Create(tmp)
	if err != nil {
		return nil, eris.Wrapf(err, "fsutil: create temp %s", tmp)
	}
	return &AtomicWriter{final: final, tmp: tmp, f: f}, nil
}

func (w *AtomicWriter) Write(p []byte) (int, error) { return w.f.Write(p) }

// Commit closes the temp file and renames it over the final path.
func (w *AtomicWriter) Commit() error {
	if w.done {
		return nil
	}
	w.done = true
	if err := w.f.Close(); err != nil {
		_ = os.Remove(w.tmp)
		return eris.Wrapf(err, "fsutil: close temp %s", w.tmp)
	}
	if err := os.Rename(w.tmp, w.final); err != nil {
		_ = os.Remove(w.tmp)
		return eris.Wrapf(err, "fsutil: rename %s", w.final)
	}
	return nil
}

// Abort discards the temp file. Safe to call after Commit (no-op).
func (w *AtomicWriter) Abort() {
	if w.done {
		return
	}
	w.done = true
	_ = w.f.Close()
	_ = os.Remove(w.tmp)
}

// Exists reports whether path exists.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// RemoveIfExists deletes path, ignoring a missing file.
func RemoveIfExists(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return eris.Wrapf(err, "fsutil: remove %s", path)
	}
	return nil
}

// FileSize returns the size of path in bytes, or 0 if it cannot be statted.
func FileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}

// CompletedCSVs lists the stems (filename minus .csv) of final CSV outputs
// in dir. Temp artifacts are ignored: a pool or country is complete only
// once its final file has been renamed into place.
func CompletedCSVs(dir string) (map[string]bool, error) {
	completed := make(map[string]bool)
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return completed, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "fsutil: read dir %s", dir)
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".csv") {
			continue
		}
		completed[strings.TrimSuffix(name, ".csv")] = true
	}
	return completed, nil
}

// SafeName replaces path separators in an identifier so it can name a file.
func SafeName(id string) string {
	id = strings.ReplaceAll(id, "/", "_")
	return strings.ReplaceAll(id, "\\", "_")
}
