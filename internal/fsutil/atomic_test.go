package fsutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAtomicWriterCommit(t *testing.T) {
	final := filepath.Join(t.TempDir(), "out", "pool.csv")

	w, err := NewAtomicWriter(final)
	require.NoError(t, err)
	_, err = w.Write([]byte("a,b\n1,2\n"))
	require.NoError(t, err)

	assert.False(t, Exists(final), "final must not appear before commit")
	assert.True(t, Exists(TempPath(final)))

	require.NoError(t, w.Commit())
	assert.True(t, Exists(final))
	assert.False(t, Exists(TempPath(final)))

	data, err := os.ReadFile(final)
	require.NoError(t, err)
	assert.Equal(t, "a,b\n1,2\n", string(data))
}

func TestAtomicWriterAbortLeavesNothing(t *testing.T) {
	final := filepath.Join(t.TempDir(), "pool.csv")

	w, err := NewAtomicWriter(final)
	require.NoError(t, err)
	_, err = w.Write([]byte("partial"))
	require.NoError(t, err)

	w.Abort()
	assert.False(t, Exists(final))
	assert.False(t, Exists(TempPath(final)))
}

func TestAtomicWriterRemovesStaleTemp(t *testing.T) {
	dir := t.TempDir()
	final := filepath.Join(dir, "pool.csv")
	require.NoError(t, os.WriteFile(TempPath(final), []byte("stale"), 0o644))

	w, err := NewAtomicWriter(final)
	require.NoError(t, err)
	require.NoError(t, w.Commit())

	data, err := os.ReadFile(final)
	require.NoError(t, err)
	assert.Empty(t, data, "stale temp content must not leak into the output")
}

func TestCompletedCSVsIgnoresTempAndDirs(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "POOL1.csv"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "POOL2.csv.tmp"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), nil, 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.csv"), 0o755))

	completed, err := CompletedCSVs(dir)
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"POOL1": true}, completed)
}

func TestCompletedCSVsMissingDir(t *testing.T) {
	completed, err := CompletedCSVs(filepath.Join(t.TempDir(), "absent"))
	require.NoError(t, err)
	assert.Empty(t, completed)
}

func TestSafeName(t *testing.T) {
	assert.Equal(t, "a_b_c", SafeName(`a/b\c`))
	assert.Equal(t, "plain", SafeName("plain"))
}
