package reconcile

import (
	"bytes"
	"compress/gzip"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gzipBytes(t *testing.T, content string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, err := gz.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

func TestReadGzipCSVWellFormed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pool.csv.gz")
	require.NoError(t, os.WriteFile(path, gzipBytes(t, "AR3,AR1\nLOAN1,2021-04-30\n"), 0o644))

	f, err := readGzipCSV(path)
	require.NoError(t, err)
	require.Equal(t, 1, f.Len())
	assert.Equal(t, "LOAN1", f.At(0, "AR3"))
}

func TestReadGzipCSVRecoversTruncatedTrailer(t *testing.T) {
	// A complete deflate payload with the 8-byte gzip trailer cut off: the
	// gzip reader reports an unexpected EOF, the raw-deflate path recovers
	// the rows.
	raw := gzipBytes(t, "AR3,AR1\nLOAN1,2021-04-30\nLOAN2,2021-05-31\n")
	truncated := raw[:len(raw)-8]

	path := filepath.Join(t.TempDir(), "pool.csv.gz")
	require.NoError(t, os.WriteFile(path, truncated, 0o644))

	f, err := readGzipCSV(path)
	require.NoError(t, err)
	assert.Equal(t, 2, f.Len())
}

func TestReadGzipCSVCorruptBothWays(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pool.csv.gz")
	require.NoError(t, os.WriteFile(path, []byte("\x1f\x8bnot really gzip at all"), 0o644))

	_, err := readGzipCSV(path)
	require.Error(t, err)
}

func TestLoadECBFileUnreadableYieldsEmpty(t *testing.T) {
	s := newTestSession(t)
	name := "BROKEN_2021-04-30.csv.gz"
	require.NoError(t, os.WriteFile(filepath.Join(s.ecbDir, name), []byte("\x1f\x8bgarbage"), 0o644))

	f := s.loadECBFile(context.Background(), name)
	assert.True(t, f.Empty(), "an unreadable file yields zero rows, not an abort")
}

func TestLoadESMAFileMissingYieldsEmpty(t *testing.T) {
	s := newTestSession(t)
	f := s.loadESMAFile(context.Background(), "absent.csv")
	assert.True(t, f.Empty())
}

func TestCorruptFileDoesNotFailPool(t *testing.T) {
	s := newTestSession(t)
	seedMatchedPool(t, s)
	// Add a second, unreadable ECB file to the same pool.
	broken := testECBPool + "_broken.csv.gz"
	require.NoError(t, os.WriteFile(filepath.Join(s.ecbDir, broken), []byte("\x1f\x8bgarbage"), 0o644))
	s.ecbFiles[testECBPool] = append(s.ecbFiles[testECBPool], broken)

	report, err := s.RunAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Completed)

	out := readOutput(t, s, BucketMatched, testECBPool)
	assert.Equal(t, 5, out.Len(), "the readable file's rows still land")
}
