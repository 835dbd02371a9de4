package reconcile

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"context"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/loantape/internal/frame"
	"github.com/sells-group/loantape/internal/resilience"
)

// gzipHeaderLen is the fixed-size portion of a gzip member header. Some
// upstream exports carry a valid deflate stream behind a mangled gzip
// header or a truncated trailer; skipping the header and inflating the
// raw stream recovers those files.
const gzipHeaderLen = 10

// loadECBFile reads one gzip-compressed ECB export. Reads are retried on
// transient errors; when the gzip layer itself rejects the file, the raw
// deflate stream is tried before giving up. A file that stays unreadable
// after all attempts yields an empty frame so the rest of the pool can
// still be processed.
func (s *Session) loadECBFile(ctx context.Context, name string) *frame.Frame {
	path := filepath.Join(s.ecbDir, name)
	cfg := s.retry
	cfg.OnRetry = resilience.RetryLogger("reconcile", name)

	f, err := resilience.DoVal(ctx, cfg, func(ctx context.Context) (*frame.Frame, error) {
		return readGzipCSV(path)
	})
	if err != nil {
		zap.L().Error("reconcile: ecb file unreadable, continuing without it",
			zap.String("file", name),
			zap.Error(err),
		)
		return frame.New()
	}
	return f
}

// loadESMAFile reads one stage-1 output CSV, with the same retry policy as
// the ECB side.
func (s *Session) loadESMAFile(ctx context.Context, name string) *frame.Frame {
	path := filepath.Join(s.esmaDir, name)
	cfg := s.retry
	cfg.OnRetry = resilience.RetryLogger("reconcile", name)

	f, err := resilience.DoVal(ctx, cfg, func(ctx context.Context) (*frame.Frame, error) {
		return frame.ReadCSVFile(path)
	})
	if err != nil {
		zap.L().Error("reconcile: esma file unreadable, continuing without it",
			zap.String("file", name),
			zap.Error(err),
		)
		return frame.New()
	}
	return f
}

func readGzipCSV(path string) (*frame.Frame, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "reconcile: read %s", path)
	}

	f, gzErr := parseGzipCSV(raw)
	if gzErr == nil {
		return f, nil
	}
	if !resilience.IsGzipFormat(gzErr) {
		return nil, gzErr
	}

	f, flateErr := parseRawDeflateCSV(raw)
	if flateErr != nil {
		return nil, eris.Wrapf(gzErr, "reconcile: gzip and raw-deflate both failed for %s", path)
	}
	zap.L().Warn("reconcile: recovered file via raw deflate",
		zap.String("file", filepath.Base(path)),
	)
	return f, nil
}

func parseGzipCSV(raw []byte) (*frame.Frame, error) {
	gz, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, eris.Wrap(err, "reconcile: open gzip")
	}
	defer gz.Close() //nolint:errcheck
	return frame.ReadCSV(gz)
}

// parseRawDeflateCSV inflates the deflate stream behind the gzip header,
// ignoring the member trailer entirely.
func parseRawDeflateCSV(raw []byte) (*frame.Frame, error) {
	if len(raw) <= gzipHeaderLen {
		return nil, eris.New("reconcile: file too short for a deflate stream")
	}
	fr := flate.NewReader(bytes.NewReader(raw[gzipHeaderLen:]))
	defer fr.Close() //nolint:errcheck
	return frame.ReadCSV(fr)
}
