package reconcile

import (
	"compress/flate"
	"compress/gzip"
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/loantape/internal/frame"
)

// loadPoolECB reads and prepares the whole ECB side of a pool into memory.
func (s *Session) loadPoolECB(ctx context.Context, pool string) *frame.Frame {
	combined := frame.New()
	for _, name := range s.ecbFiles[pool] {
		combined.Concat(s.prepareECB(s.loadECBFile(ctx, name), pool))
	}
	return combined
}

// loadPoolESMA reads and prepares the whole ESMA side of a pool into memory.
func (s *Session) loadPoolESMA(ctx context.Context, pool string) *frame.Frame {
	combined := frame.New()
	for _, name := range s.esmaFiles[pool] {
		combined.Concat(s.prepareESMA(s.loadESMAFile(ctx, name), pool))
	}
	return combined
}

// streamECB feeds every prepared chunk of the pool's ECB side to fn, in
// file order, without holding more than one chunk in memory.
func (s *Session) streamECB(ctx context.Context, pool string, fn func(*frame.Frame) error) error {
	for _, name := range s.ecbFiles[pool] {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.streamECBFile(ctx, pool, name, fn); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) streamECBFile(ctx context.Context, pool, name string, fn func(*frame.Frame) error) error {
	path := filepath.Join(s.ecbDir, name)
	reader, closeAll, err := openECBStream(path)
	if err != nil {
		return err
	}
	defer closeAll()

	return frame.StreamChunks(reader, s.cfg.ChunkRows, func(chunk *frame.Frame) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		return fn(s.prepareECB(chunk, pool))
	})
}

// openECBStream opens a compressed export for streaming. A file whose gzip
// header is rejected is reopened as a raw deflate stream behind the fixed
// header, the same recovery applied on the in-memory path.
func openECBStream(path string) (io.Reader, func(), error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "reconcile: open %s", path)
	}

	gz, gzErr := gzip.NewReader(file)
	if gzErr == nil {
		return gz, func() {
			_ = gz.Close()
			_ = file.Close()
		}, nil
	}

	if _, err := file.Seek(gzipHeaderLen, io.SeekStart); err != nil {
		_ = file.Close()
		return nil, nil, eris.Wrapf(gzErr, "reconcile: open gzip %s", path)
	}
	zap.L().Warn("reconcile: streaming file via raw deflate",
		zap.String("file", filepath.Base(path)),
	)
	fr := flate.NewReader(file)
	return fr, func() {
		_ = fr.Close()
		_ = file.Close()
	}, nil
}

// streamESMA feeds every prepared chunk of the pool's ESMA side to fn.
func (s *Session) streamESMA(ctx context.Context, pool string, fn func(*frame.Frame) error) error {
	for _, name := range s.esmaFiles[pool] {
		if err := ctx.Err(); err != nil {
			return err
		}
		cr, err := frame.NewChunkReader(filepath.Join(s.esmaDir, name), s.cfg.ChunkRows)
		if err != nil {
			return err
		}
		for {
			chunk, err := cr.Next()
			if err == io.EOF {
				break
			}
			if err != nil {
				_ = cr.Close()
				return err
			}
			if err := ctx.Err(); err != nil {
				_ = cr.Close()
				return err
			}
			if err := fn(s.prepareESMA(chunk, pool)); err != nil {
				_ = cr.Close()
				return err
			}
		}
		if err := cr.Close(); err != nil {
			return eris.Wrapf(err, "reconcile: close %s", name)
		}
	}
	return nil
}
