package frame

import (
	"encoding/csv"
	"io"
	"os"

	"github.com/rotisserie/eris"
)

func newCSVReader(r io.Reader) *csv.Reader {
	reader := csv.NewReader(r)
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1 // schemas drift file-to-file
	return reader
}

// ReadCSV parses an entire CSV stream into a frame. The first record is the
// header; ragged rows are padded or truncated to the header width.
func ReadCSV(r io.Reader) (*Frame, error) {
	reader := newCSVReader(r)

	header, err := reader.Read()
	if err == io.EOF {
		return New(), nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "frame: read csv header")
	}

	f := New(header...)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "frame: read csv row")
		}
		f.AppendRow(record)
	}
	return f, nil
}

// ReadCSVFile reads a whole CSV file into a frame.
func ReadCSVFile(path string) (*Frame, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "frame: open %s", path)
	}
	defer file.Close() //nolint:errcheck
	return ReadCSV(file)
}

// ReadHeader returns just the header row of a CSV file. Used for cheap
// schema probes that must not pull the full file into memory.
func ReadHeader(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "frame: open %s", path)
	}
	defer file.Close() //nolint:errcheck

	header, err := newCSVReader(file).Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "frame: read header %s", path)
	}
	return header, nil
}

// ReadSample reads the header and up to maxRows rows.
func ReadSample(path string, maxRows int) (*Frame, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "frame: open %s", path)
	}
	defer file.Close() //nolint:errcheck

	reader := newCSVReader(file)
	header, err := reader.Read()
	if err == io.EOF {
		return New(), nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "frame: read header %s", path)
	}

	f := New(header...)
	for len(f.Rows) < maxRows {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrapf(err, "frame: read sample %s", path)
		}
		f.AppendRow(record)
	}
	return f, nil
}

// StreamChunks reads a CSV stream in fixed-size row chunks and invokes fn
// for each chunk. Used where the source is not a plain file on disk, for
// example behind a decompressor.
func StreamChunks(r io.Reader, chunkRows int, fn func(*Frame) error) error {
	reader := newCSVReader(r)
	header, err := reader.Read()
	if err == io.EOF {
		return nil
	}
	if err != nil {
		return eris.Wrap(err, "frame: read stream header")
	}

	for {
		f := New(header...)
		for len(f.Rows) < chunkRows {
			record, err := reader.Read()
			if err == io.EOF {
				if !f.Empty() {
					return fn(f)
				}
				return nil
			}
			if err != nil {
				return eris.Wrap(err, "frame: read stream row")
			}
			f.AppendRow(record)
		}
		if err := fn(f); err != nil {
			return err
		}
	}
}

// ChunkReader streams a CSV file in fixed-size row chunks so a file of any
// size can be re-streamed under a bounded memory footprint.
type ChunkReader struct {
	file      *os.File
	reader    *csv.Reader
	columns   []string
	chunkRows int
	done      bool
}

// NewChunkReader opens path and reads its header. chunkRows must be > 0.
func NewChunkReader(path string, chunkRows int) (*ChunkReader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "frame: open %s", path)
	}
	reader := newCSVReader(file)
	header, err := reader.Read()
	if err == io.EOF {
		return &ChunkReader{file: file, reader: reader, chunkRows: chunkRows, done: true}, nil
	}
	if err != nil {
		_ = file.Close()
		return nil, eris.Wrapf(err, "frame: read header %s", path)
	}
	return &ChunkReader{file: file, reader: reader, columns: header, chunkRows: chunkRows}, nil
}

// Columns returns the header of the underlying file.
func (c *ChunkReader) Columns() []string { return c.columns }

// Next returns the next chunk, or io.EOF when the file is exhausted.
func (c *ChunkReader) Next() (*Frame, error) {
	if c.done {
		return nil, io.EOF
	}
	f := New(c.columns...)
	for len(f.Rows) < c.chunkRows {
		record, err := c.reader.Read()
		if err == io.EOF {
			c.done = true
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "frame: read chunk row")
		}
		f.AppendRow(record)
	}
	if f.Empty() {
		return nil, io.EOF
	}
	return f, nil
}

// Close releases the underlying file.
func (c *ChunkReader) Close() error { return c.file.Close() }

// Writer appends frames to a CSV stream under a fixed column schema. The
// header is written exactly once, before the first row. Every frame is
// aligned (padded and reordered) to the schema before writing.
type Writer struct {
	w           *csv.Writer
	columns     []string
	wroteHeader bool
	rows        int64
}

// NewWriter creates a writer bound to the given schema.
func NewWriter(w io.Writer, columns []string) *Writer {
	return &Writer{w: csv.NewWriter(w), columns: columns}
}

// WriteFrame aligns f to the writer's schema and appends its rows.
func (w *Writer) WriteFrame(f *Frame) error {
	if !w.wroteHeader {
		if err := w.w.Write(w.columns); err != nil {
			return eris.Wrap(err, "frame: write header")
		}
		w.wroteHeader = true
	}
	aligned := f.Select(w.columns)
	for _, row := range aligned.Rows {
		if err := w.w.Write(row); err != nil {
			return eris.Wrap(err, "frame: write row")
		}
	}
	w.rows += int64(f.Len())
	return nil
}

// Rows returns the number of data rows written so far.
func (w *Writer) Rows() int64 { return w.rows }

// Flush flushes buffered rows and returns any accumulated write error.
func (w *Writer) Flush() error {
	w.w.Flush()
	return eris.Wrap(w.w.Error(), "frame: flush")
}
