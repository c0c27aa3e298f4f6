package compress

import (
	"io"

	"github.com/klauspost/compress/flate"

	cerrors "mauz/internal/errors"
)

// deflateWriter wraps klauspost/compress/flate, which implements raw
// DEFLATE (no zlib wrapper) — exactly what §4.3 specifies.
type deflateWriter struct {
	w *flate.Writer
}

func newDeflateWriter(w io.Writer, level int) (CompressWriter, error) {
	if level == 0 {
		level = flate.DefaultCompression
	}
	fw, err := flate.NewWriter(w, level)
	if err != nil {
		return nil, cerrors.NewFormatError("deflate writer", err)
	}
	return &deflateWriter{w: fw}, nil
}

func (d *deflateWriter) Write(p []byte) (int, error) { return d.w.Write(p) }
func (d *deflateWriter) Close() error                { return d.w.Close() }

type deflateReader struct {
	r io.ReadCloser
}

func newDeflateReader(r io.Reader) DecompressReader {
	return &deflateReader{r: flate.NewReader(r)}
}

func (d *deflateReader) Read(p []byte) (int, error) { return d.r.Read(p) }
func (d *deflateReader) Close() error                { return d.r.Close() }
