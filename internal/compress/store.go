package compress

import "io"

// storeWriter implements CompressWriter as the identity transform: for
// the None format, compressed length equals uncompressed length (§4.3).
type storeWriter struct {
	w io.Writer
}

func newStoreWriter(w io.Writer) *storeWriter { return &storeWriter{w: w} }

func (s *storeWriter) Write(p []byte) (int, error) { return s.w.Write(p) }
func (s *storeWriter) Close() error                { return nil }

type storeReader struct {
	r io.Reader
}

func newStoreReader(r io.Reader) *storeReader { return &storeReader{r: r} }

func (s *storeReader) Read(p []byte) (int, error) { return s.r.Read(p) }
func (s *storeReader) Close() error               { return nil }
