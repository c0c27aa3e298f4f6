package compress

import (
	"encoding/binary"
	"io"

	"github.com/ulikunitz/xz/lzma"

	cerrors "mauz/internal/errors"
)

// LZMA dictionary size bounds and default, per §4.3: "a power-of-two-ish
// enum (16 KiB ... 64 MiB, default 8 MiB)".
const (
	DictSizeMin     = 16 << 10
	DictSizeMax     = 64 << 20
	DictSizeDefault = 8 << 20
)

// Standard LZMA SDK literal-context/position defaults (lc=3, lp=0, pb=2).
const defaultLC, defaultLP, defaultPB = 3, 0, 2

func validDictSize(n int) bool {
	return n >= DictSizeMin && n <= DictSizeMax
}

// lzmaWriter writes the 5-byte properties header (properties byte +
// little-endian dictionary size) as the first bytes of the compressed
// payload, per §4.3, then hands off to the xz project's LZMA encoder
// configured with the matching dictionary capacity.
type lzmaWriter struct {
	inner io.WriteCloser
}

func newLzmaWriter(w io.Writer, dictSize int) (CompressWriter, error) {
	if dictSize == 0 {
		dictSize = DictSizeDefault
	}
	if !validDictSize(dictSize) {
		return nil, cerrors.NewFormatError("lzma dictionary size", cerrors.ErrUnsupported)
	}

	props, err := lzma.NewProperties(defaultLC, defaultLP, defaultPB)
	if err != nil {
		return nil, cerrors.NewFormatError("lzma properties", err)
	}

	var header [5]byte
	header[0] = props.Byte()
	binary.LittleEndian.PutUint32(header[1:], uint32(dictSize))
	if _, err := w.Write(header[:]); err != nil {
		return nil, cerrors.NewFormatError("lzma header", err)
	}

	cfg := lzma.WriterConfig{
		Properties:   &props,
		DictCap:      dictSize,
		SizeInHeader: false,
		EOSMarker:    true,
	}
	inner, err := cfg.NewWriter(w)
	if err != nil {
		return nil, cerrors.NewFormatError("lzma writer", err)
	}
	return &lzmaWriter{inner: inner}, nil
}

func (l *lzmaWriter) Write(p []byte) (int, error) { return l.inner.Write(p) }
func (l *lzmaWriter) Close() error                { return l.inner.Close() }

// lzmaReader reads and validates the 5-byte properties header before
// handing the remaining stream to the decoder, per §4.3 ("Reader
// validates dictionary_size ... before decoding").
type lzmaReader struct {
	inner io.Reader
}

func newLzmaReader(r io.Reader) (DecompressReader, error) {
	var header [5]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, cerrors.NewFormatError("lzma header", cerrors.ErrTruncated)
	}
	dictSize := int(binary.LittleEndian.Uint32(header[1:]))
	if !validDictSize(dictSize) {
		return nil, cerrors.NewFormatError("lzma dictionary size", cerrors.ErrUnsupported)
	}
	props, err := lzma.PropertiesFromByte(header[0])
	if err != nil {
		return nil, cerrors.NewFormatError("lzma properties", err)
	}

	cfg := lzma.ReaderConfig{
		Properties: &props,
		DictCap:    dictSize,
		EOSMarker:  true,
	}
	inner, err := cfg.NewReader(r)
	if err != nil {
		return nil, cerrors.NewFormatError("lzma reader", err)
	}
	return &lzmaReader{inner: inner}, nil
}

func (l *lzmaReader) Read(p []byte) (int, error) { return l.inner.Read(p) }
func (l *lzmaReader) Close() error {
	if c, ok := l.inner.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
