// Package compress provides the uniform write/read interface over the
// three payload compression formats the MAUS codec supports: no
// compression ("store"), raw DEFLATE, and LZMA (§4.3). DEFLATE and LZMA
// are treated as black-box compress/decompress streams — this package
// only manages which library backs each format and the small amount of
// framing (LZMA's properties header) the container spec requires.
package compress

import (
	"io"

	cerrors "mauz/internal/errors"
)

// Format identifies a payload compression format. The zero value is
// invalid; use one of the named constants.
type Format uint8

const (
	None Format = iota + 1
	Deflate
	Lzma
)

// Keyword returns the option-list keyword for this format (`NK`, `DEF`,
// or `LZMA`, §4.5).
func (f Format) Keyword() string {
	switch f {
	case None:
		return "NK"
	case Deflate:
		return "DEF"
	case Lzma:
		return "LZMA"
	default:
		return ""
	}
}

// FormatFromKeyword resolves an option-list keyword to a Format.
func FormatFromKeyword(s string) (Format, error) {
	switch s {
	case "NK":
		return None, nil
	case "DEF":
		return Deflate, nil
	case "LZMA":
		return Lzma, nil
	default:
		return 0, cerrors.NewFormatError("compression format", cerrors.ErrUnsupported)
	}
}

// CompressWriter is the uniform interface every compression backend
// implements. Close must be called to flush any buffered output;
// subsequent writes are invalid.
type CompressWriter interface {
	io.Writer
	Close() error
}

// DecompressReader is the uniform interface every decompression backend
// implements.
type DecompressReader interface {
	io.Reader
	Close() error
}

// Options configures format-specific parameters. Only the field relevant
// to the selected Format is consulted.
type Options struct {
	DeflateLevel int // passed through to klauspost/compress/flate; 0 = default
	LzmaDictSize int // LZMA dictionary size in bytes; see DictSize* constants
}

// NewWriter builds a CompressWriter for format, wrapping w.
func NewWriter(format Format, w io.Writer, opts Options) (CompressWriter, error) {
	switch format {
	case None:
		return newStoreWriter(w), nil
	case Deflate:
		return newDeflateWriter(w, opts.DeflateLevel)
	case Lzma:
		return newLzmaWriter(w, opts.LzmaDictSize)
	default:
		return nil, cerrors.NewFormatError("compression format", cerrors.ErrUnsupported)
	}
}

// NewReader builds a DecompressReader for format, reading from r.
func NewReader(format Format, r io.Reader) (DecompressReader, error) {
	switch format {
	case None:
		return newStoreReader(r), nil
	case Deflate:
		return newDeflateReader(r), nil
	case Lzma:
		return newLzmaReader(r)
	default:
		return nil, cerrors.NewFormatError("compression format", cerrors.ErrUnsupported)
	}
}
