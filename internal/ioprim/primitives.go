// Package ioprim implements the byte I/O primitives shared by the MAUS
// and MAUZ codecs: little-endian fixed-width integers and length-prefixed
// strings. The options-list framing itself is read and written by
// internal/maus on top of these primitives.
//
// All multi-byte integers are little-endian two's complement. Strings are
// framed as a length prefix (either 1 or 2 bytes) followed by that many
// UTF-8 bytes; a declared length of zero means the maximum representable
// length (256 for a u8 prefix, 65536 for a u16 prefix) rather than the
// empty string, matching the wire format's conventions.
package ioprim

import (
	"encoding/binary"
	"fmt"
	"io"
	"unicode/utf8"

	cerrors "mauz/internal/errors"
)

// ReadFull reads exactly len(buf) bytes from r, translating a short read
// into ErrTruncated so callers get a uniform classification.
func ReadFull(r io.Reader, buf []byte) error {
	if _, err := io.ReadFull(r, buf); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return cerrors.NewFormatError("read", fmt.Errorf("%w: %v", cerrors.ErrTruncated, err))
		}
		return cerrors.NewFormatError("read", err)
	}
	return nil
}

// ReadUint8 reads a single byte.
func ReadUint8(r io.Reader) (uint8, error) {
	var b [1]byte
	if err := ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

// ReadUint16 reads a little-endian uint16.
func ReadUint16(r io.Reader) (uint16, error) {
	var b [2]byte
	if err := ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b[:]), nil
}

// ReadUint32 reads a little-endian uint32.
func ReadUint32(r io.Reader) (uint32, error) {
	var b [4]byte
	if err := ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

// ReadInt64 reads a little-endian int64.
func ReadInt64(r io.Reader) (int64, error) {
	var b [8]byte
	if err := ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return int64(binary.LittleEndian.Uint64(b[:])), nil
}

// WriteUint8 writes a single byte.
func WriteUint8(w io.Writer, v uint8) error {
	_, err := w.Write([]byte{v})
	return err
}

// WriteUint16 writes a little-endian uint16.
func WriteUint16(w io.Writer, v uint16) error {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	_, err := w.Write(b[:])
	return err
}

// WriteUint32 writes a little-endian uint32.
func WriteUint32(w io.Writer, v uint32) error {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	_, err := w.Write(b[:])
	return err
}

// WriteInt64 writes a little-endian int64.
func WriteInt64(w io.Writer, v int64) error {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(v))
	_, err := w.Write(b[:])
	return err
}

// ReadString8 reads a u8-length-prefixed byte string. A declared length of
// 0 means 256 bytes follow, per the wire format (never the empty string).
func ReadString8(r io.Reader) ([]byte, error) {
	n, err := ReadUint8(r)
	if err != nil {
		return nil, err
	}
	length := int(n)
	if length == 0 {
		length = 256
	}
	buf := make([]byte, length)
	if err := ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// WriteString8 writes a u8-length-prefixed byte string. Callers must not
// pass more than 256 bytes; a 256-byte payload is encoded with a length
// byte of 0.
func WriteString8(w io.Writer, b []byte) error {
	if len(b) > 256 || len(b) == 0 {
		return cerrors.NewFormatError("string8 length", fmt.Errorf("%w: length %d out of [1,256]", cerrors.ErrInvalidData, len(b)))
	}
	n := uint8(len(b))
	if len(b) == 256 {
		n = 0
	}
	if err := WriteUint8(w, n); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

// ReadString16 reads a u16-length-prefixed byte string. A declared length
// of 0 means 65536 bytes follow.
func ReadString16(r io.Reader) ([]byte, error) {
	n, err := ReadUint16(r)
	if err != nil {
		return nil, err
	}
	length := int(n)
	if length == 0 {
		length = 65536
	}
	buf := make([]byte, length)
	if err := ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// WriteString16 writes a u16-length-prefixed byte string.
func WriteString16(w io.Writer, b []byte) error {
	if len(b) > 65536 || len(b) == 0 {
		return cerrors.NewFormatError("string16 length", fmt.Errorf("%w: length %d out of [1,65536]", cerrors.ErrInvalidData, len(b)))
	}
	n := uint16(len(b))
	if len(b) == 65536 {
		n = 0
	}
	if err := WriteUint16(w, n); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

// ValidUTF8 reports whether b is well-formed UTF-8 with no unpaired
// surrogate sequences (Go's utf8 package already rejects those as
// RuneError, so this is a thin, explicitly named wrapper for call sites
// that want to document the check).
func ValidUTF8(b []byte) bool {
	return utf8.Valid(b)
}
