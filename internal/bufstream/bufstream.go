// Package bufstream implements the chunked, append-only in-memory buffer
// used to stage MAUS/MAUZ payloads. Staging through fixed-size chunks
// (rather than one growing slice) avoids the repeated reallocation and
// copying a naive append would incur on large archives (§4.4).
package bufstream

import (
	"fmt"
	"io"

	cerrors "mauz/internal/errors"
	"mauz/internal/util"
)

const chunkSize = util.MiB

// Stream is an append-only sequence of fixed-size chunks with a
// sequential read cursor. Writes always extend the stream; Reset moves
// the read cursor back to the beginning without discarding data. Prepend
// is a one-shot operation used to splice the encrypted-options block
// ahead of the already-buffered payload at finalization time (§4.5
// write path).
//
// A Stream is not safe for concurrent use.
type Stream struct {
	chunks   [][]byte // each chunk holds up to chunkSize bytes of payload
	size     int64    // total bytes written
	readIdx  int      // index into chunks for the next Read
	readOff  int      // byte offset within chunks[readIdx]
	prepended bool    // Prepend has already been called
}

// New returns an empty Stream.
func New() *Stream {
	return &Stream{}
}

// Len reports the total number of bytes written to the stream.
func (s *Stream) Len() int64 { return s.size }

// lastChunk returns the current tail chunk, or nil if the stream is
// empty. It does not allocate; Write adds a fresh chunk when this
// returns nil or a full chunk.
func (s *Stream) lastChunk() []byte {
	if len(s.chunks) == 0 {
		return nil
	}
	return s.chunks[len(s.chunks)-1]
}

// Write appends p to the stream, splitting across chunk boundaries as
// needed. It always returns len(p), nil — bufstream.Stream never fails a
// write short of a pool allocation panic.
func (s *Stream) Write(p []byte) (int, error) {
	written := 0
	for len(p) > 0 {
		tail := s.lastChunk()
		if tail == nil || len(tail) == cap(tail) {
			fresh := util.GetMiBBuffer()[:0]
			s.chunks = append(s.chunks, fresh)
			tail = fresh
		}
		n := copy(tail[len(tail):cap(tail)], p)
		s.chunks[len(s.chunks)-1] = tail[:len(tail)+n]
		p = p[n:]
		written += n
		s.size += int64(n)
	}
	return written, nil
}

// Reset moves the read cursor back to the start of the stream without
// discarding any data, so the stream can be read multiple times (e.g.
// once to compute a hash, once to encrypt).
func (s *Stream) Reset() {
	s.readIdx = 0
	s.readOff = 0
}

// Read implements io.Reader over the buffered chunks starting from the
// current read cursor.
func (s *Stream) Read(p []byte) (int, error) {
	read := 0
	for read < len(p) {
		if s.readIdx >= len(s.chunks) {
			if read == 0 {
				return 0, io.EOF
			}
			return read, nil
		}
		chunk := s.chunks[s.readIdx]
		if s.readOff >= len(chunk) {
			s.readIdx++
			s.readOff = 0
			continue
		}
		n := copy(p[read:], chunk[s.readOff:])
		s.readOff += n
		read += n
	}
	return read, nil
}

// Prepend splices other's chunks ahead of this stream's existing chunks,
// adjusting the total size accordingly. It is a one-shot operation: the
// read cursor must still be at the start, and Prepend may not be called
// twice on the same Stream. Used to insert the encrypted inner-options
// block before the already-buffered payload at finalization (§4.5).
func (s *Stream) Prepend(other *Stream) error {
	if s.prepended {
		return cerrors.NewStateError("Prepend", "already-prepended")
	}
	if s.readIdx != 0 || s.readOff != 0 {
		return cerrors.NewStateError("Prepend", "read-in-progress")
	}
	s.chunks = append(other.chunks, s.chunks...)
	s.size += other.size
	s.prepended = true
	return nil
}

// CopyInto writes every remaining byte from the current read cursor to
// sink. If leaveOpen is false, the stream's chunks are returned to the
// shared buffer pool after the copy and the Stream must not be used
// again.
func (s *Stream) CopyInto(sink io.Writer, leaveOpen bool) (int64, error) {
	var total int64
	buf := make([]byte, 32*1024)
	for {
		n, err := s.Read(buf)
		if n > 0 {
			if _, werr := sink.Write(buf[:n]); werr != nil {
				return total, fmt.Errorf("copy-into: %w: %v", cerrors.ErrIO, werr)
			}
			total += int64(n)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return total, err
		}
	}
	if !leaveOpen {
		s.release()
	}
	return total, nil
}

// release returns every chunk to the shared buffer pool. The Stream must
// not be used after calling release.
func (s *Stream) release() {
	for _, c := range s.chunks {
		if cap(c) == chunkSize {
			util.PutMiBBuffer(c[:cap(c)])
		}
	}
	s.chunks = nil
}

// Bytes materializes the entire stream (from the beginning, regardless
// of read cursor) into a single contiguous slice. Used by callers that
// need to pass the whole plaintext to a hash or MAC primitive.
func (s *Stream) Bytes() []byte {
	out := make([]byte, 0, s.size)
	for _, c := range s.chunks {
		out = append(out, c...)
	}
	return out
}
