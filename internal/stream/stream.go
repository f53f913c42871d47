// Package stream provides read-only binary access to a file behind a single
// read/seek/tell/length/eof surface, in one of two modes: streaming (every
// operation goes to the OS file) or fully buffered (the whole file is read
// into memory at open and served from there).
//
// Buffered mode exists for the many-worker case: when several goroutines
// contend on one disk, paying the RAM cost once per file eliminates seek
// thrashing between readers.
package stream

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// blockSize is the read granularity when slurping a file into memory.
// Matches the maximum NTFS/ReFS cluster size.
const blockSize = 64 * 1024

// ErrSeekOutOfRange is returned by Seek for a target outside [0, Length()].
// The position is left unchanged.
var ErrSeekOutOfRange = errors.New("stream: seek out of range")

// Stream is a read-only file stream. It implements io.ReadSeeker with
// standard semantics (io.EOF at end of data) and additionally exposes
// Tell, Length and EOF so codec layers can introspect without seeking.
//
// A Stream is owned by exactly one decoder at a time and is not safe for
// concurrent use.
type Stream struct {
	f    *os.File // nil in buffered mode after the slurp completes
	buf  []byte   // whole-file contents in buffered mode
	pos  int64
	size int64
	eof  bool
}

// Open opens path for read-only binary access. With buffered set, the
// entire file is read into memory and the descriptor released before Open
// returns. Long paths and UNC paths are prefixed as needed; callers pass
// plain paths.
func Open(path string, buffered bool) (*Stream, error) {
	f, err := os.Open(fixLongPath(path))
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	s := &Stream{f: f, size: info.Size()}
	if !buffered {
		return s, nil
	}

	if err := s.slurp(); err != nil {
		f.Close()
		return nil, err
	}
	f.Close()
	s.f = nil
	return s, nil
}

// slurp reads the whole file into s.buf in blockSize chunks.
func (s *Stream) slurp() error {
	s.buf = make([]byte, s.size)
	for off := int64(0); off < s.size; {
		n := s.size - off
		if n > blockSize {
			n = blockSize
		}
		read, err := io.ReadFull(s.f, s.buf[off:off+n])
		off += int64(read)
		if err != nil {
			return fmt.Errorf("stream: short read at offset %d: %w", off, err)
		}
	}
	return nil
}

// Read fills p with up to len(p) bytes. A read crossing the end of data
// returns the truncated count with a nil error and marks EOF; the next
// read returns (0, io.EOF).
func (s *Stream) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if s.pos >= s.size {
		s.eof = true
		return 0, io.EOF
	}

	if s.buf != nil {
		n := copy(p, s.buf[s.pos:])
		s.pos += int64(n)
		if s.pos >= s.size {
			s.eof = true
		}
		return n, nil
	}

	n, err := s.f.Read(p)
	s.pos += int64(n)
	if err == io.EOF {
		s.eof = true
		if n > 0 {
			err = nil
		}
	}
	if s.pos >= s.size {
		s.eof = true
	}
	return n, err
}

// Seek moves the position to offset relative to whence. Targets outside
// [0, Length()] fail with ErrSeekOutOfRange and do not move the position.
// A successful seek clears the EOF state.
func (s *Stream) Seek(offset int64, whence int) (int64, error) {
	var target int64
	switch whence {
	case io.SeekStart:
		target = offset
	case io.SeekCurrent:
		target = s.pos + offset
	case io.SeekEnd:
		target = s.size + offset
	default:
		return s.pos, fmt.Errorf("stream: invalid whence %d", whence)
	}
	if target < 0 || target > s.size {
		return s.pos, ErrSeekOutOfRange
	}

	if s.buf == nil {
		if _, err := s.f.Seek(target, io.SeekStart); err != nil {
			return s.pos, err
		}
	}
	s.pos = target
	s.eof = false
	return s.pos, nil
}

// Tell returns the current position.
func (s *Stream) Tell() int64 { return s.pos }

// Length returns the total size in bytes, regardless of mode.
func (s *Stream) Length() int64 { return s.size }

// EOF reports whether a read has touched the end of data since the last
// successful seek.
func (s *Stream) EOF() bool { return s.eof }

// Close releases the descriptor and the buffer. Safe to call twice.
func (s *Stream) Close() error {
	s.buf = nil
	if s.f == nil {
		return nil
	}
	f := s.f
	s.f = nil
	return f.Close()
}
