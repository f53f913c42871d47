package stream

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data.bin")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func modes(t *testing.T, data []byte, fn func(t *testing.T, s *Stream)) {
	t.Helper()
	path := writeFile(t, data)
	for _, buffered := range []bool{false, true} {
		name := "streaming"
		if buffered {
			name = "buffered"
		}
		t.Run(name, func(t *testing.T) {
			s, err := Open(path, buffered)
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			defer s.Close()
			fn(t, s)
		})
	}
}

func TestReadWholeFile(t *testing.T) {
	data := bytes.Repeat([]byte{0xA5}, 1000)
	modes(t, data, func(t *testing.T, s *Stream) {
		if s.Length() != 1000 {
			t.Fatalf("Length = %d, want 1000", s.Length())
		}
		got, err := io.ReadAll(s)
		if err != nil {
			t.Fatalf("ReadAll: %v", err)
		}
		if !bytes.Equal(got, data) {
			t.Error("read data differs from written data")
		}
		if !s.EOF() {
			t.Error("EOF not set after full read")
		}
	})
}

func TestReadPastEndTruncates(t *testing.T) {
	modes(t, []byte("abcdef"), func(t *testing.T, s *Stream) {
		buf := make([]byte, 10)
		n, err := s.Read(buf)
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
		if n != 6 {
			t.Errorf("n = %d, want truncated count 6", n)
		}
		if !s.EOF() {
			t.Error("EOF not set by truncated read")
		}
		if n, err := s.Read(buf); n != 0 || err != io.EOF {
			t.Errorf("read at EOF = (%d, %v), want (0, io.EOF)", n, err)
		}
	})
}

func TestSeekBounds(t *testing.T) {
	modes(t, []byte("0123456789"), func(t *testing.T, s *Stream) {
		if _, err := s.Seek(4, io.SeekStart); err != nil {
			t.Fatalf("Seek(4): %v", err)
		}
		if s.Tell() != 4 {
			t.Errorf("Tell = %d, want 4", s.Tell())
		}

		// Seeks past either endpoint fail and do not move the position.
		if _, err := s.Seek(11, io.SeekStart); err == nil {
			t.Error("seek past end succeeded")
		}
		if _, err := s.Seek(-1, io.SeekStart); err == nil {
			t.Error("seek before start succeeded")
		}
		if s.Tell() != 4 {
			t.Errorf("failed seek moved position to %d", s.Tell())
		}

		if _, err := s.Seek(-3, io.SeekEnd); err != nil {
			t.Fatalf("Seek(-3, End): %v", err)
		}
		var b [3]byte
		if _, err := io.ReadFull(s, b[:]); err != nil {
			t.Fatal(err)
		}
		if string(b[:]) != "789" {
			t.Errorf("tail read = %q, want 789", b[:])
		}
	})
}

func TestSeekClearsEOF(t *testing.T) {
	modes(t, []byte("xy"), func(t *testing.T, s *Stream) {
		if _, err := io.ReadAll(s); err != nil {
			t.Fatal(err)
		}
		if !s.EOF() {
			t.Fatal("EOF expected after drain")
		}
		if _, err := s.Seek(0, io.SeekStart); err != nil {
			t.Fatal(err)
		}
		if s.EOF() {
			t.Error("EOF survived a successful seek")
		}
	})
}

func TestLengthAfterReads(t *testing.T) {
	data := bytes.Repeat([]byte{1, 2, 3}, 50000) // crosses the slurp block size
	modes(t, data, func(t *testing.T, s *Stream) {
		var b [7]byte
		if _, err := s.Read(b[:]); err != nil {
			t.Fatal(err)
		}
		if s.Length() != int64(len(data)) {
			t.Errorf("Length = %d, want %d", s.Length(), len(data))
		}
	})
}

func TestOpenMissingFile(t *testing.T) {
	if _, err := Open(filepath.Join(t.TempDir(), "absent"), false); err == nil {
		t.Error("expected error opening missing file")
	}
}

func TestCloseTwice(t *testing.T) {
	s, err := Open(writeFile(t, []byte("x")), false)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}
