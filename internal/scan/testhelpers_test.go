package scan

import (
	"bytes"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

// validMP3Frame returns one valid MPEG-1 Layer III frame (128 kbit/s,
// 44100 Hz, stereo, unprotected, 417 bytes).
func validMP3Frame() []byte {
	frame := make([]byte, 417)
	frame[0] = 0xFF
	frame[1] = 0xFB
	frame[2] = 0x90
	for i := 4; i < len(frame); i++ {
		frame[i] = byte(i)
	}
	return frame
}

// writeValidMP3 writes an MP3 of three valid frames at path.
func writeValidMP3(t *testing.T, path string) string {
	t.Helper()
	f := validMP3Frame()
	if err := os.WriteFile(path, bytes.Join([][]byte{f, f, f}, nil), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

// writeCorruptMP3 writes a file that classifies as MP3 but cannot be
// walked.
func writeCorruptMP3(t *testing.T, path string) string {
	t.Helper()
	if err := os.WriteFile(path, bytes.Repeat([]byte{0x13, 0x37}, 200), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

// recordingSink captures every sink call for assertions. onDone, when
// set, runs after each processed file with the running count.
type recordingSink struct {
	mu       sync.Mutex
	totals   []int64
	done     int
	statuses []string
	reports  []*Report
	onDone   func(done int)
}

func (s *recordingSink) TotalSet(n int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.totals = append(s.totals, n)
}

func (s *recordingSink) DoneInc() {
	s.mu.Lock()
	s.done++
	done := s.done
	cb := s.onDone
	s.mu.Unlock()
	if cb != nil {
		cb(done)
	}
}

func (s *recordingSink) WorkerFraction(int, float64) {}

func (s *recordingSink) Status(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses = append(s.statuses, text)
}

func (s *recordingSink) StatusTransient(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses = append(s.statuses, text)
}

func (s *recordingSink) FinalReport(r *Report) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports = append(s.reports, r)
}

func (s *recordingSink) reportCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.reports)
}

func (s *recordingSink) lastReport(t *testing.T) *Report {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.reports) == 0 {
		t.Fatal("no final report delivered")
	}
	return s.reports[len(s.reports)-1]
}

func (s *recordingSink) lastTotal() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.totals) == 0 {
		return 0
	}
	return s.totals[len(s.totals)-1]
}

// mp3Tree builds the directory used by the walk tests: three supported
// files and two unsupported at the root, one more supported in a
// subdirectory, plus hidden entries that must be skipped.
func mp3Tree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeValidMP3(t, filepath.Join(root, "a.mp3"))
	writeValidMP3(t, filepath.Join(root, "b.mp3"))
	writeValidMP3(t, filepath.Join(root, "c.mp3"))
	if err := os.WriteFile(filepath.Join(root, "x.txt"), []byte("text"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "y.wav"), []byte("RIFF"), 0644); err != nil {
		t.Fatal(err)
	}
	sub := filepath.Join(root, "sub")
	if err := os.Mkdir(sub, 0755); err != nil {
		t.Fatal(err)
	}
	writeValidMP3(t, filepath.Join(sub, "d.mp3"))

	hidden := filepath.Join(root, ".cache")
	if err := os.Mkdir(hidden, 0755); err != nil {
		t.Fatal(err)
	}
	writeValidMP3(t, filepath.Join(hidden, "e.mp3"))
	writeValidMP3(t, filepath.Join(root, ".f.mp3"))
	return root
}
