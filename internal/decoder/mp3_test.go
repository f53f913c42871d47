package decoder

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// mp3Frame builds one MPEG-1 Layer III frame, 128 kbit/s, 44100 Hz,
// stereo, 417 bytes. With protection enabled the embedded CRC covers the
// last two header bytes plus 32 bytes of side information.
func mp3Frame(protected bool) []byte {
	frame := make([]byte, 417)
	frame[0] = 0xFF
	frame[1] = 0xFB // MPEG1, Layer III, no CRC
	if protected {
		frame[1] = 0xFA
	}
	frame[2] = 0x90 // bitrate index 9 (128k), sample rate index 0 (44100)
	frame[3] = 0x00 // stereo

	// Recognizable payload pattern.
	for i := 4; i < len(frame); i++ {
		frame[i] = byte(i)
	}

	if protected {
		covered := append([]byte{frame[2], frame[3]}, frame[6:6+32]...)
		crc := crc16(covered)
		frame[4] = byte(crc >> 8)
		frame[5] = byte(crc)
	}
	return frame
}

func writeMP3(t *testing.T, parts ...[]byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.mp3")
	if err := os.WriteFile(path, bytes.Join(parts, nil), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

// drain pulls a decoder until EOF or error and returns the unit total.
func drain(d Decoder) (uint64, error) {
	var total uint64
	for {
		n, err := d.Read()
		if err != nil {
			return total, err
		}
		if n == 0 {
			return total, nil
		}
		total += uint64(n)
	}
}

func kindOf(t *testing.T, err error) Kind {
	t.Helper()
	var derr *Error
	if !errors.As(err, &derr) {
		t.Fatalf("error %v is not a *decoder.Error", err)
	}
	return derr.Kind
}

func TestMP3ValidFrames(t *testing.T) {
	f := mp3Frame(false)
	path := writeMP3(t, f, f, f)

	d, derr := OpenMP3(path, false)
	if derr != nil {
		t.Fatalf("OpenMP3: %v", derr)
	}
	defer d.Close()

	if d.Total() != 3*417 {
		t.Errorf("Total = %d, want %d", d.Total(), 3*417)
	}
	if _, err := drain(d); err != nil {
		t.Fatalf("drain: %v", err)
	}
}

func TestMP3ValidWithCRCProtection(t *testing.T) {
	f := mp3Frame(true)
	path := writeMP3(t, f, f)

	d, derr := OpenMP3(path, false)
	if derr != nil {
		t.Fatalf("OpenMP3: %v", derr)
	}
	defer d.Close()
	if _, err := drain(d); err != nil {
		t.Fatalf("drain: %v", err)
	}
}

func TestMP3CRCMismatch(t *testing.T) {
	f := mp3Frame(true)
	f[10] ^= 0x01 // corrupt a covered side-information byte
	path := writeMP3(t, f)

	d, derr := OpenMP3(path, false)
	if derr != nil {
		t.Fatalf("OpenMP3: %v", derr)
	}
	defer d.Close()

	_, err := drain(d)
	if kindOf(t, err) != CrcMismatch {
		t.Fatalf("err = %v, want CrcMismatch", err)
	}
	if err.Error() != "CRC_ERROR @ 0m 00s" {
		t.Errorf("detail = %q", err.Error())
	}
}

func TestMP3TrailingID3v1Excluded(t *testing.T) {
	// A well-formed ID3v1 tag is removed from the scanned region, so the
	// walk ends exactly at the last frame.
	f := mp3Frame(false)
	tag := make([]byte, 128)
	copy(tag, "TAG")
	path := writeMP3(t, f, f, f, tag)

	d, derr := OpenMP3(path, false)
	if derr != nil {
		t.Fatalf("OpenMP3: %v", derr)
	}
	defer d.Close()

	if d.Total() != 3*417 {
		t.Errorf("Total = %d, want footer excluded %d", d.Total(), 3*417)
	}
	if _, err := drain(d); err != nil {
		t.Fatalf("drain: %v", err)
	}
}

func TestMP3MalformedTrailingTagLosesSync(t *testing.T) {
	// A corrupted marker defeats footer detection; the walk runs into
	// the tag bytes and loses sync.
	f := mp3Frame(false)
	tag := make([]byte, 128)
	copy(tag, "TAX")
	path := writeMP3(t, f, f, tag)

	d, derr := OpenMP3(path, false)
	if derr != nil {
		t.Fatalf("OpenMP3: %v", derr)
	}
	defer d.Close()

	_, err := drain(d)
	if kindOf(t, err) != LostSync {
		t.Fatalf("err = %v, want LostSync", err)
	}
}

func TestMP3ID3v2HeaderSkipped(t *testing.T) {
	junk := bytes.Repeat([]byte{0x55}, 100)
	header := []byte{'I', 'D', '3', 3, 0, 0, 0, 0, 0, 100}
	f := mp3Frame(false)
	path := writeMP3(t, header, junk, f, f)

	d, derr := OpenMP3(path, false)
	if derr != nil {
		t.Fatalf("OpenMP3: %v", derr)
	}
	defer d.Close()

	if _, err := drain(d); err != nil {
		t.Fatalf("drain: %v", err)
	}
}

func TestMP3APEFooterExcluded(t *testing.T) {
	body := bytes.Repeat([]byte{0x77}, 40)
	footer := make([]byte, 32)
	copy(footer, "APETAGEX")
	footer[8] = 0xD0 // low byte of version 2000 (0x07D0); the version is not checked
	footer[12] = byte(len(body) + 32)
	f := mp3Frame(false)
	path := writeMP3(t, f, f, body, footer)

	d, derr := OpenMP3(path, false)
	if derr != nil {
		t.Fatalf("OpenMP3: %v", derr)
	}
	defer d.Close()

	if d.Total() != 2*417 {
		t.Errorf("Total = %d, want APE tag excluded %d", d.Total(), 2*417)
	}
	if _, err := drain(d); err != nil {
		t.Fatalf("drain: %v", err)
	}
}

func TestMP3GarbageBetweenFramesLosesSync(t *testing.T) {
	f := mp3Frame(false)
	garbage := bytes.Repeat([]byte{0x00}, 64)
	path := writeMP3(t, f, garbage, f)

	d, derr := OpenMP3(path, false)
	if derr != nil {
		t.Fatalf("OpenMP3: %v", derr)
	}
	defer d.Close()

	_, err := drain(d)
	if kindOf(t, err) != LostSync {
		t.Fatalf("err = %v, want LostSync", err)
	}
}

func TestMP3FrameChainConsistency(t *testing.T) {
	// The second frame switches the sample-rate index; the 0xFFFE0C00
	// gate must reject the chain even though the frame parses alone.
	f1 := mp3Frame(false)
	f2 := mp3Frame(false)
	f2[2] = 0x94 // sample rate index 1 (48000): length differs too
	path := writeMP3(t, f1, f2)

	d, derr := OpenMP3(path, false)
	if derr != nil {
		t.Fatalf("OpenMP3: %v", derr)
	}
	defer d.Close()

	if _, err := drain(d); err == nil {
		t.Fatal("inconsistent frame chain passed")
	}
}

func TestMP3PureGarbageUnrecognized(t *testing.T) {
	path := writeMP3(t, bytes.Repeat([]byte{0x13, 0x37}, 300))

	d, derr := OpenMP3(path, false)
	if derr != nil {
		t.Fatalf("OpenMP3: %v", derr)
	}
	defer d.Close()

	_, err := drain(d)
	var derr2 *Error
	if !errors.As(err, &derr2) || derr2.Detail != "UNRECOGNIZED_FORMAT" {
		t.Fatalf("err = %v, want UNRECOGNIZED_FORMAT", err)
	}
}

func TestMP3TruncatedFinalFrame(t *testing.T) {
	f := mp3Frame(false)
	path := writeMP3(t, f, f[:200])

	d, derr := OpenMP3(path, false)
	if derr != nil {
		t.Fatalf("OpenMP3: %v", derr)
	}
	defer d.Close()

	_, err := drain(d)
	if kindOf(t, err) != Truncated {
		t.Fatalf("err = %v, want Truncated", err)
	}
}

func TestCRC16KnownVector(t *testing.T) {
	// CRC-16/CMS: poly 0x8005, init 0xFFFF, check value for "123456789".
	if got := crc16([]byte("123456789")); got != 0xAEE7 {
		t.Errorf("crc16 = %#04x, want 0xaee7", got)
	}
}
