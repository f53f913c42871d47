package decoder

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func TestVorbisOpenRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.ogg")
	if err := os.WriteFile(path, []byte("this is not an ogg stream at all"), 0644); err != nil {
		t.Fatal(err)
	}

	d, derr := OpenVorbis(path, false)
	if derr == nil {
		d.Close()
		t.Fatal("garbage accepted")
	}
	if derr.Kind != OpenFailed {
		t.Errorf("Kind = %v, want OpenFailed", derr.Kind)
	}
}

func TestVorbisOpenRejectsTruncatedHeader(t *testing.T) {
	// A valid Ogg capture pattern with nothing behind it: the header
	// read runs dry.
	path := filepath.Join(t.TempDir(), "test.ogg")
	if err := os.WriteFile(path, []byte("OggS\x00"), 0644); err != nil {
		t.Fatal(err)
	}

	d, derr := OpenVorbis(path, false)
	if derr == nil {
		d.Close()
		t.Fatal("truncated header accepted")
	}
	if derr.Kind != OpenFailed {
		t.Errorf("Kind = %v, want OpenFailed", derr.Kind)
	}
}

func TestClassifyVorbisOpenErr(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{io.EOF, "READ_ERROR"},
		{io.ErrUnexpectedEOF, "READ_ERROR"},
		{errors.New("ogg: missing capture pattern"), "NON_VORBIS_DATA_IN_BITSTREAM"},
		{errors.New("vorbis: unsupported version"), "VORBIS_VERSION_MISMATCH"},
		{errors.New("vorbis: invalid header"), "INVALID_VORBIS_HEADER"},
		{errors.New("something else entirely"), "INVALID_VORBIS_HEADER"},
	}
	for _, c := range cases {
		if got := classifyVorbisOpenErr(c.err); got != c.want {
			t.Errorf("classifyVorbisOpenErr(%v) = %q, want %q", c.err, got, c.want)
		}
	}
}
