// Package decoder validates audio files by streaming them end-to-end
// through a format-specific decoder. A decoder is opened for one file,
// drained by repeated Read calls until it reports end-of-stream or a
// failure, and closed. Failures are values: every decoder maps its
// internal states onto the closed Kind set below and carries the
// human-readable diagnostic in Detail.
package decoder

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Kind classifies a validation failure.
type Kind int

const (
	OpenFailed Kind = iota
	Truncated
	LostSync
	BadHeader
	CrcMismatch
	Md5Mismatch
	SampleCountMismatch
	UnparseableStream
	BadMetadata
	SeekError
	MemoryAllocation
	Aborted
	Unsupported
	FormatSpecific
)

var kindNames = map[Kind]string{
	OpenFailed:          "OPEN_FAILED",
	Truncated:           "TRUNCATED",
	LostSync:            "LOST_SYNC",
	BadHeader:           "BAD_HEADER",
	CrcMismatch:         "CRC_MISMATCH",
	Md5Mismatch:         "MD5_MISMATCH",
	SampleCountMismatch: "SAMPLE_COUNT_MISMATCH",
	UnparseableStream:   "UNPARSEABLE_STREAM",
	BadMetadata:         "BAD_METADATA",
	SeekError:           "SEEK_ERROR",
	MemoryAllocation:    "MEMORY_ALLOCATION_ERROR",
	Aborted:             "DECODER_ABORTED",
	Unsupported:         "UNSUPPORTED_FORMAT",
	FormatSpecific:      "FORMAT_SPECIFIC",
}

func (k Kind) String() string { return kindNames[k] }

// Error is a per-file validation failure. Detail is the diagnostic shown
// in the final report (e.g. "LOST_SYNC @ 3m 05s").
type Error struct {
	Kind   Kind
	Detail string
}

func (e *Error) Error() string { return e.Detail }

func newError(kind Kind, detail string) *Error {
	return &Error{Kind: kind, Detail: detail}
}

func errorf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// stamp renders a decode position as "{minutes}m {seconds:02}s" from a
// sample count and rate. A zero rate pins the stamp at 0m 00s.
func stamp(samples uint64, rate uint32) string {
	var secs uint64
	if rate > 0 {
		secs = samples / uint64(rate)
	}
	return fmt.Sprintf("%dm %02ds", secs/60, secs%60)
}

// Decoder drains one audio file. Read advances by one decode unit (a
// frame, block or sample chunk depending on the format) and returns the
// number of units consumed; zero means a clean end of stream, a non-nil
// error (always a *Error) means the file failed validation. Total is the
// expected grand total of units, for progress reporting; zero when
// unknown. Close releases the underlying stream and must run on every
// exit path.
type Decoder interface {
	Read() (int64, error)
	Total() uint64
	Close() error
}

// Decoder names as reported by Classify.
const (
	NameFLAC    = "FLAC"
	NameMP3     = "MP3"
	NameWavPack = "WavPack"
	NameVorbis  = "Ogg-Vorbis"
)

// Factory maps filename extensions to decoders. The mapping is fixed at
// construction:
//
//	flac, fla     -> FLAC
//	mp3, mp2, m2a -> MP3
//	wv            -> WavPack
//	ogg           -> Ogg-Vorbis
type Factory struct {
	byExt    map[string]string
	buffered bool
}

// NewFactory returns a Factory with the fixed extension table.
func NewFactory() *Factory {
	return &Factory{byExt: map[string]string{
		"flac": NameFLAC,
		"fla":  NameFLAC,
		"mp3":  NameMP3,
		"mp2":  NameMP3,
		"m2a":  NameMP3,
		"wv":   NameWavPack,
		"ogg":  NameVorbis,
	}}
}

// SetBuffered selects fully-buffered streams for subsequently opened
// decoders. Enabled by the coordinator when two or more workers share
// the disk.
func (f *Factory) SetBuffered(v bool) { f.buffered = v }

// Buffered reports the current stream mode.
func (f *Factory) Buffered() bool { return f.buffered }

// Classify returns the decoder name for path's last extension segment,
// case-insensitively. ok is false for unsupported or missing extensions.
func (f *Factory) Classify(path string) (name string, ok bool) {
	ext := filepath.Ext(path)
	if ext == "" {
		return "", false
	}
	name, ok = f.byExt[strings.ToLower(ext[1:])]
	return name, ok
}

// Open constructs a ready-to-drain decoder for path, or an *Error with
// kind Unsupported or OpenFailed.
func (f *Factory) Open(path string) (dec Decoder, derr *Error) {
	// A failed opener returns a nil concrete pointer; drop it so callers
	// get a nil Decoder rather than a non-nil interface around nil.
	defer func() {
		if derr != nil {
			dec = nil
		}
	}()
	name, ok := f.Classify(path)
	if !ok {
		return nil, newError(Unsupported, "UNSUPPORTED_FORMAT")
	}
	switch name {
	case NameFLAC:
		return OpenFLAC(path, f.buffered)
	case NameMP3:
		return OpenMP3(path, f.buffered)
	case NameWavPack:
		return OpenWavPack(path, f.buffered)
	default:
		return OpenVorbis(path, f.buffered)
	}
}
