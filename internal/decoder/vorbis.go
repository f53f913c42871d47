package decoder

import (
	"errors"
	"io"
	"strings"

	"github.com/jfreymuth/oggvorbis"

	"github.com/audiovet/audiovet/internal/stream"
)

// vorbisChunkSize is the number of decoded floats requested per drain
// step.
const vorbisChunkSize = 4096

// Vorbis validates an Ogg-Vorbis file with the jfreymuth/oggvorbis
// engine. Open loads the first link's stream info (sample rate, total PCM
// samples); the drain step pulls a chunk of decoded float samples. A
// stream that ends short of its declared total is truncated.
type Vorbis struct {
	s *stream.Stream
	r *oggvorbis.Reader

	rate     uint32
	declared uint64 // total PCM samples per channel
	buf      []float32
}

// OpenVorbis opens path and reads through the Vorbis headers.
func OpenVorbis(path string, buffered bool) (*Vorbis, *Error) {
	s, err := stream.Open(path, buffered)
	if err != nil {
		return nil, errorf(OpenFailed, "OPEN_FAILED: %v", err)
	}
	r, err := oggvorbis.NewReader(s)
	if err != nil {
		s.Close()
		return nil, errorf(OpenFailed, "OPEN_FAILED: %s", classifyVorbisOpenErr(err))
	}
	return &Vorbis{
		s:        s,
		r:        r,
		rate:     uint32(r.SampleRate()),
		declared: uint64(r.Length()),
		buf:      make([]float32, vorbisChunkSize),
	}, nil
}

// Read decodes one chunk of samples and returns the per-channel count.
func (d *Vorbis) Read() (int64, error) {
	n, err := d.r.Read(d.buf)
	if n > 0 {
		perChannel := int64(n / d.r.Channels())
		if perChannel == 0 {
			perChannel = 1
		}
		return perChannel, nil
	}
	if err == nil {
		return 0, nil
	}

	pos := uint64(d.r.Position())
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		// A clean end of stream lands exactly on the declared total;
		// anything short of it means pages are missing.
		if pos < d.declared {
			return 0, newError(Truncated, "TRUNCATED")
		}
		return 0, nil
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "crc"):
		// Garbage between pages or a corrupt page: the engine's
		// equivalent of a hole in the data.
		return 0, errorf(LostSync, "OGG-VORBIS_HOLE @ %s", stamp(pos, d.rate))
	case strings.Contains(msg, "header"):
		return 0, newError(BadHeader, "UNREADABLE_OR_CORRUPT_HEADER")
	default:
		return 0, errorf(FormatSpecific, "OGG-VORBIS_ERROR @ %s: %v", stamp(pos, d.rate), err)
	}
}

// Total returns the declared per-channel PCM sample count.
func (d *Vorbis) Total() uint64 { return d.declared }

// Close releases the stream.
func (d *Vorbis) Close() error { return d.s.Close() }

// classifyVorbisOpenErr distinguishes the open-time failure classes the
// engine can report.
func classifyVorbisOpenErr(err error) string {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return "READ_ERROR"
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "capture"), strings.Contains(msg, "not an ogg"), strings.Contains(msg, "no ogg"):
		return "NON_VORBIS_DATA_IN_BITSTREAM"
	case strings.Contains(msg, "version"):
		return "VORBIS_VERSION_MISMATCH"
	default:
		return "INVALID_VORBIS_HEADER"
	}
}
