package decoder

import (
	"io"

	"github.com/audiovet/audiovet/internal/stream"
)

// MP3 walks an MPEG-1/2/2.5 Audio Layer I/II/III stream frame by frame
// without reconstructing samples: a file is valid when every frame header
// chains consistently to the first and every embedded CRC checks out.
// Leading ID3v2 headers and trailing ID3v1/LYRICS3/APE tags are measured
// at open and excluded from the scanned region.

// Header field values after the bit-shift decode.
const (
	mpegVersion1  = 3
	mpegVersion2  = 2
	mpegVersion25 = 0

	mpegLayerI   = 3
	mpegLayerII  = 2
	mpegLayerIII = 1
)

// consistencyMask covers version, layer, sample-rate index and channel
// mode: the fields that must not change between frames of one stream.
const consistencyMask = 0xFFFE0C00

// maxResyncAttempts bounds the one-byte sliding window search.
const maxResyncAttempts = 65536

// mp3Bitrates holds the supported bitrates in kbit/s. Rows are the header
// bitrate index; the free (0) and bad (15) rows stay zero. Columns:
// MPEG1-I, MPEG1-II, MPEG1-III, MPEG2-I, MPEG2-{II,III}.
var mp3Bitrates = [16][5]uint32{
	{0, 0, 0, 0, 0},
	{32, 32, 32, 32, 8},
	{64, 48, 40, 48, 16},
	{96, 56, 48, 56, 24},
	{128, 64, 56, 64, 32},
	{160, 80, 64, 80, 40},
	{192, 96, 80, 96, 48},
	{224, 112, 96, 112, 56},
	{256, 128, 112, 128, 64},
	{288, 160, 128, 144, 80},
	{320, 192, 160, 160, 96},
	{352, 224, 192, 176, 112},
	{384, 256, 224, 192, 128},
	{416, 320, 256, 224, 144},
	{448, 384, 320, 256, 160},
	{0, 0, 0, 0, 0},
}

// mp3SampleRates holds sample rates in Hz. Rows are the header index,
// columns MPEG1, MPEG2, MPEG2.5. Row 3 is reserved.
var mp3SampleRates = [4][3]uint32{
	{44100, 22050, 11025},
	{48000, 24000, 12000},
	{32000, 16000, 8000},
	{0, 0, 0},
}

// mp3CRCByteSize is the number of side-information bytes covered by the
// embedded CRC of a protected Layer III frame, indexed
// [channel_mono][version_non_mpeg1].
var mp3CRCByteSize = [2][2]uint32{
	{32, 17},
	{17, 9},
}

// MP3 is the frame-level validator for one file.
type MP3 struct {
	s *stream.Stream

	fileEnd      int64 // length minus trailing tags
	offset       int64
	tagHeaderLen int64

	curHeader  uint32
	prevHeader uint32

	// Fields of the most recently parsed header.
	version   uint32
	layer     uint32
	mono      bool
	protected bool
	rate      uint32 // Hz, current frame

	streamRate uint32 // Hz, locked on the first accepted frame
	framePos   uint64 // decoded sample position
	resyncLeft int
	pendingErr *Error // tag diagnostics recorded at open, reported on failure
	crcScratch [36]byte
}

// OpenMP3 measures the leading and trailing tag regions and positions the
// stream at the first frame.
func OpenMP3(path string, buffered bool) (*MP3, *Error) {
	s, err := stream.Open(path, buffered)
	if err != nil {
		return nil, errorf(OpenFailed, "OPEN_FAILED: %v", err)
	}

	d := &MP3{s: s, resyncLeft: maxResyncAttempts}
	d.tagHeaderLen = d.id3v2HeaderLength()
	footerLen := d.tagFooterLength()
	d.fileEnd = s.Length() - footerLen

	if _, err := s.Seek(d.tagHeaderLen, io.SeekStart); err != nil {
		// The ID3v2 header declared more bytes than the file holds.
		d.pendingErr = newError(BadMetadata, "BAD_ID3v2_TAG")
		d.tagHeaderLen = 0
		if _, err := s.Seek(0, io.SeekStart); err != nil {
			s.Close()
			return nil, errorf(OpenFailed, "OPEN_FAILED: %v", err)
		}
	}
	d.offset = d.tagHeaderLen
	return d, nil
}

// Read walks exactly one frame. It returns the frame length in bytes,
// zero at the end of the scanned region, or a validation error.
func (d *MP3) Read() (int64, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(d.s, hdr[:]); err != nil {
		return 0, newError(LostSync, "LOST_SYNC @ END_OF_FILE")
	}
	d.curHeader = uint32(hdr[0])<<24 | uint32(hdr[1])<<16 | uint32(hdr[2])<<8 | uint32(hdr[3])

	frameLen := d.frameLength()
	if frameLen != 0 {
		if d.curHeader&consistencyMask == d.prevHeader&consistencyMask || d.prevHeader == 0 {
			if d.prevHeader == 0 {
				d.prevHeader = d.curHeader
				d.streamRate = d.rate
			}
			d.offset += int64(frameLen)

			switch {
			case d.offset < d.fileEnd:
				if err := d.checkCRC(); err != nil {
					return 0, err
				}
				if _, err := d.s.Seek(d.offset, io.SeekStart); err != nil {
					return 0, newError(SeekError, "SEEK_ERROR")
				}
				return int64(frameLen), nil
			case d.offset == d.fileEnd:
				if err := d.checkCRC(); err != nil {
					return 0, err
				}
				return 0, nil
			default:
				d.pendingErr = newError(Truncated, "TRUNCATED")
			}
		}
	}

	if d.pendingErr != nil {
		return 0, d.pendingErr
	}

	if d.framePos > 0 {
		// Mid-stream desynchronization; try to pick the chain back up so
		// the error carries the position where sync was lost.
		if d.resync() {
			return 0, errorf(LostSync, "LOST_SYNC @ %s", stamp(d.framePos, d.streamRate))
		}
		return 0, newError(LostSync, "LOST_SYNC @ END_OF_FILE")
	}

	// No frame has been accepted yet.
	if !d.resync() {
		return 0, newError(FormatSpecific, "UNRECOGNIZED_FORMAT")
	}
	if d.tagHeaderLen > 0 {
		return 0, newError(BadMetadata, "BAD_ID3v2_TAG")
	}
	return 0, newError(LostSync, "BAD_STARTING_SYNC")
}

// Total returns the byte length of the scanned region.
func (d *MP3) Total() uint64 {
	if d.fileEnd < d.tagHeaderLen {
		return 0
	}
	return uint64(d.fileEnd - d.tagHeaderLen)
}

// Close releases the stream.
func (d *MP3) Close() error { return d.s.Close() }

// frameLength decodes the current header. On success it returns the frame
// length in bytes and advances the decoded-sample position by the layer's
// frame-sample constant; invalid headers (bad sync, reserved fields, free
// or bad bitrate rows, reserved sample rates) return zero.
func (d *MP3) frameLength() uint32 {
	h := d.curHeader
	if h <= 0xFFE00000 {
		return 0
	}

	d.version = (h >> 19) & 0x3
	d.layer = (h >> 17) & 0x3
	bitrateIdx := (h >> 12) & 0xF
	rateIdx := (h >> 10) & 0x3
	padding := (h >> 9) & 0x1
	d.mono = (h>>6)&0x3 == 0x3
	d.protected = (h>>16)&0x1 == 0

	// Bitrate table column for the version/layer pair.
	col := uint32(5)
	switch d.version {
	case mpegVersion1:
		switch d.layer {
		case mpegLayerI:
			col = 0
		case mpegLayerII:
			col = 1
		case mpegLayerIII:
			col = 2
		}
	case mpegVersion2, mpegVersion25:
		switch d.layer {
		case mpegLayerI:
			col = 3
		case mpegLayerII, mpegLayerIII:
			col = 4
		}
	}
	if col == 5 {
		return 0
	}
	bitrate := 1000 * mp3Bitrates[bitrateIdx][col]
	if bitrate == 0 {
		return 0
	}

	var rateCol uint32
	switch d.version {
	case mpegVersion1:
		rateCol = 0
	case mpegVersion2:
		rateCol = 1
	case mpegVersion25:
		rateCol = 2
	default:
		return 0
	}
	d.rate = mp3SampleRates[rateIdx][rateCol]
	if d.rate == 0 {
		return 0
	}

	switch d.layer {
	case mpegLayerI:
		d.framePos += 384
		return (12*bitrate/d.rate + padding) * 4
	case mpegLayerII:
		d.framePos += 1152
		return 144*bitrate/d.rate + padding
	case mpegLayerIII:
		if d.version == mpegVersion1 {
			d.framePos += 1152
			return 144*bitrate/d.rate + padding
		}
		d.framePos += 576
		return 72*bitrate/d.rate + padding
	}
	return 0
}

// resync slides a one-byte window until a header parses and matches the
// previous frame's invariant bits. The attempt budget persists across
// calls for the lifetime of the file.
func (d *MP3) resync() bool {
	d.curHeader = 0
	var b [1]byte
	for d.resyncLeft > 0 {
		d.resyncLeft--
		d.curHeader <<= 8
		if n, _ := d.s.Read(b[:]); n == 0 {
			return false
		}
		d.curHeader |= uint32(b[0])

		if d.frameLength() == 0 {
			continue
		}
		if d.prevHeader != 0 {
			if d.curHeader&consistencyMask == d.prevHeader&consistencyMask {
				return true
			}
			// Candidate contradicts the established chain; start over
			// with fresh bytes.
			d.curHeader = 0
			continue
		}
		// Tentative first frame: stash it and require a second candidate
		// to confirm.
		d.prevHeader = d.curHeader
		d.curHeader = 0
	}
	return false
}

// checkCRC verifies the embedded CRC of a protected Layer III frame. The
// stream is positioned just past the 4 header bytes; the covered region
// is the last 2 header bytes plus the side information. Short reads pass:
// truncation is reported by the offset accounting, not here.
func (d *MP3) checkCRC() *Error {
	if !d.protected || d.layer != mpegLayerIII {
		return nil
	}

	monoRow, versionCol := 0, 0
	if d.mono {
		monoRow = 1
	}
	if d.version != mpegVersion1 {
		versionCol = 1
	}
	covered := mp3CRCByteSize[monoRow][versionCol]

	if _, err := d.s.Seek(-2, io.SeekCurrent); err != nil {
		return nil
	}
	buf := d.crcScratch[:]
	if n, _ := io.ReadFull(d.s, buf[0:2]); n != 2 {
		return nil
	}
	var crcBytes [2]byte
	if n, _ := io.ReadFull(d.s, crcBytes[:]); n != 2 {
		return nil
	}
	embedded := uint16(crcBytes[0])<<8 | uint16(crcBytes[1])
	if n, _ := io.ReadFull(d.s, buf[2:2+covered]); n != int(covered) {
		return nil
	}

	if crc16(buf[:2+covered]) != embedded {
		return errorf(CrcMismatch, "CRC_ERROR @ %s", stamp(d.framePos, d.streamRate))
	}
	return nil
}

// crc16 computes CRC-16 with polynomial 0x8005 and initial value 0xFFFF
// over buf, as used for MP3 frame protection.
func crc16(buf []byte) uint16 {
	crc := uint16(0xFFFF)
	const poly = 0x8005
	for _, b := range buf {
		crc ^= uint16(b) << 8
		for bit := 0; bit < 8; bit++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ poly
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}
