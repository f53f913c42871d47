package decoder

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/audiovet/audiovet/internal/stream"
)

// WavPack validates a WavPack file at the container level: every block
// header is parsed, metadata sub-blocks are walked, block checksums are
// verified where present, and per-channel sample counts are reconciled
// against the declared total. An optional correction file (same name with
// a trailing 'c') is validated in lockstep with the main stream.
//
// Sample-level unpacking (and therefore audio MD5 recomputation) is
// delegated to nothing: no Go unpack engine exists. A declared MD5
// sub-block is still required to be well formed, and any corruption of
// checksummed block bytes is detected through the block checksum.

const (
	wvHeaderSize   = 32
	wvMagic        = "wvpk"
	wvMinVersion   = 0x402
	wvMaxVersion   = 0x410
	wvMaxBlockSize = 1 << 20

	// Block header flag bits.
	wvBytesStoredMask = 0x3
	wvMonoFlag        = 0x4
	wvInitialBlock    = 0x800
	wvFinalBlock      = 0x1000
	wvDSDFlag         = 0x80000000

	// Metadata sub-block ids.
	wvIDMD5Checksum   = 0x26
	wvIDBlockChecksum = 0x2f
	wvIDOddSize       = 0x40
	wvIDLarge         = 0x80
)

type wvHeader struct {
	ckSize       uint32
	version      uint16
	totalSamples int64 // -1 when unknown; valid on block index 0 only
	blockIndex   uint64
	blockSamples uint32
	flags        uint32
	crc          uint32
}

func parseWVHeader(raw []byte) wvHeader {
	h := wvHeader{
		ckSize:       binary.LittleEndian.Uint32(raw[4:8]),
		version:      binary.LittleEndian.Uint16(raw[8:10]),
		blockIndex:   uint64(raw[10])<<32 | uint64(binary.LittleEndian.Uint32(raw[16:20])),
		blockSamples: binary.LittleEndian.Uint32(raw[20:24]),
		flags:        binary.LittleEndian.Uint32(raw[24:28]),
		crc:          binary.LittleEndian.Uint32(raw[28:32]),
	}
	low := binary.LittleEndian.Uint32(raw[12:16])
	if raw[11] == 0xFF && low == 0xFFFFFFFF {
		h.totalSamples = -1
	} else {
		h.totalSamples = int64(raw[11])<<32 | int64(low)
	}
	return h
}

// WavPack is the block-level validator for one file.
type WavPack struct {
	s  *stream.Stream
	cs *stream.Stream // correction stream; nil when absent

	declared       int64 // total samples per channel; -1 unknown
	accumulated    uint64
	bytesPerSample int
	channels       int
	dsd            bool

	hasMD5      bool
	declaredMD5 [16]byte

	badBlocks int
	wvcDone   bool
	finished  bool
	finalized bool
}

// OpenWavPack opens path and, when present, the sibling correction file
// (path + "c"). The first block header supplies the stream totals.
func OpenWavPack(path string, buffered bool) (*WavPack, *Error) {
	s, err := stream.Open(path, buffered)
	if err != nil {
		return nil, errorf(OpenFailed, "OPEN_FAILED: %v", err)
	}

	var raw [wvHeaderSize]byte
	if n, _ := io.ReadFull(s, raw[:]); n != wvHeaderSize || string(raw[0:4]) != wvMagic {
		s.Close()
		return nil, newError(OpenFailed, "OPEN_FAILED: NOT_A_WAVPACK_FILE")
	}
	h := parseWVHeader(raw[:])
	if h.version < wvMinVersion || h.version > wvMaxVersion {
		s.Close()
		return nil, newError(OpenFailed, "OPEN_FAILED: UNSUPPORTED_WAVPACK_VERSION")
	}
	if _, err := s.Seek(0, io.SeekStart); err != nil {
		s.Close()
		return nil, errorf(OpenFailed, "OPEN_FAILED: %v", err)
	}

	d := &WavPack{
		s:              s,
		declared:       h.totalSamples,
		bytesPerSample: int(h.flags&wvBytesStoredMask) + 1,
		channels:       2,
		dsd:            h.flags&wvDSDFlag != 0,
	}
	if h.flags&wvMonoFlag != 0 {
		d.channels = 1
	}

	// The correction stream is optional; its blocks are checked in
	// lockstep during the drain.
	if cs, err := stream.Open(path+"c", buffered); err == nil {
		d.cs = cs
	}
	return d, nil
}

// Read validates one block of the main stream (and its correction
// counterpart) and returns the per-channel sample count of an initial
// block, or one for any other block so the drain keeps going. Errors
// accumulate as bad blocks and are reported once the walk reaches the
// end of the stream, the way libwavpack accumulates its error count.
func (d *WavPack) Read() (int64, error) {
	if d.finished {
		return d.finalize()
	}

	h, body, ok := d.nextBlock(d.s)
	if !ok {
		d.finished = true
		return d.finalize()
	}

	d.inspectBlock(h, body)

	if d.cs != nil && !d.wvcDone {
		d.checkCorrectionBlock(h)
	}

	var units int64 = 1
	if h.flags&wvInitialBlock != 0 && h.blockSamples > 0 {
		d.accumulated += uint64(h.blockSamples)
		units = int64(h.blockSamples)
	}
	return units, nil
}

// Total returns the declared per-channel sample count, zero when unknown.
func (d *WavPack) Total() uint64 {
	if d.declared < 0 {
		return 0
	}
	return uint64(d.declared)
}

// Close releases both streams.
func (d *WavPack) Close() error {
	if d.cs != nil {
		d.cs.Close()
	}
	return d.s.Close()
}

// finalize reconciles the walk: accumulated block errors take precedence
// over the sample accounting.
func (d *WavPack) finalize() (int64, error) {
	if d.finalized {
		return 0, nil
	}
	d.finalized = true

	if d.badBlocks > 0 {
		suffix := "K"
		if d.badBlocks > 1 {
			suffix = "KS"
		}
		return 0, errorf(FormatSpecific, "%d BAD_BLOC%s", d.badBlocks, suffix)
	}
	if d.declared >= 0 && d.accumulated != uint64(d.declared) {
		if d.accumulated < uint64(d.declared) {
			delta := uint64(d.declared) - d.accumulated
			return 0, errorf(SampleCountMismatch, "%d MISSING_SAMPL%s", delta, plural(delta))
		}
		delta := d.accumulated - uint64(d.declared)
		return 0, errorf(SampleCountMismatch, "%d EXTRA_SAMPL%s", delta, plural(delta))
	}
	return 0, nil
}

func plural(n uint64) string {
	if n == 1 {
		return "E"
	}
	return "ES"
}

// nextBlock reads the next block (header + body) from s. A bad magic, a
// version outside the supported range or an implausible size counts a
// bad block and resynchronizes to the next "wvpk" marker. ok is false at
// end of stream.
func (d *WavPack) nextBlock(s *stream.Stream) (wvHeader, []byte, bool) {
	for {
		var raw [wvHeaderSize]byte
		n, _ := io.ReadFull(s, raw[:])
		if n == 0 {
			return wvHeader{}, nil, false
		}
		if n != wvHeaderSize || string(raw[0:4]) != wvMagic {
			d.badBlocks++
			if !d.resyncBlock(s, int64(n)) {
				return wvHeader{}, nil, false
			}
			continue
		}

		h := parseWVHeader(raw[:])
		blockLen := int64(h.ckSize) + 8
		if h.version < wvMinVersion || h.version > wvMaxVersion ||
			blockLen < wvHeaderSize || blockLen > wvMaxBlockSize ||
			s.Tell()+blockLen-wvHeaderSize > s.Length() {
			d.badBlocks++
			if !d.resyncBlock(s, wvHeaderSize-4) {
				return wvHeader{}, nil, false
			}
			continue
		}

		body := make([]byte, blockLen-wvHeaderSize)
		if m, _ := io.ReadFull(s, body); m != len(body) {
			d.badBlocks++
			return wvHeader{}, nil, false
		}
		return h, append(raw[:], body...), true
	}
}

// resyncBlock scans forward for the next "wvpk" marker, starting just
// past the position where back bytes were consumed by a failed header
// read. Returns false when no further marker exists.
func (d *WavPack) resyncBlock(s *stream.Stream, back int64) bool {
	if _, err := s.Seek(-back+1, io.SeekCurrent); err != nil {
		return false
	}
	buf := make([]byte, 64*1024)
	for {
		start := s.Tell()
		n, _ := s.Read(buf)
		if n < len(wvMagic) {
			return false
		}
		if idx := bytes.Index(buf[:n], []byte(wvMagic)); idx >= 0 {
			_, err := s.Seek(start+int64(idx), io.SeekStart)
			return err == nil
		}
		// Overlap the window so a marker split across reads is found.
		if _, err := s.Seek(-int64(len(wvMagic)-1), io.SeekCurrent); err != nil {
			return false
		}
	}
}

// inspectBlock walks the metadata sub-blocks of one full block (header
// included), verifies the block checksum when present, and captures the
// declared MD5 from block zero.
func (d *WavPack) inspectBlock(h wvHeader, block []byte) {
	pos := wvHeaderSize
	for pos < len(block) {
		if pos+1 > len(block) {
			d.badBlocks++
			return
		}
		id := block[pos]
		var dataLen, headLen int
		if id&wvIDLarge != 0 {
			if pos+4 > len(block) {
				d.badBlocks++
				return
			}
			words := int(block[pos+1]) | int(block[pos+2])<<8 | int(block[pos+3])<<16
			dataLen = words * 2
			headLen = 4
		} else {
			if pos+2 > len(block) {
				d.badBlocks++
				return
			}
			dataLen = int(block[pos+1]) * 2
			headLen = 2
		}
		stored := dataLen
		if id&wvIDOddSize != 0 {
			dataLen--
		}
		if pos+headLen+stored > len(block) {
			d.badBlocks++
			return
		}
		data := block[pos+headLen : pos+headLen+dataLen]

		switch id &^ wvIDOddSize {
		case wvIDMD5Checksum:
			if h.blockIndex == 0 {
				if len(data) != 16 {
					d.badBlocks++
				} else {
					d.hasMD5 = true
					copy(d.declaredMD5[:], data)
				}
			}
		case wvIDBlockChecksum:
			if !verifyBlockChecksum(block[:pos+headLen], data) {
				d.badBlocks++
			}
		}
		pos += headLen + stored
	}
}

// verifyBlockChecksum checks a 2- or 4-byte block checksum sub-block. The
// covered region is every block byte before the stored checksum value,
// folded as 16-bit little-endian words with csum = csum*3 + word from an
// all-ones seed.
func verifyBlockChecksum(covered, stored []byte) bool {
	if len(stored) != 2 && len(stored) != 4 {
		return false
	}
	csum := uint32(0xFFFFFFFF)
	for i := 0; i+1 < len(covered); i += 2 {
		word := uint32(covered[i]) | uint32(covered[i+1])<<8
		csum = csum*3 + word
	}
	if len(stored) == 2 {
		folded := uint16(csum>>16) ^ uint16(csum)
		return folded == binary.LittleEndian.Uint16(stored)
	}
	return csum == binary.LittleEndian.Uint32(stored)
}

// checkCorrectionBlock advances the correction stream by one block and
// verifies it pairs with the main block by index and sample count.
func (d *WavPack) checkCorrectionBlock(h wvHeader) {
	ch, body, ok := d.nextBlock(d.cs)
	if !ok {
		// Correction data ran out before the main stream did.
		d.badBlocks++
		d.wvcDone = true
		return
	}
	d.inspectBlock(ch, body)
	if ch.blockIndex != h.blockIndex || ch.blockSamples != h.blockSamples {
		d.badBlocks++
	}
}
