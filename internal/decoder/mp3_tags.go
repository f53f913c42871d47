package decoder

import (
	"bytes"
	"encoding/binary"
	"io"
	"strconv"
	"strings"
)

// Tag detection for the MP3 walker. A leading ID3v2 header and any
// trailing ID3v1 / LYRICS3v1 / LYRICS3v2 / APE tags are measured so the
// frame walk covers only the audio region. Malformed tags are recorded on
// pendingErr and surface only if the walk subsequently fails.

const (
	id3v1TagSize = 128

	apeFooterSize      = 32
	apeFooterID        = "APETAGEX"
	apeHasHeaderFlag   = 0x80000000
	lyricsSearchWindow = 5100
)

// id3v2HeaderLength reads the first ten bytes and returns the total byte
// length of an ID3v2 tag, or zero when absent. A present marker whose
// length fields fail validation records BAD_ID3v2_TAG.
func (d *MP3) id3v2HeaderLength() int64 {
	var buf [10]byte
	if n, _ := io.ReadFull(d.s, buf[:]); n != 10 {
		return 0
	}
	if buf[0] != 'I' || buf[1] != 'D' || buf[2] != '3' {
		return 0
	}

	var length int64
	if buf[3] < 0xFF && buf[4] < 0xFF &&
		buf[6] < 0x80 && buf[7] < 0x80 && buf[8] < 0x80 && buf[9] < 0x80 {
		length = int64(buf[6])<<21 | int64(buf[7])<<14 | int64(buf[8])<<7 | int64(buf[9])
		// ID3v2.4 with a footer carries ten extra trailing bytes.
		if buf[3] == 4 && buf[5]&0x10 != 0 {
			length += 20
		} else {
			length += 10
		}
	}
	if length == 0 {
		d.pendingErr = newError(BadMetadata, "BAD_ID3v2_TAG")
	}
	return length
}

// tagFooterLength measures the total length of all trailing tags.
func (d *MP3) tagFooterLength() int64 {
	// offset accumulates negatively from the end of the file.
	var offset int64

	// ID3v1: a fixed 128-byte block ending the file, starting "TAG".
	if _, err := d.s.Seek(-id3v1TagSize, io.SeekEnd); err == nil {
		var tag [3]byte
		if n, _ := io.ReadFull(d.s, tag[:]); n == 3 && string(tag[:]) == "TAG" {
			offset -= id3v1TagSize
			if _, err := d.s.Seek(offset-9, io.SeekEnd); err == nil {
				offset -= d.lyricsTagLength()
			}
		}
	}

	// APE: a 32-byte footer whose Size field covers the tag body
	// (excluding an optional 32-byte header flagged in Flags).
	if _, err := d.s.Seek(offset-apeFooterSize, io.SeekEnd); err == nil {
		var footer [apeFooterSize]byte
		if n, _ := io.ReadFull(d.s, footer[:]); n == apeFooterSize && string(footer[0:8]) == apeFooterID {
			size := int64(binary.LittleEndian.Uint32(footer[12:16]))
			flags := binary.LittleEndian.Uint32(footer[20:24])
			if size < apeFooterSize || size > d.s.Length() {
				d.pendingErr = newError(BadMetadata, "BAD_APE_TAG")
			} else {
				offset -= size
				if flags&apeHasHeaderFlag != 0 {
					offset -= apeFooterSize
				}
				if _, err := d.s.Seek(offset-9, io.SeekEnd); err == nil {
					offset -= d.lyricsTagLength()
				}
			}
		}
	}

	return -offset
}

// lyricsTagLength measures a LYRICS3v1 or LYRICS3v2 block. The stream is
// positioned nine bytes before the end of the region under inspection.
func (d *MP3) lyricsTagLength() int64 {
	var name [9]byte
	if n, _ := io.ReadFull(d.s, name[:]); n != 9 {
		return 0
	}

	// LYRICS3v1 ends "LYRICSEND" and begins "LYRICSBEGIN" within the
	// preceding 5100 bytes.
	if string(name[:]) == "LYRICSEND" {
		if _, err := d.s.Seek(-lyricsSearchWindow, io.SeekCurrent); err != nil {
			return 0
		}
		window := make([]byte, lyricsSearchWindow)
		if n, _ := io.ReadFull(d.s, window); n != lyricsSearchWindow {
			return 0
		}
		idx := bytes.Index(window, []byte("LYRICSBEGIN"))
		if idx < 0 {
			d.pendingErr = newError(BadMetadata, "BAD_LYRICS3v1_TAG")
			return 0
		}
		return int64(lyricsSearchWindow - idx)
	}

	// LYRICS3v2 ends "LYRICS200" preceded by a six-digit ASCII length of
	// the block from "LYRICSBEGIN" up to, not including, the size digits.
	if string(name[:]) == "LYRICS200" {
		var digits [6]byte
		if _, err := d.s.Seek(-15, io.SeekCurrent); err != nil {
			return 0
		}
		if n, _ := io.ReadFull(d.s, digits[:]); n != 6 {
			return 0
		}
		length, err := strconv.Atoi(strings.TrimSpace(string(digits[:])))
		if err != nil || length == 0 {
			return 0
		}
		var begin [11]byte
		if _, err := d.s.Seek(-int64(6+length), io.SeekCurrent); err == nil {
			if n, _ := io.ReadFull(d.s, begin[:]); n == 11 && string(begin[:]) == "LYRICSBEGIN" {
				return int64(length) + 15
			}
		}
		d.pendingErr = newError(BadMetadata, "BAD_LYRICS3v2_TAG")
	}
	return 0
}
