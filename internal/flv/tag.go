// Package flv writes and inspects FLV containers.
//
// Fragment payloads delivered over HDS are already sequences of FLV tags, so
// the package only needs to produce the file header and an optional script
// data tag, and to peek at the first bytes of audio and video tags to spot
// codec sequence headers.
package flv

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"hdsfetch/internal/fault"
)

var be = binary.BigEndian

// TagType identifies the kind of an FLV tag.
type TagType uint8

const (
	TagAudio      TagType = 8
	TagVideo      TagType = 9
	TagScriptData TagType = 18
)

func (t TagType) String() string {
	switch t {
	case TagAudio:
		return "audio"
	case TagVideo:
		return "video"
	case TagScriptData:
		return "scriptdata"
	}
	return fmt.Sprintf("tag(%d)", uint8(t))
}

const (
	// TagHeaderSize is the size of a tag header: type, 24-bit length,
	// 24-bit timestamp, timestamp extension and 24-bit stream id.
	TagHeaderSize = 11
	// TagTrailerSize is the "previous tag size" field following every tag.
	TagTrailerSize = 4

	maxTagLength = 1<<24 - 1
)

// Codec identifiers relevant to sequence header detection.
const (
	SoundFormatAAC = 10
	VideoCodecAVC  = 7

	aacSequenceHeader = 0
	avcSequenceHeader = 0
)

// TagHeader is a decoded FLV tag header.
type TagHeader struct {
	Type      TagType
	Length    uint32 // body length, excluding header and trailer
	Timestamp uint32
	StreamID  uint32
}

// ReadTagHeader reads a tag header. It returns io.EOF if the stream ends
// before the first byte. Tag types other than audio, video and script data
// are rejected.
func ReadTagHeader(r io.Reader) (TagHeader, error) {
	var buf [TagHeaderSize]byte
	n, err := io.ReadFull(r, buf[:])
	if n == 0 && err == io.EOF {
		return TagHeader{}, io.EOF
	}
	if err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return TagHeader{}, fault.Format("", 0, "truncated tag header (%d of %d bytes)", n, TagHeaderSize)
		}
		return TagHeader{}, fmt.Errorf("read tag header: %w", err)
	}
	return decodeTagHeader(buf[:])
}

func decodeTagHeader(buf []byte) (TagHeader, error) {
	h := TagHeader{
		Type:      TagType(buf[0]),
		Length:    uint24(buf[1:4]),
		Timestamp: uint24(buf[4:7]) | uint32(buf[7])<<24,
		StreamID:  uint24(buf[8:11]),
	}
	switch h.Type {
	case TagAudio, TagVideo, TagScriptData:
		return h, nil
	}
	return TagHeader{}, fault.Format("", 0, "unknown FLV tag type %d", buf[0])
}

// AppendTag appends a complete tag (header, body and trailing tag size) to dst.
func AppendTag(dst []byte, t TagType, timestamp uint32, body []byte) []byte {
	var hdr [TagHeaderSize]byte
	hdr[0] = byte(t)
	putUint24(hdr[1:4], uint32(len(body)))
	putUint24(hdr[4:7], timestamp&0xffffff)
	hdr[7] = byte(timestamp >> 24)
	// stream id is always zero
	dst = append(dst, hdr[:]...)
	dst = append(dst, body...)
	return be.AppendUint32(dst, uint32(TagHeaderSize+len(body)))
}

// Inspection is the result of peeking at the start of a tag.
type Inspection struct {
	Header TagHeader
	// SequenceHeader is set for AAC and AVC decoder configuration packets.
	SequenceHeader bool
	// Consumed holds every byte read from the stream, header included.
	Consumed []byte
}

// Remaining returns the number of bytes left in the tag after the inspected
// prefix, including the trailing tag size field.
func (in Inspection) Remaining() uint64 {
	body := len(in.Consumed) - TagHeaderSize
	return uint64(in.Header.Length) - uint64(body) + TagTrailerSize
}

// InspectTag reads a tag header and just enough of the body to tell whether
// the tag is a codec sequence header. At most two body bytes are read.
func InspectTag(r io.Reader) (Inspection, error) {
	buf := make([]byte, TagHeaderSize, TagHeaderSize+2)
	if _, err := io.ReadFull(r, buf); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return Inspection{}, fault.Format("", 0, "truncated tag header")
		}
		return Inspection{}, fmt.Errorf("read tag header: %w", err)
	}
	h, err := decodeTagHeader(buf)
	if err != nil {
		return Inspection{}, err
	}
	in := Inspection{Header: h}

	next := func() (byte, bool, error) {
		if uint32(len(buf)-TagHeaderSize) >= h.Length {
			return 0, false, nil
		}
		var b [1]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return 0, false, fault.Format("", 0, "truncated %s tag body", h.Type)
			}
			return 0, false, fmt.Errorf("read %s tag body: %w", h.Type, err)
		}
		buf = append(buf, b[0])
		return b[0], true, nil
	}

	switch h.Type {
	case TagAudio:
		flags, ok, err := next()
		if err != nil {
			return Inspection{}, err
		}
		if ok && flags>>4 == SoundFormatAAC {
			packetType, ok, err := next()
			if err != nil {
				return Inspection{}, err
			}
			in.SequenceHeader = ok && packetType == aacSequenceHeader
		}
	case TagVideo:
		flags, ok, err := next()
		if err != nil {
			return Inspection{}, err
		}
		if ok && flags&0x0f == VideoCodecAVC {
			packetType, ok, err := next()
			if err != nil {
				return Inspection{}, err
			}
			in.SequenceHeader = ok && packetType == avcSequenceHeader
		}
	}

	in.Consumed = buf
	return in, nil
}

func uint24(b []byte) uint32 {
	return uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])
}

func putUint24(b []byte, v uint32) {
	b[0] = byte(v >> 16)
	b[1] = byte(v >> 8)
	b[2] = byte(v)
}
