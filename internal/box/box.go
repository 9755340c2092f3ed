// Package box implements the length-prefixed box framing shared by HDS
// bootstrap data and fragment responses.
//
// A box starts with a 4-byte big-endian size and a 4-byte ASCII type. A size
// of 1 means an 8-byte extended size follows the type. Both forms count the
// header itself, so the payload is size-8 or extended-16 bytes.
package box

import (
	"encoding/binary"
	"math"
)

var be = binary.BigEndian

// Type is a 4-byte box type identifier.
type Type [4]byte

func (t Type) String() string {
	return string(t[:])
}

// Known box types.
var (
	TypeAbst = Type{'a', 'b', 's', 't'} // bootstrap info
	TypeAsrt = Type{'a', 's', 'r', 't'} // segment run table
	TypeAfrt = Type{'a', 'f', 'r', 't'} // fragment run table
	TypeAfra = Type{'a', 'f', 'r', 'a'} // fragment random access
	TypeMdat = Type{'m', 'd', 'a', 't'}
	TypeMoof = Type{'m', 'o', 'o', 'f'}
	TypeFree = Type{'f', 'r', 'e', 'e'}
	TypeSkip = Type{'s', 'k', 'i', 'p'}
)

const (
	compactHeaderSize  = 8
	extendedHeaderSize = 16

	// MaxCompactPayload is the largest payload that fits the 32-bit size field.
	MaxCompactPayload = math.MaxUint32 - compactHeaderSize
)

// Header is a decoded box header. Size is the payload size, excluding the
// header bytes.
type Header struct {
	Type Type
	Size uint64
}

// HeaderSize returns the number of header bytes used to frame a payload of
// the given size.
func HeaderSize(payload uint64) int {
	if payload <= MaxCompactPayload {
		return compactHeaderSize
	}
	return extendedHeaderSize
}
