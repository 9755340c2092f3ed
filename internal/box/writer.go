package box

import (
	"io"
)

// WriteHeader frames a payload of the given size. The compact 32-bit form is
// used whenever it can represent the total size, the extended form otherwise.
func WriteHeader(w io.Writer, t Type, payload uint64) (int, error) {
	var buf [extendedHeaderSize]byte
	if payload <= MaxCompactPayload {
		be.PutUint32(buf[0:4], uint32(payload+compactHeaderSize))
		copy(buf[4:8], t[:])
		return w.Write(buf[:compactHeaderSize])
	}
	be.PutUint32(buf[0:4], 1)
	copy(buf[4:8], t[:])
	be.PutUint64(buf[8:16], payload+extendedHeaderSize)
	return w.Write(buf[:])
}

// Write frames and writes a complete box.
func Write(w io.Writer, t Type, payload []byte) (int, error) {
	n, err := WriteHeader(w, t, uint64(len(payload)))
	if err != nil {
		return n, err
	}
	m, err := w.Write(payload)
	return n + m, err
}
