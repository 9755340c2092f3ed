package box

import (
	"errors"
	"fmt"
	"io"
	"math"

	"hdsfetch/internal/fault"
)

// Reader reads boxes sequentially from a stream and counts every byte it
// consumes, so that callers can check their byte accounting against the
// declared payload sizes.
type Reader struct {
	r   io.Reader
	off int64
	hdr [8]byte
}

// NewReader creates a Reader over r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

// Read implements io.Reader and advances the offset.
func (r *Reader) Read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	r.off += int64(n)
	return n, err
}

// Offset returns the number of bytes consumed so far.
func (r *Reader) Offset() int64 { return r.off }

// Next reads the next box header. It returns io.EOF when the stream ends
// cleanly before the first byte of a header.
func (r *Reader) Next() (Header, error) {
	start := r.off
	n, err := io.ReadFull(r, r.hdr[:4])
	if n == 0 && err == io.EOF {
		return Header{}, io.EOF
	}
	if err != nil {
		return Header{}, r.shortRead("", start, "box size", err)
	}
	size := uint64(be.Uint32(r.hdr[:4]))

	var h Header
	if _, err := io.ReadFull(r, h.Type[:]); err != nil {
		return Header{}, r.shortRead("", start, "box type", err)
	}

	if size == 1 {
		if _, err := io.ReadFull(r, r.hdr[:8]); err != nil {
			return Header{}, r.shortRead(h.Type.String(), start, "extended box size", err)
		}
		ext := be.Uint64(r.hdr[:8])
		if ext < extendedHeaderSize {
			return Header{}, fault.Format(h.Type.String(), start, "extended size %d is smaller than its header", ext)
		}
		h.Size = ext - extendedHeaderSize
		return h, nil
	}

	if size < compactHeaderSize {
		return Header{}, fault.Format(h.Type.String(), start, "size %d is smaller than its header", size)
	}
	h.Size = size - compactHeaderSize
	return h, nil
}

// Skip discards the payload of h.
func (r *Reader) Skip(h Header) error {
	return r.Discard(h.Size)
}

// Discard consumes exactly n bytes.
func (r *Reader) Discard(n uint64) error {
	return r.CopyN(io.Discard, n)
}

// CopyN forwards exactly n bytes to w.
func (r *Reader) CopyN(w io.Writer, n uint64) error {
	if n > math.MaxInt64 {
		return fault.Format("", r.off, "length %d out of range", n)
	}
	start := r.off
	copied, err := io.CopyN(w, r, int64(n))
	if err == io.EOF {
		return fault.Format("", start, "premature end of stream: wanted %d bytes, got %d", n, copied)
	}
	if err != nil {
		return fmt.Errorf("copy %d bytes at offset %d: %w", n, start, err)
	}
	return nil
}

// Uint8 reads one byte.
func (r *Reader) Uint8() (uint8, error) {
	if err := r.fill(1); err != nil {
		return 0, err
	}
	return r.hdr[0], nil
}

// Uint32 reads a big-endian 32-bit integer.
func (r *Reader) Uint32() (uint32, error) {
	if err := r.fill(4); err != nil {
		return 0, err
	}
	return be.Uint32(r.hdr[:4]), nil
}

// Uint64 reads a big-endian 64-bit integer.
func (r *Reader) Uint64() (uint64, error) {
	if err := r.fill(8); err != nil {
		return 0, err
	}
	return be.Uint64(r.hdr[:8]), nil
}

// CString reads a null-terminated string. The terminator is consumed but
// not returned.
func (r *Reader) CString() (string, error) {
	start := r.off
	var buf []byte
	for {
		if err := r.fill(1); err != nil {
			return "", r.shortRead("", start, "string", err)
		}
		if r.hdr[0] == 0 {
			return string(buf), nil
		}
		buf = append(buf, r.hdr[0])
	}
}

func (r *Reader) fill(n int) error {
	start := r.off
	if _, err := io.ReadFull(r, r.hdr[:n]); err != nil {
		return r.shortRead("", start, fmt.Sprintf("%d-byte field", n), err)
	}
	return nil
}

func (r *Reader) shortRead(box string, offset int64, what string, err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fault.Format(box, offset, "truncated %s", what)
	}
	return fmt.Errorf("read %s at offset %d: %w", what, offset, err)
}
