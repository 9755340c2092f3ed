package flv

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"hdsfetch/internal/fault"
)

// Summary describes an FLV stream walked by Probe.
type Summary struct {
	Version       uint8
	Audio         bool
	Video         bool
	Tags          map[TagType]int
	LastTimestamp uint32
	// Metadata holds the first onMetaData object, if any.
	Metadata map[string]any
	Size     int64
}

// Probe walks the header and every tag of an FLV stream.
func Probe(r io.Reader) (*Summary, error) {
	cr := &countingReader{r: r}

	var hdr [fileHeaderLen]byte
	if _, err := io.ReadFull(cr, hdr[:]); err != nil {
		return nil, fault.Format("", cr.n, "truncated FLV header")
	}
	if string(hdr[:3]) != signature {
		return nil, fault.Format("", 0, "bad FLV signature %q", hdr[:3])
	}
	s := &Summary{
		Version: hdr[3],
		Audio:   hdr[4]&flagAudio != 0,
		Video:   hdr[4]&flagVideo != 0,
		Tags:    make(map[TagType]int),
	}
	offset := be.Uint32(hdr[5:9])
	if offset < fileHeaderLen {
		return nil, fault.Format("", 5, "body offset %d inside header", offset)
	}
	if _, err := io.CopyN(io.Discard, cr, int64(offset-fileHeaderLen)); err != nil {
		return nil, fault.Format("", cr.n, "truncated FLV header")
	}

	var prev [TagTrailerSize]byte
	for {
		if _, err := io.ReadFull(cr, prev[:]); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fault.Format("", cr.n, "truncated previous tag size")
		}
		start := cr.n
		h, err := ReadTagHeader(cr)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("tag at offset %d: %w", start, err)
		}
		s.Tags[h.Type]++
		s.LastTimestamp = h.Timestamp

		body := io.LimitReader(cr, int64(h.Length))
		if h.Type == TagScriptData && s.Metadata == nil {
			raw, err := io.ReadAll(body)
			if err != nil {
				return nil, err
			}
			if name, value, err := ParseScriptData(bytes.NewReader(raw)); err == nil && name == "onMetaData" {
				if m, ok := value.(map[string]any); ok {
					s.Metadata = m
				}
			}
		}
		if _, err := io.Copy(io.Discard, body); err != nil {
			return nil, err
		}
		if cr.n != start+TagHeaderSize+int64(h.Length) {
			return nil, fault.Format("", start, "truncated %s tag", h.Type)
		}
	}
	s.Size = cr.n
	return s, nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
