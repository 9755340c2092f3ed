package flv

import (
	"io"

	"hdsfetch/internal/fault"
)

const (
	signature     = "FLV"
	version       = 1
	flagAudio     = 1 << 2
	flagVideo     = 1 << 0
	fileHeaderLen = 9
)

// Writer writes an FLV stream and tracks how many bytes have been written,
// so the output size is known without seeking the destination.
type Writer struct {
	w io.Writer
	n uint64
}

// NewWriter wraps w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Write implements io.Writer. Raw fragment payloads go through here.
func (w *Writer) Write(p []byte) (int, error) {
	n, err := w.w.Write(p)
	w.n += uint64(n)
	return n, err
}

// Size returns the number of bytes written so far.
func (w *Writer) Size() uint64 { return w.n }

// WriteHeader writes the file header followed by the zero "previous tag
// size" that precedes the first tag.
func (w *Writer) WriteHeader(audio, video bool) error {
	buf := make([]byte, 0, fileHeaderLen+TagTrailerSize)
	buf = append(buf, signature...)
	buf = append(buf, version)
	var flags byte
	if audio {
		flags |= flagAudio
	}
	if video {
		flags |= flagVideo
	}
	buf = append(buf, flags)
	buf = be.AppendUint32(buf, fileHeaderLen)
	buf = be.AppendUint32(buf, 0)
	_, err := w.Write(buf)
	return err
}

// WriteScriptData writes payload as a single script data tag with a zero
// timestamp.
func (w *Writer) WriteScriptData(payload []byte) error {
	if len(payload) > maxTagLength {
		return fault.Format("", int64(w.n), "script data of %d bytes does not fit a tag", len(payload))
	}
	_, err := w.Write(AppendTag(nil, TagScriptData, 0, payload))
	return err
}

// HeaderSize is the number of bytes WriteHeader produces.
const HeaderSize = fileHeaderLen + TagTrailerSize

// ScriptDataSize is the number of bytes WriteScriptData produces for a
// payload of n bytes.
func ScriptDataSize(n int) int {
	return TagHeaderSize + n + TagTrailerSize
}
