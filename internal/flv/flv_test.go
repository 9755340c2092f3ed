package flv_test

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"

	"hdsfetch/internal/fault"
	"hdsfetch/internal/flv"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func amfString(s string) []byte {
	b := binary.BigEndian.AppendUint16(nil, uint16(len(s)))
	return append(b, s...)
}

func amfNumber(v float64) []byte {
	return binary.BigEndian.AppendUint64([]byte{0}, math.Float64bits(v))
}

// onMetaData builds a script data body with an ECMA array of numbers.
func onMetaData(fields map[string]float64, order ...string) []byte {
	b := append([]byte{2}, amfString("onMetaData")...)
	b = append(b, 8)
	b = binary.BigEndian.AppendUint32(b, uint32(len(order)))
	for _, k := range order {
		b = append(b, amfString(k)...)
		b = append(b, amfNumber(fields[k])...)
	}
	return append(b, 0, 0, 9)
}

func TestWriter_Header(t *testing.T) {
	var buf bytes.Buffer
	w := flv.NewWriter(&buf)
	require.NoError(t, w.WriteHeader(true, true))

	assert.Equal(t, []byte{'F', 'L', 'V', 1, 0x05, 0, 0, 0, 9, 0, 0, 0, 0}, buf.Bytes())
	assert.Equal(t, uint64(flv.HeaderSize), w.Size())

	buf.Reset()
	w = flv.NewWriter(&buf)
	require.NoError(t, w.WriteHeader(true, false))
	assert.Equal(t, byte(0x04), buf.Bytes()[4])
}

func TestWriter_ScriptData(t *testing.T) {
	var buf bytes.Buffer
	w := flv.NewWriter(&buf)
	payload := []byte("metadata!")
	require.NoError(t, w.WriteScriptData(payload))

	out := buf.Bytes()
	require.Len(t, out, flv.ScriptDataSize(len(payload)))
	assert.Equal(t, byte(18), out[0])
	assert.Equal(t, []byte{0, 0, 9}, out[1:4], "24-bit length")
	assert.Equal(t, []byte{0, 0, 0, 0}, out[4:8], "timestamp and extension")
	assert.Equal(t, []byte{0, 0, 0}, out[8:11], "stream id")
	assert.Equal(t, payload, out[11:20])
	assert.Equal(t, uint32(20), binary.BigEndian.Uint32(out[20:]))
	assert.Equal(t, uint64(24), w.Size())
}

func TestInspectTag(t *testing.T) {
	cases := []struct {
		name      string
		typ       flv.TagType
		body      []byte
		seq       bool
		inspected int
	}{
		{"aac sequence header", flv.TagAudio, []byte{0xaf, 0x00, 0x12, 0x10}, true, 2},
		{"aac raw frame", flv.TagAudio, []byte{0xaf, 0x01, 0x21}, false, 2},
		{"mp3 frame", flv.TagAudio, []byte{0x2f, 0x00, 0x00}, false, 1},
		{"avc sequence header", flv.TagVideo, []byte{0x17, 0x00, 0, 0, 0, 1}, true, 2},
		{"avc nalu", flv.TagVideo, []byte{0x27, 0x01, 0, 0, 0}, false, 2},
		{"vp6 frame", flv.TagVideo, []byte{0x14, 0x00}, false, 1},
		{"empty audio", flv.TagAudio, nil, false, 0},
		{"script data", flv.TagScriptData, []byte{5}, false, 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tag := flv.AppendTag(nil, tc.typ, 1000, tc.body)
			r := bytes.NewReader(tag)

			in, err := flv.InspectTag(r)
			require.NoError(t, err)
			assert.Equal(t, tc.typ, in.Header.Type)
			assert.Equal(t, uint32(len(tc.body)), in.Header.Length)
			assert.Equal(t, uint32(1000), in.Header.Timestamp)
			assert.Equal(t, tc.seq, in.SequenceHeader)
			assert.Len(t, in.Consumed, flv.TagHeaderSize+tc.inspected)
			assert.Equal(t, uint64(r.Len()), in.Remaining(), "remaining must match unread bytes")
		})
	}
}

func TestInspectTag_UnknownType(t *testing.T) {
	tag := flv.AppendTag(nil, flv.TagType(7), 0, []byte{1})
	_, err := flv.InspectTag(bytes.NewReader(tag))
	assert.ErrorIs(t, err, fault.ErrFormat)
}

func TestInspectTag_Truncated(t *testing.T) {
	tag := flv.AppendTag(nil, flv.TagVideo, 0, []byte{0x17, 0x00})
	_, err := flv.InspectTag(bytes.NewReader(tag[:12]))
	assert.ErrorIs(t, err, fault.ErrFormat)
}

func TestParseScriptData(t *testing.T) {
	body := onMetaData(map[string]float64{"duration": 12.5, "width": 640}, "duration", "width")

	name, value, err := flv.ParseScriptData(bytes.NewReader(body))
	require.NoError(t, err)
	assert.Equal(t, "onMetaData", name)
	assert.Equal(t, map[string]any{"duration": 12.5, "width": 640.0}, value)

	d, ok := flv.MetadataDuration(bytes.NewReader(body))
	assert.True(t, ok)
	assert.Equal(t, 12.5, d)
}

func TestParseScriptData_Values(t *testing.T) {
	body := append([]byte{2}, amfString("event")...)
	body = append(body, 10, 0, 0, 0, 4)
	body = append(body, 1, 1)
	body = append(body, 2)
	body = append(body, amfString("text")...)
	body = append(body, 5)
	body = append(body, 3)
	body = append(body, amfString("k")...)
	body = append(body, 1, 0)
	body = append(body, 0, 0, 9)

	name, value, err := flv.ParseScriptData(bytes.NewReader(body))
	require.NoError(t, err)
	assert.Equal(t, "event", name)
	assert.Equal(t, []any{true, "text", nil, map[string]any{"k": false}}, value)
}

func TestParseScriptData_UnknownMarker(t *testing.T) {
	body := append([]byte{2}, amfString("x")...)
	body = append(body, 0x11)
	_, _, err := flv.ParseScriptData(bytes.NewReader(body))
	assert.ErrorIs(t, err, fault.ErrFormat)

	_, ok := flv.MetadataDuration(bytes.NewReader(body))
	assert.False(t, ok)
}

func TestProbe(t *testing.T) {
	var buf bytes.Buffer
	w := flv.NewWriter(&buf)
	require.NoError(t, w.WriteHeader(true, true))
	require.NoError(t, w.WriteScriptData(onMetaData(map[string]float64{"duration": 3}, "duration")))

	var payload []byte
	payload = flv.AppendTag(payload, flv.TagAudio, 0, []byte{0xaf, 0x00, 0x12, 0x10})
	payload = flv.AppendTag(payload, flv.TagVideo, 0, []byte{0x17, 0x00, 1, 2, 3})
	payload = flv.AppendTag(payload, flv.TagVideo, 40, []byte{0x27, 0x01, 4, 5})
	_, err := w.Write(payload)
	require.NoError(t, err)

	s, err := flv.Probe(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, uint8(1), s.Version)
	assert.True(t, s.Audio)
	assert.True(t, s.Video)
	assert.Equal(t, 1, s.Tags[flv.TagScriptData])
	assert.Equal(t, 1, s.Tags[flv.TagAudio])
	assert.Equal(t, 2, s.Tags[flv.TagVideo])
	assert.Equal(t, uint32(40), s.LastTimestamp)
	assert.Equal(t, 3.0, s.Metadata["duration"])
	assert.Equal(t, int64(w.Size()), s.Size)
}

func TestProbe_BadSignature(t *testing.T) {
	_, err := flv.Probe(bytes.NewReader([]byte("FLX\x01\x05\x00\x00\x00\x09\x00\x00\x00\x00")))
	assert.ErrorIs(t, err, fault.ErrFormat)
}
