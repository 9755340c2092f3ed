package flv

import (
	"errors"
	"fmt"
	"io"
	"math"

	"hdsfetch/internal/fault"
)

// AMF0 value markers understood by the script data parser.
const (
	markerNumber      = 0
	markerBoolean     = 1
	markerString      = 2
	markerObject      = 3
	markerNull        = 5
	markerECMAArray   = 8
	markerObjectEnd   = 9
	markerStrictArray = 10
)

const maxScriptDepth = 32

// objectEnd terminates an object or ECMA array.
type objectEnd struct{}

// ParseScriptData decodes a script data body: a name value followed by a
// payload value. Numbers decode to float64, booleans to bool, strings to
// string, objects and ECMA arrays to map[string]any and strict arrays to
// []any. Unknown markers are rejected.
func ParseScriptData(r io.Reader) (string, any, error) {
	p := &scriptParser{r: r}
	name, err := p.value(0)
	if err != nil {
		return "", nil, err
	}
	s, ok := name.(string)
	if !ok {
		return "", nil, fault.Format("", p.off, "script data name is %T, not a string", name)
	}
	value, err := p.value(0)
	if err != nil {
		return "", nil, err
	}
	if _, ok := value.(objectEnd); ok {
		return "", nil, fault.Format("", p.off, "unexpected object end marker")
	}
	return s, value, nil
}

// MetadataDuration extracts onMetaData.duration, in seconds, from a script
// data body.
func MetadataDuration(body io.Reader) (float64, bool) {
	name, value, err := ParseScriptData(body)
	if err != nil || name != "onMetaData" {
		return 0, false
	}
	fields, ok := value.(map[string]any)
	if !ok {
		return 0, false
	}
	d, ok := fields["duration"].(float64)
	if !ok || d <= 0 {
		return 0, false
	}
	return d, true
}

type scriptParser struct {
	r   io.Reader
	off int64
	buf [8]byte
}

func (p *scriptParser) read(n int) ([]byte, error) {
	got, err := io.ReadFull(p.r, p.buf[:n])
	p.off += int64(got)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fault.Format("", p.off, "truncated script data")
		}
		return nil, fmt.Errorf("read script data: %w", err)
	}
	return p.buf[:n], nil
}

func (p *scriptParser) value(depth int) (any, error) {
	if depth > maxScriptDepth {
		return nil, fault.Format("", p.off, "script data nested deeper than %d", maxScriptDepth)
	}
	b, err := p.read(1)
	if err != nil {
		return nil, err
	}
	marker := b[0]

	switch marker {
	case markerNumber:
		b, err := p.read(8)
		if err != nil {
			return nil, err
		}
		return math.Float64frombits(be.Uint64(b)), nil
	case markerBoolean:
		b, err := p.read(1)
		if err != nil {
			return nil, err
		}
		return b[0] != 0, nil
	case markerString:
		return p.str()
	case markerObject:
		return p.object(depth)
	case markerNull:
		return nil, nil
	case markerECMAArray:
		// approximate element count, not trusted
		if _, err := p.read(4); err != nil {
			return nil, err
		}
		return p.object(depth)
	case markerObjectEnd:
		return objectEnd{}, nil
	case markerStrictArray:
		b, err := p.read(4)
		if err != nil {
			return nil, err
		}
		n := be.Uint32(b)
		items := make([]any, 0, min(n, 1024))
		for i := uint32(0); i < n; i++ {
			v, err := p.value(depth + 1)
			if err != nil {
				return nil, err
			}
			if _, ok := v.(objectEnd); ok {
				return nil, fault.Format("", p.off, "object end marker inside strict array")
			}
			items = append(items, v)
		}
		return items, nil
	}
	return nil, fault.Format("", p.off-1, "unknown script data value marker %d", marker)
}

func (p *scriptParser) str() (string, error) {
	b, err := p.read(2)
	if err != nil {
		return "", err
	}
	n := int(be.Uint16(b))
	s := make([]byte, n)
	got, err := io.ReadFull(p.r, s)
	p.off += int64(got)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return "", fault.Format("", p.off, "truncated script data string")
		}
		return "", fmt.Errorf("read script data: %w", err)
	}
	return string(s), nil
}

func (p *scriptParser) object(depth int) (map[string]any, error) {
	fields := make(map[string]any)
	for {
		key, err := p.str()
		if err != nil {
			return nil, err
		}
		v, err := p.value(depth + 1)
		if err != nil {
			return nil, err
		}
		if _, ok := v.(objectEnd); ok {
			return fields, nil
		}
		fields[key] = v
	}
}
