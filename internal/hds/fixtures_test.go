package hds_test

import (
	"bytes"
	"encoding/binary"

	"hdsfetch/internal/box"
	"hdsfetch/internal/hds"

	"github.com/samber/mo"
)

func mkbox(t string, payload []byte) []byte {
	var buf bytes.Buffer
	var typ box.Type
	copy(typ[:], t)
	if _, err := box.Write(&buf, typ, payload); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

func cstr(s string) []byte { return append([]byte(s), 0) }

func strTable(entries ...string) []byte {
	b := []byte{byte(len(entries))}
	for _, e := range entries {
		b = append(b, cstr(e)...)
	}
	return b
}

func asrt(qualities []string, runs ...hds.SegmentRun) []byte {
	p := []byte{0, 0, 0, 0}
	p = append(p, strTable(qualities...)...)
	p = binary.BigEndian.AppendUint32(p, uint32(len(runs)))
	for _, r := range runs {
		p = binary.BigEndian.AppendUint32(p, r.FirstSegment)
		p = binary.BigEndian.AppendUint32(p, r.FragmentsPerSegment)
	}
	return mkbox("asrt", p)
}

func afrt(timescale uint32, qualities []string, runs ...hds.FragmentRun) []byte {
	p := []byte{0, 0, 0, 0}
	p = binary.BigEndian.AppendUint32(p, timescale)
	p = append(p, strTable(qualities...)...)
	p = binary.BigEndian.AppendUint32(p, uint32(len(runs)))
	for _, r := range runs {
		p = binary.BigEndian.AppendUint32(p, r.FirstFragment)
		p = binary.BigEndian.AppendUint64(p, r.Timestamp)
		p = binary.BigEndian.AppendUint32(p, r.Duration)
		if r.Duration == 0 {
			p = append(p, byte(r.Discontinuity.OrEmpty()))
		}
	}
	return mkbox("afrt", p)
}

type abstFixture struct {
	flags     byte
	timescale uint32
	mediaTime uint64
	movie     string
	servers   []string
	qualities []string
	segTables [][]byte
	frgTables [][]byte
}

func (a abstFixture) bytes() []byte {
	return mkbox("abst", a.payload())
}

func (a abstFixture) payload() []byte {
	p := []byte{0, 0, 0, 0, 0, 0, 0, 1}
	p = append(p, a.flags)
	p = binary.BigEndian.AppendUint32(p, a.timescale)
	p = binary.BigEndian.AppendUint64(p, a.mediaTime)
	p = binary.BigEndian.AppendUint64(p, 0)
	p = append(p, cstr(a.movie)...)
	p = append(p, strTable(a.servers...)...)
	p = append(p, strTable(a.qualities...)...)
	p = append(p, cstr("")...)
	p = append(p, cstr("")...)
	p = append(p, byte(len(a.segTables)))
	for _, t := range a.segTables {
		p = append(p, t...)
	}
	p = append(p, byte(len(a.frgTables)))
	for _, t := range a.frgTables {
		p = append(p, t...)
	}
	return p
}

// simpleBootstrap describes n fragments of one second in segment 1.
func simpleBootstrap(n uint32) abstFixture {
	return abstFixture{
		timescale: 1000,
		mediaTime: uint64(n) * 1000,
		movie:     "movie",
		segTables: [][]byte{asrt(nil, hds.SegmentRun{FirstSegment: 1, FragmentsPerSegment: n})},
		frgTables: [][]byte{afrt(1000, nil,
			hds.FragmentRun{FirstFragment: 1, Timestamp: 0, Duration: 1000},
			endRun(n+1),
		)},
	}
}

func marker(first uint32, d hds.Discontinuity) hds.FragmentRun {
	return hds.FragmentRun{FirstFragment: first, Discontinuity: mo.Some(d)}
}

func endRun(first uint32) hds.FragmentRun {
	return marker(first, hds.DiscontinuityEnd)
}
