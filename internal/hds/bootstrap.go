package hds

import (
	"bytes"
	"fmt"
	"io"

	"hdsfetch/internal/box"
	"hdsfetch/internal/fault"

	"github.com/samber/lo"
	"github.com/samber/mo"
)

// Discontinuity is the marker carried by a fragment run with zero duration.
type Discontinuity uint8

const (
	DiscontinuityEnd               Discontinuity = 0
	DiscontinuityFragmentNumbering Discontinuity = 1
	DiscontinuityTimestamp         Discontinuity = 2
	DiscontinuityBoth              Discontinuity = 3
)

func (d Discontinuity) String() string {
	switch d {
	case DiscontinuityEnd:
		return "end"
	case DiscontinuityFragmentNumbering:
		return "fragment-numbering"
	case DiscontinuityTimestamp:
		return "timestamp"
	case DiscontinuityBoth:
		return "fragment-numbering+timestamp"
	}
	return fmt.Sprintf("discontinuity(%d)", uint8(d))
}

// SegmentRun is one entry of a segment run table.
type SegmentRun struct {
	FirstSegment        uint32
	FragmentsPerSegment uint32
}

// FragmentRun is one entry of a fragment run table. Discontinuity is only
// present when Duration is zero.
type FragmentRun struct {
	FirstFragment uint32
	Timestamp     uint64
	Duration      uint32
	Discontinuity mo.Option[Discontinuity]
}

// Bootstrap is the decoded content of an "abst" box, reduced to the tables
// that apply to the highest quality level.
type Bootstrap struct {
	Profile uint8
	// Live and Update are decoded but the client always treats the
	// presentation as on-demand.
	Live   bool
	Update bool

	Timescale        uint32
	CurrentMediaTime uint64
	MovieIdentifier  string
	ServerBaseURL    mo.Option[string]
	HighestQuality   mo.Option[string]

	SegmentRuns       []SegmentRun
	FragmentRuns      []FragmentRun
	FragmentTimescale uint32
}

// Duration returns the presentation length in seconds as advertised by the
// bootstrap.
func (b *Bootstrap) Duration() (float64, bool) {
	if b.Timescale == 0 || b.CurrentMediaTime == 0 {
		return 0, false
	}
	return float64(b.CurrentMediaTime) / float64(b.Timescale), true
}

// ParseBootstrap decodes a bootstrap info box.
func ParseBootstrap(data []byte) (*Bootstrap, error) {
	r := box.NewReader(bytes.NewReader(data))
	h, err := r.Next()
	if err == io.EOF {
		return nil, fault.Format("", 0, "empty bootstrap")
	}
	if err != nil {
		return nil, err
	}
	if h.Type != box.TypeAbst {
		return nil, fault.Format(h.Type.String(), 0, "expected %q box", box.TypeAbst)
	}

	start := r.Offset()
	b, err := parseAbst(r)
	if err != nil {
		return nil, err
	}
	if err := checkConsumed(r, h, start); err != nil {
		return nil, err
	}
	return b, nil
}

func parseAbst(r *box.Reader) (*Bootstrap, error) {
	b := &Bootstrap{}

	// version, flags, bootstrap info version
	if err := r.Discard(1 + 3 + 4); err != nil {
		return nil, err
	}
	flags, err := r.Uint8()
	if err != nil {
		return nil, err
	}
	b.Profile = flags >> 6
	b.Live = flags&0x20 != 0
	b.Update = flags&0x10 != 0

	if b.Timescale, err = r.Uint32(); err != nil {
		return nil, err
	}
	if b.CurrentMediaTime, err = r.Uint64(); err != nil {
		return nil, err
	}
	// SMPTE timecode offset
	if err := r.Discard(8); err != nil {
		return nil, err
	}
	if b.MovieIdentifier, err = r.CString(); err != nil {
		return nil, err
	}

	servers, err := readStringTable(r)
	if err != nil {
		return nil, err
	}
	if len(servers) > 0 {
		b.ServerBaseURL = mo.Some(servers[0])
	}
	qualities, err := readStringTable(r)
	if err != nil {
		return nil, err
	}
	if len(qualities) > 0 {
		b.HighestQuality = mo.Some(qualities[0])
	}

	// DRM data, metadata
	for i := 0; i < 2; i++ {
		if _, err := r.CString(); err != nil {
			return nil, err
		}
	}

	found, err := eachTable(r, box.TypeAsrt, func(h box.Header) (bool, error) {
		tableQualities, runs, err := parseAsrt(r, h)
		if err != nil || !appliesTo(tableQualities, b.HighestQuality) {
			return false, err
		}
		b.SegmentRuns = runs
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	if !found || len(b.SegmentRuns) == 0 {
		return nil, fault.Lookup("segment run table not found (quality %q)", b.HighestQuality.OrEmpty())
	}

	found, err = eachTable(r, box.TypeAfrt, func(h box.Header) (bool, error) {
		tableQualities, runs, timescale, err := parseAfrt(r, h)
		if err != nil || !appliesTo(tableQualities, b.HighestQuality) {
			return false, err
		}
		b.FragmentRuns = runs
		b.FragmentTimescale = timescale
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	if !found || len(b.FragmentRuns) == 0 {
		return nil, fault.Lookup("fragment run table not found (quality %q)", b.HighestQuality.OrEmpty())
	}
	if b.FragmentTimescale == 0 {
		return nil, fault.Format(box.TypeAfrt.String(), r.Offset(), "zero timescale")
	}

	return b, nil
}

// eachTable walks a count-prefixed list of boxes. Boxes of the wanted type
// are offered to parse until it accepts one; everything else is skipped.
func eachTable(r *box.Reader, want box.Type, parse func(box.Header) (bool, error)) (bool, error) {
	count, err := r.Uint8()
	if err != nil {
		return false, err
	}
	found := false
	for i := 0; i < int(count); i++ {
		h, err := r.Next()
		if err == io.EOF {
			return false, fault.Format(want.String(), r.Offset(), "table %d of %d missing", i+1, count)
		}
		if err != nil {
			return false, err
		}
		if found || h.Type != want {
			if err := r.Skip(h); err != nil {
				return false, err
			}
			continue
		}
		if found, err = parse(h); err != nil {
			return false, err
		}
	}
	return found, nil
}

func appliesTo(qualities []string, highest mo.Option[string]) bool {
	if len(qualities) == 0 {
		return true
	}
	q, ok := highest.Get()
	return ok && lo.Contains(qualities, q)
}

func parseAsrt(r *box.Reader, h box.Header) ([]string, []SegmentRun, error) {
	start := r.Offset()
	// version, flags
	if err := r.Discard(1 + 3); err != nil {
		return nil, nil, err
	}
	qualities, err := readStringTable(r)
	if err != nil {
		return nil, nil, err
	}
	count, err := r.Uint32()
	if err != nil {
		return nil, nil, err
	}
	if err := checkCount(r, h, start, count, 8); err != nil {
		return nil, nil, err
	}

	runs := make([]SegmentRun, 0, count)
	for i := uint32(0); i < count; i++ {
		var run SegmentRun
		if run.FirstSegment, err = r.Uint32(); err != nil {
			return nil, nil, err
		}
		if run.FragmentsPerSegment, err = r.Uint32(); err != nil {
			return nil, nil, err
		}
		runs = append(runs, run)
	}

	if err := checkConsumed(r, h, start); err != nil {
		return nil, nil, err
	}
	return qualities, runs, nil
}

func parseAfrt(r *box.Reader, h box.Header) ([]string, []FragmentRun, uint32, error) {
	start := r.Offset()
	// version, flags
	if err := r.Discard(1 + 3); err != nil {
		return nil, nil, 0, err
	}
	timescale, err := r.Uint32()
	if err != nil {
		return nil, nil, 0, err
	}
	qualities, err := readStringTable(r)
	if err != nil {
		return nil, nil, 0, err
	}
	count, err := r.Uint32()
	if err != nil {
		return nil, nil, 0, err
	}
	if err := checkCount(r, h, start, count, 16); err != nil {
		return nil, nil, 0, err
	}

	runs := make([]FragmentRun, 0, count)
	for i := uint32(0); i < count; i++ {
		var run FragmentRun
		if run.FirstFragment, err = r.Uint32(); err != nil {
			return nil, nil, 0, err
		}
		if run.Timestamp, err = r.Uint64(); err != nil {
			return nil, nil, 0, err
		}
		if run.Duration, err = r.Uint32(); err != nil {
			return nil, nil, 0, err
		}
		if run.Duration == 0 {
			code, err := r.Uint8()
			if err != nil {
				return nil, nil, 0, err
			}
			if code > uint8(DiscontinuityBoth) {
				return nil, nil, 0, fault.Format(h.Type.String(), r.Offset()-1, "unknown discontinuity indicator %d", code)
			}
			run.Discontinuity = mo.Some(Discontinuity(code))
		}
		runs = append(runs, run)
	}

	if err := checkConsumed(r, h, start); err != nil {
		return nil, nil, 0, err
	}
	return qualities, runs, timescale, nil
}

func readStringTable(r *box.Reader) ([]string, error) {
	count, err := r.Uint8()
	if err != nil {
		return nil, err
	}
	entries := make([]string, 0, count)
	for i := 0; i < int(count); i++ {
		s, err := r.CString()
		if err != nil {
			return nil, err
		}
		entries = append(entries, s)
	}
	return entries, nil
}

// checkCount rejects entry counts that cannot fit in what is left of the box.
func checkCount(r *box.Reader, h box.Header, start int64, count uint32, minEntry uint64) error {
	used := uint64(r.Offset() - start)
	if used > h.Size || uint64(count)*minEntry > h.Size-used {
		return fault.Format(h.Type.String(), r.Offset(), "%d entries do not fit in %d bytes", count, h.Size-min(used, h.Size))
	}
	return nil
}

// checkConsumed enforces that a box parser consumed exactly its payload.
func checkConsumed(r *box.Reader, h box.Header, start int64) error {
	if consumed := uint64(r.Offset() - start); consumed != h.Size {
		return fault.Format(h.Type.String(), start, "consumed %d bytes of a %d byte payload", consumed, h.Size)
	}
	return nil
}
