package hds

import (
	"fmt"
	"iter"
	"math"

	"hdsfetch/internal/models"

	"github.com/samber/mo"
)

// Segments yields the segment number of every fragment in order. Each run
// repeats a segment number FragmentsPerSegment times and advances until the
// next run takes over; the last run never ends on its own, so callers bound
// the sequence by the number of fragments they consume.
func Segments(runs []SegmentRun) iter.Seq[uint32] {
	return func(yield func(uint32) bool) {
		for i, run := range runs {
			last := i == len(runs)-1
			if run.FragmentsPerSegment == 0 {
				if last {
					return
				}
				continue
			}
			end := uint32(math.MaxUint32)
			if !last {
				end = runs[i+1].FirstSegment
			}
			for seg := run.FirstSegment; last || seg < end; seg++ {
				for k := uint32(0); k < run.FragmentsPerSegment; k++ {
					if !yield(seg) {
						return
					}
				}
				if seg == math.MaxUint32 {
					return
				}
			}
		}
	}
}

// Fragments yields every fragment described by the fragment run table with
// its end time, in the table's timescale. An End marker stops the sequence
// and any other marker run contributes no fragments of its own.
func Fragments(runs []FragmentRun) iter.Seq[models.Fragment] {
	return func(yield func(models.Fragment) bool) {
		for i, run := range runs {
			if d, ok := run.Discontinuity.Get(); ok {
				if d == DiscontinuityEnd {
					return
				}
				continue
			}
			t := run.Timestamp
			count := fragmentCount(runs, i)
			for k := uint32(0); k < count; k++ {
				t += uint64(run.Duration)
				f := models.Fragment{Fragment: run.FirstFragment + k, EndTime: t}
				if !yield(f) {
					return
				}
			}
		}
	}
}

// fragmentCount looks past timestamp-only markers to find where run i ends.
// A following normal run, End marker, numbering marker or trailing marker
// of any kind bounds the run at its first fragment; when that bound is not
// ahead of the run, or nothing follows, the run holds a single fragment.
func fragmentCount(runs []FragmentRun, i int) uint32 {
	first := runs[i].FirstFragment
	for j := i + 1; j < len(runs); j++ {
		next := runs[j]
		if d, ok := next.Discontinuity.Get(); ok && d == DiscontinuityTimestamp && j < len(runs)-1 {
			continue
		}
		if next.FirstFragment > first {
			return next.FirstFragment - first
		}
		return 1
	}
	return 1
}

// CountFragments returns the number of fragments Fragments yields.
func CountFragments(runs []FragmentRun) int {
	n := 0
	for range Fragments(runs) {
		n++
	}
	return n
}

// Plan pairs every fragment with its segment and fills in the fragment URL.
func Plan(b *Bootstrap, mediaURL string, query mo.Option[string]) iter.Seq[models.Fragment] {
	return func(yield func(models.Fragment) bool) {
		nextSegment, stop := iter.Pull(Segments(b.SegmentRuns))
		defer stop()

		for f := range Fragments(b.FragmentRuns) {
			seg, ok := nextSegment()
			if !ok {
				return
			}
			f.Segment = seg
			f.URL = FragmentURL(mediaURL, seg, f.Fragment, query)
			if !yield(f) {
				return
			}
		}
	}
}

// FragmentURL builds {mediaURL}Seg{seg}-Frag{frag}, with the verification
// query appended when present. The query is already percent-encoded.
func FragmentURL(mediaURL string, seg, frag uint32, query mo.Option[string]) string {
	u := fmt.Sprintf("%sSeg%d-Frag%d", mediaURL, seg, frag)
	if q, ok := query.Get(); ok && q != "" {
		u += "?" + q
	}
	return u
}
