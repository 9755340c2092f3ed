package models

// Fragment is one addressable HDS fragment as planned by the sequencer.
// This struct is shared by the timeline code and the fetch loop.
type Fragment struct {
	// URL is the fully-qualified URL to fetch the fragment from. It is empty
	// until the fetch loop pairs the fragment with its segment.
	URL string
	// Segment is the segment number the fragment is addressed under.
	Segment uint32
	// Fragment is the fragment number within the whole presentation.
	Fragment uint32
	// EndTime is the media time at the end of the fragment, in the
	// fragment run table's timescale.
	EndTime uint64
}
