package hds

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"

	"hdsfetch/internal/box"
	"hdsfetch/internal/fault"
	"hdsfetch/internal/flv"
	"hdsfetch/internal/logger"
	"hdsfetch/internal/models"
	"hdsfetch/internal/progress"
	"hdsfetch/internal/transport"

	"github.com/samber/mo"
)

// ProgressSink receives progress after the file header and after every
// fragment. SetSize is called last in each update.
type ProgressSink interface {
	SetFraction(fraction float64)
	SetSize(bytes uint64)
}

// TimeSink is implemented by sinks that also want the media position, in
// seconds. duration is zero when no source advertises it.
type TimeSink interface {
	SetTime(position, duration float64)
}

// Transport is a Doer owned by a single fetch and closed when it ends.
type Transport interface {
	Doer
	Close() error
}

// Request identifies the presentation to fetch.
type Request struct {
	// BaseURL is the streaming host the media path is resolved against.
	BaseURL   string
	MediaPath string
	// Token is the delivery token sent as the hdnea manifest parameter.
	Token mo.Option[string]
}

// Fetcher downloads an HDS presentation into an FLV stream.
type Fetcher struct {
	newTransport func() Transport
	signer       *Signer
	logger       logger.Logger
}

// NewFetcher creates a Fetcher. Each Fetch opens its own transport from cfg.
// signer may be nil when no host requires player verification.
func NewFetcher(cfg transport.Config, signer *Signer, log logger.Logger) *Fetcher {
	return &Fetcher{
		newTransport: func() Transport { return transport.New(cfg, log) },
		signer:       signer,
		logger:       log,
	}
}

// fragmentCursor is the per-fetch state of the fragment loop.
type fragmentCursor struct {
	// firstSeen is set once an mdat box has been written; from then on
	// sequence headers are stripped.
	firstSeen bool
	done      int
	total     int
}

// Fetch writes the presentation described by req to dest. Fragments are
// fetched strictly in order over one connection. When ctx is cancelled the
// fetch stops at the next box boundary and returns an error matching
// fault.ErrCancelled. A nil sink prints progress to stderr.
func (f *Fetcher) Fetch(ctx context.Context, req Request, dest io.Writer, sink ProgressSink) (err error) {
	if sink == nil {
		lp := progress.NewLinePrinter(os.Stderr)
		defer lp.Done()
		sink = lp
	}
	t := f.newTransport()
	defer func() {
		if cerr := t.Close(); cerr != nil {
			f.logger.Warnf("Failed to close connection: %v", cerr)
		}
	}()
	defer func() { err = f.classify(ctx, err) }()

	client := NewClient(t, f.logger)
	manifestURL, err := ManifestURL(req.BaseURL, req.MediaPath, req.Token)
	if err != nil {
		return err
	}
	m, err := client.FetchManifest(ctx, manifestURL)
	if err != nil {
		return err
	}
	if len(m.Media) == 0 {
		return fault.Lookup("manifest %s lists no media", manifestURL)
	}
	// The first entry is taken as the highest quality.
	media := &m.Media[0]
	if media.Href != "" {
		return fault.Unsupported("media %q refers to child manifest %q", media.URL, media.Href)
	}

	query, err := f.sign(m.PlayerVerification)
	if err != nil {
		return err
	}
	b, err := client.FetchBootstrap(ctx, m, media, query)
	if err != nil {
		return err
	}
	mediaURL, err := MediaURL(m, media, b)
	if err != nil {
		return err
	}
	duration := f.duration(m, b, media.Metadata)

	w := flv.NewWriter(dest)
	// Both flags are set since fragments are not scanned ahead of time.
	if err := w.WriteHeader(true, true); err != nil {
		return err
	}
	if len(media.Metadata) > 0 {
		if err := w.WriteScriptData(media.Metadata); err != nil {
			return err
		}
	}

	plan := Plan(b, mediaURL, query)
	cur := &fragmentCursor{}
	for range plan {
		cur.total++
	}
	f.logger.Infof("Fetching %d fragments from %s", cur.total, mediaURL)
	report(sink, cur, w.Size(), 0, duration)

	for frag := range plan {
		if err := ctx.Err(); err != nil {
			return fault.Cancelled(err)
		}
		if err := f.fetchFragment(ctx, client, frag, w, cur); err != nil {
			return err
		}
		cur.done++
		report(sink, cur, w.Size(), float64(frag.EndTime)/float64(b.FragmentTimescale), duration)
	}

	f.logger.Infof("Finished %s: %d fragments, %d bytes", req.MediaPath, cur.done, w.Size())
	return nil
}

func (f *Fetcher) sign(pv mo.Option[string]) (mo.Option[string], error) {
	if pv.IsAbsent() {
		return mo.None[string](), nil
	}
	if f.signer == nil {
		return mo.None[string](), fault.Lookup("manifest requires player verification but no player key is configured")
	}
	return f.signer.Sign(pv)
}

// duration picks the first advertised length: manifest, bootstrap, then
// the metadata's onMetaData.duration. Zero means unknown.
func (f *Fetcher) duration(m *Manifest, b *Bootstrap, metadata []byte) float64 {
	if d, ok := m.Duration.Get(); ok {
		return d
	}
	if d, ok := b.Duration(); ok {
		return d
	}
	if len(metadata) > 0 {
		if d, ok := flv.MetadataDuration(bytes.NewReader(metadata)); ok {
			return d
		}
	}
	f.logger.Debugf("No duration advertised")
	return 0
}

func (f *Fetcher) fetchFragment(ctx context.Context, client *Client, frag models.Fragment, w io.Writer, cur *fragmentCursor) error {
	f.logger.Debugf("Downloading segment %d fragment %d", frag.Segment, frag.Fragment)
	body, err := client.Open(ctx, frag.URL)
	if err != nil {
		return err
	}
	defer body.Close()

	r := box.NewReader(body)
	for {
		if err := ctx.Err(); err != nil {
			return fault.Cancelled(err)
		}
		h, err := r.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if h.Type != box.TypeMdat {
			if err := r.Skip(h); err != nil {
				return err
			}
			continue
		}

		size := h.Size
		if cur.firstSeen {
			if size, err = stripSequenceHeaders(r, w, size); err != nil {
				return err
			}
		}
		if err := r.CopyN(w, size); err != nil {
			return err
		}
		cur.firstSeen = true
	}
}

// stripSequenceHeaders inspects the leading tags of an mdat payload until
// one audio and one video tag have been seen, dropping AAC and AVC sequence
// headers and forwarding everything else. It returns the payload bytes left
// to copy.
func stripSequenceHeaders(r *box.Reader, w io.Writer, size uint64) (uint64, error) {
	var audio, video bool
	for size > 0 && !(audio && video) {
		start := r.Offset()
		in, err := flv.InspectTag(r)
		if err != nil {
			return 0, err
		}
		switch in.Header.Type {
		case flv.TagAudio:
			audio = true
		case flv.TagVideo:
			video = true
		}

		used := uint64(len(in.Consumed)) + in.Remaining()
		if used > size {
			return 0, fault.Format(box.TypeMdat.String(), start, "%s tag of %d bytes overruns the %d bytes left in mdat", in.Header.Type, used, size)
		}
		if in.SequenceHeader {
			err = r.Discard(in.Remaining())
		} else if _, err = w.Write(in.Consumed); err == nil {
			err = r.CopyN(w, in.Remaining())
		}
		if err != nil {
			return 0, err
		}
		size -= used
	}
	return size, nil
}

func report(sink ProgressSink, cur *fragmentCursor, size uint64, position, duration float64) {
	if cur.total > 0 {
		sink.SetFraction(float64(cur.done) / float64(cur.total))
	}
	if ts, ok := sink.(TimeSink); ok {
		ts.SetTime(position, duration)
	}
	sink.SetSize(size)
}

// classify makes every error leaving Fetch match one fault category.
func (f *Fetcher) classify(ctx context.Context, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, fault.ErrCancelled):
		return err
	case ctx.Err() != nil:
		return fault.Cancelled(errors.Join(ctx.Err(), err))
	case errors.Is(err, fault.ErrFormat), errors.Is(err, fault.ErrLookup),
		errors.Is(err, fault.ErrTransport), errors.Is(err, fault.ErrUnsupported):
		return err
	}
	return fault.Transport(err, "fetch failed")
}
