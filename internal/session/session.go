package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"hdsfetch/internal/fault"
	"hdsfetch/internal/hds"
	"hdsfetch/internal/logger"
)

// Kind is the type of an Event.
type Kind string

const (
	KindProgress  Kind = "progress"
	KindDone      Kind = "done"
	KindFailed    Kind = "failed"
	KindCancelled Kind = "cancelled"
)

// IsFinished reports whether no further events follow.
func (k Kind) IsFinished() bool {
	return k == KindDone || k == KindFailed || k == KindCancelled
}

// Event reports the state of a download.
type Event struct {
	ID       string
	Kind     Kind
	Fraction float64
	Bytes    uint64
	// Position and Duration are in seconds; Duration is zero when unknown.
	Position float64
	Duration float64
	// Err is set for KindFailed and KindCancelled.
	Err error
}

// Fetcher runs one download. *hds.Fetcher implements it.
type Fetcher interface {
	Fetch(ctx context.Context, req hds.Request, dest io.Writer, sink hds.ProgressSink) error
}

// DefaultBuffer is the event channel capacity used by the manager.
const DefaultBuffer = 16

// Download is one fetch running on its own goroutine. Progress events are
// dropped when the channel is full; the final event is always delivered,
// after which the channel is closed.
type Download struct {
	ID      string
	Request hds.Request

	events chan Event
	cancel context.CancelFunc
	done   chan struct{}
	logger logger.Logger

	mu   sync.RWMutex
	last Event
}

// Start launches a download writing to dest. dest is closed when the fetch
// ends.
func Start(parent context.Context, id string, f Fetcher, req hds.Request, dest io.WriteCloser, log logger.Logger, buffer int) *Download {
	ctx, cancel := context.WithCancel(parent)
	d := &Download{
		ID:      id,
		Request: req,
		events:  make(chan Event, max(buffer, 1)),
		cancel:  cancel,
		done:    make(chan struct{}),
		logger:  log,
		last:    Event{ID: id, Kind: KindProgress},
	}
	go d.run(ctx, f, dest)
	return d
}

func (d *Download) run(ctx context.Context, f Fetcher, dest io.WriteCloser) {
	defer close(d.done)
	defer close(d.events)
	defer d.cancel()

	d.logger.Infof("Starting download %s (%s)", d.ID, d.Request.MediaPath)
	err := f.Fetch(ctx, d.Request, dest, &sink{d: d})
	if cerr := dest.Close(); cerr != nil && err == nil {
		err = fmt.Errorf("failed to close output: %w", cerr)
	}

	ev := d.Status()
	ev.Err = err
	switch {
	case err == nil:
		ev.Kind = KindDone
		d.logger.Infof("Download %s completed (%d bytes)", d.ID, ev.Bytes)
	case errors.Is(err, fault.ErrCancelled):
		ev.Kind = KindCancelled
		d.logger.Infof("Download %s stopped", d.ID)
	default:
		ev.Kind = KindFailed
		d.logger.Errorf("Download %s failed: %v", d.ID, err)
	}
	d.setStatus(ev)
	d.deliver(ev)
}

// deliver sends the final event, evicting a queued progress event if the
// channel is full. Only run sends, so one eviction is always enough.
func (d *Download) deliver(ev Event) {
	for {
		select {
		case d.events <- ev:
			return
		default:
		}
		select {
		case <-d.events:
		default:
		}
	}
}

func (d *Download) progress(ev Event) {
	d.setStatus(ev)
	select {
	case d.events <- ev:
	default:
	}
}

func (d *Download) setStatus(ev Event) {
	d.mu.Lock()
	d.last = ev
	d.mu.Unlock()
}

// Status returns the latest event.
func (d *Download) Status() Event {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.last
}

// Events returns the receiving end of the event channel.
func (d *Download) Events() <-chan Event { return d.events }

// Stop asks the download to stop at the next box boundary.
func (d *Download) Stop() { d.cancel() }

// Done is closed once the download has finished.
func (d *Download) Done() <-chan struct{} { return d.done }

// Wait blocks until the download has finished and returns its final event.
func (d *Download) Wait() Event {
	<-d.done
	return d.Status()
}

// sink turns fetch progress into events.
type sink struct {
	d        *Download
	fraction float64
	position float64
	duration float64
}

func (s *sink) SetFraction(fraction float64) { s.fraction = fraction }

func (s *sink) SetTime(position, duration float64) {
	s.position, s.duration = position, duration
	ev := s.d.Status()
	ev.Position, ev.Duration = position, duration
	s.d.setStatus(ev)
}

func (s *sink) SetSize(bytes uint64) {
	s.d.progress(Event{
		ID:       s.d.ID,
		Kind:     KindProgress,
		Fraction: s.fraction,
		Bytes:    bytes,
		Position: s.position,
		Duration: s.duration,
	})
}
