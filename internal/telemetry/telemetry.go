// Package telemetry records the sequence of synchronization "messages" a
// protocol exchanges and derives their cost under a bandwidth model, so that
// protocols can be compared on bytes moved and estimated wall-clock time.
package telemetry

import (
	"time"

	"github.com/pkg/errors"
)

// Direction identifies which way an event's bytes travel.
type Direction int

const (
	// LocalToRemote is an upload: bytes move from the local replica to the
	// remote replica.
	LocalToRemote Direction = iota
	// RemoteToLocal is a download: bytes move from the remote replica back
	// to the local replica.
	RemoteToLocal
)

func (d Direction) String() string {
	if d == LocalToRemote {
		return "local->remote"
	}
	return "remote->local"
}

// Bandwidth is a link capacity in bits per second.
type Bandwidth float64

// Kbps, Mbps and Gbps construct a Bandwidth from the named unit.
func Kbps(v float64) Bandwidth { return Bandwidth(v * 1_000) }
func Mbps(v float64) Bandwidth { return Bandwidth(v * 1_000_000) }
func Gbps(v float64) Bandwidth { return Bandwidth(v * 1_000_000_000) }

// bytesPerSecond converts the bandwidth to bytes/sec for duration accounting.
func (b Bandwidth) bytesPerSecond() float64 {
	return float64(b) / 8
}

// Event is one recorded synchronization message: "useful payload" bytes
// (State), sketch/bookkeeping bytes (Metadata), and the direction's derived
// Duration under the sink's configured bandwidth.
type Event struct {
	Direction Direction
	State     int
	Metadata  int
	Duration  time.Duration
}

// Bytes returns the total bytes accounted for by the event.
func (e Event) Bytes() int {
	return e.State + e.Metadata
}

// Sink is an ordered log of events plus a latched differences counter. It
// moves through three states: Ready (no events, no differences) ->
// Recording (after the first Register) -> Finished (after Finish). Register
// is a no-op once Finished; Finish is idempotent.
type Sink struct {
	events   []Event
	diffs    *int
	upload   Bandwidth
	download Bandwidth
}

// NewSink creates a ready Sink with the given upload and download bandwidths,
// both of which must be positive.
func NewSink(upload, download Bandwidth) (*Sink, error) {
	if upload <= 0 {
		return nil, errors.Errorf("telemetry: upload bandwidth must be positive, got %v", upload)
	}
	if download <= 0 {
		return nil, errors.Errorf("telemetry: download bandwidth must be positive, got %v", download)
	}
	return &Sink{upload: upload, download: download}, nil
}

// IsReady reports whether the sink has recorded no events and has not been
// finished: the precondition every protocol's sync entry point requires.
func (s *Sink) IsReady() bool {
	return len(s.events) == 0 && s.diffs == nil
}

// Register appends an event with the given direction, state bytes, and
// metadata bytes. It is a silent no-op once Finish has been called.
func (s *Sink) Register(dir Direction, state, metadata int) {
	if s.diffs != nil {
		return
	}

	bw := s.upload
	if dir == RemoteToLocal {
		bw = s.download
	}

	seconds := float64(state+metadata) / bw.bytesPerSecond()
	s.events = append(s.events, Event{
		Direction: dir,
		State:     state,
		Metadata:  metadata,
		Duration:  time.Duration(seconds * float64(time.Second)),
	})
}

// Finish latches the post-sync convergence oracle. Idempotent: only the
// first call takes effect.
func (s *Sink) Finish(differences int) {
	if s.diffs != nil {
		return
	}
	s.diffs = &differences
}

// Events returns the recorded events in program order.
func (s *Sink) Events() []Event {
	return s.events
}

// FalseMatches returns the latched differences count and whether Finish has
// been called yet.
func (s *Sink) FalseMatches() (int, bool) {
	if s.diffs == nil {
		return 0, false
	}
	return *s.diffs, true
}

// TotalBytes sums the bytes of every recorded event.
func (s *Sink) TotalBytes() int {
	total := 0
	for _, e := range s.events {
		total += e.Bytes()
	}
	return total
}
