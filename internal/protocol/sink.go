package protocol

import (
	"io"
	"sync"
)

// Sink receives structured events and raw subprocess output lines.
// Implementations must be safe for concurrent use.
type Sink interface {
	Emit(e Event)
	Output(line string)
}

// Writer serialises events onto one stream, one line each. Progress is kept
// non-decreasing: a lower percent than already written is raised to the
// last value.
type Writer struct {
	mu      sync.Mutex
	w       io.Writer
	highest int
}

// NewWriter returns a Writer on w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Emit writes e as a protocol line.
func (pw *Writer) Emit(e Event) {
	pw.mu.Lock()
	defer pw.mu.Unlock()

	if e.Kind == KindProgress {
		if e.Percent < pw.highest {
			e.Percent = pw.highest
		}
		pw.highest = e.Percent
	}
	io.WriteString(pw.w, Encode(e)+"\n")
}

// Output writes a raw subprocess line.
func (pw *Writer) Output(line string) {
	pw.mu.Lock()
	defer pw.mu.Unlock()
	io.WriteString(pw.w, EncodeRaw(line)+"\n")
}

// scaled maps 0..100 progress into lo..hi of a parent sink.
type scaled struct {
	next   Sink
	lo, hi int
}

// Scale returns a Sink that rescales progress percentages from 0..100 into
// lo..hi before forwarding. Other events pass through unchanged.
func Scale(next Sink, lo, hi int) Sink {
	lo, hi = clamp(lo), clamp(hi)
	if hi < lo {
		lo, hi = hi, lo
	}
	return &scaled{next: next, lo: lo, hi: hi}
}

func (s *scaled) Emit(e Event) {
	if e.Kind == KindProgress {
		e.Percent = s.lo + clamp(e.Percent)*(s.hi-s.lo)/100
	}
	s.next.Emit(e)
}

func (s *scaled) Output(line string) {
	s.next.Output(line)
}

type multi []Sink

// Multi fans events out to every sink in order.
func Multi(sinks ...Sink) Sink {
	return multi(sinks)
}

func (m multi) Emit(e Event) {
	for _, s := range m {
		s.Emit(e)
	}
}

func (m multi) Output(line string) {
	for _, s := range m {
		s.Output(line)
	}
}

// Recorder keeps every event and output line in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
	lines  []string
}

func (r *Recorder) Emit(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *Recorder) Output(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, line)
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Lines returns a copy of the recorded output lines.
func (r *Recorder) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.lines...)
}

// Count returns how many events of kind k were recorded.
func (r *Recorder) Count(k Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Kind == k {
			n++
		}
	}
	return n
}
