package installer

import (
	"fmt"

	"github.com/seapear/AffinityOnLinux/internal/protocol"
)

// Recorder appends one timestamped record per action.
type Recorder interface {
	Record(msg string)
}

// actionLogSink forwards to next and records every event and output line.
type actionLogSink struct {
	next protocol.Sink
	rec  Recorder
}

// RecordingSink returns a Sink that also writes every event and raw output
// line to rec.
func RecordingSink(next protocol.Sink, rec Recorder) protocol.Sink {
	if rec == nil {
		return next
	}
	return &actionLogSink{next: next, rec: rec}
}

func (s *actionLogSink) Emit(e protocol.Event) {
	switch e.Kind {
	case protocol.KindProgress:
		s.rec.Record(fmt.Sprintf("PROGRESS %d%%: %s", e.Percent, e.Message))
	case protocol.KindSuccess:
		s.rec.Record("SUCCESS: " + e.Message)
	case protocol.KindError:
		s.rec.Record("ERROR: " + e.Message)
	default:
		s.rec.Record(e.Level.String() + ": " + e.Message)
	}
	s.next.Emit(e)
}

func (s *actionLogSink) Output(line string) {
	s.rec.Record("  " + line)
	s.next.Output(line)
}
