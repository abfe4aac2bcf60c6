package playback

import (
	"github.com/snarg/f12mqtt/internal/model"
	"github.com/snarg/f12mqtt/internal/recorder"
	"github.com/snarg/f12mqtt/internal/timeline"
)

// RecordedSource adapts a recording loaded from disk into the controller's
// Load inputs: a sorted timeline plus the snapshot the replay starts from.
type RecordedSource struct {
	rec *recorder.Recording
	tl  *timeline.Timeline
}

// NewRecordedSource wraps a loaded recording. Entries are sorted into a
// timeline on construction.
func NewRecordedSource(rec *recorder.Recording) *RecordedSource {
	return &RecordedSource{
		rec: rec,
		tl:  timeline.New(rec.Entries),
	}
}

// Timeline exposes the sorted entries for the controller's Load.
func (s *RecordedSource) Timeline() *timeline.Timeline {
	return s.tl
}

// Metadata returns the recording's session metadata.
func (s *RecordedSource) Metadata() recorder.Metadata {
	return s.rec.Metadata
}

// InitialState returns an owned copy of the recorded starting snapshot, or
// nil when the recording carried none.
func (s *RecordedSource) InitialState() *model.Snapshot {
	return s.rec.Initial.Clone()
}
