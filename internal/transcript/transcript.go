package transcript

import (
	"fmt"

	"github.com/loqalabs/loqa-transcribe/internal/engine"
)

// Segment is one speech span with times in seconds relative to the original
// recording and a precomputed display stamp.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
	Stamp string  `json:"timestamp_str"`
}

// Transcript is the complete ordered segment sequence for one recording.
// It is immutable after assembly; a new run produces a new Transcript.
type Transcript struct {
	Segments []Segment
}

// Assemble attaches display stamps to an already ordered, already
// time-shifted segment sequence. It never drops, reorders, or merges
// segments; that policy lives upstream in the chunk loop.
func Assemble(segments []engine.Segment) Transcript {
	out := make([]Segment, 0, len(segments))
	for _, s := range segments {
		out = append(out, Segment{
			Start: s.Start,
			End:   s.End,
			Text:  s.Text,
			Stamp: Stamp(s.Start),
		})
	}
	return Transcript{Segments: out}
}

// Stamp renders a segment start time as "(MM:SS)". Segment stamps stay in
// minutes even past the hour mark, so minutes may exceed 59.
func Stamp(start float64) string {
	total := int(start)
	return fmt.Sprintf("(%02d:%02d)", total/60, total%60)
}

// Clock formats an elapsed or total duration as MM:SS, switching to
// HH:MM:SS at one hour. Used for status text and log lines, not for
// per-segment stamps.
func Clock(seconds float64) string {
	total := int(seconds)
	if total < 3600 {
		return fmt.Sprintf("%02d:%02d", total/60, total%60)
	}
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total%3600)/60, total%60)
}
