package transcript

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/loqalabs/loqa-transcribe/internal/engine"
)

func sampleTranscript() Transcript {
	return Assemble([]engine.Segment{
		{Start: 0, End: 4.5, Text: "hello"},
		{Start: 62.1, End: 65.0, Text: "world"},
	})
}

func TestOutputPaths(t *testing.T) {
	txt, js := OutputPaths("/data/meeting.m4a", "")
	if txt != "/data/meeting_transcription.txt" {
		t.Fatalf("unexpected txt path: %s", txt)
	}
	if js != "/data/meeting_transcription.json" {
		t.Fatalf("unexpected json path: %s", js)
	}

	txt, js = OutputPaths("/data/meeting.wav", "/out")
	if txt != "/out/meeting_transcription.txt" || js != "/out/meeting_transcription.json" {
		t.Fatalf("unexpected redirected paths: %s %s", txt, js)
	}
}

func TestWriteText(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.txt")
	if err := WriteText(path, sampleTranscript()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	want := "(00:00) hello\n(01:02) world"
	if string(data) != want {
		t.Fatalf("unexpected text output:\n%s\nwant:\n%s", data, want)
	}
}

func TestJSONRoundTrip(t *testing.T) {
	tr := sampleTranscript()
	path := filepath.Join(t.TempDir(), "out.json")
	if err := WriteJSON(path, tr); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := ReadJSON(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got.Segments) != len(tr.Segments) {
		t.Fatalf("expected %d segments, got %d", len(tr.Segments), len(got.Segments))
	}
	for i := range tr.Segments {
		if got.Segments[i] != tr.Segments[i] {
			t.Fatalf("segment %d changed in round trip: %+v vs %+v", i, got.Segments[i], tr.Segments[i])
		}
	}
}

func TestJSONRoundTripEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.json")
	if err := WriteJSON(path, Transcript{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := ReadJSON(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got.Segments) != 0 {
		t.Fatalf("expected empty transcript, got %d segments", len(got.Segments))
	}
}
