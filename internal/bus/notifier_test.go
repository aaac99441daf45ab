package bus

import (
	"sync"
	"testing"

	"github.com/loqalabs/loqa-transcribe/internal/protocol"
)

type capturedMessage struct {
	subject string
	payload any
}

type fakePublisher struct {
	mu       sync.Mutex
	messages []capturedMessage
}

func (f *fakePublisher) Publish(subject string, payload any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, capturedMessage{subject: subject, payload: payload})
}

func (f *fakePublisher) all() []capturedMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]capturedMessage, len(f.messages))
	copy(out, f.messages)
	return out
}

func TestNotifierPublishesSnapshots(t *testing.T) {
	pub := &fakePublisher{}
	n := NewNotifier(pub, "job-1", "meeting.wav")

	n.Step(1, 6)
	n.Status("Checking file format")
	n.Progress(30)

	msgs := pub.all()
	if len(msgs) != 3 {
		t.Fatalf("expected 3 progress events, got %d", len(msgs))
	}
	for _, m := range msgs {
		if m.subject != protocol.SubjectJobProgress {
			t.Fatalf("unexpected subject %q", m.subject)
		}
	}

	last, ok := msgs[2].payload.(protocol.JobProgress)
	if !ok {
		t.Fatalf("unexpected payload type %T", msgs[2].payload)
	}
	if last.JobID != "job-1" || last.Source != "meeting.wav" {
		t.Fatalf("unexpected identity: %+v", last)
	}
	// Each event is a full snapshot carrying earlier state.
	if last.Percent != 30 || last.Step != 1 || last.TotalSteps != 6 || last.Status != "Checking file format" {
		t.Fatalf("snapshot missing accumulated state: %+v", last)
	}
	if last.Timestamp.IsZero() {
		t.Fatal("expected timestamp on progress event")
	}
}

func TestNotifierPublishesLogLines(t *testing.T) {
	pub := &fakePublisher{}
	n := NewNotifier(pub, "job-2", "call.mp3")

	n.Log("Chunk 1/3 completed with 4 segments")

	msgs := pub.all()
	if len(msgs) != 1 || msgs[0].subject != protocol.SubjectJobLog {
		t.Fatalf("unexpected messages: %+v", msgs)
	}
	entry := msgs[0].payload.(protocol.JobLog)
	if entry.JobID != "job-2" || entry.Line != "Chunk 1/3 completed with 4 segments" {
		t.Fatalf("unexpected log payload: %+v", entry)
	}
}

func TestPublishResultStampsTimestamp(t *testing.T) {
	pub := &fakePublisher{}
	PublishResult(pub, protocol.JobResult{JobID: "job-3", Success: true, Segments: 12})

	msgs := pub.all()
	if len(msgs) != 1 || msgs[0].subject != protocol.SubjectJobResult {
		t.Fatalf("unexpected messages: %+v", msgs)
	}
	result := msgs[0].payload.(protocol.JobResult)
	if result.Timestamp.IsZero() {
		t.Fatal("expected timestamp to be stamped")
	}
	if !result.Success || result.Segments != 12 {
		t.Fatalf("payload mutated unexpectedly: %+v", result)
	}
}
