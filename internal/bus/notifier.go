package bus

import (
	"sync"
	"time"

	"github.com/loqalabs/loqa-transcribe/internal/protocol"
)

// publisher is the slice of Client the notifier needs; tests provide fakes.
type publisher interface {
	Publish(subject string, payload any)
}

// Notifier mirrors pipeline progress onto the bus. Each Progress, Step and
// Status event is published as a full JobProgress snapshot so subscribers can
// render state from any single message, and Log lines go out as JobLog.
type Notifier struct {
	pub    publisher
	jobID  string
	source string

	mu         sync.Mutex
	percent    int
	step       int
	totalSteps int
	status     string
}

func NewNotifier(pub publisher, jobID, source string) *Notifier {
	return &Notifier{pub: pub, jobID: jobID, source: source}
}

func (n *Notifier) Progress(percent int) {
	n.mu.Lock()
	n.percent = percent
	snapshot := n.snapshotLocked()
	n.mu.Unlock()
	n.pub.Publish(protocol.SubjectJobProgress, snapshot)
}

func (n *Notifier) Step(current, total int) {
	n.mu.Lock()
	n.step = current
	n.totalSteps = total
	snapshot := n.snapshotLocked()
	n.mu.Unlock()
	n.pub.Publish(protocol.SubjectJobProgress, snapshot)
}

func (n *Notifier) Status(text string) {
	n.mu.Lock()
	n.status = text
	snapshot := n.snapshotLocked()
	n.mu.Unlock()
	n.pub.Publish(protocol.SubjectJobProgress, snapshot)
}

func (n *Notifier) Log(line string) {
	n.pub.Publish(protocol.SubjectJobLog, protocol.JobLog{
		JobID:     n.jobID,
		Line:      line,
		Timestamp: time.Now().UTC(),
	})
}

func (n *Notifier) snapshotLocked() protocol.JobProgress {
	return protocol.JobProgress{
		JobID:      n.jobID,
		Source:     n.source,
		Percent:    n.percent,
		Step:       n.step,
		TotalSteps: n.totalSteps,
		Status:     n.status,
		Timestamp:  time.Now().UTC(),
	}
}

// PublishResult emits the terminal event for a job.
func PublishResult(pub publisher, result protocol.JobResult) {
	if result.Timestamp.IsZero() {
		result.Timestamp = time.Now().UTC()
	}
	pub.Publish(protocol.SubjectJobResult, result)
}
