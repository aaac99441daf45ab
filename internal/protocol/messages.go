package protocol

import "time"

// JobProgress carries the tracker's view of a running transcription job.
type JobProgress struct {
	JobID      string    `json:"job_id"`
	Source     string    `json:"source"`
	Percent    int       `json:"percent"`
	Step       int       `json:"step"`
	TotalSteps int       `json:"total_steps"`
	Status     string    `json:"status"`
	Timestamp  time.Time `json:"timestamp"`
}

// JobLog is one free-text log line emitted by the worker.
type JobLog struct {
	JobID     string    `json:"job_id"`
	Line      string    `json:"line"`
	Timestamp time.Time `json:"timestamp"`
}

// JobResult is the terminal event for a job: either the two output files or
// an error message with diagnostic detail.
type JobResult struct {
	JobID          string    `json:"job_id"`
	Source         string    `json:"source"`
	Success        bool      `json:"success"`
	TextPath       string    `json:"text_path,omitempty"`
	JSONPath       string    `json:"json_path,omitempty"`
	Segments       int       `json:"segments"`
	FailedChunks   int       `json:"failed_chunks"`
	Error          string    `json:"error,omitempty"`
	ElapsedSeconds float64   `json:"elapsed_seconds"`
	Timestamp      time.Time `json:"timestamp"`
}

const (
	SubjectJobProgress = "transcribe.job.progress"
	SubjectJobLog      = "transcribe.job.log"
	SubjectJobResult   = "transcribe.job.result"
)
