package pipeline

import "sync"

// Step identifies one of the six processing stages of a job.
type Step int

const (
	StepFormatCheck Step = iota
	StepEnginePrep
	StepAnalyze
	StepTranscribe
	StepProcess
	StepSave

	totalSteps = 6
)

func (s Step) String() string {
	switch s {
	case StepFormatCheck:
		return "Checking file format"
	case StepEnginePrep:
		return "Loading model"
	case StepAnalyze:
		return "Analyzing audio"
	case StepTranscribe:
		return "Transcribing audio"
	case StepProcess:
		return "Processing transcript"
	case StepSave:
		return "Saving results"
	default:
		return "Unknown step"
	}
}

// The transcription step dominates the overall percentage: the steps before
// it fill 0-30, transcription fills 30-80 scaled by chunk completion, and
// the two closing steps fill the rest.
const (
	transcribeFloor   = 30
	transcribeCeiling = 80
	processPercent    = 80
	savePercent       = 90
)

// Tracker maps step-level and chunk-level progress onto a single monotonic
// 0-100 percentage and emits it together with status text. One Tracker
// lives for exactly one job.
type Tracker struct {
	mu       sync.Mutex
	percent  int
	emitted  bool
	notifier Notifier
}

func NewTracker(notifier Notifier) *Tracker {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Tracker{notifier: notifier}
}

// EnterStep records a stage transition, emitting the step index, status
// text (step name plus optional detail), and the step's base percentage.
func (t *Tracker) EnterStep(step Step, detail string) {
	status := step.String()
	if detail != "" {
		status += " - " + detail
	}
	t.notifier.Step(int(step)+1, totalSteps)
	t.notifier.Status(status)
	t.setPercent(stepPercent(step))
}

// Transcription reports chunk-level completion, fraction in [0, 1]. Whole-file
// runs have no intra-call completion signal (the engine materializes its full
// result before returning), so they hold at the floor until the single call
// finishes and then move straight to the ceiling; the elapsed-time ticker
// keeps the status text alive in between.
func (t *Tracker) Transcription(fraction float64) {
	if fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}
	span := transcribeCeiling - transcribeFloor
	t.setPercent(transcribeFloor + int(fraction*float64(span)))
}

// Status updates status text without changing the step or percentage.
func (t *Tracker) Status(text string) {
	t.notifier.Status(text)
}

// Complete drives the percentage to exactly 100.
func (t *Tracker) Complete() {
	t.setPercent(100)
}

// Percent returns the last emitted percentage.
func (t *Tracker) Percent() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.percent
}

// setPercent enforces monotonicity: progress never moves backwards within
// one job, regardless of how the step math lands. Repeats of the current
// value are dropped too; only the very first emission may be 0.
func (t *Tracker) setPercent(p int) {
	t.mu.Lock()
	if t.emitted && p <= t.percent {
		t.mu.Unlock()
		return
	}
	t.percent = p
	t.emitted = true
	t.mu.Unlock()
	t.notifier.Progress(p)
}

func stepPercent(step Step) int {
	switch {
	case step < StepTranscribe:
		p := int(step) * 100 / totalSteps
		if p > transcribeFloor {
			p = transcribeFloor
		}
		return p
	case step == StepTranscribe:
		return transcribeFloor
	case step == StepProcess:
		return processPercent
	default:
		return savePercent
	}
}
