package pipeline

import "log/slog"

// Notifier receives job progress as it happens. Implementations must be
// fast and non-blocking; the worker calls them inline.
type Notifier interface {
	// Progress reports the overall percentage, 0-100, monotonic within a job.
	Progress(percent int)
	// Step reports the 1-based current step out of the total step count.
	Step(current, total int)
	// Status reports human-readable status text.
	Status(text string)
	// Log reports a free-form log line.
	Log(line string)
}

// NopNotifier discards all events.
type NopNotifier struct{}

func (NopNotifier) Progress(int)    {}
func (NopNotifier) Step(int, int)   {}
func (NopNotifier) Status(string)   {}
func (NopNotifier) Log(string)      {}

type slogNotifier struct {
	log *slog.Logger
}

// NewSlogNotifier routes job events to the structured logger.
func NewSlogNotifier(log *slog.Logger) Notifier {
	return &slogNotifier{log: log}
}

func (n *slogNotifier) Progress(percent int) {
	n.log.Debug("progress", slog.Int("percent", percent))
}

func (n *slogNotifier) Step(current, total int) {
	n.log.Info("step", slog.Int("current", current), slog.Int("total", total))
}

func (n *slogNotifier) Status(text string) {
	n.log.Info("status", slog.String("text", text))
}

func (n *slogNotifier) Log(line string) {
	n.log.Info(line)
}

type multiNotifier []Notifier

// Fanout combines notifiers; events go to each in order.
func Fanout(notifiers ...Notifier) Notifier {
	var active multiNotifier
	for _, n := range notifiers {
		if n != nil {
			active = append(active, n)
		}
	}
	return active
}

func (m multiNotifier) Progress(percent int) {
	for _, n := range m {
		n.Progress(percent)
	}
}

func (m multiNotifier) Step(current, total int) {
	for _, n := range m {
		n.Step(current, total)
	}
}

func (m multiNotifier) Status(text string) {
	for _, n := range m {
		n.Status(text)
	}
}

func (m multiNotifier) Log(line string) {
	for _, n := range m {
		n.Log(line)
	}
}
