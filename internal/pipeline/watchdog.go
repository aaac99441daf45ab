package pipeline

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/loqalabs/loqa-transcribe/internal/transcript"
)

// Fixed overhead added to the processing-time estimate, covering model load
// and warm-up.
const estimateOverheadSeconds = 15

// EstimateSeconds predicts processing time for a recording from its
// duration and the device speed multiplier.
func EstimateSeconds(durationSeconds, speedMultiplier float64) float64 {
	return durationSeconds*speedMultiplier + estimateOverheadSeconds
}

// WatchdogTimeout computes the forced-termination budget: three times the
// estimated processing time, but never below the configured floor.
func WatchdogTimeout(durationSeconds, speedMultiplier float64, floor time.Duration) time.Duration {
	limit := time.Duration(3 * EstimateSeconds(durationSeconds, speedMultiplier) * float64(time.Second))
	if limit < floor {
		return floor
	}
	return limit
}

// Watchdog flags a transcription step that outlives its budget. It is
// advisory: it never kills the in-flight engine call, it only sets a flag
// the orchestration checks at safe points.
type Watchdog struct {
	limit    time.Duration
	poll     time.Duration
	notifier Notifier
	timedOut atomic.Bool
}

func NewWatchdog(limit, poll time.Duration, notifier Notifier) *Watchdog {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Watchdog{limit: limit, poll: poll, notifier: notifier}
}

// Run polls until the context is cancelled or the budget is exceeded. Call
// in its own goroutine; wg is released on exit.
func (w *Watchdog) Run(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	w.notifier.Log(fmt.Sprintf("Setting watchdog timer for %s", transcript.Clock(w.limit.Seconds())))

	start := time.Now()
	ticker := time.NewTicker(w.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if time.Since(start) >= w.limit {
				w.timedOut.Store(true)
				w.notifier.Log("WATCHDOG ALERT: Transcription taking too long, forcing termination")
				return
			}
		}
	}
}

// TimedOut reports whether the budget was exceeded.
func (w *Watchdog) TimedOut() bool {
	return w.timedOut.Load()
}

// Limit returns the computed budget.
func (w *Watchdog) Limit() time.Duration {
	return w.limit
}

// TimeoutError reports a watchdog-observed timeout. The underlying engine
// call may still be running; the job is reported failed regardless.
type TimeoutError struct {
	Limit time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("transcription exceeded watchdog limit of %s", e.Limit)
}
