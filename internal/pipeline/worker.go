package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/loqalabs/loqa-transcribe/internal/config"
	"github.com/loqalabs/loqa-transcribe/internal/engine"
	"github.com/loqalabs/loqa-transcribe/internal/media"
	"github.com/loqalabs/loqa-transcribe/internal/transcript"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	watchdogPollInterval = 10 * time.Second
	statusTickInterval   = time.Second
	stillProcessingEvery = 30 * time.Second
)

// DurationProber estimates recording length. It never fails; it degrades.
type DurationProber interface {
	Duration(ctx context.Context, path string) float64
}

// Normalizer converts the input into a decodable container when needed.
type Normalizer interface {
	EnsureWAV(ctx context.Context, path string) (string, error)
}

// ChunkExtractor slices [start, start+length) out of src into dir.
type ChunkExtractor interface {
	Extract(ctx context.Context, src, dir string, index int, start, length float64) (string, error)
}

// ChunkFailure records one skipped chunk. Chunk loss is accepted, not
// corrected: a failed chunk yields a gap in the transcript, never a failed
// job.
type ChunkFailure struct {
	Index int
	Start float64
	Stage string // "extract" or "transcribe"
	Err   error
}

// Result is the terminal payload of a successful job.
type Result struct {
	JobID      string
	Source     string
	Duration   float64
	Transcript transcript.Transcript
	Failures   []ChunkFailure
	TextPath   string
	JSONPath   string
	Elapsed    time.Duration
}

// Deps are the worker's collaborators, injectable for tests.
type Deps struct {
	Prober     DurationProber
	Normalizer Normalizer
	Extractor  ChunkExtractor
	Engine     engine.Transcriber
	Notifier   Notifier
	Logger     *slog.Logger
}

// Worker runs one transcription job at a time: normalize, estimate, chunk,
// transcribe, assemble, export. All media and engine work happens
// sequentially inside Run; only the watchdog and the elapsed-time ticker run
// concurrently, scoped to the transcription step.
type Worker struct {
	cfg      config.PipelineConfig
	caps     engine.Capabilities
	prober   DurationProber
	norm     Normalizer
	extract  ChunkExtractor
	engine   engine.Transcriber
	notifier Notifier
	log      *slog.Logger
	tracer   trace.Tracer
	metrics  *jobMetrics

	// Overridable in tests.
	watchdogPoll  time.Duration
	statusTick    time.Duration
	watchdogLimit func(durationSeconds, speedMultiplier float64) time.Duration
}

func NewWorker(cfg config.PipelineConfig, caps engine.Capabilities, deps Deps) *Worker {
	notifier := deps.Notifier
	if notifier == nil {
		notifier = NopNotifier{}
	}
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	metrics, err := newJobMetrics()
	if err != nil {
		log.Warn("pipeline metrics unavailable", slog.String("error", err.Error()))
	}
	return &Worker{
		cfg:          cfg,
		caps:         caps,
		prober:       deps.Prober,
		norm:         deps.Normalizer,
		extract:      deps.Extractor,
		engine:       deps.Engine,
		notifier:     notifier,
		log:          log,
		tracer:       otel.Tracer("loqa-transcribe/pipeline"),
		metrics:      metrics,
		watchdogPoll: watchdogPollInterval,
		statusTick:   statusTickInterval,
		watchdogLimit: func(durationSeconds, speedMultiplier float64) time.Duration {
			return WatchdogTimeout(durationSeconds, speedMultiplier, time.Duration(cfg.WatchdogFloorS)*time.Second)
		},
	}
}

// Run executes one job start to finish. Per-chunk failures are folded into
// the Result; everything else (conversion, whole-file engine failure, save
// failure, watchdog timeout) is fatal and returned as an error. An empty
// jobID is replaced with a fresh one; callers that announce the job on the
// bus supply their own so every event carries the same ID.
func (w *Worker) Run(ctx context.Context, jobID, sourcePath, language string) (Result, error) {
	if language == "" {
		language = "en"
	}
	if jobID == "" {
		jobID = uuid.NewString()
	}
	started := time.Now()

	ctx, span := w.tracer.Start(ctx, "transcribe.job", trace.WithAttributes(
		attribute.String("job.id", jobID),
		attribute.String("job.source", filepath.Base(sourcePath)),
		attribute.String("job.language", language),
		attribute.String("engine.device", w.caps.Device),
	))
	defer span.End()

	result := Result{JobID: jobID, Source: sourcePath}
	fail := func(err error) (Result, error) {
		result.Elapsed = time.Since(started)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		w.notifier.Log(fmt.Sprintf("ERROR: %v", err))
		return result, err
	}

	tracker := NewTracker(w.notifier)
	w.notifier.Status(fmt.Sprintf("Using %s (%s)", w.caps.Device, w.caps.ComputeType))
	w.notifier.Log(fmt.Sprintf("Processing with: %s, compute type %s", w.caps.Device, w.caps.ComputeType))

	// Step 1: check and convert the container.
	tracker.EnterStep(StepFormatCheck, "")
	w.notifier.Log(fmt.Sprintf("Checking file format: %s", filepath.Base(sourcePath)))
	path, err := w.norm.EnsureWAV(ctx, sourcePath)
	if err != nil {
		return fail(fmt.Errorf("format normalization: %w", err))
	}
	if path != sourcePath {
		w.notifier.Log(fmt.Sprintf("Conversion complete: %s", filepath.Base(path)))
	}

	// Duration feeds both the progress math and the watchdog budget, so it
	// is computed before the engine warms up.
	w.notifier.Log("Analyzing audio file duration...")
	duration := w.prober.Duration(ctx, path)
	result.Duration = duration
	estimate := EstimateSeconds(duration, w.caps.SpeedMultiplier)
	w.notifier.Log(fmt.Sprintf("Audio duration: %s, estimated processing time: %s",
		transcript.Clock(duration), transcript.Clock(estimate)))

	// Step 2: engine preparation.
	tracker.EnterStep(StepEnginePrep, "")
	w.notifier.Log(fmt.Sprintf("Preparing recognition engine (compute type: %s)", w.caps.ComputeType))

	// Step 3: pre-transcription analysis.
	tracker.EnterStep(StepAnalyze, "")

	// Step 4: transcription, guarded by the watchdog and narrated by the
	// elapsed-time ticker. Both stop when tickCtx is cancelled.
	tracker.EnterStep(StepTranscribe, "")
	transcribeStart := time.Now()

	tickCtx, stopTicks := context.WithCancel(ctx)
	var tickers sync.WaitGroup

	watchdog := NewWatchdog(
		w.watchdogLimit(duration, w.caps.SpeedMultiplier),
		w.watchdogPoll,
		w.notifier,
	)
	tickers.Add(2)
	go watchdog.Run(tickCtx, &tickers)
	go w.elapsedTicker(tickCtx, &tickers, tracker, transcribeStart)

	segments, failures, terr := w.transcribeAll(ctx, tracker, watchdog, path, duration, language)

	stopTicks()
	tickers.Wait()

	// Chunk failures accumulated before an abort still belong in the result.
	result.Failures = failures
	if terr != nil {
		return fail(terr)
	}
	if watchdog.TimedOut() {
		return fail(&TimeoutError{Limit: watchdog.Limit()})
	}
	tracker.Transcription(1)
	w.notifier.Log("Transcription engine finished processing")

	// Step 5: assemble the transcript.
	tracker.EnterStep(StepProcess, "")
	result.Transcript = transcript.Assemble(segments)
	w.notifier.Log(fmt.Sprintf("Processed %d transcript segments", len(result.Transcript.Segments)))

	// Step 6: export both renditions.
	tracker.EnterStep(StepSave, "")
	txtPath, jsonPath := transcript.OutputPaths(path, w.cfg.OutputDir)
	if err := transcript.WriteText(txtPath, result.Transcript); err != nil {
		return fail(err)
	}
	if err := transcript.WriteJSON(jsonPath, result.Transcript); err != nil {
		return fail(err)
	}
	result.TextPath = txtPath
	result.JSONPath = jsonPath
	w.notifier.Log(fmt.Sprintf("Transcription saved to %s and %s",
		filepath.Base(txtPath), filepath.Base(jsonPath)))

	tracker.Complete()
	tracker.Status("Transcription completed")

	result.Elapsed = time.Since(started)
	if w.metrics != nil {
		w.metrics.jobSeconds.Record(ctx, result.Elapsed.Seconds())
	}
	if duration > 0 {
		w.notifier.Log(fmt.Sprintf("Total processing time: %s (%.2fx real-time)",
			transcript.Clock(result.Elapsed.Seconds()), result.Elapsed.Seconds()/duration))
	}
	return result, nil
}

// transcribeAll picks the processing path: recordings longer than the chunk
// length go through the chunk loop, short ones through a single engine call
// with no offset shifting. Both paths produce the same segment shape.
func (w *Worker) transcribeAll(ctx context.Context, tracker *Tracker, watchdog *Watchdog, path string, duration float64, language string) ([]engine.Segment, []ChunkFailure, error) {
	if duration > w.cfg.ChunkSeconds {
		w.notifier.Log(fmt.Sprintf("Long recording detected (%s). Using chunked processing...",
			transcript.Clock(duration)))
		return w.transcribeChunked(ctx, tracker, watchdog, path, duration, language)
	}

	segments, err := w.engine.Transcribe(ctx, path, language)
	if err != nil {
		return nil, nil, fmt.Errorf("transcription: %w", err)
	}
	w.notifier.Log(fmt.Sprintf("Transcription complete with %d segments", len(segments)))
	return segments, nil, nil
}

func (w *Worker) transcribeChunked(ctx context.Context, tracker *Tracker, watchdog *Watchdog, path string, duration float64, language string) ([]engine.Segment, []ChunkFailure, error) {
	scratch, err := os.MkdirTemp(w.cfg.ScratchDir, "loqa-transcribe-*")
	if err != nil {
		return nil, nil, fmt.Errorf("create scratch dir: %w", err)
	}
	if !w.cfg.KeepScratchDir {
		defer os.RemoveAll(scratch)
	}

	chunkLen := w.cfg.ChunkSeconds
	numChunks := int(duration/chunkLen) + 1
	w.notifier.Log(fmt.Sprintf("Processing %d chunks of %.0f seconds each", numChunks, chunkLen))

	var segments []engine.Segment
	var failures []ChunkFailure

	for i := 0; i < numChunks; i++ {
		if watchdog.TimedOut() {
			return nil, failures, &TimeoutError{Limit: watchdog.Limit()}
		}

		start := float64(i) * chunkLen
		if start >= duration {
			break
		}

		chunkSegments, err := w.processChunk(ctx, path, scratch, i, numChunks, start, chunkLen, language)
		if err != nil {
			stage := "transcribe"
			var exErr *media.ExtractionError
			if errors.As(err, &exErr) {
				stage = "extract"
			}
			failures = append(failures, ChunkFailure{Index: i, Start: start, Stage: stage, Err: err})
			w.notifier.Log(fmt.Sprintf("Error processing chunk %d/%d: %v", i+1, numChunks, err))
			if w.metrics != nil {
				w.metrics.chunksFailed.Add(ctx, 1)
			}
			continue
		}

		for _, s := range chunkSegments {
			s.Start += start
			s.End += start
			segments = append(segments, s)
		}
		tracker.Transcription(float64(i+1) / float64(numChunks))
		w.notifier.Log(fmt.Sprintf("Chunk %d/%d completed with %d segments", i+1, numChunks, len(chunkSegments)))
		if w.metrics != nil {
			w.metrics.chunksProcessed.Add(ctx, 1)
		}
	}

	w.notifier.Log(fmt.Sprintf("Chunked processing complete. Total segments: %d", len(segments)))
	return segments, failures, nil
}

func (w *Worker) processChunk(ctx context.Context, src, scratch string, index, numChunks int, start, length float64, language string) ([]engine.Segment, error) {
	ctx, span := w.tracer.Start(ctx, "transcribe.chunk", trace.WithAttributes(
		attribute.Int("chunk.index", index),
		attribute.Float64("chunk.start", start),
	))
	defer span.End()

	w.notifier.Log(fmt.Sprintf("Extracting chunk %d/%d (at %s)...", index+1, numChunks, transcript.Clock(start)))
	artifact, err := w.extract.Extract(ctx, src, scratch, index, start, length)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	w.notifier.Log(fmt.Sprintf("Transcribing chunk %d/%d...", index+1, numChunks))
	segments, err := w.engine.Transcribe(ctx, artifact, language)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return segments, nil
}

// elapsedTicker narrates the transcription step with elapsed-time status
// updates, plus a coarser still-processing log line.
func (w *Worker) elapsedTicker(ctx context.Context, wg *sync.WaitGroup, tracker *Tracker, start time.Time) {
	defer wg.Done()

	ticker := time.NewTicker(w.statusTick)
	defer ticker.Stop()

	lastLog := start
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			elapsed := now.Sub(start).Seconds()
			tracker.Status(fmt.Sprintf("%s - %s elapsed", StepTranscribe, transcript.Clock(elapsed)))
			if now.Sub(lastLog) >= stillProcessingEvery {
				w.notifier.Log(fmt.Sprintf("Still processing - %s elapsed so far", transcript.Clock(elapsed)))
				lastLog = now
			}
		}
	}
}
