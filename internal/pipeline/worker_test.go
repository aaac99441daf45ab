package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/loqalabs/loqa-transcribe/internal/config"
	"github.com/loqalabs/loqa-transcribe/internal/engine"
	"github.com/loqalabs/loqa-transcribe/internal/media"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fakeProber struct {
	duration float64
}

func (f fakeProber) Duration(context.Context, string) float64 { return f.duration }

type fakeNormalizer struct {
	err error
}

func (f fakeNormalizer) EnsureWAV(_ context.Context, path string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return path, nil
}

type extractCall struct {
	index  int
	start  float64
	length float64
}

type fakeExtractor struct {
	mu        sync.Mutex
	calls     []extractCall
	failIndex int // -1 for none
}

func (f *fakeExtractor) Extract(_ context.Context, _, dir string, index int, start, length float64) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, extractCall{index: index, start: start, length: length})
	f.mu.Unlock()
	if index == f.failIndex {
		return "", &media.ExtractionError{Index: index, Start: start, Err: errors.New("ffmpeg exit 1")}
	}
	return filepath.Join(dir, fmt.Sprintf("chunk_%d.wav", index)), nil
}

type scriptedEngine struct {
	mu        sync.Mutex
	calls     []string
	failCalls map[int]bool // 0-based call ordinal
	segments  []engine.Segment
}

func newScriptedEngine() *scriptedEngine {
	return &scriptedEngine{
		failCalls: map[int]bool{},
		segments: []engine.Segment{
			{Start: 0.5, End: 3.2, Text: "hello"},
			{Start: 10.0, End: 20.0, Text: "world"},
		},
	}
}

func (e *scriptedEngine) Transcribe(_ context.Context, path, _ string) ([]engine.Segment, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ordinal := len(e.calls)
	e.calls = append(e.calls, path)
	if e.failCalls[ordinal] {
		return nil, &engine.Error{Path: path, Err: errors.New("model crashed")}
	}
	out := make([]engine.Segment, len(e.segments))
	copy(out, e.segments)
	return out, nil
}

// stallingEngine delays every call before delegating, long enough for the
// watchdog and status tickers to observe an in-flight transcription.
type stallingEngine struct {
	delay time.Duration
	inner *scriptedEngine
}

func (e *stallingEngine) Transcribe(ctx context.Context, path, language string) ([]engine.Segment, error) {
	time.Sleep(e.delay)
	return e.inner.Transcribe(ctx, path, language)
}

type workerFixture struct {
	worker    *Worker
	prober    *fakeProber
	extractor *fakeExtractor
	engine    *scriptedEngine
	notifier  *recordingNotifier
	source    string
}

func newFixture(t *testing.T, duration float64) *workerFixture {
	t.Helper()
	dir := t.TempDir()
	fx := &workerFixture{
		prober:    &fakeProber{duration: duration},
		extractor: &fakeExtractor{failIndex: -1},
		engine:    newScriptedEngine(),
		notifier:  &recordingNotifier{},
		source:    filepath.Join(dir, "recording.wav"),
	}
	cfg := config.PipelineConfig{ChunkSeconds: 60, WatchdogFloorS: 1200}
	caps := engine.Capabilities{Device: "cpu", ComputeType: "float32", SpeedMultiplier: 0.9}
	fx.worker = NewWorker(cfg, caps, Deps{
		Prober:     fx.prober,
		Normalizer: fakeNormalizer{},
		Extractor:  fx.extractor,
		Engine:     fx.engine,
		Notifier:   fx.notifier,
		Logger:     testLogger(),
	})
	return fx
}

func TestShortRecordingSingleEngineCall(t *testing.T) {
	fx := newFixture(t, 45)
	result, err := fx.worker.Run(context.Background(), "", fx.source, "en")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(fx.engine.calls) != 1 {
		t.Fatalf("expected exactly one engine call, got %d", len(fx.engine.calls))
	}
	if fx.engine.calls[0] != fx.source {
		t.Fatalf("expected whole-file call on source, got %s", fx.engine.calls[0])
	}
	if len(fx.extractor.calls) != 0 {
		t.Fatalf("expected no chunk extraction, got %d calls", len(fx.extractor.calls))
	}
	// Whole-file mode must not shift segment times.
	if result.Transcript.Segments[0].Start != 0.5 || result.Transcript.Segments[1].End != 20.0 {
		t.Fatalf("segment times were shifted: %+v", result.Transcript.Segments)
	}
	if result.TextPath == "" || result.JSONPath == "" {
		t.Fatal("expected output paths in result")
	}
	if _, err := os.Stat(result.TextPath); err != nil {
		t.Fatalf("text output missing: %v", err)
	}
}

func TestChunkedRunShiftsAndOrders(t *testing.T) {
	fx := newFixture(t, 150) // 3 chunks: 0, 60, 120
	result, err := fx.worker.Run(context.Background(), "", fx.source, "en")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(fx.extractor.calls) != 3 {
		t.Fatalf("expected 3 extractions, got %d", len(fx.extractor.calls))
	}
	for i, call := range fx.extractor.calls {
		if call.index != i || call.start != float64(i)*60 || call.length != 60 {
			t.Fatalf("unexpected extraction call %d: %+v", i, call)
		}
	}
	if len(result.Transcript.Segments) != 6 {
		t.Fatalf("expected 6 segments, got %d", len(result.Transcript.Segments))
	}

	prev := -1.0
	for i, s := range result.Transcript.Segments {
		chunk := i / 2
		lower := float64(chunk) * 60
		upper := float64(chunk+1)*60 + 30 // segments may spill past the boundary
		if s.Start < lower || s.End >= upper {
			t.Fatalf("segment %d outside chunk window [%v, %v): %+v", i, lower, upper, s)
		}
		if s.Start < prev {
			t.Fatalf("segments not ordered by start: %+v", result.Transcript.Segments)
		}
		prev = s.Start
	}
}

func TestChunkCountSkipsStartBeyondDuration(t *testing.T) {
	// floor(120/60)+1 = 3 iterations, but the third starts at 120 >= 120.
	fx := newFixture(t, 120)
	if _, err := fx.worker.Run(context.Background(), "", fx.source, "en"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fx.extractor.calls) != 2 {
		t.Fatalf("expected final iteration skipped, got %d extractions", len(fx.extractor.calls))
	}
}

func TestChunkExtractionFailureSkipsChunk(t *testing.T) {
	clean := newFixture(t, 150)
	if _, err := clean.worker.Run(context.Background(), "", clean.source, "en"); err != nil {
		t.Fatalf("clean run failed: %v", err)
	}
	cleanCount := 6

	fx := newFixture(t, 150)
	fx.extractor.failIndex = 1
	result, err := fx.worker.Run(context.Background(), "", fx.source, "en")
	if err != nil {
		t.Fatalf("job must survive a failed chunk, got %v", err)
	}
	if len(result.Failures) != 1 {
		t.Fatalf("expected 1 recorded failure, got %d", len(result.Failures))
	}
	f := result.Failures[0]
	if f.Index != 1 || f.Stage != "extract" {
		t.Fatalf("unexpected failure record: %+v", f)
	}
	if len(result.Transcript.Segments) == 0 {
		t.Fatal("expected non-empty transcript from surviving chunks")
	}
	if len(result.Transcript.Segments) >= cleanCount {
		t.Fatalf("expected fewer segments than clean run (%d), got %d",
			cleanCount, len(result.Transcript.Segments))
	}
}

func TestChunkTranscriptionFailureSkipsChunk(t *testing.T) {
	fx := newFixture(t, 150)
	fx.engine.failCalls[1] = true
	result, err := fx.worker.Run(context.Background(), "", fx.source, "en")
	if err != nil {
		t.Fatalf("job must survive a failed chunk, got %v", err)
	}
	if len(result.Failures) != 1 || result.Failures[0].Stage != "transcribe" {
		t.Fatalf("unexpected failures: %+v", result.Failures)
	}
	if len(result.Transcript.Segments) != 4 {
		t.Fatalf("expected 4 segments from the two surviving chunks, got %d",
			len(result.Transcript.Segments))
	}
}

func TestConversionFailureIsFatal(t *testing.T) {
	fx := newFixture(t, 45)
	fx.worker.norm = fakeNormalizer{err: &media.ConversionError{Path: fx.source, Err: errors.New("exit 1")}}
	_, err := fx.worker.Run(context.Background(), "", fx.source, "en")
	var convErr *media.ConversionError
	if !errors.As(err, &convErr) {
		t.Fatalf("expected ConversionError, got %v", err)
	}
	if len(fx.engine.calls) != 0 {
		t.Fatal("engine must not run after conversion failure")
	}
}

func TestWholeFileEngineFailureIsFatal(t *testing.T) {
	fx := newFixture(t, 30)
	fx.engine.failCalls[0] = true
	_, err := fx.worker.Run(context.Background(), "", fx.source, "en")
	var engErr *engine.Error
	if !errors.As(err, &engErr) {
		t.Fatalf("expected engine error, got %v", err)
	}
}

func TestSaveFailureIsFatal(t *testing.T) {
	fx := newFixture(t, 45)
	fx.worker.cfg.OutputDir = filepath.Join(t.TempDir(), "does", "not", "exist")
	if _, err := fx.worker.Run(context.Background(), "", fx.source, "en"); err == nil {
		t.Fatal("expected save failure to fail the job")
	}
}

func TestIdempotentTextOutput(t *testing.T) {
	fx := newFixture(t, 150)
	first, err := fx.worker.Run(context.Background(), "", fx.source, "en")
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	firstBytes, err := os.ReadFile(first.TextPath)
	if err != nil {
		t.Fatalf("read first output: %v", err)
	}

	second, err := fx.worker.Run(context.Background(), "", fx.source, "en")
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	secondBytes, err := os.ReadFile(second.TextPath)
	if err != nil {
		t.Fatalf("read second output: %v", err)
	}
	if string(firstBytes) != string(secondBytes) {
		t.Fatal("expected byte-identical text output across runs")
	}
}

func TestWatchdogTimeoutFailsWholeFileJob(t *testing.T) {
	fx := newFixture(t, 30)
	fx.worker.engine = &stallingEngine{delay: 200 * time.Millisecond, inner: fx.engine}
	fx.worker.watchdogPoll = 5 * time.Millisecond
	fx.worker.watchdogLimit = func(float64, float64) time.Duration { return 30 * time.Millisecond }

	_, err := fx.worker.Run(context.Background(), "", fx.source, "en")
	var toErr *TimeoutError
	if !errors.As(err, &toErr) {
		t.Fatalf("expected TimeoutError after stalled whole-file call, got %v", err)
	}
}

func TestWatchdogTimeoutAbortsChunkLoop(t *testing.T) {
	fx := newFixture(t, 150)
	fx.extractor.failIndex = 0
	fx.worker.engine = &stallingEngine{delay: 200 * time.Millisecond, inner: fx.engine}
	fx.worker.watchdogPoll = 5 * time.Millisecond
	fx.worker.watchdogLimit = func(float64, float64) time.Duration { return 30 * time.Millisecond }

	result, err := fx.worker.Run(context.Background(), "", fx.source, "en")
	var toErr *TimeoutError
	if !errors.As(err, &toErr) {
		t.Fatalf("expected TimeoutError from the chunk boundary check, got %v", err)
	}
	// The stalled chunk trips the watchdog; the loop must not start another.
	if len(fx.engine.calls) != 1 {
		t.Fatalf("expected loop to stop after the stalled chunk, got %d engine calls", len(fx.engine.calls))
	}
	// Failures accumulated before the abort still reach the result.
	if len(result.Failures) != 1 || result.Failures[0].Index != 0 {
		t.Fatalf("expected the earlier chunk failure on the timed-out result, got %+v", result.Failures)
	}
}

func TestElapsedStatusTicker(t *testing.T) {
	fx := newFixture(t, 30)
	fx.worker.engine = &stallingEngine{delay: 80 * time.Millisecond, inner: fx.engine}
	fx.worker.statusTick = 5 * time.Millisecond

	if _, err := fx.worker.Run(context.Background(), "", fx.source, "en"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	found := false
	for _, s := range fx.notifier.statusSeq() {
		if strings.HasPrefix(s, "Transcribing audio - ") && strings.HasSuffix(s, "elapsed") {
			found = true
			break
		}
	}
	if !found {
		t.Fatalf("expected elapsed-time status updates during transcription, got %v", fx.notifier.statusSeq())
	}
}

func TestProgressMonotonicEndsAtHundred(t *testing.T) {
	fx := newFixture(t, 150)
	if _, err := fx.worker.Run(context.Background(), "", fx.source, "en"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	seq := fx.notifier.percentSeq()
	if len(seq) == 0 {
		t.Fatal("expected progress events")
	}
	last := -1
	for _, p := range seq {
		if p < last {
			t.Fatalf("progress went backwards: %v", seq)
		}
		last = p
	}
	if last != 100 {
		t.Fatalf("expected progress to end at 100, got %d (%v)", last, seq)
	}
}
