package engine

import (
	"context"
	"fmt"

	"github.com/loqalabs/loqa-transcribe/internal/config"
)

// Segment is one contiguous span of recognized speech. Times are seconds
// relative to the start of the transcribed artifact, not the original
// recording; the pipeline shifts them when processing chunks.
type Segment struct {
	Start float64
	End   float64
	Text  string
}

// Transcriber abstracts speech recognition backends. Implementations must
// fully materialize the segment list before returning; callers rely on a
// complete, known-length result for progress accounting.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath, language string) ([]Segment, error)
}

// Error reports a failed engine invocation.
type Error struct {
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("transcribe %s: %v", e.Path, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a transcriber for the configured mode.
func New(cfg config.EngineConfig, caps Capabilities) (Transcriber, error) {
	switch cfg.Mode {
	case "mock":
		return NewMockTranscriber(), nil
	case "exec":
		return NewExecTranscriber(cfg, caps)
	default:
		return nil, fmt.Errorf("unknown engine mode %q", cfg.Mode)
	}
}
