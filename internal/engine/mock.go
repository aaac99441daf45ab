package engine

import (
	"context"
	"fmt"
	"path/filepath"
)

type mockTranscriber struct{}

// NewMockTranscriber returns a transcriber that fabricates a single segment
// per call. Useful for exercising the pipeline without a model installed.
func NewMockTranscriber() Transcriber {
	return &mockTranscriber{}
}

func (m *mockTranscriber) Transcribe(_ context.Context, audioPath, language string) ([]Segment, error) {
	return []Segment{
		{
			Start: 0,
			End:   1,
			Text:  fmt.Sprintf("[mock %s transcript of %s]", language, filepath.Base(audioPath)),
		},
	}, nil
}
