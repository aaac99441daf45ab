package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/loqalabs/loqa-transcribe/internal/config"
	"github.com/mattn/go-shellwords"
)

// execTranscriber shells out to a recognition helper (typically a
// faster-whisper wrapper) and decodes its JSON result from stdout.
type execTranscriber struct {
	cmd  []string
	cfg  config.EngineConfig
	caps Capabilities
	mu   sync.Mutex
}

type execResult struct {
	Language string        `json:"language"`
	Duration float64       `json:"duration"`
	Segments []execSegment `json:"segments"`
}

type execSegment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

func NewExecTranscriber(cfg config.EngineConfig, caps Capabilities) (Transcriber, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(cfg.Command)
	if err != nil {
		return nil, fmt.Errorf("parse engine command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("engine command is empty")
	}
	return &execTranscriber{cmd: args, cfg: cfg, caps: caps}, nil
}

func (t *execTranscriber) Transcribe(ctx context.Context, audioPath, language string) ([]Segment, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if language == "" {
		language = "en"
	}

	base := t.cmd[0]
	args := append([]string{}, t.cmd[1:]...)
	args = append(args, t.buildArgs(audioPath, language)...)

	command := exec.CommandContext(ctx, base, args...)
	var stdout, stderr bytes.Buffer
	command.Stdout = &stdout
	command.Stderr = &stderr

	if err := command.Run(); err != nil {
		return nil, &Error{Path: audioPath, Err: fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr.String()))}
	}

	segments, err := parseResult(stdout.Bytes())
	if err != nil {
		return nil, &Error{Path: audioPath, Err: err}
	}
	return segments, nil
}

func (t *execTranscriber) buildArgs(audioPath, language string) []string {
	args := []string{
		"--audio", audioPath,
		"--model", t.cfg.Model,
		"--language", language,
		"--beam-size", strconv.Itoa(t.cfg.BeamSize),
		"--device", t.caps.Device,
		"--compute-type", t.caps.ComputeType,
	}
	if t.cfg.VADFilter {
		args = append(args, "--vad-filter")
	}
	if t.cfg.WordTimestamps {
		args = append(args, "--word-timestamps")
	}
	return args
}

// parseResult decodes the helper's JSON and materializes the full segment
// list, trimming whisper's leading-space text quirk.
func parseResult(out []byte) ([]Segment, error) {
	var parsed execResult
	if err := json.Unmarshal(out, &parsed); err != nil {
		return nil, fmt.Errorf("decode engine response: %w", err)
	}
	segments := make([]Segment, 0, len(parsed.Segments))
	for _, s := range parsed.Segments {
		segments = append(segments, Segment{
			Start: s.Start,
			End:   s.End,
			Text:  strings.TrimSpace(s.Text),
		})
	}
	return segments, nil
}
