package media

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/loqalabs/loqa-transcribe/internal/config"
)

// Extractor slices bounded-duration chunks out of a source recording into
// self-contained WAV artifacts in the recognition engine's expected sample
// format (16-bit PCM at the configured rate).
type Extractor struct {
	ffmpeg     string
	sampleRate int
	channels   int
	log        *slog.Logger
}

func NewExtractor(cfg config.MediaConfig, log *slog.Logger) *Extractor {
	return &Extractor{
		ffmpeg:     cfg.FFmpegPath,
		sampleRate: cfg.SampleRate,
		channels:   cfg.Channels,
		log:        log,
	}
}

// Extract writes the chunk covering [start, start+length) seconds of src
// into dir and returns the artifact path. ffmpeg clips the range to the
// source duration on its own, so the final chunk is simply shorter.
func (e *Extractor) Extract(ctx context.Context, src, dir string, index int, start, length float64) (string, error) {
	out := filepath.Join(dir, fmt.Sprintf("chunk_%d.wav", index))

	cmd := exec.CommandContext(ctx, e.ffmpeg,
		"-y",
		"-i", src,
		"-ss", formatSeconds(start),
		"-t", formatSeconds(length),
		"-c:a", "pcm_s16le",
		"-ar", strconv.Itoa(e.sampleRate),
		"-ac", strconv.Itoa(e.channels),
		out,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", &ExtractionError{
			Index: index,
			Start: start,
			Err:   fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr.String())),
		}
	}
	e.log.Debug("extracted chunk",
		slog.Int("index", index),
		slog.String("artifact", filepath.Base(out)))
	return out, nil
}

func formatSeconds(s float64) string {
	return strconv.FormatFloat(s, 'f', 3, 64)
}
