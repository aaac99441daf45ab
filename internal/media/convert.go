package media

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/loqalabs/loqa-transcribe/internal/config"
)

// Converter normalizes input containers into WAV, the one format both the
// chunk extractor and the recognition engine are guaranteed to decode.
type Converter struct {
	ffmpeg string
	log    *slog.Logger
}

func NewConverter(cfg config.MediaConfig, log *slog.Logger) *Converter {
	return &Converter{ffmpeg: cfg.FFmpegPath, log: log}
}

// EnsureWAV returns a path to a WAV rendition of the input. WAV inputs pass
// through untouched; anything else is transcoded synchronously into a
// sibling file with the same basename.
func (c *Converter) EnsureWAV(ctx context.Context, path string) (string, error) {
	if strings.EqualFold(filepath.Ext(path), ".wav") {
		return path, nil
	}

	out := strings.TrimSuffix(path, filepath.Ext(path)) + ".wav"
	c.log.Info("converting input to WAV",
		slog.String("input", filepath.Base(path)),
		slog.String("output", filepath.Base(out)))

	cmd := exec.CommandContext(ctx, c.ffmpeg, "-y", "-i", path, out)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", &ConversionError{Path: path, Err: fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr.String()))}
	}
	return out, nil
}
