package media

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-audio/wav"
	"github.com/loqalabs/loqa-transcribe/internal/config"
)

const (
	// Rough bitrate assumption for the size-based fallback: one megabyte of
	// typical compressed audio holds about a minute of speech.
	fallbackSecondsPerMB = 60.0

	// Last-resort duration when neither ffprobe nor the filesystem cooperate.
	fallbackDurationSeconds = 60.0
)

// Prober measures recording duration. It never fails: downstream timeout and
// progress math always need some duration, so probing degrades through a
// chain of estimates instead of returning an error.
type Prober struct {
	ffprobe string
	log     *slog.Logger
}

func NewProber(cfg config.MediaConfig, log *slog.Logger) *Prober {
	return &Prober{ffprobe: cfg.FFprobePath, log: log}
}

// Duration returns the recording length in seconds. The primary path asks
// ffprobe; on any failure it falls back to the WAV header, then to a
// file-size estimate, then to a fixed default.
func (p *Prober) Duration(ctx context.Context, path string) float64 {
	if d, err := p.probe(ctx, path); err == nil {
		return d
	} else {
		p.log.Warn("duration probe failed, falling back to estimate",
			slog.String("path", path), slog.String("error", err.Error()))
	}

	if strings.EqualFold(filepath.Ext(path), ".wav") {
		if d, err := wavHeaderDuration(path); err == nil {
			return d
		}
	}

	info, err := os.Stat(path)
	if err != nil {
		return fallbackDurationSeconds
	}
	sizeMB := float64(info.Size()) / (1024 * 1024)
	return sizeMB * fallbackSecondsPerMB
}

func (p *Prober) probe(ctx context.Context, path string) (float64, error) {
	cmd := exec.CommandContext(ctx, p.ffprobe,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return 0, err
	}
	return strconv.ParseFloat(strings.TrimSpace(stdout.String()), 64)
}

func wavHeaderDuration(path string) (float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	d, err := dec.Duration()
	if err != nil {
		return 0, err
	}
	return d.Seconds(), nil
}
