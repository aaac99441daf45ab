package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/loqalabs/loqa-transcribe/internal/bus"
	"github.com/loqalabs/loqa-transcribe/internal/config"
	"github.com/loqalabs/loqa-transcribe/internal/engine"
	"github.com/loqalabs/loqa-transcribe/internal/jobstore"
	"github.com/loqalabs/loqa-transcribe/internal/media"
	"github.com/loqalabs/loqa-transcribe/internal/pipeline"
	"github.com/loqalabs/loqa-transcribe/internal/protocol"
	"github.com/loqalabs/loqa-transcribe/internal/telemetry"
)

var version = "0.1.0-dev"

func main() {
	var (
		configPath  string
		inputPath   string
		language    string
		showVersion bool
	)

	flag.StringVar(&configPath, "config", "loqa-transcribe.yaml", "Path to configuration file")
	flag.StringVar(&inputPath, "input", "", "Audio or video recording to transcribe")
	flag.StringVar(&language, "language", "", "Language code override (default from config)")
	flag.BoolVar(&showVersion, "version", false, "Print version and exit")
	flag.Parse()

	if showVersion {
		fmt.Println(version)
		return
	}

	// Local overrides come from .env when present; absence is not an error.
	_ = godotenv.Load()

	if inputPath == "" {
		fmt.Fprintln(os.Stderr, "usage: loqa-transcribe -input <recording> [-config <path>] [-language <code>]")
		os.Exit(2)
	}

	// The default config path is optional; an explicitly passed one is not.
	if configPath == "loqa-transcribe.yaml" {
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			configPath = ""
		}
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stdout, nil)).Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel(cfg.Telemetry.LogLevel)}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, inputPath, language); err != nil {
		logger.Error("transcription failed", slog.String("error", err.Error()))
		time.Sleep(100 * time.Millisecond)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger, inputPath, language string) error {
	shutdownTelemetry, err := telemetry.Setup(cfg, logger)
	if err != nil {
		return fmt.Errorf("setup telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
		}
	}()

	store, err := jobstore.Open(ctx, cfg.JobStore, logger)
	if err != nil {
		return fmt.Errorf("open job store: %w", err)
	}
	defer store.Close()

	jobID := uuid.NewString()
	source := filepath.Base(inputPath)
	notifiers := []pipeline.Notifier{
		pipeline.NewSlogNotifier(logger),
		&storeNotifier{ctx: ctx, store: store, jobID: jobID, source: source, log: logger},
	}

	var busClient *bus.Client
	if cfg.Bus.Enabled {
		busClient, err = bus.Connect(cfg.Bus, logger)
		if err != nil {
			return fmt.Errorf("connect bus: %w", err)
		}
		defer busClient.Close()
		notifiers = append(notifiers, bus.NewNotifier(busClient, jobID, source))
	}

	caps := engine.Probe(cfg.Engine)
	logger.Info("engine capabilities",
		slog.String("device", caps.Device),
		slog.String("compute_type", caps.ComputeType),
		slog.Float64("speed_multiplier", caps.SpeedMultiplier))

	transcriber, err := engine.New(cfg.Engine, caps)
	if err != nil {
		return fmt.Errorf("create transcriber: %w", err)
	}

	if language == "" {
		language = cfg.Engine.Language
	}

	worker := pipeline.NewWorker(cfg.Pipeline, caps, pipeline.Deps{
		Prober:     media.NewProber(cfg.Media, logger),
		Normalizer: media.NewConverter(cfg.Media, logger),
		Extractor:  media.NewExtractor(cfg.Media, logger),
		Engine:     transcriber,
		Notifier:   pipeline.Fanout(notifiers...),
		Logger:     logger,
	})

	result, runErr := worker.Run(ctx, jobID, inputPath, language)

	terminal := protocol.JobResult{
		JobID:          result.JobID,
		Source:         source,
		Success:        runErr == nil,
		TextPath:       result.TextPath,
		JSONPath:       result.JSONPath,
		Segments:       len(result.Transcript.Segments),
		FailedChunks:   len(result.Failures),
		ElapsedSeconds: result.Elapsed.Seconds(),
		Timestamp:      time.Now().UTC(),
	}
	if runErr != nil {
		terminal.Error = runErr.Error()
	}
	if err := store.RecordResult(ctx, terminal); err != nil {
		logger.Warn("failed to record job result", slog.String("error", err.Error()))
	}
	if busClient != nil {
		bus.PublishResult(busClient, terminal)
	}

	if runErr != nil {
		return runErr
	}

	logger.Info("transcription complete",
		slog.String("job_id", result.JobID),
		slog.String("text", result.TextPath),
		slog.String("json", result.JSONPath),
		slog.Int("segments", len(result.Transcript.Segments)),
		slog.Int("failed_chunks", len(result.Failures)))
	return nil
}

func logLevel(name string) slog.Level {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// storeNotifier persists worker log lines; progress events stay in memory.
type storeNotifier struct {
	ctx    context.Context
	store  *jobstore.Store
	jobID  string
	source string
	log    *slog.Logger
}

func (s *storeNotifier) Progress(int)  {}
func (s *storeNotifier) Step(int, int) {}
func (s *storeNotifier) Status(string) {}

func (s *storeNotifier) Log(line string) {
	if err := s.store.AppendLog(s.ctx, s.jobID, s.source, line); err != nil {
		s.log.Warn("failed to persist job log", slog.String("error", err.Error()))
	}
}
