package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel       string `yaml:"log_level"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	OTLPInsecure   bool   `yaml:"otlp_insecure"`
	PrometheusBind string `yaml:"prometheus_bind"`
}

type BusConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

// MediaConfig controls the external ffmpeg/ffprobe tooling used for
// duration probing, format conversion, and chunk extraction.
type MediaConfig struct {
	FFmpegPath  string `yaml:"ffmpeg_path"`
	FFprobePath string `yaml:"ffprobe_path"`
	SampleRate  int    `yaml:"sample_rate"`
	Channels    int    `yaml:"channels"`
}

// EngineConfig configures the speech recognition engine adapter.
type EngineConfig struct {
	Mode           string  `yaml:"mode"` // mock, exec
	Command        string  `yaml:"command"`
	Model          string  `yaml:"model"`
	Language       string  `yaml:"language"`
	BeamSize       int     `yaml:"beam_size"`
	VADFilter      bool    `yaml:"vad_filter"`
	WordTimestamps bool    `yaml:"word_timestamps"`
	ComputeType    string  `yaml:"compute_type"`
	Device         string  `yaml:"device"` // auto, cpu, cuda
	CUDAMultiplier float64 `yaml:"cuda_speed_multiplier"`
	CPUMultiplier  float64 `yaml:"cpu_speed_multiplier"`
}

// PipelineConfig controls chunking and job-level behavior.
type PipelineConfig struct {
	ChunkSeconds   float64 `yaml:"chunk_seconds"`
	OutputDir      string  `yaml:"output_dir"`
	ScratchDir     string  `yaml:"scratch_dir"`
	WatchdogFloorS int     `yaml:"watchdog_floor_seconds"`
	KeepScratchDir bool    `yaml:"keep_scratch_dir"`
}

type JobStoreConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Path          string `yaml:"path"`
	MaxJobs       int    `yaml:"max_jobs"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

type Config struct {
	RuntimeName string          `yaml:"runtime_name"`
	Environment string          `yaml:"environment"`
	Telemetry   TelemetryConfig `yaml:"telemetry"`
	Bus         BusConfig       `yaml:"bus"`
	Media       MediaConfig     `yaml:"media"`
	Engine      EngineConfig    `yaml:"engine"`
	Pipeline    PipelineConfig  `yaml:"pipeline"`
	JobStore    JobStoreConfig  `yaml:"job_store"`
}

func Default() Config {
	return Config{
		RuntimeName: "loqa-transcribe",
		Environment: "development",
		Telemetry: TelemetryConfig{
			LogLevel:     "info",
			OTLPEndpoint: "",
			OTLPInsecure: true,
		},
		Bus: BusConfig{
			Enabled:        false,
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		Media: MediaConfig{
			FFmpegPath:  "ffmpeg",
			FFprobePath: "ffprobe",
			SampleRate:  16000,
			Channels:    1,
		},
		Engine: EngineConfig{
			Mode:           "mock",
			Model:          "small",
			Language:       "en",
			BeamSize:       1,
			VADFilter:      true,
			WordTimestamps: false,
			ComputeType:    "float32",
			Device:         "auto",
			CUDAMultiplier: 0.3,
			CPUMultiplier:  0.9,
		},
		Pipeline: PipelineConfig{
			ChunkSeconds:   60,
			WatchdogFloorS: 1200,
		},
		JobStore: JobStoreConfig{
			Enabled: false,
			Path:    "./data/loqa-transcribe.db",
			MaxJobs: 1000,
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.RuntimeName, "LOQA_TRANSCRIBE_RUNTIME_NAME")
	overrideString(&cfg.Environment, "LOQA_TRANSCRIBE_ENVIRONMENT")
	overrideString(&cfg.Telemetry.LogLevel, "LOQA_TRANSCRIBE_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "LOQA_TRANSCRIBE_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "LOQA_TRANSCRIBE_OTLP_INSECURE")
	overrideString(&cfg.Telemetry.PrometheusBind, "LOQA_TRANSCRIBE_PROMETHEUS_BIND")
	overrideBool(&cfg.Bus.Enabled, "LOQA_TRANSCRIBE_BUS_ENABLED")
	overrideStringSlice(&cfg.Bus.Servers, "LOQA_TRANSCRIBE_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "LOQA_TRANSCRIBE_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "LOQA_TRANSCRIBE_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "LOQA_TRANSCRIBE_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "LOQA_TRANSCRIBE_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "LOQA_TRANSCRIBE_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.Media.FFmpegPath, "LOQA_TRANSCRIBE_FFMPEG_PATH")
	overrideString(&cfg.Media.FFprobePath, "LOQA_TRANSCRIBE_FFPROBE_PATH")
	overrideInt(&cfg.Media.SampleRate, "LOQA_TRANSCRIBE_SAMPLE_RATE")
	overrideInt(&cfg.Media.Channels, "LOQA_TRANSCRIBE_CHANNELS")
	overrideString(&cfg.Engine.Mode, "LOQA_TRANSCRIBE_ENGINE_MODE")
	overrideString(&cfg.Engine.Command, "LOQA_TRANSCRIBE_ENGINE_COMMAND")
	overrideString(&cfg.Engine.Model, "LOQA_TRANSCRIBE_ENGINE_MODEL")
	overrideString(&cfg.Engine.Language, "LOQA_TRANSCRIBE_ENGINE_LANGUAGE")
	overrideInt(&cfg.Engine.BeamSize, "LOQA_TRANSCRIBE_ENGINE_BEAM_SIZE")
	overrideBool(&cfg.Engine.VADFilter, "LOQA_TRANSCRIBE_ENGINE_VAD_FILTER")
	overrideBool(&cfg.Engine.WordTimestamps, "LOQA_TRANSCRIBE_ENGINE_WORD_TIMESTAMPS")
	overrideString(&cfg.Engine.ComputeType, "LOQA_TRANSCRIBE_ENGINE_COMPUTE_TYPE")
	overrideString(&cfg.Engine.Device, "LOQA_TRANSCRIBE_ENGINE_DEVICE")
	overrideFloat(&cfg.Engine.CUDAMultiplier, "LOQA_TRANSCRIBE_ENGINE_CUDA_MULTIPLIER")
	overrideFloat(&cfg.Engine.CPUMultiplier, "LOQA_TRANSCRIBE_ENGINE_CPU_MULTIPLIER")
	overrideFloat(&cfg.Pipeline.ChunkSeconds, "LOQA_TRANSCRIBE_CHUNK_SECONDS")
	overrideString(&cfg.Pipeline.OutputDir, "LOQA_TRANSCRIBE_OUTPUT_DIR")
	overrideString(&cfg.Pipeline.ScratchDir, "LOQA_TRANSCRIBE_SCRATCH_DIR")
	overrideInt(&cfg.Pipeline.WatchdogFloorS, "LOQA_TRANSCRIBE_WATCHDOG_FLOOR_SECONDS")
	overrideBool(&cfg.Pipeline.KeepScratchDir, "LOQA_TRANSCRIBE_KEEP_SCRATCH_DIR")
	overrideBool(&cfg.JobStore.Enabled, "LOQA_TRANSCRIBE_JOB_STORE_ENABLED")
	overrideString(&cfg.JobStore.Path, "LOQA_TRANSCRIBE_JOB_STORE_PATH")
	overrideInt(&cfg.JobStore.MaxJobs, "LOQA_TRANSCRIBE_JOB_STORE_MAX_JOBS")
	overrideBool(&cfg.JobStore.VacuumOnStart, "LOQA_TRANSCRIBE_JOB_STORE_VACUUM_ON_START")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideFloat(target *float64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func validate(cfg Config) error {
	if cfg.RuntimeName == "" {
		return errors.New("runtime_name must not be empty")
	}
	if cfg.Bus.Enabled && len(cfg.Bus.Servers) == 0 {
		return errors.New("bus.servers must not be empty when the bus is enabled")
	}
	if cfg.Media.FFmpegPath == "" {
		return errors.New("media.ffmpeg_path must not be empty")
	}
	if cfg.Media.FFprobePath == "" {
		return errors.New("media.ffprobe_path must not be empty")
	}
	if cfg.Media.SampleRate <= 0 {
		return errors.New("media.sample_rate must be positive")
	}
	if cfg.Media.Channels <= 0 {
		return errors.New("media.channels must be positive")
	}
	switch cfg.Engine.Mode {
	case "mock", "exec":
	default:
		return errors.New("engine.mode must be one of mock|exec")
	}
	if cfg.Engine.Mode == "exec" && cfg.Engine.Command == "" {
		return errors.New("engine.command must be set when mode=exec")
	}
	if cfg.Engine.BeamSize <= 0 {
		return errors.New("engine.beam_size must be >= 1")
	}
	switch cfg.Engine.Device {
	case "auto", "cpu", "cuda":
	default:
		return errors.New("engine.device must be one of auto|cpu|cuda")
	}
	if cfg.Engine.CUDAMultiplier <= 0 || cfg.Engine.CPUMultiplier <= 0 {
		return errors.New("engine speed multipliers must be positive")
	}
	if cfg.Pipeline.ChunkSeconds <= 0 {
		return errors.New("pipeline.chunk_seconds must be positive")
	}
	if cfg.Pipeline.WatchdogFloorS <= 0 {
		return errors.New("pipeline.watchdog_floor_seconds must be positive")
	}
	if cfg.JobStore.Enabled {
		if cfg.JobStore.Path == "" {
			return errors.New("job_store.path must not be empty when the job store is enabled")
		}
		if cfg.JobStore.MaxJobs < 0 {
			return errors.New("job_store.max_jobs must be >= 0")
		}
	}
	return nil
}
