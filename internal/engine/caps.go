package engine

import (
	"os/exec"

	"github.com/loqalabs/loqa-transcribe/internal/config"
)

// Capabilities is the immutable per-job compute configuration. It is probed
// once at worker construction and passed into every downstream call; nothing
// re-reads hardware state mid-job.
type Capabilities struct {
	Device          string
	ComputeType     string
	SpeedMultiplier float64
}

// Probe resolves the device selection. "auto" picks CUDA when an NVIDIA
// driver is visible and CPU otherwise. The speed multiplier feeds the
// watchdog's processing-time estimate.
func Probe(cfg config.EngineConfig) Capabilities {
	device := cfg.Device
	if device == "auto" || device == "" {
		if _, err := exec.LookPath("nvidia-smi"); err == nil {
			device = "cuda"
		} else {
			device = "cpu"
		}
	}

	multiplier := cfg.CPUMultiplier
	if device == "cuda" {
		multiplier = cfg.CUDAMultiplier
	}

	compute := cfg.ComputeType
	if compute == "" {
		// float16 is unsupported on several CPU targets; float32 always works.
		compute = "float32"
	}

	return Capabilities{
		Device:          device,
		ComputeType:     compute,
		SpeedMultiplier: multiplier,
	}
}
