package pipeline

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

type jobMetrics struct {
	chunksProcessed metric.Int64Counter
	chunksFailed    metric.Int64Counter
	jobSeconds      metric.Float64Histogram
}

func newJobMetrics() (*jobMetrics, error) {
	meter := otel.Meter("loqa-transcribe/pipeline")

	chunksProcessed, err := meter.Int64Counter("transcribe.chunks.processed",
		metric.WithDescription("Chunks transcribed successfully"))
	if err != nil {
		return nil, err
	}
	chunksFailed, err := meter.Int64Counter("transcribe.chunks.failed",
		metric.WithDescription("Chunks skipped after extraction or transcription failure"))
	if err != nil {
		return nil, err
	}
	jobSeconds, err := meter.Float64Histogram("transcribe.job.duration_seconds",
		metric.WithDescription("Wall-clock duration of completed jobs"))
	if err != nil {
		return nil, err
	}

	return &jobMetrics{
		chunksProcessed: chunksProcessed,
		chunksFailed:    chunksFailed,
		jobSeconds:      jobSeconds,
	}, nil
}
