package visionstream

import (
	"github.com/aleksanderbialka/bioscopeai-vision-streamer/internal/adapters/source"
	"github.com/aleksanderbialka/bioscopeai-vision-streamer/internal/app/config"
)

// Config re-exports the root configuration struct so downstream projects can
// construct or modify it programmatically.
type Config = config.Config

type (
	// PipelineConfig holds the policy and sink-queue settings.
	PipelineConfig = config.PipelineConfig
	// SourceConfig selects and configures the frame source.
	SourceConfig = config.SourceConfig
	// SinkConfig selects and configures the output sink.
	SinkConfig = config.SinkConfig
	// PostgresConfig configures the frame-archive sink.
	PostgresConfig = config.PostgresConfig
	// SegmentConfig configures the segment capture sink.
	SegmentConfig = config.SegmentConfig
	// MetricsConfig configures the metrics HTTP server.
	MetricsConfig = config.MetricsConfig
	// SyntheticConfig configures the test-pattern source.
	SyntheticConfig = source.SyntheticConfig
	// FileConfig configures segment replay.
	FileConfig = source.FileConfig
	// RTPConfig configures the RTP/UDP network source.
	RTPConfig = source.RTPConfig
)

// LoadConfig loads YAML from disk using the internal config reader.
func LoadConfig(path string) (*Config, error) {
	return config.Load(path)
}
