// Package config loads and validates the YAML runtime configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/aleksanderbialka/bioscopeai-vision-streamer/internal/adapters/source"
	"github.com/aleksanderbialka/bioscopeai-vision-streamer/internal/ports"
)

// Source and sink kinds accepted by the runtime.
const (
	SourceSynthetic = "synthetic"
	SourceFile      = "file"
	SourceRTP       = "rtp"

	SinkPostgres  = "postgres"
	SinkWebSocket = "websocket"
	SinkSegment   = "segment"
)

type Config struct {
	Pipeline PipelineConfig          `yaml:"pipeline"`
	Stages   []ports.StageDescriptor `yaml:"stages"`
	Source   SourceConfig            `yaml:"source"`
	Sink     SinkConfig              `yaml:"sink"`
	Metrics  MetricsConfig           `yaml:"metrics"`
}

type PipelineConfig struct {
	Policy            ports.PipelinePolicy `yaml:"policy"`
	SinkQueueCapacity int                  `yaml:"sink_queue_capacity"`
	SinkQueuePolicy   ports.QueuePolicy    `yaml:"sink_queue_policy"`
}

type SourceConfig struct {
	Kind      string                 `yaml:"kind"`
	Synthetic source.SyntheticConfig `yaml:"synthetic"`
	File      source.FileConfig      `yaml:"file"`
	RTP       source.RTPConfig       `yaml:"rtp"`
}

type SinkConfig struct {
	Kind     string         `yaml:"kind"`
	Postgres PostgresConfig `yaml:"postgres"`
	Segment  SegmentConfig  `yaml:"segment"`
}

type PostgresConfig struct {
	ConnString string `yaml:"conn_string"`
	Table      string `yaml:"table"`
}

type SegmentConfig struct {
	Path string `yaml:"path"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	p := &c.Pipeline.Policy
	if p.DrainTimeout == 0 {
		p.DrainTimeout = 5 * time.Second
	}
	if p.PollInterval == 0 {
		p.PollInterval = 100 * time.Millisecond
	}
	if p.SinkRetryMax == 0 {
		p.SinkRetryMax = 3
	}
	if p.SinkRetryBackoff == 0 {
		p.SinkRetryBackoff = 50 * time.Millisecond
	}
	if c.Pipeline.SinkQueueCapacity == 0 {
		c.Pipeline.SinkQueueCapacity = 16
	}
	if c.Pipeline.SinkQueuePolicy == "" {
		c.Pipeline.SinkQueuePolicy = ports.PolicyBlock
	}

	for i := range c.Stages {
		d := &c.Stages[i]
		if d.Workers == 0 {
			d.Workers = 1
		}
		if d.QueueCapacity == 0 {
			d.QueueCapacity = 16
		}
		if d.QueuePolicy == "" {
			d.QueuePolicy = ports.PolicyBlock
		}
	}

	if c.Source.Kind == "" {
		c.Source.Kind = SourceSynthetic
	}
	c.Source.Synthetic.ApplyDefaults()
	c.Source.RTP.ApplyDefaults()

	if c.Sink.Kind == "" {
		c.Sink.Kind = SinkWebSocket
	}
	if c.Sink.Postgres.Table == "" {
		c.Sink.Postgres.Table = "frames"
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = ":9100"
	}
}

func (c *Config) validate() error {
	switch c.Source.Kind {
	case SourceSynthetic:
	case SourceFile:
		if c.Source.File.Path == "" {
			return fmt.Errorf("source.file.path is required")
		}
	case SourceRTP:
		if c.Source.RTP.ListenAddr == "" {
			return fmt.Errorf("source.rtp.listen_addr is required")
		}
	default:
		return fmt.Errorf("source.kind %q is not one of synthetic, file, rtp", c.Source.Kind)
	}

	switch c.Sink.Kind {
	case SinkWebSocket:
	case SinkPostgres:
		if c.Sink.Postgres.ConnString == "" {
			return fmt.Errorf("sink.postgres.conn_string is required")
		}
	case SinkSegment:
		if c.Sink.Segment.Path == "" {
			return fmt.Errorf("sink.segment.path is required")
		}
	default:
		return fmt.Errorf("sink.kind %q is not one of postgres, websocket, segment", c.Sink.Kind)
	}

	seen := make(map[string]bool, len(c.Stages))
	for _, d := range c.Stages {
		if d.Name == "" {
			return fmt.Errorf("every stage needs a name")
		}
		if seen[d.Name] {
			return fmt.Errorf("duplicate stage name %q", d.Name)
		}
		seen[d.Name] = true
		switch d.QueuePolicy {
		case ports.PolicyBlock, ports.PolicyDropOldest:
		default:
			return fmt.Errorf("stage %q: queue_policy %q is not one of block, drop_oldest", d.Name, d.QueuePolicy)
		}
	}

	switch c.Pipeline.SinkQueuePolicy {
	case ports.PolicyBlock, ports.PolicyDropOldest:
	default:
		return fmt.Errorf("pipeline.sink_queue_policy %q is not one of block, drop_oldest", c.Pipeline.SinkQueuePolicy)
	}

	if c.Metrics.Addr == "" {
		return fmt.Errorf("metrics.addr is required")
	}
	return nil
}
