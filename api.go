package visionstreamer

import (
	base "github.com/aleksanderbialka/bioscopeai-vision-streamer/pkg/visionstream"
)

// Re-exported errors for convenience.
var (
	ErrChannelSinkClosed = base.ErrChannelSinkClosed
	ErrPushSourceClosed  = base.ErrPushSourceClosed
)

// Type aliases so consumers can import the module root directly.
type (
	Config            = base.Config
	PipelineConfig    = base.PipelineConfig
	SourceConfig      = base.SourceConfig
	SinkConfig        = base.SinkConfig
	PostgresConfig    = base.PostgresConfig
	SegmentConfig     = base.SegmentConfig
	MetricsConfig     = base.MetricsConfig
	SyntheticConfig   = base.SyntheticConfig
	FileConfig        = base.FileConfig
	RTPConfig         = base.RTPConfig
	Flow              = base.Flow
	FlowOption        = base.FlowOption
	StreamInOption    = base.StreamInOption
	StreamOutOption   = base.StreamOutOption
	Runtime           = base.Runtime
	RuntimeOption     = base.RuntimeOption
	Frame             = base.Frame
	Annotations       = base.Annotations
	Detection         = base.Detection
	StageError        = base.StageError
	PixelFormat       = base.PixelFormat
	FrameSink         = base.FrameSink
	Source            = base.Source
	Sink              = base.Sink
	Transform         = base.Transform
	FrameQueue        = base.FrameQueue
	QueuePolicy       = base.QueuePolicy
	StageDescriptor   = base.StageDescriptor
	PipelinePolicy    = base.PipelinePolicy
	Observability     = base.Observability
	Field             = base.Field
	State             = base.State
	HealthSnapshot    = base.HealthSnapshot
	StageHealthRecord = base.StageHealthRecord
	EventBus          = base.EventBus
	PushSource        = base.PushSource
)

// Pipeline lifecycle states.
const (
	StateStopped  = base.StateStopped
	StateStarting = base.StateStarting
	StateRunning  = base.StateRunning
	StateDraining = base.StateDraining
	StateFailed   = base.StateFailed
)

// Queue backpressure policies.
const (
	PolicyBlock      = base.PolicyBlock
	PolicyDropOldest = base.PolicyDropOldest
)

// Config helpers.
func LoadConfig(path string) (*Config, error) {
	return base.LoadConfig(path)
}

// Flow builder helpers.
func Conf(path string, opts ...FlowOption) (*Flow, error) {
	return base.Conf(path, opts...)
}

func ConfFromConfig(cfg *Config, opts ...FlowOption) (*Flow, error) {
	return base.ConfFromConfig(cfg, opts...)
}

func WithFlowOptions(opts ...RuntimeOption) FlowOption {
	return base.WithFlowOptions(opts...)
}

func StreamInSource(s Source) StreamInOption {
	return base.StreamInSource(s)
}

func StreamInPush(buffer int) (*PushSource, StreamInOption) {
	return base.StreamInPush(buffer)
}

func StreamInObservability(obs Observability) StreamInOption {
	return base.StreamInObservability(obs)
}

func StreamOutSink(s Sink) StreamOutOption {
	return base.StreamOutSink(s)
}

func StreamOutTransform(stage string, tr Transform) StreamOutOption {
	return base.StreamOutTransform(stage, tr)
}

func StreamOutObservability(obs Observability) StreamOutOption {
	return base.StreamOutObservability(obs)
}

func StreamOutCallback(name string, fn FrameSink) StreamOutOption {
	return base.StreamOutCallback(name, fn)
}

// Runtime and options.
func NewRuntime(cfg *Config, opts ...RuntimeOption) (*Runtime, error) {
	return base.NewRuntime(cfg, opts...)
}

func WithSource(s Source) RuntimeOption {
	return base.WithSource(s)
}

func WithSink(s Sink) RuntimeOption {
	return base.WithSink(s)
}

func WithTransform(stage string, tr Transform) RuntimeOption {
	return base.WithTransform(stage, tr)
}

func WithObservability(obs Observability) RuntimeOption {
	return base.WithObservability(obs)
}

func WithEventBus(bus *EventBus) RuntimeOption {
	return base.WithEventBus(bus)
}

func WithoutMetricsServer() RuntimeOption {
	return base.WithoutMetricsServer()
}

// Event bus.
func NewEventBus() *EventBus {
	return base.NewEventBus()
}

// Sink and source adapters.
func NewCallbackSink(name string, fn FrameSink) Sink {
	return base.NewCallbackSink(name, fn)
}

func NewChannelSink(name string, buffer int) (Sink, <-chan *Frame, func()) {
	return base.NewChannelSink(name, buffer)
}

func NewPushSource(buffer int) *PushSource {
	return base.NewPushSource(buffer)
}

// Error classification for custom sinks.
func Permanent(err error) error {
	return base.Permanent(err)
}

func IsPermanent(err error) bool {
	return base.IsPermanent(err)
}
