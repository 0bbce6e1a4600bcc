package visionstream

import (
	"github.com/aleksanderbialka/bioscopeai-vision-streamer/internal/app/pipeline"
	"github.com/aleksanderbialka/bioscopeai-vision-streamer/internal/domain"
	"github.com/aleksanderbialka/bioscopeai-vision-streamer/internal/events"
	"github.com/aleksanderbialka/bioscopeai-vision-streamer/internal/ports"
)

// Frame is the unit of work flowing source → stages → sink. It mirrors the
// internal domain type but is exported so custom adapters can reference it.
type Frame = domain.Frame

// Annotations is the per-frame side channel filled in by stages.
type Annotations = domain.Annotations

// Detection is one inference result in frame pixel coordinates.
type Detection = domain.Detection

// StageError identifies which stage failed on a frame and why.
type StageError = domain.StageError

// PixelFormat identifies the encoding of a frame payload.
type PixelFormat = domain.PixelFormat

// Source streams frames from any producer (camera, network, file) into the pipeline.
type Source = ports.Source

// Sink consumes delivered frames and hands them to any downstream system.
type Sink = ports.Sink

// Transform is one per-frame processing step bound to a stage by name.
type Transform = ports.Transform

// FrameQueue is the bounded queue used between pipeline hops.
type FrameQueue = ports.FrameQueue

// QueuePolicy selects the backpressure behavior of a full queue.
type QueuePolicy = ports.QueuePolicy

// StageDescriptor configures one stage of the processing pool.
type StageDescriptor = ports.StageDescriptor

// PipelinePolicy holds the pipeline-wide policy knobs.
type PipelinePolicy = ports.PipelinePolicy

// Observability emits metrics and logs about the pipeline's behavior.
type Observability = ports.Observability

// Field is a structured log field used by Observability implementations.
type Field = ports.Field

// State is the pipeline lifecycle state.
type State = pipeline.State

// HealthSnapshot is the point-in-time health view served to monitoring.
type HealthSnapshot = pipeline.HealthSnapshot

// StageHealthRecord is the per-stage slice of a HealthSnapshot.
type StageHealthRecord = pipeline.StageHealthRecord

// EventBus broadcasts pipeline telemetry to typed subscribers.
type EventBus = events.Bus

// Pipeline lifecycle states.
const (
	StateStopped  = pipeline.StateStopped
	StateStarting = pipeline.StateStarting
	StateRunning  = pipeline.StateRunning
	StateDraining = pipeline.StateDraining
	StateFailed   = pipeline.StateFailed
)

// Queue backpressure policies.
const (
	PolicyBlock      = ports.PolicyBlock
	PolicyDropOldest = ports.PolicyDropOldest
)

// Telemetry event types published on the EventBus.
type (
	StateChangedEvent     = events.StateChangedEvent
	FrameDroppedEvent     = events.FrameDroppedEvent
	StageErrorEvent       = events.StageErrorEvent
	FrameUndeliveredEvent = events.FrameUndeliveredEvent
)

// NewEventBus creates a bus callers can pass to WithEventBus and subscribe on.
func NewEventBus() *EventBus { return events.New() }

// Permanent marks err as non-retriable for the sink retry loop.
func Permanent(err error) error { return ports.Permanent(err) }

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool { return ports.IsPermanent(err) }
