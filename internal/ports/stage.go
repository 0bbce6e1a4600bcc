package ports

import "github.com/aleksanderbialka/bioscopeai-vision-streamer/internal/domain"

// Transform is one per-frame processing step (decode, inference, overlay).
//
// Apply must be side-effect-free with respect to other frames: no shared
// mutable state across invocations unless the implementation guards it
// itself. It may mutate and return its argument, or return a replacement.
// I/O inside Apply must be bounded by its own timeout; the pipeline never
// interrupts a running transform.
type Transform interface {
	Apply(f *domain.Frame) (*domain.Frame, error)
	Name() string
}

// StageDescriptor configures one stage of the pool. Immutable once the
// pipeline has started.
type StageDescriptor struct {
	Name string `yaml:"name"`

	// Workers is the number of concurrent workers pulling frames for this
	// stage. With more than one worker the stage re-imposes sequence order
	// on output unless ReorderWindow is 0.
	Workers int `yaml:"workers"`

	// QueueCapacity and QueuePolicy describe the bounded queue feeding this
	// stage.
	QueueCapacity int         `yaml:"queue_capacity"`
	QueuePolicy   QueuePolicy `yaml:"queue_policy"`

	// FailFast drops the frame and escalates the transform error to the
	// controller instead of tagging and forwarding it.
	FailFast bool `yaml:"fail_fast"`

	// ReorderWindow bounds the reorder buffer used when Workers > 1. Frames
	// arriving more than ReorderWindow sequence numbers out of order are
	// forwarded flagged rather than stalling the stage. 0 picks a default
	// proportional to Workers; -1 explicitly opts the stage out of strict
	// ordering.
	ReorderWindow int `yaml:"reorder_window"`
}
