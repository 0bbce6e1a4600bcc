package events

// Event type constants for kelindar/event.
const (
	TypeStateChanged uint32 = iota + 1
	TypeFrameDropped
	TypeStageError
	TypeFrameUndelivered
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// StateChangedEvent is published on every pipeline state transition.
type StateChangedEvent struct {
	RunID     string `json:"run_id"`
	From      string `json:"from"`
	To        string `json:"to"`
	Reason    string `json:"reason,omitempty"`
	Timestamp string `json:"timestamp"`
}

func (e StateChangedEvent) Type() uint32 { return TypeStateChanged }

// FrameDroppedEvent reports frames evicted by queue backpressure since the
// previous health poll.
type FrameDroppedEvent struct {
	Stage     string `json:"stage"`
	Count     uint64 `json:"count"`
	Total     uint64 `json:"total"`
	Timestamp string `json:"timestamp"`
}

func (e FrameDroppedEvent) Type() uint32 { return TypeFrameDropped }

// StageErrorEvent reports a per-frame transform failure.
type StageErrorEvent struct {
	Stage     string `json:"stage"`
	Seq       uint64 `json:"seq"`
	Error     string `json:"error"`
	FailFast  bool   `json:"fail_fast"`
	Timestamp string `json:"timestamp"`
}

func (e StageErrorEvent) Type() uint32 { return TypeStageError }

// FrameUndeliveredEvent reports a frame the sink permanently failed to emit.
type FrameUndeliveredEvent struct {
	Sink      string `json:"sink"`
	Seq       uint64 `json:"seq"`
	Error     string `json:"error"`
	Timestamp string `json:"timestamp"`
}

func (e FrameUndeliveredEvent) Type() uint32 { return TypeFrameUndelivered }
