package pipeline

import (
	"sync/atomic"

	"github.com/aleksanderbialka/bioscopeai-vision-streamer/internal/ports"
)

// State is the pipeline lifecycle state, owned exclusively by the Controller.
type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateDraining
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// stageHealth holds the per-stage counters. Each field has a single writer
// (the owning stage's workers), so reads anywhere are plain atomic loads.
// Drop and depth figures come straight from the queue on read.
type stageHealth struct {
	name      string
	processed atomic.Uint64
	errored   atomic.Uint64
	lastErr   atomic.Value // string
	queue     ports.FrameQueue
}

func (h *stageHealth) setLastError(err error) {
	if err != nil {
		h.lastErr.Store(err.Error())
	}
}

func (h *stageHealth) record() StageHealthRecord {
	rec := StageHealthRecord{
		Name:      h.name,
		Processed: h.processed.Load(),
		Errored:   h.errored.Load(),
	}
	if h.queue != nil {
		rec.QueueDepth = h.queue.Len()
		rec.Dropped = h.queue.Drops()
	}
	if v, ok := h.lastErr.Load().(string); ok {
		rec.LastError = v
	}
	return rec
}

// StageHealthRecord is the read-only snapshot of one stage's counters.
type StageHealthRecord struct {
	Name       string `json:"name"`
	Processed  uint64 `json:"processed"`
	Dropped    uint64 `json:"dropped"`
	Errored    uint64 `json:"errored"`
	QueueDepth int    `json:"queue_depth"`
	LastError  string `json:"last_error,omitempty"`
}

// HealthSnapshot is the point-in-time view served to external monitoring.
// It is assembled from atomic counters on read; taking one never blocks the
// hot path.
type HealthSnapshot struct {
	RunID       string              `json:"run_id"`
	State       string              `json:"state"`
	Sourced     uint64              `json:"sourced"`
	Delivered   uint64              `json:"delivered"`
	Undelivered uint64              `json:"undelivered"`
	Abandoned   uint64              `json:"abandoned"`
	Stages      []StageHealthRecord `json:"stages"`
	LastError   string              `json:"last_error,omitempty"`
}
