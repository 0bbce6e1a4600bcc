package ports

import "github.com/aleksanderbialka/bioscopeai-vision-streamer/internal/domain"

// QueuePolicy governs producer behavior when a bounded queue is full.
type QueuePolicy string

const (
	// PolicyBlock suspends the pusher until space frees. No frame is lost.
	PolicyBlock QueuePolicy = "block"
	// PolicyDropOldest evicts the oldest queued frame to admit the newest.
	PolicyDropOldest QueuePolicy = "drop_oldest"
)

// FrameQueue is a bounded FIFO transferring frame ownership between stages.
//
// Push returns false when the frame was not admitted (closed queue, or the
// policy rejected it). Pop blocks until a frame is available; after Close it
// drains the remaining frames and then returns ErrQueueClosed. Close is
// one-way.
type FrameQueue interface {
	Push(f *domain.Frame) bool
	Pop() (*domain.Frame, error)
	TryPop() (*domain.Frame, error)
	Close()
	// Abort closes the queue and discards anything still buffered,
	// returning the number of frames thrown away.
	Abort() int
	Len() int
	Cap() int
	Drops() uint64
}
