package queue

import (
	"sync"

	"github.com/aleksanderbialka/bioscopeai-vision-streamer/internal/domain"
	"github.com/aleksanderbialka/bioscopeai-vision-streamer/internal/ports"
)

// RingQueue is a bounded ring of frame references with a configurable
// full-queue policy. Occupancy never exceeds the construction-time capacity.
//
// Blocked pushers and poppers park on condition variables and are woken by
// the opposite side or by Close, so a stop request reaches every blocked
// worker without polling.
type RingQueue struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	notFull  *sync.Cond

	buf    []*domain.Frame
	head   int
	size   int
	policy ports.QueuePolicy

	closed bool
	drops  uint64
}

func NewRingQueue(capacity int, policy ports.QueuePolicy) *RingQueue {
	if capacity <= 0 {
		capacity = 1
	}
	q := &RingQueue{
		buf:    make([]*domain.Frame, capacity),
		policy: policy,
	}
	q.notEmpty = sync.NewCond(&q.mu)
	q.notFull = sync.NewCond(&q.mu)
	return q
}

// Push admits f according to the queue policy. Under PolicyBlock it suspends
// the caller until space frees or the queue closes; under PolicyDropOldest
// it evicts the oldest queued frame to make room. Returns false only when
// the frame was not admitted.
func (q *RingQueue) Push(f *domain.Frame) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	if q.size == len(q.buf) {
		switch q.policy {
		case ports.PolicyDropOldest:
			q.evictOldestLocked()
		default: // PolicyBlock
			for q.size == len(q.buf) && !q.closed {
				q.notFull.Wait()
			}
			if q.closed {
				return false
			}
		}
	}

	q.buf[(q.head+q.size)%len(q.buf)] = f
	q.size++
	q.notEmpty.Signal()
	return true
}

// Pop blocks until a frame is available. After Close it keeps draining the
// remaining frames and then returns ErrQueueClosed.
func (q *RingQueue) Pop() (*domain.Frame, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.size == 0 {
		if q.closed {
			return nil, ports.ErrQueueClosed
		}
		q.notEmpty.Wait()
	}
	return q.popLocked(), nil
}

// TryPop returns ErrWouldBlock instead of suspending on an empty open queue.
func (q *RingQueue) TryPop() (*domain.Frame, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.size == 0 {
		if q.closed {
			return nil, ports.ErrQueueClosed
		}
		return nil, ports.ErrWouldBlock
	}
	return q.popLocked(), nil
}

// Close transitions the queue to its terminal state: pushes fail, pops drain
// what is buffered. Idempotent.
func (q *RingQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closeLocked()
}

// Abort closes the queue and throws away everything still buffered,
// returning the abandoned count.
func (q *RingQueue) Abort() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.closeLocked()
	n := q.size
	for q.size > 0 {
		q.popLocked()
	}
	return n
}

func (q *RingQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

func (q *RingQueue) Cap() int { return len(q.buf) }

// Drops reports how many frames PolicyDropOldest has evicted.
func (q *RingQueue) Drops() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.drops
}

func (q *RingQueue) popLocked() *domain.Frame {
	f := q.buf[q.head]
	q.buf[q.head] = nil
	q.head = (q.head + 1) % len(q.buf)
	q.size--
	q.notFull.Signal()
	return f
}

func (q *RingQueue) evictOldestLocked() {
	q.buf[q.head] = nil
	q.head = (q.head + 1) % len(q.buf)
	q.size--
	q.drops++
}

func (q *RingQueue) closeLocked() {
	if q.closed {
		return
	}
	q.closed = true
	q.notEmpty.Broadcast()
	q.notFull.Broadcast()
}

var _ ports.FrameQueue = (*RingQueue)(nil)
