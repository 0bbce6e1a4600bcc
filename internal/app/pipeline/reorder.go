package pipeline

import (
	"sort"
	"sync"

	"github.com/aleksanderbialka/bioscopeai-vision-streamer/internal/domain"
)

// reorderBuffer re-imposes sequence order on the output of a stage whose
// workers complete frames out of order. It is a bounded arena indexed by
// sequence number modulo the window size with explicit slot reuse.
//
// A frame landing more than window sequence numbers ahead of the next
// expected one forces the buffered frames out (in order, gaps skipped) and
// re-bases the window; a frame older than the window is forwarded
// immediately with an out-of-order annotation. The buffer therefore never
// stalls indefinitely on a gap left by a dropped or fail-fast frame.
type reorderBuffer struct {
	mu     sync.Mutex
	window uint64

	// next is the lowest sequence not yet emitted. Sources start at 0; a
	// stream starting higher (replay) re-bases through the window-ahead
	// flush.
	next     uint64
	slots    []*domain.Frame
	buffered int
	emit     func(*domain.Frame)
}

func newReorderBuffer(window int, emit func(*domain.Frame)) *reorderBuffer {
	if window <= 0 {
		window = 1
	}
	return &reorderBuffer{
		window: uint64(window),
		slots:  make([]*domain.Frame, window),
		emit:   emit,
	}
}

func (r *reorderBuffer) add(f *domain.Frame) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if f.Seq < r.next {
		// Window already advanced past this frame.
		f.Annotations.OutOfOrder = true
		r.emit(f)
		return
	}

	if f.Seq-r.next >= r.window {
		r.flushLocked()
		r.next = f.Seq
	}

	r.slots[f.Seq%r.window] = f
	r.buffered++

	for r.buffered > 0 {
		g := r.slots[r.next%r.window]
		if g == nil || g.Seq != r.next {
			break
		}
		r.slots[r.next%r.window] = nil
		r.buffered--
		r.emit(g)
		r.next++
	}
}

// flush releases everything still buffered in ascending sequence order.
// Called on drain.
func (r *reorderBuffer) flush() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flushLocked()
}

func (r *reorderBuffer) flushLocked() {
	if r.buffered == 0 {
		return
	}
	pending := make([]*domain.Frame, 0, r.buffered)
	for i, f := range r.slots {
		if f != nil {
			pending = append(pending, f)
			r.slots[i] = nil
		}
	}
	r.buffered = 0
	sort.Slice(pending, func(i, j int) bool { return pending[i].Seq < pending[j].Seq })
	for _, f := range pending {
		r.emit(f)
		r.next = f.Seq + 1
	}
}
