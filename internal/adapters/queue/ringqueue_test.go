package queue

import (
	"errors"
	"sync"
	"testing"

	"github.com/aleksanderbialka/bioscopeai-vision-streamer/internal/domain"
	"github.com/aleksanderbialka/bioscopeai-vision-streamer/internal/ports"
)

func frame(seq uint64) *domain.Frame {
	return &domain.Frame{Seq: seq}
}

func TestRingQueueFIFO(t *testing.T) {
	q := NewRingQueue(4, ports.PolicyBlock)

	for i := uint64(0); i < 4; i++ {
		if !q.Push(frame(i)) {
			t.Fatalf("push %d rejected", i)
		}
	}
	if q.Len() != 4 {
		t.Fatalf("expected len 4, got %d", q.Len())
	}

	for i := uint64(0); i < 4; i++ {
		f, err := q.Pop()
		if err != nil {
			t.Fatalf("pop %d: %v", i, err)
		}
		if f.Seq != i {
			t.Fatalf("expected seq %d, got %d", i, f.Seq)
		}
	}
}

func TestRingQueueBlockingNoLoss(t *testing.T) {
	const total = 200
	q := NewRingQueue(4, ports.PolicyBlock)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := uint64(0); i < total; i++ {
			if !q.Push(frame(i)) {
				t.Errorf("push %d rejected", i)
				return
			}
		}
		q.Close()
	}()

	var got []uint64
	for {
		f, err := q.Pop()
		if err != nil {
			if !errors.Is(err, ports.ErrQueueClosed) {
				t.Fatalf("pop: %v", err)
			}
			break
		}
		if q.Len() > q.Cap() {
			t.Fatalf("occupancy %d exceeds capacity %d", q.Len(), q.Cap())
		}
		got = append(got, f.Seq)
	}
	wg.Wait()

	if len(got) != total {
		t.Fatalf("expected %d frames, got %d", total, len(got))
	}
	for i, seq := range got {
		if seq != uint64(i) {
			t.Fatalf("order violated at %d: got seq %d", i, seq)
		}
	}
	if q.Drops() != 0 {
		t.Fatalf("blocking queue dropped %d frames", q.Drops())
	}
}

func TestRingQueueDropOldest(t *testing.T) {
	q := NewRingQueue(2, ports.PolicyDropOldest)

	for i := uint64(0); i < 5; i++ {
		if !q.Push(frame(i)) {
			t.Fatalf("drop_oldest push %d rejected", i)
		}
	}

	// Capacity 2: frames 0..2 evicted, 3 and 4 remain.
	if q.Drops() != 3 {
		t.Fatalf("expected 3 drops, got %d", q.Drops())
	}
	f, err := q.Pop()
	if err != nil || f.Seq != 3 {
		t.Fatalf("expected seq 3, got %v (%v)", f, err)
	}
	f, err = q.Pop()
	if err != nil || f.Seq != 4 {
		t.Fatalf("expected seq 4, got %v (%v)", f, err)
	}
}

func TestRingQueueCloseSemantics(t *testing.T) {
	q := NewRingQueue(4, ports.PolicyBlock)
	q.Push(frame(0))
	q.Push(frame(1))
	q.Close()

	if q.Push(frame(2)) {
		t.Fatalf("push after close should fail")
	}

	// Remaining frames drain before the closed signal surfaces.
	for i := uint64(0); i < 2; i++ {
		f, err := q.Pop()
		if err != nil || f.Seq != i {
			t.Fatalf("drain %d: got %v (%v)", i, f, err)
		}
	}
	if _, err := q.Pop(); !errors.Is(err, ports.ErrQueueClosed) {
		t.Fatalf("expected ErrQueueClosed, got %v", err)
	}
	if _, err := q.TryPop(); !errors.Is(err, ports.ErrQueueClosed) {
		t.Fatalf("expected ErrQueueClosed from TryPop, got %v", err)
	}
}

func TestRingQueueCloseWakesBlockedPusher(t *testing.T) {
	q := NewRingQueue(1, ports.PolicyBlock)
	q.Push(frame(0))

	done := make(chan bool)
	go func() {
		done <- q.Push(frame(1))
	}()

	q.Close()
	if ok := <-done; ok {
		t.Fatalf("blocked push should fail once queue closes")
	}
}

func TestRingQueueTryPopEmpty(t *testing.T) {
	q := NewRingQueue(2, ports.PolicyBlock)
	if _, err := q.TryPop(); !errors.Is(err, ports.ErrWouldBlock) {
		t.Fatalf("expected ErrWouldBlock, got %v", err)
	}
}

func TestRingQueueAbort(t *testing.T) {
	q := NewRingQueue(4, ports.PolicyBlock)
	q.Push(frame(0))
	q.Push(frame(1))
	q.Push(frame(2))

	if n := q.Abort(); n != 3 {
		t.Fatalf("expected 3 abandoned frames, got %d", n)
	}
	if _, err := q.Pop(); !errors.Is(err, ports.ErrQueueClosed) {
		t.Fatalf("expected ErrQueueClosed after abort, got %v", err)
	}
}
