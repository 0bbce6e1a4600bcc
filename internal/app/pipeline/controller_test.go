package pipeline

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aleksanderbialka/bioscopeai-vision-streamer/internal/adapters/queue"
	"github.com/aleksanderbialka/bioscopeai-vision-streamer/internal/domain"
	"github.com/aleksanderbialka/bioscopeai-vision-streamer/internal/events"
	"github.com/aleksanderbialka/bioscopeai-vision-streamer/internal/ports"
)

func ringFactory(capacity int, policy ports.QueuePolicy) ports.FrameQueue {
	return queue.NewRingQueue(capacity, policy)
}

// testSource streams a fixed set of frames, pacing each push, then closes the
// stream. Stop cuts the stream short.
type testSource struct {
	frames []*domain.Frame
	delay  time.Duration
	err    error

	mu      sync.Mutex
	stopCh  chan struct{}
	started bool
}

func (s *testSource) Start(out chan<- *domain.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return fmt.Errorf("already started")
	}
	s.started = true
	s.stopCh = make(chan struct{})
	stop := s.stopCh

	go func() {
		defer close(out)
		for _, f := range s.frames {
			if s.delay > 0 {
				select {
				case <-time.After(s.delay):
				case <-stop:
					return
				}
			}
			select {
			case out <- f:
			case <-stop:
				return
			}
		}
	}()
	return nil
}

func (s *testSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopCh != nil {
		select {
		case <-s.stopCh:
		default:
			close(s.stopCh)
		}
	}
	return nil
}

func (s *testSource) Err() error { return s.err }

// testSink records emitted frames; fail selects frames to reject.
type testSink struct {
	delay time.Duration
	fail  func(*domain.Frame) error

	mu     sync.Mutex
	frames []*domain.Frame
}

func (s *testSink) Name() string { return "test" }

func (s *testSink) Emit(f *domain.Frame) error {
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if s.fail != nil {
		if err := s.fail(f); err != nil {
			return err
		}
	}
	s.mu.Lock()
	s.frames = append(s.frames, f)
	s.mu.Unlock()
	return nil
}

func (s *testSink) all() []*domain.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*domain.Frame(nil), s.frames...)
}

func makeFrames(n int) []*domain.Frame {
	frames := make([]*domain.Frame, n)
	for i := range frames {
		frames[i] = &domain.Frame{Seq: uint64(i), Timestamp: time.Now()}
	}
	return frames
}

func waitForState(t *testing.T, c *Controller, want State) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for c.State() != want {
		if time.Now().After(deadline) {
			t.Fatalf("state %s never reached, stuck at %s", want, c.State())
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func newTestController(t *testing.T, cfg Config, src ports.Source, transforms map[string]ports.Transform, sink ports.Sink) *Controller {
	t.Helper()
	c, err := NewController(cfg, src, transforms, sink, ringFactory, ports.NopObservability{}, nil)
	if err != nil {
		t.Fatalf("new controller: %v", err)
	}
	return c
}

func TestControllerDeliversInOrder(t *testing.T) {
	src := &testSource{frames: makeFrames(10)}
	sink := &testSink{}
	cfg := Config{
		Stages: []ports.StageDescriptor{{Name: "detect", Workers: 2}},
	}
	c := newTestController(t, cfg, src, nil, sink)

	if err := c.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitForState(t, c, StateStopped)

	got := sink.all()
	if len(got) != 10 {
		t.Fatalf("expected 10 delivered, got %d", len(got))
	}
	for i, f := range got {
		if f.Seq != uint64(i) {
			t.Fatalf("order violated at %d: seq %d", i, f.Seq)
		}
	}

	snap := c.Snapshot()
	if snap.Sourced != 10 || snap.Delivered != 10 || snap.Undelivered != 0 {
		t.Fatalf("accounting: %+v", snap)
	}
	if snap.RunID == "" {
		t.Fatalf("snapshot missing run id")
	}
}

func TestControllerDropOldestUnderPressure(t *testing.T) {
	src := &testSource{frames: makeFrames(10)}
	sink := &testSink{delay: 10 * time.Millisecond}
	cfg := Config{
		Policy:            ports.PipelinePolicy{DrainTimeout: 10 * time.Second},
		SinkQueueCapacity: 2,
		SinkQueuePolicy:   ports.PolicyDropOldest,
	}
	c := newTestController(t, cfg, src, nil, sink)

	if err := c.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitForState(t, c, StateStopped)

	got := sink.all()
	if len(got) == 0 || len(got) >= 10 {
		t.Fatalf("expected lossy delivery, got %d frames", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].Seq <= got[i-1].Seq {
			t.Fatalf("delivered sequence not strictly increasing: %d then %d", got[i-1].Seq, got[i].Seq)
		}
	}
	// The newest frame always survives eviction.
	if got[len(got)-1].Seq != 9 {
		t.Fatalf("last delivered seq %d, want 9", got[len(got)-1].Seq)
	}
}

func TestControllerSnapshotCountsDropsWithoutMonitorTick(t *testing.T) {
	src := &testSource{frames: makeFrames(10)}
	sink := &testSink{delay: 10 * time.Millisecond}
	cfg := Config{
		// A poll interval longer than the run: the snapshot must not depend
		// on the monitor having ticked.
		Policy:            ports.PipelinePolicy{DrainTimeout: 10 * time.Second, PollInterval: time.Hour},
		SinkQueueCapacity: 2,
		SinkQueuePolicy:   ports.PolicyDropOldest,
	}
	c := newTestController(t, cfg, src, nil, sink)

	if err := c.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitForState(t, c, StateStopped)

	snap := c.Snapshot()
	var dropped uint64
	for _, st := range snap.Stages {
		dropped += st.Dropped
	}
	if dropped == 0 {
		t.Fatalf("snapshot reports no drops after a lossy run: %+v", snap)
	}
	if snap.Delivered+dropped != snap.Sourced {
		t.Fatalf("sourced %d != delivered %d + dropped %d", snap.Sourced, snap.Delivered, dropped)
	}
}

func TestControllerPermanentSinkErrorIsIsolated(t *testing.T) {
	src := &testSource{frames: makeFrames(10)}
	sink := &testSink{fail: func(f *domain.Frame) error {
		if f.Seq == 5 {
			return ports.Permanent(fmt.Errorf("rejected"))
		}
		return nil
	}}
	c := newTestController(t, Config{}, src, nil, sink)

	if err := c.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitForState(t, c, StateStopped)

	snap := c.Snapshot()
	if snap.Undelivered != 1 {
		t.Fatalf("expected 1 undelivered, got %d", snap.Undelivered)
	}
	if snap.Delivered != 9 {
		t.Fatalf("expected 9 delivered, got %d", snap.Delivered)
	}
	if snap.State != StateStopped.String() {
		t.Fatalf("a per-frame sink failure must not fail the pipeline: %s", snap.State)
	}
}

func TestControllerFailOnSinkError(t *testing.T) {
	src := &testSource{frames: makeFrames(10), delay: time.Millisecond}
	sink := &testSink{fail: func(f *domain.Frame) error {
		if f.Seq == 2 {
			return ports.Permanent(fmt.Errorf("disk gone"))
		}
		return nil
	}}
	cfg := Config{Policy: ports.PipelinePolicy{FailOnSinkError: true}}
	c := newTestController(t, cfg, src, nil, sink)

	if err := c.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitForState(t, c, StateFailed)

	if c.LastError() == "" {
		t.Fatalf("failed pipeline must record its error")
	}
	if err := c.Start(); err != ErrPipelineFailed {
		t.Fatalf("start while failed: %v", err)
	}
	if err := c.Reset(); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if c.State() != StateStopped {
		t.Fatalf("reset must land in stopped, got %s", c.State())
	}
}

func TestControllerFailFastStageFailsPipeline(t *testing.T) {
	src := &testSource{frames: makeFrames(10), delay: time.Millisecond}
	tr := funcTransform{name: "strict", fn: func(f *domain.Frame) (*domain.Frame, error) {
		if f.Seq == 3 {
			return nil, fmt.Errorf("model crashed")
		}
		return f, nil
	}}
	cfg := Config{
		Stages: []ports.StageDescriptor{{Name: "strict", FailFast: true}},
	}
	c := newTestController(t, cfg, src, map[string]ports.Transform{"strict": tr}, &testSink{})

	if err := c.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitForState(t, c, StateFailed)

	if c.LastError() == "" {
		t.Fatalf("expected recorded failure")
	}
}

func TestControllerNonFailFastTagsAndContinues(t *testing.T) {
	src := &testSource{frames: makeFrames(5)}
	tr := funcTransform{name: "flaky", fn: func(f *domain.Frame) (*domain.Frame, error) {
		if f.Seq == 2 {
			return nil, fmt.Errorf("inference timeout")
		}
		return f, nil
	}}
	sink := &testSink{}
	cfg := Config{
		Stages: []ports.StageDescriptor{{Name: "flaky"}},
	}
	c := newTestController(t, cfg, src, map[string]ports.Transform{"flaky": tr}, sink)

	if err := c.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitForState(t, c, StateStopped)

	got := sink.all()
	if len(got) != 5 {
		t.Fatalf("expected all frames delivered, got %d", len(got))
	}
	var tagged int
	for _, f := range got {
		if f.Annotations.StageError != nil {
			tagged++
			if f.Seq != 2 {
				t.Fatalf("wrong frame tagged: %d", f.Seq)
			}
		}
	}
	if tagged != 1 {
		t.Fatalf("expected exactly 1 tagged frame, got %d", tagged)
	}
}

func TestControllerStopDrainsInFlight(t *testing.T) {
	src := &testSource{frames: makeFrames(1000), delay: time.Millisecond}
	sink := &testSink{}
	c := newTestController(t, Config{}, src, nil, sink)

	if err := c.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitForState(t, c, StateRunning)
	time.Sleep(20 * time.Millisecond)

	if err := c.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if c.State() != StateStopped {
		t.Fatalf("stop must leave the pipeline stopped, got %s", c.State())
	}

	snap := c.Snapshot()
	if snap.Delivered+snap.Abandoned != snap.Sourced {
		t.Fatalf("every sourced frame must be delivered or abandoned: %+v", snap)
	}
}

func TestControllerStartStopIdempotent(t *testing.T) {
	src := &testSource{frames: makeFrames(1000), delay: time.Millisecond}
	c := newTestController(t, Config{}, src, nil, &testSink{})

	if err := c.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := c.Start(); err != nil {
		t.Fatalf("second start must be a no-op: %v", err)
	}
	if err := c.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := c.Stop(context.Background()); err != nil {
		t.Fatalf("second stop must be a no-op: %v", err)
	}
}

func TestControllerStartEventCarriesCurrentRunID(t *testing.T) {
	bus := events.New()
	states := make(chan events.StateChangedEvent, 16)
	unsub := bus.Subscribe(func(e events.StateChangedEvent) { states <- e })
	defer unsub()

	src := &testSource{frames: makeFrames(3)}
	c, err := NewController(Config{}, src, nil, &testSink{}, ringFactory, ports.NopObservability{}, bus)
	if err != nil {
		t.Fatalf("new controller: %v", err)
	}

	startingID := func() string {
		t.Helper()
		deadline := time.After(5 * time.Second)
		for {
			select {
			case e := <-states:
				if e.From == StateStopped.String() && e.To == StateStarting.String() {
					return e.RunID
				}
			case <-deadline:
				t.Fatalf("starting event never arrived")
			}
		}
	}

	if err := c.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	first := startingID()
	if first == "" {
		t.Fatalf("starting event missing run id")
	}
	if first != c.Snapshot().RunID {
		t.Fatalf("starting event run id %s, snapshot %s", first, c.Snapshot().RunID)
	}
	waitForState(t, c, StateStopped)

	src.mu.Lock()
	src.started = false
	src.mu.Unlock()

	if err := c.Start(); err != nil {
		t.Fatalf("restart: %v", err)
	}
	second := startingID()
	if second == "" || second == first {
		t.Fatalf("restart event must carry the new run id, got %q after %q", second, first)
	}
	if second != c.Snapshot().RunID {
		t.Fatalf("restart event run id %s, snapshot %s", second, c.Snapshot().RunID)
	}
	waitForState(t, c, StateStopped)
}

func TestControllerRetryVerdictSkipsFinalBackoff(t *testing.T) {
	var attempts int32
	sink := &testSink{fail: func(*domain.Frame) error {
		atomic.AddInt32(&attempts, 1)
		return fmt.Errorf("transient")
	}}
	cfg := Config{Policy: ports.PipelinePolicy{SinkRetryMax: 2, SinkRetryBackoff: 50 * time.Millisecond}}
	c := newTestController(t, cfg, &testSource{}, nil, sink)

	start := time.Now()
	err := c.emitWithRetry(&domain.Frame{Seq: 1})
	elapsed := time.Since(start)

	if err == nil {
		t.Fatalf("expected a failed verdict")
	}
	if n := atomic.LoadInt32(&attempts); n != 3 {
		t.Fatalf("attempts %d, want 3", n)
	}
	// Two backoffs (50ms + 100ms) between three attempts; a sleep after the
	// last attempt would push this past 350ms.
	if elapsed >= 300*time.Millisecond {
		t.Fatalf("verdict took %v, backoff slept after the final attempt", elapsed)
	}
}

func TestControllerSourceFailureFailsPipeline(t *testing.T) {
	src := &testSource{frames: makeFrames(3), err: fmt.Errorf("camera unplugged")}
	c := newTestController(t, Config{}, src, nil, &testSink{})

	if err := c.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitForState(t, c, StateFailed)

	if c.LastError() != "camera unplugged" {
		t.Fatalf("unexpected recorded error %q", c.LastError())
	}
}
