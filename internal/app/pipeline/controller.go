package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/aleksanderbialka/bioscopeai-vision-streamer/internal/domain"
	"github.com/aleksanderbialka/bioscopeai-vision-streamer/internal/events"
	"github.com/aleksanderbialka/bioscopeai-vision-streamer/internal/ports"
)

// ErrPipelineFailed is returned by lifecycle calls while the pipeline sits in
// the Failed state. Reset clears it.
var ErrPipelineFailed = errors.New("pipeline failed")

// QueueFactory builds the bounded queue for one hop.
type QueueFactory func(capacity int, policy ports.QueuePolicy) ports.FrameQueue

// Config describes the wiring of one pipeline: the ordered stage descriptors
// plus the sink hop and the shared policy knobs.
type Config struct {
	Policy ports.PipelinePolicy
	Stages []ports.StageDescriptor

	// SinkQueueCapacity and SinkQueuePolicy describe the queue feeding the
	// sink runner (the hop after the last stage).
	SinkQueueCapacity int
	SinkQueuePolicy   ports.QueuePolicy
}

// Controller owns the pipeline lifecycle: it wires source, queues, stage
// workers, and sink into a directed pipeline, supervises them, and is the
// sole authority for global state transitions. It performs no per-frame work
// itself.
type Controller struct {
	cfg        Config
	source     ports.Source
	transforms map[string]ports.Transform
	sink       ports.Sink
	newQueue   QueueFactory
	obs        ports.Observability
	bus        *events.Bus

	state   atomic.Int32
	lastErr atomic.Value // string

	sourced     atomic.Uint64
	delivered   atomic.Uint64
	undelivered atomic.Uint64
	abandoned   atomic.Uint64

	mu  sync.Mutex // lifecycle transitions only
	run atomic.Pointer[runState]
}

// runState bundles everything that is rebuilt on each Start so a reset
// pipeline starts from a clean slate.
type runState struct {
	id          string
	queues      []ports.FrameQueue
	healths     []*stageHealth
	runners     []*stageRunner
	doneCh      chan struct{}
	monitorStop chan struct{}
	drainOnce   sync.Once
	monitorOnce sync.Once
}

func (r *runState) stopMonitor() {
	r.monitorOnce.Do(func() { close(r.monitorStop) })
}

// NewController validates and normalizes cfg and prepares a controller in
// the Stopped state. Transforms are bound to stage descriptors by name;
// stages without a bound transform run a passthrough.
func NewController(
	cfg Config,
	source ports.Source,
	transforms map[string]ports.Transform,
	sink ports.Sink,
	newQueue QueueFactory,
	obs ports.Observability,
	bus *events.Bus,
) (*Controller, error) {
	if source == nil {
		return nil, fmt.Errorf("source is required")
	}
	if sink == nil {
		return nil, fmt.Errorf("sink is required")
	}
	if newQueue == nil {
		return nil, fmt.Errorf("queue factory is required")
	}
	if obs == nil {
		return nil, fmt.Errorf("observability is required")
	}

	normalize(&cfg)

	c := &Controller{
		cfg:        cfg,
		source:     source,
		transforms: transforms,
		sink:       sink,
		newQueue:   newQueue,
		obs:        obs,
		bus:        bus,
	}
	c.state.Store(int32(StateStopped))
	return c, nil
}

func normalize(cfg *Config) {
	if cfg.Policy.DrainTimeout <= 0 {
		cfg.Policy.DrainTimeout = 5 * time.Second
	}
	if cfg.Policy.PollInterval <= 0 {
		cfg.Policy.PollInterval = 100 * time.Millisecond
	}
	if cfg.Policy.SinkRetryMax <= 0 {
		cfg.Policy.SinkRetryMax = 3
	}
	if cfg.Policy.SinkRetryBackoff <= 0 {
		cfg.Policy.SinkRetryBackoff = 50 * time.Millisecond
	}
	if cfg.SinkQueueCapacity <= 0 {
		cfg.SinkQueueCapacity = 16
	}
	if cfg.SinkQueuePolicy == "" {
		cfg.SinkQueuePolicy = ports.PolicyBlock
	}
	for i := range cfg.Stages {
		d := &cfg.Stages[i]
		if d.Workers <= 0 {
			d.Workers = 1
		}
		if d.QueueCapacity <= 0 {
			d.QueueCapacity = 16
		}
		if d.QueuePolicy == "" {
			d.QueuePolicy = ports.PolicyBlock
		}
		// Strict ordering is the default: a concurrent stage gets a reorder
		// window unless the descriptor explicitly opts out with -1.
		switch {
		case d.ReorderWindow < 0:
			d.ReorderWindow = 0
		case d.ReorderWindow == 0 && d.Workers > 1:
			d.ReorderWindow = 4 * d.Workers
		}
	}
}

// State reads the current pipeline state without locking.
func (c *Controller) State() State { return State(c.state.Load()) }

// Start wires the pipeline and begins streaming. Idempotent while Starting
// or Running; rejected while Draining or Failed.
func (c *Controller) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.State() {
	case StateStarting, StateRunning:
		return nil
	case StateDraining:
		return fmt.Errorf("pipeline is draining; wait for stop to complete")
	case StateFailed:
		return ErrPipelineFailed
	}

	r := &runState{
		id:          uuid.NewString(),
		doneCh:      make(chan struct{}),
		monitorStop: make(chan struct{}),
	}

	// One queue per stage hop plus the sink hop.
	for _, d := range c.cfg.Stages {
		q := c.newQueue(d.QueueCapacity, d.QueuePolicy)
		r.queues = append(r.queues, q)
		r.healths = append(r.healths, &stageHealth{name: d.Name, queue: q})
	}
	sinkQueue := c.newQueue(c.cfg.SinkQueueCapacity, c.cfg.SinkQueuePolicy)
	sinkHealth := &stageHealth{name: c.sink.Name(), queue: sinkQueue}
	r.queues = append(r.queues, sinkQueue)
	r.healths = append(r.healths, sinkHealth)

	for i, d := range c.cfg.Stages {
		tr := ports.Transform(passthroughTransform{})
		if t, ok := c.transforms[d.Name]; ok && t != nil {
			tr = t
		}
		downstream := r.queues[i+1]
		runner := newStageRunner(
			d, tr, r.queues[i],
			func(f *domain.Frame) { c.push(downstream, f) },
			r.healths[i], c.obs, c.bus,
			func(stage string, err error) {
				c.fail(r, "stage_fail_fast", fmt.Errorf("stage %s: %w", stage, err))
			},
		)
		r.runners = append(r.runners, runner)
	}

	srcCh := make(chan *domain.Frame, r.queues[0].Cap())

	// Make the new run visible before the state event so it carries this
	// run's ID.
	c.run.Store(r)
	c.transition(StateStopped, StateStarting, "start")

	if err := c.source.Start(srcCh); err != nil {
		close(r.doneCh)
		c.transition(StateStarting, StateStopped, "source start failed")
		return fmt.Errorf("start source: %w", err)
	}

	for _, runner := range r.runners {
		runner.start()
	}
	// Cascade closure stage by stage so drained queues propagate the
	// terminal signal downstream.
	for i, runner := range r.runners {
		go func(sr *stageRunner, next ports.FrameQueue) {
			sr.drainDone()
			next.Close()
		}(runner, r.queues[i+1])
	}
	go c.feed(r, srcCh, r.queues[0])
	go c.runSink(r, sinkQueue, sinkHealth)
	go c.monitor(r)

	c.transition(StateStarting, StateRunning, "all stages ready")
	return nil
}

// Stop drains the pipeline: the source stops producing, in-flight frames
// flow to completion bounded by the drain timeout, and whatever remains is
// abandoned and counted. Idempotent while Stopped or Draining.
func (c *Controller) Stop(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	st := c.State()
	r := c.run.Load()
	switch st {
	case StateStopped, StateFailed:
		c.mu.Unlock()
		return nil
	case StateDraining:
		c.mu.Unlock()
		if r != nil {
			r.drainOnce.Do(func() { c.completeDrain(r) })
		}
		return nil
	}
	if !c.transition(st, StateDraining, "stop requested") {
		// Lost the race to fail(); nothing left to drain.
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	if err := c.source.Stop(); err != nil {
		c.obs.LogError("source_stop_failed", err)
	}
	r.drainOnce.Do(func() { c.completeDrain(r) })
	return nil
}

// Reset returns a Failed pipeline to Stopped so it can be started again.
func (c *Controller) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.transition(StateFailed, StateStopped, "reset") {
		return fmt.Errorf("reset is only valid from the failed state")
	}
	return nil
}

// Done reports completion of the current run: closed once the sink has
// drained. Nil before the first start.
func (c *Controller) Done() <-chan struct{} {
	if r := c.run.Load(); r != nil {
		return r.doneCh
	}
	return nil
}

// LastError returns the error that moved the pipeline to Failed, if any.
func (c *Controller) LastError() string {
	if v, ok := c.lastErr.Load().(string); ok {
		return v
	}
	return ""
}

// Snapshot assembles the health view from per-stage atomic counters. Safe to
// call from any goroutine at any time.
func (c *Controller) Snapshot() HealthSnapshot {
	s := HealthSnapshot{
		State:       c.State().String(),
		Sourced:     c.sourced.Load(),
		Delivered:   c.delivered.Load(),
		Undelivered: c.undelivered.Load(),
		Abandoned:   c.abandoned.Load(),
		LastError:   c.LastError(),
	}
	if r := c.run.Load(); r != nil {
		s.RunID = r.id
		for _, h := range r.healths {
			s.Stages = append(s.Stages, h.record())
		}
	}
	return s
}

func (c *Controller) feed(r *runState, src <-chan *domain.Frame, first ports.FrameQueue) {
	for f := range src {
		c.sourced.Add(1)
		c.obs.IncCounter("vs_frames_sourced_total", 1)
		c.push(first, f)
	}

	if err := c.source.Err(); err != nil {
		c.fail(r, "source_failed", err)
		return
	}

	// Clean exhaustion: drain in-flight frames, then stop. The source can
	// run dry before Start finishes flipping Starting to Running.
	if !c.transition(StateRunning, StateDraining, "source_exhausted") {
		c.transition(StateStarting, StateDraining, "source_exhausted")
	}
	first.Close()
	r.drainOnce.Do(func() { c.completeDrain(r) })
}

func (c *Controller) runSink(r *runState, q ports.FrameQueue, h *stageHealth) {
	defer close(r.doneCh)

	for {
		f, err := q.Pop()
		if err != nil {
			return
		}

		if err := c.emitWithRetry(f); err != nil {
			h.errored.Add(1)
			h.setLastError(err)
			c.undelivered.Add(1)
			c.obs.IncCounter("vs_frames_undelivered_total", 1)
			c.obs.LogError("sink_emit_failed", err, ports.Field{Key: "seq", Value: f.Seq})
			c.bus.Publish(events.FrameUndeliveredEvent{
				Sink:      c.sink.Name(),
				Seq:       f.Seq,
				Error:     err.Error(),
				Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
			})
			if c.cfg.Policy.FailOnSinkError {
				c.fail(r, "sink_failed", err)
				return
			}
			continue
		}

		h.processed.Add(1)
		c.delivered.Add(1)
		c.obs.IncCounter("vs_frames_delivered_total", 1)
	}
}

func (c *Controller) emitWithRetry(f *domain.Frame) error {
	backoff := c.cfg.Policy.SinkRetryBackoff
	var err error
	for attempt := 0; attempt <= c.cfg.Policy.SinkRetryMax; attempt++ {
		start := time.Now()
		if err = c.sink.Emit(f); err == nil {
			c.obs.ObserveLatency("vs_emit_latency_seconds", time.Since(start).Seconds())
			return nil
		}
		if ports.IsPermanent(err) {
			return err
		}
		if attempt == c.cfg.Policy.SinkRetryMax {
			break
		}
		time.Sleep(backoff)
		backoff *= 2
	}
	return err
}

// completeDrain waits for in-flight frames to finish, bounded by the drain
// timeout; past the deadline remaining frames are abandoned and counted.
func (c *Controller) completeDrain(r *runState) {
	timer := time.NewTimer(c.cfg.Policy.DrainTimeout)
	defer timer.Stop()

	select {
	case <-r.doneCh:
	case <-timer.C:
		var n int
		for _, q := range r.queues {
			n += q.Abort()
		}
		if n > 0 {
			c.abandoned.Add(uint64(n))
			c.obs.IncCounter("vs_frames_abandoned_total", float64(n))
			c.obs.LogError("drain_timeout", fmt.Errorf("abandoned %d in-flight frames", n))
		}
		// Grace period for workers stuck inside a transform; past it they
		// are on their own.
		select {
		case <-r.doneCh:
		case <-time.After(c.cfg.Policy.PollInterval):
			c.obs.LogCritical("drain_workers_unresponsive",
				fmt.Errorf("workers did not exit within %s after abort", c.cfg.Policy.PollInterval))
		}
	}

	r.stopMonitor()
	c.transition(StateDraining, StateStopped, "drained")
}

// fail is the single escalation path for systemic errors. First caller wins;
// the pipeline lands in Failed and stays there until Reset.
func (c *Controller) fail(r *runState, reason string, err error) {
	for {
		st := c.State()
		if st == StateFailed || st == StateStopped {
			return
		}
		if c.state.CompareAndSwap(int32(st), int32(StateFailed)) {
			c.lastErr.Store(err.Error())
			c.obs.LogCritical("pipeline_failed", err, ports.Field{Key: "reason", Value: reason})
			c.publishState(st, StateFailed, reason)

			go func() {
				if serr := c.source.Stop(); serr != nil {
					c.obs.LogError("source_stop_failed", serr)
				}
				var n int
				for _, q := range r.queues {
					n += q.Abort()
				}
				if n > 0 {
					c.abandoned.Add(uint64(n))
					c.obs.IncCounter("vs_frames_abandoned_total", float64(n))
				}
				r.stopMonitor()
			}()
			return
		}
	}
}

func (c *Controller) push(q ports.FrameQueue, f *domain.Frame) {
	if !q.Push(f) {
		// Queue closed under us: the frame is abandoned, not silently lost.
		c.abandoned.Add(1)
		c.obs.IncCounter("vs_frames_abandoned_total", 1)
	}
}

// monitor polls queue depths and drop counters at the configured granularity
// and turns deltas into metrics and events.
func (c *Controller) monitor(r *runState) {
	ticker := time.NewTicker(c.cfg.Policy.PollInterval)
	defer ticker.Stop()

	lastDrops := make([]uint64, len(r.healths))
	for {
		select {
		case <-r.monitorStop:
			return
		case <-ticker.C:
			depth := 0
			for _, q := range r.queues {
				depth += q.Len()
			}
			c.obs.SetGauge("vs_queue_depth", float64(depth))

			for i, h := range r.healths {
				d := h.queue.Drops()
				if d > lastDrops[i] {
					delta := d - lastDrops[i]
					lastDrops[i] = d
					c.obs.IncCounter("vs_frames_dropped_total", float64(delta))
					c.bus.Publish(events.FrameDroppedEvent{
						Stage:     h.name,
						Count:     delta,
						Total:     d,
						Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
					})
				}
			}
		}
	}
}

func (c *Controller) transition(from, to State, reason string) bool {
	if c.state.CompareAndSwap(int32(from), int32(to)) {
		c.publishState(from, to, reason)
		return true
	}
	return false
}

func (c *Controller) publishState(from, to State, reason string) {
	c.obs.SetGauge("vs_pipeline_state", float64(to))
	c.obs.LogInfo("pipeline_state",
		ports.Field{Key: "from", Value: from.String()},
		ports.Field{Key: "to", Value: to.String()},
		ports.Field{Key: "reason", Value: reason})

	var id string
	if r := c.run.Load(); r != nil {
		id = r.id
	}
	c.bus.Publish(events.StateChangedEvent{
		RunID:     id,
		From:      from.String(),
		To:        to.String(),
		Reason:    reason,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	})
}
