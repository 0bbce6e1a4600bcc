package pipeline

import (
	"errors"
	"sync"
	"time"

	"github.com/aleksanderbialka/bioscopeai-vision-streamer/internal/domain"
	"github.com/aleksanderbialka/bioscopeai-vision-streamer/internal/events"
	"github.com/aleksanderbialka/bioscopeai-vision-streamer/internal/ports"
)

// stageRunner owns the worker pool of one processing stage: it pulls frames
// from the stage's upstream queue, applies the transform, and hands results
// downstream (through the reorder buffer when the stage is concurrent and
// strict ordering is required).
type stageRunner struct {
	desc     ports.StageDescriptor
	tr       ports.Transform
	in       ports.FrameQueue
	out      func(*domain.Frame)
	health   *stageHealth
	obs      ports.Observability
	bus      *events.Bus
	escalate func(stage string, err error)
	reorder  *reorderBuffer
	wg       sync.WaitGroup
}

func newStageRunner(
	desc ports.StageDescriptor,
	tr ports.Transform,
	in ports.FrameQueue,
	out func(*domain.Frame),
	health *stageHealth,
	obs ports.Observability,
	bus *events.Bus,
	escalate func(stage string, err error),
) *stageRunner {
	s := &stageRunner{
		desc:     desc,
		tr:       tr,
		in:       in,
		out:      out,
		health:   health,
		obs:      obs,
		bus:      bus,
		escalate: escalate,
	}
	if desc.Workers > 1 && desc.ReorderWindow > 0 {
		s.reorder = newReorderBuffer(desc.ReorderWindow, out)
	}
	return s
}

func (s *stageRunner) start() {
	workers := s.desc.Workers
	if workers <= 0 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		s.wg.Add(1)
		go s.worker()
	}
}

func (s *stageRunner) worker() {
	defer s.wg.Done()

	for {
		f, err := s.in.Pop()
		if err != nil {
			// ErrQueueClosed after drain; anything else is a queue bug.
			if !errors.Is(err, ports.ErrQueueClosed) {
				s.obs.LogError("stage_pop_failed", err, ports.Field{Key: "stage", Value: s.desc.Name})
			}
			return
		}

		result, err := s.tr.Apply(f)
		if err != nil {
			s.health.errored.Add(1)
			s.health.setLastError(err)
			s.obs.RecordStageError(s.desc.Name, f, err)
			s.bus.Publish(events.StageErrorEvent{
				Stage:     s.desc.Name,
				Seq:       f.Seq,
				Error:     err.Error(),
				FailFast:  s.desc.FailFast,
				Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
			})

			if s.desc.FailFast {
				// Frame is dropped; the error escalates to the controller.
				s.escalate(s.desc.Name, err)
				continue
			}

			f.Annotations.StageError = &domain.StageError{Stage: s.desc.Name, Message: err.Error()}
			result = f
		}

		s.health.processed.Add(1)
		s.forward(result)
	}
}

func (s *stageRunner) forward(f *domain.Frame) {
	if s.reorder != nil {
		s.reorder.add(f)
		return
	}
	s.out(f)
}

// drainDone blocks until every worker has exited, then releases whatever the
// reorder buffer still holds.
func (s *stageRunner) drainDone() {
	s.wg.Wait()
	if s.reorder != nil {
		s.reorder.flush()
	}
}

// passthroughTransform is the default stage body when no transform is bound
// to a stage name.
type passthroughTransform struct{}

func (passthroughTransform) Apply(f *domain.Frame) (*domain.Frame, error) { return f, nil }
func (passthroughTransform) Name() string                                 { return "passthrough" }
