package visionstream

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aleksanderbialka/bioscopeai-vision-streamer/internal/domain"
	"github.com/aleksanderbialka/bioscopeai-vision-streamer/internal/ports"
)

// ErrPushSourceClosed is returned by Push after CloseInput.
var ErrPushSourceClosed = errors.New("visionstream: push source closed")

// PushSource lets external producers feed frames into the pipeline. Sequence
// numbers and missing timestamps are assigned on Push so producers only
// supply pixel data. CloseInput ends the stream cleanly; the pipeline then
// drains and stops.
type PushSource struct {
	ch chan *Frame

	mu        sync.Mutex
	started   bool
	stopCh    chan struct{}
	stopOnce  sync.Once
	inClosed  bool
	closeOnce sync.Once
	wg        sync.WaitGroup
	seq       uint64
}

// NewPushSource creates a push source with the given input buffer. Push
// blocks when the buffer is full, propagating pipeline backpressure to the
// producer.
func NewPushSource(buffer int) *PushSource {
	if buffer <= 0 {
		buffer = 16
	}
	return &PushSource{ch: make(chan *Frame, buffer)}
}

// Push hands one frame to the pipeline, stamping its sequence number.
func (p *PushSource) Push(f *Frame) error {
	if f == nil {
		return fmt.Errorf("frame is nil")
	}

	p.mu.Lock()
	if p.inClosed {
		p.mu.Unlock()
		return ErrPushSourceClosed
	}
	f.Seq = p.seq
	p.seq++
	if f.Timestamp.IsZero() {
		f.Timestamp = time.Now()
	}
	stop := p.stopCh
	p.mu.Unlock()

	if stop == nil {
		// Not started yet; rely on the buffer.
		select {
		case p.ch <- f:
			return nil
		default:
			return fmt.Errorf("push source buffer full before start")
		}
	}

	select {
	case p.ch <- f:
		return nil
	case <-stop:
		return ErrPushSourceClosed
	}
}

// CloseInput ends the input stream. Frames already pushed still flow through.
func (p *PushSource) CloseInput() {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.inClosed = true
		p.mu.Unlock()
		close(p.ch)
	})
}

func (p *PushSource) Start(out chan<- *domain.Frame) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return fmt.Errorf("push source already started")
	}
	p.started = true
	p.stopCh = make(chan struct{})
	stop := p.stopCh

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer close(out)
		for {
			select {
			case f, ok := <-p.ch:
				if !ok {
					return
				}
				select {
				case out <- f:
				case <-stop:
					return
				}
			case <-stop:
				return
			}
		}
	}()
	return nil
}

func (p *PushSource) Stop() error {
	p.mu.Lock()
	stop := p.stopCh
	p.mu.Unlock()
	if stop != nil {
		p.stopOnce.Do(func() { close(stop) })
	}
	p.wg.Wait()
	return nil
}

// Err always reports nil: a push source only ends when its producer says so.
func (p *PushSource) Err() error { return nil }

var _ ports.Source = (*PushSource)(nil)
