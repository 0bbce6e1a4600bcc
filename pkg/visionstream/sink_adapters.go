package visionstream

import (
	"errors"
	"fmt"
	"sync"

	"github.com/aleksanderbialka/bioscopeai-vision-streamer/internal/domain"
)

// ErrChannelSinkClosed is returned when a channel sink is written to after
// being closed.
var ErrChannelSinkClosed = errors.New("visionstream: channel sink closed")

// FrameSink is invoked once per delivered frame.
type FrameSink func(*Frame) error

// NewCallbackSink adapts a FrameSink into a full Sink implementation so
// callers can plug arbitrary functions without defining structs.
func NewCallbackSink(name string, fn FrameSink) Sink {
	if name == "" {
		name = "callback"
	}
	return &callbackSink{name: name, fn: fn}
}

// NewChannelSink exposes delivered frames via a channel; it returns the sink,
// the read-only channel, and a close function the caller should invoke during
// shutdown.
func NewChannelSink(name string, buffer int) (Sink, <-chan *Frame, func()) {
	if name == "" {
		name = "channel"
	}
	if buffer < 0 {
		buffer = 0
	}
	ch := make(chan *Frame, buffer)
	s := &channelSink{
		name:   name,
		ch:     ch,
		closed: make(chan struct{}),
	}
	return s, ch, func() { s.close() }
}

type callbackSink struct {
	name string
	fn   FrameSink
}

func (s *callbackSink) Emit(f *domain.Frame) error {
	if s.fn == nil {
		return fmt.Errorf("callback sink %q: nil handler", s.name)
	}
	return s.fn(f)
}

func (s *callbackSink) Name() string { return s.name }

type channelSink struct {
	name   string
	ch     chan *Frame
	closed chan struct{}
	once   sync.Once
}

func (s *channelSink) Emit(f *domain.Frame) error {
	select {
	case <-s.closed:
		return ErrChannelSinkClosed
	default:
	}

	select {
	case <-s.closed:
		return ErrChannelSinkClosed
	case s.ch <- f:
		return nil
	}
}

func (s *channelSink) Name() string { return s.name }

func (s *channelSink) close() {
	s.once.Do(func() {
		close(s.closed)
		close(s.ch)
	})
}
