package events

import (
	"github.com/kelindar/event"
)

// Bus wraps a kelindar/event dispatcher so the pipeline can broadcast
// lifecycle and per-frame telemetry to any number of subscribers without
// touching the hot path when nobody is listening.
type Bus struct {
	dispatcher *event.Dispatcher
}

// New creates a new event bus.
func New() *Bus {
	return &Bus{dispatcher: event.NewDispatcher()}
}

// Publish broadcasts ev to all subscribers of its concrete type.
func (b *Bus) Publish(ev Event) {
	if b == nil {
		return
	}
	switch e := ev.(type) {
	case StateChangedEvent:
		event.Publish(b.dispatcher, e)
	case FrameDroppedEvent:
		event.Publish(b.dispatcher, e)
	case StageErrorEvent:
		event.Publish(b.dispatcher, e)
	case FrameUndeliveredEvent:
		event.Publish(b.dispatcher, e)
	}
}

// Subscribe registers a typed handler and returns its unsubscribe function.
// The handler's parameter type selects which events it receives.
func (b *Bus) Subscribe(handler any) func() {
	switch h := handler.(type) {
	case func(StateChangedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(FrameDroppedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(StageErrorEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(FrameUndeliveredEvent):
		return event.Subscribe(b.dispatcher, h)
	default:
		return func() {}
	}
}
