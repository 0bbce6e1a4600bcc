package ports

import "github.com/aleksanderbialka/bioscopeai-vision-streamer/internal/domain"

// Sink serializes processed frames into an outgoing stream. Emit must be
// idempotent-safe under retry: the pipeline re-submits the same frame after
// transient failures.
type Sink interface {
	Emit(f *domain.Frame) error
	Name() string
}
