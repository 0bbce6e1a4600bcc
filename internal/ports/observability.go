package ports

import "github.com/aleksanderbialka/bioscopeai-vision-streamer/internal/domain"

// Observability is the pipeline's metrics and logging boundary.
type Observability interface {
	LogInfo(msg string, fields ...Field)
	LogError(msg string, err error, fields ...Field)
	LogCritical(msg string, err error, fields ...Field)

	IncCounter(name string, v float64)
	SetGauge(name string, v float64)
	ObserveLatency(name string, seconds float64)

	RecordStageError(stage string, f *domain.Frame, err error)
}

// Field is a structured log field.
type Field struct {
	Key   string
	Value any
}

// NopObservability discards everything. Useful for tests and for embedding
// the pipeline without a metrics backend.
type NopObservability struct{}

func (NopObservability) LogInfo(string, ...Field)                   {}
func (NopObservability) LogError(string, error, ...Field)           {}
func (NopObservability) LogCritical(string, error, ...Field)        {}
func (NopObservability) IncCounter(string, float64)                 {}
func (NopObservability) SetGauge(string, float64)                   {}
func (NopObservability) ObserveLatency(string, float64)             {}
func (NopObservability) RecordStageError(string, *domain.Frame, error) {}

var _ Observability = NopObservability{}
