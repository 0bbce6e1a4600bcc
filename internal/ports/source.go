package ports

import "github.com/aleksanderbialka/bioscopeai-vision-streamer/internal/domain"

// Source streams frames from any producer (camera, file, network, synthetic)
// into the pipeline.
//
// Start returns once the adapter is producing; the adapter closes out when
// the sequence terminates. Err reports the terminal condition after out is
// closed: nil for clean exhaustion, non-nil when the source failed
// permanently.
type Source interface {
	Start(out chan<- *domain.Frame) error
	Stop() error
	Err() error
}
