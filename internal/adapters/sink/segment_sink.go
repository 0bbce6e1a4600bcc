package sink

import (
	"fmt"

	"github.com/aleksanderbialka/bioscopeai-vision-streamer/internal/adapters/segment"
	"github.com/aleksanderbialka/bioscopeai-vision-streamer/internal/domain"
	"github.com/aleksanderbialka/bioscopeai-vision-streamer/internal/ports"
)

// Segment appends delivered frames to a segment file for later replay
// through the file source.
type Segment struct {
	w *segment.Writer
}

func NewSegment(path string) (*Segment, error) {
	w, err := segment.OpenWriter(path)
	if err != nil {
		return nil, fmt.Errorf("open segment %s: %w", path, err)
	}
	return &Segment{w: w}, nil
}

func (s *Segment) Name() string { return "segment" }

func (s *Segment) Emit(f *domain.Frame) error {
	if err := s.w.Append(f); err != nil {
		// A failed disk write leaves the file position unknown; the writer
		// cannot safely continue.
		return ports.Permanent(fmt.Errorf("append frame %d: %w", f.Seq, err))
	}
	return nil
}

func (s *Segment) Close() error {
	return s.w.Close()
}

var _ ports.Sink = (*Segment)(nil)
