package domain

import "time"

// PixelFormat identifies the encoding of a frame payload.
type PixelFormat string

const (
	FormatRGB24   PixelFormat = "rgb24"
	FormatBGR24   PixelFormat = "bgr24"
	FormatYUV420P PixelFormat = "yuv420p"
	FormatJPEG    PixelFormat = "jpeg"
)

// Frame is the canonical unit of work in the pipeline: one timestamped
// video/image frame plus the annotations accumulated as it passes through
// stages.
//
// Ownership contract: a frame belongs to exactly one goroutine at a time.
// The source creates it, a queue transfers it, and the holding stage may
// mutate Annotations. Data must never be written after the frame has been
// handed downstream.
type Frame struct {
	// Seq is assigned by the source adapter, strictly increasing from 0.
	Seq uint64 `json:"seq"`

	// Timestamp is the capture time reported by the source, not the time
	// any stage touched the frame.
	Timestamp time.Time `json:"ts"`

	Data   []byte      `json:"data"`
	Width  int         `json:"width"`
	Height int         `json:"height"`
	Format PixelFormat `json:"format"`

	Annotations Annotations `json:"annotations"`
}

// Annotations is the per-frame side channel filled in by stages. It is a
// fixed set of typed fields plus one generic extension slot so per-frame
// allocation stays predictable under load.
type Annotations struct {
	// Detections holds inference results attached by detector stages.
	Detections []Detection `json:"detections,omitempty"`

	// StageError records a non-fatal per-frame transform failure. The frame
	// keeps flowing downstream with the error attached.
	StageError *StageError `json:"stage_error,omitempty"`

	// OutOfOrder marks a frame that fell outside a stage's reorder window
	// and was forwarded without waiting for its turn.
	OutOfOrder bool `json:"out_of_order,omitempty"`

	// Extra is the single extension slot for stage-specific payloads.
	Extra any `json:"extra,omitempty"`
}

// Detection is one inference result in frame pixel coordinates.
type Detection struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	X          int     `json:"x"`
	Y          int     `json:"y"`
	W          int     `json:"w"`
	H          int     `json:"h"`
}

// StageError identifies which stage failed on this frame and why.
type StageError struct {
	Stage   string `json:"stage"`
	Message string `json:"message"`
}

// Clone returns a copy sharing the payload buffer. Stages that replace Data
// must allocate a fresh buffer rather than writing through the shared one.
func (f *Frame) Clone() *Frame {
	if f == nil {
		return nil
	}
	cp := *f
	if len(f.Annotations.Detections) > 0 {
		cp.Annotations.Detections = append([]Detection(nil), f.Annotations.Detections...)
	}
	return &cp
}
