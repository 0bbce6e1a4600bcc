package ports

import "time"

// PipelinePolicy holds the knobs shared across the whole pipeline rather
// than any single stage.
type PipelinePolicy struct {
	// DrainTimeout bounds how long a stop request lets in-flight frames
	// finish before abandoning them.
	DrainTimeout time.Duration `yaml:"drain_timeout"`

	// PollInterval is the wake granularity for blocked workers observing a
	// stop request.
	PollInterval time.Duration `yaml:"poll_interval"`

	// FailOnSinkError escalates a permanent sink failure to the Failed
	// state instead of marking the frame Undelivered and continuing.
	FailOnSinkError bool `yaml:"fail_on_sink_error"`

	// SinkRetryMax and SinkRetryBackoff bound the emit retry loop.
	SinkRetryMax     int           `yaml:"sink_retry_max"`
	SinkRetryBackoff time.Duration `yaml:"sink_retry_backoff"`
}
