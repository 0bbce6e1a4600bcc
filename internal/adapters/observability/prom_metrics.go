// Package observability implements the pipeline's metrics and logging
// boundary on Prometheus plus the standard logger.
package observability

import (
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aleksanderbialka/bioscopeai-vision-streamer/internal/domain"
	"github.com/aleksanderbialka/bioscopeai-vision-streamer/internal/ports"
)

// PromObs maps the named-metric Observability calls onto pre-registered
// Prometheus collectors. Each instance owns its registry so independent
// pipelines (and tests) never collide on registration.
type PromObs struct {
	reg      *prometheus.Registry
	counters map[string]prometheus.Counter
	gauges   map[string]prometheus.Gauge
	histos   map[string]prometheus.Observer
}

func NewPromObs() *PromObs {
	sourced := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vs_frames_sourced_total",
		Help: "Frames accepted from the source adapter.",
	})
	delivered := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vs_frames_delivered_total",
		Help: "Frames successfully emitted by the sink.",
	})
	undelivered := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vs_frames_undelivered_total",
		Help: "Frames the sink gave up on after retries.",
	})
	abandoned := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vs_frames_abandoned_total",
		Help: "In-flight frames discarded by drain timeout or failure.",
	})
	dropped := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vs_frames_dropped_total",
		Help: "Frames evicted by queue backpressure policies.",
	})
	stageErrs := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vs_stage_errors_total",
		Help: "Per-frame transform failures reported by stages.",
	})
	depth := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "vs_queue_depth",
		Help: "Frames currently buffered across pipeline queues.",
	})
	state := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "vs_pipeline_state",
		Help: "Pipeline state (0=stopped 1=starting 2=running 3=draining 4=failed).",
	})
	emitLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "vs_emit_latency_seconds",
		Help:    "Latency of a successful sink emit, retries included.",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
	})

	reg := prometheus.NewRegistry()
	reg.MustRegister(sourced, delivered, undelivered, abandoned, dropped,
		stageErrs, depth, state, emitLatency)

	return &PromObs{
		reg: reg,
		counters: map[string]prometheus.Counter{
			"vs_frames_sourced_total":     sourced,
			"vs_frames_delivered_total":   delivered,
			"vs_frames_undelivered_total": undelivered,
			"vs_frames_abandoned_total":   abandoned,
			"vs_frames_dropped_total":     dropped,
			"vs_stage_errors_total":       stageErrs,
		},
		gauges: map[string]prometheus.Gauge{
			"vs_queue_depth":    depth,
			"vs_pipeline_state": state,
		},
		histos: map[string]prometheus.Observer{
			"vs_emit_latency_seconds": emitLatency,
		},
	}
}

// Handler serves this instance's registry in the Prometheus text format.
func (p *PromObs) Handler() http.Handler {
	return promhttp.HandlerFor(p.reg, promhttp.HandlerOpts{})
}

func (p *PromObs) LogInfo(msg string, fields ...ports.Field) {
	log.Printf("INFO: %s%s", msg, formatFields(fields))
}

func (p *PromObs) LogError(msg string, err error, fields ...ports.Field) {
	if err != nil {
		log.Printf("ERROR: %s: %v%s", msg, err, formatFields(fields))
	}
}

func (p *PromObs) LogCritical(msg string, err error, fields ...ports.Field) {
	if err != nil {
		log.Printf("CRITICAL: %s: %v%s", msg, err, formatFields(fields))
		return
	}
	log.Printf("CRITICAL: %s%s", msg, formatFields(fields))
}

func (p *PromObs) IncCounter(name string, v float64) {
	if c, ok := p.counters[name]; ok {
		c.Add(v)
	}
}

func (p *PromObs) SetGauge(name string, v float64) {
	if g, ok := p.gauges[name]; ok {
		g.Set(v)
	}
}

func (p *PromObs) ObserveLatency(name string, seconds float64) {
	if h, ok := p.histos[name]; ok {
		h.Observe(seconds)
	}
}

func (p *PromObs) RecordStageError(stage string, f *domain.Frame, err error) {
	p.IncCounter("vs_stage_errors_total", 1)
	if err != nil {
		log.Printf("ERROR: stage_error stage=%s seq=%d err=%v", stage, f.Seq, err)
	}
}

func formatFields(fields []ports.Field) string {
	if len(fields) == 0 {
		return ""
	}
	var b strings.Builder
	for _, f := range fields {
		fmt.Fprintf(&b, " %s=%v", f.Key, f.Value)
	}
	return b.String()
}

var _ ports.Observability = (*PromObs)(nil)
