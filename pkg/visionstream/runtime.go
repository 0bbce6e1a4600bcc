package visionstream

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	_ "github.com/lib/pq"

	"github.com/aleksanderbialka/bioscopeai-vision-streamer/internal/adapters/observability"
	"github.com/aleksanderbialka/bioscopeai-vision-streamer/internal/adapters/queue"
	"github.com/aleksanderbialka/bioscopeai-vision-streamer/internal/adapters/sink"
	"github.com/aleksanderbialka/bioscopeai-vision-streamer/internal/adapters/source"
	"github.com/aleksanderbialka/bioscopeai-vision-streamer/internal/app/config"
	"github.com/aleksanderbialka/bioscopeai-vision-streamer/internal/app/pipeline"
	"github.com/aleksanderbialka/bioscopeai-vision-streamer/internal/events"
	"github.com/aleksanderbialka/bioscopeai-vision-streamer/internal/ports"
)

// RuntimeOption customizes the dependencies used by Runtime.
type RuntimeOption func(*runtimeOverrides)

type runtimeOverrides struct {
	source        ports.Source
	sink          ports.Sink
	transforms    map[string]ports.Transform
	observability ports.Observability
	bus           *events.Bus
	queueFactory  pipeline.QueueFactory
	noMetrics     bool
}

// WithSource injects a custom source implementation (camera SDKs, message
// brokers, simulators).
func WithSource(s Source) RuntimeOption {
	return func(o *runtimeOverrides) { o.source = s }
}

// WithSink injects a custom sink so frames can be sent anywhere.
func WithSink(s Sink) RuntimeOption {
	return func(o *runtimeOverrides) { o.sink = s }
}

// WithTransform binds a transform to the stage descriptor of the same name.
// Stages without a bound transform run a passthrough.
func WithTransform(stage string, tr Transform) RuntimeOption {
	return func(o *runtimeOverrides) {
		if o.transforms == nil {
			o.transforms = make(map[string]ports.Transform)
		}
		o.transforms[stage] = tr
	}
}

// WithObservability plugs in a custom metrics/logging backend.
func WithObservability(obs Observability) RuntimeOption {
	return func(o *runtimeOverrides) { o.observability = obs }
}

// WithEventBus attaches a caller-owned bus so subscribers can be registered
// before the pipeline starts.
func WithEventBus(bus *EventBus) RuntimeOption {
	return func(o *runtimeOverrides) { o.bus = bus }
}

// WithQueueFactory swaps the bounded queue implementation.
func WithQueueFactory(f pipeline.QueueFactory) RuntimeOption {
	return func(o *runtimeOverrides) { o.queueFactory = f }
}

// WithoutMetricsServer disables the HTTP endpoint; useful when embedding in a
// service that already serves its own.
func WithoutMetricsServer() RuntimeOption {
	return func(o *runtimeOverrides) { o.noMetrics = true }
}

// Runtime wires up the source → queue → stages → sink pipeline and exposes
// simple lifecycle hooks for embedding the streamer inside any Go service.
type Runtime struct {
	cfg  *Config
	ctrl *pipeline.Controller
	obs  ports.Observability

	db         *sql.DB
	wsSink     *sink.WebSocket
	segSink    *sink.Segment
	metricsSrv *http.Server
	noMetrics  bool
}

// NewRuntime bootstraps the default adapters for the configured source and
// sink kinds (synthetic/file/RTP in, Postgres/websocket/segment out,
// Prometheus observability). RuntimeOption values override any dependency.
func NewRuntime(cfg *Config, opts ...RuntimeOption) (*Runtime, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	var overrides runtimeOverrides
	for _, opt := range opts {
		if opt != nil {
			opt(&overrides)
		}
	}

	obs := overrides.observability
	if obs == nil {
		obs = observability.NewPromObs()
	}

	bus := overrides.bus
	if bus == nil {
		bus = events.New()
	}

	src := overrides.source
	if src == nil {
		var err error
		src, err = buildSource(cfg)
		if err != nil {
			return nil, err
		}
	}

	rt := &Runtime{cfg: cfg, obs: obs, noMetrics: overrides.noMetrics}

	snk := overrides.sink
	if snk == nil {
		var err error
		snk, err = rt.buildSink(cfg, obs)
		if err != nil {
			return nil, err
		}
	}

	factory := overrides.queueFactory
	if factory == nil {
		factory = func(capacity int, policy ports.QueuePolicy) ports.FrameQueue {
			return queue.NewRingQueue(capacity, policy)
		}
	}

	ctrl, err := pipeline.NewController(
		pipeline.Config{
			Policy:            cfg.Pipeline.Policy,
			Stages:            cfg.Stages,
			SinkQueueCapacity: cfg.Pipeline.SinkQueueCapacity,
			SinkQueuePolicy:   cfg.Pipeline.SinkQueuePolicy,
		},
		src, overrides.transforms, snk, factory, obs, bus,
	)
	if err != nil {
		rt.closeAdapters()
		return nil, err
	}
	rt.ctrl = ctrl
	return rt, nil
}

func buildSource(cfg *Config) (ports.Source, error) {
	switch cfg.Source.Kind {
	case config.SourceSynthetic:
		return source.NewSynthetic(cfg.Source.Synthetic), nil
	case config.SourceFile:
		return source.NewFile(cfg.Source.File)
	case config.SourceRTP:
		return source.NewRTP(cfg.Source.RTP)
	default:
		return nil, fmt.Errorf("unknown source kind %q", cfg.Source.Kind)
	}
}

func (rt *Runtime) buildSink(cfg *Config, obs ports.Observability) (ports.Sink, error) {
	switch cfg.Sink.Kind {
	case config.SinkPostgres:
		db, err := sql.Open("postgres", cfg.Sink.Postgres.ConnString)
		if err != nil {
			return nil, err
		}
		rt.db = db
		return sink.NewPostgres(db, cfg.Sink.Postgres.Table), nil
	case config.SinkWebSocket:
		rt.wsSink = sink.NewWebSocket(obs)
		return rt.wsSink, nil
	case config.SinkSegment:
		s, err := sink.NewSegment(cfg.Sink.Segment.Path)
		if err != nil {
			return nil, err
		}
		rt.segSink = s
		return s, nil
	default:
		return nil, fmt.Errorf("unknown sink kind %q", cfg.Sink.Kind)
	}
}

// Start begins streaming and launches the metrics endpoint. It returns
// immediately; call Run to block on a context instead.
func (rt *Runtime) Start() error {
	if rt == nil {
		return fmt.Errorf("runtime is nil")
	}
	if err := rt.ctrl.Start(); err != nil {
		return err
	}
	if !rt.noMetrics {
		rt.startMetrics()
	}
	return nil
}

// Run starts the runtime and blocks until the context is cancelled or the
// pipeline terminates on its own (source exhaustion or failure).
func (rt *Runtime) Run(ctx context.Context) error {
	if err := rt.Start(); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
	case <-rt.ctrl.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(),
		rt.cfg.Pipeline.Policy.DrainTimeout+5*time.Second)
	defer cancel()
	if err := rt.Shutdown(shutdownCtx); err != nil {
		return err
	}

	if rt.ctrl.State() == pipeline.StateFailed {
		return fmt.Errorf("pipeline failed: %s", rt.ctrl.LastError())
	}
	return nil
}

// Shutdown drains the pipeline and releases adapter resources.
func (rt *Runtime) Shutdown(ctx context.Context) error {
	var errs []error

	if err := rt.ctrl.Stop(ctx); err != nil {
		errs = append(errs, err)
	}
	if rt.metricsSrv != nil {
		if err := rt.metricsSrv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs = append(errs, err)
		}
	}
	errs = append(errs, rt.closeAdapters())
	return errors.Join(errs...)
}

func (rt *Runtime) closeAdapters() error {
	var errs []error
	if rt.wsSink != nil {
		errs = append(errs, rt.wsSink.Close())
	}
	if rt.segSink != nil {
		errs = append(errs, rt.segSink.Close())
	}
	if rt.db != nil {
		errs = append(errs, rt.db.Close())
	}
	return errors.Join(errs...)
}

// Controller exposes the underlying pipeline controller for lifecycle calls
// beyond Start/Run (Reset, Snapshot, Done).
func (rt *Runtime) Controller() *pipeline.Controller { return rt.ctrl }

// Snapshot returns the current health view.
func (rt *Runtime) Snapshot() HealthSnapshot { return rt.ctrl.Snapshot() }

// Handler returns the HTTP mux the metrics server uses (/metrics, /healthz,
// and /ws when the websocket sink is active), for embedding in an existing
// server.
func (rt *Runtime) Handler() http.Handler {
	mux := http.NewServeMux()
	if h, ok := rt.obs.(interface{ Handler() http.Handler }); ok {
		mux.Handle("/metrics", h.Handler())
	}
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		snap := rt.ctrl.Snapshot()
		w.Header().Set("Content-Type", "application/json")
		if snap.State == pipeline.StateFailed.String() {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(snap)
	})
	if rt.wsSink != nil {
		mux.Handle("/ws", rt.wsSink)
	}
	return mux
}

func (rt *Runtime) startMetrics() {
	rt.metricsSrv = &http.Server{
		Addr:    rt.cfg.Metrics.Addr,
		Handler: rt.Handler(),
	}

	go func() {
		if err := rt.metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("metrics server exited: %v", err)
		}
	}()
}
