package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/Penlect/emqxlwm2m/component"
	"github.com/Penlect/emqxlwm2m/engine"
	"github.com/Penlect/emqxlwm2m/errors"
	"github.com/Penlect/emqxlwm2m/lwm2m"
	"github.com/Penlect/emqxlwm2m/metric"
	"github.com/Penlect/emqxlwm2m/natsclient"
	"github.com/Penlect/emqxlwm2m/pkg/retry"
	"github.com/Penlect/emqxlwm2m/pkg/worker"
)

// Metrics holds Prometheus metrics for the gateway.
type Metrics struct {
	uplinkReceived      prometheus.Counter
	uplinkBytes         prometheus.Counter
	uplinkDropped       prometheus.Counter
	downlinkPublished   prometheus.Counter
	downlinkErrors      prometheus.Counter
	activeSubscriptions prometheus.Gauge
	dispatchLatency     prometheus.Histogram
	lastActivity        prometheus.Gauge
}

func newMetrics(registry *metric.MetricsRegistry) *Metrics {
	if registry == nil {
		return nil
	}

	metrics := &Metrics{
		uplinkReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "emqxlwm2m",
			Subsystem: "gateway",
			Name:      "uplink_received_total",
			Help:      "Total uplink messages received from NATS",
		}),
		uplinkBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "emqxlwm2m",
			Subsystem: "gateway",
			Name:      "uplink_bytes_total",
			Help:      "Total uplink payload bytes received",
		}),
		uplinkDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "emqxlwm2m",
			Subsystem: "gateway",
			Name:      "uplink_dropped_total",
			Help:      "Uplink messages dropped because the dispatch queue was full",
		}),
		downlinkPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "emqxlwm2m",
			Subsystem: "gateway",
			Name:      "downlink_published_total",
			Help:      "Total commands published to NATS",
		}),
		downlinkErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "emqxlwm2m",
			Subsystem: "gateway",
			Name:      "downlink_errors_total",
			Help:      "Command publishes that failed after retries",
		}),
		activeSubscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "emqxlwm2m",
			Subsystem: "gateway",
			Name:      "active_subscriptions",
			Help:      "Currently held per-endpoint NATS subscriptions",
		}),
		dispatchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "emqxlwm2m",
			Subsystem: "gateway",
			Name:      "dispatch_duration_seconds",
			Help:      "Time from worker pickup to engine dispatch completion",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		}),
		lastActivity: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "emqxlwm2m",
			Subsystem: "gateway",
			Name:      "last_activity_timestamp",
			Help:      "Unix timestamp of the last uplink message",
		}),
	}

	registry.RegisterCounter("gateway", "uplink_received", metrics.uplinkReceived)
	registry.RegisterCounter("gateway", "uplink_bytes", metrics.uplinkBytes)
	registry.RegisterCounter("gateway", "uplink_dropped", metrics.uplinkDropped)
	registry.RegisterCounter("gateway", "downlink_published", metrics.downlinkPublished)
	registry.RegisterCounter("gateway", "downlink_errors", metrics.downlinkErrors)
	registry.RegisterGauge("gateway", "active_subscriptions", metrics.activeSubscriptions)
	registry.RegisterHistogram("gateway", "dispatch_latency", metrics.dispatchLatency)
	registry.RegisterGauge("gateway", "last_activity", metrics.lastActivity)

	return metrics
}

// Config holds gateway configuration.
type Config struct {
	// Mountpoint is the subject prefix shared with the broker bridge.
	Mountpoint string `json:"mountpoint" yaml:"mountpoint"`
	// MaxSubscriptions caps the per-endpoint subscription set. Zero means
	// DefaultMaxSubscriptions.
	MaxSubscriptions int `json:"max_subscriptions" yaml:"max_subscriptions"`
	// Workers and QueueSize shape the inbound dispatch pool.
	Workers   int `json:"workers" yaml:"workers"`
	QueueSize int `json:"queue_size" yaml:"queue_size"`
	// Wildcard subscribes to every endpoint's uplink traffic at start,
	// instead of per-endpoint on demand. Needed when lifecycle events
	// from not-yet-acquired endpoints matter.
	Wildcard bool `json:"wildcard" yaml:"wildcard"`

	// Engine tunes the embedded correlation engine.
	Engine engine.Config `json:"engine" yaml:"engine"`
}

// DefaultMaxSubscriptions bounds the subscription set when the config
// leaves it unset.
const DefaultMaxSubscriptions = 512

// DefaultConfig returns sensible gateway defaults.
func DefaultConfig() Config {
	return Config{
		Mountpoint:       DefaultMountpoint,
		MaxSubscriptions: DefaultMaxSubscriptions,
		Workers:          4,
		QueueSize:        1024,
	}
}

// Validate checks the configuration for values that cannot work.
func (c *Config) Validate() error {
	if c.Mountpoint == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig,
			"GatewayConfig", "Validate", "mountpoint")
	}
	for _, r := range c.Mountpoint {
		if r == '*' || r == '>' || r == ' ' {
			return errors.WrapInvalid(
				fmt.Errorf("mountpoint %q contains wildcard or space", c.Mountpoint),
				"GatewayConfig", "Validate", "mountpoint")
		}
	}
	if c.MaxSubscriptions < 0 {
		return errors.WrapInvalid(
			fmt.Errorf("max_subscriptions %d is negative", c.MaxSubscriptions),
			"GatewayConfig", "Validate", "subscription cap")
	}
	return nil
}

// Deps holds runtime dependencies for the gateway.
type Deps struct {
	Name            string
	Config          Config
	NATSClient      *natsclient.Client
	MetricsRegistry *metric.MetricsRegistry
	Logger          *slog.Logger
}

// inbound is one raw uplink message queued for dispatch.
type inbound struct {
	subject string
	payload []byte
}

// Gateway owns the NATS subscription set and the embedded engine. It
// implements component.LifecycleComponent.
type Gateway struct {
	name       string
	cfg        Config
	natsClient *natsclient.Client
	engine     *engine.Engine
	logger     *slog.Logger
	pool       *worker.Pool[inbound]
	retryCfg   retry.Config

	mu          sync.Mutex
	subs        map[string]*nats.Subscription
	wildcardSub *nats.Subscription

	running   atomic.Bool
	startTime time.Time

	uplinkCount   atomic.Int64
	downlinkCount atomic.Int64
	errorCount    atomic.Int64
	lastActivity  atomic.Value

	metrics *Metrics
	core    *metric.Metrics
}

var _ component.LifecycleComponent = (*Gateway)(nil)

// New creates a gateway. The embedded engine publishes downlink commands
// through the gateway's NATS client.
func New(deps Deps) (*Gateway, error) {
	cfg := deps.Config
	if cfg.Mountpoint == "" {
		cfg.Mountpoint = DefaultMountpoint
	}
	if cfg.MaxSubscriptions == 0 {
		cfg.MaxSubscriptions = DefaultMaxSubscriptions
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default().With("component", "lwm2m-gateway")
	}

	g := &Gateway{
		name:       deps.Name,
		cfg:        cfg,
		natsClient: deps.NATSClient,
		logger:     logger,
		retryCfg:   retry.Quick(),
		subs:       make(map[string]*nats.Subscription),
		startTime:  time.Now(),
		metrics:    newMetrics(deps.MetricsRegistry),
	}
	if deps.MetricsRegistry != nil {
		g.core = deps.MetricsRegistry.CoreMetrics()
	}
	g.lastActivity.Store(time.Time{})

	g.engine = engine.New(engine.Deps{
		Publish:         g.publishDownlink,
		Config:          cfg.Engine,
		Logger:          logger.With("component", "lwm2m-engine"),
		MetricsRegistry: deps.MetricsRegistry,
	})
	g.pool = worker.NewPool(cfg.Workers, cfg.QueueSize, g.dispatch,
		worker.WithMetricsRegistry[inbound](deps.MetricsRegistry, "emqxlwm2m_gateway_pool"))

	return g, nil
}

// Engine exposes the embedded correlation engine.
func (g *Gateway) Engine() *engine.Engine { return g.engine }

// Meta returns the component metadata.
func (g *Gateway) Meta() component.Metadata {
	name := g.name
	if name == "" {
		name = "lwm2m-gateway"
	}
	return component.Metadata{
		Name:        name,
		Type:        "gateway",
		Description: fmt.Sprintf("LwM2M gateway bridging NATS subjects under %q", g.cfg.Mountpoint),
		Version:     "1.0.0",
	}
}

// Health returns the current health status.
func (g *Gateway) Health() component.HealthStatus {
	healthy := g.running.Load() && g.natsClient != nil && g.natsClient.IsHealthy()
	return component.HealthStatus{
		Healthy:    healthy,
		LastCheck:  time.Now(),
		ErrorCount: int(g.errorCount.Load()),
		Uptime:     time.Since(g.startTime),
	}
}

// Initialize validates dependencies but opens nothing.
func (g *Gateway) Initialize() error {
	if g.natsClient == nil {
		return errors.WrapInvalid(fmt.Errorf("nil NATS client"),
			"Gateway", "Initialize", "dependency check")
	}
	return nil
}

// Start launches the dispatch pool and the engine, and opens the wildcard
// subscription when configured. Idempotent.
func (g *Gateway) Start(ctx context.Context) error {
	if g.running.Load() {
		return nil
	}

	if err := g.pool.Start(ctx); err != nil {
		return errors.Wrap(err, "Gateway", "Start", "worker pool")
	}
	if err := g.engine.Start(ctx); err != nil {
		_ = g.pool.Stop(time.Second)
		return errors.Wrap(err, "Gateway", "Start", "engine")
	}

	if g.cfg.Wildcard {
		sub, err := g.natsClient.SubscribeSubject(ctx, uplinkWildcard(g.cfg.Mountpoint), g.handleMsg)
		if err != nil {
			_ = g.engine.Stop(time.Second)
			_ = g.pool.Stop(time.Second)
			return errors.WrapTransient(err, "Gateway", "Start", "wildcard subscribe")
		}
		g.mu.Lock()
		g.wildcardSub = sub
		g.mu.Unlock()
	}

	g.running.Store(true)
	g.startTime = time.Now()
	if g.core != nil {
		g.core.RecordServiceStatus(g.name, 2)
	}
	g.logger.Info("Gateway started",
		"mountpoint", g.cfg.Mountpoint, "wildcard", g.cfg.Wildcard)
	return nil
}

// Stop drains the subscription set, the engine, and the worker pool.
func (g *Gateway) Stop(timeout time.Duration) error {
	if !g.running.Load() {
		return nil
	}
	g.running.Store(false)

	g.mu.Lock()
	if g.wildcardSub != nil {
		_ = g.wildcardSub.Unsubscribe()
		g.wildcardSub = nil
	}
	for endpoint, sub := range g.subs {
		_ = sub.Unsubscribe()
		delete(g.subs, endpoint)
	}
	g.mu.Unlock()
	g.updateSubGauge()

	var firstErr error
	if err := g.engine.Stop(timeout); err != nil {
		firstErr = err
	}
	if err := g.pool.Stop(timeout); err != nil && firstErr == nil {
		firstErr = err
	}
	if g.core != nil {
		g.core.RecordServiceStatus(g.name, 0)
	}
	return firstErr
}

// Endpoint subscribes to an endpoint's uplink traffic and returns an
// operator handle bound to the engine. A zero timeout means the engine
// default. Repeated calls share one subscription.
func (g *Gateway) Endpoint(ctx context.Context, name string, timeout time.Duration) (*lwm2m.Endpoint, error) {
	if !g.running.Load() {
		return nil, errors.ErrNotStarted
	}
	if err := g.subscribeEndpoint(ctx, name); err != nil {
		return nil, err
	}
	return g.engine.Endpoint(name, timeout), nil
}

// Release drops the per-endpoint subscription. In-flight commands for the
// endpoint are not cancelled; their responses just stop arriving.
func (g *Gateway) Release(endpoint string) {
	g.mu.Lock()
	if sub, ok := g.subs[endpoint]; ok {
		_ = sub.Unsubscribe()
		delete(g.subs, endpoint)
	}
	g.mu.Unlock()
	g.updateSubGauge()
}

func (g *Gateway) subscribeEndpoint(ctx context.Context, endpoint string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.wildcardSub != nil {
		return nil
	}
	if _, ok := g.subs[endpoint]; ok {
		return nil
	}
	if len(g.subs) >= g.cfg.MaxSubscriptions {
		return errors.WrapTransient(
			fmt.Errorf("%w: %d endpoints", errors.ErrTooManySubs, len(g.subs)),
			"Gateway", "subscribeEndpoint", "subscription cap")
	}

	sub, err := g.natsClient.SubscribeSubject(ctx, uplinkSubject(g.cfg.Mountpoint, endpoint), g.handleMsg)
	if err != nil {
		return errors.WrapTransient(err, "Gateway", "subscribeEndpoint", "NATS subscribe")
	}
	g.subs[endpoint] = sub
	g.logger.Debug("Subscribed to endpoint uplink", "endpoint", endpoint)
	if g.metrics != nil {
		g.metrics.activeSubscriptions.Set(float64(len(g.subs)))
	}
	return nil
}

func (g *Gateway) updateSubGauge() {
	if g.metrics == nil {
		return
	}
	g.mu.Lock()
	n := len(g.subs)
	g.mu.Unlock()
	g.metrics.activeSubscriptions.Set(float64(n))
}

// handleMsg is the NATS message callback. It only queues; decoding and
// engine dispatch happen on the worker pool.
func (g *Gateway) handleMsg(_ context.Context, subject string, payload []byte) {
	g.uplinkCount.Add(1)
	now := time.Now()
	g.lastActivity.Store(now)
	if g.metrics != nil {
		g.metrics.uplinkReceived.Inc()
		g.metrics.uplinkBytes.Add(float64(len(payload)))
		g.metrics.lastActivity.Set(float64(now.Unix()))
	}

	if err := g.pool.Submit(inbound{subject: subject, payload: payload}); err != nil {
		g.errorCount.Add(1)
		if g.metrics != nil {
			g.metrics.uplinkDropped.Inc()
		}
		g.logger.Warn("Dropped uplink message, dispatch queue full", "subject", subject)
	}
}

func (g *Gateway) dispatch(_ context.Context, in inbound) error {
	endpoint, ok := parseUplinkSubject(g.cfg.Mountpoint, in.subject)
	if !ok {
		g.logger.Debug("Ignoring message outside uplink scheme", "subject", in.subject)
		return nil
	}

	var start time.Time
	if g.metrics != nil {
		start = time.Now()
	}
	g.engine.HandleUplink(endpoint, in.payload)
	if g.metrics != nil {
		g.metrics.dispatchLatency.Observe(time.Since(start).Seconds())
	}
	return nil
}

// publishDownlink is the engine's transport hook. Transient NATS failures
// are retried briefly; the engine's own timeout bounds the overall wait.
func (g *Gateway) publishDownlink(endpoint string, payload []byte) error {
	subject := downlinkSubject(g.cfg.Mountpoint, endpoint)
	err := retry.Do(context.Background(), g.retryCfg, func() error {
		return g.natsClient.Publish(context.Background(), subject, payload)
	})
	if err != nil {
		g.errorCount.Add(1)
		if g.metrics != nil {
			g.metrics.downlinkErrors.Inc()
		}
		return err
	}
	g.downlinkCount.Add(1)
	if g.metrics != nil {
		g.metrics.downlinkPublished.Inc()
	}
	return nil
}
