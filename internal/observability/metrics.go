package observability

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

// Collector bundles Prometheus metrics for the workspace, the live feed and
// the feed ingest RPC surface, and provides helpers to wire them into gRPC
// servers and HTTP handlers.
type Collector struct {
	gatherer prometheus.Gatherer

	RPCRequests  *prometheus.CounterVec
	RPCDurations *prometheus.HistogramVec

	Layers       *prometheus.GaugeVec
	Commits      *prometheus.CounterVec
	FeedUpdates  *prometheus.CounterVec
	OverlayNodes prometheus.Gauge
	Sessions     prometheus.Gauge
}

// NewCollector registers metrics against the provided registerer,
// defaulting to the global Prometheus registry when nil.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	requests, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mapdraw_rpc_requests_total",
		Help: "Total number of handled RPCs, labeled by service, method, and gRPC status code.",
	}, []string{"service", "method", "code"}), "mapdraw_rpc_requests_total")
	if err != nil {
		return nil, err
	}

	durations, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mapdraw_rpc_request_duration_seconds",
		Help:    "RPC latency in seconds.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2},
	}, []string{"service", "method"}), "mapdraw_rpc_request_duration_seconds")
	if err != nil {
		return nil, err
	}

	layers, err := registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "mapdraw_layers",
		Help: "Current number of layers in the layer store, labeled by kind and origin.",
	}, []string{"kind", "origin"}), "mapdraw_layers")
	if err != nil {
		return nil, err
	}

	commits, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mapdraw_drawing_commits_total",
		Help: "Completed drawing gestures, labeled by layer kind.",
	}, []string{"kind"}), "mapdraw_drawing_commits_total")
	if err != nil {
		return nil, err
	}

	feed, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mapdraw_feed_updates_total",
		Help: "Live feed updates, labeled by result (applied or absent).",
	}, []string{"result"}), "mapdraw_feed_updates_total")
	if err != nil {
		return nil, err
	}

	nodes, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "mapdraw_overlay_nodes",
		Help: "Number of nodes in the current network overlay.",
	}), "mapdraw_overlay_nodes")
	if err != nil {
		return nil, err
	}

	sessions, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "mapdraw_surface_sessions",
		Help: "Connected operator surface sessions.",
	}), "mapdraw_surface_sessions")
	if err != nil {
		return nil, err
	}

	return &Collector{
		gatherer:     gatherer,
		RPCRequests:  requests,
		RPCDurations: durations,
		Layers:       layers,
		Commits:      commits,
		FeedUpdates:  feed,
		OverlayNodes: nodes,
		Sessions:     sessions,
	}, nil
}

// UnaryServerInterceptor records request counts and durations for unary RPCs.
func (c *Collector) UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		if c == nil {
			return resp, err
		}

		fullMethod := ""
		if info != nil {
			fullMethod = info.FullMethod
		}
		service, method := SplitMethod(fullMethod)
		code := status.Code(err).String()

		if c.RPCRequests != nil {
			c.RPCRequests.WithLabelValues(service, method, code).Inc()
		}
		if c.RPCDurations != nil {
			c.RPCDurations.WithLabelValues(service, method).Observe(time.Since(start).Seconds())
		}

		return resp, err
	}
}

// Handler exposes a ready-to-use /metrics handler.
func (c *Collector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetLayerCounts replaces the per-kind layer gauges. Kinds absent from
// counts are reset to zero.
func (c *Collector) SetLayerCounts(counts map[string]map[string]int) {
	if c == nil || c.Layers == nil {
		return
	}
	c.Layers.Reset()
	for kind, byOrigin := range counts {
		for origin, n := range byOrigin {
			c.Layers.WithLabelValues(kind, origin).Set(float64(n))
		}
	}
}

// IncCommit counts a completed drawing gesture.
func (c *Collector) IncCommit(kind string) {
	if c == nil || c.Commits == nil {
		return
	}
	c.Commits.WithLabelValues(kind).Inc()
}

// ObserveFeed records one feed update. nodes is the overlay size; zero
// means the overlay is absent.
func (c *Collector) ObserveFeed(nodes int) {
	if c == nil {
		return
	}
	result := "applied"
	if nodes == 0 {
		result = "absent"
	}
	if c.FeedUpdates != nil {
		c.FeedUpdates.WithLabelValues(result).Inc()
	}
	if c.OverlayNodes != nil {
		c.OverlayNodes.Set(float64(nodes))
	}
}

// AddSessions adjusts the connected-session gauge by delta.
func (c *Collector) AddSessions(delta int) {
	if c == nil || c.Sessions == nil {
		return
	}
	c.Sessions.Add(float64(delta))
}

// SplitMethod parses a fully-qualified gRPC method name into service and method
// components. It tolerates empty strings and partial paths, returning
// "unknown"/"unknown" when parsing fails.
func SplitMethod(fullMethod string) (string, string) {
	if fullMethod == "" {
		return "unknown", "unknown"
	}
	fullMethod = strings.TrimPrefix(fullMethod, "/")
	parts := strings.Split(fullMethod, "/")
	if len(parts) < 2 {
		return "unknown", "unknown"
	}
	service := parts[len(parts)-2]
	method := parts[len(parts)-1]
	if dot := strings.LastIndex(service, "."); dot >= 0 && dot+1 < len(service) {
		service = service[dot+1:]
	}
	if service == "" {
		service = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	return service, method
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGaugeVec(reg prometheus.Registerer, vec *prometheus.GaugeVec, name string) (*prometheus.GaugeVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.GaugeVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
