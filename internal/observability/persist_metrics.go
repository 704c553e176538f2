package observability

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PersistCollector exposes snapshot persistence metrics.
type PersistCollector struct {
	gatherer prometheus.Gatherer

	SaveDuration prometheus.Histogram
	Saves        *prometheus.CounterVec
	Loads        *prometheus.CounterVec
	PendingSave  prometheus.Gauge
}

// NewPersistCollector registers persistence metrics against the provided registerer.
func NewPersistCollector(reg prometheus.Registerer) (*PersistCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	saveHistogram, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "mapdraw_snapshot_save_duration_seconds",
		Help:    "Duration of snapshot writes to the configured store.",
		Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}), "mapdraw_snapshot_save_duration_seconds")
	if err != nil {
		return nil, err
	}

	saves, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mapdraw_snapshot_saves_total",
		Help: "Snapshot save attempts, labeled by trigger (explicit or debounced) and result.",
	}, []string{"trigger", "result"}), "mapdraw_snapshot_saves_total")
	if err != nil {
		return nil, err
	}

	loads, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mapdraw_snapshot_loads_total",
		Help: "Snapshot load attempts, labeled by result.",
	}, []string{"result"}), "mapdraw_snapshot_loads_total")
	if err != nil {
		return nil, err
	}

	pending, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "mapdraw_snapshot_save_pending",
		Help: "1 while a debounced save is scheduled but not yet written.",
	}), "mapdraw_snapshot_save_pending")
	if err != nil {
		return nil, err
	}

	return &PersistCollector{
		gatherer:     gatherer,
		SaveDuration: saveHistogram,
		Saves:        saves,
		Loads:        loads,
		PendingSave:  pending,
	}, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *PersistCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// ObserveSave records one save attempt.
func (c *PersistCollector) ObserveSave(trigger string, d time.Duration, err error) {
	if c == nil {
		return
	}
	if c.SaveDuration != nil {
		c.SaveDuration.Observe(d.Seconds())
	}
	if c.Saves != nil {
		c.Saves.WithLabelValues(trigger, resultLabel(err)).Inc()
	}
}

// ObserveLoad records one load attempt.
func (c *PersistCollector) ObserveLoad(err error) {
	if c == nil || c.Loads == nil {
		return
	}
	c.Loads.WithLabelValues(resultLabel(err)).Inc()
}

// SetPending flags whether a debounced save is outstanding.
func (c *PersistCollector) SetPending(pending bool) {
	if c == nil || c.PendingSave == nil {
		return
	}
	if pending {
		c.PendingSave.Set(1)
		return
	}
	c.PendingSave.Set(0)
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return hist, nil
}
