// Package metrics exposes station activity as Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bft-labs/groundlink/internal/domain"
)

const namespace = "groundlink"

// Metrics implements ports.EventSink by updating collectors on a private
// registry.
type Metrics struct {
	registry *prometheus.Registry

	FramesReceived     prometheus.Counter
	FramesRejected     prometheus.Counter
	FieldParseFailures *prometheus.CounterVec
	Commands           *prometheus.CounterVec
	CommandDuration    prometheus.Histogram
	SimulationRunning  prometheus.Gauge
	SimulationSent     prometheus.Gauge
	StationState       prometheus.Gauge
}

// New creates the collectors plus Go runtime and process collectors.
// queueDepth, if non-nil, is sampled at scrape time.
func New(queueDepth func() float64) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		FramesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "telemetry",
			Name:      "frames_received_total",
			Help:      "Non-empty frames read from the link",
		}),
		FramesRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "telemetry",
			Name:      "frames_rejected_total",
			Help:      "Frames whose column count did not match the schema",
		}),
		FieldParseFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "telemetry",
			Name:      "field_parse_failures_total",
			Help:      "Numeric fields that did not parse, by field",
		}, []string{"field"}),
		Commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "commands",
			Name:      "total",
			Help:      "Command outcomes by status and source",
		}, []string{"status", "source"}),
		CommandDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "commands",
			Name:      "write_duration_seconds",
			Help:      "Time spent writing a command to the link",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25},
		}),
		SimulationRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "simulation",
			Name:      "running",
			Help:      "1 while a replay session is active",
		}),
		SimulationSent: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "simulation",
			Name:      "commands_sent",
			Help:      "Commands queued by the current or last replay session",
		}),
		StationState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "state",
			Help:      "Lifecycle state (0=idle, 1=starting, 2=running, 3=stopping, 4=faulted)",
		}),
	}

	m.registry.MustRegister(
		m.FramesReceived,
		m.FramesRejected,
		m.FieldParseFailures,
		m.Commands,
		m.CommandDuration,
		m.SimulationRunning,
		m.SimulationSent,
		m.StationState,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if queueDepth != nil {
		m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "commands",
			Name:      "queue_depth",
			Help:      "Commands waiting to be sent",
		}, queueDepth))
	}
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) OnStateChange(previous, current domain.State, reason string) {
	m.StationState.Set(float64(current))
}

func (m *Metrics) OnRecord(rec domain.Record) {
	for _, f := range rec.ParseFailures {
		m.FieldParseFailures.WithLabelValues(f).Inc()
	}
}

func (m *Metrics) OnRawLine(line string) {
	m.FramesReceived.Inc()
}

func (m *Metrics) OnDecodeFailure(line string, err error) {
	m.FramesRejected.Inc()
}

func (m *Metrics) OnCommand(res domain.CommandResult) {
	m.Commands.WithLabelValues(string(res.Status), string(res.Command.Source)).Inc()
	if res.Status != domain.CommandDropped {
		m.CommandDuration.Observe(res.Duration.Seconds())
	}
}

func (m *Metrics) OnSimulationStatus(status domain.SimulationStatus) {
	if status.State == domain.SimRunning {
		m.SimulationRunning.Set(1)
	} else {
		m.SimulationRunning.Set(0)
	}
	m.SimulationSent.Set(float64(status.Sent))
}
