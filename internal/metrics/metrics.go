// Package metrics exports evolver progress as Prometheus metrics.
package metrics

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gogpu/evolve/stroke"
)

const namespace = "evolve"

// Metrics implements evolve.Observer. Each instance owns its registry so
// several can coexist in one process.
type Metrics struct {
	registry *prometheus.Registry

	// CyclesTotal counts mutation cycles.
	// Labels: mutation (append, position, color, rotation, delete, prune),
	// outcome (accepted, rejected)
	CyclesTotal *prometheus.CounterVec

	// TickSeconds measures the duration of one iterate tick.
	TickSeconds prometheus.Histogram

	// Similarity is the similarity of the best painting.
	Similarity prometheus.Gauge

	// Strokes is the number of live strokes.
	Strokes prometheus.Gauge

	// SnapshotsTotal counts snapshots written.
	SnapshotsTotal prometheus.Counter

	// NoticesTotal counts notices by level.
	NoticesTotal *prometheus.CounterVec
}

// New creates a Metrics with its own registry, which also carries the Go and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		CyclesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Mutation cycles by mutation type and outcome",
		}, []string{"mutation", "outcome"}),
		TickSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tick_seconds",
			Help:      "Duration of one iterate tick",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 14),
		}),
		Similarity: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "similarity",
			Help:      "Similarity of the best painting to the target, 0 to 1",
		}),
		Strokes: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "strokes",
			Help:      "Number of live strokes",
		}),
		SnapshotsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshots_total",
			Help:      "Snapshots taken",
		}),
		NoticesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notices_total",
			Help:      "User-facing notices by level",
		}, []string{"level"}),
	}
}

// ObserveCycle records one mutation cycle.
func (m *Metrics) ObserveCycle(mt stroke.MutationType, accepted bool) {
	outcome := "rejected"
	if accepted {
		outcome = "accepted"
	}
	m.CyclesTotal.WithLabelValues(mt.String(), outcome).Inc()
}

// ObserveTick records one iterate tick.
func (m *Metrics) ObserveTick(elapsed time.Duration, similarity float64, strokes int) {
	m.TickSeconds.Observe(elapsed.Seconds())
	m.Similarity.Set(similarity)
	m.Strokes.Set(float64(strokes))
}

// ObserveSnapshot counts one snapshot.
func (m *Metrics) ObserveSnapshot() { m.SnapshotsTotal.Inc() }

// ObserveNotice counts one notice.
func (m *Metrics) ObserveNotice(level slog.Level) {
	m.NoticesTotal.WithLabelValues(strings.ToLower(level.String())).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }
