// Package metrics provides Prometheus collectors for a field node.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Submission results.
const (
	ResultAccepted = "accepted"
	ResultRetry    = "retry"
	ResultFailed   = "exhausted"
)

// Metrics tracks ingress, synchronization and retention.
// All methods are no-ops on a nil *Metrics.
type Metrics struct {
	ObservationsCreated  prometheus.Counter
	ObservationsRejected prometheus.Counter
	Submissions          *prometheus.CounterVec
	SubmitDuration       prometheus.Histogram
	Drains               *prometheus.CounterVec
	OutboxDepth          prometheus.Gauge
	Pruned               *prometheus.CounterVec
}

// New creates Metrics registered on reg. A nil reg uses a private
// registry, so repeated calls never collide.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)
	return &Metrics{
		ObservationsCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "fieldnode_observations_created_total",
			Help: "Observations committed by ingress",
		}),
		ObservationsRejected: f.NewCounter(prometheus.CounterOpts{
			Name: "fieldnode_observations_rejected_total",
			Help: "Submissions rejected by ingress validation",
		}),
		Submissions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "fieldnode_sync_submissions_total",
			Help: "Registry submissions by result",
		}, []string{"result"}),
		SubmitDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "fieldnode_sync_submit_duration_seconds",
			Help:    "Duration of registry submissions",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		Drains: f.NewCounterVec(prometheus.CounterOpts{
			Name: "fieldnode_sync_drains_total",
			Help: "Drain triggers by outcome (drained or the skip reason)",
		}, []string{"outcome"}),
		OutboxDepth: f.NewGauge(prometheus.GaugeOpts{
			Name: "fieldnode_outbox_depth",
			Help: "Pending outbox entries after the last drain",
		}),
		Pruned: f.NewCounterVec(prometheus.CounterOpts{
			Name: "fieldnode_retention_pruned_total",
			Help: "Rows removed by the retention sweep",
		}, []string{"family"}),
	}
}

// IncrementCreated records a committed observation.
func (m *Metrics) IncrementCreated() {
	if m == nil {
		return
	}
	m.ObservationsCreated.Inc()
}

// IncrementRejected records an ingress rejection.
func (m *Metrics) IncrementRejected() {
	if m == nil {
		return
	}
	m.ObservationsRejected.Inc()
}

// ObserveSubmit records one registry submission.
func (m *Metrics) ObserveSubmit(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.Submissions.WithLabelValues(result).Inc()
	m.SubmitDuration.Observe(d.Seconds())
}

// IncrementDrain records a drain trigger outcome.
func (m *Metrics) IncrementDrain(outcome string) {
	if m == nil {
		return
	}
	m.Drains.WithLabelValues(outcome).Inc()
}

// SetOutboxDepth records the outbox size.
func (m *Metrics) SetOutboxDepth(n int) {
	if m == nil {
		return
	}
	m.OutboxDepth.Set(float64(n))
}

// AddPruned records rows removed from family.
func (m *Metrics) AddPruned(family string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.Pruned.WithLabelValues(family).Add(float64(n))
}
