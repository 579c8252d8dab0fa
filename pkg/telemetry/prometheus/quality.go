// Package prometheus exports quality controller decisions as Prometheus
// metrics.
package prometheus

import (
	"math"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/newproject8/returnfeed-backend-sub001/pkg/quality"
)

const (
	namespace = "returnfeed"
	subsystem = "quality"
)

// Metrics holds the quality collectors. A nil *Metrics records nothing.
type Metrics struct {
	decisions     *prometheus.CounterVec
	gated         *prometheus.CounterVec
	applyFailures *prometheus.CounterVec
	score         *prometheus.HistogramVec
	targetBitrate *prometheus.GaugeVec
	level         *prometheus.GaugeVec
}

// NewMetrics creates the collectors and registers them on reg. A nil reg
// uses the default registerer.
func NewMetrics(reg prometheus.Registerer, constLabels prometheus.Labels) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   subsystem,
			Name:        "decisions_total",
			Help:        "Controller decisions by mode and direction.",
			ConstLabels: constLabels,
		}, []string{"mode", "direction"}),
		gated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   subsystem,
			Name:        "gate_rejections_total",
			Help:        "Decision steps held back by a rate gate.",
			ConstLabels: constLabels,
		}, []string{"gate"}),
		applyFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   subsystem,
			Name:        "apply_failures_total",
			Help:        "Decisions the transport failed to apply.",
			ConstLabels: constLabels,
		}, []string{"mode"}),
		score: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   subsystem,
			Name:        "score",
			Help:        "Aggregate degradation score (level) or loss ratio (bitrate) per decision.",
			ConstLabels: constLabels,
			Buckets:     []float64{0.05, 0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1},
		}, []string{"mode"}),
		targetBitrate: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   subsystem,
			Name:        "target_bitrate_bps",
			Help:        "Current bitrate target per session.",
			ConstLabels: constLabels,
		}, []string{"session"}),
		level: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   subsystem,
			Name:        "level",
			Help:        "Current quality level per session (1 = low, 2 = high).",
			ConstLabels: constLabels,
		}, []string{"session"}),
	}

	for _, c := range []prometheus.Collector{m.decisions, m.gated, m.applyFailures, m.score, m.targetBitrate, m.level} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// RecordDecision counts d and updates the session's current target.
func (m *Metrics) RecordDecision(session string, d quality.QualityDecision) {
	if m == nil {
		return
	}
	mode := d.Mode.String()
	m.decisions.WithLabelValues(mode, d.Direction()).Inc()
	if d.Gate != quality.GateNone {
		m.gated.WithLabelValues(d.Gate.String()).Inc()
		return
	}
	if !math.IsNaN(d.Score) && !math.IsInf(d.Score, 0) {
		m.score.WithLabelValues(mode).Observe(d.Score)
	}
	m.RecordTarget(session, d)
}

// RecordTarget sets the session's target gauges without counting a decision.
// Manual overrides use it.
func (m *Metrics) RecordTarget(session string, d quality.QualityDecision) {
	if m == nil {
		return
	}
	switch d.Mode {
	case quality.ModeBitrate:
		m.targetBitrate.WithLabelValues(session).Set(float64(d.Bitrate))
	default:
		m.level.WithLabelValues(session).Set(float64(d.Level))
	}
}

// RecordApplyFailure counts a failed apply.
func (m *Metrics) RecordApplyFailure(mode quality.Mode) {
	if m == nil {
		return
	}
	m.applyFailures.WithLabelValues(mode.String()).Inc()
}

// Forget drops the per-session series.
func (m *Metrics) Forget(session string) {
	if m == nil {
		return
	}
	m.targetBitrate.DeleteLabelValues(session)
	m.level.DeleteLabelValues(session)
}
