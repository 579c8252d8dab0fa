package prometheus

import (
	"math"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newproject8/returnfeed-backend-sub001/pkg/quality"
)

func newTestMetrics(t *testing.T) *Metrics {
	t.Helper()
	m, err := NewMetrics(prometheus.NewRegistry(), nil)
	require.NoError(t, err)
	return m
}

func TestRecordDecision_Level(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordDecision("s1", quality.QualityDecision{
		Mode:          quality.ModeLevel,
		Level:         quality.LevelLow,
		PreviousLevel: quality.LevelHigh,
		Changed:       true,
		Score:         0.9,
	})
	m.RecordDecision("s1", quality.QualityDecision{
		Mode:          quality.ModeLevel,
		Level:         quality.LevelLow,
		PreviousLevel: quality.LevelLow,
		Score:         0.5,
	})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.decisions.WithLabelValues("level", "down")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.decisions.WithLabelValues("level", "hold")))
	assert.Equal(t, float64(quality.LevelLow), testutil.ToFloat64(m.level.WithLabelValues("s1")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.score))
}

func TestRecordDecision_Gated(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordDecision("s1", quality.QualityDecision{
		Mode:    quality.ModeBitrate,
		Bitrate: 500_000,
		Gate:    quality.GateMinInterval,
	})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.gated.WithLabelValues("min_interval")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.decisions.WithLabelValues("bitrate", "hold")))
	// Gated steps leave the target gauge alone.
	assert.Equal(t, 0, testutil.CollectAndCount(m.targetBitrate))
}

func TestRecordDecision_Bitrate(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordDecision("s2", quality.QualityDecision{
		Mode:            quality.ModeBitrate,
		Bitrate:         400_000,
		PreviousBitrate: 500_000,
		Changed:         true,
		Score:           0.1,
	})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.decisions.WithLabelValues("bitrate", "down")))
	assert.Equal(t, 400_000.0, testutil.ToFloat64(m.targetBitrate.WithLabelValues("s2")))

	m.Forget("s2")
	assert.Equal(t, 0, testutil.CollectAndCount(m.targetBitrate))
}

func TestRecordDecision_NaNScoreNotObserved(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg, nil)
	require.NoError(t, err)

	m.RecordDecision("s3", quality.QualityDecision{
		Mode:    quality.ModeBitrate,
		Bitrate: 500_000,
		Score:   math.NaN(),
		Reason:  "no loss data",
	})
	m.RecordDecision("s3", quality.QualityDecision{
		Mode:    quality.ModeBitrate,
		Bitrate: 500_000,
		Score:   0.03,
	})

	families, err := reg.Gather()
	require.NoError(t, err)
	var found bool
	for _, mf := range families {
		if mf.GetName() != "returnfeed_quality_score" {
			continue
		}
		found = true
		require.Len(t, mf.GetMetric(), 1)
		h := mf.GetMetric()[0].GetHistogram()
		assert.Equal(t, uint64(1), h.GetSampleCount())
		assert.InDelta(t, 0.03, h.GetSampleSum(), 1e-9)
	}
	assert.True(t, found)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.decisions.WithLabelValues("bitrate", "hold")))
}

func TestRecordApplyFailure(t *testing.T) {
	m := newTestMetrics(t)
	m.RecordApplyFailure(quality.ModeLevel)
	m.RecordApplyFailure(quality.ModeLevel)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.applyFailures.WithLabelValues("level")))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordDecision("s", quality.QualityDecision{Changed: true})
		m.RecordTarget("s", quality.QualityDecision{})
		m.RecordApplyFailure(quality.ModeBitrate)
		m.Forget("s")
	})
}

func TestNewMetrics_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewMetrics(reg, nil)
	require.NoError(t, err)
	_, err = NewMetrics(reg, nil)
	assert.Error(t, err)
}
