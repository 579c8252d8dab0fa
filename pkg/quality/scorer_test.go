package quality

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScore(t *testing.T) {
	th := DefaultThresholds().HighToLow
	w := DefaultWeights()

	tests := []struct {
		name string
		m    SmoothedMetrics
		want float64
	}{
		{
			name: "ideal network",
			m:    SmoothedMetrics{EstimatedBandwidth: 2_000_000},
			want: 0,
		},
		{
			name: "every metric at or past its threshold",
			m: SmoothedMetrics{
				PacketLoss:         0.1,
				RoundTripTime:      300,
				EstimatedBandwidth: 0,
				FramesDropped:      20,
			},
			want: 1,
		},
		{
			name: "every metric half way",
			m: SmoothedMetrics{
				PacketLoss:         0.025,
				RoundTripTime:      75,
				EstimatedBandwidth: 250_000,
				FramesDropped:      5,
			},
			want: 0.5,
		},
		{
			name: "loss only",
			m:    SmoothedMetrics{PacketLoss: 0.05, EstimatedBandwidth: 500_000},
			want: 0.35,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Score(tt.m, th, w)
			assert.InDelta(t, tt.want, s.Total, 1e-9)
			assert.GreaterOrEqual(t, s.Total, 0.0)
			assert.LessOrEqual(t, s.Total, 1.0)
		})
	}
}

func TestScore_PerMetricClamp(t *testing.T) {
	s := Score(SmoothedMetrics{
		PacketLoss:         1,
		RoundTripTime:      10_000,
		EstimatedBandwidth: 10_000_000,
		FramesDropped:      0,
	}, DefaultThresholds().HighToLow, DefaultWeights())

	assert.Equal(t, 1.0, s.PacketLoss)
	assert.Equal(t, 1.0, s.RoundTripTime)
	assert.Equal(t, 0.0, s.Bandwidth, "bandwidth above threshold must not go negative")
	assert.Equal(t, 0.0, s.FramesDropped)
}

func TestScore_NonFiniteContributesZero(t *testing.T) {
	s := Score(SmoothedMetrics{
		PacketLoss:         math.NaN(),
		RoundTripTime:      math.Inf(1),
		EstimatedBandwidth: math.NaN(),
		FramesDropped:      10,
	}, DefaultThresholds().HighToLow, DefaultWeights())

	assert.Equal(t, 0.0, s.PacketLoss)
	assert.Equal(t, 0.0, s.RoundTripTime)
	assert.Equal(t, 0.0, s.Bandwidth)
	assert.InDelta(t, 0.1, s.Total, 1e-9)
}

func TestScore_DirectionDependentThresholds(t *testing.T) {
	m := SmoothedMetrics{
		PacketLoss:         0.03,
		RoundTripTime:      120,
		EstimatedBandwidth: 600_000,
		FramesDropped:      6,
	}
	th := DefaultThresholds()
	w := DefaultWeights()

	high := Score(m, th.HighToLow, w)
	low := Score(m, th.LowToHigh, w)

	assert.InDelta(t, 0.47, high.Total, 1e-9)
	assert.InDelta(t, 0.775, low.Total, 1e-9)
	assert.Greater(t, low.Total, high.Total, "LowToHigh is the stricter set")
}
