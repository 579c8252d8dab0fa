// Package testutil provides synthetic metric traces and a YAML trace format
// for exercising quality controllers.
package testutil

import (
	"math/rand"
	"time"

	"github.com/newproject8/returnfeed-backend-sub001/pkg/quality"
	"github.com/newproject8/returnfeed-backend-sub001/pkg/quality/internal"
)

// DefaultInterval is the sampling period traces are generated at.
const DefaultInterval = 2 * time.Second

// GoodNetwork returns conditions that score well below every threshold.
func GoodNetwork() quality.QualityMetrics {
	return quality.QualityMetrics{
		PacketLoss:         0.002,
		RoundTripTime:      30,
		Jitter:             2,
		EstimatedBandwidth: 2_500_000,
	}
}

// BadNetwork returns conditions that exceed every threshold.
func BadNetwork() quality.QualityMetrics {
	return quality.QualityMetrics{
		PacketLoss:         0.12,
		RoundTripTime:      350,
		Jitter:             40,
		EstimatedBandwidth: 150_000,
		FramesDropped:      25,
	}
}

// MarginalNetwork returns conditions between the two threshold sets: they
// neither force a downgrade from High nor allow an upgrade from Low.
func MarginalNetwork() quality.QualityMetrics {
	return quality.QualityMetrics{
		PacketLoss:         0.03,
		RoundTripTime:      120,
		Jitter:             10,
		EstimatedBandwidth: 600_000,
		FramesDropped:      6,
	}
}

// StableTrace repeats base count times, advancing clock by interval before
// each sample.
func StableTrace(clock *internal.MockClock, count int, interval time.Duration, base quality.QualityMetrics) []quality.QualityMetrics {
	out := make([]quality.QualityMetrics, count)
	for i := range out {
		m := base
		m.Timestamp = clock.Advance(interval)
		out[i] = m
	}
	return out
}

// RampTrace interpolates linearly from one set of conditions to another.
// The first sample equals from and the last equals to.
func RampTrace(clock *internal.MockClock, count int, interval time.Duration, from, to quality.QualityMetrics) []quality.QualityMetrics {
	out := make([]quality.QualityMetrics, count)
	for i := range out {
		f := 0.0
		if count > 1 {
			f = float64(i) / float64(count-1)
		}
		m := quality.QualityMetrics{
			PacketLoss:         lerp(from.PacketLoss, to.PacketLoss, f),
			RoundTripTime:      lerp(from.RoundTripTime, to.RoundTripTime, f),
			Jitter:             lerp(from.Jitter, to.Jitter, f),
			EstimatedBandwidth: lerp(from.EstimatedBandwidth, to.EstimatedBandwidth, f),
			FramesDropped:      lerp(from.FramesDropped, to.FramesDropped, f),
			Timestamp:          clock.Advance(interval),
		}
		out[i] = m
	}
	return out
}

// DegradingTrace ramps from GoodNetwork to BadNetwork.
func DegradingTrace(clock *internal.MockClock, count int, interval time.Duration) []quality.QualityMetrics {
	return RampTrace(clock, count, interval, GoodNetwork(), BadNetwork())
}

// RecoveringTrace ramps from BadNetwork to GoodNetwork.
func RecoveringTrace(clock *internal.MockClock, count int, interval time.Duration) []quality.QualityMetrics {
	return RampTrace(clock, count, interval, BadNetwork(), GoodNetwork())
}

// OscillatingTrace alternates between a and b every period samples.
func OscillatingTrace(clock *internal.MockClock, count int, interval time.Duration, period int, a, b quality.QualityMetrics) []quality.QualityMetrics {
	if period <= 0 {
		period = 1
	}
	out := make([]quality.QualityMetrics, count)
	for i := range out {
		m := a
		if (i/period)%2 == 1 {
			m = b
		}
		m.Timestamp = clock.Advance(interval)
		out[i] = m
	}
	return out
}

// NoisyTrace perturbs base by up to ±spread (a fraction, e.g. 0.5) per
// metric using a seeded generator. Occasional samples are replaced by
// BadNetwork spikes with probability spikeProb.
func NoisyTrace(clock *internal.MockClock, count int, interval time.Duration, base quality.QualityMetrics, spread, spikeProb float64, seed int64) []quality.QualityMetrics {
	rng := rand.New(rand.NewSource(seed))
	jitter := func(v float64) float64 {
		return v * (1 + spread*(2*rng.Float64()-1))
	}
	out := make([]quality.QualityMetrics, count)
	for i := range out {
		var m quality.QualityMetrics
		if rng.Float64() < spikeProb {
			m = BadNetwork()
		} else {
			m = quality.QualityMetrics{
				PacketLoss:         jitter(base.PacketLoss),
				RoundTripTime:      jitter(base.RoundTripTime),
				Jitter:             jitter(base.Jitter),
				EstimatedBandwidth: jitter(base.EstimatedBandwidth),
				FramesDropped:      jitter(base.FramesDropped),
			}
		}
		m.Timestamp = clock.Advance(interval)
		out[i] = m
	}
	return out
}

// LossCounterTrace produces samples carrying only cumulative packet counters.
// Sample i adds packetsPerSample received packets and loss[i]*packetsPerSample
// lost ones; the loss fraction field stays zero so that controllers must use
// the counter deltas.
func LossCounterTrace(clock *internal.MockClock, interval time.Duration, packetsPerSample uint64, loss []float64) []quality.QualityMetrics {
	out := make([]quality.QualityMetrics, len(loss))
	var lost, received uint64
	for i, l := range loss {
		received += packetsPerSample
		lost += uint64(l * float64(packetsPerSample))
		out[i] = quality.QualityMetrics{
			EstimatedBandwidth: 1_000_000,
			PacketsLost:        lost,
			PacketsReceived:    received,
			Timestamp:          clock.Advance(interval),
		}
	}
	return out
}

func lerp(a, b, f float64) float64 {
	return a + (b-a)*f
}

// NewClock returns a manually driven clock for use with the generators
// outside the quality packages.
func NewClock(start time.Time) *internal.MockClock {
	return internal.NewMockClock(start)
}

// RandomSegment returns count samples of one randomly chosen condition:
// stable good, bad or marginal, a degrading or recovering ramp, an
// oscillation, noise around marginal, or counter-only loss.
func RandomSegment(clock *internal.MockClock, rng *rand.Rand, count int, interval time.Duration) []quality.QualityMetrics {
	switch rng.Intn(8) {
	case 0:
		return StableTrace(clock, count, interval, GoodNetwork())
	case 1:
		return StableTrace(clock, count, interval, BadNetwork())
	case 2:
		return StableTrace(clock, count, interval, MarginalNetwork())
	case 3:
		return DegradingTrace(clock, count, interval)
	case 4:
		return RecoveringTrace(clock, count, interval)
	case 5:
		return OscillatingTrace(clock, count, interval, 1+rng.Intn(5), GoodNetwork(), BadNetwork())
	case 6:
		return NoisyTrace(clock, count, interval, MarginalNetwork(), 0.6, 0.1, rng.Int63())
	default:
		loss := make([]float64, count)
		for i := range loss {
			loss[i] = rng.Float64() * 0.1
		}
		return LossCounterTrace(clock, interval, 500, loss)
	}
}
