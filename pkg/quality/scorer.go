package quality

// Scores holds the per-metric degradation scores and their weighted total.
// Every score is in [0, 1]; higher means worse.
type Scores struct {
	PacketLoss    float64
	RoundTripTime float64
	Bandwidth     float64
	FramesDropped float64
	Total         float64
}

// Score evaluates smoothed metrics against a threshold set.
//
// Higher-is-worse metrics score clamp(value/threshold, 0, 1); bandwidth,
// where lower is worse, scores clamp(1 - value/threshold, 0, 1).
// A non-finite metric contributes 0.
func Score(m SmoothedMetrics, t ThresholdSet, w Weights) Scores {
	s := Scores{
		PacketLoss:    ratioScore(m.PacketLoss, t.PacketLoss),
		RoundTripTime: ratioScore(m.RoundTripTime, t.RoundTripTime),
		Bandwidth:     inverseRatioScore(m.EstimatedBandwidth, t.EstimatedBandwidth),
		FramesDropped: ratioScore(m.FramesDropped, t.FramesDropped),
	}
	s.Total = clamp01(w.PacketLoss*s.PacketLoss +
		w.RoundTripTime*s.RoundTripTime +
		w.Bandwidth*s.Bandwidth +
		w.FramesDropped*s.FramesDropped)
	return s
}

func ratioScore(v, threshold float64) float64 {
	if !isFinite(v) || threshold <= 0 {
		return 0
	}
	return clamp01(v / threshold)
}

func inverseRatioScore(v, threshold float64) float64 {
	if !isFinite(v) || threshold <= 0 {
		return 0
	}
	return clamp01(1 - v/threshold)
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
