package quality

import (
	"math"

	"github.com/gammazero/deque"
)

// Smoother keeps a bounded history of metric samples and produces their
// exponential moving average.
//
// The EMA is recomputed over the whole window on every sample, oldest to
// newest, seeded with the oldest sample:
//
//	ema = alpha*value + (1-alpha)*ema
//
// Recomputing (rather than folding incrementally) means an evicted sample
// stops influencing the result the moment it leaves the window.
type Smoother struct {
	capacity   int
	alpha      float64
	maxBitrate float64
	history    *deque.Deque[QualityMetrics]
	smoothed   SmoothedMetrics
}

// NewSmoother creates a Smoother using HistoryCapacity, SmoothingFactor and
// MaxBitrate from cfg. Zero fields take their defaults.
func NewSmoother(cfg Config) *Smoother {
	cfg = cfg.withDefaults()
	return &Smoother{
		capacity:   cfg.HistoryCapacity,
		alpha:      cfg.SmoothingFactor,
		maxBitrate: float64(cfg.MaxBitrate),
		history:    deque.New[QualityMetrics](cfg.HistoryCapacity),
	}
}

// AddSample appends m to the history, evicting the oldest sample when full,
// and returns the recomputed smoothed metrics. It never fails: invalid
// values are sanitised before they enter the history.
func (s *Smoother) AddSample(m QualityMetrics) SmoothedMetrics {
	s.history.PushBack(s.sanitize(m))
	for s.history.Len() > s.capacity {
		s.history.PopFront()
	}
	s.smoothed = s.compute()
	return s.smoothed
}

// Smoothed returns the most recently computed smoothed metrics.
func (s *Smoother) Smoothed() SmoothedMetrics {
	return s.smoothed
}

// Len returns the number of samples in the history.
func (s *Smoother) Len() int {
	return s.history.Len()
}

// Capacity returns the maximum number of samples kept.
func (s *Smoother) Capacity() int {
	return s.capacity
}

// Samples returns a copy of the history, oldest first.
func (s *Smoother) Samples() []QualityMetrics {
	out := make([]QualityMetrics, s.history.Len())
	for i := range out {
		out[i] = s.history.At(i)
	}
	return out
}

// Latest returns the newest sample, if any.
func (s *Smoother) Latest() (QualityMetrics, bool) {
	if s.history.Len() == 0 {
		return QualityMetrics{}, false
	}
	return s.history.Back(), true
}

// Previous returns the sample before the newest one, if any.
func (s *Smoother) Previous() (QualityMetrics, bool) {
	n := s.history.Len()
	if n < 2 {
		return QualityMetrics{}, false
	}
	return s.history.At(n - 2), true
}

// Reset clears the history.
func (s *Smoother) Reset() {
	s.history.Clear()
	s.smoothed = SmoothedMetrics{}
}

func (s *Smoother) compute() SmoothedMetrics {
	n := s.history.Len()
	if n == 0 {
		return SmoothedMetrics{}
	}

	first := s.history.Front()
	ema := SmoothedMetrics{
		PacketLoss:         first.PacketLoss,
		RoundTripTime:      first.RoundTripTime,
		Jitter:             first.Jitter,
		EstimatedBandwidth: first.EstimatedBandwidth,
		FramesDropped:      first.FramesDropped,
	}

	a := s.alpha
	for i := 1; i < n; i++ {
		m := s.history.At(i)
		ema.PacketLoss = a*m.PacketLoss + (1-a)*ema.PacketLoss
		ema.RoundTripTime = a*m.RoundTripTime + (1-a)*ema.RoundTripTime
		ema.Jitter = a*m.Jitter + (1-a)*ema.Jitter
		ema.EstimatedBandwidth = a*m.EstimatedBandwidth + (1-a)*ema.EstimatedBandwidth
		ema.FramesDropped = a*m.FramesDropped + (1-a)*ema.FramesDropped
	}
	return ema
}

// sanitize replaces values that would poison the average.
// Non-finite or negative values become 0, loss is clamped to [0, 1], and a
// missing bandwidth estimate is treated as "unconstrained" (MaxBitrate).
func (s *Smoother) sanitize(m QualityMetrics) QualityMetrics {
	m.PacketLoss = math.Min(clampNonNegative(m.PacketLoss), 1)
	m.RoundTripTime = clampNonNegative(m.RoundTripTime)
	m.Jitter = clampNonNegative(m.Jitter)
	m.FramesDropped = clampNonNegative(m.FramesDropped)
	if !isFinite(m.EstimatedBandwidth) || m.EstimatedBandwidth <= 0 {
		m.EstimatedBandwidth = s.maxBitrate
	}
	return m
}

func clampNonNegative(v float64) float64 {
	if !isFinite(v) || v < 0 {
		return 0
	}
	return v
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
