// Package quality implements a per-session adaptive quality control engine.
//
// Network metric samples are smoothed with an exponential moving average,
// fed to a hysteretic, rate-limited controller, and rendered into sender
// parameters (a simulcast layer selection or a clamped bitrate target).
//
// The package performs no I/O and never blocks. A controller is owned by a
// single session and must not be shared between goroutines without external
// serialisation.
package quality

import (
	"fmt"
	"strings"
	"time"
)

// QualityMetrics is one raw observation of network conditions for a session.
type QualityMetrics struct {
	// PacketLoss is the fraction of packets lost, in [0, 1].
	PacketLoss float64

	// RoundTripTime is the round-trip time in milliseconds.
	RoundTripTime float64

	// Jitter is the interarrival jitter in milliseconds.
	Jitter float64

	// EstimatedBandwidth is the available bandwidth estimate in bits per second.
	// Zero means the sampler had no estimate.
	EstimatedBandwidth float64

	// FramesDropped is the number of frames dropped since the previous sample.
	FramesDropped float64

	// PacketsLost and PacketsReceived are optional cumulative counters.
	// The scalar controller derives its loss ratio from their deltas.
	PacketsLost     uint64
	PacketsReceived uint64

	// Timestamp is when the sample was taken. Zero means "use the clock".
	Timestamp time.Time
}

// HasCounters reports whether the cumulative packet counters are populated.
func (m QualityMetrics) HasCounters() bool {
	return m.PacketsLost > 0 || m.PacketsReceived > 0
}

// SmoothedMetrics holds the EMA of each metric over the history window.
type SmoothedMetrics struct {
	PacketLoss         float64
	RoundTripTime      float64
	Jitter             float64
	EstimatedBandwidth float64
	FramesDropped      float64
}

// QualityLevel is a discrete quality tier. Levels are ordered: Low < High.
// The zero value is unset.
type QualityLevel int

const (
	// LevelLow selects the reduced-quality layer.
	LevelLow QualityLevel = iota + 1
	// LevelHigh selects the full-quality layer.
	LevelHigh
)

// String returns a string representation of the QualityLevel.
func (l QualityLevel) String() string {
	switch l {
	case LevelLow:
		return "low"
	case LevelHigh:
		return "high"
	default:
		return "unknown"
	}
}

// ParseLevel parses "low" or "high" (case-insensitive).
func ParseLevel(s string) (QualityLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return LevelLow, nil
	case "high":
		return LevelHigh, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownLevel, s)
	}
}

// Mode selects which controller variant a session runs.
type Mode int

const (
	// ModeLevel is the two-level simulcast controller.
	ModeLevel Mode = iota
	// ModeBitrate is the scalar bitrate controller.
	ModeBitrate
)

// String returns a string representation of the Mode.
func (m Mode) String() string {
	switch m {
	case ModeLevel:
		return "level"
	case ModeBitrate:
		return "bitrate"
	default:
		return "unknown"
	}
}

// ParseMode parses "level" or "bitrate" (case-insensitive). "simulcast" and
// "scalar" are accepted as aliases.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "level", "simulcast":
		return ModeLevel, nil
	case "bitrate", "scalar":
		return ModeBitrate, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
}

// Gate identifies the rate-limiting rule that suppressed a decision.
type Gate int

const (
	// GateNone means no gate fired.
	GateNone Gate = iota
	// GateMinInterval fires when the previous switch is too recent.
	GateMinInterval
	// GateMaxSwitches fires when the window's switch budget is spent.
	GateMaxSwitches
)

// String returns a string representation of the Gate.
func (g Gate) String() string {
	switch g {
	case GateNone:
		return "none"
	case GateMinInterval:
		return "min_interval"
	case GateMaxSwitches:
		return "max_switches"
	default:
		return "unknown"
	}
}

// ThresholdSet holds the per-metric thresholds used for one transition direction.
// PacketLoss, RoundTripTime and FramesDropped are "higher is worse";
// EstimatedBandwidth is "lower is worse".
type ThresholdSet struct {
	PacketLoss         float64
	RoundTripTime      float64
	EstimatedBandwidth float64
	FramesDropped      float64
}

// Thresholds holds the two direction-dependent threshold sets.
// HighToLow applies while the current level is High, LowToHigh while it is Low.
// LowToHigh must be at least as strict as HighToLow so that the controller
// shows hysteresis.
type Thresholds struct {
	HighToLow ThresholdSet
	LowToHigh ThresholdSet
}

// ForLevel returns the threshold set that applies while at level l.
func (t Thresholds) ForLevel(l QualityLevel) ThresholdSet {
	if l == LevelHigh {
		return t.HighToLow
	}
	return t.LowToHigh
}

// Weights are the per-metric contributions to the aggregate score. They must
// sum to 1.
type Weights struct {
	PacketLoss    float64
	RoundTripTime float64
	Bandwidth     float64
	FramesDropped float64
}

// Sum returns the sum of all weights.
func (w Weights) Sum() float64 {
	return w.PacketLoss + w.RoundTripTime + w.Bandwidth + w.FramesDropped
}

// ControllerState is the mutable state of one controller.
type ControllerState struct {
	// Level is the current level (level mode).
	Level QualityLevel

	// Bitrate is the current target in bits per second (bitrate mode).
	Bitrate int64

	// LastSwitch is when the target last changed, including manual overrides.
	LastSwitch time.Time

	// SwitchCount is the number of automatic switches in the current window.
	SwitchCount int

	// WindowStart is the start of the current switch-counting window.
	WindowStart time.Time
}

// QualityDecision is the output of one decision step.
type QualityDecision struct {
	Mode Mode

	// Level is the target level after this decision (level mode).
	Level QualityLevel
	// PreviousLevel is the level before this decision (level mode).
	PreviousLevel QualityLevel

	// Bitrate is the target bitrate after this decision (bitrate mode).
	Bitrate int64
	// PreviousBitrate is the bitrate before this decision (bitrate mode).
	PreviousBitrate int64

	// Changed is true when the target differs from the previous target.
	Changed bool

	// Confidence is in [0, 1].
	Confidence float64

	// Reason is a human-readable explanation.
	Reason string

	// Score is the aggregate degradation score (level mode) or the loss
	// ratio used (bitrate mode).
	Score float64

	// Gate is the rate-limiting rule that suppressed this decision, if any.
	Gate Gate

	// At is the time the decision was taken.
	At time.Time
}

// Direction returns "down", "up" or "hold".
func (d QualityDecision) Direction() string {
	if !d.Changed {
		return "hold"
	}
	switch d.Mode {
	case ModeLevel:
		if d.Level < d.PreviousLevel {
			return "down"
		}
	case ModeBitrate:
		if d.Bitrate < d.PreviousBitrate {
			return "down"
		}
	}
	return "up"
}
