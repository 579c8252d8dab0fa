package quality

import (
	"fmt"
	"strings"
	"time"

	"github.com/newproject8/returnfeed-backend-sub001/pkg/quality/internal"
)

const (
	gatedConfidence = 0.5
	reasonMaintain  = "maintaining current level"
)

// DecideLevel runs one step of the two-level controller.
//
// Steps, in order:
//  1. Gates: minimum switch interval, then max switches per window. A gated
//     step returns the current level with confidence 0.5.
//  2. Threshold selection: HighToLow while High, LowToHigh while Low.
//  3. Per-metric scores and their weighted total.
//  4. Transition: High drops to Low above DowngradeScore, Low rises to High
//     below UpgradeScore, anything in between keeps the current level.
//
// The returned state reflects the committed switch, if any. DecideLevel does
// not advance the switch window; callers do that explicitly.
func DecideLevel(m SmoothedMetrics, state ControllerState, cfg Config, now time.Time) (QualityDecision, ControllerState) {
	d := QualityDecision{
		Mode:          ModeLevel,
		Level:         state.Level,
		PreviousLevel: state.Level,
		At:            now,
	}

	gates := GateConfig{
		MinInterval: cfg.MinSwitchInterval,
		MaxSwitches: cfg.MaxSwitchesPerWindow,
		Window:      cfg.SwitchWindow,
	}
	if g := CheckGates(state, gates, now); g != GateNone {
		d.Gate = g
		d.Confidence = gatedConfidence
		d.Reason = gateReason(g)
		return d, state
	}

	thresholds := cfg.Thresholds.ForLevel(state.Level)
	scores := Score(m, thresholds, cfg.Weights)
	d.Score = scores.Total

	switch {
	case state.Level == LevelHigh && scores.Total > cfg.DowngradeScore:
		d.Level = LevelLow
		d.Changed = true
		d.Confidence = scores.Total
		d.Reason = downgradeReason(m, thresholds, scores.Total)
	case state.Level == LevelLow && scores.Total < cfg.UpgradeScore:
		d.Level = LevelHigh
		d.Changed = true
		d.Confidence = 1 - scores.Total
		d.Reason = upgradeReason(m)
	default:
		d.Confidence = scores.Total
		d.Reason = reasonMaintain
		return d, state
	}

	state.Level = d.Level
	return d, CommitSwitch(state, now)
}

// downgradeReason names every metric past its threshold, in a fixed order.
func downgradeReason(m SmoothedMetrics, t ThresholdSet, total float64) string {
	var parts []string
	if m.PacketLoss > t.PacketLoss {
		parts = append(parts, fmt.Sprintf("packet loss %.1f%%", m.PacketLoss*100))
	}
	if m.RoundTripTime > t.RoundTripTime {
		parts = append(parts, fmt.Sprintf("high RTT %.0fms", m.RoundTripTime))
	}
	if m.EstimatedBandwidth < t.EstimatedBandwidth {
		parts = append(parts, fmt.Sprintf("low bandwidth %.0fkbps", m.EstimatedBandwidth/1000))
	}
	if m.FramesDropped > t.FramesDropped {
		parts = append(parts, fmt.Sprintf("frames dropped %.0f", m.FramesDropped))
	}
	if len(parts) == 0 {
		return fmt.Sprintf("degraded network (score %.2f)", total)
	}
	return strings.Join(parts, ", ")
}

func upgradeReason(m SmoothedMetrics) string {
	return fmt.Sprintf("network recovered: packet loss %.1f%%, RTT %.0fms", m.PacketLoss*100, m.RoundTripTime)
}

// LevelController is the stateful two-level (simulcast) controller.
type LevelController struct {
	cfg      Config
	clock    Clock
	smoother *Smoother
	state    ControllerState
}

// NewLevelController creates a two-level controller. Zero config fields take
// their defaults; an invalid configuration is returned as an error. A nil
// clock uses the system monotonic clock.
//
// The last-switch time starts at construction so that the first automatic
// switch also honours the minimum interval.
func NewLevelController(cfg Config, clock Clock) (*LevelController, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if clock == nil {
		clock = internal.MonotonicClock{}
	}
	now := clock.Now()
	return &LevelController{
		cfg:      cfg,
		clock:    clock,
		smoother: NewSmoother(cfg),
		state: ControllerState{
			Level:       cfg.InitialLevel,
			LastSwitch:  now,
			WindowStart: now,
		},
	}, nil
}

// Mode returns ModeLevel.
func (c *LevelController) Mode() Mode { return ModeLevel }

// Config returns the effective configuration.
func (c *LevelController) Config() Config { return c.cfg }

// AddSample feeds a raw sample to the smoothing stage.
func (c *LevelController) AddSample(m QualityMetrics) SmoothedMetrics {
	return c.smoother.AddSample(m)
}

// Smoothed returns the current smoothed metrics.
func (c *LevelController) Smoothed() SmoothedMetrics { return c.smoother.Smoothed() }

// Decide runs one decision step on the current smoothed metrics.
func (c *LevelController) Decide(now time.Time) QualityDecision {
	d, st := DecideLevel(c.smoother.Smoothed(), c.state, c.cfg, now)
	c.state = st
	return d
}

// Update adds a sample and decides.
func (c *LevelController) Update(m QualityMetrics, now time.Time) QualityDecision {
	c.AddSample(m)
	return c.Decide(now)
}

// AdvanceWindow resets the switch count when now crosses a window boundary.
func (c *LevelController) AdvanceWindow(now time.Time) bool {
	st, reset := AdvanceWindow(c.state, c.cfg.SwitchWindow, now)
	c.state = st
	return reset
}

// SetLevel forces the level. The forced level becomes current immediately,
// the last-switch time is reset to now, and the window count is untouched.
// A level other than LevelLow or LevelHigh fails with ErrUnknownLevel and
// leaves the controller unchanged.
func (c *LevelController) SetLevel(level QualityLevel, now time.Time) (QualityDecision, error) {
	if level != LevelLow && level != LevelHigh {
		return QualityDecision{}, fmt.Errorf("%w: %d", ErrUnknownLevel, level)
	}
	d := QualityDecision{
		Mode:          ModeLevel,
		Level:         level,
		PreviousLevel: c.state.Level,
		Changed:       level != c.state.Level,
		Confidence:    1,
		Reason:        "manual override",
		At:            now,
	}
	c.state.Level = level
	c.state.LastSwitch = now
	return d, nil
}

// Level returns the current level.
func (c *LevelController) Level() QualityLevel { return c.state.Level }

// State returns a copy of the controller state.
func (c *LevelController) State() ControllerState { return c.state }

// HistoryLen returns the number of samples in the smoothing window.
func (c *LevelController) HistoryLen() int { return c.smoother.Len() }

// Now returns the controller clock's current time.
func (c *LevelController) Now() time.Time { return c.clock.Now() }
