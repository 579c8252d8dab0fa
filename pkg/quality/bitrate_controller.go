package quality

import (
	"fmt"
	"math"
	"time"

	"github.com/newproject8/returnfeed-backend-sub001/pkg/quality/internal"
)

// Fixed confidences of the scalar controller, one per tier.
const (
	severeConfidence   = 0.9
	moderateConfidence = 0.7
	increaseConfidence = 0.6
	holdConfidence     = 0.5
)

// LossRate derives the loss ratio between two samples from their cumulative
// counters: lost-delta / received-delta. It reports false when either sample
// lacks counters, a counter went backwards (a reset), or nothing was received.
func LossRate(prev, cur QualityMetrics) (float64, bool) {
	if !prev.HasCounters() || !cur.HasCounters() {
		return 0, false
	}
	if cur.PacketsLost < prev.PacketsLost || cur.PacketsReceived < prev.PacketsReceived {
		return 0, false
	}
	received := cur.PacketsReceived - prev.PacketsReceived
	if received == 0 {
		return 0, false
	}
	lost := cur.PacketsLost - prev.PacketsLost
	return clamp01(float64(lost) / float64(received)), true
}

// DecideBitrate runs one step of the scalar controller for a given loss ratio.
//
//	loss > SevereLoss             -> bitrate * SevereFactor
//	ModerateLoss < loss <= Severe -> bitrate * ModerateFactor
//	loss < RecoveryLoss           -> bitrate * IncreaseFactor (only below max)
//	otherwise                     -> hold
//
// Every result is clamped to [MinBitrate, MaxBitrate]. The gates of
// cfg.Bitrate are checked first.
func DecideBitrate(loss float64, state ControllerState, cfg Config, now time.Time) (QualityDecision, ControllerState) {
	d := QualityDecision{
		Mode:            ModeBitrate,
		Bitrate:         state.Bitrate,
		PreviousBitrate: state.Bitrate,
		Score:           loss,
		At:              now,
	}

	gates := GateConfig{
		MinInterval: cfg.Bitrate.MinInterval,
		MaxSwitches: cfg.Bitrate.MaxSwitchesPerWindow,
		Window:      cfg.SwitchWindow,
	}
	if g := CheckGates(state, gates, now); g != GateNone {
		d.Gate = g
		d.Confidence = gatedConfidence
		d.Reason = gateReason(g)
		return d, state
	}

	bc := cfg.Bitrate
	var target int64
	switch {
	case !isFinite(loss):
		d.Score = 0
		d.Confidence = holdConfidence
		d.Reason = "no loss data"
		return d, state
	case loss > bc.SevereLoss:
		target = scale(state.Bitrate, bc.SevereFactor)
		d.Confidence = severeConfidence
		d.Reason = fmt.Sprintf("severe packet loss %.1f%%", loss*100)
	case loss > bc.ModerateLoss:
		target = scale(state.Bitrate, bc.ModerateFactor)
		d.Confidence = moderateConfidence
		d.Reason = fmt.Sprintf("moderate packet loss %.1f%%", loss*100)
	case loss < bc.RecoveryLoss && state.Bitrate < cfg.MaxBitrate:
		target = scale(state.Bitrate, bc.IncreaseFactor)
		d.Confidence = increaseConfidence
		d.Reason = fmt.Sprintf("low packet loss %.1f%%, increasing", loss*100)
	default:
		d.Confidence = holdConfidence
		d.Reason = "maintaining current bitrate"
		return d, state
	}

	target = cfg.clampBitrate(target)
	if target == state.Bitrate {
		d.Reason += " (at bound)"
		return d, state
	}
	d.Bitrate = target
	d.Changed = true
	state.Bitrate = target
	return d, CommitSwitch(state, now)
}

func scale(bps int64, factor float64) int64 {
	return int64(float64(bps) * factor)
}

// BitrateController is the stateful scalar bitrate controller.
type BitrateController struct {
	cfg      Config
	clock    Clock
	smoother *Smoother
	state    ControllerState
}

// NewBitrateController creates a scalar controller. Zero config fields take
// their defaults; an invalid configuration is returned as an error. A nil
// clock uses the system monotonic clock.
func NewBitrateController(cfg Config, clock Clock) (*BitrateController, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if clock == nil {
		clock = internal.MonotonicClock{}
	}
	now := clock.Now()
	return &BitrateController{
		cfg:      cfg,
		clock:    clock,
		smoother: NewSmoother(cfg),
		state: ControllerState{
			Level:       cfg.InitialLevel,
			Bitrate:     cfg.clampBitrate(cfg.InitialBitrate),
			LastSwitch:  now,
			WindowStart: now,
		},
	}, nil
}

// Mode returns ModeBitrate.
func (c *BitrateController) Mode() Mode { return ModeBitrate }

// Config returns the effective configuration.
func (c *BitrateController) Config() Config { return c.cfg }

// AddSample feeds a raw sample to the smoothing stage.
func (c *BitrateController) AddSample(m QualityMetrics) SmoothedMetrics {
	return c.smoother.AddSample(m)
}

// Smoothed returns the current smoothed metrics.
func (c *BitrateController) Smoothed() SmoothedMetrics { return c.smoother.Smoothed() }

// Decide runs one decision step. The loss ratio comes from the counter
// deltas of the two newest samples, falling back to the smoothed loss
// fraction when counters are unavailable.
func (c *BitrateController) Decide(now time.Time) QualityDecision {
	d, st := DecideBitrate(c.currentLoss(), c.state, c.cfg, now)
	c.state = st
	return d
}

func (c *BitrateController) currentLoss() float64 {
	cur, ok := c.smoother.Latest()
	if !ok {
		return 0
	}
	if prev, ok := c.smoother.Previous(); ok {
		if loss, ok := LossRate(prev, cur); ok {
			return loss
		}
	}
	if cur.HasCounters() {
		// Counters present but no usable delta yet (first sample or reset).
		return math.NaN()
	}
	return c.smoother.Smoothed().PacketLoss
}

// Update adds a sample and decides.
func (c *BitrateController) Update(m QualityMetrics, now time.Time) QualityDecision {
	c.AddSample(m)
	return c.Decide(now)
}

// AdvanceWindow resets the switch count when now crosses a window boundary.
func (c *BitrateController) AdvanceWindow(now time.Time) bool {
	st, reset := AdvanceWindow(c.state, c.cfg.SwitchWindow, now)
	c.state = st
	return reset
}

// SetBitrate forces the bitrate target, clamped to bounds. The last-switch
// time is reset to now and the window count is untouched.
func (c *BitrateController) SetBitrate(bps int64, now time.Time) QualityDecision {
	target := c.cfg.clampBitrate(bps)
	d := QualityDecision{
		Mode:            ModeBitrate,
		Bitrate:         target,
		PreviousBitrate: c.state.Bitrate,
		Changed:         target != c.state.Bitrate,
		Confidence:      1,
		Reason:          "manual override",
		At:              now,
	}
	c.state.Bitrate = target
	c.state.LastSwitch = now
	return d
}

// Bitrate returns the current target in bits per second.
func (c *BitrateController) Bitrate() int64 { return c.state.Bitrate }

// State returns a copy of the controller state.
func (c *BitrateController) State() ControllerState { return c.state }

// HistoryLen returns the number of samples in the smoothing window.
func (c *BitrateController) HistoryLen() int { return c.smoother.Len() }

// Now returns the controller clock's current time.
func (c *BitrateController) Now() time.Time { return c.clock.Now() }
