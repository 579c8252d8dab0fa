package main

import (
	"fmt"
	"math"
	"time"

	"github.com/newproject8/returnfeed-backend-sub001/pkg/quality"
)

// checker verifies the controller invariants decision by decision.
type checker struct {
	mode        quality.Mode
	cfg         quality.Config
	minInterval time.Duration
	maxSwitches int
	lastSwitch  time.Time
}

func newChecker(mode quality.Mode, cfg quality.Config, start time.Time) *checker {
	c := &checker{
		mode:        mode,
		cfg:         cfg,
		minInterval: cfg.MinSwitchInterval,
		maxSwitches: cfg.MaxSwitchesPerWindow,
		lastSwitch:  start,
	}
	if mode == quality.ModeBitrate {
		c.minInterval = cfg.Bitrate.MinInterval
		c.maxSwitches = cfg.Bitrate.MaxSwitchesPerWindow
	}
	return c
}

// check returns a description of every invariant d and st break.
func (c *checker) check(d quality.QualityDecision, st quality.ControllerState, historyLen int) []string {
	var out []string
	if historyLen > c.cfg.HistoryCapacity {
		out = append(out, fmt.Sprintf("history %d exceeds capacity %d", historyLen, c.cfg.HistoryCapacity))
	}
	if math.IsNaN(d.Confidence) || d.Confidence < 0 || d.Confidence > 1 {
		out = append(out, fmt.Sprintf("confidence %v outside [0, 1]", d.Confidence))
	}
	if c.maxSwitches > 0 && st.SwitchCount > c.maxSwitches {
		out = append(out, fmt.Sprintf("%d switches in window, max %d", st.SwitchCount, c.maxSwitches))
	}
	if d.Changed && d.Gate != quality.GateNone {
		out = append(out, fmt.Sprintf("changed despite %s gate", d.Gate))
	}
	if d.Changed {
		if gap := d.At.Sub(c.lastSwitch); gap < c.minInterval {
			out = append(out, fmt.Sprintf("switch %s after the previous one, min %s", gap, c.minInterval))
		}
		c.lastSwitch = d.At
	}

	switch c.mode {
	case quality.ModeBitrate:
		if st.Bitrate < c.cfg.MinBitrate || st.Bitrate > c.cfg.MaxBitrate {
			out = append(out, fmt.Sprintf("bitrate %d outside [%d, %d]", st.Bitrate, c.cfg.MinBitrate, c.cfg.MaxBitrate))
		}
	default:
		if st.Level != quality.LevelLow && st.Level != quality.LevelHigh {
			out = append(out, fmt.Sprintf("unknown level %d", st.Level))
		}
	}
	return out
}
