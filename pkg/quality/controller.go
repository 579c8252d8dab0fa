package quality

import (
	"fmt"
	"time"
)

// Clock is the time source a controller reads when it needs "now" outside
// of a sample timestamp.
type Clock interface {
	Now() time.Time
}

// Controller is the decision core shared by both controller variants.
// A Controller is not safe for concurrent use.
type Controller interface {
	// Mode reports which variant this is.
	Mode() Mode

	// AddSample feeds a raw sample to the smoothing stage.
	AddSample(m QualityMetrics) SmoothedMetrics

	// Decide runs one decision step at now on the current smoothed metrics.
	Decide(now time.Time) QualityDecision

	// Update is AddSample followed by Decide.
	Update(m QualityMetrics, now time.Time) QualityDecision

	// AdvanceWindow resets the switch count when now crosses a window
	// boundary and reports whether it did.
	AdvanceWindow(now time.Time) bool

	// State returns a copy of the controller state.
	State() ControllerState

	// Smoothed returns the current smoothed metrics.
	Smoothed() SmoothedMetrics

	// HistoryLen returns the number of samples in the smoothing window.
	HistoryLen() int

	// Config returns the effective configuration.
	Config() Config

	// Now returns the controller clock's current time.
	Now() time.Time
}

var (
	_ Controller = (*LevelController)(nil)
	_ Controller = (*BitrateController)(nil)
)

// NewController creates the controller variant selected by mode.
func NewController(mode Mode, cfg Config, clock Clock) (Controller, error) {
	switch mode {
	case ModeLevel:
		return NewLevelController(cfg, clock)
	case ModeBitrate:
		return NewBitrateController(cfg, clock)
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownMode, mode)
	}
}
