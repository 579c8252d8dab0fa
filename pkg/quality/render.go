package quality

import (
	"errors"
	"fmt"
)

// Default simulcast RIDs for the two levels.
const (
	DefaultHighRID = "f"
	DefaultLowRID  = "q"
)

// SimulcastSelection is the rendered form of a level decision: which
// simulcast layer the sender should activate.
type SimulcastSelection struct {
	Level QualityLevel
	RID   string
}

// SimulcastRenderer maps quality levels to simulcast RIDs.
type SimulcastRenderer struct {
	HighRID string
	LowRID  string
}

// NewSimulcastRenderer creates a renderer. Empty RIDs take the defaults.
func NewSimulcastRenderer(highRID, lowRID string) SimulcastRenderer {
	if highRID == "" {
		highRID = DefaultHighRID
	}
	if lowRID == "" {
		lowRID = DefaultLowRID
	}
	return SimulcastRenderer{HighRID: highRID, LowRID: lowRID}
}

// Render returns the layer selection for a level decision.
func (r SimulcastRenderer) Render(d QualityDecision) SimulcastSelection {
	return r.RenderLevel(d.Level)
}

// RenderLevel returns the layer selection for a level.
func (r SimulcastRenderer) RenderLevel(l QualityLevel) SimulcastSelection {
	if l == LevelLow {
		return SimulcastSelection{Level: LevelLow, RID: r.LowRID}
	}
	return SimulcastSelection{Level: LevelHigh, RID: r.HighRID}
}

// ClampBitrate limits bps to [min, max].
func ClampBitrate(bps, min, max int64) int64 {
	if bps < min {
		return min
	}
	if bps > max {
		return max
	}
	return bps
}

// BitrateRenderer clamps bitrate targets to configured bounds.
type BitrateRenderer struct {
	Min int64
	Max int64
}

// NewBitrateRenderer creates a renderer with the bounds of cfg.
func NewBitrateRenderer(cfg Config) BitrateRenderer {
	cfg = cfg.withDefaults()
	return BitrateRenderer{Min: cfg.MinBitrate, Max: cfg.MaxBitrate}
}

// Render returns max(Min, min(Max, bps)).
func (r BitrateRenderer) Render(bps int64) int64 {
	return ClampBitrate(bps, r.Min, r.Max)
}

// ApplyError reports that a decision was computed but could not be applied
// to the transport. The controller keeps the new target; the next successful
// apply converges the transport.
type ApplyError struct {
	Decision QualityDecision
	Err      error
}

func (e *ApplyError) Error() string {
	var target string
	switch e.Decision.Mode {
	case ModeBitrate:
		target = fmt.Sprintf("bitrate %d", e.Decision.Bitrate)
	default:
		target = fmt.Sprintf("level %s", e.Decision.Level)
	}
	return fmt.Sprintf("quality: apply %s: %v", target, e.Err)
}

func (e *ApplyError) Unwrap() error { return e.Err }

// IsApplyError reports whether err wraps an *ApplyError.
func IsApplyError(err error) bool {
	var ae *ApplyError
	return errors.As(err, &ae)
}
