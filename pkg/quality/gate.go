package quality

import "time"

// GateConfig holds the rate-limiting parameters shared by both controllers.
type GateConfig struct {
	// MinInterval is the minimum time between automatic switches.
	MinInterval time.Duration

	// MaxSwitches is the switch budget per window. Zero means unlimited.
	MaxSwitches int

	// Window is the length of the switch-counting window.
	Window time.Duration
}

// CheckGates reports which gate, if any, forbids a switch at now.
// The minimum-interval gate is checked first.
func CheckGates(state ControllerState, g GateConfig, now time.Time) Gate {
	if !state.LastSwitch.IsZero() && now.Sub(state.LastSwitch) < g.MinInterval {
		return GateMinInterval
	}
	if g.MaxSwitches > 0 && state.SwitchCount >= g.MaxSwitches {
		return GateMaxSwitches
	}
	return GateNone
}

// CommitSwitch records an automatic switch at now.
func CommitSwitch(state ControllerState, now time.Time) ControllerState {
	state.LastSwitch = now
	state.SwitchCount++
	return state
}

// AdvanceWindow rolls the switch-counting window forward if now has reached
// or passed the end of the current window. Window boundaries stay aligned to
// multiples of window from the first WindowStart, and the switch count is
// reset to zero when a boundary is crossed. It reports whether a reset
// happened.
func AdvanceWindow(state ControllerState, window time.Duration, now time.Time) (ControllerState, bool) {
	if window <= 0 {
		return state, false
	}
	if state.WindowStart.IsZero() {
		state.WindowStart = now
		return state, false
	}
	elapsed := now.Sub(state.WindowStart)
	if elapsed < window {
		return state, false
	}
	state.WindowStart = state.WindowStart.Add(elapsed / window * window)
	state.SwitchCount = 0
	return state, true
}

func gateReason(g Gate) string {
	switch g {
	case GateMinInterval:
		return "rate limited: minimum switch interval"
	case GateMaxSwitches:
		return "rate limited: max switches per window"
	default:
		return ""
	}
}
