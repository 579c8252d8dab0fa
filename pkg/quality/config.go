package quality

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Configuration errors. Constructors return them wrapped with detail;
// use errors.Is to match.
var (
	ErrInvalidWeights       = errors.New("quality: weights must be non-negative and sum to 1")
	ErrInvalidBitrateBounds = errors.New("quality: min bitrate must be positive and not exceed max bitrate")
	ErrInvalidSmoothing     = errors.New("quality: smoothing factor must be in (0, 1]")
	ErrInvalidHistory       = errors.New("quality: history capacity must be positive")
	ErrInvalidThresholds    = errors.New("quality: thresholds must be positive")
	ErrInvalidWindow        = errors.New("quality: switch window must be positive")
	ErrInvalidScoreBand     = errors.New("quality: upgrade score must be below downgrade score")
	ErrInvalidBitrateTiers  = errors.New("quality: bitrate loss tiers and factors must be finite and positive")
	ErrUnknownLevel         = errors.New("quality: unknown level")
	ErrUnknownMode          = errors.New("quality: unknown mode")
)

const weightTolerance = 1e-6

// BitrateConfig configures the scalar bitrate controller.
type BitrateConfig struct {
	// SevereLoss is the loss ratio above which the severe decrease applies.
	// Default: 0.05
	SevereLoss float64

	// ModerateLoss is the loss ratio above which the moderate decrease applies.
	// Default: 0.02
	ModerateLoss float64

	// RecoveryLoss is the loss ratio below which the bitrate may grow.
	// Default: 0.01
	RecoveryLoss float64

	// SevereFactor is applied on severe loss. Default: 0.8
	SevereFactor float64

	// ModerateFactor is applied on moderate loss. Default: 0.9
	ModerateFactor float64

	// IncreaseFactor is applied on recovery. Default: 1.1
	IncreaseFactor float64

	// MinInterval is the minimum time between automatic bitrate changes.
	// It matches the sampling period so that every sample may act.
	// Default: 2s
	MinInterval time.Duration

	// MaxSwitchesPerWindow limits automatic changes per switch window.
	// Zero means unlimited.
	MaxSwitchesPerWindow int
}

// Config configures a controller. The zero value of any field is replaced by
// its default in NewLevelController / NewBitrateController.
type Config struct {
	// HistoryCapacity is the number of samples kept for smoothing. Default: 10
	HistoryCapacity int

	// SmoothingFactor is the EMA weight of the newest sample. Default: 0.7
	SmoothingFactor float64

	// Thresholds are the direction-dependent per-metric thresholds.
	Thresholds Thresholds

	// Weights are the per-metric score weights.
	Weights Weights

	// DowngradeScore is the aggregate score above which High drops to Low.
	// Default: 0.7
	DowngradeScore float64

	// UpgradeScore is the aggregate score below which Low rises to High.
	// Default: 0.3
	UpgradeScore float64

	// MinSwitchInterval is the minimum time between automatic level switches.
	// Default: 5s
	MinSwitchInterval time.Duration

	// MaxSwitchesPerWindow limits automatic level switches per window.
	// Default: 6
	MaxSwitchesPerWindow int

	// SwitchWindow is the length of the switch-counting window. Default: 60s
	SwitchWindow time.Duration

	// MinBitrate and MaxBitrate bound every bitrate target, in bits per second.
	// Defaults: 100,000 and 1,000,000
	MinBitrate int64
	MaxBitrate int64

	// InitialBitrate is the starting bitrate target. Default: MaxBitrate
	InitialBitrate int64

	// InitialLevel is the starting level. Default: LevelHigh
	InitialLevel QualityLevel

	// Bitrate configures the scalar controller.
	Bitrate BitrateConfig
}

// DefaultThresholds returns the default threshold sets.
func DefaultThresholds() Thresholds {
	return Thresholds{
		HighToLow: ThresholdSet{
			PacketLoss:         0.05,
			RoundTripTime:      150,
			EstimatedBandwidth: 500_000,
			FramesDropped:      10,
		},
		LowToHigh: ThresholdSet{
			PacketLoss:         0.02,
			RoundTripTime:      100,
			EstimatedBandwidth: 800_000,
			FramesDropped:      5,
		},
	}
}

// DefaultWeights returns the default score weights.
func DefaultWeights() Weights {
	return Weights{
		PacketLoss:    0.35,
		RoundTripTime: 0.25,
		Bandwidth:     0.30,
		FramesDropped: 0.10,
	}
}

// DefaultBitrateConfig returns the default scalar controller configuration.
func DefaultBitrateConfig() BitrateConfig {
	return BitrateConfig{
		SevereLoss:     0.05,
		ModerateLoss:   0.02,
		RecoveryLoss:   0.01,
		SevereFactor:   0.8,
		ModerateFactor: 0.9,
		IncreaseFactor: 1.1,
		MinInterval:    2 * time.Second,
	}
}

// DefaultConfig returns the default controller configuration.
func DefaultConfig() Config {
	return Config{
		HistoryCapacity:      10,
		SmoothingFactor:      0.7,
		Thresholds:           DefaultThresholds(),
		Weights:              DefaultWeights(),
		DowngradeScore:       0.7,
		UpgradeScore:         0.3,
		MinSwitchInterval:    5 * time.Second,
		MaxSwitchesPerWindow: 6,
		SwitchWindow:         60 * time.Second,
		MinBitrate:           100_000,
		MaxBitrate:           1_000_000,
		InitialBitrate:       1_000_000,
		InitialLevel:         LevelHigh,
		Bitrate:              DefaultBitrateConfig(),
	}
}

// withDefaults fills zero-valued fields from DefaultConfig.
// Weights are only defaulted when all of them are zero; a partially
// specified weight set is left for Validate to judge.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.HistoryCapacity == 0 {
		c.HistoryCapacity = def.HistoryCapacity
	}
	if c.SmoothingFactor == 0 {
		c.SmoothingFactor = def.SmoothingFactor
	}
	if c.Thresholds.HighToLow == (ThresholdSet{}) {
		c.Thresholds.HighToLow = def.Thresholds.HighToLow
	}
	if c.Thresholds.LowToHigh == (ThresholdSet{}) {
		c.Thresholds.LowToHigh = def.Thresholds.LowToHigh
	}
	if c.Weights == (Weights{}) {
		c.Weights = def.Weights
	}
	if c.DowngradeScore == 0 {
		c.DowngradeScore = def.DowngradeScore
	}
	if c.UpgradeScore == 0 {
		c.UpgradeScore = def.UpgradeScore
	}
	if c.MinSwitchInterval == 0 {
		c.MinSwitchInterval = def.MinSwitchInterval
	}
	if c.MaxSwitchesPerWindow == 0 {
		c.MaxSwitchesPerWindow = def.MaxSwitchesPerWindow
	}
	if c.SwitchWindow == 0 {
		c.SwitchWindow = def.SwitchWindow
	}
	if c.MinBitrate == 0 {
		c.MinBitrate = def.MinBitrate
	}
	if c.MaxBitrate == 0 {
		c.MaxBitrate = def.MaxBitrate
	}
	if c.InitialBitrate == 0 {
		c.InitialBitrate = c.MaxBitrate
	}
	if c.InitialLevel == 0 {
		c.InitialLevel = def.InitialLevel
	}
	if c.Bitrate == (BitrateConfig{}) {
		c.Bitrate = def.Bitrate
	} else {
		b := &c.Bitrate
		if b.SevereLoss == 0 {
			b.SevereLoss = def.Bitrate.SevereLoss
		}
		if b.ModerateLoss == 0 {
			b.ModerateLoss = def.Bitrate.ModerateLoss
		}
		if b.RecoveryLoss == 0 {
			b.RecoveryLoss = def.Bitrate.RecoveryLoss
		}
		if b.SevereFactor == 0 {
			b.SevereFactor = def.Bitrate.SevereFactor
		}
		if b.ModerateFactor == 0 {
			b.ModerateFactor = def.Bitrate.ModerateFactor
		}
		if b.IncreaseFactor == 0 {
			b.IncreaseFactor = def.Bitrate.IncreaseFactor
		}
		if b.MinInterval == 0 {
			b.MinInterval = def.Bitrate.MinInterval
		}
	}
	return c
}

// Validate checks the configuration. It does not apply defaults; call it on
// a fully populated Config (for example one derived from DefaultConfig).
func (c Config) Validate() error {
	if c.HistoryCapacity <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidHistory, c.HistoryCapacity)
	}
	if !(c.SmoothingFactor > 0 && c.SmoothingFactor <= 1) {
		return fmt.Errorf("%w: got %v", ErrInvalidSmoothing, c.SmoothingFactor)
	}
	w := c.Weights
	if !nonNegative(w.PacketLoss) || !nonNegative(w.RoundTripTime) ||
		!nonNegative(w.Bandwidth) || !nonNegative(w.FramesDropped) ||
		!(math.Abs(w.Sum()-1) <= weightTolerance) {
		return fmt.Errorf("%w: sum is %.6f", ErrInvalidWeights, w.Sum())
	}
	if c.MinBitrate <= 0 || c.MinBitrate > c.MaxBitrate {
		return fmt.Errorf("%w: min=%d max=%d", ErrInvalidBitrateBounds, c.MinBitrate, c.MaxBitrate)
	}
	if err := validateThresholds("highToLow", c.Thresholds.HighToLow); err != nil {
		return err
	}
	if err := validateThresholds("lowToHigh", c.Thresholds.LowToHigh); err != nil {
		return err
	}
	if c.InitialLevel != LevelLow && c.InitialLevel != LevelHigh {
		return fmt.Errorf("%w: initial level %d", ErrUnknownLevel, c.InitialLevel)
	}
	if c.SwitchWindow <= 0 || c.MinSwitchInterval < 0 || c.MaxSwitchesPerWindow < 0 {
		return fmt.Errorf("%w: window=%s interval=%s max=%d",
			ErrInvalidWindow, c.SwitchWindow, c.MinSwitchInterval, c.MaxSwitchesPerWindow)
	}
	if c.Bitrate.MinInterval < 0 || c.Bitrate.MaxSwitchesPerWindow < 0 {
		return fmt.Errorf("%w: bitrate interval=%s max=%d",
			ErrInvalidWindow, c.Bitrate.MinInterval, c.Bitrate.MaxSwitchesPerWindow)
	}
	if !(c.UpgradeScore >= 0 && c.UpgradeScore < c.DowngradeScore && c.DowngradeScore <= 1) {
		return fmt.Errorf("%w: upgrade=%v downgrade=%v", ErrInvalidScoreBand, c.UpgradeScore, c.DowngradeScore)
	}
	b := c.Bitrate
	if !positive(b.SevereLoss) || !positive(b.ModerateLoss) || !nonNegative(b.RecoveryLoss) ||
		!positive(b.SevereFactor) || !positive(b.ModerateFactor) || !positive(b.IncreaseFactor) {
		return fmt.Errorf("%w: %+v", ErrInvalidBitrateTiers, b)
	}
	return nil
}

func validateThresholds(name string, ts ThresholdSet) error {
	if !positive(ts.PacketLoss) || !positive(ts.RoundTripTime) ||
		!positive(ts.EstimatedBandwidth) || !positive(ts.FramesDropped) {
		return fmt.Errorf("%w: %s=%+v", ErrInvalidThresholds, name, ts)
	}
	return nil
}

// positive and nonNegative reject NaN and infinities.
func positive(v float64) bool { return v > 0 && !math.IsInf(v, 1) }

func nonNegative(v float64) bool { return v >= 0 && !math.IsInf(v, 1) }

// clampBitrate limits bps to [MinBitrate, MaxBitrate].
func (c Config) clampBitrate(bps int64) int64 {
	return ClampBitrate(bps, c.MinBitrate, c.MaxBitrate)
}
