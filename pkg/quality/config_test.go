package quality

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_Valid(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
}

func TestConfig_ZeroValueTakesDefaults(t *testing.T) {
	assert.Equal(t, DefaultConfig(), Config{}.withDefaults())
}

func TestConfig_PartialBitrateConfigKeepsOverrides(t *testing.T) {
	cfg := Config{Bitrate: BitrateConfig{SevereFactor: 0.5, MaxSwitchesPerWindow: 3}}.withDefaults()

	assert.Equal(t, 0.5, cfg.Bitrate.SevereFactor)
	assert.Equal(t, 3, cfg.Bitrate.MaxSwitchesPerWindow)
	assert.Equal(t, DefaultBitrateConfig().ModerateFactor, cfg.Bitrate.ModerateFactor)
	assert.Equal(t, 2*time.Second, cfg.Bitrate.MinInterval)
}

func TestConfig_InitialBitrateDefaultsToMax(t *testing.T) {
	cfg := Config{MaxBitrate: 2_000_000}.withDefaults()
	assert.Equal(t, int64(2_000_000), cfg.InitialBitrate)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{"weights over one", func(c *Config) { c.Weights.PacketLoss = 0.5 }, ErrInvalidWeights},
		{"weights under one", func(c *Config) { c.Weights.FramesDropped = 0 }, ErrInvalidWeights},
		{"negative weight", func(c *Config) {
			c.Weights = Weights{PacketLoss: 1.2, RoundTripTime: -0.2}
		}, ErrInvalidWeights},
		{"min above max", func(c *Config) { c.MinBitrate = 2_000_000 }, ErrInvalidBitrateBounds},
		{"non-positive min", func(c *Config) { c.MinBitrate = -1 }, ErrInvalidBitrateBounds},
		{"smoothing above one", func(c *Config) { c.SmoothingFactor = 1.5 }, ErrInvalidSmoothing},
		{"zero history", func(c *Config) { c.HistoryCapacity = 0 }, ErrInvalidHistory},
		{"zero threshold", func(c *Config) { c.Thresholds.LowToHigh.RoundTripTime = 0 }, ErrInvalidThresholds},
		{"zero window", func(c *Config) { c.SwitchWindow = 0 }, ErrInvalidWindow},
		{"inverted score band", func(c *Config) { c.UpgradeScore = 0.8 }, ErrInvalidScoreBand},
		{"unset initial level", func(c *Config) { c.InitialLevel = 0 }, ErrUnknownLevel},
		{"NaN weight", func(c *Config) { c.Weights.FramesDropped = math.NaN() }, ErrInvalidWeights},
		{"infinite weight", func(c *Config) { c.Weights.RoundTripTime = math.Inf(1) }, ErrInvalidWeights},
		{"NaN threshold", func(c *Config) { c.Thresholds.HighToLow.PacketLoss = math.NaN() }, ErrInvalidThresholds},
		{"infinite threshold", func(c *Config) { c.Thresholds.LowToHigh.EstimatedBandwidth = math.Inf(1) }, ErrInvalidThresholds},
		{"NaN score band", func(c *Config) { c.DowngradeScore = math.NaN() }, ErrInvalidScoreBand},
		{"NaN bitrate tier", func(c *Config) { c.Bitrate.SevereLoss = math.NaN() }, ErrInvalidBitrateTiers},
		{"negative bitrate factor", func(c *Config) { c.Bitrate.IncreaseFactor = -1 }, ErrInvalidBitrateTiers},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v, want %v", err, tt.want)
		})
	}
}

func TestNewLevelController_RejectsNaNWeights(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Weights.FramesDropped = math.NaN()
	_, err := NewLevelController(cfg, nil)
	assert.ErrorIs(t, err, ErrInvalidWeights)
}

func TestConfig_WeightsWithinTolerance(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Weights = Weights{PacketLoss: 0.1, RoundTripTime: 0.2, Bandwidth: 0.3, FramesDropped: 0.4}
	assert.NoError(t, cfg.Validate())
}

func TestParseLevel(t *testing.T) {
	l, err := ParseLevel("HIGH")
	require.NoError(t, err)
	assert.Equal(t, LevelHigh, l)

	l, err = ParseLevel(" low ")
	require.NoError(t, err)
	assert.Equal(t, LevelLow, l)

	_, err = ParseLevel("medium")
	assert.ErrorIs(t, err, ErrUnknownLevel)
}

func TestParseMode(t *testing.T) {
	for in, want := range map[string]Mode{
		"level":     ModeLevel,
		"simulcast": ModeLevel,
		"bitrate":   ModeBitrate,
		"Scalar":    ModeBitrate,
	} {
		got, err := ParseMode(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseMode("svc")
	assert.ErrorIs(t, err, ErrUnknownMode)
}

func TestStringers(t *testing.T) {
	assert.Equal(t, "low", LevelLow.String())
	assert.Equal(t, "high", LevelHigh.String())
	assert.Equal(t, "unknown", QualityLevel(0).String())
	assert.Equal(t, "level", ModeLevel.String())
	assert.Equal(t, "bitrate", ModeBitrate.String())
	assert.Equal(t, "none", GateNone.String())
	assert.Equal(t, "min_interval", GateMinInterval.String())
	assert.Equal(t, "max_switches", GateMaxSwitches.String())
}
