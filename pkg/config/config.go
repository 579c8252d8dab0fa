// Package config loads the quality engine configuration from YAML.
package config

import (
	"bytes"
	"os"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/newproject8/returnfeed-backend-sub001/pkg/quality"
	"github.com/newproject8/returnfeed-backend-sub001/pkg/quality/codecpref"
)

// Config is the on-disk configuration of the quality engine.
type Config struct {
	Mode      string          `yaml:"mode"`
	Quality   QualityConfig   `yaml:"quality"`
	Sampling  SamplingConfig  `yaml:"sampling"`
	Simulcast SimulcastConfig `yaml:"simulcast"`
	Codec     CodecConfig     `yaml:"codec"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// QualityConfig mirrors quality.Config. Durations are written as strings
// ("5s"), levels by name.
type QualityConfig struct {
	HistoryCapacity      int             `yaml:"history_capacity"`
	SmoothingFactor      float64         `yaml:"smoothing_factor"`
	DowngradeScore       float64         `yaml:"downgrade_score"`
	UpgradeScore         float64         `yaml:"upgrade_score"`
	MinSwitchInterval    time.Duration   `yaml:"min_switch_interval"`
	MaxSwitchesPerWindow int             `yaml:"max_switches_per_window"`
	SwitchWindow         time.Duration   `yaml:"switch_window"`
	MinBitrate           int64           `yaml:"min_bitrate"`
	MaxBitrate           int64           `yaml:"max_bitrate"`
	InitialBitrate       int64           `yaml:"initial_bitrate,omitempty"`
	InitialLevel         string          `yaml:"initial_level"`
	Thresholds           ThresholdConfig `yaml:"thresholds"`
	Weights              WeightConfig    `yaml:"weights"`
	Bitrate              BitrateConfig   `yaml:"bitrate"`
}

// ThresholdConfig holds the direction-dependent threshold sets.
type ThresholdConfig struct {
	HighToLow ThresholdSetConfig `yaml:"high_to_low"`
	LowToHigh ThresholdSetConfig `yaml:"low_to_high"`
}

// ThresholdSetConfig is one set of per-metric thresholds.
type ThresholdSetConfig struct {
	PacketLoss         float64 `yaml:"packet_loss"`
	RoundTripTime      float64 `yaml:"rtt_ms"`
	EstimatedBandwidth float64 `yaml:"bandwidth_bps"`
	FramesDropped      float64 `yaml:"frames_dropped"`
}

// WeightConfig holds the per-metric score weights. They must sum to 1.
type WeightConfig struct {
	PacketLoss    float64 `yaml:"packet_loss"`
	RoundTripTime float64 `yaml:"rtt"`
	Bandwidth     float64 `yaml:"bandwidth"`
	FramesDropped float64 `yaml:"frames_dropped"`
}

// BitrateConfig configures the scalar bitrate controller.
type BitrateConfig struct {
	SevereLoss           float64       `yaml:"severe_loss"`
	ModerateLoss         float64       `yaml:"moderate_loss"`
	RecoveryLoss         float64       `yaml:"recovery_loss"`
	SevereFactor         float64       `yaml:"severe_factor"`
	ModerateFactor       float64       `yaml:"moderate_factor"`
	IncreaseFactor       float64       `yaml:"increase_factor"`
	MinInterval          time.Duration `yaml:"min_interval"`
	MaxSwitchesPerWindow int           `yaml:"max_switches_per_window"`
}

// SamplingConfig configures the RTCP sampler.
type SamplingConfig struct {
	Interval      time.Duration `yaml:"interval"`
	StreamTimeout time.Duration `yaml:"stream_timeout"`
}

// SimulcastConfig names the simulcast layers.
type SimulcastConfig struct {
	HighRID string `yaml:"high_rid"`
	LowRID  string `yaml:"low_rid"`
}

// CodecConfig configures the SDP codec-preference transform.
type CodecConfig struct {
	MaxVideoBitrate int64  `yaml:"max_video_bitrate"`
	ProfileLevelID  string `yaml:"profile_level_id"`
}

// LoggingConfig configures the zap logger built by Build.
type LoggingConfig struct {
	Level       string `yaml:"level"`
	JSON        bool   `yaml:"json"`
	Development bool   `yaml:"development"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	// Address serves /metrics when set, e.g. ":9090".
	Address string `yaml:"address"`
}

// DefaultConfig returns the configuration used for keys a file leaves out.
func DefaultConfig() Config {
	q := quality.DefaultConfig()
	return Config{
		Mode: quality.ModeLevel.String(),
		Quality: QualityConfig{
			HistoryCapacity:      q.HistoryCapacity,
			SmoothingFactor:      q.SmoothingFactor,
			DowngradeScore:       q.DowngradeScore,
			UpgradeScore:         q.UpgradeScore,
			MinSwitchInterval:    q.MinSwitchInterval,
			MaxSwitchesPerWindow: q.MaxSwitchesPerWindow,
			SwitchWindow:         q.SwitchWindow,
			MinBitrate:           q.MinBitrate,
			MaxBitrate:           q.MaxBitrate,
			InitialLevel:         q.InitialLevel.String(),
			Thresholds: ThresholdConfig{
				HighToLow: thresholdSetConfig(q.Thresholds.HighToLow),
				LowToHigh: thresholdSetConfig(q.Thresholds.LowToHigh),
			},
			Weights: WeightConfig{
				PacketLoss:    q.Weights.PacketLoss,
				RoundTripTime: q.Weights.RoundTripTime,
				Bandwidth:     q.Weights.Bandwidth,
				FramesDropped: q.Weights.FramesDropped,
			},
			Bitrate: BitrateConfig{
				SevereLoss:           q.Bitrate.SevereLoss,
				ModerateLoss:         q.Bitrate.ModerateLoss,
				RecoveryLoss:         q.Bitrate.RecoveryLoss,
				SevereFactor:         q.Bitrate.SevereFactor,
				ModerateFactor:       q.Bitrate.ModerateFactor,
				IncreaseFactor:       q.Bitrate.IncreaseFactor,
				MinInterval:          q.Bitrate.MinInterval,
				MaxSwitchesPerWindow: q.Bitrate.MaxSwitchesPerWindow,
			},
		},
		Sampling: SamplingConfig{
			Interval:      2 * time.Second,
			StreamTimeout: 10 * time.Second,
		},
		Simulcast: SimulcastConfig{
			HighRID: quality.DefaultHighRID,
			LowRID:  quality.DefaultLowRID,
		},
		Codec: CodecConfig{
			MaxVideoBitrate: codecpref.DefaultMaxVideoBitrate,
			ProfileLevelID:  codecpref.BaselineProfileLevelID,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

func thresholdSetConfig(t quality.ThresholdSet) ThresholdSetConfig {
	return ThresholdSetConfig{
		PacketLoss:         t.PacketLoss,
		RoundTripTime:      t.RoundTripTime,
		EstimatedBandwidth: t.EstimatedBandwidth,
		FramesDropped:      t.FramesDropped,
	}
}

func (t ThresholdSetConfig) thresholdSet() quality.ThresholdSet {
	return quality.ThresholdSet{
		PacketLoss:         t.PacketLoss,
		RoundTripTime:      t.RoundTripTime,
		EstimatedBandwidth: t.EstimatedBandwidth,
		FramesDropped:      t.FramesDropped,
	}
}

// Load reads and parses a YAML file in strict mode.
func Load(path string) (*Config, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "could not read config")
	}
	return Parse(body, true)
}

// Parse decodes body over the defaults and validates the result. In strict
// mode unknown keys are rejected. An empty body yields the defaults.
func Parse(body []byte, strict bool) (*Config, error) {
	// start with defaults
	defaults := DefaultConfig()
	marshalled, err := yaml.Marshal(&defaults)
	if err != nil {
		return nil, err
	}
	var conf Config
	if err := yaml.Unmarshal(marshalled, &conf); err != nil {
		return nil, err
	}

	if len(bytes.TrimSpace(body)) > 0 {
		decoder := yaml.NewDecoder(bytes.NewReader(body))
		decoder.KnownFields(strict)
		if err := decoder.Decode(&conf); err != nil {
			return nil, errors.Wrap(err, "could not parse config")
		}
	}

	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return &conf, nil
}

// Validate checks every section.
func (c *Config) Validate() error {
	if _, err := c.ControllerMode(); err != nil {
		return errors.Wrap(err, "invalid mode")
	}
	if _, err := c.QualityConfig(); err != nil {
		return errors.Wrap(err, "invalid quality config")
	}
	if c.Sampling.Interval <= 0 || c.Sampling.StreamTimeout <= 0 {
		return errors.New("invalid sampling config: interval and stream_timeout must be positive")
	}
	if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
		return errors.Wrap(err, "invalid logging config")
	}
	return nil
}

// ControllerMode parses Mode.
func (c *Config) ControllerMode() (quality.Mode, error) {
	return quality.ParseMode(c.Mode)
}

// QualityConfig converts the quality section and validates it.
func (c *Config) QualityConfig() (quality.Config, error) {
	q := c.Quality
	level, err := quality.ParseLevel(q.InitialLevel)
	if err != nil {
		return quality.Config{}, err
	}
	out := quality.Config{
		HistoryCapacity:      q.HistoryCapacity,
		SmoothingFactor:      q.SmoothingFactor,
		DowngradeScore:       q.DowngradeScore,
		UpgradeScore:         q.UpgradeScore,
		MinSwitchInterval:    q.MinSwitchInterval,
		MaxSwitchesPerWindow: q.MaxSwitchesPerWindow,
		SwitchWindow:         q.SwitchWindow,
		MinBitrate:           q.MinBitrate,
		MaxBitrate:           q.MaxBitrate,
		InitialBitrate:       q.InitialBitrate,
		InitialLevel:         level,
		Thresholds: quality.Thresholds{
			HighToLow: q.Thresholds.HighToLow.thresholdSet(),
			LowToHigh: q.Thresholds.LowToHigh.thresholdSet(),
		},
		Weights: quality.Weights{
			PacketLoss:    q.Weights.PacketLoss,
			RoundTripTime: q.Weights.RoundTripTime,
			Bandwidth:     q.Weights.Bandwidth,
			FramesDropped: q.Weights.FramesDropped,
		},
		Bitrate: quality.BitrateConfig{
			SevereLoss:           q.Bitrate.SevereLoss,
			ModerateLoss:         q.Bitrate.ModerateLoss,
			RecoveryLoss:         q.Bitrate.RecoveryLoss,
			SevereFactor:         q.Bitrate.SevereFactor,
			ModerateFactor:       q.Bitrate.ModerateFactor,
			IncreaseFactor:       q.Bitrate.IncreaseFactor,
			MinInterval:          q.Bitrate.MinInterval,
			MaxSwitchesPerWindow: q.Bitrate.MaxSwitchesPerWindow,
		},
	}
	if out.InitialBitrate == 0 {
		out.InitialBitrate = out.MaxBitrate
	}
	if err := out.Validate(); err != nil {
		return quality.Config{}, err
	}
	return out, nil
}

// CodecOptions returns the SDP transform options.
func (c *Config) CodecOptions() codecpref.Options {
	return codecpref.Options{
		MaxVideoBitrate: c.Codec.MaxVideoBitrate,
		ProfileLevelID:  c.Codec.ProfileLevelID,
	}
}

// YAML renders the configuration.
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}

// Build creates a zap logger for this configuration.
func (l LoggingConfig) Build() (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(l.Level)
	if err != nil {
		return nil, errors.Wrap(err, "invalid log level")
	}
	var zc zap.Config
	if l.Development {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
	}
	zc.Level = level
	if l.JSON {
		zc.Encoding = "json"
	} else {
		zc.Encoding = "console"
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	}
	return zc.Build()
}
