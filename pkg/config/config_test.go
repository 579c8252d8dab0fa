package config

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newproject8/returnfeed-backend-sub001/pkg/quality"
)

func TestParse_Empty(t *testing.T) {
	conf, err := Parse(nil, true)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), *conf)

	mode, err := conf.ControllerMode()
	require.NoError(t, err)
	assert.Equal(t, quality.ModeLevel, mode)

	qc, err := conf.QualityConfig()
	require.NoError(t, err)
	assert.Equal(t, quality.DefaultConfig(), qc)
}

func TestLoad(t *testing.T) {
	conf, err := Load(filepath.Join("testdata", "bitrate.yaml"))
	require.NoError(t, err)

	mode, err := conf.ControllerMode()
	require.NoError(t, err)
	assert.Equal(t, quality.ModeBitrate, mode)

	qc, err := conf.QualityConfig()
	require.NoError(t, err)
	assert.Equal(t, int64(200_000), qc.MinBitrate)
	assert.Equal(t, int64(2_000_000), qc.MaxBitrate)
	assert.Equal(t, int64(800_000), qc.InitialBitrate)
	assert.Equal(t, 3*time.Second, qc.MinSwitchInterval)
	assert.Equal(t, 4*time.Second, qc.Bitrate.MinInterval)
	assert.Equal(t, 10, qc.Bitrate.MaxSwitchesPerWindow)
	// Untouched keys keep their defaults.
	assert.Equal(t, 0.7, qc.SmoothingFactor)
	assert.Equal(t, quality.DefaultThresholds(), qc.Thresholds)
	assert.Equal(t, 0.8, qc.Bitrate.SevereFactor)

	assert.Equal(t, "h", conf.Simulcast.HighRID)
	assert.Equal(t, int64(1_500_000), conf.CodecOptions().MaxVideoBitrate)
	assert.Equal(t, "42e01f", conf.CodecOptions().ProfileLevelID)
	assert.Equal(t, ":9090", conf.Metrics.Address)
	assert.Equal(t, 2*time.Second, conf.Sampling.Interval)
}

func TestLoad_Missing(t *testing.T) {
	_, err := Load(filepath.Join("testdata", "nope.yaml"))
	assert.Error(t, err)
}

func TestParse_StrictRejectsUnknownKeys(t *testing.T) {
	body := []byte("quality:\n  smoothing: 0.5\n")

	_, err := Parse(body, true)
	assert.Error(t, err)

	conf, err := Parse(body, false)
	require.NoError(t, err)
	assert.Equal(t, 0.7, conf.Quality.SmoothingFactor)
}

func TestParse_Invalid(t *testing.T) {
	cases := map[string]struct {
		body string
		want error
	}{
		"mode":       {body: "mode: turbo", want: quality.ErrUnknownMode},
		"level":      {body: "quality:\n  initial_level: medium", want: quality.ErrUnknownLevel},
		"weights":    {body: "quality:\n  weights:\n    packet_loss: 0.9", want: quality.ErrInvalidWeights},
		"bounds":     {body: "quality:\n  min_bitrate: 5000000", want: quality.ErrInvalidBitrateBounds},
		"smoothing":  {body: "quality:\n  smoothing_factor: 1.5", want: quality.ErrInvalidSmoothing},
		"band":       {body: "quality:\n  upgrade_score: 0.8", want: quality.ErrInvalidScoreBand},
		"nan weight": {body: "quality:\n  weights:\n    frames_dropped: .nan", want: quality.ErrInvalidWeights},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(tc.body), true)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tc.want), "got %v", err)
		})
	}
}

func TestParse_InvalidValues(t *testing.T) {
	for _, body := range []string{
		"quality:\n  min_switch_interval: soon",
		"sampling:\n  interval: 0s",
		"logging:\n  level: loud",
		"mode: [level]",
	} {
		_, err := Parse([]byte(body), true)
		assert.Error(t, err, body)
	}
}

func TestYAML_RoundTrip(t *testing.T) {
	conf, err := Load(filepath.Join("testdata", "bitrate.yaml"))
	require.NoError(t, err)

	out, err := conf.YAML()
	require.NoError(t, err)
	assert.Contains(t, string(out), "min_switch_interval: 3s")

	again, err := Parse(out, true)
	require.NoError(t, err)
	assert.Equal(t, conf, again)
}

func TestLoggingConfig_Build(t *testing.T) {
	logger, err := LoggingConfig{Level: "debug", Development: true}.Build()
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(-1))

	logger, err = LoggingConfig{Level: "warn", JSON: true}.Build()
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(0))

	_, err = LoggingConfig{Level: "chatty"}.Build()
	assert.Error(t, err)
}
