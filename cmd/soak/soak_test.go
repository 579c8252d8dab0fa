package main

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newproject8/returnfeed-backend-sub001/pkg/quality"
)

func TestRunSoakTest_Short(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping soak in short mode")
	}
	var status bytes.Buffer
	result := runSoakTest(context.Background(), soakParams{
		Duration: 3 * time.Hour,
		Seed:     42,
		Config:   quality.DefaultConfig(),
		Status:   &status,
	})

	assert.Equal(t, "PASS", result.Status, status.String())
	assert.Zero(t, result.Violations)
	assert.GreaterOrEqual(t, result.Duration, 3*time.Hour)
	assert.GreaterOrEqual(t, result.Samples, int((3*time.Hour)/(2*time.Second)))
	assert.Positive(t, result.LevelSwitches)
	assert.Positive(t, result.RateChanges)
	assert.GreaterOrEqual(t, result.FinalBitrate, int64(100_000))
	assert.LessOrEqual(t, result.FinalBitrate, int64(1_000_000))
	assert.Contains(t, status.String(), "Starting soak test")
}

func TestRunSoakTest_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := runSoakTest(ctx, soakParams{Duration: time.Hour, Config: quality.DefaultConfig()})
	assert.Equal(t, "PASS", result.Status)
	assert.Zero(t, result.Samples)
	assert.Zero(t, result.Duration)
}

func TestRunSoakTest_InvalidConfig(t *testing.T) {
	cfg := quality.DefaultConfig()
	cfg.SmoothingFactor = 3
	result := runSoakTest(context.Background(), soakParams{Duration: time.Hour, Config: cfg})
	assert.Equal(t, "FAIL", result.Status)
}

func TestChecker(t *testing.T) {
	cfg := quality.DefaultConfig()
	start := time.Unix(1_000, 0)

	c := newChecker(quality.ModeLevel, cfg, start)
	ok := quality.ControllerState{Level: quality.LevelLow, SwitchCount: 1}

	got := c.check(quality.QualityDecision{Changed: true, Confidence: 0.9, At: start.Add(6 * time.Second)}, ok, 3)
	assert.Empty(t, got)

	got = c.check(quality.QualityDecision{Changed: true, Confidence: 0.9, At: start.Add(8 * time.Second)}, ok, 3)
	require.Len(t, got, 1)
	assert.Contains(t, got[0], "min 5s")

	got = c.check(quality.QualityDecision{Confidence: 1.5, At: start.Add(20 * time.Second)},
		quality.ControllerState{Level: quality.LevelHigh, SwitchCount: 7}, 11)
	assert.Len(t, got, 3)

	b := newChecker(quality.ModeBitrate, cfg, start)
	got = b.check(quality.QualityDecision{Confidence: 0.5}, quality.ControllerState{Bitrate: 50_000}, 1)
	require.Len(t, got, 1)
	assert.Contains(t, got[0], "outside")
}
