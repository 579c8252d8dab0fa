package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	prom "github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newproject8/returnfeed-backend-sub001/pkg/quality"
	"github.com/newproject8/returnfeed-backend-sub001/pkg/quality/interceptor"
	"github.com/newproject8/returnfeed-backend-sub001/pkg/quality/internal"
	"github.com/newproject8/returnfeed-backend-sub001/pkg/quality/testutil"
	"github.com/newproject8/returnfeed-backend-sub001/pkg/telemetry/prometheus"
)

func TestManager_CreateGetRemove(t *testing.T) {
	m := NewManager(nil, nil)

	s, err := m.Create(Params{Mode: quality.ModeLevel})
	require.NoError(t, err)
	_, err = uuid.Parse(s.ID())
	assert.NoError(t, err)

	named, err := m.Create(Params{ID: "cam-1", Mode: quality.ModeBitrate})
	require.NoError(t, err)
	assert.Equal(t, quality.ModeBitrate, named.Mode())

	_, err = m.Create(Params{ID: "cam-1"})
	assert.True(t, errors.Is(err, ErrSessionExists))

	got, err := m.Get("cam-1")
	require.NoError(t, err)
	assert.Same(t, named, got)
	assert.Equal(t, 2, m.Len())
	assert.Contains(t, m.IDs(), "cam-1")

	require.NoError(t, m.Remove("cam-1"))
	_, err = m.Get("cam-1")
	assert.True(t, errors.Is(err, ErrSessionNotFound))
	assert.True(t, errors.Is(m.Remove("cam-1"), ErrSessionNotFound))
	assert.Equal(t, 1, m.Len())
}

func TestManager_CreateInvalidConfig(t *testing.T) {
	m := NewManager(nil, nil)
	_, err := m.Create(Params{ID: "bad", Config: quality.Config{SmoothingFactor: 2}})
	require.Error(t, err)
	assert.Equal(t, 0, m.Len())
}

func TestManager_SessionsAreIndependent(t *testing.T) {
	m := NewManager(nil, nil)
	clock := internal.NewMockClock(time.Time{})
	ctx := context.Background()

	a, err := m.Create(Params{ID: "a", Mode: quality.ModeLevel, Clock: clock})
	require.NoError(t, err)
	b, err := m.Create(Params{ID: "b", Mode: quality.ModeLevel, Clock: clock})
	require.NoError(t, err)

	bad := testutil.BadNetwork()
	bad.Timestamp = clock.Advance(6 * time.Second)
	_, err = m.Tick(ctx, "a", bad)
	require.NoError(t, err)

	assert.Equal(t, quality.LevelLow, a.State().Level)
	assert.Equal(t, quality.LevelHigh, b.State().Level)
	assert.Equal(t, 0, b.State().SwitchCount)
}

func TestManager_SampleFunc(t *testing.T) {
	reg := prom.NewRegistry()
	metrics, err := prometheus.NewMetrics(reg, nil)
	require.NoError(t, err)

	m := NewManager(nil, metrics)
	clock := internal.NewMockClock(time.Time{})
	s, err := m.Create(Params{ID: "pc-1", Mode: quality.ModeLevel, Clock: clock})
	require.NoError(t, err)

	var fn interceptor.SampleFunc = m.SampleFunc(context.Background())

	bad := testutil.BadNetwork()
	bad.Timestamp = clock.Advance(6 * time.Second)
	fn("pc-1", bad)
	fn("unknown", bad)

	assert.Equal(t, uint64(1), s.Stats().Ticks)
	assert.Equal(t, quality.LevelLow, s.State().Level)

	n, err := promtestutil.GatherAndCount(reg, "returnfeed_quality_decisions_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = promtestutil.GatherAndCount(reg, "returnfeed_quality_level")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, m.Remove("pc-1"))
	n, err = promtestutil.GatherAndCount(reg, "returnfeed_quality_level")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
