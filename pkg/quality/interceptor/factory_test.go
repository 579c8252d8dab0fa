package interceptor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/newproject8/returnfeed-backend-sub001/pkg/quality"
)

func TestNewSamplerFactory_Defaults(t *testing.T) {
	f, err := NewSamplerFactory()
	require.NoError(t, err)

	assert.Equal(t, DefaultSampleInterval, f.sampleInterval)
	assert.Equal(t, DefaultStreamTimeout, f.streamTimeout)
	assert.Nil(t, f.onSample)
}

func TestNewSamplerFactory_WithOptions(t *testing.T) {
	called := false
	f, err := NewSamplerFactory(
		WithFactorySampleInterval(500*time.Millisecond),
		WithFactoryStreamTimeout(5*time.Second),
		WithOnSample(func(string, quality.QualityMetrics) { called = true }),
		WithLogger(zap.NewNop()),
	)
	require.NoError(t, err)

	assert.Equal(t, 500*time.Millisecond, f.sampleInterval)
	assert.Equal(t, 5*time.Second, f.streamTimeout)
	f.onSample("x", quality.QualityMetrics{})
	assert.True(t, called)
}

func TestNewSamplerFactory_InvalidOptions(t *testing.T) {
	_, err := NewSamplerFactory(WithFactorySampleInterval(0))
	assert.ErrorContains(t, err, "sample interval")

	_, err = NewSamplerFactory(WithFactoryStreamTimeout(-time.Second))
	assert.ErrorContains(t, err, "stream timeout")

	_, err = NewSamplerFactory(WithLogger(nil))
	assert.ErrorContains(t, err, "logger")
}

func TestSamplerFactory_NewInterceptor(t *testing.T) {
	f, err := NewSamplerFactory(WithFactorySampleInterval(time.Second))
	require.NoError(t, err)

	i, err := f.NewInterceptor("pc-7")
	require.NoError(t, err)

	s, ok := i.(*SamplerInterceptor)
	require.True(t, ok, "should be *SamplerInterceptor")
	assert.Equal(t, time.Second, s.sampleInterval)

	got, ok := f.Sampler("pc-7")
	require.True(t, ok)
	assert.Same(t, s, got)

	require.NoError(t, s.Close())
	_, ok = f.Sampler("pc-7")
	assert.False(t, ok, "closed samplers are forgotten")
}

func TestSamplerFactory_IndependentSamplers(t *testing.T) {
	f, err := NewSamplerFactory()
	require.NoError(t, err)

	a, err := f.NewInterceptor("a")
	require.NoError(t, err)
	b, err := f.NewInterceptor("b")
	require.NoError(t, err)
	defer a.Close()
	defer b.Close()

	a.(*SamplerInterceptor).AddFramesDropped(3)
	assert.Equal(t, 0.0, b.(*SamplerInterceptor).Collector().Sample(time.Now()).FramesDropped)
	assert.Equal(t, 3.0, a.(*SamplerInterceptor).Collector().Sample(time.Now()).FramesDropped)
}
