package interceptor

import (
	"errors"
	"sync"
	"time"

	"github.com/pion/interceptor"
	"go.uber.org/zap"
)

// FactoryOption configures the SamplerFactory.
type FactoryOption func(*SamplerFactory) error

// SamplerFactory creates a SamplerInterceptor for each PeerConnection and
// keeps track of the live ones so callers can reach them by id.
type SamplerFactory struct {
	sampleInterval time.Duration
	streamTimeout  time.Duration
	onSample       SampleFunc
	logger         *zap.Logger

	samplers sync.Map // id (string) -> *SamplerInterceptor
}

// WithFactorySampleInterval sets how often samples are emitted.
// Default: 2 seconds
func WithFactorySampleInterval(interval time.Duration) FactoryOption {
	return func(f *SamplerFactory) error {
		if interval <= 0 {
			return errors.New("sample interval must be positive")
		}
		f.sampleInterval = interval
		return nil
	}
}

// WithFactoryStreamTimeout sets how long idle local streams are tracked.
// Default: 10 seconds
func WithFactoryStreamTimeout(timeout time.Duration) FactoryOption {
	return func(f *SamplerFactory) error {
		if timeout <= 0 {
			return errors.New("stream timeout must be positive")
		}
		f.streamTimeout = timeout
		return nil
	}
}

// WithOnSample sets the callback every created sampler reports to.
func WithOnSample(fn SampleFunc) FactoryOption {
	return func(f *SamplerFactory) error {
		f.onSample = fn
		return nil
	}
}

// WithLogger sets the logger handed to every created sampler.
func WithLogger(l *zap.Logger) FactoryOption {
	return func(f *SamplerFactory) error {
		if l == nil {
			return errors.New("logger must not be nil")
		}
		f.logger = l
		return nil
	}
}

// NewSamplerFactory creates a factory for SamplerInterceptor instances.
//
// Example:
//
//	factory, err := NewSamplerFactory(
//	    WithFactorySampleInterval(time.Second),
//	    WithOnSample(onSample),
//	)
//	if err != nil {
//	    return err
//	}
//	registry.Add(factory)
func NewSamplerFactory(opts ...FactoryOption) (*SamplerFactory, error) {
	f := &SamplerFactory{
		sampleInterval: DefaultSampleInterval,
		streamTimeout:  DefaultStreamTimeout,
		logger:         zap.NewNop(),
	}
	for _, opt := range opts {
		if err := opt(f); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// NewInterceptor creates a SamplerInterceptor for a PeerConnection.
// It is called by the interceptor registry when a connection is set up.
func (f *SamplerFactory) NewInterceptor(id string) (interceptor.Interceptor, error) {
	i := NewSamplerInterceptor(id,
		WithSampleInterval(f.sampleInterval),
		WithStreamTimeout(f.streamTimeout),
		WithSampleFunc(f.onSample),
		WithInterceptorLogger(f.logger),
	)
	i.onClose = func() { f.samplers.CompareAndDelete(id, i) }
	f.samplers.Store(id, i)
	return i, nil
}

// Sampler returns the live sampler created for id.
func (f *SamplerFactory) Sampler(id string) (*SamplerInterceptor, bool) {
	v, ok := f.samplers.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*SamplerInterceptor), true
}
