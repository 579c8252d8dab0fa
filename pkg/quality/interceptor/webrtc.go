package interceptor

import (
	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"
)

// NewAPI builds a webrtc.API whose peer connections carry Pion's default
// interceptors (NACK, RTCP reports, TWCC) followed by a quality sampler.
// The report interceptors must be present: without sender reports the
// remote side cannot fill LSR/DLSR and no round-trip time is measured.
//
// A nil m is replaced by a MediaEngine with the default codecs.
func NewAPI(m *webrtc.MediaEngine, opts ...FactoryOption) (*webrtc.API, *SamplerFactory, error) {
	if m == nil {
		m = &webrtc.MediaEngine{}
		if err := m.RegisterDefaultCodecs(); err != nil {
			return nil, nil, err
		}
	}

	registry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(m, registry); err != nil {
		return nil, nil, err
	}

	factory, err := NewSamplerFactory(opts...)
	if err != nil {
		return nil, nil, err
	}
	registry.Add(factory)

	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(m),
		webrtc.WithInterceptorRegistry(registry),
	)
	return api, factory, nil
}
