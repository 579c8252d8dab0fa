// Package interceptor provides a Pion WebRTC interceptor that turns the RTCP
// feedback a sender receives into quality.QualityMetrics samples.
//
// The sampler observes receiver reports (loss fraction, cumulative loss,
// jitter and the LSR/DLSR round-trip fields), sender reports carrying
// reception blocks, and REMB bandwidth estimates. Every SampleInterval it
// aggregates what it saw into one sample and hands it to a callback, which
// normally feeds a session.Session.
//
// Usage:
//
//	factory, err := interceptor.NewSamplerFactory(
//	    interceptor.WithOnSample(func(id string, m quality.QualityMetrics) {
//	        samples <- m
//	    }),
//	)
//	if err != nil {
//	    return err
//	}
//	registry.Add(factory)
//
// Frames dropped by the encoder are not visible in RTCP; report them with
// SamplerInterceptor.AddFramesDropped.
package interceptor
