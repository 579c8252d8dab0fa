package interceptor

import (
	"sync"
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"go.uber.org/zap"

	"github.com/newproject8/returnfeed-backend-sub001/pkg/quality"
)

const (
	// DefaultSampleInterval matches the sampling period the controllers are
	// tuned for.
	DefaultSampleInterval = 2 * time.Second

	// DefaultStreamTimeout is how long an idle local stream is kept.
	DefaultStreamTimeout = 10 * time.Second
)

// SampleFunc receives one metrics sample for the peer connection id.
type SampleFunc func(id string, m quality.QualityMetrics)

// SamplerInterceptor is a Pion interceptor that observes incoming RTCP
// feedback for local streams and emits periodic quality samples.
type SamplerInterceptor struct {
	interceptor.NoOp

	id        string
	collector *Collector
	logger    *zap.Logger

	sampleInterval time.Duration
	streamTimeout  time.Duration
	onSample       SampleFunc
	onClose        func()

	closed    chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
	startOnce sync.Once
}

// InterceptorOption is a functional option for configuring SamplerInterceptor.
type InterceptorOption func(*SamplerInterceptor)

// WithSampleInterval sets how often samples are emitted.
// Default is 2 seconds.
func WithSampleInterval(d time.Duration) InterceptorOption {
	return func(i *SamplerInterceptor) {
		i.sampleInterval = d
	}
}

// WithStreamTimeout sets how long an idle local stream is tracked.
func WithStreamTimeout(d time.Duration) InterceptorOption {
	return func(i *SamplerInterceptor) {
		i.streamTimeout = d
	}
}

// WithSampleFunc sets the sample callback.
func WithSampleFunc(fn SampleFunc) InterceptorOption {
	return func(i *SamplerInterceptor) {
		i.onSample = fn
	}
}

// WithInterceptorLogger sets the logger. Default is a no-op logger.
func WithInterceptorLogger(l *zap.Logger) InterceptorOption {
	return func(i *SamplerInterceptor) {
		i.logger = l
	}
}

// NewSamplerInterceptor creates a sampler for the peer connection id.
func NewSamplerInterceptor(id string, opts ...InterceptorOption) *SamplerInterceptor {
	i := &SamplerInterceptor{
		id:             id,
		collector:      NewCollector(),
		logger:         zap.NewNop(),
		sampleInterval: DefaultSampleInterval,
		streamTimeout:  DefaultStreamTimeout,
		closed:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(i)
	}
	if i.sampleInterval <= 0 {
		i.sampleInterval = DefaultSampleInterval
	}
	if i.streamTimeout <= 0 {
		i.streamTimeout = DefaultStreamTimeout
	}
	i.logger = i.logger.Named("sampler").With(zap.String("pc", id))
	return i
}

// ID returns the peer connection id this sampler was created for.
func (i *SamplerInterceptor) ID() string { return i.id }

// Collector exposes the underlying collector.
func (i *SamplerInterceptor) Collector() *Collector { return i.collector }

// AddFramesDropped reports frames the local encoder or pacer dropped.
func (i *SamplerInterceptor) AddFramesDropped(n uint64) {
	i.collector.AddFramesDropped(n)
}

// Close stops the background loops. It is safe to call more than once.
func (i *SamplerInterceptor) Close() error {
	i.closeOnce.Do(func() {
		close(i.closed)
		if i.onClose != nil {
			i.onClose()
		}
	})
	i.wg.Wait()
	return nil
}

// BindRTCPReader wraps the incoming RTCP path to observe feedback.
func (i *SamplerInterceptor) BindRTCPReader(reader interceptor.RTCPReader) interceptor.RTCPReader {
	return interceptor.RTCPReaderFunc(func(b []byte, a interceptor.Attributes) (int, interceptor.Attributes, error) {
		n, a, err := reader.Read(b, a)
		if err != nil || n == 0 {
			return n, a, err
		}
		pkts, perr := rtcp.Unmarshal(b[:n])
		if perr != nil {
			i.logger.Debug("dropping unparsable rtcp", zap.Error(perr))
			return n, a, err
		}
		i.collector.OnPackets(pkts, time.Now())
		return n, a, err
	})
}

// BindLocalStream starts tracking an outgoing stream and the background loops.
func (i *SamplerInterceptor) BindLocalStream(info *interceptor.StreamInfo, writer interceptor.RTPWriter) interceptor.RTPWriter {
	i.start()
	i.collector.AddStream(info.SSRC, info.ClockRate, time.Now())
	i.logger.Debug("tracking local stream",
		zap.Uint32("ssrc", info.SSRC),
		zap.String("mime", info.MimeType),
		zap.Uint32("clockRate", info.ClockRate),
	)

	ssrc := info.SSRC
	return interceptor.RTPWriterFunc(func(header *rtp.Header, payload []byte, a interceptor.Attributes) (int, error) {
		n, err := writer.Write(header, payload, a)
		if err == nil {
			i.collector.OnPacketSent(ssrc, time.Now())
		}
		return n, err
	})
}

// UnbindLocalStream stops tracking an outgoing stream.
func (i *SamplerInterceptor) UnbindLocalStream(info *interceptor.StreamInfo) {
	i.collector.RemoveStream(info.SSRC)
}

func (i *SamplerInterceptor) start() {
	i.startOnce.Do(func() {
		i.wg.Add(2)
		go i.sampleLoop()
		go i.cleanupLoop()
	})
}

func (i *SamplerInterceptor) sampleLoop() {
	defer i.wg.Done()

	ticker := time.NewTicker(i.sampleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-i.closed:
			return
		case now := <-ticker.C:
			i.sample(now)
		}
	}
}

func (i *SamplerInterceptor) sample(now time.Time) {
	m := i.collector.Sample(now)
	if i.onSample != nil {
		i.onSample(i.id, m)
	}
}

func (i *SamplerInterceptor) cleanupLoop() {
	defer i.wg.Done()

	ticker := time.NewTicker(i.streamTimeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-i.closed:
			return
		case now := <-ticker.C:
			if n := i.collector.Prune(now, i.streamTimeout); n > 0 {
				i.logger.Debug("pruned idle streams", zap.Int("count", n))
			}
		}
	}
}
