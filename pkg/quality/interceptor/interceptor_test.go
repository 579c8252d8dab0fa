package interceptor

import (
	"sync"
	"testing"
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newproject8/returnfeed-backend-sub001/pkg/quality"
)

// mockRTCPReader returns pre-marshalled RTCP compound packets in order.
type mockRTCPReader struct {
	packets [][]byte
	index   int
}

func (m *mockRTCPReader) Read(b []byte, a interceptor.Attributes) (int, interceptor.Attributes, error) {
	if m.index >= len(m.packets) {
		return 0, a, nil
	}
	n := copy(b, m.packets[m.index])
	m.index++
	return n, a, nil
}

// countingRTPWriter counts written packets.
type countingRTPWriter struct {
	mu      sync.Mutex
	written int
}

func (w *countingRTPWriter) Write(header *rtp.Header, payload []byte, _ interceptor.Attributes) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.written++
	return header.MarshalSize() + len(payload), nil
}

// sampleRecorder collects samples delivered by the sampler.
type sampleRecorder struct {
	mu      sync.Mutex
	ids     []string
	samples []quality.QualityMetrics
}

func (r *sampleRecorder) record(id string, m quality.QualityMetrics) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, id)
	r.samples = append(r.samples, m)
}

func (r *sampleRecorder) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.samples)
}

func (r *sampleRecorder) last() (string, quality.QualityMetrics) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ids[len(r.ids)-1], r.samples[len(r.samples)-1]
}

func marshalRTCP(t *testing.T, pkts ...rtcp.Packet) []byte {
	t.Helper()
	b, err := rtcp.Marshal(pkts)
	require.NoError(t, err)
	return b
}

func TestNewSamplerInterceptor_Defaults(t *testing.T) {
	i := NewSamplerInterceptor("pc-1")
	assert.Equal(t, "pc-1", i.ID())
	assert.Equal(t, DefaultSampleInterval, i.sampleInterval)
	assert.Equal(t, DefaultStreamTimeout, i.streamTimeout)
	assert.NoError(t, i.Close())
}

func TestNewSamplerInterceptor_InvalidOptionsFallBack(t *testing.T) {
	i := NewSamplerInterceptor("pc-1", WithSampleInterval(-time.Second), WithStreamTimeout(0))
	assert.Equal(t, DefaultSampleInterval, i.sampleInterval)
	assert.Equal(t, DefaultStreamTimeout, i.streamTimeout)
	assert.NoError(t, i.Close())
}

func TestSamplerInterceptor_ObservesFeedback(t *testing.T) {
	rec := &sampleRecorder{}
	i := NewSamplerInterceptor("pc-1", WithSampleFunc(rec.record), WithSampleInterval(time.Hour))
	defer i.Close()

	writer := &countingRTPWriter{}
	info := &interceptor.StreamInfo{SSRC: videoSSRC, ClockRate: 90000, MimeType: "video/H264"}
	w := i.BindLocalStream(info, writer)

	_, err := w.Write(&rtp.Header{Version: 2, SSRC: videoSSRC, SequenceNumber: 1}, []byte{0x01}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, writer.written)

	reader := i.BindRTCPReader(&mockRTCPReader{packets: [][]byte{
		marshalRTCP(t, &rtcp.ReceiverReport{
			SSRC:    1,
			Reports: []rtcp.ReceptionReport{{SSRC: videoSSRC, LastSequenceNumber: 100, TotalLost: 0}},
		}),
		marshalRTCP(t,
			&rtcp.ReceiverReport{
				SSRC:    1,
				Reports: []rtcp.ReceptionReport{{SSRC: videoSSRC, FractionLost: 26, LastSequenceNumber: 300, TotalLost: 20, Jitter: 1800}},
			},
			&rtcp.ReceiverEstimatedMaximumBitrate{Bitrate: 400_000, SSRCs: []uint32{videoSSRC}},
		),
	}})

	buf := make([]byte, 1500)
	for k := 0; k < 2; k++ {
		_, _, err := reader.Read(buf, nil)
		require.NoError(t, err)
	}

	i.AddFramesDropped(4)
	i.sample(time.Now())

	require.Equal(t, 1, rec.len())
	id, m := rec.last()
	assert.Equal(t, "pc-1", id)
	assert.InDelta(t, 26.0/256, m.PacketLoss, 1e-9)
	assert.InDelta(t, 20, m.Jitter, 1e-9)
	assert.InDelta(t, 400_000, m.EstimatedBandwidth, 1)
	assert.Equal(t, 4.0, m.FramesDropped)
	assert.Equal(t, uint64(20), m.PacketsLost)
	assert.Equal(t, uint64(180), m.PacketsReceived)
}

func TestSamplerInterceptor_IgnoresGarbageRTCP(t *testing.T) {
	i := NewSamplerInterceptor("pc-1")
	defer i.Close()

	reader := i.BindRTCPReader(&mockRTCPReader{packets: [][]byte{{0xde, 0xad, 0xbe, 0xef}}})
	n, _, err := reader.Read(make([]byte, 1500), nil)
	assert.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestSamplerInterceptor_SampleLoop(t *testing.T) {
	rec := &sampleRecorder{}
	i := NewSamplerInterceptor("pc-1", WithSampleFunc(rec.record), WithSampleInterval(10*time.Millisecond))

	i.BindLocalStream(&interceptor.StreamInfo{SSRC: videoSSRC, ClockRate: 90000}, &countingRTPWriter{})

	require.Eventually(t, func() bool { return rec.len() >= 2 }, time.Second, 5*time.Millisecond)
	require.NoError(t, i.Close())

	// No samples after close.
	n := rec.len()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, n, rec.len())
}

func TestSamplerInterceptor_UnbindLocalStream(t *testing.T) {
	i := NewSamplerInterceptor("pc-1")
	defer i.Close()

	info := &interceptor.StreamInfo{SSRC: videoSSRC, ClockRate: 90000}
	i.BindLocalStream(info, &countingRTPWriter{})
	assert.Equal(t, 1, i.Collector().StreamCount())

	i.UnbindLocalStream(info)
	assert.Equal(t, 0, i.Collector().StreamCount())
}

func TestSamplerInterceptor_CloseIdempotent(t *testing.T) {
	i := NewSamplerInterceptor("pc-1")
	i.BindLocalStream(&interceptor.StreamInfo{SSRC: videoSSRC}, &countingRTPWriter{})

	assert.NoError(t, i.Close())
	assert.NoError(t, i.Close())
}
