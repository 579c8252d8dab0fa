package interceptor

import (
	"time"

	"go.uber.org/atomic"
)

// streamState tracks one local (outgoing) stream.
//
// Activity fields are atomics because the RTP writer updates them on every
// packet while the cleanup loop reads them concurrently. Report fields are
// only touched under the Collector mutex.
type streamState struct {
	ssrc      uint32
	clockRate uint32

	lastPacket  atomic.Time
	packetsSent atomic.Uint64

	// Reception report state.
	hasReport    bool
	fractionLost uint8
	jitter       uint32 // RTP timestamp units
	baseSeq      uint32 // extended highest sequence at the first report
	baseLost     uint32 // cumulative lost at the first report
	lastSeq      uint32
	totalLost    uint32
	rtt          time.Duration
	hasRTT       bool
}

func newStreamState(ssrc, clockRate uint32, now time.Time) *streamState {
	s := &streamState{
		ssrc:      ssrc,
		clockRate: clockRate,
	}
	s.lastPacket.Store(now)
	return s
}

// onPacket records an outgoing packet.
func (s *streamState) onPacket(now time.Time) {
	s.lastPacket.Store(now)
	s.packetsSent.Inc()
}

// LastPacket returns when the most recent packet was written.
func (s *streamState) LastPacket() time.Time {
	return s.lastPacket.Load()
}

// counters returns cumulative lost and received packets since the first
// reception report for this stream.
func (s *streamState) counters() (lost, received uint64) {
	if !s.hasReport {
		return 0, 0
	}
	expected := uint64(s.lastSeq - s.baseSeq)
	if s.totalLost > s.baseLost {
		lost = uint64(s.totalLost - s.baseLost)
	}
	if expected > lost {
		received = expected - lost
	}
	return lost, received
}

// jitterMillis converts interarrival jitter from RTP units to milliseconds.
func (s *streamState) jitterMillis() float64 {
	if s.clockRate == 0 {
		return 0
	}
	return float64(s.jitter) * 1000 / float64(s.clockRate)
}
