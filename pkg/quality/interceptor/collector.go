package interceptor

import (
	"sync"
	"time"

	"github.com/pion/rtcp"

	"github.com/newproject8/returnfeed-backend-sub001/pkg/quality"
)

// Collector aggregates RTCP feedback for a set of local streams into
// quality.QualityMetrics samples. It is safe for concurrent use.
//
// Sample combines streams conservatively: loss, jitter and RTT are the worst
// across streams and the packet counters are summed.
type Collector struct {
	mu            sync.Mutex
	streams       map[uint32]*streamState
	remb          float64
	framesDropped uint64
}

// NewCollector creates an empty Collector.
func NewCollector() *Collector {
	return &Collector{streams: make(map[uint32]*streamState)}
}

// AddStream starts tracking a local stream. Re-adding an SSRC resets it.
func (c *Collector) AddStream(ssrc, clockRate uint32, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.streams[ssrc] = newStreamState(ssrc, clockRate, now)
}

// RemoveStream stops tracking a local stream.
func (c *Collector) RemoveStream(ssrc uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.streams, ssrc)
}

// StreamCount returns the number of tracked streams.
func (c *Collector) StreamCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.streams)
}

// OnPacketSent records an outgoing RTP packet.
func (c *Collector) OnPacketSent(ssrc uint32, now time.Time) {
	c.mu.Lock()
	s := c.streams[ssrc]
	c.mu.Unlock()
	if s != nil {
		s.onPacket(now)
	}
}

// OnReceptionReport applies one reception report block received at arrival.
// Reports for unknown SSRCs are ignored.
func (c *Collector) OnReceptionReport(rr rtcp.ReceptionReport, arrival time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.streams[rr.SSRC]
	if !ok {
		return
	}
	if !s.hasReport {
		s.hasReport = true
		s.baseSeq = rr.LastSequenceNumber
		s.baseLost = rr.TotalLost
	}
	s.fractionLost = rr.FractionLost
	s.jitter = rr.Jitter
	s.lastSeq = rr.LastSequenceNumber
	s.totalLost = rr.TotalLost
	if rtt, ok := roundTripTime(arrival, rr.LastSenderReport, rr.Delay); ok {
		s.rtt = rtt
		s.hasRTT = true
	}
}

// OnPackets dispatches the RTCP packets the sampler cares about.
func (c *Collector) OnPackets(pkts []rtcp.Packet, arrival time.Time) {
	for _, pkt := range pkts {
		switch p := pkt.(type) {
		case *rtcp.ReceiverReport:
			for _, rr := range p.Reports {
				c.OnReceptionReport(rr, arrival)
			}
		case *rtcp.SenderReport:
			for _, rr := range p.Reports {
				c.OnReceptionReport(rr, arrival)
			}
		case *rtcp.ReceiverEstimatedMaximumBitrate:
			c.OnREMB(float64(p.Bitrate))
		}
	}
}

// OnREMB records the latest receiver bandwidth estimate in bits per second.
func (c *Collector) OnREMB(bps float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.remb = bps
}

// AddFramesDropped adds frames dropped by the local encoder or pacer.
func (c *Collector) AddFramesDropped(n uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.framesDropped += n
}

// Sample builds a metrics sample from everything observed so far. The
// dropped-frame count is reset by each call; every other field reflects the
// latest reports.
func (c *Collector) Sample(now time.Time) quality.QualityMetrics {
	c.mu.Lock()
	defer c.mu.Unlock()

	m := quality.QualityMetrics{
		EstimatedBandwidth: c.remb,
		FramesDropped:      float64(c.framesDropped),
		Timestamp:          now,
	}
	c.framesDropped = 0

	for _, s := range c.streams {
		if !s.hasReport {
			continue
		}
		if loss := float64(s.fractionLost) / 256; loss > m.PacketLoss {
			m.PacketLoss = loss
		}
		if j := s.jitterMillis(); j > m.Jitter {
			m.Jitter = j
		}
		if s.hasRTT {
			if rtt := float64(s.rtt) / float64(time.Millisecond); rtt > m.RoundTripTime {
				m.RoundTripTime = rtt
			}
		}
		lost, received := s.counters()
		m.PacketsLost += lost
		m.PacketsReceived += received
	}
	return m
}

// Prune removes streams with no outgoing packet for longer than timeout and
// returns how many were removed.
func (c *Collector) Prune(now time.Time, timeout time.Duration) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for ssrc, s := range c.streams {
		if now.Sub(s.LastPacket()) > timeout {
			delete(c.streams, ssrc)
			removed++
		}
	}
	return removed
}
