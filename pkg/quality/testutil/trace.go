package testutil

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/newproject8/returnfeed-backend-sub001/pkg/quality"
)

// TraceSample is one recorded observation. Offset is relative to the start
// of the trace.
type TraceSample struct {
	Offset          time.Duration `yaml:"offset"`
	PacketLoss      float64       `yaml:"loss"`
	RoundTripTime   float64       `yaml:"rtt"`
	Jitter          float64       `yaml:"jitter"`
	Bandwidth       float64       `yaml:"bandwidth"`
	FramesDropped   float64       `yaml:"frames_dropped"`
	PacketsLost     uint64        `yaml:"packets_lost"`
	PacketsReceived uint64        `yaml:"packets_received"`

	// ExpectLevel, when set, is the level the controller should hold after
	// this sample ("low" or "high").
	ExpectLevel string `yaml:"expect_level,omitempty"`
}

// Trace is a recorded or hand-written sequence of samples.
type Trace struct {
	Name        string        `yaml:"name"`
	Description string        `yaml:"description"`
	Mode        string        `yaml:"mode"`
	Interval    time.Duration `yaml:"interval"`
	Samples     []TraceSample `yaml:"samples"`
}

// LoadTrace reads a trace from a YAML file.
func LoadTrace(path string) (*Trace, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read trace: %w", err)
	}
	return ParseTrace(data)
}

// ParseTrace decodes a YAML trace. Samples without an offset are spaced by
// Interval (default 2s).
func ParseTrace(data []byte) (*Trace, error) {
	var t Trace
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse trace: %w", err)
	}
	if t.Interval <= 0 {
		t.Interval = DefaultInterval
	}
	if len(t.Samples) == 0 {
		return nil, fmt.Errorf("trace %q has no samples", t.Name)
	}
	var prev time.Duration
	for i := range t.Samples {
		s := &t.Samples[i]
		if s.Offset == 0 {
			s.Offset = prev + t.Interval
		}
		if s.Offset < prev {
			return nil, fmt.Errorf("trace %q: sample %d goes back in time", t.Name, i)
		}
		prev = s.Offset
	}
	return &t, nil
}

// Metrics converts the samples to metrics timestamped from start.
func (t *Trace) Metrics(start time.Time) []quality.QualityMetrics {
	out := make([]quality.QualityMetrics, len(t.Samples))
	for i, s := range t.Samples {
		out[i] = quality.QualityMetrics{
			PacketLoss:         s.PacketLoss,
			RoundTripTime:      s.RoundTripTime,
			Jitter:             s.Jitter,
			EstimatedBandwidth: s.Bandwidth,
			FramesDropped:      s.FramesDropped,
			PacketsLost:        s.PacketsLost,
			PacketsReceived:    s.PacketsReceived,
			Timestamp:          start.Add(s.Offset),
		}
	}
	return out
}

// Replay feeds the trace to c, advancing the switch window before each
// decision, and returns one decision per sample.
func (t *Trace) Replay(c quality.Controller, start time.Time) []quality.QualityDecision {
	metrics := t.Metrics(start)
	out := make([]quality.QualityDecision, len(metrics))
	for i, m := range metrics {
		c.AdvanceWindow(m.Timestamp)
		out[i] = c.Update(m, m.Timestamp)
	}
	return out
}

// Mismatch describes a sample whose expected level was not met.
type Mismatch struct {
	Index int
	Want  string
	Got   string
}

// CheckLevels compares decisions against the samples' expected levels.
func (t *Trace) CheckLevels(decisions []quality.QualityDecision) []Mismatch {
	var out []Mismatch
	for i, s := range t.Samples {
		if s.ExpectLevel == "" || i >= len(decisions) {
			continue
		}
		if got := decisions[i].Level.String(); got != s.ExpectLevel {
			out = append(out, Mismatch{Index: i, Want: s.ExpectLevel, Got: got})
		}
	}
	return out
}
