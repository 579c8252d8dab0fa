// Package session runs one quality controller per media session: it
// serialises ticks, renders changed decisions and applies them to the
// transport.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/newproject8/returnfeed-backend-sub001/pkg/quality"
	"github.com/newproject8/returnfeed-backend-sub001/pkg/telemetry/prometheus"
)

var (
	// ErrOutOfOrder is returned by Tick for a sample older than the last one.
	// The sample is dropped and no state changes.
	ErrOutOfOrder = errors.New("session: sample out of order")

	// ErrModeMismatch is returned by an override that does not match the
	// session's controller mode.
	ErrModeMismatch = errors.New("session: override does not match controller mode")
)

// DecisionFunc observes every decision a session makes, overrides included.
type DecisionFunc func(id string, d quality.QualityDecision)

// Params configures a Session.
type Params struct {
	// ID identifies the session. Manager.Create fills in a UUID when empty.
	ID string

	Mode   quality.Mode
	Config quality.Config

	// Clock defaults to the system monotonic clock.
	Clock quality.Clock

	// Applier receives rendered decisions. Nil discards them.
	Applier Applier

	// HighRID and LowRID name the simulcast layers. Defaults: "f" and "q".
	HighRID string
	LowRID  string

	Logger     *zap.Logger
	Metrics    *prometheus.Metrics
	OnDecision DecisionFunc
}

// Stats are cumulative session counters.
type Stats struct {
	Ticks         uint64
	Changes       uint64
	Gated         uint64
	ApplyFailures uint64
	Retries       uint64
	OutOfOrder    uint64
}

// Session owns a controller and the renderers for its output. All methods
// are safe for concurrent use; ticks are applied one at a time.
type Session struct {
	id         string
	applier    Applier
	simulcast  quality.SimulcastRenderer
	bitrate    quality.BitrateRenderer
	logger     *zap.Logger
	metrics    *prometheus.Metrics
	onDecision DecisionFunc

	mu         sync.Mutex
	ctrl       quality.Controller
	lastSample time.Time
	// pending is set while the controller's current target has not reached
	// the transport.
	pending bool

	ticks         atomic.Uint64
	changes       atomic.Uint64
	gated         atomic.Uint64
	applyFailures atomic.Uint64
	retries       atomic.Uint64
	outOfOrder    atomic.Uint64
}

// New creates a session. An invalid controller configuration is returned as
// an error.
func New(p Params) (*Session, error) {
	ctrl, err := quality.NewController(p.Mode, p.Config, p.Clock)
	if err != nil {
		return nil, errors.Wrapf(err, "session %s", p.ID)
	}
	applier := p.Applier
	if applier == nil {
		applier = ApplierFuncs{}
	}
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{
		id:         p.ID,
		applier:    applier,
		simulcast:  quality.NewSimulcastRenderer(p.HighRID, p.LowRID),
		bitrate:    quality.NewBitrateRenderer(ctrl.Config()),
		logger:     logger.Named("quality").With(zap.String("session", p.ID), zap.Stringer("mode", p.Mode)),
		metrics:    p.Metrics,
		onDecision: p.OnDecision,
		ctrl:       ctrl,
	}, nil
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Mode returns the controller mode.
func (s *Session) Mode() quality.Mode { return s.ctrl.Mode() }

// Tick runs one controller step for m. A zero timestamp is replaced by the
// controller clock.
//
// The switch window is advanced before deciding. When the decision changes
// the target it is rendered and applied; if the transport refuses it, the
// decision is returned together with a *quality.ApplyError and the
// controller keeps the new target. Every later tick, gated or not, applies
// the current target again until the transport accepts it.
func (s *Session) Tick(ctx context.Context, m quality.QualityMetrics) (quality.QualityDecision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if m.Timestamp.IsZero() {
		m.Timestamp = s.ctrl.Now()
	}
	if !s.lastSample.IsZero() && m.Timestamp.Before(s.lastSample) {
		s.outOfOrder.Inc()
		s.logger.Debug("dropping out-of-order sample",
			zap.Time("sample", m.Timestamp),
			zap.Time("last", s.lastSample),
		)
		return quality.QualityDecision{}, errors.Wrapf(ErrOutOfOrder, "sample at %s precedes %s",
			m.Timestamp.Format(time.RFC3339Nano), s.lastSample.Format(time.RFC3339Nano))
	}
	s.lastSample = m.Timestamp

	if s.ctrl.AdvanceWindow(m.Timestamp) {
		s.logger.Debug("switch window reset", zap.Time("windowStart", s.ctrl.State().WindowStart))
	}
	d := s.ctrl.Update(m, m.Timestamp)
	s.ticks.Inc()
	s.metrics.RecordDecision(s.id, d)
	if s.onDecision != nil {
		s.onDecision(s.id, d)
	}

	if d.Gate != quality.GateNone {
		s.gated.Inc()
		s.logger.Debug("decision gated", zap.Stringer("gate", d.Gate))
	}
	switch {
	case d.Changed:
		s.changes.Inc()
		s.logger.Info("quality decision", decisionFields(d)...)
	case s.pending:
		// Unchanged decisions carry the current target.
		s.retries.Inc()
		s.logger.Info("retrying failed apply", decisionFields(d)...)
	default:
		return d, nil
	}
	return d, s.apply(ctx, d)
}

// Run ticks the session for every sample received until samples is closed
// or ctx is done. Tick errors are logged and do not stop the loop.
func (s *Session) Run(ctx context.Context, samples <-chan quality.QualityMetrics) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-samples:
			if !ok {
				return nil
			}
			if _, err := s.Tick(ctx, m); err != nil {
				s.logger.Warn("tick failed", zap.Error(err))
			}
		}
	}
}

// SetLevel forces the simulcast level and applies it. It fails with
// ErrModeMismatch on a bitrate session and quality.ErrUnknownLevel for a
// level that is neither low nor high.
func (s *Session) SetLevel(ctx context.Context, level quality.QualityLevel) (quality.QualityDecision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lc, ok := s.ctrl.(*quality.LevelController)
	if !ok {
		return quality.QualityDecision{}, errors.Wrapf(ErrModeMismatch, "set level on %s session", s.ctrl.Mode())
	}
	d, err := lc.SetLevel(level, s.ctrl.Now())
	if err != nil {
		return d, err
	}
	return d, s.override(ctx, d)
}

// SetBitrate forces the bitrate target, clamped to the configured bounds,
// and applies it. It fails with ErrModeMismatch on a level session.
func (s *Session) SetBitrate(ctx context.Context, bps int64) (quality.QualityDecision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bc, ok := s.ctrl.(*quality.BitrateController)
	if !ok {
		return quality.QualityDecision{}, errors.Wrapf(ErrModeMismatch, "set bitrate on %s session", s.ctrl.Mode())
	}
	d := bc.SetBitrate(bps, s.ctrl.Now())
	return d, s.override(ctx, d)
}

func (s *Session) override(ctx context.Context, d quality.QualityDecision) error {
	s.metrics.RecordTarget(s.id, d)
	if s.onDecision != nil {
		s.onDecision(s.id, d)
	}
	s.logger.Info("manual override", decisionFields(d)...)
	return s.apply(ctx, d)
}

// apply renders d and hands it to the transport. Must be called with mu held.
func (s *Session) apply(ctx context.Context, d quality.QualityDecision) error {
	var err error
	switch d.Mode {
	case quality.ModeBitrate:
		err = s.applier.ApplyBitrate(ctx, s.bitrate.Render(d.Bitrate))
	default:
		err = s.applier.ApplyLevel(ctx, s.simulcast.Render(d))
	}
	if err == nil {
		s.pending = false
		return nil
	}
	s.pending = true
	s.applyFailures.Inc()
	s.metrics.RecordApplyFailure(d.Mode)
	s.logger.Warn("failed to apply decision", append(decisionFields(d), zap.Error(err))...)
	return &quality.ApplyError{Decision: d, Err: err}
}

// State returns a copy of the controller state.
func (s *Session) State() quality.ControllerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctrl.State()
}

// Smoothed returns the controller's current smoothed metrics.
func (s *Session) Smoothed() quality.SmoothedMetrics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctrl.Smoothed()
}

// HistoryLen returns the number of samples in the smoothing window.
func (s *Session) HistoryLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctrl.HistoryLen()
}

// Config returns the controller's effective configuration.
func (s *Session) Config() quality.Config { return s.ctrl.Config() }

// Stats returns the session counters.
func (s *Session) Stats() Stats {
	return Stats{
		Ticks:         s.ticks.Load(),
		Changes:       s.changes.Load(),
		Gated:         s.gated.Load(),
		ApplyFailures: s.applyFailures.Load(),
		Retries:       s.retries.Load(),
		OutOfOrder:    s.outOfOrder.Load(),
	}
}

func decisionFields(d quality.QualityDecision) []zap.Field {
	fields := []zap.Field{
		zap.String("direction", d.Direction()),
		zap.Float64("confidence", d.Confidence),
		zap.String("reason", d.Reason),
	}
	switch d.Mode {
	case quality.ModeBitrate:
		fields = append(fields,
			zap.Int64("bitrate", d.Bitrate),
			zap.Int64("previousBitrate", d.PreviousBitrate),
		)
	default:
		fields = append(fields,
			zap.Stringer("level", d.Level),
			zap.Stringer("previousLevel", d.PreviousLevel),
		)
	}
	return fields
}
