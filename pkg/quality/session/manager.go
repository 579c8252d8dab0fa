package session

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/newproject8/returnfeed-backend-sub001/pkg/quality"
	"github.com/newproject8/returnfeed-backend-sub001/pkg/telemetry/prometheus"
)

var (
	ErrSessionExists   = errors.New("session: already exists")
	ErrSessionNotFound = errors.New("session: not found")
)

// Manager is a registry of independent sessions keyed by id.
type Manager struct {
	logger  *zap.Logger
	metrics *prometheus.Metrics

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates an empty registry. Sessions created through it inherit
// logger and metrics unless their params set their own.
func NewManager(logger *zap.Logger, metrics *prometheus.Metrics) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		logger:   logger,
		metrics:  metrics,
		sessions: make(map[string]*Session),
	}
}

// Create builds and registers a session. An empty p.ID is replaced by a
// random UUID.
func (m *Manager) Create(p Params) (*Session, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Logger == nil {
		p.Logger = m.logger
	}
	if p.Metrics == nil {
		p.Metrics = m.metrics
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[p.ID]; ok {
		return nil, errors.Wrap(ErrSessionExists, p.ID)
	}
	s, err := New(p)
	if err != nil {
		return nil, err
	}
	m.sessions[p.ID] = s
	m.logger.Debug("session created", zap.String("session", p.ID), zap.Stringer("mode", p.Mode))
	return s, nil
}

// Get returns the session with the given id.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, errors.Wrap(ErrSessionNotFound, id)
	}
	return s, nil
}

// Remove unregisters a session and drops its metric series.
func (m *Manager) Remove(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return errors.Wrap(ErrSessionNotFound, id)
	}
	delete(m.sessions, id)
	m.metrics.Forget(id)
	m.logger.Debug("session removed", zap.String("session", id))
	return nil
}

// Len returns the number of registered sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// IDs returns the registered session ids in sorted order.
func (m *Manager) IDs() []string {
	m.mu.RLock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// Tick routes a sample to the session with the given id.
func (m *Manager) Tick(ctx context.Context, id string, q quality.QualityMetrics) (quality.QualityDecision, error) {
	s, err := m.Get(id)
	if err != nil {
		return quality.QualityDecision{}, err
	}
	return s.Tick(ctx, q)
}

// SampleFunc returns a sample callback that ticks the session matching the
// sampler's id. It has the shape of the interceptor package's SampleFunc, so
// a SamplerFactory can feed the registry directly. Samples for unknown ids
// are dropped.
func (m *Manager) SampleFunc(ctx context.Context) func(id string, q quality.QualityMetrics) {
	return func(id string, q quality.QualityMetrics) {
		if _, err := m.Tick(ctx, id, q); err != nil {
			if errors.Is(err, ErrSessionNotFound) {
				m.logger.Debug("sample for unknown session", zap.String("session", id))
				return
			}
			m.logger.Warn("tick failed", zap.String("session", id), zap.Error(err))
		}
	}
}
