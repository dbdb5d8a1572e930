package whisperd

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/antoniostano/innervoice/internal/observability"
)

// Manager owns the model lifecycle: lazy load on first use, idle unload
// after a quiet period, and a cached load failure so a broken setup
// fails fast instead of re-probing the accelerator on every request.
type Manager struct {
	mu         sync.Mutex
	factory    EngineFactory
	engine     Engine
	loadErr    error
	lastUsed   time.Time
	idleUnload time.Duration
	metrics    *observability.ServerMetrics
	now        func() time.Time
}

func NewManager(factory EngineFactory, idleUnload time.Duration, metrics *observability.ServerMetrics) *Manager {
	return &Manager{
		factory:    factory,
		idleUnload: idleUnload,
		metrics:    metrics,
		now:        time.Now,
	}
}

// SetClock replaces the time source. Tests only.
func (m *Manager) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// Engine returns the loaded engine, loading the model first if needed.
// The load happens under the lock so concurrent first requests produce
// exactly one load. A failed load is cached and returned to all
// subsequent callers.
func (m *Manager) Engine(ctx context.Context) (Engine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.engine != nil {
		m.lastUsed = m.now()
		return m.engine, nil
	}
	if m.loadErr != nil {
		return nil, fmt.Errorf("model load previously failed: %w", m.loadErr)
	}

	log.Printf("whisperd: loading model (first request or after idle unload)")
	engine, err := m.factory(ctx)
	if err != nil {
		m.loadErr = err
		m.countEvent("load_failed")
		return nil, err
	}
	m.engine = engine
	m.lastUsed = m.now()
	m.countEvent("loaded")
	m.setLoadedGauge(1)
	return m.engine, nil
}

// Touch refreshes the idle stamp after a completed request.
func (m *Manager) Touch() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.engine != nil {
		m.lastUsed = m.now()
	}
}

// Loaded reports whether the model is resident.
func (m *Manager) Loaded() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.engine != nil
}

// UnloadIfIdle unloads the model when it has been unused for the idle
// window. The idle check is repeated under the lock because a request
// may have refreshed the stamp between the cheap check and the unload.
func (m *Manager) UnloadIfIdle() bool {
	if m.idleUnload <= 0 {
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.engine == nil {
		return false
	}
	idleFor := m.now().Sub(m.lastUsed)
	if idleFor < m.idleUnload {
		return false
	}

	log.Printf("whisperd: model idle for %s (>= %s), unloading", idleFor.Round(time.Second), m.idleUnload)
	m.unloadLocked()
	m.countEvent("idle_unloaded")
	return true
}

// Watch runs the idle-unload loop until the context is canceled.
func (m *Manager) Watch(ctx context.Context, interval time.Duration) {
	if m.idleUnload <= 0 {
		log.Printf("whisperd: idle unload disabled")
		return
	}
	log.Printf("whisperd: idle-unload watcher started: idle=%s interval=%s", m.idleUnload, interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.UnloadIfIdle()
		}
	}
}

// Close unloads the model unconditionally.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.engine != nil {
		m.unloadLocked()
		m.countEvent("closed")
	}
}

func (m *Manager) unloadLocked() {
	if err := m.engine.Close(); err != nil {
		log.Printf("whisperd: engine close: %v", err)
	}
	m.engine = nil
	m.lastUsed = time.Time{}
	m.setLoadedGauge(0)
}

func (m *Manager) countEvent(event string) {
	if m.metrics != nil {
		m.metrics.ModelEvents.WithLabelValues(event).Inc()
	}
}

func (m *Manager) setLoadedGauge(v float64) {
	if m.metrics != nil {
		m.metrics.ModelLoaded.Set(v)
	}
}
