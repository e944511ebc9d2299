package orchestrator

import (
	"sync"
	"time"
)

// Metrics tracks step counts and total time for the current process.
type Metrics struct {
	mu       sync.RWMutex
	steps    int64
	errors   int64
	duration time.Duration
}

func NewMetrics() *Metrics { return &Metrics{} }

func (m *Metrics) RecordStep(d time.Duration) {
	m.mu.Lock()
	m.steps++
	m.duration += d
	m.mu.Unlock()
}

func (m *Metrics) RecordError() {
	m.mu.Lock()
	m.errors++
	m.mu.Unlock()
}

// Stats returns steps completed, errors, and total step time.
func (m *Metrics) Stats() (int64, int64, time.Duration) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.steps, m.errors, m.duration
}
