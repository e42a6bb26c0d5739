package engine

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	// sampleEvery is the tick interval at which durations are measured.
	sampleEvery = 100

	// slowTick is the duration above which a sampled tick is logged.
	slowTick = time.Millisecond
)

// Metrics is a snapshot of tick statistics.
type Metrics struct {
	Ticks    int64         `json:"ticks"`
	Samples  int64         `json:"samples"`
	AvgTick  time.Duration `json:"avg_tick_ns"`
	PeakTick time.Duration `json:"peak_tick_ns"`
}

// TickMetrics counts ticks and keeps an exponential moving average and the
// peak of sampled tick durations. Recording happens on the graph goroutine
// and is skipped when a reader holds the lock.
type TickMetrics struct {
	ticks atomic.Int64

	mu      sync.Mutex
	samples int64
	avg     time.Duration
	peak    time.Duration
}

// NewTickMetrics creates empty metrics.
func NewTickMetrics() *TickMetrics {
	return &TickMetrics{}
}

// next counts a tick and reports whether its duration should be measured.
func (m *TickMetrics) next() bool {
	return m.ticks.Add(1)%sampleEvery == 0
}

func (m *TickMetrics) record(d time.Duration) {
	if d > slowTick {
		logrus.WithFields(logrus.Fields{
			"function": "TickMetrics.record",
			"duration": d.String(),
		}).Debug("Slow tick")
	}
	if !m.mu.TryLock() {
		return
	}
	defer m.mu.Unlock()

	m.samples++
	if m.avg == 0 {
		m.avg = d
	} else {
		// EMA with alpha = 0.1
		m.avg = time.Duration(float64(m.avg)*0.9 + float64(d)*0.1)
	}
	if d > m.peak {
		m.peak = d
	}
}

// Snapshot returns the current statistics.
func (m *TickMetrics) Snapshot() Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Metrics{
		Ticks:    m.ticks.Load(),
		Samples:  m.samples,
		AvgTick:  m.avg,
		PeakTick: m.peak,
	}
}

// Reset clears all counters.
func (m *TickMetrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ticks.Store(0)
	m.samples = 0
	m.avg = 0
	m.peak = 0
}
