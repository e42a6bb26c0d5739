package nodes

import (
	"math"
	"sync"
	"time"

	"github.com/opd-ai/audiograph/clock"
	"github.com/opd-ai/audiograph/graph"
	"github.com/opd-ai/audiograph/limits"
	"github.com/opd-ai/audiograph/ring"
)

// MeterFloor is the level reported for digital silence, in dBFS.
const MeterFloor = -96.0

// Level is the shared peak reading published by a Meter.
type Level struct {
	mu   sync.Mutex
	peak int32
}

// NewLevel creates a level reading zero.
func NewLevel() *Level {
	return &Level{}
}

// Peak returns the most recently published peak magnitude.
func (l *Level) Peak() int32 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.peak
}

// DBFS returns the most recently published peak in decibels relative to
// full scale, never below MeterFloor.
func (l *Level) DBFS() float64 {
	p := l.Peak()
	if p <= 0 {
		return MeterFloor
	}
	return math.Max(20*math.Log10(float64(p)/32768), MeterFloor)
}

func (l *Level) tryPublish(peak int32) {
	if l.mu.TryLock() {
		l.peak = peak
		l.mu.Unlock()
	}
}

// Meter passes audio through unchanged while tracking the peak magnitude
// over a rolling window and publishing it to a shared Level.
type Meter struct {
	adapter graph.Adapter
	tp      clock.TimeProvider
	level   *Level
	window  time.Duration

	peak  int32
	reset time.Time
}

// NewMeter creates a meter publishing to level with limits.MeterWindow. A nil
// tp uses the wall clock.
func NewMeter(level *Level, tp clock.TimeProvider) *Meter {
	tp = clock.OrDefault(tp)
	return &Meter{
		tp:     tp,
		level:  level,
		window: limits.MeterWindow,
		reset:  tp.Now(),
	}
}

// Level returns the shared reading this meter publishes to.
func (m *Meter) Level() *Level { return m.level }

// Update implements graph.Node.
func (m *Meter) Update(inputs, outputs []*ring.Buffer) {
	m.adapter.Run(m, inputs, outputs)
}

// Transform implements graph.Transformer.
func (m *Meter) Transform(in, out *ring.Buffer) {
	if now := m.tp.Now(); now.Sub(m.reset) > m.window {
		m.peak = 0
		m.reset = now
	}

	n := in.Len()
	s := in.ReadSlice(n)
	a, b := s.Runs()
	m.track(a)
	m.track(b)
	out.WriteFromReadSlice(n, s)

	if m.level != nil {
		m.level.tryPublish(m.peak)
	}
}

func (m *Meter) track(run []int16) {
	for _, v := range run {
		mag := int32(v)
		if mag < 0 {
			mag = -mag
		}
		if mag > m.peak {
			m.peak = mag
		}
	}
}
