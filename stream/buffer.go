// Package stream feeds audio arriving from outside the engine (TCP
// connections, HTTP request bodies, files) into the graph.
//
// A Buffer is both sides of the hand-off. Writers call Ingest from their own
// goroutine with an io.Reader of raw signed 16-bit little-endian interleaved
// PCM; the graph ticks the Buffer as a source node. Only one writer may be
// connected at a time. The graph side takes the shared ring with TryLock and
// treats contention as "no data this tick".
//
// A stream must prove itself before it is heard: the first data takes the
// engine-wide activation permit, and the stream only starts producing once
// it has delivered two seconds of audio. This keeps a flaky sender from
// repeatedly pausing every device.
package stream

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/opd-ai/audiograph/activation"
	"github.com/opd-ai/audiograph/clock"
	"github.com/opd-ai/audiograph/graph"
	"github.com/opd-ai/audiograph/limits"
	"github.com/opd-ai/audiograph/ring"
	"github.com/sirupsen/logrus"
)

// State is the position of a Buffer in its activation cycle.
type State int32

const (
	// Idle: incoming data is discarded until the activation permit is free.
	Idle State = iota
	// Activating: the permit is held and incoming data is counted, not played.
	Activating
	// Running: incoming data is forwarded to the graph.
	Running
)

var stateNames = [...]string{"idle", "activating", "running"}

// String returns the lowercase name of the state.
func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Buffer is a named network-fed source node.
type Buffer struct {
	name    string
	ctrl    *activation.Controller
	tp      clock.TimeProvider
	capture *graph.Capture

	mu     sync.Mutex
	shared *ring.Buffer

	connected atomic.Bool
	published atomic.Int32

	// Owned by the graph goroutine.
	state        State
	guard        *activation.Guard
	paused       bool
	samples      int
	lastReceived time.Time
}

// NewBuffer creates an idle buffer. A nil tp uses the wall clock.
func NewBuffer(name string, ctrl *activation.Controller, tp clock.TimeProvider) *Buffer {
	tp = clock.OrDefault(tp)

	logrus.WithFields(logrus.Fields{
		"function": "NewBuffer",
		"name":     name,
	}).Debug("Creating stream buffer")

	b := &Buffer{
		name:         name,
		ctrl:         ctrl,
		tp:           tp,
		shared:       ring.New(),
		lastReceived: tp.Now(),
	}
	b.capture = graph.NewCapture(b.fill)
	return b
}

// Name returns the buffer's name.
func (b *Buffer) Name() string { return b.name }

// State returns the buffer's current state. It is safe to call from any
// goroutine.
func (b *Buffer) State() State { return State(b.published.Load()) }

// Connected reports whether a writer is currently attached.
func (b *Buffer) Connected() bool { return b.connected.Load() }

// Update implements graph.Node.
func (b *Buffer) Update(inputs, outputs []*ring.Buffer) {
	b.capture.Update(inputs, outputs)
}

// Close releases the activation permit if the buffer holds it. It must not
// be called while the graph is ticking.
func (b *Buffer) Close() error {
	b.guard.Release()
	b.guard = nil
	return nil
}

// pending returns the unread sample count, discarding the samples unless
// the buffer is running.
func (b *Buffer) pending() int {
	if !b.mu.TryLock() {
		return 0
	}
	n := b.shared.Len()
	if b.state != Running {
		b.shared.Clear()
	}
	b.mu.Unlock()
	return n
}

func (b *Buffer) setState(s State) {
	b.state = s
	b.published.Store(int32(s))
}

func (b *Buffer) fill(out *ring.Buffer) {
	n := b.pending()
	out.Active = false
	now := b.tp.Now()

	switch b.state {
	case Idle:
		if n == 0 {
			return
		}
		if b.guard = b.ctrl.Activate(); b.guard != nil {
			b.lastReceived = now
			b.samples = 0
			b.setState(Activating)
			b.log("Activating stream")
		}

	case Activating:
		switch {
		case n > 0 && b.samples > limits.StreamActivationSamples:
			b.guard.Release()
			b.guard = nil
			b.samples = 0
			b.paused = false
			b.setState(Running)
			b.log("Activated stream")
		case n == 0 && now.Sub(b.lastReceived) > limits.StreamActivationTimeout:
			b.guard.Release()
			b.guard = nil
			b.setState(Idle)
			b.log("Stream did not activate")
		case n > 0:
			b.lastReceived = now
			b.samples += n
		}

	case Running:
		if n > 0 {
			b.lastReceived = now
			b.follow()
			out.Active = !b.paused
			if b.mu.TryLock() {
				if b.paused {
					b.shared.Clear()
				} else {
					out.WriteFromRing(b.shared.Len(), b.shared)
				}
				b.mu.Unlock()
			}
			return
		}
		idle := now.Sub(b.lastReceived)
		switch {
		case idle < limits.StreamGrace:
			out.Active = !b.paused
		case idle >= limits.StreamIdleTimeout:
			b.setState(Idle)
			b.log("Stream went idle")
		}
	}
}

// follow pauses the buffer while another participant is activating.
func (b *Buffer) follow() {
	switch b.ctrl.State() {
	case activation.Activating:
		if !b.paused {
			b.log("Paused stream")
		}
		b.paused = true
	case activation.Running:
		if b.paused {
			b.log("Resumed stream")
		}
		b.paused = false
	}
}

func (b *Buffer) log(msg string) {
	logrus.WithFields(logrus.Fields{
		"stream": b.name,
		"state":  b.state.String(),
	}).Info(msg)
}
