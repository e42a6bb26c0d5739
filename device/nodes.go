package device

import (
	"github.com/opd-ai/audiograph/graph"
	"github.com/opd-ai/audiograph/ring"
)

// Sink is a graph node that plays its (mixed) input on a card.
//
// While no stream is open the input is left alone and simply overflows. When
// a stream opens the input is cleared so that playback starts with fresh
// audio. Whenever the device queue holds less than one period, silence is
// appended to the input so that the device does not run dry.
type Sink struct {
	node     *graph.Playback
	s        *session
	buf      []int16
	period   int
	maxQ     int
	channels int
}

func newSink(s *session) *Sink {
	k := &Sink{
		s:        s,
		buf:      make([]int16, s.card.Hw.BufferFrames()*s.card.Hw.Channels),
		period:   s.card.Hw.PeriodSize,
		maxQ:     s.card.Hw.BufferFrames(),
		channels: s.card.Hw.Channels,
	}
	k.node = graph.NewPlayback(k.drain)
	return k
}

// Update implements graph.Node.
func (k *Sink) Update(inputs, outputs []*ring.Buffer) {
	k.node.Update(inputs, outputs)
}

// State returns the node's lifecycle state.
func (k *Sink) State() State { return State(k.s.state.Load()) }

// Close closes the stream, if any. It must not be called while the graph is
// ticking.
func (k *Sink) Close() error { return k.s.close() }

func (k *Sink) drain(in *ring.Buffer) {
	if k.s.stream == nil {
		if !k.s.connect() {
			return
		}
		in.Clear()
	}
	if !k.s.poll() {
		return
	}

	avail, err := k.s.stream.Available()
	if err != nil {
		k.s.log.WithField("error", err.Error()).Debug("Available failed")
		return
	}

	ch := k.channels
	if queued := k.maxQ - avail; queued < k.period {
		if short := k.period - queued - in.Len()/ch; short > 0 {
			in.WriteSilence(short * ch)
		}
	}

	frames := min(avail, in.Len()/ch, len(k.buf)/ch)
	if frames <= 0 {
		return
	}
	n := in.Peek(frames * ch).CopyTo(k.buf)
	written, err := k.s.stream.Write(k.buf[:n])
	if err != nil {
		k.s.log.WithField("error", err.Error()).Debug("Write failed")
	}
	// Frames the device did not take stay queued for the next tick.
	in.Discard(max(written, 0) * ch)
}

// Source is a graph node producing audio captured from a card.
//
// Its output is inactive until a stream is open and while the stream is
// paused. After opening, reading only begins once the device has buffered
// the card's start threshold.
type Source struct {
	node      *graph.Capture
	s         *session
	buf       []int16
	channels  int
	threshold int
	reading   bool
}

func newSource(s *session) *Source {
	c := &Source{
		s:         s,
		buf:       make([]int16, s.card.Hw.BufferFrames()*s.card.Hw.Channels),
		channels:  s.card.Hw.Channels,
		threshold: s.card.Sw.StartThreshold,
	}
	c.node = graph.NewCapture(c.fill)
	return c
}

// Update implements graph.Node.
func (c *Source) Update(inputs, outputs []*ring.Buffer) {
	c.node.Update(inputs, outputs)
}

// State returns the node's lifecycle state.
func (c *Source) State() State { return State(c.s.state.Load()) }

// Close closes the stream, if any. It must not be called while the graph is
// ticking.
func (c *Source) Close() error { return c.s.close() }

func (c *Source) fill(out *ring.Buffer) {
	out.Active = false
	if c.s.stream == nil {
		if c.s.connect() {
			out.Clear()
			c.reading = false
		}
		return
	}

	transfer := c.s.poll()
	out.Active = c.s.stream != nil && !c.s.paused
	if !transfer {
		return
	}

	avail, err := c.s.stream.Available()
	if err != nil {
		c.s.log.WithField("error", err.Error()).Debug("Available failed")
		return
	}
	if !c.reading && avail >= c.threshold {
		c.reading = true
	}
	if !c.reading || avail <= 0 {
		return
	}

	ch := c.channels
	frames := min(avail, len(c.buf)/ch)
	read, err := c.s.stream.Read(c.buf[:frames*ch])
	if err != nil {
		c.s.log.WithField("error", err.Error()).Debug("Read failed")
		return
	}
	out.WriteFrom(read*ch, c.buf)
}
