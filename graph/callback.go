package graph

import "github.com/opd-ai/audiograph/ring"

// Transformer is the per-tick behaviour of a single-input single-output
// stage. Transform reads from in and writes to out; out.Active has already
// been set from the logical input when Transform is called and may be
// overridden.
type Transformer interface {
	Transform(in, out *ring.Buffer)
}

// TransformFunc adapts an ordinary function to the Transformer interface.
type TransformFunc func(in, out *ring.Buffer)

// Transform calls f(in, out).
func (f TransformFunc) Transform(in, out *ring.Buffer) { f(in, out) }

// Adapter runs a Transformer against any number of wired inputs and outputs.
//
//   - no inputs: the transformer acts as a generator over an always-active
//     private input.
//   - several inputs: they are mixed into a private buffer first.
//   - no outputs: the transformer writes into a private buffer that is
//     discarded after the call.
//   - several outputs: the transformer writes into a private buffer whose new
//     content is then copied to every output.
//
// Signal nodes embed an Adapter and call Run from their Update method so
// that each node costs a single dynamic call per tick. The zero value is
// ready to use.
type Adapter struct {
	mix BaseMix
	in  *ring.Buffer
	out *ring.Buffer
}

// Run invokes t once with the logical input and output for this tick.
func (a *Adapter) Run(t Transformer, inputs, outputs []*ring.Buffer) {
	if len(inputs) == 0 && len(outputs) == 0 {
		return
	}
	a.init()

	in := a.in
	switch len(inputs) {
	case 0:
	case 1:
		in = inputs[0]
	default:
		a.mix.MixInto(inputs, a.in)
	}

	switch len(outputs) {
	case 0:
		a.out.Active = in.Active
		t.Transform(in, a.out)
		a.out.Clear()
	case 1:
		outputs[0].Active = in.Active
		t.Transform(in, outputs[0])
	default:
		a.out.Active = in.Active
		t.Transform(in, a.out)
		CopyOutRing(a.out.Len(), a.out, outputs)
	}
}

func (a *Adapter) init() {
	if a.in == nil {
		a.in = ring.New()
		a.out = ring.New()
	}
}

// Callback is a Node backed by a Transformer.
type Callback struct {
	adapter     Adapter
	transformer Transformer
}

// NewCallback wraps t in a Node handling arbitrary arity.
func NewCallback(t Transformer) *Callback {
	return &Callback{transformer: t}
}

// Transformer returns the wrapped transformer.
func (c *Callback) Transformer() Transformer { return c.transformer }

// Update implements Node.
func (c *Callback) Update(inputs, outputs []*ring.Buffer) {
	c.adapter.Run(c.transformer, inputs, outputs)
}

// Capture is a generator Node. Each tick fill appends newly produced samples
// to a private buffer whose content is then moved to every output, together
// with the buffer's Active flag.
type Capture struct {
	fill    func(out *ring.Buffer)
	scratch *ring.Buffer
}

// NewCapture creates a generator node around fill.
func NewCapture(fill func(out *ring.Buffer)) *Capture {
	return &Capture{fill: fill, scratch: ring.New()}
}

// Update implements Node. Inputs are ignored.
func (c *Capture) Update(_, outputs []*ring.Buffer) {
	c.fill(c.scratch)
	CopyOutRing(c.scratch.Len(), c.scratch, outputs)
}

// Playback is a sink Node. A single input is handed to drain directly;
// several inputs are mixed into a private buffer first. Outputs are ignored.
type Playback struct {
	drain   func(in *ring.Buffer)
	mix     BaseMix
	scratch *ring.Buffer
}

// NewPlayback creates a sink node around drain.
func NewPlayback(drain func(in *ring.Buffer)) *Playback {
	scratch := ring.New()
	scratch.Active = false
	return &Playback{drain: drain, scratch: scratch}
}

// Update implements Node.
func (p *Playback) Update(inputs, _ []*ring.Buffer) {
	if len(inputs) == 1 {
		p.drain(inputs[0])
		return
	}
	p.mix.MixInto(inputs, p.scratch)
	p.drain(p.scratch)
}
