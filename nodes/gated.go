package nodes

import (
	"fmt"

	"github.com/opd-ai/audiograph/graph"
	"github.com/opd-ai/audiograph/ring"
)

// Gated passes audio while its Gate is open. While the gate is closed the
// output is marked inactive and the input is discarded. A contended gate
// leaves both buffers untouched for this tick.
type Gated struct {
	adapter graph.Adapter
	gate    *Gate
}

// NewGated creates a node controlled by gate.
func NewGated(gate *Gate) (*Gated, error) {
	if gate == nil {
		return nil, fmt.Errorf("gated: %w", ErrNilState)
	}
	return &Gated{gate: gate}, nil
}

// Update implements graph.Node.
func (g *Gated) Update(inputs, outputs []*ring.Buffer) {
	g.adapter.Run(g, inputs, outputs)
}

// Transform implements graph.Transformer.
func (g *Gated) Transform(in, out *ring.Buffer) {
	if !in.Active {
		return
	}
	open, ok := g.gate.TryGet()
	if !ok {
		return
	}
	pass(open, in, out)
}

// Switched passes audio only while its Switch is at the node's own
// position. Several Switched nodes sharing one Switch select exactly one of
// several sources.
type Switched struct {
	adapter  graph.Adapter
	sw       *Switch
	position int
}

// NewSwitched creates a node that is open while sw is at position.
func NewSwitched(sw *Switch, position int) (*Switched, error) {
	if sw == nil {
		return nil, fmt.Errorf("switched: %w", ErrNilState)
	}
	return &Switched{sw: sw, position: position}, nil
}

// Update implements graph.Node.
func (s *Switched) Update(inputs, outputs []*ring.Buffer) {
	s.adapter.Run(s, inputs, outputs)
}

// Transform implements graph.Transformer.
func (s *Switched) Transform(in, out *ring.Buffer) {
	if !in.Active {
		return
	}
	pos, ok := s.sw.TryGet()
	if !ok {
		return
	}
	pass(pos == s.position, in, out)
}

func pass(open bool, in, out *ring.Buffer) {
	if !open {
		out.Active = false
		in.Clear()
		return
	}
	out.WriteFromRing(in.Len(), in)
}
