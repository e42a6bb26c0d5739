package nodes

import (
	"fmt"

	"github.com/opd-ai/audiograph/graph"
	"github.com/opd-ai/audiograph/ring"
)

// Lean bounds the latency of a downstream sink. Each tick it forwards at
// most max samples and drops whatever else is buffered.
type Lean struct {
	adapter graph.Adapter
	max     int
}

// NewLean creates a lean node forwarding at most limit samples per tick.
func NewLean(limit int) (*Lean, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("lean: %w: %d", ErrInvalidLimit, limit)
	}
	return &Lean{max: limit}, nil
}

// Update implements graph.Node.
func (l *Lean) Update(inputs, outputs []*ring.Buffer) {
	l.adapter.Run(l, inputs, outputs)
}

// Transform implements graph.Transformer.
func (l *Lean) Transform(in, out *ring.Buffer) {
	out.WriteFromRing(min(in.Len(), l.max), in)
	in.Clear()
}
