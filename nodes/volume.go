package nodes

import (
	"fmt"

	"github.com/opd-ai/audiograph/graph"
	"github.com/opd-ai/audiograph/ring"
)

// Volume scales every sample by a fixed num/denom factor.
type Volume struct {
	adapter    graph.Adapter
	num, denom int32
}

// NewVolume creates a volume node scaling by num/denom.
func NewVolume(num, denom int32) (*Volume, error) {
	if denom <= 0 {
		return nil, fmt.Errorf("volume: %w: %d/%d", ErrInvalidRatio, num, denom)
	}
	return &Volume{num: num, denom: denom}, nil
}

// Update implements graph.Node.
func (v *Volume) Update(inputs, outputs []*ring.Buffer) {
	v.adapter.Run(v, inputs, outputs)
}

// Transform implements graph.Transformer.
func (v *Volume) Transform(in, out *ring.Buffer) {
	n := in.Len()
	scale(in.ReadSlice(n), out.WriteSlice(n), v.num, v.denom)
}
