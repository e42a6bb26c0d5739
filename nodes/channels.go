package nodes

import (
	"github.com/opd-ai/audiograph/graph"
	"github.com/opd-ai/audiograph/ring"
)

// MonoToStereo duplicates every mono input sample into a left/right pair.
// At most half of the free output space is read per tick so the doubled
// samples always fit.
type MonoToStereo struct {
	adapter graph.Adapter
}

// NewMonoToStereo creates a mono to stereo node.
func NewMonoToStereo() *MonoToStereo {
	return &MonoToStereo{}
}

// Update implements graph.Node.
func (m *MonoToStereo) Update(inputs, outputs []*ring.Buffer) {
	m.adapter.Run(m, inputs, outputs)
}

// Transform implements graph.Transformer.
func (m *MonoToStereo) Transform(in, out *ring.Buffer) {
	n := min(in.Len(), out.Free()/2)
	if n == 0 {
		return
	}
	src := in.ReadSlice(n)
	dst := out.WriteSlice(n * 2)
	for i := 0; i < n; i++ {
		v := src.At(i)
		dst.Set(2*i, v)
		dst.Set(2*i+1, v)
	}
}
