package nodes

import (
	"sync/atomic"

	"github.com/opd-ai/audiograph/graph"
	"github.com/opd-ai/audiograph/ring"
)

// SampleCounter is shared between a DependentClock and a DependencyClock.
type SampleCounter struct {
	n atomic.Int64
}

// DependentClock forwards all of its input and adds the number of forwarded
// samples to a SampleCounter.
type DependentClock struct {
	adapter graph.Adapter
	counter *SampleCounter
}

// DependencyClock forwards exactly as many samples as its paired
// DependentClock forwarded since the last tick, slaving one path's pace to
// another's.
type DependencyClock struct {
	adapter graph.Adapter
	counter *SampleCounter
}

// NewClockPair creates a dependent clock and the dependency clock it paces.
func NewClockPair() (*DependentClock, *DependencyClock) {
	c := &SampleCounter{}
	return &DependentClock{counter: c}, &DependencyClock{counter: c}
}

// Update implements graph.Node.
func (c *DependentClock) Update(inputs, outputs []*ring.Buffer) {
	c.adapter.Run(c, inputs, outputs)
}

// Transform implements graph.Transformer.
func (c *DependentClock) Transform(in, out *ring.Buffer) {
	n := in.Len()
	out.WriteFromRing(n, in)
	c.counter.n.Add(int64(n))
}

// Update implements graph.Node.
func (c *DependencyClock) Update(inputs, outputs []*ring.Buffer) {
	c.adapter.Run(c, inputs, outputs)
}

// Transform implements graph.Transformer.
func (c *DependencyClock) Transform(in, out *ring.Buffer) {
	n := c.counter.n.Swap(0)
	out.WriteFromRing(int(n), in)
}
