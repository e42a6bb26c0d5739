// Package graph implements the fixed-topology executor of the audio engine
// together with the glue that turns small transform functions into nodes.
//
// A Graph is built bottom-up: sinks are registered first and every later node
// names the already registered nodes it feeds. Ticking the graph visits nodes
// in reverse registration order, which is a valid topological order by
// construction, and hands every node exactly the ring buffers wired to it.
// Buffers are moved between an arena and the node, never copied or
// allocated, so a warmed-up graph ticks without heap allocation.
package graph

import "github.com/opd-ai/audiograph/ring"

// Node is a processing stage of the graph.
//
// Update is called once per tick with the buffers wired to the node. It must
// consume only as much input as it can emit, set Active on each output to
// report whether it produced live audio, and must not keep references to the
// buffers after returning. Missing data, arity mismatches and unavailable
// hardware are expressed through buffer length and the Active flag, never
// through errors or panics.
type Node interface {
	Update(inputs, outputs []*ring.Buffer)
}

// NodeFunc adapts an ordinary function to the Node interface.
type NodeFunc func(inputs, outputs []*ring.Buffer)

// Update calls f(inputs, outputs).
func (f NodeFunc) Update(inputs, outputs []*ring.Buffer) { f(inputs, outputs) }
