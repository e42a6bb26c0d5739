package graph

import (
	"fmt"

	"github.com/opd-ai/audiograph/ring"
	"github.com/sirupsen/logrus"
)

// edge identifies one output slot of a producer node.
type edge struct {
	node int
	slot int
}

type graphNode struct {
	id     int
	node   Node
	to     []int
	inputs []edge
}

// Graph owns every node and every per-edge ring buffer of a fixed topology.
//
// Nodes are registered bottom-up with Connect and ticked with Update. The
// graph is not safe for concurrent use; exactly one goroutine ticks it.
type Graph struct {
	nodes []graphNode

	// outputs[id][slot] is the buffer on the edge from node id to its
	// slot-th downstream node. A nil entry means the buffer is currently
	// lent to a node during Update.
	outputs [][]*ring.Buffer

	// Transient argument lists, sized at Connect time for the largest arity.
	inBufs  []*ring.Buffer
	outBufs []*ring.Buffer
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{}
}

// Connect registers n and wires one new output buffer to each node listed in
// to. Every id in to must already be registered, which forces sinks to be
// registered before the nodes feeding them. It returns the id assigned to n.
func (g *Graph) Connect(n Node, to ...int) (int, error) {
	if n == nil {
		return 0, ErrNilNode
	}
	for _, target := range to {
		if target < 0 || target >= len(g.nodes) {
			logrus.WithFields(logrus.Fields{
				"function": "Connect",
				"target":   target,
				"nodes":    len(g.nodes),
			}).Error("Downstream node is not registered")
			return 0, fmt.Errorf("%w: %d", ErrUnknownNode, target)
		}
	}

	id := len(g.nodes)
	outs := make([]*ring.Buffer, len(to))
	for slot, target := range to {
		outs[slot] = ring.New()
		g.nodes[target].inputs = append(g.nodes[target].inputs, edge{node: id, slot: slot})
		g.reserve(len(g.nodes[target].inputs), 0)
	}
	g.reserve(0, len(to))

	g.nodes = append(g.nodes, graphNode{
		id:   id,
		node: n,
		to:   append([]int(nil), to...),
	})
	g.outputs = append(g.outputs, outs)

	logrus.WithFields(logrus.Fields{
		"function": "Connect",
		"node_id":  id,
		"node":     fmt.Sprintf("%T", n),
		"to":       to,
	}).Debug("Node registered")

	return id, nil
}

// MustConnect is like Connect but panics on error. It is intended for
// statically known topologies.
func (g *Graph) MustConnect(n Node, to ...int) int {
	id, err := g.Connect(n, to...)
	if err != nil {
		panic(err)
	}
	return id
}

// Node returns the node registered under id, or nil.
func (g *Graph) Node(id int) Node {
	if id < 0 || id >= len(g.nodes) {
		return nil
	}
	return g.nodes[id].node
}

// Len returns the number of registered nodes.
func (g *Graph) Len() int { return len(g.nodes) }

// Nodes calls fn for every registered node in registration order.
func (g *Graph) Nodes(fn func(id int, n Node)) {
	for i := range g.nodes {
		fn(g.nodes[i].id, g.nodes[i].node)
	}
}

// Update runs one tick: every node is updated once, from the most recently
// registered to the first. Each node borrows its input buffers from the
// producers' output slots and its own output buffers, and returns them when
// Update on the node returns.
func (g *Graph) Update() {
	for i := len(g.nodes) - 1; i >= 0; i-- {
		gn := &g.nodes[i]

		inputs := g.inBufs[:0]
		for _, e := range gn.inputs {
			inputs = append(inputs, g.outputs[e.node][e.slot])
			g.outputs[e.node][e.slot] = nil
		}

		own := g.outputs[gn.id]
		outputs := g.outBufs[:0]
		for slot, b := range own {
			outputs = append(outputs, b)
			own[slot] = nil
		}

		gn.node.Update(inputs, outputs)

		for slot := range own {
			own[slot] = outputs[slot]
			outputs[slot] = nil
		}
		for k, e := range gn.inputs {
			g.outputs[e.node][e.slot] = inputs[k]
			inputs[k] = nil
		}
	}
}

// reserve grows the transient argument lists so that Update never appends
// past their capacity.
func (g *Graph) reserve(inputs, outputs int) {
	if inputs > cap(g.inBufs) {
		g.inBufs = make([]*ring.Buffer, 0, inputs)
	}
	if outputs > cap(g.outBufs) {
		g.outBufs = make([]*ring.Buffer, 0, outputs)
	}
}
